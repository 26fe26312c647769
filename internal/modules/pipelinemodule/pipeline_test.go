package pipelinemodule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/types"
)

type fakeNormalizer struct {
	clip     *types.NormalizedClip
	err      error
	cleaned  int
	invoked  int
}

func (f *fakeNormalizer) Normalize(ctx context.Context, desc types.MediaDescriptor) (*types.NormalizedClip, error) {
	f.invoked++
	return f.clip, f.err
}

func (f *fakeNormalizer) Cleanup(clip *types.NormalizedClip) { f.cleaned++ }

type fakeRecognizer struct {
	identity *types.TrackIdentity
	err      error
	invoked  int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, clip *types.NormalizedClip) (*types.TrackIdentity, error) {
	f.invoked++
	return f.identity, f.err
}

type fakeResolver struct {
	ref     *types.SourceReference
	err     error
	invoked int
}

func (f *fakeResolver) Resolve(ctx context.Context, identity types.TrackIdentity) (*types.SourceReference, error) {
	f.invoked++
	return f.ref, f.err
}

type fakeAcquirer struct {
	artifact *types.DownloadArtifact
	err      error
	invoked  int
}

func (f *fakeAcquirer) Acquire(ctx context.Context, ref *types.SourceReference, identity types.TrackIdentity) (*types.DownloadArtifact, error) {
	f.invoked++
	return f.artifact, f.err
}

type fakeGate struct{ blocked map[string]bool }

func (f *fakeGate) IsDeliverable(requesterID string) bool { return !f.blocked[requesterID] }

type fakeCache struct {
	entries map[string]*types.DownloadArtifact
	saves   int
}

func (f *fakeCache) Lookup(sourceID string) (*types.DownloadArtifact, bool) {
	a, ok := f.entries[sourceID]
	return a, ok
}

func (f *fakeCache) Save(sourceID string, artifact *types.DownloadArtifact) {
	if f.entries == nil {
		f.entries = map[string]*types.DownloadArtifact{}
	}
	f.entries[sourceID] = artifact
	f.saves++
}

func happyStages() (*fakeNormalizer, *fakeRecognizer, *fakeResolver, *fakeAcquirer) {
	return &fakeNormalizer{clip: &types.NormalizedClip{FilePath: "/tmp/x/clip.wav", DurationSeconds: 30}},
		&fakeRecognizer{identity: &types.TrackIdentity{Title: "Harder Better", Artist: "Daft Punk", ExternalMatchID: "m-1"}},
		&fakeResolver{ref: &types.SourceReference{ProviderTrackID: "vid-1", ResolutionMethod: types.ResolutionPrimaryAPI}},
		&fakeAcquirer{artifact: &types.DownloadArtifact{FilePath: "/tmp/x/track.mp3", Codec: "mp3", SizeBytes: 4096, Title: "Harder Better", Artist: "Daft Punk"}}
}

func videoDescriptor() types.MediaDescriptor {
	return types.MediaDescriptor{
		ContentKind:     types.ContentVideo,
		ByteSize:        40 * 1024 * 1024,
		SourceHandle:    "/tmp/in.mp4",
		DurationSeconds: 120,
		RequesterID:     "requester-1",
	}
}

func TestPipelineEndToEndVideoToArtifact(t *testing.T) {
	n, r, res, a := happyStages()
	cache := &fakeCache{}
	p := NewPipeline(n, r, res, a, &fakeGate{}, cache, time.Minute)

	result, err := p.Run(context.Background(), videoDescriptor())
	require.NoError(t, err)
	require.NotNil(t, result.Artifact)
	assert.Equal(t, "vid-1", result.Source.ProviderTrackID)
	assert.False(t, result.FromCache)
	assert.Equal(t, 1, n.invoked)
	assert.Equal(t, 1, r.invoked)
	assert.Equal(t, 1, res.invoked)
	assert.Equal(t, 1, a.invoked)
	assert.Equal(t, 1, n.cleaned, "the clip is released after a successful run")
	assert.Equal(t, 1, cache.saves)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestPipelineOversizedShortCircuitsBeforeRecognizer(t *testing.T) {
	n := &fakeNormalizer{err: errors.NewFileTooLarge(60<<20, 50<<20)}
	r := &fakeRecognizer{}
	p := NewPipeline(n, r, &fakeResolver{}, &fakeAcquirer{}, &fakeGate{}, &fakeCache{}, time.Minute)

	result, err := p.Run(context.Background(), videoDescriptor())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, errors.CodeFileTooLarge, errors.CodeOf(err))
	assert.Zero(t, r.invoked, "the recognizer never sees an oversized descriptor")
}

func TestPipelineNoMatchIsValidEmptyResult(t *testing.T) {
	n, _, res, a := happyStages()
	r := &fakeRecognizer{} // nil identity: no match
	p := NewPipeline(n, r, res, a, &fakeGate{}, &fakeCache{}, time.Minute)

	result, err := p.Run(context.Background(), videoDescriptor())
	require.NoError(t, err)
	assert.Nil(t, result.Identity)
	assert.Zero(t, res.invoked, "no match stops the pipeline before resolution")
	assert.Zero(t, a.invoked)
	assert.Equal(t, 1, n.cleaned)
}

func TestPipelineNoSourceFoundPropagates(t *testing.T) {
	n, r, _, a := happyStages()
	res := &fakeResolver{err: errors.NewNoSourceFound("Harder Better", "Daft Punk")}
	p := NewPipeline(n, r, res, a, &fakeGate{}, &fakeCache{}, time.Minute)

	_, err := p.Run(context.Background(), videoDescriptor())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoSourceFound, errors.CodeOf(err))
	assert.Zero(t, a.invoked)
	assert.Equal(t, 1, n.cleaned, "the clip is released on failure paths too")
}

func TestPipelineAcquireFailureReleasesClip(t *testing.T) {
	n, r, res, _ := happyStages()
	a := &fakeAcquirer{err: errors.NewAutomationBlocked(4)}
	p := NewPipeline(n, r, res, a, &fakeGate{}, &fakeCache{}, time.Minute)

	_, err := p.Run(context.Background(), videoDescriptor())
	require.Error(t, err)
	assert.Equal(t, errors.CodeAutomationBlocked, errors.CodeOf(err))
	assert.Equal(t, 1, n.cleaned)
}

func TestPipelineBlockedRequesterIsSkipped(t *testing.T) {
	n, r, res, a := happyStages()
	gate := &fakeGate{blocked: map[string]bool{"requester-1": true}}
	p := NewPipeline(n, r, res, a, gate, &fakeCache{}, time.Minute)

	_, err := p.Run(context.Background(), videoDescriptor())
	require.Error(t, err)
	assert.Zero(t, n.invoked, "unreachable requesters are skipped before any work")
}

func TestPipelineCacheHitSkipsDownload(t *testing.T) {
	n, r, res, a := happyStages()
	cached := &types.DownloadArtifact{FilePath: "/tmp/cached.mp3", Codec: "mp3", Title: "Harder Better"}
	cache := &fakeCache{entries: map[string]*types.DownloadArtifact{"vid-1": cached}}
	p := NewPipeline(n, r, res, a, &fakeGate{}, cache, time.Minute)

	result, err := p.Run(context.Background(), videoDescriptor())
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, cached, result.Artifact)
	assert.Zero(t, a.invoked, "a cached source never re-downloads")
}
