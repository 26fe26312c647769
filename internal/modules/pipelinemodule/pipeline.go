// Package pipelinemodule composes the resolution stages into one
// invocation: normalize, recognize, resolve, acquire, gated by the
// requester's reachability. Stages run strictly left to right; the first
// typed failure short-circuits the rest.
package pipelinemodule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
)

// Stage collaborators, defined here so the pipeline depends on behavior
// rather than on the owning modules.

type Normalizer interface {
	Normalize(ctx context.Context, desc types.MediaDescriptor) (*types.NormalizedClip, error)
	Cleanup(clip *types.NormalizedClip)
}

type Recognizer interface {
	Recognize(ctx context.Context, clip *types.NormalizedClip) (*types.TrackIdentity, error)
}

type Resolver interface {
	Resolve(ctx context.Context, identity types.TrackIdentity) (*types.SourceReference, error)
}

type Acquirer interface {
	Acquire(ctx context.Context, ref *types.SourceReference, identity types.TrackIdentity) (*types.DownloadArtifact, error)
}

type DeliveryGate interface {
	IsDeliverable(requesterID string) bool
}

// TrackCache short-circuits the download stage for sources already
// acquired once.
type TrackCache interface {
	Lookup(sourceID string) (*types.DownloadArtifact, bool)
	Save(sourceID string, artifact *types.DownloadArtifact)
}

// Pipeline runs one media-to-track resolution per invocation. Invocations
// are independent and safe to run concurrently; the only shared state
// lives behind the resolver's credential pool.
type Pipeline struct {
	normalizer  Normalizer
	recognizer  Recognizer
	resolver    Resolver
	acquirer    Acquirer
	gate        DeliveryGate
	cache       TrackCache
	stepTimeout time.Duration
}

// NewPipeline wires a pipeline over its stage collaborators.
func NewPipeline(n Normalizer, r Recognizer, res Resolver, a Acquirer, gate DeliveryGate, cache TrackCache, stepTimeout time.Duration) *Pipeline {
	if stepTimeout <= 0 {
		stepTimeout = 3 * time.Minute
	}
	return &Pipeline{
		normalizer:  n,
		recognizer:  r,
		resolver:    res,
		acquirer:    a,
		gate:        gate,
		cache:       cache,
		stepTimeout: stepTimeout,
	}
}

// Run executes the full pipeline for one descriptor. A nil identity in
// the result is the valid "no match" outcome, not an error. Temporary
// resources are released on every exit path, including cancellation.
func (p *Pipeline) Run(ctx context.Context, desc types.MediaDescriptor) (*types.PipelineResult, error) {
	result := &types.PipelineResult{
		RequestID: "req-" + uuid.New().String(),
		StartedAt: time.Now(),
	}

	p.publish(events.EventPipelineStarted, result.RequestID, nil)

	if desc.RequesterID != "" && p.gate != nil && !p.gate.IsDeliverable(desc.RequesterID) {
		err := errors.NewValidationError("requester is not reachable for delivery", "requester_id")
		p.fail(result, err)
		return nil, err
	}

	clip, err := p.normalize(ctx, desc)
	if err != nil {
		p.fail(result, err)
		return nil, err
	}
	defer p.normalizer.Cleanup(clip)

	identity, err := p.recognize(ctx, clip)
	if err != nil {
		p.fail(result, err)
		return nil, err
	}
	if identity == nil {
		result.FinishedAt = time.Now()
		p.publish(events.EventTrackNoMatch, result.RequestID, nil)
		return result, nil
	}
	result.Identity = identity
	p.publish(events.EventTrackMatched, result.RequestID, map[string]interface{}{
		"title":  identity.Title,
		"artist": identity.Artist,
	})

	ref, err := p.resolve(ctx, *identity)
	if err != nil {
		p.fail(result, err)
		return nil, err
	}
	result.Source = ref

	if p.cache != nil {
		if artifact, ok := p.cache.Lookup(ref.ProviderTrackID); ok {
			result.Artifact = artifact
			result.FromCache = true
			result.FinishedAt = time.Now()
			p.publish(events.EventPipelineCompleted, result.RequestID, map[string]interface{}{"from_cache": true})
			return result, nil
		}
	}

	artifact, err := p.acquire(ctx, ref, *identity)
	if err != nil {
		p.fail(result, err)
		return nil, err
	}
	result.Artifact = artifact
	result.FinishedAt = time.Now()

	if p.cache != nil {
		p.cache.Save(ref.ProviderTrackID, artifact)
	}

	p.publish(events.EventPipelineCompleted, result.RequestID, map[string]interface{}{
		"duration_ms": result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"title":       artifact.Title,
	})
	p.publish(events.EventDownloadCompleted, result.RequestID, map[string]interface{}{
		"size_bytes": artifact.SizeBytes,
	})
	return result, nil
}

func (p *Pipeline) normalize(ctx context.Context, desc types.MediaDescriptor) (*types.NormalizedClip, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return p.normalizer.Normalize(stageCtx, desc)
}

func (p *Pipeline) recognize(ctx context.Context, clip *types.NormalizedClip) (*types.TrackIdentity, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return p.recognizer.Recognize(stageCtx, clip)
}

func (p *Pipeline) resolve(ctx context.Context, identity types.TrackIdentity) (*types.SourceReference, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return p.resolver.Resolve(stageCtx, identity)
}

func (p *Pipeline) acquire(ctx context.Context, ref *types.SourceReference, identity types.TrackIdentity) (*types.DownloadArtifact, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return p.acquirer.Acquire(stageCtx, ref, identity)
}

func (p *Pipeline) fail(result *types.PipelineResult, err error) {
	result.FinishedAt = time.Now()

	code := errors.CodeOf(err)
	if code == errors.CodeAutomationBlocked {
		p.publish(events.EventDownloadBlocked, result.RequestID, nil)
	}
	p.publish(events.EventPipelineFailed, result.RequestID, map[string]interface{}{"code": code})

	logger.Warn("pipeline invocation failed", []logger.Field{
		logger.String("request_id", result.RequestID),
		logger.String("code", code),
		logger.Err(err),
	})
}

func (p *Pipeline) publish(eventType events.EventType, requestID string, data map[string]interface{}) {
	bus := events.GetGlobalEventBus()
	if bus == nil {
		return
	}
	bus.PublishAsync(events.Event{
		Type:   eventType,
		Source: ModuleID,
		Title:  requestID,
		Data:   data,
	})
}
