package downloadmodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/types"
)

// scriptedRunner replays one canned outcome per attempt. A "challenge"
// outcome mimics the provider's bot-detection response; "ok" writes the
// output file the way the extractor would.
type scriptedRunner struct {
	script    []string // per-attempt: "ok", "challenge", "fail"
	calls     [][]string
	fileBytes int
}

func (s *scriptedRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	attempt := len(s.calls)
	s.calls = append(s.calls, append([]string{cmd}, args...))

	outcome := "ok"
	if attempt < len(s.script) {
		outcome = s.script[attempt]
	}

	switch outcome {
	case "challenge":
		return []byte("ERROR: Sign in to confirm you're not a bot"), fmt.Errorf("exit status 1")
	case "fail":
		return []byte("ERROR: unable to download video data"), fmt.Errorf("exit status 1")
	default:
		size := s.fileBytes
		if size == 0 {
			size = 2048
		}
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				os.WriteFile(args[i+1], make([]byte, size), 0o644)
			}
		}
		return nil, nil
	}
}

func (s *scriptedRunner) argValue(attempt int, flag string) string {
	call := s.calls[attempt]
	for i, arg := range call {
		if arg == flag && i+1 < len(call) {
			return call[i+1]
		}
	}
	return ""
}

func testAcquirer(t *testing.T, runner CommandRunner, cookieFiles []string) *Acquirer {
	t.Helper()
	a := NewAcquirer(
		config.DownloadConfig{MaxRetries: 3, BackoffBase: time.Millisecond, AudioQuality: "192"},
		config.MediaConfig{WorkDir: t.TempDir(), MaxFileSize: 50 * 1024 * 1024},
		"yt-dlp",
		runner,
		NewCookieStore(cookieFiles),
	)
	a.retry.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	a.pickAgent = func(attempt int) string { return userAgents[(attempt-1)%len(userAgents)] }
	return a
}

var testRef = &types.SourceReference{ProviderTrackID: "vid-1", DurationSeconds: 213, ResolutionMethod: types.ResolutionPrimaryAPI}
var dlIdentity = types.TrackIdentity{Title: "One More Time", Artist: "Daft Punk"}

func TestAcquireFirstAttemptSuccess(t *testing.T) {
	runner := &scriptedRunner{script: []string{"ok"}}
	a := testAcquirer(t, runner, nil)

	artifact, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, "mp3", artifact.Codec)
	assert.Equal(t, int64(2048), artifact.SizeBytes)
	assert.Equal(t, 213, artifact.DurationSeconds)
	assert.Equal(t, "One More Time", artifact.Title)
	assert.Equal(t, "Daft Punk", artifact.Artist)
	assert.FileExists(t, artifact.FilePath)
	assert.Len(t, runner.calls, 1)
}

func TestAcquireChallengeExactlyRetryBoundThenSuccess(t *testing.T) {
	// Three challenges then success: the bound allows exactly this many
	// retries, so the final attempt must still produce an artifact.
	runner := &scriptedRunner{script: []string{"challenge", "challenge", "challenge", "ok"}}
	a := testAcquirer(t, runner, nil)

	artifact, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Len(t, runner.calls, 4)
}

func TestAcquireChallengeExhaustionYieldsAutomationBlocked(t *testing.T) {
	runner := &scriptedRunner{script: []string{"challenge", "challenge", "challenge", "challenge"}}
	a := testAcquirer(t, runner, nil)

	artifact, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.Error(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, errors.CodeAutomationBlocked, errors.CodeOf(err))
	assert.Len(t, runner.calls, 4, "initial attempt plus the configured retries")
}

func TestAcquirePersistentFailureYieldsDownloadFailed(t *testing.T) {
	runner := &scriptedRunner{script: []string{"fail", "fail", "fail", "fail"}}
	a := testAcquirer(t, runner, nil)

	_, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDownloadFailed, errors.CodeOf(err))
}

func TestAcquireOversizedResultRejectedPostHoc(t *testing.T) {
	runner := &scriptedRunner{script: []string{"ok"}, fileBytes: 4096}
	a := testAcquirer(t, runner, nil)
	a.media.MaxFileSize = 1024

	_, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.Error(t, err)
	assert.Equal(t, errors.CodeFileTooLarge, errors.CodeOf(err))

	entries, readErr := os.ReadDir(a.media.WorkDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "rejected downloads must not leak their directory")
}

func TestAcquireRotatesIdentityBetweenAttempts(t *testing.T) {
	dir := t.TempDir()
	cookieA := filepath.Join(dir, "cookies-a.txt")
	cookieB := filepath.Join(dir, "cookies-b.txt")
	require.NoError(t, os.WriteFile(cookieA, []byte("# a"), 0o600))
	require.NoError(t, os.WriteFile(cookieB, []byte("# b"), 0o600))

	runner := &scriptedRunner{script: []string{"challenge", "ok"}}
	a := testAcquirer(t, runner, []string{cookieA, cookieB})

	_, err := a.Acquire(context.Background(), testRef, dlIdentity)
	require.NoError(t, err)
	require.Len(t, runner.calls, 2)

	assert.NotEqual(t, runner.argValue(0, "--user-agent"), runner.argValue(1, "--user-agent"))
	assert.Equal(t, cookieA, runner.argValue(0, "--cookies"))
	assert.Equal(t, cookieB, runner.argValue(1, "--cookies"))
}

func TestIsAutomationChallenge(t *testing.T) {
	assert.True(t, isAutomationChallenge("Sign in to confirm you're not a bot"))
	assert.True(t, isAutomationChallenge("please solve this CAPTCHA to continue"))
	assert.False(t, isAutomationChallenge("HTTP Error 404: Not Found"))
}
