package downloadmodule

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
	"github.com/tunegrab/tunegrab/internal/utils"
)

// CommandRunner interface for command execution (enables mocking in tests)
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// DefaultCommandRunner implements CommandRunner using os/exec
type DefaultCommandRunner struct{}

// Run executes a command using os/exec
func (r *DefaultCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	return command.CombinedOutput()
}

// userAgents are plausible desktop browser identities, one picked per
// attempt so consecutive retries never present the same client.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// challengeMarkers identify a provider response that flagged the request
// as non-human traffic rather than failing outright.
var challengeMarkers = []string{
	"sign in to confirm",
	"confirm you're not a robot",
	"not a bot",
	"captcha",
	"unusual traffic",
}

// Acquirer downloads audio for a resolved source reference through the
// extractor process, with bounded anti-detection retries.
type Acquirer struct {
	cfg           config.DownloadConfig
	media         config.MediaConfig
	extractorPath string
	runner        CommandRunner
	cookies       *CookieStore
	retry         *utils.RetryPolicy
	artwork       *ArtworkFetcher

	// pickAgent is swappable for tests.
	pickAgent func(attempt int) string
}

// NewAcquirer builds an acquirer. The retry policy allows the configured
// number of retries on top of the initial attempt.
func NewAcquirer(cfg config.DownloadConfig, media config.MediaConfig, extractorPath string, runner CommandRunner, cookies *CookieStore) *Acquirer {
	return &Acquirer{
		cfg:           cfg,
		media:         media,
		extractorPath: extractorPath,
		runner:        runner,
		cookies:       cookies,
		retry:         utils.NewRetryPolicy(cfg.MaxRetries+1, cfg.BackoffBase),
		artwork:       NewArtworkFetcher(cfg.ArtworkEnabled),
		pickAgent: func(attempt int) string {
			return userAgents[(rand.Intn(len(userAgents))+attempt)%len(userAgents)]
		},
	}
}

// Acquire fetches the audio behind the source reference. Automation
// challenges and transient failures are retried with backoff, swapping
// the client identity and session cookie between attempts; exhausting
// the bound surfaces AutomationBlocked or DownloadFailed respectively.
// The caller takes ownership of the artifact directory on success.
func (a *Acquirer) Acquire(ctx context.Context, ref *types.SourceReference, identity types.TrackIdentity) (*types.DownloadArtifact, error) {
	outDir := filepath.Join(a.media.WorkDir, "dl-"+uuid.New().String())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.NewInternalError("failed to create download directory", err)
	}
	outPath := filepath.Join(outDir, "track.mp3")

	var (
		attempts       int
		sawChallenge   bool
		lastChallenged bool
	)

	err := a.retry.Do(ctx, func(attempt int) (bool, error) {
		attempts = attempt
		lastChallenged = false

		output, err := a.runner.Run(ctx, a.extractorPath, a.buildArgs(ref, outPath, attempt)...)
		if err == nil {
			return false, nil
		}

		if isAutomationChallenge(string(output)) {
			sawChallenge = true
			lastChallenged = true
			logger.Warn("download flagged as automated traffic", []logger.Field{
				logger.String("provider_track_id", ref.ProviderTrackID),
				logger.Int("attempt", attempt),
			})
			return true, fmt.Errorf("automation challenge on attempt %d", attempt)
		}

		logger.Warn("download attempt failed", []logger.Field{
			logger.String("provider_track_id", ref.ProviderTrackID),
			logger.Int("attempt", attempt),
			logger.Err(err),
		})
		return true, err
	})

	if err != nil {
		os.RemoveAll(outDir)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if sawChallenge && lastChallenged {
			return nil, errors.NewAutomationBlocked(attempts)
		}
		return nil, errors.NewDownloadFailed(err)
	}

	artifact, err := a.inspect(outPath, ref, identity)
	if err != nil {
		os.RemoveAll(outDir)
		return nil, err
	}

	if a.cfg.ArtworkEnabled && identity.ArtworkURL != "" {
		if artPath, err := a.artwork.FetchThumbnail(ctx, identity.ArtworkURL, outDir); err == nil {
			artifact.ArtworkPath = artPath
		} else {
			logger.Warn("artwork fetch failed", []logger.Field{logger.Err(err)})
		}
	}

	return artifact, nil
}

// buildArgs assembles the extractor invocation for one attempt, rotating
// the client identity and session cookie.
func (a *Acquirer) buildArgs(ref *types.SourceReference, outPath string, attempt int) []string {
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", a.cfg.AudioQuality,
		"--user-agent", a.pickAgent(attempt),
		"--add-header", "Accept-Language: en-US,en;q=0.9",
		"--add-header", "Sec-Fetch-Mode: navigate",
	}

	if cookieFile := a.cookies.FileFor(attempt); cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}

	args = append(args, "-o", outPath, ref.ProviderTrackID)
	return args
}

// inspect validates the downloaded file and reads its embedded tags.
// Missing tags fall back to the recognized identity.
func (a *Acquirer) inspect(path string, ref *types.SourceReference, identity types.TrackIdentity) (*types.DownloadArtifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewDownloadFailed(fmt.Errorf("extractor produced no output file"))
	}
	if info.Size() > a.media.MaxFileSize {
		return nil, errors.NewFileTooLarge(info.Size(), a.media.MaxFileSize)
	}
	if info.Size() == 0 {
		return nil, errors.NewDownloadFailed(fmt.Errorf("extractor produced an empty file"))
	}

	artifact := &types.DownloadArtifact{
		FilePath:        path,
		Codec:           "mp3",
		DurationSeconds: ref.DurationSeconds,
		SizeBytes:       info.Size(),
		Title:           identity.Title,
		Artist:          identity.Artist,
	}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if meta, err := tag.ReadFrom(f); err == nil {
			if meta.Title() != "" {
				artifact.Title = meta.Title()
			}
			if meta.Artist() != "" {
				artifact.Artist = meta.Artist()
			}
		}
	}

	return artifact, nil
}

func isAutomationChallenge(output string) bool {
	lowered := strings.ToLower(output)
	for _, marker := range challengeMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
