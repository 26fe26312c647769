package normalizermodule

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
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

// MediaFetcher retrieves the raw bytes behind a descriptor's source handle
// into a local file. The transport layer decides what a handle means.
type MediaFetcher interface {
	Fetch(ctx context.Context, handle, destPath string) error
}

// defaultFetcher copies local files and downloads http(s) handles.
type defaultFetcher struct{}

func (f *defaultFetcher) Fetch(ctx context.Context, handle, destPath string) error {
	if strings.HasPrefix(handle, "http://") || strings.HasPrefix(handle, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
		}
		out, err := os.Create(destPath)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, resp.Body)
		return err
	}

	src, err := os.Open(handle)
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

// Normalizer turns an inbound descriptor into a recognition-ready clip.
type Normalizer struct {
	cfg     config.MediaConfig
	runner  CommandRunner
	fetcher MediaFetcher
}

// NewNormalizer creates a normalizer with the default executor and fetcher.
func NewNormalizer(cfg config.MediaConfig) *Normalizer {
	return &Normalizer{
		cfg:     cfg,
		runner:  &DefaultCommandRunner{},
		fetcher: &defaultFetcher{},
	}
}

// NewNormalizerWithDeps creates a normalizer with custom collaborators (for testing).
func NewNormalizerWithDeps(cfg config.MediaConfig, runner CommandRunner, fetcher MediaFetcher) *Normalizer {
	return &Normalizer{cfg: cfg, runner: runner, fetcher: fetcher}
}

// Normalize validates the descriptor, fetches its bytes, and extracts a
// clip trimmed to the analysis window and resampled for fingerprinting.
// The clip lives in its own work directory; callers release it with
// Cleanup on every exit path.
func (n *Normalizer) Normalize(ctx context.Context, desc types.MediaDescriptor) (*types.NormalizedClip, error) {
	if desc.ByteSize > n.cfg.MaxFileSize {
		return nil, errors.NewFileTooLarge(desc.ByteSize, n.cfg.MaxFileSize)
	}

	strategy, err := n.strategyFor(desc)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(n.cfg.WorkDir, uuid.New().String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, errors.NewInternalError("failed to create work directory", err)
	}

	inputPath := filepath.Join(workDir, "input"+sourceExt(desc))
	if err := n.fetcher.Fetch(ctx, desc.SourceHandle, inputPath); err != nil {
		os.RemoveAll(workDir)
		return nil, errors.NewExtractionFailed(err)
	}

	clipPath := filepath.Join(workDir, "clip.wav")
	args := n.buildArgs(strategy, inputPath, clipPath)

	output, err := n.runner.Run(ctx, n.cfg.FFmpegPath, args...)
	if err != nil {
		os.RemoveAll(workDir)
		logger.Warn("ffmpeg extraction failed", []logger.Field{
			logger.String("content_kind", string(desc.ContentKind)),
			logger.String("output", truncate(string(output), 512)),
			logger.Err(err),
		})
		return nil, errors.NewExtractionFailed(err)
	}

	info, err := os.Stat(clipPath)
	if err != nil || info.Size() == 0 {
		os.RemoveAll(workDir)
		return nil, errors.NewExtractionFailed(fmt.Errorf("ffmpeg produced no audio output"))
	}

	duration := desc.DurationSeconds
	if duration == 0 || duration > n.cfg.ClipSeconds {
		duration = n.cfg.ClipSeconds
	}

	return &types.NormalizedClip{
		FilePath:        clipPath,
		SampleRate:      n.cfg.ClipSampleRate,
		ChannelCount:    n.cfg.ClipChannels,
		DurationSeconds: duration,
		Format:          "wav",
	}, nil
}

// Cleanup removes the clip's work directory. Safe to call more than once.
func (n *Normalizer) Cleanup(clip *types.NormalizedClip) {
	if clip == nil || clip.FilePath == "" {
		return
	}
	if err := os.RemoveAll(filepath.Dir(clip.FilePath)); err != nil {
		logger.Warn("failed to remove clip work directory", []logger.Field{
			logger.String("path", clip.FilePath),
			logger.Err(err),
		})
	}
}

// extractionStrategy is a closed set: one normalization arm per content
// family. Adding a media kind means adding an arm here.
type extractionStrategy int

const (
	strategyAudioPassthrough extractionStrategy = iota
	strategyVideoDemux
)

// strategyFor maps the content kind to an extraction strategy. Documents
// resolve through their MIME type.
func (n *Normalizer) strategyFor(desc types.MediaDescriptor) (extractionStrategy, error) {
	switch desc.ContentKind {
	case types.ContentVoice, types.ContentAudio:
		return strategyAudioPassthrough, nil
	case types.ContentVideo, types.ContentVideoNote:
		return strategyVideoDemux, nil
	case types.ContentDocument:
		switch {
		case strings.HasPrefix(desc.MimeType, "audio/"):
			return strategyAudioPassthrough, nil
		case strings.HasPrefix(desc.MimeType, "video/"):
			return strategyVideoDemux, nil
		default:
			return 0, errors.NewExtractionFailed(fmt.Errorf("document mime type %q carries no audio", desc.MimeType))
		}
	default:
		return 0, errors.NewExtractionFailed(fmt.Errorf("unsupported content kind %q", desc.ContentKind))
	}
}

// buildArgs constructs the ffmpeg invocation for the chosen strategy.
// Both arms trim to the analysis window and resample; the video arm
// additionally drops the video stream.
func (n *Normalizer) buildArgs(strategy extractionStrategy, inputPath, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-i", inputPath,
		"-t", strconv.Itoa(n.cfg.ClipSeconds),
	}

	if strategy == strategyVideoDemux {
		args = append(args, "-vn")
	}

	args = append(args,
		"-ac", strconv.Itoa(n.cfg.ClipChannels),
		"-ar", strconv.Itoa(n.cfg.ClipSampleRate),
		"-f", "wav",
		"-y", outputPath,
	)
	return args
}

func sourceExt(desc types.MediaDescriptor) string {
	if idx := strings.LastIndex(desc.SourceHandle, "."); idx != -1 {
		ext := desc.SourceHandle[idx:]
		if len(ext) <= 5 && !strings.ContainsAny(ext, "/\\") {
			return ext
		}
	}
	return ".bin"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
