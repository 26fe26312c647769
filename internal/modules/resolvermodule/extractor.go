package resolvermodule

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

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

// FallbackExtractor searches through the non-quota-metered extraction
// engine. A nil reference with nil error means "no result".
type FallbackExtractor interface {
	Extract(ctx context.Context, query string) (*types.SourceReference, error)
}

// extractorEngine shells out to yt-dlp's search mode. No quota applies,
// but the engine is subject to the provider's automation defenses, which
// the download stage handles.
type extractorEngine struct {
	path   string
	runner CommandRunner
}

func newExtractorEngine(path string, runner CommandRunner) *extractorEngine {
	return &extractorEngine{path: path, runner: runner}
}

func (e *extractorEngine) Extract(ctx context.Context, query string) (*types.SourceReference, error) {
	args := []string{
		"--no-warnings",
		"--skip-download",
		"--print", "%(id)s|%(duration)s",
		"ytsearch1:" + query,
	}

	output, err := e.runner.Run(ctx, e.path, args...)
	if err != nil {
		logger.Warn("fallback extraction failed", []logger.Field{
			logger.String("query", query),
			logger.Err(err),
		})
		return nil, err
	}

	line := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	if line == "" {
		return nil, nil
	}

	parts := strings.SplitN(line, "|", 2)
	ref := &types.SourceReference{
		ProviderTrackID:  parts[0],
		ResolutionMethod: types.ResolutionFallbackExtraction,
	}
	if len(parts) == 2 {
		if d, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			ref.DurationSeconds = int(d)
		}
	}
	return ref, nil
}
