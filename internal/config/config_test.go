package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(52428800), cfg.Media.MaxFileSize)
	assert.Equal(t, 30, cfg.Media.ClipSeconds)
	assert.Equal(t, 44100, cfg.Media.ClipSampleRate)
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Search.QuotaCooldown)
	assert.Equal(t, int64(10000), cfg.Search.DailyQuota)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
media:
  clip_seconds: 20
download:
  max_retries: 5
`), 0o644))

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Media.ClipSeconds)
	assert.Equal(t, 5, cfg.Download.MaxRetries)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "untouched keys keep their defaults")
}

func TestEnvOverridesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("TUNEGRAB_PORT", "7070")
	t.Setenv("SEARCH_API_KEYS", "key-a, key-b,key-c")
	t.Setenv("RECOGNITION_CONFIDENCE_FLOOR", "0.4")

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, 7070, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.Search.APIKeys)
	assert.InDelta(t, 0.4, cfg.Recognition.ConfidenceFloor, 0.0001)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero size ceiling", func(c *Config) { c.Media.MaxFileSize = 0 }},
		{"clip window too long", func(c *Config) { c.Media.ClipSeconds = 600 }},
		{"retry bound too high", func(c *Config) { c.Download.MaxRetries = 50 }},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"confidence floor above one", func(c *Config) { c.Recognition.ConfidenceFloor = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Load(""))
			cfg := *Get()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml")))
}
