package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Media       MediaConfig       `yaml:"media" json:"media"`
	Recognition RecognitionConfig `yaml:"recognition" json:"recognition"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Download    DownloadConfig    `yaml:"download" json:"download"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"TUNEGRAB_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"TUNEGRAB_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"TUNEGRAB_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"TUNEGRAB_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"TUNEGRAB_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Path     string `yaml:"path" json:"path" env:"TUNEGRAB_DATABASE_PATH" default:"./data/tunegrab.db"`
	Host     string `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port     int    `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username string `yaml:"username" json:"username" env:"POSTGRES_USER" default:"tunegrab"`
	Password string `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" json:"database" env:"POSTGRES_DB" default:"tunegrab"`
}

// MediaConfig bounds inbound media handling and clip preparation.
type MediaConfig struct {
	WorkDir           string `yaml:"work_dir" json:"work_dir" env:"TUNEGRAB_WORK_DIR" default:"/var/tmp/tunegrab"`
	MaxFileSize       int64  `yaml:"max_file_size" json:"max_file_size" env:"TUNEGRAB_MAX_FILE_SIZE" default:"52428800"`
	ClipSeconds       int    `yaml:"clip_seconds" json:"clip_seconds" env:"TUNEGRAB_CLIP_SECONDS" default:"30"`
	ClipSampleRate    int    `yaml:"clip_sample_rate" json:"clip_sample_rate" env:"TUNEGRAB_CLIP_SAMPLE_RATE" default:"44100"`
	ClipChannels      int    `yaml:"clip_channels" json:"clip_channels" env:"TUNEGRAB_CLIP_CHANNELS" default:"2"`
	FFmpegPath        string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	ExtractionTimeout time.Duration `yaml:"extraction_timeout" json:"extraction_timeout" env:"TUNEGRAB_EXTRACTION_TIMEOUT" default:"60s"`
}

// RecognitionConfig points at the fingerprint recognition service.
type RecognitionConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint" env:"RECOGNITION_ENDPOINT"`
	Token           string        `yaml:"token" json:"-" env:"RECOGNITION_TOKEN"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" env:"RECOGNITION_TIMEOUT" default:"20s"`
	ConfidenceFloor float64       `yaml:"confidence_floor" json:"confidence_floor" env:"RECOGNITION_CONFIDENCE_FLOOR" default:"0"`
}

// SearchConfig drives the primary search provider and its key pool.
type SearchConfig struct {
	APIKeys        []string      `yaml:"api_keys" json:"-" env:"SEARCH_API_KEYS"`
	Endpoint       string        `yaml:"endpoint" json:"endpoint" env:"SEARCH_ENDPOINT" default:"https://www.googleapis.com/youtube/v3"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" env:"SEARCH_TIMEOUT" default:"15s"`
	DailyQuota     int64         `yaml:"daily_quota" json:"daily_quota" env:"SEARCH_DAILY_QUOTA" default:"10000"`
	QuotaCooldown  time.Duration `yaml:"quota_cooldown" json:"quota_cooldown" env:"SEARCH_QUOTA_COOLDOWN" default:"24h"`
	CacheSize      int           `yaml:"cache_size" json:"cache_size" env:"SEARCH_CACHE_SIZE" default:"512"`
	MaxResults     int           `yaml:"max_results" json:"max_results" env:"SEARCH_MAX_RESULTS" default:"5"`
	ExtractorPath  string        `yaml:"extractor_path" json:"extractor_path" env:"EXTRACTOR_PATH" default:"yt-dlp"`
}

// DownloadConfig drives the download acquirer.
type DownloadConfig struct {
	MaxRetries     int           `yaml:"max_retries" json:"max_retries" env:"DOWNLOAD_MAX_RETRIES" default:"3"`
	BackoffBase    time.Duration `yaml:"backoff_base" json:"backoff_base" env:"DOWNLOAD_BACKOFF_BASE" default:"2s"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" env:"DOWNLOAD_TIMEOUT" default:"120s"`
	CookieFiles    []string      `yaml:"cookie_files" json:"cookie_files" env:"DOWNLOAD_COOKIE_FILES"`
	AudioQuality   string        `yaml:"audio_quality" json:"audio_quality" env:"DOWNLOAD_AUDIO_QUALITY" default:"192"`
	ArtworkEnabled bool          `yaml:"artwork_enabled" json:"artwork_enabled" env:"DOWNLOAD_ARTWORK" default:"true"`
}

// PipelineConfig bounds concurrent pipeline execution.
type PipelineConfig struct {
	Workers     int           `yaml:"workers" json:"workers" env:"TUNEGRAB_WORKERS" default:"8"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size" env:"TUNEGRAB_QUEUE_SIZE" default:"64"`
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout" env:"TUNEGRAB_STEP_TIMEOUT" default:"180s"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load reads configuration from the given YAML file (optional), applies
// struct-tag defaults first and environment overrides last, then installs
// the result as the global config.
func Load(path string) error {
	cfg := &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(reflect.ValueOf(cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the global configuration, loading defaults if Load was
// never called.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	cfg = &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())
	applyEnv(reflect.ValueOf(cfg).Elem())

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg
}

// Set replaces the global configuration. Intended for tests.
func Set(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Media.MaxFileSize <= 0 {
		return fmt.Errorf("media.max_file_size must be positive")
	}
	if c.Media.ClipSeconds <= 0 || c.Media.ClipSeconds > 120 {
		return fmt.Errorf("media.clip_seconds must be between 1 and 120")
	}
	if c.Download.MaxRetries < 1 || c.Download.MaxRetries > 10 {
		return fmt.Errorf("download.max_retries must be between 1 and 10")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Recognition.ConfidenceFloor < 0 || c.Recognition.ConfidenceFloor > 1 {
		return fmt.Errorf("recognition.confidence_floor must be between 0 and 1")
	}
	return nil
}

// applyDefaults walks struct fields and fills zero values from `default` tags.
func applyDefaults(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			applyDefaults(field)
			continue
		}
		def := t.Field(i).Tag.Get("default")
		if def == "" || !field.IsZero() {
			continue
		}
		setField(field, def)
	}
}

// applyEnv walks struct fields and overrides values from `env` tags.
func applyEnv(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			applyEnv(field)
			continue
		}
		envKey := t.Field(i).Tag.Get("env")
		if envKey == "" {
			continue
		}
		val, ok := os.LookupEnv(envKey)
		if !ok || val == "" {
			continue
		}
		setField(field, val)
	}
}

func setField(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(raw); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					out = append(out, trimmed)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
}
