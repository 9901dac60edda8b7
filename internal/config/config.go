// Package config provides configuration management for revoice using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultReadTimeout       = 10 * time.Minute
	defaultWriteTimeout      = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxUploadSize     = 2 * 1024 * 1024 * 1024 // 2GB
	defaultMaxConcurrent     = 1
	defaultSegmentWorkers    = 2
	defaultEngineTimeout     = 30 * time.Minute
	defaultCloneTimeout      = 5 * time.Minute
	defaultTranslateTimeout  = 2 * time.Minute
	defaultTranslateBatch    = 20
	defaultTranslateRetries  = 3
	defaultSilenceSplitGapS  = 1.5
	defaultMaxStretch        = 2.0
	defaultAccompanimentGain = -6.0
	defaultQueueCapacity     = 64
	defaultRetentionAge      = 30 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	Separator   SeparatorConfig   `mapstructure:"separator"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Translator  TranslatorConfig  `mapstructure:"translator"`
	Cloner      ClonerConfig      `mapstructure:"cloner"`
	Merger      MergerConfig      `mapstructure:"merger"`
	Events      EventsConfig      `mapstructure:"events"`
	Retention   RetentionConfig   `mapstructure:"retention"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// MaxUploadSize is the maximum allowed size for uploaded media files.
	// Supports human-readable values like "2GB", "500MB", or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
}

// StorageConfig holds file storage configuration. Task directories, uploads,
// and scratch space all live under BaseDir.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	TasksDir   string `mapstructure:"tasks_dir"`
	UploadsDir string `mapstructure:"uploads_dir"`
	TempDir    string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SchedulerConfig controls how many tasks run at once and how much
// per-segment work a running task may parallelize.
type SchedulerConfig struct {
	MaxConcurrentTasks    int `mapstructure:"max_concurrent_tasks"`
	PerSegmentParallelism int `mapstructure:"per_segment_parallelism"`
}

// FFmpegConfig holds ffmpeg/ffprobe binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = use PATH)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = use PATH)
}

// SeparatorConfig holds the vocal separation engine endpoint.
type SeparatorConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TrackerConfig holds the speaker diarization engine endpoint.
type TrackerConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TranscriberConfig holds the speech recognition engine endpoint and
// segmentation behaviour.
type TranscriberConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// SilenceSplitGapS is the inter-word silence, in seconds, at which an
	// over-long recognized segment is split into two.
	SilenceSplitGapS float64 `mapstructure:"silence_split_gap_s"`
}

// TranslatorConfig holds the chat-completion translation engine configuration.
type TranslatorConfig struct {
	APIKey     string        `mapstructure:"api_key" masq:"secret"`
	BaseURL    string        `mapstructure:"base_url"` // Empty = provider default
	Model      string        `mapstructure:"model"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ClonerConfig holds the voice cloning engine endpoint.
type ClonerConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MergerConfig controls timed assembly of cloned segments.
type MergerConfig struct {
	// MaxStretch caps the atempo speed-up applied to an over-long cloned
	// segment. Anything still too long after stretching is truncated.
	MaxStretch float64 `mapstructure:"max_stretch"`
	// AccompanimentGainDB is the gain applied to the accompaniment track
	// when it is mixed under the dubbed voice.
	AccompanimentGainDB float64 `mapstructure:"accompaniment_gain_db"`
}

// EventsConfig controls the progress event bus.
type EventsConfig struct {
	// QueueCapacity is the per-subscriber buffered queue depth. A slow
	// subscriber that overflows it loses oldest events first and receives
	// a backpressure marker.
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// RetentionConfig holds scheduled task directory cleanup configuration.
type RetentionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // 6-field cron expression
	// MaxAge is how long finished task directories are kept.
	// Supports human-readable values like "30d", "2w", "720h".
	MaxAge Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with REVOICE_ and use underscores for
// nesting. Example: REVOICE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v, err := read(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Show loads configuration exactly as Load does and returns the effective
// settings as a nested map, suitable for serialization.
func Show(configPath string) (map[string]any, error) {
	v, err := read(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return v.AllSettings(), nil
}

// decodeHook extends Viper's default hooks so config types implementing
// encoding.TextUnmarshaler (ByteSize, Duration) accept human-readable strings.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
}

func read(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/revoice")
		v.AddConfigPath("$HOME/.revoice")
	}

	// Environment variable settings
	v.SetEnvPrefix("REVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return v, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_size", defaultMaxUploadSize)

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.tasks_dir", "tasks")
	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("storage.temp_dir", "temp")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Scheduler defaults
	v.SetDefault("scheduler.max_concurrent_tasks", defaultMaxConcurrent)
	v.SetDefault("scheduler.per_segment_parallelism", defaultSegmentWorkers)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Engine endpoints
	v.SetDefault("separator.endpoint", "http://127.0.0.1:9050")
	v.SetDefault("separator.timeout", defaultEngineTimeout)
	v.SetDefault("tracker.endpoint", "http://127.0.0.1:9051")
	v.SetDefault("tracker.timeout", defaultEngineTimeout)
	v.SetDefault("transcriber.endpoint", "http://127.0.0.1:9060")
	v.SetDefault("transcriber.timeout", defaultEngineTimeout)
	v.SetDefault("transcriber.silence_split_gap_s", defaultSilenceSplitGapS)
	v.SetDefault("cloner.endpoint", "http://127.0.0.1:9070")
	v.SetDefault("cloner.timeout", defaultCloneTimeout)

	// Translator defaults
	v.SetDefault("translator.api_key", "")
	v.SetDefault("translator.base_url", "")
	v.SetDefault("translator.model", "gpt-4o-mini")
	v.SetDefault("translator.batch_size", defaultTranslateBatch)
	v.SetDefault("translator.max_retries", defaultTranslateRetries)
	v.SetDefault("translator.timeout", defaultTranslateTimeout)

	// Merger defaults
	v.SetDefault("merger.max_stretch", defaultMaxStretch)
	v.SetDefault("merger.accompaniment_gain_db", defaultAccompanimentGain)

	// Events defaults
	v.SetDefault("events.queue_capacity", defaultQueueCapacity)

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.cron", "0 0 3 * * *") // Daily at 3 AM (6-field cron)
	v.SetDefault("retention.max_age", defaultRetentionAge)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MaxUploadSize < 1 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Scheduler validation
	if c.Scheduler.MaxConcurrentTasks < 1 {
		return fmt.Errorf("scheduler.max_concurrent_tasks must be at least 1")
	}
	if c.Scheduler.PerSegmentParallelism < 1 {
		return fmt.Errorf("scheduler.per_segment_parallelism must be at least 1")
	}

	// Engine validation
	if c.Separator.Endpoint == "" {
		return fmt.Errorf("separator.endpoint is required")
	}
	if c.Tracker.Endpoint == "" {
		return fmt.Errorf("tracker.endpoint is required")
	}
	if c.Transcriber.Endpoint == "" {
		return fmt.Errorf("transcriber.endpoint is required")
	}
	if c.Transcriber.SilenceSplitGapS <= 0 {
		return fmt.Errorf("transcriber.silence_split_gap_s must be positive")
	}
	if c.Cloner.Endpoint == "" {
		return fmt.Errorf("cloner.endpoint is required")
	}

	// Translator validation
	if c.Translator.Model == "" {
		return fmt.Errorf("translator.model is required")
	}
	if c.Translator.BatchSize < 1 {
		return fmt.Errorf("translator.batch_size must be at least 1")
	}
	if c.Translator.MaxRetries < 0 {
		return fmt.Errorf("translator.max_retries must not be negative")
	}

	// Merger validation
	if c.Merger.MaxStretch < 1.0 {
		return fmt.Errorf("merger.max_stretch must be at least 1.0")
	}
	if c.Merger.AccompanimentGainDB > 0 {
		return fmt.Errorf("merger.accompaniment_gain_db must not be positive")
	}

	// Events validation
	if c.Events.QueueCapacity < 1 {
		return fmt.Errorf("events.queue_capacity must be at least 1")
	}

	// Retention validation
	if c.Retention.Enabled && c.Retention.MaxAge.Duration() <= 0 {
		return fmt.Errorf("retention.max_age must be positive when retention is enabled")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TasksPath returns the full path to the task directory root.
func (c *StorageConfig) TasksPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.TasksDir)
}

// UploadsPath returns the full path to the uploads directory.
func (c *StorageConfig) UploadsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.UploadsDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.TempDir)
}
