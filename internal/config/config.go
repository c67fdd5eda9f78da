// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Provider names selectable via FITTING_PROVIDER.
const (
	ProviderReplicate   = "replicate"
	ProviderHuggingFace = "huggingface"
)

// Static errors for configuration validation.
var (
	// ErrUnknownProvider is returned when FITTING_PROVIDER is not a known value.
	ErrUnknownProvider = errors.New("config: FITTING_PROVIDER must be replicate or huggingface")
	// ErrReplicateAPIKeyRequired is returned when the Replicate provider is
	// selected without REPLICATE_API_KEY.
	ErrReplicateAPIKeyRequired = errors.New("config: REPLICATE_API_KEY is required for the replicate provider")
	// ErrReplicateVersionRequired is returned when the Replicate provider is
	// selected without REPLICATE_MODEL_VERSION.
	ErrReplicateVersionRequired = errors.New("config: REPLICATE_MODEL_VERSION is required for the replicate provider")
	// ErrSpaceURLRequired is returned when the Hugging Face provider is
	// selected without HF_SPACE_URL.
	ErrSpaceURLRequired = errors.New("config: HF_SPACE_URL is required for the huggingface provider")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080" json:"public_base_url"`

	// Provider settings
	Provider              string `env:"FITTING_PROVIDER, default=replicate" json:"provider"`
	ReplicateAPIKey       string `env:"REPLICATE_API_KEY" json:"-"` // Masked in JSON
	ReplicateModelVersion string `env:"REPLICATE_MODEL_VERSION" json:"replicate_model_version,omitempty"`
	HFSpaceURL            string `env:"HF_SPACE_URL" json:"hf_space_url,omitempty"`
	HFToken               string `env:"HF_TOKEN" json:"-"` // Masked in JSON

	// Job record store settings; empty DATABASE_URL selects the in-memory store
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON

	// Media store settings
	MediaDir           string `env:"MEDIA_DIR, default=/var/lib/lookfit/media" json:"media_dir"`
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Pipeline settings
	MaxImageMB         int `env:"MAX_IMAGE_MB, default=10" json:"max_image_mb"`
	JobTimeoutSec      int `env:"JOB_TIMEOUT_SEC, default=300" json:"job_timeout_sec"`
	PollDebounceMs     int `env:"POLL_DEBOUNCE_MS, default=2000" json:"poll_debounce_ms"`
	MaxProviderQueries int `env:"MAX_PROVIDER_QUERIES, default=8" json:"max_provider_queries"`

	// Reconciler settings
	ReconcilerEnabled     bool `env:"RECONCILER_ENABLED, default=true" json:"reconciler_enabled"`
	ReconcilerIntervalSec int  `env:"RECONCILER_INTERVAL_SEC, default=15" json:"reconciler_interval_sec"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// JobTimeout returns the job-level wait bound as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

// PollDebounce returns the minimum interval between provider queries for one job.
func (c *Config) PollDebounce() time.Duration {
	return time.Duration(c.PollDebounceMs) * time.Millisecond
}

// ReconcilerInterval returns the sweep interval for the background reconciler.
func (c *Config) ReconcilerInterval() time.Duration {
	return time.Duration(c.ReconcilerIntervalSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider has its required settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderReplicate:
		if c.ReplicateAPIKey == "" {
			return ErrReplicateAPIKeyRequired
		}
		if c.ReplicateModelVersion == "" {
			return ErrReplicateVersionRequired
		}
	case ProviderHuggingFace:
		if c.HFSpaceURL == "" {
			return ErrSpaceURLRequired
		}
	default:
		return ErrUnknownProvider
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Provider: %s, MediaDir: %s, S3Bucket: %s, S3Region: %s, MaxImageMB: %d, JobTimeoutSec: %d, PollDebounceMs: %d, MaxProviderQueries: %d, ReconcilerEnabled: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Provider,
		c.MediaDir,
		c.S3Bucket,
		c.S3Region,
		c.MaxImageMB,
		c.JobTimeoutSec,
		c.PollDebounceMs,
		c.MaxProviderQueries,
		c.ReconcilerEnabled,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
