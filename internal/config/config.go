package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Service holds process-level settings.
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
}

// Database holds settings for the SQLite event store.
type Database struct {
	Path string `envconfig:"DATABASE_PATH" required:"true"`
}

// Scorer holds settings for the external IHC scoring API.
type Scorer struct {
	BaseURL    string `envconfig:"IHC_API_URL" default:"https://api.ihc-attribution.com/v1"`
	APIKey     string `envconfig:"IHC_API_KEY" required:"true"`
	ConvTypeID string `envconfig:"IHC_CONV_TYPE_ID" required:"true"`
	TimeoutSec int    `envconfig:"IHC_TIMEOUT_SEC" default:"30"`
}

// Dispatch holds batching and retry settings for the scorer dispatch stage.
// The journey and session caps mirror the scorer's request limits; they are
// an external contract, not internal policy.
type Dispatch struct {
	MaxJourneysPerBatch int `envconfig:"DISPATCH_MAX_JOURNEYS_PER_BATCH" default:"100"`
	MaxSessionsPerBatch int `envconfig:"DISPATCH_MAX_SESSIONS_PER_BATCH" default:"2000"`
	Concurrency         int `envconfig:"DISPATCH_CONCURRENCY" default:"4"`
	MaxAttempts         int `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"4"`
	InitialBackoffMS    int `envconfig:"DISPATCH_INITIAL_BACKOFF_MS" default:"500"`
}

type Config struct {
	Service  Service
	Database Database
	Scorer   Scorer
	Dispatch Dispatch
}

// Load reads configuration from the environment. Any error here is fatal:
// the pipeline must refuse to start before doing any I/O rather than fail
// halfway through a run.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Dispatch.MaxJourneysPerBatch <= 0 {
		return fmt.Errorf("DISPATCH_MAX_JOURNEYS_PER_BATCH must be positive, got %d", c.Dispatch.MaxJourneysPerBatch)
	}
	if c.Dispatch.MaxSessionsPerBatch <= 0 {
		return fmt.Errorf("DISPATCH_MAX_SESSIONS_PER_BATCH must be positive, got %d", c.Dispatch.MaxSessionsPerBatch)
	}
	if c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", c.Dispatch.Concurrency)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive, got %d", c.Dispatch.MaxAttempts)
	}
	if c.Scorer.TimeoutSec <= 0 {
		return fmt.Errorf("IHC_TIMEOUT_SEC must be positive, got %d", c.Scorer.TimeoutSec)
	}
	return nil
}
