package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full auto-trader configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Venue   VenueConfig   `yaml:"venue"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controls decision and execution behaviour.
type EngineConfig struct {
	SubmitTimeoutSeconds int `yaml:"submit_timeout_seconds"`
	RetryMaxAttempts     int `yaml:"retry_max_attempts"`
	RetryBaseWaitMs      int `yaml:"retry_base_wait_ms"`
	RetryMaxWaitSeconds  int `yaml:"retry_max_wait_seconds"`

	BreakerMaxFailures   int `yaml:"breaker_max_failures"`
	BreakerWindowMinutes int `yaml:"breaker_window_minutes"`

	ScorerPollSeconds int `yaml:"scorer_poll_seconds"`
}

// VenueConfig holds the Polymarket endpoints and the dry-run switch.
type VenueConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	WSBase    string `yaml:"ws_base"`
	ScorerURL string `yaml:"scorer_url"`
	DryRun    bool   `yaml:"dry_run"` // route orders to the in-memory venue
}

// APIConfig controls the operational HTTP server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file and the .env file if present.
// Environment values override YAML for the keys that map to them.
func Load(path string) (*Config, error) {
	// Load .env if present (missing file is not an error)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// SubmitTimeout returns the order submission timeout as a time.Duration.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Engine.SubmitTimeoutSeconds) * time.Second
}

// BreakerWindow returns the circuit-breaker failure window.
func (c *Config) BreakerWindow() time.Duration {
	return time.Duration(c.Engine.BreakerWindowMinutes) * time.Minute
}

// ScorerPollInterval returns the opportunity polling interval.
func (c *Config) ScorerPollInterval() time.Duration {
	return time.Duration(c.Engine.ScorerPollSeconds) * time.Second
}

// RetryBaseWait returns the first retry backoff step.
func (c *Config) RetryBaseWait() time.Duration {
	return time.Duration(c.Engine.RetryBaseWaitMs) * time.Millisecond
}

// RetryMaxWait returns the backoff ceiling.
func (c *Config) RetryMaxWait() time.Duration {
	return time.Duration(c.Engine.RetryMaxWaitSeconds) * time.Second
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYPILOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYPILOT_SCORER_URL"); v != "" {
		cfg.Venue.ScorerURL = v
	}
	if v := os.Getenv("POLYPILOT_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if os.Getenv("POLYPILOT_DRY_RUN") == "true" {
		cfg.Venue.DryRun = true
	}
}

// setDefaults fills required values that are missing or out of range.
func setDefaults(cfg *Config) {
	if cfg.Engine.SubmitTimeoutSeconds <= 0 {
		cfg.Engine.SubmitTimeoutSeconds = 15
	}
	if cfg.Engine.RetryMaxAttempts <= 0 {
		cfg.Engine.RetryMaxAttempts = 4
	}
	if cfg.Engine.RetryBaseWaitMs <= 0 {
		cfg.Engine.RetryBaseWaitMs = 500
	}
	if cfg.Engine.RetryMaxWaitSeconds <= 0 {
		cfg.Engine.RetryMaxWaitSeconds = 8
	}
	if cfg.Engine.BreakerMaxFailures <= 0 {
		cfg.Engine.BreakerMaxFailures = 5
	}
	if cfg.Engine.BreakerWindowMinutes <= 0 {
		cfg.Engine.BreakerWindowMinutes = 30
	}
	if cfg.Engine.ScorerPollSeconds <= 0 {
		cfg.Engine.ScorerPollSeconds = 60
	}
	if cfg.Venue.CLOBBase == "" {
		cfg.Venue.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.Venue.WSBase == "" {
		cfg.Venue.WSBase = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polypilot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
