// Package config loads and validates the orchestrator's startup
// configuration, in the same os.ReadFile + yaml.Unmarshal + applyDefaults
// idiom as the teacher's guard profile loader.
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/evidengine/core/internal/apperr"
)

var (
	errInvalidLogLevel        = errors.New("log_level must be one of debug, info, warn, error")
	errMissingDatabaseURL     = errors.New("database_url is required")
	errMissingPostSourceToken = errors.New("post_source_token is required for live ingest")
	errMissingOracleConfig    = errors.New("oracle_endpoint and oracle_api_key are required for scoring")
)

// Config is the flat set of options recognized at startup (§6).
type Config struct {
	PostSourceToken string `yaml:"post_source_token"`
	PostSourceURL   string `yaml:"post_source_url"`

	OracleEndpoint  string `yaml:"oracle_endpoint"`
	OracleAPIKey    string `yaml:"oracle_api_key"`
	OracleModelName string `yaml:"oracle_model_name"`

	InternalSecret string `yaml:"internal_secret"`

	DatabaseURL string `yaml:"database_url"`

	LogLevel string `yaml:"log_level"`
	Pretty   bool   `yaml:"pretty"`

	ReconnectDelayMS     int `yaml:"reconnect_delay_ms"`
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	MinRefreshIntervalMS int `yaml:"min_refresh_interval_ms"`
	InterMarketDelayMS   int `yaml:"inter_market_delay_ms"`
	RateLimitCooldownMS  int `yaml:"rate_limit_cooldown_ms"`

	IngestBatch int `yaml:"ingest_batch"`
	ScoreBatch  int `yaml:"score_batch"`

	PostSourceRateLimitRPS float64 `yaml:"post_source_rate_limit_rps"`
	PostSourceRateLimitBurst int   `yaml:"post_source_rate_limit_burst"`
	OracleRateLimitRPS     float64 `yaml:"oracle_rate_limit_rps"`
	OracleRateLimitBurst   int     `yaml:"oracle_rate_limit_burst"`
}

// Load reads and parses a YAML config file at path, then overlays
// environment-variable overrides for secrets so credentials need not live
// in a checked-in file, then fills in defaults for anything left unset.
func Load(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.NewInvalidInput("config.load", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, apperr.NewInvalidInput("config.parse", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POST_SOURCE_TOKEN"); v != "" {
		cfg.PostSourceToken = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.OracleAPIKey = v
	}
	if v := os.Getenv("INTERNAL_SECRET"); v != "" {
		cfg.InternalSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReconnectDelayMS == 0 {
		cfg.ReconnectDelayMS = 5000
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.MinRefreshIntervalMS == 0 {
		cfg.MinRefreshIntervalMS = 30000
	}
	if cfg.InterMarketDelayMS == 0 {
		cfg.InterMarketDelayMS = 2000
	}
	if cfg.RateLimitCooldownMS == 0 {
		cfg.RateLimitCooldownMS = 30000
	}
	if cfg.IngestBatch == 0 {
		cfg.IngestBatch = 15
	}
	if cfg.ScoreBatch == 0 {
		cfg.ScoreBatch = 12
	}
	if cfg.PostSourceRateLimitRPS == 0 {
		cfg.PostSourceRateLimitRPS = 1.0
	}
	if cfg.PostSourceRateLimitBurst == 0 {
		cfg.PostSourceRateLimitBurst = 2
	}
	if cfg.OracleRateLimitRPS == 0 {
		cfg.OracleRateLimitRPS = 2.0
	}
	if cfg.OracleRateLimitBurst == 0 {
		cfg.OracleRateLimitBurst = 4
	}
}

// Validate checks that log_level is recognized and database_url is set.
// The credential checks for live ingest and scoring are in
// ValidateForLiveIngest and ValidateForScoring.
func (c Config) Validate() error {
	switch {
	case c.LogLevel != "debug" && c.LogLevel != "info" && c.LogLevel != "warn" && c.LogLevel != "error":
		return apperr.NewInvalidInput("config.validate", errInvalidLogLevel)
	case c.DatabaseURL == "":
		return apperr.NewInvalidInput("config.validate", errMissingDatabaseURL)
	}
	return nil
}

// ValidateForLiveIngest additionally requires the post-source credentials
// (§6: "required for live ingest").
func (c Config) ValidateForLiveIngest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PostSourceToken == "" {
		return apperr.NewInvalidInput("config.validate_ingest", errMissingPostSourceToken)
	}
	return nil
}

// ValidateForScoring additionally requires the oracle credentials (§6:
// "required for scoring").
func (c Config) ValidateForScoring() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OracleEndpoint == "" || c.OracleAPIKey == "" {
		return apperr.NewInvalidInput("config.validate_scoring", errMissingOracleConfig)
	}
	return nil
}
