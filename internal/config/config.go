// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string `env:"CREDITPANEL_LISTEN_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath     string `env:"CREDITPANEL_DB_PATH"     envDefault:"creditpanel.db"`

	LedgerURL    string `env:"CREDITPANEL_LEDGER_URL"`
	LedgerAPIKey string `env:"CREDITPANEL_LEDGER_API_KEY"`

	GeminiAPIKey string `env:"CREDITPANEL_GEMINI_API_KEY"`
	GeminiModel  string `env:"CREDITPANEL_GEMINI_MODEL"`

	// Viewer is the wallet connected at startup, if any.
	Viewer string `env:"CREDITPANEL_VIEWER"`

	SecretKeyHex string `env:"CREDITPANEL_SECRET_KEY"`

	FetchConcurrency int           `env:"CREDITPANEL_FETCH_CONCURRENCY" envDefault:"8"`
	SettleTimeout    time.Duration `env:"CREDITPANEL_SETTLE_TIMEOUT"    envDefault:"5m"`

	// SecretKey is SecretKeyHex decoded; nil when no key is configured.
	SecretKey []byte
}

// HasGeminiKey reports whether an analyzer key was supplied via the environment.
func (c *Config) HasGeminiKey() bool {
	return c.GeminiAPIKey != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// CREDITPANEL_LEDGER_URL is required and must be an absolute http(s) URL.
// CREDITPANEL_SECRET_KEY is optional; when set it must be 64 hex characters
// (32 bytes) and enables encrypted credential storage.
// Optional variables with defaults: CREDITPANEL_LISTEN_ADDR (127.0.0.1:8080),
// CREDITPANEL_DB_PATH (creditpanel.db), CREDITPANEL_FETCH_CONCURRENCY (8),
// CREDITPANEL_SETTLE_TIMEOUT (5m).
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.LedgerURL == "" {
		return nil, errors.New("CREDITPANEL_LEDGER_URL is required")
	}
	u, err := url.Parse(cfg.LedgerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("CREDITPANEL_LEDGER_URL must be an absolute http(s) URL, got %q", cfg.LedgerURL)
	}

	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("CREDITPANEL_FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
	}
	if cfg.SettleTimeout <= 0 {
		return nil, fmt.Errorf("CREDITPANEL_SETTLE_TIMEOUT must be positive, got %s", cfg.SettleTimeout)
	}

	if cfg.SecretKeyHex != "" {
		key, err := hex.DecodeString(cfg.SecretKeyHex)
		if err != nil {
			return nil, fmt.Errorf("CREDITPANEL_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("CREDITPANEL_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	return &cfg, nil
}
