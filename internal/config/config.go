package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Accounts
	AccountsDir string `env:"ACCOUNTS_DIR" envDefault:"./data/accounts"`
	OSName      string `env:"OS_NAME" envDefault:"chatmail"`

	// IMAP
	IMAPIdleTimeout     time.Duration `env:"IMAP_IDLE_TIMEOUT" envDefault:"23m"`
	IMAPIdleDoneTimeout time.Duration `env:"IMAP_IDLE_DONE_TIMEOUT" envDefault:"15s"`
	IMAPDialTimeout     time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// The IDLE timeout must stay below the 29 minute RFC 2177 ceiling,
	// servers are allowed to drop the connection after that.
	if cfg.IMAPIdleTimeout >= 29*time.Minute {
		return nil, fmt.Errorf("IMAP_IDLE_TIMEOUT must be below 29m, got %s", cfg.IMAPIdleTimeout)
	}

	return cfg, nil
}
