// Package config loads custody settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreSQLite  = "sqlite"
	StoreLevelDB = "leveldb"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds every environment-tunable setting. Command-line flags
// override these values.
type Config struct {
	// DBPath is the SQLite file, or the LevelDB directory.
	DBPath string `env:"CUSTODY_DB" envDefault:"custody.db"`
	// Store selects the backend: sqlite or leveldb.
	Store string `env:"CUSTODY_STORE" envDefault:"sqlite"`
	// MaxAppendAttempts bounds compare-and-append retries per request.
	MaxAppendAttempts int `env:"CUSTODY_MAX_APPEND_ATTEMPTS" envDefault:"5"`
	// CatalogPath is an optional CUE event catalog (file or directory).
	CatalogPath string `env:"CUSTODY_CATALOG"`
	// HTTPAddr is the listen address of `custody serve`.
	HTTPAddr string `env:"CUSTODY_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	// VerifyPageSize is the number of entries chain verification reads per query.
	VerifyPageSize int `env:"CUSTODY_VERIFY_PAGE_SIZE" envDefault:"500"`
	// LogFormat is text or json.
	LogFormat string `env:"CUSTODY_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations. It normalizes the case of
// Store and LogFormat.
func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	switch {
	case c.DBPath == "":
		return fmt.Errorf("config: CUSTODY_DB must not be empty")
	case c.Store != StoreSQLite && c.Store != StoreLevelDB:
		return fmt.Errorf("config: CUSTODY_STORE must be %q or %q, got %q", StoreSQLite, StoreLevelDB, c.Store)
	case c.MaxAppendAttempts < 1:
		return fmt.Errorf("config: CUSTODY_MAX_APPEND_ATTEMPTS must be >= 1, got %d", c.MaxAppendAttempts)
	case c.VerifyPageSize < 1:
		return fmt.Errorf("config: CUSTODY_VERIFY_PAGE_SIZE must be >= 1, got %d", c.VerifyPageSize)
	case c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON:
		return fmt.Errorf("config: CUSTODY_LOG_FORMAT must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat)
	}
	return nil
}
