package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides (PENSUM_MAX_LEARN_PER_DAY etc).
const EnvPrefix = "PENSUM_"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	// MaxLearnPerDay is the daily budget of new cards per user and topic
	MaxLearnPerDay int `koanf:"max_learn_per_day" validate:"min=0"`

	// MaxCardsToFetch caps every queue fetch
	MaxCardsToFetch int `koanf:"max_cards_to_fetch" validate:"min=0"`

	// RefetchThreshold is the remaining-card count at or below which a grade
	// reloads the whole session instead of editing it locally.
	RefetchThreshold int `koanf:"refetch_threshold" validate:"min=0"`

	// Timezone names the IANA zone whose midnight starts a new budget day.
	Timezone string `koanf:"timezone" validate:"required"`

	// Driver selects the store: "sqlite" (default, under the base dir) or "postgres".
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`

	// DatabaseURL is the Postgres connection string. Required for the postgres driver.
	DatabaseURL string `koanf:"database_url" validate:"required_if=Driver postgres"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 keeps the driver default. For postgres it is the pool's MaxConns.
	DBMaxOpenConns int `koanf:"db_max_open_conns" validate:"min=0"`

	// DBMaxIdleConns limits idle SQLite connections, or sets MinConns for postgres.
	DBMaxIdleConns int `koanf:"db_max_idle_conns" validate:"min=0"`

	// HTTPAddr is the bind address for `pensum serve`.
	HTTPAddr string `koanf:"http_addr" validate:"required"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `koanf:"disabled_tools"`

	// AllowedPaths lists extra directories question banks may be imported from,
	// besides ~/.pensum/imports. Relative entries are ignored.
	AllowedPaths []string `koanf:"allowed_paths"`

	// AllowUnsafePaths lifts the directory restriction on imports. Symlinks
	// are still rejected.
	AllowUnsafePaths bool `koanf:"allow_unsafe_paths"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxLearnPerDay:   20,
		MaxCardsToFetch:  50,
		RefetchThreshold: 5,
		Timezone:         "UTC",
		Driver:           DriverSQLite,
		HTTPAddr:         "127.0.0.1:8717",
		LogLevel:         "info",
	}
}

var validate = validator.New()

// Load builds configuration from defaults, baseDir/config.yaml, a .env file in
// the working directory, and PENSUM_* environment variables, in that order.
// A missing config.yaml or .env is not an error.
func Load(baseDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(filepath.Join(baseDir, "config.yaml"))
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// PENSUM_MAX_LEARN_PER_DAY -> max_learn_per_day
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DisabledTools = cleanStringSlice(cfg.DisabledTools)
	cfg.AllowedPaths = cleanStringSlice(cfg.AllowedPaths)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and that Timezone names a known zone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// cleanStringSlice trims whitespace and removes empty and duplicate entries.
func cleanStringSlice(in []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
