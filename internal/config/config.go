// Package config loads sagalog settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Repository backends.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the process configuration. CLI flags override these values.
type Config struct {
	Backend      string `env:"SAGALOG_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SAGALOG_SQLITE_PATH" envDefault:"sagalog.db"`
	PostgresDSN  string `env:"SAGALOG_POSTGRES_DSN"`
	RedisAddr    string `env:"SAGALOG_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix  string `env:"SAGALOG_REDIS_PREFIX" envDefault:"sagalog:"`
	OTLPEndpoint string `env:"SAGALOG_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"SAGALOG_OTLP_INSECURE" envDefault:"true"`
	LogLevel     string `env:"SAGALOG_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads the environment without validating it, for callers that
// apply overrides first.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backend is known and has the
// settings it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: sqlite backend requires SAGALOG_SQLITE_PATH")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres backend requires SAGALOG_POSTGRES_DSN")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis backend requires SAGALOG_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want sqlite, memory, postgres or redis)", c.Backend)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}
