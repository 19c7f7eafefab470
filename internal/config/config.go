// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the server needs at startup.
type Config struct {
	Address     string `env:"ADDRESS" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:dirconsole.db?_pragma=foreign_keys(1)"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"` // json or text
	SchemaFile  string `env:"SCHEMA_FILE"`                  // optional CUE directory definitions

	ValidationDebounce time.Duration `env:"VALIDATION_DEBOUNCE" envDefault:"300ms"`
	RelationCacheSize  int           `env:"RELATION_CACHE_SIZE" envDefault:"512"`
	RelationCacheTTL   time.Duration `env:"RELATION_CACHE_TTL" envDefault:"30s"`
	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	ReadRetries        int           `env:"READ_RETRIES" envDefault:"2"`
	ReadRetryBackoff   time.Duration `env:"READ_RETRY_BACKOFF" envDefault:"50ms"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	EventBufferSize    int           `env:"EVENT_BUFFER_SIZE" envDefault:"256"`
}

// Load reads an optional .env file (or the given files) and parses the
// environment. Variables already set take precedence over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env files: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be json or text, got %q", c.LogFormat))
	}
	if c.RelationCacheSize < 1 {
		errs = append(errs, errors.New("RELATION_CACHE_SIZE: must be positive"))
	}
	if c.ReadRetries < 0 {
		errs = append(errs, errors.New("READ_RETRIES: must not be negative"))
	}
	if c.ValidationDebounce <= 0 {
		errs = append(errs, errors.New("VALIDATION_DEBOUNCE: must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds the process logger.
func NewLogger(c *Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	return log
}
