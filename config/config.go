// Package config loads framestream configuration from the environment.
//
// The recognized variables keep the names of the original deployment surface:
// MAX_QUEUE_SIZE caps concurrent sessions (0 = unlimited), TIMEOUT is the
// session lifetime budget in seconds (0 = disabled), and SAFETY_CHECKER
// toggles the generation collaborator's content-safety gate.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/c360/framestream/errors"
)

// Config holds all environment-derived settings for the service.
type Config struct {
	// HTTP listener
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"7860"`

	// Session orchestration
	MaxSessions    int     `env:"MAX_QUEUE_SIZE" envDefault:"0"`
	TimeoutSeconds float64 `env:"TIMEOUT" envDefault:"0"`
	SafetyChecker  bool    `env:"SAFETY_CHECKER" envDefault:"false"`

	// Generation collaborator transport
	NATSURL         string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	GenerateSubject string        `env:"GENERATE_SUBJECT" envDefault:"framestream.generate"`
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"30s"`

	// Frame output
	FrameRate   float64 `env:"FRAME_RATE" envDefault:"120"`
	JPEGQuality int     `env:"JPEG_QUALITY" envDefault:"80"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("port %d out of range", c.Port),
			"Config", "Validate", "validate port")
	}

	if c.MaxSessions < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("MAX_QUEUE_SIZE must be >= 0, got %d", c.MaxSessions),
			"Config", "Validate", "validate session cap")
	}

	if c.TimeoutSeconds < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("TIMEOUT must be >= 0, got %f", c.TimeoutSeconds),
			"Config", "Validate", "validate session timeout")
	}

	if c.NATSURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "validate NATS URL")
	}

	if c.GenerateSubject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "validate generate subject")
	}

	if c.GenerateTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("GENERATE_TIMEOUT must be positive, got %s", c.GenerateTimeout),
			"Config", "Validate", "validate generate timeout")
	}

	if c.FrameRate <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("FRAME_RATE must be positive, got %f", c.FrameRate),
			"Config", "Validate", "validate frame rate")
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.WrapInvalid(
			fmt.Errorf("JPEG_QUALITY must be 1-100, got %d", c.JPEGQuality),
			"Config", "Validate", "validate JPEG quality")
	}

	return nil
}

// SlogLevel maps the configured log level onto slog's levels. Unknown
// values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SessionTimeout returns the session lifetime budget as a duration.
// Zero means the lifetime cap is disabled.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
