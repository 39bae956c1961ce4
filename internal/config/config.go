// Package config loads progressd runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
)

// Transports the server can listen on.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime configuration for progressd.
type Config struct {
	ServerName    string `env:"PROGRESSD_SERVER_NAME" envDefault:"progressd"`
	ServerVersion string `env:"PROGRESSD_SERVER_VERSION" envDefault:"1.0.0"`
	Transport     string `env:"PROGRESSD_TRANSPORT" envDefault:"stdio"`
	Port          int    `env:"PROGRESSD_PORT" envDefault:"8080"`
	// AllowedOrigins lists browser origins allowed to call the HTTP transport.
	AllowedOrigins []string `env:"PROGRESSD_ALLOWED_ORIGINS" envSeparator:","`

	LogLevel  string `env:"PROGRESSD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PROGRESSD_LOG_FORMAT" envDefault:"console"` // console or json

	JournalEnabled   bool          `env:"PROGRESSD_JOURNAL" envDefault:"false"`
	JournalPath      string        `env:"PROGRESSD_JOURNAL_PATH" envDefault:"./progress_journal.db"`
	JournalRetention time.Duration `env:"PROGRESSD_JOURNAL_RETENTION" envDefault:"24h"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.ServerName) == "" {
		result = multierror.Append(result, errors.New("server name must not be empty"))
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	if c.Transport == TransportHTTP && (c.Port <= 0 || c.Port > 65535) {
		result = multierror.Append(result, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if c.JournalEnabled {
		if c.JournalPath == "" {
			result = multierror.Append(result, errors.New("journal path must be set when the journal is enabled"))
		}
		if c.JournalRetention < 0 {
			result = multierror.Append(result, fmt.Errorf("journal retention %s must not be negative", c.JournalRetention))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
