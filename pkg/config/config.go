// Package config loads and validates the tap configuration.
//
// The file may be JSON or YAML. ${VAR} references are substituted from the
// environment before parsing, and every key can be overridden with a
// BRONTO_<KEY> environment variable (nested keys join with an underscore, so
// state_store.backend becomes BRONTO_STATE_STORE_BACKEND).
package config

import (
	"time"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// Defaults applied when a key is absent.
const (
	DefaultStartDate      = "2017-01-01T00:00:00-00:00"
	DefaultEndpoint       = "https://api.bronto.com/v4"
	DefaultRequestTimeout = time.Hour
	DefaultRetryAttempts  = 5
	DefaultRetryDelay     = time.Second
	DefaultPageSize       = 5000
	DefaultLogLevel       = "info"
)

// Config is the tap configuration.
type Config struct {
	// Token is the API token used to open a session. Required.
	Token string `yaml:"token" json:"token" mapstructure:"token"`
	// StartDate bounds the first sync of every stream.
	StartDate string `yaml:"start_date" json:"start_date" mapstructure:"start_date"`
	// Endpoint is the SOAP service URL.
	Endpoint string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`

	// RequestTimeout is the per-request socket timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	// RetryAttempts bounds attempts of a page request that timed out.
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	// RateLimitPerSec limits outgoing requests (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// PageSize is the page size for read operations that accept one.
	PageSize int `yaml:"page_size" json:"page_size" mapstructure:"page_size"`

	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`

	StateStore StateStoreConfig `yaml:"state_store" json:"state_store" mapstructure:"state_store"`
	Output     OutputConfig     `yaml:"output" json:"output" mapstructure:"output"`

	// MetricsAddr serves prometheus metrics when set, e.g. ":9102".
	MetricsAddr string        `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// StateStoreConfig selects where bookmarks are persisted besides the STATE
// messages on stdout.
type StateStoreConfig struct {
	// Backend is one of file, s3, gcs, postgres. Empty disables the store.
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// Path is the state file for the file backend.
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Bucket and Key locate the state object for s3 and gcs.
	Bucket string `yaml:"bucket" json:"bucket" mapstructure:"bucket"`
	Key    string `yaml:"key" json:"key" mapstructure:"key"`
	// Region overrides the AWS region for s3.
	Region string `yaml:"region" json:"region" mapstructure:"region"`
	// CredentialsFile is a service account key for gcs.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`
	// DSN and Table locate the state row for postgres.
	DSN   string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	Table string `yaml:"table" json:"table" mapstructure:"table"`
	// Name identifies this tap's row or object when several taps share a store.
	Name string `yaml:"name" json:"name" mapstructure:"name"`
}

// OutputConfig redirects the message stream to a file instead of stdout.
type OutputConfig struct {
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Compression is one of none, gzip, snappy, lz4, zstd, s2.
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// TracingConfig enables span export to stderr.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`
}

// StartTime parses StartDate.
func (c *Config) StartTime() (time.Time, error) {
	t, err := models.ParseTimestamp(c.StartDate)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid start_date")
	}
	return t, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New(errors.ErrorTypeConfig, "token is required")
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.Endpoint == "" {
		return errors.New(errors.ErrorTypeConfig, "endpoint is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "request_timeout must be positive")
	}
	if c.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "retry_attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return errors.New(errors.ErrorTypeConfig, "retry_delay cannot be negative")
	}
	if c.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "rate_limit_per_sec cannot be negative")
	}
	if c.PageSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "page_size must be positive")
	}

	switch c.StateStore.Backend {
	case "":
	case "file":
		if c.StateStore.Path == "" {
			return errors.New(errors.ErrorTypeConfig, "state_store.path is required for the file backend")
		}
	case "s3", "gcs":
		if c.StateStore.Bucket == "" {
			return errors.Newf(errors.ErrorTypeConfig, "state_store.bucket is required for the %s backend", c.StateStore.Backend)
		}
	case "postgres":
		if c.StateStore.DSN == "" {
			return errors.New(errors.ErrorTypeConfig, "state_store.dsn is required for the postgres backend")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown state_store.backend %q", c.StateStore.Backend)
	}

	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (c *Config) IsRateLimited() bool {
	return c.RateLimitPerSec > 0
}
