// Package config loads the engine's environment-driven configuration into
// one flat struct plus a validation step, sourced through envconfig instead
// of hand rolled os.Getenv calls.
package config

import (
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"

	"github.com/malwarebo/orderbridge/errs"
)

// Config is the full set of POLLER_* environment variables.
type Config struct {
	EncryptionKey string `envconfig:"POLLER_ENCRYPTION_KEY" required:"true"`

	DefaultWebhookURL string `envconfig:"POLLER_DEFAULT_WEBHOOK_URL"`
	DBPath            string `envconfig:"POLLER_DB_PATH" default:"./poller.db"`

	HTTPTimeoutSeconds   int `envconfig:"POLLER_HTTP_TIMEOUT_SECONDS" default:"30"`
	MinIntervalSeconds   int `envconfig:"POLLER_MIN_INTERVAL_SECONDS" default:"5"`
	ShutdownGraceSeconds int `envconfig:"POLLER_SHUTDOWN_GRACE_SECONDS" default:"60"`
	ReconcileSeconds     int `envconfig:"POLLER_RECONCILE_SECONDS" default:"60"`

	CBFailureThreshold  int `envconfig:"POLLER_CB_FAILURE_THRESHOLD" default:"5"`
	CBRecoverySeconds   int `envconfig:"POLLER_CB_RECOVERY_SECONDS" default:"120"`
	CBHalfOpenSuccesses int `envconfig:"POLLER_CB_HALFOPEN_SUCCESSES" default:"2"`

	RetryMaxAttempts int `envconfig:"POLLER_RETRY_MAX_ATTEMPTS" default:"10"`

	MetricsAddr string `envconfig:"POLLER_METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errs.Wrap(errs.Config, "load configuration from environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return errs.New(errs.Config, "POLLER_ENCRYPTION_KEY is required")
	}
	if c.MinIntervalSeconds < 5 {
		return errs.New(errs.Config, "POLLER_MIN_INTERVAL_SECONDS must be at least 5")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return errs.New(errs.Config, "POLLER_HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.CBFailureThreshold <= 0 {
		return errs.New(errs.Config, "POLLER_CB_FAILURE_THRESHOLD must be positive")
	}
	if c.CBHalfOpenSuccesses <= 0 {
		return errs.New(errs.Config, "POLLER_CB_HALFOPEN_SUCCESSES must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return errs.New(errs.Config, "POLLER_RETRY_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c *Config) MinIntervalDuration() time.Duration {
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileSeconds) * time.Second
}

func (c *Config) CBRecoveryTimeout() time.Duration {
	return time.Duration(c.CBRecoverySeconds) * time.Second
}
