package config

import (
	"fmt"
	"strings"
)

const minSecretLength = 32

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.DQ.validate(); err != nil {
		return fmt.Errorf("dq: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with / (got %q)", c.Metrics.Path)
	}
	if c.Server.ActionRateLimit < 0 {
		return fmt.Errorf("server.action_rate_limit must be >= 0 (got %d)", c.Server.ActionRateLimit)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("dsn is required for the %s driver", DriverPostgres)
		}
	case DriverMemory:
		if d.AutoMigrate {
			return fmt.Errorf("auto_migrate has no effect on the %s driver", DriverMemory)
		}
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", d.Driver, DriverPostgres, DriverMemory)
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if a.Required && a.OperatorSecret == "" {
		return fmt.Errorf("operator_secret is required when auth is required")
	}
	if a.OperatorSecret != "" && len(a.OperatorSecret) < minSecretLength {
		return fmt.Errorf("operator_secret must be at least %d characters (got %d)", minSecretLength, len(a.OperatorSecret))
	}
	return nil
}

func (q *DQConfig) validate() error {
	if q.MediaSizeBump < 0 || q.MediaSizeBump > 1 {
		return fmt.Errorf("media_size_bump must be within [0, 1] (got %v)", q.MediaSizeBump)
	}
	if q.MaxMergeRefs <= 0 {
		return fmt.Errorf("max_merge_refs must be > 0 (got %d)", q.MaxMergeRefs)
	}
	if q.MaxNormalizeItems <= 0 {
		return fmt.Errorf("max_normalize_items must be > 0 (got %d)", q.MaxNormalizeItems)
	}
	if q.TxRetryBaseDelay <= 0 {
		return fmt.Errorf("tx_retry_base_delay must be > 0 (got %s)", q.TxRetryBaseDelay)
	}
	return nil
}
