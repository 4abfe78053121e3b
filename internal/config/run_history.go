package config

import (
	"fmt"
	"time"
)

// RunHistoryConfig holds configuration for pruning recorded scrape runs
type RunHistoryConfig struct {
	// RetentionDays is how old a finished run must be before deletion (in days)
	// Default: 90, Range: 0-3650
	// 0 = never delete
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// Keep is the minimum number of most recent runs to keep regardless of age
	// Default: 50, Range: 0-10000
	Keep int `mapstructure:"keep" yaml:"keep"`
}

// DefaultRunHistoryConfig returns the default run history configuration
func DefaultRunHistoryConfig() RunHistoryConfig {
	return RunHistoryConfig{
		RetentionDays: 90,
		Keep:          50,
	}
}

// Validate checks if the configuration has valid values
func (c RunHistoryConfig) Validate() error {
	if c.RetentionDays < 0 || c.RetentionDays > 3650 {
		return fmt.Errorf("retention_days must be between 0 and 3650 (got %d)", c.RetentionDays)
	}
	if c.Keep < 0 || c.Keep > 10000 {
		return fmt.Errorf("keep must be between 0 and 10000 (got %d)", c.Keep)
	}
	return nil
}

// Enabled reports whether old runs should be deleted at all
func (c RunHistoryConfig) Enabled() bool {
	return c.RetentionDays > 0
}

// MaxAge returns the age threshold as a time.Duration
func (c RunHistoryConfig) MaxAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// String returns a human-readable representation of the config
func (c RunHistoryConfig) String() string {
	return fmt.Sprintf("RunHistoryConfig{RetentionDays: %d, Keep: %d}", c.RetentionDays, c.Keep)
}
