package deduplication

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

// Config holds configuration for the duplicate detector
type Config struct {
	// DuplicateThreshold is the minimum title similarity (0.0-1.0) for the fuzzy rule.
	// It is compared against the 0-100 similarity ratio after scaling by 100.
	// Default: 0.85
	DuplicateThreshold float64
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		DuplicateThreshold: 0.85,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if math.IsNaN(c.DuplicateThreshold) || c.DuplicateThreshold < 0.0 || c.DuplicateThreshold > 1.0 {
		return fmt.Errorf("duplicate_threshold must be between 0.0 and 1.0 (got %.2f)", c.DuplicateThreshold)
	}
	return nil
}

// MinScore returns the smallest integer similarity ratio that satisfies the threshold.
// The epsilon absorbs float error in threshold*100 (0.85*100 must give 85, not 86).
func (c Config) MinScore() int {
	return int(math.Ceil(c.DuplicateThreshold*100 - 1e-9))
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{Threshold: %.2f, MinScore: %d}", c.DuplicateThreshold, c.MinScore())
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - CASALERT_DUPLICATE_THRESHOLD: Minimum title similarity (0.0-1.0) (default: 0.85)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvFloat("CASALERT_DUPLICATE_THRESHOLD", &cfg.DuplicateThreshold); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
