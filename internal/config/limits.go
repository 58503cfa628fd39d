package config

import "fmt"

// LimitsConfig bounds concurrency and on-disk growth.
type LimitsConfig struct {
	// MaxParallelProofs bounds concurrent formulas when proving a rule set.
	MaxParallelProofs int `yaml:"max_parallel_proofs" json:"max_parallel_proofs"`

	// MaxHistoryRuns is the number of runs kept in the history; 0 keeps everything.
	MaxHistoryRuns int `yaml:"max_history_runs" json:"max_history_runs"`
}

// DefaultLimitsConfig returns the default limits.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxParallelProofs: 4,
		MaxHistoryRuns:    10000,
	}
}

// ValidateLimits checks that limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Limits.MaxParallelProofs < 1 {
		return fmt.Errorf("limits.max_parallel_proofs must be >= 1")
	}
	if c.Limits.MaxHistoryRuns < 0 {
		return fmt.Errorf("limits.max_history_runs must be >= 0")
	}
	return nil
}
