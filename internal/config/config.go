package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidBackend is returned when a configured backend name is not one of the supported backends.
var ErrInvalidBackend = errors.New("invalid backend")

// Config holds all prover configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Proof execution
	Prover ProverConfig `yaml:"prover"`

	// Proof history database
	Store StoreConfig `yaml:"store"`

	// Concurrency and retention
	Limits LimitsConfig `yaml:"limits"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the proof history ledger.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "deontic-prover",
		Version: "0.4.0",

		Prover: DefaultProverConfig(),

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: ".prover/proofs.db",
		},

		Limits: DefaultLimitsConfig(),

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Directory: ".prover/logs",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// This is the only place the environment is consulted; the engine itself
// receives an explicit options value.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROVER_TIMEOUT"); v != "" {
		c.Prover.Timeout = v
	}
	if v := os.Getenv("PROVER_DEFAULT_BACKEND"); v != "" {
		c.Prover.DefaultBackend = strings.ToLower(v)
	}
	if v := os.Getenv("PROVER_WORK_DIR"); v != "" {
		c.Prover.WorkingDirectory = v
	}
	if v := os.Getenv("PROVER_AUTO_INSTALL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Prover.AutoInstall.Enabled = enabled
		}
	}
	if v := os.Getenv("PROVER_DB"); v != "" {
		c.Store.DatabasePath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Prover.Validate(); err != nil {
		return err
	}
	if c.Store.Enabled && c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required when the store is enabled")
	}
	return c.ValidateLimits()
}

// GetTimeout returns the per-invocation backend timeout.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.Prover.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
