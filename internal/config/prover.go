package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidBackends lists the backend names accepted in configuration.
var ValidBackends = []string{"z3", "cvc5", "lean4", "coq"}

// ProverConfig configures proof execution.
type ProverConfig struct {
	// DefaultBackend is used when a caller does not name one.
	DefaultBackend string `yaml:"default_backend"`

	// Timeout bounds every backend invocation (wall clock).
	Timeout string `yaml:"timeout"`

	// WorkingDirectory receives generated artifacts. Files are kept after each run.
	WorkingDirectory string `yaml:"working_directory"`

	// Backends are probed at startup; an empty list means all of them.
	Backends []string `yaml:"backends"`

	// SearchDirs are user-local install directories checked after PATH.
	// A leading ~ expands to the user's home directory.
	SearchDirs []string `yaml:"search_dirs"`

	// MaxOutputBytes caps captured stdout and stderr per stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// BackendSettings holds per-backend overrides keyed by backend name.
	BackendSettings map[string]BackendConfig `yaml:"backend_settings"`

	AutoInstall AutoInstallConfig `yaml:"auto_install"`
}

// BackendConfig holds per-backend overrides.
type BackendConfig struct {
	// Executable overrides the resolved binary (absolute path or name on PATH).
	Executable string `yaml:"executable"`

	// ProbeTimeout bounds the version query run during availability detection.
	ProbeTimeout string `yaml:"probe_timeout"`

	// AutoInstall allows the installer to be triggered for this backend.
	AutoInstall bool `yaml:"auto_install"`
}

// AutoInstallConfig configures the external installer.
type AutoInstallConfig struct {
	Enabled bool `yaml:"enabled"`

	// Command is the installer argv; missing backend names are appended.
	Command []string `yaml:"command"`

	Timeout string `yaml:"timeout"`
}

// DefaultProverConfig returns defaults for proof execution.
//
// Proof-assistant probes get much longer budgets than SMT probes: the first
// `lean --version` through elan can download and unpack a whole toolchain,
// and coqc may rebuild its library cache.
func DefaultProverConfig() ProverConfig {
	return ProverConfig{
		DefaultBackend:   "z3",
		Timeout:          "30s",
		WorkingDirectory: ".prover/artifacts",
		Backends:         append([]string(nil), ValidBackends...),
		SearchDirs: []string{
			"~/.elan/bin",
			"~/.local/bin",
			"~/.opam/default/bin",
			"~/bin",
		},
		MaxOutputBytes: 4 * 1024 * 1024,
		BackendSettings: map[string]BackendConfig{
			"z3":    {ProbeTimeout: "10s", AutoInstall: true},
			"cvc5":  {ProbeTimeout: "10s", AutoInstall: true},
			"lean4": {ProbeTimeout: "10m", AutoInstall: false},
			"coq":   {ProbeTimeout: "2m", AutoInstall: false},
		},
		AutoInstall: AutoInstallConfig{
			Enabled: false,
			Command: []string{"prover-install"},
			Timeout: "15m",
		},
	}
}

// IsValidBackend reports whether name is a supported backend.
func IsValidBackend(name string) bool {
	for _, b := range ValidBackends {
		if b == name {
			return true
		}
	}
	return false
}

// Validate checks backend names and durations.
func (p *ProverConfig) Validate() error {
	if !IsValidBackend(p.DefaultBackend) {
		return fmt.Errorf("%w: default_backend %q (valid: %v)", ErrInvalidBackend, p.DefaultBackend, ValidBackends)
	}
	for _, b := range p.Backends {
		if !IsValidBackend(b) {
			return fmt.Errorf("%w: %q in backends (valid: %v)", ErrInvalidBackend, b, ValidBackends)
		}
	}
	for name := range p.BackendSettings {
		if !IsValidBackend(name) {
			return fmt.Errorf("%w: %q in backend_settings (valid: %v)", ErrInvalidBackend, name, ValidBackends)
		}
	}
	if d, err := time.ParseDuration(p.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid prover timeout %q", p.Timeout)
	}
	if p.WorkingDirectory == "" {
		return fmt.Errorf("prover.working_directory is required")
	}
	if p.AutoInstall.Enabled && len(p.AutoInstall.Command) == 0 {
		return fmt.Errorf("auto_install.command is required when auto-install is enabled")
	}
	return nil
}

// GetProbeTimeout returns the probe timeout for a backend, falling back to 10s.
func (p *ProverConfig) GetProbeTimeout(backend string) time.Duration {
	return parseDuration(p.BackendSettings[backend].ProbeTimeout, 10*time.Second)
}

// GetInstallTimeout returns the installer timeout.
func (p *ProverConfig) GetInstallTimeout() time.Duration {
	return parseDuration(p.AutoInstall.Timeout, 15*time.Minute)
}

// AutoInstallAllowed reports whether the installer may be called for backend.
func (p *ProverConfig) AutoInstallAllowed(backend string) bool {
	return p.AutoInstall.Enabled && p.BackendSettings[backend].AutoInstall
}

// ExpandedSearchDirs resolves ~ in SearchDirs. Entries that cannot be expanded are dropped.
func (p *ProverConfig) ExpandedSearchDirs() []string {
	home, homeErr := os.UserHomeDir()
	dirs := make([]string, 0, len(p.SearchDirs))
	for _, dir := range p.SearchDirs {
		if dir == "~" || strings.HasPrefix(dir, "~/") {
			if homeErr != nil {
				continue
			}
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
