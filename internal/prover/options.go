package prover

import (
	"context"
	"fmt"
	"time"

	"deonticprover/internal/config"
	"deonticprover/internal/deontic"
	"deonticprover/internal/tactile"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultParallelism = 4
)

// Recorder persists terminal proof results. Recording failures are logged only.
type Recorder interface {
	Record(ctx context.Context, r ProofResult) error
}

// Options is the explicit engine configuration. The engine reads no
// environment variables; config.Load is the only place that does.
type Options struct {
	DefaultBackend BackendID

	// Timeout bounds every backend invocation.
	Timeout time.Duration

	// WorkingDirectory receives artifacts; created by New, never cleaned.
	WorkingDirectory string

	Detector DetectorOptions

	// MaxOutputBytes caps captured stdout and stderr per stream.
	MaxOutputBytes int64

	// Translators per backend. Nil means DefaultTranslators. A backend
	// missing from a non-nil map classifies as unsupported.
	Translators map[BackendID]deontic.Translator

	// AutoInstall gates the one-shot installer trigger for the engine's lifetime.
	AutoInstall bool

	// AutoInstallBackends enables the trigger per backend.
	AutoInstallBackends map[BackendID]bool

	Installer Installer

	// Executor runs backend processes. Nil means a tactile.DirectExecutor.
	Executor tactile.Executor

	Recorder Recorder

	// Parallelism bounds concurrent formulas in ProveRuleSet.
	Parallelism int
}

// OptionsFromConfig converts loaded configuration into engine options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	p := cfg.Prover

	def, err := ParseBackend(p.DefaultBackend)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrInvalidBackend, err)
	}
	backends, err := ParseBackends(p.Backends)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrInvalidBackend, err)
	}

	opts := Options{
		DefaultBackend:   def,
		Timeout:          cfg.GetTimeout(),
		WorkingDirectory: p.WorkingDirectory,
		Detector: DetectorOptions{
			Backends:      backends,
			Executables:   make(map[BackendID]string),
			SearchDirs:    p.ExpandedSearchDirs(),
			ProbeTimeouts: make(map[BackendID]time.Duration),
		},
		MaxOutputBytes:      p.MaxOutputBytes,
		Parallelism:         cfg.Limits.MaxParallelProofs,
		AutoInstall:         p.AutoInstall.Enabled,
		AutoInstallBackends: make(map[BackendID]bool),
	}

	for _, b := range AllBackends() {
		name := b.String()
		if exe := p.BackendSettings[name].Executable; exe != "" {
			opts.Detector.Executables[b] = exe
		}
		opts.Detector.ProbeTimeouts[b] = p.GetProbeTimeout(name)
		opts.AutoInstallBackends[b] = p.AutoInstallAllowed(name)
	}

	if p.AutoInstall.Enabled {
		opts.Installer = &CommandInstaller{
			Command: append([]string(nil), p.AutoInstall.Command...),
			Timeout: p.GetInstallTimeout(),
		}
	}

	return opts, nil
}
