package prover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deonticprover/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prover.DefaultBackend = "cvc5"
	cfg.Prover.Timeout = "45s"
	cfg.Prover.Backends = []string{"z3", "lean4"}
	cfg.Prover.SearchDirs = []string{"/opt/solvers/bin"}
	cfg.Prover.AutoInstall.Enabled = true
	cfg.Prover.AutoInstall.Command = []string{"prover-install", "--yes"}
	cfg.Limits.MaxParallelProofs = 8
	cfg.Prover.BackendSettings["z3"] = config.BackendConfig{Executable: "/usr/local/bin/z3", ProbeTimeout: "5s", AutoInstall: true}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, CVC5, opts.DefaultBackend)
	assert.Equal(t, 45*time.Second, opts.Timeout)
	assert.Equal(t, 8, opts.Parallelism)
	assert.Equal(t, []BackendID{Z3, Lean4}, opts.Detector.Backends)
	assert.Equal(t, []string{"/opt/solvers/bin"}, opts.Detector.SearchDirs)
	assert.Equal(t, "/usr/local/bin/z3", opts.Detector.Executables[Z3])
	assert.Equal(t, 5*time.Second, opts.Detector.ProbeTimeouts[Z3])
	assert.Equal(t, 10*time.Minute, opts.Detector.ProbeTimeouts[Lean4])
	assert.True(t, opts.AutoInstall)
	assert.True(t, opts.AutoInstallBackends[Z3])
	assert.False(t, opts.AutoInstallBackends[Lean4])

	ci, ok := opts.Installer.(*CommandInstaller)
	require.True(t, ok)
	assert.Equal(t, []string{"prover-install", "--yes"}, ci.Command)
	assert.Equal(t, 15*time.Minute, ci.Timeout)
}

func TestOptionsFromConfig_NoInstallerWhenDisabled(t *testing.T) {
	opts, err := OptionsFromConfig(config.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, opts.Installer)
	assert.False(t, opts.AutoInstall)
	assert.Equal(t, AllBackends(), opts.Detector.Backends)
}

func TestOptionsFromConfig_InvalidBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prover.Backends = []string{"z3", "vampire"}
	_, err := OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidBackend)

	cfg = config.DefaultConfig()
	cfg.Prover.DefaultBackend = "isabelle"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidBackend)
}
