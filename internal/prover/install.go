package prover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deonticprover/internal/logging"
	"deonticprover/internal/tactile"
)

// Installer attempts to install missing backends. Success is never trusted
// directly: the engine re-probes afterwards either way.
type Installer interface {
	Install(ctx context.Context, backends []BackendID) error
}

// InstallerFunc adapts a function to the Installer interface.
type InstallerFunc func(ctx context.Context, backends []BackendID) error

// Install calls fn(ctx, backends).
func (fn InstallerFunc) Install(ctx context.Context, backends []BackendID) error {
	return fn(ctx, backends)
}

// CommandInstaller runs an external installer command with the backend
// names appended as arguments.
type CommandInstaller struct {
	// Command is the installer argv; Command[0] is the executable.
	Command []string
	Timeout time.Duration

	Executor tactile.Executor
}

// Install runs the installer once and reports a non-zero exit or timeout as an error.
func (c *CommandInstaller) Install(ctx context.Context, backends []BackendID) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("installer command is empty")
	}
	executor := c.Executor
	if executor == nil {
		executor = tactile.NewDirectExecutor()
	}

	args := append([]string(nil), c.Command[1:]...)
	for _, b := range backends {
		args = append(args, b.String())
	}

	logging.Install("Running installer: %s %s", c.Command[0], strings.Join(args, " "))
	res, err := executor.Execute(ctx, tactile.Command{
		Binary:    c.Command[0],
		Arguments: args,
		Limits:    &tactile.ResourceLimits{TimeoutMs: c.Timeout.Milliseconds()},
		Tags:      map[string]string{"purpose": "install"},
	})
	if err != nil {
		return fmt.Errorf("installer rejected: %w", err)
	}
	switch {
	case res.TimedOut:
		return fmt.Errorf("installer timed out after %s", c.Timeout)
	case !res.Success:
		return fmt.Errorf("installer failed to run: %s", res.Error)
	case res.Killed:
		return fmt.Errorf("installer killed: %s", res.KillReason)
	case res.ExitCode != 0:
		return fmt.Errorf("installer exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
