package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deonticprover/internal/prover"
	"deonticprover/internal/store"
)

// app bundles the engine with the optional proof history.
type app struct {
	engine *prover.Engine
	store  *store.ProofStore
}

// newApp opens the history (when enabled) and constructs the engine.
// New probes every configured backend, so this blocks until probes finish.
func newApp(ctx context.Context) (*app, error) {
	opts, err := prover.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{}
	if cfg.Store.Enabled {
		a.store, err = store.NewProofStore(cfg.Store.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open proof history: %w", err)
		}
		opts.Recorder = a.store
	}

	a.engine, err = prover.New(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Debug("Engine ready",
		zap.String("default_backend", a.engine.DefaultBackend().String()),
		zap.String("work_dir", a.engine.WorkingDirectory()),
		zap.Duration("timeout", a.engine.Timeout()))
	return a, nil
}

// openStore opens only the history, for commands that never run a backend.
func openStore() (*store.ProofStore, error) {
	if !cfg.Store.Enabled {
		return nil, fmt.Errorf("proof history is disabled (store.enabled: false)")
	}
	return store.NewProofStore(cfg.Store.DatabasePath)
}

// Close trims the history to the configured retention and releases it.
func (a *app) Close() {
	if a.store != nil {
		if keep := cfg.Limits.MaxHistoryRuns; keep > 0 {
			if _, err := a.store.Prune(context.Background(), keep); err != nil {
				logger.Warn("Failed to prune proof history", zap.Error(err))
			}
		}
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close proof history", zap.Error(err))
		}
	}
}
