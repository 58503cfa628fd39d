// Package watch re-checks a rule set whenever its file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"deonticprover/internal/deontic"
	"deonticprover/internal/logging"
	"deonticprover/internal/prover"
)

const defaultDebounce = 300 * time.Millisecond

// Checker runs a consistency check. *prover.Engine satisfies it.
type Checker interface {
	CheckConsistency(ctx context.Context, rs deontic.RuleSet, backend prover.BackendID) prover.ProofResult
}

// Event is delivered after every settled change to the watched file.
// Err is set when the file could not be loaded; Result is zero then.
type Event struct {
	Path    string
	RuleSet deontic.RuleSet
	Result  prover.ProofResult
	Err     error
	At      time.Time
}

// Options configures a RuleSetWatcher.
type Options struct {
	Path     string
	Backend  prover.BackendID
	Debounce time.Duration

	// OnEvent receives every check outcome on the watcher goroutine.
	OnEvent func(Event)
}

// Stats tracks watcher activity.
type Stats struct {
	Changes   int
	Checks    int
	LoadFails int
	Errors    int
	LastEvent time.Time
}

// RuleSetWatcher watches one rule-set file. The parent directory is watched
// so that editors that save by rename are still seen.
type RuleSetWatcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	checker  Checker
	opts     Options
	target   string
	pending  time.Time
	running  bool
	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	stats    Stats
	stopOnce sync.Once
}

// NewRuleSetWatcher creates a watcher for opts.Path. Start must be called to begin.
func NewRuleSetWatcher(checker Checker, opts Options) (*RuleSetWatcher, error) {
	if checker == nil {
		return nil, errors.New("checker is required")
	}
	if opts.Path == "" {
		return nil, errors.New("rule-set path is required")
	}
	target, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", opts.Path, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &RuleSetWatcher{
		watcher: watcher,
		checker: checker,
		opts:    opts,
		target:  filepath.Clean(target),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start watches the file's directory and runs an initial check. Non-blocking.
func (w *RuleSetWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	dir := filepath.Dir(w.target)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	// Queue the initial check so it runs on the watcher goroutine.
	w.pending = time.Now().Add(-w.opts.Debounce)
	w.mu.Unlock()

	logging.Watch("Watching rule set %s (backend=%s, debounce=%s)", w.target, w.opts.Backend, w.opts.Debounce)
	go w.run(runCtx)
	return nil
}

// Stop cancels any in-flight check, waits for the loop to exit and releases the watcher.
func (w *RuleSetWatcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		if cancel != nil {
			cancel()
		}
		close(w.stopCh)
		if wasRunning {
			<-w.doneCh
		}
		if err := w.watcher.Close(); err != nil {
			logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
		}
		logging.Watch("Stopped watching %s", w.target)
	})
}

// IsWatching reports whether the loop is running.
func (w *RuleSetWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a copy of the activity counters.
func (w *RuleSetWatcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *RuleSetWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.opts.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			if w.settled() {
				w.check(ctx)
			}
		}
	}
}

func (w *RuleSetWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.target {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	logging.Get(logging.CategoryWatch).Debug("%s event for %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.Changes++
	w.stats.LastEvent = time.Now()
	w.pending = time.Now()
	w.mu.Unlock()
}

// settled reports whether a pending change has been quiet for the debounce window,
// clearing it if so.
func (w *RuleSetWatcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || time.Since(w.pending) < w.opts.Debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}

func (w *RuleSetWatcher) check(ctx context.Context) {
	ev := Event{Path: w.target, At: time.Now()}

	rs, err := deontic.LoadRuleSet(w.target)
	if err != nil {
		// A removed file is reported once; the next create re-triggers.
		if errors.Is(err, os.ErrNotExist) {
			logging.Watch("Rule set %s is gone; waiting for it to reappear", w.target)
		}
		ev.Err = err
		w.mu.Lock()
		w.stats.LoadFails++
		w.mu.Unlock()
	} else {
		ev.RuleSet = rs
		ev.Result = w.checker.CheckConsistency(ctx, rs, w.opts.Backend)
		w.mu.Lock()
		w.stats.Checks++
		w.mu.Unlock()
		logging.Watch("Rule set %s re-checked on %s: %s (%d formulas)", rs.Name, w.opts.Backend, ev.Result.Status, len(rs.Formulas))
	}

	if ctx.Err() != nil {
		return
	}
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(ev)
	}
}
