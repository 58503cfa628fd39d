package prover

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"deonticprover/internal/logging"
	"deonticprover/internal/tactile"
)

// defaultProbeTimeout bounds a version query when no override is configured.
const defaultProbeTimeout = 10 * time.Second

// Availability is the cached probe result for one backend.
type Availability struct {
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	Version   string    `json:"version,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
	Error     string    `json:"error,omitempty"`
}

// DetectorOptions configures executable resolution and probe budgets.
type DetectorOptions struct {
	// Backends to probe. Empty means AllBackends.
	Backends []BackendID

	// Executables overrides the executable name or path per backend.
	Executables map[BackendID]string

	// SearchDirs are checked, in order, when the executable is not on PATH.
	SearchDirs []string

	// ProbeTimeouts overrides the version-query timeout per backend. Proof
	// assistants typically need minutes: the first invocation through a
	// toolchain manager may download and unpack a whole toolchain.
	ProbeTimeouts map[BackendID]time.Duration
}

// Detector probes backend executables and caches the results.
// Reads take a shared lock; refreshes build a complete new snapshot and swap
// it in under the exclusive lock, so readers never see a partial update.
type Detector struct {
	mu    sync.RWMutex
	cache map[BackendID]Availability

	opts     DetectorOptions
	executor tactile.Executor
}

// NewDetector creates a detector. Nothing is probed until Probe or ProbeAll.
func NewDetector(opts DetectorOptions, executor tactile.Executor) *Detector {
	if len(opts.Backends) == 0 {
		opts.Backends = AllBackends()
	}
	return &Detector{
		cache:    make(map[BackendID]Availability),
		opts:     opts,
		executor: executor,
	}
}

// Backends returns the backends this detector probes.
func (d *Detector) Backends() []BackendID {
	return append([]BackendID(nil), d.opts.Backends...)
}

// Probe runs one backend's version query and overwrites its cache entry.
// Any failure is recorded as unavailable.
func (d *Detector) Probe(ctx context.Context, b BackendID) (bool, string) {
	a := d.probe(ctx, b)

	d.mu.Lock()
	d.cache[b] = a
	d.mu.Unlock()

	return a.Available, a.Path
}

// ProbeAll probes every configured backend concurrently and replaces the cache.
func (d *Detector) ProbeAll(ctx context.Context) map[BackendID]bool {
	timer := logging.StartTimer(logging.CategoryDetector, "ProbeAll")
	defer timer.Stop()

	results := make([]Availability, len(d.opts.Backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range d.opts.Backends {
		g.Go(func() error {
			results[i] = d.probe(gctx, b)
			return nil
		})
	}
	_ = g.Wait()

	fresh := make(map[BackendID]Availability, len(results))
	summary := make(map[BackendID]bool, len(results))
	for i, b := range d.opts.Backends {
		fresh[b] = results[i]
		summary[b] = results[i].Available
	}

	d.mu.Lock()
	d.cache = fresh
	d.mu.Unlock()

	logging.Detector("Probed %d backends: %v", len(summary), summary)
	return summary
}

// Lookup returns the cached entry for b. ok is false if b was never probed.
func (d *Detector) Lookup(b BackendID) (Availability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.cache[b]
	return a, ok
}

// Snapshot returns a copy of the whole cache.
func (d *Detector) Snapshot() map[BackendID]Availability {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[BackendID]Availability, len(d.cache))
	for b, a := range d.cache {
		out[b] = a
	}
	return out
}

// Available lists the backends currently reported as installed, in canonical order.
func (d *Detector) Available() []BackendID {
	snap := d.Snapshot()
	var out []BackendID
	for _, b := range AllBackends() {
		if snap[b].Available {
			out = append(out, b)
		}
	}
	return out
}

func (d *Detector) probe(ctx context.Context, b BackendID) Availability {
	a := Availability{ProbedAt: time.Now()}
	spec, ok := lookupBackend(b)
	if !ok {
		a.Error = "unknown backend"
		return a
	}

	path, found := d.resolve(b, spec)
	if !found {
		a.Error = "executable not found"
		logging.DetectorDebug("%s: executable not found", b)
		logging.Audit().BackendProbe(b.String(), "", false)
		return a
	}
	a.Path = path

	timeout := d.probeTimeout(b)
	res, err := d.executor.Execute(ctx, tactile.Command{
		Binary:    path,
		Arguments: spec.versionArgs,
		Limits:    &tactile.ResourceLimits{TimeoutMs: timeout.Milliseconds()},
		Tags:      map[string]string{"backend": b.String(), "purpose": "probe"},
	})
	switch {
	case err != nil:
		a.Error = err.Error()
	case res.TimedOut:
		a.Error = "probe timed out after " + timeout.String()
	case !res.Success:
		a.Error = res.Error
	case res.Killed:
		a.Error = res.KillReason
	case res.ExitCode != 0:
		a.Error = "version query exited with code " + strconv.Itoa(res.ExitCode)
	default:
		a.Available = true
		a.Version = firstLine(res.Stdout)
	}

	if a.Available {
		logging.Detector("%s available at %s (%s)", b, path, a.Version)
	} else {
		logging.DetectorDebug("%s unavailable at %s: %s", b, path, a.Error)
	}
	logging.Audit().BackendProbe(b.String(), path, a.Available)
	return a
}

// resolve finds the executable: the configured override or default name on
// PATH first, then each search directory.
func (d *Detector) resolve(b BackendID, spec backendSpec) (string, bool) {
	name := spec.executable
	if override := d.opts.Executables[b]; override != "" {
		name = override
	}

	if p, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		return p, true
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return "", false
	}

	for _, dir := range d.opts.SearchDirs {
		candidate := filepath.Join(dir, name)
		if p, err := exec.LookPath(candidate); err == nil {
			return p, true
		}
	}
	return "", false
}

func (d *Detector) probeTimeout(b BackendID) time.Duration {
	if t, ok := d.opts.ProbeTimeouts[b]; ok && t > 0 {
		return t
	}
	return defaultProbeTimeout
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
