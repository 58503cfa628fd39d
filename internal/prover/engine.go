package prover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"deonticprover/internal/deontic"
	"deonticprover/internal/logging"
	"deonticprover/internal/tactile"
)

// Engine proves deontic formulas against external backends.
//
// A single Prove call is strictly sequential: availability lookup, translation,
// artifact build, bounded run, classification. Concurrent calls share only the
// detector cache; each run writes its own backend-suffixed artifact.
type Engine struct {
	opts        Options
	translators map[BackendID]deontic.Translator
	detector    *Detector
	executor    tactile.Executor

	installs         singleflight.Group
	installMu        sync.Mutex
	installAttempted map[BackendID]bool
}

// EngineStatus summarizes the engine for status displays.
type EngineStatus struct {
	DefaultBackend    BackendID                  `json:"default_backend"`
	AvailableBackends []BackendID                `json:"available_backends"`
	Backends          map[BackendID]Availability `json:"backends"`
	WorkingDirectory  string                     `json:"working_directory"`
	Timeout           time.Duration              `json:"timeout"`
	SmokeTests        map[BackendID]ProofResult  `json:"smoke_tests"`
}

// smokeFormula is proved on every available backend by GetStatus. For proof
// assistants the consistency lemma in the artifact makes this a real kernel check.
var smokeFormula = deontic.NewFormula(deontic.Permission, "system", "smoke test", 1.0, "availability self-check")

// New builds an engine, creates the working directory and probes every
// configured backend once.
func New(ctx context.Context, opts Options) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "prover.New")
	defer timer.Stop()

	if opts.DefaultBackend == 0 {
		opts.DefaultBackend = Z3
	}
	if !opts.DefaultBackend.Valid() {
		return nil, fmt.Errorf("%w: default backend %s", ErrUnsupportedBackend, opts.DefaultBackend)
	}
	for _, b := range opts.Detector.Backends {
		if !b.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, b)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.WorkingDirectory == "" {
		opts.WorkingDirectory = filepath.Join(os.TempDir(), "deonticprover")
	}
	if abs, err := filepath.Abs(opts.WorkingDirectory); err == nil {
		opts.WorkingDirectory = abs
	}
	if err := os.MkdirAll(opts.WorkingDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	executor := opts.Executor
	if executor == nil {
		cfg := tactile.DefaultExecutorConfig()
		cfg.DefaultWorkingDir = opts.WorkingDirectory
		cfg.DefaultTimeout = opts.Timeout
		if opts.MaxOutputBytes > 0 {
			cfg.MaxOutputBytes = opts.MaxOutputBytes
		}
		direct := tactile.NewDirectExecutorWithConfig(cfg)
		direct.SetAuditCallback(auditProcess)
		executor = direct
	}
	if ci, ok := opts.Installer.(*CommandInstaller); ok && ci.Executor == nil {
		withExec := *ci
		withExec.Executor = executor
		opts.Installer = &withExec
	}

	translators := opts.Translators
	if translators == nil {
		translators = DefaultTranslators()
	}

	e := &Engine{
		opts:             opts,
		translators:      translators,
		executor:         executor,
		detector:         NewDetector(opts.Detector, executor),
		installAttempted: make(map[BackendID]bool),
	}
	observeAvailability(e.detector.ProbeAll(ctx))

	logging.Boot("Prover engine ready: default=%s timeout=%s dir=%s available=%v",
		opts.DefaultBackend, opts.Timeout, opts.WorkingDirectory, e.detector.Available())
	return e, nil
}

// Detector exposes the availability cache.
func (e *Engine) Detector() *Detector { return e.detector }

// DefaultBackend returns the backend used by ProveDefault.
func (e *Engine) DefaultBackend() BackendID { return e.opts.DefaultBackend }

// WorkingDirectory returns the absolute artifact directory.
func (e *Engine) WorkingDirectory() string { return e.opts.WorkingDirectory }

// Timeout returns the per-invocation bound.
func (e *Engine) Timeout() time.Duration { return e.opts.Timeout }

// ProveDefault proves f on the default backend.
func (e *Engine) ProveDefault(ctx context.Context, f deontic.Formula) ProofResult {
	return e.Prove(ctx, f, e.opts.DefaultBackend)
}

// Prove runs one formula through one backend. It never panics and always
// returns exactly one of the five statuses.
func (e *Engine) Prove(ctx context.Context, f deontic.Formula, backend BackendID) ProofResult {
	return e.prove(ctx, f, backend, true, "")
}

func (e *Engine) prove(ctx context.Context, f deontic.Formula, backend BackendID, record bool, ruleSet string) (res ProofResult) {
	start := time.Now()
	requestID := uuid.NewString()
	res = ProofResult{
		Backend:  backend,
		Metadata: map[string]string{MetaRequestID: requestID, MetaKind: KindFormula},
	}
	if ruleSet != "" {
		res.Metadata[MetaRuleSet] = ruleSet
	}
	defer e.finish(ctx, &res, start, record)

	res.Formula = f.String()
	res.FormulaID = f.ID
	if res.FormulaID == "" {
		res.FormulaID = deontic.StableID(f)
	}
	logging.Audit().ProofStart(requestID, backend.String(), res.FormulaID)

	spec, tr, ok := e.resolveBackend(&res)
	if !ok {
		return res
	}
	exe, ok := e.ensureAvailable(ctx, &res)
	if !ok {
		return res
	}

	outcome := tr.Translate(f)
	if !outcome.Success {
		res.Status = StatusError
		res.Errors = nonEmpty(outcome.Errors, "translation failed")
		return res
	}

	path, err := writeArtifact(e.opts.WorkingDirectory, ArtifactName(backend, res.FormulaID), spec.build(f, outcome))
	if err != nil {
		res.Status = StatusError
		res.Errors = []string{err.Error()}
		return res
	}
	res.Metadata[MetaArtifactPath] = path

	e.run(ctx, &res, spec, exe, path)
	return res
}

// ProveMany fans f out over backends concurrently. An empty list means every
// backend the detector reports on, installed or not. The map has exactly one
// entry per requested backend.
func (e *Engine) ProveMany(ctx context.Context, f deontic.Formula, backends []BackendID) map[BackendID]ProofResult {
	if len(backends) == 0 {
		backends = e.reportedBackends()
	}
	backends = dedupe(backends)

	results := make([]ProofResult, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			results[i] = e.Prove(gctx, f, b)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[BackendID]ProofResult, len(backends))
	for i, b := range backends {
		out[b] = results[i]
	}
	return out
}

// ProveRuleSet proves every formula of rs on backend, returning results in rule-set order.
func (e *Engine) ProveRuleSet(ctx context.Context, rs deontic.RuleSet, backend BackendID) []ProofResult {
	timer := logging.StartTimer(logging.CategoryProver, "ProveRuleSet "+rs.Name)
	defer timer.Stop()

	results := make([]ProofResult, len(rs.Formulas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, f := range rs.Formulas {
		g.Go(func() error {
			results[i] = e.prove(gctx, f, backend, true, rs.Name)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CheckConsistency asks whether every formula of rs can hold at once.
// Formulas whose translation fails are skipped with a warning. Only SMT
// backends support this; others classify as unsupported.
func (e *Engine) CheckConsistency(ctx context.Context, rs deontic.RuleSet, backend BackendID) (res ProofResult) {
	start := time.Now()
	requestID := uuid.NewString()
	name := rs.Name
	if name == "" {
		name = "ruleset"
	}
	res = ProofResult{
		Backend:   backend,
		Formula:   fmt.Sprintf("consistency(%s, %d formulas)", name, len(rs.Formulas)),
		FormulaID: name,
		Metadata: map[string]string{
			MetaRequestID: requestID,
			MetaRuleSet:   name,
			MetaKind:      KindConsistency,
		},
	}
	defer e.finish(ctx, &res, start, true)
	logging.Audit().ProofStart(requestID, backend.String(), name)

	spec, tr, ok := e.resolveBackend(&res)
	if !ok {
		return res
	}
	if spec.consistency == nil {
		res.Status = StatusUnsupported
		res.Errors = []string{fmt.Sprintf("%s does not support consistency checks", backend)}
		return res
	}
	exe, ok := e.ensureAvailable(ctx, &res)
	if !ok {
		return res
	}

	translations := make([]deontic.TranslationOutcome, 0, len(rs.Formulas))
	for _, f := range rs.Formulas {
		t := tr.Translate(f)
		if !t.Success {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("skipped %s: %s", f.String(), strings.Join(nonEmpty(t.Errors, "translation failed"), "; ")))
			continue
		}
		translations = append(translations, t)
	}
	res.Metadata[MetaAsserted] = strconv.Itoa(len(translations))

	path, err := writeArtifact(e.opts.WorkingDirectory, ConsistencyArtifactName(backend, name), spec.consistency(translations))
	if err != nil {
		res.Status = StatusError
		res.Errors = []string{err.Error()}
		return res
	}
	res.Metadata[MetaArtifactPath] = path

	e.run(ctx, &res, spec, exe, path)
	return res
}

// GetStatus reports availability and runs a smoke proof on each available backend.
func (e *Engine) GetStatus(ctx context.Context) EngineStatus {
	available := e.detector.Available()

	smoke := make([]ProofResult, len(available))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range available {
		g.Go(func() error {
			smoke[i] = e.prove(gctx, smokeFormula, b, false, "")
			return nil
		})
	}
	_ = g.Wait()

	status := EngineStatus{
		DefaultBackend:    e.opts.DefaultBackend,
		AvailableBackends: available,
		Backends:          e.detector.Snapshot(),
		WorkingDirectory:  e.opts.WorkingDirectory,
		Timeout:           e.opts.Timeout,
		SmokeTests:        make(map[BackendID]ProofResult, len(available)),
	}
	for i, b := range available {
		status.SmokeTests[b] = smoke[i]
	}
	return status
}

// RefreshAvailability re-probes every configured backend and swaps the cache.
func (e *Engine) RefreshAvailability(ctx context.Context) map[BackendID]bool {
	summary := e.detector.ProbeAll(ctx)
	observeAvailability(summary)
	return summary
}

// resolveBackend maps res.Backend to its spec and translator, or marks res unsupported.
func (e *Engine) resolveBackend(res *ProofResult) (backendSpec, deontic.Translator, bool) {
	spec, ok := lookupBackend(res.Backend)
	if !ok {
		res.Status = StatusUnsupported
		res.Errors = []string{fmt.Sprintf("unsupported backend %s", res.Backend)}
		return backendSpec{}, nil, false
	}
	tr := e.translators[res.Backend]
	if tr == nil {
		res.Status = StatusUnsupported
		res.Errors = []string{fmt.Sprintf("no translator registered for %s", res.Backend)}
		return backendSpec{}, nil, false
	}
	return spec, tr, true
}

// ensureAvailable returns the cached executable path, triggering the one-shot
// installer when allowed, or marks res as an error.
func (e *Engine) ensureAvailable(ctx context.Context, res *ProofResult) (string, bool) {
	b := res.Backend
	if a, ok := e.detector.Lookup(b); ok && a.Available {
		return a.Path, true
	}
	if e.tryInstall(ctx, b) {
		if a, ok := e.detector.Lookup(b); ok && a.Available {
			return a.Path, true
		}
	}

	res.Status = StatusError
	msg := fmt.Sprintf("%s is not installed", b)
	if a, ok := e.detector.Lookup(b); !ok {
		msg += " (backend not enabled)"
	} else if a.Error != "" {
		msg += ": " + a.Error
	}
	res.Errors = []string{msg}
	return "", false
}

// run executes the artifact and classifies the outcome into res.
func (e *Engine) run(ctx context.Context, res *ProofResult, spec backendSpec, exe, artifact string) {
	res.Metadata[MetaExecutable] = exe

	out, err := e.executor.Execute(ctx, tactile.Command{
		Binary:           exe,
		Arguments:        []string{artifact},
		WorkingDirectory: e.opts.WorkingDirectory,
		Limits: &tactile.ResourceLimits{
			TimeoutMs:      e.opts.Timeout.Milliseconds(),
			MaxOutputBytes: e.opts.MaxOutputBytes,
		},
		RequestID: res.Metadata[MetaRequestID],
		Tags:      map[string]string{"backend": res.Backend.String()},
	})
	switch {
	case err != nil:
		res.Status = StatusError
		res.Errors = []string{fmt.Sprintf("failed to run %s: %v", exe, err)}
		return
	case !out.Success:
		res.Status = StatusError
		res.Errors = []string{fmt.Sprintf("failed to run %s: %s", exe, out.Error)}
		return
	case out.Killed && !out.TimedOut:
		res.Status = StatusError
		res.Output = out.Stdout
		res.Elapsed = out.Duration
		res.Errors = []string{"canceled: " + out.KillReason}
		return
	}

	if out.Truncated {
		res.Warnings = append(res.Warnings, fmt.Sprintf("output truncated (%d bytes discarded)", out.TruncatedBytes))
	}
	if !out.TimedOut {
		res.Metadata[MetaExitCode] = strconv.Itoa(out.ExitCode)
	}

	c := Classify(res.Backend, RunOutcome{
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Elapsed:  out.Duration,
		TimedOut: out.TimedOut,
	})
	res.Status = c.Status
	res.Output = c.Output
	res.Errors = append(res.Errors, c.Errors...)
	res.Warnings = append(res.Warnings, c.Warnings...)

	res.Elapsed = out.Duration
	if out.TimedOut {
		res.Elapsed = e.opts.Timeout
	}
	if spec.smt && (res.Status == StatusSuccess || res.Status == StatusFailure) {
		res.Metadata[MetaVerdict] = satAnswer(res.Output)
	}
}

// finish runs deferred on every public pipeline: it turns panics into
// StatusError, then reports the terminal result.
func (e *Engine) finish(ctx context.Context, res *ProofResult, start time.Time, record bool) {
	if r := recover(); r != nil {
		logging.ProverError("Recovered panic on %s for %s: %v", res.Backend, res.FormulaID, r)
		res.Status = StatusError
		res.Errors = append(res.Errors, fmt.Sprintf("internal error: %v", r))
	}
	if res.Status == "" {
		res.Status = StatusError
	}
	if res.Status == StatusError || res.Status == StatusUnsupported {
		res.Errors = nonEmpty(res.Errors, string(res.Status))
	}
	if res.Elapsed == 0 {
		res.Elapsed = time.Since(start)
	}

	observeResult(*res)
	firstErr := ""
	if len(res.Errors) > 0 {
		firstErr = res.Errors[0]
	}
	logging.Audit().ProofComplete(res.Metadata[MetaRequestID], res.Backend.String(), res.FormulaID,
		string(res.Status), res.Elapsed, firstErr)
	logging.Prover("%s on %s: %s in %s", res.Formula, res.Backend, res.Status, res.Elapsed)

	if record && e.opts.Recorder != nil {
		e.record(context.WithoutCancel(ctx), *res)
	}
}

func (e *Engine) record(ctx context.Context, res ProofResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.ProverError("Recorder panicked: %v", r)
		}
	}()
	if err := e.opts.Recorder.Record(ctx, res); err != nil {
		logging.ProverWarn("Failed to record result for %s on %s: %v", res.FormulaID, res.Backend, err)
	}
}

// tryInstall triggers the installer at most once per backend for the life of
// the engine. Concurrent callers for the same backend share one attempt.
func (e *Engine) tryInstall(ctx context.Context, b BackendID) bool {
	if !e.opts.AutoInstall || e.opts.Installer == nil || !e.opts.AutoInstallBackends[b] {
		return false
	}

	v, _, _ := e.installs.Do(b.String(), func() (interface{}, error) {
		e.installMu.Lock()
		attempted := e.installAttempted[b]
		e.installAttempted[b] = true
		e.installMu.Unlock()
		if attempted {
			return false, nil
		}
		return e.install(ctx, b), nil
	})
	installed, _ := v.(bool)
	return installed
}

func (e *Engine) install(ctx context.Context, b BackendID) bool {
	logging.Install("Backend %s missing; triggering installer", b)
	logging.Audit().InstallEvent(logging.AuditInstallAttempt, b.String(), true, "")

	err := e.callInstaller(ctx, b)
	result, errMsg := "ok", ""
	if err != nil {
		result, errMsg = "error", err.Error()
		logging.InstallWarn("Installer for %s failed: %v", b, err)
	}
	installAttemptsTotal.WithLabelValues(result).Inc()

	// Re-probe regardless of the installer's verdict.
	available, path := e.detector.Probe(ctx, b)
	observeAvailability(map[BackendID]bool{b: available})
	logging.Audit().InstallEvent(logging.AuditInstallDone, b.String(), available, errMsg)
	logging.Install("Re-probe after install: %s available=%v path=%s", b, available, path)
	return available
}

func (e *Engine) callInstaller(ctx context.Context, b BackendID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("installer panicked: %v", r)
		}
	}()
	return e.opts.Installer.Install(ctx, []BackendID{b})
}

// reportedBackends is every backend in the detector snapshot, canonical order.
func (e *Engine) reportedBackends() []BackendID {
	snap := e.detector.Snapshot()
	var out []BackendID
	for _, b := range AllBackends() {
		if _, ok := snap[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

func dedupe(backends []BackendID) []BackendID {
	seen := make(map[BackendID]bool, len(backends))
	out := make([]BackendID, 0, len(backends))
	for _, b := range backends {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

func nonEmpty(errs []string, fallback string) []string {
	if len(errs) == 0 {
		return []string{fallback}
	}
	return errs
}

// auditProcess forwards executor events to the audit log.
func auditProcess(ev tactile.AuditEvent) {
	out := logging.AuditEvent{
		RequestID: ev.Command.RequestID,
		Backend:   ev.Command.Tags["backend"],
		Target:    ev.Command.Binary,
		Success:   true,
	}
	switch ev.Type {
	case tactile.AuditEventStart:
		out.EventType = logging.AuditProcessStart
	case tactile.AuditEventKilled:
		out.EventType = logging.AuditProcessKilled
	default:
		out.EventType = logging.AuditProcessExit
	}
	if r := ev.Result; r != nil {
		out.DurationMs = r.Duration.Milliseconds()
		out.Success = r.Success && !r.Killed && r.ExitCode == 0
		out.Error = r.Error
		if r.KillReason != "" {
			out.Error = r.KillReason
		}
	}
	logging.Audit().Log(out)
}
