//go:build !windows

package prover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deonticprover/internal/deontic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// versionPrelude makes every fake backend pass the availability probe.
const versionPrelude = `if [ "$1" = "--version" ]; then echo "fake-backend 1.0"; exit 0; fi
`

type fixture struct {
	bin  string
	work string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	fx := &fixture{bin: filepath.Join(root, "bin"), work: filepath.Join(root, "work")}
	require.NoError(t, os.MkdirAll(fx.bin, 0755))
	return fx
}

func (fx *fixture) script(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(fx.bin, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+versionPrelude+body+"\n"), 0755))
	return path
}

func (fx *fixture) missing(name string) string {
	return filepath.Join(fx.bin, "missing-"+name)
}

func (fx *fixture) engine(t *testing.T, executables map[BackendID]string, mutate func(*Options)) *Engine {
	t.Helper()
	backends := make([]BackendID, 0, len(executables))
	for _, b := range AllBackends() {
		if _, ok := executables[b]; ok {
			backends = append(backends, b)
		}
	}
	opts := Options{
		DefaultBackend:   Z3,
		Timeout:          5 * time.Second,
		WorkingDirectory: fx.work,
		Detector: DetectorOptions{
			Backends:    backends,
			Executables: executables,
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	return e
}

func TestProve_Z3Success(t *testing.T) {
	fx := newFixture(t)
	z3 := fx.script(t, "z3", `cat "$1" > /dev/null && echo sat`)
	e := fx.engine(t, map[BackendID]string{Z3: z3}, nil)

	f := noticeFormula()
	res := e.Prove(context.Background(), f, Z3)

	require.Equal(t, StatusSuccess, res.Status, "errors: %v", res.Errors)
	assert.Contains(t, res.Output, "sat")
	assert.Equal(t, Z3, res.Backend)
	assert.Equal(t, f.String(), res.Formula)
	assert.Equal(t, f.ID, res.FormulaID)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "0", res.Metadata[MetaExitCode])
	assert.Equal(t, "sat", res.Metadata[MetaVerdict])
	assert.Equal(t, KindFormula, res.Metadata[MetaKind])
	assert.Equal(t, z3, res.Metadata[MetaExecutable])
	assert.Greater(t, res.Elapsed, time.Duration(0))

	path := res.ArtifactPath()
	require.NotEmpty(t, path)
	assert.Equal(t, filepath.Join(e.WorkingDirectory(), ArtifactName(Z3, f.ID)), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "(assert (obligated agent_party prop_provide_written_notice_before_termination))")
	assert.True(t, strings.HasSuffix(string(content), "(check-sat)\n(get-model)\n"))
}

func TestProve_ArtifactIsSolePositionalArgument(t *testing.T) {
	fx := newFixture(t)
	argsFile := filepath.Join(fx.bin, "args")
	z3 := fx.script(t, "z3", `echo "$#:$1" > "`+argsFile+`"; echo sat`)
	e := fx.engine(t, map[BackendID]string{Z3: z3}, nil)

	res := e.Prove(context.Background(), noticeFormula(), Z3)
	require.Equal(t, StatusSuccess, res.Status)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "1:"+res.ArtifactPath(), strings.TrimSpace(string(data)))
}

func TestProve_UnknownBackend(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, nil)

	for _, b := range []BackendID{0, BackendID(99), BackendID(-1)} {
		res := e.Prove(context.Background(), noticeFormula(), b)
		assert.Equal(t, StatusUnsupported, res.Status, "backend %d", int(b))
		assert.NotEmpty(t, res.Errors)
		assert.Empty(t, res.ArtifactPath())
	}

	entries, err := os.ReadDir(e.WorkingDirectory())
	require.NoError(t, err)
	assert.Empty(t, entries, "no artifact may be written for unsupported backends")
}

func TestProve_NotInstalled(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{CVC5: fx.missing("cvc5")}, nil)

	res := e.Prove(context.Background(), noticeFormula(), CVC5)
	assert.Equal(t, StatusError, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "not installed")
}

func TestProve_BackendNotEnabled(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, nil)

	res := e.Prove(context.Background(), noticeFormula(), Coq)
	assert.Equal(t, StatusError, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "not enabled")
}

func TestProve_LeanUnknownIdentifier(t *testing.T) {
	fx := newFixture(t)
	lean := fx.script(t, "lean", `echo "partial elaboration"; echo "unknown identifier" 1>&2; exit 1`)
	e := fx.engine(t, map[BackendID]string{Lean4: lean}, nil)

	res := e.Prove(context.Background(), noticeFormula(), Lean4)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, []string{"unknown identifier"}, res.Errors)
	assert.Contains(t, res.Output, "partial elaboration")
	assert.Equal(t, "1", res.Metadata[MetaExitCode])
	assert.True(t, strings.HasSuffix(res.ArtifactPath(), ".lean"))
}

func TestProve_CoqSuccess(t *testing.T) {
	fx := newFixture(t)
	coq := fx.script(t, "coqc", `grep -q "Qed." "$1"`)
	e := fx.engine(t, map[BackendID]string{Coq: coq}, nil)

	res := e.Prove(context.Background(), noticeFormula(), Coq)
	assert.Equal(t, StatusSuccess, res.Status, "errors: %v", res.Errors)
	assert.True(t, strings.HasSuffix(res.ArtifactPath(), "_coq.v"))
	assert.Empty(t, res.Metadata[MetaVerdict], "proof assistants report no sat verdict")
}

func TestProve_Timeout(t *testing.T) {
	fx := newFixture(t)
	pidFile := filepath.Join(fx.bin, "pid")
	z3 := fx.script(t, "z3", `echo $$ > "`+pidFile+`"
exec sleep 30`)
	timeout := 500 * time.Millisecond
	e := fx.engine(t, map[BackendID]string{Z3: z3}, func(o *Options) { o.Timeout = timeout })

	start := time.Now()
	res := e.Prove(context.Background(), noticeFormula(), Z3)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.Equal(t, []string{"execution timeout"}, res.Errors)
	assert.GreaterOrEqual(t, res.ElapsedSeconds(), timeout.Seconds())
	assert.Empty(t, res.Metadata[MetaExitCode])

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond,
		"backend process %d survived the timeout", pid)
}

func TestProve_TranslationFailure(t *testing.T) {
	fx := newFixture(t)
	z3 := fx.script(t, "z3", "echo sat")
	e := fx.engine(t, map[BackendID]string{Z3: z3}, func(o *Options) {
		o.Translators = map[BackendID]deontic.Translator{
			Z3: deontic.TranslatorFunc(func(deontic.Formula) deontic.TranslationOutcome {
				return deontic.Failed(errors.New("cannot express temporal clause"))
			}),
		}
	})

	res := e.Prove(context.Background(), noticeFormula(), Z3)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, []string{"cannot express temporal clause"}, res.Errors)
	assert.Empty(t, res.ArtifactPath())

	entries, err := os.ReadDir(e.WorkingDirectory())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProve_EmptyPropositionIsTranslationError(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, nil)

	res := e.Prove(context.Background(), deontic.Formula{ID: "blank", Operator: deontic.Permission}, Z3)
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Errors)
}

func TestProve_NoTranslatorRegistered(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{
		Z3:  fx.script(t, "z3", "echo sat"),
		Coq: fx.script(t, "coqc", "exit 0"),
	}, func(o *Options) {
		o.Translators = map[BackendID]deontic.Translator{Z3: DefaultTranslators()[Z3]}
	})

	res := e.Prove(context.Background(), noticeFormula(), Coq)
	assert.Equal(t, StatusUnsupported, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "no translator")
}

func TestProve_PanicBecomesError(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, func(o *Options) {
		o.Translators = map[BackendID]deontic.Translator{
			Z3: deontic.TranslatorFunc(func(deontic.Formula) deontic.TranslationOutcome {
				panic("translator bug")
			}),
		}
	})

	var res ProofResult
	require.NotPanics(t, func() {
		res = e.Prove(context.Background(), noticeFormula(), Z3)
	})
	assert.Equal(t, StatusError, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[len(res.Errors)-1], "translator bug")
}

func TestProve_NonZeroSMTExit(t *testing.T) {
	fx := newFixture(t)
	z3 := fx.script(t, "z3", `echo '(error "line 3: unknown constant")'; exit 1`)
	e := fx.engine(t, map[BackendID]string{Z3: z3}, nil)

	res := e.Prove(context.Background(), noticeFormula(), Z3)
	assert.Equal(t, StatusError, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "unknown constant")
}

func TestProve_NoAnswerIsFailure(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{CVC5: fx.script(t, "cvc5", "echo done")}, nil)

	res := e.Prove(context.Background(), noticeFormula(), CVC5)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, "unknown", res.Metadata[MetaVerdict])
}

func TestProveMany_DefaultsToDetectorSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{
		Z3:   fx.script(t, "z3", "echo sat"),
		CVC5: fx.missing("cvc5"),
	}, nil)

	results := e.ProveMany(context.Background(), noticeFormula(), nil)
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[Z3].Status)
	assert.Equal(t, StatusError, results[CVC5].Status)
	assert.NotEmpty(t, results[CVC5].Errors)

	// Same formula, distinct artifact per backend.
	assert.NotEqual(t, results[Z3].ArtifactPath(), results[CVC5].ArtifactPath())
}

func TestProveMany_OneEntryPerRequestedBackend(t *testing.T) {
	defer goleak.VerifyNone(t)

	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{
		Z3:   fx.script(t, "z3", "echo sat"),
		CVC5: fx.script(t, "cvc5", "echo unsat"),
	}, nil)

	results := e.ProveMany(context.Background(), noticeFormula(), []BackendID{Z3, CVC5, BackendID(42), Z3, Lean4})
	require.Len(t, results, 4)
	assert.Equal(t, StatusSuccess, results[Z3].Status)
	assert.Equal(t, StatusSuccess, results[CVC5].Status)
	assert.Equal(t, "unsat", results[CVC5].Metadata[MetaVerdict])
	assert.Equal(t, StatusUnsupported, results[BackendID(42)].Status)
	assert.Equal(t, StatusError, results[Lean4].Status)

	z3Artifact, err := os.ReadFile(results[Z3].ArtifactPath())
	require.NoError(t, err)
	cvc5Artifact, err := os.ReadFile(results[CVC5].ArtifactPath())
	require.NoError(t, err)
	assert.Equal(t, string(z3Artifact), string(cvc5Artifact), "SMT backends share one script")
}

func TestProveRuleSet_PreservesOrder(t *testing.T) {
	fx := newFixture(t)
	// Earlier formulas sleep longer so completion order is reversed.
	z3 := fx.script(t, "z3", `case "$1" in
*first*) sleep 0.3 ;;
*second*) sleep 0.1 ;;
esac
echo sat`)
	e := fx.engine(t, map[BackendID]string{Z3: z3}, nil)

	rs := deontic.RuleSet{
		Name: "lease",
		Formulas: []deontic.Formula{
			{ID: "first", Operator: deontic.Obligation, Agent: "Tenant", Proposition: "pay rent", Confidence: 1},
			{ID: "second", Operator: deontic.Prohibition, Agent: "Tenant", Proposition: "sublet", Confidence: 1},
			{ID: "third", Operator: deontic.Permission, Agent: "Landlord", Proposition: "inspect premises", Confidence: 1},
		},
	}
	results := e.ProveRuleSet(context.Background(), rs, Z3)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, rs.Formulas[i].ID, r.FormulaID)
		assert.Equal(t, StatusSuccess, r.Status)
		assert.Equal(t, "lease", r.Metadata[MetaRuleSet])
	}
}

func TestProveRuleSet_SimilarIDsKeepSeparateArtifacts(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, nil)

	rs := deontic.RuleSet{
		Name: "lease",
		Formulas: []deontic.Formula{
			{ID: "r-1", Operator: deontic.Obligation, Agent: "Tenant", Proposition: "pay rent", Confidence: 1},
			{ID: "r_1", Operator: deontic.Prohibition, Agent: "Tenant", Proposition: "smoke indoors", Confidence: 1},
		},
	}
	results := e.ProveRuleSet(context.Background(), rs, Z3)
	require.Len(t, results, 2)
	require.NotEqual(t, results[0].ArtifactPath(), results[1].ArtifactPath())

	first, err := os.ReadFile(results[0].ArtifactPath())
	require.NoError(t, err)
	assert.Contains(t, string(first), "prop_pay_rent")
	assert.NotContains(t, string(first), "prop_smoke_indoors")

	second, err := os.ReadFile(results[1].ArtifactPath())
	require.NoError(t, err)
	assert.Contains(t, string(second), "prop_smoke_indoors")
}

func TestCheckConsistency_EmptyRuleSet(t *testing.T) {
	fx := newFixture(t)
	z3 := fx.script(t, "z3", `grep -q "check-sat" "$1" && echo sat`)
	e := fx.engine(t, map[BackendID]string{Z3: z3}, nil)

	res := e.CheckConsistency(context.Background(), deontic.RuleSet{Name: "empty"}, Z3)
	assert.Equal(t, StatusSuccess, res.Status, "errors: %v", res.Errors)
	assert.Equal(t, "0", res.Metadata[MetaAsserted])
	assert.Equal(t, "sat", res.Metadata[MetaVerdict])

	content, err := os.ReadFile(res.ArtifactPath())
	require.NoError(t, err)
	assert.Equal(t, smtPreamble+"(check-sat)\n", string(content))
	assert.Equal(t, ConsistencyArtifactName(Z3, "empty"), filepath.Base(res.ArtifactPath()))
	assert.Equal(t, KindConsistency, res.Metadata[MetaKind])
}

func TestCheckConsistency_SkipsFailedTranslations(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo unsat")}, nil)

	rs := deontic.RuleSet{
		Name: "conflict",
		Formulas: []deontic.Formula{
			deontic.NewFormula(deontic.Obligation, "Tenant", "pay rent", 1, ""),
			{ID: "broken", Operator: deontic.Obligation, Proposition: "   "},
			deontic.NewFormula(deontic.Prohibition, "Tenant", "pay rent", 1, ""),
		},
	}
	res := e.CheckConsistency(context.Background(), rs, Z3)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "2", res.Metadata[MetaAsserted])
	assert.Equal(t, "unsat", res.Metadata[MetaVerdict])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "skipped")

	content, err := os.ReadFile(res.ArtifactPath())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(content), "(assert (")-2, "two formula assertions after the two axioms")
	assert.Equal(t, 1, strings.Count(string(content), "(declare-fun prop_pay_rent () Proposition)"))
}

func TestCheckConsistency_ProofAssistantUnsupported(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{
		Lean4: fx.script(t, "lean", "exit 0"),
		Coq:   fx.script(t, "coqc", "exit 0"),
	}, nil)

	for _, b := range []BackendID{Lean4, Coq, BackendID(7)} {
		res := e.CheckConsistency(context.Background(), deontic.RuleSet{Name: "x"}, b)
		assert.Equal(t, StatusUnsupported, res.Status, "backend %s", b)
		assert.NotEmpty(t, res.Errors)
	}
}

func TestAutoInstall_OneShotThenReprobe(t *testing.T) {
	fx := newFixture(t)
	target := filepath.Join(fx.bin, "z3")

	var calls atomic.Int32
	installer := InstallerFunc(func(ctx context.Context, backends []BackendID) error {
		calls.Add(1)
		assert.Equal(t, []BackendID{Z3}, backends)
		return os.WriteFile(target, []byte("#!/bin/sh\n"+versionPrelude+"echo sat\n"), 0755)
	})
	e := fx.engine(t, map[BackendID]string{Z3: target}, func(o *Options) {
		o.AutoInstall = true
		o.AutoInstallBackends = map[BackendID]bool{Z3: true}
		o.Installer = installer
	})

	avail, _ := e.Detector().Lookup(Z3)
	require.False(t, avail.Available)

	res := e.Prove(context.Background(), noticeFormula(), Z3)
	assert.Equal(t, StatusSuccess, res.Status, "errors: %v", res.Errors)
	res = e.Prove(context.Background(), noticeFormula(), Z3)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAutoInstall_FailureIsNotFatalAndNotRetried(t *testing.T) {
	fx := newFixture(t)

	var calls atomic.Int32
	e := fx.engine(t, map[BackendID]string{CVC5: fx.missing("cvc5")}, func(o *Options) {
		o.AutoInstall = true
		o.AutoInstallBackends = map[BackendID]bool{CVC5: true}
		o.Installer = InstallerFunc(func(context.Context, []BackendID) error {
			calls.Add(1)
			return errors.New("network unreachable")
		})
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Prove(context.Background(), noticeFormula(), CVC5)
			assert.Equal(t, StatusError, res.Status)
			assert.NotEmpty(t, res.Errors)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestAutoInstall_DisabledPerBackend(t *testing.T) {
	fx := newFixture(t)

	var calls atomic.Int32
	e := fx.engine(t, map[BackendID]string{Lean4: fx.missing("lean")}, func(o *Options) {
		o.AutoInstall = true
		o.AutoInstallBackends = map[BackendID]bool{Z3: true}
		o.Installer = InstallerFunc(func(context.Context, []BackendID) error {
			calls.Add(1)
			return nil
		})
	})

	res := e.Prove(context.Background(), noticeFormula(), Lean4)
	assert.Equal(t, StatusError, res.Status)
	assert.Zero(t, calls.Load())
}

func TestCommandInstaller(t *testing.T) {
	fx := newFixture(t)
	argsFile := filepath.Join(fx.bin, "install-args")
	script := filepath.Join(fx.bin, "prover-install")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > \""+argsFile+"\"\n"), 0755))

	ci := &CommandInstaller{Command: []string{script, "--quiet"}, Timeout: 5 * time.Second}
	require.NoError(t, ci.Install(context.Background(), []BackendID{Z3, CVC5}))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--quiet z3 cvc5", strings.TrimSpace(string(data)))

	failing := filepath.Join(fx.bin, "failing-install")
	require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\necho boom 1>&2\nexit 2\n"), 0755))
	err = (&CommandInstaller{Command: []string{failing}, Timeout: 5 * time.Second}).Install(context.Background(), []BackendID{Z3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	err = (&CommandInstaller{}).Install(context.Background(), []BackendID{Z3})
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	fx := newFixture(t)
	e := fx.engine(t, map[BackendID]string{
		Z3:    fx.script(t, "z3", "echo sat"),
		Lean4: fx.script(t, "lean", "exit 0"),
		Coq:   fx.missing("coqc"),
	}, func(o *Options) { o.Timeout = 3 * time.Second })

	status := e.GetStatus(context.Background())
	assert.Equal(t, []BackendID{Z3, Lean4}, status.AvailableBackends)
	assert.Equal(t, e.WorkingDirectory(), status.WorkingDirectory)
	assert.Equal(t, 3*time.Second, status.Timeout)
	assert.Equal(t, Z3, status.DefaultBackend)
	require.Len(t, status.SmokeTests, 2)
	assert.Equal(t, StatusSuccess, status.SmokeTests[Z3].Status)
	assert.Equal(t, StatusSuccess, status.SmokeTests[Lean4].Status)
	assert.False(t, status.Backends[Coq].Available)
	assert.Equal(t, "fake-backend 1.0", status.Backends[Z3].Version)
}

type memoryRecorder struct {
	mu      sync.Mutex
	results []ProofResult
}

func (m *memoryRecorder) Record(_ context.Context, r ProofResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func TestRecorderReceivesEveryTerminalResult(t *testing.T) {
	fx := newFixture(t)
	rec := &memoryRecorder{}
	e := fx.engine(t, map[BackendID]string{Z3: fx.script(t, "z3", "echo sat")}, func(o *Options) {
		o.Recorder = rec
	})

	e.Prove(context.Background(), noticeFormula(), Z3)
	e.Prove(context.Background(), noticeFormula(), BackendID(50))
	e.CheckConsistency(context.Background(), deontic.RuleSet{Name: "r"}, Z3)
	e.GetStatus(context.Background()) // smoke tests are not recorded

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.results, 3)
	assert.Equal(t, StatusSuccess, rec.results[0].Status)
	assert.Equal(t, StatusUnsupported, rec.results[1].Status)
	assert.Equal(t, "r", rec.results[2].FormulaID)
}

func TestRefreshAvailability(t *testing.T) {
	fx := newFixture(t)
	target := filepath.Join(fx.bin, "cvc5")
	e := fx.engine(t, map[BackendID]string{CVC5: target}, nil)

	assert.Equal(t, map[BackendID]bool{CVC5: false}, e.RefreshAvailability(context.Background()))

	fx.script(t, "cvc5", "echo sat")
	assert.Equal(t, map[BackendID]bool{CVC5: true}, e.RefreshAvailability(context.Background()))
	assert.Equal(t, StatusSuccess, e.Prove(context.Background(), noticeFormula(), CVC5).Status)
}

func TestNew_RejectsInvalidDefaultBackend(t *testing.T) {
	_, err := New(context.Background(), Options{DefaultBackend: BackendID(9), WorkingDirectory: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

// processGone treats zombies as dead: a killed child reparented to a
// container init may linger unreaped.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	s := string(stat)
	if i := strings.LastIndexByte(s, ')'); i >= 0 && i+2 < len(s) {
		return s[i+2] == 'Z'
	}
	return false
}
