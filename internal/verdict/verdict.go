// Package verdict derives cross-backend verdicts from proof results.
//
// Each observed result becomes a Mangle fact proof_result(Formula, /backend, /status)
// and a small stratified program classifies every formula as proved, refuted,
// contested or inconclusive. Only success and failure count as evidence;
// timeouts, errors and unsupported results never decide a verdict.
package verdict

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"deonticprover/internal/logging"
	"deonticprover/internal/prover"
)

// program holds the verdict rules.
const program = `
Decl proof_result(Formula, Backend, Status).

attempted(F) :- proof_result(F, _, _).
supports(F, B) :- proof_result(F, B, /success).
opposes(F, B) :- proof_result(F, B, /failure).
positive(F) :- supports(F, _).
negative(F) :- opposes(F, _).

proved(F) :- positive(F), !negative(F).
refuted(F) :- negative(F), !positive(F).
contested(F) :- positive(F), negative(F).
inconclusive(F) :- attempted(F), !positive(F), !negative(F).
`

// Kind is the derived verdict for one formula.
type Kind string

const (
	// Proved: at least one backend succeeded and none failed.
	Proved Kind = "proved"
	// Refuted: at least one backend failed and none succeeded.
	Refuted Kind = "refuted"
	// Contested: backends disagree.
	Contested Kind = "contested"
	// Inconclusive: only timeouts, errors or unsupported results.
	Inconclusive Kind = "inconclusive"
)

var kindOrder = []Kind{Proved, Refuted, Contested, Inconclusive}

// Observation is one backend's status for one formula.
type Observation struct {
	FormulaID string
	Backend   string
	Status    prover.Status
}

// Verdict is the outcome for one formula.
type Verdict struct {
	FormulaID  string
	Kind       Kind
	Supporting []string
	Opposing   []string
}

// Report maps formula ids to verdicts.
type Report map[string]Verdict

// Sorted returns the verdicts ordered by formula id.
func (r Report) Sorted() []Verdict {
	out := make([]Verdict, 0, len(r))
	for _, v := range r {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormulaID < out[j].FormulaID })
	return out
}

// Count returns how many formulas received kind k.
func (r Report) Count(k Kind) int {
	n := 0
	for _, v := range r {
		if v.Kind == k {
			n++
		}
	}
	return n
}

// FromResults converts engine results into observations.
func FromResults(results []prover.ProofResult) []Observation {
	obs := make([]Observation, 0, len(results))
	for _, r := range results {
		obs = append(obs, Observation{FormulaID: r.FormulaID, Backend: r.Backend.String(), Status: r.Status})
	}
	return obs
}

// Deriver evaluates the verdict program. It is safe for concurrent use;
// every Derive call evaluates against a fresh fact store.
type Deriver struct {
	programInfo *analysis.ProgramInfo
}

var (
	defaultOnce    sync.Once
	defaultDeriver *Deriver
	defaultErr     error
)

// NewDeriver parses and analyzes the verdict program.
func NewDeriver() (*Deriver, error) {
	unit, err := parse.Unit(bytes.NewReader([]byte(program)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse verdict program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze verdict program: %w", err)
	}
	return &Deriver{programInfo: info}, nil
}

// Derive runs the shared Deriver.
func Derive(obs []Observation) (Report, error) {
	defaultOnce.Do(func() {
		defaultDeriver, defaultErr = NewDeriver()
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultDeriver.Derive(obs)
}

// Derive classifies every formula that appears in obs.
func (d *Deriver) Derive(obs []Observation) (Report, error) {
	timer := logging.StartTimer(logging.CategoryVerdict, "Verdict derivation")
	defer timer.Stop()

	store := factstore.NewSimpleInMemoryStore()
	sym := ast.PredicateSym{Symbol: "proof_result", Arity: 3}

	backends := make(map[string]string)
	for _, o := range obs {
		if o.FormulaID == "" {
			return nil, fmt.Errorf("observation for backend %q has no formula id", o.Backend)
		}
		backend, err := nameConstant(o.Backend)
		if err != nil {
			return nil, err
		}
		status, err := nameConstant(string(o.Status))
		if err != nil {
			return nil, err
		}
		backends[backend.Symbol] = o.Backend
		store.Add(ast.NewAtom(sym.Symbol, ast.String(o.FormulaID), backend, status))
	}

	stats, err := mengine.EvalProgramWithStats(d.programInfo, store)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate verdict program: %w", err)
	}
	logging.Get(logging.CategoryVerdict).Debug("Evaluated %d observations: %+v", len(obs), stats)

	report := make(Report)
	for _, k := range kindOrder {
		err := store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: string(k), Arity: 1}), func(a ast.Atom) error {
			id, err := stringArg(a, 0)
			if err != nil {
				return err
			}
			report[id] = Verdict{FormulaID: id, Kind: k}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := collectBackends(store, "supports", backends, report, func(v *Verdict, b string) {
		v.Supporting = append(v.Supporting, b)
	}); err != nil {
		return nil, err
	}
	if err := collectBackends(store, "opposes", backends, report, func(v *Verdict, b string) {
		v.Opposing = append(v.Opposing, b)
	}); err != nil {
		return nil, err
	}

	for id, v := range report {
		sort.Strings(v.Supporting)
		sort.Strings(v.Opposing)
		report[id] = v
	}

	logging.Verdict("Derived verdicts for %d formulas: proved=%d refuted=%d contested=%d inconclusive=%d",
		len(report), report.Count(Proved), report.Count(Refuted), report.Count(Contested), report.Count(Inconclusive))
	return report, nil
}

func collectBackends(store factstore.FactStore, pred string, backends map[string]string, report Report, add func(*Verdict, string)) error {
	return store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: pred, Arity: 2}), func(a ast.Atom) error {
		id, err := stringArg(a, 0)
		if err != nil {
			return err
		}
		c, ok := a.Args[1].(ast.Constant)
		if !ok {
			return fmt.Errorf("%s: backend is not a constant: %v", pred, a.Args[1])
		}
		v, ok := report[id]
		if !ok {
			return nil
		}
		name := backends[c.Symbol]
		if name == "" {
			name = strings.TrimPrefix(c.Symbol, "/")
		}
		add(&v, name)
		report[id] = v
		return nil
	})
}

func stringArg(a ast.Atom, i int) (string, error) {
	c, ok := a.Args[i].(ast.Constant)
	if !ok || c.Type != ast.StringType {
		return "", fmt.Errorf("%s: argument %d is not a string: %v", a.Predicate.Symbol, i, a.Args[i])
	}
	return c.Symbol, nil
}

// nameConstant maps a backend or status label onto a Mangle name constant.
func nameConstant(s string) (ast.Constant, error) {
	var b strings.Builder
	b.WriteByte('/')
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 1 {
		return ast.Constant{}, fmt.Errorf("empty label")
	}
	return ast.Name(b.String())
}
