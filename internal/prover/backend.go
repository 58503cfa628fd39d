// Package prover runs deontic formulas through external decision procedures.
//
// The engine translates a formula, renders a backend-native artifact, runs
// the backend executable on it under a hard timeout and classifies the raw
// process outcome into a closed Status taxonomy. Public operations never
// return errors and never panic: every failure is a ProofResult.
package prover

import (
	"fmt"
	"strings"

	"deonticprover/internal/deontic"
	"deonticprover/internal/translate"
)

// BackendID identifies one of the supported external verification tools.
// The zero value is not a backend.
type BackendID int

const (
	Z3 BackendID = iota + 1
	CVC5
	Lean4
	Coq
)

// AllBackends lists every supported backend in canonical order.
func AllBackends() []BackendID {
	return []BackendID{Z3, CVC5, Lean4, Coq}
}

// String returns the configuration name of the backend.
func (b BackendID) String() string {
	switch b {
	case Z3:
		return "z3"
	case CVC5:
		return "cvc5"
	case Lean4:
		return "lean4"
	case Coq:
		return "coq"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Valid reports whether b is in the closed backend set.
func (b BackendID) Valid() bool {
	_, ok := lookupBackend(b)
	return ok
}

// ParseBackend maps a configuration name (case-insensitive) to a BackendID.
func ParseBackend(name string) (BackendID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "z3", "smt-z3":
		return Z3, nil
	case "cvc5", "smt-cvc5":
		return CVC5, nil
	case "lean4", "lean":
		return Lean4, nil
	case "coq", "coqc":
		return Coq, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", name)
	}
}

// MarshalText encodes the backend by name so JSON map keys stay readable.
func (b BackendID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts any name ParseBackend does.
func (b *BackendID) UnmarshalText(text []byte) error {
	id, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

// ParseBackends parses a list of backend names, failing on the first unknown one.
func ParseBackends(names []string) ([]BackendID, error) {
	out := make([]BackendID, 0, len(names))
	for _, n := range names {
		b, err := ParseBackend(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// backendSpec binds a backend to its executable, artifact builders and classifier.
type backendSpec struct {
	executable  string
	extension   string
	versionArgs []string
	smt         bool // answers sat, unsat or unknown

	build       func(f deontic.Formula, t deontic.TranslationOutcome) string
	consistency func(fragments []deontic.TranslationOutcome) string // nil: unsupported
	classify    func(run RunOutcome) Classification
}

// lookupBackend is the only place a BackendID turns into behaviour.
// Adding a backend means adding a constant and a case here.
func lookupBackend(b BackendID) (backendSpec, bool) {
	switch b {
	case Z3:
		return backendSpec{
			executable:  "z3",
			extension:   "smt2",
			versionArgs: []string{"--version"},
			smt:         true,
			build:       buildSMT,
			consistency: buildSMTConsistency,
			classify:    classifyZ3,
		}, true
	case CVC5:
		return backendSpec{
			executable:  "cvc5",
			extension:   "smt2",
			versionArgs: []string{"--version"},
			smt:         true,
			build:       buildSMT,
			consistency: buildSMTConsistency,
			classify:    classifyCVC5,
		}, true
	case Lean4:
		return backendSpec{
			executable:  "lean",
			extension:   "lean",
			versionArgs: []string{"--version"},
			build:       buildLean,
			classify:    classifyProofAssistant,
		}, true
	case Coq:
		return backendSpec{
			executable:  "coqc",
			extension:   "v",
			versionArgs: []string{"--version"},
			build:       buildCoq,
			classify:    classifyProofAssistant,
		}, true
	default:
		return backendSpec{}, false
	}
}

// DefaultExecutable returns the executable name searched for a backend, or "".
func DefaultExecutable(b BackendID) string {
	spec, ok := lookupBackend(b)
	if !ok {
		return ""
	}
	return spec.executable
}

// SupportsConsistency reports whether b can run joint consistency checks.
func SupportsConsistency(b BackendID) bool {
	spec, ok := lookupBackend(b)
	return ok && spec.consistency != nil
}

// DefaultTranslators returns the built-in translators. Z3 and CVC5 share one
// SMT-LIB translator.
func DefaultTranslators() map[BackendID]deontic.Translator {
	smt := translate.SMT{}
	return map[BackendID]deontic.Translator{
		Z3:    smt,
		CVC5:  smt,
		Lean4: translate.Lean{},
		Coq:   translate.Coq{},
	}
}
