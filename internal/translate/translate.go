// Package translate holds the default formula translators.
//
// SMT-LIB syntax is shared by Z3 and CVC5, so one SMT translator serves both.
// Lean 4 and Coq share predicate names but differ in how applications are
// rendered, which only matters once formulas are nested; both are kept
// separate so each can evolve with its toolchain.
package translate

import (
	"fmt"

	"deonticprover/internal/deontic"
)

// Predicate names used by every backend preamble.
const (
	smtObligated = "obligated"
	smtPermitted = "permitted"
	smtForbidden = "forbidden"

	paObligated = "Obligated"
	paPermitted = "Permitted"
	paForbidden = "Forbidden"
)

// symbols resolves the agent and proposition identifiers for f, or returns
// a failed outcome explaining why it cannot.
func symbols(f deontic.Formula) (agent, prop string, failed *deontic.TranslationOutcome) {
	if err := f.Validate(); err != nil {
		out := deontic.Failed(err)
		return "", "", &out
	}
	prop = deontic.PropositionSymbol(f.Proposition)
	if prop == "" {
		out := deontic.Failed(fmt.Errorf("proposition %q has no identifier characters", f.Proposition))
		return "", "", &out
	}
	return deontic.AgentSymbol(f.Agent), prop, nil
}

// SMT renders formulas as SMT-LIB boolean terms: (obligated agent prop).
type SMT struct{}

// Translate implements deontic.Translator.
func (SMT) Translate(f deontic.Formula) deontic.TranslationOutcome {
	agent, prop, failed := symbols(f)
	if failed != nil {
		return *failed
	}

	var pred string
	switch f.Operator {
	case deontic.Obligation:
		pred = smtObligated
	case deontic.Permission:
		pred = smtPermitted
	case deontic.Prohibition:
		pred = smtForbidden
	}

	return deontic.TranslationOutcome{
		Success:           true,
		Fragment:          fmt.Sprintf("(%s %s %s)", pred, agent, prop),
		AgentID:           agent,
		PropositionSymbol: prop,
		Metadata:          map[string]string{"dialect": "smtlib2"},
	}
}

// Lean renders formulas as Lean 4 propositions: Obligated agent prop.
type Lean struct{}

// Translate implements deontic.Translator.
func (Lean) Translate(f deontic.Formula) deontic.TranslationOutcome {
	agent, prop, failed := symbols(f)
	if failed != nil {
		return *failed
	}

	return deontic.TranslationOutcome{
		Success:           true,
		Fragment:          fmt.Sprintf("%s %s %s", proofAssistantPredicate(f.Operator), agent, prop),
		PropositionID:     "formula_" + deontic.FileStem(f.ID),
		AgentID:           agent,
		PropositionSymbol: prop,
		Metadata:          map[string]string{"dialect": "lean4"},
	}
}

// Coq renders formulas as Gallina propositions: Obligated agent prop.
type Coq struct{}

// Translate implements deontic.Translator.
func (Coq) Translate(f deontic.Formula) deontic.TranslationOutcome {
	agent, prop, failed := symbols(f)
	if failed != nil {
		return *failed
	}

	return deontic.TranslationOutcome{
		Success:           true,
		Fragment:          fmt.Sprintf("(%s %s %s)", proofAssistantPredicate(f.Operator), agent, prop),
		AgentID:           agent,
		PropositionSymbol: prop,
		Metadata:          map[string]string{"dialect": "gallina"},
	}
}

func proofAssistantPredicate(op deontic.Operator) string {
	switch op {
	case deontic.Obligation:
		return paObligated
	case deontic.Permission:
		return paPermitted
	default:
		return paForbidden
	}
}
