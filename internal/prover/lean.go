package prover

import (
	"strings"

	"deonticprover/internal/deontic"
)

const leanPreamble = `-- deontic axioms
axiom Agent : Type
axiom Proposition : Type
axiom Obligated : Agent -> Proposition -> Prop
axiom Permitted : Agent -> Proposition -> Prop
axiom Forbidden : Agent -> Proposition -> Prop
axiom no_conflict : forall (a : Agent) (p : Proposition), Not (And (Obligated a p) (Forbidden a p))
axiom obligation_implies_permission : forall (a : Agent) (p : Proposition), Obligated a p -> Permitted a p
`

// leanConsistencyLemma elaborates only if the kernel actually checks proofs.
const leanConsistencyLemma = `theorem deontic_consistency (a : Agent) (p : Proposition) (h : Obligated a p) : Not (Forbidden a p) :=
  fun hf => no_conflict a p (And.intro h hf)
`

// buildLean wraps the fragment in a named Prop definition.
func buildLean(f deontic.Formula, t deontic.TranslationOutcome) string {
	name := t.PropositionID
	if name == "" {
		name = "formula_" + deontic.FileStem(f.ID)
	}

	var b strings.Builder
	b.WriteString(leanPreamble)
	if t.AgentID != "" {
		b.WriteString("axiom " + t.AgentID + " : Agent\n")
	}
	if t.PropositionSymbol != "" {
		b.WriteString("axiom " + t.PropositionSymbol + " : Proposition\n")
	}
	b.WriteString("\n-- " + oneLine(f.String()) + "\n")
	b.WriteString("def " + name + " : Prop := " + t.Fragment + "\n\n")
	b.WriteString(leanConsistencyLemma)
	return b.String()
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
