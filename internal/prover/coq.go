package prover

import (
	"strings"

	"deonticprover/internal/deontic"
)

const coqPreamble = `(* deontic axioms *)
Parameter Agent : Type.
Parameter Proposition : Type.
Parameter Obligated Permitted Forbidden : Agent -> Proposition -> Prop.
Axiom no_conflict : forall (a : Agent) (p : Proposition), ~ (Obligated a p /\ Forbidden a p).
Axiom obligation_implies_permission : forall (a : Agent) (p : Proposition), Obligated a p -> Permitted a p.
`

const coqConsistencyLemma = `Lemma deontic_consistency : forall (a : Agent) (p : Proposition), Obligated a p -> ~ Forbidden a p.
Proof. intros a p h hf. apply (no_conflict a p). split; assumption. Qed.
`

// coqComment breaks comment delimiters; Coq comments nest, so "O(*, p)" would open one.
var coqComment = strings.NewReplacer("(*", "( *", "*)", "* )")

func buildCoq(f deontic.Formula, t deontic.TranslationOutcome) string {
	name := t.PropositionID
	if name == "" {
		name = "formula_" + deontic.FileStem(f.ID)
	}

	var b strings.Builder
	b.WriteString(coqPreamble)
	if t.AgentID != "" {
		b.WriteString("Parameter " + t.AgentID + " : Agent.\n")
	}
	if t.PropositionSymbol != "" {
		b.WriteString("Parameter " + t.PropositionSymbol + " : Proposition.\n")
	}
	b.WriteString("\n(* " + coqComment.Replace(oneLine(f.String())) + " *)\n")
	b.WriteString("Definition " + name + " : Prop := " + t.Fragment + ".\n\n")
	b.WriteString(coqConsistencyLemma)
	return b.String()
}
