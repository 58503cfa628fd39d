package prover

import (
	"strings"

	"deonticprover/internal/deontic"
)

// smtPreamble declares the deontic vocabulary and the two shared axioms:
// nothing is both obligated and forbidden, and obligation implies permission.
// Options precede set-logic because cvc5 rejects them afterwards.
const smtPreamble = `; deontic axioms
(set-option :produce-models true)
(set-logic ALL)
(declare-sort Agent 0)
(declare-sort Proposition 0)
(declare-fun obligated (Agent Proposition) Bool)
(declare-fun permitted (Agent Proposition) Bool)
(declare-fun forbidden (Agent Proposition) Bool)
(assert (forall ((a Agent) (p Proposition)) (not (and (obligated a p) (forbidden a p)))))
(assert (forall ((a Agent) (p Proposition)) (=> (obligated a p) (permitted a p))))
`

// buildSMT renders a single-formula script that also asks for a model.
func buildSMT(f deontic.Formula, t deontic.TranslationOutcome) string {
	var b strings.Builder
	b.WriteString(smtPreamble)
	writeSMTDeclarations(&b, []deontic.TranslationOutcome{t})
	b.WriteString("; formula ")
	b.WriteString(smtComment(f.String()))
	b.WriteString("\n(assert ")
	b.WriteString(t.Fragment)
	b.WriteString(")\n(check-sat)\n(get-model)\n")
	return b.String()
}

// buildSMTConsistency asserts every fragment once and checks joint satisfiability.
// An empty slice yields the axioms alone.
func buildSMTConsistency(fragments []deontic.TranslationOutcome) string {
	var b strings.Builder
	b.WriteString(smtPreamble)
	writeSMTDeclarations(&b, fragments)
	for _, t := range fragments {
		b.WriteString("(assert ")
		b.WriteString(t.Fragment)
		b.WriteString(")\n")
	}
	b.WriteString("(check-sat)\n")
	return b.String()
}

// writeSMTDeclarations declares each agent and proposition constant once,
// in first-appearance order.
func writeSMTDeclarations(b *strings.Builder, fragments []deontic.TranslationOutcome) {
	seen := make(map[string]bool)
	declare := func(sym, sort string) {
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		b.WriteString("(declare-fun ")
		b.WriteString(sym)
		b.WriteString(" () ")
		b.WriteString(sort)
		b.WriteString(")\n")
	}
	for _, t := range fragments {
		declare(t.AgentID, "Agent")
		declare(t.PropositionSymbol, "Proposition")
	}
}

// smtComment keeps a rendering on one comment line.
func smtComment(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
