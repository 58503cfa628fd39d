// Package deontic defines the logic-statement values the prover consumes.
//
// Formulas are produced upstream (by a formula-extraction collaborator or a
// rule-set file) and are immutable once constructed. Translators convert a
// formula into one backend's native syntax fragment.
package deontic

import (
	"errors"
	"fmt"
	"strings"
)

// Operator is the deontic modality of a formula.
type Operator string

const (
	// Obligation: the agent must bring about the proposition.
	Obligation Operator = "obligation"

	// Permission: the agent may bring about the proposition.
	Permission Operator = "permission"

	// Prohibition: the agent must not bring about the proposition.
	Prohibition Operator = "prohibition"
)

var (
	// ErrInvalidOperator is returned when an operator string is not one of the three modalities.
	ErrInvalidOperator = errors.New("invalid deontic operator")

	// ErrEmptyProposition is returned when a formula has no proposition text.
	ErrEmptyProposition = errors.New("empty proposition")
)

// ParseOperator converts user input (case-insensitive, short forms allowed) to an Operator.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "obligation", "o", "obligatory", "must":
		return Obligation, nil
	case "permission", "p", "permitted", "may":
		return Permission, nil
	case "prohibition", "f", "forbidden", "must_not":
		return Prohibition, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
}

// Symbol returns the single-letter modal symbol used in renderings.
func (o Operator) Symbol() string {
	switch o {
	case Obligation:
		return "O"
	case Permission:
		return "P"
	case Prohibition:
		return "F"
	default:
		return "?"
	}
}

// Valid reports whether o is one of the three modalities.
func (o Operator) Valid() bool {
	return o == Obligation || o == Permission || o == Prohibition
}

// Formula is an immutable deontic statement over an agent and a proposition.
type Formula struct {
	// ID is stable across runs; artifact file names derive from it.
	ID          string   `json:"id" yaml:"id"`
	Operator    Operator `json:"operator" yaml:"operator"`
	Proposition string   `json:"proposition" yaml:"proposition"`

	// Agent is optional; an empty agent means "any agent".
	Agent      string  `json:"agent,omitempty" yaml:"agent,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// SourceText is the natural-language clause the formula was extracted from.
	SourceText string `json:"source_text,omitempty" yaml:"source,omitempty"`
}

// NewFormula builds a formula and assigns it a content-derived ID.
func NewFormula(op Operator, agent, proposition string, confidence float64, source string) Formula {
	f := Formula{
		Operator:    op,
		Proposition: proposition,
		Agent:       agent,
		Confidence:  confidence,
		SourceText:  source,
	}
	f.ID = StableID(f)
	return f
}

// String renders the formula as O(agent, proposition).
func (f Formula) String() string {
	agent := f.Agent
	if agent == "" {
		agent = "*"
	}
	return fmt.Sprintf("%s(%s, %s)", f.Operator.Symbol(), agent, f.Proposition)
}

// Validate checks the fields every translator relies on.
func (f Formula) Validate() error {
	if !f.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperator, f.Operator)
	}
	if strings.TrimSpace(f.Proposition) == "" {
		return ErrEmptyProposition
	}
	return nil
}

// RuleSet is an ordered collection of formulas sharing a name.
type RuleSet struct {
	Name     string    `json:"name" yaml:"name"`
	Formulas []Formula `json:"formulas" yaml:"formulas"`
}

// TranslationOutcome is what a Translator hands back for one formula.
type TranslationOutcome struct {
	Success  bool
	Fragment string
	Errors   []string

	// PropositionID names the definition generated by proof-assistant builders.
	// Empty means the builder derives one from the formula ID.
	PropositionID string

	// AgentID and PropositionSymbol are the backend identifiers the fragment
	// refers to; builders declare them in the artifact header.
	AgentID           string
	PropositionSymbol string

	// Metadata carries translator-specific diagnostics.
	Metadata map[string]string
}

// Failed builds an unsuccessful outcome from one or more errors.
func Failed(errs ...error) TranslationOutcome {
	out := TranslationOutcome{Success: false}
	for _, err := range errs {
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
		}
	}
	if len(out.Errors) == 0 {
		out.Errors = []string{"translation failed"}
	}
	return out
}

// Translator converts a formula into a backend's native syntax fragment.
type Translator interface {
	Translate(f Formula) TranslationOutcome
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(f Formula) TranslationOutcome

// Translate calls fn(f).
func (fn TranslatorFunc) Translate(f Formula) TranslationOutcome {
	return fn(f)
}
