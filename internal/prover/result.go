package prover

import (
	"time"
	"unicode/utf8"
)

// Status is the outcome of one proof run. No other values are ever produced.
type Status string

const (
	// StatusSuccess: the backend output matched a recognized success pattern.
	StatusSuccess Status = "success"

	// StatusFailure: the backend completed but its output is not a recognized success.
	StatusFailure Status = "failure"

	// StatusTimeout: the backend exceeded the configured wall-clock bound and was killed.
	StatusTimeout Status = "timeout"

	// StatusError: not installed, translation failed, or an uninterpretable outcome.
	StatusError Status = "error"

	// StatusUnsupported: unknown backend, no translator, or an operation the backend lacks.
	StatusUnsupported Status = "unsupported"
)

// Metadata keys set on ProofResult.Metadata.
const (
	MetaArtifactPath = "artifact_path"
	MetaExecutable   = "executable"
	MetaExitCode     = "exit_code"
	MetaRequestID    = "request_id"
	MetaVerdict      = "verdict" // sat, unsat or unknown for SMT backends
	MetaRuleSet      = "rule_set"
	MetaAsserted     = "asserted"
	MetaKind         = "kind" // KindFormula or KindConsistency
)

// Values of MetaKind.
const (
	KindFormula     = "formula"
	KindConsistency = "consistency"
)

// ProofResult is the immutable outcome of one prove or consistency call.
type ProofResult struct {
	Backend BackendID `json:"backend"`

	// Formula is the string rendering of the formula (or rule set) proved.
	Formula   string `json:"formula"`
	FormulaID string `json:"formula_id"`

	Status Status `json:"status"`

	// Output is the raw captured stdout; may be large.
	Output string `json:"output,omitempty"`

	Elapsed  time.Duration     `json:"elapsed"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ElapsedSeconds returns the wall-clock time in seconds.
func (r ProofResult) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// Succeeded reports whether the status is StatusSuccess.
func (r ProofResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ArtifactPath returns the generated artifact path, if one was written.
func (r ProofResult) ArtifactPath() string {
	return r.Metadata[MetaArtifactPath]
}

// TruncatedOutput returns at most n bytes of Output for display.
func (r ProofResult) TruncatedOutput(n int) string {
	if n <= 0 || len(r.Output) <= n {
		return r.Output
	}
	return TruncateUTF8(r.Output, n) + "... (truncated)"
}

// TruncateUTF8 cuts s to at most n bytes without splitting a rune.
func TruncateUTF8(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
