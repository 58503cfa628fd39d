package prover

import (
	"fmt"
	"strings"
	"time"
)

// errExecutionTimeout is the single error attached to every timed-out run.
const errExecutionTimeout = "execution timeout"

// RunOutcome is the raw result of one backend process.
type RunOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
}

// Classification is a classifier's verdict on a RunOutcome.
type Classification struct {
	Status   Status
	Output   string
	Errors   []string
	Warnings []string
}

// Classify maps a raw run to a Status using the backend's own heuristics.
// Unknown backends classify as StatusUnsupported.
func Classify(b BackendID, run RunOutcome) Classification {
	spec, ok := lookupBackend(b)
	if !ok {
		return Classification{
			Status: StatusUnsupported,
			Errors: []string{fmt.Sprintf("unsupported backend %s", b)},
		}
	}
	if run.TimedOut {
		return Classification{
			Status:   StatusTimeout,
			Output:   run.Stdout,
			Errors:   []string{errExecutionTimeout},
			Warnings: extractWarnings(run),
		}
	}
	c := spec.classify(run)
	c.Warnings = append(c.Warnings, extractWarnings(run)...)
	return c
}

// classifyZ3 treats any answer mentioning sat as a conclusive run.
//
// The unsat branch can never fire on its own because "unsat" contains "sat";
// both answers classify as success either way. CVC5 reaches the same result
// through a single combined test. The two paths are kept apart on purpose.
func classifyZ3(run RunOutcome) Classification {
	if run.ExitCode != 0 {
		return exitError("z3", run)
	}
	if strings.Contains(run.Stdout, "sat") {
		return Classification{Status: StatusSuccess, Output: run.Stdout}
	}
	if strings.Contains(run.Stdout, "unsat") {
		return Classification{Status: StatusSuccess, Output: run.Stdout}
	}
	return Classification{
		Status: StatusFailure,
		Output: run.Stdout,
		Errors: []string{"z3 produced no satisfiability answer"},
	}
}

func classifyCVC5(run RunOutcome) Classification {
	if run.ExitCode != 0 {
		return exitError("cvc5", run)
	}
	if strings.Contains(run.Stdout, "sat") || strings.Contains(run.Stdout, "unsat") {
		return Classification{Status: StatusSuccess, Output: run.Stdout}
	}
	return Classification{
		Status: StatusFailure,
		Output: run.Stdout,
		Errors: []string{"cvc5 produced no satisfiability answer"},
	}
}

// classifyProofAssistant: successful elaboration is the proof.
// Stdout is kept as partial output when elaboration fails.
func classifyProofAssistant(run RunOutcome) Classification {
	if run.ExitCode == 0 {
		return Classification{Status: StatusSuccess, Output: run.Stdout}
	}
	errMsg := strings.TrimSpace(run.Stderr)
	if errMsg == "" {
		errMsg = fmt.Sprintf("exited with code %d", run.ExitCode)
	}
	return Classification{
		Status: StatusError,
		Output: run.Stdout,
		Errors: []string{errMsg},
	}
}

func exitError(name string, run RunOutcome) Classification {
	msg := fmt.Sprintf("%s exited with code %d", name, run.ExitCode)
	if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if firstErrorLine(run.Stdout) != "" {
		// SMT solvers print (error "...") on stdout.
		msg += ": " + firstErrorLine(run.Stdout)
	}
	return Classification{
		Status: StatusError,
		Output: run.Stdout,
		Errors: []string{msg},
	}
}

func firstErrorLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "(error") {
			return line
		}
	}
	return ""
}

// extractWarnings collects lines that start with "warning" (any case) from both streams.
func extractWarnings(run RunOutcome) []string {
	var warnings []string
	for _, stream := range []string{run.Stdout, run.Stderr} {
		for _, line := range strings.Split(stream, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(strings.ToLower(line), "warning") {
				warnings = append(warnings, line)
			}
		}
	}
	return warnings
}

// satAnswer returns the first sat, unsat or unknown line of an SMT run, or "unknown".
func satAnswer(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		switch strings.TrimSpace(line) {
		case "sat":
			return "sat"
		case "unsat":
			return "unsat"
		case "unknown":
			return "unknown"
		}
	}
	return "unknown"
}
