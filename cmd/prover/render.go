package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"deonticprover/internal/prover"
	"deonticprover/internal/verdict"
)

// outputPreview bounds backend output shown under a failed result.
const outputPreview = 400

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	labelStyle = lipgloss.NewStyle().Bold(true).Width(14)

	statusStyles = map[prover.Status]lipgloss.Style{
		prover.StatusSuccess:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E")),
		prover.StatusFailure:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
		prover.StatusTimeout:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")),
		prover.StatusError:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DC2626")),
		prover.StatusUnsupported: lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}

	verdictStyles = map[verdict.Kind]lipgloss.Style{
		verdict.Proved:       statusStyles[prover.StatusSuccess],
		verdict.Refuted:      statusStyles[prover.StatusFailure],
		verdict.Contested:    statusStyles[prover.StatusTimeout],
		verdict.Inconclusive: statusStyles[prover.StatusUnsupported],
	}
)

func statusBadge(s prover.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		style = mutedStyle
	}
	return style.Render(strings.ToUpper(string(s)))
}

func verdictBadge(k verdict.Kind) string {
	return verdictStyles[k].Render(strings.ToUpper(string(k)))
}

func availabilityMark(ok bool) string {
	if ok {
		return statusStyles[prover.StatusSuccess].Render("✓")
	}
	return statusStyles[prover.StatusFailure].Render("✗")
}

// printResult renders one result: a status line, then errors, warnings and
// an output preview for anything that was not a success.
func printResult(w io.Writer, r prover.ProofResult) {
	fmt.Fprintf(w, "%s %-6s %s %s\n",
		statusBadge(r.Status), r.Backend, r.Formula,
		mutedStyle.Render(fmt.Sprintf("(%.3fs)", r.ElapsedSeconds())))

	if path := r.ArtifactPath(); path != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("artifact:"), path)
	}
	if v := r.Metadata[prover.MetaVerdict]; v != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("answer:"), v)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	if !r.Succeeded() && strings.TrimSpace(r.Output) != "" {
		fmt.Fprintf(w, "  output: %s\n", strings.TrimSpace(r.TruncatedOutput(outputPreview)))
	}
}

// printSummary prints per-status counts in a fixed order.
func printSummary(w io.Writer, results []prover.ProofResult) {
	counts := make(map[prover.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	parts := make([]string, 0, 5)
	for _, s := range []prover.Status{prover.StatusSuccess, prover.StatusFailure, prover.StatusTimeout, prover.StatusError, prover.StatusUnsupported} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", statusBadge(s), counts[s]))
		}
	}
	fmt.Fprintf(w, "\n%s %d run(s): %s\n", titleStyle.Render("Summary"), len(results), strings.Join(parts, ", "))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outcome maps results to the process exit status.
func outcome(results ...prover.ProofResult) error {
	for _, r := range results {
		if !r.Succeeded() {
			return errNotProved
		}
	}
	return nil
}
