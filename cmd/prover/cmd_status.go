package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deonticprover/internal/deontic"
	"deonticprover/internal/prover"
	"deonticprover/internal/store"
	"deonticprover/internal/verdict"
)

// statusCmd shows backend availability
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend availability and run a smoke proof on each",
	RunE:  runStatus,
}

// historyCmd shows recorded proof runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded proof runs",
	Long: `Lists proof runs from the history database, newest first.

Examples:
  prover history --limit 50
  prover history --formula 3f0c...
  prover history --stats
  prover history --prune 1000`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

// verdictCmd derives cross-backend verdicts
var verdictCmd = &cobra.Command{
	Use:   "verdict [ruleset.yaml]",
	Short: "Derive cross-backend verdicts",
	Long: `Classifies formulas as proved, refuted, contested or inconclusive
by combining the results of several backends.

With a rule-set file, every formula is proved on every available backend
first. Without one, the latest recorded run per formula and backend is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerdict,
}

var (
	historyLimit   int
	historyFormula string
	historyStats   bool
	historyPrune   int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyFormula, "formula", "", "Only runs of this formula id")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show aggregate statistics instead of runs")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "Delete all but the newest N runs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.engine.GetStatus(ctx)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, status)
	}

	fmt.Fprintln(out, titleStyle.Render("Prover Status"))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Default:"), status.DefaultBackend)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Timeout:"), status.Timeout)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Artifacts:"), status.WorkingDirectory)
	if cfg.Store.Enabled {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("History:"), cfg.Store.DatabasePath)
	}
	fmt.Fprintln(out)

	for _, b := range prover.AllBackends() {
		av, ok := status.Backends[b]
		if !ok {
			fmt.Fprintf(out, "%s %-6s %s\n", mutedStyle.Render("-"), b, mutedStyle.Render("not enabled"))
			continue
		}
		if !av.Available {
			fmt.Fprintf(out, "%s %-6s %s\n", availabilityMark(false), b, mutedStyle.Render(av.Error))
			continue
		}
		fmt.Fprintf(out, "%s %-6s %s %s\n", availabilityMark(true), b, av.Version, mutedStyle.Render(av.Path))
		if smoke, ok := status.SmokeTests[b]; ok {
			fmt.Fprintf(out, "         smoke test: %s\n", statusBadge(smoke.Status))
			for _, e := range smoke.Errors {
				fmt.Fprintf(out, "           %s\n", e)
			}
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyPrune >= 0 {
		n, err := s.Prune(ctx, historyPrune)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d run(s)\n", n)
		return nil
	}

	if historyStats {
		stats, err := s.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, stats)
		}
		printStats(out, stats)
		return nil
	}

	var runs []store.ProofRun
	if historyFormula != "" {
		runs, err = s.ByFormula(ctx, historyFormula)
	} else {
		runs, err = s.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No proof runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s %s %-6s %s %s\n",
			mutedStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")),
			statusBadge(r.Status), r.Backend, r.Formula,
			mutedStyle.Render(r.ElapsedLabel()))
		if len(r.Errors) > 0 {
			fmt.Fprintf(out, "  error: %s\n", strings.Join(r.Errors, "; "))
		}
	}
	return nil
}

func printStats(out io.Writer, stats *store.ProofStats) {
	fmt.Fprintln(out, titleStyle.Render("Proof History"))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Runs:"), stats.TotalRuns)
	if stats.TotalRuns == 0 {
		return
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Avg elapsed:"), stats.AvgElapsed)
	fmt.Fprintf(out, "%s %s .. %s\n", labelStyle.Render("Span:"),
		stats.OldestRun.Format("2006-01-02 15:04"), stats.NewestRun.Format("2006-01-02 15:04"))
	for _, s := range []prover.Status{prover.StatusSuccess, prover.StatusFailure, prover.StatusTimeout, prover.StatusError, prover.StatusUnsupported} {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Fprintf(out, "  %s %d\n", statusBadge(s), n)
		}
	}
	for _, b := range prover.AllBackends() {
		if n := stats.ByBackend[b.String()]; n > 0 {
			fmt.Fprintf(out, "  %-6s %d\n", b, n)
		}
	}
}

func runVerdict(cmd *cobra.Command, args []string) error {
	var obs []verdict.Observation
	if len(args) == 1 {
		var err error
		if obs, err = proveAcrossBackends(args[0]); err != nil {
			return err
		}
	} else {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		runs, err := s.Latest(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range runs {
			obs = append(obs, verdict.Observation{FormulaID: r.FormulaID, Backend: r.Backend, Status: r.Status})
		}
	}

	report, err := verdict.Derive(obs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, report.Sorted())
	}
	if len(report) == 0 {
		fmt.Fprintln(out, "No results to judge.")
		return nil
	}
	for _, v := range report.Sorted() {
		fmt.Fprintf(out, "%s %s\n", verdictBadge(v.Kind), v.FormulaID)
		if len(v.Supporting) > 0 {
			fmt.Fprintf(out, "  for:     %s\n", strings.Join(v.Supporting, ", "))
		}
		if len(v.Opposing) > 0 {
			fmt.Fprintf(out, "  against: %s\n", strings.Join(v.Opposing, ", "))
		}
	}
	if report.Count(verdict.Proved) != len(report) {
		return errNotProved
	}
	return nil
}

// proveAcrossBackends proves every formula of the rule set on every available backend.
func proveAcrossBackends(path string) ([]verdict.Observation, error) {
	rs, err := deontic.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	available := a.engine.Detector().Available()
	if len(available) == 0 {
		return nil, fmt.Errorf("no backend is available; run 'prover status'")
	}
	logger.Info("Proving rule set across backends",
		zap.String("rule_set", rs.Name),
		zap.Int("formulas", len(rs.Formulas)),
		zap.Int("backends", len(available)))

	perFormula := make([][]prover.ProofResult, len(rs.Formulas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Limits.MaxParallelProofs)
	for i, f := range rs.Formulas {
		g.Go(func() error {
			byBackend := a.engine.ProveMany(gctx, f, available)
			for _, b := range available {
				perFormula[i] = append(perFormula[i], byBackend[b])
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []prover.ProofResult
	for _, batch := range perFormula {
		results = append(results, batch...)
	}
	return verdict.FromResults(results), nil
}
