package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deonticprover/internal/deontic"
	"deonticprover/internal/prover"
)

// proveCmd proves a single formula
var proveCmd = &cobra.Command{
	Use:   "prove [operator] [proposition...]",
	Short: "Prove a single deontic formula",
	Long: `Builds a formula from an operator and a proposition and proves it.

Operators: obligation (O, must), permission (P, may), prohibition (F, must_not).

Examples:
  prover prove obligation pay_wages --agent employer
  prover prove F disclose_salary --backends z3,cvc5
  prover prove may work_remotely --all`,
	Args: cobra.MinimumNArgs(2),
	RunE: runProve,
}

// proveAllCmd proves every formula of a rule-set file
var proveAllCmd = &cobra.Command{
	Use:   "prove-all [ruleset.yaml]",
	Short: "Prove every formula in a rule set",
	Args:  cobra.ExactArgs(1),
	RunE:  runProveAll,
}

// checkCmd checks a rule set for joint consistency
var checkCmd = &cobra.Command{
	Use:   "check [ruleset.yaml]",
	Short: "Check a rule set for joint consistency",
	Long: `Asserts every formula of the rule set together and asks the backend
whether they are jointly satisfiable. Only SMT backends support this.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var (
	proveAgent      string
	proveSource     string
	proveConfidence float64
	proveBackends   []string
	proveAll        bool
)

func init() {
	proveCmd.Flags().StringVar(&proveAgent, "agent", "", "Agent the formula binds (empty: any agent)")
	proveCmd.Flags().StringVar(&proveSource, "source", "", "Natural-language clause the formula came from")
	proveCmd.Flags().Float64Var(&proveConfidence, "confidence", 1.0, "Extraction confidence")
	proveCmd.Flags().StringSliceVar(&proveBackends, "backends", nil, "Prove on these backends concurrently")
	proveCmd.Flags().BoolVar(&proveAll, "all", false, "Prove on every configured backend")
}

// signalContext is canceled on SIGINT or SIGTERM; backends are killed with it.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runProve(cmd *cobra.Command, args []string) error {
	op, err := deontic.ParseOperator(args[0])
	if err != nil {
		return err
	}
	f := deontic.NewFormula(op, proveAgent, strings.Join(args[1:], " "), proveConfidence, proveSource)
	if err := f.Validate(); err != nil {
		return err
	}

	var targets []prover.BackendID
	if len(proveBackends) > 0 {
		if targets, err = prover.ParseBackends(proveBackends); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Proving formula", zap.String("formula", f.String()), zap.String("id", f.ID))

	var results []prover.ProofResult
	switch {
	case proveAll || len(targets) > 0:
		byBackend := a.engine.ProveMany(ctx, f, targets)
		for _, b := range prover.AllBackends() {
			if r, ok := byBackend[b]; ok {
				results = append(results, r)
			}
		}
	default:
		results = append(results, a.engine.ProveDefault(ctx, f))
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, results); err != nil {
			return err
		}
		return outcome(results...)
	}
	for _, r := range results {
		printResult(out, r)
	}
	if len(results) > 1 {
		printSummary(out, results)
	}
	return outcome(results...)
}

func runProveAll(cmd *cobra.Command, args []string) error {
	rs, err := deontic.LoadRuleSet(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Proving rule set",
		zap.String("rule_set", rs.Name),
		zap.Int("formulas", len(rs.Formulas)),
		zap.String("backend", a.engine.DefaultBackend().String()))

	results := a.engine.ProveRuleSet(ctx, rs, a.engine.DefaultBackend())

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, results); err != nil {
			return err
		}
		return outcome(results...)
	}
	for _, r := range results {
		printResult(out, r)
	}
	printSummary(out, results)
	return outcome(results...)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rs, err := deontic.LoadRuleSet(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.engine.CheckConsistency(ctx, rs, a.engine.DefaultBackend())

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, res); err != nil {
			return err
		}
		return outcome(res)
	}
	printResult(out, res)
	if n := res.Metadata[prover.MetaAsserted]; n != "" {
		fmt.Fprintf(out, "  %s %s of %d formulas\n", mutedStyle.Render("asserted:"), n, len(rs.Formulas))
	}
	return outcome(res)
}
