package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deonticprover/internal/prover"
	"deonticprover/internal/watch"
)

// watchCmd re-checks a rule set on every save
var watchCmd = &cobra.Command{
	Use:   "watch [ruleset.yaml]",
	Short: "Re-check a rule set for consistency whenever the file changes",
	Long: `Watches a rule-set file and runs the consistency check on the default
backend after every settled change. Runs until interrupted.

With --metrics-addr the Prometheus metrics are served on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchDebounce    time.Duration
	watchMetricsAddr string
)

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "Quiet period before a change is checked")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if watchMetricsAddr != "" {
		stop := serveMetrics(watchMetricsAddr)
		defer stop()
	}

	out := cmd.OutOrStdout()
	w, err := watch.NewRuleSetWatcher(a.engine, watch.Options{
		Path:     args[0],
		Backend:  a.engine.DefaultBackend(),
		Debounce: watchDebounce,
		OnEvent: func(ev watch.Event) {
			stamp := mutedStyle.Render(ev.At.Format("15:04:05"))
			if ev.Err != nil {
				fmt.Fprintf(out, "%s %s %v\n", stamp, statusBadge(prover.StatusError), ev.Err)
				return
			}
			fmt.Fprintf(out, "%s %s ", stamp, ev.RuleSet.Name)
			printResult(out, ev.Result)
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	fmt.Fprintf(out, "Watching %s (backend %s). Press Ctrl+C to stop.\n", args[0], a.engine.DefaultBackend())
	<-ctx.Done()
	logger.Info("Watch stopped", zap.Int("checks", w.GetStats().Checks))
	return nil
}

// serveMetrics exposes the default Prometheus registry and returns a shutdown func.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
