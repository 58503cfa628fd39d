package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deonticprover/internal/config"
	"deonticprover/internal/logging"
	"deonticprover/internal/prover"
)

// errNotProved makes the process exit 2 when a proof did not succeed.
var errNotProved = errors.New("not proved")

var (
	// Global flags
	configPath  string
	verbose     bool
	backendName string
	timeout     time.Duration
	jsonOutput  bool

	// Logger
	logger *zap.Logger

	// cfg is loaded once per invocation in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prover",
	Short: "Run deontic formulas through SMT solvers and proof assistants",
	Long: `prover translates deontic formulas (obligation, permission, prohibition)
into Z3, CVC5, Lean 4 or Coq artifacts, runs the backend under a hard timeout
and reports a classified result.

Exit status is 0 when every proof succeeded, 2 when at least one did not,
and 1 on usage or configuration errors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		if err := logging.Initialize(cfg.Logging.Directory, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat(),
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("Audit log unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendName != "" {
		b, err := prover.ParseBackend(backendName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidBackend, err)
		}
		c.Prover.DefaultBackend = b.String()
	}
	if timeout > 0 {
		c.Prover.Timeout = timeout.String()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".prover/config.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Default backend (z3, cvc5, lean4, coq)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-invocation backend timeout (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(proveAllCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verdictCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotProved) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
