package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/config"
	"github.com/roach88/orbit/internal/harness"
	"github.com/roach88/orbit/internal/metrics"
	"github.com/roach88/orbit/internal/sample"
	"github.com/roach88/orbit/internal/savedstate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Key         string
	Settings    string
	MetricsAddr string
	Hold        bool
}

// RunSummary is the run command output.
type RunSummary struct {
	Scenario       string          `json:"scenario"`
	Key            string          `json:"key"`
	Pass           bool            `json:"pass"`
	Restored       bool            `json:"restored"`
	FinalState     sample.State    `json:"final_state"`
	Effects        []sample.Effect `json:"effects"`
	ContainerError string          `json:"container_error,omitempty"`
	MetricsAddr    string          `json:"metrics_addr,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario with persisted state",
		Long: `Run one scenario against a persisted counter container.

The container starts from the state saved under --key, if any, and saves
every committed state back. The store is the SQLite database given with
--db, or the store section of the --settings file (sqlite, redis or
memory). Without either, state lives in memory for the run only.
Metrics are served on --metrics-addr, or on the settings file's
metrics_addr when the flag is not given.

Examples:
  orbit run --db ./orbit.db scenarios/rename_and_count.yaml
  orbit run --settings redis.cue scenarios/slow_add.yaml
  orbit run --db ./orbit.db --metrics-addr :9090 --hold scenarios/slow_add.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Key, "key", "", "saved state key (default: scenario name)")
	cmd.Flags().StringVar(&opts.Settings, "settings", "", "settings file selecting the store")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "keep serving metrics after the run until interrupted")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var settings *config.File
	if opts.Settings != "" {
		settings, err = config.Load(opts.Settings)
		if err != nil {
			_ = f.Error(ErrCodeInvalid, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load settings", err)
		}
	}

	store, key, closeStore, err := openRunStore(opts, settings, scenario.Name)
	if err != nil {
		_ = f.Error(ErrCodeStoreFailure, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	sink := metrics.New(registry)
	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" && settings != nil {
		metricsAddr = settings.MetricsAddr
	}
	if metricsAddr != "" {
		srv := metrics.Serve(metricsAddr, registry)
		logger.Info("serving metrics", "addr", metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("running scenario", "scenario", scenario.Name, "key", key)
	result, err := harness.Run(ctx, scenario,
		harness.WithStore(store, key),
		harness.WithMetrics(sink),
		harness.WithLogger(logger),
	)
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "scenario run failed", err)
	}

	summary := RunSummary{
		Scenario:       scenario.Name,
		Key:            key,
		Pass:           result.Pass,
		Restored:       result.Restored,
		FinalState:     result.FinalState,
		Effects:        result.Effects,
		ContainerError: result.ContainerError,
		MetricsAddr:    metricsAddr,
		Errors:         result.Errors,
	}
	if err := printRunSummary(f, summary); err != nil {
		return err
	}

	if opts.Hold && metricsAddr != "" {
		f.Textf("Serving metrics on %s. Press Ctrl-C to stop.", metricsAddr)
		<-ctx.Done()
		logger.Info("received signal, shutting down")
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// openRunStore picks the store: --db first, then the settings file, then
// memory.
func openRunStore(opts *RunOptions, settings *config.File, scenarioName string) (savedstate.Store, string, func() error, error) {
	key := opts.Key

	if opts.Database != "" {
		db, err := savedstate.OpenSQLite(opts.Database)
		if err != nil {
			return nil, "", nil, err
		}
		if key == "" {
			key = scenarioName
		}
		return db, key, db.Close, nil
	}

	if settings != nil && settings.Store != nil {
		store, closeFn, err := settings.Store.Open()
		if err != nil {
			return nil, "", nil, err
		}
		if key == "" {
			key = settings.Store.Key
		}
		return store, key, closeFn, nil
	}

	if key == "" {
		key = scenarioName
	}
	return savedstate.NewMemoryStore(), key, func() error { return nil }, nil
}

func printRunSummary(f *OutputFormatter, s RunSummary) error {
	if f.JSON() {
		if s.Effects == nil {
			s.Effects = []sample.Effect{}
		}
		return f.Success(s)
	}

	mark := "✓"
	if !s.Pass {
		mark = "✗"
	}
	f.Textf("%s %s (key=%s, restored=%t)", mark, s.Scenario, s.Key, s.Restored)
	f.Textf("  final state: count=%d label=%q", s.FinalState.Count, s.FinalState.Label)
	f.Textf("  side effects: %d", len(s.Effects))
	if s.ContainerError != "" {
		f.Textf("  container error: %s", s.ContainerError)
	}
	if s.MetricsAddr != "" {
		f.Textf("  metrics: %s", s.MetricsAddr)
	}
	for _, e := range s.Errors {
		f.Textf("  %s", e)
	}
	return nil
}

