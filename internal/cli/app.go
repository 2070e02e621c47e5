// Package cli provides the mfbo command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thalesfsp/mfbo"
	"github.com/thalesfsp/mfbo/config"
	"github.com/thalesfsp/mfbo/logging"
	"github.com/thalesfsp/mfbo/store"
	"github.com/thalesfsp/mfbo/telemetry"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "mfbo",
		Short: "Active learning search for feasible drone time allocations",
		Long: `mfbo searches for the fastest dynamically feasible time allocation of a
drone trajectory, or of two drones flying together, by active learning over a
feasibility surrogate.

Every iteration is checkpointed, so an interrupted run resumes where it
stopped when it is started again with the same store and checkpoint key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to the run configuration (defaults apply when omitted)")
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides config")
	app.root.PersistentFlags().StringVar(&app.logFormat, "log-format", "", "Log format (console or json); overrides config")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newRunCmd(),
		app.newJointCmd(),
		app.newSummaryCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)

	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)

	return a.Execute(ctx)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "mfbo version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

//////
// Shared run setup.
//////

// runOptions are the flags shared by the search commands.
type runOptions struct {
	runID        string
	storeBackend string
	storePath    string
	seed         int64
	metrics      bool
	progress     bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.runID, "run-id", "", "Run id (generated when empty and not set in config)")
	cmd.Flags().StringVar(&o.storeBackend, "store", "", "Checkpoint backend: memory, file, badger or sqlite (overrides config)")
	cmd.Flags().StringVar(&o.storePath, "store-path", "", "Checkpoint location (overrides config)")
	cmd.Flags().Int64Var(&o.seed, "seed", 0, "Base seed (overrides config when non-zero)")
	cmd.Flags().BoolVar(&o.metrics, "metrics", false, "Print the collected metrics when the run ends")
	cmd.Flags().BoolVar(&o.progress, "progress", false, "Print one line per committed iteration")
}

// loadConfig reads the configuration file, or the defaults without one, and
// applies the flag overrides.
func (a *App) loadConfig(opts *runOptions) (*config.Config, error) {
	cfg := config.Default()

	if a.configPath != "" {
		var err error

		cfg, err = config.Load(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	if opts == nil {
		opts = &runOptions{}
	}

	if opts.runID != "" {
		cfg.RunID = opts.runID
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	if opts.storeBackend != "" {
		cfg.Store.Backend = opts.storeBackend
	}

	if opts.storePath != "" {
		cfg.Store.Path = opts.storePath
	}

	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// initLogging points the default logger at the command's stderr.
func (a *App) initLogging(cfg *config.Config) {
	lc := cfg.Logging
	lc.Output = a.stderr

	logging.Init(lc)
}

// metricsSink installs an in-process collector when --metrics is set.
func metricsSink(opts *runOptions, runID string) (mfbo.MetricsSink, *telemetry.Collector, error) {
	if !opts.metrics {
		return nil, nil, nil
	}

	collector := telemetry.NewCollector()

	mcfg := telemetry.DefaultMetricsConfig()
	mcfg.MeterVersion = Version
	mcfg.RunID = runID

	mp := telemetry.NewMetricsProvider(mcfg)
	if err := mp.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return mp, collector, nil
}

// reportMetrics prints and stops the collector, if any.
func (a *App) reportMetrics(ctx context.Context, collector *telemetry.Collector) error {
	if collector == nil {
		return nil
	}

	defer func() { _ = collector.Shutdown(context.Background()) }()

	fmt.Fprintln(a.stdout, "metrics:")

	return collector.Report(ctx, a.stdout)
}

// watchProgress prints progress updates until the returned stop function is
// called.
func (a *App) watchProgress(enabled bool) (chan<- mfbo.ProgressUpdate, func()) {
	if !enabled {
		return nil, func() {}
	}

	ch := make(chan mfbo.ProgressUpdate, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for u := range ch {
			fmt.Fprintf(a.stdout, "[%s %d/%d] label=%d exploit=%t best=%.4f\n",
				u.Phase, u.CurrentIteration, u.TotalIterations, u.LastResult, u.FoundByExploit, u.CurrentBestTime)
		}
	}()

	return ch, func() {
		close(ch)
		<-done
	}
}

// hasCheckpoint reports whether st holds a checkpoint under key.
func hasCheckpoint(ctx context.Context, st store.Store, key string) (bool, error) {
	_, err := st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
