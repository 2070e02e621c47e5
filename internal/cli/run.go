package cli

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/mfbo"
	"github.com/thalesfsp/mfbo/logging"
)

// newRunCmd creates the single agent command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	var iterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the single agent search",
		Long: `Run the single agent search against the analytic dynamics oracle.

The initial dataset is sampled only when the store has no checkpoint under the
configured key; otherwise the run resumes from the checkpoint.

Examples:
  # Run with defaults, checkpointing to ./runs
  mfbo run

  # Run 30 iterations against a SQLite checkpoint
  mfbo run -c run.yaml --iterations 30 --store sqlite --store-path runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSingle(cmd.Context(), opts, iterations)
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Total iterations (overrides config when positive)")

	return cmd
}

func (a *App) runSingle(ctx context.Context, opts *runOptions, iterations int) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}

	if iterations > 0 {
		cfg.Single.Iterations = iterations
	}

	a.initLogging(cfg)

	st, err := cfg.Store.OpenStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sink, collector, err := metricsSink(opts, cfg.RunID)
	if err != nil {
		return err
	}

	drone := cfg.Single.Agent

	oracle, err := drone.NewOracle()
	if err != nil {
		return err
	}

	evaluator := mfbo.NewRetryingEvaluator(oracle, cfg.Retry)

	resuming, err := hasCheckpoint(ctx, st, cfg.Single.CheckpointKey)
	if err != nil {
		return err
	}

	agentCfg := drone.AgentConfig()
	ds := mfbo.NewFeasibilityDataset(agentCfg.Bounds.Dim())

	if !resuming {
		ds, err = initialDataset(ctx, agentCfg.Bounds.Dim(), evaluator, cfg.Single.Initial, cfg.Seed)
		if err != nil {
			return err
		}
	}

	agent, err := mfbo.NewAgent(agentCfg, ds)
	if err != nil {
		return err
	}

	progress, stop := a.watchProgress(opts.progress)

	loopCfg := cfg.LoopConfig()
	loopCfg.Store = st
	loopCfg.Metrics = sink
	loopCfg.ProgressChan = progress

	loop, err := mfbo.NewActiveLearningLoop(loopCfg, agent, evaluator)
	if err != nil {
		stop()

		return err
	}

	if _, err := loop.Resume(ctx); err != nil {
		stop()

		return fmt.Errorf("failed to resume: %w", err)
	}

	state, err := loop.Run(ctx)

	stop()

	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "run %s: %d iterations, %d oracle calls\n", cfg.RunID, state.Iteration, oracle.Calls())
	fmt.Fprintf(a.stdout, "best time: %.6f\n", state.MinTime)
	fmt.Fprintf(a.stdout, "alpha_min: %v\n", state.AlphaMin)
	fmt.Fprintf(a.stdout, "exploit picks: %d\n", state.NumFoundExploit)

	return a.reportMetrics(ctx, collector)
}

// initialDataset samples a balanced initial dataset on a Latin hypercube.
func initialDataset(
	ctx context.Context,
	dim int,
	evaluator mfbo.Evaluator,
	cfg mfbo.InitialDatasetConfig,
	seed int64,
) (*mfbo.FeasibilityDataset, error) {
	sampler, err := mfbo.NewSampler(mfbo.SamplingLHS, dim)
	if err != nil {
		return nil, err
	}

	ds, err := mfbo.BuildInitialDataset(ctx, sampler, evaluator, cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("failed to build initial dataset: %w", err)
	}

	logging.Info().
		Add(logging.Count("points", ds.Len())).
		Add(logging.Count("dim", dim)).
		Msg("initial dataset ready")

	return ds, nil
}
