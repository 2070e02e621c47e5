package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/mfbo"
	"github.com/thalesfsp/mfbo/config"
)

// newJointCmd creates the two agent command.
func (a *App) newJointCmd() *cobra.Command {
	opts := &runOptions{}

	var maxIters int

	cmd := &cobra.Command{
		Use:   "joint",
		Short: "Run the two agent search",
		Long: `Run the joint search of two drones against the analytic dynamics and
separation oracles. A pick is evaluated for drone 1, then drone 2, then the
pair; the search stops at the first feasible pick after min_iters iterations.

Examples:
  mfbo joint -c run.yaml --store badger --store-path runs/badger --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJoint(cmd.Context(), opts, maxIters)
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVar(&maxIters, "max-iters", 0, "Iteration cap (overrides config when positive)")

	return cmd
}

// jointAgents holds the three agents and their oracles.
type jointAgents struct {
	agent1, agent2, pair *mfbo.Agent
	evaluator            mfbo.PairEvaluator
}

func (a *App) runJoint(ctx context.Context, opts *runOptions, maxIters int) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}

	if maxIters > 0 {
		cfg.Joint.MaxIters = maxIters
		if cfg.Joint.MinIters > maxIters {
			cfg.Joint.MinIters = maxIters
		}
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

	resuming, err := hasCheckpoint(ctx, st, cfg.Joint.CheckpointKey)
	if err != nil {
		return err
	}

	agents, err := buildJointAgents(ctx, cfg, resuming)
	if err != nil {
		return err
	}

	progress, stop := a.watchProgress(opts.progress)

	twoCfg := cfg.TwoAgentConfig()
	twoCfg.Store = st
	twoCfg.Metrics = sink
	twoCfg.ProgressChan = progress

	ctrl, err := mfbo.NewTwoAgentController(twoCfg, cfg.JointConfig(),
		agents.agent1, agents.agent2, agents.pair, agents.evaluator)
	if err != nil {
		stop()

		return err
	}

	if _, err := ctrl.Resume(ctx); err != nil {
		stop()

		return fmt.Errorf("failed to resume: %w", err)
	}

	result, err := ctrl.Run(ctx)

	stop()

	if err != nil {
		return err
	}

	a1, a2, _ := ctrl.Agents()
	c1, c2 := ctrl.Generator().Thresholds()

	fmt.Fprintf(a.stdout, "run %s: %d iterations, converged: %t\n", cfg.RunID, result.Iterations, result.Converged)
	fmt.Fprintf(a.stdout, "last pick: %v (label %d)\n", result.X, result.Label)
	fmt.Fprintf(a.stdout, "%s best time: %.6f\n", a1.Name(), a1.State().MinTime)
	fmt.Fprintf(a.stdout, "%s best time: %.6f\n", a2.Name(), a2.State().MinTime)
	fmt.Fprintf(a.stdout, "thresholds: c_1=%.2f c_2=%.2f\n", c1.Nominal, c2.Nominal)

	return a.reportMetrics(ctx, collector)
}

// buildJointAgents creates the oracles and the three agents. Initial datasets
// are sampled only for a fresh run; a resumed run restores them.
func buildJointAgents(ctx context.Context, cfg *config.Config, resuming bool) (*jointAgents, error) {
	j := cfg.Joint

	oracle1, err := j.Drone1.NewOracle()
	if err != nil {
		return nil, err
	}

	oracle2, err := j.Drone2.NewOracle()
	if err != nil {
		return nil, err
	}

	separation, err := j.NewPairOracle()
	if err != nil {
		return nil, err
	}

	pe := mfbo.PairEvaluator{
		Agent1: mfbo.NewRetryingEvaluator(oracle1, cfg.Retry),
		Agent2: mfbo.NewRetryingEvaluator(oracle2, cfg.Retry),
		Pair:   mfbo.NewRetryingEvaluator(separation, cfg.Retry),
	}

	d1 := j.Drone1.AgentBounds().Dim()

	// The pair dataset is labeled by the staged evaluation of a joint vector.
	joint := mfbo.EvaluatorFunc(func(ctx context.Context, x []float64) (int, error) {
		y, _, err := pe.Evaluate(ctx, x[:d1], x[d1:])

		return y, err
	})

	specs := []struct {
		cfg       mfbo.AgentConfig
		evaluator mfbo.Evaluator
	}{
		{j.Drone1.AgentConfig(), pe.Agent1},
		{j.Drone2.AgentConfig(), pe.Agent2},
		{j.PairAgentConfig(), joint},
	}

	agents := make([]*mfbo.Agent, len(specs))

	for i, s := range specs {
		dim := s.cfg.Bounds.Dim()
		ds := mfbo.NewFeasibilityDataset(dim)

		if !resuming {
			ds, err = initialDataset(ctx, dim, s.evaluator, j.Initial, cfg.Seed+int64(i))
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", s.cfg.Name, err)
			}
		}

		agents[i], err = mfbo.NewAgent(s.cfg, ds)
		if err != nil {
			return nil, err
		}
	}

	return &jointAgents{
		agent1:    agents[0],
		agent2:    agents[1],
		pair:      agents[2],
		evaluator: pe,
	}, nil
}
