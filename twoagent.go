package mfbo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thalesfsp/mfbo/logging"
	"github.com/thalesfsp/mfbo/store"
)

// TwoAgentConfig configures the two agent controller.
type TwoAgentConfig struct {
	// MinIters is the number of iterations run before a feasible pick may
	// stop the search.
	MinIters int `yaml:"min_iters"`

	// MaxIters caps the iterations.
	MaxIters int `yaml:"max_iters"`

	// Seed is the base seed of the per-iteration generators.
	Seed int64 `yaml:"seed"`

	// Params holds the acquisition thresholds; the joint rule uses H.
	Params AcquisitionParams `yaml:"acquisition"`

	// ReconcileBestTime restores the previous best times when a speculative
	// update is followed by an infeasible label. Off by default, which keeps
	// best times optimistic.
	ReconcileBestTime bool `yaml:"reconcile_best_time"`

	RunID         string                `yaml:"-"`
	CheckpointKey string                `yaml:"-"`
	Store         CheckpointStore       `yaml:"-"`
	Metrics       MetricsSink           `yaml:"-"`
	ProgressChan  chan<- ProgressUpdate `yaml:"-"`
}

// DefaultTwoAgentConfig returns between 10 and 100 iterations.
func DefaultTwoAgentConfig() TwoAgentConfig {
	return TwoAgentConfig{
		MinIters:      10,
		MaxIters:      100,
		Seed:          1,
		Params:        DefaultAcquisitionParams(),
		CheckpointKey: "joint_exp_data",
	}
}

func (c *TwoAgentConfig) validate() error {
	if c.MinIters < 0 || c.MaxIters < 0 {
		return fmt.Errorf("%w: iteration bounds must not be negative", ErrConfiguration)
	}

	if c.MinIters > c.MaxIters {
		return fmt.Errorf("%w: min_iters %d exceeds max_iters %d", ErrConfiguration, c.MinIters, c.MaxIters)
	}

	if c.Store != nil && c.CheckpointKey == "" {
		return fmt.Errorf("%w: a checkpoint store needs a checkpoint key", ErrConfiguration)
	}

	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}

	return nil
}

// JointResult is the outcome of a two agent search.
type JointResult struct {
	// X is the last evaluated joint vector.
	X []float64

	// Label is its joint label.
	Label int

	// Iterations is the number of committed iterations.
	Iterations int

	// Converged reports that the search stopped on a feasible pick after
	// MinIters iterations rather than on MaxIters.
	Converged bool
}

// TwoAgentController runs the joint search over agent 1, agent 2 and the pair
// agent. It owns the three states and changes them only through Agent
// methods.
type TwoAgentController struct {
	cfg       TwoAgentConfig
	agent1    *Agent
	agent2    *Agent
	pair      *Agent
	gen       *JointCandidateGenerator
	scorer    JointScorer
	evaluator PairEvaluator
}

// NewTwoAgentController validates the configuration and wires the joint
// generator.
func NewTwoAgentController(
	cfg TwoAgentConfig,
	joint JointConfig,
	agent1, agent2, pair *Agent,
	evaluator PairEvaluator,
) (*TwoAgentController, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if evaluator.Agent1 == nil || evaluator.Agent2 == nil || evaluator.Pair == nil {
		return nil, fmt.Errorf("%w: pair evaluator needs three evaluators", ErrConfiguration)
	}

	gen, err := NewJointCandidateGenerator(joint, agent1, agent2, pair)
	if err != nil {
		return nil, err
	}

	return &TwoAgentController{
		cfg:    cfg,
		agent1: agent1,
		agent2: agent2,
		pair:   pair,
		gen:    gen,
		scorer: JointScorer{
			Bounds1: agent1.Bounds(),
			Bounds2: agent2.Bounds(),
			Basis1:  agent1.TimeBasis(),
			Basis2:  agent2.TimeBasis(),
		},
		evaluator: evaluator,
	}, nil
}

// Generator returns the joint candidate generator.
func (c *TwoAgentController) Generator() *JointCandidateGenerator { return c.gen }

// Agents returns agent 1, agent 2 and the pair agent.
func (c *TwoAgentController) Agents() (agent1, agent2, pair *Agent) {
	return c.agent1, c.agent2, c.pair
}

// StartIter returns the next iteration to run.
func (c *TwoAgentController) StartIter() int { return c.pair.State().Iteration }

// Resume restores all three agents and the thresholds from the checkpoint,
// if there is one.
func (c *TwoAgentController) Resume(ctx context.Context) (bool, error) {
	if c.cfg.Store == nil {
		return false, nil
	}

	snap, err := LoadSnapshot(ctx, c.cfg.Store, c.cfg.CheckpointKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if snap.C1 == nil || snap.C2 == nil {
		return false, fmt.Errorf("%w: joint checkpoint has no thresholds", ErrPersistence)
	}

	for i, a := range snap.Agents {
		if a.Iteration != snap.StartIter {
			return false, fmt.Errorf("%w: checkpoint agent %d is at iteration %d, start_iter %d",
				ErrPersistence, i, a.Iteration, snap.StartIter)
		}
	}

	for _, th := range []*AdaptiveThreshold{snap.C1, snap.C2} {
		if err := th.Validate(); err != nil {
			return false, err
		}
	}

	if err := snap.restoreAgents(c.agent1, c.agent2, c.pair); err != nil {
		return false, err
	}

	if err := c.gen.SetThresholds(*snap.C1, *snap.C2); err != nil {
		return false, err
	}

	logging.Info().
		Add(logging.RunID(c.cfg.RunID)).
		Add(logging.Iteration(snap.StartIter)).
		Add(logging.Threshold("c_1", snap.C1.Nominal)).
		Add(logging.Threshold("c_2", snap.C2.Nominal)).
		Msg("resumed joint search from checkpoint")

	return true, nil
}

// Run iterates until a feasible pick after MinIters iterations, or MaxIters.
func (c *TwoAgentController) Run(ctx context.Context) (*JointResult, error) {
	lc, err := newLifecycle(c.cfg.RunID, c.pair.Name())
	if err != nil {
		return nil, err
	}

	start := c.StartIter()
	total := c.cfg.MaxIters
	result := &JointResult{Iterations: start}

	lc.setProgress(start, total-start)

	for it := start; it < total; it++ {
		event := eventNext
		if it == start {
			event = eventStart
		}

		lc.setProgress(it, total-it)

		if err := lc.fire(event, PhaseRetrain); err != nil {
			lc.fail()

			return nil, err
		}

		x, y, err := c.step(ctx, lc, it)
		if err != nil {
			lc.fail()

			logging.Error().
				Add(logging.RunID(c.cfg.RunID)).
				Add(logging.Iteration(it)).
				Add(logging.Phase(string(lc.Phase()))).
				Add(logging.ErrorField(err)).
				Msg("joint iteration failed")

			return nil, err
		}

		result.X, result.Label, result.Iterations = x, y, it+1

		if it >= c.cfg.MinIters-1 && y == 1 {
			result.Converged = true

			break
		}
	}

	if err := lc.fire(eventFinish, PhaseDone); err != nil {
		return nil, err
	}

	logging.Info().
		Add(logging.RunID(c.cfg.RunID)).
		Add(logging.Count("iterations", result.Iterations)).
		Add(logging.Label(result.Label)).
		Add(logging.Bool("converged", result.Converged)).
		Msg("joint search finished")

	return result, nil
}

// step runs one joint iteration. The agent states and the generator
// thresholds roll back on any error, so only checkpointed work survives.
func (c *TwoAgentController) step(ctx context.Context, lc *lifecycle, it int) (_ []float64, _ int, err error) {
	started := time.Now()

	agents := []*Agent{c.agent1, c.agent2, c.pair}
	marks := make([]stateMark, len(agents))

	for i, a := range agents {
		marks[i] = a.mark()
	}

	th1, th2 := c.gen.Thresholds()

	defer func() {
		if err == nil {
			return
		}

		for i, a := range agents {
			a.rollback(marks[i])
		}

		c.gen.c1, c.gen.c2 = th1, th2
	}()

	for _, a := range agents {
		if err := retrainAgent(ctx, a); err != nil {
			return nil, 0, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if err := lc.fire(eventSelect, PhaseSelect); err != nil {
		return nil, 0, err
	}

	batch, err := c.gen.Generate(ctx, iterationRNG(c.cfg.Seed, it))
	if err != nil && !errors.Is(err, ErrRejectionCapExceeded) {
		return nil, 0, err
	}

	c.pair.SetCandidatePool(batch)

	sel, err := c.selectJoint(ctx, batch)
	if err != nil {
		return nil, 0, err
	}

	x1, x2 := c.scorer.Split(sel.X)

	prev1, prevAlpha1 := c.agent1.State().MinTime, cloneVector(c.agent1.State().AlphaMin)
	prev2, prevAlpha2 := c.agent2.State().MinTime, cloneVector(c.agent2.State().AlphaMin)

	// Speculative: the best times follow the pick before it is evaluated.
	c.agent1.UpdateBestTime(sel.Time1, x1)
	c.agent2.UpdateBestTime(sel.Time2, x2)

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if err := lc.fire(eventEvaluate, PhaseEvaluate); err != nil {
		return nil, 0, err
	}

	y, stage, err := c.evaluator.Evaluate(ctx, x1, x2)
	if err != nil {
		return nil, 0, fmt.Errorf("evaluate joint iteration %d at stage %s: %w", it, stage, err)
	}

	if err := lc.fire(eventPersist, PhasePersist); err != nil {
		return nil, 0, err
	}

	if y == 0 && c.cfg.ReconcileBestTime {
		c.agent1.RestoreBest(prev1, prevAlpha1)
		c.agent2.RestoreBest(prev2, prevAlpha2)
	}

	// The joint label is recorded for all three agents.
	records := []struct {
		agent *Agent
		x     []float64
	}{
		{c.agent1, x1},
		{c.agent2, x2},
		{c.pair, sel.X},
	}

	for _, r := range records {
		rec := FeasibilityRecord{X: r.x, Label: y, Fidelity: FidelityLow, Iteration: it + 1}
		if err := r.agent.Record(rec, sel.FoundByExploit); err != nil {
			return nil, 0, err
		}
	}

	if err := c.checkpoint(ctx); err != nil {
		return nil, 0, err
	}

	c1, c2 := c.gen.Thresholds()

	for _, a := range agents {
		c.cfg.Metrics.RecordIteration(ctx, a.State().Metrics(a.Name()))
	}

	c.cfg.Metrics.RecordThreshold(ctx, "c_1", c1.Nominal)
	c.cfg.Metrics.RecordThreshold(ctx, "c_2", c2.Nominal)

	logging.Info().
		Add(logging.RunID(c.cfg.RunID)).
		Add(logging.Iteration(it + 1)).
		Add(logging.Exploit(sel.FoundByExploit)).
		Add(logging.Label(y)).
		Add(logging.Str("rejected_at", string(stage))).
		Add(logging.Threshold("c_1", c1.Nominal)).
		Add(logging.Threshold("c_2", c2.Nominal)).
		Add(logging.Count("candidates", len(batch))).
		Add(logging.Duration(time.Since(started))).
		Msg("joint iteration complete")

	sendProgress(c.cfg.ProgressChan, ProgressUpdate{
		Phase:             "joint",
		CurrentIteration:  it + 1,
		TotalIterations:   c.cfg.MaxIters,
		CurrentParams:     cloneVector(sel.X),
		CurrentBestParams: append(cloneVector(c.agent1.State().AlphaMin), c.agent2.State().AlphaMin...),
		CurrentBestTime:   sel.ImpliedTime,
		FoundByExploit:    sel.FoundByExploit,
		LastResult:        y,
	})

	return sel.X, y, nil
}

// selectJoint queries the three surrogates on the batch and runs the joint
// policy.
func (c *TwoAgentController) selectJoint(ctx context.Context, batch [][]float64) (JointSelection, error) {
	if len(batch) == 0 {
		return JointSelection{}, ErrEmptyBatch
	}

	x1s := make([][]float64, len(batch))
	x2s := make([][]float64, len(batch))

	for i, x := range batch {
		x1s[i], x2s[i] = c.scorer.Split(x)
	}

	pred1, err := c.agent1.Predict(ctx, x1s)
	if err != nil {
		return JointSelection{}, err
	}

	pred2, err := c.agent2.Predict(ctx, x2s)
	if err != nil {
		return JointSelection{}, err
	}

	pred12, err := c.pair.Predict(ctx, batch)
	if err != nil {
		return JointSelection{}, err
	}

	return SelectJoint(batch, pred1, pred2, pred12,
		c.agent1.State().MinTime, c.agent2.State().MinTime, c.scorer, c.cfg.Params)
}

func (c *TwoAgentController) checkpoint(ctx context.Context) error {
	if c.cfg.Store == nil {
		return nil
	}

	c1, c2 := c.gen.Thresholds()

	snap := &Snapshot{
		RunID:     c.cfg.RunID,
		Seed:      c.cfg.Seed,
		StartIter: c.pair.State().Iteration,
		Agents: []AgentSnapshot{
			snapshotAgent(c.agent1),
			snapshotAgent(c.agent2),
			snapshotAgent(c.pair),
		},
		C1: &c1,
		C2: &c2,
	}

	if err := SaveSnapshot(ctx, c.cfg.Store, c.cfg.CheckpointKey, snap); err != nil {
		return err
	}

	return saveResultSummary(ctx, c.cfg.Store, c.cfg.CheckpointKey, c.pair)
}
