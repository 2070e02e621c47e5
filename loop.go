package mfbo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thalesfsp/mfbo/logging"
	"github.com/thalesfsp/mfbo/store"
)

// ResultSuffix is appended to the checkpoint key for the result summary.
const ResultSuffix = "-result"

//////
// Configuration.
//////

// MetricsSink receives the scalars emitted after every iteration.
type MetricsSink interface {
	RecordIteration(ctx context.Context, m IterationMetrics)
	RecordThreshold(ctx context.Context, name string, value float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordIteration(context.Context, IterationMetrics) {}
func (nopMetrics) RecordThreshold(context.Context, string, float64)  {}

// LoopConfig holds the configuration of the active learning loop.
//
// Fields explanation:
//   - Iterations: total number of iterations of the run, including the ones
//     restored from a checkpoint
//   - NumCandidates: candidate batch size per iteration
//   - Seed: base seed; iteration i draws from a generator derived from
//     (Seed, i), which makes resumed runs identical to uninterrupted ones
//   - Params: acquisition thresholds
//   - RunID: identifies the run in logs and checkpoints
//   - CheckpointKey: key of the checkpoint in Store
//   - Store: optional checkpoint backend
//   - Metrics: optional metrics sink
//   - ProgressChan: optional channel for progress updates, never blocks
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.Iterations = 30
//	cfg.Store = store.NewMemoryStore()
//	cfg.CheckpointKey = "drone-1"
type LoopConfig struct {
	Iterations    int
	NumCandidates int
	Seed          int64
	Params        AcquisitionParams
	RunID         string
	CheckpointKey string
	Store         CheckpointStore
	Metrics       MetricsSink
	ProgressChan  chan<- ProgressUpdate
}

// DefaultConfig returns a default configuration.
func DefaultConfig() LoopConfig {
	return LoopConfig{
		Iterations:    15,
		NumCandidates: 1000,
		Seed:          1,
		Params:        DefaultAcquisitionParams(),
		CheckpointKey: "exp_data",
		ProgressChan:  nil, // Default to no progress updates.
	}
}

func (c *LoopConfig) validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations must not be negative, got %d", ErrConfiguration, c.Iterations)
	}

	if c.NumCandidates <= 0 {
		return fmt.Errorf("%w: candidate batch size must be positive, got %d", ErrConfiguration, c.NumCandidates)
	}

	if c.Store != nil && c.CheckpointKey == "" {
		return fmt.Errorf("%w: a checkpoint store needs a checkpoint key", ErrConfiguration)
	}

	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}

	return nil
}

// sendProgress never blocks; updates are dropped when the channel is full.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}

	select {
	case ch <- update:
	default:
		// Skip update if channel is full.
	}
}

//////
// Single agent loop.
//////

// ActiveLearningLoop runs the single agent search: one evaluated point per
// iteration, checkpointed after the point is appended.
type ActiveLearningLoop struct {
	cfg       LoopConfig
	agent     *Agent
	evaluator Evaluator
}

// NewActiveLearningLoop validates cfg and creates a loop for agent.
func NewActiveLearningLoop(cfg LoopConfig, agent *Agent, evaluator Evaluator) (*ActiveLearningLoop, error) {
	if agent == nil || evaluator == nil {
		return nil, fmt.Errorf("%w: loop needs an agent and an evaluator", ErrConfiguration)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &ActiveLearningLoop{cfg: cfg, agent: agent, evaluator: evaluator}, nil
}

// Agent returns the agent driven by the loop.
func (l *ActiveLearningLoop) Agent() *Agent { return l.agent }

// StartIter returns the next iteration to run.
func (l *ActiveLearningLoop) StartIter() int { return l.agent.State().Iteration }

// Resume restores the agent from the checkpoint, if the store has one. It
// reports whether a checkpoint was found.
func (l *ActiveLearningLoop) Resume(ctx context.Context) (bool, error) {
	if l.cfg.Store == nil {
		return false, nil
	}

	snap, err := LoadSnapshot(ctx, l.cfg.Store, l.cfg.CheckpointKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if snap.Seed != l.cfg.Seed {
		logging.Warn().
			Add(logging.RunID(l.cfg.RunID)).
			Add(logging.Str("checkpoint_run_id", snap.RunID)).
			Msg("checkpoint was written with a different seed, candidate draws will differ")
	}

	if err := snap.restoreAgents(l.agent); err != nil {
		return false, err
	}

	if snap.StartIter != l.agent.State().Iteration {
		return false, fmt.Errorf("%w: checkpoint start_iter %d does not match %d committed iterations",
			ErrPersistence, snap.StartIter, l.agent.State().Iteration)
	}

	logging.Info().
		Add(logging.RunID(l.cfg.RunID)).
		Add(logging.Agent(l.agent.Name())).
		Add(logging.Iteration(snap.StartIter)).
		Add(logging.MinTime(l.agent.State().MinTime)).
		Msg("resumed from checkpoint")

	return true, nil
}

// Run executes iterations StartIter() .. Iterations-1 and returns the agent's
// state. On error the state of the last successful checkpoint is the one to
// resume from.
func (l *ActiveLearningLoop) Run(ctx context.Context) (*SearchState, error) {
	lc, err := newLifecycle(l.cfg.RunID, l.agent.Name())
	if err != nil {
		return nil, err
	}

	start := l.StartIter()
	total := l.cfg.Iterations

	logging.Info().
		Add(logging.RunID(l.cfg.RunID)).
		Add(logging.Agent(l.agent.Name())).
		Add(logging.Count("start_iter", start)).
		Add(logging.Count("iterations", total)).
		Msg("starting active learning")

	lc.setProgress(start, total-start)

	if start >= total {
		if err := lc.fire(eventFinish, PhaseDone); err != nil {
			return nil, err
		}

		return l.agent.State(), nil
	}

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

		if err := l.step(ctx, lc, it); err != nil {
			lc.fail()

			logging.Error().
				Add(logging.RunID(l.cfg.RunID)).
				Add(logging.Agent(l.agent.Name())).
				Add(logging.Iteration(it)).
				Add(logging.Phase(string(lc.Phase()))).
				Add(logging.ErrorField(err)).
				Msg("iteration failed")

			return nil, err
		}
	}

	if err := lc.fire(eventFinish, PhaseDone); err != nil {
		return nil, err
	}

	return l.agent.State(), nil
}

// step runs one iteration starting in the retrain phase and ending in the
// persist phase. An iteration commits only when its checkpoint is written; on
// any error the agent's state is rolled back to where the iteration started.
func (l *ActiveLearningLoop) step(ctx context.Context, lc *lifecycle, it int) (err error) {
	started := time.Now()
	state := l.agent.State()

	mark := l.agent.mark()
	defer func() {
		if err != nil {
			l.agent.rollback(mark)
		}
	}()

	if err := retrainAgent(ctx, l.agent); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := lc.fire(eventSelect, PhaseSelect); err != nil {
		return err
	}

	rng := iterationRNG(l.cfg.Seed, it)

	batch := l.agent.Candidates(rng, l.cfg.NumCandidates)
	l.agent.SetCandidatePool(batch)

	pred, err := l.agent.Predict(ctx, batch)
	if err != nil {
		return err
	}

	sel, err := SelectNext(batch, pred, state.MinTime, l.agent.Bounds(), l.agent.TimeBasis(), l.cfg.Params)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := lc.fire(eventEvaluate, PhaseEvaluate); err != nil {
		return err
	}

	y, err := evaluate(ctx, l.evaluator, sel.X)
	if err != nil {
		return fmt.Errorf("evaluate iteration %d: %w", it, err)
	}

	if err := lc.fire(eventPersist, PhasePersist); err != nil {
		return err
	}

	// Exploit picks propose a new best time; only a feasible label commits it.
	if sel.FoundByExploit && y == 1 {
		l.agent.UpdateBestTime(sel.ImpliedTime, sel.X)
	}

	record := FeasibilityRecord{X: sel.X, Label: y, Fidelity: FidelityLow, Iteration: it + 1}
	if err := l.agent.Record(record, sel.FoundByExploit); err != nil {
		return err
	}

	if err := l.checkpoint(ctx); err != nil {
		return err
	}

	metrics := state.Metrics(l.agent.Name())
	l.cfg.Metrics.RecordIteration(ctx, metrics)

	logging.Info().
		Add(logging.RunID(l.cfg.RunID)).
		Add(logging.Agent(l.agent.Name())).
		Add(logging.Iteration(it + 1)).
		Add(logging.Exploit(sel.FoundByExploit)).
		Add(logging.Label(y)).
		Add(logging.MinTime(state.MinTime)).
		Add(logging.Duration(time.Since(started))).
		Msg("iteration complete")

	sendProgress(l.cfg.ProgressChan, ProgressUpdate{
		Phase:             "single",
		CurrentIteration:  it + 1,
		TotalIterations:   l.cfg.Iterations,
		CurrentParams:     cloneVector(sel.X),
		CurrentBestParams: cloneVector(state.AlphaMin),
		CurrentBestTime:   state.MinTime,
		FoundByExploit:    sel.FoundByExploit,
		LastResult:        y,
	})

	return nil
}

func (l *ActiveLearningLoop) checkpoint(ctx context.Context) error {
	if l.cfg.Store == nil {
		return nil
	}

	snap := &Snapshot{
		RunID:     l.cfg.RunID,
		Seed:      l.cfg.Seed,
		StartIter: l.agent.State().Iteration,
		Agents:    []AgentSnapshot{snapshotAgent(l.agent)},
	}

	if err := SaveSnapshot(ctx, l.cfg.Store, l.cfg.CheckpointKey, snap); err != nil {
		return err
	}

	return saveResultSummary(ctx, l.cfg.Store, l.cfg.CheckpointKey, l.agent)
}

// saveResultSummary writes the reporting view next to the checkpoint.
func saveResultSummary(ctx context.Context, st CheckpointStore, key string, agent *Agent) error {
	summary, err := MarshalResultSummary(agent.State().History)
	if err != nil {
		return err
	}

	if err := st.Put(ctx, key+ResultSuffix, summary); err != nil {
		return fmt.Errorf("%w: write result summary: %w", ErrPersistence, err)
	}

	return nil
}

// retrainAgent retrains the surrogate. A training failure keeps the previous
// model and is only logged.
func retrainAgent(ctx context.Context, agent *Agent) error {
	err := agent.Retrain(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrSurrogateTraining) {
		logging.Warn().
			Add(logging.Agent(agent.Name())).
			Add(logging.ErrorField(err)).
			Msg("surrogate retrain failed, keeping previous model")

		return nil
	}

	return fmt.Errorf("retrain agent %q: %w", agent.Name(), err)
}
