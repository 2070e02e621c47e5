package mfbo

import (
	"context"
	"fmt"
	"math/rand"
)

// AgentConfig describes one agent (one drone, or the joint pair).
type AgentConfig struct {
	// Name labels logs, metrics and checkpoint entries.
	Name string

	// Bounds denormalize the agent's parameter vectors.
	Bounds Bounds

	// TimeBasis is the per-segment reference time used by ImpliedTime.
	TimeBasis []float64

	// SamplingMode selects the candidate sampler (see NewSampler). Ignored when
	// Sampler is set.
	SamplingMode int

	// Sampler overrides the sampler built from SamplingMode.
	Sampler CandidateSampler

	// Surrogate is the agent's feasibility model. Required.
	Surrogate SurrogateModel
}

// Agent bundles the collaborators and the search state of one agent.
type Agent struct {
	name         string
	bounds       Bounds
	basis        []float64
	samplingMode int
	sampler      CandidateSampler
	surrogate    SurrogateModel
	state        *SearchState
}

// NewAgent validates cfg and creates an agent searching over ds.
func NewAgent(cfg AgentConfig, ds *FeasibilityDataset) (*Agent, error) {
	if cfg.Surrogate == nil {
		return nil, fmt.Errorf("%w: agent %q has no surrogate", ErrConfiguration, cfg.Name)
	}

	if ds == nil {
		return nil, fmt.Errorf("%w: agent %q has no dataset", ErrConfiguration, cfg.Name)
	}

	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
	}

	dim := cfg.Bounds.Dim()

	if len(cfg.TimeBasis) != dim {
		return nil, fmt.Errorf("%w: agent %q has a time basis of length %d for dimension %d",
			ErrConfiguration, cfg.Name, len(cfg.TimeBasis), dim)
	}

	if sum(cfg.TimeBasis) <= 0 {
		return nil, fmt.Errorf("%w: agent %q time basis must have a positive sum", ErrConfiguration, cfg.Name)
	}

	if ds.Dim() != dim {
		return nil, fmt.Errorf("%w: agent %q dataset has dimension %d, bounds %d",
			ErrConfiguration, cfg.Name, ds.Dim(), dim)
	}

	sampler := cfg.Sampler
	if sampler == nil {
		var err error

		sampler, err = NewSampler(cfg.SamplingMode, dim)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
		}
	}

	if sampler.Dim() != dim {
		return nil, fmt.Errorf("%w: agent %q sampler has dimension %d, bounds %d",
			ErrConfiguration, cfg.Name, sampler.Dim(), dim)
	}

	return &Agent{
		name:         cfg.Name,
		bounds:       cfg.Bounds,
		basis:        cloneVector(cfg.TimeBasis),
		samplingMode: cfg.SamplingMode,
		sampler:      sampler,
		surrogate:    cfg.Surrogate,
		state:        NewSearchState(ds),
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Dim returns the dimensionality of the agent's vectors.
func (a *Agent) Dim() int { return a.bounds.Dim() }

// Bounds returns the agent bounds.
func (a *Agent) Bounds() Bounds { return a.bounds }

// TimeBasis returns the agent time basis.
func (a *Agent) TimeBasis() []float64 { return a.basis }

// Sampler returns the agent sampler.
func (a *Agent) Sampler() CandidateSampler { return a.sampler }

// State returns the agent's search state.
func (a *Agent) State() *SearchState { return a.state }

// ImpliedTime returns the trajectory time of x for this agent.
func (a *Agent) ImpliedTime(x []float64) float64 {
	return ImpliedTime(x, a.bounds, a.basis)
}

// Retrain retrains the surrogate on the agent's dataset.
func (a *Agent) Retrain(ctx context.Context) error {
	return a.surrogate.Retrain(ctx, a.state.Dataset.X(), a.state.Dataset.Y())
}

// Predict queries the agent's surrogate.
func (a *Agent) Predict(ctx context.Context, x [][]float64) (Prediction, error) {
	p, err := a.surrogate.Predict(ctx, x)
	if err != nil {
		return Prediction{}, err
	}

	if err := p.validate(len(x)); err != nil {
		return Prediction{}, fmt.Errorf("agent %q surrogate: %w", a.name, err)
	}

	return p, nil
}

// Candidates draws n candidates. For sampling modes 2 and above the batch is
// rescaled around the current best allocation, so that denorm(x') equals
// AlphaMin * denorm(x) componentwise; rescaled points leaving [0,1] are
// dropped. If every point is dropped the unscaled batch is returned, so the
// result is never empty for n > 0.
func (a *Agent) Candidates(rng *rand.Rand, n int) [][]float64 {
	batch := a.sampler.Sample(rng, n)
	if a.samplingMode < SamplingMixed {
		return batch
	}

	scaled := make([][]float64, 0, len(batch))

	for _, x := range batch {
		denorm := a.bounds.Denormalize(x)

		row := make([]float64, len(x))
		inside := true

		for i := range x {
			width := a.bounds.Upper[i] - a.bounds.Lower[i]
			if width == 0 {
				row[i] = 0

				continue
			}

			row[i] = (a.state.AlphaMin[i]*denorm[i] - a.bounds.Lower[i]) / width
			if row[i] < 0 || row[i] > 1 {
				inside = false

				break
			}
		}

		if inside {
			scaled = append(scaled, row)
		}
	}

	if len(scaled) == 0 {
		return batch
	}

	return scaled
}

// Record appends an evaluated point to the agent's state.
func (a *Agent) Record(r FeasibilityRecord, foundExploit bool) error {
	return a.state.Record(r, foundExploit, a.bounds.Denormalize(r.X))
}

// UpdateBestTime sets the agent's best time; the allocation is derived from
// the normalized vector x.
func (a *Agent) UpdateBestTime(minTime float64, x []float64) {
	a.state.UpdateBest(minTime, a.bounds.Denormalize(x))
}

// RestoreBest sets the agent's best time back to a previous value. Unlike
// UpdateBestTime, alpha is already denormalized.
func (a *Agent) RestoreBest(minTime float64, alpha []float64) {
	a.state.UpdateBest(minTime, alpha)
}

// SetCandidatePool keeps the last candidate batch for the checkpoint.
func (a *Agent) SetCandidatePool(batch [][]float64) {
	a.state.CandidatePool = batch
}

// mark captures the state an uncommitted iteration may change.
func (a *Agent) mark() stateMark { return a.state.mark() }

// rollback undoes everything done since m.
func (a *Agent) rollback(m stateMark) { a.state.rollback(m) }

// restore replaces the agent's state, used when resuming from a checkpoint.
func (a *Agent) restore(s *SearchState) error {
	if s.Dataset.Dim() != a.Dim() {
		return fmt.Errorf("%w: checkpoint for agent %q has dimension %d, agent %d",
			ErrConfiguration, a.name, s.Dataset.Dim(), a.Dim())
	}

	if err := s.Check(); err != nil {
		return fmt.Errorf("checkpoint for agent %q: %w", a.name, err)
	}

	a.state = s

	return nil
}
