package mfbo

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgent_Validation(t *testing.T) {
	valid := func() AgentConfig {
		return AgentConfig{
			Name:      "drone-1",
			Bounds:    testBounds(2),
			TimeBasis: ones(2),
			Surrogate: &fakeSurrogate{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*AgentConfig)
		ds     *FeasibilityDataset
	}{
		{"no surrogate", func(c *AgentConfig) { c.Surrogate = nil }, NewFeasibilityDataset(2)},
		{"no dataset", func(*AgentConfig) {}, nil},
		{"bad bounds", func(c *AgentConfig) { c.Bounds = Bounds{} }, NewFeasibilityDataset(2)},
		{"basis length", func(c *AgentConfig) { c.TimeBasis = ones(3) }, NewFeasibilityDataset(2)},
		{"basis sum", func(c *AgentConfig) { c.TimeBasis = []float64{1, -1} }, NewFeasibilityDataset(2)},
		{"dataset dimension", func(*AgentConfig) {}, NewFeasibilityDataset(3)},
		{"sampling mode", func(c *AgentConfig) { c.SamplingMode = 9 }, NewFeasibilityDataset(2)},
		{"sampler dimension", func(c *AgentConfig) { c.Sampler = &LHSSampler{dim: 5} }, NewFeasibilityDataset(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			_, err := NewAgent(cfg, tt.ds)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	agent, err := NewAgent(valid(), NewFeasibilityDataset(2))
	require.NoError(t, err)

	assert.Equal(t, "drone-1", agent.Name())
	assert.Equal(t, 2, agent.Dim())
	assert.Equal(t, 1.0, agent.State().MinTime)
	assert.Zero(t, agent.State().Dataset.Len())
}

func TestAgent_RetrainUsesDataset(t *testing.T) {
	var gotX [][]float64

	s := &recordingSurrogate{fakeSurrogate: &fakeSurrogate{}, onRetrain: func(x [][]float64, _ []int) {
		gotX = x
	}}

	agent, err := NewAgent(AgentConfig{
		Name:      "drone-1",
		Bounds:    testBounds(2),
		TimeBasis: ones(2),
		Surrogate: s,
	}, seedDataset(t, 2))
	require.NoError(t, err)

	require.NoError(t, agent.Retrain(context.Background()))
	assert.Len(t, gotX, 2)
}

type recordingSurrogate struct {
	*fakeSurrogate
	onRetrain func(x [][]float64, y []int)
}

func (r *recordingSurrogate) Retrain(ctx context.Context, x [][]float64, y []int) error {
	r.onRetrain(x, y)

	return r.fakeSurrogate.Retrain(ctx, x, y)
}

type shortSurrogate struct{ fakeSurrogate }

func (*shortSurrogate) Predict(context.Context, [][]float64) (Prediction, error) {
	return Prediction{Mean: []float64{0}, Variance: []float64{1}, Prob: []float64{0.5}}, nil
}

func TestAgent_PredictChecksLengths(t *testing.T) {
	agent := newTestAgent(t, "drone-1", 2, &shortSurrogate{})

	_, err := agent.Predict(context.Background(), [][]float64{{0.1, 0.1}, {0.2, 0.2}})
	assert.ErrorIs(t, err, ErrConfiguration)

	failing := newTestAgent(t, "drone-1", 2, &errSurrogate{})
	_, err = failing.Predict(context.Background(), [][]float64{{0.1, 0.1}})
	assert.ErrorIs(t, err, errOracleDown)
}

type errSurrogate struct{ fakeSurrogate }

func (*errSurrogate) Predict(context.Context, [][]float64) (Prediction, error) {
	return Prediction{}, errOracleDown
}

func TestAgent_CandidatesUnscaledModes(t *testing.T) {
	agent := newTestAgent(t, "drone-1", 2, &fakeSurrogate{})
	agent.UpdateBestTime(0.8, []float64{0.1, 0.1})

	got := agent.Candidates(rand.New(rand.NewSource(5)), 8)
	want := agent.Sampler().Sample(rand.New(rand.NewSource(5)), 8)

	assert.Equal(t, want, got, "LHS candidates ignore the best allocation")
}

func TestAgent_CandidatesRescaled(t *testing.T) {
	agent, err := NewAgent(AgentConfig{
		Name:         "drone-1",
		Bounds:       testBounds(2),
		TimeBasis:    ones(2),
		SamplingMode: SamplingMixed,
		Surrogate:    &fakeSurrogate{},
	}, seedDataset(t, 2))
	require.NoError(t, err)

	raw := agent.Sampler().Sample(rand.New(rand.NewSource(5)), 32)

	// With the nominal allocation the rescaling is the identity.
	got := agent.Candidates(rand.New(rand.NewSource(5)), 32)
	require.Len(t, got, 32)

	for i := range got {
		assert.InDeltaSlice(t, raw[i], got[i], 1e-12)
	}

	// Shrinking to 60% keeps only points that stay inside the bounds.
	agent.RestoreBest(0.6, []float64{0.6, 0.6})

	got = agent.Candidates(rand.New(rand.NewSource(5)), 32)
	require.NotEmpty(t, got)
	assert.Less(t, len(got), 32)

	for _, x := range got {
		for _, v := range x {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	// When nothing survives the unscaled batch is returned.
	agent.RestoreBest(0.1, []float64{0.1, 0.1})

	got = agent.Candidates(rand.New(rand.NewSource(5)), 32)
	assert.Equal(t, raw, got)
}

func TestAgent_RecordAndUpdateBest(t *testing.T) {
	agent := newTestAgent(t, "drone-1", 2, &fakeSurrogate{})

	agent.UpdateBestTime(0.7, []float64{0.2, 0.2})
	require.NoError(t, agent.Record(FeasibilityRecord{X: []float64{0.2, 0.2}, Label: 1, Iteration: 1}, true))

	s := agent.State()
	assert.InDeltaSlice(t, []float64{0.7, 0.7}, s.AlphaMin, 1e-12)
	assert.InDeltaSlice(t, []float64{0.7, 0.7}, s.History.AlphaCand[1], 1e-12)
	assert.Equal(t, 0.7, s.History.MinTime[1])
	assert.Equal(t, 1, s.Iteration)
}

func TestAgent_RollbackDropsUncommittedWork(t *testing.T) {
	agent := newTestAgent(t, "drone-1", 2, &fakeSurrogate{})
	m := agent.mark()

	agent.SetCandidatePool([][]float64{{0.4, 0.4}})
	agent.UpdateBestTime(0.7, []float64{0.2, 0.2})
	require.NoError(t, agent.Record(FeasibilityRecord{X: []float64{0.2, 0.2}, Label: 1, Iteration: 1}, true))

	agent.rollback(m)
	requireUntouched(t, agent, 2)

	// The truncated slots are reused by the next record.
	require.NoError(t, agent.Record(FeasibilityRecord{X: []float64{0.3, 0.3}, Label: 0, Iteration: 1}, false))

	s := agent.State()
	require.NoError(t, s.Check())
	assert.Equal(t, 3, s.Dataset.Len())
	assert.Equal(t, []float64{0.3, 0.3}, s.Dataset.Records()[2].X)
	assert.Equal(t, []int{1, 0}, s.History.Result)
	assert.Equal(t, 1.0, s.History.MinTime[1])
}

func TestAgent_RestoreRejectsBadState(t *testing.T) {
	agent := newTestAgent(t, "drone-1", 2, &fakeSurrogate{})

	err := agent.restore(NewSearchState(seedDataset(t, 3)))
	assert.True(t, errors.Is(err, ErrConfiguration))

	bad := NewSearchState(seedDataset(t, 2))
	bad.Iteration = 3
	assert.ErrorIs(t, agent.restore(bad), ErrConfiguration)

	assert.Zero(t, agent.State().Iteration)
}
