package mfbo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/mfbo/store"
)

// fakeSurrogate is a deterministic, stateless surrogate: the feasibility
// probability is a function of the point only, so two runs over the same
// candidates make the same picks.
type fakeSurrogate struct {
	mu sync.Mutex

	// prob maps a point to its feasibility probability. Nil means 0.5.
	prob func(x []float64) float64

	// probByCall, when set, overrides prob with a function of the Predict
	// call number (starting at 1).
	probByCall func(call int, x []float64) float64

	retrainErr error
	retrains   int
	predicts   int
}

func constProb(p float64) func([]float64) float64 {
	return func([]float64) float64 { return p }
}

func (f *fakeSurrogate) Retrain(context.Context, [][]float64, []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.retrains++

	return f.retrainErr
}

func (f *fakeSurrogate) Predict(_ context.Context, x [][]float64) (Prediction, error) {
	if len(x) == 0 {
		return Prediction{}, ErrEmptyBatch
	}

	f.mu.Lock()
	f.predicts++
	call := f.predicts
	f.mu.Unlock()

	p := Prediction{
		Mean:     make([]float64, len(x)),
		Variance: make([]float64, len(x)),
		Prob:     make([]float64, len(x)),
	}

	for i, row := range x {
		prob := 0.5

		switch {
		case f.probByCall != nil:
			prob = f.probByCall(call, row)
		case f.prob != nil:
			prob = f.prob(row)
		}

		p.Prob[i] = prob
		p.Mean[i] = prob - 0.5
		p.Variance[i] = 0.25
	}

	return p, nil
}

// testBounds maps [0,1] onto [0.5, 1.5] in every dimension.
func testBounds(dim int) Bounds {
	return UniformBounds(dim, ParameterRange[float64]{Min: 0.5, Max: 1.5})
}

// seedDataset returns one infeasible and one feasible point.
func seedDataset(t *testing.T, dim int) *FeasibilityDataset {
	t.Helper()

	lo := make([]float64, dim)
	hi := make([]float64, dim)

	for i := range hi {
		lo[i] = 0.1
		hi[i] = 0.9
	}

	ds, err := NewFeasibilityDatasetFrom([][]float64{lo, hi}, []int{0, 1})
	require.NoError(t, err)

	return ds
}

func newTestAgent(t *testing.T, name string, dim int, s SurrogateModel) *Agent {
	t.Helper()

	agent, err := NewAgent(AgentConfig{
		Name:      name,
		Bounds:    testBounds(dim),
		TimeBasis: ones(dim),
		Surrogate: s,
	}, seedDataset(t, dim))
	require.NoError(t, err)

	return agent
}

// countingEvaluator returns label(x) and counts its calls.
type countingEvaluator struct {
	mu    sync.Mutex
	calls int
	seen  [][]float64
	label func(call int, x []float64) (int, error)
}

func (e *countingEvaluator) Evaluate(_ context.Context, x []float64) (int, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.seen = append(e.seen, cloneVector(x))
	e.mu.Unlock()

	return e.label(call, x)
}

func (e *countingEvaluator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

func always(y int) *countingEvaluator {
	return &countingEvaluator{label: func(int, []float64) (int, error) { return y, nil }}
}

var errOracleDown = errors.New("oracle unavailable")

// failingStore fails every write.
type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }

// flakyStore fails its first failures writes, then behaves like a memory store.
type flakyStore struct {
	*store.MemoryStore

	mu       sync.Mutex
	failures int
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{MemoryStore: store.NewMemoryStore(), failures: failures}
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()

		return errors.New("disk full")
	}
	s.mu.Unlock()

	return s.MemoryStore.Put(ctx, key, value)
}

// requireUntouched checks that an agent is still in its initial state.
func requireUntouched(t *testing.T, agent *Agent, datasetLen int) {
	t.Helper()

	state := agent.State()

	require.NoError(t, state.Check())
	assert.Equal(t, 0, state.Iteration, agent.Name())
	assert.Equal(t, datasetLen, state.Dataset.Len(), agent.Name())
	assert.Equal(t, 1, state.History.Len(), agent.Name())
	assert.Equal(t, 1.0, state.MinTime, agent.Name())
	assert.Equal(t, ones(agent.Dim()), state.AlphaMin, agent.Name())
	assert.Zero(t, state.NumLowFidelity, agent.Name())
	assert.Zero(t, state.NumFoundExploit, agent.Name())
	assert.Nil(t, state.CandidatePool, agent.Name())
}
