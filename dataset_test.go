package mfbo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		wantErr bool
	}{
		{"uniform", testBounds(3), false},
		{"empty", Bounds{}, true},
		{"length mismatch", Bounds{Lower: []float64{0, 0}, Upper: []float64{1}}, true},
		{"inverted", Bounds{Lower: []float64{2}, Upper: []float64{1}}, true},
		{"degenerate", Bounds{Lower: []float64{1}, Upper: []float64{1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bounds.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBounds_Denormalize(t *testing.T) {
	b := Bounds{Lower: []float64{0.5, 1}, Upper: []float64{1.5, 3}}

	got := b.Denormalize([]float64{0.5, 0.25})
	assert.InDeltaSlice(t, []float64{1.0, 1.5}, got, 1e-12)

	assert.Panics(t, func() { b.Denormalize([]float64{0.5}) })
}

func TestImpliedTime(t *testing.T) {
	b := testBounds(2)

	// The middle of [0.5, 1.5] is the nominal allocation.
	assert.InDelta(t, 1.0, ImpliedTime([]float64{0.5, 0.5}, b, []float64{1, 1}), 1e-12)
	assert.InDelta(t, 0.7, ImpliedTime([]float64{0.2, 0.2}, b, []float64{1, 1}), 1e-12)

	// Weighted by the basis: (0.5*3 + 1.5*1) / 4.
	assert.InDelta(t, 0.75, ImpliedTime([]float64{0, 1}, b, []float64{3, 1}), 1e-12)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, -1, argmax([]float64{}))
	assert.Equal(t, 1, argmax([]float64{1, 3, 3, 2}))
	assert.Equal(t, 2, argmax([]float64{math.NaN(), math.NaN(), -5}))
}

func TestFeasibilityDataset_Append(t *testing.T) {
	ds := NewFeasibilityDataset(2)

	require.NoError(t, ds.Append(FeasibilityRecord{X: []float64{0.1, 0.2}, Label: 1}))
	assert.Equal(t, 1, ds.Len())

	err := ds.Append(FeasibilityRecord{X: []float64{0.1}, Label: 1})
	assert.ErrorIs(t, err, ErrConfiguration)

	err = ds.Append(FeasibilityRecord{X: []float64{0.1, 0.2}, Label: 2})
	assert.ErrorIs(t, err, ErrInvalidLabel)

	assert.Equal(t, 1, ds.Len(), "failed appends must not change the dataset")
}

func TestFeasibilityDataset_CopiesInputs(t *testing.T) {
	x := []float64{0.1, 0.2}

	ds := NewFeasibilityDataset(2)
	require.NoError(t, ds.Append(FeasibilityRecord{X: x, Label: 0}))

	x[0] = 0.9
	assert.Equal(t, 0.1, ds.X()[0][0])

	rows := ds.X()
	rows[0][1] = 0.9
	assert.Equal(t, 0.2, ds.Records()[0].X[1])
}

func TestNewFeasibilityDatasetFrom(t *testing.T) {
	ds, err := NewFeasibilityDatasetFrom(
		[][]float64{{0.1, 0.1}, {0.5, 0.5}, {0.9, 0.9}},
		[]int{0, 1, 1},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Dim())
	assert.Equal(t, []int{0, 1, 1}, ds.Y())

	infeasible, feasible := ds.Counts()
	assert.Equal(t, 1, infeasible)
	assert.Equal(t, 2, feasible)

	for _, r := range ds.Records() {
		assert.Equal(t, FidelityLow, r.Fidelity)
		assert.Zero(t, r.Iteration)
	}

	_, err = NewFeasibilityDatasetFrom([][]float64{{0.1}}, []int{0, 1})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFeasibilityDatasetFrom(nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSearchState_Baseline(t *testing.T) {
	s := NewSearchState(seedDataset(t, 3))

	assert.Equal(t, 1.0, s.MinTime)
	assert.Equal(t, []float64{1, 1, 1}, s.AlphaMin)
	assert.Zero(t, s.Iteration)
	require.NoError(t, s.Check())

	h := s.History
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, FidelityHigh, h.Fidelity[0])
	assert.Equal(t, 1, h.Result[0])
	assert.Equal(t, 1.0, h.Quality[0])
	assert.Equal(t, []float64{1, 1, 1}, h.AlphaCand[0])
}

func TestSearchState_Record(t *testing.T) {
	s := NewSearchState(seedDataset(t, 2))

	s.UpdateBest(0.8, []float64{0.8, 0.8})
	require.NoError(t, s.Record(FeasibilityRecord{X: []float64{0.3, 0.3}, Label: 1, Iteration: 1}, true, []float64{0.8, 0.8}))
	require.NoError(t, s.Record(FeasibilityRecord{X: []float64{0.6, 0.6}, Label: 0, Iteration: 2}, false, []float64{1.1, 1.1}))

	assert.Equal(t, 2, s.Iteration)
	assert.Equal(t, 2, s.NumLowFidelity)
	assert.Equal(t, 1, s.NumFoundExploit)
	assert.Equal(t, 4, s.Dataset.Len())
	require.NoError(t, s.Check())

	assert.Equal(t, []float64{1, 0.8, 0.8}, s.History.MinTime)
	assert.Equal(t, []int{1, 1, 0}, s.History.FoundExploit)
	assert.Equal(t, []int{1, 1, 0}, s.History.Result)
	assert.Equal(t, []float64{1, 1, 0}, s.History.Quality)

	// A rejected record leaves everything untouched.
	err := s.Record(FeasibilityRecord{X: []float64{0.6}, Label: 0}, false, nil)
	require.Error(t, err)
	assert.Equal(t, 2, s.Iteration)
	assert.Equal(t, 3, s.History.Len())
}

func TestSearchState_Check(t *testing.T) {
	s := NewSearchState(seedDataset(t, 2))

	s.Iteration = 4
	assert.ErrorIs(t, s.Check(), ErrConfiguration)

	s.Iteration = 0
	s.History.Result = append(s.History.Result, 1)
	assert.ErrorIs(t, s.Check(), ErrConfiguration)
}

func TestSearchState_Metrics(t *testing.T) {
	s := NewSearchState(seedDataset(t, 2))

	require.NoError(t, s.Record(FeasibilityRecord{X: []float64{0.3, 0.3}, Label: 1}, true, []float64{0.8, 0.8}))
	require.NoError(t, s.Record(FeasibilityRecord{X: []float64{0.3, 0.3}, Label: 0, Fidelity: FidelityHigh}, false, []float64{0.8, 0.8}))

	m := s.Metrics("drone-1")

	assert.Equal(t, "drone-1", m.Agent)
	assert.Equal(t, 2, m.Iteration)
	assert.Equal(t, 1.0, m.MinTime)
	assert.Equal(t, 1, m.NumLowFidelity)
	assert.Equal(t, 1, m.NumFoundExploit)
	assert.Equal(t, 1, m.NumFailures)
	assert.Equal(t, 1.0, m.RelQuality)
}
