package mfbo

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInitialDataset_Balanced(t *testing.T) {
	oracle := &countingEvaluator{label: func(_ int, x []float64) (int, error) {
		if x[0] > 0.5 {
			return 1, nil
		}

		return 0, nil
	}}

	cfg := InitialDatasetConfig{Size: 10, BatchSize: 10, MaxRounds: 10}

	ds, err := BuildInitialDataset(context.Background(), &LHSSampler{dim: 2}, oracle, cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Equal(t, 10, ds.Len())
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, ds.Y())

	for i, r := range ds.Records() {
		assert.Equal(t, FidelityLow, r.Fidelity)

		if i < 5 {
			assert.LessOrEqual(t, r.X[0], 0.5)
		} else {
			assert.Greater(t, r.X[0], 0.5)
		}
	}

	// One LHS batch of ten holds exactly five points above 0.5.
	assert.Equal(t, 10, oracle.Calls())
}

func TestBuildInitialDataset_Errors(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	sampler := &LHSSampler{dim: 2}

	_, err := BuildInitialDataset(ctx, sampler, always(1), InitialDatasetConfig{Size: 5, BatchSize: 5, MaxRounds: 1}, rng)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = BuildInitialDataset(ctx, sampler, always(1), InitialDatasetConfig{Size: 4, BatchSize: 0, MaxRounds: 1}, rng)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = BuildInitialDataset(ctx, sampler, always(1), InitialDatasetConfig{Size: 4, BatchSize: 4, MaxRounds: 3}, rng)
	assert.ErrorIs(t, err, ErrRejectionCapExceeded)

	_, err = BuildInitialDataset(ctx, sampler, always(2), DefaultInitialDatasetConfig(), rng)
	assert.ErrorIs(t, err, ErrInvalidLabel)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = BuildInitialDataset(cancelled, sampler, always(1), DefaultInitialDatasetConfig(), rng)
	assert.ErrorIs(t, err, context.Canceled)
}
