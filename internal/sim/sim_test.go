package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/mfbo"
)

func testBounds(dim int) mfbo.Bounds {
	return mfbo.UniformBounds(dim, mfbo.ParameterRange[float64]{Min: 0.5, Max: 1.5})
}

func TestDynamics_Evaluate(t *testing.T) {
	o, err := NewDynamics(testBounds(2), []float64{1, 1}, DynamicsConfig{MinSegmentTime: []float64{1, 1}})
	require.NoError(t, err)

	tests := []struct {
		name string
		x    []float64
		want int
	}{
		{"slowest allocation", []float64{1, 1}, 1},
		{"exactly at the limit", []float64{0.5, 0.5}, 1},
		{"fastest allocation", []float64{0, 0}, 0},
		{"one short segment compensated", []float64{0.4, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, err := o.Evaluate(context.Background(), tt.x)
			require.NoError(t, err)
			assert.Equal(t, tt.want, y)
		})
	}

	assert.Equal(t, len(tests), o.Calls())
}

func TestDynamics_Errors(t *testing.T) {
	_, err := NewDynamics(testBounds(2), []float64{1}, DynamicsConfig{MinSegmentTime: []float64{1, 1}})
	assert.ErrorIs(t, err, mfbo.ErrConfiguration)

	o, err := NewDynamics(testBounds(2), []float64{1, 1}, DynamicsConfig{MinSegmentTime: []float64{1, 1}})
	require.NoError(t, err)

	_, err = o.Evaluate(context.Background(), []float64{0.5})
	assert.ErrorIs(t, err, mfbo.ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Evaluate(ctx, []float64{0.5, 0.5})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, o.Calls())
}

func TestSeparation_Evaluate(t *testing.T) {
	b := testBounds(2)

	o, err := NewSeparation(b, b, []float64{1, 1}, []float64{1, 1}, SeparationConfig{Crossing: 1, MinGap: 0.5})
	require.NoError(t, err)

	// Same allocation: both drones reach the crossing at the same time.
	y, err := o.Evaluate(context.Background(), []float64{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, y)

	// Drone 1 arrives at 1.0, drone 2 at 3.0.
	y, err = o.Evaluate(context.Background(), []float64{0, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, y)
	assert.InDelta(t, 2.0, o.Gap([]float64{0, 0, 1, 1}), 1e-12)

	_, err = o.Evaluate(context.Background(), []float64{0, 0, 1})
	assert.ErrorIs(t, err, mfbo.ErrConfiguration)
	assert.Equal(t, 2, o.Calls())
}

func TestNewSeparation_CrossingOutOfRange(t *testing.T) {
	b := testBounds(2)

	_, err := NewSeparation(b, b, []float64{1, 1}, []float64{1, 1}, SeparationConfig{Crossing: 2})
	assert.ErrorIs(t, err, mfbo.ErrConfiguration)
}
