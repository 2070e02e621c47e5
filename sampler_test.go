package mfbo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampler_Modes(t *testing.T) {
	sigmas := map[int]float64{
		SamplingTraj:       0.2,
		SamplingTrajWide:   0.5,
		SamplingTrajWider:  1.0,
		SamplingTrajFlat:   20.0,
		SamplingTrajNarrow: 0.05,
	}

	for mode := 0; mode <= 7; mode++ {
		s, err := NewSampler(mode, 3)
		require.NoError(t, err, "mode %d", mode)
		assert.Equal(t, 3, s.Dim())

		switch mode {
		case SamplingLHS, SamplingLHSVariant:
			assert.IsType(t, &LHSSampler{}, s)
		case SamplingMixed:
			assert.IsType(t, &MixedSampler{}, s)
		default:
			traj, ok := s.(*TrajSampler)
			require.True(t, ok, "mode %d", mode)
			assert.Equal(t, sigmas[mode], traj.Sigma())
		}
	}

	for _, mode := range []int{-1, 8, 42} {
		_, err := NewSampler(mode, 3)
		assert.ErrorIs(t, err, ErrConfiguration, "mode %d", mode)
	}

	_, err := NewSampler(SamplingLHS, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLHSSampler_OnePointPerStratum(t *testing.T) {
	const n = 10

	s := &LHSSampler{dim: 3}
	points := s.Sample(rand.New(rand.NewSource(7)), n)
	require.Len(t, points, n)

	for d := 0; d < 3; d++ {
		seen := make(map[int]bool, n)

		for _, p := range points {
			require.Len(t, p, 3)
			seen[int(p[d]*n)] = true
		}

		assert.Len(t, seen, n, "dimension %d", d)
	}
}

func TestSamplers_StayInUnitCube(t *testing.T) {
	for mode := 0; mode <= 7; mode++ {
		s, err := NewSampler(mode, 4)
		require.NoError(t, err)

		points := s.Sample(rand.New(rand.NewSource(int64(mode))), 101)
		require.Len(t, points, 101, "mode %d", mode)

		for _, p := range points {
			for _, v := range p {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}

func TestSamplers_Deterministic(t *testing.T) {
	for mode := 0; mode <= 7; mode++ {
		s, err := NewSampler(mode, 2)
		require.NoError(t, err)

		a := s.Sample(rand.New(rand.NewSource(11)), 16)
		b := s.Sample(rand.New(rand.NewSource(11)), 16)

		assert.Equal(t, a, b, "mode %d", mode)
	}
}
