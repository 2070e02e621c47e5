package mfbo

import (
	"fmt"
	"math/rand"
)

// CandidateSampler produces candidate parameter vectors in [0,1]^d.
//
// Sample must return exactly n points. Samplers may keep state (a fitted
// distribution) but must draw all randomness from rng so that a run is
// reproducible from its seed.
type CandidateSampler interface {
	Sample(rng *rand.Rand, n int) [][]float64
	Dim() int
}

// Sampling modes accepted by NewSampler.
const (
	SamplingLHS         = 0
	SamplingTraj        = 1
	SamplingMixed       = 2
	SamplingTrajWide    = 3
	SamplingTrajWider   = 4
	SamplingTrajFlat    = 5
	SamplingTrajNarrow  = 6
	SamplingLHSVariant  = 7
	trajSamplerMean     = 0.5
	trajSamplerMaxDraws = 64
)

// NewSampler returns the sampler for a sampling mode:
//
//   - 0, 7: Latin hypercube design
//   - 1: Gaussian trajectory sampler, sigma 0.2
//   - 2: half Latin hypercube, half Gaussian (sigma 0.2)
//   - 3: Gaussian, sigma 0.5
//   - 4: Gaussian, sigma 1.0
//   - 5: Gaussian, sigma 20 (close to uniform)
//   - 6: Gaussian, sigma 0.05
//
// Any other mode is a configuration error.
func NewSampler(mode, dim int) (CandidateSampler, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: sampler dimension must be positive, got %d", ErrConfiguration, dim)
	}

	switch mode {
	case SamplingLHS, SamplingLHSVariant:
		return &LHSSampler{dim: dim}, nil
	case SamplingTraj:
		return NewTrajSampler(dim, 0.2), nil
	case SamplingMixed:
		return &MixedSampler{
			lhs:  &LHSSampler{dim: dim},
			traj: NewTrajSampler(dim, 0.2),
		}, nil
	case SamplingTrajWide:
		return NewTrajSampler(dim, 0.5), nil
	case SamplingTrajWider:
		return NewTrajSampler(dim, 1.0), nil
	case SamplingTrajFlat:
		return NewTrajSampler(dim, 20.0), nil
	case SamplingTrajNarrow:
		return NewTrajSampler(dim, 0.05), nil
	default:
		return nil, fmt.Errorf("%w: unsupported sampling mode %d", ErrConfiguration, mode)
	}
}

// LHSSampler draws a Latin hypercube design: every dimension is split into n
// strata and each stratum holds exactly one point.
type LHSSampler struct {
	dim int
}

// Dim implements CandidateSampler.
func (s *LHSSampler) Dim() int { return s.dim }

// Sample implements CandidateSampler.
func (s *LHSSampler) Sample(rng *rand.Rand, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, s.dim)
	}

	for d := 0; d < s.dim; d++ {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			out[i][d] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}

	return out
}

// TrajSampler draws time allocation vectors from an isotropic Gaussian around
// the nominal allocation and truncates them to [0,1] by resampling each
// out-of-range component.
type TrajSampler struct {
	dim   int
	mean  []float64
	sigma float64
}

// NewTrajSampler creates a TrajSampler centred on the nominal allocation.
func NewTrajSampler(dim int, sigma float64) *TrajSampler {
	mean := make([]float64, dim)
	for i := range mean {
		mean[i] = trajSamplerMean
	}

	return &TrajSampler{dim: dim, mean: mean, sigma: sigma}
}

// Dim implements CandidateSampler.
func (s *TrajSampler) Dim() int { return s.dim }

// Sigma returns the standard deviation of the sampler.
func (s *TrajSampler) Sigma() float64 { return s.sigma }

// Sample implements CandidateSampler.
func (s *TrajSampler) Sample(rng *rand.Rand, n int) [][]float64 {
	out := make([][]float64, n)

	for i := range out {
		row := make([]float64, s.dim)
		for d := range row {
			row[d] = s.component(rng, d)
		}

		out[i] = row
	}

	return out
}

func (s *TrajSampler) component(rng *rand.Rand, d int) float64 {
	for attempt := 0; attempt < trajSamplerMaxDraws; attempt++ {
		v := s.mean[d] + s.sigma*rng.NormFloat64()
		if v >= 0 && v <= 1 {
			return v
		}
	}

	// Very wide sigma barely ever lands inside; fall back to uniform.
	return rng.Float64()
}

// MixedSampler returns half its points from a Latin hypercube and half from a
// Gaussian trajectory sampler.
type MixedSampler struct {
	lhs  *LHSSampler
	traj *TrajSampler
}

// Dim implements CandidateSampler.
func (s *MixedSampler) Dim() int { return s.lhs.dim }

// Sample implements CandidateSampler.
func (s *MixedSampler) Sample(rng *rand.Rand, n int) [][]float64 {
	half := n / 2

	out := s.lhs.Sample(rng, half)

	return append(out, s.traj.Sample(rng, n-half)...)
}
