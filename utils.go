package mfbo

import (
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
)

//////
// Helper functions.
//////

// explorationEpsilon keeps the exploration score finite when the surrogate
// variance collapses to zero.
const explorationEpsilon = 1e-9

// normalCDF computes the cumulative distribution function of the standard
// normal distribution. Used by the built-in surrogate's probit link.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// dot returns the inner product of a and b. The caller guarantees equal
// lengths.
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}

	return s
}

func sum(a []float64) float64 {
	var s float64
	for _, v := range a {
		s += v
	}

	return s
}

// ImpliedTime converts a normalized time allocation vector into its
// trajectory time relative to the time basis:
//
//	dot(denorm(x), basis) / sum(basis)
//
// A vector of all-ones ratios therefore has an implied time of 1.
func ImpliedTime(x []float64, bounds Bounds, basis []float64) float64 {
	return dot(bounds.Denormalize(x), basis) / sum(basis)
}

// argmax returns the first index holding the maximum value, or -1 for an empty
// slice. NaN entries never win.
func argmax[T constraints.Float](values []T) int {
	best := -1

	for i, v := range values {
		if v != v {
			continue
		}

		if best == -1 || v > values[best] {
			best = i
		}
	}

	return best
}

// roundThreshold removes the accumulated floating point error of repeated
// fixed-step threshold moves so that 0.7-0.01 compares equal to 0.69.
func roundThreshold(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

func cloneVector(x []float64) []float64 {
	if x == nil {
		return nil
	}

	out := make([]float64, len(x))
	copy(out, x)

	return out
}

func cloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}

	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = cloneVector(row)
	}

	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}

	return out
}

// iterationRNG returns the random source for one iteration. Deriving it from
// the seed and the iteration index, instead of threading one generator
// through the whole run, makes a resumed run draw the same candidates as an
// uninterrupted one.
func iterationRNG(seed int64, iteration int) *rand.Rand {
	return rand.New(rand.NewSource(seed*1_000_003 + int64(iteration)))
}
