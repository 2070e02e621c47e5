// Package sim provides analytic feasibility oracles for demos and tests. They
// stand in for the trajectory simulator: a drone is feasible when its
// segment times leave enough room for its acceleration limit, and a pair is
// feasible when the drones pass their shared waypoint far enough apart in
// time.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/thalesfsp/mfbo"
)

// DynamicsConfig configures a single drone oracle.
type DynamicsConfig struct {
	// MinSegmentTime is the time each segment needs at the acceleration
	// limit. A segment flown faster loads the drone quadratically.
	MinSegmentTime []float64 `yaml:"min_segment_time"`

	// MaxLoad is the highest mean load that is still feasible (default 1).
	MaxLoad float64 `yaml:"max_load"`
}

// Dynamics labels a segment time allocation as dynamically feasible.
type Dynamics struct {
	bounds  mfbo.Bounds
	basis   []float64
	minSeg  []float64
	maxLoad float64
	calls   atomic.Int64
}

// NewDynamics creates an oracle for an agent with the given bounds and time
// basis.
func NewDynamics(bounds mfbo.Bounds, basis []float64, cfg DynamicsConfig) (*Dynamics, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	d := bounds.Dim()

	if len(basis) != d || len(cfg.MinSegmentTime) != d {
		return nil, fmt.Errorf("%w: dynamics oracle needs %d basis times and %d segment minima, got %d and %d",
			mfbo.ErrConfiguration, d, d, len(basis), len(cfg.MinSegmentTime))
	}

	if cfg.MaxLoad <= 0 {
		cfg.MaxLoad = 1
	}

	return &Dynamics{
		bounds:  bounds,
		basis:   append([]float64(nil), basis...),
		minSeg:  append([]float64(nil), cfg.MinSegmentTime...),
		maxLoad: cfg.MaxLoad,
	}, nil
}

// Load returns the mean squared ratio of required to allocated segment time
// for a normalized vector. Non-positive segment times have infinite load.
func (o *Dynamics) Load(x []float64) float64 {
	alpha := o.bounds.Denormalize(x)

	total := 0.0

	for i, a := range alpha {
		t := a * o.basis[i]
		if t <= 0 {
			return math.Inf(1)
		}

		r := o.minSeg[i] / t
		total += r * r
	}

	return total / float64(len(alpha))
}

// Evaluate implements mfbo.Evaluator.
func (o *Dynamics) Evaluate(ctx context.Context, x []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(x) != o.bounds.Dim() {
		return 0, fmt.Errorf("%w: dynamics oracle got a vector of length %d, expected %d",
			mfbo.ErrConfiguration, len(x), o.bounds.Dim())
	}

	o.calls.Add(1)

	if o.Load(x) <= o.maxLoad {
		return 1, nil
	}

	return 0, nil
}

// Calls returns the number of evaluations.
func (o *Dynamics) Calls() int {
	return int(o.calls.Load())
}

//////
// Pair oracle.
//////

// SeparationConfig configures the pair oracle.
type SeparationConfig struct {
	// Crossing is the index of the waypoint both drones pass through.
	Crossing int `yaml:"crossing"`

	// MinGap is the minimum time between the two passages.
	MinGap float64 `yaml:"min_gap"`
}

// Separation labels a pair as collision free when the drones reach their
// shared waypoint at least MinGap apart.
type Separation struct {
	bounds1, bounds2 mfbo.Bounds
	basis1, basis2   []float64
	crossing         int
	minGap           float64
	calls            atomic.Int64
}

// NewSeparation creates a pair oracle. The joint vector is the agent 1
// vector followed by the agent 2 vector.
func NewSeparation(
	bounds1, bounds2 mfbo.Bounds,
	basis1, basis2 []float64,
	cfg SeparationConfig,
) (*Separation, error) {
	for _, b := range []mfbo.Bounds{bounds1, bounds2} {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}

	if len(basis1) != bounds1.Dim() || len(basis2) != bounds2.Dim() {
		return nil, fmt.Errorf("%w: separation oracle basis does not match bounds", mfbo.ErrConfiguration)
	}

	if cfg.Crossing < 0 || cfg.Crossing >= bounds1.Dim() || cfg.Crossing >= bounds2.Dim() {
		return nil, fmt.Errorf("%w: crossing waypoint %d out of range", mfbo.ErrConfiguration, cfg.Crossing)
	}

	if cfg.MinGap < 0 {
		return nil, fmt.Errorf("%w: minimum gap must not be negative, got %v", mfbo.ErrConfiguration, cfg.MinGap)
	}

	return &Separation{
		bounds1:  bounds1,
		bounds2:  bounds2,
		basis1:   append([]float64(nil), basis1...),
		basis2:   append([]float64(nil), basis2...),
		crossing: cfg.Crossing,
		minGap:   cfg.MinGap,
	}, nil
}

// Gap returns the time between the two passages of the crossing waypoint.
func (o *Separation) Gap(x []float64) float64 {
	d1 := o.bounds1.Dim()

	t1 := arrival(o.bounds1.Denormalize(x[:d1]), o.basis1, o.crossing)
	t2 := arrival(o.bounds2.Denormalize(x[d1:]), o.basis2, o.crossing)

	return math.Abs(t1 - t2)
}

// Evaluate implements mfbo.Evaluator.
func (o *Separation) Evaluate(ctx context.Context, x []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	want := o.bounds1.Dim() + o.bounds2.Dim()
	if len(x) != want {
		return 0, fmt.Errorf("%w: separation oracle got a vector of length %d, expected %d",
			mfbo.ErrConfiguration, len(x), want)
	}

	o.calls.Add(1)

	if o.Gap(x) >= o.minGap {
		return 1, nil
	}

	return 0, nil
}

// Calls returns the number of evaluations.
func (o *Separation) Calls() int {
	return int(o.calls.Load())
}

// arrival is the time at which waypoint k is reached: the sum of the first
// k+1 segment times.
func arrival(alpha, basis []float64, k int) float64 {
	t := 0.0
	for i := 0; i <= k; i++ {
		t += alpha[i] * basis[i]
	}

	return t
}
