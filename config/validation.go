package config

import (
	"fmt"
	"strings"

	"github.com/thalesfsp/mfbo"
)

// ValidationError is one invalid field.
type ValidationError struct {
	// Path is the YAML path to the invalid field.
	Path string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every invalid field of a configuration.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	if len(e) == 1 {
		return e[0].Error()
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors reports whether any field is invalid.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

type validator struct {
	errors ValidationErrors
}

func (v *validator) add(path, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// check records err, if any, under path.
func (v *validator) check(path string, err error) {
	if err != nil {
		v.errors = append(v.errors, ValidationError{Path: path, Message: err.Error()})
	}
}

// Validate checks the whole configuration. The error wraps
// mfbo.ErrConfiguration and lists every invalid field.
func (c *Config) Validate() error {
	v := &validator{}

	v.validateStore(c.Store)
	v.validateAcquisition(c.Acquisition)
	v.validateRetry(c.Retry)
	v.validateSingle(c.Single)
	v.validateJoint(c)

	if v.errors.HasErrors() {
		return fmt.Errorf("%w: %w", mfbo.ErrConfiguration, v.errors)
	}

	return nil
}

func (v *validator) validateStore(s StoreConfig) {
	switch s.Backend {
	case BackendMemory:
	case BackendFile, BackendBadger, BackendSQLite:
		if s.Path == "" {
			v.add("store.path", "path is required for the %s backend", s.Backend)
		}
	default:
		v.add("store.backend", "unknown backend %q (memory, file, badger, sqlite)", s.Backend)
	}
}

func (v *validator) validateAcquisition(p mfbo.AcquisitionParams) {
	if p.Delta <= 0 || p.Delta > 1 {
		v.add("acquisition.delta", "must be in (0, 1], got %v", p.Delta)
	}

	if p.H < 0 || p.H >= 1 {
		v.add("acquisition.h", "must be in [0, 1), got %v", p.H)
	}
}

func (v *validator) validateRetry(r mfbo.RetryConfig) {
	if r.MaxAttempts < 1 {
		v.add("retry.max_attempts", "must be at least 1, got %d", r.MaxAttempts)
	}

	if r.InitialDelay < 0 {
		v.add("retry.initial_delay", "must not be negative")
	}

	if r.Multiplier < 1 {
		v.add("retry.multiplier", "must be at least 1, got %v", r.Multiplier)
	}

	if r.BreakerThreshold < 0 {
		v.add("retry.breaker_threshold", "must not be negative")
	}
}

func (v *validator) validateAgent(path string, a AgentSpec) {
	if a.Name == "" {
		v.add(path+".name", "name is required")
	}

	if len(a.Bounds.Lower) == 0 {
		if a.Dim <= 0 {
			v.add(path+".dim", "must be positive when no bounds are given, got %d", a.Dim)

			return
		}

		if a.MinScale > a.MaxScale {
			v.add(path+".min_scale", "min_scale %v exceeds max_scale %v", a.MinScale, a.MaxScale)
		}
	}

	b := a.AgentBounds()
	if err := b.Validate(); err != nil {
		v.check(path+".bounds", err)

		return
	}

	if len(a.TimeBasis) > 0 && len(a.TimeBasis) != b.Dim() {
		v.add(path+".time_basis", "has %d entries for %d segments", len(a.TimeBasis), b.Dim())
	}

	if _, err := mfbo.NewSampler(a.SamplingMode, b.Dim()); err != nil {
		v.check(path+".sampling_mode", err)
	}

	if len(a.Oracle.MinSegmentTime) != b.Dim() {
		v.add(path+".oracle.min_segment_time", "has %d entries for %d segments",
			len(a.Oracle.MinSegmentTime), b.Dim())
	}
}

func (v *validator) validateInitial(path string, c mfbo.InitialDatasetConfig) {
	if c.Size <= 0 || c.Size%2 != 0 {
		v.add(path+".size", "must be positive and even, got %d", c.Size)
	}

	if c.BatchSize <= 0 {
		v.add(path+".batch_size", "must be positive, got %d", c.BatchSize)
	}

	if c.MaxRounds <= 0 {
		v.add(path+".max_rounds", "must be positive, got %d", c.MaxRounds)
	}
}

func (v *validator) validateSingle(s SingleConfig) {
	if s.Iterations < 0 {
		v.add("single.iterations", "must not be negative, got %d", s.Iterations)
	}

	if s.NumCandidates <= 0 {
		v.add("single.num_candidates", "must be positive, got %d", s.NumCandidates)
	}

	if s.CheckpointKey == "" {
		v.add("single.checkpoint_key", "checkpoint key is required")
	}

	v.validateAgent("single.agent", s.Agent)
	v.validateInitial("single.initial", s.Initial)
}

func (v *validator) validateJoint(c *Config) {
	j := c.Joint

	if j.MinIters < 0 || j.MaxIters < 0 {
		v.add("joint.min_iters", "iteration bounds must not be negative")
	}

	if j.MinIters > j.MaxIters {
		v.add("joint.min_iters", "min_iters %d exceeds max_iters %d", j.MinIters, j.MaxIters)
	}

	if j.CheckpointKey == "" {
		v.add("joint.checkpoint_key", "checkpoint key is required")
	}

	if j.Drone1.Name != "" && j.Drone1.Name == j.Drone2.Name {
		v.add("joint.drone_2.name", "drones must have distinct names, both are %q", j.Drone1.Name)
	}

	v.validateAgent("joint.drone_1", j.Drone1)
	v.validateAgent("joint.drone_2", j.Drone2)
	v.validateInitial("joint.initial", j.Initial)

	d1, d2 := j.Drone1.AgentBounds().Dim(), j.Drone2.AgentBounds().Dim()
	if d1 != d2 {
		v.add("joint.drone_2", "has %d segments, drone_1 has %d", d2, d1)
	}

	if d1%2 != 0 {
		v.add("joint.drone_1", "joint search needs an even number of segments, got %d", d1)
	}

	if _, err := mfbo.NewSampler(j.Pair.SamplingMode, d1+d2); err != nil {
		v.check("joint.pair.sampling_mode", err)
	}

	if o := j.Pair.Oracle; o.Crossing < 0 || o.Crossing >= d1 {
		v.add("joint.pair.oracle.crossing", "waypoint %d out of range for %d segments", o.Crossing, d1)
	}

	g := c.JointConfig()

	if g.NS <= 0 || g.N1 <= 0 || g.N2 <= 0 {
		v.add("joint.generator", "n_s, n_1 and n_2 must be positive")
	}

	if g.MaxDrawRounds <= 0 || g.MaxRejectRounds <= 0 {
		v.add("joint.generator", "round caps must be positive")
	}

	if len(g.TSetSta) != d1 {
		v.add("joint.generator.t_set_sta", "has %d entries for %d segments", len(g.TSetSta), d1)
	}

	v.check("joint.generator.c_1", g.C1.Validate())
	v.check("joint.generator.c_2", g.C2.Validate())
}
