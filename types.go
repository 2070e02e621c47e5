package mfbo

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Fidelity tags how a feasibility label was obtained.
type Fidelity int

const (
	// FidelityLow marks cheap evaluations used to train the surrogate.
	FidelityLow Fidelity = 0

	// FidelityHigh marks expensive evaluations. The loop in this package never
	// produces them, but the seeded baseline entry and the persisted schema
	// carry the tag so high fidelity checkpoints can be read back.
	FidelityHigh Fidelity = 1
)

// ProgressUpdate represents the current state of the active learning loop.
type ProgressUpdate struct {
	// Phase is "single" for the single agent loop and "joint" for the two
	// agent controller.
	Phase string

	// CurrentIteration is the iteration that just completed (1-based).
	CurrentIteration int

	// TotalIterations is the number of iterations the loop was asked to run.
	TotalIterations int

	// CurrentParams holds the normalized parameter vector just evaluated.
	CurrentParams []float64

	// CurrentBestParams holds the denormalized best parameter vector so far.
	CurrentBestParams []float64

	// CurrentBestTime holds the best feasible trajectory time so far.
	CurrentBestTime float64

	// FoundByExploit reports whether the evaluated point came from the
	// exploit rule.
	FoundByExploit bool

	// LastResult holds the feasibility label of the evaluated point.
	LastResult int
}

// ParameterRange defines the valid range of one component of a time allocation
// vector before normalization.
//
// Usage:
//
//	// Segment times may shrink to 60% or stretch to 140% of the reference.
//	r := ParameterRange[float64]{Min: 0.6, Max: 1.4}
//	bounds := UniformBounds(4, r)
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// Bounds maps normalized vectors in [0,1]^d onto the physical domain.
//
// Lower and Upper must have the same length, which is the dimensionality of
// the vectors they denormalize.
type Bounds struct {
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

// UniformBounds returns bounds of dimension dim with every component in r.
func UniformBounds[T constraints.Integer | constraints.Float](dim int, r ParameterRange[T]) Bounds {
	b := Bounds{
		Lower: make([]float64, dim),
		Upper: make([]float64, dim),
	}

	for i := 0; i < dim; i++ {
		b.Lower[i] = float64(r.Min)
		b.Upper[i] = float64(r.Max)
	}

	return b
}

// Dim returns the dimensionality of the bounds.
func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Validate checks that the bounds are well formed.
func (b Bounds) Validate() error {
	if len(b.Lower) == 0 {
		return fmt.Errorf("%w: bounds are empty", ErrConfiguration)
	}

	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("%w: lower bound has %d components, upper bound has %d",
			ErrConfiguration, len(b.Lower), len(b.Upper))
	}

	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("%w: component %d has lower %v above upper %v",
				ErrConfiguration, i, b.Lower[i], b.Upper[i])
		}
	}

	return nil
}

// Denormalize maps x from [0,1]^d onto the physical domain.
//
// Panics if x does not have the dimensionality of the bounds; dimensionality
// is checked once at construction.
func (b Bounds) Denormalize(x []float64) []float64 {
	if len(x) != len(b.Lower) {
		panic(fmt.Sprintf("mfbo: vector of length %d denormalized with bounds of length %d", len(x), len(b.Lower)))
	}

	out := make([]float64, len(x))
	for i := range x {
		out[i] = b.Lower[i] + x[i]*(b.Upper[i]-b.Lower[i])
	}

	return out
}

// FeasibilityRecord is one evaluated point.
type FeasibilityRecord struct {
	X         []float64 `yaml:"x"`
	Label     int       `yaml:"label"`
	Fidelity  Fidelity  `yaml:"fidelity"`
	Iteration int       `yaml:"iteration"`
}

// Prediction holds the surrogate outputs for a candidate batch. All slices
// have the length of the batch.
type Prediction struct {
	Mean     []float64
	Variance []float64
	Prob     []float64
}

// Len returns the number of predicted points.
func (p Prediction) Len() int {
	return len(p.Prob)
}

func (p Prediction) validate(n int) error {
	if len(p.Mean) != n || len(p.Variance) != n || len(p.Prob) != n {
		return fmt.Errorf("%w: prediction lengths (%d, %d, %d) do not match batch of %d",
			ErrConfiguration, len(p.Mean), len(p.Variance), len(p.Prob), n)
	}

	return nil
}

// IterationMetrics are the scalars emitted after every committed iteration.
type IterationMetrics struct {
	// Agent names the search the metrics belong to.
	Agent string

	// Iteration is the 1-based index of the committed iteration.
	Iteration int

	// MinTime is the current best feasible time.
	MinTime float64

	// NumLowFidelity is the cumulative count of low fidelity evaluations.
	NumLowFidelity int

	// NumFoundExploit is the cumulative count of exploit picks.
	NumFoundExploit int

	// NumFailures counts high fidelity entries with a zero result. The loop
	// only produces low fidelity entries so this stays at zero unless a
	// checkpoint carrying high fidelity history is resumed.
	NumFailures int

	// RelQuality is the quality metric of the entry holding the best time.
	RelQuality float64
}
