package mfbo

import (
	"context"
	"fmt"
	"math"
	"sync"
)

//////
// Const, vars, types.
//////

// GaussianProcess is the built-in SurrogateModel: a thread-safe kernel
// classifier over normalized time allocation vectors. Labels are mapped to
// -1 (infeasible) and +1 (feasible) and smoothed with an RBF kernel.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - x: training inputs of the last successful Retrain
// - y: training labels mapped to -1/+1
// - sigma: kernel width
// - noise: prior weight pulling the mean to zero far from the data
// - scale: probit slope turning the mean into a feasibility probability
//
// Thread safety:
// - Retrain takes the write lock, Predict the read lock
// - A failed Retrain leaves the previous training set untouched.
type GaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// x stores the training inputs
	x [][]float64

	// y stores the training labels as -1/+1
	y []float64

	// sigma is the kernel width parameter
	// Larger values = smoother decision boundary
	// Smaller values = more local influence
	sigma float64

	// noise is the prior pseudo-count at mean zero
	noise float64

	// scale is the probit slope
	scale float64
}

//////
// Methods.
//////

// RBFKernel implements the Radial Basis Function (Gaussian) kernel.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points.
func (gp *GaussianProcess) RBFKernel(x1, x2 []float64) float64 {
	gp.mu.RLock()
	sigma := gp.sigma
	gp.mu.RUnlock()

	return rbf(x1, x2, sigma)
}

func rbf(x1, x2 []float64, sigma float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * sigma * sigma))
}

// Retrain replaces the training set.
//
// Returns an error wrapping ErrSurrogateTraining when the dataset is empty or
// holds a single class, and ErrConfiguration when x and y disagree in length.
// In both cases the previous training set is kept.
func (gp *GaussianProcess) Retrain(_ context.Context, x [][]float64, y []int) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d inputs but %d labels", ErrConfiguration, len(x), len(y))
	}

	if len(x) == 0 {
		return fmt.Errorf("%w: empty dataset", ErrSurrogateTraining)
	}

	var feasible int

	signed := make([]float64, len(y))
	for i, label := range y {
		switch label {
		case 0:
			signed[i] = -1
		case 1:
			signed[i] = 1
			feasible++
		default:
			return fmt.Errorf("%w: got %d", ErrInvalidLabel, label)
		}
	}

	if feasible == 0 || feasible == len(y) {
		return fmt.Errorf("%w: dataset of %d points has a single class", ErrSurrogateTraining, len(y))
	}

	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.x = cloneMatrix(x)
	gp.y = signed

	return nil
}

// Predict returns mean, variance and feasibility probability for every row of
// x.
//
// Mathematical details:
// - w = sum_i k(x, x_i)
// - mean = sum_i k(x, x_i) * y_i / (w + noise)
// - variance = noise / (w + noise), which is 1 far from the data
// - prob = Phi(scale * mean / sqrt(1 + variance))
// - Returns mean 0, variance 1, prob 0.5 before the first Retrain.
func (gp *GaussianProcess) Predict(_ context.Context, x [][]float64) (Prediction, error) {
	if len(x) == 0 {
		return Prediction{}, ErrEmptyBatch
	}

	gp.mu.RLock()
	defer gp.mu.RUnlock()

	p := Prediction{
		Mean:     make([]float64, len(x)),
		Variance: make([]float64, len(x)),
		Prob:     make([]float64, len(x)),
	}

	for n, point := range x {
		var w, s float64

		for i := range gp.x {
			k := rbf(point, gp.x[i], gp.sigma)

			w += k
			s += k * gp.y[i]
		}

		mean := s / (w + gp.noise)
		variance := gp.noise / (w + gp.noise)

		p.Mean[n] = mean
		p.Variance[n] = variance
		p.Prob[n] = normalCDF(gp.scale * mean / math.Sqrt(1+variance))
	}

	return p, nil
}

// SetSigma updates the kernel width. No validation (caller's responsibility).
func (gp *GaussianProcess) SetSigma(sigma float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.sigma = sigma
}

// GetSigma returns the current kernel width.
func (gp *GaussianProcess) GetSigma() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.sigma
}

// Size returns the number of training points.
func (gp *GaussianProcess) Size() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.x)
}

//////
// Factory.
//////

// GaussianProcessConfig configures NewGaussianProcess. Zero values pick the
// defaults.
type GaussianProcessConfig struct {
	// Sigma is the kernel width (default 0.15, suited to inputs in [0,1]).
	Sigma float64 `yaml:"sigma"`

	// Noise is the prior pseudo-count (default 0.5).
	Noise float64 `yaml:"noise"`

	// Scale is the probit slope (default 3).
	Scale float64 `yaml:"scale"`
}

// NewGaussianProcess creates an untrained GaussianProcess.
//
// Usage example:
//
//	gp := NewGaussianProcess(GaussianProcessConfig{})
//	if err := gp.Retrain(ctx, ds.X(), ds.Y()); err != nil {
//	    // keep using the previous model
//	}
//	pred, err := gp.Predict(ctx, candidates)
func NewGaussianProcess(cfg GaussianProcessConfig) *GaussianProcess {
	if cfg.Sigma <= 0 {
		cfg.Sigma = 0.15
	}

	if cfg.Noise <= 0 {
		cfg.Noise = 0.5
	}

	if cfg.Scale <= 0 {
		cfg.Scale = 3
	}

	return &GaussianProcess{
		sigma: cfg.Sigma,
		noise: cfg.Noise,
		scale: cfg.Scale,
	}
}
