package mfbo

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/thalesfsp/mfbo/logging"
)

// InitialDatasetConfig configures BuildInitialDataset.
type InitialDatasetConfig struct {
	// Size is the total number of points; half of each class. Must be even.
	Size int `yaml:"size"`

	// BatchSize is the number of points sampled per round.
	BatchSize int `yaml:"batch_size"`

	// MaxRounds caps the sampling rounds.
	MaxRounds int `yaml:"max_rounds"`
}

// DefaultInitialDatasetConfig returns 200 points sampled in batches of 100.
func DefaultInitialDatasetConfig() InitialDatasetConfig {
	return InitialDatasetConfig{
		Size:      200,
		BatchSize: 100,
		MaxRounds: 1000,
	}
}

// BuildInitialDataset samples and evaluates batches until both classes have
// at least Size/2 points, then returns a balanced dataset with the infeasible
// half first. All records are low fidelity at iteration zero.
func BuildInitialDataset(
	ctx context.Context,
	sampler CandidateSampler,
	evaluator Evaluator,
	cfg InitialDatasetConfig,
	rng *rand.Rand,
) (*FeasibilityDataset, error) {
	if cfg.Size <= 0 || cfg.Size%2 != 0 {
		return nil, fmt.Errorf("%w: initial dataset size must be positive and even, got %d", ErrConfiguration, cfg.Size)
	}

	if cfg.BatchSize <= 0 || cfg.MaxRounds <= 0 {
		return nil, fmt.Errorf("%w: batch size and round cap must be positive", ErrConfiguration)
	}

	half := cfg.Size / 2

	var infeasible, feasible [][]float64

	for round := 0; len(infeasible) < half || len(feasible) < half; round++ {
		if round >= cfg.MaxRounds {
			return nil, fmt.Errorf("%w: initial dataset has %d infeasible and %d feasible points after %d rounds",
				ErrRejectionCapExceeded, len(infeasible), len(feasible), round)
		}

		for _, x := range sampler.Sample(rng, cfg.BatchSize) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			y, err := evaluate(ctx, evaluator, x)
			if err != nil {
				return nil, err
			}

			if y == 1 {
				feasible = append(feasible, x)
			} else {
				infeasible = append(infeasible, x)
			}
		}

		logging.Debug().
			Add(logging.Count("infeasible", len(infeasible))).
			Add(logging.Count("feasible", len(feasible))).
			Msg("sampling initial dataset")
	}

	ds := NewFeasibilityDataset(sampler.Dim())

	for i, group := range [][][]float64{infeasible[:half], feasible[:half]} {
		for _, x := range group {
			if err := ds.Append(FeasibilityRecord{X: x, Label: i, Fidelity: FidelityLow}); err != nil {
				return nil, err
			}
		}
	}

	return ds, nil
}
