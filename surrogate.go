package mfbo

import "context"

// SurrogateModel is the probabilistic feasibility classifier consumed by the
// loop. Any calibrated classifier satisfies it: the acquisition logic only
// looks at the returned mean, variance and feasibility probability.
//
// Implementations:
//   - Retrain must fail with an error wrapping ErrSurrogateTraining when the
//     dataset is empty or has a single class. The loop then keeps using the
//     previous model.
//   - Predict must accept batches of at least one point and return slices of
//     matching length with probabilities in [0,1].
//
// Retrain is a blocking call with no cancellation contract beyond ctx being
// passed through; the loop never checkpoints while it runs.
type SurrogateModel interface {
	Retrain(ctx context.Context, x [][]float64, y []int) error
	Predict(ctx context.Context, x [][]float64) (Prediction, error)
}
