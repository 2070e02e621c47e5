package mfbo

import "errors"

//////
// Error taxonomy.
//////

var (
	// ErrConfiguration is fatal: unsupported sampling mode, mismatched
	// dimensionality, missing construction arguments.
	ErrConfiguration = errors.New("mfbo: invalid configuration")

	// ErrStarvation reports a rejection round with zero accepted candidates.
	// It is logged as a warning and answered by relaxing the threshold.
	ErrStarvation = errors.New("mfbo: rejection round accepted no candidates")

	// ErrRejectionCapExceeded reports that a rejection loop hit its round cap.
	// The accompanying batch is a degraded, best-effort result.
	ErrRejectionCapExceeded = errors.New("mfbo: rejection sampling cap exceeded")

	// ErrSurrogateTraining reports that the surrogate could not be retrained,
	// usually because the dataset is empty or has a single class. The loop
	// keeps the previous model.
	ErrSurrogateTraining = errors.New("mfbo: surrogate training failed")

	// ErrPersistence reports a failed checkpoint write. The previous checkpoint
	// stays intact.
	ErrPersistence = errors.New("mfbo: checkpoint persistence failed")

	// ErrEmptyBatch is returned when a policy receives no candidates.
	ErrEmptyBatch = errors.New("mfbo: empty candidate batch")

	// ErrInvalidLabel is returned for labels outside {0, 1}.
	ErrInvalidLabel = errors.New("mfbo: label must be 0 or 1")
)
