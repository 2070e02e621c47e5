package mfbo

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// Evaluator is the external feasibility oracle. It is treated as expensive
// and side-effect free. Evaluate returns 1 for feasible and 0 otherwise.
type Evaluator interface {
	Evaluate(ctx context.Context, x []float64) (int, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, x []float64) (int, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, x []float64) (int, error) {
	return f(ctx, x)
}

func checkLabel(y int) error {
	if y != 0 && y != 1 {
		return ErrInvalidLabel
	}

	return nil
}

// evaluate calls e and validates the label.
func evaluate(ctx context.Context, e Evaluator, x []float64) (int, error) {
	y, err := e.Evaluate(ctx, x)
	if err != nil {
		return 0, err
	}

	if err := checkLabel(y); err != nil {
		return 0, fmt.Errorf("%w: evaluator returned %d", err, y)
	}

	return y, nil
}

//////
// Resilient evaluation.
//////

// RetryConfig configures NewRetryingEvaluator.
type RetryConfig struct {
	// MaxAttempts is the number of attempts per evaluation.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// Multiplier grows the delay exponentially.
	Multiplier float64 `yaml:"multiplier"`

	// BreakerThreshold is the number of consecutive failed evaluations
	// (after retries) that opens the circuit. Zero disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

// DefaultRetryConfig returns three attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      3,
		InitialDelay:     100 * time.Millisecond,
		Multiplier:       2.0,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// RetryingEvaluator retries transient oracle failures and stops calling a
// persistently failing oracle. Invalid labels are never retried.
type RetryingEvaluator struct {
	next    Evaluator
	retrier retry.Retry[int]
	breaker circuitbreaker.CircuitBreaker[int]
}

// NewRetryingEvaluator wraps next.
func NewRetryingEvaluator(next Evaluator, cfg RetryConfig) *RetryingEvaluator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}

	r := &RetryingEvaluator{
		next: next,
		retrier: retry.New[int](retry.Config{
			MaxAttempts:        cfg.MaxAttempts,
			InitialDelay:       cfg.InitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         cfg.Multiplier,
			NonRetryableErrors: []error{ErrInvalidLabel, context.Canceled},
		}),
	}

	if cfg.BreakerThreshold > 0 {
		threshold := uint32(cfg.BreakerThreshold) // #nosec G115 -- checked positive above

		r.breaker = circuitbreaker.New[int](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	return r
}

// Evaluate runs the wrapped evaluator under retry and, if configured, the
// circuit breaker.
func (r *RetryingEvaluator) Evaluate(ctx context.Context, x []float64) (int, error) {
	attempt := func(ctx context.Context) (int, error) {
		return r.retrier.Do(ctx, func(ctx context.Context) (int, error) {
			y, err := r.next.Evaluate(ctx, x)
			if err != nil {
				return 0, err
			}

			if err := checkLabel(y); err != nil {
				return 0, err
			}

			return y, nil
		})
	}

	if r.breaker == nil {
		return attempt(ctx)
	}

	return r.breaker.Execute(ctx, attempt)
}

//////
// Two agent evaluation.
//////

// PairEvaluator evaluates a joint pick in stages: agent 1 alone, then agent 2
// alone, then the pair for collisions. A stage runs only if the previous one
// passed.
type PairEvaluator struct {
	Agent1 Evaluator
	Agent2 Evaluator
	Pair   Evaluator
}

// PairStage names the stage that rejected a joint pick.
type PairStage string

// Stages.
const (
	StageNone   PairStage = ""
	StageAgent1 PairStage = "agent1"
	StageAgent2 PairStage = "agent2"
	StagePair   PairStage = "pair"
)

// Evaluate returns 1 only if all three stages pass, along with the stage
// that failed otherwise.
func (p PairEvaluator) Evaluate(ctx context.Context, x1, x2 []float64) (int, PairStage, error) {
	y, err := evaluate(ctx, p.Agent1, x1)
	if err != nil {
		return 0, StageAgent1, err
	}

	if y == 0 {
		return 0, StageAgent1, nil
	}

	y, err = evaluate(ctx, p.Agent2, x2)
	if err != nil {
		return 0, StageAgent2, err
	}

	if y == 0 {
		return 0, StageAgent2, nil
	}

	joint := make([]float64, 0, len(x1)+len(x2))
	joint = append(joint, x1...)
	joint = append(joint, x2...)

	y, err = evaluate(ctx, p.Pair, joint)
	if err != nil {
		return 0, StagePair, err
	}

	if y == 0 {
		return 0, StagePair, nil
	}

	return 1, StageNone, nil
}
