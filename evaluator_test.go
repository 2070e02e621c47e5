package mfbo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
	}
}

func TestEvaluatorFunc(t *testing.T) {
	e := EvaluatorFunc(func(_ context.Context, x []float64) (int, error) {
		if x[0] > 0.5 {
			return 1, nil
		}

		return 0, nil
	})

	y, err := e.Evaluate(context.Background(), []float64{0.7})
	require.NoError(t, err)
	assert.Equal(t, 1, y)
}

func TestEvaluate_RejectsBadLabels(t *testing.T) {
	_, err := evaluate(context.Background(), always(3), []float64{0.1})
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestRetryingEvaluator_RetriesTransientFailures(t *testing.T) {
	oracle := &countingEvaluator{label: func(call int, _ []float64) (int, error) {
		if call < 3 {
			return 0, errOracleDown
		}

		return 1, nil
	}}

	y, err := NewRetryingEvaluator(oracle, fastRetry()).Evaluate(context.Background(), []float64{0.5})
	require.NoError(t, err)

	assert.Equal(t, 1, y)
	assert.Equal(t, 3, oracle.Calls())
}

func TestRetryingEvaluator_InvalidLabelIsNotRetried(t *testing.T) {
	oracle := always(7)

	_, err := NewRetryingEvaluator(oracle, fastRetry()).Evaluate(context.Background(), []float64{0.5})
	require.ErrorIs(t, err, ErrInvalidLabel)

	assert.Equal(t, 1, oracle.Calls())
}

func TestRetryingEvaluator_BreakerStopsCalls(t *testing.T) {
	oracle := &countingEvaluator{label: func(int, []float64) (int, error) {
		return 0, errOracleDown
	}}

	cfg := RetryConfig{
		MaxAttempts:      1,
		InitialDelay:     time.Millisecond,
		BreakerThreshold: 2,
		BreakerTimeout:   time.Minute,
	}

	e := NewRetryingEvaluator(oracle, cfg)

	for i := 0; i < 2; i++ {
		_, err := e.Evaluate(context.Background(), []float64{0.5})
		require.Error(t, err)
	}

	_, err := e.Evaluate(context.Background(), []float64{0.5})
	require.Error(t, err)

	assert.Equal(t, 2, oracle.Calls(), "an open circuit does not reach the oracle")
}

func TestPairEvaluator_Stages(t *testing.T) {
	tests := []struct {
		name      string
		y1, y2, y int
		wantY     int
		wantStage PairStage
		wantCalls [3]int
	}{
		{"all pass", 1, 1, 1, 1, StageNone, [3]int{1, 1, 1}},
		{"agent 1 fails", 0, 1, 1, 0, StageAgent1, [3]int{1, 0, 0}},
		{"agent 2 fails", 1, 0, 1, 0, StageAgent2, [3]int{1, 1, 0}},
		{"collision", 1, 1, 0, 0, StagePair, [3]int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e1, e2, e12 := always(tt.y1), always(tt.y2), always(tt.y)

			pe := PairEvaluator{Agent1: e1, Agent2: e2, Pair: e12}

			y, stage, err := pe.Evaluate(context.Background(), []float64{0.1, 0.2}, []float64{0.3, 0.4})
			require.NoError(t, err)

			assert.Equal(t, tt.wantY, y)
			assert.Equal(t, tt.wantStage, stage)
			assert.Equal(t, tt.wantCalls, [3]int{e1.Calls(), e2.Calls(), e12.Calls()})

			if e12.Calls() > 0 {
				assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, e12.seen[0])
			}
		})
	}
}

func TestPairEvaluator_Errors(t *testing.T) {
	failing := &countingEvaluator{label: func(int, []float64) (int, error) { return 0, errOracleDown }}

	pe := PairEvaluator{Agent1: always(1), Agent2: failing, Pair: always(1)}

	_, stage, err := pe.Evaluate(context.Background(), []float64{0.1}, []float64{0.2})
	assert.ErrorIs(t, err, errOracleDown)
	assert.Equal(t, StageAgent2, stage)

	pe = PairEvaluator{Agent1: always(1), Agent2: always(1), Pair: always(5)}

	_, stage, err = pe.Evaluate(context.Background(), []float64{0.1}, []float64{0.2})
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.Equal(t, StagePair, stage)
}
