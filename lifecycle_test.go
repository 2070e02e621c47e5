package mfbo

import (
	"testing"

	"github.com/felixgeelhaar/statekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_Iteration(t *testing.T) {
	lc, err := newLifecycle("run-1", "drone-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseIdle, lc.Phase())

	lc.setProgress(0, 2)

	steps := []struct {
		event statekit.EventType
		want  Phase
	}{
		{eventStart, PhaseRetrain},
		{eventSelect, PhaseSelect},
		{eventEvaluate, PhaseEvaluate},
		{eventPersist, PhasePersist},
		{eventNext, PhaseRetrain},
		{eventSelect, PhaseSelect},
		{eventEvaluate, PhaseEvaluate},
		{eventPersist, PhasePersist},
		{eventFinish, PhaseDone},
	}

	for _, s := range steps {
		require.NoError(t, lc.fire(s.event, s.want))
	}

	assert.True(t, lc.Done())
}

func TestLifecycle_RejectsOutOfOrderEvents(t *testing.T) {
	lc, err := newLifecycle("run-1", "drone-1")
	require.NoError(t, err)

	lc.setProgress(0, 1)
	require.NoError(t, lc.fire(eventStart, PhaseRetrain))

	err = lc.fire(eventPersist, PhasePersist)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, PhaseRetrain, lc.Phase())
}

func TestLifecycle_GuardNeedsIterationsLeft(t *testing.T) {
	lc, err := newLifecycle("run-1", "drone-1")
	require.NoError(t, err)

	lc.setProgress(3, 0)

	err = lc.fire(eventStart, PhaseRetrain)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, PhaseIdle, lc.Phase())

	require.NoError(t, lc.fire(eventFinish, PhaseDone))
}

func TestLifecycle_Fail(t *testing.T) {
	lc, err := newLifecycle("run-1", "drone-1")
	require.NoError(t, err)

	lc.setProgress(0, 1)
	require.NoError(t, lc.fire(eventStart, PhaseRetrain))

	lc.fail()
	assert.Equal(t, PhaseFailed, lc.Phase())
	assert.True(t, lc.Done())

	// Failing twice is a no-op.
	lc.fail()
	assert.Equal(t, PhaseFailed, lc.Phase())
}
