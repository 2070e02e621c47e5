package mfbo

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/thalesfsp/mfbo/logging"
)

// Phase is a step of an iteration.
type Phase string

// Phases of the search lifecycle.
const (
	PhaseIdle     Phase = "idle"
	PhaseRetrain  Phase = "retrain"
	PhaseSelect   Phase = "select"
	PhaseEvaluate Phase = "evaluate"
	PhasePersist  Phase = "persist"
	PhaseDone     Phase = "done"
	PhaseFailed   Phase = "failed"
)

// Lifecycle events.
const (
	eventStart    statekit.EventType = "START"
	eventSelect   statekit.EventType = "SELECT"
	eventEvaluate statekit.EventType = "EVALUATE"
	eventPersist  statekit.EventType = "PERSIST"
	eventNext     statekit.EventType = "NEXT"
	eventFinish   statekit.EventType = "FINISH"
	eventFail     statekit.EventType = "FAIL"
)

// lifecycleContext is the statechart context.
type lifecycleContext struct {
	RunID       string
	Agent       string
	Iteration   int
	Remaining   int
	Transitions int
}

func logPhaseEntry(ctx **lifecycleContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx

	logging.Debug().
		Add(logging.RunID(c.RunID)).
		Add(logging.Agent(c.Agent)).
		Add(logging.Iteration(c.Iteration)).
		Add(logging.Str("event", string(event.Type))).
		Msg("lifecycle transition")
}

func countTransition(ctx **lifecycleContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	(*ctx).Transitions++
}

func guardIterationsLeft(ctx *lifecycleContext, _ statekit.Event) bool {
	return ctx != nil && ctx.Remaining > 0
}

// newLifecycleMachine builds the iteration statechart:
//
//	idle -> retrain -> select -> evaluate -> persist -> retrain | done
//
// and any non-final phase may fail.
func newLifecycleMachine() (*statekit.MachineConfig[*lifecycleContext], error) {
	return statekit.NewMachine[*lifecycleContext]("search").
		WithInitial(statekit.StateID(PhaseIdle)).
		WithContext(&lifecycleContext{}).
		WithAction("logEntry", logPhaseEntry).
		WithAction("countTransition", countTransition).
		WithGuard("iterationsLeft", guardIterationsLeft).
		State(statekit.StateID(PhaseIdle)).
		OnEntry("logEntry").
		On(eventStart).Target(statekit.StateID(PhaseRetrain)).Guard("iterationsLeft").Do("countTransition").
		On(eventFinish).Target(statekit.StateID(PhaseDone)).Do("countTransition").
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("countTransition").
		Done().
		State(statekit.StateID(PhaseRetrain)).
		OnEntry("logEntry").
		On(eventSelect).Target(statekit.StateID(PhaseSelect)).Do("countTransition").
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("countTransition").
		Done().
		State(statekit.StateID(PhaseSelect)).
		OnEntry("logEntry").
		On(eventEvaluate).Target(statekit.StateID(PhaseEvaluate)).Do("countTransition").
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("countTransition").
		Done().
		State(statekit.StateID(PhaseEvaluate)).
		OnEntry("logEntry").
		On(eventPersist).Target(statekit.StateID(PhasePersist)).Do("countTransition").
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("countTransition").
		Done().
		State(statekit.StateID(PhasePersist)).
		OnEntry("logEntry").
		On(eventNext).Target(statekit.StateID(PhaseRetrain)).Guard("iterationsLeft").Do("countTransition").
		On(eventFinish).Target(statekit.StateID(PhaseDone)).Do("countTransition").
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("countTransition").
		Done().
		State(statekit.StateID(PhaseDone)).
		Final().
		OnEntry("logEntry").
		Done().
		State(statekit.StateID(PhaseFailed)).
		Final().
		OnEntry("logEntry").
		Done().
		Build()
}

// lifecycle drives one run through the statechart and rejects out of order
// phase changes.
type lifecycle struct {
	interp *statekit.Interpreter[*lifecycleContext]
	ctx    *lifecycleContext
}

func newLifecycle(runID, agent string) (*lifecycle, error) {
	machine, err := newLifecycleMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle: %w", err)
	}

	c := &lifecycleContext{RunID: runID, Agent: agent}

	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(p **lifecycleContext) {
		*p = c
	})
	interp.Start()

	return &lifecycle{interp: interp, ctx: c}, nil
}

// Phase returns the current phase.
func (l *lifecycle) Phase() Phase {
	return Phase(l.interp.State().Value)
}

// Done reports whether a final phase was reached.
func (l *lifecycle) Done() bool {
	return l.interp.Done()
}

// setProgress updates the iteration and the iterations still to run.
func (l *lifecycle) setProgress(iteration, remaining int) {
	l.interp.UpdateContext(func(p **lifecycleContext) {
		(*p).Iteration = iteration
		(*p).Remaining = remaining
	})
}

// fire sends event and checks that the machine moved to want.
func (l *lifecycle) fire(event statekit.EventType, want Phase) error {
	from := l.Phase()

	l.interp.Send(statekit.Event{Type: event})

	if got := l.Phase(); got != want {
		return fmt.Errorf("%w: lifecycle event %s from %s led to %s, want %s",
			ErrConfiguration, event, from, got, want)
	}

	return nil
}

// fail moves to the failed phase unless already final.
func (l *lifecycle) fail() {
	if !l.Done() {
		l.interp.Send(statekit.Event{Type: eventFail})
	}
}
