package component

import (
	"context"

	"github.com/ramoncreager/matrix/metric"
)

// State is a Component's position in the shared lifecycle machine.
type State int

const (
	StateStandby State = iota
	StateReady
	StateRunning
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Event is a lifecycle event the Architect broadcasts to every Component.
type Event int

const (
	EventInitialize Event = iota
	EventStart
	EventStop
	EventStandDown
)

// String implements fmt.Stringer for Event.
func (e Event) String() string {
	switch e {
	case EventInitialize:
		return "initialize"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventStandDown:
		return "stand_down"
	default:
		return "unknown"
	}
}

// Transition returns the state that follows applying event to from, and
// whether the transition is defined. A false result means the event is a
// no-op in that state — e.g. Stop while Standby — matching every empty
// cell in the lifecycle table exactly rather than treating it as an error.
func Transition(from State, event Event) (State, bool) {
	switch from {
	case StateStandby:
		if event == EventInitialize {
			return StateReady, true
		}
	case StateReady:
		switch event {
		case EventStart:
			return StateRunning, true
		case EventStandDown:
			return StateStandby, true
		}
	case StateRunning:
		if event == EventStop {
			return StateReady, true
		}
	}
	return from, false
}

// LifecycleComponent is a Component that participates in the Architect's
// driven lifecycle rather than being purely passive.
type LifecycleComponent interface {
	Discoverable
	Handle(ctx context.Context, event Event) error
}

// AsLifecycleComponent safely casts a Discoverable to LifecycleComponent.
func AsLifecycleComponent(c Discoverable) (LifecycleComponent, bool) {
	lc, ok := c.(LifecycleComponent)
	return lc, ok
}

// Managed tracks one component instance and its position in the lifecycle
// machine, plus the named child context the Architect drives it with —
// mirrors the teacher's ManagedComponent, adapted from a single linear
// Start/Stop pair to the cyclic Standby/Ready/Running machine.
type Managed struct {
	Name      string
	Component Discoverable

	State State

	Context context.Context
	Cancel  context.CancelFunc

	// StartOrder records the order components were instantiated in, so the
	// Architect can stand components down in reverse instantiation order.
	StartOrder int

	LastError error

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metric.CoreMetrics
}

// Apply drives m's lifecycle component (if it is one) through event and
// updates m.State to match, recording any Handle error as m.LastError
// without advancing the state.
func (m *Managed) Apply(ctx context.Context, event Event) error {
	next, ok := Transition(m.State, event)
	if !ok {
		return nil
	}

	if lc, isLifecycle := AsLifecycleComponent(m.Component); isLifecycle {
		if err := lc.Handle(ctx, event); err != nil {
			m.LastError = err
			return err
		}
	}

	m.State = next
	if m.Metrics != nil {
		m.Metrics.RecordComponentState(m.Name, int(next))
	}
	return nil
}
