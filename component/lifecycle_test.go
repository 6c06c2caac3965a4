package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_TableMatchesLifecycle(t *testing.T) {
	tests := []struct {
		from      State
		event     Event
		wantState State
		wantOK    bool
	}{
		{StateStandby, EventInitialize, StateReady, true},
		{StateStandby, EventStart, StateStandby, false},
		{StateStandby, EventStop, StateStandby, false},
		{StateStandby, EventStandDown, StateStandby, false},
		{StateReady, EventInitialize, StateReady, false},
		{StateReady, EventStart, StateRunning, true},
		{StateReady, EventStop, StateReady, false},
		{StateReady, EventStandDown, StateStandby, true},
		{StateRunning, EventInitialize, StateRunning, false},
		{StateRunning, EventStart, StateRunning, false},
		{StateRunning, EventStop, StateReady, true},
		{StateRunning, EventStandDown, StateRunning, false},
	}
	for _, tt := range tests {
		got, ok := Transition(tt.from, tt.event)
		assert.Equal(t, tt.wantOK, ok, "from=%s event=%s", tt.from, tt.event)
		assert.Equal(t, tt.wantState, got, "from=%s event=%s", tt.from, tt.event)
	}
}

type fakeLifecycleComponent struct {
	handled []Event
	failOn  Event
}

func (f *fakeLifecycleComponent) Meta() Metadata               { return Metadata{Name: "fake"} }
func (f *fakeLifecycleComponent) InputPorts() []Port            { return nil }
func (f *fakeLifecycleComponent) OutputPorts() []Port           { return nil }
func (f *fakeLifecycleComponent) ConfigSchema() ConfigSchema    { return ConfigSchema{} }
func (f *fakeLifecycleComponent) Health() HealthStatus          { return HealthStatus{Healthy: true} }
func (f *fakeLifecycleComponent) DataFlow() FlowMetrics         { return FlowMetrics{} }
func (f *fakeLifecycleComponent) Handle(_ context.Context, event Event) error {
	f.handled = append(f.handled, event)
	if event == f.failOn {
		return assertError
	}
	return nil
}

var assertError = &customErr{"handle failed"}

type customErr struct{ msg string }

func (e *customErr) Error() string { return e.msg }

func TestManaged_ApplyAdvancesStateAndCallsHandle(t *testing.T) {
	fake := &fakeLifecycleComponent{failOn: Event(-1)}
	m := &Managed{Name: "test", Component: fake, State: StateStandby}

	require.NoError(t, m.Apply(context.Background(), EventInitialize))
	assert.Equal(t, StateReady, m.State)
	assert.Equal(t, []Event{EventInitialize}, fake.handled)
}

func TestManaged_ApplyNoOpEventLeavesStateAndSkipsHandle(t *testing.T) {
	fake := &fakeLifecycleComponent{}
	m := &Managed{Name: "test", Component: fake, State: StateStandby}

	require.NoError(t, m.Apply(context.Background(), EventStop))
	assert.Equal(t, StateStandby, m.State)
	assert.Empty(t, fake.handled)
}

func TestManaged_ApplyFailureDoesNotAdvanceState(t *testing.T) {
	fake := &fakeLifecycleComponent{failOn: EventInitialize}
	m := &Managed{Name: "test", Component: fake, State: StateStandby}

	err := m.Apply(context.Background(), EventInitialize)
	assert.Error(t, err)
	assert.Equal(t, StateStandby, m.State)
	assert.Equal(t, err, m.LastError)
}
