package call

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	var transitions [][2]string
	m := newStateMachine(func(from, to string) {
		transitions = append(transitions, [2]string{from, to})
	})

	require.Equal(t, StateNew, m.current())
	require.True(t, m.fire(eventRing))
	require.True(t, m.fire(eventAnswer))
	require.True(t, m.fire(eventHold))
	require.True(t, m.fire(eventUnhold))
	require.True(t, m.fire(eventHangup))
	require.Equal(t, StateDone, m.current())
	require.True(t, m.terminal())

	require.Equal(t, [][2]string{
		{StateNew, StateRinging},
		{StateRinging, StateActive},
		{StateActive, StateHeld},
		{StateHeld, StateActive},
		{StateActive, StateDone},
	}, transitions)
}

func TestTerminalStatesRejectFurtherEvents(t *testing.T) {
	m := newStateMachine(nil)
	require.True(t, m.fire(eventHangup))
	require.False(t, m.fire(eventRing))
	require.False(t, m.fire(eventFail))
	require.Equal(t, StateDone, m.current())
}

func TestFailReachableFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range [][]string{
		{},
		{eventRing},
		{eventRing, eventAnswer},
		{eventRing, eventAnswer, eventHold},
		{eventRing, eventAnswer, eventRecover},
	} {
		m := newStateMachine(nil)
		for _, ev := range setup {
			require.True(t, m.fire(ev))
		}
		require.True(t, m.fire(eventFail), "setup %v", setup)
		require.Equal(t, StateError, m.current())
	}
}

func TestRecoveryRemembersHeldState(t *testing.T) {
	m := newStateMachine(nil)
	require.True(t, m.fire(eventRing))
	require.True(t, m.fire(eventAnswer))
	require.True(t, m.fire(eventHold))
	require.True(t, m.fire(eventRecover))
	require.Equal(t, StateRecovering, m.current())
	require.True(t, m.fire(m.resumeEvent()))
	require.Equal(t, StateHeld, m.current())

	// From active, resume returns to active.
	m = newStateMachine(nil)
	require.True(t, m.fire(eventRing))
	require.True(t, m.fire(eventAnswer))
	require.True(t, m.fire(eventRecover))
	require.True(t, m.fire(m.resumeEvent()))
	require.Equal(t, StateActive, m.current())
}
