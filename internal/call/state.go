// Package call owns the per-call session: its state machine, its media
// session and the signaling messages that move it between states.
package call

import (
	"context"

	"github.com/looplab/fsm"
)

// Call states.
const (
	StateNew        = "new"
	StateRinging    = "ringing"
	StateConnecting = "connecting"
	StateActive     = "active"
	StateHeld       = "held"
	StateRecovering = "recovering"
	StateDone       = "done"
	StateError      = "error"
)

// State machine events.
const (
	eventRing       = "ring"
	eventConnect    = "connect"
	eventAnswer     = "answer"
	eventHold       = "hold"
	eventUnhold     = "unhold"
	eventRecover    = "recover"
	eventResume     = "resume"
	eventResumeHeld = "resume_held"
	eventHangup     = "hangup"
	eventFail       = "fail"
)

var nonTerminalStates = []string{
	StateNew, StateRinging, StateConnecting, StateActive, StateHeld, StateRecovering,
}

// stateMachine wraps looplab/fsm for one call. Recovery returns the
// call to the state it held when the channel dropped, so the prior
// state is kept alongside the machine.
type stateMachine struct {
	fsm        *fsm.FSM
	priorState string
}

func newStateMachine(onTransition func(from, to string)) *stateMachine {
	m := &stateMachine{}
	m.fsm = fsm.NewFSM(
		StateNew,
		fsm.Events{
			{Name: eventRing, Src: []string{StateNew}, Dst: StateRinging},
			{Name: eventConnect, Src: []string{StateNew, StateRinging}, Dst: StateConnecting},
			{Name: eventAnswer, Src: []string{StateNew, StateRinging, StateConnecting}, Dst: StateActive},
			{Name: eventHold, Src: []string{StateActive}, Dst: StateHeld},
			{Name: eventUnhold, Src: []string{StateHeld}, Dst: StateActive},
			{Name: eventRecover, Src: []string{StateActive, StateHeld}, Dst: StateRecovering},
			{Name: eventResume, Src: []string{StateRecovering}, Dst: StateActive},
			{Name: eventResumeHeld, Src: []string{StateRecovering}, Dst: StateHeld},
			{Name: eventHangup, Src: nonTerminalStates, Dst: StateDone},
			{Name: eventFail, Src: nonTerminalStates, Dst: StateError},
		},
		fsm.Callbacks{
			"before_" + eventRecover: func(_ context.Context, e *fsm.Event) {
				m.priorState = e.Src
			},
			"after_event": func(_ context.Context, e *fsm.Event) {
				if e.Src != e.Dst && onTransition != nil {
					onTransition(e.Src, e.Dst)
				}
			},
		},
	)
	return m
}

// resumeEvent picks the resume transition matching the state the call
// held before recovery started.
func (m *stateMachine) resumeEvent() string {
	if m.priorState == StateHeld {
		return eventResumeHeld
	}
	return eventResume
}

func (m *stateMachine) current() string {
	return m.fsm.Current()
}

func (m *stateMachine) terminal() bool {
	s := m.fsm.Current()
	return s == StateDone || s == StateError
}

// fire attempts a transition, reporting whether it happened.
func (m *stateMachine) fire(event string) bool {
	err := m.fsm.Event(context.Background(), event)
	return err == nil
}
