package engine

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from RegistrationState
		to   RegistrationState
		want bool
	}{
		{StateIdle, StateConnecting, true},
		{StateConnecting, StateAwaitingGateway, true},
		{StateAwaitingGateway, StateRegistered, true},
		{StateAwaitingGateway, StateFailWait, true},
		{StateAwaitingGateway, StateExpired, true},
		{StateRegistered, StateConnecting, true},
		{StateFailWait, StateConnecting, true},
		{StateFailed, StateConnecting, true},
		{StateIdle, StateRegistered, false},
		{StateFailed, StateRegistered, false},
		{StateRegistered, StateAwaitingGateway, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []RegistrationState{StateFailed, StateExpired} {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	for _, s := range []RegistrationState{StateIdle, StateConnecting, StateAwaitingGateway, StateRegistered, StateFailWait} {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestStateString(t *testing.T) {
	if got := StateRegistered.String(); got != "Registered" {
		t.Errorf("String() = %q", got)
	}
	if got := RegistrationState(99).String(); got != "Unknown(99)" {
		t.Errorf("String() = %q", got)
	}
}
