package engine

import "fmt"

// RegistrationState represents the lifecycle state of the engine's
// gateway registration
type RegistrationState int

const (
	// StateIdle is the initial state before connect is called
	StateIdle RegistrationState = iota
	// StateConnecting is after the socket opened, login in flight
	StateConnecting
	// StateAwaitingGateway is after login, waiting for the gateway report
	StateAwaitingGateway
	// StateRegistered is after the gateway confirmed registration
	StateRegistered
	// StateFailWait is a transient gateway failure pending reconnection
	StateFailWait
	// StateFailed is the terminal failure state until a fresh login
	StateFailed
	// StateExpired is after the gateway reported the registration expired
	StateExpired
)

// String returns the string representation of the state
func (s RegistrationState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingGateway:
		return "AwaitingGateway"
	case StateRegistered:
		return "Registered"
	case StateFailWait:
		return "FailWait"
	case StateFailed:
		return "Failed"
	case StateExpired:
		return "Expired"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed
var validTransitions = map[RegistrationState][]RegistrationState{
	StateIdle:            {StateConnecting, StateFailed},
	StateConnecting:      {StateAwaitingGateway, StateConnecting, StateFailed, StateIdle},
	StateAwaitingGateway: {StateRegistered, StateFailWait, StateFailed, StateExpired, StateConnecting, StateIdle},
	StateRegistered:      {StateConnecting, StateFailed, StateExpired, StateIdle},
	StateFailWait:        {StateConnecting, StateFailed, StateIdle},
	StateFailed:          {StateConnecting, StateIdle},
	StateExpired:         {StateConnecting, StateIdle},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s RegistrationState) CanTransitionTo(next RegistrationState) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the engine must see a fresh login before
// it can make progress again
func (s RegistrationState) IsTerminal() bool {
	return s == StateFailed || s == StateExpired
}

// Gateway registration states as reported by the backend.
const (
	GatewayRegistered   = "REGED"
	GatewayUnregistered = "NOREG"
	GatewayFailed       = "FAILED"
	GatewayFailWait     = "FAIL_WAIT"
	GatewayDown         = "DOWN"
	GatewayExpired      = "EXPIRED"
	GatewayUnregedEvent = "UNREGED"
	GatewayTrying       = "TRYING"
	GatewayRegister     = "REGISTER"
	GatewayUnregister   = "UNREGISTER"
)
