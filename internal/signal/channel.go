package signal

// LifecycleState marks a transport-level transition on the channel.
type LifecycleState int

const (
	// LifecycleConnected - the channel is open and messages can flow
	LifecycleConnected LifecycleState = iota
	// LifecycleDisconnected - the channel dropped; Err carries the cause
	LifecycleDisconnected
)

// String returns the string representation of the lifecycle state
func (s LifecycleState) String() string {
	switch s {
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// LifecycleEvent reports a connect or disconnect on the channel.
type LifecycleEvent struct {
	State LifecycleState
	Err   error
}

// Sender is the write-only view of a channel, enough for components
// that only emit messages (calls, stats reporters).
type Sender interface {
	Send(Envelope) error
}

// Channel is a reliable, ordered, bidirectional message transport.
// Implementations must keep Inbound and Lifecycle open until Close.
type Channel interface {
	Sender

	// Inbound delivers received envelopes in arrival order.
	Inbound() <-chan Envelope

	// Lifecycle delivers connect/disconnect transitions.
	Lifecycle() <-chan LifecycleEvent

	// Close tears the channel down. Safe to call more than once.
	Close() error
}
