// Package events defines the typed notifications the engine delivers
// to the embedding application. Delivery is best-effort latest-wins:
// a slow consumer sees the newest event, never a blocked engine.
package events

import (
	"github.com/google/uuid"

	"github.com/sebas/vertolink/internal/latency"
	"github.com/sebas/vertolink/internal/quality"
)

// ErrorCode classifies engine-reported failures.
type ErrorCode string

const (
	ErrNetworkUnavailable ErrorCode = "network_unavailable"
	ErrGatewayTimeout     ErrorCode = "gateway_timeout"
	ErrGatewayFailed      ErrorCode = "gateway_failed"
	ErrNoLocalDescription ErrorCode = "no_local_description"
	ErrNegotiationFailed  ErrorCode = "negotiation_failed"
	ErrMalformedMessage   ErrorCode = "malformed_message"
	ErrRemote             ErrorCode = "remote_error"
	ErrReconnectTimeout   ErrorCode = "reconnect_timeout"
)

// Event is implemented by every engine notification. The marker method
// keeps the set closed to this package.
type Event interface {
	event()
}

// TerminationReason carries the structured cause of a call ending.
// Zero-valued fields were absent from the bye exchange.
type TerminationReason struct {
	Cause     string
	CauseCode int
	SIPCode   int
	SIPReason string
}

// RegistrationStateChanged reports a transition of the registration
// state machine.
type RegistrationStateChanged struct {
	State string
}

// LoginSuccess reports a successful gateway registration together with
// the session id the gateway assigned.
type LoginSuccess struct {
	SessionID string
}

// ClientReady reports that the engine accepts call commands.
type ClientReady struct{}

// IncomingCall announces a remote invite awaiting accept or reject.
type IncomingCall struct {
	CallID         uuid.UUID
	CallerIDName   string
	CallerIDNumber string
}

// CallStateChanged reports a call's state transition. Reason is only
// set when the new state is terminal.
type CallStateChanged struct {
	CallID uuid.UUID
	State  string
	Reason *TerminationReason
}

// Ringing reports remote ringing on an outbound call.
type Ringing struct {
	CallID uuid.UUID
}

// Quality carries one call-quality sample.
type Quality struct {
	CallID uuid.UUID
	Sample quality.Sample
}

// Latency carries a completed latency report for a registration
// attempt or a call.
type Latency struct {
	Report latency.Report
}

// Error reports an engine failure. Transient errors may resolve on
// their own; terminal ones require a new Connect.
type Error struct {
	Code      ErrorCode
	Message   string
	Transient bool
}

// Disconnected reports the socket dropping, with the pending recovery
// posture.
type Disconnected struct {
	Reconnecting bool
}

func (RegistrationStateChanged) event() {}
func (LoginSuccess) event()             {}
func (ClientReady) event()              {}
func (IncomingCall) event()             {}
func (CallStateChanged) event()         {}
func (Ringing) event()                  {}
func (Quality) event()                  {}
func (Latency) event()                  {}
func (Error) event()                    {}
func (Disconnected) event()             {}
