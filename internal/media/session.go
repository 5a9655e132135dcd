// Package media defines the thin orchestration contract over the
// WebRTC media engine. The signaling engine only negotiates sessions;
// encoding, RTP and NAT traversal stay behind this interface.
package media

import (
	"context"
	"time"
)

// SDPKind distinguishes offers from answers when applying a remote
// description.
type SDPKind int

const (
	// KindOffer - the remote description is an offer we must answer
	KindOffer SDPKind = iota
	// KindAnswer - the remote description answers our offer
	KindAnswer
)

// String returns the string representation of the SDP kind
func (k SDPKind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Candidate is a locally gathered or remotely signaled ICE candidate.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

// ICEState is the engine-reported ICE connection state.
type ICEState string

const (
	ICENew          ICEState = "new"
	ICEChecking     ICEState = "checking"
	ICEConnected    ICEState = "connected"
	ICECompleted    ICEState = "completed"
	ICEDisconnected ICEState = "disconnected"
	ICEFailed       ICEState = "failed"
	ICEClosed       ICEState = "closed"
)

// StatsType classifies a raw statistics entry.
type StatsType string

const (
	StatsCodec              StatsType = "codec"
	StatsInboundAudio       StatsType = "inbound-audio"
	StatsOutboundAudio      StatsType = "outbound-audio"
	StatsRemoteInboundAudio StatsType = "remote-inbound-audio"
	StatsCandidatePair      StatsType = "candidate-pair"
	StatsTransport          StatsType = "transport"
	StatsOther              StatsType = "other"
)

// StatsEntry is one point-in-time record from the media engine.
// Values holds the numeric members relevant to quality scoring.
type StatsEntry struct {
	ID        string
	Type      StatsType
	Timestamp time.Time
	Values    map[string]float64
	Labels    map[string]string
}

// StatsSnapshot is everything the engine reported at one instant.
type StatsSnapshot []StatsEntry

// Callbacks deliver media-engine events back to the session owner.
// All callbacks may be invoked from engine-internal goroutines.
type Callbacks struct {
	// OnCandidate fires for each locally gathered ICE candidate.
	OnCandidate func(Candidate)

	// OnICEStateChange fires on ICE connection state transitions.
	OnICEStateChange func(ICEState)
}

// Config selects the ICE servers and gathering policy for a session.
type Config struct {
	STUNServer     string
	TURNServer     string
	TURNUsername   string
	TURNCredential string

	// ForceRelay restricts gathering to relay candidates.
	ForceRelay bool

	Callbacks Callbacks
}

// Session is one media session's negotiation surface.
type Session interface {
	// CreateOffer builds and applies a local offer, returning its SDP.
	CreateOffer(ctx context.Context) (string, error)

	// CreateAnswer builds and applies a local answer to a previously
	// set remote offer, returning its SDP.
	CreateAnswer(ctx context.Context) (string, error)

	// LocalDescription returns the current local SDP, including any
	// candidates gathered since it was applied.
	LocalDescription() (string, bool)

	// SetRemoteDescription applies the remote peer's SDP.
	SetRemoteDescription(kind SDPKind, sdp string) error

	// AddICECandidate feeds a remote candidate to the ICE agent.
	AddICECandidate(candidate Candidate) error

	// StartAudioCapture attaches the local audio source.
	StartAudioCapture() error

	// SetMicrophoneMute toggles the outbound audio source.
	SetMicrophoneMute(muted bool)

	// GetStats reports a raw statistics snapshot.
	GetStats() (StatsSnapshot, error)

	// Close releases the session. Idempotent.
	Close() error
}

// Factory creates media sessions; the engine owns one per call.
type Factory func(Config) (Session, error)
