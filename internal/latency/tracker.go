// Package latency records timing milestones for registration attempts
// and call establishment, and derives composite setup latencies.
package latency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Milestone names for registration attempts.
const (
	MilestoneLoginInitiated  = "login_initiated"
	MilestoneSocketConnected = "socket_connected"
	MilestoneLoginSent       = "login_sent"
	MilestoneClientReady     = "client_ready"
)

// Milestone names for calls.
const (
	MilestoneCallInitiated         = "call_initiated"
	MilestonePeerCreated           = "peer_connection_created"
	MilestoneLocalSDPCreated       = "local_sdp_created"
	MilestoneInviteSent            = "invite_sent"
	MilestoneAnswerSent            = "answer_sent"
	MilestoneRemoteSDPReceived     = "remote_sdp_received"
	MilestoneFirstICECandidate     = "first_ice_candidate"
	MilestoneICEGatheringComplete  = "ice_gathering_complete"
	MilestoneICEConnected          = "ice_connected"
	MilestonePeerConnected         = "peer_connected"
	MilestoneFirstRTPSent          = "first_rtp_sent"
	MilestoneFirstRTPReceived      = "first_rtp_received"
	MilestoneMediaActive           = "media_active"
	MilestoneCallActive            = "call_active"
)

// Report carries the milestone map and derived metrics for one
// registration attempt or call. Derived fields are nil when the
// milestones needed to compute them are missing.
type Report struct {
	CallID   *uuid.UUID
	Outbound bool

	RegistrationLatencyMs *int64
	CallSetupLatencyMs    *int64
	TimeToFirstRTPMs      *int64
	ICEGatheringLatencyMs *int64
	SignalingLatencyMs    *int64
	MediaLatencyMs        *int64

	Milestones map[string]int64
}

type callTracking struct {
	start      time.Time
	outbound   bool
	milestones map[string]int64
}

// Tracker records milestones for the registration attempt and for each
// active call. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	registrationStart    time.Time
	registrationActive   bool
	registrationWaypoint map[string]int64

	calls map[uuid.UUID]*callTracking

	onReport func(Report)

	// now is swappable for tests
	now func() time.Time
}

// NewTracker creates a tracker. onReport receives completed metric
// reports; it may be nil.
func NewTracker(onReport func(Report)) *Tracker {
	return &Tracker{
		registrationWaypoint: make(map[string]int64),
		calls:                make(map[uuid.UUID]*callTracking),
		onReport:             onReport,
		now:                  time.Now,
	}
}

// StartRegistration begins a registration attempt's tracking, clearing
// any prior attempt.
func (t *Tracker) StartRegistration() {
	t.mu.Lock()
	t.registrationStart = t.now()
	t.registrationActive = true
	t.registrationWaypoint = make(map[string]int64)
	t.mu.Unlock()
	t.MarkRegistration(MilestoneLoginInitiated)
}

// MarkRegistration records a registration milestone. Ignored when no
// attempt is being tracked.
func (t *Tracker) MarkRegistration(milestone string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.registrationActive {
		return
	}
	elapsed := t.now().Sub(t.registrationStart).Milliseconds()
	t.registrationWaypoint[milestone] = elapsed
	slog.Debug("[Latency] Registration milestone", "milestone", milestone, "elapsed_ms", elapsed)
}

// CompleteRegistration finishes the attempt and emits its report.
func (t *Tracker) CompleteRegistration() {
	t.MarkRegistration(MilestoneClientReady)

	t.mu.Lock()
	if !t.registrationActive {
		t.mu.Unlock()
		return
	}
	t.registrationActive = false
	total := t.now().Sub(t.registrationStart).Milliseconds()
	milestones := copyMilestones(t.registrationWaypoint)
	onReport := t.onReport
	t.mu.Unlock()

	slog.Info("[Latency] Registration completed", "elapsed_ms", total)
	if onReport != nil {
		onReport(Report{
			RegistrationLatencyMs: &total,
			Milestones:            milestones,
		})
	}
}

// CancelRegistration drops the attempt without emitting a report.
func (t *Tracker) CancelRegistration() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registrationActive = false
}

// StartCall begins tracking a call.
func (t *Tracker) StartCall(callID uuid.UUID, outbound bool) {
	t.mu.Lock()
	t.calls[callID] = &callTracking{
		start:      t.now(),
		outbound:   outbound,
		milestones: make(map[string]int64),
	}
	t.mu.Unlock()
	t.MarkCall(callID, MilestoneCallInitiated)
}

// MarkCall records a milestone for a tracked call. Unknown call ids
// are ignored.
func (t *Tracker) MarkCall(callID uuid.UUID, milestone string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracking, ok := t.calls[callID]
	if !ok {
		return
	}
	elapsed := t.now().Sub(tracking.start).Milliseconds()
	tracking.milestones[milestone] = elapsed
	slog.Debug("[Latency] Call milestone", "call_id", callID, "milestone", milestone, "elapsed_ms", elapsed)
}

// MarkFirstRTP records the first RTP packet in either direction.
func (t *Tracker) MarkFirstRTP(callID uuid.UUID, sent bool) {
	milestone := MilestoneFirstRTPReceived
	if sent {
		milestone = MilestoneFirstRTPSent
	}
	t.MarkCall(callID, milestone)
}

// CompleteCall finishes a call's tracking and emits its report.
func (t *Tracker) CompleteCall(callID uuid.UUID) {
	t.MarkCall(callID, MilestoneCallActive)

	t.mu.Lock()
	tracking, ok := t.calls[callID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.calls, callID)
	total := t.now().Sub(tracking.start).Milliseconds()
	milestones := copyMilestones(tracking.milestones)
	outbound := tracking.outbound
	onReport := t.onReport
	t.mu.Unlock()

	id := callID
	report := Report{
		CallID:                &id,
		Outbound:              outbound,
		CallSetupLatencyMs:    &total,
		TimeToFirstRTPMs:      timeToFirstRTP(milestones),
		ICEGatheringLatencyMs: iceGatheringLatency(milestones),
		SignalingLatencyMs:    signalingLatency(milestones, outbound),
		MediaLatencyMs:        mediaEstablishmentLatency(milestones),
		Milestones:            milestones,
	}

	slog.Info("[Latency] Call completed", "call_id", callID, "elapsed_ms", total)
	if onReport != nil {
		onReport(report)
	}
}

// CancelCall drops a call's tracking without a report.
func (t *Tracker) CancelCall(callID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, callID)
}

// Reset clears all tracking state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registrationActive = false
	t.registrationWaypoint = make(map[string]int64)
	t.calls = make(map[uuid.UUID]*callTracking)
}

// iceGatheringLatency spans first candidate to gathering complete,
// falling back to ICE connected.
func iceGatheringLatency(m map[string]int64) *int64 {
	start, ok := m[MilestoneFirstICECandidate]
	if !ok {
		return nil
	}
	end, ok := m[MilestoneICEGatheringComplete]
	if !ok {
		end, ok = m[MilestoneICEConnected]
		if !ok {
			return nil
		}
	}
	v := end - start
	return &v
}

// signalingLatency measures invite-to-remote-SDP for outbound calls
// and accept-to-answer-sent for inbound calls.
func signalingLatency(m map[string]int64, outbound bool) *int64 {
	var startKey, endKey string
	if outbound {
		startKey, endKey = MilestoneInviteSent, MilestoneRemoteSDPReceived
	} else {
		startKey, endKey = MilestoneCallInitiated, MilestoneAnswerSent
	}
	start, ok := m[startKey]
	if !ok {
		return nil
	}
	end, ok := m[endKey]
	if !ok {
		return nil
	}
	v := end - start
	return &v
}

func mediaEstablishmentLatency(m map[string]int64) *int64 {
	start, ok := m[MilestoneICEConnected]
	if !ok {
		start, ok = m[MilestonePeerConnected]
		if !ok {
			return nil
		}
	}
	end, ok := m[MilestoneFirstRTPReceived]
	if !ok {
		end, ok = m[MilestoneFirstRTPSent]
		if !ok {
			end, ok = m[MilestoneMediaActive]
			if !ok {
				return nil
			}
		}
	}
	if end <= start {
		return nil
	}
	v := end - start
	return &v
}

func timeToFirstRTP(m map[string]int64) *int64 {
	if v, ok := m[MilestoneFirstRTPReceived]; ok {
		return &v
	}
	if v, ok := m[MilestoneFirstRTPSent]; ok {
		return &v
	}
	return nil
}

func copyMilestones(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
