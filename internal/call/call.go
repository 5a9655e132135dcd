package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/vertolink/internal/events"
	"github.com/sebas/vertolink/internal/latency"
	"github.com/sebas/vertolink/internal/media"
	"github.com/sebas/vertolink/internal/quality"
	"github.com/sebas/vertolink/internal/sdp"
	"github.com/sebas/vertolink/internal/signal"
)

// ICECandidateDelay batches locally gathered candidates into the SDP
// before an invite or attach answer goes out.
const ICECandidateDelay = 400 * time.Millisecond

// Hangup cause sent on locally initiated teardown.
const (
	causeNormalClearing     = "NORMAL_CLEARING"
	causeNormalClearingCode = 16
)

// Modify actions.
const (
	actionHold   = "hold"
	actionUnhold = "unhold"
)

// SessionConfig wires one call session to its collaborators. post must
// run the closure on the engine's dispatch goroutine; emit delivers an
// event to the application; onDone removes the call from the active
// table after teardown.
type SessionConfig struct {
	ID        uuid.UUID
	SessionID string
	Outbound  bool

	CallerIDName   string
	CallerIDNumber string
	Destination    string
	CustomHeaders  []signal.CustomHeader

	Sender  signal.Sender
	Media   media.Session
	Tracker *latency.Tracker
	Verbose bool

	Post   func(func())
	Emit   func(events.Event)
	OnDone func(*Session)
}

// Session is one call leg. All methods must be invoked from the
// engine's dispatch goroutine; the media engine's callbacks are routed
// back onto it through post.
type Session struct {
	ID        uuid.UUID
	sessionID string
	outbound  bool

	callerIDName   string
	callerIDNumber string
	destination    string
	customHeaders  []signal.CustomHeader

	sender  signal.Sender
	media   media.Session
	sm      *stateMachine
	tracker *latency.Tracker

	post   func(func())
	emit   func(events.Event)
	onDone func(*Session)

	reporter *quality.Reporter

	localOfferSDP  string
	remoteOfferSDP string
	peerSessionID  string
	peerLegID      string

	earlyMedia bool
	muted      bool
	held       bool
	speakerOn  bool

	inviteSent    bool
	sawCandidate  bool
	pendingReason *events.TerminationReason

	// batchGen invalidates in-flight batching timers on teardown
	batchGen int
}

// NewSession builds a call session in state New.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		ID:             cfg.ID,
		sessionID:      cfg.SessionID,
		outbound:       cfg.Outbound,
		callerIDName:   cfg.CallerIDName,
		callerIDNumber: cfg.CallerIDNumber,
		destination:    cfg.Destination,
		customHeaders:  cfg.CustomHeaders,
		sender:         cfg.Sender,
		media:          cfg.Media,
		tracker:        cfg.Tracker,
		post:           cfg.Post,
		emit:           cfg.Emit,
		onDone:         cfg.OnDone,
	}
	s.sm = newStateMachine(s.onTransition)
	s.reporter = quality.NewReporter(cfg.Media, cfg.Sender, cfg.ID, "", cfg.Verbose, func(sample quality.Sample) {
		s.emit(events.Quality{CallID: s.ID, Sample: sample})
	})
	if s.tracker != nil {
		s.tracker.StartCall(s.ID, s.outbound)
	}
	return s
}

// State reports the current call state.
func (s *Session) State() string {
	return s.sm.current()
}

// Muted reports the microphone flag.
func (s *Session) Muted() bool { return s.muted }

// Held reports the hold flag.
func (s *Session) Held() bool { return s.held }

// SpeakerOn reports the loudspeaker flag.
func (s *Session) SpeakerOn() bool { return s.speakerOn }

func (s *Session) onTransition(from, to string) {
	slog.Info("[Call] State changed", "call_id", s.ID, "from", from, "to", to)
	var reason *events.TerminationReason
	if to == StateDone || to == StateError {
		reason = s.pendingReason
	}
	s.emit(events.CallStateChanged{CallID: s.ID, State: to, Reason: reason})
}

// PlaceInvite starts an outbound call: audio capture, a local offer,
// then one fixed batching delay before the invite is sent with the
// candidate-bearing local description. Exactly one invite per call.
func (s *Session) PlaceInvite() {
	if s.inviteSent || s.sm.terminal() {
		return
	}
	s.inviteSent = true

	if err := s.media.StartAudioCapture(); err != nil {
		slog.Error("[Call] Audio capture failed", "call_id", s.ID, "error", err)
		s.failNegotiation(err)
		return
	}
	offer, err := s.media.CreateOffer(context.Background())
	if err != nil {
		slog.Error("[Call] Offer creation failed", "call_id", s.ID, "error", err)
		s.failNegotiation(err)
		return
	}
	s.localOfferSDP = offer
	s.markMilestone(latency.MilestoneLocalSDPCreated)
	s.sm.fire(eventRing)
	s.scheduleBatched(s.sendInvite)
}

// PrepareAnswer applies an inbound offer and builds the local answer,
// moving the call to Ringing. The answer is not sent until
// AcceptInvite.
func (s *Session) PrepareAnswer(offerSDP string) error {
	s.remoteOfferSDP = offerSDP
	if err := s.media.SetRemoteDescription(media.KindOffer, offerSDP); err != nil {
		s.failNegotiation(err)
		return err
	}
	s.markMilestone(latency.MilestoneRemoteSDPReceived)
	if err := s.media.StartAudioCapture(); err != nil {
		s.failNegotiation(err)
		return err
	}
	if _, err := s.media.CreateAnswer(context.Background()); err != nil {
		s.failNegotiation(err)
		return err
	}
	s.markMilestone(latency.MilestoneLocalSDPCreated)
	s.sm.fire(eventRing)
	return nil
}

// AcceptInvite answers a ringing inbound call. It requires the local
// description prepared by PrepareAnswer; without one the call fails.
func (s *Session) AcceptInvite(customHeaders []signal.CustomHeader) {
	if s.sm.terminal() {
		return
	}
	local, ok := s.media.LocalDescription()
	if !ok {
		s.emit(events.Error{Code: events.ErrNoLocalDescription, Message: "accept without a local description"})
		s.pendingReason = nil
		s.sm.fire(eventFail)
		s.cleanup()
		return
	}

	answer := sdp.ReconcileAnswerCodecs(s.remoteOfferSDP, local)
	if len(customHeaders) > 0 {
		s.customHeaders = customHeaders
	}
	s.sendCallMessage(signal.MethodAnswer, answer, false)
	s.markMilestone(latency.MilestoneAnswerSent)
	s.activate()
}

// HandleRinging reports remote ringing on an outbound call.
func (s *Session) HandleRinging(params signal.CallEventParams) {
	s.rememberPeer(params)
	s.emit(events.Ringing{CallID: s.ID})
}

// HandleAnswer processes the remote answer for an outbound call.
func (s *Session) HandleAnswer(params signal.CallEventParams) {
	if s.sm.terminal() {
		return
	}
	s.rememberPeer(params)

	switch {
	case params.SDP != "":
		reconciled := sdp.ReconcileAnswerCodecs(s.localOfferSDP, params.SDP)
		if err := s.media.SetRemoteDescription(media.KindAnswer, reconciled); err != nil {
			slog.Error("[Call] Remote answer rejected", "call_id", s.ID, "error", err)
			s.failNegotiation(err)
			return
		}
		s.markMilestone(latency.MilestoneRemoteSDPReceived)
		s.activate()
	case s.earlyMedia:
		// media arrived ahead of the answer; the session is already
		// negotiated
		s.activate()
	default:
		slog.Warn("[Call] Answer without SDP or early media", "call_id", s.ID)
		s.terminate(eventHangup, nil)
	}
}

// HandleMedia processes an early-media notification carrying the
// ringback SDP ahead of the formal answer.
func (s *Session) HandleMedia(params signal.CallEventParams) {
	if s.sm.terminal() {
		return
	}
	if params.SDP == "" {
		slog.Warn("[Call] Media message without SDP", "call_id", s.ID)
		s.failNegotiation(nil)
		return
	}
	if err := s.media.SetRemoteDescription(media.KindAnswer, params.SDP); err != nil {
		s.failNegotiation(err)
		return
	}
	s.earlyMedia = true
	s.markMilestone(latency.MilestoneRemoteSDPReceived)
}

// HandleBye tears the call down on a remote hangup.
func (s *Session) HandleBye(params signal.CallEventParams) {
	var reason *events.TerminationReason
	if params.Cause != "" || params.CauseCode != 0 || params.SIPCode != 0 {
		reason = &events.TerminationReason{
			Cause:     params.Cause,
			CauseCode: params.CauseCode,
			SIPCode:   params.SIPCode,
			SIPReason: params.SIPReason,
		}
	}
	s.terminate(eventHangup, reason)
}

// End hangs the call up locally. Idempotent: a second call on a
// finished session does nothing.
func (s *Session) End() {
	if s.sm.terminal() {
		return
	}
	env, err := signal.NewRequest(signal.MethodBye, signal.ByeParams{
		SessionID: s.sessionID,
		Cause:     causeNormalClearing,
		CauseCode: causeNormalClearingCode,
		DialogParams: signal.DialogParams{
			CallID: s.ID,
		},
	})
	if err == nil {
		if err := s.sender.Send(env); err != nil {
			slog.Debug("[Call] Bye not sent", "call_id", s.ID, "error", err)
		}
	}
	s.terminate(eventHangup, &events.TerminationReason{
		Cause:     causeNormalClearing,
		CauseCode: causeNormalClearingCode,
	})
}

// ToggleMute flips the microphone flag.
func (s *Session) ToggleMute() {
	s.muted = !s.muted
	s.media.SetMicrophoneMute(s.muted)
	slog.Debug("[Call] Mute toggled", "call_id", s.ID, "muted", s.muted)
}

// ToggleHold flips the hold flag, notifying the backend via a modify
// message and moving the call between Active and Held.
func (s *Session) ToggleHold() {
	switch s.sm.current() {
	case StateActive:
		s.sendModify(actionHold)
		s.held = true
		s.sm.fire(eventHold)
	case StateHeld:
		s.sendModify(actionUnhold)
		s.held = false
		s.sm.fire(eventUnhold)
	}
}

// ToggleSpeaker flips the loudspeaker flag. Routing audio to the
// device is the embedding application's concern.
func (s *Session) ToggleSpeaker() {
	s.speakerOn = !s.speakerOn
	slog.Debug("[Call] Speaker toggled", "call_id", s.ID, "on", s.speakerOn)
}

// SendDTMF forwards a tone out-of-band. The tone string is passed
// through uninterpreted.
func (s *Session) SendDTMF(tone string) {
	env, err := signal.NewRequest(signal.MethodInfo, signal.InfoParams{
		SessionID:    s.sessionID,
		DTMF:         tone,
		DialogParams: signal.DialogParams{CallID: s.ID},
	})
	if err != nil {
		return
	}
	if err := s.sender.Send(env); err != nil {
		slog.Debug("[Call] DTMF not sent", "call_id", s.ID, "error", err)
	}
}

// AcceptAttach rebuilds a server-persisted call after a restart: the
// remote offer is applied, an answer computed and, after the batching
// delay, sent back as the attach acknowledgement.
func (s *Session) AcceptAttach(offerSDP string) error {
	if err := s.PrepareAnswer(offerSDP); err != nil {
		return err
	}
	s.scheduleBatched(s.sendAttachAnswer)
	return nil
}

// AddRemoteCandidate feeds a trickled remote candidate to the media
// engine, normalizing its prefix and stamping the session's ICE
// credentials when the remote description carries them.
func (s *Session) AddRemoteCandidate(line string) {
	line = sdp.NormalizeCandidate(line)
	if params, ok := sdp.ExtractICEParameters(s.remoteOfferSDP); ok {
		line = sdp.EnhanceCandidate(line, params)
	}
	if err := s.media.AddICECandidate(media.Candidate{Candidate: line}); err != nil {
		slog.Warn("[Call] Remote candidate rejected", "call_id", s.ID, "error", err)
	}
}

// HandleLocalCandidate records gathering milestones. Candidates ride
// inside the batched local description rather than separate trickle
// messages.
func (s *Session) HandleLocalCandidate(media.Candidate) {
	if !s.sawCandidate {
		s.sawCandidate = true
		s.markMilestone(latency.MilestoneFirstICECandidate)
	}
}

// HandleICEState records connectivity milestones and starts quality
// sampling once media flows.
func (s *Session) HandleICEState(state media.ICEState) {
	switch state {
	case media.ICEConnected, media.ICECompleted:
		s.markMilestone(latency.MilestoneICEConnected)
		s.markMilestone(latency.MilestoneMediaActive)
	case media.ICEFailed:
		slog.Warn("[Call] ICE failed", "call_id", s.ID)
		s.failNegotiation(nil)
	}
}

// MarkRecovering parks an established call while the channel
// reconnects.
func (s *Session) MarkRecovering() {
	s.sm.fire(eventRecover)
}

// Resume returns a recovering call to the state it held when the
// channel dropped.
func (s *Session) Resume() {
	if s.sm.current() != StateRecovering {
		return
	}
	s.sm.fire(s.sm.resumeEvent())
}

// Fail moves the call to Error and tears it down, reporting reason to
// the application.
func (s *Session) Fail(code events.ErrorCode, message string) {
	if s.sm.terminal() {
		return
	}
	s.emit(events.Error{Code: code, Message: message})
	s.terminate(eventFail, nil)
}

func (s *Session) activate() {
	if !s.sm.fire(eventAnswer) {
		return
	}
	if s.tracker != nil {
		s.tracker.CompleteCall(s.ID)
	}
	s.reporter.Start()
}

// scheduleBatched runs fn on the dispatch goroutine after the ICE
// batching delay, unless the call finished in the meantime.
func (s *Session) scheduleBatched(fn func()) {
	gen := s.batchGen
	time.AfterFunc(ICECandidateDelay, func() {
		s.post(func() {
			if gen != s.batchGen || s.sm.terminal() {
				return
			}
			fn()
		})
	})
}

func (s *Session) sendInvite() {
	local, ok := s.media.LocalDescription()
	if !ok {
		s.emit(events.Error{Code: events.ErrNoLocalDescription, Message: "invite without a local description"})
		s.terminate(eventFail, nil)
		return
	}
	s.sendCallMessage(signal.MethodInvite, sdp.EnsureTrickleCapability(local), false)
	s.markMilestone(latency.MilestoneInviteSent)
}

func (s *Session) sendAttachAnswer() {
	local, ok := s.media.LocalDescription()
	if !ok {
		s.emit(events.Error{Code: events.ErrNoLocalDescription, Message: "attach without a local description"})
		s.terminate(eventFail, nil)
		return
	}
	s.sendCallMessage(signal.MethodAttach, sdp.ReconcileAnswerCodecs(s.remoteOfferSDP, local), true)
	s.markMilestone(latency.MilestoneAnswerSent)
	s.activate()
}

func (s *Session) sendCallMessage(method signal.Method, sdpBody string, attach bool) {
	env, err := signal.NewRequest(method, signal.CallParams{
		SessionID: s.sessionID,
		SDP:       sdpBody,
		DialogParams: signal.DialogParams{
			CallID:            s.ID,
			DestinationNumber: s.destination,
			CallerIDName:      s.callerIDName,
			CallerIDNumber:    s.callerIDNumber,
			Attach:            attach,
			CustomHeaders:     s.customHeaders,
		},
	})
	if err != nil {
		s.failNegotiation(err)
		return
	}
	if err := s.sender.Send(env); err != nil {
		slog.Warn("[Call] Message not sent", "call_id", s.ID, "method", method, "error", err)
	}
}

func (s *Session) sendModify(action string) {
	env, err := signal.NewRequest(signal.MethodModify, signal.ModifyParams{
		SessionID:    s.sessionID,
		Action:       action,
		DialogParams: signal.DialogParams{CallID: s.ID},
	})
	if err != nil {
		return
	}
	if err := s.sender.Send(env); err != nil {
		slog.Warn("[Call] Modify not sent", "call_id", s.ID, "action", action, "error", err)
	}
}

func (s *Session) markMilestone(name string) {
	if s.tracker != nil {
		s.tracker.MarkCall(s.ID, name)
	}
}

func (s *Session) rememberPeer(params signal.CallEventParams) {
	if params.PeerSessionID != "" {
		s.peerSessionID = params.PeerSessionID
	}
	if params.PeerLegID != "" {
		s.peerLegID = params.PeerLegID
	}
}

func (s *Session) failNegotiation(err error) {
	msg := "negotiation failed"
	if err != nil {
		msg = err.Error()
	}
	s.emit(events.Error{Code: events.ErrNegotiationFailed, Message: msg})
	s.terminate(eventFail, nil)
}

func (s *Session) terminate(event string, reason *events.TerminationReason) {
	if s.sm.terminal() {
		return
	}
	s.pendingReason = reason
	s.sm.fire(event)
	s.cleanup()
}

func (s *Session) cleanup() {
	s.batchGen++
	s.reporter.Stop()
	if s.tracker != nil {
		s.tracker.CancelCall(s.ID)
	}
	s.muted = false
	s.held = false
	s.speakerOn = false
	s.earlyMedia = false
	if err := s.media.Close(); err != nil {
		slog.Debug("[Call] Media close failed", "call_id", s.ID, "error", err)
	}
	if s.onDone != nil {
		s.onDone(s)
	}
}
