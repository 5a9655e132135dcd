package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Default public STUN endpoint used when the config names none.
const defaultSTUNServer = "stun:stun.l.google.com:19302"

// WebRTCSession drives a pion PeerConnection. It satisfies Session.
type WebRTCSession struct {
	mu sync.Mutex

	pc          *webrtc.PeerConnection
	audioTrack  *webrtc.TrackLocalStaticSample
	audioSender *webrtc.RTPSender
	muted       bool
	closed      bool
}

// NewWebRTCSession opens a peer connection against the configured ICE
// servers. Use as the engine's media Factory.
func NewWebRTCSession(cfg Config) (Session, error) {
	iceServers := []webrtc.ICEServer{}
	stun := cfg.STUNServer
	if stun == "" {
		stun = defaultSTUNServer
	}
	iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{stun}})
	if cfg.TURNServer != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNServer},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}

	rtcConfig := webrtc.Configuration{ICEServers: iceServers}
	if cfg.ForceRelay {
		rtcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine))

	pc, err := api.NewPeerConnection(rtcConfig)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &WebRTCSession{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cfg.Callbacks.OnCandidate == nil {
			return
		}
		init := c.ToJSON()
		cand := Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *init.SDPMLineIndex
		}
		cfg.Callbacks.OnCandidate(cand)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("[Media] ICE connection state changed", "state", state.String())
		if cfg.Callbacks.OnICEStateChange != nil {
			cfg.Callbacks.OnICEStateChange(ICEState(state.String()))
		}
	})

	return s, nil
}

// StartAudioCapture attaches the outbound audio track. The platform
// audio device feeds the track outside this package.
func (s *WebRTCSession) StartAudioCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audioTrack != nil {
		return nil
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "vertolink",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	s.audioTrack = track
	s.audioSender = sender
	return nil
}

// CreateOffer builds a local offer and applies it, starting candidate
// gathering.
func (s *WebRTCSession) CreateOffer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer builds a local answer to the applied remote offer.
func (s *WebRTCSession) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

// LocalDescription returns the local SDP with gathered candidates.
func (s *WebRTCSession) LocalDescription() (string, bool) {
	desc := s.pc.LocalDescription()
	if desc == nil {
		return "", false
	}
	return desc.SDP, true
}

// SetRemoteDescription applies the remote peer's SDP.
func (s *WebRTCSession) SetRemoteDescription(kind SDPKind, sdp string) error {
	sdpType := webrtc.SDPTypeAnswer
	if kind == KindOffer {
		sdpType = webrtc.SDPTypeOffer
	}
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp})
}

// AddICECandidate feeds a remote candidate to the ICE agent.
func (s *WebRTCSession) AddICECandidate(candidate Candidate) error {
	mid := candidate.SDPMid
	mLine := candidate.SDPMLineIndex
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mLine,
	})
}

// SetMicrophoneMute toggles the outbound audio source. The capture
// device is process-wide; only the flag lives here.
func (s *WebRTCSession) SetMicrophoneMute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// GetStats converts the pion stats report into a neutral snapshot.
func (s *WebRTCSession) GetStats() (StatsSnapshot, error) {
	report := s.pc.GetStats()

	snapshot := make(StatsSnapshot, 0, len(report))
	for id, entry := range report {
		switch v := entry.(type) {
		case webrtc.InboundRTPStreamStats:
			if v.Kind != "audio" {
				continue
			}
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsInboundAudio,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"jitter":          v.Jitter,
					"packetsReceived": float64(v.PacketsReceived),
					"packetsLost":     float64(v.PacketsLost),
					"bytesReceived":   float64(v.BytesReceived),
				},
			})
		case webrtc.OutboundRTPStreamStats:
			if v.Kind != "audio" {
				continue
			}
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsOutboundAudio,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"packetsSent": float64(v.PacketsSent),
					"bytesSent":   float64(v.BytesSent),
				},
			})
		case webrtc.RemoteInboundRTPStreamStats:
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsRemoteInboundAudio,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"roundTripTime": v.RoundTripTime,
					"jitter":        v.Jitter,
					"fractionLost":  v.FractionLost,
				},
			})
		case webrtc.ICECandidatePairStats:
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsCandidatePair,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"currentRoundTripTime": v.CurrentRoundTripTime,
					"bytesSent":            float64(v.BytesSent),
					"bytesReceived":        float64(v.BytesReceived),
				},
				Labels: map[string]string{
					"state":     string(v.State),
					"nominated": fmt.Sprintf("%t", v.Nominated),
				},
			})
		case webrtc.TransportStats:
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsTransport,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"bytesSent":     float64(v.BytesSent),
					"bytesReceived": float64(v.BytesReceived),
				},
			})
		case webrtc.CodecStats:
			snapshot = append(snapshot, StatsEntry{
				ID:        id,
				Type:      StatsCodec,
				Timestamp: statsTime(v.Timestamp),
				Values: map[string]float64{
					"clockRate":   float64(v.ClockRate),
					"payloadType": float64(v.PayloadType),
				},
				Labels: map[string]string{"mimeType": v.MimeType},
			})
		}
	}
	return snapshot, nil
}

// Close releases the peer connection. Idempotent.
func (s *WebRTCSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.pc.Close()
}

func statsTime(ts webrtc.StatsTimestamp) time.Time {
	return time.UnixMilli(int64(ts))
}
