package quality

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/vertolink/internal/media"
	"github.com/sebas/vertolink/internal/signal"
)

const (
	// VerboseInterval drives sampling while diagnostics are requested
	VerboseInterval = 100 * time.Millisecond
	// DefaultInterval drives background sampling
	DefaultInterval = 10 * time.Second
	// intervalStatsEvery spaces the delta-based interval statistics
	intervalStatsEvery = 5 * time.Second

	statsReportVersion = 1
)

// IntervalStats are delta-derived figures over the last reporting
// window rather than cumulative counters.
type IntervalStats struct {
	Window            time.Duration `json:"windowMs"`
	InboundBitrateBps float64       `json:"inboundBitrateBps"`
	PacketsLostDelta  int           `json:"packetsLostDelta"`
}

// Sample is one point-in-time quality record for a call. Immutable
// once produced.
type Sample struct {
	Timestamp     time.Time          `json:"timestamp"`
	JitterSeconds float64            `json:"jitter"`
	RTTSeconds    float64            `json:"rtt"`
	MOS           float64            `json:"mos"`
	Band          string             `json:"quality"`
	InboundAudio  map[string]float64 `json:"inboundAudio,omitempty"`
	OutboundAudio map[string]float64 `json:"outboundAudio,omitempty"`
	RemoteInbound map[string]float64 `json:"remoteInboundAudio,omitempty"`
	Interval      *IntervalStats     `json:"interval,omitempty"`
}

// StatsProvider is the slice of media.Session the reporter needs.
type StatsProvider interface {
	GetStats() (media.StatsSnapshot, error)
}

// Reporter polls media statistics for one call, scores each snapshot
// and emits samples. Delivery is best-effort; the call state machine
// never blocks on a slow consumer.
type Reporter struct {
	session  StatsProvider
	sender   signal.Sender
	callID   uuid.UUID
	legID    string
	verbose  bool
	onSample func(Sample)

	reportID uuid.UUID

	mu      sync.Mutex
	cancel  context.CancelFunc
	last    *Sample
	prevSet bool
	prev    struct {
		at            time.Time
		packetsLost   float64
		bytesReceived float64
	}
}

// NewReporter wires a reporter to a call's media session. sender may
// be nil; diagnostics frames are then kept local. onSample receives
// every produced sample and must not block.
func NewReporter(session StatsProvider, sender signal.Sender, callID uuid.UUID, legID string, verbose bool, onSample func(Sample)) *Reporter {
	return &Reporter{
		session:  session,
		sender:   sender,
		callID:   callID,
		legID:    legID,
		verbose:  verbose,
		onSample: onSample,
		reportID: uuid.New(),
	}
}

// Start begins sampling. No-op when already running.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	if r.verbose {
		r.sendReportFrame(signal.StatsReportStart, nil)
	}
	go r.run(ctx)
}

// Stop halts sampling and closes out the diagnostics report. No-op
// when not running.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if r.verbose {
		r.sendReportFrame(signal.StatsReportStop, nil)
	}
}

// Last returns the most recent sample, if any was produced yet.
func (r *Reporter) Last() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Sample{}, false
	}
	return *r.last, true
}

func (r *Reporter) run(ctx context.Context) {
	interval := DefaultInterval
	if r.verbose {
		interval = VerboseInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(time.Now())
		}
	}
}

func (r *Reporter) tick(now time.Time) {
	snapshot, err := r.session.GetStats()
	if err != nil {
		slog.Warn("[Quality] Stats poll failed", "call_id", r.callID, "error", err)
		return
	}

	sample, ok := r.buildSample(now, snapshot)
	if !ok {
		return
	}

	r.mu.Lock()
	r.last = &sample
	r.mu.Unlock()

	if r.onSample != nil {
		r.onSample(sample)
	}
	if r.verbose {
		if data, err := json.Marshal(sample); err == nil {
			r.sendReportFrame(signal.StatsReportData, data)
		}
	}
}

// buildSample classifies the snapshot and scores the audio subset.
func (r *Reporter) buildSample(now time.Time, snapshot media.StatsSnapshot) (Sample, bool) {
	var inbound, outbound, remoteInbound map[string]float64
	var pairRTT float64

	for _, entry := range snapshot {
		switch entry.Type {
		case media.StatsInboundAudio:
			if inbound == nil {
				inbound = entry.Values
			}
		case media.StatsOutboundAudio:
			if outbound == nil {
				outbound = entry.Values
			}
		case media.StatsRemoteInboundAudio:
			if remoteInbound == nil {
				remoteInbound = entry.Values
			}
		case media.StatsCandidatePair:
			if rtt := entry.Values["currentRoundTripTime"]; rtt > 0 && pairRTT == 0 {
				pairRTT = rtt
			}
		}
	}
	if inbound == nil {
		return Sample{}, false
	}

	jitterSec := inbound["jitter"]
	rttSec := pairRTT
	if remoteInbound != nil {
		if v := remoteInbound["roundTripTime"]; v > 0 {
			rttSec = v
		}
	}

	received := int(inbound["packetsReceived"])
	lost := int(inbound["packetsLost"])
	mos, band := Score(jitterSec*1000, rttSec*1000, received, lost)

	sample := Sample{
		Timestamp:     now,
		JitterSeconds: jitterSec,
		RTTSeconds:    rttSec,
		MOS:           mos,
		Band:          band.String(),
		InboundAudio:  inbound,
		OutboundAudio: outbound,
		RemoteInbound: remoteInbound,
	}
	sample.Interval = r.intervalStats(now, inbound)
	return sample, true
}

// intervalStats computes delta figures once per reporting window.
func (r *Reporter) intervalStats(now time.Time, inbound map[string]float64) *IntervalStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.prevSet {
		r.prevSet = true
		r.prev.at = now
		r.prev.packetsLost = inbound["packetsLost"]
		r.prev.bytesReceived = inbound["bytesReceived"]
		return nil
	}

	elapsed := now.Sub(r.prev.at)
	if elapsed < intervalStatsEvery {
		return nil
	}

	stats := &IntervalStats{
		Window:            elapsed,
		InboundBitrateBps: (inbound["bytesReceived"] - r.prev.bytesReceived) * 8 / elapsed.Seconds(),
		PacketsLostDelta:  int(inbound["packetsLost"] - r.prev.packetsLost),
	}
	r.prev.at = now
	r.prev.packetsLost = inbound["packetsLost"]
	r.prev.bytesReceived = inbound["bytesReceived"]
	return stats
}

func (r *Reporter) sendReportFrame(frameType string, data json.RawMessage) {
	if r.sender == nil {
		return
	}
	env, err := signal.NewRequest(signal.MethodInfo, signal.StatsReportParams{
		Type:          frameType,
		DebugReportID: r.reportID.String(),
		ReportData:    data,
		ReportVersion: statsReportVersion,
	})
	if err != nil {
		return
	}
	if err := r.sender.Send(env); err != nil {
		slog.Debug("[Quality] Report frame not sent", "type", frameType, "error", err)
	}
}
