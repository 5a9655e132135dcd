package quality

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sebas/vertolink/internal/media"
	"github.com/sebas/vertolink/internal/signal"
)

type fakeStats struct {
	snapshot media.StatsSnapshot
}

func (f *fakeStats) GetStats() (media.StatsSnapshot, error) {
	return f.snapshot, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []signal.Envelope
}

func (r *recordingSender) Send(env signal.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordingSender) frameTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, env := range r.sent {
		var params signal.StatsReportParams
		if err := json.Unmarshal(env.Params, &params); err == nil {
			out = append(out, params.Type)
		}
	}
	return out
}

func audioSnapshot(jitter, pairRTT, remoteRTT float64, received, lost, bytes float64) media.StatsSnapshot {
	return media.StatsSnapshot{
		{
			ID:   "inbound-1",
			Type: media.StatsInboundAudio,
			Values: map[string]float64{
				"jitter":          jitter,
				"packetsReceived": received,
				"packetsLost":     lost,
				"bytesReceived":   bytes,
			},
		},
		{
			ID:     "pair-1",
			Type:   media.StatsCandidatePair,
			Values: map[string]float64{"currentRoundTripTime": pairRTT},
		},
		{
			ID:     "remote-1",
			Type:   media.StatsRemoteInboundAudio,
			Values: map[string]float64{"roundTripTime": remoteRTT, "jitter": jitter},
		},
	}
}

func TestTickProducesSample(t *testing.T) {
	provider := &fakeStats{snapshot: audioSnapshot(0.02, 0.08, 0.1, 1000, 10, 160000)}
	var samples []Sample
	r := NewReporter(provider, nil, uuid.New(), "", false, func(s Sample) {
		samples = append(samples, s)
	})

	r.tick(time.Now())

	require.Len(t, samples, 1)
	sample := samples[0]
	require.Equal(t, 0.02, sample.JitterSeconds)
	// remote-inbound RTT wins over the candidate pair estimate
	require.Equal(t, 0.1, sample.RTTSeconds)
	require.Greater(t, sample.MOS, 1.0)
	require.NotEmpty(t, sample.Band)

	last, ok := r.Last()
	require.True(t, ok)
	require.Equal(t, sample.MOS, last.MOS)
}

func TestTickFallsBackToCandidatePairRTT(t *testing.T) {
	snapshot := media.StatsSnapshot{
		{
			ID:   "inbound-1",
			Type: media.StatsInboundAudio,
			Values: map[string]float64{
				"jitter":          0.01,
				"packetsReceived": 500,
				"packetsLost":     0,
			},
		},
		{
			ID:     "pair-1",
			Type:   media.StatsCandidatePair,
			Values: map[string]float64{"currentRoundTripTime": 0.06},
		},
	}
	var sample Sample
	r := NewReporter(&fakeStats{snapshot: snapshot}, nil, uuid.New(), "", false, func(s Sample) { sample = s })

	r.tick(time.Now())
	require.Equal(t, 0.06, sample.RTTSeconds)
}

func TestTickWithoutInboundAudioProducesNothing(t *testing.T) {
	called := false
	r := NewReporter(&fakeStats{}, nil, uuid.New(), "", false, func(Sample) { called = true })

	r.tick(time.Now())

	require.False(t, called)
	_, ok := r.Last()
	require.False(t, ok)
}

func TestIntervalStatsComputedOverWindow(t *testing.T) {
	provider := &fakeStats{snapshot: audioSnapshot(0.01, 0.05, 0.05, 1000, 0, 100000)}
	var samples []Sample
	r := NewReporter(provider, nil, uuid.New(), "", false, func(s Sample) {
		samples = append(samples, s)
	})

	start := time.Now()
	r.tick(start)
	require.Nil(t, samples[0].Interval, "first sample seeds the window")

	// 6 seconds later, 60000 more bytes and 12 lost packets.
	provider.snapshot = audioSnapshot(0.01, 0.05, 0.05, 2000, 12, 160000)
	r.tick(start.Add(6 * time.Second))

	require.Len(t, samples, 2)
	interval := samples[1].Interval
	require.NotNil(t, interval)
	require.Equal(t, 12, interval.PacketsLostDelta)
	require.InDelta(t, 60000*8/6.0, interval.InboundBitrateBps, 1.0)
}

func TestVerboseReporterSendsFrames(t *testing.T) {
	sender := &recordingSender{}
	provider := &fakeStats{snapshot: audioSnapshot(0.01, 0.05, 0.05, 100, 0, 16000)}
	r := NewReporter(provider, sender, uuid.New(), "", true, nil)

	r.Start()
	r.Stop()

	// let any in-flight tick drain before counting frames
	time.Sleep(150 * time.Millisecond)
	types := sender.frameTypes()
	require.Contains(t, types, signal.StatsReportStart)
	require.Contains(t, types, signal.StatsReportStop)

	// Stop twice stays idempotent.
	r.Stop()
	require.Len(t, sender.frameTypes(), len(types))
}
