package latency

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(onReport func(Report)) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tr := NewTracker(onReport)
	tr.now = func() time.Time { return clock.now }
	return tr, clock
}

func TestRegistrationReport(t *testing.T) {
	var got *Report
	tr, clock := newTestTracker(func(r Report) { got = &r })

	tr.StartRegistration()
	clock.advance(50 * time.Millisecond)
	tr.MarkRegistration(MilestoneSocketConnected)
	clock.advance(100 * time.Millisecond)
	tr.MarkRegistration(MilestoneLoginSent)
	clock.advance(350 * time.Millisecond)
	tr.CompleteRegistration()

	require.NotNil(t, got)
	require.Nil(t, got.CallID)
	require.NotNil(t, got.RegistrationLatencyMs)
	require.Equal(t, int64(500), *got.RegistrationLatencyMs)
	require.Equal(t, int64(50), got.Milestones[MilestoneSocketConnected])
	require.Equal(t, int64(150), got.Milestones[MilestoneLoginSent])
	require.Equal(t, int64(500), got.Milestones[MilestoneClientReady])
}

func TestCompleteRegistrationTwiceReportsOnce(t *testing.T) {
	count := 0
	tr, _ := newTestTracker(func(Report) { count++ })

	tr.StartRegistration()
	tr.CompleteRegistration()
	tr.CompleteRegistration()
	require.Equal(t, 1, count)
}

func TestCancelRegistrationSuppressesReport(t *testing.T) {
	count := 0
	tr, _ := newTestTracker(func(Report) { count++ })

	tr.StartRegistration()
	tr.CancelRegistration()
	tr.CompleteRegistration()
	require.Equal(t, 0, count)
}

func TestCallReportDerivedMetrics(t *testing.T) {
	var got *Report
	tr, clock := newTestTracker(func(r Report) { got = &r })
	id := uuid.New()

	tr.StartCall(id, true)
	clock.advance(100 * time.Millisecond)
	tr.MarkCall(id, MilestoneInviteSent)
	clock.advance(20 * time.Millisecond)
	tr.MarkCall(id, MilestoneFirstICECandidate)
	clock.advance(80 * time.Millisecond)
	tr.MarkCall(id, MilestoneICEGatheringComplete)
	clock.advance(300 * time.Millisecond)
	tr.MarkCall(id, MilestoneRemoteSDPReceived)
	clock.advance(50 * time.Millisecond)
	tr.MarkCall(id, MilestoneICEConnected)
	clock.advance(30 * time.Millisecond)
	tr.MarkFirstRTP(id, false)
	clock.advance(20 * time.Millisecond)
	tr.CompleteCall(id)

	require.NotNil(t, got)
	require.NotNil(t, got.CallID)
	require.Equal(t, id, *got.CallID)
	require.True(t, got.Outbound)

	require.NotNil(t, got.CallSetupLatencyMs)
	require.Equal(t, int64(600), *got.CallSetupLatencyMs)

	require.NotNil(t, got.ICEGatheringLatencyMs)
	require.Equal(t, int64(80), *got.ICEGatheringLatencyMs)

	// Outbound signaling: invite sent to remote SDP received.
	require.NotNil(t, got.SignalingLatencyMs)
	require.Equal(t, int64(400), *got.SignalingLatencyMs)

	require.NotNil(t, got.MediaLatencyMs)
	require.Equal(t, int64(30), *got.MediaLatencyMs)

	require.NotNil(t, got.TimeToFirstRTPMs)
	require.Equal(t, int64(580), *got.TimeToFirstRTPMs)
}

func TestCallReportToleratesMissingMilestones(t *testing.T) {
	var got *Report
	tr, clock := newTestTracker(func(r Report) { got = &r })
	id := uuid.New()

	tr.StartCall(id, false)
	clock.advance(200 * time.Millisecond)
	tr.CompleteCall(id)

	require.NotNil(t, got)
	require.NotNil(t, got.CallSetupLatencyMs)
	require.Nil(t, got.ICEGatheringLatencyMs)
	require.Nil(t, got.SignalingLatencyMs)
	require.Nil(t, got.MediaLatencyMs)
	require.Nil(t, got.TimeToFirstRTPMs)
}

func TestCancelCallSuppressesReport(t *testing.T) {
	count := 0
	tr, _ := newTestTracker(func(Report) { count++ })
	id := uuid.New()

	tr.StartCall(id, true)
	tr.CancelCall(id)
	tr.CompleteCall(id)
	require.Equal(t, 0, count)
}

func TestMarkUnknownCallIgnored(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.MarkCall(uuid.New(), MilestoneInviteSent)
}
