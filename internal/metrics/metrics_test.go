package metrics_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/kelpwave/buoysim/internal/metrics"
	"github.com/stretchr/testify/require"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func TestDeliveryRatio(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	require.Equal(t, 0.0, m.DeliveryRatio())

	m.RecordPotentialReceiver()
	m.RecordPotentialReceiver()
	sender, receiver := mustUUID(t), mustUUID(t)
	m.RecordDelivered(sender, receiver, 0, 1.0)

	require.InDelta(t, 0.5, m.DeliveryRatio(), 1e-9)
}

func TestDiscoveryTrackedOncePerPair(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	sender, receiver := mustUUID(t), mustUUID(t)

	m.RecordDelivered(sender, receiver, 0, 1.0)
	m.RecordDelivered(sender, receiver, 0, 2.0) // repeat contact, not a new discovery

	require.InDelta(t, 1.0, m.AvgUniqueNodesDiscovered(), 1e-9)
	require.InDelta(t, 1.0, m.AvgReactionLatency(), 1e-9) // only the first contact counts
	require.InDelta(t, 1.5, m.AvgLatency(), 1e-9)          // every delivered instance counts
}

func TestCollisionRateAndThroughput(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.RecordPotentialReceiver()
	m.RecordPotentialReceiver()
	m.RecordCollision()
	m.RecordSchedulerLatency(0.01)
	m.RecordSchedulerLatency(0.03)

	require.InDelta(t, 0.5, m.CollisionRate(), 1e-9)
	require.InDelta(t, 0.02, m.AvgSchedulerLatency(), 1e-9)

	sender, receiver := mustUUID(t), mustUUID(t)
	m.RecordDelivered(sender, receiver, 0, 2.0)
	require.InDelta(t, 0.5, m.Throughput(2.0), 1e-9)
}

func TestWriteSummaryRoundTrip(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.RecordSent()
	m.RecordPotentialReceiver()
	sender, receiver := mustUUID(t), mustUUID(t)
	m.RecordDelivered(sender, receiver, 0, 0.5)

	density := 0.25
	var buf bytes.Buffer
	require.NoError(t, m.WriteSummary(&buf, metrics.SummaryParams{
		SchedulerType: "static",
		MultihopMode:  "none",
		WorldWidth:    1000,
		WorldHeight:   1000,
		MobileBuoys:   3,
		FixedBuoys:    1,
		Duration:      10,
		Density:       &density,
	}))

	out := buf.String()
	require.Contains(t, out, "Metric,Value")
	require.Contains(t, out, "Sent,1")
	require.Contains(t, out, "Scheduler Type,static")
	require.Contains(t, out, "World Size,1000x1000")
	require.Contains(t, out, "Density,0.25")
}

func TestWriteSummaryOmitsDensityByDefault(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	var buf bytes.Buffer
	require.NoError(t, m.WriteSummary(&buf, metrics.SummaryParams{SchedulerType: "adab", Duration: 1}))
	require.NotContains(t, buf.String(), "Density,")
}

func TestWriteTimeseriesSortsByTime(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.SampleTimeseries(5, 3)
	m.SampleTimeseries(1, 2)

	var buf bytes.Buffer
	require.NoError(t, m.WriteTimeseries(&buf))

	out := buf.String()
	require.Less(t,
		indexOf(out, "1.0000"),
		indexOf(out, "5.0000"),
	)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
