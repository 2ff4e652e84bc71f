package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/kelpwave/buoysim/internal/metrics"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	require.NotNil(t, c.BeaconsSent)
	require.NotNil(t, c.AvgNeighbors)

	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestCollectorCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncSent()
	c.IncSent()
	c.IncReceived()
	c.IncLost()
	c.IncCollided()

	require.Equal(t, 2.0, counterValue(t, c.BeaconsSent))
	require.Equal(t, 1.0, counterValue(t, c.BeaconsReceived))
	require.Equal(t, 1.0, counterValue(t, c.BeaconsLost))
	require.Equal(t, 1.0, counterValue(t, c.BeaconsCollided))
}

func TestCollectorSync(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	m := metrics.New()

	m.RecordPotentialReceiver()
	m.RecordPotentialReceiver()

	c.Sync(m, 5)
	require.Equal(t, 5.0, gaugeValue(t, c.ActiveBuoys))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}
