package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "buoysim"
	subsystem = "beacon"
)

// Collector holds the live Prometheus mirror of the simulation's beacon
// exchange counters. It is purely observational: the CORE's own Metrics
// struct above is the source of truth for CSV export, so the numbers here
// never gate correctness — only live visibility into a long-running batch.
type Collector struct {
	BeaconsSent      prometheus.Counter
	BeaconsReceived  prometheus.Counter
	BeaconsLost      prometheus.Counter
	BeaconsCollided  prometheus.Counter
	AvgNeighbors     prometheus.Gauge
	DeliveryRatio    prometheus.Gauge
	ActiveBuoys      prometheus.Gauge
}

// NewCollector creates a Collector with all counters/gauges registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		BeaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "sent_total",
			Help: "Total beacon transmission attempts.",
		}),
		BeaconsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "received_total",
			Help: "Total beacons successfully delivered.",
		}),
		BeaconsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "lost_total",
			Help: "Total beacon deliveries lost to the delivery draw, a reception-time collision, or an unevaluated receiver.",
		}),
		BeaconsCollided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "collided_total",
			Help: "Total broadcast-time collisions between overlapping transmission pairs.",
		}),
		AvgNeighbors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "avg_neighbors",
			Help: "Mean neighbor-table size across all buoys, as of the last sample.",
		}),
		DeliveryRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "delivery_ratio",
			Help: "Actually-received over potentially-sent, as of the last sample.",
		}),
		ActiveBuoys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_buoys",
			Help: "Current number of active buoys in the simulated population.",
		}),
	}

	reg.MustRegister(
		c.BeaconsSent, c.BeaconsReceived, c.BeaconsLost, c.BeaconsCollided,
		c.AvgNeighbors, c.DeliveryRatio, c.ActiveBuoys,
	)

	return c
}

// Sync sets the live gauges from m's current values; the counters are
// advanced separately by the caller. Called periodically by the simulator driver, not on every event, to
// avoid turning Prometheus bookkeeping into a per-event cost in the
// single-threaded CORE loop.
func (c *Collector) Sync(m *Metrics, activeBuoys int) {
	c.AvgNeighbors.Set(m.AvgNeighbors())
	c.DeliveryRatio.Set(m.DeliveryRatio())
	c.ActiveBuoys.Set(float64(activeBuoys))
}

// IncSent mirrors one RecordSent call.
func (c *Collector) IncSent() { c.BeaconsSent.Inc() }

// IncReceived mirrors one RecordDelivered call.
func (c *Collector) IncReceived() { c.BeaconsReceived.Inc() }

// IncLost mirrors one RecordLost call.
func (c *Collector) IncLost() { c.BeaconsLost.Inc() }

// IncCollided mirrors one RecordCollision call.
func (c *Collector) IncCollided() { c.BeaconsCollided.Inc() }
