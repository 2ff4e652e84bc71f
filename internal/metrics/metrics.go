// Package metrics implements the simulation's metrics sink: a plain
// counter/map struct that is the source of truth for CSV export, and a
// Prometheus Collector that mirrors the same counts live during a run.
package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
)

// Metrics accumulates counts over the course of one simulation run. It has
// no dependency on Prometheus or any output format — WriteSummary and
// WriteTimeseries are the only places that know the CSV shape.
type Metrics struct {
	BeaconsSent      int
	BeaconsReceived  int
	BeaconsLost      int
	BeaconsCollided  int
	PotentiallySent  int
	ActuallyReceived int

	// TotalLatency sums (receive_time - send_timestamp) over every
	// successfully delivered beacon instance, feeding AvgLatency.
	TotalLatency float64

	// SchedulerLatencies records, for every completed transmission, the
	// delay between the buoy's latest send attempt and the beacon actually
	// going out (DIFS + backoff; earlier aborted attempts are not included).
	SchedulerLatencies []float64

	// discoveryTimes[receiver][sender] is the simulated time the receiver
	// first successfully received a beacon from that sender.
	discoveryTimes map[uuid.UUID]map[uuid.UUID]float64

	// reactionLatencies accumulates, per discovered pair, the delay
	// between a sender's beacon timestamp and the receiver's first
	// successful reception of it, feeding the average reported in the
	// summary.
	reactionLatencies []float64

	neighborCountSamples []float64

	TimeseriesRows []TimeseriesRow
}

// TimeseriesRow is one ramp-mode sample.
type TimeseriesRow struct {
	Time           float64
	DeliveryRatio  float64
	NBuoys         int
	AvgUniqueNodes float64
	AvgNeighbors   float64
}

// New returns an empty Metrics accumulator.
func New() *Metrics {
	return &Metrics{
		discoveryTimes: make(map[uuid.UUID]map[uuid.UUID]float64),
	}
}

// RecordSent records one beacon actually put on the wire (the
// TRANSMISSION_START / channel.Broadcast moment, not the earlier decision
// to attempt a send — an aborted-and-retried attempt is not double
// counted).
func (m *Metrics) RecordSent() { m.BeaconsSent++ }

// RecordPotentialReceiver records that a receiver was a delivery candidate
// for a transmission (in range, pre-probability-draw).
func (m *Metrics) RecordPotentialReceiver() { m.PotentiallySent++ }

// RecordCollision records one broadcast-time collision between a pair of
// overlapping transmissions. It does not decide whether any delivery is
// dropped.
func (m *Metrics) RecordCollision() { m.BeaconsCollided++ }

// RecordLost records one delivery that did not happen: a failed
// probabilistic draw, a reception-time collision, or a potential receiver
// never evaluated before its transmission record was garbage collected.
func (m *Metrics) RecordLost() { m.BeaconsLost++ }

// RecordSchedulerLatency records the delay between a buoy's decision to
// send and its beacon actually reaching the channel.
func (m *Metrics) RecordSchedulerLatency(latency float64) {
	m.SchedulerLatencies = append(m.SchedulerLatencies, latency)
}

// RecordDelivered records a successful delivery from sender to receiver at
// simulated time now, where sendTimestamp is the beacon's own origination
// time. Every delivered instance contributes to AvgLatency; only the first
// successful contact between a given (sender, receiver) pair contributes
// to AvgReactionLatency and unique-node discovery.
func (m *Metrics) RecordDelivered(sender, receiver uuid.UUID, sendTimestamp, now float64) {
	m.BeaconsReceived++
	m.ActuallyReceived++
	m.TotalLatency += now - sendTimestamp

	byReceiver, ok := m.discoveryTimes[receiver]
	if !ok {
		byReceiver = make(map[uuid.UUID]float64)
		m.discoveryTimes[receiver] = byReceiver
	}
	if _, seen := byReceiver[sender]; !seen {
		byReceiver[sender] = now
		m.reactionLatencies = append(m.reactionLatencies, now-sendTimestamp)
	}
}

// RecordNeighborSnapshot records one buoy's current neighbor-table size,
// feeding the average-neighbors-over-time figure.
func (m *Metrics) RecordNeighborSnapshot(count int) {
	m.neighborCountSamples = append(m.neighborCountSamples, float64(count))
}

// AvgNeighbors returns the mean neighbor-table size across every snapshot
// recorded so far.
func (m *Metrics) AvgNeighbors() float64 {
	if len(m.neighborCountSamples) == 0 {
		return 0
	}
	var total float64
	for _, v := range m.neighborCountSamples {
		total += v
	}
	return total / float64(len(m.neighborCountSamples))
}

// AvgUniqueNodesDiscovered returns the mean number of distinct senders
// discovered per receiver.
func (m *Metrics) AvgUniqueNodesDiscovered() float64 {
	if len(m.discoveryTimes) == 0 {
		return 0
	}
	var total float64
	for _, senders := range m.discoveryTimes {
		total += float64(len(senders))
	}
	return total / float64(len(m.discoveryTimes))
}

// AvgReactionLatency returns the mean delay between a sender's beacon
// timestamp and a receiver's first successful reception of it.
func (m *Metrics) AvgReactionLatency() float64 {
	if len(m.reactionLatencies) == 0 {
		return 0
	}
	var total float64
	for _, v := range m.reactionLatencies {
		total += v
	}
	return total / float64(len(m.reactionLatencies))
}

// AvgLatency returns the mean delay between a beacon's send timestamp and
// its successful reception, averaged over every delivered instance (not
// just first contact per pair).
func (m *Metrics) AvgLatency() float64 {
	if m.BeaconsReceived == 0 {
		return 0
	}
	return m.TotalLatency / float64(m.BeaconsReceived)
}

// AvgSchedulerLatency returns the mean delay between a buoy's send
// decision and its beacon actually reaching the channel.
func (m *Metrics) AvgSchedulerLatency() float64 {
	if len(m.SchedulerLatencies) == 0 {
		return 0
	}
	var total float64
	for _, v := range m.SchedulerLatencies {
		total += v
	}
	return total / float64(len(m.SchedulerLatencies))
}

// DeliveryRatio returns ActuallyReceived / PotentiallySent, or 0 when
// nothing was ever a delivery candidate.
func (m *Metrics) DeliveryRatio() float64 {
	if m.PotentiallySent == 0 {
		return 0
	}
	return float64(m.ActuallyReceived) / float64(m.PotentiallySent)
}

// CollisionRate returns Collisions / PotentiallySent, or 0 when nothing
// was ever a delivery candidate.
func (m *Metrics) CollisionRate() float64 {
	if m.PotentiallySent == 0 {
		return 0
	}
	return float64(m.BeaconsCollided) / float64(m.PotentiallySent)
}

// Throughput returns beacons received per simulated second over
// durationSeconds.
func (m *Metrics) Throughput(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(m.BeaconsReceived) / durationSeconds
}

// SampleTimeseries appends one ramp-mode row using the accumulator's
// current totals against the given buoy count.
func (m *Metrics) SampleTimeseries(now float64, nBuoys int) {
	m.TimeseriesRows = append(m.TimeseriesRows, TimeseriesRow{
		Time:           now,
		DeliveryRatio:  m.DeliveryRatio(),
		NBuoys:         nBuoys,
		AvgUniqueNodes: m.AvgUniqueNodesDiscovered(),
		AvgNeighbors:   m.AvgNeighbors(),
	})
}

// SummaryRow is one (Metric, Value) line of the run summary.
type SummaryRow struct {
	Metric string
	Value  string
}

// SummaryParams carries the run-level facts that aren't tracked by the
// Metrics accumulator itself (scheduler kind, population, world size) but
// are required columns of the summary CSV.
type SummaryParams struct {
	SchedulerType string
	MultihopMode  string
	WorldWidth    float64
	WorldHeight   float64
	MobileBuoys   int
	FixedBuoys    int
	Duration      float64
	// Density is recorded in the summary only when non-nil, matching the
	// original implementation's optional "Density" row.
	Density *float64
}

// Summary builds the ordered set of summary rows the CSV export writes,
// matching the exact column set and order the external interface specifies.
func (m *Metrics) Summary(p SummaryParams) []SummaryRow {
	rows := []SummaryRow{
		{"Scheduler Type", p.SchedulerType},
		{"Multihop Mode", p.MultihopMode},
		{"World Size", fmt.Sprintf("%gx%g", p.WorldWidth, p.WorldHeight)},
		{"Mobile Buoys", fmt.Sprintf("%d", p.MobileBuoys)},
		{"Fixed Buoys", fmt.Sprintf("%d", p.FixedBuoys)},
		{"Simulation Duration", fmt.Sprintf("%g", p.Duration)},
		{"Sent", fmt.Sprintf("%d", m.BeaconsSent)},
		{"Received", fmt.Sprintf("%d", m.BeaconsReceived)},
		{"Lost", fmt.Sprintf("%d", m.BeaconsLost)},
		{"Collisions", fmt.Sprintf("%d", m.BeaconsCollided)},
		{"Avg Latency", fmt.Sprintf("%.6f", m.AvgLatency())},
		{"Avg Scheduler Latency", fmt.Sprintf("%.6f", m.AvgSchedulerLatency())},
		{"Delivery Ratio", fmt.Sprintf("%.6f", m.DeliveryRatio())},
		{"Collision Rate", fmt.Sprintf("%.6f", m.CollisionRate())},
		{"Avg Reaction Latency", fmt.Sprintf("%.6f", m.AvgReactionLatency())},
		{"Throughput (beacons/sec)", fmt.Sprintf("%.6f", m.Throughput(p.Duration))},
		{"Potentially Sent", fmt.Sprintf("%d", m.PotentiallySent)},
		{"Actually Received", fmt.Sprintf("%d", m.ActuallyReceived)},
		{"Average Neighbors", fmt.Sprintf("%.6f", m.AvgNeighbors())},
		{"Avg Unique Nodes Discovered", fmt.Sprintf("%.6f", m.AvgUniqueNodesDiscovered())},
	}
	if p.Density != nil {
		rows = append(rows, SummaryRow{"Density", fmt.Sprintf("%g", *p.Density)})
	}
	return rows
}

// WriteSummary writes the summary CSV (header "Metric,Value") to w.
func (m *Metrics) WriteSummary(w io.Writer, p SummaryParams) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"Metric", "Value"}); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, row := range m.Summary(p) {
		if err := cw.Write([]string{row.Metric, row.Value}); err != nil {
			return fmt.Errorf("write summary row %q: %w", row.Metric, err)
		}
	}
	return cw.Error()
}

// WriteTimeseries writes the ramp-mode time-series CSV (header
// "time,delivery_ratio,n_buoys,avg_unique_nodes,avg_neighbors") to w.
func (m *Metrics) WriteTimeseries(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"time", "delivery_ratio", "n_buoys", "avg_unique_nodes", "avg_neighbors"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write timeseries header: %w", err)
	}

	rows := make([]TimeseriesRow, len(m.TimeseriesRows))
	copy(rows, m.TimeseriesRows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })

	for _, r := range rows {
		record := []string{
			fmt.Sprintf("%.4f", r.Time),
			fmt.Sprintf("%.6f", r.DeliveryRatio),
			fmt.Sprintf("%d", r.NBuoys),
			fmt.Sprintf("%.6f", r.AvgUniqueNodes),
			fmt.Sprintf("%.6f", r.AvgNeighbors),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write timeseries row: %w", err)
		}
	}
	return cw.Error()
}
