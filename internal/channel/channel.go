// Package channel models the shared wireless medium: carrier sense over a
// finite-speed wavefront, a dual-radius probabilistic delivery model, and
// two independent collision mechanisms — a broadcast-time, pair-level
// collision count that feeds metrics only, and a reception-time,
// per-receiver arrival-proximity check that actually decides whether a
// given delivery is dropped.
package channel

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/kelpwave/buoysim/internal/beacon"
	"github.com/kelpwave/buoysim/internal/metrics"
)

// Vec2 is a 2D position or velocity.
type Vec2 struct{ X, Y float64 }

// Dist returns the Euclidean distance between two points.
func (v Vec2) Dist(o Vec2) float64 {
	dx, dy := v.X-o.X, v.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Config holds the physical parameters of the medium.
type Config struct {
	// SpeedOfLight is the wavefront propagation speed, in world-units per
	// simulated second.
	SpeedOfLight float64

	// RangeHigh (R_high) is the radius within which carrier sense fires
	// and delivery succeeds with probability DeliveryProbHigh.
	RangeHigh float64

	// RangeMax (R_max) is the outer radius beyond which a beacon cannot
	// be delivered at all. Between RangeHigh and RangeMax delivery
	// succeeds with probability DeliveryProbLow.
	RangeMax float64

	// DeliveryProbHigh is the delivery probability within RangeHigh.
	DeliveryProbHigh float64

	// DeliveryProbLow is the delivery probability between RangeHigh and
	// RangeMax.
	DeliveryProbLow float64

	// GracePeriod is how long a finished transmission record is kept
	// around (for late collision/receiver checks) before Update garbage
	// collects it.
	GracePeriod float64
}

// Receiver is one delivery candidate: a non-owning view of a buoy's
// index and current position, as seen by the channel at the moment it
// enumerates who a transmission could possibly reach.
type Receiver struct {
	Index int
	Pos   Vec2
}

// ReceiverSource enumerates the buoys a transmission from senderIndex
// could reach, excluding the sender itself. The Channel holds a
// non-owning reference to this — it never owns the buoy population, only
// asks who is currently out there.
type ReceiverSource interface {
	Receivers(senderIndex int) []Receiver
}

// receptionCollisionWindow is how close, in seconds, two transmissions'
// wavefronts have to arrive at the same receiver for the later one to be
// dropped as a collision at reception time. This is independent of the
// broadcast-time pair collision check in Broadcast, which only ever
// feeds metrics and never gates delivery.
const receptionCollisionWindow = 1e-5

// ActiveTransmission records one in-flight (or recently finished, see
// GracePeriod) broadcast.
type ActiveTransmission struct {
	ID          uint64
	SenderIndex int
	SenderPos   Vec2
	StartTime   float64
	Duration    float64
	Beacon      beacon.Beacon

	// PotentialReceivers is the number of buoys enumerated as delivery
	// candidates at broadcast time. processed tracks which of them have
	// since had EvaluateReceiver called for this transmission; any index
	// still missing when Update garbage collects the record is counted
	// as lost.
	PotentialReceivers int
	processed          map[int]bool
}

// EndTime returns when this transmission finishes.
func (a ActiveTransmission) EndTime() float64 { return a.StartTime + a.Duration }

// Channel is the shared medium. It keeps active (and recently finished,
// within GracePeriod) transmission records without removing them eagerly —
// a transmission that has already completed can still be found to collide
// with one that starts before it is garbage collected, and its receivers
// can still be evaluated after it ends.
type Channel struct {
	cfg     Config
	log     *slog.Logger
	rng     *rand.Rand
	metrics *metrics.Metrics

	receivers ReceiverSource

	transmissions []*ActiveTransmission
	nextID        uint64
}

// New builds a Channel. rng must not be nil; the caller owns seeding it so
// the whole simulation draws from one deterministic stream. metricsSink is
// a non-owning reference used to record collision/lost counters; it may be
// nil in unit tests that don't exercise metrics.
func New(cfg Config, log *slog.Logger, rng *rand.Rand, metricsSink *metrics.Metrics) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{cfg: cfg, log: log, rng: rng, metrics: metricsSink}
}

// SetReceivers attaches the buoy population's receiver enumeration. It
// must be called before the first Broadcast; the simulator does this
// right after constructing both itself and its Channel, passing itself.
func (c *Channel) SetReceivers(src ReceiverSource) { c.receivers = src }

// wavefrontReached reports whether the wavefront of tx, which began
// propagating at tx.StartTime, has reached a point distance away from the
// sender by time now — finite propagation speed combined with the R_high
// carrier-sense radius.
func (c *Channel) wavefrontReached(tx *ActiveTransmission, distance, now float64) bool {
	if distance > c.cfg.RangeHigh {
		return false
	}
	return distance <= c.cfg.SpeedOfLight*(now-tx.StartTime)
}

// IsBusy reports whether the medium is sensed busy at pos at time now:
// true when any active transmission's wavefront has reached pos and that
// transmission has not yet finished.
func (c *Channel) IsBusy(pos Vec2, now float64) bool {
	for _, tx := range c.transmissions {
		if now >= tx.EndTime() {
			continue
		}
		d := pos.Dist(tx.SenderPos)
		if c.wavefrontReached(tx, d, now) {
			return true
		}
	}
	return false
}

// InRange reports whether two points are within the maximum reachable
// radius R_max — the outer bound used for neighbor-list membership and for
// deciding who is even a delivery candidate.
func (c *Channel) InRange(a, b Vec2) bool {
	return a.Dist(b) <= c.cfg.RangeMax
}

func (c *Channel) recordCollision() {
	if c.metrics != nil {
		c.metrics.RecordCollision()
	}
}

func (c *Channel) recordLost(n int) {
	if c.metrics == nil || n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		c.metrics.RecordLost()
	}
}

// Broadcast starts a new transmission from senderIndex at pos, carrying
// beacon bc, lasting duration seconds from now. It enumerates potential
// receivers via the attached ReceiverSource and records one collision,
// purely for metrics, against every still-active transmission whose
// airtime overlaps this one and which either (a) can directly hear this
// sender, or (b) shares at least one potential receiver with this
// sender — at most once per overlapping pair. This collision log never
// gates delivery; see EvaluateReceiver for the check that does.
//
// It returns the new transmission's id, which callers use to schedule a
// TxComplete event and per-receiver BeaconReceived checks.
func (c *Channel) Broadcast(senderIndex int, pos Vec2, bc beacon.Beacon, now, duration float64) uint64 {
	tx := &ActiveTransmission{
		ID:          c.nextID,
		SenderIndex: senderIndex,
		SenderPos:   pos,
		StartTime:   now,
		Duration:    duration,
		Beacon:      bc,
		processed:   make(map[int]bool),
	}
	c.nextID++

	var candidates []Receiver
	if c.receivers != nil {
		for _, r := range c.receivers.Receivers(senderIndex) {
			if c.InRange(pos, r.Pos) {
				candidates = append(candidates, r)
			}
		}
	}
	tx.PotentialReceivers = len(candidates)

	for _, other := range c.transmissions {
		if now >= other.EndTime() {
			continue
		}
		// Airtime overlap: [tx.Start, tx.End) intersects [other.Start, other.End).
		if !(tx.StartTime < other.EndTime() && other.StartTime < tx.EndTime()) {
			continue
		}

		collided := c.InRange(tx.SenderPos, other.SenderPos)
		if !collided {
			for _, r := range candidates {
				if c.InRange(r.Pos, other.SenderPos) {
					collided = true
					break
				}
			}
		}
		if collided {
			c.recordCollision()
			c.log.Debug("collision detected",
				slog.Uint64("tx_a", tx.ID), slog.Uint64("tx_b", other.ID))
		}
	}

	c.transmissions = append(c.transmissions, tx)
	return tx.ID
}

// DeliveryOutcome is the result of evaluating one candidate receiver
// against one transmission.
type DeliveryOutcome struct {
	// InRange is false when the receiver is beyond R_max — no delivery is
	// even attempted.
	InRange bool
	// Collided is true when another transmission's wavefront arrived at
	// this receiver within receptionCollisionWindow of this one — a
	// reception-time check, independent of Broadcast's pair-level
	// collision metric. A collided delivery is simply not delivered; it
	// is not counted as a second collision.
	Collided bool
	// Delivered is true when the probabilistic delivery draw succeeded.
	Delivered bool
	// Beacon is the payload that was broadcast, returned so callers can
	// update receiver-side state without tracking transmissions themselves.
	Beacon beacon.Beacon
}

// EvaluateReceiver decides, for the transmission identified by txID,
// whether the receiver at receiverPos successfully receives the beacon at
// time now. Each (transmission, receiver) pair is evaluated at most once;
// repeated calls after the first return the zero DeliveryOutcome.
func (c *Channel) EvaluateReceiver(txID uint64, receiverIndex int, receiverPos Vec2, now float64) DeliveryOutcome {
	tx := c.find(txID)
	if tx == nil {
		return DeliveryOutcome{}
	}
	if tx.processed[receiverIndex] {
		return DeliveryOutcome{}
	}
	tx.processed[receiverIndex] = true

	d := receiverPos.Dist(tx.SenderPos)
	if d > c.cfg.RangeMax {
		return DeliveryOutcome{InRange: false}
	}

	if c.arrivalCollision(tx, receiverPos, now) {
		return DeliveryOutcome{InRange: true, Collided: true, Beacon: tx.Beacon}
	}

	prob := c.cfg.DeliveryProbLow
	if d <= c.cfg.RangeHigh {
		prob = c.cfg.DeliveryProbHigh
	}
	delivered := c.rng.Float64() < prob
	return DeliveryOutcome{InRange: true, Delivered: delivered, Beacon: tx.Beacon}
}

// arrivalCollision reports whether some other active transmission's
// wavefront reaches receiverPos within receptionCollisionWindow seconds of
// now — the actual reception time of tx's beacon at this receiver. Only
// transmissions that have already started are considered, and only those
// within RangeMax of the receiver.
func (c *Channel) arrivalCollision(tx *ActiveTransmission, receiverPos Vec2, now float64) bool {
	for _, other := range c.transmissions {
		if other.ID == tx.ID {
			continue
		}
		if now < other.StartTime {
			continue
		}
		d := receiverPos.Dist(other.SenderPos)
		if d > c.cfg.RangeMax {
			continue
		}
		arrival := other.EndTime() + d/c.cfg.SpeedOfLight
		if math.Abs(arrival-now) < receptionCollisionWindow {
			return true
		}
	}
	return false
}

func (c *Channel) find(id uint64) *ActiveTransmission {
	for _, tx := range c.transmissions {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

// Update garbage collects transmission records that finished more than
// GracePeriod seconds ago, as measured from now. Any receiver enumerated
// as a potential candidate at broadcast time but never evaluated by the
// time its record is collected — because it churned out of the
// population, or its scheduled reception event was otherwise never
// dispatched — is counted as lost, preserving
// processed + remaining_lost = potential_receivers.
func (c *Channel) Update(now float64) {
	kept := c.transmissions[:0]
	for _, tx := range c.transmissions {
		if now-tx.EndTime() > c.cfg.GracePeriod {
			missing := tx.PotentialReceivers - len(tx.processed)
			c.recordLost(missing)
			continue
		}
		kept = append(kept, tx)
	}
	c.transmissions = kept
}

// ActiveCount returns the number of transmission records currently kept
// (including those in their grace period) — exposed for tests and metrics.
func (c *Channel) ActiveCount() int { return len(c.transmissions) }
