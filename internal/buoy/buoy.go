// Package buoy implements a single buoy's CSMA/CA medium-access behavior,
// neighbor-table bookkeeping, and mobility step. Buoys talk to the shared
// channel directly (channel is a leaf package with no knowledge of buoy)
// and to the rest of the simulation only through the event.Scheduler
// interface, which keeps this package free of any dependency on the
// simulator driver that owns it.
package buoy

import (
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/kelpwave/buoysim/internal/beacon"
	"github.com/kelpwave/buoysim/internal/channel"
	"github.com/kelpwave/buoysim/internal/event"
	"github.com/kelpwave/buoysim/internal/metrics"
	"github.com/kelpwave/buoysim/internal/policy"
)

// Params holds the CSMA/CA and radio parameters a buoy needs to time its
// own transitions. These are shared across all buoys in a run.
type Params struct {
	DIFS         float64
	BackoffMin   float64
	BackoffMax   float64
	BitRate      float64 // bits per second, used to size transmit duration
	NeighborTTL  float64 // neighbor entries older than this are evicted
}

// NeighborEntry is one contact this buoy currently tracks.
type NeighborEntry struct {
	ID       uuid.UUID
	LastSeen float64
	Pos      channel.Vec2
}

// Buoy is a single mobile or fixed node in the simulation.
type Buoy struct {
	ID       uuid.UUID
	Index    int // this buoy's slot in the simulator's buoy slice
	Pos      channel.Vec2
	Velocity channel.Vec2
	Fixed    bool

	State State

	Policy policy.Policy
	params Params

	Neighbors map[uuid.UUID]*NeighborEntry

	currentTxID uint64

	// decisionTime is the simulated time of this buoy's latest
	// EventWantToSend. The scheduler latency recorded at transmission is
	// measured from here, covering DIFS and backoff. Every EventWantToSend
	// resets it, including the one a busy-channel retry schedules, so time
	// spent in earlier aborted attempts is not included.
	decisionTime float64

	metrics *metrics.Metrics
	log     *slog.Logger

	// UniqueContactsEverSeen is incremented whenever a sender that is not
	// currently in the neighbor table is observed, so a neighbor that was
	// evicted by SweepNeighbors and is heard again is counted again. The
	// avg-unique-nodes-discovered metric does not read it; metrics.Metrics
	// tracks discovery on its own.
	UniqueContactsEverSeen int
}

// New builds a Buoy at the given index with the given identity, position,
// policy and shared parameters. metricsSink is a non-owning reference used
// to record send/scheduler-latency counters as this buoy's own state
// machine runs; it may be nil in unit tests that don't exercise metrics.
func New(index int, id uuid.UUID, pos, vel channel.Vec2, fixed bool, pol policy.Policy, params Params, metricsSink *metrics.Metrics, log *slog.Logger) *Buoy {
	if log == nil {
		log = slog.Default()
	}
	return &Buoy{
		ID:        id,
		Index:     index,
		Pos:       pos,
		Velocity:  vel,
		Fixed:     fixed,
		State:     StateReceiving,
		Policy:    pol,
		params:    params,
		Neighbors: make(map[uuid.UUID]*NeighborEntry),
		metrics:   metricsSink,
		log:       log,
	}
}

// densityInput normalizes the current neighbor count into [0,1] against a
// saturation point — beyond this many neighbors, density reads as maximal.
// ADAB and ACAB saturate at different neighbor counts, so the point used
// depends on which policy is asking.
const (
	adabDensitySaturation = 15.0
	acabDensitySaturation = 10.0
)

func (b *Buoy) densityInput() float64 {
	sat := adabDensitySaturation
	if b.Policy.Kind == policy.KindACAB {
		sat = acabDensitySaturation
	}
	d := float64(len(b.Neighbors)) / sat
	if d > 1 {
		d = 1
	}
	return d
}

// contactFreshnessWindow is the fixed age, in seconds, past which the
// freshest neighbor contributes no freshness at all. It is independent of
// NeighborTTL (the neighbor-table eviction timeout): a neighbor can be
// long evicted under a short TTL and still be "fresh" under this window,
// or vice versa.
const contactFreshnessWindow = 20.0

// freshnessInput returns 1 when the most recently heard-from neighbor was
// contacted just now, decaying toward 0 as that single contact's age
// approaches contactFreshnessWindow. Only the freshest neighbor matters —
// a buoy with one very recent contact and many stale ones still reads as
// fresh.
func (b *Buoy) freshnessInput(now float64) float64 {
	if len(b.Neighbors) == 0 {
		return 0
	}
	var mostRecentSeen float64
	first := true
	for _, n := range b.Neighbors {
		if first || n.LastSeen > mostRecentSeen {
			mostRecentSeen = n.LastSeen
			first = false
		}
	}
	f := 1 - (now-mostRecentSeen)/contactFreshnessWindow
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f
}

// mobilityInput normalizes this buoy's own speed against a reference
// maximum — fixed buoys always report zero mobility.
const mobilitySaturation = 5.0

func (b *Buoy) mobilityInput() float64 {
	if b.Fixed {
		return 0
	}
	speed := b.Velocity.Dist(channel.Vec2{})
	m := speed / mobilitySaturation
	if m > 1 {
		m = 1
	}
	return m
}

// Inputs returns the current ADAB/ACAB policy inputs for this buoy.
func (b *Buoy) Inputs(now float64) policy.Inputs {
	return policy.Inputs{
		Density:   b.densityInput(),
		Freshness: b.freshnessInput(now),
		Mobility:  b.mobilityInput(),
	}
}

// ScheduleInitial schedules this buoy's first WantToSend event, using the
// policy's randomized initial offset.
func (b *Buoy) ScheduleInitial(sched event.Scheduler, rng *rand.Rand) {
	offset := b.Policy.InitialOffset(rng)
	sched.Schedule(sched.Now()+offset, event.TypeCheckSend, event.BuoyTarget(b.Index), event.Data{})
}

func (b *Buoy) scheduleNextAttempt(sched event.Scheduler, rng *rand.Rand, now float64) {
	interval := b.Policy.NextInterval(b.Inputs(now), rng)
	sched.Schedule(now+interval, event.TypeCheckSend, event.BuoyTarget(b.Index), event.Data{})
}

// HandleWantToSend runs the FSM's EventWantToSend: a carrier-sense check
// happens immediately (the channel itself has no propagation delay for the
// sensing buoy's own position).
func (b *Buoy) HandleWantToSend(sched event.Scheduler, ch *channel.Channel, rng *rand.Rand, now float64) {
	b.decisionTime = now

	res := Apply(b.State, EventWantToSend)
	b.apply(res)
	b.runActions(res.Actions, sched, ch, rng, now)

	idle := !ch.IsBusy(b.Pos, now)
	senseEvent := EventChannelBusy
	if idle {
		senseEvent = EventChannelIdle
	}
	res2 := Apply(b.State, senseEvent)
	b.apply(res2)
	b.runActions(res2.Actions, sched, ch, rng, now)
}

// HandleDIFSElapsed runs the FSM's EventDIFSElapsed, re-sensing the
// channel first since it may have gone busy during the DIFS wait.
func (b *Buoy) HandleDIFSElapsed(sched event.Scheduler, ch *channel.Channel, rng *rand.Rand, now float64) {
	if ch.IsBusy(b.Pos, now) {
		res := Apply(b.State, EventChannelBusy)
		b.apply(res)
		b.runActions(res.Actions, sched, ch, rng, now)
		return
	}
	res := Apply(b.State, EventDIFSElapsed)
	b.apply(res)
	b.runActions(res.Actions, sched, ch, rng, now)
}

// HandleBackoffElapsed runs the FSM's EventBackoffElapsed, re-sensing the
// channel first since it may have gone busy during the backoff wait.
func (b *Buoy) HandleBackoffElapsed(sched event.Scheduler, ch *channel.Channel, rng *rand.Rand, now float64) {
	if ch.IsBusy(b.Pos, now) {
		res := Apply(b.State, EventChannelBusy)
		b.apply(res)
		b.runActions(res.Actions, sched, ch, rng, now)
		return
	}
	res := Apply(b.State, EventBackoffElapsed)
	b.apply(res)
	b.runActions(res.Actions, sched, ch, rng, now)
}

// HandleTxComplete runs the FSM's EventTxDone and schedules this buoy's
// next beacon-interval check.
func (b *Buoy) HandleTxComplete(sched event.Scheduler, rng *rand.Rand, now float64) {
	res := Apply(b.State, EventTxDone)
	b.apply(res)
	b.scheduleNextAttempt(sched, rng, now)
}

func (b *Buoy) apply(res Result) {
	if res.Changed {
		b.log.Debug("buoy state change",
			slog.String("buoy", b.ID.String()),
			slog.String("from", res.OldState.String()),
			slog.String("to", res.NewState.String()))
	}
	b.State = res.NewState
}

func (b *Buoy) runActions(actions []Action, sched event.Scheduler, ch *channel.Channel, rng *rand.Rand, now float64) {
	for _, a := range actions {
		switch a {
		case ActionStartDIFSTimer:
			sched.Schedule(now+b.params.DIFS, event.TypeDIFSExpired, event.BuoyTarget(b.Index), event.Data{})
		case ActionStartBackoffTimer:
			window := b.params.BackoffMin + rng.Float64()*(b.params.BackoffMax-b.params.BackoffMin)
			sched.Schedule(now+window, event.TypeBackoffExpired, event.BuoyTarget(b.Index), event.Data{})
		case ActionTransmit:
			b.transmit(sched, ch, now)
		case ActionScheduleRetry:
			b.scheduleNextAttempt(sched, rng, now)
		case ActionSenseChannel:
			// Sensing itself happens inline in the caller; this action
			// exists so the FSM table documents the step explicitly.
		}
	}
}

func (b *Buoy) transmit(sched event.Scheduler, ch *channel.Channel, now float64) {
	bc := beacon.Beacon{
		SenderID:  b.ID,
		X:         b.Pos.X,
		Y:         b.Pos.Y,
		VX:        b.Velocity.X,
		VY:        b.Velocity.Y,
		Timestamp: now,
		Neighbors: b.neighborSnapshot(),
	}
	duration := bc.TransmitDuration(b.params.BitRate)
	txID := ch.Broadcast(b.Index, b.Pos, bc, now, duration)
	b.currentTxID = txID
	if b.metrics != nil {
		b.metrics.RecordSent()
		b.metrics.RecordSchedulerLatency(now - b.decisionTime)
	}
	sched.Schedule(now+duration, event.TypeTxComplete, event.BuoyTarget(b.Index), event.Data{TxID: txID})
}

func (b *Buoy) neighborSnapshot() []beacon.NeighborInfo {
	out := make([]beacon.NeighborInfo, 0, len(b.Neighbors))
	for _, n := range b.Neighbors {
		out = append(out, beacon.NeighborInfo{ID: n.ID, LastSeen: n.LastSeen, X: n.Pos.X, Y: n.Pos.Y})
	}
	return out
}

// ObserveBeacon records contact with bc's sender — called by the simulator
// after the channel confirms successful delivery to this buoy.
func (b *Buoy) ObserveBeacon(bc beacon.Beacon, now float64) {
	if _, known := b.Neighbors[bc.SenderID]; !known {
		b.UniqueContactsEverSeen++
	}
	b.Neighbors[bc.SenderID] = &NeighborEntry{
		ID:       bc.SenderID,
		LastSeen: now,
		Pos:      channel.Vec2{X: bc.X, Y: bc.Y},
	}
}

// SweepNeighbors evicts neighbor entries not heard from within NeighborTTL.
func (b *Buoy) SweepNeighbors(now float64) {
	for id, n := range b.Neighbors {
		if now-n.LastSeen > b.params.NeighborTTL {
			delete(b.Neighbors, id)
		}
	}
}

// Step advances this buoy's position by dt seconds at its current
// velocity, reflecting off the world boundary [0,width]x[0,height] instead
// of passing through it.
func (b *Buoy) Step(dt, width, height float64) {
	if b.Fixed {
		return
	}
	b.Pos.X += b.Velocity.X * dt
	b.Pos.Y += b.Velocity.Y * dt

	if b.Pos.X < 0 {
		b.Pos.X = -b.Pos.X
		b.Velocity.X = -b.Velocity.X
	} else if b.Pos.X > width {
		b.Pos.X = 2*width - b.Pos.X
		b.Velocity.X = -b.Velocity.X
	}
	if b.Pos.Y < 0 {
		b.Pos.Y = -b.Pos.Y
		b.Velocity.Y = -b.Velocity.Y
	} else if b.Pos.Y > height {
		b.Pos.Y = 2*height - b.Pos.Y
		b.Velocity.Y = -b.Velocity.Y
	}
}
