// Package sim wires together the event queue, channel, buoy population and
// metrics sink into the single-threaded discrete-event driver described by
// the simulation's external interface: build from a config, Run to
// completion, then read back metrics for CSV export.
package sim

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/kelpwave/buoysim/internal/buoy"
	"github.com/kelpwave/buoysim/internal/channel"
	"github.com/kelpwave/buoysim/internal/config"
	"github.com/kelpwave/buoysim/internal/event"
	"github.com/kelpwave/buoysim/internal/metrics"
	"github.com/kelpwave/buoysim/internal/policy"
)

const (
	mobilityStepInterval  = 0.1  // seconds between mobility steps
	channelGCInterval     = 1.0  // seconds between channel garbage collection passes
	randomChurnMinGap     = 15.0 // lower bound of the jittered gap between random-mode churn ticks
	randomChurnMaxGap     = 20.0 // upper bound of the jittered gap between random-mode churn ticks
	initialChurnDelay     = 30.0 // delay before the first random-mode churn tick
	timeseriesSampleEvery = 5.0  // seconds between ramp-mode time-series samples
)

// Simulator is the CORE discrete-event driver. It implements
// event.Scheduler so buoy code can schedule future work without importing
// this package.
type Simulator struct {
	cfg *config.Config
	log *slog.Logger
	rng *rand.Rand

	queue   *event.Queue
	channel *channel.Channel
	metrics *metrics.Metrics
	now     float64

	buoys  []*buoy.Buoy
	active []bool // active[i] mirrors buoys[i]'s membership in the current population

	buoyParams buoy.Params
	policyCfg  policy.Config
	policyKind policy.Kind

	firstChurnDone bool
	rampTotal      int
	rampAddEvery   float64

	collector           *metrics.Collector
	lastSentSynced      int
	lastReceivedSynced  int
	lastLostSynced      int
	lastCollidedSynced  int
}

// SetCollector attaches a live Prometheus mirror. It is optional — nil
// leaves the simulator purely CSV-output driven, which is all the batch
// CLI and every test need.
func (s *Simulator) SetCollector(c *metrics.Collector) { s.collector = c }

// syncCollector pushes any counter deltas and the latest gauges into the
// attached Collector. Counters are Prometheus-only Add()-able, so this
// tracks what's already been reported rather than re-deriving it from
// individual record calls scattered across the buoy and channel packages.
func (s *Simulator) syncCollector() {
	if s.collector == nil {
		return
	}
	m := s.metrics
	if d := m.BeaconsSent - s.lastSentSynced; d > 0 {
		s.collector.BeaconsSent.Add(float64(d))
	}
	if d := m.BeaconsReceived - s.lastReceivedSynced; d > 0 {
		s.collector.BeaconsReceived.Add(float64(d))
	}
	if d := m.BeaconsLost - s.lastLostSynced; d > 0 {
		s.collector.BeaconsLost.Add(float64(d))
	}
	if d := m.BeaconsCollided - s.lastCollidedSynced; d > 0 {
		s.collector.BeaconsCollided.Add(float64(d))
	}
	s.lastSentSynced, s.lastReceivedSynced = m.BeaconsSent, m.BeaconsReceived
	s.lastLostSynced, s.lastCollidedSynced = m.BeaconsLost, m.BeaconsCollided
	s.collector.Sync(m, s.ActiveBuoyCount())
}

// New builds a Simulator from cfg. If cfg.Output.PositionsFile is set, it
// is loaded and used for the initial buoy positions (mobile buoys first,
// then fixed), overriding randomized placement for exactly as many buoys
// as it has entries.
func New(cfg *config.Config, log *slog.Logger) (*Simulator, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Simulator{
		cfg:     cfg,
		log:     log,
		rng:     rand.New(rand.NewPCG(cfg.Simulation.Seed, cfg.Simulation.Seed^0x9e3779b97f4a7c15)),
		queue:   event.NewQueue(),
		metrics: metrics.New(),
	}

	s.buoyParams = buoy.Params{
		DIFS:        cfg.CSMA.DIFS.Seconds(),
		BackoffMin:  cfg.CSMA.BackoffMin.Seconds(),
		BackoffMax:  cfg.CSMA.BackoffMax.Seconds(),
		BitRate:     cfg.Network.BitRate,
		NeighborTTL: cfg.Scheduler.NeighborTimeout().Seconds(),
	}
	s.policyCfg = policy.Config{
		BIMin: cfg.Scheduler.BIMin.Seconds(),
		BIMax: cfg.Scheduler.BIMax.Seconds(),
	}
	switch cfg.Simulation.Mode {
	case "adab":
		s.policyKind = policy.KindADAB
	case "acab":
		s.policyKind = policy.KindACAB
	default:
		s.policyKind = policy.KindStatic
	}

	netCfg := channel.Config{
		SpeedOfLight:     cfg.Network.SpeedOfLight,
		RangeHigh:        cfg.Network.RangeHigh,
		RangeMax:         cfg.Network.RangeMax,
		DeliveryProbHigh: cfg.Network.DeliveryProbHigh,
		DeliveryProbLow:  cfg.Network.DeliveryProbLow,
		GracePeriod:      cfg.Network.GracePeriod,
	}
	if cfg.Simulation.Ideal {
		netCfg.DeliveryProbHigh = 1
		netCfg.DeliveryProbLow = 1
	}
	s.channel = channel.New(netCfg, log, s.rng, s.metrics)
	s.channel.SetReceivers(s)

	var positions []channel.Vec2
	if cfg.Output.PositionsFile != "" {
		p, err := LoadPositions(cfg.Output.PositionsFile)
		if err != nil {
			return nil, err
		}
		positions = p
	}

	initialMobile := cfg.Buoys.MobileCount
	initialFixed := cfg.Buoys.FixedCount
	if cfg.Simulation.Ramp {
		// Ramp mode starts at 2 buoys and grows to the configured total.
		initialMobile, initialFixed = 2, 0
		s.rampTotal = cfg.Buoys.MobileCount + cfg.Buoys.FixedCount
		if s.rampTotal > 2 {
			s.rampAddEvery = cfg.Simulation.Duration / float64(s.rampTotal-2)
		}
	}

	s.spawnInitial(initialMobile, initialFixed, positions)

	return s, nil
}

func (s *Simulator) spawnInitial(mobileCount, fixedCount int, positions []channel.Vec2) {
	total := mobileCount + fixedCount
	s.buoys = make([]*buoy.Buoy, 0, total)
	s.active = make([]bool, 0, total)

	posAt := func(i int) channel.Vec2 {
		if i < len(positions) {
			return positions[i]
		}
		return channel.Vec2{
			X: s.rng.Float64() * s.cfg.World.Width,
			Y: s.rng.Float64() * s.cfg.World.Height,
		}
	}

	for i := 0; i < mobileCount; i++ {
		s.addBuoy(posAt(i), s.randomVelocity(), false)
	}
	for i := 0; i < fixedCount; i++ {
		s.addBuoy(posAt(mobileCount+i), channel.Vec2{}, true)
	}
}

func (s *Simulator) randomVelocity() channel.Vec2 {
	speed := s.cfg.Buoys.DefaultVelocity
	angle := s.rng.Float64() * 2 * 3.141592653589793
	return channel.Vec2{X: speed * cos(angle), Y: speed * sin(angle)}
}

// addBuoy appends a new buoy (active) and returns its index.
func (s *Simulator) addBuoy(pos, vel channel.Vec2, fixed bool) int {
	idx := len(s.buoys)
	pol := policy.New(s.policyKind, s.policyCfg, s.cfg.Scheduler.StaticInterval.Seconds())
	b := buoy.New(idx, uuid.New(), pos, vel, fixed, pol, s.buoyParams, s.metrics, s.log)
	s.buoys = append(s.buoys, b)
	s.active = append(s.active, true)
	return idx
}

// Receivers implements channel.ReceiverSource: every active buoy other
// than senderIndex, as a non-owning snapshot of index and position. The
// Channel filters this by range itself; Receivers just enumerates who
// currently exists.
func (s *Simulator) Receivers(senderIndex int) []channel.Receiver {
	out := make([]channel.Receiver, 0, len(s.buoys))
	for i, b := range s.buoys {
		if i == senderIndex || !s.active[i] {
			continue
		}
		out = append(out, channel.Receiver{Index: i, Pos: b.Pos})
	}
	return out
}

// Schedule implements event.Scheduler.
func (s *Simulator) Schedule(at float64, typ event.Type, target event.Target, data event.Data) {
	s.queue.Push(event.Event{Time: at, Type: typ, Target: target, Data: data})
}

// Now implements event.Scheduler.
func (s *Simulator) Now() float64 { return s.now }

// Metrics returns the accumulated metrics sink, valid to read once Run has
// returned.
func (s *Simulator) Metrics() *metrics.Metrics { return s.metrics }

// ActiveBuoyCount returns the number of currently active (non-churned-out)
// buoys.
func (s *Simulator) ActiveBuoyCount() int {
	n := 0
	for _, a := range s.active {
		if a {
			n++
		}
	}
	return n
}

// Run drives the simulation to completion: it schedules the initial event
// set, then pops and dispatches events in time order until the configured
// duration is reached or the queue drains. A panicking handler is
// recovered at this single point so one faulty dispatch cannot abort a
// long batch run; everything else propagates as a logged warning and the
// loop continues.
func (s *Simulator) Run(ctx context.Context) error {
	s.scheduleInitialEvents()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, ok := s.queue.Pop()
		if !ok {
			break
		}
		if ev.Time > s.cfg.Simulation.Duration {
			break
		}
		s.now = ev.Time

		s.dispatch(ev)
	}

	return nil
}

func (s *Simulator) dispatch(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked, dropping event",
				slog.String("event_type", ev.Type.String()),
				slog.Any("recovered", r))
		}
	}()

	switch ev.Target.Kind {
	case event.TargetBuoy:
		s.dispatchBuoy(ev)
	case event.TargetSimulator:
		s.dispatchSimulator(ev)
	default:
		s.log.Warn("event with unknown target kind", slog.String("event_type", ev.Type.String()))
	}
}

func (s *Simulator) dispatchBuoy(ev event.Event) {
	idx := ev.Target.BuoyIndex
	if idx < 0 || idx >= len(s.buoys) || !s.active[idx] {
		return
	}
	b := s.buoys[idx]

	switch ev.Type {
	case event.TypeCheckSend:
		b.HandleWantToSend(s, s.channel, s.rng, s.now)
	case event.TypeDIFSExpired:
		b.HandleDIFSElapsed(s, s.channel, s.rng, s.now)
	case event.TypeBackoffExpired:
		b.HandleBackoffElapsed(s, s.channel, s.rng, s.now)
	case event.TypeTxComplete:
		s.scheduleReceptions(ev.Data.TxID, idx)
		b.HandleTxComplete(s, s.rng, s.now)
	case event.TypeBeaconReceived:
		s.deliverToReceiver(ev.Data.TxID, idx)
	default:
		s.log.Warn("buoy received unexpected event type", slog.String("event_type", ev.Type.String()))
	}
}

// propagationEpsilon is the tie-breaking offset added to every reception
// time so a RECEPTION event always sorts strictly after the transmission
// it belongs to, even over zero propagation distance.
const propagationEpsilon = 1e-9

// scheduleReceptions runs once, at the sender's own TRANSMISSION_END, for
// every other active buoy within range: each is a delivery candidate, and
// its outcome is decided later, at reception_time = tx_end + dist/c + eps,
// via a dedicated RECEPTION event — never evaluated early, so every
// invariant tying receive time to propagation delay holds.
func (s *Simulator) scheduleReceptions(txID uint64, senderIdx int) {
	sender := s.buoys[senderIdx]
	for i, b := range s.buoys {
		if i == senderIdx || !s.active[i] {
			continue
		}
		if !s.channel.InRange(sender.Pos, b.Pos) {
			continue
		}
		s.metrics.RecordPotentialReceiver()

		dist := sender.Pos.Dist(b.Pos)
		receptionTime := s.now + dist/s.cfg.Network.SpeedOfLight + propagationEpsilon
		s.Schedule(receptionTime, event.TypeBeaconReceived, event.BuoyTarget(i), event.Data{TxID: txID})
	}
}

// deliverToReceiver evaluates one (transmission, receiver) pair at its
// scheduled reception time and updates metrics/neighbor tables. receiverIdx
// comes from the event's own target, which already identifies the buoy
// this RECEPTION was scheduled for.
func (s *Simulator) deliverToReceiver(txID uint64, receiverIdx int) {
	b := s.buoys[receiverIdx]
	outcome := s.channel.EvaluateReceiver(txID, receiverIdx, b.Pos, s.now)
	if !outcome.InRange {
		return
	}
	if outcome.Collided || !outcome.Delivered {
		// A reception-time collision is just a dropped delivery, folded
		// into the same Lost bucket as a failed probabilistic draw —
		// Broadcast already logged the pair-level collision metric.
		s.metrics.RecordLost()
		return
	}

	bc := outcome.Beacon
	s.metrics.RecordDelivered(bc.SenderID, b.ID, bc.Timestamp, s.now)
	b.ObserveBeacon(bc, s.now)
}

func (s *Simulator) dispatchSimulator(ev event.Event) {
	switch ev.Type {
	case event.TypeMobilityStep:
		s.stepMobility()
		s.Schedule(s.now+mobilityStepInterval, event.TypeMobilityStep, event.SimulatorTarget(), event.Data{})
	case event.TypeNeighborTableSweep:
		s.sweepNeighbors()
		s.Schedule(s.now+s.buoyParams.NeighborTTL, event.TypeNeighborTableSweep, event.SimulatorTarget(), event.Data{})
	case event.TypeChannelGC:
		s.channel.Update(s.now)
		s.Schedule(s.now+channelGCInterval, event.TypeChannelGC, event.SimulatorTarget(), event.Data{})
	case event.TypePopulationUpdate:
		if s.cfg.Simulation.Ramp {
			s.rampTick()
		} else {
			s.randomChurnTick()
			next := s.now + randomChurnMinGap + s.rng.Float64()*(randomChurnMaxGap-randomChurnMinGap)
			s.Schedule(next, event.TypePopulationUpdate, event.SimulatorTarget(), event.Data{})
		}
	case event.TypeTimeseriesSample:
		s.sampleTimeseries()
		if s.now < s.cfg.Simulation.Duration {
			s.Schedule(s.now+timeseriesSampleEvery, event.TypeTimeseriesSample, event.SimulatorTarget(), event.Data{})
		}
	default:
		s.log.Warn("simulator received unexpected event type", slog.String("event_type", ev.Type.String()))
	}
}

func (s *Simulator) scheduleInitialEvents() {
	for _, b := range s.buoys {
		b.ScheduleInitial(s, s.rng)
	}
	s.Schedule(mobilityStepInterval, event.TypeMobilityStep, event.SimulatorTarget(), event.Data{})
	s.Schedule(s.buoyParams.NeighborTTL, event.TypeNeighborTableSweep, event.SimulatorTarget(), event.Data{})
	s.Schedule(channelGCInterval, event.TypeChannelGC, event.SimulatorTarget(), event.Data{})

	if s.cfg.Simulation.Ramp {
		s.Schedule(s.rampAddEvery, event.TypePopulationUpdate, event.SimulatorTarget(), event.Data{})
		s.Schedule(timeseriesSampleEvery, event.TypeTimeseriesSample, event.SimulatorTarget(), event.Data{})
	} else {
		s.Schedule(initialChurnDelay, event.TypePopulationUpdate, event.SimulatorTarget(), event.Data{})
	}
}

func (s *Simulator) stepMobility() {
	for i, b := range s.buoys {
		if !s.active[i] {
			continue
		}
		b.Step(mobilityStepInterval, s.cfg.World.Width, s.cfg.World.Height)
	}
}

func (s *Simulator) sweepNeighbors() {
	for i, b := range s.buoys {
		if !s.active[i] {
			continue
		}
		b.SweepNeighbors(s.now)
		s.metrics.RecordNeighborSnapshot(len(b.Neighbors))
	}
	s.syncCollector()
}

func (s *Simulator) sampleTimeseries() {
	s.metrics.SampleTimeseries(s.now, s.ActiveBuoyCount())
}

// rampTick adds the next buoy from the ramp-mode schedule, growing the
// population by one every rampAddEvery seconds until rampTotal is reached.
func (s *Simulator) rampTick() {
	if s.rampTotal == 0 || len(s.buoys) >= s.rampTotal {
		return
	}
	pos := channel.Vec2{X: s.rng.Float64() * s.cfg.World.Width, Y: s.rng.Float64() * s.cfg.World.Height}
	idx := s.addBuoy(pos, s.randomVelocity(), false)

	offset := s.rng.Float64() * 0.01
	s.Schedule(s.now+offset, event.TypeCheckSend, event.BuoyTarget(idx), event.Data{})

	if len(s.buoys) < s.rampTotal {
		s.Schedule(s.now+s.rampAddEvery, event.TypePopulationUpdate, event.SimulatorTarget(), event.Data{})
	}
}

// randomChurnTick flips a batch of buoys between active and inactive,
// mirroring the original implementation's coin-flip between a larger
// remove and a larger add: the very first tick always forces a removal,
// every subsequent tick removes with 50% probability (so long as the
// active population stays above the population floor) and otherwise adds
// back from the inactive pool.
func (s *Simulator) randomChurnTick() {
	total := len(s.buoys)
	if total == 0 {
		return
	}

	var activeIdx, inactiveIdx []int
	for i, a := range s.active {
		if a {
			activeIdx = append(activeIdx, i)
		} else {
			inactiveIdx = append(inactiveIdx, i)
		}
	}

	minBuoys := intMax(3, int(float64(total)*0.2))
	firstChange := !s.firstChurnDone

	remove := firstChange || (s.rng.Float64() >= 0.5 && len(activeIdx) > minBuoys)

	switch {
	case remove && len(activeIdx) > minBuoys:
		removePct := 0.4
		if firstChange {
			removePct = 0.5
		}
		maxToRemove := intMin(len(activeIdx)-minBuoys, intMax(2, int(float64(total)*removePct)))
		numToRemove := maxToRemove
		if maxToRemove > 2 {
			numToRemove = 1 + s.rng.IntN(maxToRemove)
		}
		s.rng.Shuffle(len(activeIdx), func(i, j int) { activeIdx[i], activeIdx[j] = activeIdx[j], activeIdx[i] })
		for _, idx := range activeIdx[:numToRemove] {
			s.active[idx] = false
		}
		if firstChange {
			s.firstChurnDone = true
		}
	case len(inactiveIdx) > 0:
		maxToAdd := intMin(len(inactiveIdx), intMax(2, int(float64(total)*0.4)))
		numToAdd := maxToAdd
		if maxToAdd > 2 {
			numToAdd = 1 + s.rng.IntN(maxToAdd)
		}
		s.rng.Shuffle(len(inactiveIdx), func(i, j int) { inactiveIdx[i], inactiveIdx[j] = inactiveIdx[j], inactiveIdx[i] })
		for _, idx := range inactiveIdx[:numToAdd] {
			s.active[idx] = true
			offset := s.rng.Float64()
			s.Schedule(s.now+offset, event.TypeCheckSend, event.BuoyTarget(idx), event.Data{})
		}
		s.firstChurnDone = true
	}
}

func intMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func cos(x float64) float64 { return math.Cos(x) }
func sin(x float64) float64 { return math.Sin(x) }
