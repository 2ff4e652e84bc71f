// Package event defines the discrete-event primitives shared by the
// simulator's CORE packages: the event record itself, its target, and the
// min-heap queue that orders events by simulated time.
//
// Target is a tagged union rather than an interface so that Event stays a
// plain, copyable value — no dynamic dispatch is needed to decide which
// buoy (or the simulator itself) an event is destined for.
package event

import "container/heap"

// Type identifies what kind of thing happened.
type Type uint8

const (
	// TypeCheckSend asks a buoy to evaluate whether it should start a
	// transmission attempt right now (CSMA/CA carrier-sense check).
	TypeCheckSend Type = iota

	// TypeDIFSExpired fires after a buoy has sensed the channel idle for
	// the DIFS interval and should begin a random backoff.
	TypeDIFSExpired

	// TypeBackoffExpired fires after a buoy's backoff counter reaches
	// zero; the buoy must re-sense and either transmit or restart.
	TypeBackoffExpired

	// TypeTxComplete fires when a buoy's in-flight transmission's
	// duration has elapsed.
	TypeTxComplete

	// TypeBeaconReceived fires once per potential receiver of a
	// transmission, at that receiver's reception time; the channel
	// evaluates the delivery when the event is dispatched.
	TypeBeaconReceived

	// TypeMobilityStep advances every buoy's position by one simulated
	// time step.
	TypeMobilityStep

	// TypePopulationUpdate triggers the simulator's churn logic (random
	// add/remove, or ramp growth).
	TypePopulationUpdate

	// TypeNeighborTableSweep evicts stale neighbor-table entries and
	// recomputes the neighbor-count average.
	TypeNeighborTableSweep

	// TypeChannelGC garbage collects finished transmission records from
	// the shared channel once their grace period has elapsed.
	TypeChannelGC

	// TypeTimeseriesSample records a ramp-mode time-series row.
	TypeTimeseriesSample
)

// String returns the human-readable event type name.
func (t Type) String() string {
	switch t {
	case TypeCheckSend:
		return "CheckSend"
	case TypeDIFSExpired:
		return "DIFSExpired"
	case TypeBackoffExpired:
		return "BackoffExpired"
	case TypeTxComplete:
		return "TxComplete"
	case TypeBeaconReceived:
		return "BeaconReceived"
	case TypeMobilityStep:
		return "MobilityStep"
	case TypePopulationUpdate:
		return "PopulationUpdate"
	case TypeNeighborTableSweep:
		return "NeighborTableSweep"
	case TypeChannelGC:
		return "ChannelGC"
	case TypeTimeseriesSample:
		return "TimeseriesSample"
	default:
		return "Unknown"
	}
}

// TargetKind distinguishes which component an event is destined for.
type TargetKind uint8

const (
	// TargetBuoy routes the event to a single buoy, identified by index
	// into the simulator's buoy slice.
	TargetBuoy TargetKind = iota

	// TargetSimulator routes the event to the simulator driver itself
	// (mobility, population churn, neighbor sweep, channel GC,
	// time-series sampling). The shared channel has no event-routed
	// operations of its own — every caller reaches it through a direct
	// method call (IsBusy, Broadcast, EvaluateReceiver, Update) driven by
	// a buoy or simulator event instead.
	TargetSimulator
)

// Target names the recipient of an Event. BuoyIndex is meaningful only
// when Kind is TargetBuoy.
type Target struct {
	Kind      TargetKind
	BuoyIndex int
}

// BuoyTarget builds a Target addressing the buoy at index i.
func BuoyTarget(i int) Target { return Target{Kind: TargetBuoy, BuoyIndex: i} }

// SimulatorTarget addresses the simulator driver.
func SimulatorTarget() Target { return Target{Kind: TargetSimulator} }

// Data carries event-specific payload. Only the fields relevant to a given
// Type are populated; handlers know which fields to read from the Type.
type Data struct {
	// TxID identifies an active transmission record (TypeTxComplete,
	// TypeBeaconReceived).
	TxID uint64
}

// Event is a single scheduled occurrence: a time, a monotonic sequence
// number that breaks ties in FIFO order, a type, a target, and a payload.
type Event struct {
	Time   float64
	Seq    uint64
	Type   Type
	Target Target
	Data   Data
}

// Scheduler is implemented by the simulator driver and consumed by the
// buoy package so it can schedule future events without importing the
// sim package — avoiding an import cycle the same
// way a narrow callback type avoids one between a protocol package and its
// integration packages.
type Scheduler interface {
	Schedule(at float64, typ Type, target Target, data Data)
	Now() float64
}

// eventHeap implements heap.Interface over a slice of events ordered by
// (Time, Seq). It is wrapped by Queue, which owns sequence assignment and
// exposes a Push/Pop API shaped for this package's callers instead of the
// generic container/heap one.
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a min-heap of events ordered by (Time, Seq). Seq is assigned by
// the owner on Push and is never reused, so events scheduled at identical
// times pop in the order they were scheduled — the only tie-break rule the
// simulator uses.
type Queue struct {
	h       eventHeap
	nextSeq uint64
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	return &Queue{h: make(eventHeap, 0)}
}

// Push schedules ev, assigning it the next monotonic sequence number.
func (q *Queue) Push(ev Event) {
	ev.Seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, ev)
}

// Pop removes and returns the earliest-scheduled event. ok is false when
// the queue is empty.
func (q *Queue) Pop() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	ev, _ := heap.Pop(&q.h).(Event)
	return ev, true
}

// Peek returns the earliest-scheduled event without removing it.
func (q *Queue) Peek() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	return q.h[0], true
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int { return q.h.Len() }
