package event_test

import (
	"testing"

	"github.com/kelpwave/buoysim/internal/event"
	"pgregory.net/rapid"
)

func TestQueuePopsInTimeOrder(t *testing.T) {
	t.Parallel()

	q := event.NewQueue()
	times := []float64{5, 1, 3, 1, 0, 9}
	for _, tm := range times {
		q.Push(event.Event{Time: tm, Type: event.TypeCheckSend, Target: event.SimulatorTarget()})
	}

	var got []float64
	for {
		ev, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, ev.Time)
	}

	want := []float64{0, 1, 1, 3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v, want %v", i, got, want)
		}
	}
}

func TestQueueFIFOTieBreak(t *testing.T) {
	t.Parallel()

	q := event.NewQueue()
	for i := 0; i < 5; i++ {
		q.Push(event.Event{Time: 2.0, Type: event.TypeCheckSend, Target: event.BuoyTarget(i)})
	}

	for i := 0; i < 5; i++ {
		ev, ok := q.Pop()
		if !ok {
			t.Fatalf("expected event at index %d", i)
		}
		if ev.Target.BuoyIndex != i {
			t.Fatalf("tie-break order violated: got buoy %d at position %d, want %d", ev.Target.BuoyIndex, i, i)
		}
	}
}

// TestQueueOrderingProperty checks, for arbitrary push sequences, that pops
// are always non-decreasing in time and that equal-time events preserve
// push order (the FIFO tie-break law).
func TestQueueOrderingProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		q := event.NewQueue()

		type pushed struct {
			time float64
			seq  int
		}
		var in []pushed
		for i := 0; i < n; i++ {
			tm := rapid.Float64Range(0, 100).Draw(t, "time")
			q.Push(event.Event{Time: tm, Type: event.TypeCheckSend, Target: event.BuoyTarget(i)})
			in = append(in, pushed{time: tm, seq: i})
		}

		lastTime := -1.0
		lastSeqAtTime := -1
		for i := 0; i < n; i++ {
			ev, ok := q.Pop()
			if !ok {
				t.Fatalf("queue emptied early at pop %d of %d", i, n)
			}
			if ev.Time < lastTime {
				t.Fatalf("time went backwards: %v after %v", ev.Time, lastTime)
			}
			if ev.Time == lastTime && ev.Target.BuoyIndex < lastSeqAtTime {
				t.Fatalf("FIFO tie-break violated at time %v", ev.Time)
			}
			if ev.Time != lastTime {
				lastSeqAtTime = -1
			}
			lastTime = ev.Time
			lastSeqAtTime = ev.Target.BuoyIndex
		}

		if _, ok := q.Pop(); ok {
			t.Fatalf("expected queue to be empty after %d pops", n)
		}
	})
}
