package jobs

import "testing"

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusSubscribe pushes events until unsubscribed.
func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	var got []int64
	unsubscribe := bus.Subscribe(func(ev Event) { got = append(got, ev.Seq) })

	bus.Publish(Event{Type: EventTypeSnapshot})
	bus.Publish(Event{Type: EventTypeResult})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Type: EventTypeStatus})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("delivered = %v, want [1 2]", got)
	}

	last, ok := bus.Last(EventTypeResult)
	if !ok || last.Seq != 2 {
		t.Fatalf("last result = %+v, %v", last, ok)
	}
	if _, ok := bus.Last(EventTypeError); ok {
		t.Fatal("unexpected error event")
	}
}
