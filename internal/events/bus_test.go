package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus_OrderedDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	for i := 0; i < 50; i++ {
		bus.Publish(Event{Kind: Notice, Message: string(rune('a' + i%26))})
	}

	for i := 0; i < 50; i++ {
		ev := receive(t, ch)
		want := string(rune('a' + i%26))
		if ev.Message != want {
			t.Fatalf("event %d: got %q, want %q", i, ev.Message, want)
		}
		if ev.Time.IsZero() {
			t.Error("publish should stamp the event time")
		}
	}
}

func TestBus_KindFilter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	quota, cancelQuota := bus.Subscribe(8, QuotaLimitReached, QuotaReset)
	defer cancelQuota()
	all, cancelAll := bus.Subscribe(8)
	defer cancelAll()

	bus.Publish(Event{Kind: Notice, Message: "hello"})
	bus.Publish(Event{Kind: QuotaReset, Window: "daily"})

	if ev := receive(t, quota); ev.Kind != QuotaReset {
		t.Errorf("filtered subscriber got %v, want %v", ev.Kind, QuotaReset)
	}
	if ev := receive(t, all); ev.Kind != Notice {
		t.Errorf("first event = %v, want %v", ev.Kind, Notice)
	}
	if ev := receive(t, all); ev.Kind != QuotaReset {
		t.Errorf("second event = %v, want %v", ev.Kind, QuotaReset)
	}
}

func TestBus_PublishDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// A subscriber that never reads must not stall publishers.
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Kind: Notice})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	bus.Publish(Event{Kind: Notice})
	bus.Publish(Event{Kind: Notice})
	cancel()
	cancel() // idempotent

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after unsubscribe")
		}
	}
}

func TestBus_CloseDrainsQueue(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(16)

	bus.Publish(Event{Kind: QuotaReset})
	bus.Publish(Event{Kind: Notice})
	bus.Close()

	var got []Kind
	for ev := range ch {
		got = append(got, ev.Kind)
	}
	if len(got) != 2 || got[0] != QuotaReset || got[1] != Notice {
		t.Errorf("drained events = %v", got)
	}

	// publishing after close is a no-op
	bus.Publish(Event{Kind: Notice})
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{EntitlementChanged, "entitlement-changed"},
		{QuotaLimitReached, "quota-limit-reached"},
		{QuotaReset, "quota-reset"},
		{ChapterNeeded, "chapter-needed"},
		{Notice, "notice"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
