// Package events carries cross-component notifications between the playback
// engine and its collaborators. Delivery is asynchronous and ordered: a
// publisher never blocks, and every subscriber sees events in publish order.
package events

import (
	"sync"
	"time"
)

// Kind identifies the type of an event.
type Kind int

const (
	// EntitlementChanged reports a new premium entitlement state.
	EntitlementChanged Kind = iota
	// QuotaLimitReached reports that a daily or monthly limit was met.
	QuotaLimitReached
	// QuotaReset reports that a usage window rolled over.
	QuotaReset
	// ChapterNeeded asks a collaborator to load the chapter after the one
	// that just finished and start it with Play.
	ChapterNeeded
	// Notice carries a user-facing message (fallback used, quota exhausted).
	Notice
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case EntitlementChanged:
		return "entitlement-changed"
	case QuotaLimitReached:
		return "quota-limit-reached"
	case QuotaReset:
		return "quota-reset"
	case ChapterNeeded:
		return "chapter-needed"
	case Notice:
		return "notice"
	default:
		return "unknown"
	}
}

// ChapterRef identifies a finished chapter.
type ChapterRef struct {
	TranslationID string
	BookID        string
	Chapter       int
}

// Entitlement is the premium authorization state carried by
// EntitlementChanged events.
type Entitlement struct {
	Subscribed   bool
	PromoActive  bool
	DemoOverride bool
}

// Event is a single notification.
type Event struct {
	Kind        Kind
	Time        time.Time
	Entitlement Entitlement // EntitlementChanged
	Chapter     ChapterRef  // ChapterNeeded
	Window      string      // QuotaLimitReached, QuotaReset: "daily" or "monthly"
	Message     string      // Notice
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	subs   map[int]*subscriber
	nextID int
	closed bool
	done   chan struct{}

	// unsubscribed channels waiting to be closed by the dispatcher, the
	// only goroutine that sends on them
	retired []*subscriber
}

type subscriber struct {
	ch    chan Event
	quit  chan struct{}
	kinds map[Kind]bool
}

// NewBus creates a bus and starts its dispatcher.
func NewBus() *Bus {
	b := &Bus{
		subs: make(map[int]*subscriber),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// Publish queues an event for delivery. It never blocks.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	b.cond.Signal()
}

// Subscribe returns a channel receiving events of the given kinds (all kinds
// when none are given) and a function that ends the subscription.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	sub := &subscriber{ch: make(chan Event, buffer), quit: make(chan struct{})}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[id] = sub
	}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			close(sub.quit)
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				b.retired = append(b.retired, sub)
				b.cond.Signal()
			}
		})
	}
}

// Close stops the dispatcher after draining queued events and closes every
// subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && len(b.retired) == 0 && !b.closed {
			b.cond.Wait()
		}
		for _, s := range b.retired {
			close(s.ch)
		}
		b.retired = nil
		if len(b.queue) == 0 && b.closed {
			for id, s := range b.subs {
				close(s.ch)
				delete(b.subs, id)
			}
			b.mu.Unlock()
			return
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			continue
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]

		targets := make([]*subscriber, 0, len(b.subs))
		for _, s := range b.subs {
			if s.kinds == nil || s.kinds[ev.Kind] {
				targets = append(targets, s)
			}
		}
		b.mu.Unlock()

		for _, s := range targets {
			b.deliver(s, ev)
		}
	}
}

// deliver blocks until the subscriber takes the event or unsubscribes.
// Sends happen outside the bus lock so a slow subscriber only delays
// delivery, never Publish.
func (b *Bus) deliver(s *subscriber, ev Event) {
	select {
	case s.ch <- ev:
	case <-s.quit:
	}
}
