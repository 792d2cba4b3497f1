// Package bus implements Ralph's single-threaded, in-memory event bus:
// topic fan-out over the hat registry, a FIFO pending queue, and a
// synchronous observer list consulted before enqueue.
package bus

import (
	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/hats"
	"github.com/steveyegge/ralph/internal/topic"
)

// Pending is one (event, target hat) pair waiting for the next
// iteration to pick it up.
type Pending struct {
	Event events.Event
	Hat   topic.HatId
}

// Observer is notified of every published event, before it is enqueued.
// Observers must not call back into the Bus: the bus is not reentrant.
type Observer func(events.Event)

// Bus owns the pending FIFO queue and fans an event out to every hat
// whose subscriptions match its topic, falling back to the registry's
// universal hat when nothing else matches. It is owned by, and confined
// to, a single event loop goroutine.
type Bus struct {
	registry  *hats.Registry
	queue     []Pending
	observers []Observer
}

// New returns a Bus that routes through registry.
func New(registry *hats.Registry) *Bus {
	return &Bus{registry: registry}
}

// AddObserver registers fn to be called, in registration order, for
// every event passed to Publish, before that event is enqueued for any
// hat.
func (b *Bus) AddObserver(fn Observer) {
	b.observers = append(b.observers, fn)
}

// Publish fans ev out to every hat whose subscriptions match its topic.
// If none match, it is routed to the registry's fallback hat instead,
// per §4.5's invariant that every pending event has at least one
// receiver. Observers run before any enqueue occurs.
func (b *Bus) Publish(ev events.Event) {
	for _, obs := range b.observers {
		obs(ev)
	}

	matched := b.registry.Route(ev.Topic)
	if len(matched) == 0 {
		b.queue = append(b.queue, Pending{Event: ev, Hat: b.registry.Fallback().ID})
		return
	}
	for _, h := range matched {
		b.queue = append(b.queue, Pending{Event: ev, Hat: h.ID})
	}
}

// NextPending dequeues the oldest pending entry in FIFO order. The
// second return value is false if the queue is empty.
func (b *Bus) NextPending() (Pending, bool) {
	if len(b.queue) == 0 {
		return Pending{}, false
	}
	p := b.queue[0]
	b.queue = b.queue[1:]
	return p, true
}

// HasPending reports whether any entry is waiting.
func (b *Bus) HasPending() bool {
	return len(b.queue) > 0
}

// Len reports the current queue depth, mainly for diagnostics/tests.
func (b *Bus) Len() int {
	return len(b.queue)
}
