package bus

import (
	"testing"

	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/hats"
	"github.com/steveyegge/ralph/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *hats.Registry {
	t.Helper()
	builder := hats.Hat{ID: "builder", Subscriptions: []topic.Topic{"task.start"}}
	reviewer := hats.Hat{ID: "reviewer", Subscriptions: []topic.Topic{"task.start"}}
	r, err := hats.NewRegistry([]hats.Hat{builder, reviewer})
	require.NoError(t, err)
	return r
}

func TestPublishFansOutToAllMatchingHats(t *testing.T) {
	b := New(newTestRegistry(t))
	b.Publish(events.Event{Topic: "task.start"})

	var got []topic.HatId
	for {
		p, ok := b.NextPending()
		if !ok {
			break
		}
		got = append(got, p.Hat)
	}
	assert.ElementsMatch(t, []topic.HatId{"builder", "reviewer"}, got)
}

func TestPublishFallsBackToRalphWhenNoMatch(t *testing.T) {
	b := New(newTestRegistry(t))
	b.Publish(events.Event{Topic: "orphan.event"})

	p, ok := b.NextPending()
	require.True(t, ok)
	assert.Equal(t, topic.Ralph, p.Hat)
}

func TestNextPendingIsFIFO(t *testing.T) {
	b := New(newTestRegistry(t))
	b.Publish(events.Event{Topic: "task.start", Payload: "first"})
	b.Publish(events.Event{Topic: "orphan", Payload: "second"})

	p1, _ := b.NextPending()
	assert.Equal(t, "first", p1.Event.Payload)
}

func TestObserversRunBeforeEnqueue(t *testing.T) {
	b := New(newTestRegistry(t))
	var sawPendingDuringObserve bool
	b.AddObserver(func(ev events.Event) {
		sawPendingDuringObserve = b.HasPending()
	})
	b.Publish(events.Event{Topic: "task.start"})
	assert.False(t, sawPendingDuringObserve, "observer must run before enqueue")
	assert.True(t, b.HasPending())
}

func TestHasPending(t *testing.T) {
	b := New(newTestRegistry(t))
	assert.False(t, b.HasPending())
	b.Publish(events.Event{Topic: "task.start"})
	assert.True(t, b.HasPending())
}
