package hats

import (
	"testing"

	"github.com/steveyegge/ralph/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAlwaysHasFallback(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	_, ok := r.Find(topic.Ralph)
	assert.True(t, ok)
}

func TestRouteMatchesConfiguredHatsInOrder(t *testing.T) {
	builder := Hat{ID: "builder", Name: "Builder", Subscriptions: []topic.Topic{"task.start"}}
	reviewer := Hat{ID: "reviewer", Name: "Reviewer", Subscriptions: []topic.Topic{"task.start"}}
	r, err := NewRegistry([]Hat{builder, reviewer})
	require.NoError(t, err)

	got := r.Route("task.start")
	require.Len(t, got, 2)
	assert.Equal(t, topic.HatId("builder"), got[0].ID)
	assert.Equal(t, topic.HatId("reviewer"), got[1].ID)
}

func TestRouteEmptyWhenNoConfiguredHatMatches(t *testing.T) {
	builder := Hat{ID: "builder", Subscriptions: []topic.Topic{"build.*"}}
	r, err := NewRegistry([]Hat{builder})
	require.NoError(t, err)
	assert.Empty(t, r.Route("orphan.event"))
}

func TestDuplicateHatIDRejected(t *testing.T) {
	h := Hat{ID: "builder", Subscriptions: []topic.Topic{"a"}}
	_, err := NewRegistry([]Hat{h, h})
	assert.Error(t, err)
}

func TestInvalidHatRejected(t *testing.T) {
	h := Hat{ID: "empty"}
	_, err := NewRegistry([]Hat{h})
	assert.Error(t, err)
}

func TestConfiguredRalphIgnoredInFavourOfBuiltin(t *testing.T) {
	custom := Hat{ID: topic.Ralph, Name: "custom ralph", Subscriptions: []topic.Topic{"x"}}
	r, err := NewRegistry([]Hat{custom})
	require.NoError(t, err)
	fb, _ := r.Find(topic.Ralph)
	assert.Equal(t, "Ralph", fb.Name)
}
