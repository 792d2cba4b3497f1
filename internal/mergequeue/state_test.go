package mergequeue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayHappyPath(t *testing.T) {
	now := time.Now().UTC()
	events := []MergeEvent{
		{LoopID: "loop-1", Type: EventQueued, Timestamp: now, Prompt: "do the thing"},
		{LoopID: "loop-1", Type: EventMerging, Timestamp: now.Add(time.Second), PID: 42},
		{LoopID: "loop-1", Type: EventMerged, Timestamp: now.Add(2 * time.Second), CommitSHA: "abc123"},
	}
	entries := Replay(events)
	require.Contains(t, entries, "loop-1")
	entry := entries["loop-1"]
	assert.Equal(t, Merged, entry.State)
	assert.Equal(t, "abc123", entry.CommitSHA)
}

func TestReplayNeedsReviewCycle(t *testing.T) {
	events := []MergeEvent{
		{LoopID: "loop-1", Type: EventQueued},
		{LoopID: "loop-1", Type: EventMerging},
		{LoopID: "loop-1", Type: EventNeedsReview, Reason: "conflict"},
		{LoopID: "loop-1", Type: EventQueued},
		{LoopID: "loop-1", Type: EventMerging},
		{LoopID: "loop-1", Type: EventMerged, CommitSHA: "def456"},
	}
	entries := Replay(events)
	assert.Equal(t, Merged, entries["loop-1"].State)
}

func TestReplayDiscardFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []State{Queued, Merging, NeedsReview} {
		var events []MergeEvent
		switch from {
		case Queued:
			events = []MergeEvent{{LoopID: "l", Type: EventQueued}}
		case Merging:
			events = []MergeEvent{{LoopID: "l", Type: EventQueued}, {LoopID: "l", Type: EventMerging}}
		case NeedsReview:
			events = []MergeEvent{{LoopID: "l", Type: EventQueued}, {LoopID: "l", Type: EventMerging}, {LoopID: "l", Type: EventNeedsReview}}
		}
		events = append(events, MergeEvent{LoopID: "l", Type: EventDiscarded, Reason: "abandoned"})
		entries := Replay(events)
		assert.Equal(t, Discarded, entries["l"].State, "discard from %s", from)
	}
}

func TestReplaySkipsIllegalTransition(t *testing.T) {
	events := []MergeEvent{
		{LoopID: "l", Type: EventMerging}, // illegal: no prior Queued
		{LoopID: "l", Type: EventQueued},  // legal, should still apply
	}
	entries := Replay(events)
	assert.Equal(t, Queued, entries["l"].State)
}

func TestApplyRejectsMergedToQueued(t *testing.T) {
	merged := MergeEntry{LoopID: "l", State: Merged}
	_, err := apply(merged, MergeEvent{LoopID: "l", Type: EventQueued})
	require.Error(t, err)
	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, Merged, invalidErr.From)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, Merged.IsTerminal())
	assert.True(t, Discarded.IsTerminal())
	assert.False(t, Queued.IsTerminal())
	assert.False(t, Merging.IsTerminal())
	assert.False(t, NeedsReview.IsTerminal())
}

func TestMergeEventMarshalsToNestedEventSchema(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	ev := MergeEvent{LoopID: "loop-1", Type: EventMerging, Timestamp: now, PID: 42}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "loop-1", raw["loop_id"])
	assert.NotContains(t, raw, "event_type")
	event, ok := raw["event"].(map[string]any)
	require.True(t, ok, "event field should be a nested object")
	assert.Equal(t, "merging", event["type"])
	assert.EqualValues(t, 42, event["pid"])

	var roundTripped MergeEvent
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, ev.LoopID, roundTripped.LoopID)
	assert.Equal(t, ev.Type, roundTripped.Type)
	assert.Equal(t, ev.PID, roundTripped.PID)
	assert.True(t, ev.Timestamp.Equal(roundTripped.Timestamp))
}

func TestReplayIsDeterministic(t *testing.T) {
	events := []MergeEvent{
		{LoopID: "l", Type: EventQueued},
		{LoopID: "l", Type: EventMerging},
		{LoopID: "l", Type: EventNeedsReview},
	}
	first := Replay(events)
	second := Replay(events)
	assert.Equal(t, first, second)
}
