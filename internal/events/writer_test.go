package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ralph/internal/topic"
)

func TestMarshalRoundTripsThroughParseLine(t *testing.T) {
	triggered := topic.NewHatId("reviewer")
	rec := EventRecord{
		Topic:     topic.New("build.done"),
		Payload:   "ok",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Iteration: 7,
		Hat:       topic.NewHatId("builder"),
		Triggered: &triggered,
	}

	data, err := rec.Marshal()
	require.NoError(t, err)

	parsed, err := parseLine(string(data))
	require.NoError(t, err)
	assert.Equal(t, rec.Topic, parsed.Topic)
	assert.Equal(t, rec.Payload, parsed.Payload)
	assert.Equal(t, rec.Iteration, parsed.Iteration)
	assert.Equal(t, rec.Hat, parsed.Hat)
	require.NotNil(t, parsed.Triggered)
	assert.Equal(t, *rec.Triggered, *parsed.Triggered)
	assert.True(t, rec.Timestamp.Equal(parsed.Timestamp))
}

func TestAppendToFileCreatesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	rec := EventRecord{Topic: topic.New("task.start"), Payload: "{}", Timestamp: time.Now()}

	require.NoError(t, AppendToFile(path, rec))
	require.NoError(t, AppendToFile(path, rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}
