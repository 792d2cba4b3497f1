// Package events defines Ralph's Event and EventRecord types and the
// tolerant JSONL parser that turns raw agent output lines into records.
package events

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/steveyegge/ralph/internal/topic"
)

// maxPayloadBytes is the truncation threshold for in-memory records.
// Payloads longer than this are truncated at a UTF-8 boundary and
// annotated, per spec §4.2.
const maxPayloadBytes = 500

// Event is the transient, in-memory unit the bus fans out: a topic, an
// opaque UTF-8 payload, and a wall-clock timestamp.
type Event struct {
	Topic     topic.Topic
	Payload   string
	Timestamp time.Time
}

// EventRecord is the logged form of an event: an Event plus the
// iteration it occurred on, the hat that emitted it, the hat it
// triggered (if any), and how many hats it was routed to.
type EventRecord struct {
	Topic        topic.Topic
	Payload      string
	Timestamp    time.Time
	Iteration    uint32
	Hat          topic.HatId
	Triggered    *topic.HatId
	BlockedCount *uint32
}

// ToEvent projects an EventRecord down to the Event the bus fans out,
// truncating the payload to the in-memory limit. The full payload stays
// intact in the logged record; only the fanned-out Event is bounded.
func (r EventRecord) ToEvent() Event {
	return Event{Topic: r.Topic, Payload: Truncate(r.Payload), Timestamp: r.Timestamp}
}

// Truncate returns payload truncated to at most maxPayloadBytes bytes,
// cut at the highest UTF-8 rune boundary at or below the limit, with a
// truncation marker appended reporting the original character count.
// Payloads at or under the limit are returned unchanged.
func Truncate(payload string) string {
	if len(payload) <= maxPayloadBytes {
		return payload
	}
	cut := maxPayloadBytes
	for cut > 0 && !utf8.RuneStart(payload[cut]) {
		cut--
	}
	total := utf8.RuneCountInString(payload)
	return payload[:cut] + "... [truncated, " + strconv.Itoa(total) + " chars total]"
}
