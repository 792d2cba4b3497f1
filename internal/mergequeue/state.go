// Package mergequeue implements the cross-process merge-queue state
// machine: an append-only JSONL log of events, replayed to derive one
// MergeEntry per loop id.
package mergequeue

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is a loop's position in the merge automaton.
type State string

const (
	Queued      State = "queued"
	Merging     State = "merging"
	Merged      State = "merged"
	NeedsReview State = "needs_review"
	Discarded   State = "discarded"
)

// IsTerminal reports whether s has no further legal transitions.
func (s State) IsTerminal() bool {
	return s == Merged || s == Discarded
}

// EventType names the trigger of a MergeEvent.
type EventType string

const (
	EventQueued      EventType = "queued"
	EventMerging     EventType = "merging"
	EventMerged      EventType = "merged"
	EventNeedsReview EventType = "needs_review"
	EventDiscarded   EventType = "discarded"
)

// MergeEvent is one line of the JSONL log. It marshals to and from the
// pinned external schema `{ts, loop_id, event:{type, ...}}`: the trigger
// type and its fields nest under "event" rather than sitting flat on the
// line, even though they live as flat fields on the Go value for
// ergonomic access.
type MergeEvent struct {
	Timestamp time.Time `json:"ts"`
	LoopID    string    `json:"loop_id"`
	Type      EventType `json:"-"`

	// Trigger-specific fields, all optional depending on Type.
	Prompt    string `json:"-"`
	PID       int    `json:"-"`
	CommitSHA string `json:"-"`
	Reason    string `json:"-"`
}

// mergeEventBody is the nested "event" object in the wire schema.
type mergeEventBody struct {
	Type      EventType `json:"type"`
	Prompt    string    `json:"prompt,omitempty"`
	PID       int       `json:"pid,omitempty"`
	CommitSHA string    `json:"commit_sha,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// mergeEventWire is the on-disk shape of one JSONL line.
type mergeEventWire struct {
	Timestamp time.Time      `json:"ts"`
	LoopID    string         `json:"loop_id"`
	Event     mergeEventBody `json:"event"`
}

// MarshalJSON nests the trigger type and its fields under "event" per
// the pinned merge-queue JSONL schema.
func (ev MergeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(mergeEventWire{
		Timestamp: ev.Timestamp,
		LoopID:    ev.LoopID,
		Event: mergeEventBody{
			Type:      ev.Type,
			Prompt:    ev.Prompt,
			PID:       ev.PID,
			CommitSHA: ev.CommitSHA,
			Reason:    ev.Reason,
		},
	})
}

// UnmarshalJSON reads the nested "event" object back onto the flat Go
// fields.
func (ev *MergeEvent) UnmarshalJSON(data []byte) error {
	var wire mergeEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ev.Timestamp = wire.Timestamp
	ev.LoopID = wire.LoopID
	ev.Type = wire.Event.Type
	ev.Prompt = wire.Event.Prompt
	ev.PID = wire.Event.PID
	ev.CommitSHA = wire.Event.CommitSHA
	ev.Reason = wire.Event.Reason
	return nil
}

// MergeEntry is the current, replayed state of one loop_id.
type MergeEntry struct {
	LoopID    string
	State     State
	Prompt    string
	PID       int
	CommitSHA string
	Reason    string
	UpdatedAt time.Time
}

// InvalidTransitionError reports an illegal state change attempt.
type InvalidTransitionError struct {
	From    State
	To      State
	Trigger EventType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("mergequeue: invalid transition %s -> %s via %s", e.From, e.To, e.Trigger)
}

// legalTransitions encodes exactly the table in spec §4.10. The "absent"
// starting state is represented by the empty State.
var legalTransitions = map[State]map[EventType]State{
	"": {
		EventQueued: Queued,
	},
	Queued: {
		EventMerging:   Merging,
		EventDiscarded: Discarded,
	},
	Merging: {
		EventMerged:      Merged,
		EventNeedsReview: NeedsReview,
		EventDiscarded:   Discarded,
	},
	NeedsReview: {
		EventQueued:    Queued,
		EventDiscarded: Discarded,
	},
}

// apply folds one event onto the current state, returning the resulting
// MergeEntry or an InvalidTransitionError if the transition isn't legal.
func apply(current MergeEntry, ev MergeEvent) (MergeEntry, error) {
	from := current.State
	next, ok := legalTransitions[from][ev.Type]
	if !ok {
		return MergeEntry{}, &InvalidTransitionError{From: from, To: targetStateFor(ev.Type), Trigger: ev.Type}
	}

	entry := current
	entry.LoopID = ev.LoopID
	entry.State = next
	entry.UpdatedAt = ev.Timestamp
	switch ev.Type {
	case EventQueued:
		entry.Prompt = ev.Prompt
		entry.PID = 0
		entry.CommitSHA = ""
		entry.Reason = ""
	case EventMerging:
		entry.PID = ev.PID
	case EventMerged:
		entry.CommitSHA = ev.CommitSHA
	case EventNeedsReview:
		entry.Reason = ev.Reason
	case EventDiscarded:
		entry.Reason = ev.Reason
	}
	return entry, nil
}

func targetStateFor(t EventType) State {
	switch t {
	case EventQueued:
		return Queued
	case EventMerging:
		return Merging
	case EventMerged:
		return Merged
	case EventNeedsReview:
		return NeedsReview
	case EventDiscarded:
		return Discarded
	default:
		return ""
	}
}

// Replay folds a sequence of events (in log order) into one MergeEntry
// per loop id. Replaying the same sequence always yields the same
// result regardless of how many times it's called (testable property 3).
func Replay(events []MergeEvent) map[string]MergeEntry {
	entries := make(map[string]MergeEntry)
	for _, ev := range events {
		current := entries[ev.LoopID]
		next, err := apply(current, ev)
		if err != nil {
			// A log should never contain an illegal transition — the
			// queue rejects those before they're appended — but if one
			// slipped through (e.g. hand-edited file), replay is
			// best-effort: the offending event is skipped so later,
			// legal events still apply.
			continue
		}
		entries[ev.LoopID] = next
	}
	return entries
}
