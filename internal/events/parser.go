package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/ralph/internal/topic"
)

// MalformedLine describes one JSONL line that failed to parse. Parsing
// continues past malformed lines; they are collected rather than
// aborting the batch.
type MalformedLine struct {
	LineNumber int
	Raw        string
	Err        error
}

// ParseResult is the outcome of parsing a batch of JSONL lines: zero or
// more well-formed records, plus any malformed lines encountered.
type ParseResult struct {
	Records   []EventRecord
	Malformed []MalformedLine
}

// rawLine mirrors the on-disk JSON shape. Both the rich form Ralph
// writes and the minimal form the agent writes unmarshal into this
// struct; missing fields take their zero value and are defaulted below.
type rawLine struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Ts        string          `json:"ts"`
	Iteration *uint32         `json:"iteration"`
	Hat       string          `json:"hat"`
	Triggered *string         `json:"triggered"`
}

// ParseLines parses a batch of raw JSONL lines (already split on
// newlines, trailing newline removed), starting diagnostics at
// lineOffset+1. Blank/whitespace-only lines are skipped silently.
func ParseLines(lines []string, lineOffset int) ParseResult {
	var result ParseResult
	for i, line := range lines {
		lineNo := lineOffset + i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		rec, err := parseLine(trimmed)
		if err != nil {
			result.Malformed = append(result.Malformed, MalformedLine{
				LineNumber: lineNo,
				Raw:        line,
				Err:        err,
			})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

func parseLine(line string) (EventRecord, error) {
	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return EventRecord{}, fmt.Errorf("invalid json: %w", err)
	}
	if raw.Topic == "" {
		return EventRecord{}, fmt.Errorf("missing required field %q", "topic")
	}

	payload, err := decodePayload(raw.Payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("invalid payload: %w", err)
	}

	ts := time.Now().UTC()
	if raw.Ts != "" {
		parsed, err := time.Parse(time.RFC3339, raw.Ts)
		if err != nil {
			return EventRecord{}, fmt.Errorf("invalid ts %q: %w", raw.Ts, err)
		}
		ts = parsed
	}

	rec := EventRecord{
		Topic:     topic.New(raw.Topic),
		Payload:   payload,
		Timestamp: ts,
		Hat:       topic.NewHatId(raw.Hat),
	}
	if raw.Iteration != nil {
		rec.Iteration = *raw.Iteration
	}
	if raw.Triggered != nil {
		id := topic.NewHatId(*raw.Triggered)
		rec.Triggered = &id
	}
	return rec, nil
}

// decodePayload implements the permissive payload acceptance rule:
// absent/null -> "", string -> verbatim, object/array -> canonical
// JSON re-serialisation (so ralph emit --json round-trips).
func decodePayload(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}
