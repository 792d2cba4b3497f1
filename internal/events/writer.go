package events

import (
	"encoding/json"
	"fmt"
	"os"
)

// wireLine is rawLine's write-side counterpart: the canonical on-disk
// shape for a record Ralph itself appends to the JSONL log.
type wireLine struct {
	Topic     string  `json:"topic"`
	Payload   string  `json:"payload,omitempty"`
	Ts        string  `json:"ts"`
	Iteration uint32  `json:"iteration"`
	Hat       string  `json:"hat,omitempty"`
	Triggered *string `json:"triggered,omitempty"`
}

// Marshal renders r as the single JSON line parseLine expects to read
// back, round-tripping through the same field names as rawLine.
func (r EventRecord) Marshal() ([]byte, error) {
	line := wireLine{
		Topic:     r.Topic.String(),
		Payload:   r.Payload,
		Ts:        r.Timestamp.UTC().Format(rfc3339Nano),
		Iteration: r.Iteration,
	}
	if r.Hat != "" {
		line.Hat = r.Hat.String()
	}
	if r.Triggered != nil {
		triggered := r.Triggered.String()
		line.Triggered = &triggered
	}
	return json.Marshal(line)
}

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"

// AppendToFile serializes r and appends it, newline-terminated, to the
// JSONL file at path, creating it if necessary. This is the event
// loop's EventLog callback and ralph emit's write path.
func AppendToFile(path string, r EventRecord) error {
	encoded, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("events: marshaling record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("events: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("events: writing to %s: %w", path, err)
	}
	return nil
}
