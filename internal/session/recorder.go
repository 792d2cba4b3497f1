// Package session implements the §4.15 session recorder: a bus
// observer that mirrors every published event into a diagnostics trace
// for later inspection. It is purely observational — failures never
// propagate to the caller that published the event.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/ralph/internal/events"
)

// Level is the diagnostics trace's severity field.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// traceLine mirrors the on-disk diagnostics schema from SPEC_FULL §6.
type traceLine struct {
	Timestamp string `json:"ts"`
	Component string `json:"component"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	LoopID    string `json:"loop_id,omitempty"`
	Iteration *uint32 `json:"iteration,omitempty"`
}

// Warner receives best-effort write failures.
type Warner interface {
	Warnf(format string, args ...any)
}

// Recorder appends diagnostics trace lines to
// .ralph/diagnostics/{session-ts}/orchestration.jsonl. It is disabled
// (every method a no-op) when Enabled is false, matching §4.15's "only
// active when diagnostics mode is enabled" contract.
type Recorder struct {
	Enabled bool
	Path    string
	Warner  Warner

	mu sync.Mutex
}

// New returns a Recorder writing under root/.ralph/diagnostics/{ts}/
// orchestration.jsonl, where ts is sessionStart formatted as
// 20060102T150405.
func New(root string, sessionStart time.Time, enabled bool, warner Warner) *Recorder {
	dir := filepath.Join(root, ".ralph", "diagnostics", sessionStart.UTC().Format("20060102T150405"))
	return &Recorder{
		Enabled: enabled,
		Path:    filepath.Join(dir, "orchestration.jsonl"),
		Warner:  warner,
	}
}

// Observer returns an events.Observer (see internal/bus) suitable for
// bus.AddObserver: every published event becomes one info-level trace
// line.
func (r *Recorder) Observer() func(events.Event) {
	return func(ev events.Event) {
		r.Record(LevelInfo, "bus", ev.Topic.String()+": "+ev.Payload, "", nil)
	}
}

// Record appends one trace line. It is a no-op if the recorder is
// disabled. Write failures are logged through Warner and never
// returned: diagnostics are explicitly non-critical, per §7's policy
// that a diagnostics write failure must never fail the caller that
// merely wanted to observe.
func (r *Recorder) Record(level Level, component, message, loopID string, iteration *uint32) {
	if !r.Enabled {
		return
	}

	line := traceLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: component,
		Level:     level,
		Message:   message,
		LoopID:    loopID,
		Iteration: iteration,
	}
	encoded, err := json.Marshal(line)
	if err != nil {
		r.warn("session recorder: marshal trace line: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		r.warn("session recorder: creating diagnostics dir: %v", err)
		return
	}
	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.warn("session recorder: opening trace file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		r.warn("session recorder: writing trace line: %v", err)
	}
}

func (r *Recorder) warn(format string, args ...any) {
	if r.Warner == nil {
		return
	}
	r.Warner.Warnf(fmt.Sprintf(format, args...))
}
