package loop

import (
	"encoding/json"
	"strings"

	"github.com/steveyegge/ralph/internal/events"
)

// taskIDPayload mirrors the minimal shape hats use to report which task
// an event concerns. Unknown fields are ignored.
type taskIDPayload struct {
	TaskID string `json:"task_id"`
}

// extractTaskID pulls a "task_id" field out of ev's JSON payload, or
// returns "" if the payload isn't a JSON object or carries none.
func extractTaskID(ev events.Event) string {
	var p taskIDPayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return ""
	}
	return p.TaskID
}

// isBlockedTopic reports whether t's last component is "blocked", i.e.
// it matches the "*.blocked" pattern the backpressure ladder watches.
func isBlockedTopic(t string) bool {
	return strings.HasSuffix(t, ".blocked")
}

// isDoneTopic reports whether t's last component is "done".
func isDoneTopic(t string) bool {
	return strings.HasSuffix(t, ".done")
}

// isBuildDoneTopic reports whether t is exactly "build.done".
func isBuildDoneTopic(t string) bool {
	return t == "build.done"
}

// firstComponent returns the leading dotted component of t.
func firstComponent(t string) string {
	if i := strings.IndexByte(t, '.'); i >= 0 {
		return t[:i]
	}
	return t
}

// hasTestEvidence reports whether any record in the batch is a
// "test.*" event, i.e. evidence offered alongside a "build.done" in the
// same iteration per §4.8 step 7.
func hasTestEvidence(records []events.EventRecord) bool {
	for _, r := range records {
		if firstComponent(r.Topic.String()) == "test" {
			return true
		}
	}
	return false
}

// findBuildDone returns the first "build.done" record in the batch, if
// any.
func findBuildDone(records []events.EventRecord) (events.EventRecord, bool) {
	for _, r := range records {
		if isBuildDoneTopic(r.Topic.String()) {
			return r, true
		}
	}
	return events.EventRecord{}, false
}

// findBlocked returns the first "*.blocked" record in the batch, if
// any.
func findBlocked(records []events.EventRecord) (events.EventRecord, bool) {
	for _, r := range records {
		if isBlockedTopic(r.Topic.String()) {
			return r, true
		}
	}
	return events.EventRecord{}, false
}
