// Package prompt builds the deterministic instruction text sent to the
// agent adapter for a single hat activation.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/hats"
	"github.com/steveyegge/ralph/internal/topic"
)

// Context is the ambient state available to every prompt: scratchpad
// contents, injected memories markdown, and a rendered task list.
type Context struct {
	Scratchpad       string
	MemoriesMarkdown string
	TaskListMarkdown string
	Guardrails       []string
	CompletionPromise string
}

// onTriggerDefaults are the built-in EXECUTE-block bodies for
// well-known subscription topics, used when a hat defines no explicit
// instructions and no per-event on_trigger metadata is supplied.
var onTriggerDefaults = map[string]string{
	"task.start":              "Pick up the next ready task and begin work on it.",
	"build.done":              "A build has completed. Verify it with the project's test suite before proceeding.",
	"build.blocked":           "A build is blocked. Diagnose the blocker and either resolve it or escalate with a clear explanation.",
	"build.task":              "A task has been dispatched to you. Implement it fully, including tests.",
	"review.request":          "A review has been requested. Examine the change for correctness, then approve or request changes.",
	"review.approved":         "The change was approved. Proceed to land or merge it per the project's workflow.",
	"review.changes_requested": "Changes were requested. Address every point raised before re-requesting review.",
}

// onPublishDefaults mirror onTriggerDefaults for the REPORT block, used
// when a hat's publication topic has no explicit on_publish metadata.
var onPublishDefaults = map[string]string{
	"task.start":              "signal that a task has begun",
	"build.done":              "signal that a build completed successfully, with test evidence",
	"build.blocked":           "signal that work is blocked and why",
	"build.task":              "dispatch a task for another hat to pick up",
	"review.request":          "request review of a completed change",
	"review.approved":         "signal that a review passed",
	"review.changes_requested": "signal that a review found issues to fix",
}

// EventMetadata carries the per-event on_trigger/on_publish overrides a
// hat config may supply for a specific topic.
type EventMetadata struct {
	OnTrigger string
	OnPublish string
}

// Build renders the full prompt for one hat activation. trigger is nil
// when the hat was selected via fallback injection rather than a real
// event. metadata maps topic string to any configured on_trigger/
// on_publish override; a nil map is treated as empty.
func Build(h hats.Hat, trigger *events.Event, ctx Context, metadata map[string]EventMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the %s hat.\n\n", h.Name)

	b.WriteString("## ORIENTATION\n")
	b.WriteString("Study the incoming event context below before acting. Verify the current\n")
	b.WriteString("state of the repository and task list rather than assuming prior work is\n")
	b.WriteString("still accurate.\n\n")

	b.WriteString("## EXECUTE\n")
	b.WriteString(executeBody(h, metadata))
	b.WriteString("\n\n")

	b.WriteString("## VERIFY\n")
	b.WriteString("Run the project's tests before reporting success. Do not close or mark a\n")
	b.WriteString("task complete without evidence that it works.\n\n")

	if len(h.Publications) > 0 {
		b.WriteString("## REPORT\n")
		b.WriteString(reportBody(h, metadata))
		b.WriteString("\n\n")
	}

	b.WriteString("## GUARDRAILS\n")
	b.WriteString(guardrailsBody(ctx.Guardrails))
	b.WriteString("\n\n")

	b.WriteString("## CONTEXT\n")
	b.WriteString(contextBody(ctx, trigger))

	return b.String()
}

func executeBody(h hats.Hat, metadata map[string]EventMetadata) string {
	if strings.TrimSpace(h.Instructions) != "" {
		return h.Instructions
	}

	var lines []string
	for _, sub := range h.Subscriptions {
		if sub.IsWildcard() {
			continue
		}
		key := sub.String()
		if m, ok := metadata[key]; ok && m.OnTrigger != "" {
			lines = append(lines, "- "+m.OnTrigger)
			continue
		}
		if def, ok := onTriggerDefaults[key]; ok {
			lines = append(lines, "- "+def)
		}
	}
	if len(lines) == 0 {
		return "Act on the triggering event using your best judgement for this project."
	}
	return strings.Join(lines, "\n")
}

func reportBody(h hats.Hat, metadata map[string]EventMetadata) string {
	var lines []string
	for _, pub := range h.Publications {
		key := pub.String()
		desc := onPublishDefaults[key]
		if m, ok := metadata[key]; ok && m.OnPublish != "" {
			desc = m.OnPublish
		}
		if desc != "" {
			lines = append(lines, fmt.Sprintf("- `%s`: %s", key, desc))
		} else {
			lines = append(lines, fmt.Sprintf("- `%s`", key))
		}
	}
	topics := make([]string, len(h.Publications))
	for i, p := range h.Publications {
		topics[i] = "`" + p.String() + "`"
	}
	must := fmt.Sprintf("You MUST publish at least one of: %s before finishing.", strings.Join(topics, ", "))
	return strings.Join(lines, "\n") + "\n\n" + must
}

func guardrailsBody(guardrails []string) string {
	// Numbered from 999 upward so higher numbers read as higher
	// priority to the agent, the opposite of a typical numbered list.
	var lines []string
	n := 999
	for _, g := range guardrails {
		lines = append(lines, fmt.Sprintf("%d. %s", n, g))
		n++
	}
	if len(lines) == 0 {
		return "999. Never force-push, delete branches, or bypass review without explicit instruction."
	}
	return strings.Join(lines, "\n")
}

func contextBody(ctx Context, trigger *events.Event) string {
	var b strings.Builder
	if trigger != nil {
		fmt.Fprintf(&b, "Triggering event: `%s`\n", trigger.Topic.String())
		if trigger.Payload != "" {
			fmt.Fprintf(&b, "Payload: %s\n", trigger.Payload)
		}
	} else {
		b.WriteString("No specific triggering event; you were activated via fallback routing.\n")
	}
	b.WriteString("\n")

	if ctx.Scratchpad != "" {
		b.WriteString("### Scratchpad\n")
		b.WriteString(ctx.Scratchpad)
		b.WriteString("\n\n")
	}
	if ctx.MemoriesMarkdown != "" {
		b.WriteString("### Memories\n")
		b.WriteString(ctx.MemoriesMarkdown)
		b.WriteString("\n\n")
	}
	if ctx.TaskListMarkdown != "" {
		b.WriteString("### Tasks\n")
		b.WriteString(ctx.TaskListMarkdown)
		b.WriteString("\n\n")
	}
	if ctx.CompletionPromise != "" {
		fmt.Fprintf(&b, "When all work is genuinely complete, state exactly: %s\n", ctx.CompletionPromise)
	}
	return b.String()
}

// SortedTopics is a small helper used by callers that assemble a
// metadata map from a hat's combined subscription+publication set and
// need a stable iteration order for logging.
func SortedTopics(topics []topic.Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.String()
	}
	sort.Strings(out)
	return out
}
