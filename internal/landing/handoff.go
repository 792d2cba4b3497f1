// Package landing implements the §4.13 landing/handoff sequence: the
// fixed, best-effort cleanup Ralph runs on termination, and the
// handoff.md/summary.md writers that capture state for whoever
// continues the work.
package landing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/store"
)

// maxPromptTailLen bounds the truncated original-prompt tail the
// continuation prompt carries, per §4.13.
const maxPromptTailLen = 200

// GitContext is the git-facing state the handoff's header block
// reports.
type GitContext struct {
	Branch string
	HEAD   string
	LoopID string
}

// HandoffInput bundles everything BuildHandoff needs to render
// handoff.md; the caller (Handler.Run) assembles it from the
// loop's own state and stores.
type HandoffInput struct {
	Git          GitContext
	Tasks        []store.Task
	RecentFiles  []string
	OriginalPrompt string
}

// BuildHandoff renders handoff.md's markdown body.
func BuildHandoff(in HandoffInput) string {
	var b strings.Builder

	b.WriteString("# Handoff\n\n")

	b.WriteString("## Git context\n\n")
	fmt.Fprintf(&b, "- Branch: %s\n", orDash(in.Git.Branch))
	fmt.Fprintf(&b, "- HEAD: %s\n", orDash(in.Git.HEAD))
	if in.Git.LoopID != "" {
		fmt.Fprintf(&b, "- Loop id: %s\n", in.Git.LoopID)
	}
	b.WriteString("\n")

	b.WriteString("## Tasks\n\n")
	writeTaskLines(&b, in.Tasks)
	b.WriteString("\n")

	b.WriteString("## Recent files\n\n")
	if len(in.RecentFiles) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range in.RecentFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	b.WriteString("## Continuation prompt\n\n")
	b.WriteString(continuationPrompt(in.Tasks, in.OriginalPrompt))
	b.WriteString("\n")

	return b.String()
}

func writeTaskLines(b *strings.Builder, tasks []store.Task) {
	if len(tasks) == 0 {
		b.WriteString("(none)\n")
		return
	}
	sorted := make([]store.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, t := range sorted {
		marker := taskMarker(t.Status)
		line := fmt.Sprintf("- [%s] %s (%s)", marker, t.Title, t.ID)
		if len(t.BlockedBy) > 0 {
			line += fmt.Sprintf(" — blocked by: %s", strings.Join(t.BlockedBy, ", "))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func taskMarker(s store.TaskStatus) string {
	switch s {
	case store.TaskClosed:
		return "x"
	case store.TaskFailed:
		return "~"
	default:
		return " "
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// continuationPrompt lists remaining (non-terminal) tasks plus a
// truncated tail of the original prompt, per §4.13.
func continuationPrompt(tasks []store.Task, originalPrompt string) string {
	var b strings.Builder
	b.WriteString("Remaining tasks:\n")
	remaining := 0
	for _, t := range tasks {
		if t.Status == store.TaskClosed || t.Status == store.TaskFailed {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Title)
		remaining++
	}
	if remaining == 0 {
		b.WriteString("- (none — all tasks closed or failed)\n")
	}
	b.WriteString("\nOriginal prompt (tail):\n")
	b.WriteString(truncateTail(originalPrompt, maxPromptTailLen))
	b.WriteString("\n")
	return b.String()
}

// truncateTail keeps the last n characters of s, prefixed with an
// ellipsis marker if truncation occurred.
func truncateTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}

// SummaryInput bundles the data summary.md reports.
type SummaryInput struct {
	Reason        loop.TerminationReason
	Iterations    uint32
	Duration      time.Duration
	EventCounts   map[string]int
	FinalCommit   string
	LandingOK     bool
	LandingErrors []string
}

// BuildSummary renders summary.md's markdown body.
func BuildSummary(in SummaryInput) string {
	var b strings.Builder

	b.WriteString("# Summary\n\n")
	fmt.Fprintf(&b, "- Status: %s\n", in.Reason.String())
	fmt.Fprintf(&b, "- Iterations: %d\n", in.Iterations)
	fmt.Fprintf(&b, "- Duration: %s\n", in.Duration.Round(time.Second))
	if in.FinalCommit != "" {
		fmt.Fprintf(&b, "- Final commit: %s\n", in.FinalCommit)
	}
	b.WriteString("\n")

	b.WriteString("## Event counts by topic\n\n")
	if len(in.EventCounts) == 0 {
		b.WriteString("(none)\n")
	}
	topics := make([]string, 0, len(in.EventCounts))
	for t := range in.EventCounts {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s: %d\n", t, in.EventCounts[t])
	}
	b.WriteString("\n")

	b.WriteString("## Landing\n\n")
	if in.LandingOK {
		b.WriteString("Landing completed cleanly.\n")
	} else {
		b.WriteString("Landing completed with errors:\n")
		for _, e := range in.LandingErrors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	return b.String()
}
