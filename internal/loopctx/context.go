// Package loopctx resolves every per-loop path from a single context
// value: either the Primary workspace loop, or a Worktree loop running
// under git worktree isolation.
package loopctx

import "path/filepath"

// Context is either a Primary loop running directly in the workspace,
// or a Worktree loop running in an isolated git worktree checked out
// from repoRoot. Construct with NewPrimary or NewWorktree.
type Context struct {
	loopID     string
	workspace  string
	repoRoot   string
	isWorktree bool
}

// NewPrimary returns a Context for the primary loop running directly in workspace.
func NewPrimary(workspace string) Context {
	return Context{workspace: workspace}
}

// NewWorktree returns a Context for a worktree loop with the given id,
// worktree workspace path, and the parent repository root.
func NewWorktree(loopID, workspace, repoRoot string) Context {
	return Context{loopID: loopID, workspace: workspace, repoRoot: repoRoot, isWorktree: true}
}

// IsWorktree reports whether this context describes a worktree loop.
func (c Context) IsWorktree() bool { return c.isWorktree }

// LoopID returns the worktree loop's id, or "" for the primary loop.
func (c Context) LoopID() string { return c.loopID }

// Workspace returns the effective working directory for this loop.
func (c Context) Workspace() string { return c.workspace }

// RepoRoot returns the parent repository root for a worktree loop, or
// the workspace itself for the primary loop.
func (c Context) RepoRoot() string {
	if c.isWorktree {
		return c.repoRoot
	}
	return c.workspace
}

// ralphDir is the per-loop .ralph directory (workspace-scoped): it holds
// the events files, markers, and termination artefacts that belong to
// this loop alone.
func (c Context) ralphDir() string { return filepath.Join(c.workspace, ".ralph") }

// sharedDir is the .ralph/agent directory at the repo root: tasks,
// memories, and the scratchpad are shared across every loop (primary
// and worktrees alike) operating against the same repository, per the
// concurrency model's shared-resource table.
func (c Context) sharedDir() string { return filepath.Join(c.RepoRoot(), ".ralph", "agent") }

// ScratchpadPath returns the path to scratchpad.md.
func (c Context) ScratchpadPath() string { return filepath.Join(c.sharedDir(), "scratchpad.md") }

// MemoriesPath returns the path to memories.md.
func (c Context) MemoriesPath() string { return filepath.Join(c.sharedDir(), "memories.md") }

// TasksPath returns the path to tasks.jsonl.
func (c Context) TasksPath() string { return filepath.Join(c.sharedDir(), "tasks.jsonl") }

// SummaryPath returns the path to summary.md, written on termination.
// Unlike tasks/memories, this is per-loop: it records this loop's run.
func (c Context) SummaryPath() string { return filepath.Join(c.ralphDir(), "agent", "summary.md") }

// HandoffPath returns the path to handoff.md, written on termination.
func (c Context) HandoffPath() string { return filepath.Join(c.ralphDir(), "agent", "handoff.md") }

// PlanningSessionDir returns the directory for a planning session id.
func (c Context) PlanningSessionDir(sessionID string) string {
	return filepath.Join(c.ralphDir(), "agent", "planning-sessions", sessionID)
}

// CurrentEventsMarkerPath returns the path to the current-events marker
// file, which holds the relative path to the active events file.
func (c Context) CurrentEventsMarkerPath() string {
	return filepath.Join(c.ralphDir(), "current-events")
}

// CompatEventsPath returns the compatibility events.jsonl path that the
// primary loop always also writes to.
func (c Context) CompatEventsPath() string {
	return filepath.Join(c.ralphDir(), "events.jsonl")
}

// RunEventsPath returns the per-run isolated events file path for the
// given run timestamp tag (e.g. "20260801-120000").
func (c Context) RunEventsPath(runTag string) string {
	return filepath.Join(c.ralphDir(), "events-"+runTag+".jsonl")
}

// LoopLockPath returns the path to the repo's exclusive PID lock file.
// Shared across the primary loop and every worktree loop.
func (c Context) LoopLockPath() string { return filepath.Join(c.RepoRoot(), ".ralph", "loop.lock") }

// LoopRegistryPath returns the path to the shared loop registry.
func (c Context) LoopRegistryPath() string {
	return filepath.Join(c.RepoRoot(), ".ralph", "loops.json")
}

// MergeQueuePath returns the path to the shared merge queue log.
// Merge queue state lives at the repo root, shared across worktrees.
func (c Context) MergeQueuePath() string {
	return filepath.Join(c.RepoRoot(), ".ralph", "merge-queue.jsonl")
}

// DiagnosticsDir returns the per-session diagnostics directory.
func (c Context) DiagnosticsDir(sessionTag string) string {
	return filepath.Join(c.ralphDir(), "diagnostics", sessionTag)
}
