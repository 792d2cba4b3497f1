package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/ralph/internal/config"
	"github.com/steveyegge/ralph/internal/prompt"
	"github.com/steveyegge/ralph/internal/store"
)

// workspace bundles the on-disk stores a running loop reads from on
// every iteration, plus the config that parameterised the engine.
type workspace struct {
	scratchpad *store.ScratchpadStore
	tasks      *store.TaskStore
	memories   *store.MemoryStore
	cfg        config.Config
}

// promptContext reads the scratchpad, open tasks, and memories fresh on
// every call, matching §4.7's "ambient state is read live, not cached
// across iterations" contract. Read failures degrade to an empty
// section rather than aborting the iteration, since a missing or
// momentarily-locked store file must never stall the loop.
func (w *workspace) promptContext() prompt.Context {
	ctx := context.Background()

	scratchpad, _ := w.scratchpad.Read(ctx)

	var taskList string
	if tasks, err := w.tasks.Load(ctx); err == nil {
		taskList = renderTaskList(tasks)
	}

	var memoriesMarkdown string
	if mems, err := w.memories.All(ctx); err == nil {
		memoriesMarkdown = renderMemories(mems)
	}

	return prompt.Context{
		Scratchpad:        scratchpad,
		TaskListMarkdown:  taskList,
		MemoriesMarkdown:  memoriesMarkdown,
		Guardrails:        w.cfg.Guardrails,
		CompletionPromise: w.cfg.CompletionPromise,
	}
}

func renderTaskList(tasks []store.Task) string {
	if len(tasks) == 0 {
		return ""
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	var b strings.Builder
	for _, t := range tasks {
		mark := " "
		switch t.Status {
		case store.TaskClosed:
			mark = "x"
		case store.TaskInProgress:
			mark = "~"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", mark, t.ID, t.Title)
	}
	return b.String()
}

func renderMemories(mems []store.Memory) string {
	if len(mems) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range mems {
		fmt.Fprintf(&b, "- (%s) %s\n", m.Type, m.Content)
	}
	return b.String()
}
