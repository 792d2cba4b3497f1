package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/adapter"
	"github.com/steveyegge/ralph/internal/bus"
	"github.com/steveyegge/ralph/internal/config"
	"github.com/steveyegge/ralph/internal/cost"
	"github.com/steveyegge/ralph/internal/diag"
	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/loopctx"
	"github.com/steveyegge/ralph/internal/looplock"
	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/prompt"
	"github.com/steveyegge/ralph/internal/reader"
	"github.com/steveyegge/ralph/internal/session"
	"github.com/steveyegge/ralph/internal/store"
)

// loopSetup bundles everything run and resume both need to build and
// execute an Engine. Only run publishes an initial task.start event and
// offers --worktree; resume requires an existing .ralph directory.
type loopSetup struct {
	lc       loopctx.Context
	cfg      config.Config
	holder   *looplock.Holder
	registry *looplock.Registry
	entryID  string
	bus      *bus.Bus
	engine   *loop.Engine
	state    *loop.State
	ws       *workspace
	counts   map[string]int
	logger   *diag.Logger
}

// close releases whatever loopSetup holds: the PID lock if it was
// acquired, and this loop's registry entry.
func (s *loopSetup) close(ctx context.Context) {
	if s.holder != nil {
		s.holder.Release()
	}
	if s.entryID != "" {
		if err := s.registry.Deregister(ctx, s.entryID); err != nil {
			s.logger.Warnf("ralph: deregistering loop %s: %v", s.entryID, err)
		}
	}
}

// newLoopSetup builds everything an Engine needs to run a single loop
// described by lc: a primary loop scoped to the workspace itself, or a
// worktree loop sharing tasks.jsonl, memories.md, and scratchpad.md
// with its repo root per §5's shared-resource table. exclusive governs
// how the workspace PID lock is acquired: the primary loop blocks until
// it is free, while a worktree loop (run concurrently alongside the
// primary, per §4.11) only takes the lock if it is free and otherwise
// proceeds unlocked, tracked instead through the shared loop registry.
func newLoopSetup(cmd *cobra.Command, configPath, lockPrompt string, lc loopctx.Context, exclusive bool) (*loopSetup, error) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := os.MkdirAll(filepath.Join(lc.Workspace(), ".ralph"), 0o755); err != nil {
		return nil, fmt.Errorf("ralph: creating workspace .ralph dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lc.ScratchpadPath()), 0o755); err != nil {
		return nil, fmt.Errorf("ralph: creating shared .ralph/agent dir: %w", err)
	}

	logger := diag.Stderr()

	lock := looplock.NewLock(lc.LoopLockPath())
	var holder *looplock.Holder
	if exclusive {
		h, err := lock.Acquire(cmd.Context(), lockPrompt)
		if err != nil {
			return nil, err
		}
		holder = h
	} else if h, acquired, err := lock.TryAcquire(lockPrompt); err == nil && acquired {
		holder = h
	}

	loopRegistry := looplock.NewRegistry(lc.LoopRegistryPath())
	entryID, err := loopRegistry.Register(cmd.Context(), looplock.Entry{
		PID: os.Getpid(), Started: time.Now(), Workspace: lc.Workspace(), Prompt: lockPrompt,
	})
	if err != nil {
		if holder != nil {
			holder.Release()
		}
		return nil, fmt.Errorf("ralph: registering loop: %w", err)
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		if holder != nil {
			holder.Release()
		}
		return nil, err
	}

	eventsPath := lc.CompatEventsPath()
	b := bus.New(registry)

	rec := session.New(lc.Workspace(), time.Now(), cfg.Diagnostics.Enabled, logger)
	b.AddObserver(rec.Observer())

	counts := make(map[string]int)
	b.AddObserver(func(ev events.Event) {
		counts[ev.Topic.String()]++
	})

	ag, err := adapter.New(cfg.Adapter)
	if err != nil {
		if holder != nil {
			holder.Release()
		}
		return nil, err
	}

	tracker := cost.NewTracker(cfg.Cost)
	limits, err := cfg.Limits.ToLimits()
	if err != nil {
		if holder != nil {
			holder.Release()
		}
		return nil, err
	}
	state := loop.NewState(limits, time.Now())

	ws := &workspace{
		scratchpad: store.NewScratchpadStore(lc.ScratchpadPath()),
		tasks:      store.NewTaskStore(lc.TasksPath()),
		memories:   store.NewMemoryStore(lc.MemoriesPath()),
		cfg:        cfg,
	}

	engine := &loop.Engine{
		Bus:               b,
		Registry:          registry,
		Reader:            reader.New(eventsPath),
		Adapter:           ag,
		Cost:              tracker,
		State:             state,
		Context:           ws.promptContext,
		Metadata:          map[string]prompt.EventMetadata{},
		Logger:            logger,
		CompletionPromise: cfg.CompletionPromise,
		Guardrails:        cfg.Guardrails,
		ActivationTimeout: cfg.ActivationTimeoutDuration(),
		EventLog: func(r events.EventRecord) error {
			return events.AppendToFile(eventsPath, r)
		},
	}

	return &loopSetup{
		lc: lc, cfg: cfg, holder: holder, registry: loopRegistry, entryID: entryID,
		bus: b, engine: engine, state: state, ws: ws, counts: counts, logger: logger,
	}, nil
}
