package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/completion"
	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/landing"
	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/loopctx"
	"github.com/steveyegge/ralph/internal/mergequeue"
	"github.com/steveyegge/ralph/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Start a new Ralph loop in the current workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoop,
}

func init() {
	runCmd.Flags().String("config", "ralph.yaml", "path to the ralph.yaml config file")
	runCmd.Flags().Bool("auto-merge", false, "enqueue completed worktree loops for automatic merge")
	runCmd.Flags().Bool("worktree", false, "run this loop in an isolated git worktree instead of the current checkout")
	rootCmd.AddCommand(runCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	originalPrompt := args[0]
	configPath, _ := cmd.Flags().GetString("config")
	autoMerge, _ := cmd.Flags().GetBool("auto-merge")
	useWorktree, _ := cmd.Flags().GetBool("worktree")

	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ralph: determining working directory: %w", err)
	}

	mode := completion.Primary
	lc := loopctx.NewPrimary(repoRoot)
	loopID := fmt.Sprintf("loop-%d", time.Now().Unix())

	if useWorktree {
		ctx := cmd.Context()
		git, err := worktree.NewGit(ctx)
		if err != nil {
			return fmt.Errorf("ralph: --worktree requires git: %w", err)
		}
		baseBranch, err := git.GetCurrentBranch(ctx, repoRoot)
		if err != nil {
			return fmt.Errorf("ralph: resolving base branch: %w", err)
		}
		worktreesDir := filepath.Join(repoRoot, ".ralph", "worktrees")
		loopID = worktree.GenerateLoopID(originalPrompt, func(id string) bool {
			_, statErr := os.Stat(filepath.Join(worktreesDir, id))
			return statErr == nil
		})
		wtPath := filepath.Join(worktreesDir, loopID)
		if err := os.MkdirAll(worktreesDir, 0o755); err != nil {
			return fmt.Errorf("ralph: preparing worktree directory: %w", err)
		}
		if err := git.AddWorktree(ctx, repoRoot, wtPath, loopID, baseBranch); err != nil {
			return fmt.Errorf("ralph: creating worktree: %w", err)
		}
		mode = completion.Worktree
		lc = loopctx.NewWorktree(loopID, wtPath, repoRoot)
	}

	setup, err := newLoopSetup(cmd, configPath, originalPrompt, lc, !useWorktree)
	if err != nil {
		return err
	}
	defer setup.close(cmd.Context())

	setup.bus.Publish(events.Event{Topic: "task.start", Payload: originalPrompt, Timestamp: time.Now()})

	reason, err := setup.engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("ralph: run: %w", err)
	}
	fmt.Fprintf(os.Stdout, "loop terminated: %s\n", reason)

	return land(cmd, setup, mode, loopID, autoMerge, reason, originalPrompt)
}

// land drives the post-loop worktree landing and merge-queue handoff
// shared by run and resume.
func land(cmd *cobra.Command, setup *loopSetup, mode completion.Mode, loopID string, autoMerge bool, reason loop.TerminationReason, originalPrompt string) error {
	git, err := worktree.NewGit(cmd.Context())
	if err != nil {
		setup.logger.Warnf("ralph: building git context for landing: %v", err)
		return nil
	}
	outputDir := filepath.Dir(setup.lc.HandoffPath())
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		setup.logger.Warnf("ralph: preparing landing output directory: %v", err)
	}
	landingHandler := &landing.Handler{
		Git:       git,
		Tasks:     setup.ws.tasks,
		OutputDir: outputDir,
		Warner:    setup.logger,
	}
	completionHandler := &completion.Handler{
		Landing: landingHandler,
		Queue:   mergequeue.New(setup.lc.MergeQueuePath(), setup.lc.LoopLockPath(), git),
	}
	outcome, err := completionHandler.Handle(cmd.Context(), mode, autoMerge, reason, completion.RunInput{
		LoopID:         loopID,
		WorktreePath:   setup.lc.Workspace(),
		LoopState:      setup.state,
		OriginalPrompt: originalPrompt,
		EventCounts:    setup.counts,
	})
	if err != nil {
		return fmt.Errorf("ralph: completion: %w", err)
	}
	fmt.Fprintf(os.Stdout, "outcome: %s\n", outcome.Kind)
	return nil
}
