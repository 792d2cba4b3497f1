package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/completion"
	"github.com/steveyegge/ralph/internal/loopctx"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a loop in the current workspace from its existing state",
	Long: `resume re-enters the event loop against the workspace's existing
.ralph/events.jsonl, tasks.jsonl, and scratchpad.md without re-publishing
a task.start event, picking up wherever the pending event queue and
task list left off.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().String("config", "ralph.yaml", "path to the ralph.yaml config file")
	resumeCmd.Flags().Bool("auto-merge", false, "enqueue completed worktree loops for automatic merge")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	autoMerge, _ := cmd.Flags().GetBool("auto-merge")
	configPath, _ := cmd.Flags().GetString("config")

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ralph: determining working directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, ".ralph")); err != nil {
		return fmt.Errorf("ralph: no existing .ralph workspace to resume: %w", err)
	}

	setup, err := newLoopSetup(cmd, configPath, "resume", loopctx.NewPrimary(workDir), true)
	if err != nil {
		return err
	}
	defer setup.close(cmd.Context())

	reason, err := setup.engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("ralph: resume: %w", err)
	}
	fmt.Fprintf(os.Stdout, "loop terminated: %s\n", reason)

	return land(cmd, setup, completion.Primary, fmt.Sprintf("loop-%d", time.Now().Unix()), autoMerge, reason, "resume")
}
