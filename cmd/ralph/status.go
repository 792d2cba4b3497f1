package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/looplock"
	"github.com/steveyegge/ralph/internal/mergequeue"
	"github.com/steveyegge/ralph/internal/worktree"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current loop lock holder and merge queue state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	ralphDir := filepath.Join(workDir, ".ralph")

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	lockPath := filepath.Join(ralphDir, "loop.lock")
	if data, err := os.ReadFile(lockPath); err == nil {
		var info looplock.LockInfo
		if err := json.Unmarshal(data, &info); err == nil {
			fmt.Printf("%s pid=%d started=%s\n", green("loop running:"), info.PID, info.StartedAt.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Printf("%s\n", gray("no loop currently running"))
	}

	loops, err := looplock.NewRegistry(filepath.Join(ralphDir, "loops.json")).List(ctx)
	if err != nil {
		return err
	}
	if len(loops) == 0 {
		fmt.Printf("%s\n", gray("no registered loops"))
	} else {
		fmt.Printf("%s\n", yellow("loops:"))
		for _, l := range loops {
			fmt.Printf("  %s: pid=%d prompt=%q\n", l.ID, l.PID, l.Prompt)
		}
	}

	git, gitErr := worktree.NewGit(ctx)
	if gitErr != nil {
		git = nil
	}
	queue := mergequeue.New(filepath.Join(ralphDir, "merge-queue.jsonl"), lockPath, git)
	entries, err := queue.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("%s\n", gray("merge queue empty"))
		return nil
	}
	fmt.Printf("%s\n", yellow("merge queue:"))
	for id, entry := range entries {
		button, err := queue.ButtonState(ctx, id)
		if err != nil {
			fmt.Printf("  %s: %s\n", id, entry.State)
			continue
		}
		if button.Enabled {
			fmt.Printf("  %s: %s (%s)\n", id, entry.State, green("merge ready"))
		} else {
			fmt.Printf("  %s: %s (%s: %s)\n", id, entry.State, gray("blocked"), button.Reason)
		}
	}
	return nil
}
