package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/topic"
)

var emitCmd = &cobra.Command{
	Use:   "emit <topic> [payload]",
	Short: "Append a single event to the workspace's event log",
	Long: `emit lets an agent (or an operator) append an event to
.ralph/events.jsonl directly, the same file the running loop polls, for
signalling completion or handing work to another hat out of band.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEmit,
}

func init() {
	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	payload := ""
	if len(args) == 2 {
		payload = args[1]
	}
	path := filepath.Join(workDir, ".ralph", "events.jsonl")
	rec := events.EventRecord{
		Topic:     topic.New(args[0]),
		Payload:   payload,
		Timestamp: time.Now(),
	}
	if err := events.AppendToFile(path, rec); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "emitted %s\n", args[0])
	return nil
}
