// Command ralph is a thin CLI wiring flags onto the orchestration
// engine. Command bodies stay minimal since the CLI is an external
// collaborator to the engine, not part of its core scope, grounded on
// the teacher's cmd/vc (one file per subcommand, a shared rootCmd
// variable, each file's init() registering itself).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Ralph drives a looped external coding agent through a hat topology",
	Long: `Ralph is an orchestration runtime: an event loop that repeatedly
selects a hat, builds its prompt, runs an external coding agent, and
routes the agent's output back onto an event bus until a termination
predicate fires.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
