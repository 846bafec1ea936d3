// Command copilot answers questions about NYC building codes over uploaded
// drawings and code excerpts, as an HTTP service or a one-shot CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/astro1860/building-review-copliot/internal/version"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "copilot",
		Short: "NYC building code review copilot",
		Long: "Builds a vector index over uploaded plans and code excerpts and streams\n" +
			"grounded answers with the model's reasoning kept separate from the answer.",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newAskCommand())
	return root
}
