// Command recipe-tool executes recipes from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during release builds.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "recipe-tool",
		Short: "recipe-tool runs declarative step recipes",
		Long: `recipe-tool executes recipes: ordered lists of typed steps run against a
shared context. Recipes can branch, loop with bounded concurrency, fan out
in parallel, and compose other recipes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCommand())
	return root
}
