package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is the current version of the spindle CLI.
var version = "0.1.0"

// rootCmd is the base command for the spindle CLI.
var rootCmd = &cobra.Command{
	Use:     "spindle",
	Short:   "Spindle worker runtime",
	Long:    "Spindle runs named single-goroutine workers, each draining its own FIFO task queue.",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: config.yaml in ., ./configs or /etc/spindle)")
}

// Execute runs the root command. ctx is cancelled on SIGINT/SIGTERM and is
// visible to subcommands through cmd.Context().
func Execute(ctx context.Context) {
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
