package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "signoffbot",
		Short:         "Release sign-off coordinator",
		Long:          "signoffbot tracks per-release developer sign-offs: it announces releases, collects acknowledgements, nags pending authors on a cadence, and reports readiness at the cutoff.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTriggerCmd(),
		newHashTokenCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
