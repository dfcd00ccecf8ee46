package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfprior/mfsched/pkg/benchmark"
)

func newBenchmarksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "benchmarks",
		Short: "list the registered benchmarks",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range benchmark.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
