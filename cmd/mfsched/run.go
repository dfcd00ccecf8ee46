package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfprior/mfsched/internal/experiment"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one search on one benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd.Context())
		},
	}

	flags := cmd.Flags()
	registerString(flags, "algorithm", "asha",
		"search algorithm, one of [random_search, successive_halving, hyperband, asha, bohb]")
	registerString(flags, "benchmark", "",
		"benchmark identifier, see `mfsched benchmarks`")
	registerUint64(flags, "seed", 0, "random seed")
	registerInt(flags, "workers", 1, "number of concurrent evaluations")
	registerFloat(flags, "budget", 0, "total evaluation budget in fidelity units")
	registerInt(flags, "max-trials", 0, "cap on sampled configurations (0 for default)")
	registerFloat(flags, "eta", 0, "halving rate (0 for default of 3)")
	registerString(flags, "group", "default", "experiment group the trajectory is filed under")
	registerString(flags, "out", "", "root directory for trajectory output (empty disables)")

	return cmd
}

func runExperiment(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exp, err := experiment.New(experiment.Config{
		Algorithm: v.GetString("algorithm"),
		Benchmark: v.GetString("benchmark"),
		Seed:      v.GetUint64("seed"),
		Workers:   v.GetInt("workers"),
		Budget:    v.GetFloat64("budget"),
		MaxTrials: v.GetInt("max_trials"),
		Eta:       v.GetFloat64("eta"),
		Group:     v.GetString("group"),
		OutDir:    v.GetString("out"),
	})
	if err != nil {
		return err
	}
	return exp.Run(ctx)
}
