package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/plus3/reflecs/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		cfgFile        string
		entities       int
		iterations     int
		seed           int64
		templatePath   string
		gcPauseMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "ecs-stress",
		Short: "Instantiate a prefab record many times and run queries over the instances",
		Long: `ecs-stress builds a prefab from a record template, instantiates it, and
steps a small simulation driven by reflected queries, then prints a report.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if cfgFile != "" {
				loaded, err := config.Load(cfgFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			flags := cmd.Flags()
			if flags.Changed("entities") {
				cfg.Stress.Entities = entities
			}
			if flags.Changed("iterations") {
				cfg.Stress.Iterations = iterations
			}
			if flags.Changed("seed") {
				cfg.Stress.Seed = seed
			}
			if flags.Changed("template") {
				cfg.Stress.Template = templatePath
			}
			return run(cmd.Context(), cfg, gcPauseMetrics, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "YAML configuration file")
	flags.IntVarP(&entities, "entities", "n", 0, "number of prefab instances to create")
	flags.IntVarP(&iterations, "iterations", "i", 0, "number of simulation steps")
	flags.Int64Var(&seed, "seed", 0, "seed of the random placement")
	flags.StringVarP(&templatePath, "template", "t", "", "record document used as the prefab")
	flags.BoolVar(&gcPauseMetrics, "gc-pause-metrics", false, "include GC pause metrics in the report")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
