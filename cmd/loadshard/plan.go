package main

import (
	"fmt"

	"github.com/ab180/loadshard/partitions"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/spf13/cobra"
)

func newPlanCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print worker counts and how every file of the test plan is partitioned.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := g.loadPlan()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			mo := g.opt.Master
			limits := mo.Limits.For(plan.Duration())

			fmt.Fprintf(out, "Test %s for %s (frame limit %s, batch limit %s)\n", plan.TestFile, plan.Duration(), limits.Frame, limits.Batch)
			for _, dc := range plan.DeviceCount {
				fmt.Fprintf(out, "  %s: %d frames on %d requested instances\n", dc.Region, dc.Count, mo.Scale.Workers(dc.Count))
			}

			roster := worker.Roster(plan.DeviceCount)
			for _, spec := range plan.FileProperties {
				layout, err := partitions.Layout(spec, roster)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%s):\n%s", spec.Filename, spec.PartitionScope, layout.Pretty())
				if spec.PartitionScope == testplan.UniqueGlobal || spec.PartitionScope == testplan.UniqueLocal {
					fmt.Fprintf(out, "  kept by %d of %d workers\n", len(layout.Holders()), len(layout))
				}
			}
			return nil
		},
	}
}
