package main

import (
	"context"
	"fmt"

	"github.com/ab180/loadshard"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that workers of a run covered every row of the input files exactly once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := g.loadPlan()
			if err != nil {
				return err
			}
			crd, err := loadshard.Connect(g.opt)
			if err != nil {
				return err
			}
			defer crd.Close()

			violations, err := loadshard.Verify(context.Background(), crd, plan, runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range violations {
				fmt.Fprintln(out, v)
			}
			if len(violations) > 0 {
				return errors.Errorf("%d partitioning violations found in run %s", len(violations), runID)
			}
			fmt.Fprintf(out, "run %s is partitioned correctly\n", runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "runID", "", "the run to verify (required)")
	_ = cmd.MarkFlagRequired("runID")
	return cmd
}
