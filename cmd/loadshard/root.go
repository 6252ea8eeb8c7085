package main

import (
	"os"
	"time"

	"github.com/ab180/loadshard"
	"github.com/ab180/loadshard/testplan"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	verbose bool
	opt     loadshard.Options
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{opt: loadshard.DefaultOptions()}

	cmd := &cobra.Command{
		Use:           "loadshard",
		Short:         "Partition input data of a distributed JMeter load test among its workers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if g.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "print debug logs")
	flags.StringVar(&g.opt.PlanPath, "plan", g.opt.PlanPath, "path to the test plan")
	flags.StringSliceVar(&g.opt.EtcdEndpoints, "etcd", g.opt.EtcdEndpoints, "etcd endpoints storing split reports")
	flags.StringVar(&g.opt.EtcdNamespace, "etcdNamespace", g.opt.EtcdNamespace, "key prefix of split reports in etcd")

	cmd.AddCommand(
		newRunCmd(g),
		newSplitCmd(g),
		newPlanCmd(g),
		newVerifyCmd(g),
	)
	return cmd
}

func (g *globalFlags) loadPlan() (*testplan.TestPlan, error) {
	plan, err := testplan.Load(g.opt.PlanPath)
	if err != nil {
		log.Error().Err(err).Str("path", g.opt.PlanPath).Msg("failed to load test plan")
		return nil, err
	}
	return plan, nil
}
