package main

import (
	"context"
	"os"
	"syscall"

	"github.com/ab180/loadshard"
	"github.com/ab180/loadshard/internal/util"
	"github.com/spf13/cobra"
)

func newSplitCmd(g *globalFlags) *cobra.Command {
	wo := &g.opt.Worker
	noLocalize := false

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Reduce input files of this worker to its own slice, before JMeter starts.",
		Long: `Reduce input files of this worker to its own slice, before JMeter starts.

The worker is identified by GLOBAL_INSTANCE_ID, LOCAL_INSTANCE_ID, GLOBAL_INSTANCE_COUNT,
LOCAL_INSTANCE_COUNT and CURRENT_LOCATION environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.ContextWithSignal(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			wo.Localize = !noLocalize
			return loadshard.SplitFromEnv(ctx, g.opt)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&wo.Dir, "dir", wo.Dir, "directory containing input files of the test plan")
	flags.BoolVar(&wo.PublishReports, "publish", wo.PublishReports, "publish split reports to etcd")
	flags.StringVar(&wo.MetricsTextfile, "metricsTextfile", "", "write split metrics to this file in the node-exporter textfile format")
	flags.BoolVar(&noLocalize, "noLocalize", false, "do not write device location into JMeter user.properties")
	flags.StringVar(&g.opt.Locale.DeviceLocationPath, "deviceLocation", g.opt.Locale.DeviceLocationPath, "device location document")
	flags.StringVar(&g.opt.Locale.JMeterBinDir, "jmeterBinDir", g.opt.Locale.JMeterBinDir, "directory of JMeter containing user.properties")
	return cmd
}
