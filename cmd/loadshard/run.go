package main

import (
	"context"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/ab180/loadshard"
	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/internal/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const authTokenEnv = "NCS_AUTH_TOKEN"

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		local       bool
		batchRunner string
		plotCommand string
	)
	mo := &g.opt.Master

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test plan on worker instances of every region in the plan.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := g.loadPlan()
			if err != nil {
				return err
			}
			if mo.AuthToken == "" {
				mo.AuthToken = os.Getenv(authTokenEnv)
			}
			if mo.RunID == "" {
				mo.RunID = util.NewRunID(time.Now())
			}
			if batchRunner != "" {
				g.opt.Exec.Command = strings.Fields(batchRunner)
			}
			if plotCommand != "" {
				mo.PlotCommand = strings.Fields(plotCommand)
			}

			ctx, cancel := util.ContextWithSignal(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var crd coordinator.Coordinator
			if local {
				// frames of a local run report to this process
				crd = coordinator.NewLocalMemory()
				defer crd.Close()
				g.opt.Worker.PublishReports = true
			}
			log.Info().Str("runID", mo.RunID).Int("workers", plan.TotalWorkers()).Bool("local", local).Msg("starting run")

			code, err := loadshard.Run(ctx, plan, crd, local, g.opt)
			if err != nil {
				return err
			}
			if code != 0 {
				log.Error().Int("code", code).Msg("run failed")
				return &exitCodeError{code: code}
			}
			if local {
				violations, err := loadshard.Verify(ctx, crd, plan, mo.RunID)
				if err != nil {
					return errors.Wrap(err, "verify split reports")
				}
				if len(violations) > 0 {
					for _, v := range violations {
						log.Error().Str("file", v.Filename).Str("kind", string(v.Kind)).Msg(v.Detail)
					}
					return errors.Errorf("%d partitioning violations found", len(violations))
				}
			}
			log.Info().Str("runID", mo.RunID).Str("outDataDir", mo.OutDataDir).Msg("run finished")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&mo.OutDataDir, "outDataDir", "", "a path to the output data dir for this run (required)")
	flags.StringVar(&mo.AuthToken, "authToken", "", "the NCS authorization token to use (or none, to use "+authTokenEnv+" env var)")
	flags.StringVar(&mo.JTLFile, "jtlFile", mo.JTLFile, "the file name of the jtl file produced by the test plan (if any)")
	flags.StringVar(&mo.WorkerDir, "workerDir", mo.WorkerDir, "the directory to upload to workers")
	flags.Float64Var(&mo.RampStepDuration, "rampStepDuration", mo.RampStepDuration, "duration of ramp step, in seconds")
	flags.Float64Var(&mo.SLODuration, "SLODuration", mo.SLODuration, "SLO duration, in seconds")
	flags.Float64Var(&mo.SLOResponseTimeMax, "SLOResponseTimeMax", mo.SLOResponseTimeMax, "SLO RT threshold, in seconds")
	flags.StringVar(&mo.JMeterBinPath, "jmeterBinPath", mo.JMeterBinPath, "path to the local jmeter.sh for generating html report")
	flags.StringVar(&mo.Cookie, "cookie", "", "cookie passed to the batch runner")
	flags.StringVar(&mo.RunID, "runID", "", "identifier tagging split reports of this run (generated if empty)")
	flags.StringVar(&batchRunner, "batchRunner", "", "command of the batch runner provisioning worker instances")
	flags.StringVar(&plotCommand, "plotCommand", "", "command plotting JMeter output after the run")
	flags.BoolVar(&local, "local", false, "run every frame on this machine instead of worker instances")
	_ = cmd.MarkFlagRequired("outDataDir")
	return cmd
}
