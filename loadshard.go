// Package loadshard partitions shared input files of a distributed load test among its
// worker instances and coordinates the run.
package loadshard

import (
	"context"
	"os"

	"github.com/ab180/loadshard/batch"
	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/localization"
	"github.com/ab180/loadshard/master"
	"github.com/ab180/loadshard/report"
	"github.com/ab180/loadshard/shardmetric"
	"github.com/ab180/loadshard/splitter"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Connect connects to the coordinator holding split reports.
func Connect(opt Options) (coordinator.Coordinator, error) {
	etcd, err := coordinator.NewEtcd(opt.EtcdEndpoints, opt.EtcdNamespace, opt.EtcdOptions)
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	return etcd, nil
}

// RunID returns the run identifier handed to workers, or empty if there is none.
func RunID() string {
	return os.Getenv(batch.EnvRunID)
}

// Worker prepares a worker instance for the test: localizes JMeter for the region of the
// worker and reduces input files to the slice owned by the worker.
type Worker struct {
	plan *testplan.TestPlan
	id   worker.Identity
	crd  coordinator.Coordinator
	opt  Options
}

// NewWorker creates a worker. crd can be nil if reports are not published.
func NewWorker(plan *testplan.TestPlan, id worker.Identity, crd coordinator.Coordinator, opt Options) *Worker {
	return &Worker{plan: plan, id: id, crd: crd, opt: opt}
}

// Split runs the preparation. A failed split of a file does not stop other files
// from being split, but the returned error reports it.
func (w *Worker) Split(ctx context.Context, runID string) ([]splitter.Result, error) {
	if err := w.id.Validate(); err != nil {
		return nil, err
	}
	log.Info().Stringer("identity", w.id).Msg("preparing worker")

	if w.opt.Worker.Localize {
		locale := w.opt.Locale
		if locale.WorkerDir == "" {
			locale.WorkerDir = w.opt.Worker.Dir
		}
		for _, warning := range localization.New(locale).Apply(w.id.Region) {
			log.Debug().Err(warning).Msg("localization degraded")
		}
	}

	s := splitter.New(w.opt.Worker.Dir, w.opt.Split)
	results, splitErr := s.SplitAll(w.plan.FileProperties, w.id)

	if w.opt.Worker.MetricsTextfile != "" {
		if err := shardmetric.WriteTextfile(w.opt.Worker.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", w.opt.Worker.MetricsTextfile).Msg("failed to write metrics")
		}
	}
	if w.opt.Worker.PublishReports && w.crd != nil && results != nil {
		if runID == "" {
			log.Warn().Msg("no run ID is given; split reports are not published")
		} else if err := report.Publish(ctx, w.crd, report.FromResults(runID, w.id, results)); err != nil {
			log.Error().Err(err).Msg("failed to publish split reports")
		}
	}
	return results, splitErr
}

// SplitFromEnv prepares this machine as the worker described by its environment.
func SplitFromEnv(ctx context.Context, opt Options) error {
	id, err := worker.IdentityFromEnv()
	if err != nil {
		return err
	}
	plan, err := testplan.Load(opt.PlanPath)
	if err != nil {
		return err
	}
	var crd coordinator.Coordinator
	if opt.Worker.PublishReports {
		if crd, err = Connect(opt); err != nil {
			log.Error().Err(err).Msg("split reports will not be published")
		} else {
			defer crd.Close()
		}
	}
	_, err = NewWorker(plan, id, crd, opt).Split(ctx, RunID())
	return err
}

// Run runs the load test described by the plan and returns its completion code.
// With local set, frames run on this machine instead of provisioned worker instances,
// publishing their split reports to crd if it is given.
func Run(ctx context.Context, plan *testplan.TestPlan, crd coordinator.Coordinator, local bool, opt Options) (int, error) {
	var runner batch.Runner = batch.NewExec(opt.Exec)
	if local {
		runner = batch.NewLocal(LocalFrame(plan, crd, opt), opt.Local)
	}
	return master.New(plan, runner, opt.Master).Run(ctx)
}

// Verify collects split reports of a run and checks them against the plan.
func Verify(ctx context.Context, crd coordinator.Coordinator, plan *testplan.TestPlan, runID string) ([]report.Violation, error) {
	reports, err := report.Collect(ctx, crd, runID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, errors.Errorf("no split report is found for run %s", runID)
	}
	return report.Verify(plan, reports), nil
}
