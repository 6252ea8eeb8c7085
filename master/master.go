// Package master runs a load test: one batch of frames per region group, dispatched
// concurrently, followed by post-processing of the frame outputs.
package master

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ab180/loadshard/batch"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Master struct {
	plan   *testplan.TestPlan
	runner batch.Runner
	opt    Options

	now func() time.Time
}

func New(plan *testplan.TestPlan, runner batch.Runner, opt Options) *Master {
	opt.WorkerDir = strings.TrimRight(opt.WorkerDir, "/")
	return &Master{
		plan:   plan,
		runner: runner,
		opt:    opt,
		now:    time.Now,
	}
}

// Validate checks the worker directory and the test script before anything is dispatched.
func (m *Master) Validate() error {
	if m.opt.WorkerDir == "" {
		return &testplan.ConfigurationError{Field: "workerDir", Reason: "required"}
	}
	if info, err := os.Stat(m.opt.WorkerDir); err != nil || !info.IsDir() {
		return &testplan.ConfigurationError{Field: "workerDir", Reason: m.opt.WorkerDir + " is not a directory", Err: err}
	}
	script := filepath.Join(m.opt.WorkerDir, m.plan.TestFile)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return &testplan.ConfigurationError{Field: "testFile", Reason: "the jmx file " + m.plan.TestFile + " was not found in " + m.opt.WorkerDir, Err: err}
	}
	if m.opt.OutDataDir == "" {
		return &testplan.ConfigurationError{Field: "outDataDir", Reason: "required"}
	}
	return nil
}

// Batches returns a batch per region group of the plan. Frames of a batch are the workers
// of the region, numbered globally after the workers of preceding regions.
func (m *Master) Batches() []batch.Request {
	roster := worker.Roster(m.plan.DeviceCount)
	limits := m.opt.Limits.For(m.plan.Duration())

	var reqs []batch.Request
	for _, dc := range m.plan.DeviceCount {
		if dc.Count == 0 {
			continue
		}
		offset := worker.RegionOffset(m.plan.DeviceCount, dc.Region)
		identities := roster[offset : offset+dc.Count]
		processor := batch.NewFrameProcessor(m.opt.RunID, m.opt.WorkerDir, m.plan.TestFile, identities, m.frameOptions())
		reqs = append(reqs, batch.Request{
			Name:              dc.Region,
			Frames:            dc.Count,
			Workers:           m.opt.Scale.Workers(dc.Count),
			TimeLimit:         limits.Batch,
			InstanceTimeLimit: limits.Instance,
			FrameTimeLimit:    limits.Frame,
			AuthToken:         m.opt.AuthToken,
			Cookie:            m.opt.Cookie,
			Filter:            m.plan.DeviceRequirements,
			CommonInDir:       m.opt.WorkerDir,
			OutDataDir:        m.opt.OutDataDir,
			Processor:         processor,
		})
	}
	return reqs
}

// PlanPath is where the test plan is saved for workers: the worker directory uploaded to them.
func (m *Master) PlanPath() string {
	return filepath.Join(m.opt.WorkerDir, m.opt.PlanFile)
}

func (m *Master) frameOptions() batch.FrameOptions {
	fo := m.opt.Frame
	fo.JTLFile = m.opt.JTLFile
	fo.PlanFile = m.opt.PlanFile
	return fo
}

// Run dispatches every batch and waits for them. It returns the first non-zero completion
// code in plan order; the outputs are post-processed only when every batch returned 0.
func (m *Master) Run(ctx context.Context) (code int, err error) {
	if err := m.Validate(); err != nil {
		return 1, err
	}
	if err := os.MkdirAll(m.opt.OutDataDir, 0o755); err != nil {
		return 1, errors.Wrap(err, "create out data dir")
	}
	reqs := m.Batches()
	if len(reqs) == 0 {
		return 1, &testplan.ConfigurationError{Field: "device_count", Reason: "no worker is requested"}
	}
	if err := m.plan.Save(m.PlanPath()); err != nil {
		return 1, errors.Wrap(err, "hand the test plan to workers")
	}
	log.Info().
		Strs("regions", m.plan.Regions()).
		Int("workers", m.plan.TotalWorkers()).
		Str("plan", m.PlanPath()).
		Msg("starting run")

	codes := make([]int, len(reqs))
	wg, wctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		wg.Go(func() error {
			log.Info().
				Str("region", req.Name).
				Int("frames", req.Frames).
				Int("workers", req.Workers).
				Dur("frameTimeLimit", req.FrameTimeLimit).
				Msg("dispatching batch")

			res, err := m.runner.Run(wctx, req)
			if err != nil {
				return errors.Wrapf(err, "batch %s", req.Name)
			}
			codes[i] = res.Code
			log.Info().Str("region", req.Name).Int("code", res.Code).Msg("batch finished")
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return 1, err
	}
	for _, c := range codes {
		if c != 0 {
			return c, nil
		}
	}

	m.PostProcess(ctx)
	return 0, nil
}
