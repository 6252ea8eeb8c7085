package loadshard

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ab180/loadshard/batch"
	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/testplan"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LocalFrame returns a frame running in-process: the private directory of the frame is
// split as a worker would, then the test plan runs with the local JMeter if there is one.
func LocalFrame(plan *testplan.TestPlan, crd coordinator.Coordinator, opt Options) batch.FrameFunc {
	return func(ctx context.Context, f batch.Frame) error {
		wopt := opt
		wopt.Worker.Dir = f.Dir
		// JMeter of this machine is shared by every frame
		wopt.Worker.Localize = false

		if _, err := NewWorker(plan, f.Identity, crd, wopt).Split(ctx, opt.Master.RunID); err != nil {
			return errors.Wrap(err, "split")
		}
		outDir := filepath.Join(f.Dir, f.OutDir)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}

		jmeter := opt.Master.JMeterBinPath
		if info, err := os.Stat(jmeter); err != nil || info.IsDir() {
			log.Debug().Int("frame", f.Number).Msg("no local jmeter; frame is a dry run")
			return nil
		}
		cmd := exec.CommandContext(ctx, jmeter,
			"-n",
			"-t", filepath.Join(f.Dir, plan.TestFile),
			"-l", filepath.Join(outDir, opt.Master.JTLFile),
		)
		cmd.Dir = f.Dir
		cmd.Env = append(os.Environ(), f.Identity.Env()...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, "jmeter: %s", out)
		}
		return nil
	}
}
