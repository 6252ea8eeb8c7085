package batch

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ab180/loadshard/worker"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/therne/errorist"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Frame is a frame run on this machine.
type Frame struct {
	Number   int
	Identity worker.Identity

	// Dir is a private copy of the common input directory.
	Dir string

	// OutDir is where the frame leaves its JMeter output, relative to Dir.
	OutDir string
}

// FrameFunc runs a frame inside its private directory.
type FrameFunc func(ctx context.Context, f Frame) error

// Local runs every frame of a batch on this machine, each on a private copy of the
// common input directory as if it ran on its own worker instance.
type Local struct {
	run FrameFunc
	opt LocalOptions
}

func NewLocal(run FrameFunc, opt LocalOptions) *Local {
	return &Local{run: run, opt: opt}
}

func (l *Local) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{OutDataDir: req.OutDataDir}
	if err := req.Validate(); err != nil {
		return res, errors.Wrapf(err, "batch %s", req.Name)
	}
	if req.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.TimeLimit)
		defer cancel()
	}
	framesDir := filepath.Join(req.OutDataDir, ".frames", req.Name)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return res, errors.Wrap(err, "create frames dir")
	}

	var (
		finished atomic.Int32
		failed   atomic.Int32
	)
	wg, wctx := errgroup.WithContext(ctx)
	wg.SetLimit(max(l.opt.Parallelism, 1))
	for frame := 0; frame < req.Frames; frame++ {
		frame := frame
		wg.Go(func() error {
			if wctx.Err() != nil {
				return wctx.Err()
			}
			err := l.runFrame(wctx, req, framesDir, frame)
			n := finished.Inc()
			if err != nil {
				failed.Inc()
				log.Error().Err(err).Str("batch", req.Name).Int("frame", frame).Msg("frame failed")
			}
			log.Info().Str("batch", req.Name).Msgf("%d/%d frames finished", n, req.Frames)
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if !l.opt.KeepFrameDirs {
		_ = os.RemoveAll(framesDir)
	}
	if failed.Load() > 0 {
		res.Code = 1
	}
	return res, nil
}

func (l *Local) runFrame(ctx context.Context, req Request, framesDir string, frame int) (err error) {
	defer func() {
		if perr := errorist.WrapPanic(recover()); perr != nil {
			err = perr
		}
	}()
	id, err := req.Processor.Identity(frame)
	if err != nil {
		return err
	}
	outName := req.Processor.FrameOutFileName(frame)
	f := Frame{
		Number:   frame,
		Identity: id,
		Dir:      filepath.Join(framesDir, outName),
		OutDir:   "jmeterOut",
	}
	if err := os.RemoveAll(f.Dir); err != nil {
		return err
	}
	if err := copyDir(req.CommonInDir, f.Dir); err != nil {
		return errors.Wrap(err, "copy worker dir")
	}

	if req.FrameTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.FrameTimeLimit)
		defer cancel()
	}
	started := time.Now()
	if err := l.run(ctx, f); err != nil {
		return err
	}
	log.Debug().Str("batch", req.Name).Int("frame", frame).Stringer("identity", id).Dur("elapsed", time.Since(started)).Msg("frame done")

	out := filepath.Join(f.Dir, f.OutDir)
	if _, err := os.Stat(out); os.IsNotExist(err) {
		return nil
	}
	dest := filepath.Join(req.OutDataDir, outName)
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Rename(out, dest)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(in, &err, errorist.Wrapf("close source"))

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(out, &err, errorist.Wrapf("close copy"))

	_, err = io.Copy(out, in)
	return err
}
