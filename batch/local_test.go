package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocal_Run(t *testing.T) {
	Convey("Given a worker directory and a batch of frames", t, func() {
		workerDir := filepath.Join(t.TempDir(), "jmeterWorker")
		So(os.MkdirAll(filepath.Join(workerDir, "data"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(workerDir, "data", "users.csv"), []byte("id\n1\n2\n"), 0o644), ShouldBeNil)

		roster := worker.Roster([]testplan.DeviceCount{{Region: "usa", Count: 2}, {Region: "india", Count: 3}})
		req := Request{
			Name:        "india",
			Frames:      3,
			CommonInDir: workerDir,
			OutDataDir:  t.TempDir(),
			Processor:   NewFrameProcessor("run-1", workerDir, "TestPlan.jmx", roster[2:], DefaultFrameOptions()),
		}

		Convey("When every frame succeeds", func() {
			run := func(ctx context.Context, f Frame) error {
				if err := os.Remove(filepath.Join(f.Dir, "data", "users.csv")); err != nil {
					return err
				}
				out := filepath.Join(f.Dir, f.OutDir)
				if err := os.MkdirAll(out, 0o755); err != nil {
					return err
				}
				return os.WriteFile(filepath.Join(out, "TestPlan_results.csv"), []byte(strconv.Itoa(f.Identity.GlobalIndex)), 0o644)
			}
			res, err := NewLocal(run, DefaultLocalOptions()).Run(context.Background(), req)
			So(err, ShouldBeNil)
			So(res.Code, ShouldEqual, 0)

			Convey("Each frame should leave its output under its own name", func() {
				for frame, globalIndex := range []int{2, 3, 4} {
					data, err := os.ReadFile(filepath.Join(req.OutDataDir, req.Processor.FrameOutFileName(frame), "TestPlan_results.csv"))
					So(err, ShouldBeNil)
					So(string(data), ShouldEqual, strconv.Itoa(globalIndex))
				}
			})

			Convey("Frames should not touch the common input directory", func() {
				_, err := os.Stat(filepath.Join(workerDir, "data", "users.csv"))
				So(err, ShouldBeNil)
			})

			Convey("Private frame directories should be removed", func() {
				_, err := os.Stat(filepath.Join(req.OutDataDir, ".frames", "india"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When a frame fails", func() {
			run := func(ctx context.Context, f Frame) error {
				if f.Number == 1 {
					return errors.New("jmeter exited with 1")
				}
				return nil
			}
			res, err := NewLocal(run, DefaultLocalOptions()).Run(context.Background(), req)

			Convey("The batch should complete with a non-zero code", func() {
				So(err, ShouldBeNil)
				So(res.Code, ShouldEqual, 1)
			})
		})

		Convey("When a frame panics", func() {
			run := func(ctx context.Context, f Frame) error {
				panic("boom")
			}
			res, err := NewLocal(run, DefaultLocalOptions()).Run(context.Background(), req)
			So(err, ShouldBeNil)
			So(res.Code, ShouldEqual, 1)
		})

		Convey("When more frames are requested than workers are assigned", func() {
			req.Frames = 4
			called := false
			_, err := NewLocal(func(ctx context.Context, f Frame) error {
				called = true
				return nil
			}, DefaultLocalOptions()).Run(context.Background(), req)
			So(err, ShouldNotBeNil)
			So(called, ShouldBeFalse)
		})

		Convey("When the batch is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := NewLocal(func(ctx context.Context, f Frame) error { return nil }, DefaultLocalOptions()).Run(ctx, req)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
