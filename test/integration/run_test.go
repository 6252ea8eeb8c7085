package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ab180/loadshard"
	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/report"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	. "github.com/smartystreets/goconvey/convey"
)

func newWorkspace(t *testing.T) (plan *testplan.TestPlan, workerDir string) {
	workerDir = filepath.Join(t.TempDir(), "jmeterWorker")
	So(os.MkdirAll(workerDir, 0o755), ShouldBeNil)

	var users, india strings.Builder
	users.WriteString("username,password\r\n")
	for i := 0; i < 101; i++ {
		fmt.Fprintf(&users, "user%03d,pw%03d\r\n", i, i)
	}
	for i := 0; i < 17; i++ {
		fmt.Fprintf(&india, "+91-%04d\n", i)
	}
	files := map[string]string{
		"TestPlan.jmx": "<jmeterTestPlan/>",
		"users.csv":    users.String(),
		"india.csv":    india.String(),
		"usa.csv":      "+1-0000\n+1-0001\n",
		"admin.csv":    "admin\n",
		"license.csv":  "key\nABCD\n",
	}
	for name, content := range files {
		So(os.WriteFile(filepath.Join(workerDir, name), []byte(content), 0o644), ShouldBeNil)
	}

	plan = &testplan.TestPlan{
		TestFile:     "TestPlan.jmx",
		TestDuration: 60,
		DeviceCount: []testplan.DeviceCount{
			{Region: "usa", Count: 3},
			{Region: "india", Count: 4},
			{Region: "japan", Count: 1},
		},
		FileProperties: []testplan.FileSpec{
			{Filename: "users.csv", ContainsHeaders: true, PartitionScope: testplan.Global},
			{Filename: "india.csv", PartitionScope: testplan.Regional, Region: "india"},
			{Filename: "usa.csv", PartitionScope: testplan.Regional, Region: "usa"},
			{Filename: "admin.csv", PartitionScope: testplan.UniqueLocal},
			{Filename: "license.csv", ContainsHeaders: true, PartitionScope: testplan.UniqueGlobal},
		},
	}
	So(plan.Validate(), ShouldBeNil)
	return
}

func TestLocalRun(t *testing.T) {
	Convey("Given a test plan over three regions", t, WithCoordinator(func(crd coordinator.Coordinator) {
		ctx := ContextWithTimeout(time.Minute)
		plan, workerDir := newWorkspace(t)

		opt := loadshard.DefaultOptions()
		opt.Worker.Localize = false
		opt.Worker.PublishReports = true
		opt.Master.WorkerDir = workerDir
		opt.Master.OutDataDir = filepath.Join(t.TempDir(), "out")
		opt.Master.RunID = "it-" + time.Now().Format("150405.000")
		opt.Master.JMeterBinPath = filepath.Join(t.TempDir(), "jmeter.sh")
		opt.Local.KeepFrameDirs = true

		Convey("When it runs on this machine", func() {
			code, err := loadshard.Run(ctx, plan, crd, true, opt)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, 0)

			Convey("Every worker should have reported every file", func() {
				reports, err := report.Collect(ctx, crd, opt.Master.RunID)
				So(err, ShouldBeNil)
				So(reports, ShouldHaveLength, plan.TotalWorkers()*len(plan.FileProperties))
			})

			Convey("Reports should pass verification", func() {
				violations, err := loadshard.Verify(ctx, crd, plan, opt.Master.RunID)
				So(err, ShouldBeNil)
				So(violations, ShouldBeEmpty)
			})

			Convey("Users should be striped over the whole run", func() {
				var total int
				for _, id := range worker.Roster(plan.DeviceCount) {
					data, err := os.ReadFile(frameFile(opt, id, "users.csv"))
					So(err, ShouldBeNil)
					lines := strings.SplitAfter(string(data), "\r\n")
					So(lines[0], ShouldEqual, "username,password\r\n")
					total += strings.Count(string(data), "\r\n") - 1
				}
				So(total, ShouldEqual, 101)
			})

			Convey("Unique files should survive on their holders only", func() {
				for _, id := range worker.Roster(plan.DeviceCount) {
					_, err := os.Stat(frameFile(opt, id, "license.csv"))
					So(err == nil, ShouldEqual, id.GlobalIndex == 0)

					_, err = os.Stat(frameFile(opt, id, "admin.csv"))
					So(err == nil, ShouldEqual, id.LocalIndex == 0)
				}
			})

			Convey("The worker directory should stay untouched", func() {
				data, err := os.ReadFile(filepath.Join(workerDir, "usa.csv"))
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "+1-0000\n+1-0001\n")
			})
		})
	}))
}

func frameFile(opt loadshard.Options, id worker.Identity, name string) string {
	return filepath.Join(opt.Master.OutDataDir, ".frames", id.Region, fmt.Sprintf("jmeterOut_%03d", id.GlobalIndex), name)
}
