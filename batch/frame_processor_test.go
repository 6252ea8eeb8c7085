package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/stretchr/testify/require"
)

func indiaProcessor(t *testing.T, workerDir string) *FrameProcessor {
	roster := worker.Roster([]testplan.DeviceCount{{Region: "usa", Count: 2}, {Region: "india", Count: 3}})
	return NewFrameProcessor("run-1", workerDir, "TestPlan.jmx", roster[2:], DefaultFrameOptions())
}

func TestFrameProcessor_FrameCmd(t *testing.T) {
	fp := indiaProcessor(t, filepath.Join(t.TempDir(), "jmeterWorker")+"/")
	require.Equal(t, 3, fp.Frames())

	cmd, err := fp.FrameCmd(1)
	require.NoError(t, err)
	require.Contains(t, cmd, "export GLOBAL_INSTANCE_ID=3 LOCAL_INSTANCE_ID=1 GLOBAL_INSTANCE_COUNT=5 LOCAL_INSTANCE_COUNT=3 CURRENT_LOCATION=india LOADSHARD_RUN_ID=run-1 && ")
	require.Contains(t, cmd, "cd /root/jmeterWorker && loadshard split --plan loadshard_plan.json && mkdir -p jmeterOut && ")
	require.Contains(t, cmd, "/opt/apache-jmeter/bin/jmeter.sh -n -t /root/jmeterWorker/TestPlan.jmx -l jmeterOut/TestPlan_results.csv -D httpclient4.time_to_live=1")
	require.Contains(t, cmd, `JVM_ARGS="-Xms30m`)
	require.Contains(t, cmd, "mv jmeterOut ~/jmeterOut_003")

	_, err = fp.FrameCmd(3)
	require.Error(t, err)
}

func TestFrameProcessor_FrameCmdWithoutJTL(t *testing.T) {
	roster := worker.Roster([]testplan.DeviceCount{{Region: "usa", Count: 1}})
	opt := DefaultFrameOptions()
	opt.JTLFile = ""
	opt.PlanFile = ""
	fp := NewFrameProcessor("", "jmeterWorker", "TestPlan.jmx", roster, opt)

	cmd, err := fp.FrameCmd(0)
	require.NoError(t, err)
	require.NotContains(t, cmd, " -l ")
	require.NotContains(t, cmd, "--plan")
	require.Contains(t, cmd, "&& loadshard split && ")
	require.Contains(t, cmd, "-n -t /root/jmeterWorker/TestPlan.jmx -D httpclient4.time_to_live=1")
}

func TestFrameProcessor_QuotesRegion(t *testing.T) {
	roster := worker.Roster([]testplan.DeviceCount{{Region: "new york", Count: 1}})
	fp := NewFrameProcessor("", "jmeterWorker", "TestPlan.jmx", roster, DefaultFrameOptions())

	cmd, err := fp.FrameCmd(0)
	require.NoError(t, err)
	require.Contains(t, cmd, "'CURRENT_LOCATION=new york'")
	require.NotContains(t, cmd, EnvRunID)
}

func TestFrameProcessor_FrameOutFileName(t *testing.T) {
	fp := indiaProcessor(t, "jmeterWorker")
	require.Equal(t, "jmeterOut_002", fp.FrameOutFileName(0))
	require.Equal(t, "jmeterOut_004", fp.FrameOutFileName(2))
}

func TestFrameProcessor_InstallerCmd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jmeterWorker")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	fp := indiaProcessor(t, dir)
	cmd := fp.InstallerCmd()
	require.Contains(t, cmd, "free --mega -t 1>&2 && ")
	require.Contains(t, cmd, "/opt/apache-jmeter/bin/jmeter.sh --version")
	require.NotContains(t, cmd, "lib/ext")
	require.NotContains(t, cmd, "pretest")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.jar"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pretest.jmx"), nil, 0o644))
	cmd = fp.InstallerCmd()
	require.Contains(t, cmd, "cp -p jmeterWorker/*.jar /opt/apache-jmeter/lib/ext")
	require.Contains(t, cmd, "-t /root/jmeterWorker/pretest.jmx -l jmeterOut/pretest_results.csv")
}
