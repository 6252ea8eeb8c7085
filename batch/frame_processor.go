package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ab180/loadshard/worker"
	"github.com/alessio/shellescape"
	"github.com/creasty/defaults"
	"github.com/pkg/errors"
)

// EnvRunID tags split reports published by workers.
const EnvRunID = "LOADSHARD_RUN_ID"

// heapSizeClause prints a recommended java heap size: available memory minus a margin,
// but not less than a minimum.
const heapSizeClause = `awk '/MemAvailable/ { m = $2 * 1024 - 400000000; print (m > 32000000 ? m : 32000000) }' /proc/meminfo`

type FrameOptions struct {
	HomeDir    string   `default:"/root"`
	JMeterHome string   `default:"/opt/apache-jmeter"`
	JVMArgs    string   `default:"-Xms30m -XX:MaxMetaspaceSize=64m -Dnashorn.args=--no-deprecation-warning"`
	JMeterProp []string `default:"[\"httpclient4.time_to_live=1\", \"httpclient.reset_state_on_thread_group_iteration=true\"]"`

	// JTLFile is the result file written by the test plan.
	JTLFile string `default:"TestPlan_results.csv"`

	// SplitCommand runs on the worker inside the worker directory, before JMeter starts.
	SplitCommand string `default:"loadshard split"`

	// PlanFile is the test plan saved into the worker directory, read by SplitCommand.
	PlanFile string `default:"loadshard_plan.json"`
}

func DefaultFrameOptions() (o FrameOptions) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}

// FrameProcessor renders shell commands installing and running a frame on a worker instance.
type FrameProcessor struct {
	runID          string
	localWorkerDir string
	testFile       string
	identities     []worker.Identity
	opt            FrameOptions
}

// NewFrameProcessor creates a processor running one frame per given identity.
// localWorkerDir is the worker directory on this machine; it is uploaded to workers
// under the same base name.
func NewFrameProcessor(runID, localWorkerDir, testFile string, identities []worker.Identity, opt FrameOptions) *FrameProcessor {
	return &FrameProcessor{
		runID:          runID,
		localWorkerDir: strings.TrimRight(localWorkerDir, "/"),
		testFile:       testFile,
		identities:     identities,
		opt:            opt,
	}
}

func (fp *FrameProcessor) Frames() int {
	return len(fp.identities)
}

// Identity returns the identity assigned to given frame.
func (fp *FrameProcessor) Identity(frame int) (worker.Identity, error) {
	if frame < 0 || frame >= len(fp.identities) {
		return worker.Identity{}, errors.Errorf("frame %d is out of range [0, %d)", frame, len(fp.identities))
	}
	return fp.identities[frame], nil
}

func (fp *FrameProcessor) JTLFile() string {
	return fp.opt.JTLFile
}

// FrameOutFileName names the output directory of a frame. Frames are numbered by the
// global index of their worker, so batches of a run never collide.
func (fp *FrameProcessor) FrameOutFileName(frame int) string {
	id, err := fp.Identity(frame)
	if err != nil {
		return fmt.Sprintf("jmeterOut_x%03d", frame)
	}
	return fmt.Sprintf("jmeterOut_%03d", id.GlobalIndex)
}

func (fp *FrameProcessor) workerDir() string {
	return filepath.Base(fp.localWorkerDir)
}

func (fp *FrameProcessor) remoteWorkerDir() string {
	return fp.opt.HomeDir + "/" + fp.workerDir()
}

func (fp *FrameProcessor) jvmArgs() string {
	return fmt.Sprintf(`JVM_ARGS="%s -Xmx$(%s)"`, fp.opt.JVMArgs, heapSizeClause)
}

func (fp *FrameProcessor) jmeterProps() string {
	var props []string
	for _, p := range fp.opt.JMeterProp {
		props = append(props, "-D "+shellescape.Quote(p))
	}
	return strings.Join(props, " ")
}

// InstallerCmd prepares a worker instance: copies plugin jars into JMeter, checks the JMeter
// installation and runs pretest.jmx if the worker directory has one.
func (fp *FrameProcessor) InstallerCmd() string {
	cmds := []string{"free --mega -t 1>&2"}

	if jars, _ := filepath.Glob(filepath.Join(fp.localWorkerDir, "*.jar")); len(jars) > 0 {
		cmds = append(cmds, fmt.Sprintf("cp -p %s/*.jar %s/lib/ext", shellescape.Quote(fp.workerDir()), fp.opt.JMeterHome))
	}
	cmds = append(cmds, fmt.Sprintf("%s %s/bin/jmeter.sh --version", fp.jvmArgs(), fp.opt.JMeterHome))

	if _, err := os.Stat(filepath.Join(fp.localWorkerDir, "pretest.jmx")); err == nil {
		cmds = append(cmds,
			"cd "+shellescape.Quote(fp.workerDir()),
			"mkdir -p jmeterOut",
			fmt.Sprintf("%s %s/bin/jmeter -n -t %s -l jmeterOut/pretest_results.csv %s",
				fp.jvmArgs(), fp.opt.JMeterHome, shellescape.Quote(fp.remoteWorkerDir()+"/pretest.jmx"), fp.jmeterProps()),
		)
	}
	return strings.Join(cmds, " && ")
}

// FrameCmd runs a frame on a worker instance: exports the identity of the worker,
// splits input files, runs the test plan and moves JMeter output to the frame output directory.
func (fp *FrameProcessor) FrameCmd(frame int) (string, error) {
	id, err := fp.Identity(frame)
	if err != nil {
		return "", err
	}
	env := id.Env()
	if fp.runID != "" {
		env = append(env, EnvRunID+"="+fp.runID)
	}
	split := fp.opt.SplitCommand
	if fp.opt.PlanFile != "" {
		split += " --plan " + shellescape.Quote(fp.opt.PlanFile)
	}
	jmeter := fmt.Sprintf("%s %s/bin/jmeter.sh -n -t %s",
		fp.jvmArgs(), fp.opt.JMeterHome, shellescape.Quote(fp.remoteWorkerDir()+"/"+fp.testFile))
	if fp.opt.JTLFile != "" {
		jmeter += " -l " + shellescape.Quote("jmeterOut/"+fp.opt.JTLFile)
	}
	if props := fp.jmeterProps(); props != "" {
		jmeter += " " + props
	}

	cmds := []string{
		"export " + shellescape.QuoteCommand(env),
		"cd " + shellescape.Quote(fp.remoteWorkerDir()),
		split,
		"mkdir -p jmeterOut",
		jmeter,
		"mv jmeterOut ~/" + fp.FrameOutFileName(frame),
	}
	return strings.Join(cmds, " && "), nil
}
