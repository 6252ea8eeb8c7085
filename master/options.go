package master

import (
	"math"
	"time"

	"github.com/ab180/loadshard/batch"
	"github.com/creasty/defaults"
)

type Options struct {
	// OutDataDir receives frame outputs and reports of the run.
	OutDataDir string

	WorkerDir string `default:"jmeterWorker"`
	JTLFile   string `default:"TestPlan_results.csv"`

	// PlanFile is the name the test plan is saved with in the worker directory,
	// where workers read it from before splitting their input files.
	PlanFile string `default:"loadshard_plan.json"`

	AuthToken string
	Cookie    string
	RunID     string

	// JMeterBinPath is the local jmeter.sh generating the HTML report.
	JMeterBinPath string `default:"apache-jmeter-5.4.1/bin/jmeter.sh"`

	// PlotCommand, if set, is called with the out data dir and SLO flags after a successful run.
	PlotCommand []string

	RampStepDuration   float64 `default:"60"`
	SLODuration        float64 `default:"240"`
	SLOResponseTimeMax float64 `default:"2.5"`

	Scale  ScalePolicy
	Limits TimeLimitPolicy
	Frame  batch.FrameOptions
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}

// ScalePolicy decides how many worker instances are requested for a number of frames.
// Some instances fail to launch or are slow, so more are requested than needed.
type ScalePolicy struct {
	SmallRunFrames    int     `default:"10"`
	SmallRunFactor    float64 `default:"1.5"`
	LargeRunFactor    float64 `default:"1.12"`
	LargeRunLogFactor float64 `default:"5"`
}

// Workers returns the number of instances to request for given number of frames.
func (p ScalePolicy) Workers(frames int) int {
	if frames <= 0 {
		return 0
	}
	n := float64(frames)
	if frames <= p.SmallRunFrames {
		return int(math.Ceil(n * p.SmallRunFactor))
	}
	return int(math.Round(math.Max(n*p.LargeRunFactor, n+p.LargeRunLogFactor*math.Log10(n))))
}

// PlanWorkerCount returns the number of instances to request for given number of frames
// with the default policy.
func PlanWorkerCount(frames int) int {
	return DefaultOptions().Scale.Workers(frames)
}

type TimeLimitPolicy struct {
	FrameFactor float64       `default:"1.5"`
	FrameSlack  time.Duration `default:"8m"`
	BatchSlack  time.Duration `default:"40m"`
	Instance    time.Duration `default:"6m"`
}

type TimeLimits struct {
	Frame    time.Duration
	Batch    time.Duration
	Instance time.Duration
}

// For returns time limits of a test planned to run for given duration.
func (p TimeLimitPolicy) For(planned time.Duration) TimeLimits {
	frame := time.Duration(math.Round(planned.Seconds()*p.FrameFactor)) * time.Second
	if slacked := planned + p.FrameSlack; slacked > frame {
		frame = slacked
	}
	return TimeLimits{
		Frame:    frame,
		Batch:    frame + p.BatchSlack,
		Instance: p.Instance,
	}
}
