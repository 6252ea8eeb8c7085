// Package batch dispatches frames of a load test to worker instances.
//
// A batch runs one frame per worker instance. Each frame splits the worker's copy of
// the input files, runs JMeter and leaves its output in a directory named after the frame.
package batch

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Request describes a batch to run.
type Request struct {
	// Name identifies the batch within a run, e.g. the region it covers.
	Name string

	Frames  int
	Workers int

	TimeLimit         time.Duration
	InstanceTimeLimit time.Duration
	FrameTimeLimit    time.Duration

	AuthToken string
	Cookie    string

	// Filter is the device requirement passed as-is to the provisioner.
	Filter jsoniter.RawMessage

	// CommonInDir is uploaded to every worker instance.
	CommonInDir string
	OutDataDir  string

	Processor *FrameProcessor
}

// Validate checks the request against its frame processor.
func (r Request) Validate() error {
	if r.Processor == nil {
		return errors.New("frame processor is not set")
	}
	if r.Frames != r.Processor.Frames() {
		return errors.Errorf("%d frames are requested, but %d workers are assigned", r.Frames, r.Processor.Frames())
	}
	return nil
}

// Result is a completion of a batch.
type Result struct {
	Code       int
	OutDataDir string
}

// Runner provisions worker instances and runs frames of a batch on them.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
