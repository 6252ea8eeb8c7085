package batch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Exec runs batches with an external batch runner CLI, which provisions worker instances,
// uploads the common input directory and collects frame outputs into the out data dir.
type Exec struct {
	opt ExecOptions
}

func NewExec(opt ExecOptions) *Exec {
	return &Exec{opt: opt}
}

// descriptor is handed to the batch runner as a JSON file.
type descriptor struct {
	Name                   string              `json:"name"`
	InstallerCmd           string              `json:"installerCmd"`
	FrameCmds              []string            `json:"frameCmds"`
	FrameOutFileNames      []string            `json:"frameOutFileNames"`
	CommonInFilePath       string              `json:"commonInFilePath"`
	OutDataDir             string              `json:"outDataDir"`
	Cookie                 string              `json:"cookie,omitempty"`
	Filter                 jsoniter.RawMessage `json:"filter,omitempty"`
	EncryptFiles           bool                `json:"encryptFiles"`
	TimeLimit              int                 `json:"timeLimit"`
	InstTimeLimit          int                 `json:"instTimeLimit"`
	FrameTimeLimit         int                 `json:"frameTimeLimit"`
	StartFrame             int                 `json:"startFrame"`
	EndFrame               int                 `json:"endFrame"`
	NWorkers               int                 `json:"nWorkers"`
	LimitOneFramePerWorker bool                `json:"limitOneFramePerWorker"`
	AutoscaleMax           int                 `json:"autoscaleMax"`
}

func newDescriptor(req Request) (*descriptor, error) {
	d := &descriptor{
		Name:                   req.Name,
		InstallerCmd:           req.Processor.InstallerCmd(),
		CommonInFilePath:       req.CommonInDir,
		OutDataDir:             req.OutDataDir,
		Cookie:                 req.Cookie,
		Filter:                 req.Filter,
		TimeLimit:              int(req.TimeLimit.Seconds()),
		InstTimeLimit:          int(req.InstanceTimeLimit.Seconds()),
		FrameTimeLimit:         int(req.FrameTimeLimit.Seconds()),
		StartFrame:             0,
		EndFrame:               req.Frames - 1,
		NWorkers:               req.Workers,
		LimitOneFramePerWorker: true,
		AutoscaleMax:           1,
	}
	for frame := 0; frame < req.Frames; frame++ {
		cmd, err := req.Processor.FrameCmd(frame)
		if err != nil {
			return nil, err
		}
		d.FrameCmds = append(d.FrameCmds, cmd)
		d.FrameOutFileNames = append(d.FrameOutFileNames, req.Processor.FrameOutFileName(frame))
	}
	return d, nil
}

func (e *Exec) Run(ctx context.Context, req Request) (Result, error) {
	if len(e.opt.Command) == 0 {
		return Result{}, errors.New("batch runner command is not set")
	}
	if err := req.Validate(); err != nil {
		return Result{}, errors.Wrapf(err, "batch %s", req.Name)
	}
	d, err := newDescriptor(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "render frame commands")
	}
	if err := os.MkdirAll(req.OutDataDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "create out data dir")
	}
	descPath := filepath.Join(req.OutDataDir, req.Name+".batch.json")
	data, err := jsoniter.MarshalIndent(d, "", "  ")
	if err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(descPath, data, 0o600); err != nil {
		return Result{}, errors.Wrap(err, "write batch descriptor")
	}

	args := append(append([]string{}, e.opt.Command[1:]...), descPath)
	cmd := exec.CommandContext(ctx, e.opt.Command[0], args...)
	cmd.Env = os.Environ()
	if req.AuthToken != "" {
		cmd.Env = append(cmd.Env, e.opt.AuthTokenEnv+"="+req.AuthToken)
	}
	output := log.With().Str("batch", req.Name).Logger()
	cmd.Stdout = output
	cmd.Stderr = output

	log.Info().
		Str("batch", req.Name).
		Int("frames", req.Frames).
		Int("workers", req.Workers).
		Str("descriptor", descPath).
		Msg("launching batch")

	res := Result{OutDataDir: req.OutDataDir}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, "run batch %s", req.Name)
	}
	return res, nil
}
