package master

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/therne/errorist"
)

const dateTimeTagLayout = "2006-01-02_150405"

// PostReport lists what post-processing produced. Every failure is a warning.
type PostReport struct {
	MergedJTL  string
	HTMLReport string
	Warnings   []error
}

func (r *PostReport) warn(err error, msg string) {
	log.Warn().Err(err).Msg(msg)
	r.Warnings = append(r.Warnings, errors.Wrap(err, msg))
}

// PostProcess plots the run, merges JTL files of every frame and renders an HTML report
// from the merged file.
func (m *Master) PostProcess(ctx context.Context) (report PostReport) {
	if len(m.opt.PlotCommand) > 0 {
		if err := m.plot(ctx); err != nil {
			report.warn(err, "plotting failed")
		}
	}
	if m.opt.JTLFile == "" {
		return
	}
	merged, err := m.MergeJTL()
	if err != nil {
		report.warn(err, "merging batch output failed")
		return
	}
	report.MergedJTL = merged

	if info, err := os.Stat(m.opt.JMeterBinPath); err != nil || info.IsDir() {
		log.Info().Str("path", m.opt.JMeterBinPath).Msg("no jmeter installed for producing reports")
		return
	}
	htmlDir, err := m.renderHTML(ctx, merged)
	if err != nil {
		report.warn(err, "jmeter reporting failed")
		return
	}
	report.HTMLReport = htmlDir
	return
}

func (m *Master) plot(ctx context.Context) error {
	args := append(append([]string{}, m.opt.PlotCommand[1:]...),
		"--dataDirPath", m.opt.OutDataDir,
		"--rampStepDuration", formatFloat(m.opt.RampStepDuration),
		"--SLODuration", formatFloat(m.opt.SLODuration),
		"--SLOResponseTimeMax", formatFloat(m.opt.SLOResponseTimeMax),
	)
	cmd := exec.CommandContext(ctx, m.opt.PlotCommand[0], args...)
	cmd.Stderr = log.With().Str("cmd", "plot").Logger()
	return cmd.Run()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MergeJTL concatenates JTL files of every frame output into a single file in the out data
// dir, keeping the header line of the first one only. Returns the path of the merged file.
func (m *Master) MergeJTL() (path string, err error) {
	pattern := filepath.Join(m.opt.OutDataDir, "jmeterOut_*", m.opt.JTLFile)
	inputs, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(inputs) == 0 {
		return "", errors.Errorf("no file matches %s", pattern)
	}
	sort.Strings(inputs)

	ext := filepath.Ext(m.opt.JTLFile)
	name := strings.TrimSuffix(m.opt.JTLFile, ext) + "_merged_" + m.now().Format(dateTimeTagLayout) + ext
	path = filepath.Join(m.opt.OutDataDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer errorist.CloseWithErrCapture(out, &err, errorist.Wrapf("close merged jtl"))

	w := bufio.NewWriter(out)
	for i, input := range inputs {
		if err := appendJTL(w, input, i > 0); err != nil {
			return "", errors.Wrapf(err, "merge %s", input)
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	log.Info().Int("files", len(inputs)).Str("path", path).Msg("merged batch output")
	return path, nil
}

func appendJTL(w *bufio.Writer, path string, skipHeader bool) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer errorist.CloseWithErrCapture(f, &err, errorist.Wrapf("close jtl"))

	r := bufio.NewReader(f)
	if skipHeader {
		if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
			return err
		}
	}
	tw := &lastByteWriter{w: w}
	n, err := io.Copy(tw, r)
	if err != nil {
		return err
	}
	// a file whose last row has no line terminator would glue rows of the next one
	if n > 0 && tw.last != '\n' {
		return w.WriteByte('\n')
	}
	return nil
}

type lastByteWriter struct {
	w    io.Writer
	last byte
}

func (lw *lastByteWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		lw.last = p[len(p)-1]
	}
	return lw.w.Write(p)
}

func (m *Master) renderHTML(ctx context.Context, mergedJTL string) (string, error) {
	htmlDir := filepath.Join(m.opt.OutDataDir, "htmlReport")
	cmd := exec.CommandContext(ctx, m.opt.JMeterBinPath, "-g", mergedJTL, "-o", htmlDir)
	cmd.Dir = m.opt.OutDataDir
	runErr := cmd.Run()

	jmeterLog := filepath.Join(m.opt.OutDataDir, "jmeter.log")
	if _, err := os.Stat(jmeterLog); err == nil {
		if err := os.Rename(jmeterLog, filepath.Join(m.opt.OutDataDir, "genHtml.log")); err != nil {
			log.Warn().Err(err).Msg("could not move the jmeter.log file")
		}
	}
	if runErr != nil {
		return "", errors.Wrap(runErr, m.opt.JMeterBinPath)
	}
	return htmlDir, nil
}
