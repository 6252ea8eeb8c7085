// Package report publishes what each worker did to its input files and verifies that
// the workers of a run covered every row exactly once.
package report

import (
	"context"
	"fmt"

	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/partitions"
	"github.com/ab180/loadshard/pkg/retry"
	"github.com/ab180/loadshard/splitter"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Report is a split result of a file on a worker.
type Report struct {
	RunID    string            `json:"runId"`
	Filename string            `json:"filename"`
	Scope    testplan.Scope    `json:"scope"`
	Region   string            `json:"region,omitempty"`
	Action   partitions.Action `json:"action"`
	Index    int               `json:"index"`
	Count    int               `json:"count"`

	GlobalIndex  int    `json:"globalIndex"`
	LocalIndex   int    `json:"localIndex"`
	WorkerRegion string `json:"workerRegion"`

	RowsRead  int    `json:"rowsRead"`
	RowsKept  int    `json:"rowsKept"`
	SourceSum uint64 `json:"sourceSum"`
	KeptSum   uint64 `json:"keptSum"`
	Deleted   bool   `json:"deleted"`
	Missing   bool   `json:"missing"`
}

// FromResults converts split results of a worker into reports.
func FromResults(runID string, id worker.Identity, results []splitter.Result) []Report {
	return lo.Map(results, func(res splitter.Result, _ int) Report {
		return Report{
			RunID:        runID,
			Filename:     res.Spec.Filename,
			Scope:        res.Spec.PartitionScope,
			Region:       res.Spec.Region,
			Action:       res.Decision.Action,
			Index:        res.Decision.Index,
			Count:        res.Decision.Count,
			GlobalIndex:  id.GlobalIndex,
			LocalIndex:   id.LocalIndex,
			WorkerRegion: id.Region,
			RowsRead:     res.RowsRead,
			RowsKept:     res.RowsKept,
			SourceSum:    res.SourceSum,
			KeptSum:      res.KeptSum,
			Deleted:      res.Deleted,
			Missing:      res.Missing,
		}
	})
}

// Holds returns true if the worker has the file on disk after its split.
func (r Report) Holds() bool {
	return !r.Deleted && !r.Missing
}

func (r Report) Key() string {
	return fmt.Sprintf("%s%s/%d", filePrefix(r.RunID), r.Filename, r.GlobalIndex)
}

func runPrefix(runID string) string {
	return "runs/" + runID + "/"
}

func filePrefix(runID string) string {
	return runPrefix(runID) + "splits/"
}

// Publish stores reports to the coordinator. Each put is retried, as the coordinator is
// reached over network from short-lived workers.
func Publish(ctx context.Context, crd coordinator.Coordinator, reports []Report, opts ...retry.OptionFunc) error {
	for _, r := range reports {
		r := r
		err := retry.Do(ctx, func() error {
			return crd.Put(ctx, r.Key(), r)
		}, append([]retry.OptionFunc{retry.WithPermanentError(coordinator.IsPermanent)}, opts...)...)
		if err != nil {
			return errors.Wrapf(err, "publish report of %s", r.Filename)
		}
		log.Debug().Str("key", r.Key()).Msg("published split report")
	}
	return nil
}

// Collect reads every report published for the run.
func Collect(ctx context.Context, crd coordinator.Coordinator, runID string) ([]Report, error) {
	items, err := crd.Scan(ctx, filePrefix(runID))
	if err != nil {
		return nil, errors.Wrapf(err, "scan reports of run %s", runID)
	}
	reports := make([]Report, 0, len(items))
	for _, item := range items {
		var r Report
		if err := item.Unmarshal(&r); err != nil {
			return nil, errors.Wrapf(err, "unmarshal %s", item.Key)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Clear removes every key of the run.
func Clear(ctx context.Context, crd coordinator.Coordinator, runID string) error {
	_, err := crd.Delete(ctx, runPrefix(runID))
	return err
}
