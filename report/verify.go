package report

import (
	"fmt"
	"sort"

	"github.com/ab180/loadshard/partitions"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/samber/lo"
)

type ViolationKind string

const (
	MissingReport      ViolationKind = "missing-report"
	UnknownWorker      ViolationKind = "unknown-worker"
	UnexpectedDecision ViolationKind = "unexpected-decision"
	SourceMismatch     ViolationKind = "source-mismatch"
	IncompleteCoverage ViolationKind = "incomplete-coverage"
	HolderCount        ViolationKind = "holder-count"
)

// Violation is a partitioning defect found in the reports of a run.
type Violation struct {
	Filename string
	Kind     ViolationKind
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Filename, v.Kind, v.Detail)
}

// Verify checks reports of a run against its plan. Every worker must report every file
// with the decision the plan yields for it. Workers striping a file must share the same
// source, and their kept rows must add up to it. A unique file must end up on exactly one
// worker of its scope.
func Verify(plan *testplan.TestPlan, reports []Report) (violations []Violation) {
	roster := worker.Roster(plan.DeviceCount)
	byFile := lo.GroupBy(reports, func(r Report) string { return r.Filename })

	for _, spec := range plan.FileProperties {
		violations = append(violations, verifyFile(spec, roster, byFile[spec.Filename])...)
	}
	return
}

func verifyFile(spec testplan.FileSpec, roster []worker.Identity, reports []Report) (violations []Violation) {
	violate := func(kind ViolationKind, format string, args ...interface{}) {
		violations = append(violations, Violation{Filename: spec.Filename, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	layout, err := partitions.Layout(spec, roster)
	if err != nil {
		violate(UnexpectedDecision, "%v", err)
		return
	}
	byWorker := make(map[int]Report, len(reports))
	for _, r := range reports {
		if r.GlobalIndex < 0 || r.GlobalIndex >= len(roster) {
			violate(UnknownWorker, "worker #%d is not in the roster of %d workers", r.GlobalIndex, len(roster))
			continue
		}
		byWorker[r.GlobalIndex] = r
	}

	var checked []Report
	for _, a := range layout {
		r, ok := byWorker[a.Worker.GlobalIndex]
		if !ok {
			violate(MissingReport, "no report from worker #%d (%s)", a.Worker.GlobalIndex, a.Worker)
			continue
		}
		got := partitions.Decision{Action: r.Action, Scope: r.Scope, Index: r.Index, Count: r.Count}
		if got.Action != partitions.Select {
			got.Index, got.Count = 0, 0
		}
		if got != a.Decision {
			violate(UnexpectedDecision, "worker #%d applied %s, expected %s", a.Worker.GlobalIndex, got, a.Decision)
			continue
		}
		checked = append(checked, r)
	}

	switch spec.PartitionScope {
	case testplan.Global:
		violations = append(violations, verifyStripes(spec.Filename, "run", checked)...)

	case testplan.Regional:
		inRegion := lo.Filter(checked, func(r Report, _ int) bool { return r.Action == partitions.Select })
		violations = append(violations, verifyStripes(spec.Filename, "region "+spec.Region, inRegion)...)

	case testplan.UniqueGlobal:
		violations = append(violations, verifyHolders(spec.Filename, "run", checked)...)

	case testplan.UniqueLocal:
		groups := lo.GroupBy(checked, func(r Report) string { return r.WorkerRegion })
		regions := lo.Keys(groups)
		sort.Strings(regions)
		for _, region := range regions {
			violations = append(violations, verifyHolders(spec.Filename, "region "+region, groups[region])...)
		}
	}
	return
}

// verifyStripes checks row coverage of workers striping a file by row-modulo.
func verifyStripes(filename, basis string, stripes []Report) (violations []Violation) {
	if len(stripes) == 0 {
		return
	}
	first := stripes[0]
	seen := make(map[int]bool, len(stripes))
	for _, r := range stripes {
		if r.Missing {
			violations = append(violations, Violation{
				Filename: filename,
				Kind:     IncompleteCoverage,
				Detail:   fmt.Sprintf("file was missing on worker #%d", r.GlobalIndex),
			})
			return
		}
		if r.RowsRead != first.RowsRead || r.SourceSum != first.SourceSum {
			violations = append(violations, Violation{
				Filename: filename,
				Kind:     SourceMismatch,
				Detail:   fmt.Sprintf("worker #%d read %d rows (sum %x), worker #%d read %d rows (sum %x)", r.GlobalIndex, r.RowsRead, r.SourceSum, first.GlobalIndex, first.RowsRead, first.SourceSum),
			})
			return
		}
		seen[r.Index] = true
	}
	if len(seen) != first.Count {
		violations = append(violations, Violation{
			Filename: filename,
			Kind:     IncompleteCoverage,
			Detail:   fmt.Sprintf("%d of %d stripes reported in %s", len(seen), first.Count, basis),
		})
		return
	}

	rowsKept := lo.Reduce(stripes, func(sum int, r Report, _ int) int { return sum + r.RowsKept }, 0)
	keptSum := lo.Reduce(stripes, func(sum uint64, r Report, _ int) uint64 { return sum + r.KeptSum }, uint64(0))
	if rowsKept != first.RowsRead || keptSum != first.SourceSum {
		violations = append(violations, Violation{
			Filename: filename,
			Kind:     IncompleteCoverage,
			Detail:   fmt.Sprintf("%d of %d rows kept in %s (sum %x, expected %x)", rowsKept, first.RowsRead, basis, keptSum, first.SourceSum),
		})
	}
	return
}

func verifyHolders(filename, basis string, reports []Report) []Violation {
	holders := lo.Filter(reports, func(r Report, _ int) bool { return r.Holds() })
	if len(holders) == 1 {
		return nil
	}
	return []Violation{{
		Filename: filename,
		Kind:     HolderCount,
		Detail:   fmt.Sprintf("%d workers hold the file in %s, expected 1", len(holders), basis),
	}}
}
