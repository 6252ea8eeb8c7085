package partitions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

// Assignment is the decision made for a file on a worker of the run.
type Assignment struct {
	Worker   worker.Identity
	Decision Decision
}

// Assignments is the layout of a file over a whole roster.
type Assignments []Assignment

// Layout plans the file for every worker in the roster.
func Layout(spec testplan.FileSpec, roster []worker.Identity) (Assignments, error) {
	as := make(Assignments, len(roster))
	for i, id := range roster {
		d, err := Plan(spec, id)
		if err != nil {
			return nil, errors.Wrapf(err, "plan %s on %s", spec.Filename, id)
		}
		as[i] = Assignment{Worker: id, Decision: d}
	}
	return as, nil
}

// Holders returns assignments whose worker ends up with the file on disk.
func (as Assignments) Holders() (holders Assignments) {
	for _, a := range as {
		if a.Decision.Action != DeleteFile {
			holders = append(holders, a)
		}
	}
	return
}

// GroupByRegion groups assignments by worker region.
func (as Assignments) GroupByRegion() map[string]Assignments {
	m := make(map[string]Assignments)
	for _, a := range as {
		m[a.Worker.Region] = append(m[a.Worker.Region], a)
	}
	return m
}

func (as Assignments) Pretty() (s string) {
	groups := as.GroupByRegion()
	regions := funk.Keys(groups).([]string)
	sort.Strings(regions)
	for _, region := range regions {
		var entries []string
		for _, a := range groups[region] {
			entries = append(entries, fmt.Sprintf("#%d=%s", a.Worker.GlobalIndex, a.Decision))
		}
		s += fmt.Sprintf("  %s: %s\n", region, strings.Join(ellipsis(entries, 50, 500), ", "))
	}
	return
}

func ellipsis(ss []string, maxElemLen, maxLen int) []string {
	lenSum := 0
	for i, s := range ss {
		if len(s) > maxElemLen {
			s = s[:maxElemLen] + "…"
			ss[i] = s
		}
		lenSum += len(s)
		if lenSum+len(s) > maxLen {
			return append(ss[:i], "…")
		}
	}
	return ss
}
