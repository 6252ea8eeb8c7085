package partitions

import (
	"fmt"

	"github.com/ab180/loadshard/testplan"
	"github.com/pkg/errors"
)

// Action is what a worker does with its copy of a shared input file.
type Action int

const (
	// NoOp leaves the file untouched, e.g. a REGIONAL file of another region.
	NoOp Action = iota

	// KeepFile keeps the whole file. The worker is the unique holder.
	KeepFile

	// DeleteFile removes the file from the worker.
	DeleteFile

	// Select keeps only data rows selected by row-modulo.
	Select
)

func (a Action) String() string {
	switch a {
	case NoOp:
		return "noop"
	case KeepFile:
		return "keep"
	case DeleteFile:
		return "delete"
	case Select:
		return "select"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	for _, candidate := range []Action{NoOp, KeepFile, DeleteFile, Select} {
		if candidate.String() == string(text) {
			*a = candidate
			return nil
		}
	}
	return errors.Errorf("unknown action %q", text)
}

// Decision is the result of applying a file spec to a worker identity.
// Index and Count are only meaningful when Action is Select.
type Decision struct {
	Action Action
	Scope  testplan.Scope
	Index  int
	Count  int
}

// Keeps returns true if the data row at given 0-based index belongs to this worker.
// Header lines are never counted as data rows.
func (d Decision) Keeps(row int) bool {
	switch d.Action {
	case Select:
		return row%d.Count == d.Index
	case DeleteFile:
		return false
	}
	return true
}

// Mutates returns true if applying the decision changes the file on disk.
func (d Decision) Mutates() bool {
	return d.Action == DeleteFile || (d.Action == Select && d.Count > 1)
}

func (d Decision) String() string {
	if d.Action == Select {
		return fmt.Sprintf("select %d mod %d", d.Index, d.Count)
	}
	return d.Action.String()
}
