package partitions

import (
	"fmt"

	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
)

// Plan decides what the worker with given identity keeps from a file.
//
// REGIONAL and GLOBAL files are striped by row-modulo over the local and global
// coordinates respectively; a REGIONAL file of another region is left untouched.
// UNIQUE_LOCAL and UNIQUE_GLOBAL files are kept only by the first worker of the
// region or of the run.
func Plan(spec testplan.FileSpec, id worker.Identity) (Decision, error) {
	if err := spec.Validate(); err != nil {
		return Decision{}, err
	}
	d := Decision{Scope: spec.PartitionScope}

	switch spec.PartitionScope {
	case testplan.Regional:
		if spec.Region != id.Region {
			d.Action = NoOp
			return d, nil
		}
		return selectRows(d, id.LocalIndex, id.LocalCount)

	case testplan.Global:
		return selectRows(d, id.GlobalIndex, id.GlobalCount)

	case testplan.UniqueGlobal:
		d.Action = uniqueHolder(id.GlobalIndex)
		return d, nil

	case testplan.UniqueLocal:
		d.Action = uniqueHolder(id.LocalIndex)
		return d, nil
	}
	return Decision{}, &testplan.ConfigurationError{
		Field:  "partition_scope",
		Reason: "unknown scope " + string(spec.PartitionScope),
	}
}

func selectRows(d Decision, index, count int) (Decision, error) {
	if count < 1 {
		return Decision{}, &testplan.ConfigurationError{
			Field:  "instance count",
			Reason: fmt.Sprintf("must be at least 1 to partition rows, got %d", count),
		}
	}
	if index < 0 || index >= count {
		return Decision{}, &testplan.ConfigurationError{
			Field:  "instance index",
			Reason: fmt.Sprintf("%d is out of range [0, %d)", index, count),
		}
	}
	d.Action = Select
	d.Index = index
	d.Count = count
	return d, nil
}

func uniqueHolder(index int) Action {
	if index == 0 {
		return KeepFile
	}
	return DeleteFile
}
