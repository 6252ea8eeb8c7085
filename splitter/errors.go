package splitter

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSplitWithOtherDecision is returned when a file was already split on this worker
// with a different decision; its original rows cannot be recovered.
var ErrSplitWithOtherDecision = errors.New("file was already split with a different decision")

// PartitionError is an I/O failure while reading, writing or deleting a file during a split.
// It is fatal for that file only.
type PartitionError struct {
	File string
	Op   string
	Err  error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %s: %s: %v", e.File, e.Op, e.Err)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

func asPartitionError(path, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PartitionError
	if errors.As(err, &pe) {
		return err
	}
	return &PartitionError{File: path, Op: op, Err: err}
}
