package splitter

import (
	"os"

	"github.com/ab180/loadshard/partitions"
	"github.com/ab180/loadshard/shardmetric"
	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/therne/errorist"
)

// SplitAll reduces every file of the plan to the slice owned by given worker.
//
// Every decision is planned before the first file is touched, so a configuration error
// leaves all files intact. A file whose split failed is excluded from the run and
// reported in the returned error; the remaining files are still processed.
func (s *Splitter) SplitAll(specs []testplan.FileSpec, id worker.Identity) ([]Result, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	decisions := make([]partitions.Decision, len(specs))
	for i, spec := range specs {
		d, err := partitions.Plan(spec, id)
		if err != nil {
			return nil, errors.Wrapf(err, "plan %s", spec.Filename)
		}
		decisions[i] = d
	}

	var (
		results []Result
		errs    *multierror.Error
	)
	for i, spec := range specs {
		path := s.Path(spec.Filename)
		labels := shardmetric.SplitLabelValues(spec.Filename, string(spec.PartitionScope), id.Region)

		res, err := s.applySafely(path, decisions[i], spec.ContainsHeaders)
		if err != nil {
			shardmetric.SplitFailuresCounter.With(labels).Inc()
			log.Error().Err(err).Str("file", path).Stringer("decision", decisions[i]).Msg("failed to split file")
			errs = multierror.Append(errs, err)

			if s.opt.ExcludeOnFailure {
				if exErr := s.exclude(path); exErr != nil {
					errs = multierror.Append(errs, exErr)
				}
			}
			continue
		}
		res.Spec = spec

		shardmetric.RowsReadCounter.With(labels).Add(float64(res.RowsRead))
		shardmetric.RowsKeptCounter.With(labels).Add(float64(res.RowsKept))
		if res.Deleted && !res.Missing {
			shardmetric.FilesDeletedCounter.With(labels).Inc()
		}
		log.Info().
			Str("file", path).
			Stringer("decision", res.Decision).
			Int("rowsRead", res.RowsRead).
			Int("rowsKept", res.RowsKept).
			Msg("split file")

		results = append(results, res)
	}
	return results, errs.ErrorOrNil()
}

func (s *Splitter) applySafely(path string, d partitions.Decision, containsHeaders bool) (res Result, err error) {
	defer func() {
		if perr := errorist.WrapPanic(recover()); perr != nil {
			err = &PartitionError{File: path, Op: "split", Err: perr}
		}
	}()
	res, err = s.Apply(path, d, containsHeaders)
	return res, asPartitionError(path, "split", err)
}

// exclude removes a file left in an unknown state after a failed split.
func (s *Splitter) exclude(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &PartitionError{File: path, Op: "exclude", Err: err}
	}
	_ = os.Remove(s.markerPath(path))
	log.Warn().Str("file", path).Msg("file is excluded from the run")
	return nil
}
