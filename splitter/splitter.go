package splitter

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ab180/loadshard/partitions"
	"github.com/ab180/loadshard/testplan"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/fasthash/fnv1a"
	"github.com/therne/errorist"
)

// Result describes what a split did to a file.
type Result struct {
	Spec     testplan.FileSpec   `json:"spec"`
	Path     string              `json:"path"`
	Decision partitions.Decision `json:"decision"`

	RowsRead int `json:"rowsRead"`
	RowsKept int `json:"rowsKept"`

	// SourceSum and KeptSum are additive fingerprints of every data row and of kept rows.
	// Over a full set of workers sharing a partitioning basis, kept sums add up to the source sum.
	SourceSum uint64 `json:"sourceSum"`
	KeptSum   uint64 `json:"keptSum"`

	Deleted bool `json:"deleted"`
	Missing bool `json:"missing"`

	// AlreadyApplied is set when the file was found already split with the same decision.
	AlreadyApplied bool `json:"alreadyApplied"`
}

// Apply applies the decision to the file at given path with default options.
func Apply(path string, d partitions.Decision, containsHeaders bool) (Result, error) {
	return New("", DefaultOptions()).Apply(path, d, containsHeaders)
}

// Splitter reduces worker-local copies of shared input files to their owned slice.
type Splitter struct {
	dir string
	opt Options
}

// New creates a splitter resolving relative file names against dir.
func New(dir string, opt Options) *Splitter {
	return &Splitter{dir: dir, opt: opt}
}

// Path resolves a file name of the test plan.
func (s *Splitter) Path(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.dir, filename)
}

// Apply applies the decision to a file.
//
// A row selection is written into a temporary file next to the original one, then renamed
// over it; the original name never refers to a partially written file. Deleting an already
// absent file is not an error.
func (s *Splitter) Apply(path string, d partitions.Decision, containsHeaders bool) (Result, error) {
	res := Result{Path: path, Decision: d}

	switch d.Action {
	case partitions.NoOp, partitions.KeepFile:
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Warn().Str("file", path).Stringer("decision", d).Msg("file to keep does not exist")
			res.Missing = true
		}
		return res, nil

	case partitions.DeleteFile:
		return s.remove(res)

	case partitions.Select:
		if d.Count < 1 || d.Index < 0 || d.Index >= d.Count {
			return res, &testplan.ConfigurationError{Field: "decision", Reason: "invalid row selection " + d.String()}
		}
		if !d.Mutates() {
			return s.scan(res, containsHeaders)
		}
		return s.rewrite(res, containsHeaders)
	}
	return res, errors.Errorf("unknown action %s", d.Action)
}

func (s *Splitter) remove(res Result) (Result, error) {
	res.Deleted = true
	if err := os.Remove(res.Path); err != nil {
		if !os.IsNotExist(err) {
			return res, &PartitionError{File: res.Path, Op: "delete", Err: err}
		}
		log.Warn().Str("file", res.Path).Msg("file to delete is already absent")
		res.Missing = true
	}
	if err := os.Remove(s.markerPath(res.Path)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", res.Path).Msg("unable to remove split marker")
	}
	return res, nil
}

// scan computes fingerprints of a file kept as a whole.
func (s *Splitter) scan(res Result, containsHeaders bool) (_ Result, err error) {
	src, err := os.Open(res.Path)
	if err != nil {
		return res, &PartitionError{File: res.Path, Op: "open", Err: err}
	}
	defer errorist.CloseWithErrCapture(src, &err, errorist.Wrapf("close source"))

	rc := newRowCopier(res.Decision, containsHeaders)
	if err := rc.copy(bufio.NewReaderSize(src, s.opt.BufferSize), io.Discard); err != nil {
		return res, &PartitionError{File: res.Path, Op: "read", Err: err}
	}
	rc.fill(&res)
	return res, nil
}

func (s *Splitter) rewrite(res Result, containsHeaders bool) (_ Result, err error) {
	applied, ok, err := s.appliedBefore(res.Path, res.Decision)
	if err != nil {
		return res, &PartitionError{File: res.Path, Op: "check marker", Err: err}
	}
	if ok {
		applied.Path = res.Path
		applied.AlreadyApplied = true
		log.Info().Str("file", res.Path).Stringer("decision", res.Decision).Msg("file is already split, skipping")
		return applied, nil
	}

	src, err := os.Open(res.Path)
	if err != nil {
		return res, &PartitionError{File: res.Path, Op: "open", Err: err}
	}
	srcClosed := false
	defer func() {
		if !srcClosed {
			_ = src.Close()
		}
	}()

	info, err := src.Stat()
	if err != nil {
		return res, &PartitionError{File: res.Path, Op: "stat", Err: err}
	}
	dir, base := filepath.Split(res.Path)
	tmp, err := os.CreateTemp(dir, "."+base+".split-*")
	if err != nil {
		return res, &PartitionError{File: res.Path, Op: "create temp", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	rc := newRowCopier(res.Decision, containsHeaders)
	w := bufio.NewWriterSize(tmp, s.opt.BufferSize)
	if err = rc.copy(bufio.NewReaderSize(src, s.opt.BufferSize), w); err != nil {
		return res, &PartitionError{File: res.Path, Op: "copy rows", Err: err}
	}
	if err = w.Flush(); err != nil {
		return res, &PartitionError{File: res.Path, Op: "flush", Err: err}
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return res, &PartitionError{File: res.Path, Op: "chmod", Err: err}
	}
	if err = tmp.Sync(); err != nil {
		return res, &PartitionError{File: res.Path, Op: "sync", Err: err}
	}
	if err = tmp.Close(); err != nil {
		return res, &PartitionError{File: res.Path, Op: "close", Err: err}
	}
	// the source must be released before it is replaced
	srcClosed = true
	if err = src.Close(); err != nil {
		return res, &PartitionError{File: res.Path, Op: "close source", Err: err}
	}
	rc.fill(&res)

	// the marker goes first: if we die before the rename, the original file won't match it.
	if err = s.writeMarker(res, rc.outputHash); err != nil {
		return res, &PartitionError{File: res.Path, Op: "write marker", Err: err}
	}
	if err = os.Rename(tmp.Name(), res.Path); err != nil {
		return res, &PartitionError{File: res.Path, Op: "rename", Err: err}
	}
	return res, nil
}

// rowCopier copies the header and selected data rows, fingerprinting them on the way.
type rowCopier struct {
	decision       partitions.Decision
	hasHeader      bool
	rowsRead       int
	rowsKept       int
	sourceSum      uint64
	keptSum        uint64
	outputHash     uint64
	headerConsumed bool
}

func newRowCopier(d partitions.Decision, containsHeaders bool) *rowCopier {
	return &rowCopier{
		decision:   d,
		hasHeader:  containsHeaders,
		outputHash: fnv1a.Init64,
	}
}

func (rc *rowCopier) copy(r *bufio.Reader, w io.Writer) error {
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if werr := rc.handle(line, w); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (rc *rowCopier) handle(line string, w io.Writer) error {
	if rc.hasHeader && !rc.headerConsumed {
		rc.headerConsumed = true
		return rc.write(line, w)
	}
	index := rc.rowsRead
	rc.rowsRead++

	h := RowHash(index, line)
	rc.sourceSum += h
	if !rc.decision.Keeps(index) {
		return nil
	}
	rc.rowsKept++
	rc.keptSum += h
	return rc.write(line, w)
}

func (rc *rowCopier) write(line string, w io.Writer) error {
	rc.outputHash = fnv1a.AddString64(rc.outputHash, line)
	_, err := io.WriteString(w, line)
	return err
}

func (rc *rowCopier) fill(res *Result) {
	res.RowsRead = rc.rowsRead
	res.RowsKept = rc.rowsKept
	res.SourceSum = rc.sourceSum
	res.KeptSum = rc.keptSum
}

// RowHash fingerprints a data row at given 0-based index. Line terminators are ignored.
func RowHash(index int, line string) uint64 {
	return fnv1a.AddUint64(fnv1a.HashString64(strings.TrimRight(line, "\r\n")), uint64(index))
}

type marker struct {
	Index      int    `json:"index"`
	Count      int    `json:"count"`
	OutputHash uint64 `json:"outputHash"`
	Result     Result `json:"result"`
}

func (s *Splitter) markerPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+s.opt.MarkerSuffix)
}

func (s *Splitter) writeMarker(res Result, outputHash uint64) error {
	data, err := jsoniter.Marshal(marker{
		Index:      res.Decision.Index,
		Count:      res.Decision.Count,
		OutputHash: outputHash,
		Result:     res,
	})
	if err != nil {
		return err
	}
	path := s.markerPath(res.Path)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// appliedBefore returns the recorded result if the file on disk is exactly
// the output of a previous split with the same decision.
func (s *Splitter) appliedBefore(path string, d partitions.Decision) (Result, bool, error) {
	data, err := os.ReadFile(s.markerPath(path))
	if err != nil {
		return Result{}, false, nil
	}
	var m marker
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("ignoring unreadable split marker")
		return Result{}, false, nil
	}
	h, err := hashFile(path, s.opt.BufferSize)
	if err != nil || h != m.OutputHash {
		return Result{}, false, nil
	}
	if m.Index != d.Index || m.Count != d.Count {
		return Result{}, false, errors.Wrapf(ErrSplitWithOtherDecision, "marked as select %d mod %d", m.Index, m.Count)
	}
	return m.Result, true, nil
}

func hashFile(path string, bufSize int) (h uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer errorist.CloseWithErrCapture(f, &err, errorist.Wrapf("close"))

	h = fnv1a.Init64
	buf := make([]byte, bufSize)
	for {
		n, rerr := f.Read(buf)
		h = fnv1a.AddString64(h, string(buf[:n]))
		if rerr == io.EOF {
			return h, nil
		}
		if rerr != nil {
			return 0, rerr
		}
	}
}
