package testplan

import (
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// DefaultPath is the plan file name workers and the coordinator look for in their working directory.
const DefaultPath = "test_plan.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Scope is the partition policy of a shared input file.
type Scope string

const (
	// Regional partitions the file between the workers of a single region.
	Regional Scope = "REGIONAL"

	// Global partitions the file between all workers of the run.
	Global Scope = "GLOBAL"

	// UniqueLocal keeps the file on a single worker of each region.
	UniqueLocal Scope = "UNIQUE_LOCAL"

	// UniqueGlobal keeps the file on a single worker of the whole run.
	UniqueGlobal Scope = "UNIQUE_GLOBAL"
)

// Valid returns true if the scope is one of the known partition policies.
func (s Scope) Valid() bool {
	switch s {
	case Regional, Global, UniqueLocal, UniqueGlobal:
		return true
	}
	return false
}

// FileSpec describes how a shared input file is partitioned between workers.
type FileSpec struct {
	Filename        string `json:"filename"`
	ContainsHeaders bool   `json:"contains_headers"`
	PartitionScope  Scope  `json:"partition_scope"`

	// Region is required iff PartitionScope is Regional.
	Region string `json:"region,omitempty"`
}

// DeviceCount is the number of workers requested in a region.
type DeviceCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

// TestPlan is the run-wide configuration shared by the coordinator and every worker.
type TestPlan struct {
	TestFile     string  `json:"testFile"`
	TestDuration float64 `json:"testDuration"`

	// DeviceRequirements is passed through to the batch-execution system as is.
	DeviceRequirements jsoniter.RawMessage `json:"device_requirements,omitempty"`

	DeviceCount    []DeviceCount `json:"device_count"`
	FileProperties []FileSpec    `json:"file_properties"`
}

// Load reads and validates a test plan from the given path.
func Load(path string) (*TestPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigurationError{Field: path, Reason: "unable to open test plan", Err: err}
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses and validates a test plan.
func Decode(r io.Reader) (*TestPlan, error) {
	var p TestPlan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, &ConfigurationError{Field: "test plan", Reason: "malformed JSON", Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan before any partitioning work begins.
func (p *TestPlan) Validate() error {
	if p.TestFile == "" {
		return &ConfigurationError{Field: "testFile", Reason: "is required"}
	}
	if p.TestDuration < 0 {
		return &ConfigurationError{Field: "testDuration", Reason: "must not be negative"}
	}
	seen := make(map[string]struct{}, len(p.DeviceCount))
	for i, dc := range p.DeviceCount {
		if dc.Region == "" {
			return &ConfigurationError{Field: fieldAt("device_count", i), Reason: "region is required"}
		}
		if dc.Count < 0 {
			return &ConfigurationError{Field: fieldAt("device_count", i), Reason: "count must not be negative"}
		}
		if _, dup := seen[dc.Region]; dup {
			return &ConfigurationError{Field: fieldAt("device_count", i), Reason: "duplicate region " + dc.Region}
		}
		seen[dc.Region] = struct{}{}
	}
	for i, fs := range p.FileProperties {
		if err := fs.Validate(); err != nil {
			ce := err.(*ConfigurationError)
			ce.Field = fieldAt("file_properties", i) + "." + ce.Field
			return ce
		}
	}
	return nil
}

// Validate checks a single file spec.
func (fs FileSpec) Validate() error {
	if fs.Filename == "" {
		return &ConfigurationError{Field: "filename", Reason: "is required"}
	}
	if !fs.PartitionScope.Valid() {
		return &ConfigurationError{Field: "partition_scope", Reason: "unknown scope " + string(fs.PartitionScope)}
	}
	if fs.PartitionScope == Regional && fs.Region == "" {
		return &ConfigurationError{Field: "region", Reason: "is required for REGIONAL scope"}
	}
	return nil
}

// Duration returns the planned test duration.
func (p *TestPlan) Duration() time.Duration {
	return time.Duration(p.TestDuration * float64(time.Second))
}

// TotalWorkers returns the sum of requested workers over all regions.
func (p *TestPlan) TotalWorkers() (total int) {
	for _, dc := range p.DeviceCount {
		total += dc.Count
	}
	return
}

// Regions returns the requested regions in plan order.
func (p *TestPlan) Regions() []string {
	regions := make([]string, len(p.DeviceCount))
	for i, dc := range p.DeviceCount {
		regions[i] = dc.Region
	}
	return regions
}

// Save writes the plan as JSON. Used for handing a plan to workers.
func (p *TestPlan) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal test plan")
	}
	return os.WriteFile(path, data, 0o644)
}
