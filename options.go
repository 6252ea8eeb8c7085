package loadshard

import (
	"github.com/ab180/loadshard/batch"
	"github.com/ab180/loadshard/coordinator"
	"github.com/ab180/loadshard/localization"
	"github.com/ab180/loadshard/master"
	"github.com/ab180/loadshard/splitter"
	"github.com/creasty/defaults"
)

type Options struct {
	// PlanPath is the test plan, relative to the working directory.
	PlanPath string `default:"test_plan.json"`

	EtcdEndpoints []string `default:"[\"127.0.0.1:2379\"]"`
	EtcdNamespace string   `default:"loadshard/"`
	EtcdOptions   coordinator.EtcdOptions

	Master master.Options
	Worker WorkerOptions
	Exec   batch.ExecOptions
	Local  batch.LocalOptions
	Split  splitter.Options
	Locale localization.Options
}

type WorkerOptions struct {
	// Dir contains input files named by the test plan.
	Dir string `default:"."`

	Localize bool `default:"true"`

	// PublishReports stores split reports to the coordinator for verification.
	PublishReports bool `default:"false"`

	// MetricsTextfile, if set, receives split metrics in the node-exporter textfile format.
	MetricsTextfile string
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
