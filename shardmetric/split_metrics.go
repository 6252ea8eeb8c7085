package shardmetric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SplitLabels are vector definitions for file-level split metrics.
var SplitLabels = []string{"file", "scope", "region"}

var RowsReadCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loadshard_rows_read_total",
		Help: "The number of data rows read from shared input files",
	},
	SplitLabels,
)

var RowsKeptCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loadshard_rows_kept_total",
		Help: "The number of data rows kept on this worker after the split",
	},
	SplitLabels,
)

var FilesDeletedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loadshard_files_deleted_total",
		Help: "The number of shared input files removed from this worker",
	},
	SplitLabels,
)

var SplitFailuresCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loadshard_split_failures_total",
		Help: "The number of shared input files excluded from the run after a failed split",
	},
	SplitLabels,
)

// SplitLabelValues builds label values for file-level metrics.
func SplitLabelValues(file, scope, region string) prometheus.Labels {
	return prometheus.Labels{
		"file":   file,
		"scope":  scope,
		"region": region,
	}
}

// WriteTextfile dumps every registered metric in the text exposition format,
// for node-exporter's textfile collector. Workers are short-lived, so nothing is served.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
