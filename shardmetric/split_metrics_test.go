package shardmetric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	labels := SplitLabelValues("textfile.csv", "GLOBAL", "india")
	RowsReadCounter.With(labels).Add(10)
	RowsKeptCounter.With(labels).Add(4)

	path := filepath.Join(t.TempDir(), "loadshard.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `loadshard_rows_read_total{file="textfile.csv",region="india",scope="GLOBAL"} 10`)
	require.Contains(t, string(data), `loadshard_rows_kept_total{file="textfile.csv",region="india",scope="GLOBAL"} 4`)
}

func TestSplitCounters(t *testing.T) {
	labels := SplitLabelValues("gathered.csv", "UNIQUE_LOCAL", "usa")
	FilesDeletedCounter.With(labels).Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var deleted *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "loadshard_files_deleted_total" {
			deleted = mf
		}
	}
	require.NotNil(t, deleted)
	require.Equal(t, dto.MetricType_COUNTER, deleted.GetType())

	var found bool
	for _, m := range deleted.GetMetric() {
		values := map[string]string{}
		for _, lp := range m.GetLabel() {
			values[lp.GetName()] = lp.GetValue()
		}
		if values["file"] == "gathered.csv" {
			found = true
			require.Equal(t, "usa", values["region"])
			require.Equal(t, 1.0, m.GetCounter().GetValue())
		}
	}
	require.True(t, found)
}
