package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ab180/loadshard/worker"
	"github.com/stretchr/testify/require"
)

const planJSON = `{
  "testFile": "TestPlan.jmx",
  "testDuration": 300,
  "device_count": [{"region": "usa", "count": 2}, {"region": "india", "count": 3}],
  "file_properties": [
    {"filename": "users.csv", "contains_headers": true, "partition_scope": "GLOBAL"},
    {"filename": "india.csv", "contains_headers": false, "partition_scope": "REGIONAL", "region": "india"}
  ]
}`

func writePlan(t *testing.T) (dir, path string) {
	dir = t.TempDir()
	path = filepath.Join(dir, "test_plan.json")
	require.NoError(t, os.WriteFile(path, []byte(planJSON), 0o644))
	return
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCmd(t *testing.T) {
	_, path := writePlan(t)

	out, err := execute(t, "plan", "--plan", path)
	require.NoError(t, err)
	require.Contains(t, out, "Test TestPlan.jmx for 5m0s (frame limit 13m0s, batch limit 53m0s)\n")
	require.Contains(t, out, "  usa: 2 frames on 3 requested instances\n")
	require.Contains(t, out, "  india: 3 frames on 5 requested instances\n")
	require.Contains(t, out, "users.csv (GLOBAL):\n")
	require.Contains(t, out, "  usa: #0=select 0 mod 5, #1=select 1 mod 5\n")
	require.Contains(t, out, "  india: #2=select 0 mod 3, #3=select 1 mod 3, #4=select 2 mod 3\n")
	require.Contains(t, out, "  usa: #0=noop, #1=noop\n")
}

func TestPlanCmd_UniqueFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "testFile": "TestPlan.jmx",
  "testDuration": 300,
  "device_count": [{"region": "usa", "count": 2}, {"region": "india", "count": 3}],
  "file_properties": [
    {"filename": "admin.csv", "partition_scope": "UNIQUE_GLOBAL"},
    {"filename": "tokens.csv", "partition_scope": "UNIQUE_LOCAL"}
  ]
}`), 0o644))

	out, err := execute(t, "plan", "--plan", path)
	require.NoError(t, err)
	require.Contains(t, out, "admin.csv (UNIQUE_GLOBAL):\n")
	require.Contains(t, out, "  kept by 1 of 5 workers\n")
	require.Contains(t, out, "  kept by 2 of 5 workers\n")
}

func TestPlanCmd_MissingPlan(t *testing.T) {
	_, err := execute(t, "plan", "--plan", filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitCmd(t *testing.T) {
	dir, path := writePlan(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte("id\n0\n1\n2\n3\n4\n5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "india.csv"), []byte("a\nb\nc\nd\n"), 0o644))

	id := worker.Identity{GlobalIndex: 2, GlobalCount: 5, LocalIndex: 0, LocalCount: 3, Region: "india"}
	t.Setenv(worker.EnvGlobalIndex, "2")
	t.Setenv(worker.EnvGlobalCount, "5")
	t.Setenv(worker.EnvLocalIndex, "0")
	t.Setenv(worker.EnvLocalCount, "3")
	t.Setenv(worker.EnvLocation, id.Region)

	_, err := execute(t, "split", "--plan", path, "--dir", dir, "--noLocalize")
	require.NoError(t, err)

	users, err := os.ReadFile(filepath.Join(dir, "users.csv"))
	require.NoError(t, err)
	require.Equal(t, "id\n2\n", string(users))

	india, err := os.ReadFile(filepath.Join(dir, "india.csv"))
	require.NoError(t, err)
	require.Equal(t, "a\nd\n", string(india))
}

func TestRunCmd_RequiresOutDataDir(t *testing.T) {
	_, path := writePlan(t)
	_, err := execute(t, "run", "--plan", path)
	require.Error(t, err)
}
