package partitions

import (
	"errors"
	"testing"

	"github.com/ab180/loadshard/testplan"
	"github.com/ab180/loadshard/worker"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	id := worker.Identity{GlobalIndex: 4, GlobalCount: 6, LocalIndex: 1, LocalCount: 3, Region: "india"}
	first := worker.Identity{GlobalIndex: 0, GlobalCount: 6, LocalIndex: 0, LocalCount: 3, Region: "usa"}

	tcs := []struct {
		Name     string
		Spec     testplan.FileSpec
		Worker   worker.Identity
		Expected Decision
	}{
		{
			Name:     "regional file of the same region uses local coordinates",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.Regional, Region: "india"},
			Worker:   id,
			Expected: Decision{Action: Select, Scope: testplan.Regional, Index: 1, Count: 3},
		},
		{
			Name:     "regional file of another region is untouched",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.Regional, Region: "usa"},
			Worker:   id,
			Expected: Decision{Action: NoOp, Scope: testplan.Regional},
		},
		{
			Name:     "global file uses global coordinates",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.Global},
			Worker:   id,
			Expected: Decision{Action: Select, Scope: testplan.Global, Index: 4, Count: 6},
		},
		{
			Name:     "unique global file is deleted on non-first workers",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.UniqueGlobal},
			Worker:   id,
			Expected: Decision{Action: DeleteFile, Scope: testplan.UniqueGlobal},
		},
		{
			Name:     "unique global file is kept on the first worker",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.UniqueGlobal},
			Worker:   first,
			Expected: Decision{Action: KeepFile, Scope: testplan.UniqueGlobal},
		},
		{
			Name:     "unique local file is deleted on non-first workers of the region",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.UniqueLocal},
			Worker:   id,
			Expected: Decision{Action: DeleteFile, Scope: testplan.UniqueLocal},
		},
		{
			Name:     "unique local file is kept on the first worker of the region",
			Spec:     testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.UniqueLocal},
			Worker:   first,
			Expected: Decision{Action: KeepFile, Scope: testplan.UniqueLocal},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			d, err := Plan(tc.Spec, tc.Worker)
			require.NoError(t, err)
			require.Equal(t, tc.Expected, d)
		})
	}
}

func TestPlan_InvalidInput(t *testing.T) {
	t.Run("zero count is a configuration error", func(t *testing.T) {
		spec := testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.Global}
		_, err := Plan(spec, worker.Identity{GlobalCount: 0, LocalCount: 1, Region: "usa"})

		var ce *testplan.ConfigurationError
		require.True(t, errors.As(err, &ce))
	})

	t.Run("regional spec without region is rejected", func(t *testing.T) {
		spec := testplan.FileSpec{Filename: "a.csv", PartitionScope: testplan.Regional}
		_, err := Plan(spec, worker.Identity{GlobalCount: 1, LocalCount: 1, Region: ""})

		var ce *testplan.ConfigurationError
		require.True(t, errors.As(err, &ce))
	})

	t.Run("unknown scope is rejected", func(t *testing.T) {
		spec := testplan.FileSpec{Filename: "a.csv", PartitionScope: "SOMETIMES"}
		_, err := Plan(spec, worker.Identity{GlobalCount: 1, LocalCount: 1, Region: "usa"})
		require.Error(t, err)
	})
}

func TestDecision_Keeps(t *testing.T) {
	t.Run("every row is kept by exactly one worker", func(t *testing.T) {
		for count := 1; count <= 7; count++ {
			for row := 0; row < 50; row++ {
				keepers := 0
				for index := 0; index < count; index++ {
					if (Decision{Action: Select, Index: index, Count: count}).Keeps(row) {
						keepers++
					}
				}
				require.Equal(t, 1, keepers, "row %d with count %d", row, count)
			}
		}
	})

	t.Run("single partition keeps every row", func(t *testing.T) {
		d := Decision{Action: Select, Index: 0, Count: 1}
		for row := 0; row < 10; row++ {
			require.True(t, d.Keeps(row))
		}
		require.False(t, d.Mutates())
	})
}

func TestAction_Text(t *testing.T) {
	for _, a := range []Action{NoOp, KeepFile, DeleteFile, Select} {
		text, err := a.MarshalText()
		require.NoError(t, err)

		var decoded Action
		require.NoError(t, decoded.UnmarshalText(text))
		require.Equal(t, a, decoded)
	}
	var a Action
	require.Error(t, a.UnmarshalText([]byte("shred")))
}
