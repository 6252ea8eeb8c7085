package worker

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ab180/loadshard/testplan"
	"github.com/samber/lo"
)

// Environment variables carrying a worker's coordinates. They are set by the frame command
// on dispatch and read exactly once at worker start.
const (
	EnvGlobalIndex = "GLOBAL_INSTANCE_ID"
	EnvLocalIndex  = "LOCAL_INSTANCE_ID"
	EnvGlobalCount = "GLOBAL_INSTANCE_COUNT"
	EnvLocalCount  = "LOCAL_INSTANCE_COUNT"
	EnvLocation    = "CURRENT_LOCATION"

	// EnvRunID optionally tags the split reports of a run.
	EnvRunID = "LOADSHARD_RUN_ID"
)

// Identity is a worker's position within its region and within the whole run.
// It is immutable for the lifetime of the worker process.
type Identity struct {
	GlobalIndex int    `json:"globalIndex"`
	GlobalCount int    `json:"globalCount"`
	LocalIndex  int    `json:"localIndex"`
	LocalCount  int    `json:"localCount"`
	Region      string `json:"region"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// IdentityFromEnv resolves the worker identity from the process environment.
func IdentityFromEnv() (Identity, error) {
	return ResolveIdentity(os.LookupEnv)
}

// ResolveIdentity resolves the worker identity with given lookup function.
// It returns MissingIdentityError if any coordinate is absent or not an integer,
// or if the coordinates are inconsistent with each other.
func ResolveIdentity(lookup LookupFunc) (id Identity, err error) {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvGlobalIndex, &id.GlobalIndex},
		{EnvGlobalCount, &id.GlobalCount},
		{EnvLocalIndex, &id.LocalIndex},
		{EnvLocalCount, &id.LocalCount},
	}
	for _, v := range ints {
		raw, ok := lookup(v.key)
		if !ok {
			return Identity{}, &MissingIdentityError{Key: v.key, Reason: "not set"}
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Identity{}, &MissingIdentityError{Key: v.key, Reason: fmt.Sprintf("%q is not an integer", raw)}
		}
		*v.dst = n
	}
	region, ok := lookup(EnvLocation)
	if !ok || strings.TrimSpace(region) == "" {
		return Identity{}, &MissingIdentityError{Key: EnvLocation, Reason: "not set"}
	}
	id.Region = strings.TrimSpace(region)

	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the identity invariants.
func (id Identity) Validate() error {
	switch {
	case id.GlobalCount < 1:
		return &MissingIdentityError{Key: EnvGlobalCount, Reason: "must be at least 1"}
	case id.LocalCount < 1:
		return &MissingIdentityError{Key: EnvLocalCount, Reason: "must be at least 1"}
	case id.GlobalIndex < 0 || id.GlobalIndex >= id.GlobalCount:
		return &MissingIdentityError{Key: EnvGlobalIndex, Reason: fmt.Sprintf("%d is out of range [0, %d)", id.GlobalIndex, id.GlobalCount)}
	case id.LocalIndex < 0 || id.LocalIndex >= id.LocalCount:
		return &MissingIdentityError{Key: EnvLocalIndex, Reason: fmt.Sprintf("%d is out of range [0, %d)", id.LocalIndex, id.LocalCount)}
	case id.LocalCount > id.GlobalCount:
		return &MissingIdentityError{Key: EnvLocalCount, Reason: "exceeds global instance count"}
	case id.Region == "":
		return &MissingIdentityError{Key: EnvLocation, Reason: "not set"}
	}
	return nil
}

// Env renders the identity as environment variable assignments, in a stable order.
func (id Identity) Env() []string {
	return []string{
		EnvGlobalIndex + "=" + strconv.Itoa(id.GlobalIndex),
		EnvLocalIndex + "=" + strconv.Itoa(id.LocalIndex),
		EnvGlobalCount + "=" + strconv.Itoa(id.GlobalCount),
		EnvLocalCount + "=" + strconv.Itoa(id.LocalCount),
		EnvLocation + "=" + id.Region,
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s[%d/%d] global[%d/%d]", id.Region, id.LocalIndex, id.LocalCount, id.GlobalIndex, id.GlobalCount)
}

// Roster returns identities of every worker of a run. Regions follow the plan order,
// and global indices of a region start right after the ones of preceding regions.
func Roster(counts []testplan.DeviceCount) []Identity {
	total := lo.Reduce(counts, func(sum int, dc testplan.DeviceCount, _ int) int {
		return sum + dc.Count
	}, 0)

	roster := make([]Identity, 0, total)
	for _, dc := range counts {
		begin := len(roster)
		for i := 0; i < dc.Count; i++ {
			roster = append(roster, Identity{
				GlobalIndex: begin + i,
				GlobalCount: total,
				LocalIndex:  i,
				LocalCount:  dc.Count,
				Region:      dc.Region,
			})
		}
	}
	return roster
}

// RegionOffset returns the first global index assigned to the region,
// or -1 if the region is not in the given counts.
func RegionOffset(counts []testplan.DeviceCount, region string) int {
	offset := 0
	for _, dc := range counts {
		if dc.Region == region {
			return offset
		}
		offset += dc.Count
	}
	return -1
}
