package coordinator

import (
	"context"
	"errors"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("coordinator closed")
)

// Coordinator is a cluster-wide key-value store shared by the control process and workers.
// Values are JSON-encoded.
type Coordinator interface {
	Get(ctx context.Context, key string, valuePtr interface{}) error
	Scan(ctx context.Context, prefix string) (results []RawItem, err error)
	Put(ctx context.Context, key string, value interface{}) error

	// Delete removes all keys starting with given prefix.
	Delete(ctx context.Context, prefix string) (deleted int64, err error)

	Close() error
}

// IsPermanent returns true if retrying the failed operation cannot succeed.
func IsPermanent(err error) bool {
	for _, permanent := range []error{
		ErrClosed,
		context.Canceled,
		rpctypes.ErrAuthFailed,
		rpctypes.ErrAuthNotEnabled,
		rpctypes.ErrInvalidAuthToken,
		rpctypes.ErrPermissionDenied,
	} {
		if errors.Is(err, permanent) {
			return true
		}
	}
	return false
}
