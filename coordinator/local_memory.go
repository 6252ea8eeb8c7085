package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"
)

type localMemoryCoordinator struct {
	opt    localMemoryOptions
	data   sync.Map
	closed atomic.Bool
}

type localMemoryOptions struct {
	simulatedDelay time.Duration
	simulatedError error
}

type LocalMemoryOption func(o *localMemoryOptions)

// WithSimulatedDelay makes every operation wait for given duration.
func WithSimulatedDelay(d time.Duration) LocalMemoryOption {
	return func(o *localMemoryOptions) {
		o.simulatedDelay = d
	}
}

// WithSimulatedError makes every operation fail with given error.
func WithSimulatedError(err error) LocalMemoryOption {
	return func(o *localMemoryOptions) {
		o.simulatedError = err
	}
}

// NewLocalMemory creates local variable based coordinator.
// Used for tests and single-machine runs.
func NewLocalMemory(opts ...LocalMemoryOption) Coordinator {
	lmc := &localMemoryCoordinator{}
	for _, o := range opts {
		o(&lmc.opt)
	}
	return lmc
}

func (lmc *localMemoryCoordinator) simulate(ctx context.Context) error {
	if lmc.closed.Load() {
		return ErrClosed
	}
	if lmc.opt.simulatedDelay > 0 {
		select {
		case <-time.After(lmc.opt.simulatedDelay):
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return lmc.opt.simulatedError
}

func (lmc *localMemoryCoordinator) Get(ctx context.Context, key string, valuePtr interface{}) error {
	if err := lmc.simulate(ctx); err != nil {
		return err
	}
	v, ok := lmc.data.Load(key)
	if !ok {
		return ErrNotFound
	}
	return v.(RawItem).Unmarshal(valuePtr)
}

func (lmc *localMemoryCoordinator) Scan(ctx context.Context, prefix string) (results []RawItem, err error) {
	if err := lmc.simulate(ctx); err != nil {
		return nil, err
	}
	lmc.data.Range(func(key, value interface{}) bool {
		if strings.HasPrefix(key.(string), prefix) {
			results = append(results, value.(RawItem))
		}
		return true
	})
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return
}

func (lmc *localMemoryCoordinator) Put(ctx context.Context, key string, value interface{}) error {
	if err := lmc.simulate(ctx); err != nil {
		return err
	}
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	lmc.data.Store(key, RawItem{Key: key, Value: raw})
	return nil
}

func (lmc *localMemoryCoordinator) Delete(ctx context.Context, prefix string) (deleted int64, err error) {
	if err := lmc.simulate(ctx); err != nil {
		return 0, err
	}
	lmc.data.Range(func(key, value interface{}) bool {
		if strings.HasPrefix(key.(string), prefix) {
			lmc.data.Delete(key)
			deleted++
		}
		return true
	})
	return
}

func (lmc *localMemoryCoordinator) Close() error {
	lmc.closed.Store(true)
	return nil
}
