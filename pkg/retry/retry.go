package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DoWithResult do a given function with retry.
func DoWithResult[T any](ctx context.Context, fn func() (T, error), opts ...OptionFunc) (T, error) {
	opt := defaultOption()
	for _, o := range opts {
		o(&opt)
	}

	var retryCount int
	for {
		t, err := fn()
		if err == nil {
			return t, nil
		}
		if opt.isPermanent != nil && opt.isPermanent(err) {
			return t, err
		}
		retryCount++
		if retryCount >= opt.maxRetryCount {
			return t, errors.Join(err, fmt.Errorf("retry count exceeded: %d", retryCount))
		}
		select {
		case <-time.After(opt.delay):
		case <-ctx.Done():
			return t, errors.Join(err, ctx.Err())
		}
	}
}

// Do a given function with retry.
func Do(ctx context.Context, fn func() error, opts ...OptionFunc) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, opts...)
	return err
}
