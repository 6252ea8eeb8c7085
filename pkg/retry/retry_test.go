package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		v, err := DoWithResult(ctx, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		}, WithDelay(time.Millisecond))
		require.NoError(t, err)
		require.Equal(t, 42, v)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up after the retry count", func(t *testing.T) {
		calls := 0
		cause := errors.New("down")
		err := Do(ctx, func() error {
			calls++
			return cause
		}, WithRetryCount(2), WithDelay(time.Millisecond))
		require.ErrorIs(t, err, cause)
		require.Equal(t, 2, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		cause := errors.New("bad request")
		err := Do(ctx, func() error {
			calls++
			return cause
		}, WithPermanentError(func(err error) bool { return errors.Is(err, cause) }))
		require.ErrorIs(t, err, cause)
		require.Equal(t, 1, calls)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(ctx, func() error {
			return errors.New("down")
		}, WithRetryCount(100), WithDelay(time.Hour))
		require.ErrorIs(t, err, context.Canceled)
	})
}
