package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsOnAttempt(t *testing.T) {
	calls := 0

	n, err := Poll(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: 5}, nil,
		func(attempt int) (bool, error) {
			calls++
			assert.Equal(t, calls, attempt)

			return attempt == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
}

func TestPoll_ExhaustedAfterExactlyMaxAttempts(t *testing.T) {
	calls := 0

	n, err := Poll(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: 4}, nil,
		func(int) (bool, error) {
			calls++
			return false, nil
		})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, calls)
}

func TestPoll_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0

	_, err := Poll(context.Background(), Policy{}, nil, func(int) (bool, error) {
		calls++
		return false, nil
	})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestPoll_FnErrorStops(t *testing.T) {
	boom := errors.New("boom")

	n, err := Poll(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: 10}, nil,
		func(attempt int) (bool, error) {
			if attempt == 2 {
				return false, boom
			}

			return false, nil
		})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
}

func TestPoll_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()

	_, err := Poll(ctx, Policy{Interval: time.Hour, MaxAttempts: 3}, nil, func(int) (bool, error) {
		cancel()
		return false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_AlreadyCancelledMakesNoAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Poll(ctx, Policy{Interval: time.Millisecond, MaxAttempts: 3}, nil, func(int) (bool, error) {
		t.Fatal("fn must not run")
		return false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestPoll_WakeCutsWaitShort(t *testing.T) {
	wake := make(chan struct{}, 1)
	start := time.Now()

	n, err := Poll(context.Background(), Policy{Interval: time.Hour, MaxAttempts: 2}, wake,
		func(attempt int) (bool, error) {
			if attempt == 1 {
				wake <- struct{}{}
				return false, nil
			}

			return true, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicy_Budget(t *testing.T) {
	assert.Equal(t, 950*time.Millisecond, Policy{Interval: 50 * time.Millisecond, MaxAttempts: 20}.Budget())
	assert.Equal(t, time.Duration(0), Policy{Interval: time.Second}.Budget())
}
