// Package retry provides the cancellable, bounded polling loop shared by the
// download orchestrator and the progressive stream reader.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Poll when every attempt ran without success.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy bounds a poll: at most MaxAttempts calls, Interval apart.
// MaxAttempts below 1 is treated as 1.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Budget is the longest a poll under p can wait in total.
func (p Policy) Budget() time.Duration {
	n := p.attempts()

	return time.Duration(n-1) * p.Interval
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

// Poll calls fn until it reports done, returns an error, or the policy's
// attempts run out. Attempts are numbered from 1. Between attempts Poll
// waits for the policy interval; a receive on wake cuts the wait short.
// wake may be nil.
//
// Poll returns the number of attempts made together with fn's error,
// ctx.Err() if ctx ended first, or ErrExhausted.
func Poll(ctx context.Context, p Policy, wake <-chan struct{}, fn func(attempt int) (bool, error)) (int, error) {
	maxAttempts := p.attempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		done, err := fn(attempt)
		if err != nil {
			return attempt, err
		}

		if done {
			return attempt, nil
		}

		if attempt >= maxAttempts {
			return attempt, ErrExhausted
		}

		if err := Sleep(ctx, p.Interval, wake); err != nil {
			return attempt, err
		}
	}
}

// Sleep waits for d, a receive on wake, or ctx cancellation, whichever comes
// first. Only cancellation produces an error.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	}
}
