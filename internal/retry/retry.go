// Package retry holds the two wait strategies the generation backends share:
// a bounded retry with a linearly growing backoff, and a fixed-interval poll
// for long-running jobs.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.step
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

// Do runs op up to attempts times, sleeping step, 2*step, 3*step between
// failures. The last error is returned once attempts are exhausted.
func Do[T any](ctx context.Context, attempts int, step time.Duration, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(&linearBackOff{step: step}),
		backoff.WithMaxTries(uint(attempts)),
	)
}

var errNotReady = errors.New("not ready")

// Poll invokes check every interval until it reports done, returns an error,
// or ctx is cancelled. The first check runs immediately.
func Poll[T any](ctx context.Context, interval time.Duration, check func(context.Context) (T, bool, error)) (T, error) {
	op := func() (T, error) {
		var zero T
		v, done, err := check(ctx)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		if !done {
			return zero, errNotReady
		}
		return v, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(0),
	)
}
