package retry

import (
	"context"
	"errors"
	"time"
)

var ErrRetry = errors.New("retry")

// Backoff is a (blocking) function returning when it is time to retry.
//
// If the context is canceled while waiting, it returns ctx.Err().
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff waiting a fixed interval.
func StaticBackoff(interval time.Duration) Backoff {
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// Blocking calls f until it returns nil or a non-retry error.
//
// While f keeps returning ErrRetry, Blocking waits via b between calls.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	for {
		v, err := f()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrRetry) {
			return v, err
		}
		if berr := b(ctx); berr != nil {
			return v, berr
		}
	}
}
