package unsubscribe

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc returns the pause before the given 1-based attempt is retried.
type BackoffFunc func(attempt int) time.Duration

// Policy is a bounded-retry policy shared by every retrying layer: the
// navigation loop, the action re-check and the queue's task retry all
// instantiate it with their own limits instead of hand-rolling loops.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// ErrInvalidPolicy indicates a retry policy with a non-positive attempt budget.
var ErrInvalidPolicy = errors.New("retry policy needs at least one attempt")

// Run invokes fn up to MaxAttempts times, sleeping per the backoff between
// attempts, and returns nil on the first success. The last error is returned
// once the budget is exhausted. Context cancellation aborts the wait.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidPolicy
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// Delay exposes the pause configured after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delay(attempt)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	d := p.Backoff(attempt)
	if d < 0 {
		return 0
	}
	return d
}

// ExponentialBackoff doubles the base pause after every attempt:
// base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d <= 0 { // overflow guard
				return base
			}
		}
		return d
	}
}

// ConstantBackoff pauses the same duration after every attempt.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
	}
}
