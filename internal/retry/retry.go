// Package retry wraps a single attempt function in a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted is returned (wrapping the last attempt error) when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds how many times an operation runs and how long to wait between runs.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first; values < 1 mean 1.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// OnRetry, if set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is 3 attempts, 1s apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Second}
}

// Permanent marks err as not worth retrying; Do returns it unwrapped after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, or MaxAttempts is reached.
// On exhaustion the returned error wraps both ErrExhausted and the last attempt error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	permanent := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			permanent = true
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err)
			}
		}),
	)
	if err == nil || permanent || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
}
