// Package retry is the one retry-with-backoff helper used by every component
// that talks to the network: LLM clients, the intent classifier's model path,
// the relevance scorer, and storage serialization retries.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls how an operation is retried. Attempt n (0-based) waits
// BaseDelay * 2^n before attempt n+1, scaled by ±Jitter when Jitter > 0.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // 0 means uncapped.
	Jitter      float64       // RandomizationFactor in [0, 1).

	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// Default is three attempts with a 500ms base and no jitter.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. The last error is returned on failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	} else {
		b.MaxInterval = p.BaseDelay << attempts
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)), //nolint:gosec // attempts is clamped to >= 1
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}

	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	}, opts...)
}

// Run is Do for operations that only return an error.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
