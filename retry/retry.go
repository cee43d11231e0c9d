package retry

import (
	"context"
	"slices"
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including
	// the first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries
	// use exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryCodes lists the cache error codes that are considered
	// retryable. An empty list means no error is retried.
	RetryCodes []cacheerr.Code
}

// Storage returns the configuration most callers want: a few attempts
// retrying only storage-unavailable failures, the one error class the
// cache surfaces without retrying internally.
func Storage() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		Jitter:      0.2,
		RetryCodes:  []cacheerr.Code{cacheerr.CodeStorageUnavailable},
	}
}

// Do calls fn up to cfg.MaxAttempts times, retrying only when the
// returned error carries a cache error code listed in cfg.RetryCodes.
// Between attempts an exponential back-off delay (with optional jitter)
// is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := 0; i < attempts; i++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Last attempt — return immediately regardless of code.
		if i == attempts-1 {
			return zero, err
		}

		// Check whether the error code is retryable.
		if !slices.Contains(cfg.RetryCodes, cacheerr.CodeOf(err)) {
			return zero, err
		}

		// Wait with back-off, but respect context cancellation.
		delay := backoff(cfg, i)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}
