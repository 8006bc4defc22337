package imagegen

import (
	"context"
	"time"
)

// RetryPolicy bounds attempts for a single provider call. MaxAttempts counts
// the first try, so 2 means exactly one retry.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries once after a fixed pause.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 2,
	Backoff:     2 * time.Second,
}

// NoRetry makes a single attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// Do runs fn until it succeeds, returns a non-transient error, or attempts run out.
func Do[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, lastErr
			case <-time.After(policy.Backoff):
			}
		}
	}

	return zero, lastErr
}
