package cache

import (
	"context"
	"errors"
	"time"
)

const (
	retryAttempts  = 3
	initialBackoff = 250 * time.Millisecond
)

// RetryableError marks an error as transient. Source backends wrap
// network-level failures with it; permanent failures (bad checksum,
// missing package) stay unwrapped so they fail fast.
type RetryableError struct{ Err error }

// Retryable wraps err as transient. Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a RetryableError anywhere in
// its chain.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryWithBackoff runs fn up to retryAttempts times, doubling the delay
// between attempts. Only retryable errors re-run; the context cancels
// the wait, not an in-flight fn.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	delay := initialBackoff
	var lastErr error

	for i := 0; i < retryAttempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < retryAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}
