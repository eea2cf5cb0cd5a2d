package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// RetryConfig configures retry behavior. MaxRetries counts retries after the
// first attempt, so MaxRetries=2 allows three calls in total.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RetryError is returned when every allowed attempt failed with a retryable
// error. Callers treat it as permanent.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Backoff returns the linear delay before retry number attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * c.BaseDelay
}

// Retry runs op until it succeeds, returns an error isRetryable rejects, or
// the retry budget is spent. Waits between attempts grow linearly.
func Retry[T any](ctx context.Context, cfg RetryConfig, name string, op func(ctx context.Context) (T, error), isRetryable func(error) bool) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debugf("%s succeeded on attempt %d/%d", name, attempt, attempts)
			}
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := cfg.Backoff(attempt)
		log.Debugf("%s attempt %d/%d failed, retrying in %v: %v", name, attempt, attempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s cancelled during backoff: %w", name, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, &RetryError{Attempts: attempts, Err: lastErr}
}
