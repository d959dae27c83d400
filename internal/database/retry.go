package database

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig controls retries of whole transactions on transient errors.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// RetryOn decides whether an error triggers another attempt. Defaults to IsTransient.
	RetryOn func(error) bool
	// OnRetry is called before each repeated attempt.
	OnRetry func(attempt int, err error)
}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. fn must start from scratch each time.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = IsTransient
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return mapError(ctx.Err())
			case <-time.After(cfg.Delay * time.Duration(attempt)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryOn(lastErr) {
			return lastErr
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("database: all %d attempts failed: %w", attempts, lastErr)
}
