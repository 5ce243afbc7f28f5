// Package resilience provides the retry-with-backoff and timeout helpers
// wired around RemoteAgent calls. Remote commands are single synchronous
// calls, so there is no circuit breaker or per-endpoint admission control
// here — just bounded retry on transient tunnel failures and a deadline
// wrapper.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int              // max retry attempts (default: 3)
	InitialDelay time.Duration    // first retry delay (default: 100ms)
	MaxDelay     time.Duration    // cap on delay (default: 30s)
	Multiplier   float64          // backoff multiplier (default: 2.0)
	JitterFrac   float64          // jitter fraction 0-1 (default: 0.1)
	RetryableErr func(error) bool // returns true if error is retriable
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFrac:   0.1,
		RetryableErr: func(err error) bool { return true },
	}
}

// Retry executes fn with exponential backoff, stopping early if
// config.RetryableErr rejects the error or ctx is cancelled.
func Retry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if config.RetryableErr != nil && !config.RetryableErr(lastErr) {
			return lastErr
		}

		if attempt < config.MaxAttempts-1 {
			jitter := time.Duration(float64(delay) * config.JitterFrac * (rand.Float64()*2 - 1))
			sleepDur := delay + jitter
			if sleepDur > config.MaxDelay {
				sleepDur = config.MaxDelay
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleepDur):
			}

			delay = time.Duration(float64(delay) * config.Multiplier)
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// WithTimeout runs fn with a timeout, returning an error if the deadline is
// exceeded before fn returns. The returned error wraps ctx.Err(), so
// errors.Is still distinguishes a real deadline from a cancelled parent.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("operation timed out after %s: %w", timeout, ctx.Err())
	}
}
