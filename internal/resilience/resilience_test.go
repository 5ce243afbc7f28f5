package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 3

	attempts := 0
	err := Retry(context.Background(), cfg, func(attempt int) error {
		attempts++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 2

	attempts := 0
	err := Retry(context.Background(), cfg, func(int) error {
		attempts++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 5
	cfg.RetryableErr = func(err error) bool { return false }

	attempts := 0
	err := Retry(context.Background(), cfg, func(int) error {
		attempts++
		return errors.New("fatal")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithTimeoutReturnsResult(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestWithTimeoutExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
