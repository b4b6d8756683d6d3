package reconcile

import (
	"context"
	"time"

	"pkg.mon.icu/oracle/internal/storage"
)

// RetryConfig holds configuration for exponential backoff of transient store failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the delay before retry number attempt (zero based):
// InitialBackoff * Multiplier^attempt, capped at MaxBackoff.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

// do runs fn until it succeeds, fails with a non-retryable error, runs out of retries or
// ctx is done. The last error is returned.
func (c RetryConfig) do(ctx context.Context, fn func() error, onRetry func(attempt int, wait time.Duration, err error)) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !storage.IsRetryable(err) || attempt >= c.MaxRetries {
			return err
		}

		wait := c.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
