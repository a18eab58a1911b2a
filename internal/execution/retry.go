package execution

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// RetryConfig bounds retries of transient exchange failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration
}

// withRetry runs op with a per-attempt timeout, retrying while the error is
// transient. It returns the last error.
func withRetry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.InitialBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = callWithTimeout(ctx, cfg.CallTimeout, op)
		if err == nil || !types.IsRetryable(err) || attempt == attempts {
			return err
		}

		RetriesTotal.Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return err
}

func callWithTimeout(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(callCtx)
}
