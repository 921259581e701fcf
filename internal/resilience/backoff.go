package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// BackoffConfig configures [Retry].
type BackoffConfig struct {
	// Name identifies the retried operation in logs.
	Name string

	// Initial is the delay before the first retry. Default 100ms.
	Initial time.Duration

	// Max caps the delay between retries. Default 5s.
	Max time.Duration

	// Multiplier grows the delay after each attempt. Default 2.
	Multiplier float64

	// MaxAttempts limits the total number of attempts. Zero means retry until
	// ctx is cancelled.
	MaxAttempts int
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = 100 * time.Millisecond
	}
	if c.Max <= 0 {
		c.Max = 5 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	return c
}

// Retry runs fn until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. Delays grow exponentially from Initial to Max. The last error
// from fn is returned (joined with ctx.Err() on cancellation).
func Retry(ctx context.Context, cfg BackoffConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.Initial
	for attempt := 1; ; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return lastErr
		}

		slog.Debug("retrying after failure",
			"op", cfg.Name,
			"attempt", attempt,
			"delay", delay,
			"err", lastErr,
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.Max {
			delay = cfg.Max
		}
	}
}
