// Package retry implements the fixed-delay retry policy the translate
// channel applies to a per-file unit of work: read, transform,
// write-all, treated as one operation retried as a whole.
package retry

import (
	"context"
	"time"

	"github.com/localbridge/hl7bridge/internal/errs"
)

// Config mirrors a channel's errorHandling block: retryCount attempts
// after the first, retryDelayMs between each.
type Config struct {
	MaxAttempts int           // total attempts, including the first; <1 means 1
	Delay       time.Duration // delay between attempts
}

// NewConfig builds a Config from the YAML-level retryCount/retryDelayMs
// values (retryCount is the number of *retries*, not total attempts).
func NewConfig(retryCount int, retryDelayMs int) Config {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryDelayMs < 0 {
		retryDelayMs = 0
	}
	return Config{
		MaxAttempts: retryCount + 1,
		Delay:       time.Duration(retryDelayMs) * time.Millisecond,
	}
}

// Do runs fn, retrying up to cfg.MaxAttempts-1 additional times on a
// Transient-classified error, sleeping cfg.Delay between attempts. A
// Fatal or Invalid classified error (or ctx cancellation) aborts
// immediately without consuming remaining attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !errs.IsTransient(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		if ctx.Err() != nil {
			return lastErr
		}

		if cfg.Delay > 0 {
			timer := time.NewTimer(cfg.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}
