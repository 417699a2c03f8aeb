// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// Policy describes a bounded retry loop.
type Policy struct {
	// MaxRetries is the number of attempts after the first. Zero means the
	// operation runs exactly once.
	MaxRetries int

	// Retryable reports whether an error is worth another attempt. A nil
	// Retryable retries nothing.
	Retryable func(error) bool

	// Logger receives a warning before each backoff. Defaults to slog.Default().
	Logger *slog.Logger
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// policy's retries are exhausted. The delay starts at RetryBaseDelay and
// doubles each attempt. If the context is cancelled during a backoff wait
// Retry returns ctx.Err(); an error from a cancelled context is never retried.
func Retry(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		logger.WarnContext(ctx, "retrying after transient failure",
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"backoff", backoff.String(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	if p.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("after %d retries: %w", p.MaxRetries, lastErr)
}
