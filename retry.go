package iqnews

import (
	"context"
	"math/rand"
	"time"
)

// WithRetry runs op up to maxAttempts times, sleeping baseDelay plus up to a
// second of jitter between attempts. It returns the first success, or the
// last error once the attempts are exhausted. The context is checked between
// attempts so a cancelled caller is not kept waiting out the backoff.
func WithRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay + time.Duration(rand.Float64()*float64(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return err
}
