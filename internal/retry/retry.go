// Package retry provides a small bounded retry policy for operations
// against external systems.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first.
	Delay       time.Duration // Pause between attempts.
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if errCtx := ctx.Err(); errCtx != nil {
			return errCtx
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("retry: %d attempts: %w", attempts, lastErr)
}
