// Package retry runs an operation a bounded number of times with linearly
// increasing backoff between attempts.
package retry

import (
	"context"
	"time"
)

// Do calls fn up to attempts times. After failed attempt n it sleeps
// backoff*n before the next try. Returns nil on the first success, the last
// error once attempts are exhausted, or the context error on cancellation.
func Do(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = fn(); last == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(backoff * time.Duration(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return last
}
