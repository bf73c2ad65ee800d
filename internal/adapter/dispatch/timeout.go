package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline. On expiry the returned error
// carries the literal message "<name> timed out after <ms>ms", which the
// classifier recognises as a timeout. The underlying call keeps running
// until it observes the cancelled context; its late result is discarded.
func WithTimeout(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)

	go func() {
		value, err := fn(tctx)
		done <- result{value, err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %dms", name, timeout.Milliseconds())
		}
		return nil, tctx.Err()
	}
}
