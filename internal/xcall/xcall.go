// Package xcall runs one blocking call to an external collaborator (renderer, media search, encoder)
// under a timeout. A failed or timed-out call yields the caller's fallback value and an error, so the
// caller can skip that single unit of work.
package xcall

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTimeout = errors.New("external call timed out")

// Do runs fn with a context bounded by timeout. A zero timeout means no deadline beyond ctx.
// On error or timeout it returns fallback. fn should honour ctx; if it does not, Do still returns
// at the deadline and the goroutine finishes in the background.
func Do[T any](ctx context.Context, timeout time.Duration, fallback T, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return fallback, errors.Wrap(ErrTimeout, r.err.Error())
			}
			return fallback, r.err
		}
		return r.val, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fallback, errors.WithStack(ErrTimeout)
		}
		return fallback, ctx.Err()
	}
}
