package retry

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned by Poll when the condition did not hold within
// the timeout.
var ErrPollTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond immediately and then every interval until it returns
// true, returns an error, or timeout elapses. Cancellation of the parent
// context is returned as-is; only the poll's own deadline yields
// ErrPollTimeout.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond(pollCtx)
		if err != nil {
			// A call cut short by our own deadline is a timeout, not a failure.
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return ErrPollTimeout
			}
			return err
		}
		if done {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrPollTimeout
		case <-ticker.C:
		}
	}
}
