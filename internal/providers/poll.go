package providers

import (
	"context"
	"time"
)

// Poll calls check every interval until it reports done, returns an error,
// ctx ends, or maxWait elapses (ErrTimeout). The first check runs after one
// interval, matching how remote tasks are usually still queued right after
// submission.
func Poll(ctx context.Context, interval, maxWait time.Duration, check func(ctx context.Context) (done bool, err error)) error {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
			done, err := check(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
