package util

import (
	"context"
	"time"
)

// Clock is the subset of time2.Clock the transfer loop waits on.
// Tests substitute a fake whose After fires without real delay.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SleepWithContext blocks for d on clock, returning early with ctx.Err() once ctx is done
func SleepWithContext(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d <= 0 {
		return nil
	}

	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
