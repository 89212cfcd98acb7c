// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/util"
)

// Policy is a retry schedule: up to MaxAttempts calls, waiting BaseDelay after the first failure and
// multiplying the wait by Multiplier after each further failure, never waiting longer than MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy is 5 attempts with delays 1s, 2s, 4s, 8s
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Delays returns the waits between consecutive attempts, len(Delays) == MaxAttempts-1
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}

	b := p.backOff(nil)
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for len(delays) < p.MaxAttempts-1 {
		delays = append(delays, b.NextBackOff())
	}

	return delays
}

// Do calls op until it succeeds, fails with an error isTransient rejects, or MaxAttempts calls were made.
// Waits happen on clock and end early when ctx is done. No attempt starts once ctx is done, but op
// itself is not handed ctx so the caller decides whether an in-flight call may outlive cancellation.
// It returns the number of calls made and the last error.
func (p Policy) Do(ctx context.Context, clock util.Clock, op func(attempt int) error, isTransient func(error) bool) (int, error) {
	attempts := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++
		err := op(attempts)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxRetries := uint64(0)
	if p.MaxAttempts > 1 {
		maxRetries = uint64(p.MaxAttempts - 1)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(clock), maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		util.LogFromContext(ctx).Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Attempt failed, retrying")
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, &clockTimer{clock: clock})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return attempts, errors.Wrapf(err, "gave up after %d attempts", attempts)
	}

	return attempts, err
}

func (p Policy) backOff(clock util.Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	if clock != nil {
		b.Clock = clock
	}
	b.Reset()

	return b
}

// clockTimer drives backoff waits from a util.Clock
type clockTimer struct {
	clock util.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = t.clock.After(d)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
