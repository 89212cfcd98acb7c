package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/automated-fund-transfer/internal/test"
	"github/chapool/automated-fund-transfer/internal/wallet/retry"
)

var (
	errTransient = errors.New("connection reset")
	errPermanent = errors.New("malformed transaction")
)

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func failing(failures int, err error) func(int) error {
	return func(attempt int) error {
		if attempt <= failures {
			return err
		}
		return nil
	}
}

func TestDelays(t *testing.T) {
	p := retry.Policy{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}, p.Delays())

	assert.Empty(t, retry.Policy{MaxAttempts: 1, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Second}.Delays())
}

func TestDefaultPolicy(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, p.Delays())
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	clock := test.NewClock(time.Unix(0, 0))
	p := retry.DefaultPolicy()

	attempts, err := p.Do(t.Context(), clock, failing(3, errTransient), isTransient)
	require.NoError(t, err)

	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Waits())
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	clock := test.NewClock(time.Unix(0, 0))
	p := retry.DefaultPolicy()

	attempts, err := p.Do(t.Context(), clock, failing(100, errTransient), isTransient)
	require.ErrorIs(t, err, errTransient)

	assert.Equal(t, p.MaxAttempts, attempts)
	assert.Len(t, clock.Waits(), p.MaxAttempts-1)
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	clock := test.NewClock(time.Unix(0, 0))
	p := retry.DefaultPolicy()

	attempts, err := p.Do(t.Context(), clock, failing(1, errPermanent), isTransient)
	require.ErrorIs(t, err, errPermanent)

	assert.Equal(t, 1, attempts)
	assert.Empty(t, clock.Waits())
}

func TestDoStopsWhenCancelled(t *testing.T) {
	clock := test.NewClock(time.Unix(0, 0))
	p := retry.DefaultPolicy()

	ctx, cancel := context.WithCancel(t.Context())
	op := func(attempt int) error {
		if attempt == 2 {
			cancel()
		}
		return errTransient
	}

	attempts, err := p.Do(ctx, clock, op, isTransient)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, attempts)
}

func TestDoDoesNotStartAfterCancellation(t *testing.T) {
	clock := test.NewClock(time.Unix(0, 0))
	p := retry.DefaultPolicy()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	attempts, err := p.Do(ctx, clock, func(int) error {
		called = true
		return nil
	}, isTransient)
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, called)
	assert.Zero(t, attempts)
	assert.Empty(t, clock.Waits())
}
