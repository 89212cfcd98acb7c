package sweep_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/automated-fund-transfer/internal/test"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/retry"
	"github/chapool/automated-fund-transfer/internal/wallet/sweep"
)

func testConfig() sweep.Config {
	return sweep.Config{
		Retry:               retry.DefaultPolicy(),
		SubmitTimeout:       30 * time.Second,
		ConfirmTimeout:      90 * time.Second,
		ConfirmPollInterval: 2 * time.Second,
	}
}

func testRequest() *wallet.Request {
	return &wallet.Request{
		Sender:   "Sender1111111111111111111111111111111111111",
		Receiver: "Receiver111111111111111111111111111111111111",
		Amount:   big.NewInt(3_000_000_000),
	}
}

type recorder struct {
	attempts     int
	transferred  *big.Int
	confirmation []time.Duration
}

func (r *recorder) SubmitAttempt() { r.attempts++ }

func (r *recorder) Transferred(amount *big.Int) { r.transferred = amount }

func (r *recorder) ConfirmationDuration(d time.Duration) {
	r.confirmation = append(r.confirmation, d)
}

func TestExecuteConfirmed(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = []ledger.TxStatus{{Status: ledger.StatusPending}, {Status: ledger.StatusFinalized}}
	clock := test.NewClock(time.Unix(0, 0))
	rec := &recorder{}

	req := testRequest()
	outcome := sweep.NewService(fake, clock, testConfig(), rec).Execute(t.Context(), req)

	require.Equal(t, wallet.OutcomeConfirmed, outcome.Kind, outcome.String())
	assert.Equal(t, "sig-1", outcome.Signature)
	assert.Same(t, req, outcome.Request)
	assert.Equal(t, 1, fake.SubmitCalls)
	assert.Equal(t, 2, fake.PollCalls)
	assert.Equal(t, 1, rec.attempts)
	assert.Equal(t, req.Amount, rec.transferred)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.confirmation)
}

func TestExecuteRetriesTransientSubmitFailures(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.SubmitErrs = []error{
		ledger.Transient(errors.New("connection refused")),
		ledger.Transient(errors.New("connection refused")),
		ledger.Transient(errors.New("node is behind")),
	}
	clock := test.NewClock(time.Unix(0, 0))
	rec := &recorder{}

	outcome := sweep.NewService(fake, clock, testConfig(), rec).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeConfirmed, outcome.Kind, outcome.String())
	assert.Equal(t, 4, fake.SubmitCalls)
	assert.Equal(t, 4, rec.attempts)
	assert.Len(t, fake.Signed, 1, "the same signed transaction is resubmitted")
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	for range 10 {
		fake.SubmitErrs = append(fake.SubmitErrs, ledger.Transient(wallet.ErrUnreachable))
	}
	clock := test.NewClock(time.Unix(0, 0))

	config := testConfig()
	outcome := sweep.NewService(fake, clock, config, nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageSubmit, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrUnreachable)
	assert.Equal(t, config.Retry.MaxAttempts, fake.SubmitCalls)
	assert.Zero(t, fake.PollCalls)
}

func TestExecutePermanentSubmitFailure(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.SubmitErrs = []error{ledger.Permanent(wallet.ErrInsufficientFunds)}
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageSubmit, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrInsufficientFunds)
	assert.Equal(t, 1, fake.SubmitCalls)
	assert.Empty(t, clock.Waits())
}

func TestExecuteSigningFailure(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.SignErr = errors.Wrap(wallet.ErrInvalidKey, "bad keypair")
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageSigning, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrInvalidKey)
	assert.Zero(t, fake.SubmitCalls)
}

func TestExecuteConfirmTimeout(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = nil
	clock := test.NewClock(time.Unix(0, 0))

	config := testConfig()
	config.ConfirmTimeout = 10 * time.Second
	outcome := sweep.NewService(fake, clock, config, nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageConfirm, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrConfirmTimeout)
	assert.Equal(t, "sig-1", outcome.Signature)
	assert.Equal(t, 1, fake.SubmitCalls, "a timeout never resubmits")
	assert.Equal(t, 6, fake.PollCalls)
	assert.Equal(t, time.Unix(10, 0), clock.Now())
}

func TestExecuteConfirmTimeoutShortensLastWait(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = nil
	clock := test.NewClock(time.Unix(0, 0))

	config := testConfig()
	config.ConfirmTimeout = 5 * time.Second
	outcome := sweep.NewService(fake, clock, config, nil).Execute(t.Context(), testRequest())

	require.ErrorIs(t, outcome.Cause, wallet.ErrConfirmTimeout)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, time.Second}, clock.Waits())
}

func TestExecuteDropped(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = []ledger.TxStatus{{Status: ledger.StatusPending}, {Status: ledger.StatusDropped, Detail: "blockhash expired"}}
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageConfirm, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrDropped)
	assert.Contains(t, outcome.Cause.Error(), "blockhash expired")
}

func TestExecutePollErrorsKeepPolling(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = []ledger.TxStatus{{Status: ledger.StatusPending}, {Status: ledger.StatusFinalized}}
	fake.OnPoll = func(call int) {
		if call == 1 {
			fake.PollErr = wallet.ErrUnreachable
		} else {
			fake.PollErr = nil
		}
	}
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeConfirmed, outcome.Kind, outcome.String())
	assert.Equal(t, 2, fake.PollCalls)
}

func TestExecuteCancelledWhileConfirming(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.Statuses = nil
	fake.OnPoll = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(ctx, testRequest())

	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageConfirm, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrCancelled)
	assert.Equal(t, 2, fake.PollCalls)
	assert.Len(t, clock.Waits(), 1, "stops within one poll interval")
}

func TestExecuteDoesNotSubmitAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	fake := test.NewLedger(big.NewInt(10_000_000_000))
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(ctx, testRequest())

	assert.Zero(t, fake.SubmitCalls)
	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageSubmit, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrCancelled)
	assert.Equal(t, "sig-1", outcome.Signature)
}

func TestExecuteCancelledBetweenSubmitAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	fake := test.NewLedger(big.NewInt(10_000_000_000))
	fake.SubmitErrs = []error{ledger.Transient(errors.New("connection reset"))}
	fake.OnSubmit = func(int) { cancel() }
	clock := test.NewClock(time.Unix(0, 0))

	outcome := sweep.NewService(fake, clock, testConfig(), nil).Execute(ctx, testRequest())

	assert.Equal(t, 1, fake.SubmitCalls, "no fresh attempt after shutdown")
	require.Equal(t, wallet.OutcomeFailed, outcome.Kind)
	assert.Equal(t, wallet.StageSubmit, outcome.Stage)
	require.ErrorIs(t, outcome.Cause, wallet.ErrCancelled)
}

func TestExecuteDryRun(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	clock := test.NewClock(time.Unix(0, 0))

	config := testConfig()
	config.DryRun = true
	outcome := sweep.NewService(fake, clock, config, nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeSkipped, outcome.Kind)
	assert.Equal(t, wallet.ReasonDryRun, outcome.Reason)
	assert.Equal(t, "sig-1", outcome.Signature)
	assert.Len(t, fake.Signed, 1)
	assert.Zero(t, fake.SubmitCalls)
}

func TestExecuteWithoutConfirmation(t *testing.T) {
	fake := test.NewLedger(big.NewInt(10_000_000_000))
	clock := test.NewClock(time.Unix(0, 0))

	config := testConfig()
	config.ConfirmTimeout = 0
	outcome := sweep.NewService(fake, clock, config, nil).Execute(t.Context(), testRequest())

	require.Equal(t, wallet.OutcomeSubmitted, outcome.Kind)
	assert.Equal(t, "sig-1", outcome.Signature)
	assert.Zero(t, fake.PollCalls)
}
