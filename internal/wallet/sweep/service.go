// Package sweep executes a single transfer: build, sign, submit, confirm.
package sweep

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/util"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/retry"
)

// Service executes transfer requests
type Service interface {
	// Execute runs one transfer attempt to completion and never returns an error,
	// every failure is expressed as a wallet.Outcome.
	Execute(ctx context.Context, req *wallet.Request) wallet.Outcome
}

// Recorder receives executor measurements
type Recorder interface {
	SubmitAttempt()
	Transferred(amount *big.Int)
	ConfirmationDuration(d time.Duration)
}

const defaultConfirmPollInterval = 2 * time.Second

// Config controls submission retries and confirmation polling
type Config struct {
	Retry         retry.Policy
	SubmitTimeout time.Duration

	// ConfirmTimeout bounds confirmation polling. Zero disables confirmation and the
	// executor reports Submitted as soon as the ledger accepted the transaction.
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// DryRun builds and signs but never submits
	DryRun bool
}

type service struct {
	ledger   ledger.Client
	clock    util.Clock
	config   Config
	recorder Recorder
}

// NewService creates a new transfer executor
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(client ledger.Client, clock util.Clock, config Config, recorder Recorder) Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	if config.ConfirmPollInterval <= 0 {
		config.ConfirmPollInterval = defaultConfirmPollInterval
	}

	return &service{
		ledger:   client,
		clock:    clock,
		config:   config,
		recorder: recorder,
	}
}

func (s *service) Execute(ctx context.Context, req *wallet.Request) wallet.Outcome {
	logger := util.LogFromContext(ctx)

	signed, err := s.ledger.BuildAndSign(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build and sign transfer")
		return wallet.Failed(wallet.StageSigning, err).WithRequest(req)
	}

	logger.Info().
		Str("signature", signed.Signature).
		Str("amount", req.Amount.String()).
		Str("receiver", req.Receiver).
		Msg("Transfer signed")

	if s.config.DryRun {
		logger.Info().Str("signature", signed.Signature).Msg("Dry run, transaction not submitted")
		return wallet.Skipped(wallet.ReasonDryRun).WithRequest(req).WithSignature(signed.Signature)
	}

	handle, err := s.submit(ctx, signed)
	if err != nil {
		return wallet.Failed(wallet.StageSubmit, err).WithRequest(req).WithSignature(signed.Signature)
	}

	logger.Info().Str("signature", handle.Signature).Msg("Transaction submitted")

	if s.config.ConfirmTimeout <= 0 {
		s.recorder.Transferred(req.Amount)
		return wallet.Submitted(handle.Signature).WithRequest(req)
	}

	return s.confirm(ctx, handle, req.Amount).WithRequest(req)
}

// submit sends the transaction, retrying transient failures. A call in flight runs detached from ctx
// so shutdown never interrupts it halfway; once ctx is done no further attempt starts.
func (s *service) submit(ctx context.Context, signed *ledger.SignedTransaction) (*ledger.Handle, error) {
	logger := util.LogFromContext(ctx)
	detached := context.WithoutCancel(ctx)

	var handle *ledger.Handle
	attempts, err := s.config.Retry.Do(ctx, s.clock, func(attempt int) error {
		s.recorder.SubmitAttempt()

		submitCtx, cancel := s.submitContext(detached)
		defer cancel()

		h, err := s.ledger.Submit(submitCtx, signed)
		if err != nil {
			return err
		}
		handle = h

		return nil
	}, ledger.IsTransient)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			logger.Warn().Err(err).Int("attempts", attempts).Msg("Submission abandoned on shutdown")
			return nil, errors.Wrap(wallet.ErrCancelled, err.Error())
		case ledger.IsTransient(err):
			logger.Error().Err(err).Int("attempts", attempts).Msg("Submission failed, retries exhausted")
		default:
			logger.Error().Err(err).Int("attempts", attempts).Msg("Submission rejected")
		}
		return nil, err
	}

	return handle, nil
}

func (s *service) submitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.SubmitTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.config.SubmitTimeout)
}

// confirm polls until the transaction is finalized, dropped, the timeout elapsed or ctx is done.
// A timeout is not a resubmission signal, the transaction may still land.
func (s *service) confirm(ctx context.Context, handle *ledger.Handle, amount *big.Int) wallet.Outcome {
	logger := util.LogFromContext(ctx).With().Str("signature", handle.Signature).Logger()

	start := s.clock.Now()
	deadline := start.Add(s.config.ConfirmTimeout)

	for polls := 1; ; polls++ {
		status, err := s.ledger.PollStatus(ctx, handle)
		if ctx.Err() != nil {
			logger.Warn().Int("polls", polls).Msg("Confirmation abandoned on shutdown")
			return wallet.Failed(wallet.StageConfirm, wallet.ErrCancelled).WithSignature(handle.Signature)
		}

		switch {
		case err != nil:
			logger.Warn().Err(err).Int("polls", polls).Msg("Failed to poll transaction status")
		case status.Status == ledger.StatusFinalized:
			elapsed := s.clock.Now().Sub(start)
			s.recorder.ConfirmationDuration(elapsed)
			s.recorder.Transferred(amount)
			logger.Info().Int("polls", polls).Dur("elapsed", elapsed).Msg("Transaction finalized")
			return wallet.Confirmed(handle.Signature)
		case status.Status == ledger.StatusDropped:
			logger.Error().Str("detail", status.Detail).Msg("Transaction dropped")
			return wallet.Failed(wallet.StageConfirm, errors.Wrap(wallet.ErrDropped, status.Detail)).
				WithSignature(handle.Signature)
		}

		now := s.clock.Now()
		if !now.Before(deadline) {
			logger.Error().
				Int("polls", polls).
				Dur("timeout", s.config.ConfirmTimeout).
				Msg("Transaction not finalized before timeout, it may still land")
			return wallet.Failed(wallet.StageConfirm, wallet.ErrConfirmTimeout).WithSignature(handle.Signature)
		}

		wait := s.config.ConfirmPollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}

		if err := util.SleepWithContext(ctx, s.clock, wait); err != nil {
			logger.Warn().Int("polls", polls).Msg("Confirmation abandoned on shutdown")
			return wallet.Failed(wallet.StageConfirm, wallet.ErrCancelled).WithSignature(handle.Signature)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) SubmitAttempt()                     {}
func (nopRecorder) Transferred(*big.Int)               {}
func (nopRecorder) ConfirmationDuration(time.Duration) {}
