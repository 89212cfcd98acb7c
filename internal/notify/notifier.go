// Package notify delivers cycle outcomes to operator channels.
//
// Delivery is best effort: implementations log their own failures and never report them to the caller.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github/chapool/automated-fund-transfer/internal/util"
	"github/chapool/automated-fund-transfer/internal/wallet"
)

// Notifier receives the outcome of every cycle
type Notifier interface {
	Notify(ctx context.Context, outcome wallet.Outcome)
}

// Sender delivers a rendered message to one channel
type Sender interface {
	Name() string
	Send(ctx context.Context, subject string, text string) error
}

// Service renders outcomes and fans them out to every configured sender
type Service struct {
	unit          wallet.Unit
	senders       []Sender
	notifySkipped bool
}

// NewService creates a new notification fan-out. Without senders outcomes are only logged.
// Skipped outcomes reach the senders only when notifySkipped is set.
func NewService(unit wallet.Unit, notifySkipped bool, senders ...Sender) *Service {
	return &Service{
		unit:          unit,
		senders:       senders,
		notifySkipped: notifySkipped,
	}
}

func (s *Service) Notify(ctx context.Context, outcome wallet.Outcome) {
	logger := util.LogFromContext(ctx)
	text := Message(s.unit, outcome)

	logEvent(logger, outcome).Str("outcome", string(outcome.Kind)).Msg(text)

	if outcome.Kind == wallet.OutcomeSkipped && !s.notifySkipped {
		return
	}

	subject := Subject(outcome)
	for _, sender := range s.senders {
		if err := sender.Send(ctx, subject, text); err != nil {
			logger.Warn().Err(err).Str("notifier", sender.Name()).Msg("Notification failed")
			continue
		}
		logger.Debug().Str("notifier", sender.Name()).Msg("Notification sent")
	}
}

func logEvent(logger *zerolog.Logger, outcome wallet.Outcome) *zerolog.Event {
	if outcome.IsFailure() {
		return logger.Error().Err(outcome.Cause).Str("stage", string(outcome.Stage))
	}

	return logger.Info()
}

// Subject is a one-line summary used for email subjects
func Subject(outcome wallet.Outcome) string {
	switch outcome.Kind {
	case wallet.OutcomeConfirmed:
		return "Transfer confirmed"
	case wallet.OutcomeSubmitted:
		return "Transfer submitted"
	case wallet.OutcomeSkipped:
		return "Transfer skipped: " + outcome.Reason
	case wallet.OutcomeFailed:
		return fmt.Sprintf("Transfer failed at %s", outcome.Stage)
	default:
		return "Transfer " + string(outcome.Kind)
	}
}

// Message renders an outcome as operator-facing text
func Message(unit wallet.Unit, outcome wallet.Outcome) string {
	req := outcome.Request
	if req == nil && (outcome.Kind == wallet.OutcomeConfirmed || outcome.Kind == wallet.OutcomeSubmitted) {
		return outcome.String()
	}

	switch outcome.Kind {
	case wallet.OutcomeConfirmed:
		return fmt.Sprintf("Transferred %s %s from %s to %s. Signature: %s",
			req.Amount, unit.BaseName, req.Sender, req.Receiver, outcome.Signature)
	case wallet.OutcomeSubmitted:
		return fmt.Sprintf("Submitted transfer of %s %s from %s to %s. Signature: %s",
			req.Amount, unit.BaseName, req.Sender, req.Receiver, outcome.Signature)
	case wallet.OutcomeSkipped:
		if req != nil {
			return fmt.Sprintf("Skipped transfer of %s %s from %s to %s (%s). Signature: %s",
				req.Amount, unit.BaseName, req.Sender, req.Receiver, outcome.Reason, outcome.Signature)
		}
		if outcome.Balance != nil {
			return fmt.Sprintf("No transfer: %s (balance %s %s, %s)",
				outcome.Reason, outcome.Balance, unit.BaseName, unit.Format(outcome.Balance))
		}
		return "No transfer: " + outcome.Reason
	case wallet.OutcomeFailed:
		msg := fmt.Sprintf("Transfer failed at %s: %v", outcome.Stage, outcome.Cause)
		if req != nil {
			msg = fmt.Sprintf("Transfer of %s %s from %s to %s failed at %s: %v",
				req.Amount, unit.BaseName, req.Sender, req.Receiver, outcome.Stage, outcome.Cause)
		}
		if outcome.Signature != "" {
			msg += ". Signature: " + outcome.Signature
		}
		return msg
	default:
		return outcome.String()
	}
}
