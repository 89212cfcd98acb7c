package wallet

import (
	"fmt"
	"math/big"
)

// Stage identifies where in a cycle an outcome was decided
type Stage string

const (
	StageObserve Stage = "observe"
	StageSigning Stage = "signing"
	StageSubmit  Stage = "submit"
	StageConfirm Stage = "confirm"
)

// OutcomeKind tags an Outcome
type OutcomeKind string

const (
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeSubmitted OutcomeKind = "submitted"
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeFailed    OutcomeKind = "failed"
)

const (
	// ReasonBelowThreshold is used when the observed balance leaves nothing to move
	ReasonBelowThreshold = "below threshold"
	// ReasonDryRun is used when a transfer was built and signed but never submitted
	ReasonDryRun = "dry run"
)

// Request is a single value transfer, constructed fresh for each cycle.
// Sender is the public identifier of the signing key held by the signer.
type Request struct {
	Sender   string
	Receiver string
	Amount   *big.Int // Amount in the ledger's smallest unit
}

// Outcome is the tagged result of one cycle. It is handed to the notifier and never persisted.
type Outcome struct {
	Kind      OutcomeKind
	Reason    string // set for OutcomeSkipped
	Signature string // set for OutcomeSubmitted and OutcomeConfirmed, and for confirm failures
	Stage     Stage  // set for OutcomeFailed
	Cause     error  // set for OutcomeFailed

	// Request is nil when the cycle never got as far as building a transfer
	Request *Request
	// Balance is the observed sender balance, nil when the read failed
	Balance *big.Int
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func Submitted(signature string) Outcome {
	return Outcome{Kind: OutcomeSubmitted, Signature: signature}
}

func Confirmed(signature string) Outcome {
	return Outcome{Kind: OutcomeConfirmed, Signature: signature}
}

func Failed(stage Stage, cause error) Outcome {
	return Outcome{Kind: OutcomeFailed, Stage: stage, Cause: cause}
}

// WithRequest returns a copy of the outcome carrying the transfer request
func (o Outcome) WithRequest(req *Request) Outcome {
	o.Request = req
	return o
}

// WithBalance returns a copy of the outcome carrying the observed balance
func (o Outcome) WithBalance(balance *big.Int) Outcome {
	o.Balance = balance
	return o
}

// WithSignature returns a copy of the outcome carrying a transaction signature
func (o Outcome) WithSignature(signature string) Outcome {
	o.Signature = signature
	return o
}

// IsFailure reports whether the outcome is a failure at any stage
func (o Outcome) IsFailure() bool {
	return o.Kind == OutcomeFailed
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSkipped:
		return fmt.Sprintf("skipped: %s", o.Reason)
	case OutcomeSubmitted:
		return fmt.Sprintf("submitted: %s", o.Signature)
	case OutcomeConfirmed:
		return fmt.Sprintf("confirmed: %s", o.Signature)
	case OutcomeFailed:
		return fmt.Sprintf("failed at %s: %v", o.Stage, o.Cause)
	default:
		return string(o.Kind)
	}
}
