package wallet

import "github.com/pkg/errors"

// Ledger error classes shared by the signer, the ledger adapters and the executor.
var (
	ErrUnreachable       = errors.New("ledger unreachable")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInvalidKey        = errors.New("invalid key material")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Confirmation causes.
var (
	ErrConfirmTimeout = errors.New("timeout")
	ErrCancelled      = errors.New("cancelled")
	ErrDropped        = errors.New("dropped")
)
