package ledger

import (
	"context"
	"math/big"

	"github/chapool/automated-fund-transfer/internal/wallet"
)

// Client is the ledger capability consumed by the transfer cycle.
//
// Errors returned by Submit are classified with Transient/Permanent, the other methods wrap the
// wallet error classes (wallet.ErrUnreachable, wallet.ErrInvalidAccount, wallet.ErrInvalidKey,
// wallet.ErrInsufficientFunds).
type Client interface {
	// Unit describes the native asset amounts are expressed in
	Unit() wallet.Unit

	// GetBalance reads the finalized balance of account in the smallest unit
	GetBalance(ctx context.Context, account string) (*big.Int, error)

	// MinimumReserve is the balance the sender must keep after paying for one transfer
	MinimumReserve(ctx context.Context) (*big.Int, error)

	// BuildAndSign constructs the transfer and signs it with the sender key
	BuildAndSign(ctx context.Context, req *wallet.Request) (*SignedTransaction, error)

	// Submit sends a signed transaction. Submitting the same signed transaction twice is safe.
	Submit(ctx context.Context, tx *SignedTransaction) (*Handle, error)

	// PollStatus reports the current state of a submitted transaction
	PollStatus(ctx context.Context, handle *Handle) (*TxStatus, error)

	// Close releases network resources
	Close()
}

// SignedTransaction is a wire-ready transaction.
type SignedTransaction struct {
	Signature string // transaction id (base58 signature on Solana, hash on EVM)
	Raw       []byte

	// LastValidBlockHeight bounds the lifetime of a Solana transaction
	LastValidBlockHeight uint64
	// Nonce of an EVM transaction
	Nonce uint64
}

// Handle identifies a submitted transaction for status polling
type Handle struct {
	Signature            string
	LastValidBlockHeight uint64
	Nonce                uint64
}

// HandleFor returns the polling handle for a signed transaction
func HandleFor(tx *SignedTransaction) *Handle {
	return &Handle{
		Signature:            tx.Signature,
		LastValidBlockHeight: tx.LastValidBlockHeight,
		Nonce:                tx.Nonce,
	}
}

// Status of a submitted transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusFinalized Status = "finalized"
	StatusDropped   Status = "dropped"
)

// TxStatus is the result of one status poll
type TxStatus struct {
	Status Status
	Detail string // why a transaction was dropped, if known
}
