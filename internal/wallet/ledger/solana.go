package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/signer"
)

const (
	// lamportsPerSignature is the base fee of a single-signature transaction
	lamportsPerSignature uint64 = 5000

	// JSON-RPC error codes returned by Solana validators
	rpcCodeSendTransactionPreflight      = -32002
	rpcCodeSignatureVerificationFailure  = -32003
	rpcCodeNodeUnhealthy                 = -32005
	rpcCodePrecompileVerificationFailure = -32006
	rpcCodeSignatureLenMismatch          = -32013
	rpcCodeUnsupportedTransactionVersion = -32015
	rpcCodeMinContextSlotNotReached      = -32016
	rpcCodeInvalidParams                 = -32602

	// simulation errors carried in the data.err field of a preflight failure
	preflightErrBlockhashNotFound       = "BlockhashNotFound"
	preflightErrInsufficientFundsForFee = "InsufficientFundsForFee"
	preflightErrAccountNotFound         = "AccountNotFound"
	preflightErrAlreadyProcessed        = "AlreadyProcessed"

	messageInsufficient     = "insufficient"
	messageNoPriorCredit    = "no record of a prior credit"
	messageAlreadyProcessed = "already been processed"

	signatureStatusWithoutHistory   = false
	signatureStatusSearchingHistory = true
)

type solanaClient struct {
	rpc        *SolanaRPC
	signer     signer.Service
	commitment rpc.CommitmentType
}

// NewSolanaClient creates a Solana ledger client reading and confirming at finalized commitment
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewSolanaClient(urls []string, signerService signer.Service) (Client, error) {
	rpcClient, err := NewSolanaRPC(urls)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Solana RPC client")
	}

	return &solanaClient{
		rpc:        rpcClient,
		signer:     signerService,
		commitment: rpc.CommitmentFinalized,
	}, nil
}

func (c *solanaClient) Unit() wallet.Unit {
	return wallet.UnitSOL
}

func (c *solanaClient) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	pubkey, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidAccount, "%q: %v", account, err)
	}

	var balance uint64
	err = c.rpc.Do(ctx, func(client *rpc.Client) error {
		out, err := client.GetBalance(ctx, pubkey, c.commitment)
		if err != nil {
			return err
		}
		balance = out.Value
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get balance: %s", describeSolanaError(err))
	}

	return new(big.Int).SetUint64(balance), nil
}

// MinimumReserve is the rent-exempt minimum of a zero-data system account plus one signature fee
func (c *solanaClient) MinimumReserve(ctx context.Context) (*big.Int, error) {
	var rentExempt uint64
	err := c.rpc.Do(ctx, func(client *rpc.Client) error {
		lamports, err := client.GetMinimumBalanceForRentExemption(ctx, 0, c.commitment)
		if err != nil {
			return err
		}
		rentExempt = lamports
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get rent exemption minimum: %s", describeSolanaError(err))
	}

	return new(big.Int).SetUint64(rentExempt + lamportsPerSignature), nil
}

func (c *solanaClient) BuildAndSign(ctx context.Context, req *wallet.Request) (*SignedTransaction, error) {
	if req == nil || req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("invalid transfer request")
	}

	if !req.Amount.IsUint64() {
		return nil, errors.Wrapf(wallet.ErrInsufficientFunds, "amount %s exceeds lamport range", req.Amount)
	}

	if req.Sender != c.signer.Address() {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "sender %s is not the loaded keypair", req.Sender)
	}

	var latest *rpc.GetLatestBlockhashResult
	err := c.rpc.Do(ctx, func(client *rpc.Client) error {
		out, err := client.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		latest = out
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get recent blockhash: %s", describeSolanaError(err))
	}

	resp, err := c.signer.SignSolanaTransfer(ctx, &signer.SignSolanaRequest{
		To:              req.Receiver,
		Lamports:        req.Amount.Uint64(),
		RecentBlockhash: latest.Value.Blockhash.String(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transfer")
	}

	return &SignedTransaction{
		Signature:            resp.Signature,
		Raw:                  resp.RawTransaction,
		LastValidBlockHeight: latest.Value.LastValidBlockHeight,
	}, nil
}

func (c *solanaClient) Submit(ctx context.Context, tx *SignedTransaction) (*Handle, error) {
	var signature solana.Signature
	err := c.rpc.Do(ctx, func(client *rpc.Client) error {
		sig, err := client.SendRawTransactionWithOpts(ctx, tx.Raw, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: c.commitment,
		})
		if err != nil {
			return err
		}
		signature = sig
		return nil
	})
	if err != nil {
		if isAlreadyProcessed(err) {
			return HandleFor(tx), nil
		}
		return nil, classifySolanaError(err)
	}

	handle := HandleFor(tx)
	if !signature.IsZero() {
		handle.Signature = signature.String()
	}

	return handle, nil
}

func (c *solanaClient) PollStatus(ctx context.Context, handle *Handle) (*TxStatus, error) {
	sig, err := solana.SignatureFromBase58(handle.Signature)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid signature %q", handle.Signature)
	}

	status, err := c.signatureStatus(ctx, sig, signatureStatusWithoutHistory)
	if err != nil {
		return nil, err
	}

	if status == nil {
		return c.unknownSignatureStatus(ctx, sig, handle)
	}

	return statusOf(status), nil
}

func (c *solanaClient) Close() {
	c.rpc.Close()
}

// unknownSignatureStatus decides between pending and dropped for a signature missing from the status cache.
// Once the chain moved past the blockhash's last valid height the transaction can never land, unless it
// already did and aged out of the cache, so the ledger history is searched before calling it dropped.
func (c *solanaClient) unknownSignatureStatus(ctx context.Context, sig solana.Signature, handle *Handle) (*TxStatus, error) {
	if handle.LastValidBlockHeight == 0 {
		return &TxStatus{Status: StatusPending}, nil
	}

	var height uint64
	err := c.rpc.Do(ctx, func(client *rpc.Client) error {
		h, err := client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get block height: %s", describeSolanaError(err))
	}

	if height <= handle.LastValidBlockHeight {
		return &TxStatus{Status: StatusPending}, nil
	}

	status, err := c.signatureStatus(ctx, sig, signatureStatusSearchingHistory)
	if err != nil {
		return nil, err
	}

	if status != nil {
		return statusOf(status), nil
	}

	return &TxStatus{
		Status: StatusDropped,
		Detail: fmt.Sprintf("blockhash expired at height %d", handle.LastValidBlockHeight),
	}, nil
}

func (c *solanaClient) signatureStatus(
	ctx context.Context,
	sig solana.Signature,
	searchHistory bool,
) (*rpc.SignatureStatusesResult, error) {
	var status *rpc.SignatureStatusesResult
	err := c.rpc.Do(ctx, func(client *rpc.Client) error {
		out, err := client.GetSignatureStatuses(ctx, searchHistory, sig)
		if err != nil {
			return err
		}
		if len(out.Value) > 0 {
			status = out.Value[0]
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get signature status: %s", describeSolanaError(err))
	}

	return status, nil
}

func statusOf(status *rpc.SignatureStatusesResult) *TxStatus {
	if status.Err != nil {
		return &TxStatus{Status: StatusDropped, Detail: fmt.Sprintf("transaction failed: %v", status.Err)}
	}

	if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return &TxStatus{Status: StatusFinalized}
	}

	return &TxStatus{Status: StatusPending}
}

// classifySolanaError maps RPC failures onto transient and permanent classes
func classifySolanaError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		// transport level: connection refused, timeouts, HTTP 5xx
		return Transient(errors.Wrap(wallet.ErrUnreachable, err.Error()))
	}

	switch rpcErr.Code {
	case rpcCodeNodeUnhealthy, rpcCodeMinContextSlotNotReached:
		return Transient(errors.Wrapf(wallet.ErrUnreachable, "node unavailable: %s", describeRPCError(rpcErr)))
	case rpcCodeSendTransactionPreflight:
		switch preflightError(rpcErr) {
		case preflightErrBlockhashNotFound:
			// the node has not seen the blockhash yet, it lags behind the one that served it
			return Transient(errors.Wrapf(wallet.ErrUnreachable, "node behind: %s", describeRPCError(rpcErr)))
		case preflightErrInsufficientFundsForFee, preflightErrAccountNotFound:
			return Permanent(errors.Wrap(wallet.ErrInsufficientFunds, describeRPCError(rpcErr)))
		}
		if isInsufficientFunds(rpcErr) {
			return Permanent(errors.Wrap(wallet.ErrInsufficientFunds, describeRPCError(rpcErr)))
		}
		return Permanent(errors.Errorf("transaction rejected by preflight: %s", describeRPCError(rpcErr)))
	case rpcCodeSignatureVerificationFailure,
		rpcCodeSignatureLenMismatch,
		rpcCodePrecompileVerificationFailure,
		rpcCodeUnsupportedTransactionVersion,
		rpcCodeInvalidParams:
		return Permanent(errors.Errorf("malformed transaction: %s", describeRPCError(rpcErr)))
	default:
		return Transient(errors.New(describeRPCError(rpcErr)))
	}
}

// preflightError returns the simulation error name of a preflight failure, e.g. BlockhashNotFound.
// Instruction errors are objects and yield an empty string.
func preflightError(rpcErr *jsonrpc.RPCError) string {
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return ""
	}

	name, _ := data["err"].(string)
	return name
}

func isInsufficientFunds(rpcErr *jsonrpc.RPCError) bool {
	text := strings.ToLower(rpcErr.Message)
	return strings.Contains(text, messageInsufficient) || strings.Contains(text, messageNoPriorCredit)
}

func isAlreadyProcessed(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}

	return preflightError(rpcErr) == preflightErrAlreadyProcessed ||
		strings.Contains(strings.ToLower(rpcErr.Message), messageAlreadyProcessed)
}

// describeRPCError renders a node error on one line; RPCError.Error() is a multi-line dump
func describeRPCError(rpcErr *jsonrpc.RPCError) string {
	if name := preflightError(rpcErr); name != "" {
		return fmt.Sprintf("rpc %d: %s (%s)", rpcErr.Code, rpcErr.Message, name)
	}

	return fmt.Sprintf("rpc %d: %s", rpcErr.Code, rpcErr.Message)
}

func describeSolanaError(err error) string {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return describeRPCError(rpcErr)
	}

	return err.Error()
}
