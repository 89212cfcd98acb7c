package ledger

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/signer"
)

// nativeTransferGas is the fixed gas cost of a plain value transfer
const nativeTransferGas uint64 = 21000

type evmClient struct {
	rpc     *EVMRPC
	signer  signer.Service
	chainID int64
}

// NewEVMClient creates an EVM ledger client. A chainID of 0 is resolved from the node.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewEVMClient(ctx context.Context, urls []string, chainID int64, signerService signer.Service) (Client, error) {
	rpcClient, err := NewEVMRPC(urls)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create EVM RPC client")
	}

	if chainID == 0 {
		id, err := rpcClient.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get chain ID: %v", err)
		}
		chainID = id.Int64()
		log.Info().Int64("chain_id", chainID).Msg("Resolved chain ID from node")
	}

	return &evmClient{
		rpc:     rpcClient,
		signer:  signerService,
		chainID: chainID,
	}, nil
}

func (c *evmClient) Unit() wallet.Unit {
	return wallet.UnitEther
}

func (c *evmClient) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, errors.Wrapf(wallet.ErrInvalidAccount, "%q is not a hex address", account)
	}

	balance, err := c.rpc.BalanceAt(ctx, common.HexToAddress(account), finalizedBlock())
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get balance: %v", err)
	}

	return balance, nil
}

// MinimumReserve is the worst-case fee of one native transfer at the current base fee
func (c *evmClient) MinimumReserve(ctx context.Context) (*big.Int, error) {
	maxFee, _, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	return new(big.Int).Mul(maxFee, new(big.Int).SetUint64(nativeTransferGas)), nil
}

func (c *evmClient) BuildAndSign(ctx context.Context, req *wallet.Request) (*SignedTransaction, error) {
	if req == nil || req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("invalid transfer request")
	}

	if !strings.EqualFold(req.Sender, c.signer.Address()) {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "sender %s is not the loaded key", req.Sender)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, common.HexToAddress(req.Sender))
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get nonce: %v", err)
	}

	maxFee, tip, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.signer.SignEVMTransaction(ctx, &signer.SignEVMRequest{
		ChainID:              c.chainID,
		To:                   req.Receiver,
		Value:                req.Amount.String(),
		GasLimit:             nativeTransferGas,
		MaxFeePerGas:         maxFee.String(),
		MaxPriorityFeePerGas: tip.String(),
		Nonce:                nonce,
		FromAddress:          req.Sender,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	return &SignedTransaction{
		Signature: resp.TxHash,
		Raw:       resp.RawTransaction,
		Nonce:     nonce,
	}, nil
}

func (c *evmClient) Submit(ctx context.Context, signed *SignedTransaction) (*Handle, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed.Raw); err != nil {
		return nil, Permanent(errors.Wrap(err, "failed to decode signed transaction"))
	}

	if err := c.rpc.SendTransaction(ctx, tx); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already known") {
			return HandleFor(signed), nil
		}
		return nil, classifyEVMError(err)
	}

	return HandleFor(signed), nil
}

func (c *evmClient) PollStatus(ctx context.Context, handle *Handle) (*TxStatus, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(handle.Signature))
	if errors.Is(err, ethereum.NotFound) {
		return c.unminedStatus(ctx, handle)
	}
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get receipt: %v", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &TxStatus{Status: StatusDropped, Detail: "transaction reverted"}, nil
	}

	finalized, err := c.rpc.HeaderByNumber(ctx, finalizedBlock())
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get finalized header: %v", err)
	}

	if receipt.BlockNumber != nil && receipt.BlockNumber.Cmp(finalized.Number) <= 0 {
		return &TxStatus{Status: StatusFinalized}, nil
	}

	return &TxStatus{Status: StatusPending}, nil
}

func (c *evmClient) Close() {
	c.rpc.Close()
}

// unminedStatus reports dropped once another transaction consumed the nonce
func (c *evmClient) unminedStatus(ctx context.Context, handle *Handle) (*TxStatus, error) {
	mined, err := c.rpc.NonceAt(ctx, common.HexToAddress(c.signer.Address()))
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get nonce: %v", err)
	}

	if mined > handle.Nonce {
		return &TxStatus{Status: StatusDropped, Detail: "nonce consumed by another transaction"}, nil
	}

	return &TxStatus{Status: StatusPending}, nil
}

// fees returns the EIP-1559 fee cap (2 x base fee + tip) and the tip
func (c *evmClient) fees(ctx context.Context) (*big.Int, *big.Int, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(wallet.ErrUnreachable, "failed to get latest header: %v", err)
	}

	if header.BaseFee == nil {
		return nil, nil, errors.New("chain does not support EIP-1559")
	}

	tip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrapf(wallet.ErrUnreachable, "failed to suggest gas tip cap: %v", err)
	}

	const baseFeeMultiplier = 2
	maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(baseFeeMultiplier))
	maxFee.Add(maxFee, tip)

	return maxFee, tip, nil
}

func finalizedBlock() *big.Int {
	return big.NewInt(int64(gethrpc.FinalizedBlockNumber))
}

// classifyEVMError maps node responses onto transient and permanent classes
func classifyEVMError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ethereum.NotFound) {
		return Permanent(err)
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests {
			return Transient(errors.Wrap(wallet.ErrUnreachable, err.Error()))
		}
		return Permanent(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(errors.Wrap(wallet.ErrUnreachable, err.Error()))
	}

	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return Transient(err)
	}

	msg := strings.ToLower(rpcErr.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return Permanent(errors.Wrap(wallet.ErrInsufficientFunds, rpcErr.Error()))
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "underpriced"),
		strings.Contains(msg, "intrinsic gas too low"),
		strings.Contains(msg, "invalid sender"),
		strings.Contains(msg, "exceeds block gas limit"):
		return Permanent(errors.Wrap(err, "transaction rejected"))
	default:
		return Transient(err)
	}
}
