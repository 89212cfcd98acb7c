package ledger_test

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/automated-fund-transfer/internal/test"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/keystore"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/signer"
)

const (
	testBlockhash            = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"
	testLastValidBlockHeight = 150
)

func newSolanaLedger(t *testing.T, urls ...string) (ledger.Client, signer.Service) {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	m := keystore.NewManager()
	require.NoError(t, m.Initialize(keystore.KeyTypeSolana, key))

	s, err := signer.NewService(m)
	require.NoError(t, err)

	client, err := ledger.NewSolanaClient(urls, s)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, s
}

func withContext(value any) map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": 321},
		"value":   value,
	}
}

func solanaNode(t *testing.T) *test.RPCNode {
	t.Helper()

	node := test.NewRPCNode(t)
	node.Result("getLatestBlockhash", withContext(map[string]any{
		"blockhash":            testBlockhash,
		"lastValidBlockHeight": testLastValidBlockHeight,
	}))

	return node
}

func solanaTransfer(s signer.Service) *wallet.Request {
	return &wallet.Request{
		Sender:   s.Address(),
		Receiver: test.TestReceiver,
		Amount:   big.NewInt(1_500_000_000),
	}
}

func signSolanaTransfer(t *testing.T, client ledger.Client, s signer.Service) *ledger.SignedTransaction {
	t.Helper()

	signed, err := client.BuildAndSign(t.Context(), solanaTransfer(s))
	require.NoError(t, err)

	return signed
}

func TestSolanaGetBalance(t *testing.T) {
	node := solanaNode(t)
	node.Result("getBalance", withContext(5_000_000_000))
	client, _ := newSolanaLedger(t, node.URL())

	balance, err := client.GetBalance(t.Context(), test.TestReceiver)
	require.NoError(t, err)
	assert.Equal(t, "5000000000", balance.String())
	assert.Equal(t, wallet.UnitSOL, client.Unit())

	var account string
	node.RequireParam(t, "getBalance", 0, &account)
	assert.Equal(t, test.TestReceiver, account)

	var opts map[string]any
	node.RequireParam(t, "getBalance", 1, &opts)
	assert.Equal(t, "finalized", opts["commitment"])

	_, err = client.GetBalance(t.Context(), "not-base58!")
	require.ErrorIs(t, err, wallet.ErrInvalidAccount)
}

func TestSolanaGetBalanceUnreachable(t *testing.T) {
	node := solanaNode(t)
	node.Fail("getBalance", -32005, "Node is unhealthy", map[string]any{"numSlotsBehind": 42})
	client, _ := newSolanaLedger(t, node.URL())

	_, err := client.GetBalance(t.Context(), test.TestReceiver)
	require.ErrorIs(t, err, wallet.ErrUnreachable)
	assert.Contains(t, err.Error(), "rpc -32005: Node is unhealthy")
	assert.NotContains(t, err.Error(), "jsonrpc.RPCError")
}

func TestSolanaMinimumReserve(t *testing.T) {
	node := solanaNode(t)
	node.Result("getMinimumBalanceForRentExemption", 890_880)
	client, _ := newSolanaLedger(t, node.URL())

	reserve, err := client.MinimumReserve(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "895880", reserve.String(), "rent exemption plus one signature fee")

	var size int
	node.RequireParam(t, "getMinimumBalanceForRentExemption", 0, &size)
	assert.Zero(t, size)
}

func TestSolanaBuildAndSign(t *testing.T) {
	node := solanaNode(t)
	client, s := newSolanaLedger(t, node.URL())

	signed := signSolanaTransfer(t, client, s)
	assert.Equal(t, uint64(testLastValidBlockHeight), signed.LastValidBlockHeight)

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed.Raw))
	require.NoError(t, err)
	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash.String())
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, signed.Signature, tx.Signatures[0].String())

	t.Run("foreign sender", func(t *testing.T) {
		req := solanaTransfer(s)
		req.Sender = test.TestReceiver

		_, err := client.BuildAndSign(t.Context(), req)
		require.ErrorIs(t, err, wallet.ErrInvalidKey)
	})

	t.Run("invalid amount", func(t *testing.T) {
		req := solanaTransfer(s)
		req.Amount = big.NewInt(0)

		_, err := client.BuildAndSign(t.Context(), req)
		require.Error(t, err)
	})
}

func TestSolanaSubmit(t *testing.T) {
	node := solanaNode(t)
	client, s := newSolanaLedger(t, node.URL())
	signed := signSolanaTransfer(t, client, s)

	node.Result("sendTransaction", signed.Signature)

	handle, err := client.Submit(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Signature, handle.Signature)
	assert.Equal(t, signed.LastValidBlockHeight, handle.LastValidBlockHeight)

	var encoded string
	node.RequireParam(t, "sendTransaction", 0, &encoded)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, signed.Raw, raw)

	var opts map[string]any
	node.RequireParam(t, "sendTransaction", 1, &opts)
	assert.Equal(t, "base64", opts["encoding"])
	assert.Equal(t, "finalized", opts["preflightCommitment"])
}

func TestSolanaSubmitRejections(t *testing.T) {
	tests := []struct {
		name      string
		fault     test.RPCFault
		accepted  bool
		transient bool
		is        error
	}{
		{
			name: "already processed",
			fault: test.RPCFault{
				Code:    -32002,
				Message: "Transaction simulation failed: This transaction has already been processed",
				Data:    map[string]any{"err": "AlreadyProcessed", "logs": []any{}},
			},
			accepted: true,
		},
		{
			name: "blockhash not found",
			fault: test.RPCFault{
				Code:    -32002,
				Message: "Transaction simulation failed: Blockhash not found",
				Data:    map[string]any{"err": "BlockhashNotFound", "logs": []any{}},
			},
			transient: true,
			is:        wallet.ErrUnreachable,
		},
		{
			name: "insufficient funds",
			fault: test.RPCFault{
				Code:    -32002,
				Message: "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.",
				Data:    map[string]any{"err": "AccountNotFound", "logs": []any{}},
			},
			is: wallet.ErrInsufficientFunds,
		},
		{
			name:  "signature length mismatch",
			fault: test.RPCFault{Code: -32013, Message: "Transaction signature length mismatch"},
		},
		{
			name:      "node unhealthy",
			fault:     test.RPCFault{Code: -32005, Message: "Node is unhealthy"},
			transient: true,
			is:        wallet.ErrUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := solanaNode(t)
			client, s := newSolanaLedger(t, node.URL())
			signed := signSolanaTransfer(t, client, s)

			node.Fail("sendTransaction", tt.fault.Code, tt.fault.Message, tt.fault.Data)

			handle, err := client.Submit(t.Context(), signed)
			if tt.accepted {
				require.NoError(t, err)
				assert.Equal(t, signed.Signature, handle.Signature)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.transient, ledger.IsTransient(err))
			if tt.is != nil {
				require.ErrorIs(t, err, tt.is)
			}
			assert.NotContains(t, err.Error(), "jsonrpc.RPCError")
		})
	}
}

func TestSolanaSubmitFailsOverWhenNodeLags(t *testing.T) {
	lagging := solanaNode(t)
	lagging.Fail("sendTransaction", -32002, "Transaction simulation failed: Blockhash not found",
		map[string]any{"err": "BlockhashNotFound"})
	current := solanaNode(t)

	client, s := newSolanaLedger(t, lagging.URL(), current.URL())
	signed := signSolanaTransfer(t, client, s)
	current.Result("sendTransaction", signed.Signature)

	handle, err := client.Submit(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Signature, handle.Signature)
	assert.Equal(t, 1, lagging.Calls("sendTransaction"))
	assert.Equal(t, 1, current.Calls("sendTransaction"))
}

func TestSolanaSubmitMalformedStaysOnEndpoint(t *testing.T) {
	primary := solanaNode(t)
	primary.Fail("sendTransaction", -32013, "Transaction signature length mismatch", nil)
	secondary := solanaNode(t)

	client, s := newSolanaLedger(t, primary.URL(), secondary.URL())
	signed := signSolanaTransfer(t, client, s)

	_, err := client.Submit(t.Context(), signed)
	require.Error(t, err)
	assert.False(t, ledger.IsTransient(err))
	assert.Zero(t, secondary.Calls("sendTransaction"), "a malformed transaction is not retried elsewhere")
}

func TestSolanaFailoverFromUnreachableEndpoint(t *testing.T) {
	node := solanaNode(t)
	node.Result("getBalance", withContext(42))
	client, _ := newSolanaLedger(t, test.UnreachableURL(t), node.URL())

	balance, err := client.GetBalance(t.Context(), test.TestReceiver)
	require.NoError(t, err)
	assert.Equal(t, "42", balance.String())

	_, err = client.GetBalance(t.Context(), test.TestReceiver)
	require.NoError(t, err)
	assert.Equal(t, 2, node.Calls("getBalance"), "the endpoint that answered stays current")
}

func TestSolanaAllEndpointsUnreachable(t *testing.T) {
	client, _ := newSolanaLedger(t, test.UnreachableURL(t), test.UnreachableURL(t))

	_, err := client.GetBalance(t.Context(), test.TestReceiver)
	require.ErrorIs(t, err, wallet.ErrUnreachable)
}

func signatureStatus(confirmation string, txErr any) map[string]any {
	return map[string]any{
		"slot":               1000,
		"confirmations":      nil,
		"err":                txErr,
		"confirmationStatus": confirmation,
	}
}

// searchesHistory reports whether a getSignatureStatuses request asked for the ledger history
func searchesHistory(params []json.RawMessage) bool {
	if len(params) < 2 {
		return false
	}

	var opts struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}
	if err := json.Unmarshal(params[1], &opts); err != nil {
		return false
	}

	return opts.SearchTransactionHistory
}

func TestSolanaPollStatus(t *testing.T) {
	tests := []struct {
		name     string
		cached   any
		history  any
		height   uint64
		expected ledger.Status
		detail   string
	}{
		{name: "finalized", cached: signatureStatus("finalized", nil), expected: ledger.StatusFinalized},
		{name: "confirmed", cached: signatureStatus("confirmed", nil), expected: ledger.StatusPending},
		{
			name:     "failed on chain",
			cached:   signatureStatus("finalized", map[string]any{"InstructionError": []any{0, "InsufficientFunds"}}),
			expected: ledger.StatusDropped,
			detail:   "transaction failed",
		},
		{name: "unknown within lifetime", height: testLastValidBlockHeight, expected: ledger.StatusPending},
		{
			name:     "unknown past lifetime",
			height:   testLastValidBlockHeight + 1,
			expected: ledger.StatusDropped,
			detail:   "blockhash expired",
		},
		{
			name:     "aged out of the status cache",
			history:  signatureStatus("finalized", nil),
			height:   testLastValidBlockHeight + 1,
			expected: ledger.StatusFinalized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := solanaNode(t)
			node.Result("getBlockHeight", tt.height)
			node.Handle("getSignatureStatuses", func(params []json.RawMessage) (any, *test.RPCFault) {
				if searchesHistory(params) {
					return withContext([]any{tt.history}), nil
				}
				return withContext([]any{tt.cached}), nil
			})
			client, s := newSolanaLedger(t, node.URL())
			signed := signSolanaTransfer(t, client, s)

			status, err := client.PollStatus(t.Context(), ledger.HandleFor(signed))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status.Status)
			assert.Contains(t, status.Detail, tt.detail)
		})
	}
}

func TestSolanaPollStatusSearchesHistoryOnlyWhenExpired(t *testing.T) {
	node := solanaNode(t)
	node.Result("getBlockHeight", testLastValidBlockHeight-10)
	node.Result("getSignatureStatuses", withContext([]any{nil}))
	client, s := newSolanaLedger(t, node.URL())
	signed := signSolanaTransfer(t, client, s)

	status, err := client.PollStatus(t.Context(), ledger.HandleFor(signed))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, status.Status)
	assert.Equal(t, 1, node.Calls("getSignatureStatuses"))
	assert.False(t, searchesHistory(node.Params("getSignatureStatuses")))

	node.Result("getBlockHeight", testLastValidBlockHeight+10)

	status, err = client.PollStatus(t.Context(), ledger.HandleFor(signed))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDropped, status.Status)
	assert.Equal(t, 3, node.Calls("getSignatureStatuses"))
	assert.True(t, searchesHistory(node.Params("getSignatureStatuses")))
}

func TestSolanaPollStatusWithoutLifetime(t *testing.T) {
	node := solanaNode(t)
	node.Result("getSignatureStatuses", withContext([]any{nil}))
	client, s := newSolanaLedger(t, node.URL())
	signed := signSolanaTransfer(t, client, s)

	handle := ledger.HandleFor(signed)
	handle.LastValidBlockHeight = 0

	status, err := client.PollStatus(t.Context(), handle)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, status.Status)
	assert.Zero(t, node.Calls("getBlockHeight"))
}

func TestSolanaPollStatusInvalidSignature(t *testing.T) {
	node := solanaNode(t)
	client, _ := newSolanaLedger(t, node.URL())

	_, err := client.PollStatus(t.Context(), &ledger.Handle{Signature: "not-a-signature"})
	require.Error(t, err)
	assert.Zero(t, node.Calls("getSignatureStatuses"))
}
