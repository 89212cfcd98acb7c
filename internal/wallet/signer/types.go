package signer

import "context"

// Service provides transaction signing functionality for the loaded sender key
type Service interface {
	// Address returns the sender account identifier derived from the key
	Address() string

	// SignSolanaTransfer signs a system program transfer
	SignSolanaTransfer(ctx context.Context, req *SignSolanaRequest) (*SignSolanaResponse, error)

	// SignEVMTransaction signs an EVM transaction (EIP-1559)
	SignEVMTransaction(ctx context.Context, req *SignEVMRequest) (*SignEVMResponse, error)
}

// SignSolanaRequest represents a request to sign a native SOL transfer
type SignSolanaRequest struct {
	To              string // Receiver public key (base58)
	Lamports        uint64 // Amount in lamports
	RecentBlockhash string // Blockhash the transaction is bound to (base58)
}

// SignSolanaResponse represents a signed Solana transaction
type SignSolanaResponse struct {
	RawTransaction []byte // Wire-encoded signed transaction
	Signature      string // Fee payer signature (base58), doubles as the transaction id
}

// SignEVMRequest represents a request to sign an EVM transaction
type SignEVMRequest struct {
	ChainID              int64  // Chain ID (1 for Ethereum mainnet, 137 for Polygon, etc.)
	To                   string // Recipient address (hex string with 0x prefix)
	Value                string // Amount in wei (as string to avoid precision loss)
	GasLimit             uint64 // Gas limit
	MaxFeePerGas         string // Max fee per gas (EIP-1559, in wei, as string)
	MaxPriorityFeePerGas string // Max priority fee per gas (EIP-1559, in wei, as string)
	Nonce                uint64 // Transaction nonce
	Data                 []byte // Transaction data (for contract calls)
	FromAddress          string // Address to sign from (hex string with 0x prefix)
}

// SignEVMResponse represents a signed EVM transaction
type SignEVMResponse struct {
	RawTransaction []byte // RLP-encoded signed transaction
	TxHash         string // Transaction hash (hex string with 0x prefix)
}
