package keystore

// KeyType selects how a signing key file is parsed
type KeyType string

const (
	// KeyTypeSolana is a solana-keygen JSON array of 64 bytes (ed25519 seed + public key)
	KeyTypeSolana KeyType = "solana"
	// KeyTypeEVM is either a hex encoded secp256k1 private key or an Ethereum keystore v3 JSON file
	KeyTypeEVM KeyType = "evm"
)

// Manager keeps the loaded signing key in memory
type Manager interface {
	// Initialize stores a copy of the key (called at startup)
	Initialize(keyType KeyType, key []byte) error

	// GetKey returns a copy of the key, nil when not initialized. Callers clear the copy after use.
	GetKey() []byte

	// KeyType returns the type given to Initialize
	KeyType() KeyType

	// IsInitialized checks if a key is loaded
	IsInitialized() bool

	// Clear wipes the key from memory
	Clear()
}
