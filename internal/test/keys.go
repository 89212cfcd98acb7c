package test

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// WriteSolanaKeypair writes a fresh keypair in solana-keygen format and returns its path and public key
func WriteSolanaKeypair(t *testing.T) (string, solana.PrivateKey) {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	// solana-keygen stores the 64 bytes as a JSON array of numbers
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}

	content, err := json.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path, key
}

// WriteEVMKey writes a fresh secp256k1 key as 0x-prefixed hex and returns its path and raw bytes
func WriteEVMKey(t *testing.T) (string, []byte) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw := crypto.FromECDSA(key)
	path := filepath.Join(t.TempDir(), "sender.key")
	require.NoError(t, os.WriteFile(path, []byte("0x"+hex.EncodeToString(raw)+"\n"), 0o600))

	return path, raw
}
