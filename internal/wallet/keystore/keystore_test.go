package keystore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/automated-fund-transfer/internal/test"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/keystore"
)

func TestLoadSolanaKeypair(t *testing.T) {
	path, expected := test.WriteSolanaKeypair(t)

	key, err := keystore.LoadKeyFile(path, keystore.KeyTypeSolana, "")
	require.NoError(t, err)
	assert.Equal(t, []byte(expected), key)

	address, err := keystore.Address(keystore.KeyTypeSolana, key)
	require.NoError(t, err)
	assert.Equal(t, expected.PublicKey().String(), address)
}

func TestLoadSolanaKeypairMismatchedPublicKey(t *testing.T) {
	path, key := test.WriteSolanaKeypair(t)

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	values[len(values)-1] ^= 0xff

	content, err := json.Marshal(values)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err = keystore.LoadKeyFile(path, keystore.KeyTypeSolana, "")
	require.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestLoadKeyFileErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))

	tests := []struct {
		name    string
		path    string
		keyType keystore.KeyType
	}{
		{name: "missing solana", path: filepath.Join(dir, "missing.json"), keyType: keystore.KeyTypeSolana},
		{name: "garbage solana", path: garbage, keyType: keystore.KeyTypeSolana},
		{name: "missing evm", path: filepath.Join(dir, "missing.key"), keyType: keystore.KeyTypeEVM},
		{name: "garbage evm", path: garbage, keyType: keystore.KeyTypeEVM},
		{name: "unknown type", path: garbage, keyType: keystore.KeyType("bitcoin")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := keystore.LoadKeyFile(tt.path, tt.keyType, "")
			require.ErrorIs(t, err, wallet.ErrInvalidKey)
		})
	}
}

func TestLoadEVMHexKey(t *testing.T) {
	path, expected := test.WriteEVMKey(t)

	key, err := keystore.LoadKeyFile(path, keystore.KeyTypeEVM, "")
	require.NoError(t, err)
	assert.Equal(t, expected, key)

	ecdsaKey, err := crypto.ToECDSA(expected)
	require.NoError(t, err)

	address, err := keystore.Address(keystore.KeyTypeEVM, key)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(), address)
}

func writeKeystore(t *testing.T, password string) (string, []byte) {
	t.Helper()

	ecdsaKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := crypto.FromECDSA(ecdsaKey)

	content, err := gethkeystore.EncryptKey(&gethkeystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(ecdsaKey.PublicKey),
		PrivateKey: ecdsaKey,
	}, password, gethkeystore.LightScryptN, gethkeystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path, raw
}

func TestLoadEVMKeystore(t *testing.T) {
	path, expected := writeKeystore(t, "correct horse")

	key, err := keystore.LoadKeyFile(path, keystore.KeyTypeEVM, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, expected, key)

	ecdsaKey, err := crypto.ToECDSA(expected)
	require.NoError(t, err)

	address, err := keystore.Address(keystore.KeyTypeEVM, key)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(), address)
}

func TestLoadEVMKeystoreWrongPassword(t *testing.T) {
	path, _ := writeKeystore(t, "correct horse")

	_, err := keystore.LoadKeyFile(path, keystore.KeyTypeEVM, "battery staple")
	require.ErrorIs(t, err, wallet.ErrInvalidKey)
	assert.Contains(t, err.Error(), "could not decrypt key with given password")
}

func TestLoadEVMKeystoreUnsupportedVersion(t *testing.T) {
	path, _ := writeKeystore(t, "secret")

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(content, &doc))
	doc["version"] = 1
	content, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err = keystore.LoadKeyFile(path, keystore.KeyTypeEVM, "secret")
	require.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestLoadEVMKeystoreMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 3, "crypto": `), 0o600))

	_, err := keystore.LoadKeyFile(path, keystore.KeyTypeEVM, "secret")
	require.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestAddressRejectsShortSolanaKey(t *testing.T) {
	_, err := keystore.Address(keystore.KeyTypeSolana, make([]byte, 32))
	require.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestManager(t *testing.T) {
	m := keystore.NewManager()
	assert.False(t, m.IsInitialized())
	assert.Nil(t, m.GetKey())
	require.Error(t, m.Initialize(keystore.KeyTypeSolana, nil))

	key := []byte{1, 2, 3, 4}
	require.NoError(t, m.Initialize(keystore.KeyTypeSolana, key))
	assert.True(t, m.IsInitialized())
	assert.Equal(t, keystore.KeyTypeSolana, m.KeyType())

	key[0] = 9
	got := m.GetKey()
	assert.Equal(t, []byte{1, 2, 3, 4}, got, "manager holds its own copy")

	got[1] = 9
	assert.Equal(t, []byte{1, 2, 3, 4}, m.GetKey(), "callers get a copy")

	m.Clear()
	assert.False(t, m.IsInitialized())
	assert.Nil(t, m.GetKey())
}
