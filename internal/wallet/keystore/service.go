package keystore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"strings"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/wallet"
)

// LoadKeyFile reads signing key material from path. The password is only used for keystore v3 files.
// Every failure wraps wallet.ErrInvalidKey.
func LoadKeyFile(path string, keyType KeyType, password string) ([]byte, error) {
	switch keyType {
	case KeyTypeSolana:
		return loadSolanaKeygenFile(path)
	case KeyTypeEVM:
		return loadEVMKeyFile(path, password)
	default:
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "unsupported key type: %s", keyType)
	}
}

// Address returns the public account identifier for key material returned by LoadKeyFile
func Address(keyType KeyType, key []byte) (string, error) {
	switch keyType {
	case KeyTypeSolana:
		if len(key) != ed25519.PrivateKeySize {
			return "", errors.Wrap(wallet.ErrInvalidKey, "solana key must be 64 bytes")
		}
		return solana.PrivateKey(key).PublicKey().String(), nil
	case KeyTypeEVM:
		ecdsaKey, err := crypto.ToECDSA(key)
		if err != nil {
			return "", errors.Wrap(wallet.ErrInvalidKey, err.Error())
		}
		return crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(), nil
	default:
		return "", errors.Wrapf(wallet.ErrInvalidKey, "unsupported key type: %s", keyType)
	}
}

func loadSolanaKeygenFile(path string) ([]byte, error) {
	privateKey, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "reading keypair %s: %v", path, err)
	}

	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "keypair %s has %d bytes, expected %d", path, len(privateKey), ed25519.PrivateKeySize)
	}

	// the trailing 32 bytes must be the public half of the leading seed
	derived := ed25519.NewKeyFromSeed(privateKey[:ed25519.SeedSize])
	if !bytes.Equal(derived, privateKey) {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "keypair %s public key does not match its seed", path)
	}

	return []byte(privateKey), nil
}

func loadEVMKeyFile(path string, password string) ([]byte, error) {
	//nolint:gosec // path comes from operator configuration
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "reading key file %s: %v", path, err)
	}

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		decrypted, err := gethkeystore.DecryptKey(trimmed, password)
		if err != nil {
			return nil, errors.Wrapf(wallet.ErrInvalidKey, "decrypting keystore %s: %v", path, err)
		}

		key := crypto.FromECDSA(decrypted.PrivateKey)
		// the manager keeps its own copy
		decrypted.PrivateKey.D.SetUint64(0)

		return key, nil
	}

	key, err := hex.DecodeString(strings.TrimPrefix(string(trimmed), "0x"))
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "decoding hex key %s: %v", path, err)
	}

	if _, err := crypto.ToECDSA(key); err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "key file %s holds an invalid key: %v", path, err)
	}

	return key, nil
}
