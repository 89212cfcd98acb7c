package signer

import (
	"context"

	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/keystore"
)

type service struct {
	keyManager keystore.Manager
	address    string
}

// NewService creates a new SignerService around an initialized key manager
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(keyManager keystore.Manager) (Service, error) {
	key := keyManager.GetKey()
	if key == nil {
		return nil, errors.Wrap(wallet.ErrInvalidKey, "key not initialized")
	}
	defer clear(key)

	address, err := keystore.Address(keyManager.KeyType(), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive sender address")
	}

	return &service{
		keyManager: keyManager,
		address:    address,
	}, nil
}

func (s *service) Address() string {
	return s.address
}

// SignSolanaTransfer signs a native SOL transfer with the loaded ed25519 key
func (s *service) SignSolanaTransfer(ctx context.Context, req *SignSolanaRequest) (*SignSolanaResponse, error) {
	privateKey, err := s.key(keystore.KeyTypeSolana)
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	return s.signSolanaTransfer(ctx, req, privateKey)
}

// SignEVMTransaction signs an EVM transaction (EIP-1559)
func (s *service) SignEVMTransaction(ctx context.Context, req *SignEVMRequest) (*SignEVMResponse, error) {
	privateKey, err := s.key(keystore.KeyTypeEVM)
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	return s.signEIP1559Transaction(ctx, req, privateKey)
}

// key returns a copy of the key material, the caller must clear it after use
func (s *service) key(want keystore.KeyType) ([]byte, error) {
	if got := s.keyManager.KeyType(); got != want {
		return nil, errors.Wrapf(wallet.ErrInvalidKey, "loaded key is %s, need %s", got, want)
	}

	privateKey := s.keyManager.GetKey()
	if privateKey == nil {
		return nil, errors.Wrap(wallet.ErrInvalidKey, "key not initialized")
	}

	return privateKey, nil
}
