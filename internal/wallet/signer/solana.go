package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/wallet"
)

// signSolanaTransfer builds a single-instruction system transfer paid by the sender and signs it
func (s *service) signSolanaTransfer(_ context.Context, req *SignSolanaRequest, privateKey []byte) (*SignSolanaResponse, error) {
	if req.Lamports == 0 {
		return nil, errors.New("transfer amount must be positive")
	}

	key := solana.PrivateKey(privateKey)
	from := key.PublicKey()

	if from.String() != s.address {
		return nil, errors.Wrap(wallet.ErrInvalidKey, "loaded key does not match sender address")
	}

	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return nil, errors.Wrapf(wallet.ErrInvalidAccount, "receiver %q: %v", req.To, err)
	}

	blockhash, err := solana.HashFromBase58(req.RecentBlockhash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid recent blockhash")
	}

	instruction := system.NewTransferInstruction(req.Lamports, from, to).Build()

	//nolint:varnamelen // tx is a common abbreviation for transaction
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transaction")
	}

	signatures, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(from) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(wallet.ErrInvalidKey, err.Error())
	}

	if len(signatures) == 0 {
		return nil, errors.Wrap(wallet.ErrInvalidKey, "transaction carries no signature")
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal transaction")
	}

	return &SignSolanaResponse{
		RawTransaction: raw,
		Signature:      signatures[0].String(),
	}, nil
}
