package wallet

import (
	"strings"

	"github.com/pkg/errors"
)

// VerifyAccounts checks the sender and receiver identifiers loaded at startup.
// Sweeping an account into itself would burn a fee every cycle without moving anything.
func VerifyAccounts(sender string, receiver string) error {
	if strings.TrimSpace(sender) == "" {
		return errors.Wrap(ErrInvalidKey, "sender account is empty")
	}

	if strings.TrimSpace(receiver) == "" {
		return errors.Wrap(ErrInvalidAccount, "receiver account is empty")
	}

	// base58 identifiers are case sensitive, hex addresses are not
	same := sender == receiver
	if strings.HasPrefix(sender, "0x") && strings.HasPrefix(receiver, "0x") {
		same = strings.EqualFold(sender, receiver)
	}

	if same {
		return errors.Wrap(ErrInvalidAccount, "receiver must differ from sender")
	}

	return nil
}
