// Package policy decides whether a cycle moves funds and how much.
package policy

import "math/big"

// ActionKind is the decision taken for one balance observation
type ActionKind int

const (
	NoOp ActionKind = iota
	Transfer
)

// Action is the result of Decide. Amount is set only for Transfer and is always positive.
type Action struct {
	Kind   ActionKind
	Amount *big.Int
}

// IsTransfer reports whether funds should be moved
func (a Action) IsTransfer() bool {
	return a.Kind == Transfer
}

// Decide computes the amount to sweep for a balance observation.
//
// Nothing happens while balance <= threshold. Otherwise the amount is
// min(balance - threshold, balance - minReserve), and an amount clamped to zero is a NoOp.
// All inputs must be non-negative and in the same unit.
func Decide(balance, threshold, minReserve *big.Int) Action {
	if balance.Cmp(threshold) <= 0 {
		return Action{Kind: NoOp}
	}

	amount := new(big.Int).Sub(balance, threshold)

	spendable := new(big.Int).Sub(balance, minReserve)
	if spendable.Cmp(amount) < 0 {
		amount = spendable
	}

	if amount.Sign() <= 0 {
		return Action{Kind: NoOp}
	}

	return Action{Kind: Transfer, Amount: amount}
}
