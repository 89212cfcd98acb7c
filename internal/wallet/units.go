package wallet

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Unit describes a ledger's native asset and the precision of its smallest unit
type Unit struct {
	Symbol   string // e.g. SOL
	BaseName string // e.g. Lamports
	Decimals int32
}

var (
	// UnitSOL is one SOL = 1_000_000_000 lamports
	UnitSOL = Unit{Symbol: "SOL", BaseName: "Lamports", Decimals: 9}
	// UnitEther is one ETH = 10^18 wei
	UnitEther = Unit{Symbol: "ETH", BaseName: "Wei", Decimals: 18}
)

// ToBaseUnits converts a whole-unit quantity (e.g. 7.5 SOL) to the smallest unit, rounding half away from zero.
// Negative inputs clamp to zero.
func (u Unit) ToBaseUnits(whole float64) *big.Int {
	d := decimal.NewFromFloat(whole).Shift(u.Decimals).Round(0)
	if d.Sign() <= 0 {
		return big.NewInt(0)
	}

	return d.BigInt()
}

// FromBaseUnits converts a smallest-unit quantity back to whole units
func (u Unit) FromBaseUnits(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(amount, -u.Decimals)
}

// Format renders a smallest-unit quantity as "<whole> <symbol>"
func (u Unit) Format(amount *big.Int) string {
	return u.FromBaseUnits(amount).String() + " " + u.Symbol
}
