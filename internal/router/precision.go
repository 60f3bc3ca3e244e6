package router

import (
	"fmt"
	"math/big"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Precision reconciliation between the local FixedDecimal8 scale and a
// foreign token's own decimals. Amounts crossing the bridge are floored to
// the precision gap so a round-trip conversion is lossless; flooring never
// increases an amount, and converting a floored amount back never exceeds
// the original.

// precisionGap returns 10^|foreignDecimals - 8| as the unit the coarser side
// cannot subdivide.
func precisionGap(foreignDecimals uint8) *big.Int {
	diff := int(foreignDecimals) - fixedpoint.Decimals
	if diff < 0 {
		diff = -diff
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(diff)), nil)
}

// FloorToGap floors a local amount so it converts to foreign units and back
// without loss. For foreign decimals >= 8 every local amount already
// round-trips; below 8 the local amount is floored to a multiple of
// 10^(8 - foreignDecimals). A floored amount of zero fails with
// ErrPrecision before any transfer happens.
func FloorToGap(amount fixedpoint.Amount, foreignDecimals uint8) (fixedpoint.Amount, error) {
	floored := amount
	if foreignDecimals < fixedpoint.Decimals {
		gap := precisionGap(foreignDecimals).Uint64()
		floored = amount - amount%fixedpoint.Amount(gap)
	}
	if floored == 0 {
		return 0, fmt.Errorf("%w: %s floors to zero at %d foreign decimals",
			types.ErrPrecision, amount, foreignDecimals)
	}
	return floored, nil
}

// ToForeignUnits converts a gap-floored local amount to foreign integer
// units.
func ToForeignUnits(amount fixedpoint.Amount, foreignDecimals uint8) *big.Int {
	units := new(big.Int).SetUint64(uint64(amount))
	gap := precisionGap(foreignDecimals)
	if foreignDecimals >= fixedpoint.Decimals {
		return units.Mul(units, gap)
	}
	return units.Div(units, gap)
}

// FloorForeignToGap floors a foreign amount to a multiple of the gap so it
// survives the conversion back to local precision. Applied to swap outputs
// before bridging them home.
func FloorForeignToGap(units *big.Int, foreignDecimals uint8) *big.Int {
	if foreignDecimals <= fixedpoint.Decimals {
		return new(big.Int).Set(units)
	}
	gap := precisionGap(foreignDecimals)
	rem := new(big.Int).Mod(units, gap)
	return new(big.Int).Sub(units, rem)
}

// ToLocalAmount converts foreign integer units back to the local
// FixedDecimal8 scale, truncating any sub-gap dust.
func ToLocalAmount(units *big.Int, foreignDecimals uint8) (fixedpoint.Amount, error) {
	gap := precisionGap(foreignDecimals)
	local := new(big.Int).Set(units)
	if foreignDecimals >= fixedpoint.Decimals {
		local.Div(local, gap)
	} else {
		local.Mul(local, gap)
	}
	if !local.IsUint64() {
		return 0, fmt.Errorf("%w: foreign amount %s overflows local precision", types.ErrPrecision, units)
	}
	return fixedpoint.Amount(local.Uint64()), nil
}
