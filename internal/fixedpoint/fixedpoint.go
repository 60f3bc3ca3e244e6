// Package fixedpoint implements the deterministic 128-bit fixed-point
// arithmetic used for plan accounting: price computation, weighted-average
// update, and slippage-bounded minimum-output calculation.
//
// Prices are unsigned 128-bit values with 64 fractional bits (target units
// per source unit). Amounts are FixedDecimal8: unsigned 64-bit integers
// carrying 8 fractional decimal digits. All operations truncate toward zero;
// rounding never favors the counterparty.
package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/vaultloop/dca-engine/internal/types"
)

// Decimals is the local ledger precision.
const Decimals = 8

// MaxBps is the basis-point denominator: 10000 bps = 100%.
const MaxBps = 10000

// Amount is a FixedDecimal8 quantity in raw units (1.0 == 10^8).
type Amount uint64

// One is 1.0 in raw FixedDecimal8 units.
const One Amount = 100_000_000

func (a Amount) String() string {
	return fmt.Sprintf("%d.%08d", uint64(a)/uint64(One), uint64(a)%uint64(One))
}

// scaleFP is 2^64 as a uint256, the fixed-point scale of prices.
func scaleFP() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 64)
}

// PriceFP returns (amountOut << 64) / amountIn. Both amounts share the same
// 8-decimal scale, so the raw-unit ratio equals the decimal-value ratio.
func PriceFP(amountIn, amountOut Amount) (*uint256.Int, error) {
	if amountIn == 0 {
		return nil, fmt.Errorf("%w: price with zero input amount", types.ErrDivisionByZero)
	}
	num := new(uint256.Int).Lsh(uint256.NewInt(uint64(amountOut)), 64)
	return num.Div(num, uint256.NewInt(uint64(amountIn))), nil
}

// WeightedAverage folds one more execution into a running average price
// weighted by amount invested. The first execution (prevTotalIn == 0)
// returns the execution price unchanged. Truncates, never rounds up.
func WeightedAverage(prevAvgFP *uint256.Int, prevTotalIn, newIn, newOut Amount) (*uint256.Int, error) {
	newPrice, err := PriceFP(newIn, newOut)
	if err != nil {
		return nil, err
	}
	if prevTotalIn == 0 {
		return newPrice, nil
	}
	if prevAvgFP == nil {
		prevAvgFP = new(uint256.Int)
	}

	prevWeighted := new(uint256.Int).Mul(prevAvgFP, uint256.NewInt(uint64(prevTotalIn)))
	newWeighted := new(uint256.Int).Mul(newPrice, uint256.NewInt(uint64(newIn)))
	sum := new(uint256.Int).Add(prevWeighted, newWeighted)
	total := new(uint256.Int).Add(uint256.NewInt(uint64(prevTotalIn)), uint256.NewInt(uint64(newIn)))
	return sum.Div(sum, total), nil
}

// ExpectedOut returns amountIn priced at expectedPriceFP, truncated toward
// zero. A product exceeding the 64-bit amount range is a validation error,
// never a silently truncated value.
func ExpectedOut(amountIn Amount, expectedPriceFP *uint256.Int) (Amount, error) {
	out := new(uint256.Int).Mul(uint256.NewInt(uint64(amountIn)), expectedPriceFP)
	out.Rsh(out, 64)
	if !out.IsUint64() {
		return 0, fmt.Errorf("%w: expected output overflows amount range", types.ErrValidation)
	}
	return Amount(out.Uint64()), nil
}

// MinOutWithSlippage returns the minimum acceptable output for amountIn at
// expectedPriceFP with the given slippage tolerance.
// slippageBps > 10000 is a validation error.
func MinOutWithSlippage(amountIn Amount, expectedPriceFP *uint256.Int, slippageBps uint16) (Amount, error) {
	if slippageBps > MaxBps {
		return 0, fmt.Errorf("%w: slippage %d bps exceeds %d", types.ErrValidation, slippageBps, MaxBps)
	}
	expected, err := ExpectedOut(amountIn, expectedPriceFP)
	if err != nil {
		return 0, err
	}
	min := new(uint256.Int).Mul(uint256.NewInt(uint64(expected)), uint256.NewInt(uint64(MaxBps-slippageBps)))
	min.Div(min, uint256.NewInt(MaxBps))
	return Amount(min.Uint64()), nil
}
