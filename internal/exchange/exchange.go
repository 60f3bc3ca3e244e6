// Package exchange implements the local ledger's swap primitive for pairs
// that never leave the domain.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

type pairKey struct {
	source types.AssetID
	target types.AssetID
}

// RateExchange converts at operator-configured rates. It backs same-domain
// routing until an adapter over the on-ledger DEX replaces it; rates can be
// updated at runtime without restarting.
type RateExchange struct {
	mu    sync.RWMutex
	rates map[pairKey]*uint256.Int
}

func NewRateExchange() *RateExchange {
	return &RateExchange{rates: make(map[pairKey]*uint256.Int)}
}

// SetRate fixes the price for one direction of a pair. amountOut is the
// target value received for amountIn of source.
func (e *RateExchange) SetRate(source, target types.AssetID, amountIn, amountOut fixedpoint.Amount) error {
	rate, err := fixedpoint.PriceFP(amountIn, amountOut)
	if err != nil {
		return fmt.Errorf("fail to derive rate for %s/%s: %w", source, target, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[pairKey{source, target}] = rate
	return nil
}

func (e *RateExchange) Rate(_ context.Context, source, target types.AssetID) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rate, ok := e.rates[pairKey{source, target}]
	if !ok {
		return nil, fmt.Errorf("%w: no rate for %s/%s", types.ErrRouting, source, target)
	}
	return new(uint256.Int).Set(rate), nil
}

func (e *RateExchange) Swap(ctx context.Context, in capability.Value, target types.AssetID, minOut fixedpoint.Amount) (capability.Value, error) {
	rate, err := e.Rate(ctx, in.Asset, target)
	if err != nil {
		return capability.Value{}, err
	}
	out, err := fixedpoint.ExpectedOut(in.Amount, rate)
	if err != nil {
		return capability.Value{}, err
	}
	if out < minOut {
		return capability.Value{}, fmt.Errorf("output %s below minimum %s", out, minOut)
	}
	return capability.Value{Asset: target, Amount: out}, nil
}
