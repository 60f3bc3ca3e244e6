package router

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Exchange is the native ledger's swap primitive for pairs that never leave
// the local domain. Swap either converts the whole input at or above minOut
// or fails with no partial effect.
type Exchange interface {
	Rate(ctx context.Context, source, target types.AssetID) (*uint256.Int, error)
	Swap(ctx context.Context, in capability.Value, target types.AssetID, minOut fixedpoint.Amount) (capability.Value, error)
}

// SameDomainRouter routes pairs whose both legs live on the local ledger.
type SameDomainRouter struct {
	exchange Exchange
	logger   *logrus.Logger
}

func NewSameDomainRouter(exchange Exchange, logger *logrus.Logger) *SameDomainRouter {
	return &SameDomainRouter{exchange: exchange, logger: logger}
}

func (r *SameDomainRouter) Quote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (Quote, error) {
	rate, err := r.exchange.Rate(ctx, source, target)
	if err != nil {
		return Quote{}, fmt.Errorf("fail to get exchange rate for %s/%s: %w", source, target, err)
	}
	expected, err := fixedpoint.ExpectedOut(amountIn, rate)
	if err != nil {
		return Quote{}, err
	}
	minOut, err := fixedpoint.MinOutWithSlippage(amountIn, rate, slippageBps)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountIn:    amountIn,
		ExpectedOut: expected,
		MinOut:      minOut,
		SlippageBps: slippageBps,
	}, nil
}

func (r *SameDomainRouter) Execute(ctx context.Context, in capability.Value, target types.AssetID, q Quote) (capability.Value, error) {
	minOut := q.MinOut
	if q.Estimated {
		// Estimated quotes preview only; they never bound execution.
		minOut = 0
	}
	out, err := r.exchange.Swap(ctx, in, target, minOut)
	if err != nil {
		return capability.Value{}, fmt.Errorf("%w: %s/%s exchange reverted: %v",
			types.ErrSwapExecution, in.Asset, target, err)
	}
	r.logger.WithFields(logrus.Fields{
		"source":     in.Asset,
		"target":     target,
		"amount_in":  uint64(in.Amount),
		"amount_out": uint64(out.Amount),
	}).Info("same-domain swap executed")
	return out, nil
}
