// Package router implements the swap dispatch strategies: a same-domain
// router over the native exchange primitive, and a cross-domain router that
// moves value through a bridge adapter into a second execution environment
// with its own precision and call ABI.
package router

import (
	"context"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Quote is a preview of a swap's outcome. Estimated quotes come from the
// conservative fallback when the quoting entry point is unavailable; they
// serve previews only and never bound an execution.
type Quote struct {
	// AmountIn is the input the quote covers. Cross-domain quotes floor it
	// to the foreign precision gap; callers should transfer exactly this.
	AmountIn    fixedpoint.Amount
	ExpectedOut fixedpoint.Amount
	MinOut      fixedpoint.Amount
	SlippageBps uint16
	Estimated   bool
}

// SwapRouter converts value from one asset to another. Execute consumes the
// input value and returns the output value; on failure no partial transfer
// remains and the caller still holds the input.
type SwapRouter interface {
	Quote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (Quote, error)
	Execute(ctx context.Context, in capability.Value, target types.AssetID, q Quote) (capability.Value, error)
}
