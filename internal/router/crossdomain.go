package router

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/assets"
	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// CallResult is the outcome of one foreign-environment call.
type CallResult struct {
	Ok         bool
	ReturnData []byte
	Error      string
}

// BridgeAdapter moves value between the native ledger and the foreign
// execution environment, and relays calls into it. BridgeIn and BridgeOut
// return any advanced-but-unused portion of the fee payment so it can go
// back to its source.
type BridgeAdapter interface {
	BridgeIn(ctx context.Context, v capability.Value, fee capability.Value) (leftoverFee capability.Value, err error)
	BridgeOut(ctx context.Context, asset types.AssetID, amount fixedpoint.Amount, fee capability.Value) (out capability.Value, leftoverFee capability.Value, err error)
	Call(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (CallResult, error)
	DryCall(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (CallResult, error)
}

// CrossDomainConfig addresses the foreign-side contracts the router talks
// to. Recipient is the delegated execution account receiving swap outputs.
type CrossDomainConfig struct {
	PrimaryRouter   gcommon.Address
	FallbackRouter  gcommon.Address
	Quoter          gcommon.Address
	WrappedNative   gcommon.Address
	Recipient       gcommon.Address
	DefaultFeeTier  uint32
	SwapGasLimit    uint64
	ApproveGasLimit uint64
	BridgeFee       fixedpoint.Amount
	Deadline        time.Duration
}

// CrossDomainRouter executes swaps whose assets live in the foreign
// environment: bridge in, swap through the primary (or fallback) router,
// bridge the output home. Either the whole conversion lands or the input is
// bridged back; no partial transfer survives a failure.
type CrossDomainRouter struct {
	cfg       CrossDomainConfig
	registry  assets.Registry
	bridge    BridgeAdapter
	executor  capability.Token
	feeSource capability.AssetAccount
	logger    *logrus.Logger
	now       func() time.Time
}

func NewCrossDomainRouter(
	cfg CrossDomainConfig,
	registry assets.Registry,
	bridge BridgeAdapter,
	executor capability.Token,
	feeSource capability.AssetAccount,
	logger *logrus.Logger,
) *CrossDomainRouter {
	return &CrossDomainRouter{
		cfg:       cfg,
		registry:  registry,
		bridge:    bridge,
		executor:  executor,
		feeSource: feeSource,
		logger:    logger,
		now:       time.Now,
	}
}

// resolvePair maps both legs to their foreign representation.
func (r *CrossDomainRouter) resolvePair(source, target types.AssetID) (assets.ForeignAsset, assets.ForeignAsset, error) {
	src, ok := r.registry.Resolve(source)
	if !ok {
		return assets.ForeignAsset{}, assets.ForeignAsset{}, fmt.Errorf("%w: %s has no foreign address", types.ErrRouting, source)
	}
	dst, ok := r.registry.Resolve(target)
	if !ok {
		return assets.ForeignAsset{}, assets.ForeignAsset{}, fmt.Errorf("%w: %s has no foreign address", types.ErrRouting, target)
	}
	return src, dst, nil
}

// pathFor returns the traversal tokens and fee tiers for a pair. The native
// coin enters the path through its wrapped form.
func (r *CrossDomainRouter) pathFor(src, dst assets.ForeignAsset) ([]gcommon.Address, []uint32) {
	tokenIn := src.Address
	if src.Native {
		tokenIn = r.cfg.WrappedNative
	}
	tokenOut := dst.Address
	if dst.Native {
		tokenOut = r.cfg.WrappedNative
	}
	return []gcommon.Address{tokenIn, tokenOut}, []uint32{r.cfg.DefaultFeeTier}
}

func (r *CrossDomainRouter) Quote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (Quote, error) {
	if slippageBps > fixedpoint.MaxBps {
		return Quote{}, fmt.Errorf("%w: slippage %d bps exceeds %d", types.ErrValidation, slippageBps, fixedpoint.MaxBps)
	}
	src, dst, err := r.resolvePair(source, target)
	if err != nil {
		return Quote{}, err
	}
	flooredIn, err := FloorToGap(amountIn, src.Decimals)
	if err != nil {
		return Quote{}, err
	}

	tokens, fees := r.pathFor(src, dst)
	path, err := EncodePath(tokens, fees)
	if err != nil {
		return Quote{}, err
	}
	data, err := packQuoteExactInput(path, ToForeignUnits(flooredIn, src.Decimals))
	if err != nil {
		return Quote{}, err
	}

	result, err := r.bridge.DryCall(ctx, r.cfg.Quoter, data, r.cfg.SwapGasLimit, nil)
	if err != nil || !result.Ok {
		// Quoter unavailable: conservative 1:1 preview, flagged so nothing
		// downstream uses it to bound an execution.
		r.logger.WithFields(logrus.Fields{
			"source": source,
			"target": target,
		}).Warn("quoter dry-call failed, returning conservative estimate")
		return Quote{
			AmountIn:    flooredIn,
			ExpectedOut: flooredIn,
			MinOut:      0,
			SlippageBps: slippageBps,
			Estimated:   true,
		}, nil
	}

	foreignOut, err := unpackQuoteOutput(result.ReturnData)
	if err != nil {
		return Quote{}, err
	}
	localOut, err := ToLocalAmount(FloorForeignToGap(foreignOut, dst.Decimals), dst.Decimals)
	if err != nil {
		return Quote{}, err
	}

	priceFP, err := fixedpoint.PriceFP(flooredIn, localOut)
	if err != nil {
		return Quote{}, err
	}
	minOut, err := fixedpoint.MinOutWithSlippage(flooredIn, priceFP, slippageBps)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountIn:    flooredIn,
		ExpectedOut: localOut,
		MinOut:      minOut,
		SlippageBps: slippageBps,
	}, nil
}

func (r *CrossDomainRouter) Execute(ctx context.Context, in capability.Value, target types.AssetID, q Quote) (capability.Value, error) {
	if err := r.executor.Check(); err != nil {
		return capability.Value{}, err
	}
	src, dst, err := r.resolvePair(in.Asset, target)
	if err != nil {
		return capability.Value{}, err
	}

	// Precision reconciliation happens before any transfer: an amount that
	// cannot round-trip the bridge must never leave the source account.
	flooredIn, err := FloorToGap(in.Amount, src.Decimals)
	if err != nil {
		return capability.Value{}, err
	}
	foreignIn := ToForeignUnits(flooredIn, src.Decimals)

	foreignMinOut := big.NewInt(0)
	if !q.Estimated && q.MinOut > 0 {
		minFloored, err := FloorToGap(q.MinOut, dst.Decimals)
		if err == nil {
			foreignMinOut = ToForeignUnits(minFloored, dst.Decimals)
		}
	}

	fee, err := r.feeSource.Withdraw(r.cfg.BridgeFee)
	if err != nil {
		return capability.Value{}, err
	}
	leftover, err := r.bridge.BridgeIn(ctx, capability.Value{Asset: in.Asset, Amount: flooredIn}, fee)
	if err != nil {
		r.refundFee(fee)
		return capability.Value{}, fmt.Errorf("%w: bridge in failed: %v", types.ErrSwapExecution, err)
	}
	r.refundFee(leftover)

	foreignOut, swapErr := r.swapForeign(ctx, src, dst, foreignIn, foreignMinOut)
	if swapErr != nil {
		// Unwind: the input value must come home before the error surfaces.
		// If the unwind itself fails the input sits foreign-side and the
		// caller must not restore the source balance.
		if rbErr := r.bridgeHome(ctx, in.Asset, flooredIn); rbErr != nil {
			r.logger.WithFields(logrus.Fields{
				"asset":  in.Asset,
				"amount": uint64(flooredIn),
			}).WithError(rbErr).Error("fail to bridge input back after swap failure")
			return capability.Value{}, fmt.Errorf("%w: input not recoverable after swap failure: %v", types.ErrStranded, rbErr)
		}
		return capability.Value{}, swapErr
	}

	// Past this point the input is spent. Any failure landing the output on
	// the native ledger leaves the value foreign-side, and bridging the
	// output home is exactly the step that failed, so there is no further
	// recovery to attempt here. Surface it as stranded.
	localOut, err := ToLocalAmount(FloorForeignToGap(foreignOut, dst.Decimals), dst.Decimals)
	if err != nil {
		return capability.Value{}, fmt.Errorf("%w: output not representable locally: %v", types.ErrStranded, err)
	}

	outFee, err := r.feeSource.Withdraw(r.cfg.BridgeFee)
	if err != nil {
		return capability.Value{}, fmt.Errorf("%w: cannot pay bridge-out fee: %v", types.ErrStranded, err)
	}
	out, leftover, err := r.bridge.BridgeOut(ctx, target, localOut, outFee)
	if err != nil {
		r.refundFee(outFee)
		return capability.Value{}, fmt.Errorf("%w: bridge out failed: %v", types.ErrStranded, err)
	}
	r.refundFee(leftover)

	r.logger.WithFields(logrus.Fields{
		"source":     in.Asset,
		"target":     target,
		"amount_in":  uint64(flooredIn),
		"amount_out": uint64(out.Amount),
	}).Info("cross-domain swap executed")
	return out, nil
}

// swapForeign runs the swap inside the foreign environment: wrap if the
// source is the native coin, approve, exact-input on the primary router,
// then the two-token fallback router if the primary reverts.
func (r *CrossDomainRouter) swapForeign(ctx context.Context, src, dst assets.ForeignAsset, amountIn, minOut *big.Int) (*big.Int, error) {
	tokens, fees := r.pathFor(src, dst)
	tokenIn, tokenOut := tokens[0], tokens[len(tokens)-1]

	if src.Native {
		data, err := packDeposit()
		if err != nil {
			return nil, err
		}
		result, err := r.bridge.Call(ctx, r.cfg.WrappedNative, data, r.cfg.ApproveGasLimit, amountIn)
		if err != nil {
			return nil, fmt.Errorf("%w: wrap call failed: %v", types.ErrSwapExecution, err)
		}
		if !result.Ok {
			return nil, fmt.Errorf("%w: wrap reverted: %s", types.ErrSwapExecution, result.Error)
		}
	}

	out, primaryErr := r.swapPrimary(ctx, tokens, fees, amountIn, minOut)
	if primaryErr == nil {
		return out, nil
	}
	r.logger.WithError(primaryErr).Warn("primary router failed, retrying via fallback router")

	out, fallbackErr := r.swapFallback(ctx, tokenIn, tokenOut, amountIn, minOut)
	if fallbackErr == nil {
		return out, nil
	}
	return nil, fmt.Errorf("%w: primary: %v; fallback: %v", types.ErrSwapExecution, primaryErr, fallbackErr)
}

func (r *CrossDomainRouter) swapPrimary(ctx context.Context, tokens []gcommon.Address, fees []uint32, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := r.approve(ctx, tokens[0], r.cfg.PrimaryRouter, amountIn); err != nil {
		return nil, err
	}
	path, err := EncodePath(tokens, fees)
	if err != nil {
		return nil, err
	}
	data, err := packExactInput(path, r.cfg.Recipient, amountIn, minOut)
	if err != nil {
		return nil, err
	}
	result, err := r.bridge.Call(ctx, r.cfg.PrimaryRouter, data, r.cfg.SwapGasLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("exactInput call failed: %w", err)
	}
	if !result.Ok {
		return nil, fmt.Errorf("exactInput reverted: %s", result.Error)
	}
	return unpackExactInputOutput(result.ReturnData)
}

func (r *CrossDomainRouter) swapFallback(ctx context.Context, tokenIn, tokenOut gcommon.Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := r.approve(ctx, tokenIn, r.cfg.FallbackRouter, amountIn); err != nil {
		return nil, err
	}
	deadline := big.NewInt(r.now().Add(r.cfg.Deadline).Unix())
	data, err := packSwapExactTokensForTokens(amountIn, minOut, []gcommon.Address{tokenIn, tokenOut}, r.cfg.Recipient, deadline)
	if err != nil {
		return nil, err
	}
	result, err := r.bridge.Call(ctx, r.cfg.FallbackRouter, data, r.cfg.SwapGasLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("swapExactTokensForTokens call failed: %w", err)
	}
	if !result.Ok {
		return nil, fmt.Errorf("swapExactTokensForTokens reverted: %s", result.Error)
	}
	return unpackSwapAmounts(result.ReturnData)
}

func (r *CrossDomainRouter) approve(ctx context.Context, token, spender gcommon.Address, amount *big.Int) (err error) {
	data, err := packApprove(spender, amount)
	if err != nil {
		return err
	}
	result, err := r.bridge.Call(ctx, token, data, r.cfg.ApproveGasLimit, nil)
	if err != nil {
		return fmt.Errorf("%w: approve call failed: %v", types.ErrSwapExecution, err)
	}
	if !result.Ok {
		return fmt.Errorf("%w: approve reverted: %s", types.ErrSwapExecution, result.Error)
	}
	return nil
}

// bridgeHome returns an already-bridged input to the native ledger after a
// failed swap.
func (r *CrossDomainRouter) bridgeHome(ctx context.Context, asset types.AssetID, amount fixedpoint.Amount) error {
	fee, err := r.feeSource.Withdraw(r.cfg.BridgeFee)
	if err != nil {
		return err
	}
	_, leftover, err := r.bridge.BridgeOut(ctx, asset, amount, fee)
	if err != nil {
		r.refundFee(fee)
		return err
	}
	r.refundFee(leftover)
	return nil
}

// refundFee sends an unused fee portion back where it came from; a fee that
// cannot be refunded is logged, never silently dropped.
func (r *CrossDomainRouter) refundFee(leftover capability.Value) {
	if leftover.Amount == 0 {
		return
	}
	if err := r.feeSource.Deposit(leftover); err != nil {
		r.logger.WithFields(logrus.Fields{
			"asset":  leftover.Asset,
			"amount": uint64(leftover.Amount),
		}).WithError(err).Error("fail to return unused bridging fee")
	}
}
