package router

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vaultloop/dca-engine/internal/assets"
	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

var testConfig = CrossDomainConfig{
	PrimaryRouter:   gcommon.HexToAddress("0x0000000000000000000000000000000000000A01"),
	FallbackRouter:  gcommon.HexToAddress("0x0000000000000000000000000000000000000A02"),
	Quoter:          gcommon.HexToAddress("0x0000000000000000000000000000000000000A03"),
	WrappedNative:   gcommon.HexToAddress("0x0000000000000000000000000000000000000A04"),
	Recipient:       gcommon.HexToAddress("0x0000000000000000000000000000000000000A05"),
	DefaultFeeTier:  3000,
	SwapGasLimit:    400_000,
	ApproveGasLimit: 80_000,
	BridgeFee:       10_000_000, // 0.1
	Deadline:        5 * time.Minute,
}

type foreignCall struct {
	to    gcommon.Address
	data  []byte
	value *big.Int
}

// scriptedBridge is an in-memory BridgeAdapter whose foreign side answers
// from fixed scripts. A nil primaryOut or fallbackOut makes that router
// revert; a nil quoteOut fails the dry-call.
type scriptedBridge struct {
	cfg         CrossDomainConfig
	calls       []foreignCall
	bridgedIn   []capability.Value
	bridgedOut  []capability.Value
	primaryOut  *big.Int
	fallbackOut *big.Int
	quoteOut    *big.Int
	feeUsed     fixedpoint.Amount
	failIn      bool
	failOut     bool
}

func (b *scriptedBridge) leftover(fee capability.Value) capability.Value {
	used := b.feeUsed
	if used > fee.Amount {
		used = fee.Amount
	}
	return capability.Value{Asset: fee.Asset, Amount: fee.Amount - used}
}

func (b *scriptedBridge) BridgeIn(_ context.Context, v capability.Value, fee capability.Value) (capability.Value, error) {
	if b.failIn {
		return capability.Value{}, errBridgeDown
	}
	b.bridgedIn = append(b.bridgedIn, v)
	return b.leftover(fee), nil
}

func (b *scriptedBridge) BridgeOut(_ context.Context, asset types.AssetID, amount fixedpoint.Amount, fee capability.Value) (capability.Value, capability.Value, error) {
	if b.failOut {
		return capability.Value{}, capability.Value{}, errBridgeDown
	}
	out := capability.Value{Asset: asset, Amount: amount}
	b.bridgedOut = append(b.bridgedOut, out)
	return out, b.leftover(fee), nil
}

func (b *scriptedBridge) Call(_ context.Context, to gcommon.Address, data []byte, _ uint64, value *big.Int) (CallResult, error) {
	b.calls = append(b.calls, foreignCall{to: to, data: data, value: value})
	switch to {
	case b.cfg.PrimaryRouter:
		if b.primaryOut == nil {
			return CallResult{Ok: false, Error: "execution reverted"}, nil
		}
		return CallResult{Ok: true, ReturnData: encodeUint256(b.primaryOut)}, nil
	case b.cfg.FallbackRouter:
		if b.fallbackOut == nil {
			return CallResult{Ok: false, Error: "execution reverted"}, nil
		}
		return CallResult{Ok: true, ReturnData: encodeUint256Array(big.NewInt(0), b.fallbackOut)}, nil
	default:
		// ERC-20 approve or wrapped-native deposit.
		return CallResult{Ok: true, ReturnData: encodeUint256(big.NewInt(1))}, nil
	}
}

func (b *scriptedBridge) DryCall(_ context.Context, to gcommon.Address, data []byte, _ uint64, _ *big.Int) (CallResult, error) {
	if to != b.cfg.Quoter || b.quoteOut == nil {
		return CallResult{Ok: false, Error: "execution reverted"}, nil
	}
	return CallResult{Ok: true, ReturnData: encodeUint256(b.quoteOut)}, nil
}

var errBridgeDown = errDown{}

type errDown struct{}

func (errDown) Error() string { return "bridge unavailable" }

func encodeUint256(v *big.Int) []byte {
	return gcommon.LeftPadBytes(v.Bytes(), 32)
}

func encodeUint256Array(vs ...*big.Int) []byte {
	out := make([]byte, 0, 64+len(vs)*32)
	out = append(out, gcommon.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	out = append(out, gcommon.LeftPadBytes(big.NewInt(int64(len(vs))).Bytes(), 32)...)
	for _, v := range vs {
		out = append(out, gcommon.LeftPadBytes(v.Bytes(), 32)...)
	}
	return out
}

func testRegistry() *assets.StaticRegistry {
	return assets.NewStaticRegistry(map[types.AssetID]assets.ForeignAsset{
		assets.Flow: {
			Address:  gcommon.HexToAddress("0x0000000000000000000000000000000000000001"),
			Decimals: 18,
			Native:   true,
		},
		assets.USDCe: {
			Address:  gcommon.HexToAddress("0x0000000000000000000000000000000000000002"),
			Decimals: 6,
		},
		assets.WFlow: {
			Address:  gcommon.HexToAddress("0x0000000000000000000000000000000000000003"),
			Decimals: 18,
		},
	})
}

func newTestRouter(t *testing.T, bridge *scriptedBridge) (*CrossDomainRouter, *capability.LedgerAccount, *capability.StaticToken) {
	t.Helper()
	bridge.cfg = testConfig
	feeSource := capability.NewLedgerAccount(assets.Flow, 10*fixedpoint.One)
	executor := capability.NewStaticToken("delegated-executor")
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := NewCrossDomainRouter(testConfig, testRegistry(), bridge, executor, feeSource, logger)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return r, feeSource, executor
}

func selectorOf(t *testing.T, parsed string, method string) []byte {
	t.Helper()
	require.NoError(t, loadABIs())
	switch parsed {
	case "erc20":
		return parsedERC20.Methods[method].ID
	case "wrap":
		return parsedWrap.Methods[method].ID
	case "swap":
		return parsedSwap.Methods[method].ID
	case "fallback":
		return parsedFall.Methods[method].ID
	default:
		t.Fatalf("unknown abi %s", parsed)
		return nil
	}
}

func TestCrossDomainQuote(t *testing.T) {
	bridge := &scriptedBridge{
		// Quoter: 150 USDC.e in, 300 WFLOW out.
		quoteOut: new(big.Int).Mul(big.NewInt(300), big.NewInt(1e18)),
	}
	r, _, _ := newTestRouter(t, bridge)

	q, err := r.Quote(context.Background(), assets.USDCe, assets.WFlow, 150*fixedpoint.One, 100)
	require.NoError(t, err)
	require.False(t, q.Estimated)
	require.Equal(t, 300*fixedpoint.One, q.ExpectedOut)
	// 1% slippage off the quoted price.
	require.Equal(t, 297*fixedpoint.One, q.MinOut)
}

func TestCrossDomainQuoteEstimatedFallback(t *testing.T) {
	bridge := &scriptedBridge{} // quoter unavailable
	r, _, _ := newTestRouter(t, bridge)

	q, err := r.Quote(context.Background(), assets.USDCe, assets.WFlow, 150*fixedpoint.One, 100)
	require.NoError(t, err)
	require.True(t, q.Estimated)
	require.Equal(t, 150*fixedpoint.One, q.ExpectedOut)
	require.Zero(t, q.MinOut)
}

func TestCrossDomainQuoteUnknownAsset(t *testing.T) {
	bridge := &scriptedBridge{}
	r, _, _ := newTestRouter(t, bridge)

	_, err := r.Quote(context.Background(), "UNKNOWN", assets.WFlow, fixedpoint.One, 100)
	require.ErrorIs(t, err, types.ErrRouting)
}

func TestCrossDomainExecutePrimary(t *testing.T) {
	bridge := &scriptedBridge{
		primaryOut: new(big.Int).Mul(big.NewInt(300), big.NewInt(1e18)),
		feeUsed:    5_000_000,
	}
	r, feeSource, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	out, err := r.Execute(context.Background(), in, assets.WFlow, Quote{MinOut: 297 * fixedpoint.One})
	require.NoError(t, err)
	require.Equal(t, assets.WFlow, out.Asset)
	require.Equal(t, 300*fixedpoint.One, out.Amount)

	require.Len(t, bridge.bridgedIn, 1)
	require.Equal(t, in, bridge.bridgedIn[0])
	require.Len(t, bridge.bridgedOut, 1)
	require.Equal(t, out, bridge.bridgedOut[0])

	// approve on the input token, then exactInput on the primary router.
	require.Len(t, bridge.calls, 2)
	require.True(t, bytes.HasPrefix(bridge.calls[0].data, selectorOf(t, "erc20", "approve")))
	require.Equal(t, testConfig.PrimaryRouter, bridge.calls[1].to)
	require.True(t, bytes.HasPrefix(bridge.calls[1].data, selectorOf(t, "swap", "exactInput")))

	// Two bridge crossings, each consuming half the advanced fee.
	balance, err := feeSource.Balance()
	require.NoError(t, err)
	require.Equal(t, 10*fixedpoint.One-2*bridge.feeUsed, balance)
}

func TestCrossDomainExecuteWrapsNativeSource(t *testing.T) {
	bridge := &scriptedBridge{
		primaryOut: big.NewInt(150_000_000), // 150 USDC.e at 6 decimals
	}
	r, _, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.Flow, Amount: 300 * fixedpoint.One}
	out, err := r.Execute(context.Background(), in, assets.USDCe, Quote{Estimated: true})
	require.NoError(t, err)
	require.Equal(t, 150*fixedpoint.One, out.Amount)

	// deposit on the wrapped-native contract carries the swap amount as call
	// value, then approve, then exactInput.
	require.Len(t, bridge.calls, 3)
	require.Equal(t, testConfig.WrappedNative, bridge.calls[0].to)
	require.True(t, bytes.HasPrefix(bridge.calls[0].data, selectorOf(t, "wrap", "deposit")))
	wantValue := new(big.Int).Mul(big.NewInt(300), big.NewInt(1e18))
	require.Zero(t, bridge.calls[0].value.Cmp(wantValue))
}

func TestCrossDomainExecuteFallbackRouter(t *testing.T) {
	bridge := &scriptedBridge{
		fallbackOut: new(big.Int).Mul(big.NewInt(298), big.NewInt(1e18)),
	}
	r, _, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	out, err := r.Execute(context.Background(), in, assets.WFlow, Quote{MinOut: 290 * fixedpoint.One})
	require.NoError(t, err)
	require.Equal(t, 298*fixedpoint.One, out.Amount)

	// approve primary, exactInput reverts, approve fallback, two-token swap.
	require.Len(t, bridge.calls, 4)
	require.Equal(t, testConfig.FallbackRouter, bridge.calls[3].to)
	require.True(t, bytes.HasPrefix(bridge.calls[3].data, selectorOf(t, "fallback", "swapExactTokensForTokens")))
}

func TestCrossDomainExecuteBothRoutersFail(t *testing.T) {
	bridge := &scriptedBridge{}
	r, _, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{Estimated: true})
	require.ErrorIs(t, err, types.ErrSwapExecution)

	// The input was bridged back home after both routers reverted.
	require.Len(t, bridge.bridgedOut, 1)
	require.Equal(t, assets.USDCe, bridge.bridgedOut[0].Asset)
	require.Equal(t, 150*fixedpoint.One, bridge.bridgedOut[0].Amount)
}

func TestCrossDomainExecutePrecisionRejectedBeforeTransfer(t *testing.T) {
	bridge := &scriptedBridge{primaryOut: big.NewInt(1e18)}
	r, feeSource, _ := newTestRouter(t, bridge)

	// 99 local units floor to zero against 6 foreign decimals.
	in := capability.Value{Asset: assets.USDCe, Amount: 99}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{Estimated: true})
	require.ErrorIs(t, err, types.ErrPrecision)

	// Nothing crossed the bridge and no fee was spent.
	require.Empty(t, bridge.bridgedIn)
	require.Empty(t, bridge.calls)
	balance, err := feeSource.Balance()
	require.NoError(t, err)
	require.Equal(t, 10*fixedpoint.One, balance)
}

func TestCrossDomainExecuteRevokedExecutor(t *testing.T) {
	bridge := &scriptedBridge{primaryOut: big.NewInt(1e18)}
	r, _, executor := newTestRouter(t, bridge)
	executor.Revoke()

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{Estimated: true})
	require.ErrorIs(t, err, types.ErrCapability)
	require.Empty(t, bridge.bridgedIn)
}

func TestCrossDomainExecuteBridgeOutFailureIsStranded(t *testing.T) {
	bridge := &scriptedBridge{
		primaryOut: new(big.Int).Mul(big.NewInt(300), big.NewInt(1e18)),
		failOut:    true,
	}
	r, _, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{MinOut: 297 * fixedpoint.One})
	require.ErrorIs(t, err, types.ErrStranded)
	require.NotErrorIs(t, err, types.ErrSwapExecution)

	// The swap ran: the input crossed the bridge and exactInput executed,
	// but nothing came home.
	require.Len(t, bridge.bridgedIn, 1)
	require.Len(t, bridge.calls, 2)
	require.True(t, bytes.HasPrefix(bridge.calls[1].data, selectorOf(t, "swap", "exactInput")))
	require.Empty(t, bridge.bridgedOut)
}

func TestCrossDomainExecuteFailedUnwindIsStranded(t *testing.T) {
	// Both routers revert and the bridge refuses the return crossing: the
	// input sits foreign-side.
	bridge := &scriptedBridge{failOut: true}
	r, _, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{Estimated: true})
	require.ErrorIs(t, err, types.ErrStranded)
	require.Empty(t, bridge.bridgedOut)
}

func TestCrossDomainExecuteBridgeInFailure(t *testing.T) {
	bridge := &scriptedBridge{failIn: true}
	r, feeSource, _ := newTestRouter(t, bridge)

	in := capability.Value{Asset: assets.USDCe, Amount: 150 * fixedpoint.One}
	_, err := r.Execute(context.Background(), in, assets.WFlow, Quote{Estimated: true})
	require.ErrorIs(t, err, types.ErrSwapExecution)

	// The advanced fee came back in full.
	balance, err := feeSource.Balance()
	require.NoError(t, err)
	require.Equal(t, 10*fixedpoint.One, balance)
}
