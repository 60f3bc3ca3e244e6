package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

func TestSwapAtConfiguredRate(t *testing.T) {
	e := NewRateExchange()
	require.NoError(t, e.SetRate("FLOW", "USDC.e", fixedpoint.One, 2*fixedpoint.One))

	out, err := e.Swap(context.Background(),
		capability.Value{Asset: "FLOW", Amount: 10 * fixedpoint.One}, "USDC.e", 19*fixedpoint.One)
	require.NoError(t, err)
	require.Equal(t, types.AssetID("USDC.e"), out.Asset)
	require.Equal(t, 20*fixedpoint.One, out.Amount)
}

func TestSwapBelowMinOutFails(t *testing.T) {
	e := NewRateExchange()
	require.NoError(t, e.SetRate("FLOW", "USDC.e", fixedpoint.One, 2*fixedpoint.One))

	_, err := e.Swap(context.Background(),
		capability.Value{Asset: "FLOW", Amount: 10 * fixedpoint.One}, "USDC.e", 21*fixedpoint.One)
	require.Error(t, err)
}

func TestRateIsDirectional(t *testing.T) {
	e := NewRateExchange()
	require.NoError(t, e.SetRate("FLOW", "USDC.e", fixedpoint.One, 2*fixedpoint.One))

	_, err := e.Rate(context.Background(), "USDC.e", "FLOW")
	require.ErrorIs(t, err, types.ErrRouting)
}

func TestRateUpdateTakesEffect(t *testing.T) {
	e := NewRateExchange()
	require.NoError(t, e.SetRate("FLOW", "USDC.e", fixedpoint.One, 2*fixedpoint.One))
	require.NoError(t, e.SetRate("FLOW", "USDC.e", fixedpoint.One, 3*fixedpoint.One))

	out, err := e.Swap(context.Background(),
		capability.Value{Asset: "FLOW", Amount: fixedpoint.One}, "USDC.e", 0)
	require.NoError(t, err)
	require.Equal(t, 3*fixedpoint.One, out.Amount)
}
