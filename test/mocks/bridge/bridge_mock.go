package bridge

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/types"
)

type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) BridgeIn(ctx context.Context, v capability.Value, fee capability.Value) (capability.Value, error) {
	args := m.Called(ctx, v, fee)
	return args.Get(0).(capability.Value), args.Error(1)
}

func (m *MockBridge) BridgeOut(ctx context.Context, asset types.AssetID, amount fixedpoint.Amount, fee capability.Value) (capability.Value, capability.Value, error) {
	args := m.Called(ctx, asset, amount, fee)
	return args.Get(0).(capability.Value), args.Get(1).(capability.Value), args.Error(2)
}

func (m *MockBridge) Call(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (router.CallResult, error) {
	args := m.Called(ctx, to, data, gasLimit, value)
	return args.Get(0).(router.CallResult), args.Error(1)
}

func (m *MockBridge) DryCall(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (router.CallResult, error) {
	args := m.Called(ctx, to, data, gasLimit, value)
	return args.Get(0).(router.CallResult), args.Error(1)
}
