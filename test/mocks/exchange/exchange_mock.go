package exchange

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/mock"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Rate(ctx context.Context, source, target types.AssetID) (*uint256.Int, error) {
	args := m.Called(ctx, source, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

func (m *MockExchange) Swap(ctx context.Context, in capability.Value, target types.AssetID, minOut fixedpoint.Amount) (capability.Value, error) {
	args := m.Called(ctx, in, target, minOut)
	return args.Get(0).(capability.Value), args.Error(1)
}
