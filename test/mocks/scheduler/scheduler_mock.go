package scheduler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/handler"
	"github.com/vaultloop/dca-engine/internal/types"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) EstimateFee(ctx context.Context, payload types.ExecutePlanPayload, at time.Time, priority string, budget uint64) (handler.FeeEstimate, error) {
	args := m.Called(ctx, payload, at, priority, budget)
	return args.Get(0).(handler.FeeEstimate), args.Error(1)
}

func (m *MockScheduler) Schedule(ctx context.Context, payload types.ExecutePlanPayload, at time.Time, priority string, budget uint64, feePayment capability.Value) (string, error) {
	args := m.Called(ctx, payload, at, priority, budget, feePayment)
	return args.String(0), args.Error(1)
}
