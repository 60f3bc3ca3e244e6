package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/mock"

	"github.com/vaultloop/dca-engine/internal/types"
)

type MockDB struct {
	mock.Mock
}

func (m *MockDB) Pool() *pgxpool.Pool {
	return nil
}

func (m *MockDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	args := m.Called(ctx, fn)

	if val, ok := args.Get(0).(bool); ok && val {
		return fn(ctx, nil)
	}

	return args.Error(1)
}

func (m *MockDB) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDB) UpsertPlanSnapshot(ctx context.Context, snapshot types.PlanSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDB) GetPlanSnapshot(ctx context.Context, id uint64) (*types.PlanSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PlanSnapshot), args.Error(1)
}

func (m *MockDB) GetAllPlanSnapshots(ctx context.Context) ([]types.PlanSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PlanSnapshot), args.Error(1)
}

func (m *MockDB) DeletePlanSnapshot(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDB) MaxPlanID(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockDB) CreateExecution(ctx context.Context, rec types.ExecutionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDB) GetExecutions(ctx context.Context, planID uint64, take int, skip int) ([]types.ExecutionRecord, error) {
	args := m.Called(ctx, planID, take, skip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ExecutionRecord), args.Error(1)
}

func (m *MockDB) CountExecutions(ctx context.Context, planID uint64, status types.ExecutionStatus) (int64, error) {
	args := m.Called(ctx, planID, status)
	return args.Get(0).(int64), args.Error(1)
}
