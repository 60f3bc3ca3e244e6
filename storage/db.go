package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultloop/dca-engine/internal/types"
)

type PoolProvider interface {
	Pool() *pgxpool.Pool
}

type Transactor interface {
	PoolProvider
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type DatabaseStorage interface {
	Transactor
	PlanRepository
	ExecutionRepository
	Close() error
}

// PlanRepository persists plan snapshots so a restarted process can
// rehydrate its in-memory store. The in-memory store stays authoritative;
// rows here are write-behind copies.
type PlanRepository interface {
	UpsertPlanSnapshot(ctx context.Context, snapshot types.PlanSnapshot) error
	GetPlanSnapshot(ctx context.Context, id uint64) (*types.PlanSnapshot, error)
	GetAllPlanSnapshots(ctx context.Context) ([]types.PlanSnapshot, error)
	DeletePlanSnapshot(ctx context.Context, id uint64) error
	MaxPlanID(ctx context.Context) (uint64, error)
}

// ExecutionRepository is the append-only invocation history.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, rec types.ExecutionRecord) error
	GetExecutions(ctx context.Context, planID uint64, take int, skip int) ([]types.ExecutionRecord, error)
	CountExecutions(ctx context.Context, planID uint64, status types.ExecutionStatus) (int64, error)
}
