package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vaultloop/dca-engine/internal/types"
)

func (p *PostgresBackend) UpsertPlanSnapshot(ctx context.Context, snapshot types.PlanSnapshot) error {
	query := `
        INSERT INTO plans (
            id, source_asset, target_asset, amount_per_interval, interval_seconds,
            max_slippage_bps, max_executions, status, next_execution_time,
            execution_count, total_source_invested, total_target_acquired,
            avg_execution_price_fp, created_at, last_executed_at, requires_cross_domain
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            next_execution_time = EXCLUDED.next_execution_time,
            execution_count = EXCLUDED.execution_count,
            total_source_invested = EXCLUDED.total_source_invested,
            total_target_acquired = EXCLUDED.total_target_acquired,
            avg_execution_price_fp = EXCLUDED.avg_execution_price_fp,
            last_executed_at = EXCLUDED.last_executed_at,
            updated_at = NOW()
    `
	_, err := p.pool.Exec(ctx, query,
		snapshot.ID,
		snapshot.SourceAsset,
		snapshot.TargetAsset,
		snapshot.AmountPerInterval,
		snapshot.IntervalSeconds,
		snapshot.MaxSlippageBps,
		snapshot.MaxExecutions,
		snapshot.Status,
		snapshot.NextExecutionTime,
		snapshot.ExecutionCount,
		snapshot.TotalSourceInvested,
		snapshot.TotalTargetAcquired,
		snapshot.AvgExecutionPriceFP,
		snapshot.CreatedAt,
		snapshot.LastExecutedAt,
		snapshot.RequiresCrossDomain,
	)
	if err != nil {
		return fmt.Errorf("fail to upsert plan snapshot: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetPlanSnapshot(ctx context.Context, id uint64) (*types.PlanSnapshot, error) {
	query := `
        SELECT id, source_asset, target_asset, amount_per_interval, interval_seconds,
               max_slippage_bps, max_executions, status, next_execution_time,
               execution_count, total_source_invested, total_target_acquired,
               avg_execution_price_fp, created_at, last_executed_at, requires_cross_domain
        FROM plans
        WHERE id = $1
    `
	var snapshot types.PlanSnapshot
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&snapshot.ID,
		&snapshot.SourceAsset,
		&snapshot.TargetAsset,
		&snapshot.AmountPerInterval,
		&snapshot.IntervalSeconds,
		&snapshot.MaxSlippageBps,
		&snapshot.MaxExecutions,
		&snapshot.Status,
		&snapshot.NextExecutionTime,
		&snapshot.ExecutionCount,
		&snapshot.TotalSourceInvested,
		&snapshot.TotalTargetAcquired,
		&snapshot.AvgExecutionPriceFP,
		&snapshot.CreatedAt,
		&snapshot.LastExecutedAt,
		&snapshot.RequiresCrossDomain,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to get plan snapshot: %w", err)
	}
	return &snapshot, nil
}

func (p *PostgresBackend) GetAllPlanSnapshots(ctx context.Context) ([]types.PlanSnapshot, error) {
	query := `
        SELECT id, source_asset, target_asset, amount_per_interval, interval_seconds,
               max_slippage_bps, max_executions, status, next_execution_time,
               execution_count, total_source_invested, total_target_acquired,
               avg_execution_price_fp, created_at, last_executed_at, requires_cross_domain
        FROM plans
        ORDER BY id
    `
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fail to get plan snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PlanSnapshot
	for rows.Next() {
		var snapshot types.PlanSnapshot
		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.SourceAsset,
			&snapshot.TargetAsset,
			&snapshot.AmountPerInterval,
			&snapshot.IntervalSeconds,
			&snapshot.MaxSlippageBps,
			&snapshot.MaxExecutions,
			&snapshot.Status,
			&snapshot.NextExecutionTime,
			&snapshot.ExecutionCount,
			&snapshot.TotalSourceInvested,
			&snapshot.TotalTargetAcquired,
			&snapshot.AvgExecutionPriceFP,
			&snapshot.CreatedAt,
			&snapshot.LastExecutedAt,
			&snapshot.RequiresCrossDomain,
		); err != nil {
			return nil, fmt.Errorf("fail to scan plan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (p *PostgresBackend) DeletePlanSnapshot(ctx context.Context, id uint64) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("fail to delete plan snapshot: %w", err)
	}
	return nil
}

// MaxPlanID returns the highest persisted plan id so the in-memory id
// counter can resume above it after a restart.
func (p *PostgresBackend) MaxPlanID(ctx context.Context) (uint64, error) {
	var maxID uint64
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM plans`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("fail to get max plan id: %w", err)
	}
	return maxID, nil
}
