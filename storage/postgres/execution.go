package postgres

import (
	"context"
	"fmt"

	"github.com/vaultloop/dca-engine/internal/types"
)

func (p *PostgresBackend) CreateExecution(ctx context.Context, rec types.ExecutionRecord) error {
	query := `
        INSERT INTO executions (
            id, plan_id, status, amount_in, amount_out, price_fp, reason, executed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := p.pool.Exec(ctx, query,
		rec.ID,
		rec.PlanID,
		rec.Status,
		rec.AmountIn,
		rec.AmountOut,
		rec.PriceFP,
		rec.Reason,
		rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("fail to create execution record: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetExecutions(ctx context.Context, planID uint64, take int, skip int) ([]types.ExecutionRecord, error) {
	query := `
        SELECT id, plan_id, status, amount_in, amount_out, price_fp, reason, executed_at
        FROM executions
        WHERE plan_id = $1
        ORDER BY executed_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := p.pool.Query(ctx, query, planID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("fail to get executions: %w", err)
	}
	defer rows.Close()

	var records []types.ExecutionRecord
	for rows.Next() {
		var rec types.ExecutionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.PlanID,
			&rec.Status,
			&rec.AmountIn,
			&rec.AmountOut,
			&rec.PriceFP,
			&rec.Reason,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("fail to scan execution record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *PostgresBackend) CountExecutions(ctx context.Context, planID uint64, status types.ExecutionStatus) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM executions WHERE plan_id = $1 AND status = $2`,
		planID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("fail to count executions: %w", err)
	}
	return count, nil
}
