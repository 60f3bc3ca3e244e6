package types

import (
	"time"
)

// AssetID is an opaque asset-type identifier on the local ledger,
// e.g. "FLOW", "USDC.e". Routing strategy is decided by whether the pair
// resolves to foreign-environment addresses.
type AssetID string

type PlanStatus string

const (
	StatusActive    PlanStatus = "ACTIVE"
	StatusPaused    PlanStatus = "PAUSED"
	StatusCompleted PlanStatus = "COMPLETED"
	StatusCancelled PlanStatus = "CANCELLED"
)

// PlanSnapshot is the read-only DTO mirroring all plan fields. Mutation goes
// through the plan's methods only; everything outward-facing sees snapshots.
type PlanSnapshot struct {
	ID                  uint64     `json:"id"`
	SourceAsset         AssetID    `json:"source_asset"`
	TargetAsset         AssetID    `json:"target_asset"`
	AmountPerInterval   uint64     `json:"amount_per_interval"` // FixedDecimal8 raw units
	IntervalSeconds     uint64     `json:"interval_seconds"`
	MaxSlippageBps      uint16     `json:"max_slippage_bps"`
	MaxExecutions       *uint64    `json:"max_executions,omitempty"`
	Status              PlanStatus `json:"status"`
	NextExecutionTime   *time.Time `json:"next_execution_time,omitempty"`
	ExecutionCount      uint64     `json:"execution_count"`
	TotalSourceInvested uint64     `json:"total_source_invested"`
	TotalTargetAcquired uint64     `json:"total_target_acquired"`
	AvgExecutionPriceFP string     `json:"avg_execution_price_fp"` // u128, 64 fractional bits, decimal string
	CreatedAt           time.Time  `json:"created_at"`
	LastExecutedAt      *time.Time `json:"last_executed_at,omitempty"`
	RequiresCrossDomain bool       `json:"requires_cross_domain"`
}

// ExecutePlanPayload is the task payload carried through the scheduling
// service. Capability tokens never travel with it; the worker attaches a
// fresh LoopConfig on every invocation so scope can rotate between cycles.
type ExecutePlanPayload struct {
	PlanID   uint64 `json:"plan_id"`
	Priority string `json:"priority"`
	Budget   uint64 `json:"budget"`
}
