package types

import "time"

type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionSkipped   ExecutionStatus = "SKIPPED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// ExecutionRecord is one handler invocation's outcome as persisted to the
// execution history.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	PlanID     uint64          `json:"plan_id"`
	Status     ExecutionStatus `json:"status"`
	AmountIn   uint64          `json:"amount_in"`
	AmountOut  uint64          `json:"amount_out"`
	PriceFP    string          `json:"price_fp,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
