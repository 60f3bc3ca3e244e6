// Package plan implements the DCA strategy entity and its owning store:
// configuration, fixed-point accounting, and the status state machine.
package plan

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Plan is one recurring conversion strategy and its accounting. All fields
// are private; mutation happens only through RecordExecution, ArmNextCycle,
// Pause and Resume, and the read path is Snapshot.
type Plan struct {
	id                uint64
	sourceAsset       types.AssetID
	targetAsset       types.AssetID
	amountPerInterval fixedpoint.Amount
	intervalSeconds   uint64
	maxSlippageBps    uint16
	maxExecutions     *uint64

	status            types.PlanStatus
	nextExecutionTime *time.Time

	executionCount      uint64
	totalSourceInvested fixedpoint.Amount
	totalTargetAcquired fixedpoint.Amount
	avgExecutionPriceFP *uint256.Int

	createdAt      time.Time
	lastExecutedAt *time.Time

	crossDomain bool
	now         func() time.Time
	sink        types.EventSink
}

func (p *Plan) ID() uint64                           { return p.id }
func (p *Plan) SourceAsset() types.AssetID           { return p.sourceAsset }
func (p *Plan) TargetAsset() types.AssetID           { return p.targetAsset }
func (p *Plan) AmountPerInterval() fixedpoint.Amount { return p.amountPerInterval }
func (p *Plan) MaxSlippageBps() uint16               { return p.maxSlippageBps }
func (p *Plan) Status() types.PlanStatus             { return p.status }
func (p *Plan) RequiresCrossDomain() bool            { return p.crossDomain }

// AvgExecutionPriceFP returns a copy of the running weighted-average price,
// or nil before the first execution.
func (p *Plan) AvgExecutionPriceFP() *uint256.Int {
	if p.avgExecutionPriceFP == nil {
		return nil
	}
	return new(uint256.Int).Set(p.avgExecutionPriceFP)
}

// NextExecutionTime returns the scheduled due time; nil unless Active.
func (p *Plan) NextExecutionTime() *time.Time {
	if p.nextExecutionTime == nil {
		return nil
	}
	t := *p.nextExecutionTime
	return &t
}

// CheckReady returns nil when the plan is Active and due, or an ErrNotReady
// describing what blocks execution.
func (p *Plan) CheckReady() error {
	if p.status != types.StatusActive {
		return fmt.Errorf("%w: plan %d is %s", types.ErrNotReady, p.id, p.status)
	}
	if p.nextExecutionTime == nil {
		return fmt.Errorf("%w: plan %d has no due time", types.ErrNotReady, p.id)
	}
	if p.now().Before(*p.nextExecutionTime) {
		return fmt.Errorf("%w: plan %d not due until %s", types.ErrNotReady, p.id, p.nextExecutionTime.Format(time.RFC3339))
	}
	return nil
}

// IsReady reports whether the plan is Active and due.
func (p *Plan) IsReady() bool { return p.CheckReady() == nil }

// HasReachedCap reports whether the plan has used up its execution budget.
// A plan without maxExecutions never caps.
func (p *Plan) HasReachedCap() bool {
	return p.maxExecutions != nil && p.executionCount >= *p.maxExecutions
}

// RecordExecution folds one completed swap into the plan accounting. The
// instant the execution count reaches the cap the plan transitions to
// Completed and the due time is cleared.
func (p *Plan) RecordExecution(amountIn, amountOut fixedpoint.Amount) error {
	if p.status != types.StatusActive {
		return fmt.Errorf("%w: record execution on %s plan %d", types.ErrValidation, p.status, p.id)
	}
	if amountIn == 0 || amountOut == 0 {
		return fmt.Errorf("%w: execution amounts must be positive, got in=%d out=%d",
			types.ErrValidation, amountIn, amountOut)
	}

	avg, err := fixedpoint.WeightedAverage(p.avgExecutionPriceFP, p.totalSourceInvested, amountIn, amountOut)
	if err != nil {
		return err
	}
	price, err := fixedpoint.PriceFP(amountIn, amountOut)
	if err != nil {
		return err
	}

	p.avgExecutionPriceFP = avg
	p.totalSourceInvested += amountIn
	p.totalTargetAcquired += amountOut
	p.executionCount++
	executedAt := p.now()
	p.lastExecutedAt = &executedAt

	if p.HasReachedCap() {
		p.status = types.StatusCompleted
		p.nextExecutionTime = nil
	}

	p.emit(types.EventPlanExecuted, map[string]interface{}{
		"amount_in":       uint64(amountIn),
		"amount_out":      uint64(amountOut),
		"price_fp":        price.String(),
		"avg_price_fp":    avg.String(),
		"execution_count": p.executionCount,
		"status":          p.status,
	})
	return nil
}

// ArmNextCycle moves the due time one interval forward from now. Legal only
// on an Active plan that has budget left; completion clears the due time in
// RecordExecution before this can be called.
func (p *Plan) ArmNextCycle() error {
	if p.status != types.StatusActive {
		return fmt.Errorf("%w: arm next cycle on %s plan %d", types.ErrValidation, p.status, p.id)
	}
	if p.HasReachedCap() {
		return fmt.Errorf("%w: arm next cycle on capped plan %d", types.ErrValidation, p.id)
	}
	next := p.now().Add(time.Duration(p.intervalSeconds) * time.Second)
	p.nextExecutionTime = &next
	return nil
}

// Pause suspends the plan and clears the due time. An already-armed external
// timer is not cancelled; a stale invocation lands on IsReady() == false and
// the handler no-ops.
func (p *Plan) Pause() error {
	if p.status != types.StatusActive {
		return fmt.Errorf("%w: pause %s plan %d", types.ErrValidation, p.status, p.id)
	}
	p.status = types.StatusPaused
	p.nextExecutionTime = nil
	p.emit(types.EventPlanPaused, nil)
	return nil
}

// Resume reactivates a paused plan. The due time is the explicit time when
// given, otherwise one interval from now.
func (p *Plan) Resume(explicitNextTime *time.Time) error {
	if p.status != types.StatusPaused {
		return fmt.Errorf("%w: resume %s plan %d", types.ErrValidation, p.status, p.id)
	}
	if p.HasReachedCap() {
		return fmt.Errorf("%w: resume capped plan %d", types.ErrValidation, p.id)
	}
	var next time.Time
	if explicitNextTime != nil {
		next = *explicitNextTime
	} else {
		next = p.now().Add(time.Duration(p.intervalSeconds) * time.Second)
	}
	p.status = types.StatusActive
	p.nextExecutionTime = &next
	p.emit(types.EventPlanResumed, map[string]interface{}{
		"next_execution_time": next,
	})
	return nil
}

// Snapshot returns the read-only DTO mirroring every plan field.
func (p *Plan) Snapshot() types.PlanSnapshot {
	s := types.PlanSnapshot{
		ID:                  p.id,
		SourceAsset:         p.sourceAsset,
		TargetAsset:         p.targetAsset,
		AmountPerInterval:   uint64(p.amountPerInterval),
		IntervalSeconds:     p.intervalSeconds,
		MaxSlippageBps:      p.maxSlippageBps,
		Status:              p.status,
		ExecutionCount:      p.executionCount,
		TotalSourceInvested: uint64(p.totalSourceInvested),
		TotalTargetAcquired: uint64(p.totalTargetAcquired),
		CreatedAt:           p.createdAt,
		RequiresCrossDomain: p.crossDomain,
	}
	if p.maxExecutions != nil {
		m := *p.maxExecutions
		s.MaxExecutions = &m
	}
	if p.nextExecutionTime != nil {
		t := *p.nextExecutionTime
		s.NextExecutionTime = &t
	}
	if p.lastExecutedAt != nil {
		t := *p.lastExecutedAt
		s.LastExecutedAt = &t
	}
	if p.avgExecutionPriceFP != nil {
		s.AvgExecutionPriceFP = p.avgExecutionPriceFP.String()
	} else {
		s.AvgExecutionPriceFP = "0"
	}
	return s
}

func (p *Plan) emit(kind types.EventKind, fields map[string]interface{}) {
	if p.sink == nil {
		return
	}
	p.sink.Emit(types.Event{
		Kind:   kind,
		PlanID: p.id,
		At:     p.now(),
		Fields: fields,
	})
}
