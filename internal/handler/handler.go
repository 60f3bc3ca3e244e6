// Package handler implements the per-invocation execution pipeline the
// scheduling service calls into: readiness checks, swap dispatch, accounting
// update and self-rearming.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/plan"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/types"
)

// FeeBufferBps pads the estimated invocation fee by 10% so a slightly
// under-quoted estimate does not lose the cycle. Plan creation uses the
// same buffer when arming the first cycle.
const FeeBufferBps = 11000

// LoopConfig is the ephemeral per-invocation authorization bundle for
// arming the next cycle. It is carried on every call and never cached in
// the handler, so the caller can rotate scope between cycles.
type LoopConfig struct {
	SchedulerToken capability.Token
	FeeSource      capability.AssetAccount
	Priority       string
	Budget         uint64
}

// FeeEstimate is the scheduling service's quoted cost for one future
// handler invocation.
type FeeEstimate struct {
	Amount fixedpoint.Amount
}

// SchedulingService arms external timers that invoke the handler.
type SchedulingService interface {
	EstimateFee(ctx context.Context, payload types.ExecutePlanPayload, at time.Time, priority string, budget uint64) (FeeEstimate, error)
	Schedule(ctx context.Context, payload types.ExecutePlanPayload, at time.Time, priority string, budget uint64, feePayment capability.Value) (string, error)
}

// History persists invocation outcomes. A nil History disables recording.
type History interface {
	CreateExecution(ctx context.Context, rec types.ExecutionRecord) error
}

// ExecutionHandler orchestrates one invocation of one plan. The routing
// strategy is picked per plan from its pair classification.
type ExecutionHandler struct {
	store       *plan.Store
	sameDomain  router.SwapRouter
	crossDomain router.SwapRouter
	scheduler   SchedulingService
	history     History
	sink        types.EventSink
	logger      *logrus.Logger
	now         func() time.Time
}

type Option func(*ExecutionHandler)

func WithClock(now func() time.Time) Option {
	return func(h *ExecutionHandler) { h.now = now }
}

func WithHistory(history History) Option {
	return func(h *ExecutionHandler) { h.history = history }
}

func WithEventSink(sink types.EventSink) Option {
	return func(h *ExecutionHandler) { h.sink = sink }
}

func NewExecutionHandler(
	store *plan.Store,
	sameDomain router.SwapRouter,
	crossDomain router.SwapRouter,
	scheduler SchedulingService,
	logger *logrus.Logger,
	opts ...Option,
) *ExecutionHandler {
	h := &ExecutionHandler{
		store:       store,
		sameDomain:  sameDomain,
		crossDomain: crossDomain,
		scheduler:   scheduler,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke runs the full pipeline for one fired timer. Expected runtime
// conditions (unready plan, missing token, low balance, failed swap) are
// observed as events and return nil: the condition is already recorded and
// aborting would only forfeit the invocation fee. Only a malformed payload
// or an invariant violation returns an error.
func (h *ExecutionHandler) Invoke(ctx context.Context, payload types.ExecutePlanPayload, loop LoopConfig) error {
	if payload.PlanID == 0 {
		return fmt.Errorf("%w: payload missing plan id", types.ErrValidation)
	}
	log := h.logger.WithFields(logrus.Fields{
		"plan_id":  payload.PlanID,
		"priority": loop.Priority,
	})

	p, err := h.store.Borrow(payload.PlanID)
	if err != nil {
		// A timer armed before cancellation still fires; the plan is gone.
		log.Info("invocation for unknown plan, skipping")
		h.skip(ctx, payload.PlanID, "plan not found")
		return nil
	}

	if err := p.CheckReady(); err != nil {
		log.WithField("status", p.Status()).Info("plan not ready, skipping")
		h.skip(ctx, p.ID(), err.Error())
		return nil
	}
	if err := h.store.Configured(p); err != nil {
		log.WithError(err).Warn("plan tokens not configured")
		h.fail(ctx, p.ID(), 0, err)
		return nil
	}

	amountIn, amountOut, err := h.dispatch(ctx, p, log)
	if err != nil {
		// Plan state stays untouched on a failed dispatch: no accounting
		// update, no new due time, no new timer. Resuming the recurrence is
		// an operator action on the recorded failure.
		h.fail(ctx, p.ID(), uint64(p.AmountPerInterval()), err)
		return nil
	}

	if err := p.RecordExecution(amountIn, amountOut); err != nil {
		return fmt.Errorf("fail to record execution for plan %d: %w", p.ID(), err)
	}
	h.record(ctx, types.ExecutionRecord{
		ID:         uuid.NewString(),
		PlanID:     p.ID(),
		Status:     types.ExecutionSucceeded,
		AmountIn:   uint64(amountIn),
		AmountOut:  uint64(amountOut),
		PriceFP:    p.Snapshot().AvgExecutionPriceFP,
		ExecutedAt: h.now(),
	})
	log.WithFields(logrus.Fields{
		"amount_in":  uint64(amountIn),
		"amount_out": uint64(amountOut),
	}).Info("plan executed")

	if p.Status() == types.StatusCompleted {
		log.Info("plan completed, no further cycles")
		return nil
	}
	if err := p.ArmNextCycle(); err != nil {
		return fmt.Errorf("fail to arm next cycle for plan %d: %w", p.ID(), err)
	}
	h.rearm(ctx, p, payload, loop, log)
	return nil
}

// dispatch quotes and executes the swap for one cycle, moving value from
// the source account to the target account. On failure the withdrawn input
// goes back to the source account and no partial transfer remains.
func (h *ExecutionHandler) dispatch(ctx context.Context, p *plan.Plan, log *logrus.Entry) (fixedpoint.Amount, fixedpoint.Amount, error) {
	r := h.sameDomain
	if p.RequiresCrossDomain() {
		r = h.crossDomain
	}

	q, err := r.Quote(ctx, p.SourceAsset(), p.TargetAsset(), p.AmountPerInterval(), p.MaxSlippageBps())
	if err != nil {
		return 0, 0, err
	}

	tokens := h.store.Tokens()
	in, err := tokens.Source.Withdraw(q.AmountIn)
	if err != nil {
		return 0, 0, err
	}

	out, err := r.Execute(ctx, in, p.TargetAsset(), q)
	if err != nil {
		if errors.Is(err, types.ErrStranded) {
			// The input was consumed by the swap; the value sits outside the
			// local ledger. Restoring the source balance here would count it
			// twice.
			log.WithError(err).Error("swap output stranded, manual repair required")
			return 0, 0, err
		}
		if depErr := tokens.Source.Deposit(in); depErr != nil {
			log.WithError(depErr).Error("fail to return input after swap failure")
		}
		return 0, 0, err
	}

	if err := tokens.Target.Deposit(out); err != nil {
		return 0, 0, fmt.Errorf("fail to deposit swap output for plan %d: %w", p.ID(), err)
	}
	return in.Amount, out.Amount, nil
}

// rearm estimates the fee for the next invocation, withdraws it with a
// buffer from the loop fee source and arms a new timer. On any failure the
// plan stays Active with its now-stale due time and a RescheduleFailed
// event is the repair signal; there is no retry loop here.
func (h *ExecutionHandler) rearm(ctx context.Context, p *plan.Plan, payload types.ExecutePlanPayload, loop LoopConfig, log *logrus.Entry) {
	next := p.NextExecutionTime()
	if next == nil {
		h.rescheduleFailed(p.ID(), "no next execution time set")
		return
	}
	if loop.SchedulerToken == nil {
		h.rescheduleFailed(p.ID(), "scheduler token missing")
		return
	}
	if err := loop.SchedulerToken.Check(); err != nil {
		h.rescheduleFailed(p.ID(), err.Error())
		return
	}
	if loop.FeeSource == nil {
		h.rescheduleFailed(p.ID(), "fee source missing")
		return
	}

	estimate, err := h.scheduler.EstimateFee(ctx, payload, *next, loop.Priority, loop.Budget)
	if err != nil {
		h.rescheduleFailed(p.ID(), fmt.Sprintf("fee estimate: %v", err))
		return
	}
	buffered := fixedpoint.Amount(uint64(estimate.Amount) * FeeBufferBps / fixedpoint.MaxBps)

	feePayment, err := loop.FeeSource.Withdraw(buffered)
	if err != nil {
		h.rescheduleFailed(p.ID(), fmt.Sprintf("fee withdrawal: %v", err))
		return
	}

	scheduleID, err := h.scheduler.Schedule(ctx, payload, *next, loop.Priority, loop.Budget, feePayment)
	if err != nil {
		if depErr := loop.FeeSource.Deposit(feePayment); depErr != nil {
			log.WithError(depErr).Error("fail to return fee after scheduling failure")
		}
		h.rescheduleFailed(p.ID(), fmt.Sprintf("schedule: %v", err))
		return
	}
	log.WithFields(logrus.Fields{
		"schedule_id":         scheduleID,
		"next_execution_time": *next,
	}).Info("next cycle armed")
}

func (h *ExecutionHandler) skip(ctx context.Context, planID uint64, reason string) {
	h.emit(types.EventExecutionSkipped, planID, map[string]interface{}{"reason": reason})
	h.record(ctx, types.ExecutionRecord{
		ID:         uuid.NewString(),
		PlanID:     planID,
		Status:     types.ExecutionSkipped,
		Reason:     reason,
		ExecutedAt: h.now(),
	})
}

func (h *ExecutionHandler) fail(ctx context.Context, planID uint64, amountIn uint64, cause error) {
	h.emit(types.EventExecutionFailed, planID, map[string]interface{}{"reason": cause.Error()})
	h.record(ctx, types.ExecutionRecord{
		ID:         uuid.NewString(),
		PlanID:     planID,
		Status:     types.ExecutionFailed,
		AmountIn:   amountIn,
		Reason:     cause.Error(),
		ExecutedAt: h.now(),
	})
}

func (h *ExecutionHandler) rescheduleFailed(planID uint64, reason string) {
	h.logger.WithFields(logrus.Fields{
		"plan_id": planID,
		"reason":  reason,
	}).Error("fail to arm next cycle, plan needs manual repair")
	h.emit(types.EventRescheduleFailed, planID, map[string]interface{}{"reason": reason})
}

func (h *ExecutionHandler) emit(kind types.EventKind, planID uint64, fields map[string]interface{}) {
	if h.sink == nil {
		return
	}
	h.sink.Emit(types.Event{Kind: kind, PlanID: planID, At: h.now(), Fields: fields})
}

func (h *ExecutionHandler) record(ctx context.Context, rec types.ExecutionRecord) {
	if h.history == nil {
		return
	}
	if err := h.history.CreateExecution(ctx, rec); err != nil {
		h.logger.WithError(err).WithField("plan_id", rec.PlanID).Error("fail to record execution history")
	}
}
