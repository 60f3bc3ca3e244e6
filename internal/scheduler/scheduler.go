// Package scheduler implements the external scheduling service over asynq:
// every armed cycle is one delayed task on a priority queue, retried never.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/handler"
	"github.com/vaultloop/dca-engine/internal/tasks"
	"github.com/vaultloop/dca-engine/internal/types"
)

// FeeRates prices one future invocation: a flat base plus a per-budget-unit
// component, scaled by a priority multiplier in basis points.
type FeeRates struct {
	Base                  fixedpoint.Amount
	PerBudgetUnit         fixedpoint.Amount
	PriorityMultiplierBps map[string]uint64
}

func (r FeeRates) estimate(priority string, budget uint64) fixedpoint.Amount {
	fee := uint64(r.Base) + uint64(r.PerBudgetUnit)*budget
	multiplier, ok := r.PriorityMultiplierBps[priority]
	if !ok {
		multiplier = fixedpoint.MaxBps
	}
	return fixedpoint.Amount(fee * multiplier / fixedpoint.MaxBps)
}

// Service arms handler invocations as delayed asynq tasks. Timers are never
// retried by the queue: the handler's own reschedule step is the only thing
// allowed to arm the next cycle.
type Service struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	rates     FeeRates
	// treasury collects invocation fee payments; nil consumes them.
	treasury capability.AssetAccount
	logger   *logrus.Logger
}

func NewService(client *asynq.Client, redisOpts asynq.RedisClientOpt, rates FeeRates, treasury capability.AssetAccount, logger *logrus.Logger) *Service {
	return &Service{
		client:    client,
		inspector: asynq.NewInspector(redisOpts),
		rates:     rates,
		treasury:  treasury,
		logger:    logger,
	}
}

func (s *Service) EstimateFee(_ context.Context, _ types.ExecutePlanPayload, _ time.Time, priority string, budget uint64) (handler.FeeEstimate, error) {
	return handler.FeeEstimate{Amount: s.rates.estimate(priority, budget)}, nil
}

// Schedule arms one timer at the given instant. The fee payment must cover
// the estimate; the buffered surplus travels with it to the treasury since
// the caller already withdrew the full buffered amount.
func (s *Service) Schedule(ctx context.Context, payload types.ExecutePlanPayload, at time.Time, priority string, budget uint64, feePayment capability.Value) (string, error) {
	required := s.rates.estimate(priority, budget)
	if feePayment.Amount < required {
		return "", fmt.Errorf("%w: fee payment %s below required %s",
			types.ErrInsufficientFunds, feePayment.Amount, required)
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fail to marshal execute plan payload: %w", err)
	}

	ti, err := s.client.EnqueueContext(ctx,
		asynq.NewTask(tasks.TypeExecutePlan, buf),
		asynq.ProcessAt(at),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QueueFor(priority)),
	)
	if err != nil {
		return "", fmt.Errorf("fail to enqueue execute plan task: %w", err)
	}

	if s.treasury != nil {
		if depErr := s.treasury.Deposit(feePayment); depErr != nil {
			s.logger.WithError(depErr).Error("fail to deposit invocation fee to treasury")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":    ti.ID,
		"plan_id":    payload.PlanID,
		"queue":      ti.Queue,
		"process_at": at,
	}).Info("armed execution timer")
	return ti.ID, nil
}

// PendingSchedules lists the armed timers for one plan across all priority
// queues. Protocol discipline keeps this at most one per plan; the method
// exists so operators can verify that.
func (s *Service) PendingSchedules(planID uint64) ([]time.Time, error) {
	var pending []time.Time
	for _, queue := range []string{tasks.QueueHigh, tasks.QueueMedium, tasks.QueueLow} {
		infos, err := s.inspector.ListScheduledTasks(queue)
		if err != nil {
			return nil, fmt.Errorf("fail to list scheduled tasks on %s: %w", queue, err)
		}
		for _, info := range infos {
			if info.Type != tasks.TypeExecutePlan {
				continue
			}
			var payload types.ExecutePlanPayload
			if err := json.Unmarshal(info.Payload, &payload); err != nil {
				continue
			}
			if payload.PlanID == planID {
				pending = append(pending, info.NextProcessAt)
			}
		}
	}
	return pending, nil
}
