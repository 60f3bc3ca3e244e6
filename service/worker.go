package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/contexthelper"
	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/handler"
	"github.com/vaultloop/dca-engine/internal/plan"
	"github.com/vaultloop/dca-engine/internal/types"
)

// WorkerService consumes execute-plan tasks from the priority queues and
// runs them through the execution handler. It attaches a fresh LoopConfig
// on every invocation; tokens never travel through redis.
type WorkerService struct {
	logger   *logrus.Logger
	sdClient *statsd.Client
	handler  *handler.ExecutionHandler
	store    *plan.Store
	db       PlanServiceStorage

	schedulerToken capability.Token
	feeSource      capability.AssetAccount
}

func NewWorker(
	h *handler.ExecutionHandler,
	store *plan.Store,
	db PlanServiceStorage,
	schedulerToken capability.Token,
	feeSource capability.AssetAccount,
	sdClient *statsd.Client,
	logger *logrus.Logger,
) (*WorkerService, error) {
	if h == nil {
		return nil, fmt.Errorf("execution handler cannot be nil")
	}
	return &WorkerService{
		logger:         logger,
		sdClient:       sdClient,
		handler:        h,
		store:          store,
		db:             db,
		schedulerToken: schedulerToken,
		feeSource:      feeSource,
	}, nil
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

// HandleExecutePlan is the asynq handler behind every armed timer.
func (s *WorkerService) HandleExecutePlan(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.plan.execute.latency", time.Now(), []string{})

	var payload types.ExecutePlanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	s.logger.WithFields(logrus.Fields{
		"plan_id":  payload.PlanID,
		"priority": payload.Priority,
	}).Info("Handling plan execution")
	s.incCounter("worker.plan.execute", []string{fmt.Sprintf("priority:%s", payload.Priority)})

	loop := handler.LoopConfig{
		SchedulerToken: s.schedulerToken,
		FeeSource:      s.feeSource,
		Priority:       payload.Priority,
		Budget:         payload.Budget,
	}

	if err := s.handler.Invoke(ctx, payload, loop); err != nil {
		s.incCounter("worker.plan.execute.error", []string{})
		s.logger.Errorf("handler.Invoke failed: %v", err)
		return fmt.Errorf("handler.Invoke failed: %v: %w", err, asynq.SkipRetry)
	}

	s.persistSnapshot(ctx, payload.PlanID)
	return nil
}

// persistSnapshot writes the post-invocation plan state behind the
// in-memory store. A cancelled plan has no snapshot to persist.
func (s *WorkerService) persistSnapshot(ctx context.Context, planID uint64) {
	if s.db == nil || s.store == nil {
		return
	}
	p, err := s.store.Borrow(planID)
	if err != nil {
		return
	}
	if err := s.db.UpsertPlanSnapshot(ctx, p.Snapshot()); err != nil {
		s.logger.WithError(err).WithField("plan_id", planID).Error("fail to persist plan snapshot")
	}
}
