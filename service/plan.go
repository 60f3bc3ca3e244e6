package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/handler"
	"github.com/vaultloop/dca-engine/internal/plan"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/types"
)

// PlanServiceStorage is the slice of the database the plan service needs.
type PlanServiceStorage interface {
	UpsertPlanSnapshot(ctx context.Context, snapshot types.PlanSnapshot) error
	GetAllPlanSnapshots(ctx context.Context) ([]types.PlanSnapshot, error)
	DeletePlanSnapshot(ctx context.Context, id uint64) error
	GetExecutions(ctx context.Context, planID uint64, take int, skip int) ([]types.ExecutionRecord, error)
}

// QuoteCache caches preview quotes. Executions never read from it.
type QuoteCache interface {
	GetQuote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (*router.Quote, error)
	SetQuote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16, q router.Quote) error
}

// PlanService is the management surface over the plan store: creation with
// first-cycle arming, pause/resume, cancellation, history and previews.
type PlanService struct {
	store       *plan.Store
	db          PlanServiceStorage
	scheduler   handler.SchedulingService
	classifier  plan.Classifier
	sameDomain  router.SwapRouter
	crossDomain router.SwapRouter
	cache       QuoteCache
	logger      *logrus.Logger
}

func NewPlanService(
	store *plan.Store,
	db PlanServiceStorage,
	scheduler handler.SchedulingService,
	classifier plan.Classifier,
	sameDomain router.SwapRouter,
	crossDomain router.SwapRouter,
	cache QuoteCache,
	logger *logrus.Logger,
) (*PlanService, error) {
	if store == nil {
		return nil, fmt.Errorf("plan store cannot be nil")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduling service cannot be nil")
	}
	return &PlanService{
		store:       store,
		db:          db,
		scheduler:   scheduler,
		classifier:  classifier,
		sameDomain:  sameDomain,
		crossDomain: crossDomain,
		cache:       cache,
		logger:      logger,
	}, nil
}

// CreatePlan creates the plan and arms its first cycle. Arming failure rolls
// the creation back: a plan with no timer behind it would never execute.
func (s *PlanService) CreatePlan(ctx context.Context, params plan.CreateParams, priority string, budget uint64) (types.PlanSnapshot, error) {
	p, err := s.store.Create(params)
	if err != nil {
		return types.PlanSnapshot{}, err
	}

	if err := s.armCycle(ctx, p.ID(), params.FirstExecutionTime, priority, budget); err != nil {
		if rmErr := s.store.Remove(p.ID()); rmErr != nil {
			s.logger.WithError(rmErr).Error("fail to roll back plan after arming failure")
		}
		return types.PlanSnapshot{}, fmt.Errorf("fail to arm first cycle: %w", err)
	}

	snapshot := p.Snapshot()
	s.persist(ctx, snapshot)
	return snapshot, nil
}

// armCycle estimates and withdraws the buffered invocation fee, then arms a
// timer. Mirrors the handler's own reschedule step so both entry points pay
// the same way.
func (s *PlanService) armCycle(ctx context.Context, planID uint64, at time.Time, priority string, budget uint64) error {
	payload := types.ExecutePlanPayload{PlanID: planID, Priority: priority, Budget: budget}

	estimate, err := s.scheduler.EstimateFee(ctx, payload, at, priority, budget)
	if err != nil {
		return fmt.Errorf("fail to estimate invocation fee: %w", err)
	}
	buffered := fixedpoint.Amount(uint64(estimate.Amount) * handler.FeeBufferBps / fixedpoint.MaxBps)

	feeSource := s.store.Tokens().FeeSource
	if feeSource == nil {
		return fmt.Errorf("%w: fee source token missing", types.ErrCapability)
	}
	feePayment, err := feeSource.Withdraw(buffered)
	if err != nil {
		return err
	}

	if _, err := s.scheduler.Schedule(ctx, payload, at, priority, budget, feePayment); err != nil {
		if depErr := feeSource.Deposit(feePayment); depErr != nil {
			s.logger.WithError(depErr).Error("fail to return fee after scheduling failure")
		}
		return err
	}
	return nil
}

func (s *PlanService) GetPlan(id uint64) (types.PlanSnapshot, error) {
	p, err := s.store.Borrow(id)
	if err != nil {
		return types.PlanSnapshot{}, err
	}
	return p.Snapshot(), nil
}

func (s *PlanService) ListPlans() []types.PlanSnapshot {
	snapshots := s.store.Snapshots()
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots
}

func (s *PlanService) PausePlan(ctx context.Context, id uint64) (types.PlanSnapshot, error) {
	p, err := s.store.Borrow(id)
	if err != nil {
		return types.PlanSnapshot{}, err
	}
	// The armed timer is not cancelled; when it fires the readiness check
	// downgrades it to a no-op.
	if err := p.Pause(); err != nil {
		return types.PlanSnapshot{}, err
	}
	snapshot := p.Snapshot()
	s.persist(ctx, snapshot)
	return snapshot, nil
}

// ResumePlan reactivates the plan and arms a fresh timer at its new due
// time. The pause dropped the old cycle, so resuming must arm its own.
func (s *PlanService) ResumePlan(ctx context.Context, id uint64, explicitNextTime *time.Time, priority string, budget uint64) (types.PlanSnapshot, error) {
	p, err := s.store.Borrow(id)
	if err != nil {
		return types.PlanSnapshot{}, err
	}
	if err := p.Resume(explicitNextTime); err != nil {
		return types.PlanSnapshot{}, err
	}
	next := p.NextExecutionTime()
	if next == nil {
		return types.PlanSnapshot{}, fmt.Errorf("%w: resumed plan %d has no due time", types.ErrValidation, id)
	}
	if err := s.armCycle(ctx, id, *next, priority, budget); err != nil {
		return types.PlanSnapshot{}, fmt.Errorf("fail to arm resumed cycle: %w", err)
	}
	snapshot := p.Snapshot()
	s.persist(ctx, snapshot)
	return snapshot, nil
}

// CancelPlan removes the plan. A timer already armed for it will fire into
// the handler's unknown-plan skip.
func (s *PlanService) CancelPlan(ctx context.Context, id uint64) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	if s.db != nil {
		if err := s.db.DeletePlanSnapshot(ctx, id); err != nil {
			s.logger.WithError(err).WithField("plan_id", id).Error("fail to delete persisted plan")
		}
	}
	return nil
}

func (s *PlanService) GetExecutionHistory(ctx context.Context, planID uint64, take int, skip int) ([]types.ExecutionRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("execution history storage not configured")
	}
	if take <= 0 || take > 100 {
		take = 20
	}
	if skip < 0 {
		skip = 0
	}
	return s.db.GetExecutions(ctx, planID, take, skip)
}

// PreviewQuote returns a cached or fresh quote for a prospective pair. The
// result is a preview; executions always re-quote at dispatch time.
func (s *PlanService) PreviewQuote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (router.Quote, error) {
	if s.cache != nil {
		cached, err := s.cache.GetQuote(ctx, source, target, amountIn, slippageBps)
		if err != nil {
			s.logger.WithError(err).Warn("fail to read quote cache")
		} else if cached != nil {
			return *cached, nil
		}
	}

	r := s.sameDomain
	if s.classifier != nil && s.classifier.RequiresCrossDomain(source, target) {
		r = s.crossDomain
	}
	q, err := r.Quote(ctx, source, target, amountIn, slippageBps)
	if err != nil {
		return router.Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, source, target, amountIn, slippageBps, q); err != nil {
			s.logger.WithError(err).Warn("fail to write quote cache")
		}
	}
	return q, nil
}

// Rehydrate rebuilds the in-memory store from persisted snapshots after a
// restart. Completed plans are restored for their read surface; cancelled
// plans never persist.
func (s *PlanService) Rehydrate(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	snapshots, err := s.db.GetAllPlanSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("fail to load persisted plans: %w", err)
	}
	restored := 0
	for _, snapshot := range snapshots {
		if _, err := s.store.Restore(snapshot); err != nil {
			s.logger.WithError(err).WithField("plan_id", snapshot.ID).Error("fail to restore plan")
			continue
		}
		restored++
	}
	return restored, nil
}

func (s *PlanService) persist(ctx context.Context, snapshot types.PlanSnapshot) {
	if s.db == nil {
		return
	}
	if err := s.db.UpsertPlanSnapshot(ctx, snapshot); err != nil {
		s.logger.WithError(err).WithField("plan_id", snapshot.ID).Error("fail to persist plan snapshot")
	}
}
