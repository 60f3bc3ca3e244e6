package plan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Classifier decides whether an asset pair needs cross-domain routing.
// The asset registry provides the production implementation.
type Classifier interface {
	RequiresCrossDomain(source, target types.AssetID) bool
}

// Tokens are the scoped authorizations a store holds on behalf of its
// owner. Each is optional and independently revocable; Configured reports
// whether the set covers a given plan's routing strategy.
type Tokens struct {
	Source    capability.AssetAccount
	Target    capability.AssetAccount
	FeeSource capability.AssetAccount
	// Executor gates the delegated execution account used for cross-domain
	// swaps. Only required when an owned plan routes cross-domain.
	Executor capability.Token
}

// CreateParams carries the validated constructor arguments for a new plan.
type CreateParams struct {
	SourceAsset        types.AssetID
	TargetAsset        types.AssetID
	AmountPerInterval  fixedpoint.Amount
	IntervalSeconds    uint64
	MaxSlippageBps     uint16
	MaxExecutions      *uint64
	FirstExecutionTime time.Time
}

// Store exclusively owns a collection of plans keyed by a monotonically
// assigned id, plus the capability tokens needed to execute them.
type Store struct {
	mu     sync.RWMutex
	nextID atomic.Uint64
	plans  map[uint64]*Plan

	tokens     Tokens
	classifier Classifier
	sink       types.EventSink
	now        func() time.Time
}

type StoreOption func(*Store)

// WithClock overrides the store clock; tests pin it.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithEventSink(sink types.EventSink) StoreOption {
	return func(s *Store) { s.sink = sink }
}

func NewStore(tokens Tokens, classifier Classifier, opts ...StoreOption) *Store {
	s := &Store{
		plans:      make(map[uint64]*Plan),
		tokens:     tokens,
		classifier: classifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Tokens() Tokens { return s.tokens }

// Create validates params, assigns the next id and inserts a fresh Active
// plan with its first due time.
func (s *Store) Create(params CreateParams) (*Plan, error) {
	if params.AmountPerInterval == 0 {
		return nil, fmt.Errorf("%w: amount per interval must be greater than 0", types.ErrValidation)
	}
	if params.IntervalSeconds == 0 {
		return nil, fmt.Errorf("%w: interval must be greater than 0", types.ErrValidation)
	}
	if params.MaxSlippageBps > fixedpoint.MaxBps {
		return nil, fmt.Errorf("%w: slippage %d bps exceeds %d", types.ErrValidation, params.MaxSlippageBps, fixedpoint.MaxBps)
	}
	if params.MaxExecutions != nil && *params.MaxExecutions == 0 {
		return nil, fmt.Errorf("%w: max executions must be greater than 0 when set", types.ErrValidation)
	}
	if params.SourceAsset == params.TargetAsset {
		return nil, fmt.Errorf("%w: source and target assets are the same", types.ErrValidation)
	}
	createdAt := s.now()
	if !params.FirstExecutionTime.After(createdAt) {
		return nil, fmt.Errorf("%w: first execution time must be in the future", types.ErrValidation)
	}

	first := params.FirstExecutionTime
	p := &Plan{
		id:                s.nextID.Add(1),
		sourceAsset:       params.SourceAsset,
		targetAsset:       params.TargetAsset,
		amountPerInterval: params.AmountPerInterval,
		intervalSeconds:   params.IntervalSeconds,
		maxSlippageBps:    params.MaxSlippageBps,
		status:            types.StatusActive,
		nextExecutionTime: &first,
		createdAt:         createdAt,
		crossDomain:       s.classifier != nil && s.classifier.RequiresCrossDomain(params.SourceAsset, params.TargetAsset),
		now:               s.now,
		sink:              s.sink,
	}
	if params.MaxExecutions != nil {
		m := *params.MaxExecutions
		p.maxExecutions = &m
	}

	s.mu.Lock()
	s.plans[p.id] = p
	s.mu.Unlock()

	p.emit(types.EventPlanCreated, map[string]interface{}{
		"source_asset":         p.sourceAsset,
		"target_asset":         p.targetAsset,
		"amount_per_interval":  uint64(p.amountPerInterval),
		"interval_seconds":     p.intervalSeconds,
		"first_execution_time": first,
	})
	return p, nil
}

// Restore re-inserts a persisted snapshot after a restart, keeping the id
// counter above every restored id. Cancelled plans are never restored; they
// left the store when they were cancelled.
func (s *Store) Restore(snapshot types.PlanSnapshot) (*Plan, error) {
	if snapshot.ID == 0 {
		return nil, fmt.Errorf("%w: snapshot missing plan id", types.ErrValidation)
	}
	if snapshot.Status == types.StatusCancelled {
		return nil, fmt.Errorf("%w: cancelled plan %d cannot be restored", types.ErrValidation, snapshot.ID)
	}

	p := &Plan{
		id:                  snapshot.ID,
		sourceAsset:         snapshot.SourceAsset,
		targetAsset:         snapshot.TargetAsset,
		amountPerInterval:   fixedpoint.Amount(snapshot.AmountPerInterval),
		intervalSeconds:     snapshot.IntervalSeconds,
		maxSlippageBps:      snapshot.MaxSlippageBps,
		status:              snapshot.Status,
		executionCount:      snapshot.ExecutionCount,
		totalSourceInvested: fixedpoint.Amount(snapshot.TotalSourceInvested),
		totalTargetAcquired: fixedpoint.Amount(snapshot.TotalTargetAcquired),
		createdAt:           snapshot.CreatedAt,
		crossDomain:         snapshot.RequiresCrossDomain,
		now:                 s.now,
		sink:                s.sink,
	}
	if snapshot.MaxExecutions != nil {
		m := *snapshot.MaxExecutions
		p.maxExecutions = &m
	}
	if snapshot.NextExecutionTime != nil {
		t := *snapshot.NextExecutionTime
		p.nextExecutionTime = &t
	}
	if snapshot.LastExecutedAt != nil {
		t := *snapshot.LastExecutedAt
		p.lastExecutedAt = &t
	}
	if snapshot.AvgExecutionPriceFP != "" && snapshot.AvgExecutionPriceFP != "0" {
		avg, err := uint256.FromDecimal(snapshot.AvgExecutionPriceFP)
		if err != nil {
			return nil, fmt.Errorf("%w: bad average price %q: %v", types.ErrValidation, snapshot.AvgExecutionPriceFP, err)
		}
		p.avgExecutionPriceFP = avg
	}

	s.mu.Lock()
	s.plans[p.id] = p
	s.mu.Unlock()

	for {
		current := s.nextID.Load()
		if current >= p.id || s.nextID.CompareAndSwap(current, p.id) {
			break
		}
	}
	return p, nil
}

// Borrow hands out the owned plan for one synchronous invocation.
func (s *Store) Borrow(id uint64) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: plan %d not found", types.ErrValidation, id)
	}
	return p, nil
}

// Remove drops a plan from the store. Removal is how external cancellation
// is expressed; the Cancelled status never persists inside the store.
func (s *Store) Remove(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("%w: plan %d not found", types.ErrValidation, id)
	}
	delete(s.plans, id)
	return nil
}

// Snapshots returns read-only DTOs for every owned plan.
func (s *Store) Snapshots() []types.PlanSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PlanSnapshot, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Snapshot())
	}
	return out
}

// Configured reports whether every token the plan's routing strategy needs
// is present and currently valid.
func (s *Store) Configured(p *Plan) error {
	if s.tokens.Source == nil {
		return fmt.Errorf("%w: source account token missing", types.ErrCapability)
	}
	if err := s.tokens.Source.Check(); err != nil {
		return err
	}
	if s.tokens.Target == nil {
		return fmt.Errorf("%w: target account token missing", types.ErrCapability)
	}
	if err := s.tokens.Target.Check(); err != nil {
		return err
	}
	if p.RequiresCrossDomain() {
		if s.tokens.Executor == nil {
			return fmt.Errorf("%w: delegated executor token missing for cross-domain plan %d", types.ErrCapability, p.ID())
		}
		if err := s.tokens.Executor.Check(); err != nil {
			return err
		}
	}
	return nil
}
