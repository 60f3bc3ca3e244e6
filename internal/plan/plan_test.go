package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingSink struct {
	events []types.Event
}

func (r *recordingSink) Emit(e types.Event) { r.events = append(r.events, e) }

func (r *recordingSink) kinds() []types.EventKind {
	out := make([]types.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type sameDomainClassifier struct{}

func (sameDomainClassifier) RequiresCrossDomain(_, _ types.AssetID) bool { return false }

func newTestStore(clock *fakeClock, sink types.EventSink) *Store {
	return NewStore(Tokens{}, sameDomainClassifier{}, WithClock(clock.Now), WithEventSink(sink))
}

func maxExec(n uint64) *uint64 { return &n }

func createTestPlan(t *testing.T, s *Store, clock *fakeClock, max *uint64) *Plan {
	t.Helper()
	p, err := s.Create(CreateParams{
		SourceAsset:        "USDC",
		TargetAsset:        "FLOW",
		AmountPerInterval:  10 * fixedpoint.One,
		IntervalSeconds:    86400,
		MaxSlippageBps:     100,
		MaxExecutions:      max,
		FirstExecutionTime: clock.Now().Add(time.Second),
	})
	require.NoError(t, err)
	return p
}

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)

	first := createTestPlan(t, s, clock, nil)
	second := createTestPlan(t, s, clock, nil)
	require.Equal(t, first.ID()+1, second.ID())
}

func TestCreateValidation(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)

	valid := CreateParams{
		SourceAsset:        "USDC",
		TargetAsset:        "FLOW",
		AmountPerInterval:  fixedpoint.One,
		IntervalSeconds:    60,
		MaxSlippageBps:     50,
		FirstExecutionTime: clock.Now().Add(time.Minute),
	}

	testCases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"zero amount", func(p *CreateParams) { p.AmountPerInterval = 0 }},
		{"zero interval", func(p *CreateParams) { p.IntervalSeconds = 0 }},
		{"slippage above 10000", func(p *CreateParams) { p.MaxSlippageBps = 10001 }},
		{"zero max executions", func(p *CreateParams) { p.MaxExecutions = maxExec(0) }},
		{"same assets", func(p *CreateParams) { p.TargetAsset = p.SourceAsset }},
		{"first execution in the past", func(p *CreateParams) { p.FirstExecutionTime = clock.Now().Add(-time.Second) }},
		{"first execution at creation time", func(p *CreateParams) { p.FirstExecutionTime = clock.Now() }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)
			_, err := s.Create(params)
			require.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestFreshPlanState(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	first := clock.Now().Add(time.Hour)

	p, err := s.Create(CreateParams{
		SourceAsset:        "USDC",
		TargetAsset:        "FLOW",
		AmountPerInterval:  10 * fixedpoint.One,
		IntervalSeconds:    86400,
		MaxSlippageBps:     100,
		FirstExecutionTime: first,
	})
	require.NoError(t, err)

	snap := p.Snapshot()
	require.Equal(t, types.StatusActive, snap.Status)
	require.Zero(t, snap.ExecutionCount)
	require.NotNil(t, snap.NextExecutionTime)
	require.True(t, snap.NextExecutionTime.Equal(first))
	require.Nil(t, snap.LastExecutedAt)
	require.Equal(t, "0", snap.AvgExecutionPriceFP)
}

func TestIsReady(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, nil)

	require.False(t, p.IsReady(), "not due yet")

	clock.Advance(time.Second)
	require.True(t, p.IsReady(), "due exactly at next execution time")

	require.NoError(t, p.Pause())
	require.False(t, p.IsReady(), "paused plan is never ready")
}

func TestCheckReadyReasons(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, nil)

	err := p.CheckReady()
	require.ErrorIs(t, err, types.ErrNotReady)
	require.Contains(t, err.Error(), "not due")

	clock.Advance(time.Second)
	require.NoError(t, p.CheckReady())

	require.NoError(t, p.Pause())
	err = p.CheckReady()
	require.ErrorIs(t, err, types.ErrNotReady)
	require.Contains(t, err.Error(), string(types.StatusPaused))
}

func TestRecordExecutionAccounting(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	s := newTestStore(clock, sink)
	p := createTestPlan(t, s, clock, nil)
	clock.Advance(time.Second)

	require.NoError(t, p.RecordExecution(10*fixedpoint.One, 25*fixedpoint.One))

	snap := p.Snapshot()
	require.Equal(t, uint64(10*fixedpoint.One), snap.TotalSourceInvested)
	require.Equal(t, uint64(25*fixedpoint.One), snap.TotalTargetAcquired)
	require.Equal(t, uint64(1), snap.ExecutionCount)
	require.NotNil(t, snap.LastExecutedAt)
	require.Contains(t, sink.kinds(), types.EventPlanExecuted)

	// Totals accumulate exactly.
	require.NoError(t, p.RecordExecution(10*fixedpoint.One, 20*fixedpoint.One))
	snap = p.Snapshot()
	require.Equal(t, uint64(20*fixedpoint.One), snap.TotalSourceInvested)
	require.Equal(t, uint64(45*fixedpoint.One), snap.TotalTargetAcquired)
}

func TestRecordExecutionRejectsZeroAmounts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, nil)

	require.ErrorIs(t, p.RecordExecution(0, fixedpoint.One), types.ErrValidation)
	require.ErrorIs(t, p.RecordExecution(fixedpoint.One, 0), types.ErrValidation)
}

func TestCapTransitionsToCompleted(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, maxExec(2))
	clock.Advance(time.Second)

	require.NoError(t, p.RecordExecution(fixedpoint.One, fixedpoint.One))
	require.NoError(t, p.ArmNextCycle())
	require.Equal(t, types.StatusActive, p.Status())

	require.NoError(t, p.RecordExecution(fixedpoint.One, fixedpoint.One))
	require.Equal(t, types.StatusCompleted, p.Status())
	require.Nil(t, p.NextExecutionTime())
	require.True(t, p.HasReachedCap())

	// Completed is terminal.
	require.ErrorIs(t, p.ArmNextCycle(), types.ErrValidation)
	require.ErrorIs(t, p.RecordExecution(fixedpoint.One, fixedpoint.One), types.ErrValidation)
	require.ErrorIs(t, p.Pause(), types.ErrValidation)
}

func TestArmNextCycle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, nil)
	clock.Advance(time.Second)

	require.NoError(t, p.ArmNextCycle())
	next := p.NextExecutionTime()
	require.NotNil(t, next)
	require.True(t, next.Equal(clock.Now().Add(86400*time.Second)))
}

func TestPauseResume(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	s := newTestStore(clock, sink)
	p := createTestPlan(t, s, clock, nil)

	require.NoError(t, p.Pause())
	require.Equal(t, types.StatusPaused, p.Status())
	require.Nil(t, p.NextExecutionTime(), "pause clears the due time")
	require.ErrorIs(t, p.Pause(), types.ErrValidation)

	// Resume with derived next time.
	require.NoError(t, p.Resume(nil))
	require.Equal(t, types.StatusActive, p.Status())
	next := p.NextExecutionTime()
	require.NotNil(t, next)
	require.True(t, next.Equal(clock.Now().Add(86400*time.Second)))
	require.ErrorIs(t, p.Resume(nil), types.ErrValidation)

	// Resume with explicit next time.
	require.NoError(t, p.Pause())
	explicit := clock.Now().Add(time.Hour)
	require.NoError(t, p.Resume(&explicit))
	next = p.NextExecutionTime()
	require.NotNil(t, next)
	require.True(t, next.Equal(explicit))

	require.Contains(t, sink.kinds(), types.EventPlanPaused)
	require.Contains(t, sink.kinds(), types.EventPlanResumed)
}

func TestBorrowAndRemove(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(clock, nil)
	p := createTestPlan(t, s, clock, nil)

	borrowed, err := s.Borrow(p.ID())
	require.NoError(t, err)
	require.Same(t, p, borrowed)

	_, err = s.Borrow(p.ID() + 100)
	require.ErrorIs(t, err, types.ErrValidation)

	require.NoError(t, s.Remove(p.ID()))
	_, err = s.Borrow(p.ID())
	require.ErrorIs(t, err, types.ErrValidation)
	require.ErrorIs(t, s.Remove(p.ID()), types.ErrValidation)
}
