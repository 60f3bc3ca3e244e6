package types

import "time"

type EventKind string

const (
	EventPlanCreated      EventKind = "PLAN_CREATED"
	EventPlanExecuted     EventKind = "PLAN_EXECUTED"
	EventPlanPaused       EventKind = "PLAN_PAUSED"
	EventPlanResumed      EventKind = "PLAN_RESUMED"
	EventExecutionSkipped EventKind = "EXECUTION_SKIPPED"
	EventExecutionFailed  EventKind = "EXECUTION_FAILED"
	EventRescheduleFailed EventKind = "RESCHEDULE_FAILED"
)

// Event is a domain event observed by the handler pipeline and the plan
// state machine. Events are the only observable effect of invocations that
// decline to mutate state.
type Event struct {
	Kind   EventKind              `json:"kind"`
	PlanID uint64                 `json:"plan_id"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// EventSink receives domain events. Implementations must not fail the
// caller; emission is fire-and-forget.
type EventSink interface {
	Emit(event Event)
}
