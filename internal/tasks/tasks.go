// Package tasks holds the asynq task types and queue names shared by the
// scheduling service and the worker.
package tasks

const (
	TypeExecutePlan = "plan:execute"

	QueueHigh   = "dca_high"
	QueueMedium = "dca_medium"
	QueueLow    = "dca_low"
)

// QueueFor maps an invocation priority to its asynq queue. Unknown
// priorities land on the medium queue.
func QueueFor(priority string) string {
	switch priority {
	case "high":
		return QueueHigh
	case "low":
		return QueueLow
	default:
		return QueueMedium
	}
}
