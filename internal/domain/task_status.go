package domain

// TaskState represents the canonical lifecycle stage of a job.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
	TaskStateUnknown   TaskState = "unknown"
)

// Wire status strings reported by the worker API.
const (
	WireStatusPending  = "PENDING"
	WireStatusProgress = "PROGRESS"
	WireStatusSuccess  = "SUCCESS"
	WireStatusFailure  = "FAILURE"
)

// IsTerminal reports whether no further transition can follow s.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// rank orders states along the forward-only lifecycle.
// Unknown has no rank and never moves a session.
func (s TaskState) rank() int {
	switch s {
	case TaskStatePending:
		return 1
	case TaskStateRunning:
		return 2
	case TaskStateSucceeded, TaskStateFailed:
		return 3
	default:
		return 0
	}
}

// Advance returns the lifecycle state that follows s when next is observed.
// Terminal states are final, Unknown is ignored and backward moves are
// dropped.
func (s TaskState) Advance(next TaskState) TaskState {
	if s.IsTerminal() || next.rank() == 0 {
		return s
	}
	if next.rank() < s.rank() {
		return s
	}
	return next
}
