package immediate

import (
	"sync/atomic"
)

// TaskState is the lifecycle state of a single task.
//
// State Machine:
//
//	TaskStateScheduled → TaskStateCanceled  [Cancel() / Close()]
//	TaskStateScheduled → TaskStateExecuted  [drain]
//	TaskStateCanceled  → (terminal)
//	TaskStateExecuted  → (terminal)
//
// Cancel on a terminal state is a no-op. Use tryTransition (CAS) for every
// change, so a concurrent Cancel and drain agree on a single winner.
type TaskState uint32

const (
	// TaskStateUnknown is reported for IDs the Scheduler no longer tracks
	// (never issued, or already consumed).
	TaskStateUnknown TaskState = iota
	// TaskStateScheduled indicates the task is waiting for a drain.
	TaskStateScheduled
	// TaskStateCanceled indicates the task will never run.
	TaskStateCanceled
	// TaskStateExecuted indicates the callback has been invoked.
	TaskStateExecuted
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskStateScheduled:
		return "Scheduled"
	case TaskStateCanceled:
		return "Canceled"
	case TaskStateExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

// taskState is a lock-free holder for a TaskState.
type taskState struct {
	v atomic.Uint32
}

func (s *taskState) load() TaskState {
	return TaskState(s.v.Load())
}

// tryTransition attempts to atomically move from one state to another.
func (s *taskState) tryTransition(from, to TaskState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
