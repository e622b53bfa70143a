package engine

import "fmt"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusInit      Status = "init"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusFailed
}

// CanTransition reports whether s may move to next.
// Valid transitions: init→running, running→{completed, aborted, failed}.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusInit:
		return next == StatusRunning
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Reason qualifies an aborted run.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonStepLimit Reason = "step_limit"
	ReasonTimeout   Reason = "timeout"
	ReasonCancelled Reason = "cancelled"
)

func (r *Result) transition(next Status) {
	if !r.Status.CanTransition(next) {
		panic(fmt.Sprintf("invalid run transition %s -> %s", r.Status, next))
	}
	r.Status = next
}
