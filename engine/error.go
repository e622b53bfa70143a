package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is reported when a run exceeds its wall-clock timeout.
var ErrTimeout = errors.New("run timed out")

// ErrCancelled is reported when the caller cancels a run.
var ErrCancelled = errors.New("run cancelled")

// NodeFailure reports a node body that returned an error or panicked on
// every attempt. The run's state is left as it was at the start of Round.
type NodeFailure struct {
	Node     string
	Round    int
	Attempts int
	Cause    error
}

func (e *NodeFailure) Error() string {
	return fmt.Sprintf("node %s failed in round %d after %d attempt(s): %v",
		e.Node, e.Round, e.Attempts, e.Cause)
}

func (e *NodeFailure) Unwrap() error {
	return e.Cause
}

// PanicError carries a recovered panic from a node body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NodeTimeoutError reports an attempt that outlived its node timeout.
type NodeTimeoutError struct {
	Node    string
	Timeout string
}

func (e *NodeTimeoutError) Error() string {
	return fmt.Sprintf("node %s exceeded its %s timeout", e.Node, e.Timeout)
}

// StepLimitExceeded reports a run that still had work scheduled after Limit
// rounds. It points at a routing or barrier bug rather than a failing node.
type StepLimitExceeded struct {
	Limit    int
	Frontier []string
}

func (e *StepLimitExceeded) Error() string {
	return fmt.Sprintf("step limit of %d rounds exceeded with frontier [%s]",
		e.Limit, strings.Join(e.Frontier, ", "))
}

// RoutingContractViolation reports a router returning a target outside the
// edge's declared targets. It is raised before the target is scheduled.
type RoutingContractViolation struct {
	From    string
	Target  string
	Allowed []string
}

func (e *RoutingContractViolation) Error() string {
	return fmt.Sprintf("router on %s returned %q, declared targets are [%s]",
		e.From, e.Target, strings.Join(e.Allowed, ", "))
}

// RoutingError reports a router that panicked.
type RoutingError struct {
	From  string
	Cause error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("router on %s failed: %v", e.From, e.Cause)
}

func (e *RoutingError) Unwrap() error {
	return e.Cause
}
