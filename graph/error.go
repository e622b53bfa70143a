package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingEntryPoint is reported when a definition declares no entry point.
var ErrMissingEntryPoint = errors.New("entry point not set")

// ErrNoNodes is reported for a definition without nodes.
var ErrNoNodes = errors.New("graph has no nodes")

// CompileError collects every problem found while compiling a definition.
// errors.Is and errors.As see each collected error.
type CompileError struct {
	Graph string
	Errs  []error
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("graph %s failed to compile: %s", e.Graph, strings.Join(msgs, "; "))
}

func (e *CompileError) Unwrap() []error {
	return e.Errs
}

// DuplicateNodeError reports a node id declared more than once.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %s declared more than once", e.Node)
}

// UnknownTargetError reports an edge, route, or entry point naming a node
// that was never declared. From is empty for entry points.
type UnknownTargetError struct {
	From   string
	Target string
}

func (e *UnknownTargetError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("entry point %s is not a declared node", e.Target)
	}
	return fmt.Sprintf("edge from %s targets undeclared node %s", e.From, e.Target)
}

// UnreachableNodeError reports a node that no path from an entry point
// reaches through static edges or declared conditional targets.
type UnreachableNodeError struct {
	Node string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %s is unreachable from the entry point", e.Node)
}

// InvalidNodeError reports a node declaration that cannot run.
type InvalidNodeError struct {
	Node   string
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid node %q: %s", e.Node, e.Reason)
}
