package graph

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/stategraph/state"
)

// End is the terminal marker. A route to End contributes nothing to the next
// frontier.
const End = "__end__"

// NodeFunc is a task body. It reads a snapshot taken at round start (scoped
// to the node's namespace) and returns the partial update it proposes.
type NodeFunc func(ctx context.Context, view state.View) (state.Update, error)

// Node is a declared unit of work.
type Node struct {
	ID        string
	Namespace string
	Body      NodeFunc

	// Retry, when set, re-runs a failed body within the same round.
	Retry *RetryPolicy

	// Fallback, when set, replaces the update of a body that still fails
	// after its retries and lets the run continue.
	Fallback state.Update

	// Timeout bounds a single attempt (0 = none).
	Timeout time.Duration
}

// NodeOption configures a Node at registration.
type NodeOption func(*Node)

// WithNamespace scopes the node's reads and writes to namespace.
func WithNamespace(namespace string) NodeOption {
	return func(n *Node) {
		n.Namespace = namespace
	}
}

// WithRetry opts the node into retries.
func WithRetry(policy RetryPolicy) NodeOption {
	return func(n *Node) {
		n.Retry = &policy
	}
}

// WithFallback declares the update substituted when the node fails.
func WithFallback(update state.Update) NodeOption {
	return func(n *Node) {
		n.Fallback = update
	}
}

// WithTimeout bounds each attempt of the node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) {
		n.Timeout = d
	}
}
