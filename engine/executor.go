package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/observability"
	"github.com/tailored-agentic-units/stategraph/state"
)

// outcome is the result of executing one node in a round.
type outcome struct {
	node      string
	namespace string
	update    state.Update
	attempts  int
	degraded  bool
	failure   *NodeFailure
}

// executeFrontier runs every node of the frontier against the same snapshot
// and waits for all of them. Outcomes are indexed like frontier. If ctx ends
// first, the nodes still running are abandoned, nodes not yet started never
// start, and all outcomes are discarded.
func (e *Engine) executeFrontier(ctx context.Context, r *run, frontier []string, snapshot state.View, round int) ([]outcome, error) {
	outcomes := make([]outcome, len(frontier))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, id := range frontier {
			if ctx.Err() != nil {
				break
			}
			node, _ := r.graph.Node(id)
			g.Go(func() error {
				// A queued node may only get a slot after the run ended.
				if ctx.Err() != nil {
					return nil
				}
				outcomes[i] = e.executeNode(ctx, r.result.RunID, node, snapshot, round)
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Nodes that honour cancellation can finish right as the context ends;
	// their errors are a consequence of the interruption, not failures.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// executeNode runs one node with its retry policy, converting errors and
// panics into a NodeFailure. A node with a fallback update degrades instead
// of failing.
func (e *Engine) executeNode(ctx context.Context, runID string, node graph.Node, snapshot state.View, round int) outcome {
	view := snapshot.Scoped(node.Namespace)

	policy := graph.RetryPolicy{MaxAttempts: 1}
	if node.Retry != nil {
		policy = *node.Retry
	}
	attempts := policy.Attempts()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventNodeStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id": runID,
			"node":   node.ID,
			"round":  round,
		},
	})

	start := time.Now()
	var lastErr error
	attempt := 0

retry:
	for attempt < attempts {
		attempt++

		update, err := invoke(ctx, node, view)
		if err == nil {
			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventNodeComplete,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    e.name,
				Data: map[string]any{
					"run_id":   runID,
					"node":     node.ID,
					"round":    round,
					"attempts": attempt,
					"duration": time.Since(start),
					"keys":     len(update),
				},
			})
			return outcome{node: node.ID, namespace: node.Namespace, update: update, attempts: attempt}
		}

		lastErr = err
		if attempt == attempts || !policy.Retryable(err) || ctx.Err() != nil {
			break
		}

		delay := policy.Backoff.DelayForAttempt(attempt - 1)

		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventNodeRetry,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    e.name,
			Data: map[string]any{
				"run_id":  runID,
				"node":    node.ID,
				"round":   round,
				"attempt": attempt,
				"delay":   delay,
				"error":   err.Error(),
			},
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			break retry
		}
	}

	failure := &NodeFailure{
		Node:     node.ID,
		Round:    round,
		Attempts: attempt,
		Cause:    lastErr,
	}

	if node.Fallback != nil {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventNodeDegraded,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    e.name,
			Data: map[string]any{
				"run_id":   runID,
				"node":     node.ID,
				"round":    round,
				"attempts": attempt,
				"duration": time.Since(start),
				"error":    lastErr.Error(),
			},
		})
		return outcome{
			node:      node.ID,
			namespace: node.Namespace,
			update:    node.Fallback,
			attempts:  attempt,
			degraded:  true,
			failure:   failure,
		}
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventNodeFailed,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id":   runID,
			"node":     node.ID,
			"round":    round,
			"attempts": attempt,
			"duration": time.Since(start),
			"error":    lastErr.Error(),
		},
	})

	return outcome{node: node.ID, namespace: node.Namespace, attempts: attempt, failure: failure}
}

type invocation struct {
	update state.Update
	err    error
}

// invoke runs a single attempt. With a node timeout the body runs on its own
// goroutine and is abandoned once the deadline passes.
func invoke(ctx context.Context, node graph.Node, view state.View) (state.Update, error) {
	if node.Timeout <= 0 {
		res := call(ctx, node.Body, view)
		return res.update, res.err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	results := make(chan invocation, 1)
	go func() {
		results <- call(attemptCtx, node.Body, view)
	}()

	select {
	case res := <-results:
		if res.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &NodeTimeoutError{Node: node.ID, Timeout: node.Timeout.String()}
		}
		return res.update, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NodeTimeoutError{Node: node.ID, Timeout: node.Timeout.String()}
	}
}

// call invokes body, recovering a panic as a PanicError.
func call(ctx context.Context, body graph.NodeFunc, view state.View) (res invocation) {
	defer func() {
		if rec := recover(); rec != nil {
			res = invocation{err: &PanicError{Value: rec, Stack: debug.Stack()}}
		}
	}()

	update, err := body(ctx, view)
	if err != nil {
		return invocation{err: err}
	}
	return invocation{update: update}
}
