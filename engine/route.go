package engine

import (
	"context"
	"runtime/debug"
	"slices"
	"time"

	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/observability"
	"github.com/tailored-agentic-units/stategraph/state"
)

// advance builds the next frontier from the nodes that just ran. Static
// targets are always taken; conditional routers see the merged state scoped
// to their source node. End is dropped and targets are deduplicated in the
// order they are first contributed.
func (e *Engine) advance(ctx context.Context, r *run, executed []string) ([]string, error) {
	view := r.store.Snapshot()

	var next []string
	seen := make(map[string]bool)

	// Joins converging this round; several markers may reach one join together.
	converged := make(map[string]bool)
	add := func(target string) {
		if target == graph.End || seen[target] {
			return
		}
		seen[target] = true
		next = append(next, target)
	}

	for _, id := range executed {
		for _, target := range r.graph.StaticTargets(id) {
			add(target)
		}

		node, _ := r.graph.Node(id)
		for _, ce := range r.graph.ConditionalEdges(id) {
			targets, err := route(ce.Router, view.Scoped(node.Namespace))
			if err != nil {
				return nil, &RoutingError{From: id, Cause: err}
			}

			for _, target := range targets {
				if !slices.Contains(ce.Targets, target) {
					return nil, &RoutingContractViolation{
						From:    id,
						Target:  target,
						Allowed: slices.Clone(ce.Targets),
					}
				}
			}

			suppressed := false
			if ce.Join != "" && converges(targets) {
				if r.joined[ce.Join] {
					targets = []string{graph.End}
					suppressed = true
				} else {
					converged[ce.Join] = true
				}
			}

			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventEdgeRoute,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    e.name,
				Data: map[string]any{
					"run_id":         r.result.RunID,
					"from":           id,
					"targets":        slices.Clone(targets),
					"already_joined": suppressed,
				},
			})

			for _, target := range targets {
				add(target)
			}
		}
	}

	for join := range converged {
		r.joined[join] = true
	}

	return next, nil
}

func route(router graph.Router, view state.View) (targets []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	return router(view), nil
}

// converges reports whether targets continue past End.
func converges(targets []string) bool {
	for _, t := range targets {
		if t != graph.End {
			return true
		}
	}
	return false
}
