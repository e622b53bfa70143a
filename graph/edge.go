package graph

import "github.com/tailored-agentic-units/stategraph/state"

// Router chooses the targets of a conditional edge from post-merge state.
// Returning no targets, End, one id, or several ids (fan-out) are all valid,
// as long as every id is in the edge's declared targets.
type Router func(view state.View) []string

// Edge is a static transition, taken every time From completes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes From through Router. Targets lists every id the
// router may return, End included if the router can stop the branch.
//
// Join, when set, names the fan-in the edge belongs to. Edges sharing a Join
// route past End at most once per run: after the first convergence the engine
// ends any branch that reaches the join again.
type ConditionalEdge struct {
	From    string
	Router  Router
	Targets []string
	Join    string
}

// JoinKey names the fan-in of a barrier on completed converging on target.
func JoinKey(completed, target string) string {
	return completed + "->" + target
}

// Barrier returns a fan-in router. It reads the number of distinct ids in the
// append channel completed and compares it with the integer channel expected:
// when the count has reached expected, it routes to target; otherwise the
// calling branch ends. An expected value of zero or less never converges, so
// a dispatcher that launches no branches must route to target directly.
func Barrier(completed, expected, target string) Router {
	return func(view state.View) []string {
		want := view.Int(expected)
		if want <= 0 {
			return []string{End}
		}
		if view.Set(completed).Len() >= want {
			return []string{target}
		}
		return []string{End}
	}
}

// Always returns a router that routes to the given targets unconditionally.
func Always(targets ...string) Router {
	return func(state.View) []string {
		return targets
	}
}
