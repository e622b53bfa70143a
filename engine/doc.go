// Package engine runs compiled graphs in bulk-synchronous rounds.
//
// Each round executes the current frontier concurrently against one snapshot
// of state, merges every update at once with the channel reductions, and
// only then evaluates edges against the merged state to build the next
// frontier. A run completes when the frontier is empty. It aborts when the
// step limit is reached with work remaining, when its timeout expires, or
// when the caller cancels it. It fails when a node fails without a declared
// fallback, when two nodes conflict on an overwrite channel, or when a router
// breaks its declared contract.
//
//	eng, err := engine.New(config.DefaultEngineConfig("report"))
//	result, err := eng.Run(ctx, g, map[string]any{"prompt": "..."})
//	if err != nil {
//	    // result.Status, result.Reason, and result.State describe the outcome
//	}
//
// Every milestone is reported to the configured observability.Observer.
package engine
