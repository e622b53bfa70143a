// Package graph declares and compiles execution graphs.
//
// A graph is a set of nodes (task bodies), static edges (always taken),
// conditional edges (a Router chooses targets from a declared set), one or
// more entry points, and the channel schema the nodes share. End is the
// terminal marker: routing to it stops the branch.
//
//	b := graph.NewBuilder("report")
//	b.AddChannel(state.OverwriteChannel[string]("metrics"))
//	b.AddNode("fetch", fetchMetrics)
//	b.AddNode("summarize", summarize)
//	b.AddEdge("fetch", "summarize")
//	b.AddEdge("summarize", graph.End)
//	b.SetEntryPoint("fetch")
//	g, err := b.Compile()
//
// Compile is pure: it checks the shape of a Definition and returns either a
// Compiled graph or a CompileError listing every problem found. A Compiled
// graph holds no per-run state and is safe to share across concurrent runs.
package graph
