package engine

import "github.com/tailored-agentic-units/stategraph/observability"

const (
	// Run lifecycle
	EventRunStart    observability.EventType = "run.start"
	EventRunComplete observability.EventType = "run.complete"

	// Rounds
	EventRoundStart    observability.EventType = "round.start"
	EventRoundComplete observability.EventType = "round.complete"
	EventStateMerge    observability.EventType = "state.merge"

	// Nodes
	EventNodeStart    observability.EventType = "node.start"
	EventNodeComplete observability.EventType = "node.complete"
	EventNodeRetry    observability.EventType = "node.retry"
	EventNodeDegraded observability.EventType = "node.degraded"
	EventNodeFailed   observability.EventType = "node.failed"

	// Routing
	EventEdgeRoute observability.EventType = "edge.route"

	// Checkpointing
	EventCheckpointSave   observability.EventType = "checkpoint.save"
	EventCheckpointLoad   observability.EventType = "checkpoint.load"
	EventCheckpointResume observability.EventType = "checkpoint.resume"
)
