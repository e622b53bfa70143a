package observability

import "context"

// NoOpObserver is registered as "noop". Engines built without an observer
// fall back to it, so run code never checks for nil.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
