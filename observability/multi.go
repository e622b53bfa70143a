package observability

import (
	"context"
	"fmt"
	"os"
)

// MultiObserver delivers every event to a set of sinks (logs, metrics,
// streams) in registration order. Nested MultiObservers are flattened.
//
// Nodes emit events from their own goroutines, so a panicking sink must not
// take the run down: the panic is reported on stderr and the event still
// reaches the remaining sinks.
type MultiObserver struct {
	observers []Observer
}

func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil:
		case *MultiObserver:
			if o != nil {
				m.observers = append(m.observers, o.observers...)
			}
		default:
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// Len is the number of sinks after flattening.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		deliver(ctx, obs, event)
	}
}

func deliver(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "observer %T panicked on %s: %v\n", obs, event.Type, r)
		}
	}()
	obs.OnEvent(ctx, event)
}
