package observability

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Engine config names its observer ("noop", "slog", or anything a binary
// registers at startup) so config files stay plain data.
var registry = struct {
	sync.RWMutex
	byName map[string]Observer
}{
	byName: map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	},
}

// GetObserver resolves an observer name from engine config.
func GetObserver(name string) (Observer, error) {
	registry.RLock()
	defer registry.RUnlock()

	if obs, ok := registry.byName[name]; ok {
		return obs, nil
	}
	return nil, fmt.Errorf("unknown observer %q (registered: %v)", name, slices.Sorted(maps.Keys(registry.byName)))
}

// RegisterObserver binds name to observer, replacing an earlier binding.
// A nil observer is rejected so GetObserver never hands one to an engine.
func RegisterObserver(name string, observer Observer) {
	if observer == nil {
		panic(fmt.Sprintf("observability: nil observer registered as %q", name))
	}

	registry.Lock()
	defer registry.Unlock()
	registry.byName[name] = observer
}

func ObserverNames() []string {
	registry.RLock()
	defer registry.RUnlock()

	return slices.Sorted(maps.Keys(registry.byName))
}
