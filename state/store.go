package state

import (
	"errors"
	"sort"
	"sync"
)

// Update is the partial state a node returns: channel key to value. Keys are
// resolved against the node's namespace when merged.
type Update map[string]any

// Write is one node's update for a round.
type Write struct {
	Node      string
	Namespace string
	Update    Update
}

// Store holds the values of one run. Only the engine mutates it, between
// rounds, through Merge. Nodes see it through Snapshot.
type Store struct {
	schema *Schema
	values map[string]any
	mu     sync.RWMutex
}

// NewStore creates a store seeded with initial values. Keys of initial are
// channel names; values are checked like writes.
func NewStore(schema *Schema, initial map[string]any) (*Store, error) {
	s := &Store{
		schema: schema,
		values: make(map[string]any, len(initial)),
	}

	for key, value := range initial {
		ch, ok := schema.Channel(key)
		if !ok {
			return nil, &UnknownChannelError{Channel: key}
		}
		v, err := ch.normalize(value)
		if err != nil {
			return nil, err
		}
		s.values[key] = v
	}

	return s, nil
}

func (s *Store) Schema() *Schema {
	return s.schema
}

// Get returns the value of channel name, or its default when never written.
func (s *Store) Get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[name]; ok {
		return v
	}
	if ch, ok := s.schema.Channel(name); ok {
		return ch.defaultValue()
	}
	return nil
}

// Snapshot returns a view of the current values. Slices and maps are copied,
// so views taken for concurrent nodes never share them.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return View{schema: s.schema, values: copyValues(s.values)}
}

// Values returns a copy of every channel that holds a value.
func (s *Store) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyValues(s.values)
}

// Merge applies one round of writes atomically. Every write is validated
// before anything is applied; on error the store is unchanged.
//
// Append channels union every write regardless of order. Overwrite channels
// accept exactly one writing node per round. Merge returns the sorted names of
// the channels that were written.
func (s *Store) Merge(writes []Write) ([]string, error) {
	type pending struct {
		value   any
		writers []string
	}

	staged := make(map[string]*pending)
	var errs []error

	for _, w := range writes {
		for key, value := range w.Update {
			name, ok := s.schema.Resolve(w.Namespace, key)
			if !ok {
				errs = append(errs, &UnknownChannelError{Channel: Key(w.Namespace, key), Node: w.Node})
				continue
			}
			ch, _ := s.schema.Channel(name)

			v, err := ch.normalize(value)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			p, exists := staged[name]
			if !exists {
				staged[name] = &pending{value: v, writers: []string{w.Node}}
				continue
			}

			p.writers = append(p.writers, w.Node)
			if ch.Reduction == Append {
				p.value = p.value.(Set).Union(v.(Set))
			} else {
				p.value = v
			}
		}
	}

	names := make([]string, 0, len(staged))
	for name := range staged {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch, _ := s.schema.Channel(name)
		if ch.Reduction != Overwrite {
			continue
		}
		if writers := distinct(staged[name].writers); len(writers) > 1 {
			errs = append(errs, &ConflictError{Channel: name, Nodes: writers})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		p := staged[name]
		ch, _ := s.schema.Channel(name)
		if ch.Reduction == Append {
			current, ok := s.values[name].(Set)
			if !ok {
				current = ch.defaultValue().(Set)
			}
			s.values[name] = current.Union(p.value.(Set))
			continue
		}
		s.values[name] = p.value
	}

	return names, nil
}

func distinct(items []string) []string {
	return NewSet(items...).Items()
}
