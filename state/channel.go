package state

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Reduction determines how writes to a channel combine.
type Reduction int

const (
	// Overwrite replaces the previous value (default).
	Overwrite Reduction = iota

	// Append unions string identifiers into a Set.
	Append
)

func (r Reduction) String() string {
	switch r {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("reduction(%d)", int(r))
	}
}

// Channel declares a named slot in the store.
//
// Type is optional; when set, overwrite writes must be assignable to it.
// Append channels always hold a Set and ignore Type. Default is returned by
// reads of a channel that has never been written.
type Channel struct {
	Name      string
	Reduction Reduction
	Type      reflect.Type
	Default   any
}

// OverwriteChannel declares an overwrite channel typed as T.
func OverwriteChannel[T any](name string) Channel {
	return Channel{Name: name, Reduction: Overwrite, Type: reflect.TypeFor[T]()}
}

// AppendChannel declares an append channel.
func AppendChannel(name string) Channel {
	return Channel{Name: name, Reduction: Append}
}

func (c Channel) defaultValue() any {
	if c.Reduction == Append {
		if s, ok := c.Default.(Set); ok {
			return s
		}
		return Set{}
	}
	return c.Default
}

// normalize checks a written value against the channel declaration and
// converts append writes to a Set.
func (c Channel) normalize(value any) (any, error) {
	if c.Reduction == Append {
		switch v := value.(type) {
		case Set:
			return v, nil
		case string:
			return NewSet(v), nil
		case []string:
			return NewSet(v...), nil
		default:
			return nil, &TypeMismatchError{Channel: c.Name, Want: "string, []string or state.Set", Got: typeName(value)}
		}
	}

	if c.Type == nil || value == nil {
		return value, nil
	}
	if !reflect.TypeOf(value).AssignableTo(c.Type) {
		return nil, &TypeMismatchError{Channel: c.Name, Want: c.Type.String(), Got: typeName(value)}
	}
	return value, nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// Key returns the qualified channel name for a namespaced key.
func Key(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + "." + key
}

// Schema is an immutable set of channel declarations. It is safe to share
// across concurrent runs.
type Schema struct {
	channels map[string]Channel
	names    []string
}

// NewSchema builds a schema. Channel names must be non-empty and unique.
func NewSchema(channels ...Channel) (*Schema, error) {
	s := &Schema{channels: make(map[string]Channel, len(channels))}

	for _, ch := range channels {
		if strings.TrimSpace(ch.Name) == "" {
			return nil, fmt.Errorf("channel name cannot be empty")
		}
		if _, exists := s.channels[ch.Name]; exists {
			return nil, fmt.Errorf("channel %s already declared", ch.Name)
		}
		if ch.Reduction != Overwrite && ch.Reduction != Append {
			return nil, fmt.Errorf("channel %s has unknown reduction %s", ch.Name, ch.Reduction)
		}
		if ch.Reduction == Overwrite && ch.Type != nil && ch.Default != nil &&
			!reflect.TypeOf(ch.Default).AssignableTo(ch.Type) {
			return nil, fmt.Errorf("channel %s default %s is not assignable to %s",
				ch.Name, typeName(ch.Default), ch.Type)
		}

		s.channels[ch.Name] = ch
		s.names = append(s.names, ch.Name)
	}

	sort.Strings(s.names)
	return s, nil
}

// Channel returns the declaration for name.
func (s *Schema) Channel(name string) (Channel, bool) {
	ch, ok := s.channels[name]
	return ch, ok
}

// Names returns the declared channel names in sorted order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Resolve maps a key used by a node in namespace to a declared channel:
// "namespace.key" first, then the flat key.
func (s *Schema) Resolve(namespace, key string) (string, bool) {
	if namespace != "" {
		if q := Key(namespace, key); s.has(q) {
			return q, true
		}
	}
	if s.has(key) {
		return key, true
	}
	return "", false
}

func (s *Schema) has(name string) bool {
	_, ok := s.channels[name]
	return ok
}
