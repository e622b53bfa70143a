package state

import (
	"encoding/json"
	"slices"
	"strings"
)

// Set is an immutable, sorted collection of distinct string identifiers.
// Append channels hold a Set. The zero value is an empty set.
type Set struct {
	items []string
}

// NewSet returns a Set containing the distinct items.
func NewSet(items ...string) Set {
	if len(items) == 0 {
		return Set{}
	}
	sorted := slices.Clone(items)
	slices.Sort(sorted)
	return Set{items: slices.Compact(sorted)}
}

// Union returns a Set holding the items of both sets.
func (s Set) Union(other Set) Set {
	if len(other.items) == 0 {
		return s
	}
	if len(s.items) == 0 {
		return other
	}
	merged := make([]string, 0, len(s.items)+len(other.items))
	merged = append(merged, s.items...)
	merged = append(merged, other.items...)
	return NewSet(merged...)
}

func (s Set) Len() int {
	return len(s.items)
}

func (s Set) Contains(item string) bool {
	_, found := slices.BinarySearch(s.items, item)
	return found
}

// Items returns the identifiers in sorted order.
func (s Set) Items() []string {
	return slices.Clone(s.items)
}

// Equal reports whether both sets hold the same identifiers.
func (s Set) Equal(other Set) bool {
	return slices.Equal(s.items, other.items)
}

func (s Set) String() string {
	return "{" + strings.Join(s.items, ", ") + "}"
}

func (s Set) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}
