package state

import "strings"

// View is a read-only snapshot of a store. A View scoped to a namespace
// resolves keys to "namespace.key" before falling back to the flat key.
type View struct {
	schema    *Schema
	values    map[string]any
	namespace string
}

// NewView builds a standalone view over values. It is mainly useful for
// exercising routers and node bodies outside a run.
func NewView(schema *Schema, values map[string]any) View {
	return View{schema: schema, values: copyValues(values)}
}

// Scoped returns the same snapshot resolving keys in namespace.
func (v View) Scoped(namespace string) View {
	v.namespace = namespace
	return v
}

func (v View) Namespace() string {
	return v.namespace
}

// Lookup resolves key in namespace (qualified first, then flat) and returns
// the channel value or its default. The boolean is false when no declared
// channel matches.
func (v View) Lookup(namespace, key string) (any, bool) {
	if v.schema == nil {
		val, ok := v.values[key]
		return val, ok
	}

	name, ok := v.schema.Resolve(namespace, key)
	if !ok {
		return nil, false
	}
	if val, set := v.values[name]; set {
		return val, true
	}
	ch, _ := v.schema.Channel(name)
	return ch.defaultValue(), true
}

// Get resolves key in the view's namespace. Unknown keys read as nil.
func (v View) Get(key string) any {
	val, _ := v.Lookup(v.namespace, key)
	return val
}

// Has reports whether key resolves to a channel that has been written.
func (v View) Has(key string) bool {
	if v.schema == nil {
		_, ok := v.values[key]
		return ok
	}
	name, ok := v.schema.Resolve(v.namespace, key)
	if !ok {
		return false
	}
	_, set := v.values[name]
	return set
}

func (v View) String(key string) string {
	s, _ := v.Get(key).(string)
	return s
}

func (v View) Bool(key string) bool {
	b, _ := v.Get(key).(bool)
	return b
}

// Int reads integer channels, accepting the integer and float kinds that
// decoded or computed values commonly arrive as.
func (v View) Int(key string) int {
	switch n := v.Get(key).(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Set reads an append channel. Non-set values read as the empty set.
func (v View) Set(key string) Set {
	s, _ := v.Get(key).(Set)
	return s
}

// Data returns a copy of every written channel under its qualified name.
func (v View) Data() map[string]any {
	return copyValues(v.values)
}

// Nested returns the written channels with qualified names expanded into
// one map per namespace: "charts.layout" becomes {"charts": {"layout": ...}}.
// A qualified key whose namespace collides with a flat channel value stays
// in dotted form.
func (v View) Nested() map[string]any {
	out := make(map[string]any, len(v.values))

	for name, val := range v.values {
		if !strings.Contains(name, ".") {
			out[name] = val
		}
	}

	groups := make(map[string]map[string]any)
	for name, val := range v.values {
		ns, key, ok := strings.Cut(name, ".")
		if !ok {
			continue
		}
		if _, flat := v.values[ns]; flat {
			out[name] = val
			continue
		}
		m, exists := groups[ns]
		if !exists {
			m = make(map[string]any)
			groups[ns] = m
			out[ns] = m
		}
		m[key] = val
	}

	return out
}

// Get reads key from v as a T. The boolean is false when the channel is
// missing or holds a value of another type.
func Get[T any](v View, key string) (T, bool) {
	t, ok := v.Get(key).(T)
	return t, ok
}
