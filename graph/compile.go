package graph

import (
	"maps"
	"slices"
	"sort"

	"github.com/tailored-agentic-units/stategraph/state"
)

// Compiled is a validated, immutable graph ready to run.
type Compiled struct {
	name        string
	schema      *state.Schema
	nodes       map[string]Node
	order       []string
	entry       []string
	static      map[string][]string
	conditional map[string][]ConditionalEdge
}

// Compile validates def and builds the structures the engine consumes.
//
// Validation covers:
//   - at least one node, unique non-empty ids, End not used as an id
//   - every node has a body
//   - channel schema is well formed
//   - entry point declared and naming declared nodes
//   - every static and conditional target is a declared node or End
//   - every node is reachable from the entry points
//   - fallback updates only name declared channels
//
// All problems are reported together in a *CompileError.
func Compile(def Definition) (*Compiled, error) {
	var errs []error

	schema, err := state.NewSchema(def.Channels...)
	if err != nil {
		errs = append(errs, err)
	}

	g := &Compiled{
		name:        def.Name,
		schema:      schema,
		nodes:       make(map[string]Node, len(def.Nodes)),
		static:      make(map[string][]string),
		conditional: make(map[string][]ConditionalEdge),
	}

	if len(def.Nodes) == 0 {
		errs = append(errs, ErrNoNodes)
	}

	for _, n := range def.Nodes {
		switch {
		case n.ID == "":
			errs = append(errs, &InvalidNodeError{Node: n.ID, Reason: "empty id"})
			continue
		case n.ID == End:
			errs = append(errs, &InvalidNodeError{Node: n.ID, Reason: "id is reserved"})
			continue
		case n.Body == nil:
			errs = append(errs, &InvalidNodeError{Node: n.ID, Reason: "no body"})
		}
		if _, exists := g.nodes[n.ID]; exists {
			errs = append(errs, &DuplicateNodeError{Node: n.ID})
			continue
		}
		if n.Fallback != nil {
			n.Fallback = maps.Clone(n.Fallback)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	isTarget := func(id string) bool {
		if id == End {
			return true
		}
		_, ok := g.nodes[id]
		return ok
	}

	if len(def.EntryPoints) == 0 {
		errs = append(errs, ErrMissingEntryPoint)
	}
	for _, id := range def.EntryPoints {
		if _, ok := g.nodes[id]; !ok {
			errs = append(errs, &UnknownTargetError{Target: id})
			continue
		}
		if !slices.Contains(g.entry, id) {
			g.entry = append(g.entry, id)
		}
	}

	for _, e := range def.Edges {
		if _, ok := g.nodes[e.From]; !ok {
			errs = append(errs, &InvalidNodeError{Node: e.From, Reason: "edge source is not a declared node"})
			continue
		}
		if !isTarget(e.To) {
			errs = append(errs, &UnknownTargetError{From: e.From, Target: e.To})
			continue
		}
		if !slices.Contains(g.static[e.From], e.To) {
			g.static[e.From] = append(g.static[e.From], e.To)
		}
	}

	for _, ce := range def.ConditionalEdges {
		if _, ok := g.nodes[ce.From]; !ok {
			errs = append(errs, &InvalidNodeError{Node: ce.From, Reason: "conditional edge source is not a declared node"})
			continue
		}
		if ce.Router == nil {
			errs = append(errs, &InvalidNodeError{Node: ce.From, Reason: "conditional edge has no router"})
			continue
		}
		valid := true
		for _, t := range ce.Targets {
			if !isTarget(t) {
				errs = append(errs, &UnknownTargetError{From: ce.From, Target: t})
				valid = false
			}
		}
		if !valid {
			continue
		}
		ce.Targets = slices.Clone(ce.Targets)
		g.conditional[ce.From] = append(g.conditional[ce.From], ce)
	}

	if schema != nil {
		for _, id := range g.order {
			n := g.nodes[id]
			for key := range n.Fallback {
				if _, ok := schema.Resolve(n.Namespace, key); !ok {
					errs = append(errs, &state.UnknownChannelError{Channel: state.Key(n.Namespace, key), Node: id})
				}
			}
		}
	}

	if len(g.entry) > 0 {
		for _, id := range g.unreachable() {
			errs = append(errs, &UnreachableNodeError{Node: id})
		}
	}

	if len(errs) > 0 {
		return nil, &CompileError{Graph: def.Name, Errs: errs}
	}
	return g, nil
}

// unreachable returns, sorted, the nodes no path from the entry points
// reaches. Conditional edges count through their declared targets.
func (g *Compiled) unreachable() []string {
	seen := make(map[string]bool, len(g.nodes))
	queue := slices.Clone(g.entry)
	for _, id := range queue {
		seen[id] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		next := slices.Clone(g.static[id])
		for _, ce := range g.conditional[id] {
			next = append(next, ce.Targets...)
		}
		for _, t := range next {
			if t == End || seen[t] {
				continue
			}
			seen[t] = true
			queue = append(queue, t)
		}
	}

	var out []string
	for _, id := range g.order {
		if !seen[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Compiled) Name() string {
	return g.name
}

func (g *Compiled) Schema() *state.Schema {
	return g.schema
}

// Node returns the declaration of id.
func (g *Compiled) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns node ids in declaration order.
func (g *Compiled) Nodes() []string {
	return slices.Clone(g.order)
}

func (g *Compiled) EntryPoints() []string {
	return slices.Clone(g.entry)
}

// StaticTargets returns the static edge targets of id in declaration order.
func (g *Compiled) StaticTargets(id string) []string {
	return slices.Clone(g.static[id])
}

// ConditionalEdges returns the conditional edges leaving id.
func (g *Compiled) ConditionalEdges(id string) []ConditionalEdge {
	return slices.Clone(g.conditional[id])
}
