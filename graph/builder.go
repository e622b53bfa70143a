package graph

import (
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/stategraph/state"
)

// Definition is the uncompiled description of a graph.
type Definition struct {
	Name             string
	Channels         []state.Channel
	Nodes            []Node
	Edges            []Edge
	ConditionalEdges []ConditionalEdge
	EntryPoints      []string
}

// Builder assembles a Definition incrementally. Methods reject obviously
// malformed input immediately; shape checks that need the whole graph
// (targets, reachability) happen in Compile, so edges may name nodes that are
// added later.
type Builder struct {
	def Definition
	ids map[string]bool
}

// NewBuilder starts an empty definition.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: Definition{Name: name},
		ids: make(map[string]bool),
	}
}

// AddChannel declares channels in the graph schema.
func (b *Builder) AddChannel(channels ...state.Channel) {
	b.def.Channels = append(b.def.Channels, channels...)
}

// AddNode registers a task body under id.
//
// Nodes must have unique ids. End is reserved.
func (b *Builder) AddNode(id string, body NodeFunc, opts ...NodeOption) error {
	if id == "" {
		return fmt.Errorf("node id cannot be empty")
	}

	if id == End {
		return fmt.Errorf("node id %s is reserved", End)
	}

	if body == nil {
		return fmt.Errorf("node %s body cannot be nil", id)
	}

	if b.ids[id] {
		return fmt.Errorf("node %s already exists", id)
	}

	node := Node{ID: id, Body: body}
	for _, opt := range opts {
		opt(&node)
	}

	b.ids[id] = true
	b.def.Nodes = append(b.def.Nodes, node)
	return nil
}

// AddEdge adds a static edge. to may be End.
func (b *Builder) AddEdge(from, to string) error {
	if from == "" {
		return fmt.Errorf("from node cannot be empty")
	}

	if to == "" {
		return fmt.Errorf("to node cannot be empty")
	}

	b.def.Edges = append(b.def.Edges, Edge{From: from, To: to})
	return nil
}

// AddConditionalEdge routes from through router. targets declares every id
// the router may return.
func (b *Builder) AddConditionalEdge(from string, router Router, targets ...string) error {
	if from == "" {
		return fmt.Errorf("from node cannot be empty")
	}

	if router == nil {
		return fmt.Errorf("router for %s cannot be nil", from)
	}

	if len(targets) == 0 {
		return fmt.Errorf("conditional edge from %s declares no targets", from)
	}

	b.def.ConditionalEdges = append(b.def.ConditionalEdges, ConditionalEdge{
		From:    from,
		Router:  router,
		Targets: slices.Clone(targets),
	})
	return nil
}

// AddBarrier routes from through a Barrier on the completed and expected
// channels, converging on target. Every barrier on the same completed channel
// and target shares one join, so target runs once per run even when a
// completion signal is repeated after convergence.
func (b *Builder) AddBarrier(from, completed, expected, target string) error {
	if err := b.AddConditionalEdge(from, Barrier(completed, expected, target), target, End); err != nil {
		return err
	}
	b.def.ConditionalEdges[len(b.def.ConditionalEdges)-1].Join = JoinKey(completed, target)
	return nil
}

// SetEntryPoint defines the node(s) of the first round. Several ids start a
// pure fan-out graph. It can only be set once.
func (b *Builder) SetEntryPoint(ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("entry point cannot be empty")
	}

	if len(b.def.EntryPoints) > 0 {
		return fmt.Errorf("entry point already set to %v", b.def.EntryPoints)
	}

	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("entry point cannot be empty")
		}
	}

	b.def.EntryPoints = slices.Clone(ids)
	return nil
}

// Definition returns a copy of the definition assembled so far.
func (b *Builder) Definition() Definition {
	return Definition{
		Name:             b.def.Name,
		Channels:         slices.Clone(b.def.Channels),
		Nodes:            slices.Clone(b.def.Nodes),
		Edges:            slices.Clone(b.def.Edges),
		ConditionalEdges: slices.Clone(b.def.ConditionalEdges),
		EntryPoints:      slices.Clone(b.def.EntryPoints),
	}
}

// Compile compiles the assembled definition.
func (b *Builder) Compile() (*Compiled, error) {
	return Compile(b.Definition())
}
