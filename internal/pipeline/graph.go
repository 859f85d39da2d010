package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Handler executes a node against the state. A returned error is a node
// failure; the orchestrator decides what happens next.
type Handler func(ctx context.Context, s *State) error

// Transition is the result of evaluating a node's outgoing edge. Retry marks
// an edge that re-enters the loop and consumes one iteration.
type Transition struct {
	To    Node
	Retry bool
}

// Router picks the next node from the state after a node has run.
type Router func(s *State) Transition

// Graph is a directed graph of nodes. Every non-terminal node has exactly
// one outgoing edge, plain or conditional.
type Graph struct {
	entry    Node
	handlers map[Node]Handler
	edges    map[Node]Node
	routers  map[Node]Router
	errs     []error
}

// NewGraph creates a graph starting at entry.
func NewGraph(entry Node) *Graph {
	return &Graph{
		entry:    entry,
		handlers: make(map[Node]Handler),
		edges:    make(map[Node]Node),
		routers:  make(map[Node]Router),
	}
}

// Entry returns the first node.
func (g *Graph) Entry() Node {
	return g.entry
}

// AddNode registers the handler for n.
func (g *Graph) AddNode(n Node, h Handler) *Graph {
	switch {
	case n.Terminal():
		g.errs = append(g.errs, fmt.Errorf("node %s is terminal and cannot have a handler", n))
	case g.handlers[n] != nil:
		g.errs = append(g.errs, fmt.Errorf("node %s registered twice", n))
	case h == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s has a nil handler", n))
	default:
		g.handlers[n] = h
	}
	return g
}

// AddEdge adds an unconditional edge.
func (g *Graph) AddEdge(from, to Node) *Graph {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge routes from a node through r.
func (g *Graph) AddConditionalEdge(from Node, r Router) *Graph {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return g
	}
	g.routers[from] = r
	return g
}

func (g *Graph) hasOutgoing(n Node) bool {
	_, plain := g.edges[n]
	_, cond := g.routers[n]
	return plain || cond
}

// Validate reports construction errors, nodes without outgoing edges, and
// edges into unknown nodes.
func (g *Graph) Validate() error {
	errs := append([]error(nil), g.errs...)
	if g.handlers[g.entry] == nil {
		errs = append(errs, fmt.Errorf("entry node %s has no handler", g.entry))
	}
	for _, n := range g.Nodes() {
		if !g.hasOutgoing(n) {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", n))
		}
	}
	for from, to := range g.edges {
		if g.handlers[from] == nil {
			errs = append(errs, fmt.Errorf("edge from unknown node %s", from))
		}
		if !to.Terminal() && g.handlers[to] == nil {
			errs = append(errs, fmt.Errorf("edge %s -> %s targets unknown node", from, to))
		}
	}
	for from := range g.routers {
		if g.handlers[from] == nil {
			errs = append(errs, fmt.Errorf("conditional edge from unknown node %s", from))
		}
	}
	return errors.Join(errs...)
}

// Nodes returns the registered nodes in sorted order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.handlers))
	for n := range g.handlers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Handler returns the handler for n.
func (g *Graph) Handler(n Node) (Handler, bool) {
	h, ok := g.handlers[n]
	return h, ok
}

// Next evaluates the outgoing edge of n.
func (g *Graph) Next(n Node, s *State) (Transition, error) {
	if to, ok := g.edges[n]; ok {
		return Transition{To: to}, nil
	}
	if r, ok := g.routers[n]; ok {
		t := r(s)
		if !t.To.Terminal() && g.handlers[t.To] == nil {
			return Transition{}, fmt.Errorf("router for %s chose unknown node %s", n, t.To)
		}
		return t, nil
	}
	return Transition{}, fmt.Errorf("node %s has no outgoing edge", n)
}
