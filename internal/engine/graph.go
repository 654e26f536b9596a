// Package engine provides a generic executor for directed graphs of
// named steps. Graphs support unconditional edges, conditional edges
// chosen by a router function over the post-node state, and parallel
// fan-out with a single-threaded merge at the join. State is
// checkpointed after every node under a caller-supplied thread id.
package engine

import (
	"context"
	"fmt"
)

// END is the sentinel node name that terminates execution.
const END = "END"

// NodeFunc executes one step, returning the updated state.
type NodeFunc[S any] func(ctx context.Context, s S) (S, error)

// RouterFunc inspects post-node state and returns the next node name
// from a fixed candidate set.
type RouterFunc[S any] func(s S) string

// SplitFunc produces one per-item state per fan-out worker.
type SplitFunc[S any] func(s S) []S

// MergeFunc folds one worker's result into the accumulator state.
// It must append or union, never overwrite, so out-of-order worker
// completion does not lose data.
type MergeFunc[S any] func(acc S, worker S) S

// FanOut declares a parallel fan-out attached to a source node.
// After the source node runs, Split produces per-item states, Worker
// runs once per item concurrently, and Merge folds every result into
// the shared state before execution proceeds to Join.
type FanOut[S any] struct {
	// Worker is the node run once per split item.
	Worker string
	// Join is the node execution proceeds to after all workers report.
	Join string
	// Split derives the per-item states from the post-source state.
	Split SplitFunc[S]
	// Merge folds one worker result into the accumulator.
	Merge MergeFunc[S]
	// MinResults is how many workers must succeed for the run to
	// continue. Zero means all spawned workers must succeed.
	MinResults int
}

type conditionalEdge[S any] struct {
	router     RouterFunc[S]
	candidates map[string]bool
}

// Graph is a builder for a workflow graph. Build errors are deferred
// to Compile so wiring reads linearly.
type Graph[S any] struct {
	nodes       map[string]NodeFunc[S]
	order       []string
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	fanouts     map[string]FanOut[S]
	entry       string
	err         error
}

// NewGraph creates an empty graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
		fanouts:     make(map[string]FanOut[S]),
	}
}

func (g *Graph[S]) fail(format string, args ...any) *Graph[S] {
	if g.err == nil {
		g.err = fmt.Errorf(format, args...)
	}
	return g
}

// AddNode registers a named step.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	if name == "" || name == END {
		return g.fail("invalid node name %q", name)
	}
	if _, exists := g.nodes[name]; exists {
		return g.fail("duplicate node %q", name)
	}
	if fn == nil {
		return g.fail("nil node func for %q", name)
	}
	g.nodes[name] = fn
	g.order = append(g.order, name)
	return g
}

// AddEdge registers an unconditional edge from one node to the next
// node or END.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if _, dup := g.edges[from]; dup {
		return g.fail("node %q already has an edge", from)
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge registers a router on a node. The router's return
// value must be one of the declared candidates (END is allowed).
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], candidates ...string) *Graph[S] {
	if router == nil {
		return g.fail("nil router for %q", from)
	}
	if len(candidates) == 0 {
		return g.fail("no candidates for conditional edge on %q", from)
	}
	set := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		set[c] = true
	}
	g.conditional[from] = conditionalEdge[S]{router: router, candidates: set}
	return g
}

// AddFanOut registers a parallel fan-out on a source node.
func (g *Graph[S]) AddFanOut(from string, fo FanOut[S]) *Graph[S] {
	if fo.Split == nil || fo.Merge == nil {
		return g.fail("fan-out on %q requires split and merge", from)
	}
	g.fanouts[from] = fo
	return g
}

// SetEntry sets the node execution starts from.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// Compile validates the graph structure and returns an executable form.
func (g *Graph[S]) Compile() (*Compiled[S], error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.entry == "" {
		return nil, fmt.Errorf("graph has no entry node")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("entry node %q not registered", g.entry)
	}

	known := func(name string) bool {
		if name == END {
			return true
		}
		_, ok := g.nodes[name]
		return ok
	}

	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", from)
		}
		if !known(to) {
			return nil, fmt.Errorf("edge from %q targets unknown node %q", from, to)
		}
	}
	for from, ce := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("conditional edge from unknown node %q", from)
		}
		for c := range ce.candidates {
			if !known(c) {
				return nil, fmt.Errorf("conditional edge on %q has unknown candidate %q", from, c)
			}
		}
	}
	for from, fo := range g.fanouts {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("fan-out from unknown node %q", from)
		}
		if _, ok := g.nodes[fo.Worker]; !ok {
			return nil, fmt.Errorf("fan-out on %q has unknown worker %q", from, fo.Worker)
		}
		if !known(fo.Join) {
			return nil, fmt.Errorf("fan-out on %q has unknown join %q", from, fo.Join)
		}
	}

	// Every node needs some way forward.
	for name := range g.nodes {
		_, hasEdge := g.edges[name]
		_, hasCond := g.conditional[name]
		_, hasFan := g.fanouts[name]
		if !hasEdge && !hasCond && !hasFan {
			// Fan-out workers are reached through the fan-out itself.
			if !g.isWorker(name) {
				return nil, fmt.Errorf("node %q has no outgoing edge", name)
			}
		}
	}

	return &Compiled[S]{
		nodes:       g.nodes,
		order:       g.order,
		edges:       g.edges,
		conditional: g.conditional,
		fanouts:     g.fanouts,
		entry:       g.entry,
	}, nil
}

func (g *Graph[S]) isWorker(name string) bool {
	for _, fo := range g.fanouts {
		if fo.Worker == name {
			return true
		}
	}
	return false
}

// Compiled is a validated, executable graph.
type Compiled[S any] struct {
	nodes       map[string]NodeFunc[S]
	order       []string
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	fanouts     map[string]FanOut[S]
	entry       string
}

// Entry returns the entry node name.
func (c *Compiled[S]) Entry() string {
	return c.entry
}

// NodeCount returns the number of registered nodes.
func (c *Compiled[S]) NodeCount() int {
	return len(c.nodes)
}

// NodeNames returns node names in registration order.
func (c *Compiled[S]) NodeNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HasNode reports whether the graph declares the named node.
func (c *Compiled[S]) HasNode(name string) bool {
	_, ok := c.nodes[name]
	return ok
}
