// Package graph holds the field dependency graph: which fields must resolve
// before which. Nodes are field names in declaration order; declaration order
// is also the deterministic tie-break everywhere an order is ambiguous.
//
// Unlike a task scheduler the graph tolerates cycles at construction time,
// because convergent execution is allowed to iterate over cyclic schemas. The
// caller decides whether a cycle is fatal.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalid     = errors.New("invalid dependency graph")
	ErrUnknownNode = errors.New("unknown field")
)

// GraphError wraps deterministic graph construction failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Edge declares that From must resolve before To.
type Edge struct {
	From string
	To   string
}

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable dependency graph over field names.
//
// It is safe for concurrent read access.
type Graph struct {
	index map[string]int
	names []string // declaration order

	edges []edgeIndex // sorted, deduplicated

	outgoing [][]int // by declaration index, sorted ascending
	incoming [][]int // by declaration index, sorted ascending
	indeg    []int   // by declaration index

	topo  []int // Kahn output; shorter than names when cyclic
	cycle []int // one witness path when cyclic, nil otherwise
	depth []int // longest path from any root, acyclic graphs only
}

// New builds a Graph. Node order is declaration order. Duplicate edges and
// self-edges are dropped silently; an edge naming an unknown node is an
// error. Cycles are recorded, not rejected.
func New(names []string, edges []Edge) (*Graph, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, invalidf(ErrInvalid, "empty field name")
		}
		if _, exists := index[n]; exists {
			return nil, invalidf(ErrInvalid, "duplicate field name: %q", n)
		}
		index[n] = i
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := index[e.From]
		to, okTo := index[e.To]
		if !okFrom {
			return nil, invalidf(ErrUnknownNode, "%q (referenced by %q)", e.From, e.To)
		}
		if !okTo {
			return nil, invalidf(ErrUnknownNode, "%q", e.To)
		}
		if from == to {
			continue
		}
		pair := edgeIndex{from: from, to: to}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(names))
	incoming := make([][]int, len(names))
	indeg := make([]int, len(names))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}

	owned := make([]string, len(names))
	copy(owned, names)

	g := &Graph{
		index:    index,
		names:    owned,
		edges:    mapped,
		outgoing: outgoing,
		incoming: incoming,
		indeg:    indeg,
	}

	g.topo = g.topoOrderIndices()
	if len(g.topo) != len(g.names) {
		g.cycle = g.findCycleDeterministic()
	} else {
		g.depth = g.computeDepth()
	}
	return g, nil
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.names) }

// Cyclic reports whether the graph contains at least one cycle.
func (g *Graph) Cyclic() bool { return g.cycle != nil }

// Cycle returns one deterministic witness path (a -> b -> a rendered as
// ["a","b","a"]), or nil when the graph is acyclic.
func (g *Graph) Cycle() []string {
	if g.cycle == nil {
		return nil
	}
	out := make([]string, 0, len(g.cycle))
	for _, idx := range g.cycle {
		out = append(out, g.names[idx])
	}
	return out
}

// TopologicalOrder returns a deterministic topological ordering. ok is false
// when the graph is cyclic.
func (g *Graph) TopologicalOrder() ([]string, bool) {
	if g.Cyclic() {
		return nil, false
	}
	return g.toNames(g.topo), true
}

// BestEffortOrder returns the topologically sortable prefix followed by the
// remaining (cyclic) nodes in declaration order. Convergent execution visits
// fields in this order every iteration.
func (g *Graph) BestEffortOrder() []string {
	if !g.Cyclic() {
		return g.toNames(g.topo)
	}
	placed := make([]bool, len(g.names))
	for _, idx := range g.topo {
		placed[idx] = true
	}
	out := g.toNames(g.topo)
	for i := range g.names {
		if !placed[i] {
			out = append(out, g.names[i])
		}
	}
	return out
}

// Levels groups nodes by topological depth: every node's dependencies sit in
// strictly earlier levels, so the nodes of one level are mutually
// independent. Nil when the graph is cyclic.
func (g *Graph) Levels() [][]string {
	if g.Cyclic() {
		return nil
	}
	maxDepth := 0
	for _, d := range g.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]string, maxDepth+1)
	for i, d := range g.depth {
		levels[d] = append(levels[d], g.names[i])
	}
	return levels
}

// DependsOn returns the direct dependencies of a node in declaration order.
func (g *Graph) DependsOn(name string) []string {
	idx, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.toNames(g.incoming[idx])
}

func (g *Graph) toNames(idxs []int) []string {
	out := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, g.names[idx])
	}
	return out
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.names))
	for _, u := range g.topo {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}
