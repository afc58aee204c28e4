package provgraph

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when the From node
	// does not exist in the graph.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrDanglingEdge is returned by [Graph.Validate] when an edge references
	// a node that doesn't exist. This indicates graph corruption.
	ErrDanglingEdge = errors.New("dangling edge endpoint")

	// ErrUnbalanced is returned by [Graph.Validate] when a Procedure node is
	// still open or a Control start has no matching finish. This should never
	// occur if the builder's cleanup path runs on every exit.
	ErrUnbalanced = errors.New("unbalanced start/finish nodes")
)

// Graph is the in-memory provenance record of one capture session.
//
// The graph is append-only: nodes and edges are never removed once added,
// and node IDs increase monotonically in creation order. Procedure nodes
// are mutated in place only to move from StatusOpen to a terminal status;
// File nodes are mutated in place only to fix their direction and final
// digest. Nothing else changes after insertion.
//
// Graph is not safe for concurrent use; the capture engine is strictly
// single-threaded, so no internal locking is carried.
type Graph struct {
	nodes  []*Node
	edges  []Edge
	nextID NodeID

	started time.Time
	scripts *ScriptRegistry
}

// New creates an empty graph stamped with the session start time.
func New(started time.Time) *Graph {
	return &Graph{
		nextID:  1,
		started: started,
		scripts: NewScriptRegistry(),
	}
}

// StartTime returns the session start time the graph was created with.
func (g *Graph) StartTime() time.Time { return g.started }

// Scripts returns the registry mapping script numbers to paths.
func (g *Graph) Scripts() *ScriptRegistry { return g.scripts }

// AddNode appends a node, assigns the next ID, and returns it.
// The caller's copy is not retained.
func (g *Graph) AddNode(n Node) NodeID {
	n.ID = g.nextID
	g.nextID++
	g.nodes = append(g.nodes, &n)
	return n.ID
}

// AddEdge appends a directed edge between two existing nodes.
// Returns ErrUnknownSourceNode or ErrUnknownTargetNode when an endpoint
// has not been created yet; the no-dangling-references invariant is
// enforced at insertion, not just at Validate.
func (g *Graph) AddEdge(e Edge) error {
	if g.Node(e.From) == nil {
		return fmt.Errorf("edge %d->%d: %w", e.From, e.To, ErrUnknownSourceNode)
	}
	if g.Node(e.To) == nil {
		return fmt.Errorf("edge %d->%d: %w", e.From, e.To, ErrUnknownTargetNode)
	}
	g.edges = append(g.edges, e)
	return nil
}

// Node returns the node with the given ID, or nil if it does not exist.
// IDs are dense, so lookup is a bounds-checked index.
func (g *Graph) Node(id NodeID) *Node {
	if id < 1 || int(id) > len(g.nodes) {
		return nil
	}
	return g.nodes[id-1]
}

// Nodes returns all nodes in creation order. The slice is shared; callers
// must not modify it.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns all edges in creation order. The slice is shared; callers
// must not modify it.
func (g *Graph) Edges() []Edge { return g.edges }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// CountKind returns the number of nodes of the given kind.
func (g *Graph) CountKind(kind NodeKind) int {
	c := 0
	for _, n := range g.nodes {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// Validate checks the graph's structural invariants:
//
//   - every edge references existing nodes (ErrDanglingEdge)
//   - no Procedure node is still open (ErrUnbalanced)
//   - Control start and finish counts match (ErrUnbalanced)
//
// Validate is a defensive check run at finalize; a failure indicates a bug
// in the builder's cleanup path, not a recoverable condition.
func (g *Graph) Validate() error {
	for _, e := range g.edges {
		if g.Node(e.From) == nil || g.Node(e.To) == nil {
			return fmt.Errorf("edge %d->%d (%s): %w", e.From, e.To, e.Kind, ErrDanglingEdge)
		}
	}
	starts, finishes := 0, 0
	for _, n := range g.nodes {
		switch n.Kind {
		case KindProcedure:
			if n.Status == StatusOpen {
				return fmt.Errorf("procedure %d (%s) still open: %w", n.ID, n.Label, ErrUnbalanced)
			}
		case KindControl:
			switch n.Boundary {
			case BoundaryStart:
				starts++
			case BoundaryFinish:
				finishes++
			}
		}
	}
	if starts != finishes {
		return fmt.Errorf("control starts %d != finishes %d: %w", starts, finishes, ErrUnbalanced)
	}
	return nil
}
