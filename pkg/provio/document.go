package provio

import (
	"fmt"
	"sort"
	"time"

	"github.com/provtools/provtrace/pkg/provgraph"
)

// Manifest identifies the capture session a document belongs to.
type Manifest struct {
	Tool          string         `json:"tool"`
	Version       string         `json:"version"`
	SessionID     string         `json:"session_id"`
	Mode          string         `json:"mode"` // "script" or "console"
	Script        string         `json:"script,omitempty"`
	Scripts       []ScriptEntry  `json:"scripts,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	HashAlgorithm string         `json:"hash_algorithm"`
	Config        map[string]any `json:"config,omitempty"`
}

// ScriptEntry maps a script number to its path. Nested inclusions get
// fresh numbers in encounter order.
type ScriptEntry struct {
	Number int    `json:"number"`
	Path   string `json:"path"`
}

// Document is the on-disk form of a provenance graph.
type Document struct {
	Manifest Manifest    `json:"manifest"`
	Nodes    []NodeEntry `json:"nodes"`
	Data     []DataEntry `json:"data"`
	Edges    []EdgeEntry `json:"edges"`
}

// NodeEntry holds a Procedure or Control node.
type NodeEntry struct {
	ID        int             `json:"id"`
	Kind      string          `json:"kind"`
	Span      *provgraph.Span `json:"span,omitempty"`
	Op        string          `json:"op,omitempty"`
	Label     string          `json:"label,omitempty"`
	Status    string          `json:"status,omitempty"`
	Control   string          `json:"control,omitempty"`
	Boundary  string          `json:"boundary,omitempty"`
	Iteration int             `json:"iteration,omitempty"`
}

// DataEntry holds a Data, File or Device node.
type DataEntry struct {
	ID        int    `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	ScopeID   int    `json:"scope,omitempty"`
	Version   int    `json:"version,omitempty"`
	Value     string `json:"value,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Path      string `json:"path,omitempty"`
	Direction string `json:"direction,omitempty"`
	Surface   string `json:"surface,omitempty"`
}

// EdgeEntry is a directed relation between two node IDs.
type EdgeEntry struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Kind string `json:"kind"`
}

// FromGraph splits a graph into the document's node and data collections,
// preserving creation order within each, and attaches the manifest.
// The graph's script registry populates the manifest's script table when
// the manifest does not already carry one.
func FromGraph(g *provgraph.Graph, m Manifest) *Document {
	if m.Scripts == nil {
		for i, p := range g.Scripts().Paths() {
			m.Scripts = append(m.Scripts, ScriptEntry{Number: i + 1, Path: p})
		}
	}
	if m.StartTime.IsZero() {
		m.StartTime = g.StartTime()
	}

	doc := &Document{Manifest: m}
	for _, n := range g.Nodes() {
		switch n.Kind {
		case provgraph.KindProcedure:
			sp := n.Span
			doc.Nodes = append(doc.Nodes, NodeEntry{
				ID:     int(n.ID),
				Kind:   n.Kind.String(),
				Span:   &sp,
				Op:     n.Op,
				Label:  n.Label,
				Status: string(n.Status),
			})
		case provgraph.KindControl:
			doc.Nodes = append(doc.Nodes, NodeEntry{
				ID:        int(n.ID),
				Kind:      n.Kind.String(),
				Control:   string(n.Control),
				Boundary:  string(n.Boundary),
				Iteration: n.Iteration,
			})
		default:
			doc.Data = append(doc.Data, DataEntry{
				ID:        int(n.ID),
				Kind:      n.Kind.String(),
				Name:      n.Name,
				ScopeID:   n.ScopeID,
				Version:   n.Version,
				Value:     n.Value,
				Digest:    n.Digest,
				Path:      n.Path,
				Direction: string(n.Direction),
				Surface:   n.Surface,
			})
		}
	}
	for _, e := range g.Edges() {
		doc.Edges = append(doc.Edges, EdgeEntry{
			From: int(e.From),
			To:   int(e.To),
			Kind: string(e.Kind),
		})
	}
	return doc
}

var kindFromString = map[string]provgraph.NodeKind{
	"procedure": provgraph.KindProcedure,
	"data":      provgraph.KindData,
	"file":      provgraph.KindFile,
	"device":    provgraph.KindDevice,
	"control":   provgraph.KindControl,
}

// ToGraph reassembles the document into a provenance graph.
//
// The two node collections are merged and replayed in ID order so the
// rebuilt graph assigns identical IDs. ToGraph returns an error if IDs
// are not dense and consecutive from 1, if a kind string is unknown, or
// if an edge references a missing node.
func (d *Document) ToGraph() (*provgraph.Graph, error) {
	type tagged struct {
		id   int
		node provgraph.Node
	}
	all := make([]tagged, 0, len(d.Nodes)+len(d.Data))

	for _, n := range d.Nodes {
		k, ok := kindFromString[n.Kind]
		if !ok {
			return nil, fmt.Errorf("node %d: unknown kind %q", n.ID, n.Kind)
		}
		nd := provgraph.Node{
			Kind:      k,
			Op:        n.Op,
			Label:     n.Label,
			Status:    provgraph.Status(n.Status),
			Control:   provgraph.ControlKind(n.Control),
			Boundary:  provgraph.Boundary(n.Boundary),
			Iteration: n.Iteration,
		}
		if n.Span != nil {
			nd.Span = *n.Span
		}
		all = append(all, tagged{id: n.ID, node: nd})
	}
	for _, n := range d.Data {
		k, ok := kindFromString[n.Kind]
		if !ok {
			return nil, fmt.Errorf("data %d: unknown kind %q", n.ID, n.Kind)
		}
		all = append(all, tagged{id: n.ID, node: provgraph.Node{
			Kind:      k,
			Name:      n.Name,
			ScopeID:   n.ScopeID,
			Version:   n.Version,
			Value:     n.Value,
			Digest:    n.Digest,
			Path:      n.Path,
			Direction: provgraph.Direction(n.Direction),
			Surface:   n.Surface,
		}})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })

	g := provgraph.New(d.Manifest.StartTime)
	for _, s := range d.Manifest.Scripts {
		g.Scripts().Register(s.Path)
	}
	for i, t := range all {
		if t.id != i+1 {
			return nil, fmt.Errorf("node IDs not dense: expected %d, got %d", i+1, t.id)
		}
		g.AddNode(t.node)
	}
	for _, e := range d.Edges {
		err := g.AddEdge(provgraph.Edge{
			From: provgraph.NodeID(e.From),
			To:   provgraph.NodeID(e.To),
			Kind: provgraph.EdgeKind(e.Kind),
		})
		if err != nil {
			return nil, fmt.Errorf("edge %d->%d: %w", e.From, e.To, err)
		}
	}
	return g, nil
}
