// Package provgraph defines the in-memory provenance graph model.
//
// # Overview
//
// A provenance graph is a directed record of one capture session: which
// statements ran (Procedure nodes), which versioned values they read and
// produced (Data nodes), which files and display surfaces they touched
// (File and Device nodes), and where instrumented loops and conditionals
// began and ended (Control nodes). Edges relate them as data-in, data-out,
// control, or sequence links.
//
// # Invariants
//
// The graph is append-only and single-threaded. Node IDs are assigned from
// one monotonically increasing counter, so creation order is recoverable
// from the IDs alone. Every edge references nodes that already exist -
// [Graph.AddEdge] rejects dangling endpoints at insertion time, and
// [Graph.Validate] re-checks the whole graph at finalize together with the
// start/finish balance of Procedure and Control nodes.
//
// # Usage
//
//	g := provgraph.New(time.Now())
//	p := g.AddNode(provgraph.Node{Kind: provgraph.KindProcedure, Op: "assign", Status: provgraph.StatusOpen})
//	d := g.AddNode(provgraph.Node{Kind: provgraph.KindData, Name: "x", Version: 1})
//	_ = g.AddEdge(provgraph.Edge{From: p, To: d, Kind: provgraph.EdgeDataOut})
//
// Serialization to the interchange document lives in the provio package;
// this package carries no encoding concerns.
package provgraph
