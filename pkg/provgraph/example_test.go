package provgraph_test

import (
	"fmt"
	"time"

	"github.com/provtools/provtrace/pkg/provgraph"
)

func ExampleGraph() {
	// Record the lineage of a single assignment: x = 1
	g := provgraph.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := g.AddNode(provgraph.Node{
		Kind:   provgraph.KindProcedure,
		Op:     "assign",
		Label:  "x = 1",
		Status: provgraph.StatusOK,
	})
	d := g.AddNode(provgraph.Node{Kind: provgraph.KindData, Name: "x", Version: 1, Value: "1"})
	_ = g.AddEdge(provgraph.Edge{From: p, To: d, Kind: provgraph.EdgeDataOut})

	fmt.Println("Nodes:", g.NodeCount())
	fmt.Println("Edges:", g.EdgeCount())
	fmt.Println("Valid:", g.Validate() == nil)
	// Output:
	// Nodes: 2
	// Edges: 1
	// Valid: true
}
