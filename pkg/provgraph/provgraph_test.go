package provgraph

import (
	"errors"
	"testing"
	"time"
)

func TestAddNodeAssignsMonotonicIDs(t *testing.T) {
	g := New(time.Now())

	ids := []NodeID{
		g.AddNode(Node{Kind: KindProcedure, Op: "assign", Status: StatusOK}),
		g.AddNode(Node{Kind: KindData, Name: "x", Version: 1}),
		g.AddNode(Node{Kind: KindProcedure, Op: "call", Status: StatusOK}),
	}

	for i, id := range ids {
		if int(id) != i+1 {
			t.Errorf("ids[%d] = %d, want %d", i, id, i+1)
		}
	}
	if g.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d, want 3", g.NodeCount())
	}
}

func TestAddEdgeRejectsDanglingEndpoints(t *testing.T) {
	g := New(time.Now())
	a := g.AddNode(Node{Kind: KindProcedure, Status: StatusOK})

	tests := []struct {
		name string
		edge Edge
		want error
	}{
		{
			name: "unknown source",
			edge: Edge{From: 99, To: a, Kind: EdgeDataIn},
			want: ErrUnknownSourceNode,
		},
		{
			name: "unknown target",
			edge: Edge{From: a, To: 99, Kind: EdgeDataOut},
			want: ErrUnknownTargetNode,
		},
		{
			name: "zero source",
			edge: Edge{From: 0, To: a, Kind: EdgeSequence},
			want: ErrUnknownSourceNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.AddEdge(tt.edge); !errors.Is(err, tt.want) {
				t.Errorf("AddEdge() = %v, want %v", err, tt.want)
			}
		})
	}

	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0 after rejected edges", g.EdgeCount())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph
		want  error
	}{
		{
			name:  "empty graph is valid",
			build: func() *Graph { return New(time.Now()) },
			want:  nil,
		},
		{
			name: "closed procedures and balanced controls",
			build: func() *Graph {
				g := New(time.Now())
				p := g.AddNode(Node{Kind: KindProcedure, Status: StatusOK})
				s := g.AddNode(Node{Kind: KindControl, Control: ControlLoop, Boundary: BoundaryStart, Iteration: 1})
				f := g.AddNode(Node{Kind: KindControl, Control: ControlLoop, Boundary: BoundaryFinish, Iteration: 1})
				_ = g.AddEdge(Edge{From: s, To: p, Kind: EdgeControl})
				_ = g.AddEdge(Edge{From: p, To: f, Kind: EdgeControl})
				return g
			},
			want: nil,
		},
		{
			name: "open procedure",
			build: func() *Graph {
				g := New(time.Now())
				g.AddNode(Node{Kind: KindProcedure, Status: StatusOpen, Label: "x = 1"})
				return g
			},
			want: ErrUnbalanced,
		},
		{
			name: "control start without finish",
			build: func() *Graph {
				g := New(time.Now())
				g.AddNode(Node{Kind: KindControl, Control: ControlLoop, Boundary: BoundaryStart})
				return g
			},
			want: ErrUnbalanced,
		},
		{
			name: "failed procedure still balanced",
			build: func() *Graph {
				g := New(time.Now())
				g.AddNode(Node{Kind: KindProcedure, Status: StatusFailed})
				return g
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.want == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCountKind(t *testing.T) {
	g := New(time.Now())
	g.AddNode(Node{Kind: KindProcedure, Status: StatusOK})
	g.AddNode(Node{Kind: KindProcedure, Status: StatusOK})
	g.AddNode(Node{Kind: KindData, Name: "x", Version: 1})
	g.AddNode(Node{Kind: KindFile, Path: "out.txt", Direction: DirWrite})

	if got := g.CountKind(KindProcedure); got != 2 {
		t.Errorf("CountKind(KindProcedure) = %d, want 2", got)
	}
	if got := g.CountKind(KindData); got != 1 {
		t.Errorf("CountKind(KindData) = %d, want 1", got)
	}
	if got := g.CountKind(KindControl); got != 0 {
		t.Errorf("CountKind(KindControl) = %d, want 0", got)
	}
}

func TestScriptRegistry(t *testing.T) {
	r := NewScriptRegistry()

	if got := r.Register("main.prs"); got != 1 {
		t.Errorf("Register(main) = %d, want 1", got)
	}
	if got := r.Register("lib.prs"); got != 2 {
		t.Errorf("Register(lib) = %d, want 2", got)
	}
	// A second inclusion of the same script is a distinct execution.
	if got := r.Register("lib.prs"); got != 3 {
		t.Errorf("Register(lib) again = %d, want 3", got)
	}

	if got := r.Path(2); got != "lib.prs" {
		t.Errorf("Path(2) = %q, want %q", got, "lib.prs")
	}
	if got := r.Path(0); got != "" {
		t.Errorf("Path(0) = %q, want empty", got)
	}
	if got := r.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}
