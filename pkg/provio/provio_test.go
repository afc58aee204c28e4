package provio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/provtools/provtrace/pkg/provgraph"
)

// buildGraph assembles a small but representative graph: two statements,
// one data dependency between them, and a file read.
func buildGraph(t *testing.T) *provgraph.Graph {
	t.Helper()
	g := provgraph.New(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	g.Scripts().Register("demo.prs")

	p1 := g.AddNode(provgraph.Node{
		Kind:   provgraph.KindProcedure,
		Span:   provgraph.Span{Script: 1, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 6},
		Op:     "assign",
		Label:  "x = 1",
		Status: provgraph.StatusOK,
	})
	d1 := g.AddNode(provgraph.Node{
		Kind:    provgraph.KindData,
		Name:    "x",
		ScopeID: 1,
		Version: 1,
		Value:   "1",
	})
	p2 := g.AddNode(provgraph.Node{
		Kind:   provgraph.KindProcedure,
		Span:   provgraph.Span{Script: 1, StartLine: 2, StartCol: 1, EndLine: 2, EndCol: 9},
		Op:     "call",
		Label:  "print(x)",
		Status: provgraph.StatusOK,
	})
	f1 := g.AddNode(provgraph.Node{
		Kind:      provgraph.KindFile,
		Path:      "input.txt",
		Direction: provgraph.DirRead,
		Digest:    "abc123",
	})

	edges := []provgraph.Edge{
		{From: p1, To: d1, Kind: provgraph.EdgeDataOut},
		{From: d1, To: p2, Kind: provgraph.EdgeDataIn},
		{From: p1, To: p2, Kind: provgraph.EdgeSequence},
		{From: f1, To: p2, Kind: provgraph.EdgeDataIn},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return g
}

func demoManifest() Manifest {
	return Manifest{
		Tool:          "provtrace",
		Version:       "0.1.0",
		SessionID:     "00000000-0000-0000-0000-000000000001",
		Mode:          "script",
		Script:        "demo.prs",
		HashAlgorithm: "sha256",
	}
}

func TestFromGraphSplitsCollections(t *testing.T) {
	g := buildGraph(t)
	doc := FromGraph(g, demoManifest())

	if len(doc.Nodes) != 2 {
		t.Errorf("Nodes = %d, want 2", len(doc.Nodes))
	}
	if len(doc.Data) != 2 {
		t.Errorf("Data = %d, want 2", len(doc.Data))
	}
	if len(doc.Edges) != 4 {
		t.Errorf("Edges = %d, want 4", len(doc.Edges))
	}
	if len(doc.Manifest.Scripts) != 1 || doc.Manifest.Scripts[0].Path != "demo.prs" {
		t.Errorf("Scripts = %v, want demo.prs as #1", doc.Manifest.Scripts)
	}
	if doc.Manifest.StartTime != g.StartTime() {
		t.Errorf("StartTime = %v, want graph start time", doc.Manifest.StartTime)
	}
}

func TestRoundTrip(t *testing.T) {
	g := buildGraph(t)
	doc := FromGraph(g, demoManifest())

	var buf bytes.Buffer
	if err := WriteJSON(doc, &buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	read, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	g2, err := read.ToGraph()
	if err != nil {
		t.Fatalf("ToGraph: %v", err)
	}

	if g2.NodeCount() != g.NodeCount() {
		t.Errorf("NodeCount = %d, want %d", g2.NodeCount(), g.NodeCount())
	}
	if g2.EdgeCount() != g.EdgeCount() {
		t.Errorf("EdgeCount = %d, want %d", g2.EdgeCount(), g.EdgeCount())
	}
	for _, n := range g.Nodes() {
		got := g2.Node(n.ID)
		if got == nil {
			t.Fatalf("node %d missing after round trip", n.ID)
		}
		if *got != *n {
			t.Errorf("node %d = %+v, want %+v", n.ID, *got, *n)
		}
	}
	for i, e := range g.Edges() {
		if g2.Edges()[i] != e {
			t.Errorf("edge %d = %+v, want %+v", i, g2.Edges()[i], e)
		}
	}
	if g2.Scripts().Path(1) != "demo.prs" {
		t.Errorf("script 1 = %q, want demo.prs", g2.Scripts().Path(1))
	}
}

func TestToGraphRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "unknown kind",
			doc: Document{
				Nodes: []NodeEntry{{ID: 1, Kind: "mystery"}},
			},
		},
		{
			name: "sparse IDs",
			doc: Document{
				Nodes: []NodeEntry{{ID: 1, Kind: "procedure"}, {ID: 3, Kind: "procedure"}},
			},
		},
		{
			name: "dangling edge",
			doc: Document{
				Nodes: []NodeEntry{{ID: 1, Kind: "procedure"}},
				Edges: []EdgeEntry{{From: 1, To: 2, Kind: "sequence"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.doc.ToGraph(); err == nil {
				t.Error("ToGraph should fail")
			}
		})
	}
}

func TestExportImportJSON(t *testing.T) {
	g := buildGraph(t)
	doc := FromGraph(g, demoManifest())
	path := filepath.Join(t.TempDir(), "prov.json")

	if err := ExportJSON(doc, path); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	// Export again: the document is overwritten, not appended.
	if err := ExportJSON(doc, path); err != nil {
		t.Fatalf("ExportJSON (second): %v", err)
	}

	read, err := ImportJSON(path)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if read.Manifest.SessionID != doc.Manifest.SessionID {
		t.Errorf("SessionID = %q, want %q", read.Manifest.SessionID, doc.Manifest.SessionID)
	}
	if len(read.Nodes) != len(doc.Nodes) || len(read.Data) != len(doc.Data) || len(read.Edges) != len(doc.Edges) {
		t.Error("collection sizes changed across export/import")
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want 1", len(entries))
	}
}

func TestImportJSONMissingFile(t *testing.T) {
	if _, err := ImportJSON(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("ImportJSON should fail for a missing file")
	}
}

func TestToDOT(t *testing.T) {
	g := buildGraph(t)
	dot := ToDOT(g)

	for _, want := range []string{
		"digraph provenance {",
		`n1 [label="x = 1"`,
		`label="x v1"`,
		`label="input.txt"`,
		"n1 -> n2;",
		"n1 -> n3 [style=dotted];",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}
