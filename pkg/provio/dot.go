package provio

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/provtools/provtrace/pkg/provgraph"
)

// ToDOT converts a provenance graph to Graphviz DOT format.
// The resulting DOT string can be rendered with [RenderSVG].
//
// Procedure nodes are drawn as boxes, data nodes as ellipses, file and
// device nodes as notes, and control boundaries as diamonds. Edge style
// follows the edge kind: sequence edges are dotted, control edges dashed.
func ToDOT(g *provgraph.Graph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph provenance {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [fontsize=11, margin=\"0.15,0.08\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  n%d [%s];\n", n.ID, strings.Join(nodeAttrs(n), ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&buf, "  n%d -> n%d%s;\n", e.From, e.To, edgeAttrs(e.Kind))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(n *provgraph.Node) []string {
	switch n.Kind {
	case provgraph.KindProcedure:
		attrs := []string{fmt.Sprintf("label=%q", n.Label), "shape=box", "style=\"rounded,filled\""}
		if n.Status == provgraph.StatusFailed {
			return append(attrs, "fillcolor=lightpink")
		}
		return append(attrs, "fillcolor=lightyellow")
	case provgraph.KindData:
		label := fmt.Sprintf("%s v%d", n.Name, n.Version)
		return []string{fmt.Sprintf("label=%q", label), "shape=ellipse", "style=filled", "fillcolor=lightblue"}
	case provgraph.KindFile:
		return []string{fmt.Sprintf("label=%q", n.Path), "shape=note", "style=filled", "fillcolor=lightgrey"}
	case provgraph.KindDevice:
		return []string{fmt.Sprintf("label=%q", n.Surface), "shape=note", "style=\"filled,dashed\"", "fillcolor=lightgrey"}
	case provgraph.KindControl:
		label := fmt.Sprintf("%s %s", n.Control, n.Boundary)
		if n.Iteration > 0 {
			label = fmt.Sprintf("%s #%d", label, n.Iteration)
		}
		return []string{fmt.Sprintf("label=%q", label), "shape=diamond"}
	}
	return []string{fmt.Sprintf("label=\"n%d\"", n.ID)}
}

func edgeAttrs(k provgraph.EdgeKind) string {
	switch k {
	case provgraph.EdgeSequence:
		return " [style=dotted]"
	case provgraph.EdgeControl:
		return " [style=dashed]"
	}
	return ""
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
