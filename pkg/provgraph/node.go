package provgraph

import "fmt"

// NodeID identifies a node within a single graph. IDs are assigned from one
// monotonically increasing counter in creation order, starting at 1.
type NodeID int

// NodeKind distinguishes the tagged node variants of the provenance graph.
type NodeKind int

const (
	// KindProcedure represents one executed statement or call.
	KindProcedure NodeKind = iota
	// KindData represents one versioned value of a variable.
	KindData
	// KindFile represents a file touched by the observed script.
	KindFile
	// KindDevice represents a display surface (e.g., a plot device).
	KindDevice
	// KindControl marks entry/exit of an iteration-limited loop or
	// conditional block.
	KindControl
)

// String returns the interchange-format name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindProcedure:
		return "procedure"
	case KindData:
		return "data"
	case KindFile:
		return "file"
	case KindDevice:
		return "device"
	case KindControl:
		return "control"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Status records the outcome of a Procedure node.
type Status string

const (
	// StatusOpen marks a procedure whose statement is still executing.
	// No node may remain open once a session finalizes.
	StatusOpen Status = "open"
	// StatusOK marks a procedure whose statement completed normally.
	StatusOK Status = "ok"
	// StatusFailed marks a procedure whose statement raised an error.
	StatusFailed Status = "failed"
)

// Direction records how a File node was accessed.
type Direction string

const (
	DirUnknown Direction = ""
	DirRead    Direction = "read"
	DirWrite   Direction = "write"
	DirAppend  Direction = "append"
	// DirPlot marks a snapshot of a display surface persisted as a file.
	DirPlot Direction = "plot"
)

// ControlKind distinguishes loop and conditional Control nodes.
type ControlKind string

const (
	ControlLoop ControlKind = "loop"
	ControlCond ControlKind = "cond"
)

// Boundary marks whether a Control node opens or closes its block.
type Boundary string

const (
	BoundaryStart  Boundary = "start"
	BoundaryFinish Boundary = "finish"
)

// EdgeKind classifies the relation an edge records.
type EdgeKind string

const (
	// EdgeDataIn connects a Data node to the Procedure that read it.
	EdgeDataIn EdgeKind = "data-in"
	// EdgeDataOut connects a Procedure to a Data node it produced.
	EdgeDataOut EdgeKind = "data-out"
	// EdgeControl connects Control boundaries to the procedures they bracket.
	EdgeControl EdgeKind = "control"
	// EdgeSequence connects consecutive Procedure nodes in program order.
	EdgeSequence EdgeKind = "sequence"
)

// Span locates a statement in its source script. Script is the script number
// assigned by the registry; nested inclusions get fresh numbers.
type Span struct {
	Script    int `json:"script"`
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// String renders the span as script:line.col-line.col.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d.%d-%d.%d", s.Script, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Node is a tagged variant: Kind selects which field group is meaningful.
// Procedure nodes use Span, Op, Label and Status; Data nodes use Name,
// ScopeID, Version, Value and Digest; File nodes use Path, Direction and
// Digest; Device nodes use Surface; Control nodes use Control, Boundary
// and Iteration.
//
// The zero value is not usable - construct nodes with the Graph's Add
// helpers so IDs are assigned consistently.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Procedure fields.
	Span   Span
	Op     string // operation kind: assign, call, cond, loop, source, ...
	Label  string // abbreviated source text for display
	Status Status

	// Data fields.
	Name    string
	ScopeID int
	Version int
	Value   string // inline rendering or snapshot artifact reference
	Digest  string

	// File and Device fields.
	Path      string
	Direction Direction
	Surface   string

	// Control fields.
	Control   ControlKind
	Boundary  Boundary
	Iteration int
}

// Edge is a directed relation between two existing nodes.
type Edge struct {
	From NodeID
	To   NodeID
	Kind EdgeKind
}
