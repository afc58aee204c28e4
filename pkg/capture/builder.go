package capture

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/provgraph"
	"github.com/provtools/provtrace/pkg/script"
)

// labelLimit bounds the display label copied from a statement's source.
const labelLimit = 60

type frameKind int

const (
	frameProc frameKind = iota
	frameControl
)

// frame is one open entry of the builder's call stack. Frames are closed
// innermost first on every exit path, so the graph stays balanced even
// when the observed script fails mid-construct.
type frame struct {
	kind      frameKind
	proc      provgraph.NodeID
	control   provgraph.ControlKind
	iteration int
}

// BuilderConfig carries the instrumentation settings a builder runs under.
type BuilderConfig struct {
	// FirstLoop and MaxLoops bound the loop instrumentation window.
	FirstLoop int
	MaxLoops  int

	// Annotate instruments statements inside user function bodies.
	Annotate bool

	// ScriptsDir, when set, receives a verbatim copy of every script the
	// builder loads.
	ScriptsDir string
}

// Builder intercepts the statement stream and assembles the provenance
// graph: one Procedure node per executed statement, Data nodes for every
// binding a statement read or changed, and Control nodes bracketing
// instrumented loop iterations and conditional branches.
//
// Builder implements [script.BodyRunner] so user function calls recurse
// through the instrumented path when annotation is on.
type Builder struct {
	graph  *provgraph.Graph
	ev     *script.Evaluator
	snap   *Snapshotter
	tracer *Tracer
	logger *log.Logger
	cfg    BuilderConfig

	// ignore holds callee names whose bare-call statements execute without
	// node creation (engine bookkeeping like prov_save).
	ignore map[string]bool

	lastNode  provgraph.NodeID
	lastIsCtl bool
	lastProc  provgraph.NodeID
	frames    []frame

	// lineage maps scope id to the latest Data node per name, the source
	// of data-in edges under innermost-scope-wins lookup.
	lineage map[int]map[string]provgraph.NodeID

	curScript int
	curDir    string

	// inHook is set while the statement hook runs, blocking re-entry.
	inHook bool
}

var _ script.BodyRunner = (*Builder)(nil)

// NewBuilder creates a builder writing into g. The evaluator's Runner is
// pointed at the builder so annotated function bodies recurse through it.
func NewBuilder(g *provgraph.Graph, ev *script.Evaluator, snap *Snapshotter, tracer *Tracer, logger *log.Logger, cfg BuilderConfig) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	b := &Builder{
		graph:   g,
		ev:      ev,
		snap:    snap,
		tracer:  tracer,
		logger:  logger,
		cfg:     cfg,
		ignore:  map[string]bool{"prov_save": true},
		lineage: map[int]map[string]provgraph.NodeID{},
	}
	ev.Runner = b
	return b
}

// Ignore adds a callee name to the ignore set. Bare calls to ignored names
// execute without creating nodes.
func (b *Builder) Ignore(name string) { b.ignore[name] = true }

// SetScript records the script number and directory subsequent statements
// belong to. Relative source paths resolve against dir.
func (b *Builder) SetScript(num int, dir string) {
	b.curScript = num
	b.curDir = dir
}

// LastProc returns the most recently opened Procedure node. The I/O
// tracer links resources closed outside any statement to it.
func (b *Builder) LastProc() provgraph.NodeID { return b.lastProc }

// Run drives an ordered statement sequence through instrumentation.
// The first failing statement's error is returned after its bookkeeping
// completes; no error recovery happens inside a statement.
func (b *Builder) Run(stmts []script.Stmt, scope *script.Scope) error {
	if b.inHook {
		return errors.New(errors.ErrCodeSessionActive, "statement hook may not run statements")
	}
	for _, s := range stmts {
		if err := b.runStmt(s, scope); err != nil {
			return err
		}
	}
	return nil
}

// RunCallable brackets a caller-supplied routine in a single Procedure
// pair: delegated execution for hosts that drive their own statements.
func (b *Builder) RunCallable(fn func() error) error {
	if b.inHook {
		return errors.New(errors.ErrCodeSessionActive, "statement hook may not run statements")
	}
	proc := b.openProc(provgraph.Span{Script: b.curScript}, "call", "<callable>")
	err := fn()
	b.closeProc(proc, err != nil)
	if ferr := b.tracer.FlushSurface(proc); ferr != nil {
		b.logger.Warn("display capture skipped", "err", ferr)
	}
	b.notifyStatement(provgraph.Span{Script: b.curScript}, "<callable>", err)
	return err
}

// notifyStatement dispatches the per-statement hook. The inHook flag makes
// any attempt to run statements from inside the hook fail fast instead of
// corrupting the frame stack.
func (b *Builder) notifyStatement(span provgraph.Span, label string, err error) {
	b.inHook = true
	ActiveHooks().OnStatement(span, label, err)
	b.inHook = false
}

// RunFunctionBody implements [script.BodyRunner]. With annotation off the
// body executes plainly; with it on, each body statement is instrumented
// while the caller's access record is suspended and restored.
func (b *Builder) RunFunctionBody(fn *script.Function, scope *script.Scope) error {
	if !b.cfg.Annotate {
		return b.ev.ExecBody(fn.Body, scope)
	}
	saved := scope.SaveAccess()
	defer scope.RestoreAccess(saved)
	for _, s := range fn.Body {
		if err := b.runStmt(s, scope); err != nil {
			return err
		}
	}
	return nil
}

// CloseFrames closes whatever frames remain open, innermost first: open
// procedures become failed, open control brackets get their finish nodes.
// A no-op when every construct exited normally.
func (b *Builder) CloseFrames() {
	for len(b.frames) > 0 {
		f := b.frames[len(b.frames)-1]
		b.frames = b.frames[:len(b.frames)-1]
		switch f.kind {
		case frameProc:
			if n := b.graph.Node(f.proc); n != nil && n.Status == provgraph.StatusOpen {
				n.Status = provgraph.StatusFailed
			}
		case frameControl:
			b.addControl(f.control, provgraph.BoundaryFinish, f.iteration)
		}
	}
}

// LoadScript reads, validates, registers, and parses a script file.
// The source must be valid UTF-8; the file is copied verbatim into the
// scripts directory before any of it executes.
func (b *Builder) LoadScript(path string) ([]script.Stmt, int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read script: %w", err)
	}
	if !utf8.Valid(src) {
		return nil, 0, errors.New(errors.ErrCodeEnvEncoding, "script %s is not valid UTF-8", path)
	}
	stmts, err := script.Parse(string(src))
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	num := b.graph.Scripts().Register(path)
	if b.cfg.ScriptsDir != "" {
		name := filepath.Base(path)
		dst := filepath.Join(b.cfg.ScriptsDir, name)
		if _, serr := os.Stat(dst); serr == nil && num > 1 {
			dst = filepath.Join(b.cfg.ScriptsDir, fmt.Sprintf("%d-%s", num, name))
		}
		if werr := os.WriteFile(dst, src, 0o644); werr != nil {
			return nil, 0, errors.Wrap(errors.ErrCodeEnvOutputDir, werr, "copy script %s", path)
		}
	}
	return stmts, num, nil
}

// runStmt dispatches one statement. Control constructs get bracketed
// instrumentation unless MaxLoops is 0, which turns them into plain leaf
// statements; ignored calls execute without any node creation.
func (b *Builder) runStmt(st script.Stmt, scope *script.Scope) error {
	switch s := st.(type) {
	case *script.SourceStmt:
		return b.runSource(s, scope)
	case *script.IfStmt:
		if b.cfg.MaxLoops != 0 {
			return b.runCond(s, scope)
		}
	case *script.ForStmt:
		if b.cfg.MaxLoops != 0 {
			return b.runFor(s, scope)
		}
	case *script.WhileStmt:
		if b.cfg.MaxLoops != 0 {
			return b.runWhile(s, scope)
		}
	case *script.RepeatStmt:
		if b.cfg.MaxLoops != 0 {
			return b.runRepeat(s, scope)
		}
	case *script.ExprStmt:
		if call, ok := s.X.(*script.CallExpr); ok && b.ignore[call.Callee] {
			return b.ev.ExecStmt(st, scope)
		}
	}
	return b.runLeaf(st, scope)
}

// runLeaf instruments one plain statement: open a Procedure node, execute,
// derive data-in edges from the names read and data-out edges from the
// bindings changed, close the node, and flush any display output.
func (b *Builder) runLeaf(st script.Stmt, scope *script.Scope) error {
	scope.BeginStatement()
	before := scope.Visible()
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, opFor(st), label)

	err := b.ev.ExecStmt(st, scope)
	var ret *script.ReturnSignal
	failed := err != nil && !stderrors.As(err, &ret)

	b.recordAccess(proc, scope, before)
	b.closeProc(proc, failed)
	if ferr := b.tracer.FlushSurface(proc); ferr != nil {
		b.logger.Warn("display capture skipped", "err", ferr)
	}

	var herr error
	if failed {
		herr = err
	}
	b.notifyStatement(span, label, herr)
	return err
}

// runCond brackets a conditional: a Control start node, a Procedure node
// for the condition itself, the taken branch's statements, and a Control
// finish node emitted on every exit path.
func (b *Builder) runCond(st *script.IfStmt, scope *script.Scope) (err error) {
	b.beginControl(provgraph.ControlCond, 0)
	defer b.endControl(provgraph.ControlCond, 0)

	scope.BeginStatement()
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, "cond", label)
	cond, cerr := b.ev.Eval(st.Cond, scope)
	b.dataIn(proc, scope)
	b.closeProc(proc, cerr != nil)
	b.notifyStatement(span, label, cerr)
	if cerr != nil {
		return cerr
	}

	branch := st.Then
	if !cond.Truthy() {
		branch = st.Else
	}
	for _, s := range branch {
		if err := b.runStmt(s, scope); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) runFor(st *script.ForStmt, scope *script.Scope) error {
	scope.BeginStatement()
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, "loop", label)
	iter, err := b.ev.Eval(st.Iterable, scope)
	if err == nil && iter.Kind != script.KindList {
		err = fmt.Errorf("line %d: for: cannot iterate %s", st.Span().StartLine, iter.TypeName())
	}
	b.dataIn(proc, scope)
	b.closeProc(proc, err != nil)
	b.notifyStatement(span, label, err)
	if err != nil {
		return err
	}

	for i, item := range iter.List {
		idx := i + 1
		if !b.inWindow(idx) {
			scope.Define(st.Var, item)
			if err := b.ev.ExecBody(st.Body, scope); err != nil {
				return err
			}
			continue
		}
		err := b.runIteration(st.Body, scope, idx, func() {
			scope.Define(st.Var, item)
			b.writeData(proc, scope, st.Var, item)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) runWhile(st *script.WhileStmt, scope *script.Scope) error {
	scope.BeginStatement()
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, "loop", label)
	cond, err := b.ev.Eval(st.Cond, scope)
	b.dataIn(proc, scope)
	b.closeProc(proc, err != nil)
	b.notifyStatement(span, label, err)
	if err != nil {
		return err
	}

	for idx := 1; cond.Truthy(); idx++ {
		if b.inWindow(idx) {
			if err := b.runIteration(st.Body, scope, idx, nil); err != nil {
				return err
			}
		} else if err := b.ev.ExecBody(st.Body, scope); err != nil {
			return err
		}
		if cond, err = b.ev.Eval(st.Cond, scope); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) runRepeat(st *script.RepeatStmt, scope *script.Scope) error {
	scope.BeginStatement()
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, "loop", label)
	count, err := b.ev.Eval(st.Count, scope)
	if err == nil && count.Kind != script.KindNum {
		err = fmt.Errorf("line %d: repeat: count must be a number", st.Span().StartLine)
	}
	b.dataIn(proc, scope)
	b.closeProc(proc, err != nil)
	b.notifyStatement(span, label, err)
	if err != nil {
		return err
	}

	for idx := 1; idx <= int(count.Num); idx++ {
		if b.inWindow(idx) {
			if err := b.runIteration(st.Body, scope, idx, nil); err != nil {
				return err
			}
		} else if err := b.ev.ExecBody(st.Body, scope); err != nil {
			return err
		}
	}
	return nil
}

// runIteration brackets one instrumented loop iteration between Control
// start/finish nodes. bind, when set, installs the iteration's loop
// variable before the body runs.
func (b *Builder) runIteration(body []script.Stmt, scope *script.Scope, idx int, bind func()) (err error) {
	b.beginControl(provgraph.ControlLoop, idx)
	defer b.endControl(provgraph.ControlLoop, idx)

	if bind != nil {
		bind()
	}
	for _, s := range body {
		if err := b.runStmt(s, scope); err != nil {
			return err
		}
	}
	return nil
}

// runSource executes a nested script inclusion. The included file gets a
// fresh script number; its statements run in the caller's scope, each
// under its own Procedure node tagged with the new number. The source
// statement itself is the bracketing Procedure, tagged with the caller's
// span.
func (b *Builder) runSource(st *script.SourceStmt, scope *script.Scope) error {
	span, label := b.spanFor(st), labelFor(st)
	proc := b.openProc(span, "source", label)

	path := st.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.curDir, path)
	}
	stmts, num, err := b.LoadScript(path)
	if err != nil {
		b.closeProc(proc, true)
		b.notifyStatement(span, label, err)
		return err
	}

	prevScript, prevDir := b.curScript, b.curDir
	b.SetScript(num, filepath.Dir(path))
	defer b.SetScript(prevScript, prevDir)

	var rerr error
	for _, s := range stmts {
		if rerr = b.runStmt(s, scope); rerr != nil {
			break
		}
	}
	b.closeProc(proc, rerr != nil)
	b.notifyStatement(span, label, rerr)
	return rerr
}

// inWindow reports whether 1-based loop iteration idx is instrumented.
func (b *Builder) inWindow(idx int) bool {
	if idx < b.cfg.FirstLoop {
		return false
	}
	return b.cfg.MaxLoops == -1 || idx < b.cfg.FirstLoop+b.cfg.MaxLoops
}

// openProc appends an open Procedure node, chains it into the ordering
// spine, and pushes its frame.
func (b *Builder) openProc(span provgraph.Span, op, label string) provgraph.NodeID {
	id := b.graph.AddNode(provgraph.Node{
		Kind:   provgraph.KindProcedure,
		Span:   span,
		Op:     op,
		Label:  label,
		Status: provgraph.StatusOpen,
	})
	b.chain(id, false)
	b.lastProc = id
	b.frames = append(b.frames, frame{kind: frameProc, proc: id})
	return id
}

// closeProc moves a Procedure node to its terminal status and pops its
// frame. Failed statements still close; the error propagates afterwards.
func (b *Builder) closeProc(id provgraph.NodeID, failed bool) {
	if n := len(b.frames); n > 0 && b.frames[n-1].kind == frameProc && b.frames[n-1].proc == id {
		b.frames = b.frames[:n-1]
	}
	node := b.graph.Node(id)
	if failed {
		node.Status = provgraph.StatusFailed
		return
	}
	node.Status = provgraph.StatusOK
}

func (b *Builder) beginControl(kind provgraph.ControlKind, iter int) {
	b.addControl(kind, provgraph.BoundaryStart, iter)
	b.frames = append(b.frames, frame{kind: frameControl, control: kind, iteration: iter})
}

func (b *Builder) endControl(kind provgraph.ControlKind, iter int) {
	b.frames = b.frames[:len(b.frames)-1]
	b.addControl(kind, provgraph.BoundaryFinish, iter)
}

func (b *Builder) addControl(kind provgraph.ControlKind, boundary provgraph.Boundary, iter int) provgraph.NodeID {
	id := b.graph.AddNode(provgraph.Node{
		Kind:      provgraph.KindControl,
		Control:   kind,
		Boundary:  boundary,
		Iteration: iter,
	})
	b.chain(id, true)
	return id
}

// chain links the new node after the previous one in program order.
// Edges touching a Control node are control edges; procedure-to-procedure
// links are sequence edges.
func (b *Builder) chain(to provgraph.NodeID, isCtl bool) {
	if b.lastNode != 0 {
		kind := provgraph.EdgeSequence
		if isCtl || b.lastIsCtl {
			kind = provgraph.EdgeControl
		}
		if err := b.graph.AddEdge(provgraph.Edge{From: b.lastNode, To: to, Kind: kind}); err != nil {
			b.logger.Error("ordering edge rejected", "err", err)
		}
	}
	b.lastNode = to
	b.lastIsCtl = isCtl
}

// recordAccess derives the statement's lineage edges: data-in for every
// name read before any write, data-out (with a fresh Data node version)
// for every visible binding the statement changed or introduced.
func (b *Builder) recordAccess(proc provgraph.NodeID, scope *script.Scope, before map[string]script.Value) {
	b.dataIn(proc, scope)
	after := scope.Visible()
	for _, name := range script.DiffVisible(before, after) {
		b.writeData(proc, scope, name, after[name])
	}
}

// dataIn links the latest Data node of every name the statement read,
// resolved innermost scope first along the lineage map.
func (b *Builder) dataIn(proc provgraph.NodeID, scope *script.Scope) {
	for _, name := range scope.Reads() {
		id, ok := b.lookupLineage(scope, name)
		if !ok {
			continue
		}
		if err := b.graph.AddEdge(provgraph.Edge{From: id, To: proc, Kind: provgraph.EdgeDataIn}); err != nil {
			b.logger.Error("data-in edge rejected", "name", name, "err", err)
		}
	}
}

// writeData appends the next version of name's Data node in its defining
// scope and links it as proc's output. Snapshot failures are logged and
// the value recorded without artifact or digest.
func (b *Builder) writeData(proc provgraph.NodeID, scope *script.Scope, name string, v script.Value) {
	def := scope.Where(name)
	if def == nil {
		def = scope
	}
	version := 1
	if prev, ok := b.lineage[def.ID()][name]; ok {
		version = b.graph.Node(prev).Version + 1
	}

	value, digest, err := b.snap.SnapshotValue(name, version, v)
	if err != nil {
		b.logger.Warn("value snapshot skipped", "name", name, "err", err)
		value = "<" + v.TypeName() + ">"
	}

	id := b.graph.AddNode(provgraph.Node{
		Kind:    provgraph.KindData,
		Name:    name,
		ScopeID: def.ID(),
		Version: version,
		Value:   value,
		Digest:  digest,
	})
	if err := b.graph.AddEdge(provgraph.Edge{From: proc, To: id, Kind: provgraph.EdgeDataOut}); err != nil {
		b.logger.Error("data-out edge rejected", "name", name, "err", err)
	}
	if b.lineage[def.ID()] == nil {
		b.lineage[def.ID()] = map[string]provgraph.NodeID{}
	}
	b.lineage[def.ID()][name] = id
}

// lookupLineage resolves the latest Data node for name, walking the scope
// chain innermost first.
func (b *Builder) lookupLineage(scope *script.Scope, name string) (provgraph.NodeID, bool) {
	for cur := scope; cur != nil; cur = cur.Parent() {
		if id, ok := b.lineage[cur.ID()][name]; ok {
			return id, true
		}
	}
	return 0, false
}

func (b *Builder) spanFor(st script.Stmt) provgraph.Span {
	s := st.Span()
	return provgraph.Span{
		Script:    b.curScript,
		StartLine: s.StartLine,
		StartCol:  s.StartCol,
		EndLine:   s.EndLine,
		EndCol:    s.EndCol,
	}
}

func opFor(st script.Stmt) string {
	switch st.(type) {
	case *script.AssignStmt:
		return "assign"
	case *script.FuncStmt:
		return "define"
	case *script.ReturnStmt:
		return "return"
	case *script.ExprStmt:
		return "call"
	case *script.IfStmt:
		return "cond"
	case *script.ForStmt, *script.WhileStmt, *script.RepeatStmt:
		return "loop"
	case *script.SourceStmt:
		return "source"
	}
	return "stmt"
}

func labelFor(st script.Stmt) string {
	return truncateString(st.Text(), labelLimit)
}
