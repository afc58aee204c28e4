package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/provgraph"
	"github.com/provtools/provtrace/pkg/script"
)

// Tracer wraps the observed script's file and display operations so each
// touched resource becomes a File or Device node linked to the procedure
// active when the resource was closed or captured.
//
// Open handles that the script never closes are finalized at session
// shutdown and linked to the last active procedure.
type Tracer struct {
	graph  *provgraph.Graph
	snap   *Snapshotter
	logger *log.Logger

	// activeProc reports the procedure to link finalized resources to.
	activeProc func() provgraph.NodeID

	handles map[*tracedFile]bool
	surface *surfaceState
}

// tracedFile is the opaque handle value scripts hold for an open file.
type tracedFile struct {
	node provgraph.NodeID
	path string
	f    *os.File
	r    *bufio.Reader
	dir  provgraph.Direction
	read bool
}

// surfaceState tracks the active display surface between captures.
type surfaceState struct {
	name     string
	node     provgraph.NodeID
	content  strings.Builder
	dirty    bool
	captures int
}

// NewTracer creates a tracer writing File and Device nodes into g.
// activeProc must report the procedure node to attach finalized resources
// to; it is consulted at close and capture time, not at open time.
func NewTracer(g *provgraph.Graph, snap *Snapshotter, logger *log.Logger, activeProc func() provgraph.NodeID) *Tracer {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracer{
		graph:      g,
		snap:       snap,
		logger:     logger,
		activeProc: activeProc,
		handles:    map[*tracedFile]bool{},
	}
}

// Register installs the traced I/O and display builtins on ev:
// open, readline, write, close, and plot.
func (t *Tracer) Register(ev *script.Evaluator) {
	ev.Register("open", t.builtinOpen)
	ev.Register("readline", t.builtinReadline)
	ev.Register("write", t.builtinWrite)
	ev.Register("close", t.builtinClose)
	ev.Register("plot", t.builtinPlot)
}

var modeDirections = map[string]provgraph.Direction{
	"r": provgraph.DirRead,
	"w": provgraph.DirWrite,
	"a": provgraph.DirAppend,
}

// builtinOpen is open(path, mode?). Mode is "r" (default), "w", or "a".
// A placeholder File node is created immediately; direction and digest are
// fixed when the handle closes.
func (t *Tracer) builtinOpen(_ *script.Evaluator, args []script.Value) (script.Value, error) {
	if len(args) < 1 || len(args) > 2 || args[0].Kind != script.KindStr {
		return script.Nil, fmt.Errorf("open: want (path, mode?)")
	}
	mode := "r"
	if len(args) == 2 {
		if args[1].Kind != script.KindStr {
			return script.Nil, fmt.Errorf("open: mode must be a string")
		}
		mode = args[1].Str
	}
	dir, ok := modeDirections[mode]
	if !ok {
		return script.Nil, fmt.Errorf("open: unknown mode %q (want r, w, or a)", mode)
	}

	path := args[0].Str
	var f *os.File
	var err error
	switch dir {
	case provgraph.DirRead:
		f, err = os.Open(path)
	case provgraph.DirWrite:
		f, err = os.Create(path)
	case provgraph.DirAppend:
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return script.Nil, fmt.Errorf("open: %w", err)
	}

	node := t.graph.AddNode(provgraph.Node{
		Kind:      provgraph.KindFile,
		Path:      path,
		Direction: dir,
	})
	h := &tracedFile{node: node, path: path, f: f, dir: dir}
	if dir == provgraph.DirRead {
		h.r = bufio.NewReader(f)
	}
	t.handles[h] = true
	return script.HandleVal(h), nil
}

// builtinReadline is readline(handle). Returns the next line without its
// terminator, or nil at end of file.
func (t *Tracer) builtinReadline(_ *script.Evaluator, args []script.Value) (script.Value, error) {
	h, err := handleArg("readline", args)
	if err != nil {
		return script.Nil, err
	}
	if h.r == nil {
		return script.Nil, fmt.Errorf("readline: %s is not open for reading", h.path)
	}
	h.read = true
	line, err := h.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return script.Nil, nil
		}
		return script.StrVal(line), nil
	}
	if err != nil {
		return script.Nil, fmt.Errorf("readline: %w", err)
	}
	return script.StrVal(strings.TrimRight(line, "\r\n")), nil
}

// builtinWrite is write(handle, text).
func (t *Tracer) builtinWrite(_ *script.Evaluator, args []script.Value) (script.Value, error) {
	if len(args) != 2 {
		return script.Nil, fmt.Errorf("write: want (handle, text)")
	}
	h, err := handleArg("write", args[:1])
	if err != nil {
		return script.Nil, err
	}
	if h.dir == provgraph.DirRead {
		return script.Nil, fmt.Errorf("write: %s is open for reading", h.path)
	}
	if _, err := io.WriteString(h.f, args[1].String()); err != nil {
		return script.Nil, fmt.Errorf("write: %w", err)
	}
	return script.Nil, nil
}

// builtinClose is close(handle). Closing finalizes the File node.
func (t *Tracer) builtinClose(_ *script.Evaluator, args []script.Value) (script.Value, error) {
	h, err := handleArg("close", args)
	if err != nil {
		return script.Nil, err
	}
	if !t.handles[h] {
		return script.Nil, fmt.Errorf("close: handle for %s already closed", h.path)
	}
	t.finalizeFile(h, t.activeProc())
	return script.Nil, nil
}

// builtinPlot is plot(surface, content?). The first call for a surface
// creates its Device node; content accumulates until the surrounding
// statement finishes, when the surface is captured as a plot File node.
func (t *Tracer) builtinPlot(_ *script.Evaluator, args []script.Value) (script.Value, error) {
	if len(args) < 1 || len(args) > 2 || args[0].Kind != script.KindStr {
		return script.Nil, fmt.Errorf("plot: want (surface, content?)")
	}
	name := args[0].Str
	if t.surface == nil || t.surface.name != name {
		node := t.graph.AddNode(provgraph.Node{Kind: provgraph.KindDevice, Surface: name})
		t.surface = &surfaceState{name: name, node: node}
	}
	if len(args) == 2 {
		t.surface.content.WriteString(args[1].String())
		t.surface.content.WriteByte('\n')
	}
	t.surface.dirty = true
	return script.Nil, nil
}

func handleArg(op string, args []script.Value) (*tracedFile, error) {
	if len(args) != 1 || args[0].Kind != script.KindHandle {
		return nil, fmt.Errorf("%s: want a file handle", op)
	}
	h, ok := args[0].Handle.(*tracedFile)
	if !ok {
		return nil, fmt.Errorf("%s: want a file handle", op)
	}
	return h, nil
}

// finalizeFile closes the handle and completes its File node: content
// digest, final direction, and an edge to proc (data-in when the script
// read from it, data-out otherwise). Digest failures are logged and the
// digest skipped; shutdown continues.
func (t *Tracer) finalizeFile(h *tracedFile, proc provgraph.NodeID) {
	delete(t.handles, h)
	if err := h.f.Close(); err != nil {
		t.logger.Warn("close failed", "path", h.path, "err", err)
	}

	node := t.graph.Node(h.node)
	digest, err := t.snap.DigestFile(h.path)
	if err != nil {
		t.logger.Warn("file digest skipped", "path", h.path, "err", err)
	} else {
		node.Digest = digest
	}

	if proc == 0 {
		return
	}
	edge := provgraph.Edge{From: proc, To: h.node, Kind: provgraph.EdgeDataOut}
	if h.dir == provgraph.DirRead || h.read {
		edge = provgraph.Edge{From: h.node, To: proc, Kind: provgraph.EdgeDataIn}
	}
	if err := t.graph.AddEdge(edge); err != nil {
		t.logger.Error("file edge rejected", "path", h.path, "err", err)
	}
}

// FlushSurface captures the active display surface if a plot call touched
// it since the last capture. The snapshot becomes a plot File node linked
// to proc. A capture failure is returned as a CAPTURE_DISPLAY error for
// the caller to log; it never aborts the surrounding statement.
func (t *Tracer) FlushSurface(proc provgraph.NodeID) error {
	if t.surface == nil || !t.surface.dirty {
		return nil
	}
	s := t.surface
	s.dirty = false
	s.captures++

	ref := fmt.Sprintf("%s-%d.txt", s.name, s.captures)
	rendered := s.content.String()

	var path string
	if t.snap.DataDir != "" {
		path = filepath.Join(t.snap.DataDir, ref)
		if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeCaptureDisplay, err, "capture surface %s", s.name)
		}
	}

	digest, err := t.snap.DigestBytes([]byte(rendered))
	if err != nil {
		return errors.Wrap(errors.ErrCodeCaptureDisplay, err, "digest surface %s", s.name)
	}

	node := t.graph.AddNode(provgraph.Node{
		Kind:      provgraph.KindFile,
		Path:      filepath.Join("data", ref),
		Direction: provgraph.DirPlot,
		Digest:    digest,
	})
	if proc != 0 {
		if err := t.graph.AddEdge(provgraph.Edge{From: proc, To: node, Kind: provgraph.EdgeDataOut}); err != nil {
			return errors.Wrap(errors.ErrCodeCaptureDisplay, err, "link surface %s", s.name)
		}
	}
	if err := t.graph.AddEdge(provgraph.Edge{From: s.node, To: node, Kind: provgraph.EdgeDataOut}); err != nil {
		return errors.Wrap(errors.ErrCodeCaptureDisplay, err, "link surface %s", s.name)
	}
	return nil
}

// SurfaceActive reports whether a display surface has uncaptured content.
func (t *Tracer) SurfaceActive() bool {
	return t.surface != nil && t.surface.dirty
}

// Shutdown finalizes every handle the script left open and captures the
// display surface once more if it is still active. Capture failures are
// logged; shutdown always completes.
func (t *Tracer) Shutdown(proc provgraph.NodeID) {
	for h := range t.handles {
		t.logger.Warn("file left open at finalize", "path", h.path)
		t.finalizeFile(h, proc)
	}
	if err := t.FlushSurface(proc); err != nil {
		t.logger.Warn("display capture skipped", "err", err)
	}
}
