package capture

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/provtools/provtrace/pkg/buildinfo"
	"github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/provgraph"
	"github.com/provtools/provtrace/pkg/provio"
	"github.com/provtools/provtrace/pkg/script"
)

// docName is the interchange document filename inside the session root.
const docName = "prov.json"

// Session owns one capture run: its output directory tree, its graph, and
// the single-threaded machinery that grows it. A session is active from
// [Initialize] until [Session.Finalize]; finalizing is not reversible.
type Session struct {
	opts   InitOptions
	id     string
	mode   string
	logger *log.Logger

	graph   *provgraph.Graph
	ev      *script.Evaluator
	scope   *script.Scope
	snap    *Snapshotter
	tracer  *Tracer
	builder *Builder

	// stmts is the parsed main script, empty in console mode.
	stmts []script.Stmt

	rootDir    string
	dataDir    string
	debugDir   string
	scriptsDir string

	active bool
}

// Initialize prepares the session directory tree and returns an active
// session.
//
// The session root is <OutputDir>/prov_<script basename> for script mode
// and <OutputDir>/prov_console otherwise. An existing root is flushed and
// reused, unless it coincides with the process working directory, in which
// case nothing is deleted and a warning is logged. With Protect set an
// existing root is preserved and a timestamp-suffixed sibling is used.
//
// In script mode the script is read, checked for valid UTF-8, copied
// verbatim into scripts/, and parsed; nothing in it executes yet.
func Initialize(opts InitOptions) (*Session, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	mode, name := "console", "prov_console"
	if opts.ScriptPath != "" {
		mode = "script"
		base := filepath.Base(opts.ScriptPath)
		name = "prov_" + strings.TrimSuffix(base, filepath.Ext(base))
	}
	root := filepath.Join(opts.OutputDir, name)

	if _, err := os.Stat(root); err == nil {
		if opts.Protect {
			root = fmt.Sprintf("%s_%s", root, time.Now().Format("2006-01-02T15.04.05"))
		} else if err := flushDir(root, opts.Logger); err != nil {
			return nil, err
		}
	}

	s := &Session{
		opts:       opts,
		id:         uuid.NewString(),
		mode:       mode,
		logger:     opts.Logger,
		rootDir:    root,
		dataDir:    filepath.Join(root, "data"),
		debugDir:   filepath.Join(root, "debug"),
		scriptsDir: filepath.Join(root, "scripts"),
	}
	for _, d := range []string{s.dataDir, s.debugDir, s.scriptsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEnvOutputDir, err, "create %s", d)
		}
	}

	s.graph = provgraph.New(time.Now())
	s.snap = &Snapshotter{
		PolicyKB:  opts.SnapshotKB,
		Algorithm: opts.HashAlgorithm,
		DataDir:   s.dataDir,
		Cache:     opts.Cache,
		Logger:    opts.Logger,
	}
	s.ev = script.NewEvaluator()
	if opts.Stdout != nil {
		s.ev.Stdout = opts.Stdout
	}
	s.scope = script.NewScope()

	s.tracer = NewTracer(s.graph, s.snap, opts.Logger, func() provgraph.NodeID {
		return s.builder.LastProc()
	})
	s.tracer.Register(s.ev)
	s.builder = NewBuilder(s.graph, s.ev, s.snap, s.tracer, opts.Logger, BuilderConfig{
		FirstLoop:  opts.FirstLoop,
		MaxLoops:   opts.MaxLoops,
		Annotate:   opts.AnnotateFunctions,
		ScriptsDir: s.scriptsDir,
	})

	// prov_save() is the script-visible explicit save point. It sits in
	// the builder's ignore set, so the call itself creates no nodes.
	s.ev.Register("prov_save", func(_ *script.Evaluator, _ []script.Value) (script.Value, error) {
		return script.Nil, s.Save(false)
	})
	s.ev.Bind(s.scope)

	if mode == "script" {
		stmts, num, err := s.builder.LoadScript(opts.ScriptPath)
		if err != nil {
			return nil, err
		}
		s.stmts = stmts
		s.builder.SetScript(num, filepath.Dir(opts.ScriptPath))
	} else {
		num := s.graph.Scripts().Register("<console>")
		wd, _ := os.Getwd()
		s.builder.SetScript(num, wd)
	}

	s.active = true
	s.logger.Debug("session initialized", "root", root, "mode", mode, "id", s.id)
	return s, nil
}

// Run performs a one-shot capture: initialize, execute the script or
// callable, finalize. Exactly one of ScriptPath and Callable must be set.
//
// The session is returned alongside the first error, so callers can still
// inspect the captured graph after a script failure. The script's own
// error is never masked: a later finalize failure is logged instead.
func Run(opts RunOptions) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	s, err := Initialize(opts.InitOptions)
	if err != nil {
		return nil, err
	}

	var runErr error
	if opts.Callable != nil {
		if err := s.builder.RunCallable(opts.Callable); err != nil {
			runErr = s.scriptError(err)
		}
	} else if err := s.builder.Run(s.stmts, s.scope); err != nil {
		runErr = s.scriptError(err)
	}

	if err := s.Finalize(opts.EmitDebug); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			s.logger.Error("finalize failed after script error", "err", err)
		}
	}
	return s, runErr
}

// RunStatement parses and executes source text as the next console
// statements. Usable in any active session; the primary driver of console
// mode.
func (s *Session) RunStatement(src string) error {
	if !s.active {
		return errors.New(errors.ErrCodeSessionInactive, "session is finalized")
	}
	stmts, err := script.Parse(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeScript, err, "parse statement")
	}
	if err := s.builder.Run(stmts, s.scope); err != nil {
		return s.scriptError(err)
	}
	return nil
}

// Save serializes the full current graph to the interchange document,
// overwriting the previous one. With emitDebug set, DOT and SVG renderings
// are written under debug/ as well; their failures are logged, never
// returned.
func (s *Session) Save(emitDebug bool) error {
	if !s.active {
		return errors.New(errors.ErrCodeSessionInactive, "session is finalized")
	}
	doc := provio.FromGraph(s.graph, s.manifest())
	path := filepath.Join(s.rootDir, docName)
	if err := provio.ExportJSON(doc, path); err != nil {
		return errors.Wrap(errors.ErrCodeEnvOutputDir, err, "write interchange document")
	}
	if emitDebug {
		s.emitDebug()
	}
	ActiveHooks().OnSave(path)
	return nil
}

// Finalize closes the session for good: leftover frames are closed
// innermost first, leaked file handles and the display surface are
// finalized, the graph is validated and persisted, and the session
// deactivates. Finalize runs its whole shutdown sequence even when a step
// fails; the first error is returned.
func (s *Session) Finalize(emitDebug bool) error {
	if !s.active {
		return errors.New(errors.ErrCodeSessionInactive, "session is finalized")
	}

	s.builder.CloseFrames()
	s.tracer.Shutdown(s.builder.LastProc())

	var firstErr error
	if err := s.graph.Validate(); err != nil {
		code := errors.ErrCodeGraphDangling
		if stderrors.Is(err, provgraph.ErrUnbalanced) {
			code = errors.ErrCodeGraphUnbalanced
		}
		firstErr = errors.Wrap(code, err, "graph validation failed")
	}

	if err := s.Save(emitDebug); err != nil {
		if firstErr == nil {
			firstErr = err
		} else {
			s.logger.Error("save failed during finalize", "err", err)
		}
	}

	s.active = false
	ActiveHooks().OnFinalize(s.graph.NodeCount(), s.graph.EdgeCount())
	s.logger.Debug("session finalized",
		"nodes", s.graph.NodeCount(), "edges", s.graph.EdgeCount(), "root", s.rootDir)
	return firstErr
}

// Graph returns the session's provenance graph.
func (s *Session) Graph() *provgraph.Graph { return s.graph }

// RootDir returns the session's output directory.
func (s *Session) RootDir() string { return s.rootDir }

// DocumentPath returns the interchange document's path.
func (s *Session) DocumentPath() string { return filepath.Join(s.rootDir, docName) }

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Mode returns "script" or "console".
func (s *Session) Mode() string { return s.mode }

// Active reports whether the session can still capture and save.
func (s *Session) Active() bool { return s.active }

func (s *Session) manifest() provio.Manifest {
	return provio.Manifest{
		Tool:          "provtrace",
		Version:       buildinfo.Version,
		SessionID:     s.id,
		Mode:          s.mode,
		Script:        s.opts.ScriptPath,
		StartTime:     s.graph.StartTime(),
		HashAlgorithm: s.opts.HashAlgorithm,
		Config: map[string]any{
			"snapshot_kb":        s.opts.SnapshotKB,
			"first_loop":         s.opts.FirstLoop,
			"max_loops":          s.opts.MaxLoops,
			"annotate_functions": s.opts.AnnotateFunctions,
		},
	}
}

func (s *Session) emitDebug() {
	dot := provio.ToDOT(s.graph)
	if err := os.WriteFile(filepath.Join(s.debugDir, "prov.dot"), []byte(dot), 0o644); err != nil {
		s.logger.Warn("debug DOT skipped", "err", err)
		return
	}
	svg, err := provio.RenderSVG(dot)
	if err != nil {
		s.logger.Warn("debug SVG skipped", "err", err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.debugDir, "prov.svg"), svg, 0o644); err != nil {
		s.logger.Warn("debug SVG skipped", "err", err)
	}
}

// scriptError classifies a failure from the observed script. Errors that
// already carry an engine code pass through unchanged.
func (s *Session) scriptError(err error) error {
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrCodeScript, err, "script failed")
}

// flushDir removes an existing session root before reuse. The process
// working directory is never deleted: the flush is skipped with a warning
// and initialization proceeds into the existing directory.
func flushDir(dir string, logger *log.Logger) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvOutputDir, err, "resolve %s", dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvOutputDir, err, "resolve working directory")
	}
	if abs == wd {
		logger.Warn("session root is the working directory, flush skipped", "dir", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(errors.ErrCodeEnvOutputDir, err, "flush %s", dir)
	}
	return nil
}
