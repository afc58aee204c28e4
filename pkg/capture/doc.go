// Package capture is the provenance capture engine.
//
// A capture session observes a script (or an interactive console) as it
// executes and records a provenance graph: which statements ran, in what
// order, which data values they read and produced, and which files and
// display surfaces they touched. The graph is serialized through
// [github.com/provtools/provtrace/pkg/provio] for later audit, debugging,
// or reproducibility analysis.
//
// # Lifecycle
//
// [Initialize] prepares the session directory and returns an active
// [Session]. Statements then flow through the builder, either from a
// script file ([Run]) or one at a time ([Session.RunStatement]).
// [Session.Save] persists the current graph at any point;
// [Session.Finalize] closes open resources, validates the graph, persists
// it, and deactivates the session for good.
//
// A script error never aborts capture bookkeeping: open frames are closed
// innermost first, the graph is persisted, and the script's own error is
// re-raised to the caller unchanged in meaning.
//
// # Instrumentation window
//
// Loop bodies are instrumented only for iterations inside the configured
// window (FirstLoop, MaxLoops). Outside the window the body still runs but
// emits no nodes. MaxLoops of 0 disables control instrumentation entirely,
// including conditionals; -1 leaves the window unbounded.
//
// The engine is strictly single-threaded: it mirrors the observed
// program's own control flow and never mutates the graph from more than
// one goroutine.
package capture
