// Package provio serializes provenance graphs to the JSON interchange
// format and reads them back.
//
// The interchange document carries a manifest (tool identity, session
// mode, hash algorithm, active configuration) plus three ordered
// collections: procedure and control nodes, data entries (data, file
// and device nodes), and edges. Identifiers are stable integers in
// creation order, so a document round-trips to an identical graph.
//
// Serialization is idempotent and non-incremental: every call re-emits
// the full current graph. [ExportJSON] writes to a temporary file and
// renames it into place so a crash mid-write never leaves a truncated
// document behind.
//
// # Visualization
//
// [ToDOT] renders a graph in Graphviz DOT format and [RenderSVG] turns
// DOT into an SVG for debug output or the built-in viewer.
package provio
