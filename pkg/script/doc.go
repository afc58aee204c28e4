// Package script implements the small imperative language whose execution
// the capture engine observes.
//
// # Overview
//
// The language is deliberately minimal: assignments, expression statements,
// if/else, for/while/repeat loops, function definitions, nested script
// inclusion via source, and a builtin registry the host extends with traced
// I/O and display operations. What matters for provenance capture is not
// the language's power but its shape: [Parse] produces an ordered statement
// list where every statement carries a source span and its raw text, which
// is exactly the unit the capture engine instruments.
//
// # Syntax
//
//	x = 1                      # assignment
//	y = x + 1                  # arithmetic, comparison, && || !
//	print(y)                   # call statement
//	xs = [1, 2, 3]             # lists, xs[0] indexing
//	if x > 0 { ... } else { ... }
//	for i in range(1, 10) { ... }
//	while x < 5 { ... }
//	repeat 3 { ... }
//	func add(a, b) { return a + b }
//	source "lib.prs"           # nested inclusion (host-resolved)
//
// Statements end at newlines (or semicolons); comments run from # to end
// of line. range(lo, hi) is inclusive on both ends.
//
// # Scopes
//
// Variable lookup walks the scope chain innermost-first. [Scope] records
// which names a statement read before writing and exposes snapshots of the
// visible bindings, which is how the capture engine derives data-in and
// data-out lineage without the evaluator knowing about graphs at all.
package script
