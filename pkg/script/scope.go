package script

import "sort"

// Scope is one frame of the scope chain: a name-to-value binding context
// with a pointer to its enclosing frame. Lookup walks leaf-to-root, so the
// innermost binding of a name wins.
//
// The chain shares one access recorder (owned by the root) that tracks, per
// statement, which names were read before any write and which names were
// written. The capture engine resets the recorder around each statement to
// derive data-in and data-out edges.
type Scope struct {
	parent *Scope
	id     int
	vars   map[string]Value
	rec    *accessRecord
}

// accessRecord tracks per-statement reads and writes plus the scope id
// counter for the whole chain.
type accessRecord struct {
	nextID    int
	readOrder []string
	readSeen  map[string]bool
	written   map[string]bool
}

// NewScope creates a root scope (scope id 1) with a fresh access recorder.
func NewScope() *Scope {
	rec := &accessRecord{
		nextID:   2,
		readSeen: map[string]bool{},
		written:  map[string]bool{},
	}
	return &Scope{id: 1, vars: map[string]Value{}, rec: rec}
}

// Child creates a nested scope sharing the chain's recorder.
func (s *Scope) Child() *Scope {
	id := s.rec.nextID
	s.rec.nextID++
	return &Scope{parent: s, id: id, vars: map[string]Value{}, rec: s.rec}
}

// ID returns the scope's identifier, unique within its chain.
func (s *Scope) ID() int { return s.id }

// Parent returns the enclosing scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Lookup resolves name innermost-first. It returns the value, the scope the
// binding lives in, and whether it was found. A successful lookup of a name
// not yet written in the current statement is recorded as a read.
func (s *Scope) Lookup(name string) (Value, *Scope, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			s.recordRead(name)
			return v, cur, true
		}
	}
	return Nil, nil, false
}

// Set assigns name. If a binding exists anywhere in the chain, the innermost
// one is updated in place; otherwise the name is defined in s. The write is
// recorded either way.
func (s *Scope) Set(name string, v Value) {
	s.rec.written[name] = true
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return
		}
	}
	s.vars[name] = v
}

// Define binds name in this scope regardless of outer bindings. Used for
// loop variables and function parameters, which shadow rather than assign.
func (s *Scope) Define(name string, v Value) {
	s.rec.written[name] = true
	s.vars[name] = v
}

// Peek resolves name without recording a read. Used by the host for
// bookkeeping lookups that must not show up as data lineage.
func (s *Scope) Peek(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return Nil, false
}

// Where returns the scope the innermost binding of name lives in, or nil.
// Like Peek, it records nothing.
func (s *Scope) Where(name string) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			return cur
		}
	}
	return nil
}

func (s *Scope) recordRead(name string) {
	if s.rec.written[name] || s.rec.readSeen[name] {
		return
	}
	s.rec.readSeen[name] = true
	s.rec.readOrder = append(s.rec.readOrder, name)
}

// AccessState is a saved copy of the recorder, letting the host suspend and
// resume a statement's access tracking around nested instrumented execution
// (annotated function bodies run their own statements mid-expression).
type AccessState struct {
	readOrder []string
	readSeen  map[string]bool
	written   map[string]bool
}

// SaveAccess copies the current recorder state.
func (s *Scope) SaveAccess() AccessState {
	st := AccessState{
		readOrder: append([]string(nil), s.rec.readOrder...),
		readSeen:  map[string]bool{},
		written:   map[string]bool{},
	}
	for k := range s.rec.readSeen {
		st.readSeen[k] = true
	}
	for k := range s.rec.written {
		st.written[k] = true
	}
	return st
}

// RestoreAccess reinstates a previously saved recorder state.
func (s *Scope) RestoreAccess(st AccessState) {
	s.rec.readOrder = st.readOrder
	s.rec.readSeen = st.readSeen
	s.rec.written = st.written
}

// BeginStatement clears the recorder for the next statement.
func (s *Scope) BeginStatement() {
	s.rec.readOrder = s.rec.readOrder[:0]
	s.rec.readSeen = map[string]bool{}
	s.rec.written = map[string]bool{}
}

// Reads returns the names read before any write during the current
// statement, in first-read order.
func (s *Scope) Reads() []string {
	out := make([]string, len(s.rec.readOrder))
	copy(out, s.rec.readOrder)
	return out
}

// Visible returns a snapshot of all bindings visible from this scope,
// innermost wins. The capture engine diffs two snapshots taken around a
// statement to find changed or newly bound names.
func (s *Scope) Visible() map[string]Value {
	out := map[string]Value{}
	var walk func(cur *Scope)
	walk = func(cur *Scope) {
		if cur == nil {
			return
		}
		walk(cur.parent) // outer first so inner overwrites
		for k, v := range cur.vars {
			out[k] = v
		}
	}
	walk(s)
	return out
}

// DiffVisible returns the names whose visible binding changed or appeared
// between two snapshots, sorted for deterministic node ordering.
func DiffVisible(before, after map[string]Value) []string {
	var changed []string
	for name, v := range after {
		old, ok := before[name]
		if !ok || !old.Equal(v) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
