package script

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the runtime value variants of the script language.
type ValueKind int

const (
	KindNil ValueKind = iota
	KindBool
	KindNum
	KindStr
	KindList
	KindFunc
	KindBuiltin
	KindHandle
)

// Value is a script runtime value. The Kind selects which payload field is
// meaningful. Values are immutable except for lists, which share their
// backing slice.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Num     float64
	Str     string
	List    []Value
	Fn      *Function
	Builtin *Builtin
	Handle  any // opaque host resource, e.g. a traced file handle
}

// Nil is the nil value.
var Nil = Value{Kind: KindNil}

// BoolVal wraps a bool.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumVal wraps a number. All script numbers are float64.
func NumVal(f float64) Value { return Value{Kind: KindNum, Num: f} }

// StrVal wraps a string.
func StrVal(s string) Value { return Value{Kind: KindStr, Str: s} }

// ListVal wraps a list.
func ListVal(xs []Value) Value { return Value{Kind: KindList, List: xs} }

// HandleVal wraps an opaque host resource.
func HandleVal(h any) Value { return Value{Kind: KindHandle, Handle: h} }

// Function is a user-defined function with its lexical defining scope.
type Function struct {
	Name    string
	Params  []string
	Body    []Stmt
	Defined *Scope
}

// Builtin is a host-provided function. Builtins receive the evaluator so
// they can print through its configured writer.
type Builtin struct {
	Name string
	Fn   func(ev *Evaluator, args []Value) (Value, error)
}

// Truthy reports whether the value counts as true in a condition.
// Nil and false are false; zero numbers and empty strings/lists are false.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool
	case KindNum:
		return v.Num != 0
	case KindStr:
		return v.Str != ""
	case KindList:
		return len(v.List) > 0
	}
	return true
}

// Equal reports structural equality. Functions, builtins, and handles
// compare by identity.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNum:
		return v.Num == o.Num
	case KindStr:
		return v.Str == o.Str
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindFunc:
		return v.Fn == o.Fn
	case KindBuiltin:
		return v.Builtin == o.Builtin
	case KindHandle:
		return v.Handle == o.Handle
	}
	return false
}

// String renders the value for display and snapshotting.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNum:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindStr:
		return v.Str
	case KindList:
		var b strings.Builder
		b.WriteByte('[')
		for i, x := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			if x.Kind == KindStr {
				b.WriteString(strconv.Quote(x.Str))
			} else {
				b.WriteString(x.String())
			}
		}
		b.WriteByte(']')
		return b.String()
	case KindFunc:
		return fmt.Sprintf("<func %s>", v.Fn.Name)
	case KindBuiltin:
		return fmt.Sprintf("<builtin %s>", v.Builtin.Name)
	case KindHandle:
		return fmt.Sprintf("<handle %T>", v.Handle)
	}
	return "<unknown>"
}

// TypeName returns the script-visible type name, used in error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNum:
		return "number"
	case KindStr:
		return "string"
	case KindList:
		return "list"
	case KindFunc, KindBuiltin:
		return "function"
	case KindHandle:
		return "handle"
	}
	return "unknown"
}
