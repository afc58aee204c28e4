package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// BodyRunner executes a user function body on behalf of the evaluator.
// The capture engine installs one when annotate-inside-functions is on, so
// calls recurse through the instrumented statement path instead of plain
// evaluation. A ReturnSignal error carries the function's return value.
type BodyRunner interface {
	RunFunctionBody(fn *Function, scope *Scope) error
}

// ReturnSignal is the error used to unwind a return statement to its
// enclosing function call. It is not a failure.
type ReturnSignal struct {
	Value Value
}

func (r *ReturnSignal) Error() string { return "return outside function" }

// Evaluator evaluates expressions and (uninstrumented) statements against a
// scope chain. It is strictly single-threaded.
type Evaluator struct {
	// Stdout receives print output. Defaults to os.Stdout.
	Stdout io.Writer
	// Runner, when set, executes user function bodies (see BodyRunner).
	Runner BodyRunner
	// MaxDepth bounds user-function call nesting.
	MaxDepth int

	builtins map[string]*Builtin
	depth    int
}

// NewEvaluator creates an evaluator with the core builtins registered:
// print, len, str, num, and range.
func NewEvaluator() *Evaluator {
	ev := &Evaluator{Stdout: os.Stdout, MaxDepth: 200, builtins: map[string]*Builtin{}}
	ev.registerCore()
	return ev
}

// Register adds or replaces a builtin. The host uses this to install traced
// I/O and display operations.
func (ev *Evaluator) Register(name string, fn func(ev *Evaluator, args []Value) (Value, error)) {
	ev.builtins[name] = &Builtin{Name: name, Fn: fn}
}

// Bind makes all registered builtins visible in the given scope. Builtins
// are bound like ordinary values, so scripts can shadow them.
func (ev *Evaluator) Bind(scope *Scope) {
	for name, b := range ev.builtins {
		scope.Define(name, Value{Kind: KindBuiltin, Builtin: b})
	}
}

func (ev *Evaluator) registerCore() {
	ev.Register("print", func(ev *Evaluator, args []Value) (Value, error) {
		for i, a := range args {
			if i > 0 {
				fmt.Fprint(ev.Stdout, " ")
			}
			fmt.Fprint(ev.Stdout, a.String())
		}
		fmt.Fprintln(ev.Stdout)
		return Nil, nil
	})
	ev.Register("len", func(_ *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, fmt.Errorf("len: want 1 argument, got %d", len(args))
		}
		switch args[0].Kind {
		case KindStr:
			return NumVal(float64(len(args[0].Str))), nil
		case KindList:
			return NumVal(float64(len(args[0].List))), nil
		}
		return Nil, fmt.Errorf("len: cannot measure %s", args[0].TypeName())
	})
	ev.Register("str", func(_ *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, fmt.Errorf("str: want 1 argument, got %d", len(args))
		}
		return StrVal(args[0].String()), nil
	})
	ev.Register("num", func(_ *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil, fmt.Errorf("num: want 1 string argument")
		}
		f, err := strconv.ParseFloat(args[0].Str, 64)
		if err != nil {
			return Nil, fmt.Errorf("num: %q is not a number", args[0].Str)
		}
		return NumVal(f), nil
	})
	// range(lo, hi) yields lo..hi inclusive; range(lo, hi, step) strides.
	ev.Register("range", func(_ *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return Nil, fmt.Errorf("range: want 2 or 3 arguments, got %d", len(args))
		}
		for _, a := range args {
			if a.Kind != KindNum {
				return Nil, fmt.Errorf("range: arguments must be numbers")
			}
		}
		step := 1.0
		if len(args) == 3 {
			step = args[2].Num
		}
		if step == 0 {
			return Nil, fmt.Errorf("range: step must not be zero")
		}
		var out []Value
		if step > 0 {
			for x := args[0].Num; x <= args[1].Num; x += step {
				out = append(out, NumVal(x))
			}
		} else {
			for x := args[0].Num; x >= args[1].Num; x += step {
				out = append(out, NumVal(x))
			}
		}
		return ListVal(out), nil
	})
}

// ExecBody executes statements without instrumentation. Used for function
// bodies when no BodyRunner is installed, and by the capture engine for
// loop iterations outside the instrumentation window.
func (ev *Evaluator) ExecBody(stmts []Stmt, scope *Scope) error {
	for _, s := range stmts {
		if err := ev.ExecStmt(s, scope); err != nil {
			return err
		}
	}
	return nil
}

// ExecStmt executes one statement without instrumentation.
func (ev *Evaluator) ExecStmt(s Stmt, scope *Scope) error {
	switch st := s.(type) {
	case *AssignStmt:
		v, err := ev.Eval(st.Value, scope)
		if err != nil {
			return err
		}
		scope.Set(st.Name, v)
		return nil

	case *ExprStmt:
		_, err := ev.Eval(st.X, scope)
		return err

	case *IfStmt:
		cond, err := ev.Eval(st.Cond, scope)
		if err != nil {
			return err
		}
		if cond.Truthy() {
			return ev.ExecBody(st.Then, scope)
		}
		return ev.ExecBody(st.Else, scope)

	case *ForStmt:
		iter, err := ev.Eval(st.Iterable, scope)
		if err != nil {
			return err
		}
		if iter.Kind != KindList {
			return fmt.Errorf("line %d: for: cannot iterate %s", st.Span().StartLine, iter.TypeName())
		}
		for _, item := range iter.List {
			scope.Define(st.Var, item)
			if err := ev.ExecBody(st.Body, scope); err != nil {
				return err
			}
		}
		return nil

	case *WhileStmt:
		for {
			cond, err := ev.Eval(st.Cond, scope)
			if err != nil {
				return err
			}
			if !cond.Truthy() {
				return nil
			}
			if err := ev.ExecBody(st.Body, scope); err != nil {
				return err
			}
		}

	case *RepeatStmt:
		count, err := ev.Eval(st.Count, scope)
		if err != nil {
			return err
		}
		if count.Kind != KindNum {
			return fmt.Errorf("line %d: repeat: count must be a number", st.Span().StartLine)
		}
		for i := 0; i < int(count.Num); i++ {
			if err := ev.ExecBody(st.Body, scope); err != nil {
				return err
			}
		}
		return nil

	case *FuncStmt:
		fn := &Function{Name: st.Name, Params: st.Params, Body: st.Body, Defined: scope}
		scope.Set(st.Name, Value{Kind: KindFunc, Fn: fn})
		return nil

	case *ReturnStmt:
		v := Nil
		if st.Value != nil {
			var err error
			v, err = ev.Eval(st.Value, scope)
			if err != nil {
				return err
			}
		}
		return &ReturnSignal{Value: v}

	case *SourceStmt:
		// Nested inclusion needs a host that can load files; the capture
		// engine intercepts SourceStmt before plain execution.
		return fmt.Errorf("line %d: source is not available here", st.Span().StartLine)
	}
	return fmt.Errorf("line %d: unsupported statement %T", s.Span().StartLine, s)
}

// Eval evaluates an expression.
func (ev *Evaluator) Eval(x Expr, scope *Scope) (Value, error) {
	switch e := x.(type) {
	case *NumberLit:
		return NumVal(e.Value), nil
	case *StringLit:
		return StrVal(e.Value), nil
	case *BoolLit:
		return BoolVal(e.Value), nil
	case *NilLit:
		return Nil, nil

	case *ListLit:
		out := make([]Value, 0, len(e.Elems))
		for _, el := range e.Elems {
			v, err := ev.Eval(el, scope)
			if err != nil {
				return Nil, err
			}
			out = append(out, v)
		}
		return ListVal(out), nil

	case *Ident:
		v, _, ok := scope.Lookup(e.Name)
		if !ok {
			return Nil, fmt.Errorf("line %d: undefined variable %q", e.ExprSpan().StartLine, e.Name)
		}
		return v, nil

	case *UnaryExpr:
		v, err := ev.Eval(e.X, scope)
		if err != nil {
			return Nil, err
		}
		switch e.Op {
		case "-":
			if v.Kind != KindNum {
				return Nil, fmt.Errorf("line %d: cannot negate %s", e.ExprSpan().StartLine, v.TypeName())
			}
			return NumVal(-v.Num), nil
		case "!":
			return BoolVal(!v.Truthy()), nil
		}
		return Nil, fmt.Errorf("line %d: unknown unary %q", e.ExprSpan().StartLine, e.Op)

	case *BinaryExpr:
		return ev.evalBinary(e, scope)

	case *IndexExpr:
		return ev.evalIndex(e, scope)

	case *CallExpr:
		return ev.evalCall(e, scope)
	}
	return Nil, fmt.Errorf("unsupported expression %T", x)
}

func (ev *Evaluator) evalBinary(e *BinaryExpr, scope *Scope) (Value, error) {
	line := e.ExprSpan().StartLine

	// Short-circuit logic first.
	if e.Op == "&&" || e.Op == "||" {
		left, err := ev.Eval(e.Left, scope)
		if err != nil {
			return Nil, err
		}
		if e.Op == "&&" && !left.Truthy() {
			return BoolVal(false), nil
		}
		if e.Op == "||" && left.Truthy() {
			return BoolVal(true), nil
		}
		right, err := ev.Eval(e.Right, scope)
		if err != nil {
			return Nil, err
		}
		return BoolVal(right.Truthy()), nil
	}

	left, err := ev.Eval(e.Left, scope)
	if err != nil {
		return Nil, err
	}
	right, err := ev.Eval(e.Right, scope)
	if err != nil {
		return Nil, err
	}

	switch e.Op {
	case "==":
		return BoolVal(left.Equal(right)), nil
	case "!=":
		return BoolVal(!left.Equal(right)), nil
	}

	// String concatenation and comparison.
	if left.Kind == KindStr && right.Kind == KindStr {
		switch e.Op {
		case "+":
			return StrVal(left.Str + right.Str), nil
		case "<":
			return BoolVal(left.Str < right.Str), nil
		case "<=":
			return BoolVal(left.Str <= right.Str), nil
		case ">":
			return BoolVal(left.Str > right.Str), nil
		case ">=":
			return BoolVal(left.Str >= right.Str), nil
		}
		return Nil, fmt.Errorf("line %d: operator %q not defined for strings", line, e.Op)
	}

	// List concatenation.
	if left.Kind == KindList && right.Kind == KindList && e.Op == "+" {
		out := make([]Value, 0, len(left.List)+len(right.List))
		out = append(out, left.List...)
		out = append(out, right.List...)
		return ListVal(out), nil
	}

	if left.Kind != KindNum || right.Kind != KindNum {
		return Nil, fmt.Errorf("line %d: operator %q needs numbers, got %s and %s",
			line, e.Op, left.TypeName(), right.TypeName())
	}

	switch e.Op {
	case "+":
		return NumVal(left.Num + right.Num), nil
	case "-":
		return NumVal(left.Num - right.Num), nil
	case "*":
		return NumVal(left.Num * right.Num), nil
	case "/":
		if right.Num == 0 {
			return Nil, fmt.Errorf("line %d: division by zero", line)
		}
		return NumVal(left.Num / right.Num), nil
	case "%":
		if right.Num == 0 {
			return Nil, fmt.Errorf("line %d: division by zero", line)
		}
		return NumVal(float64(int64(left.Num) % int64(right.Num))), nil
	case "<":
		return BoolVal(left.Num < right.Num), nil
	case "<=":
		return BoolVal(left.Num <= right.Num), nil
	case ">":
		return BoolVal(left.Num > right.Num), nil
	case ">=":
		return BoolVal(left.Num >= right.Num), nil
	}
	return Nil, fmt.Errorf("line %d: unknown operator %q", line, e.Op)
}

func (ev *Evaluator) evalIndex(e *IndexExpr, scope *Scope) (Value, error) {
	line := e.ExprSpan().StartLine
	x, err := ev.Eval(e.X, scope)
	if err != nil {
		return Nil, err
	}
	idx, err := ev.Eval(e.Index, scope)
	if err != nil {
		return Nil, err
	}
	if idx.Kind != KindNum {
		return Nil, fmt.Errorf("line %d: index must be a number", line)
	}
	i := int(idx.Num)
	switch x.Kind {
	case KindList:
		if i < 0 || i >= len(x.List) {
			return Nil, fmt.Errorf("line %d: index %d out of range (len %d)", line, i, len(x.List))
		}
		return x.List[i], nil
	case KindStr:
		if i < 0 || i >= len(x.Str) {
			return Nil, fmt.Errorf("line %d: index %d out of range (len %d)", line, i, len(x.Str))
		}
		return StrVal(string(x.Str[i])), nil
	}
	return Nil, fmt.Errorf("line %d: cannot index %s", line, x.TypeName())
}

func (ev *Evaluator) evalCall(e *CallExpr, scope *Scope) (Value, error) {
	line := e.ExprSpan().StartLine
	callee, _, ok := scope.Lookup(e.Callee)
	if !ok {
		return Nil, fmt.Errorf("line %d: undefined function %q", line, e.Callee)
	}

	args := make([]Value, 0, len(e.Args))
	for _, a := range e.Args {
		v, err := ev.Eval(a, scope)
		if err != nil {
			return Nil, err
		}
		args = append(args, v)
	}

	switch callee.Kind {
	case KindBuiltin:
		v, err := callee.Builtin.Fn(ev, args)
		if err != nil {
			return Nil, fmt.Errorf("line %d: %w", line, err)
		}
		return v, nil

	case KindFunc:
		return ev.callFunction(callee.Fn, args, line)
	}
	return Nil, fmt.Errorf("line %d: %q is not callable (%s)", line, e.Callee, callee.TypeName())
}

func (ev *Evaluator) callFunction(fn *Function, args []Value, line int) (Value, error) {
	if len(args) != len(fn.Params) {
		return Nil, fmt.Errorf("line %d: %s: want %d arguments, got %d",
			line, fn.Name, len(fn.Params), len(args))
	}
	if ev.depth >= ev.MaxDepth {
		return Nil, fmt.Errorf("line %d: call depth exceeds %d", line, ev.MaxDepth)
	}

	frame := fn.Defined.Child()
	for i, p := range fn.Params {
		frame.Define(p, args[i])
	}

	ev.depth++
	defer func() { ev.depth-- }()

	var err error
	if ev.Runner != nil {
		err = ev.Runner.RunFunctionBody(fn, frame)
	} else {
		err = ev.ExecBody(fn.Body, frame)
	}
	if err != nil {
		var ret *ReturnSignal
		if errors.As(err, &ret) {
			return ret.Value, nil
		}
		return Nil, err
	}
	return Nil, nil
}
