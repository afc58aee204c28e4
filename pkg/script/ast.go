package script

// Span locates a statement or expression in its source text.
// Lines and columns are 1-based.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Stmt is one parsed statement. Every statement carries its span and the
// raw source text it was parsed from (used as the display label of its
// Procedure node).
type Stmt interface {
	Span() Span
	Text() string
}

// stmtBase carries the span/text bookkeeping shared by all statements.
type stmtBase struct {
	span Span
	text string
}

func (b stmtBase) Span() Span   { return b.span }
func (b stmtBase) Text() string { return b.text }

// AssignStmt is `name = expr`.
type AssignStmt struct {
	stmtBase
	Name  string
	Value Expr
}

// ExprStmt is a bare expression evaluated for its side effects, e.g. a call.
type ExprStmt struct {
	stmtBase
	X Expr
}

// IfStmt is `if cond { ... } else { ... }`. Else may be nil.
type IfStmt struct {
	stmtBase
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// ForStmt is `for name in iterable { ... }`. The iterable must evaluate to
// a list (use the range builtin for numeric loops).
type ForStmt struct {
	stmtBase
	Var      string
	Iterable Expr
	Body     []Stmt
}

// WhileStmt is `while cond { ... }`.
type WhileStmt struct {
	stmtBase
	Cond Expr
	Body []Stmt
}

// RepeatStmt is `repeat n { ... }`: a fixed-count loop without a variable.
type RepeatStmt struct {
	stmtBase
	Count Expr
	Body  []Stmt
}

// FuncStmt is `func name(params) { ... }`. Defining a function binds name
// in the current scope like an assignment.
type FuncStmt struct {
	stmtBase
	Name   string
	Params []string
	Body   []Stmt
}

// ReturnStmt is `return expr?`, valid only inside a function body.
type ReturnStmt struct {
	stmtBase
	Value Expr // nil for bare return
}

// SourceStmt is `source "path"`: nested inclusion of another script.
type SourceStmt struct {
	stmtBase
	Path string
}

// Expr is a parsed expression.
type Expr interface {
	ExprSpan() Span
}

type exprBase struct {
	span Span
}

func (b exprBase) ExprSpan() Span { return b.span }

// NumberLit is a numeric literal.
type NumberLit struct {
	exprBase
	Value float64
}

// StringLit is a double-quoted string literal.
type StringLit struct {
	exprBase
	Value string
}

// BoolLit is true or false.
type BoolLit struct {
	exprBase
	Value bool
}

// NilLit is the nil literal.
type NilLit struct {
	exprBase
}

// ListLit is `[a, b, c]`.
type ListLit struct {
	exprBase
	Elems []Expr
}

// Ident is a variable reference.
type Ident struct {
	exprBase
	Name string
}

// BinaryExpr is `left op right` for arithmetic, comparison, and logic.
type BinaryExpr struct {
	exprBase
	Op    string
	Left  Expr
	Right Expr
}

// UnaryExpr is `-x` or `!x`.
type UnaryExpr struct {
	exprBase
	Op string
	X  Expr
}

// CallExpr is `callee(args)`. Callee is an identifier resolved at call time,
// so functions can be rebound like any other variable.
type CallExpr struct {
	exprBase
	Callee string
	Args   []Expr
}

// IndexExpr is `list[i]`.
type IndexExpr struct {
	exprBase
	X     Expr
	Index Expr
}
