package script

import (
	"strings"
	"testing"
)

func TestParseStatementKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string // type name of the single parsed statement
	}{
		{"assignment", "x = 1\n", "*script.AssignStmt"},
		{"call", "print(1)\n", "*script.ExprStmt"},
		{"if", "if x > 0 { y = 1 }\n", "*script.IfStmt"},
		{"if else", "if x > 0 { y = 1 } else { y = 2 }\n", "*script.IfStmt"},
		{"for", "for i in range(1, 3) { print(i) }\n", "*script.ForStmt"},
		{"while", "while x < 5 { x = x + 1 }\n", "*script.WhileStmt"},
		{"repeat", "repeat 3 { x = x + 1 }\n", "*script.RepeatStmt"},
		{"func", "func add(a, b) { return a + b }\n", "*script.FuncStmt"},
		{"source", "source \"lib.prs\"\n", "*script.SourceStmt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if len(stmts) != 1 {
				t.Fatalf("len(stmts) = %d, want 1", len(stmts))
			}
			got := typeName(stmts[0])
			if got != tt.want {
				t.Errorf("stmt type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(s Stmt) string {
	switch s.(type) {
	case *AssignStmt:
		return "*script.AssignStmt"
	case *ExprStmt:
		return "*script.ExprStmt"
	case *IfStmt:
		return "*script.IfStmt"
	case *ForStmt:
		return "*script.ForStmt"
	case *WhileStmt:
		return "*script.WhileStmt"
	case *RepeatStmt:
		return "*script.RepeatStmt"
	case *FuncStmt:
		return "*script.FuncStmt"
	case *ReturnStmt:
		return "*script.ReturnStmt"
	case *SourceStmt:
		return "*script.SourceStmt"
	}
	return "unknown"
}

func TestParseSpansAndText(t *testing.T) {
	src := "x = 1\ny = x + 1\nprint(y)\n"
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("len(stmts) = %d, want 3", len(stmts))
	}

	wantText := []string{"x = 1", "y = x + 1", "print(y)"}
	for i, s := range stmts {
		if s.Span().StartLine != i+1 {
			t.Errorf("stmts[%d] start line = %d, want %d", i, s.Span().StartLine, i+1)
		}
		if s.Text() != wantText[i] {
			t.Errorf("stmts[%d] text = %q, want %q", i, s.Text(), wantText[i])
		}
	}
}

func TestParseComments(t *testing.T) {
	src := "# leading comment\nx = 1 # trailing comment\n\n# only comments below\n"
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("len(stmts) = %d, want 1", len(stmts))
	}
}

func TestParseNestedBlocks(t *testing.T) {
	src := `
for i in range(1, 3) {
	if i > 1 {
		print(i)
	} else {
		print(0)
	}
}
`
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	loop, ok := stmts[0].(*ForStmt)
	if !ok {
		t.Fatalf("stmt type = %T, want *ForStmt", stmts[0])
	}
	if len(loop.Body) != 1 {
		t.Fatalf("loop body len = %d, want 1", len(loop.Body))
	}
	cond, ok := loop.Body[0].(*IfStmt)
	if !ok {
		t.Fatalf("body stmt type = %T, want *IfStmt", loop.Body[0])
	}
	if len(cond.Then) != 1 || len(cond.Else) != 1 {
		t.Errorf("then/else lens = %d/%d, want 1/1", len(cond.Then), len(cond.Else))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string // substring of the error
	}{
		{"unterminated string", "x = \"abc\n", "unterminated string"},
		{"unclosed block", "if x > 0 {\n y = 1\n", "expected \"}\""},
		{"bad source path", "source 42\n", "expected script path"},
		{"stray token", "x = 1 2\n", "expected end of statement"},
		{"unknown char", "x = 1 @\n", "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	stmts, err := Parse("x = 1 + 2 * 3\n")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	assign := stmts[0].(*AssignStmt)
	bin, ok := assign.Value.(*BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("top op = %v, want +", assign.Value)
	}
	right, ok := bin.Right.(*BinaryExpr)
	if !ok || right.Op != "*" {
		t.Fatalf("right op = %v, want *", bin.Right)
	}
}
