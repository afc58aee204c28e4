package script

import (
	"bytes"
	"strings"
	"testing"
)

// run parses and executes src in a fresh root scope, returning the scope
// and captured print output.
func run(t *testing.T, src string) (*Scope, string) {
	t.Helper()
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ev := NewEvaluator()
	var out bytes.Buffer
	ev.Stdout = &out
	scope := NewScope()
	ev.Bind(scope)
	if err := ev.ExecBody(stmts, scope); err != nil {
		t.Fatalf("ExecBody() error: %v", err)
	}
	return scope, out.String()
}

func TestEvalArithmeticAndAssignment(t *testing.T) {
	scope, _ := run(t, "x = 1\ny = x + 2 * 3\nz = (x + y) / 2\n")

	tests := []struct {
		name string
		want float64
	}{
		{"x", 1},
		{"y", 7},
		{"z", 4},
	}
	for _, tt := range tests {
		v, ok := scope.Peek(tt.name)
		if !ok {
			t.Fatalf("%s not bound", tt.name)
		}
		if v.Num != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, v.Num, tt.want)
		}
	}
}

func TestEvalPrint(t *testing.T) {
	_, out := run(t, "x = 2\nprint(\"x is\", x)\n")
	if out != "x is 2\n" {
		t.Errorf("output = %q, want %q", out, "x is 2\n")
	}
}

func TestEvalConditionals(t *testing.T) {
	scope, _ := run(t, `
x = 5
if x > 3 {
	label = "big"
} else {
	label = "small"
}
`)
	if v, _ := scope.Peek("label"); v.Str != "big" {
		t.Errorf("label = %q, want big", v.Str)
	}
}

func TestEvalLoops(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want float64
	}{
		{
			name: "for over range",
			src:  "total = 0\nfor i in range(1, 4) { total = total + i }\n",
			want: 10,
		},
		{
			name: "for over list",
			src:  "total = 0\nfor x in [2, 4, 6] { total = total + x }\n",
			want: 12,
		},
		{
			name: "while",
			src:  "n = 0\nwhile n < 5 { n = n + 1 }\n",
			want: 5,
		},
		{
			name: "repeat",
			src:  "n = 1\nrepeat 3 { n = n * 2 }\n",
			want: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, _ := run(t, tt.src)
			name := "total"
			if strings.Contains(tt.src, "n =") {
				name = "n"
			}
			if v, _ := scope.Peek(name); v.Num != tt.want {
				t.Errorf("%s = %v, want %v", name, v.Num, tt.want)
			}
		})
	}
}

func TestEvalFunctions(t *testing.T) {
	scope, _ := run(t, `
func add(a, b) {
	return a + b
}
z = add(2, 3)
`)
	if v, _ := scope.Peek("z"); v.Num != 5 {
		t.Errorf("z = %v, want 5", v.Num)
	}
	// Parameters must not leak into the defining scope.
	if _, ok := scope.Peek("a"); ok {
		t.Error("parameter a leaked into outer scope")
	}
}

func TestEvalClosureCapturesDefiningScope(t *testing.T) {
	scope, _ := run(t, `
base = 10
func bump(n) {
	return base + n
}
r = bump(5)
`)
	if v, _ := scope.Peek("r"); v.Num != 15 {
		t.Errorf("r = %v, want 15", v.Num)
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined variable", "y = x + 1\n", "undefined variable"},
		{"division by zero", "y = 1 / 0\n", "division by zero"},
		{"bad iterate", "for i in 5 { print(i) }\n", "cannot iterate"},
		{"arity", "func f(a) { return a }\nf(1, 2)\n", "want 1 arguments"},
		{"not callable", "x = 1\nx(2)\n", "not callable"},
		{"index range", "xs = [1]\ny = xs[3]\n", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			ev := NewEvaluator()
			scope := NewScope()
			ev.Bind(scope)
			err = ev.ExecBody(stmts, scope)
			if err == nil {
				t.Fatal("ExecBody() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestEvalListsAndBuiltins(t *testing.T) {
	scope, _ := run(t, `
xs = [1, 2, 3] + [4]
n = len(xs)
first = xs[0]
s = str(n)
m = num("42")
`)
	checks := []struct {
		name string
		want Value
	}{
		{"n", NumVal(4)},
		{"first", NumVal(1)},
		{"s", StrVal("4")},
		{"m", NumVal(42)},
	}
	for _, c := range checks {
		if v, _ := scope.Peek(c.name); !v.Equal(c.want) {
			t.Errorf("%s = %v, want %v", c.name, v, c.want)
		}
	}
}

func TestEvalShortCircuit(t *testing.T) {
	// The right side would fail if evaluated.
	scope, _ := run(t, "ok = false && missing\nok2 = true || missing\n")
	if v, _ := scope.Peek("ok"); v.Bool {
		t.Error("ok = true, want false")
	}
	if v, _ := scope.Peek("ok2"); !v.Bool {
		t.Error("ok2 = false, want true")
	}
}
