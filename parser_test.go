package main

import (
	"strings"
	"testing"
)

func parseSource(t *testing.T, path, src string) (*UnitFile, *DiagnosticCollector) {
	t.Helper()
	diags := NewDiagnosticCollector()
	return ParseUnit(path, src, diags), diags
}

// firstExpr digs the first expression statement out of the named
// function's body.
func firstExpr(t *testing.T, unit *UnitFile, fnName string) Expr {
	t.Helper()
	for _, decl := range unit.Decls {
		fn, ok := decl.(*FnDecl)
		if !ok || fn.Name != fnName {
			continue
		}
		for _, stmt := range fn.Body.Stmts {
			switch s := stmt.(type) {
			case *ExprStmt:
				return s.X
			case *BindStmt:
				return s.Value
			case *ReturnStmt:
				return s.Value
			}
		}
	}
	t.Fatalf("no expression found in %s", fnName)
	return nil
}

// TestParsePrecedence pins the operator precedence and associativity
// by rendering parsed expressions with explicit grouping.
func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"10 - 4 - 3", "((10 - 4) - 3)"},
		{"a / b * c", "((a / b) * c)"},
		{"a + b < c * d", "((a + b) < (c * d))"},
		{"a < b == c", "((a < b) == c)"},
		{"a && b || c && d", "((a && b) || (c && d))"},
		{"a == b && c != d", "((a == b) && (c != d))"},
		{"-x * y", "((-x) * y)"},
		{"!a && b", "((!a) && b)"},
		{"-f(1)", "(-f(1))"},
		{"a % b + c", "((a % b) + c)"},
		{"f(a + b, g(c))", "f((a + b), g(c))"},
		{"m.scale(2) + 1", "(m.scale(2) + 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			src := "unit main\nfn main() {\nlet v = " + tt.expr + "\n}\n"
			unit, diags := parseSource(t, "main.ind", src)
			if diags.HasErrors() {
				t.Fatalf("parse errors: %v", diags.Diagnostics())
			}
			got := exprString(firstExpr(t, unit, "main"))
			if got != tt.want {
				t.Errorf("parsed %q as %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

// TestParseUnitHeader verifies the unit declaration rules
func TestParseUnitHeader(t *testing.T) {
	t.Run("name and imports", func(t *testing.T) {
		src := "unit main\nuse math\nuse fmtutil\n"
		unit, diags := parseSource(t, "main.ind", src)
		if diags.HasErrors() {
			t.Fatalf("parse errors: %v", diags.Diagnostics())
		}
		if unit.Name != "main" {
			t.Errorf("unit name = %q, want main", unit.Name)
		}
		if len(unit.Uses) != 2 || unit.Uses[0].Name != "math" || unit.Uses[1].Name != "fmtutil" {
			t.Errorf("uses = %v, want [math fmtutil]", unit.Uses)
		}
	})

	t.Run("name must match file stem", func(t *testing.T) {
		_, diags := parseSource(t, "main.ind", "unit other\n")
		if !diags.HasErrors() {
			t.Fatal("expected an error for a mismatched unit name")
		}
		msg := diags.Diagnostics()[0].Message
		if !strings.Contains(msg, "does not match file name") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		_, diags := parseSource(t, "main.ind", "fn main() {\n}\n")
		if !diags.HasErrors() {
			t.Fatal("expected an error for a missing unit declaration")
		}
	})
}

// TestParseDeclarations verifies function and constant declaration
// shapes, including visibility.
func TestParseDeclarations(t *testing.T) {
	src := `unit math
pub const pi = 3.14159
const scale = 2

pub fn area(r: float) -> float {
	return r * r * pi
}

fn helper(n: int, f: float) -> bool {
	return true
}
`
	unit, diags := parseSource(t, "math.ind", src)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.Diagnostics())
	}
	if len(unit.Decls) != 4 {
		t.Fatalf("decl count = %d, want 4", len(unit.Decls))
	}

	pi, ok := unit.Decls[0].(*ConstDecl)
	if !ok || pi.Name != "pi" || !pi.Pub {
		t.Errorf("decl 0 = %#v, want pub const pi", unit.Decls[0])
	}
	scale, ok := unit.Decls[1].(*ConstDecl)
	if !ok || scale.Name != "scale" || scale.Pub {
		t.Errorf("decl 1 = %#v, want private const scale", unit.Decls[1])
	}

	area, ok := unit.Decls[2].(*FnDecl)
	if !ok || area.Name != "area" || !area.Pub {
		t.Fatalf("decl 2 = %#v, want pub fn area", unit.Decls[2])
	}
	if len(area.Params) != 1 || area.Params[0].Name != "r" || area.Params[0].Type.Name != "float" {
		t.Errorf("area params = %#v", area.Params)
	}
	if area.Result == nil || area.Result.Name != "float" {
		t.Errorf("area result = %#v, want float", area.Result)
	}

	helper, ok := unit.Decls[3].(*FnDecl)
	if !ok || helper.Pub {
		t.Fatalf("decl 3 = %#v, want private fn helper", unit.Decls[3])
	}
	if len(helper.Params) != 2 {
		t.Errorf("helper params = %d, want 2", len(helper.Params))
	}
}

// TestParseStatements verifies the statement forms parse to the right
// node shapes.
func TestParseStatements(t *testing.T) {
	src := `unit main
fn main() {
	let a = 1
	var b: float = 2.0
	b = 3.5
	if a < 1 {
		print("small")
	} else if a < 10 {
		print("medium")
	} else {
		print("large")
	}
	while a < 100 {
		break
		continue
	}
	return
}
`
	unit, diags := parseSource(t, "main.ind", src)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.Diagnostics())
	}
	fn := unit.Decls[0].(*FnDecl)
	stmts := fn.Body.Stmts
	if len(stmts) != 6 {
		t.Fatalf("statement count = %d, want 6", len(stmts))
	}

	let, ok := stmts[0].(*BindStmt)
	if !ok || let.Mutable || let.Name != "a" || let.Type != nil {
		t.Errorf("stmt 0 = %#v, want let a with inferred type", stmts[0])
	}
	varb, ok := stmts[1].(*BindStmt)
	if !ok || !varb.Mutable || varb.Type == nil || varb.Type.Name != "float" {
		t.Errorf("stmt 1 = %#v, want var b: float", stmts[1])
	}
	if _, ok := stmts[2].(*AssignStmt); !ok {
		t.Errorf("stmt 2 = %#v, want assignment", stmts[2])
	}

	ifs, ok := stmts[3].(*IfStmt)
	if !ok {
		t.Fatalf("stmt 3 = %#v, want if", stmts[3])
	}
	elseIf, ok := ifs.Else.(*IfStmt)
	if !ok {
		t.Fatalf("else branch = %#v, want chained if", ifs.Else)
	}
	if _, ok := elseIf.Else.(*BlockStmt); !ok {
		t.Errorf("final else = %#v, want block", elseIf.Else)
	}

	loop, ok := stmts[4].(*WhileStmt)
	if !ok {
		t.Fatalf("stmt 4 = %#v, want while", stmts[4])
	}
	if _, ok := loop.Body.Stmts[0].(*BreakStmt); !ok {
		t.Errorf("loop stmt 0 = %#v, want break", loop.Body.Stmts[0])
	}
	if _, ok := loop.Body.Stmts[1].(*ContinueStmt); !ok {
		t.Errorf("loop stmt 1 = %#v, want continue", loop.Body.Stmts[1])
	}

	ret, ok := stmts[5].(*ReturnStmt)
	if !ok || ret.Value != nil {
		t.Errorf("stmt 5 = %#v, want bare return", stmts[5])
	}
}

// TestParseRecovery verifies that one syntax error does not hide the
// declarations after it.
func TestParseRecovery(t *testing.T) {
	src := `unit main
fn broken( {
}
fn fine() {
	let x = 1
}
`
	unit, diags := parseSource(t, "main.ind", src)
	if !diags.HasErrors() {
		t.Fatal("expected a syntax error")
	}
	var names []string
	for _, decl := range unit.Decls {
		names = append(names, decl.DeclName())
	}
	found := false
	for _, n := range names {
		if n == "fine" {
			found = true
		}
	}
	if !found {
		t.Errorf("declarations after the error were lost: %v", names)
	}
}

// TestParseBadExprPlaceholder verifies malformed expressions become
// BadExpr nodes rather than nil.
func TestParseBadExprPlaceholder(t *testing.T) {
	src := "unit main\nfn main() {\nlet x = * 3\n}\n"
	unit, diags := parseSource(t, "main.ind", src)
	if !diags.HasErrors() {
		t.Fatal("expected a syntax error")
	}
	fn := unit.Decls[0].(*FnDecl)
	if len(fn.Body.Stmts) == 0 {
		t.Fatal("statement was dropped entirely")
	}
}
