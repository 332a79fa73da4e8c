package main

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// evalConstExpr parses "const a = <expr>" and folds the initializer
func evalConstExpr(t *testing.T, expr string) (constValue, *DiagnosticCollector) {
	t.Helper()
	diags := NewDiagnosticCollector()
	unit := ParseUnit("u.ind", "unit u\nconst a = "+expr+"\n", diags)
	if diags.HasErrors() {
		t.Fatalf("parse errors in %q: %v", expr, diags.Diagnostics())
	}
	decl, ok := unit.Decls[0].(*ConstDecl)
	if !ok {
		t.Fatalf("first declaration is %T, want *ConstDecl", unit.Decls[0])
	}
	ev := &constEvaluator{file: "u.ind", diags: diags}
	return ev.eval(decl.Value), diags
}

// TestConstArithmetic verifies folding renders exact results
func TestConstArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2", "3"},
		{"10 - 3", "7"},
		{"6 * 7", "42"},
		{"7 / 2", "3"},
		{"-7 / 2", "-3"},
		{"7 % 3", "1"},
		{"0.1 + 0.2", "0.3"},
		{"1.5 * 2", "3"},
		{"1 / 4.0", "0.25"},
		{"-(2 + 3)", "-5"},
		{"2 + 3 * 4", "14"},
		{"true", "true"},
		{"!true", "false"},
		{"1 < 2", "true"},
		{"2 <= 1", "false"},
		{"3 > 2", "true"},
		{"2 >= 3", "false"},
		{"1 == 1.0", "true"},
		{"1 != 1", "false"},
		{"0.1 + 0.2 == 0.3", "true"},
		{"true && false", "false"},
		{"true || false", "true"},
		{"\"hi\"", "\"hi\""},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, diags := evalConstExpr(t, tt.expr)
			if diags.HasErrors() {
				t.Fatalf("unexpected errors: %v", diags.Diagnostics())
			}
			if got := v.render(); got != tt.want {
				t.Errorf("%s folded to %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

// TestConstErrors verifies fold-time diagnostics
func TestConstErrors(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 / 0", "division by zero in constant expression"},
		{"1 % 0", "division by zero in constant expression"},
		{"1 + true", "requires numeric operands"},
		{"\"a\" + \"b\"", "requires numeric operands"},
		{"1.5 % 2", "requires integer operands"},
		{"1 && true", "requires bool operands"},
		{"-true", "requires a numeric operand"},
		{"!1", "requires a bool operand"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, diags := evalConstExpr(t, tt.expr)
			if !v.isInvalid() {
				t.Errorf("%s folded to %s, want invalid", tt.expr, v.render())
			}
			found := false
			for _, d := range diags.Diagnostics() {
				if strings.Contains(d.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("no diagnostic containing %q, got %v", tt.want, diags.Diagnostics())
			}
		})
	}
}

// TestConstIntRange verifies int materialization bounds
func TestConstIntRange(t *testing.T) {
	tests := []struct {
		expr string
		fits bool
	}{
		{"9223372036854775807", true},
		{"-9223372036854775808", true},
		{"9223372036854775808", false},
		{"-9223372036854775809", false},
		{"1.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, diags := evalConstExpr(t, tt.expr)
			if diags.HasErrors() {
				t.Fatalf("unexpected errors: %v", diags.Diagnostics())
			}
			if _, ok := v.asInt64(); ok != tt.fits {
				t.Errorf("asInt64 ok = %v, want %v", ok, tt.fits)
			}
		})
	}
}

// TestConstResolveHook verifies identifier resolution feeds folding
func TestConstResolveHook(t *testing.T) {
	diags := NewDiagnosticCollector()
	unit := ParseUnit("u.ind", "unit u\nconst a = base * 2\n", diags)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.Diagnostics())
	}
	decl := unit.Decls[0].(*ConstDecl)
	ev := &constEvaluator{
		file:  "u.ind",
		diags: diags,
		resolve: func(e Expr) (constValue, bool) {
			if id, ok := e.(*Ident); ok && id.Name == "base" {
				return constValue{kind: TypeUntypedInt, num: decimal.NewFromInt(21)}, true
			}
			return invalidConst, false
		},
	}
	v := ev.eval(decl.Value)
	if got := v.render(); got != "42" {
		t.Errorf("base * 2 folded to %s, want 42", got)
	}
}

// TestConstCallRejected verifies calls never fold
func TestConstCallRejected(t *testing.T) {
	v, diags := evalConstExpr(t, "f(1)")
	if !v.isInvalid() {
		t.Fatalf("call folded to %s, want invalid", v.render())
	}
	found := false
	for _, d := range diags.Diagnostics() {
		if strings.Contains(d.Message, "function calls are not allowed in constant expressions") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing call diagnostic, got %v", diags.Diagnostics())
	}
}
