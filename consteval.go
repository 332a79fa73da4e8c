// consteval.go - Compile-time constant evaluation
//
// Constant expressions fold with exact decimal arithmetic and stay
// untyped until a use site materializes them, so 0.1 + 0.2 == 0.3
// holds in constant context even though it fails in float arithmetic.
// Materialization to int checks the int64 range; overflow is a
// diagnostic, never a silent wrap.

package main

import (
	"math"

	"github.com/shopspring/decimal"
)

// constValue is one folded compile-time value
type constValue struct {
	kind TypeKind // TypeUntypedInt, TypeUntypedFloat, TypeUntypedBool, TypeString, or TypeInvalid
	num  decimal.Decimal
	b    bool
	s    string
}

var invalidConst = constValue{kind: TypeInvalid}

func (v constValue) isInvalid() bool { return v.kind == TypeInvalid }

func (v constValue) typ() *Type {
	switch v.kind {
	case TypeUntypedInt:
		return typUntypedInt
	case TypeUntypedFloat:
		return typUntypedFloat
	case TypeUntypedBool:
		return typUntypedBool
	case TypeString:
		return typString
	default:
		return typInvalid
	}
}

// render gives the canonical text form used in interface hashes
func (v constValue) render() string {
	switch v.kind {
	case TypeUntypedInt, TypeUntypedFloat:
		return v.num.String()
	case TypeUntypedBool:
		if v.b {
			return "true"
		}
		return "false"
	case TypeString:
		return "\"" + v.s + "\""
	default:
		return "<invalid>"
	}
}

var (
	maxInt64Dec = decimal.NewFromInt(math.MaxInt64)
	minInt64Dec = decimal.NewFromInt(math.MinInt64)
)

// asInt64 materializes a numeric constant as int64, reporting whether
// it fits. Fractional values never fit.
func (v constValue) asInt64() (int64, bool) {
	if v.kind != TypeUntypedInt {
		return 0, false
	}
	if v.num.GreaterThan(maxInt64Dec) || v.num.LessThan(minInt64Dec) {
		return 0, false
	}
	return v.num.IntPart(), true
}

// asFloat64 materializes a numeric constant as float64; precision loss
// here is expected, exactness only holds in constant context.
func (v constValue) asFloat64() (float64, bool) {
	if v.kind != TypeUntypedInt && v.kind != TypeUntypedFloat {
		return 0, false
	}
	return v.num.InexactFloat64(), true
}

// constEvaluator folds one constant expression tree. The resolve hook
// handles Ident and SelectorExpr references to other constants; it
// owns cycle detection and reports its own diagnostics.
type constEvaluator struct {
	file    string
	diags   *DiagnosticCollector
	resolve func(e Expr) (constValue, bool)
}

func (ev *constEvaluator) errorAt(pos Pos, length int, format string, args ...any) {
	ev.diags.Errorf(CategoryConst,
		SourceLocation{File: ev.file, Line: pos.Line, Col: pos.Col, Length: length},
		format, args...)
}

func (ev *constEvaluator) eval(e Expr) constValue {
	switch x := e.(type) {
	case *BadExpr:
		return invalidConst
	case *IntLit:
		num, err := decimal.NewFromString(x.Text)
		if err != nil {
			ev.errorAt(x.Pos, len(x.Text), "malformed integer literal '%s'", x.Text)
			return invalidConst
		}
		return constValue{kind: TypeUntypedInt, num: num}
	case *FloatLit:
		num, err := decimal.NewFromString(x.Text)
		if err != nil {
			ev.errorAt(x.Pos, len(x.Text), "malformed float literal '%s'", x.Text)
			return invalidConst
		}
		return constValue{kind: TypeUntypedFloat, num: num}
	case *BoolLit:
		return constValue{kind: TypeUntypedBool, b: x.Value}
	case *StringLit:
		return constValue{kind: TypeString, s: x.Value}
	case *Ident, *SelectorExpr:
		if ev.resolve != nil {
			if v, ok := ev.resolve(e); ok {
				return v
			}
		}
		return invalidConst
	case *UnaryExpr:
		return ev.evalUnary(x)
	case *BinaryExpr:
		return ev.evalBinary(x)
	case *CallExpr:
		pos := x.ExprPos()
		ev.errorAt(pos, 1, "function calls are not allowed in constant expressions")
		return invalidConst
	default:
		pos := e.ExprPos()
		ev.errorAt(pos, 1, "expression is not constant")
		return invalidConst
	}
}

func (ev *constEvaluator) evalUnary(x *UnaryExpr) constValue {
	v := ev.eval(x.X)
	if v.isInvalid() {
		return invalidConst
	}
	switch x.Op {
	case TOKEN_MINUS:
		if v.kind != TypeUntypedInt && v.kind != TypeUntypedFloat {
			ev.errorAt(x.Pos, 1, "operator '-' requires a numeric operand, found %s", v.typ())
			return invalidConst
		}
		v.num = v.num.Neg()
		return v
	case TOKEN_NOT:
		if v.kind != TypeUntypedBool {
			ev.errorAt(x.Pos, 1, "operator '!' requires a bool operand, found %s", v.typ())
			return invalidConst
		}
		v.b = !v.b
		return v
	}
	return invalidConst
}

func (ev *constEvaluator) evalBinary(x *BinaryExpr) constValue {
	lhs := ev.eval(x.X)
	rhs := ev.eval(x.Y)
	if lhs.isInvalid() || rhs.isInvalid() {
		return invalidConst
	}

	numeric := func() bool {
		if (lhs.kind == TypeUntypedInt || lhs.kind == TypeUntypedFloat) &&
			(rhs.kind == TypeUntypedInt || rhs.kind == TypeUntypedFloat) {
			return true
		}
		ev.errorAt(x.OpPos, len(opLexemes[x.Op]),
			"operator '%s' requires numeric operands, found %s and %s",
			opLexemes[x.Op], lhs.typ(), rhs.typ())
		return false
	}
	resultKind := func() TypeKind {
		if lhs.kind == TypeUntypedFloat || rhs.kind == TypeUntypedFloat {
			return TypeUntypedFloat
		}
		return TypeUntypedInt
	}
	boolConst := func(b bool) constValue {
		return constValue{kind: TypeUntypedBool, b: b}
	}

	switch x.Op {
	case TOKEN_PLUS:
		if !numeric() {
			return invalidConst
		}
		return constValue{kind: resultKind(), num: lhs.num.Add(rhs.num)}
	case TOKEN_MINUS:
		if !numeric() {
			return invalidConst
		}
		return constValue{kind: resultKind(), num: lhs.num.Sub(rhs.num)}
	case TOKEN_STAR:
		if !numeric() {
			return invalidConst
		}
		return constValue{kind: resultKind(), num: lhs.num.Mul(rhs.num)}
	case TOKEN_SLASH:
		if !numeric() {
			return invalidConst
		}
		if rhs.num.IsZero() {
			ev.errorAt(x.OpPos, 1, "division by zero in constant expression")
			return invalidConst
		}
		if resultKind() == TypeUntypedInt {
			// integer constants divide like ints: truncate toward zero
			q, _ := lhs.num.QuoRem(rhs.num, 0)
			return constValue{kind: TypeUntypedInt, num: q}
		}
		return constValue{kind: TypeUntypedFloat, num: lhs.num.Div(rhs.num)}
	case TOKEN_PERCENT:
		if lhs.kind != TypeUntypedInt || rhs.kind != TypeUntypedInt {
			ev.errorAt(x.OpPos, 1, "operator '%%' requires integer operands, found %s and %s",
				lhs.typ(), rhs.typ())
			return invalidConst
		}
		if rhs.num.IsZero() {
			ev.errorAt(x.OpPos, 1, "division by zero in constant expression")
			return invalidConst
		}
		_, r := lhs.num.QuoRem(rhs.num, 0)
		return constValue{kind: TypeUntypedInt, num: r}
	case TOKEN_EQ, TOKEN_NE:
		if lhs.kind == TypeUntypedBool && rhs.kind == TypeUntypedBool {
			eq := lhs.b == rhs.b
			if x.Op == TOKEN_NE {
				eq = !eq
			}
			return boolConst(eq)
		}
		if !numeric() {
			return invalidConst
		}
		eq := lhs.num.Equal(rhs.num)
		if x.Op == TOKEN_NE {
			eq = !eq
		}
		return boolConst(eq)
	case TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		if !numeric() {
			return invalidConst
		}
		cmp := lhs.num.Cmp(rhs.num)
		switch x.Op {
		case TOKEN_LT:
			return boolConst(cmp < 0)
		case TOKEN_LE:
			return boolConst(cmp <= 0)
		case TOKEN_GT:
			return boolConst(cmp > 0)
		default:
			return boolConst(cmp >= 0)
		}
	case TOKEN_ANDAND, TOKEN_OROR:
		if lhs.kind != TypeUntypedBool || rhs.kind != TypeUntypedBool {
			ev.errorAt(x.OpPos, 2, "operator '%s' requires bool operands, found %s and %s",
				opLexemes[x.Op], lhs.typ(), rhs.typ())
			return invalidConst
		}
		if x.Op == TOKEN_ANDAND {
			return boolConst(lhs.b && rhs.b)
		}
		return boolConst(lhs.b || rhs.b)
	}
	return invalidConst
}
