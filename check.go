// check.go - Name resolution and type checking for Indent units
//
// CheckUnit runs after parsing, against the already-checked interfaces
// of every imported unit. It produces the side tables lowering needs:
// a type for every expression and a folded value for every constant
// expression. All problems go to the collector; the checker itself
// never fails.

package main

import (
	"fmt"
)

// Parameter caps keep both backends on the register-passing fast path
// of the SysV convention.
const (
	maxIntParams   = 6
	maxFloatParams = 8
)

// UnitInterface is a unit's exported surface: what other units can see
// and what the interface hash covers.
type UnitInterface struct {
	Name   string
	Funcs  map[string]*FuncSig
	Consts map[string]constValue
}

// CheckedUnit is the front-end's final product for one unit
type CheckedUnit struct {
	File         *UnitFile
	Types        map[Expr]*Type
	Consts       map[Expr]constValue
	Sigs         map[string]*FuncSig
	Iface        *UnitInterface
	ImportIfaces map[string]*UnitInterface
}

type localVar struct {
	typ     *Type
	mutable bool
	isParam bool
	pos     Pos
	used    bool
}

type constState int

const (
	constUnresolved constState = iota
	constResolving
	constResolved
)

type constEntry struct {
	decl  *ConstDecl
	value constValue
	state constState
}

// Checker holds per-unit checking state
type Checker struct {
	unit    *UnitFile
	diags   *DiagnosticCollector
	imports map[string]*UnitInterface

	funcs  map[string]*FnDecl
	sigs   map[string]*FuncSig
	consts map[string]*constEntry

	types       map[Expr]*Type
	constVals   map[Expr]constValue
	usedImports map[string]bool

	curFn     *FnDecl
	curResult *Type
	scopes    []map[string]*localVar
	loopDepth int
}

// CheckUnit type-checks one unit. The imports map must contain an
// interface for every unit the file uses; the unit graph guarantees
// that by compiling dependencies first.
func CheckUnit(unit *UnitFile, imports map[string]*UnitInterface, diags *DiagnosticCollector) *CheckedUnit {
	c := &Checker{
		unit:        unit,
		diags:       diags,
		imports:     imports,
		funcs:       map[string]*FnDecl{},
		sigs:        map[string]*FuncSig{},
		consts:      map[string]*constEntry{},
		types:       map[Expr]*Type{},
		constVals:   map[Expr]constValue{},
		usedImports: map[string]bool{},
	}

	c.collectDecls()
	c.resolveSignatures()
	c.foldConstants()
	for _, decl := range unit.Decls {
		// a decl collectDecls rejected has no signature; skip its body
		if fn, ok := decl.(*FnDecl); ok && c.funcs[fn.Name] == fn {
			c.checkFunc(fn)
		}
	}
	for _, use := range unit.Uses {
		if !c.usedImports[use.Name] {
			c.warnAt(use.Pos, len("use"), "imported unit '%s' is not used", use.Name)
		}
	}

	return &CheckedUnit{
		File:         unit,
		Types:        c.types,
		Consts:       c.constVals,
		Sigs:         c.sigs,
		Iface:        c.buildInterface(),
		ImportIfaces: imports,
	}
}

func (c *Checker) errorAt(pos Pos, length int, format string, args ...any) {
	c.diags.Errorf(CategoryType,
		SourceLocation{File: c.unit.Path, Line: pos.Line, Col: pos.Col, Length: length},
		format, args...)
}

func (c *Checker) warnAt(pos Pos, length int, format string, args ...any) {
	c.diags.Warnf(CategoryType,
		SourceLocation{File: c.unit.Path, Line: pos.Line, Col: pos.Col, Length: length},
		format, args...)
}

func (c *Checker) location(pos Pos, length int) SourceLocation {
	return SourceLocation{File: c.unit.Path, Line: pos.Line, Col: pos.Col, Length: length}
}

// collectDecls indexes top-level declarations and rejects duplicates.
// Functions and constants share one namespace.
func (c *Checker) collectDecls() {
	seen := map[string]Pos{}
	for _, decl := range c.unit.Decls {
		name := decl.DeclName()
		if name == "print" || name == "println" {
			c.errorAt(decl.DeclPos(), len(name), "'%s' is a builtin and cannot be redefined", name)
			continue
		}
		if prev, dup := seen[name]; dup {
			c.errorAt(decl.DeclPos(), len(name),
				"'%s' redeclared in unit '%s' (first declared at line %d)", name, c.unit.Name, prev.Line)
			continue
		}
		seen[name] = decl.DeclPos()
		switch d := decl.(type) {
		case *FnDecl:
			c.funcs[name] = d
		case *ConstDecl:
			c.consts[name] = &constEntry{decl: d}
		}
	}
}

func (c *Checker) resolveTypeName(t *TypeName) *Type {
	if t == nil {
		return typVoid
	}
	typ := typeFromName(t.Name)
	if typ == nil {
		c.errorAt(t.Pos, len(t.Name), "unknown type '%s'", t.Name)
		return typInvalid
	}
	return typ
}

func (c *Checker) resolveSignatures() {
	for name, fn := range c.funcs {
		sig := &FuncSig{Result: c.resolveTypeName(fn.Result)}
		seen := map[string]Pos{}
		intClass, floatClass := 0, 0
		for _, p := range fn.Params {
			if prev, dup := seen[p.Name]; dup {
				c.errorAt(p.NamePos, len(p.Name),
					"duplicate parameter '%s' (first at line %d)", p.Name, prev.Line)
			}
			seen[p.Name] = p.NamePos
			pt := c.resolveTypeName(p.Type)
			sig.Params = append(sig.Params, pt)
			if pt.Kind == TypeFloat {
				floatClass++
			} else if !pt.IsInvalid() {
				intClass++
			}
		}
		if intClass > maxIntParams {
			c.errorAt(fn.NamePos, len(fn.Name),
				"too many integer-class parameters in '%s': %d, the limit is %d", fn.Name, intClass, maxIntParams)
		}
		if floatClass > maxFloatParams {
			c.errorAt(fn.NamePos, len(fn.Name),
				"too many float parameters in '%s': %d, the limit is %d", fn.Name, floatClass, maxFloatParams)
		}
		c.sigs[name] = sig

		if c.unit.Name == "main" && name == "main" {
			if len(fn.Params) > 0 || sig.Result.Kind != TypeVoid {
				c.errorAt(fn.NamePos, len(fn.Name), "'main' must take no parameters and return nothing")
			}
		}
	}
}

// foldConstants resolves every constant declaration, detecting
// reference cycles along the way.
func (c *Checker) foldConstants() {
	for name := range c.consts {
		c.resolveConst(name)
	}
}

func (c *Checker) resolveConst(name string) constValue {
	entry := c.consts[name]
	switch entry.state {
	case constResolved:
		return entry.value
	case constResolving:
		c.errorAt(entry.decl.NamePos, len(name), "constant '%s' references itself through a cycle", name)
		entry.value = invalidConst
		entry.state = constResolved
		return entry.value
	}
	entry.state = constResolving
	ev := c.newConstEvaluator()
	entry.value = ev.eval(entry.decl.Value)
	entry.state = constResolved
	c.constVals[entry.decl.Value] = entry.value
	return entry.value
}

// newConstEvaluator wires the shared resolve hook: identifiers name
// unit constants, selectors name public constants of imported units.
func (c *Checker) newConstEvaluator() *constEvaluator {
	ev := &constEvaluator{file: c.unit.Path, diags: c.diags}
	ev.resolve = func(e Expr) (constValue, bool) {
		switch x := e.(type) {
		case *Ident:
			if _, isFn := c.funcs[x.Name]; isFn {
				ev.errorAt(x.Pos, len(x.Name), "function '%s' cannot appear in a constant expression", x.Name)
				return invalidConst, true
			}
			if _, ok := c.consts[x.Name]; ok {
				return c.resolveConst(x.Name), true
			}
			ev.errorAt(x.Pos, len(x.Name), "'%s' is not a constant", x.Name)
			return invalidConst, true
		case *SelectorExpr:
			iface, ok := c.imports[x.Unit]
			if !ok {
				ev.errorAt(x.UnitPos, len(x.Unit), "unit '%s' is not imported here", x.Unit)
				return invalidConst, true
			}
			c.usedImports[x.Unit] = true
			if v, ok := iface.Consts[x.Name]; ok {
				return v, true
			}
			ev.errorAt(x.NamePos, len(x.Name), "unit '%s' has no public constant '%s'", x.Unit, x.Name)
			return invalidConst, true
		}
		return invalidConst, false
	}
	return ev
}

// Scope helpers

func (c *Checker) pushScope() {
	c.scopes = append(c.scopes, map[string]*localVar{})
}

func (c *Checker) popScope() {
	top := c.scopes[len(c.scopes)-1]
	for name, v := range top {
		if !v.used && !v.isParam && name != "_" {
			c.warnAt(v.pos, len(name), "unused variable '%s'", name)
		}
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

func (c *Checker) declare(name string, v *localVar) {
	top := c.scopes[len(c.scopes)-1]
	if prev, dup := top[name]; dup {
		c.errorAt(v.pos, len(name),
			"'%s' redeclared in this block (first at line %d)", name, prev.pos.Line)
		return
	}
	top[name] = v
}

func (c *Checker) lookup(name string) *localVar {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

// Function bodies

func (c *Checker) checkFunc(fn *FnDecl) {
	c.curFn = fn
	c.curResult = c.sigs[fn.Name].Result
	c.loopDepth = 0

	c.pushScope()
	for i, p := range fn.Params {
		c.declare(p.Name, &localVar{
			typ:     c.sigs[fn.Name].Params[i],
			isParam: true,
			pos:     p.NamePos,
		})
	}
	c.checkBlock(fn.Body)
	c.popScope()

	if c.curResult.Kind != TypeVoid && !c.curResult.IsInvalid() && !blockTerminates(fn.Body) {
		c.diags.Add(&Diagnostic{
			Level:    LevelError,
			Category: CategoryType,
			Loc:      c.location(fn.NamePos, len(fn.Name)),
			Message:  fmt.Sprintf("function '%s' is missing a return on some path", fn.Name),
			Help:     "every path through a function returning a value must end in 'return'",
		})
	}
	c.curFn = nil
}

func (c *Checker) checkBlock(block *BlockStmt) {
	c.pushScope()
	for _, stmt := range block.Stmts {
		c.checkStmt(stmt)
	}
	c.popScope()
}

func (c *Checker) checkStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *BindStmt:
		c.checkBind(s)
	case *AssignStmt:
		c.checkAssign(s)
	case *IfStmt:
		c.checkCond(s.Cond)
		c.checkBlock(s.Then)
		switch e := s.Else.(type) {
		case *BlockStmt:
			c.checkBlock(e)
		case *IfStmt:
			c.checkStmt(e)
		}
	case *WhileStmt:
		c.checkCond(s.Cond)
		c.loopDepth++
		c.checkBlock(s.Body)
		c.loopDepth--
	case *ReturnStmt:
		c.checkReturn(s)
	case *BreakStmt:
		if c.loopDepth == 0 {
			c.errorAt(s.Pos, len("break"), "'break' outside of a loop")
		}
	case *ContinueStmt:
		if c.loopDepth == 0 {
			c.errorAt(s.Pos, len("continue"), "'continue' outside of a loop")
		}
	case *ExprStmt:
		t := c.checkExpr(s.X)
		if _, isCall := s.X.(*CallExpr); !isCall && !t.IsInvalid() {
			c.errorAt(s.X.ExprPos(), 1, "expression value is not used")
		}
	case *BlockStmt:
		c.checkBlock(s)
	}
}

func (c *Checker) checkBind(s *BindStmt) {
	valType := typInvalid
	if s.Value != nil {
		valType = c.checkExpr(s.Value)
	}

	var target *Type
	if s.Type != nil {
		target = c.resolveTypeName(s.Type)
		if target.Kind == TypeVoid {
			c.errorAt(s.Type.Pos, len(s.Type.Name), "cannot declare a variable of type void")
			target = typInvalid
		}
		if s.Value != nil && !assignable(target, valType) {
			c.diags.Add(typeMismatchError(target, valType, c.location(s.Value.ExprPos(), 1)))
		}
	} else {
		if valType.Kind == TypeVoid {
			c.errorAt(s.Value.ExprPos(), 1, "cannot bind the result of a void call")
			target = typInvalid
		} else {
			target = valType.Default()
		}
	}

	if s.Value != nil {
		c.materialize(s.Value, target)
	}
	c.declare(s.Name, &localVar{typ: target, mutable: s.Mutable, pos: s.NamePos})
}

func (c *Checker) checkAssign(s *AssignStmt) {
	valType := c.checkExpr(s.Value)
	v := c.lookup(s.Name)
	if v == nil {
		if _, isConst := c.consts[s.Name]; isConst {
			c.errorAt(s.NamePos, len(s.Name), "cannot assign to constant '%s'", s.Name)
			return
		}
		if _, isFn := c.funcs[s.Name]; isFn {
			c.errorAt(s.NamePos, len(s.Name), "cannot assign to function '%s'", s.Name)
			return
		}
		c.diags.Add(withFile(undefinedNameError(s.Name, SourceLocation{
			Line: s.NamePos.Line, Col: s.NamePos.Col, Length: len(s.Name),
		}, closestName(s.Name, c.nameCandidates(false))), c.unit.Path))
		return
	}
	v.used = true
	if v.isParam {
		c.errorAt(s.NamePos, len(s.Name), "cannot assign to parameter '%s'", s.Name)
		return
	}
	if !v.mutable {
		c.diags.Add(&Diagnostic{
			Level:    LevelError,
			Category: CategoryType,
			Loc:      c.location(s.NamePos, len(s.Name)),
			Message:  fmt.Sprintf("cannot assign to immutable binding '%s'", s.Name),
			Help:     "declare it with 'var' instead of 'let' to allow reassignment",
		})
		return
	}
	if !assignable(v.typ, valType) {
		c.diags.Add(typeMismatchError(v.typ, valType, c.location(s.Value.ExprPos(), 1)))
		return
	}
	c.materialize(s.Value, v.typ)
}

func (c *Checker) checkCond(cond Expr) {
	t := c.checkExpr(cond)
	if !t.IsBoolean() && !t.IsInvalid() {
		c.errorAt(cond.ExprPos(), 1, "condition must be bool, found %s", t)
		return
	}
	c.materialize(cond, typBool)
}

func (c *Checker) checkReturn(s *ReturnStmt) {
	if c.curResult.Kind == TypeVoid {
		if s.Value != nil {
			c.errorAt(s.Value.ExprPos(), 1,
				"unexpected return value: function '%s' returns nothing", c.curFn.Name)
			c.checkExpr(s.Value)
		}
		return
	}
	if s.Value == nil {
		c.errorAt(s.Pos, len("return"),
			"missing return value: function '%s' returns %s", c.curFn.Name, c.curResult)
		return
	}
	valType := c.checkExpr(s.Value)
	if !assignable(c.curResult, valType) {
		c.diags.Add(typeMismatchError(c.curResult, valType, c.location(s.Value.ExprPos(), 1)))
		return
	}
	c.materialize(s.Value, c.curResult)
}

// Expressions

func (c *Checker) setType(e Expr, t *Type) *Type {
	c.types[e] = t
	return t
}

func (c *Checker) checkExpr(e Expr) *Type {
	switch x := e.(type) {
	case *BadExpr:
		return c.setType(e, typInvalid)
	case *IntLit, *FloatLit, *BoolLit, *StringLit:
		ev := c.newConstEvaluator()
		v := ev.eval(e)
		c.constVals[e] = v
		return c.setType(e, v.typ())
	case *Ident:
		return c.checkIdent(x)
	case *SelectorExpr:
		return c.checkSelector(x)
	case *CallExpr:
		return c.checkCall(x)
	case *UnaryExpr:
		return c.checkUnary(x)
	case *BinaryExpr:
		return c.checkBinary(x)
	default:
		return c.setType(e, typInvalid)
	}
}

func (c *Checker) checkIdent(x *Ident) *Type {
	if v := c.lookup(x.Name); v != nil {
		v.used = true
		return c.setType(x, v.typ)
	}
	if _, ok := c.consts[x.Name]; ok {
		val := c.resolveConst(x.Name)
		c.constVals[x] = val
		return c.setType(x, val.typ())
	}
	if _, ok := c.funcs[x.Name]; ok {
		c.errorAt(x.Pos, len(x.Name),
			"function '%s' is not a value; functions can only be called", x.Name)
		return c.setType(x, typInvalid)
	}
	c.diags.Add(withFile(undefinedNameError(x.Name, SourceLocation{
		Line: x.Pos.Line, Col: x.Pos.Col, Length: len(x.Name),
	}, closestName(x.Name, c.nameCandidates(false))), c.unit.Path))
	return c.setType(x, typInvalid)
}

// nameCandidates lists what a misspelled identifier might have meant:
// names in scope, unit constants, and in call position the unit's
// functions and the print builtins.
func (c *Checker) nameCandidates(callPos bool) []string {
	var names []string
	for _, scope := range c.scopes {
		for name := range scope {
			names = append(names, name)
		}
	}
	for name := range c.consts {
		names = append(names, name)
	}
	if callPos {
		for name := range c.funcs {
			names = append(names, name)
		}
		names = append(names, "print", "println")
	}
	return names
}

func (c *Checker) checkSelector(x *SelectorExpr) *Type {
	iface, ok := c.imports[x.Unit]
	if !ok {
		c.diags.Add(&Diagnostic{
			Level:    LevelError,
			Category: CategoryType,
			Loc:      c.location(x.UnitPos, len(x.Unit)),
			Message:  fmt.Sprintf("unit '%s' is not imported here", x.Unit),
			Help:     fmt.Sprintf("add 'use %s' after the unit declaration", x.Unit),
		})
		return c.setType(x, typInvalid)
	}
	c.usedImports[x.Unit] = true
	if v, ok := iface.Consts[x.Name]; ok {
		c.constVals[x] = v
		return c.setType(x, v.typ())
	}
	if _, ok := iface.Funcs[x.Name]; ok {
		c.errorAt(x.NamePos, len(x.Name),
			"function '%s.%s' is not a value; functions can only be called", x.Unit, x.Name)
		return c.setType(x, typInvalid)
	}
	c.errorAt(x.NamePos, len(x.Name), "unit '%s' has no public member '%s'", x.Unit, x.Name)
	return c.setType(x, typInvalid)
}

func (c *Checker) checkCall(x *CallExpr) *Type {
	switch fn := x.Fn.(type) {
	case *Ident:
		if fn.Name == "print" || fn.Name == "println" {
			return c.checkBuiltinPrint(x)
		}
		sig, ok := c.sigs[fn.Name]
		if !ok {
			if v := c.lookup(fn.Name); v != nil {
				v.used = true
				c.errorAt(fn.Pos, len(fn.Name), "'%s' is not a function", fn.Name)
			} else if _, isConst := c.consts[fn.Name]; isConst {
				c.errorAt(fn.Pos, len(fn.Name), "constant '%s' cannot be called", fn.Name)
			} else {
				c.diags.Add(withFile(undefinedNameError(fn.Name, SourceLocation{
					Line: fn.Pos.Line, Col: fn.Pos.Col, Length: len(fn.Name),
				}, closestName(fn.Name, c.nameCandidates(true))), c.unit.Path))
			}
			c.checkArgsTypesOnly(x)
			return c.setType(x, typInvalid)
		}
		return c.checkCallArgs(x, fn.Name, sig)
	case *SelectorExpr:
		iface, ok := c.imports[fn.Unit]
		if !ok {
			c.diags.Add(&Diagnostic{
				Level:    LevelError,
				Category: CategoryType,
				Loc:      c.location(fn.UnitPos, len(fn.Unit)),
				Message:  fmt.Sprintf("unit '%s' is not imported here", fn.Unit),
				Help:     fmt.Sprintf("add 'use %s' after the unit declaration", fn.Unit),
			})
			c.checkArgsTypesOnly(x)
			return c.setType(x, typInvalid)
		}
		c.usedImports[fn.Unit] = true
		sig, ok := iface.Funcs[fn.Name]
		if !ok {
			if _, isConst := iface.Consts[fn.Name]; isConst {
				c.errorAt(fn.NamePos, len(fn.Name), "constant '%s.%s' cannot be called", fn.Unit, fn.Name)
			} else {
				c.errorAt(fn.NamePos, len(fn.Name), "unit '%s' has no public function '%s'", fn.Unit, fn.Name)
			}
			c.checkArgsTypesOnly(x)
			return c.setType(x, typInvalid)
		}
		return c.checkCallArgs(x, fn.Unit+"."+fn.Name, sig)
	default:
		c.errorAt(x.Fn.ExprPos(), 1, "expression is not callable")
		c.checkArgsTypesOnly(x)
		return c.setType(x, typInvalid)
	}
}

func (c *Checker) checkArgsTypesOnly(x *CallExpr) {
	for _, a := range x.Args {
		c.checkExpr(a)
	}
}

func (c *Checker) checkCallArgs(x *CallExpr, name string, sig *FuncSig) *Type {
	if len(x.Args) != len(sig.Params) {
		c.errorAt(x.Lparen, 1,
			"wrong number of arguments to '%s': expected %d, found %d", name, len(sig.Params), len(x.Args))
		c.checkArgsTypesOnly(x)
		return c.setType(x, sig.Result)
	}
	for i, a := range x.Args {
		at := c.checkExpr(a)
		pt := sig.Params[i]
		if !assignable(pt, at) {
			c.diags.Add(typeMismatchError(pt, at, c.location(a.ExprPos(), 1)))
			continue
		}
		c.materialize(a, pt)
	}
	return c.setType(x, sig.Result)
}

// checkBuiltinPrint types a print or println call: any mix of int,
// float, bool, and string arguments.
func (c *Checker) checkBuiltinPrint(x *CallExpr) *Type {
	for _, a := range x.Args {
		at := c.checkExpr(a)
		switch at.Kind {
		case TypeInvalid, TypeInt, TypeFloat, TypeBool, TypeString,
			TypeUntypedInt, TypeUntypedFloat, TypeUntypedBool:
			c.materialize(a, at.Default())
		default:
			c.errorAt(a.ExprPos(), 1, "cannot print a value of type %s", at)
		}
	}
	return c.setType(x, typVoid)
}

func (c *Checker) checkUnary(x *UnaryExpr) *Type {
	xt := c.checkExpr(x.X)
	var result *Type
	switch x.Op {
	case TOKEN_MINUS:
		if !xt.IsNumeric() && !xt.IsInvalid() {
			c.errorAt(x.Pos, 1, "operator '-' requires a numeric operand, found %s", xt)
			return c.setType(x, typInvalid)
		}
		result = xt
	case TOKEN_NOT:
		if !xt.IsBoolean() && !xt.IsInvalid() {
			c.errorAt(x.Pos, 1, "operator '!' requires a bool operand, found %s", xt)
			return c.setType(x, typInvalid)
		}
		result = xt
	default:
		result = typInvalid
	}
	c.foldIfConst(x, x.X, nil)
	if v, ok := c.constVals[x]; ok {
		result = v.typ()
	}
	return c.setType(x, result)
}

func (c *Checker) checkBinary(x *BinaryExpr) *Type {
	lt := c.checkExpr(x.X)
	rt := c.checkExpr(x.Y)

	if lt.IsInvalid() || rt.IsInvalid() {
		return c.setType(x, typInvalid)
	}

	opText := opLexemes[x.Op]
	operand, match := sameType(lt, rt)
	if !match {
		c.errorAt(x.OpPos, len(opText),
			"mismatched operand types for '%s': %s and %s", opText, lt, rt)
		return c.setType(x, typInvalid)
	}

	var result *Type
	switch x.Op {
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH:
		if !operand.IsNumeric() {
			c.errorAt(x.OpPos, len(opText),
				"operator '%s' requires numeric operands, found %s", opText, operand)
			return c.setType(x, typInvalid)
		}
		result = operand
	case TOKEN_PERCENT:
		if operand.Kind != TypeInt && operand.Kind != TypeUntypedInt {
			c.errorAt(x.OpPos, len(opText),
				"operator '%%' requires integer operands, found %s", operand)
			return c.setType(x, typInvalid)
		}
		result = operand
	case TOKEN_EQ, TOKEN_NE:
		if operand.Kind == TypeString {
			c.errorAt(x.OpPos, len(opText), "strings do not support comparison operators")
			return c.setType(x, typInvalid)
		}
		result = typBool
		if operand.IsUntyped() {
			result = typUntypedBool
		}
	case TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		if !operand.IsNumeric() {
			c.errorAt(x.OpPos, len(opText),
				"operator '%s' requires numeric operands, found %s", opText, operand)
			return c.setType(x, typInvalid)
		}
		result = typBool
		if operand.IsUntyped() {
			result = typUntypedBool
		}
	case TOKEN_ANDAND, TOKEN_OROR:
		if !operand.IsBoolean() {
			c.errorAt(x.OpPos, len(opText),
				"operator '%s' requires bool operands, found %s", opText, operand)
			return c.setType(x, typInvalid)
		}
		result = operand
	default:
		result = typInvalid
	}

	// operands must settle on one concrete type before lowering; an
	// untyped side adapts to the typed side here
	if !operand.IsUntyped() && !operand.IsInvalid() {
		c.materialize(x.X, operand)
		c.materialize(x.Y, operand)
	}

	c.foldIfConst(x, x.X, x.Y)
	if v, ok := c.constVals[x]; ok {
		result = v.typ()
		if v.isInvalid() {
			result = typInvalid
		}
	}
	return c.setType(x, result)
}

// foldIfConst folds a unary or binary node when every operand already
// folded. Fold-time diagnostics (constant division by zero) surface
// here.
func (c *Checker) foldIfConst(parent Expr, lhs, rhs Expr) {
	if _, ok := c.constVals[lhs]; !ok {
		return
	}
	if rhs != nil {
		if _, ok := c.constVals[rhs]; !ok {
			return
		}
	}
	ev := c.newConstEvaluator()
	saved := ev.resolve
	ev.resolve = func(e Expr) (constValue, bool) {
		if v, ok := c.constVals[e]; ok {
			return v, true
		}
		return saved(e)
	}
	c.constVals[parent] = ev.eval(parent)
}

// materialize fixes an expression's final type at a use site. Untyped
// constants convert here, and int materialization checks the int64
// range.
func (c *Checker) materialize(e Expr, target *Type) {
	t, ok := c.types[e]
	if !ok || target.IsInvalid() || t.IsInvalid() {
		return
	}
	if !t.IsUntyped() {
		return
	}
	if v, isConst := c.constVals[e]; isConst && target.Kind == TypeInt {
		if _, fits := v.asInt64(); !fits {
			c.errorAt(e.ExprPos(), 1, "constant %s overflows int", v.render())
			c.types[e] = typInvalid
			return
		}
	}
	c.types[e] = target
}

// buildInterface extracts the exported surface for dependents
func (c *Checker) buildInterface() *UnitInterface {
	iface := &UnitInterface{
		Name:   c.unit.Name,
		Funcs:  map[string]*FuncSig{},
		Consts: map[string]constValue{},
	}
	for name, fn := range c.funcs {
		if fn.Pub {
			iface.Funcs[name] = c.sigs[name]
		}
	}
	for name, entry := range c.consts {
		if entry.decl.Pub {
			iface.Consts[name] = entry.value
		}
	}
	return iface
}

// blockTerminates implements the terminating-statement rule: a block
// terminates when its final statement does. Loops never count; an
// unreachable trailing 'return' after 'while true' is the price of
// keeping the rule simple.
func blockTerminates(block *BlockStmt) bool {
	if block == nil || len(block.Stmts) == 0 {
		return false
	}
	return stmtTerminates(block.Stmts[len(block.Stmts)-1])
}

func stmtTerminates(stmt Stmt) bool {
	switch s := stmt.(type) {
	case *ReturnStmt:
		return true
	case *BlockStmt:
		return blockTerminates(s)
	case *IfStmt:
		if s.Else == nil {
			return false
		}
		return blockTerminates(s.Then) && stmtTerminates(s.Else)
	}
	return false
}

// withFile stamps a collector-bound diagnostic with its source file
func withFile(d *Diagnostic, file string) *Diagnostic {
	d.Loc.File = file
	return d
}

