// lower.go - Lowering checked units to the mid-level IR
//
// Runs only on units the checker passed clean. Locals become alloca
// slots; control flow becomes explicit blocks; short-circuit operators
// and printed bools lower through small diamonds with a result slot.
// Nothing here depends on backend or build mode.

package main

import "fmt"

// lowerUnit translates one checked unit into IR
func lowerUnit(cu *CheckedUnit) *IRUnit {
	u := &IRUnit{Name: cu.File.Name}
	for _, decl := range cu.File.Decls {
		fn, ok := decl.(*FnDecl)
		if !ok {
			continue // constants folded away during checking
		}
		u.Funcs = append(u.Funcs, lowerFunc(cu, fn))
	}
	return u
}

type loopFrame struct {
	breakTo    BlockID
	continueTo BlockID
}

type lowerer struct {
	cu    *CheckedUnit
	f     *IRFunc
	blk   *Block
	vars  []map[string]ValueID
	loops []loopFrame
}

func lowerFunc(cu *CheckedUnit, fn *FnDecl) *IRFunc {
	sig := cu.Sigs[fn.Name]
	params := make([]IRType, len(sig.Params))
	for i, pt := range sig.Params {
		params[i] = irTypeOf(pt)
	}
	f := NewIRFunc(
		mangle(cu.File.Name, fn.Name),
		cu.File.Name+"."+fn.Name,
		params,
		irTypeOf(sig.Result),
	)

	lo := &lowerer{cu: cu, f: f, blk: f.Entry()}
	lo.enterScope()

	// parameters move into slots so assignment-free reads and the
	// backends' uniform load/store model line up
	for i, p := range fn.Params {
		slot := f.EmitAlloca(lo.blk, params[i])
		f.EmitStore(lo.blk, slot, f.ParamValue(i))
		lo.declare(p.Name, slot)
	}

	lo.lowerBlock(fn.Body)
	lo.leaveScope()

	// seal any fall-through or dead blocks
	for _, b := range f.Blocks {
		if b.Term == nil {
			if f.Result == IRVoid {
				b.TermRet(NoValue, false)
			} else {
				// the checker proved every live path returns
				b.TermUnreachable()
			}
		}
	}
	return f
}

func (lo *lowerer) enterScope() {
	lo.vars = append(lo.vars, map[string]ValueID{})
}

func (lo *lowerer) leaveScope() {
	lo.vars = lo.vars[:len(lo.vars)-1]
}

func (lo *lowerer) declare(name string, slot ValueID) {
	lo.vars[len(lo.vars)-1][name] = slot
}

func (lo *lowerer) slotOf(name string) ValueID {
	for i := len(lo.vars) - 1; i >= 0; i-- {
		if slot, ok := lo.vars[i][name]; ok {
			return slot
		}
	}
	panic(fmt.Sprintf("lowering: no slot for '%s'", name))
}

func (lo *lowerer) lowerBlock(block *BlockStmt) {
	lo.enterScope()
	for _, stmt := range block.Stmts {
		lo.lowerStmt(stmt)
	}
	lo.leaveScope()
}

func (lo *lowerer) lowerStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *BindStmt:
		value := lo.lowerExpr(s.Value)
		slot := lo.f.EmitAlloca(lo.blk, lo.irType(s.Value))
		lo.f.EmitStore(lo.blk, slot, value)
		lo.declare(s.Name, slot)
	case *AssignStmt:
		value := lo.lowerExpr(s.Value)
		lo.f.EmitStore(lo.blk, lo.slotOf(s.Name), value)
	case *IfStmt:
		lo.lowerIf(s)
	case *WhileStmt:
		lo.lowerWhile(s)
	case *ReturnStmt:
		if s.Value != nil {
			value := lo.lowerExpr(s.Value)
			lo.blk.TermRet(value, true)
		} else {
			lo.blk.TermRet(NoValue, false)
		}
		lo.blk = lo.f.NewBlock("dead")
	case *BreakStmt:
		frame := lo.loops[len(lo.loops)-1]
		lo.blk.TermBr(frame.breakTo)
		lo.blk = lo.f.NewBlock("dead")
	case *ContinueStmt:
		frame := lo.loops[len(lo.loops)-1]
		lo.blk.TermBr(frame.continueTo)
		lo.blk = lo.f.NewBlock("dead")
	case *ExprStmt:
		lo.lowerExpr(s.X)
	case *BlockStmt:
		lo.lowerBlock(s)
	}
}

func (lo *lowerer) lowerIf(s *IfStmt) {
	cond := lo.lowerExpr(s.Cond)

	thenB := lo.f.NewBlock("if.then")
	var elseB *Block
	if s.Else != nil {
		elseB = lo.f.NewBlock("if.else")
	}
	joinB := lo.f.NewBlock("if.join")

	if elseB != nil {
		lo.blk.TermCondBr(cond, thenB.ID, elseB.ID)
	} else {
		lo.blk.TermCondBr(cond, thenB.ID, joinB.ID)
	}

	lo.blk = thenB
	lo.lowerBlock(s.Then)
	if !lo.blk.Terminated() {
		lo.blk.TermBr(joinB.ID)
	}

	if elseB != nil {
		lo.blk = elseB
		switch e := s.Else.(type) {
		case *BlockStmt:
			lo.lowerBlock(e)
		case *IfStmt:
			lo.lowerIf(e)
		}
		if !lo.blk.Terminated() {
			lo.blk.TermBr(joinB.ID)
		}
	}

	lo.blk = joinB
}

func (lo *lowerer) lowerWhile(s *WhileStmt) {
	headB := lo.f.NewBlock("while.head")
	bodyB := lo.f.NewBlock("while.body")
	exitB := lo.f.NewBlock("while.exit")

	lo.blk.TermBr(headB.ID)

	lo.blk = headB
	cond := lo.lowerExpr(s.Cond)
	lo.blk.TermCondBr(cond, bodyB.ID, exitB.ID)

	lo.loops = append(lo.loops, loopFrame{breakTo: exitB.ID, continueTo: headB.ID})
	lo.blk = bodyB
	lo.lowerBlock(s.Body)
	if !lo.blk.Terminated() {
		lo.blk.TermBr(headB.ID)
	}
	lo.loops = lo.loops[:len(lo.loops)-1]

	lo.blk = exitB
}

// irType looks up an expression's final checked type
func (lo *lowerer) irType(e Expr) IRType {
	return irTypeOf(lo.cu.Types[e])
}

func (lo *lowerer) lowerExpr(e Expr) ValueID {
	// anything the checker folded emits as a single constant
	if v, ok := lo.cu.Consts[e]; ok && !v.isInvalid() {
		return lo.emitConst(v, lo.cu.Types[e])
	}

	switch x := e.(type) {
	case *Ident:
		return lo.f.EmitLoad(lo.blk, lo.slotOf(x.Name))
	case *UnaryExpr:
		v := lo.lowerExpr(x.X)
		if x.Op == TOKEN_NOT {
			return lo.f.EmitUn(lo.blk, OpNot, v)
		}
		return lo.f.EmitUn(lo.blk, OpNeg, v)
	case *BinaryExpr:
		if x.Op == TOKEN_ANDAND || x.Op == TOKEN_OROR {
			return lo.lowerShortCircuit(x)
		}
		lhs := lo.lowerExpr(x.X)
		rhs := lo.lowerExpr(x.Y)
		return lo.f.EmitBin(lo.blk, binOpOf(x.Op), lhs, rhs)
	case *CallExpr:
		return lo.lowerCall(x)
	}
	panic(fmt.Sprintf("lowering: unexpected expression %T", e))
}

func (lo *lowerer) emitConst(v constValue, t *Type) ValueID {
	switch t.Kind {
	case TypeInt:
		n, _ := v.asInt64()
		return lo.f.EmitConstInt(lo.blk, n)
	case TypeFloat:
		fv, _ := v.asFloat64()
		return lo.f.EmitConstFloat(lo.blk, fv)
	case TypeBool:
		return lo.f.EmitConstBool(lo.blk, v.b)
	case TypeString:
		return lo.f.EmitConstStr(lo.blk, v.s)
	}
	panic(fmt.Sprintf("lowering: constant of type %s", t))
}

func binOpOf(op TokenType) BinOp {
	switch op {
	case TOKEN_PLUS:
		return OpAdd
	case TOKEN_MINUS:
		return OpSub
	case TOKEN_STAR:
		return OpMul
	case TOKEN_SLASH:
		return OpDiv
	case TOKEN_PERCENT:
		return OpRem
	case TOKEN_EQ:
		return OpEq
	case TOKEN_NE:
		return OpNe
	case TOKEN_LT:
		return OpLt
	case TOKEN_LE:
		return OpLe
	case TOKEN_GT:
		return OpGt
	default:
		return OpGe
	}
}

// lowerShortCircuit builds the && and || diamonds through a result
// slot: evaluate the left side, then only branch into the right side
// when it can still change the answer.
func (lo *lowerer) lowerShortCircuit(x *BinaryExpr) ValueID {
	slot := lo.f.EmitAlloca(lo.blk, IRI1)
	lhs := lo.lowerExpr(x.X)
	lo.f.EmitStore(lo.blk, slot, lhs)

	var rhsB, endB *Block
	if x.Op == TOKEN_ANDAND {
		rhsB = lo.f.NewBlock("and.rhs")
		endB = lo.f.NewBlock("and.end")
		lo.blk.TermCondBr(lhs, rhsB.ID, endB.ID)
	} else {
		rhsB = lo.f.NewBlock("or.rhs")
		endB = lo.f.NewBlock("or.end")
		lo.blk.TermCondBr(lhs, endB.ID, rhsB.ID)
	}

	lo.blk = rhsB
	rhs := lo.lowerExpr(x.Y)
	lo.f.EmitStore(lo.blk, slot, rhs)
	lo.blk.TermBr(endB.ID)

	lo.blk = endB
	return lo.f.EmitLoad(lo.blk, slot)
}

func (lo *lowerer) lowerCall(x *CallExpr) ValueID {
	switch fn := x.Fn.(type) {
	case *Ident:
		if fn.Name == "print" || fn.Name == "println" {
			return lo.lowerPrint(x, fn.Name == "println")
		}
		return lo.lowerDirectCall(x, lo.cu.File.Name, fn.Name, lo.cu.Sigs[fn.Name])
	case *SelectorExpr:
		sig := lo.importedSig(fn.Unit, fn.Name)
		return lo.lowerDirectCall(x, fn.Unit, fn.Name, sig)
	}
	panic("lowering: call through non-name")
}

func (lo *lowerer) importedSig(unit, name string) *FuncSig {
	// lowering runs with the same interfaces the checker used; the
	// driver rebuilds them from checked dependencies
	iface := lo.cu.ImportIfaces[unit]
	return iface.Funcs[name]
}

func (lo *lowerer) lowerDirectCall(x *CallExpr, unit, name string, sig *FuncSig) ValueID {
	args := make([]ValueID, len(x.Args))
	for i, a := range x.Args {
		args[i] = lo.lowerExpr(a)
	}
	return lo.f.EmitCall(lo.blk, mangle(unit, name), irTypeOf(sig.Result), false, args)
}

// lowerPrint synthesizes the printf format from the argument types.
// Bool arguments print as "true"/"false" through a small select
// diamond; everything else maps straight to a printf verb.
func (lo *lowerer) lowerPrint(x *CallExpr, newline bool) ValueID {
	format := ""
	args := make([]ValueID, 0, len(x.Args)+1)

	for i, a := range x.Args {
		if i > 0 {
			format += " "
		}
		t := lo.cu.Types[a]
		switch t.Kind {
		case TypeInt:
			format += "%ld"
			args = append(args, lo.lowerExpr(a))
		case TypeFloat:
			format += "%g"
			args = append(args, lo.lowerExpr(a))
		case TypeString:
			format += "%s"
			args = append(args, lo.lowerExpr(a))
		case TypeBool:
			format += "%s"
			args = append(args, lo.lowerBoolText(a))
		}
	}
	if newline {
		format += "\n"
	}

	fmtVal := lo.f.EmitConstStr(lo.blk, format)
	callArgs := append([]ValueID{fmtVal}, args...)
	return lo.f.EmitCall(lo.blk, "printf", IRVoid, true, callArgs)
}

// lowerBoolText turns a bool value into the string "true" or "false"
func (lo *lowerer) lowerBoolText(e Expr) ValueID {
	cond := lo.lowerExpr(e)
	slot := lo.f.EmitAlloca(lo.blk, IRStr)

	trueB := lo.f.NewBlock("bool.true")
	falseB := lo.f.NewBlock("bool.false")
	endB := lo.f.NewBlock("bool.end")
	lo.blk.TermCondBr(cond, trueB.ID, falseB.ID)

	lo.blk = trueB
	lo.f.EmitStore(lo.blk, slot, lo.f.EmitConstStr(lo.blk, "true"))
	lo.blk.TermBr(endB.ID)

	lo.blk = falseB
	lo.f.EmitStore(lo.blk, slot, lo.f.EmitConstStr(lo.blk, "false"))
	lo.blk.TermBr(endB.ID)

	lo.blk = endB
	return lo.f.EmitLoad(lo.blk, slot)
}
