// optimizer.go - IR optimization passes
//
// Runs on lowered IR before code generation, in release mode only; dev
// builds skip straight to the fast backend. Passes work per function
// and never change observable behavior:
// - Constant folding
// - Algebraic simplification and strength reduction
// - Branch simplification
// - Dead block elimination
// - Dead value elimination

package main

import (
	"math"

	"go.uber.org/zap"
)

func optimizeUnit(u *IRUnit, log *zap.Logger) {
	for _, f := range u.Funcs {
		optimizeFunc(f, log)
	}
}

func optimizeFunc(f *IRFunc, log *zap.Logger) {
	// Pass 1: constant folding (const op const becomes a const)
	folded := foldIRConstants(f)

	// Pass 2: algebraic identities and strength reduction
	// (x*1 -> x, x+0 -> x, x*2^k -> x<<k)
	reduced := reduceStrength(f)

	// folding again catches constants the identities exposed
	folded += foldIRConstants(f)

	// Pass 3: conditional branches on known conditions become jumps
	branches := simplifyBranches(f)

	// Pass 4: drop blocks nothing can reach
	blocks := removeDeadBlocks(f)

	// Pass 5: drop values and stores nothing reads
	values := removeDeadValues(f)

	if folded+reduced+branches+blocks+values > 0 {
		log.Debug("optimized function",
			zap.String("func", f.Sym),
			zap.Int("folded", folded),
			zap.Int("reduced", reduced),
			zap.Int("branches", branches),
			zap.Int("dead_blocks", blocks),
			zap.Int("dead_values", values))
	}
}

// irConst is a known compile-time value during folding
type irConst struct {
	t   IRType
	i64 int64
	f64 float64
}

func constsOf(f *IRFunc) map[ValueID]irConst {
	known := map[ValueID]irConst{}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			switch in.Kind {
			case InstrConstInt:
				known[in.ID] = irConst{t: IRI64, i64: in.I64}
			case InstrConstFloat:
				known[in.ID] = irConst{t: IRF64, f64: in.F64}
			case InstrConstBool:
				known[in.ID] = irConst{t: IRI1, i64: in.I64}
			}
		}
	}
	return known
}

func foldIRConstants(f *IRFunc) int {
	known := constsOf(f)
	changed := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			switch in.Kind {
			case InstrBin:
				lhs, lok := known[in.A]
				rhs, rok := known[in.B]
				if lok && rok && rewriteFoldedBin(in, lhs, rhs) {
					known[in.ID] = irConst{t: in.Type, i64: in.I64, f64: in.F64}
					changed++
				}
			case InstrUn:
				x, ok := known[in.A]
				if ok && rewriteFoldedUn(in, x) {
					known[in.ID] = irConst{t: in.Type, i64: in.I64, f64: in.F64}
					changed++
				}
			}
		}
	}
	return changed
}

// rewriteFoldedBin turns a binary instruction into a constant in place,
// keeping its ValueID so uses stay valid. Division and remainder by a
// zero constant are left for the runtime.
func rewriteFoldedBin(in *Instr, lhs, rhs irConst) bool {
	if lhs.t == IRF64 {
		var r float64
		switch in.Bin {
		case OpAdd:
			r = lhs.f64 + rhs.f64
		case OpSub:
			r = lhs.f64 - rhs.f64
		case OpMul:
			r = lhs.f64 * rhs.f64
		case OpDiv:
			if rhs.f64 == 0 {
				return false
			}
			r = lhs.f64 / rhs.f64
		default:
			return rewriteFoldedCmp(in, compareFloats(in.Bin, lhs.f64, rhs.f64))
		}
		*in = Instr{ID: in.ID, Kind: InstrConstFloat, Type: IRF64, F64: r}
		return true
	}

	var r int64
	switch in.Bin {
	case OpAdd:
		r = lhs.i64 + rhs.i64
	case OpSub:
		r = lhs.i64 - rhs.i64
	case OpMul:
		r = lhs.i64 * rhs.i64
	case OpDiv:
		if rhs.i64 == 0 {
			return false
		}
		r = lhs.i64 / rhs.i64
	case OpRem:
		if rhs.i64 == 0 {
			return false
		}
		r = lhs.i64 % rhs.i64
	case OpShl:
		r = lhs.i64 << uint(rhs.i64)
	default:
		return rewriteFoldedCmp(in, compareInts(in.Bin, lhs.i64, rhs.i64))
	}
	*in = Instr{ID: in.ID, Kind: InstrConstInt, Type: IRI64, I64: r}
	return true
}

func rewriteFoldedCmp(in *Instr, v bool) bool {
	n := int64(0)
	if v {
		n = 1
	}
	*in = Instr{ID: in.ID, Kind: InstrConstBool, Type: IRI1, I64: n}
	return true
}

func compareInts(op BinOp, a, b int64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	default:
		return a >= b
	}
}

func compareFloats(op BinOp, a, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	default:
		return a >= b
	}
}

func rewriteFoldedUn(in *Instr, x irConst) bool {
	switch in.Un {
	case OpNeg:
		if x.t == IRF64 {
			*in = Instr{ID: in.ID, Kind: InstrConstFloat, Type: IRF64, F64: -x.f64}
		} else {
			*in = Instr{ID: in.ID, Kind: InstrConstInt, Type: IRI64, I64: -x.i64}
		}
	case OpNot:
		*in = Instr{ID: in.ID, Kind: InstrConstBool, Type: IRI1, I64: 1 - x.i64}
	}
	return true
}

// reduceStrength applies algebraic identities. Identities that make an
// instruction redundant forward its operand to every use; the dead
// instruction itself is left for pass 5.
func reduceStrength(f *IRFunc) int {
	known := constsOf(f)
	changed := 0
	for _, b := range f.Blocks {
		// the shift rewrite inserts a constant mid-block, so index
		// rather than range to keep visiting the shifted tail
		for i := 0; i < len(b.Instrs); i++ {
			in := b.Instrs[i]
			if in.Kind != InstrBin || in.Type != IRI64 {
				continue
			}
			lhs, lok := known[in.A]
			rhs, rok := known[in.B]
			switch in.Bin {
			case OpAdd:
				if rok && rhs.i64 == 0 {
					replaceUses(f, in.ID, in.A)
					changed++
				} else if lok && lhs.i64 == 0 {
					replaceUses(f, in.ID, in.B)
					changed++
				}
			case OpSub:
				if rok && rhs.i64 == 0 {
					replaceUses(f, in.ID, in.A)
					changed++
				}
			case OpMul:
				switch {
				case rok && rhs.i64 == 1:
					replaceUses(f, in.ID, in.A)
					changed++
				case lok && lhs.i64 == 1:
					replaceUses(f, in.ID, in.B)
					changed++
				case rok && rhs.i64 == 0, lok && lhs.i64 == 0:
					*in = Instr{ID: in.ID, Kind: InstrConstInt, Type: IRI64}
					changed++
				case rok && isPowerOfTwo(rhs.i64):
					in.Bin = OpShl
					in.B = f.EmitConstInt(b, int64(math.Log2(float64(rhs.i64))))
					moveBefore(b, in)
					changed++
				}
			case OpDiv:
				if rok && rhs.i64 == 1 {
					replaceUses(f, in.ID, in.A)
					changed++
				}
			}
		}
	}
	return changed
}

func isPowerOfTwo(n int64) bool {
	return n > 1 && n&(n-1) == 0
}

// moveBefore fixes ordering after emitting a helper constant for in:
// EmitConstInt appended it at the block's end, so shift it up to sit
// just before in, keeping definitions ahead of uses.
func moveBefore(b *Block, in *Instr) {
	last := len(b.Instrs) - 1
	c := b.Instrs[last]
	for i, cur := range b.Instrs[:last] {
		if cur == in {
			copy(b.Instrs[i+1:], b.Instrs[i:last])
			b.Instrs[i] = c
			return
		}
	}
}

// replaceUses rewrites every operand referencing old to new
func replaceUses(f *IRFunc, old, new ValueID) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.A == old {
				in.A = new
			}
			if in.B == old {
				in.B = new
			}
			for i, a := range in.Args {
				if a == old {
					in.Args[i] = new
				}
			}
		}
		if b.Term != nil {
			if b.Term.Cond == old {
				b.Term.Cond = new
			}
			if b.Term.HasValue && b.Term.Value == old {
				b.Term.Value = new
			}
		}
	}
}

// simplifyBranches rewrites conditional branches whose condition is a
// known constant into unconditional jumps.
func simplifyBranches(f *IRFunc) int {
	known := constsOf(f)
	changed := 0
	for _, b := range f.Blocks {
		if b.Term == nil || b.Term.Kind != TermCondBr {
			continue
		}
		c, ok := known[b.Term.Cond]
		if !ok {
			continue
		}
		target := b.Term.Else
		if c.i64 != 0 {
			target = b.Term.Then
		}
		b.Term = &Terminator{Kind: TermBr, Then: target}
		changed++
	}
	return changed
}

// removeDeadBlocks drops blocks unreachable from the entry block and
// renumbers the survivors; terminator targets follow the renumbering.
func removeDeadBlocks(f *IRFunc) int {
	reachable := make([]bool, len(f.Blocks))
	stack := []BlockID{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		t := f.Blocks[id].Term
		if t == nil {
			continue
		}
		switch t.Kind {
		case TermBr:
			stack = append(stack, t.Then)
		case TermCondBr:
			stack = append(stack, t.Then, t.Else)
		}
	}

	removed := 0
	remap := make([]BlockID, len(f.Blocks))
	kept := f.Blocks[:0]
	for i, b := range f.Blocks {
		if !reachable[i] {
			removed++
			continue
		}
		remap[i] = BlockID(len(kept))
		b.ID = BlockID(len(kept))
		kept = append(kept, b)
	}
	if removed == 0 {
		return 0
	}
	f.Blocks = kept
	for _, b := range f.Blocks {
		if b.Term == nil {
			continue
		}
		switch b.Term.Kind {
		case TermBr:
			b.Term.Then = remap[b.Term.Then]
		case TermCondBr:
			b.Term.Then = remap[b.Term.Then]
			b.Term.Else = remap[b.Term.Else]
		}
	}
	return removed
}

// removeDeadValues drops side-effect-free instructions whose results
// are never read. A store is dead when its slot is never loaded; the
// language has no address-of, so slots cannot escape. Runs to a
// fixpoint because removing a store can orphan its operands.
func removeDeadValues(f *IRFunc) int {
	removed := 0
	for {
		uses := map[ValueID]int{}
		loads := map[ValueID]int{}
		for _, b := range f.Blocks {
			for _, in := range b.Instrs {
				if in.A != NoValue {
					uses[in.A]++
				}
				if in.B != NoValue {
					uses[in.B]++
				}
				for _, a := range in.Args {
					uses[a]++
				}
				if in.Kind == InstrLoad {
					loads[in.A]++
				}
			}
			if b.Term != nil {
				if b.Term.Cond != NoValue {
					uses[b.Term.Cond]++
				}
				if b.Term.HasValue {
					uses[b.Term.Value]++
				}
			}
		}

		pass := 0
		for _, b := range f.Blocks {
			kept := b.Instrs[:0]
			for _, in := range b.Instrs {
				if deadInstr(in, uses, loads) {
					pass++
					continue
				}
				kept = append(kept, in)
			}
			b.Instrs = kept
		}
		if pass == 0 {
			return removed
		}
		removed += pass
	}
}

func deadInstr(in *Instr, uses, loads map[ValueID]int) bool {
	switch in.Kind {
	case InstrCall:
		return false
	case InstrStore:
		return loads[in.A] == 0
	default:
		return uses[in.ID] == 0
	}
}
