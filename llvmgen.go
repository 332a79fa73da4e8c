// llvmgen.go - LLVM backend: IR units to textual LLVM modules
//
// Release builds route through LLVM for real optimization; this
// generator only has to produce a faithful module and let clang -O2 do
// the work. The translation is mechanical because the mid-level IR is
// already in basic-block form: slots become allocas, values map one to
// one, and mem2reg cleans up the loads and stores downstream.

package main

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

type llvmBackend struct{}

func (llvmBackend) Name() string      { return "llvm" }
func (llvmBackend) OutputExt() string { return ".ll" }

func (llvmBackend) Generate(u *IRUnit, platform Platform) ([]byte, error) {
	g := &llvmGen{
		module: ir.NewModule(),
		funcs:  map[string]*ir.Func{},
	}
	g.module.SourceFilename = u.Name + sourceExt
	g.module.TargetTriple = platform.Triple()

	// declare every function shell first so intra-unit calls resolve
	for _, f := range u.Funcs {
		g.declareFunc(f)
	}
	for _, f := range u.Funcs {
		if err := g.defineFunc(f); err != nil {
			return nil, err
		}
	}
	return []byte(g.module.String()), nil
}

type llvmGen struct {
	module   *ir.Module
	funcs    map[string]*ir.Func
	strCount int
}

func llvmType(t IRType) types.Type {
	switch t {
	case IRI64:
		return types.I64
	case IRF64:
		return types.Double
	case IRI1:
		return types.I1
	case IRStr:
		return types.NewPointer(types.I8)
	default:
		return types.Void
	}
}

func (g *llvmGen) declareFunc(f *IRFunc) {
	params := make([]*ir.Param, len(f.Params))
	for i, pt := range f.Params {
		params[i] = ir.NewParam("", llvmType(pt))
	}
	ret := llvmType(f.Result)
	if f.Sym == "main" {
		// the C runtime takes main's result as the exit status
		ret = types.I32
	}
	g.funcs[f.Sym] = g.module.NewFunc(f.Sym, ret, params...)
}

// externFunc declares a callee defined in another unit or in libc,
// with the signature reconstructed from the call site.
func (g *llvmGen) externFunc(name string, ret types.Type, args []value.Value, variadic bool) *ir.Func {
	if fn, ok := g.funcs[name]; ok {
		return fn
	}
	var params []*ir.Param
	for _, a := range args {
		params = append(params, ir.NewParam("", a.Type()))
	}
	if name == "printf" {
		// printf(i8*, ...) i32 regardless of this call's arguments
		params = []*ir.Param{ir.NewParam("", types.NewPointer(types.I8))}
		ret = types.I32
	}
	fn := g.module.NewFunc(name, ret, params...)
	fn.Sig.Variadic = variadic
	g.funcs[name] = fn
	return fn
}

func (g *llvmGen) strPtr(bb *ir.Block, s string) value.Value {
	data := constant.NewCharArrayFromString(s + "\x00")
	global := g.module.NewGlobalDef(fmt.Sprintf(".str.%d", g.strCount), data)
	g.strCount++
	global.Immutable = true
	ptr := bb.NewGetElementPtr(global.Type().(*types.PointerType).ElemType, global,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	ptr.InBounds = true
	return ptr
}

func (g *llvmGen) defineFunc(f *IRFunc) error {
	fn := g.funcs[f.Sym]

	blocks := make([]*ir.Block, len(f.Blocks))
	for i, b := range f.Blocks {
		blocks[i] = fn.NewBlock(fmt.Sprintf("b%d.%s", b.ID, b.Label))
	}

	vals := map[ValueID]value.Value{}
	for i := range f.Params {
		vals[f.ParamValue(i)] = fn.Params[i]
	}

	for i, b := range f.Blocks {
		bb := blocks[i]
		for _, in := range b.Instrs {
			if err := g.genInstr(f, bb, in, vals); err != nil {
				return err
			}
		}
		g.genTerm(f, bb, blocks, b.Term, vals)
	}
	return nil
}

func (g *llvmGen) genInstr(f *IRFunc, bb *ir.Block, in *Instr, vals map[ValueID]value.Value) error {
	switch in.Kind {
	case InstrConstInt:
		vals[in.ID] = constant.NewInt(types.I64, in.I64)
	case InstrConstFloat:
		vals[in.ID] = constant.NewFloat(types.Double, in.F64)
	case InstrConstBool:
		vals[in.ID] = constant.NewInt(types.I1, in.I64)
	case InstrConstStr:
		vals[in.ID] = g.strPtr(bb, in.Str)
	case InstrAlloca:
		vals[in.ID] = bb.NewAlloca(llvmType(in.Type))
	case InstrLoad:
		vals[in.ID] = bb.NewLoad(llvmType(in.Type), vals[in.A])
	case InstrStore:
		bb.NewStore(vals[in.B], vals[in.A])
	case InstrBin:
		v, err := genBin(bb, in, f.TypeOf(in.A), vals)
		if err != nil {
			return err
		}
		vals[in.ID] = v
	case InstrUn:
		if in.Type == IRF64 {
			vals[in.ID] = bb.NewFNeg(vals[in.A])
		} else if in.Un == OpNot {
			vals[in.ID] = bb.NewXor(vals[in.A], constant.True)
		} else {
			vals[in.ID] = bb.NewSub(constant.NewInt(types.I64, 0), vals[in.A])
		}
	case InstrCall:
		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = vals[a]
		}
		fn := g.externFunc(in.Callee, llvmType(in.Type), args, in.Variadic)
		call := bb.NewCall(fn, args...)
		if in.ID != NoValue {
			vals[in.ID] = call
		}
	}
	return nil
}

func genBin(bb *ir.Block, in *Instr, operand IRType, vals map[ValueID]value.Value) (value.Value, error) {
	a, b := vals[in.A], vals[in.B]
	if operand == IRF64 {
		switch in.Bin {
		case OpAdd:
			return bb.NewFAdd(a, b), nil
		case OpSub:
			return bb.NewFSub(a, b), nil
		case OpMul:
			return bb.NewFMul(a, b), nil
		case OpDiv:
			return bb.NewFDiv(a, b), nil
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			return bb.NewFCmp(fpred(in.Bin), a, b), nil
		default:
			return nil, fmt.Errorf("float operands for %s", in.Bin)
		}
	}
	switch in.Bin {
	case OpAdd:
		return bb.NewAdd(a, b), nil
	case OpSub:
		return bb.NewSub(a, b), nil
	case OpMul:
		return bb.NewMul(a, b), nil
	case OpDiv:
		return bb.NewSDiv(a, b), nil
	case OpRem:
		return bb.NewSRem(a, b), nil
	case OpShl:
		return bb.NewShl(a, b), nil
	default:
		return bb.NewICmp(ipred(in.Bin), a, b), nil
	}
}

func ipred(op BinOp) enum.IPred {
	switch op {
	case OpEq:
		return enum.IPredEQ
	case OpNe:
		return enum.IPredNE
	case OpLt:
		return enum.IPredSLT
	case OpLe:
		return enum.IPredSLE
	case OpGt:
		return enum.IPredSGT
	default:
		return enum.IPredSGE
	}
}

// fpred picks IEEE semantics: ordered predicates throughout, except ne,
// which must also hold for an unordered pair.
func fpred(op BinOp) enum.FPred {
	switch op {
	case OpEq:
		return enum.FPredOEQ
	case OpNe:
		return enum.FPredUNE
	case OpLt:
		return enum.FPredOLT
	case OpLe:
		return enum.FPredOLE
	case OpGt:
		return enum.FPredOGT
	default:
		return enum.FPredOGE
	}
}

func (g *llvmGen) genTerm(f *IRFunc, bb *ir.Block, blocks []*ir.Block, t *Terminator, vals map[ValueID]value.Value) {
	switch t.Kind {
	case TermBr:
		bb.NewBr(blocks[t.Then])
	case TermCondBr:
		bb.NewCondBr(vals[t.Cond], blocks[t.Then], blocks[t.Else])
	case TermRet:
		if f.Sym == "main" {
			bb.NewRet(constant.NewInt(types.I32, 0))
		} else if t.HasValue {
			bb.NewRet(vals[t.Value])
		} else {
			bb.NewRet(nil)
		}
	case TermUnreachable:
		bb.NewUnreachable()
	}
}
