// fastgen.go - Fast backend: direct x86-64 assembly emission
//
// Dev builds want compile speed, not code quality, so this generator
// does the simplest correct thing: every IR value lives in a stack
// slot, arithmetic runs through rax/rcx and xmm0/xmm1, and nothing is
// kept in registers across instructions. The output is AT&T-syntax
// text for the system assembler; registers follow the SysV ABI.

package main

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

var intArgRegs = [...]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
var floatArgRegs = [...]string{"%xmm0", "%xmm1", "%xmm2", "%xmm3", "%xmm4", "%xmm5", "%xmm6", "%xmm7"}

type fastBackend struct{}

func (fastBackend) Name() string      { return "fast" }
func (fastBackend) OutputExt() string { return ".s" }

func (fastBackend) Generate(u *IRUnit, platform Platform) ([]byte, error) {
	if !fastSupports(platform) {
		return nil, fmt.Errorf("fast backend cannot target %s", platform)
	}
	w := &asmWriter{}
	fmt.Fprintf(&w.text, "\t.file \"%s%s\"\n", u.Name, sourceExt)
	w.text.WriteString("\t.text\n")
	for _, f := range u.Funcs {
		w.emitFunc(f)
	}
	return w.finish(), nil
}

type asmWriter struct {
	text   bytes.Buffer
	rodata bytes.Buffer

	strCount int
	dblCount int
	negLabel string // float negation sign mask, emitted once
}

// finish appends the read-only data section and the GNU-stack note
func (w *asmWriter) finish() []byte {
	out := w.text
	if w.rodata.Len() > 0 {
		out.WriteString("\t.section .rodata\n")
		out.Write(w.rodata.Bytes())
	}
	out.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	return out.Bytes()
}

func (w *asmWriter) op(format string, args ...any) {
	fmt.Fprintf(&w.text, "\t"+format+"\n", args...)
}

func (w *asmWriter) label(name string) {
	fmt.Fprintf(&w.text, "%s:\n", name)
}

// strLabel interns a string literal into .rodata
func (w *asmWriter) strLabel(s string) string {
	label := fmt.Sprintf(".L.str.%d", w.strCount)
	w.strCount++
	fmt.Fprintf(&w.rodata, "%s:\n\t.string \"%s\"\n", label, escapeAsm(s))
	return label
}

// dblLabel interns a float constant as its raw bit pattern
func (w *asmWriter) dblLabel(v float64) string {
	label := fmt.Sprintf(".L.dbl.%d", w.dblCount)
	w.dblCount++
	fmt.Fprintf(&w.rodata, "\t.align 8\n%s:\n\t.quad 0x%016x\n", label, math.Float64bits(v))
	return label
}

// fnegMask returns the xorpd mask that flips a double's sign bit
func (w *asmWriter) fnegMask() string {
	if w.negLabel == "" {
		w.negLabel = ".L.fneg"
		fmt.Fprintf(&w.rodata, "\t.align 16\n%s:\n\t.quad 0x8000000000000000\n\t.quad 0\n", w.negLabel)
	}
	return w.negLabel
}

func escapeAsm(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch c {
		case '\\':
			b.WriteString("\\\\")
		case '"':
			b.WriteString("\\\"")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, "\\%03o", c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// slot returns the rbp-relative stack slot holding value v
func slot(v ValueID) string {
	return fmt.Sprintf("-%d(%%rbp)", 8*int(v))
}

func blockLabel(f *IRFunc, id BlockID) string {
	return fmt.Sprintf(".L%s_%d", f.Sym, id)
}

func (w *asmWriter) emitFunc(f *IRFunc) {
	frame := 8 * f.NumValues()
	if frame%16 != 0 {
		frame += 16 - frame%16
	}

	fmt.Fprintf(&w.text, "\n# %s\n", f.Name)
	w.op(".globl %s", f.Sym)
	w.op(".type %s, @function", f.Sym)
	w.label(f.Sym)
	w.op("pushq %%rbp")
	w.op("movq %%rsp, %%rbp")
	if frame > 0 {
		w.op("subq $%d, %%rsp", frame)
	}

	// incoming arguments spill into their parameter slots
	intIdx, floatIdx := 0, 0
	for i, pt := range f.Params {
		v := f.ParamValue(i)
		if pt == IRF64 {
			w.op("movsd %s, %s", floatArgRegs[floatIdx], slot(v))
			floatIdx++
		} else {
			w.op("movq %s, %s", intArgRegs[intIdx], slot(v))
			intIdx++
		}
	}

	for _, b := range f.Blocks {
		w.label(blockLabel(f, b.ID))
		for _, in := range b.Instrs {
			w.emitInstr(f, in)
		}
		w.emitTerm(f, b.Term)
	}
	fmt.Fprintf(&w.text, "\t.size %s, .-%s\n", f.Sym, f.Sym)
}

func (w *asmWriter) emitInstr(f *IRFunc, in *Instr) {
	switch in.Kind {
	case InstrConstInt, InstrConstBool:
		if in.I64 >= math.MinInt32 && in.I64 <= math.MaxInt32 {
			w.op("movq $%d, %%rax", in.I64)
		} else {
			w.op("movabsq $%d, %%rax", in.I64)
		}
		w.op("movq %%rax, %s", slot(in.ID))
	case InstrConstFloat:
		w.op("movsd %s(%%rip), %%xmm0", w.dblLabel(in.F64))
		w.op("movsd %%xmm0, %s", slot(in.ID))
	case InstrConstStr:
		w.op("leaq %s(%%rip), %%rax", w.strLabel(in.Str))
		w.op("movq %%rax, %s", slot(in.ID))
	case InstrAlloca:
		// the value's own slot is the storage
	case InstrLoad:
		w.op("movq %s, %%rax", slot(in.A))
		w.op("movq %%rax, %s", slot(in.ID))
	case InstrStore:
		w.op("movq %s, %%rax", slot(in.B))
		w.op("movq %%rax, %s", slot(in.A))
	case InstrBin:
		w.emitBin(f, in)
	case InstrUn:
		w.emitUn(in)
	case InstrCall:
		w.emitCall(f, in)
	}
}

func (w *asmWriter) emitBin(f *IRFunc, in *Instr) {
	if f.TypeOf(in.A) == IRF64 {
		w.emitFloatBin(in)
		return
	}
	w.op("movq %s, %%rax", slot(in.A))
	w.op("movq %s, %%rcx", slot(in.B))
	switch in.Bin {
	case OpAdd:
		w.op("addq %%rcx, %%rax")
	case OpSub:
		w.op("subq %%rcx, %%rax")
	case OpMul:
		w.op("imulq %%rcx, %%rax")
	case OpDiv:
		w.op("cqto")
		w.op("idivq %%rcx")
	case OpRem:
		w.op("cqto")
		w.op("idivq %%rcx")
		w.op("movq %%rdx, %%rax")
	case OpShl:
		w.op("shlq %%cl, %%rax")
	default:
		w.op("cmpq %%rcx, %%rax")
		w.op("%s %%al", intSetcc(in.Bin))
		w.op("movzbq %%al, %%rax")
	}
	w.op("movq %%rax, %s", slot(in.ID))
}

func intSetcc(op BinOp) string {
	switch op {
	case OpEq:
		return "sete"
	case OpNe:
		return "setne"
	case OpLt:
		return "setl"
	case OpLe:
		return "setle"
	case OpGt:
		return "setg"
	default:
		return "setge"
	}
}

func (w *asmWriter) emitFloatBin(in *Instr) {
	w.op("movsd %s, %%xmm0", slot(in.A))
	w.op("movsd %s, %%xmm1", slot(in.B))
	switch in.Bin {
	case OpAdd:
		w.op("addsd %%xmm1, %%xmm0")
	case OpSub:
		w.op("subsd %%xmm1, %%xmm0")
	case OpMul:
		w.op("mulsd %%xmm1, %%xmm0")
	case OpDiv:
		w.op("divsd %%xmm1, %%xmm0")
	default:
		w.emitFloatCmp(in)
		return
	}
	w.op("movsd %%xmm0, %s", slot(in.ID))
}

// emitFloatCmp materializes an IEEE compare as 0 or 1. ucomisd sets
// ZF=CF=PF=1 on an unordered pair, so eq and ne need a parity fixup
// and lt/le run with the operands swapped to land unordered on the
// false side of seta/setae.
func (w *asmWriter) emitFloatCmp(in *Instr) {
	switch in.Bin {
	case OpEq:
		w.op("ucomisd %%xmm1, %%xmm0")
		w.op("sete %%al")
		w.op("setnp %%cl")
		w.op("andb %%cl, %%al")
	case OpNe:
		w.op("ucomisd %%xmm1, %%xmm0")
		w.op("setne %%al")
		w.op("setp %%cl")
		w.op("orb %%cl, %%al")
	case OpLt:
		w.op("ucomisd %%xmm0, %%xmm1")
		w.op("seta %%al")
	case OpLe:
		w.op("ucomisd %%xmm0, %%xmm1")
		w.op("setae %%al")
	case OpGt:
		w.op("ucomisd %%xmm1, %%xmm0")
		w.op("seta %%al")
	default:
		w.op("ucomisd %%xmm1, %%xmm0")
		w.op("setae %%al")
	}
	w.op("movzbq %%al, %%rax")
	w.op("movq %%rax, %s", slot(in.ID))
}

func (w *asmWriter) emitUn(in *Instr) {
	if in.Type == IRF64 {
		w.op("movsd %s, %%xmm0", slot(in.A))
		w.op("xorpd %s(%%rip), %%xmm0", w.fnegMask())
		w.op("movsd %%xmm0, %s", slot(in.ID))
		return
	}
	w.op("movq %s, %%rax", slot(in.A))
	if in.Un == OpNot {
		w.op("xorq $1, %%rax")
	} else {
		w.op("negq %%rax")
	}
	w.op("movq %%rax, %s", slot(in.ID))
}

func (w *asmWriter) emitCall(f *IRFunc, in *Instr) {
	// Register args fill first per class; the rest spills to the stack
	// right to left. Slots hold raw bits, so pushq moves doubles too.
	intIdx, floatIdx := 0, 0
	var spill []ValueID
	for _, a := range in.Args {
		if f.TypeOf(a) == IRF64 {
			if floatIdx < len(floatArgRegs) {
				w.op("movsd %s, %s", slot(a), floatArgRegs[floatIdx])
				floatIdx++
			} else {
				spill = append(spill, a)
			}
		} else {
			if intIdx < len(intArgRegs) {
				w.op("movq %s, %s", slot(a), intArgRegs[intIdx])
				intIdx++
			} else {
				spill = append(spill, a)
			}
		}
	}
	drop := 8 * len(spill)
	if len(spill)%2 == 1 {
		// keep rsp 16-aligned at the call
		w.op("subq $8, %%rsp")
		drop += 8
	}
	for i := len(spill) - 1; i >= 0; i-- {
		w.op("pushq %s", slot(spill[i]))
	}
	if in.Variadic {
		// varargs callees learn the vector register count through al
		w.op("movb $%d, %%al", floatIdx)
	}
	w.op("call %s", in.Callee)
	if drop > 0 {
		w.op("addq $%d, %%rsp", drop)
	}
	if in.ID != NoValue {
		if in.Type == IRF64 {
			w.op("movsd %%xmm0, %s", slot(in.ID))
		} else {
			w.op("movq %%rax, %s", slot(in.ID))
		}
	}
}

func (w *asmWriter) emitTerm(f *IRFunc, t *Terminator) {
	switch t.Kind {
	case TermBr:
		w.op("jmp %s", blockLabel(f, t.Then))
	case TermCondBr:
		w.op("movq %s, %%rax", slot(t.Cond))
		w.op("testq %%rax, %%rax")
		w.op("jnz %s", blockLabel(f, t.Then))
		w.op("jmp %s", blockLabel(f, t.Else))
	case TermRet:
		if t.HasValue {
			if f.Result == IRF64 {
				w.op("movsd %s, %%xmm0", slot(t.Value))
			} else {
				w.op("movq %s, %%rax", slot(t.Value))
			}
		} else if f.Sym == "main" {
			// void main still owes the C runtime an exit status
			w.op("xorq %%rax, %%rax")
		}
		w.op("leave")
		w.op("ret")
	case TermUnreachable:
		w.op("ud2")
	}
}
