// ir.go - The mid-level intermediate representation
//
// One IR serves both backends. Functions are lists of basic blocks;
// every block ends in exactly one terminator. Locals and parameters
// live in alloca slots accessed through load and store; there are no
// phi nodes, recovering SSA is the optimizing backend's business. The
// representation carries nothing target- or mode-specific.

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IRType is the small type universe the backends see
type IRType int

const (
	IRVoid IRType = iota
	IRI64
	IRF64
	IRI1
	IRStr
)

func (t IRType) String() string {
	switch t {
	case IRI64:
		return "i64"
	case IRF64:
		return "f64"
	case IRI1:
		return "i1"
	case IRStr:
		return "str"
	default:
		return "void"
	}
}

// irTypeOf maps a checked semantic type onto the IR universe
func irTypeOf(t *Type) IRType {
	switch t.Kind {
	case TypeInt:
		return IRI64
	case TypeFloat:
		return IRF64
	case TypeBool:
		return IRI1
	case TypeString:
		return IRStr
	default:
		return IRVoid
	}
}

// ValueID numbers values within one function; 0 means no value
type ValueID int

const NoValue ValueID = 0

// BlockID indexes into a function's block list
type BlockID int

// BinOp is a two-operand arithmetic or comparison operation
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpShl // integers only; produced by strength reduction, not source
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binOpNames = [...]string{"add", "sub", "mul", "div", "rem", "shl", "eq", "ne", "lt", "le", "gt", "ge"}

func (op BinOp) String() string { return binOpNames[op] }

// IsCompare reports whether the op yields i1 regardless of operand type
func (op BinOp) IsCompare() bool { return op >= OpEq }

// UnOp is a one-operand operation
type UnOp int

const (
	OpNeg UnOp = iota
	OpNot
)

func (op UnOp) String() string {
	if op == OpNot {
		return "not"
	}
	return "neg"
}

// InstrKind discriminates Instr payloads
type InstrKind int

const (
	InstrConstInt InstrKind = iota
	InstrConstFloat
	InstrConstBool
	InstrConstStr
	InstrAlloca
	InstrLoad
	InstrStore
	InstrBin
	InstrUn
	InstrCall
)

// Instr is one non-terminator instruction.
//
// Operand use by kind: Load reads slot A; Store writes value B to slot
// A; Bin combines A and B; Un consumes A. Alloca's Type is the slot's
// element type. Call results use ID only when Type is not void.
type Instr struct {
	ID   ValueID
	Kind InstrKind
	Type IRType

	A, B ValueID
	Bin  BinOp
	Un   UnOp

	I64 int64
	F64 float64
	Str string

	Callee   string
	Args     []ValueID
	Variadic bool
}

// TermKind discriminates block terminators
type TermKind int

const (
	TermBr TermKind = iota
	TermCondBr
	TermRet
	TermUnreachable
)

// Terminator ends a basic block
type Terminator struct {
	Kind     TermKind
	Cond     ValueID // CondBr
	Then     BlockID // CondBr true target, Br target
	Else     BlockID // CondBr false target
	Value    ValueID // Ret operand
	HasValue bool
}

// Block is a basic block: instructions then exactly one terminator
type Block struct {
	ID     BlockID
	Label  string
	Instrs []*Instr
	Term   *Terminator
}

// IRFunc is one lowered function
type IRFunc struct {
	Sym    string // linker symbol, already mangled
	Name   string // readable unit.name form for IR dumps
	Params []IRType
	Result IRType
	Blocks []*Block

	next  ValueID
	types map[ValueID]IRType
}

// NewIRFunc starts a function; parameter values get the first IDs and
// the entry block exists immediately.
func NewIRFunc(sym, name string, params []IRType, result IRType) *IRFunc {
	f := &IRFunc{
		Sym:    sym,
		Name:   name,
		Params: params,
		Result: result,
		types:  map[ValueID]IRType{},
	}
	for _, pt := range params {
		f.newValue(pt)
	}
	f.NewBlock("entry")
	return f
}

// ParamValue returns the ValueID bound to parameter i
func (f *IRFunc) ParamValue(i int) ValueID {
	return ValueID(i + 1)
}

// TypeOf returns a value's IR type
func (f *IRFunc) TypeOf(v ValueID) IRType {
	return f.types[v]
}

// NumValues reports how many values the function defines
func (f *IRFunc) NumValues() int {
	return int(f.next)
}

func (f *IRFunc) newValue(t IRType) ValueID {
	f.next++
	f.types[f.next] = t
	return f.next
}

// NewBlock appends an empty block and returns it
func (f *IRFunc) NewBlock(label string) *Block {
	b := &Block{ID: BlockID(len(f.Blocks)), Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the function's entry block
func (f *IRFunc) Entry() *Block {
	return f.Blocks[0]
}

// Emit helpers; each appends to the given block and returns the result
// value where one exists.

func (f *IRFunc) EmitConstInt(b *Block, v int64) ValueID {
	id := f.newValue(IRI64)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrConstInt, Type: IRI64, I64: v})
	return id
}

func (f *IRFunc) EmitConstFloat(b *Block, v float64) ValueID {
	id := f.newValue(IRF64)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrConstFloat, Type: IRF64, F64: v})
	return id
}

func (f *IRFunc) EmitConstBool(b *Block, v bool) ValueID {
	id := f.newValue(IRI1)
	n := int64(0)
	if v {
		n = 1
	}
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrConstBool, Type: IRI1, I64: n})
	return id
}

func (f *IRFunc) EmitConstStr(b *Block, s string) ValueID {
	id := f.newValue(IRStr)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrConstStr, Type: IRStr, Str: s})
	return id
}

func (f *IRFunc) EmitAlloca(b *Block, elem IRType) ValueID {
	id := f.newValue(elem)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrAlloca, Type: elem})
	return id
}

func (f *IRFunc) EmitLoad(b *Block, slot ValueID) ValueID {
	elem := f.types[slot]
	id := f.newValue(elem)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrLoad, Type: elem, A: slot})
	return id
}

func (f *IRFunc) EmitStore(b *Block, slot, value ValueID) {
	b.Instrs = append(b.Instrs, &Instr{Kind: InstrStore, Type: IRVoid, A: slot, B: value})
}

func (f *IRFunc) EmitBin(b *Block, op BinOp, lhs, rhs ValueID) ValueID {
	result := f.types[lhs]
	if op.IsCompare() {
		result = IRI1
	}
	id := f.newValue(result)
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrBin, Type: result, Bin: op, A: lhs, B: rhs})
	return id
}

func (f *IRFunc) EmitUn(b *Block, op UnOp, x ValueID) ValueID {
	id := f.newValue(f.types[x])
	b.Instrs = append(b.Instrs, &Instr{ID: id, Kind: InstrUn, Type: f.types[x], Un: op, A: x})
	return id
}

func (f *IRFunc) EmitCall(b *Block, callee string, result IRType, variadic bool, args []ValueID) ValueID {
	instr := &Instr{Kind: InstrCall, Type: result, Callee: callee, Args: args, Variadic: variadic}
	if result != IRVoid {
		instr.ID = f.newValue(result)
	}
	b.Instrs = append(b.Instrs, instr)
	return instr.ID
}

// Terminator helpers; setting a terminator twice is a lowering bug and
// panics as an internal error.

func (b *Block) setTerm(t *Terminator) {
	if b.Term != nil {
		panic(fmt.Sprintf("block %s terminated twice", b.Label))
	}
	b.Term = t
}

func (b *Block) TermBr(target BlockID) {
	b.setTerm(&Terminator{Kind: TermBr, Then: target})
}

func (b *Block) TermCondBr(cond ValueID, then, els BlockID) {
	b.setTerm(&Terminator{Kind: TermCondBr, Cond: cond, Then: then, Else: els})
}

func (b *Block) TermRet(value ValueID, hasValue bool) {
	b.setTerm(&Terminator{Kind: TermRet, Value: value, HasValue: hasValue})
}

func (b *Block) TermUnreachable() {
	b.setTerm(&Terminator{Kind: TermUnreachable})
}

// Terminated reports whether the block already has its terminator
func (b *Block) Terminated() bool {
	return b.Term != nil
}

// IRUnit is the lowered form of one compilation unit
type IRUnit struct {
	Name  string
	Funcs []*IRFunc
}

// Validate checks structural invariants: every block terminated,
// branch targets in range, operands defined before use in block list
// order. Lowering emits structured code, so list order is a sound
// stand-in for dominance here.
func (u *IRUnit) Validate() error {
	for _, f := range u.Funcs {
		if len(f.Blocks) == 0 {
			return fmt.Errorf("%s: function has no blocks", f.Name)
		}
		defined := map[ValueID]bool{NoValue: true}
		for i := range f.Params {
			defined[f.ParamValue(i)] = true
		}
		for _, b := range f.Blocks {
			for _, in := range b.Instrs {
				for _, op := range in.operands() {
					if !defined[op] {
						return fmt.Errorf("%s/%s: %%%d used before definition", f.Name, b.Label, op)
					}
				}
				if in.ID != NoValue {
					defined[in.ID] = true
				}
			}
			if b.Term == nil {
				return fmt.Errorf("%s/%s: block has no terminator", f.Name, b.Label)
			}
			switch b.Term.Kind {
			case TermBr:
				if int(b.Term.Then) >= len(f.Blocks) {
					return fmt.Errorf("%s/%s: branch to missing block b%d", f.Name, b.Label, b.Term.Then)
				}
			case TermCondBr:
				if !defined[b.Term.Cond] {
					return fmt.Errorf("%s/%s: branch condition %%%d used before definition", f.Name, b.Label, b.Term.Cond)
				}
				if int(b.Term.Then) >= len(f.Blocks) || int(b.Term.Else) >= len(f.Blocks) {
					return fmt.Errorf("%s/%s: conditional branch to missing block", f.Name, b.Label)
				}
			case TermRet:
				if b.Term.HasValue && !defined[b.Term.Value] {
					return fmt.Errorf("%s/%s: return value %%%d used before definition", f.Name, b.Label, b.Term.Value)
				}
			}
		}
	}
	return nil
}

// operands lists the values an instruction reads
func (in *Instr) operands() []ValueID {
	switch in.Kind {
	case InstrLoad:
		return []ValueID{in.A}
	case InstrStore:
		return []ValueID{in.A, in.B}
	case InstrBin:
		return []ValueID{in.A, in.B}
	case InstrUn:
		return []ValueID{in.A}
	case InstrCall:
		return in.Args
	}
	return nil
}

// String renders the stable text form used by tests and --emit ir
func (u *IRUnit) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unit %s\n", u.Name)
	funcs := make([]*IRFunc, len(u.Funcs))
	copy(funcs, u.Funcs)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })
	for _, f := range funcs {
		b.WriteString("\n")
		b.WriteString(f.String())
	}
	return b.String()
}

func (f *IRFunc) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s(", f.Name)
	for i, pt := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%%%d: %s", f.ParamValue(i), pt)
	}
	b.WriteString(")")
	if f.Result != IRVoid {
		fmt.Fprintf(&b, " -> %s", f.Result)
	}
	b.WriteString(" {\n")
	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "b%d: ; %s\n", blk.ID, blk.Label)
		for _, in := range blk.Instrs {
			fmt.Fprintf(&b, "  %s\n", in)
		}
		if blk.Term != nil {
			fmt.Fprintf(&b, "  %s\n", blk.Term)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func (in *Instr) String() string {
	switch in.Kind {
	case InstrConstInt:
		return fmt.Sprintf("%%%d = const i64 %d", in.ID, in.I64)
	case InstrConstFloat:
		return fmt.Sprintf("%%%d = const f64 %s", in.ID, strconv.FormatFloat(in.F64, 'g', -1, 64))
	case InstrConstBool:
		v := "false"
		if in.I64 != 0 {
			v = "true"
		}
		return fmt.Sprintf("%%%d = const i1 %s", in.ID, v)
	case InstrConstStr:
		return fmt.Sprintf("%%%d = const str %q", in.ID, in.Str)
	case InstrAlloca:
		return fmt.Sprintf("%%%d = alloca %s", in.ID, in.Type)
	case InstrLoad:
		return fmt.Sprintf("%%%d = load %s %%%d", in.ID, in.Type, in.A)
	case InstrStore:
		return fmt.Sprintf("store %%%d, %%%d", in.A, in.B)
	case InstrBin:
		return fmt.Sprintf("%%%d = %s %s %%%d, %%%d", in.ID, in.Bin, in.Type, in.A, in.B)
	case InstrUn:
		return fmt.Sprintf("%%%d = %s %s %%%d", in.ID, in.Un, in.Type, in.A)
	case InstrCall:
		args := make([]string, len(in.Args))
		for i, a := range in.Args {
			args[i] = fmt.Sprintf("%%%d", a)
		}
		call := fmt.Sprintf("call %s @%s(%s)", in.Type, in.Callee, strings.Join(args, ", "))
		if in.ID != NoValue {
			return fmt.Sprintf("%%%d = %s", in.ID, call)
		}
		return call
	}
	return "<?>"
}

func (t *Terminator) String() string {
	switch t.Kind {
	case TermBr:
		return fmt.Sprintf("br b%d", t.Then)
	case TermCondBr:
		return fmt.Sprintf("condbr %%%d, b%d, b%d", t.Cond, t.Then, t.Else)
	case TermRet:
		if t.HasValue {
			return fmt.Sprintf("ret %%%d", t.Value)
		}
		return "ret"
	default:
		return "unreachable"
	}
}

// mangle builds the linker symbol for a unit function. main.main keeps
// the bare C entry name; everything else is length-prefixed so units
// and names can never collide with each other or with libc.
func mangle(unit, name string) string {
	if unit == "main" && name == "main" {
		return "main"
	}
	return fmt.Sprintf("in_%d%s%d%s", len(unit), unit, len(name), name)
}
