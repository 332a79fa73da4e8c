package main

import (
	"strings"
	"testing"
)

var x86Linux = Platform{Arch: ArchX86_64, OS: OSLinux}

// fastAsm lowers one unit and renders it through the fast backend
func fastAsm(t *testing.T, name, src string) string {
	t.Helper()
	ir := lowerSource(t, name, src)
	out, err := fastBackend{}.Generate(ir, x86Linux)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return string(out)
}

func wantAsm(t *testing.T, asm string, frags ...string) {
	t.Helper()
	for _, frag := range frags {
		if !strings.Contains(asm, frag) {
			t.Errorf("assembly missing %q:\n%s", frag, asm)
		}
	}
}

// TestFastgenEntryFunction verifies prologue, symbol directives, and
// the implicit exit status of main.
func TestFastgenEntryFunction(t *testing.T) {
	asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(1)\n}\n")

	wantAsm(t, asm,
		"\t.file \"main.ind\"",
		"\t.text",
		"\t.globl main",
		"\t.type main, @function",
		"main:",
		"\tpushq %rbp",
		"\tmovq %rsp, %rbp",
		"\tsubq $16, %rsp",
		".Lmain_0:",
		"\tcall printf",
		"\txorq %rax, %rax",
		"\tleave",
		"\tret",
		"\t.size main, .-main",
		"\t.section .note.GNU-stack,\"\",@progbits",
	)
}

// TestFastgenStringData verifies the rodata interning and escaping
func TestFastgenStringData(t *testing.T) {
	asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(\"say \\\"hi\\\"\")\n}\n")

	wantAsm(t, asm,
		"\t.section .rodata",
		".L.str.0:",
		`leaq .L.str.0(%rip), %rax`,
	)
	// the literal re-escapes for the assembler, newline included
	if !strings.Contains(asm, `.string "%s\n"`) && !strings.Contains(asm, `.string "say \"hi\"`) {
		t.Errorf("escaped string literals missing:\n%s", asm)
	}
}

// TestFastgenFloatData verifies doubles intern as raw bit patterns
func TestFastgenFloatData(t *testing.T) {
	asm := fastAsm(t, "main", "unit main\nfn main() {\nlet x = 1.5\nprintln(x)\n}\n")

	wantAsm(t, asm,
		".L.dbl.0:",
		"\t.quad 0x3ff8000000000000",
		"movsd .L.dbl.0(%rip), %xmm0",
	)
}

// TestFastgenVariadicCall verifies the SysV vector count in al and the
// float argument registers.
func TestFastgenVariadicCall(t *testing.T) {
	t.Run("no float args", func(t *testing.T) {
		asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(1, 2)\n}\n")
		wantAsm(t, asm, "\tmovb $0, %al", "\tcall printf")
	})
	t.Run("two float args", func(t *testing.T) {
		asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(1.5, 2.5)\n}\n")
		wantAsm(t, asm,
			"movsd",
			"%xmm0",
			"%xmm1",
			"\tmovb $2, %al",
		)
	})
}

// TestFastgenStackSpill verifies arguments past the register file push
// right to left and the stack realigns around the call.
func TestFastgenStackSpill(t *testing.T) {
	t.Run("even spill", func(t *testing.T) {
		// format plus seven values: eight integer-class args, two spill
		asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(1, 2, 3, 4, 5, 6, 7)\n}\n")
		wantAsm(t, asm, "\tpushq ", "\taddq $16, %rsp")
		if strings.Contains(asm, "subq $8, %rsp") {
			t.Errorf("even spill should not need an alignment pad:\n%s", asm)
		}
	})
	t.Run("odd spill", func(t *testing.T) {
		// nine integer-class args: three spill, pad keeps rsp aligned
		asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(1, 2, 3, 4, 5, 6, 7, 8)\n}\n")
		wantAsm(t, asm, "\tsubq $8, %rsp", "\taddq $32, %rsp")
	})
}

// TestFastgenArithmetic verifies the integer instruction selection
func TestFastgenArithmetic(t *testing.T) {
	src := `unit u
pub fn f(a: int, b: int) -> int {
	let s = a + b
	let d = s - a
	let p = d * b
	let q = p / a
	let r = q % b
	return r
}
`
	asm := fastAsm(t, "u", src)
	wantAsm(t, asm,
		"\taddq %rcx, %rax",
		"\tsubq %rcx, %rax",
		"\timulq %rcx, %rax",
		"\tcqto",
		"\tidivq %rcx",
		"\tmovq %rdx, %rax",
	)
}

// TestFastgenComparisonAndBranch verifies setcc materialization and
// the branch pattern.
func TestFastgenComparisonAndBranch(t *testing.T) {
	src := `unit u
pub fn f(b: int) -> int {
	if b > 0 {
		return 1
	}
	return 0
}
`
	asm := fastAsm(t, "u", src)
	wantAsm(t, asm,
		"\tcmpq %rcx, %rax",
		"\tsetg %al",
		"\tmovzbq %al, %rax",
		"\ttestq %rax, %rax",
		"\tjnz .Lin_1u1f_1",
		"\tjmp .Lin_1u1f_2",
		"\tud2",
	)
}

// TestFastgenFloatOps verifies SSE arithmetic and the sign-flip mask
func TestFastgenFloatOps(t *testing.T) {
	src := `unit u
pub fn f(a: float, b: float) -> float {
	return -(a * b)
}
`
	asm := fastAsm(t, "u", src)
	wantAsm(t, asm,
		"\tmulsd %xmm1, %xmm0",
		"xorpd .L.fneg(%rip), %xmm0",
		".L.fneg:",
		"\t.quad 0x8000000000000000",
	)
}

// TestFastgenFloatCompare verifies the compare sequences treat
// unordered operands per IEEE: NaN makes every ordering false and !=
// true, so eq/ne check the parity flag and lt/le swap operands to
// reuse seta/setae.
func TestFastgenFloatCompare(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		frags []string
	}{
		{"equal", "==", []string{"\tucomisd %xmm1, %xmm0", "\tsete %al", "\tsetnp %cl", "\tandb %cl, %al"}},
		{"not equal", "!=", []string{"\tucomisd %xmm1, %xmm0", "\tsetne %al", "\tsetp %cl", "\torb %cl, %al"}},
		{"less", "<", []string{"\tucomisd %xmm0, %xmm1", "\tseta %al"}},
		{"less or equal", "<=", []string{"\tucomisd %xmm0, %xmm1", "\tsetae %al"}},
		{"greater", ">", []string{"\tucomisd %xmm1, %xmm0", "\tseta %al"}},
		{"greater or equal", ">=", []string{"\tucomisd %xmm1, %xmm0", "\tsetae %al"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "unit u\npub fn f(a: float, b: float) -> bool {\nreturn a " + tt.op + " b\n}\n"
			asm := fastAsm(t, "u", src)
			wantAsm(t, asm, tt.frags...)
			// below-style codes read CF, which ucomisd sets on NaN
			for _, bad := range []string{"\tsetb %al", "\tsetbe %al"} {
				if strings.Contains(asm, bad) {
					t.Errorf("%s is true on unordered operands:\n%s", strings.TrimSpace(bad), asm)
				}
			}
		})
	}
}

// TestFastgenParamSpill verifies incoming arguments land in their
// slots per class.
func TestFastgenParamSpill(t *testing.T) {
	src := "unit u\npub fn f(a: int, x: float, b: int) -> int {\nreturn a + b\n}\n"
	asm := fastAsm(t, "u", src)
	wantAsm(t, asm,
		"\tmovq %rdi, -8(%rbp)",
		"\tmovsd %xmm0, -16(%rbp)",
		"\tmovq %rsi, -24(%rbp)",
	)
}

// TestFastgenMangledSymbols verifies non-entry functions use the
// length-prefixed names.
func TestFastgenMangledSymbols(t *testing.T) {
	src := `unit geo
pub fn area(w: int, h: int) -> int {
	return w * h
}
`
	asm := fastAsm(t, "geo", src)
	wantAsm(t, asm,
		"\t.globl in_3geo4area",
		"in_3geo4area:",
		"# geo.area",
	)
}

// TestFastgenLargeImmediate verifies 64-bit constants take movabsq
func TestFastgenLargeImmediate(t *testing.T) {
	asm := fastAsm(t, "main", "unit main\nfn main() {\nprintln(4611686018427387904)\n}\n")
	wantAsm(t, asm, "\tmovabsq $4611686018427387904, %rax")
}

// TestFastgenRejectsOtherTargets verifies only x86_64 Linux is in scope
func TestFastgenRejectsOtherTargets(t *testing.T) {
	ir := lowerSource(t, "main", "unit main\nfn main() {\n}\n")
	for _, p := range []Platform{
		{Arch: ArchARM64, OS: OSLinux},
		{Arch: ArchX86_64, OS: OSMacOS},
		{Arch: ArchRiscv64, OS: OSLinux},
	} {
		if _, err := (fastBackend{}).Generate(ir, p); err == nil {
			t.Errorf("fast backend accepted %s", p)
		}
	}
}
