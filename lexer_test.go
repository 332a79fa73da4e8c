package main

import (
	"strings"
	"testing"
)

func scanSource(t *testing.T, src string) ([]Token, *DiagnosticCollector) {
	t.Helper()
	diags := NewDiagnosticCollector()
	diags.SetSource("test.ind", src)
	return NewLexer("test.ind", src, diags).Scan(), diags
}

// tokenTypes strips the trailing EOF and returns just the kinds
func tokenTypes(toks []Token) []TokenType {
	var out []TokenType
	for _, tok := range toks {
		if tok.Type == TOKEN_EOF {
			break
		}
		out = append(out, tok.Type)
	}
	return out
}

// TestLexerTokenKinds verifies that every operator and keyword scans to
// the right token type.
func TestLexerTokenKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []TokenType
	}{
		{
			name: "unit header",
			src:  "unit main",
			want: []TokenType{TOKEN_UNIT, TOKEN_IDENT},
		},
		{
			name: "fn declaration",
			src:  "pub fn add(a: int, b: int) -> int",
			want: []TokenType{
				TOKEN_PUB, TOKEN_FN, TOKEN_IDENT, TOKEN_LPAREN,
				TOKEN_IDENT, TOKEN_COLON, TOKEN_IDENT, TOKEN_COMMA,
				TOKEN_IDENT, TOKEN_COLON, TOKEN_IDENT, TOKEN_RPAREN,
				TOKEN_ARROW, TOKEN_IDENT,
			},
		},
		{
			name: "comparison operators",
			src:  "== != < <= > >=",
			want: []TokenType{TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE},
		},
		{
			name: "logical operators",
			src:  "&& || !",
			want: []TokenType{TOKEN_ANDAND, TOKEN_OROR, TOKEN_NOT},
		},
		{
			name: "arithmetic",
			src:  "a = b + c - d * e / f % g",
			want: []TokenType{
				TOKEN_IDENT, TOKEN_ASSIGN, TOKEN_IDENT, TOKEN_PLUS, TOKEN_IDENT,
				TOKEN_MINUS, TOKEN_IDENT, TOKEN_STAR, TOKEN_IDENT, TOKEN_SLASH,
				TOKEN_IDENT, TOKEN_PERCENT, TOKEN_IDENT,
			},
		},
		{
			name: "keywords",
			src:  "let var if else while return break continue true false const use",
			want: []TokenType{
				TOKEN_LET, TOKEN_VAR, TOKEN_IF, TOKEN_ELSE, TOKEN_WHILE,
				TOKEN_RETURN, TOKEN_BREAK, TOKEN_CONTINUE, TOKEN_TRUE,
				TOKEN_FALSE, TOKEN_CONST, TOKEN_USE,
			},
		},
		{
			name: "member access",
			src:  "math.pi",
			want: []TokenType{TOKEN_IDENT, TOKEN_DOT, TOKEN_IDENT},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, diags := scanSource(t, tt.src)
			if diags.HasErrors() {
				t.Fatalf("unexpected lexical errors: %v", diags.Diagnostics())
			}
			got := tokenTypes(toks)
			if len(got) != len(tt.want) {
				t.Fatalf("token count = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestLexerNumbers verifies int and float literal scanning, including
// the dot-without-fraction case staying an integer.
func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		src    string
		typ    TokenType
		lexeme string
	}{
		{"42", TOKEN_INT, "42"},
		{"0", TOKEN_INT, "0"},
		{"3.14", TOKEN_FLOAT, "3.14"},
		{"0.5", TOKEN_FLOAT, "0.5"},
		{"123456789012345678", TOKEN_INT, "123456789012345678"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, diags := scanSource(t, tt.src)
			if diags.HasErrors() {
				t.Fatalf("unexpected errors for %q", tt.src)
			}
			if toks[0].Type != tt.typ || toks[0].Lexeme != tt.lexeme {
				t.Errorf("got %s %q, want %s %q", toks[0].Type, toks[0].Lexeme, tt.typ, tt.lexeme)
			}
		})
	}

	t.Run("trailing dot is member access", func(t *testing.T) {
		toks, _ := scanSource(t, "1.x")
		got := tokenTypes(toks)
		want := []TokenType{TOKEN_INT, TOKEN_DOT, TOKEN_IDENT}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("token %d = %s, want %s", i, got[i], want[i])
			}
		}
	})
}

// TestLexerStrings verifies escape decoding and string error reporting
func TestLexerStrings(t *testing.T) {
	t.Run("escapes decode", func(t *testing.T) {
		toks, diags := scanSource(t, `"a\tb\nc\"d\\e"`)
		if diags.HasErrors() {
			t.Fatalf("unexpected errors: %v", diags.Diagnostics())
		}
		want := "a\tb\nc\"d\\e"
		if toks[0].Type != TOKEN_STRING || toks[0].Lexeme != want {
			t.Errorf("got %q, want %q", toks[0].Lexeme, want)
		}
	})

	t.Run("unterminated string", func(t *testing.T) {
		_, diags := scanSource(t, `"never closed`)
		if !diags.HasErrors() {
			t.Fatal("expected an error for an unterminated string")
		}
		if msg := diags.Diagnostics()[0].Message; !strings.Contains(msg, "unterminated") {
			t.Errorf("message = %q, want it to mention unterminated", msg)
		}
	})

	t.Run("newline ends string", func(t *testing.T) {
		_, diags := scanSource(t, "\"broken\nnext")
		if !diags.HasErrors() {
			t.Fatal("expected an error when a newline interrupts a string")
		}
	})

	t.Run("unknown escape", func(t *testing.T) {
		_, diags := scanSource(t, `"bad \q escape"`)
		if !diags.HasErrors() {
			t.Fatal("expected an error for an unknown escape")
		}
	})
}

// TestLexerComments verifies that line comments vanish entirely
func TestLexerComments(t *testing.T) {
	src := "let x = 1 // the rest is ignored == != while\nlet"
	toks, diags := scanSource(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Diagnostics())
	}
	got := tokenTypes(toks)
	want := []TokenType{TOKEN_LET, TOKEN_IDENT, TOKEN_ASSIGN, TOKEN_INT, TOKEN_LET}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %s, want %s", i, got[i], want[i])
		}
	}
}

// TestLexerPositions verifies line and column tracking across lines
func TestLexerPositions(t *testing.T) {
	src := "unit demo\nfn main() {\n}\n"
	toks, _ := scanSource(t, src)

	wantPos := []struct {
		line, col int
	}{
		{1, 1},  // unit
		{1, 6},  // demo
		{2, 1},  // fn
		{2, 4},  // main
		{2, 8},  // (
		{2, 9},  // )
		{2, 11}, // {
		{3, 1},  // }
	}
	for i, want := range wantPos {
		if toks[i].Pos.Line != want.line || toks[i].Pos.Col != want.col {
			t.Errorf("token %d (%s) at %d:%d, want %d:%d",
				i, toks[i].Type, toks[i].Pos.Line, toks[i].Pos.Col, want.line, want.col)
		}
	}
}

// TestLexerIllegalCharacter verifies recovery after an illegal rune
func TestLexerIllegalCharacter(t *testing.T) {
	toks, diags := scanSource(t, "let @ x")
	if !diags.HasErrors() {
		t.Fatal("expected an error for '@'")
	}
	got := tokenTypes(toks)
	want := []TokenType{TOKEN_LET, TOKEN_ILLEGAL, TOKEN_IDENT}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %s, want %s", i, got[i], want[i])
		}
	}
}
