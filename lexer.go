// lexer.go - Lexical scanner for Indent source
//
// Scans a whole unit into a token slice up front; the parser works on
// the slice. Positions are 1-based line:column counted in runes.

package main

import (
	"fmt"
	"unicode"
)

// Lexer scans one source file
type Lexer struct {
	file  string
	src   []rune
	pos   int
	line  int
	col   int
	diags *DiagnosticCollector
}

// NewLexer prepares a scanner over the given source text
func NewLexer(file, text string, diags *DiagnosticCollector) *Lexer {
	return &Lexer{
		file:  file,
		src:   []rune(text),
		line:  1,
		col:   1,
		diags: diags,
	}
}

// Scan tokenizes the entire file. The result always ends with an EOF
// token. Lexical errors are reported to the collector and scanning
// continues, so the parser sees as much of the file as possible.
func (lx *Lexer) Scan() []Token {
	var toks []Token
	for {
		tok := lx.next()
		toks = append(toks, tok)
		if tok.Type == TOKEN_EOF {
			return toks
		}
	}
}

func (lx *Lexer) peek() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *Lexer) peek2() rune {
	if lx.pos+1 >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+1]
}

func (lx *Lexer) advance() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	r := lx.src[lx.pos]
	lx.pos++
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *Lexer) here() Pos {
	return Pos{Line: lx.line, Col: lx.col}
}

func (lx *Lexer) errorAt(pos Pos, length int, format string, args ...any) {
	lx.diags.Add(&Diagnostic{
		Level:    LevelError,
		Category: CategorySyntax,
		Loc:      SourceLocation{File: lx.file, Line: pos.Line, Col: pos.Col, Length: length},
		Message:  fmt.Sprintf(format, args...),
	})
}

func (lx *Lexer) skipSpace() {
	for {
		switch {
		case lx.peek() == ' ' || lx.peek() == '\t' || lx.peek() == '\r' || lx.peek() == '\n':
			lx.advance()
		case lx.peek() == '/' && lx.peek2() == '/':
			for lx.peek() != '\n' && lx.peek() != 0 {
				lx.advance()
			}
		default:
			return
		}
	}
}

func (lx *Lexer) next() Token {
	lx.skipSpace()

	start := lx.here()
	r := lx.peek()

	switch {
	case r == 0:
		return Token{Type: TOKEN_EOF, Pos: start}
	case isIdentStart(r):
		return lx.scanIdent(start)
	case unicode.IsDigit(r):
		return lx.scanNumber(start)
	case r == '"':
		return lx.scanString(start)
	}

	lx.advance()
	two := string(r) + string(lx.peek())
	switch two {
	case "==":
		lx.advance()
		return Token{Type: TOKEN_EQ, Lexeme: two, Pos: start}
	case "!=":
		lx.advance()
		return Token{Type: TOKEN_NE, Lexeme: two, Pos: start}
	case "<=":
		lx.advance()
		return Token{Type: TOKEN_LE, Lexeme: two, Pos: start}
	case ">=":
		lx.advance()
		return Token{Type: TOKEN_GE, Lexeme: two, Pos: start}
	case "&&":
		lx.advance()
		return Token{Type: TOKEN_ANDAND, Lexeme: two, Pos: start}
	case "||":
		lx.advance()
		return Token{Type: TOKEN_OROR, Lexeme: two, Pos: start}
	case "->":
		lx.advance()
		return Token{Type: TOKEN_ARROW, Lexeme: two, Pos: start}
	}

	single := map[rune]TokenType{
		'(': TOKEN_LPAREN,
		')': TOKEN_RPAREN,
		'{': TOKEN_LBRACE,
		'}': TOKEN_RBRACE,
		',': TOKEN_COMMA,
		':': TOKEN_COLON,
		'.': TOKEN_DOT,
		'=': TOKEN_ASSIGN,
		'+': TOKEN_PLUS,
		'-': TOKEN_MINUS,
		'*': TOKEN_STAR,
		'/': TOKEN_SLASH,
		'%': TOKEN_PERCENT,
		'<': TOKEN_LT,
		'>': TOKEN_GT,
		'!': TOKEN_NOT,
	}
	if tt, ok := single[r]; ok {
		return Token{Type: tt, Lexeme: string(r), Pos: start}
	}

	lx.errorAt(start, 1, "unexpected character %q", string(r))
	return Token{Type: TOKEN_ILLEGAL, Lexeme: string(r), Pos: start}
}

func (lx *Lexer) scanIdent(start Pos) Token {
	var name []rune
	for isIdentStart(lx.peek()) || unicode.IsDigit(lx.peek()) {
		name = append(name, lx.advance())
	}
	text := string(name)
	return Token{Type: lookupIdent(text), Lexeme: text, Pos: start}
}

func (lx *Lexer) scanNumber(start Pos) Token {
	var text []rune
	for unicode.IsDigit(lx.peek()) {
		text = append(text, lx.advance())
	}
	tt := TOKEN_INT
	if lx.peek() == '.' && unicode.IsDigit(lx.peek2()) {
		tt = TOKEN_FLOAT
		text = append(text, lx.advance())
		for unicode.IsDigit(lx.peek()) {
			text = append(text, lx.advance())
		}
	}
	return Token{Type: tt, Lexeme: string(text), Pos: start}
}

// scanString scans a double-quoted literal. The opening quote has not
// been consumed yet. The returned lexeme holds the decoded value, not
// the raw source spelling.
func (lx *Lexer) scanString(start Pos) Token {
	lx.advance()
	var val []rune
	for {
		r := lx.peek()
		if r == 0 || r == '\n' {
			lx.errorAt(start, lx.offsetFrom(start), "unterminated string literal")
			return Token{Type: TOKEN_ILLEGAL, Lexeme: string(val), Pos: start}
		}
		lx.advance()
		if r == '"' {
			return Token{Type: TOKEN_STRING, Lexeme: string(val), Pos: start}
		}
		if r == '\\' {
			esc := lx.advance()
			switch esc {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case 'r':
				val = append(val, '\r')
			case '0':
				val = append(val, 0)
			case '\\':
				val = append(val, '\\')
			case '"':
				val = append(val, '"')
			default:
				lx.errorAt(start, 2, "unknown escape sequence '\\%s' in string literal", string(esc))
			}
			continue
		}
		val = append(val, r)
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// offsetFrom measures how many runes were consumed since a start
// position on the same line; keeps the unterminated-string underline
// covering what was scanned.
func (lx *Lexer) offsetFrom(start Pos) int {
	if lx.line != start.Line {
		return 1
	}
	n := lx.col - start.Col
	if n < 1 {
		return 1
	}
	return n
}
