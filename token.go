// token.go - Token kinds and source positions for the Indent front-end

package main

import "fmt"

// TokenType identifies a lexical token class
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_ILLEGAL

	// Literals and identifiers
	TOKEN_IDENT
	TOKEN_INT
	TOKEN_FLOAT
	TOKEN_STRING

	// Keywords
	TOKEN_UNIT
	TOKEN_USE
	TOKEN_PUB
	TOKEN_FN
	TOKEN_CONST
	TOKEN_LET
	TOKEN_VAR
	TOKEN_IF
	TOKEN_ELSE
	TOKEN_WHILE
	TOKEN_RETURN
	TOKEN_BREAK
	TOKEN_CONTINUE
	TOKEN_TRUE
	TOKEN_FALSE

	// Punctuation
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACE
	TOKEN_RBRACE
	TOKEN_COMMA
	TOKEN_COLON
	TOKEN_DOT
	TOKEN_ARROW

	// Operators
	TOKEN_ASSIGN
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_STAR
	TOKEN_SLASH
	TOKEN_PERCENT
	TOKEN_EQ
	TOKEN_NE
	TOKEN_LT
	TOKEN_LE
	TOKEN_GT
	TOKEN_GE
	TOKEN_ANDAND
	TOKEN_OROR
	TOKEN_NOT
)

var tokenNames = map[TokenType]string{
	TOKEN_EOF:      "end of file",
	TOKEN_ILLEGAL:  "illegal token",
	TOKEN_IDENT:    "identifier",
	TOKEN_INT:      "integer literal",
	TOKEN_FLOAT:    "float literal",
	TOKEN_STRING:   "string literal",
	TOKEN_UNIT:     "'unit'",
	TOKEN_USE:      "'use'",
	TOKEN_PUB:      "'pub'",
	TOKEN_FN:       "'fn'",
	TOKEN_CONST:    "'const'",
	TOKEN_LET:      "'let'",
	TOKEN_VAR:      "'var'",
	TOKEN_IF:       "'if'",
	TOKEN_ELSE:     "'else'",
	TOKEN_WHILE:    "'while'",
	TOKEN_RETURN:   "'return'",
	TOKEN_BREAK:    "'break'",
	TOKEN_CONTINUE: "'continue'",
	TOKEN_TRUE:     "'true'",
	TOKEN_FALSE:    "'false'",
	TOKEN_LPAREN:   "'('",
	TOKEN_RPAREN:   "')'",
	TOKEN_LBRACE:   "'{'",
	TOKEN_RBRACE:   "'}'",
	TOKEN_COMMA:    "','",
	TOKEN_COLON:    "':'",
	TOKEN_DOT:      "'.'",
	TOKEN_ARROW:    "'->'",
	TOKEN_ASSIGN:   "'='",
	TOKEN_PLUS:     "'+'",
	TOKEN_MINUS:    "'-'",
	TOKEN_STAR:     "'*'",
	TOKEN_SLASH:    "'/'",
	TOKEN_PERCENT:  "'%'",
	TOKEN_EQ:       "'=='",
	TOKEN_NE:       "'!='",
	TOKEN_LT:       "'<'",
	TOKEN_LE:       "'<='",
	TOKEN_GT:       "'>'",
	TOKEN_GE:       "'>='",
	TOKEN_ANDAND:   "'&&'",
	TOKEN_OROR:     "'||'",
	TOKEN_NOT:      "'!'",
}

// String returns a human-readable name for diagnostics
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"unit":     TOKEN_UNIT,
	"use":      TOKEN_USE,
	"pub":      TOKEN_PUB,
	"fn":       TOKEN_FN,
	"const":    TOKEN_CONST,
	"let":      TOKEN_LET,
	"var":      TOKEN_VAR,
	"if":       TOKEN_IF,
	"else":     TOKEN_ELSE,
	"while":    TOKEN_WHILE,
	"return":   TOKEN_RETURN,
	"break":    TOKEN_BREAK,
	"continue": TOKEN_CONTINUE,
	"true":     TOKEN_TRUE,
	"false":    TOKEN_FALSE,
}

// lookupIdent distinguishes keywords from plain identifiers
func lookupIdent(name string) TokenType {
	if tt, ok := keywords[name]; ok {
		return tt
	}
	return TOKEN_IDENT
}

// Pos is a 1-based source position
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is a single lexical token with its source position
type Token struct {
	Type   TokenType
	Lexeme string
	Pos    Pos
}

func (t Token) String() string {
	switch t.Type {
	case TOKEN_IDENT, TOKEN_INT, TOKEN_FLOAT:
		return fmt.Sprintf("%s %q", t.Type, t.Lexeme)
	case TOKEN_STRING:
		return fmt.Sprintf("string literal %q", t.Lexeme)
	default:
		return t.Type.String()
	}
}
