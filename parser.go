// parser.go - Recursive descent parser for Indent
//
// One parser instance handles one unit. Expressions use precedence
// climbing. On a syntax error the parser reports, synchronizes at the
// next statement or declaration boundary, and keeps going, so a single
// typo does not hide the rest of the file's problems.

package main

import (
	"path/filepath"
	"strings"
)

// ParseUnit scans and parses one source file into a UnitFile. Errors
// land in the collector; the returned tree is always non-nil and safe
// to walk (bad spots carry BadExpr placeholders).
func ParseUnit(path, text string, diags *DiagnosticCollector) *UnitFile {
	diags.SetSource(path, text)
	toks := NewLexer(path, text, diags).Scan()
	p := &Parser{file: path, toks: toks, diags: diags}
	return p.parseUnitFile()
}

// Parser consumes the token slice produced by the lexer
type Parser struct {
	file  string
	toks  []Token
	pos   int
	diags *DiagnosticCollector
}

func (p *Parser) cur() Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *Parser) at(tt TokenType) bool {
	return p.cur().Type == tt
}

func (p *Parser) advance() Token {
	tok := p.cur()
	if tok.Type != TOKEN_EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) loc(tok Token) SourceLocation {
	length := len(tok.Lexeme)
	if tok.Type == TOKEN_STRING {
		length += 2 // quotes
	}
	return SourceLocation{File: p.file, Line: tok.Pos.Line, Col: tok.Pos.Col, Length: length}
}

// expect consumes a token of the given type or reports what was found
func (p *Parser) expect(tt TokenType) (Token, bool) {
	if p.at(tt) {
		return p.advance(), true
	}
	d := unexpectedTokenError(tt.String(), p.cur())
	d.Loc.File = p.file
	p.diags.Add(d)
	return p.cur(), false
}

func (p *Parser) errorHere(format string, args ...any) {
	p.diags.Errorf(CategorySyntax, p.loc(p.cur()), format, args...)
}

// sync skips tokens until a plausible statement or declaration start
func (p *Parser) sync() {
	for {
		switch p.cur().Type {
		case TOKEN_EOF, TOKEN_FN, TOKEN_CONST, TOKEN_PUB, TOKEN_LET, TOKEN_VAR,
			TOKEN_IF, TOKEN_WHILE, TOKEN_RETURN, TOKEN_BREAK, TOKEN_CONTINUE, TOKEN_RBRACE:
			return
		}
		p.advance()
	}
}

func (p *Parser) parseUnitFile() *UnitFile {
	unit := &UnitFile{Path: p.file}

	if _, ok := p.expect(TOKEN_UNIT); ok {
		if name, ok := p.expect(TOKEN_IDENT); ok {
			unit.Name = name.Lexeme
			unit.NamePos = name.Pos
			stem := strings.TrimSuffix(filepath.Base(p.file), filepath.Ext(p.file))
			if unit.Name != stem {
				p.diags.Errorf(CategorySyntax, p.loc(name),
					"unit name '%s' does not match file name '%s'", unit.Name, stem)
			}
		}
	} else {
		p.errorHere("a source file must start with a unit declaration")
		p.sync()
	}

	for p.at(TOKEN_USE) {
		use := p.advance()
		if name, ok := p.expect(TOKEN_IDENT); ok {
			unit.Uses = append(unit.Uses, &UseDecl{Name: name.Lexeme, Pos: use.Pos})
		} else {
			p.sync()
		}
	}

	for !p.at(TOKEN_EOF) && !p.diags.ShouldStop() {
		decl := p.parseDecl()
		if decl != nil {
			unit.Decls = append(unit.Decls, decl)
		}
	}
	return unit
}

func (p *Parser) parseDecl() Decl {
	pub := false
	if p.at(TOKEN_PUB) {
		p.advance()
		pub = true
	}

	switch p.cur().Type {
	case TOKEN_FN:
		return p.parseFnDecl(pub)
	case TOKEN_CONST:
		return p.parseConstDecl(pub)
	case TOKEN_USE:
		p.errorHere("'use' declarations must appear before functions and constants")
		p.advance()
		if p.at(TOKEN_IDENT) {
			p.advance()
		}
		return nil
	default:
		p.errorHere("expected 'fn' or 'const' at top level, found %s", p.cur())
		p.advance()
		p.sync()
		return nil
	}
}

func (p *Parser) parseFnDecl(pub bool) Decl {
	fnTok := p.advance()
	name, ok := p.expect(TOKEN_IDENT)
	if !ok {
		p.sync()
		return nil
	}

	decl := &FnDecl{Pub: pub, Name: name.Lexeme, NamePos: name.Pos, Pos: fnTok.Pos}

	if _, ok := p.expect(TOKEN_LPAREN); !ok {
		p.sync()
		return decl
	}
	for !p.at(TOKEN_RPAREN) && !p.at(TOKEN_EOF) {
		param := p.parseParam()
		if param == nil {
			break
		}
		decl.Params = append(decl.Params, param)
		if !p.at(TOKEN_COMMA) {
			break
		}
		p.advance()
	}
	p.expect(TOKEN_RPAREN)

	if p.at(TOKEN_ARROW) {
		p.advance()
		if t, ok := p.expect(TOKEN_IDENT); ok {
			decl.Result = &TypeName{Name: t.Lexeme, Pos: t.Pos}
		}
	}

	decl.Body = p.parseBlock()
	return decl
}

func (p *Parser) parseParam() *Param {
	name, ok := p.expect(TOKEN_IDENT)
	if !ok {
		p.sync()
		return nil
	}
	if _, ok := p.expect(TOKEN_COLON); !ok {
		p.sync()
		return nil
	}
	tname, ok := p.expect(TOKEN_IDENT)
	if !ok {
		p.sync()
		return nil
	}
	return &Param{
		Name:    name.Lexeme,
		NamePos: name.Pos,
		Type:    &TypeName{Name: tname.Lexeme, Pos: tname.Pos},
	}
}

func (p *Parser) parseConstDecl(pub bool) Decl {
	constTok := p.advance()
	name, ok := p.expect(TOKEN_IDENT)
	if !ok {
		p.sync()
		return nil
	}
	if _, ok := p.expect(TOKEN_ASSIGN); !ok {
		p.sync()
		return nil
	}
	value := p.parseExpr(1)
	return &ConstDecl{Pub: pub, Name: name.Lexeme, NamePos: name.Pos, Value: value, Pos: constTok.Pos}
}

func (p *Parser) parseBlock() *BlockStmt {
	lbrace, ok := p.expect(TOKEN_LBRACE)
	block := &BlockStmt{Lbrace: lbrace.Pos}
	if !ok {
		return block
	}
	for !p.at(TOKEN_RBRACE) && !p.at(TOKEN_EOF) {
		before := p.pos
		stmt := p.parseStmt()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
		if p.pos == before {
			// no progress; skip the offender to guarantee termination
			p.advance()
		}
	}
	rbrace, _ := p.expect(TOKEN_RBRACE)
	block.Rbrace = rbrace.Pos
	return block
}

func (p *Parser) parseStmt() Stmt {
	switch p.cur().Type {
	case TOKEN_LET, TOKEN_VAR:
		return p.parseBindStmt()
	case TOKEN_IF:
		return p.parseIfStmt()
	case TOKEN_WHILE:
		tok := p.advance()
		cond := p.parseExpr(1)
		body := p.parseBlock()
		return &WhileStmt{Cond: cond, Body: body, Pos: tok.Pos}
	case TOKEN_RETURN:
		tok := p.advance()
		var value Expr
		if !p.at(TOKEN_RBRACE) && !p.at(TOKEN_EOF) && !p.startsStmt() {
			value = p.parseExpr(1)
		}
		return &ReturnStmt{Value: value, Pos: tok.Pos}
	case TOKEN_BREAK:
		return &BreakStmt{Pos: p.advance().Pos}
	case TOKEN_CONTINUE:
		return &ContinueStmt{Pos: p.advance().Pos}
	case TOKEN_IDENT:
		// assignment or call statement; one token of lookahead decides
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].Type == TOKEN_ASSIGN {
			name := p.advance()
			p.advance() // '='
			value := p.parseExpr(1)
			return &AssignStmt{Name: name.Lexeme, NamePos: name.Pos, Value: value}
		}
		x := p.parseExpr(1)
		return &ExprStmt{X: x}
	case TOKEN_PUB, TOKEN_FN, TOKEN_CONST:
		p.errorHere("%s is not allowed inside a function body", p.cur())
		p.sync()
		return nil
	default:
		p.errorHere("expected a statement, found %s", p.cur())
		p.sync()
		return nil
	}
}

// startsStmt reports whether the current token begins a new statement;
// used to decide if 'return' stands bare.
func (p *Parser) startsStmt() bool {
	switch p.cur().Type {
	case TOKEN_LET, TOKEN_VAR, TOKEN_IF, TOKEN_WHILE, TOKEN_RETURN, TOKEN_BREAK, TOKEN_CONTINUE:
		return true
	}
	return false
}

func (p *Parser) parseBindStmt() Stmt {
	tok := p.advance()
	mutable := tok.Type == TOKEN_VAR
	name, ok := p.expect(TOKEN_IDENT)
	if !ok {
		p.sync()
		return nil
	}
	stmt := &BindStmt{Mutable: mutable, Name: name.Lexeme, NamePos: name.Pos, Pos: tok.Pos}
	if p.at(TOKEN_COLON) {
		p.advance()
		if t, ok := p.expect(TOKEN_IDENT); ok {
			stmt.Type = &TypeName{Name: t.Lexeme, Pos: t.Pos}
		}
	}
	if _, ok := p.expect(TOKEN_ASSIGN); !ok {
		p.sync()
		return stmt
	}
	stmt.Value = p.parseExpr(1)
	return stmt
}

func (p *Parser) parseIfStmt() Stmt {
	tok := p.advance()
	cond := p.parseExpr(1)
	then := p.parseBlock()
	stmt := &IfStmt{Cond: cond, Then: then, Pos: tok.Pos}
	if p.at(TOKEN_ELSE) {
		p.advance()
		if p.at(TOKEN_IF) {
			stmt.Else = p.parseIfStmt()
		} else {
			stmt.Else = p.parseBlock()
		}
	}
	return stmt
}

// binPrec maps binary operators to precedence levels; higher binds
// tighter. All binary operators are left-associative.
var binPrec = map[TokenType]int{
	TOKEN_OROR:    1,
	TOKEN_ANDAND:  2,
	TOKEN_EQ:      3,
	TOKEN_NE:      3,
	TOKEN_LT:      3,
	TOKEN_LE:      3,
	TOKEN_GT:      3,
	TOKEN_GE:      3,
	TOKEN_PLUS:    4,
	TOKEN_MINUS:   4,
	TOKEN_STAR:    5,
	TOKEN_SLASH:   5,
	TOKEN_PERCENT: 5,
}

func (p *Parser) parseExpr(minPrec int) Expr {
	left := p.parseUnary()
	for {
		prec, isBinOp := binPrec[p.cur().Type]
		if !isBinOp || prec < minPrec {
			return left
		}
		op := p.advance()
		right := p.parseExpr(prec + 1)
		left = &BinaryExpr{Op: op.Type, X: left, Y: right, OpPos: op.Pos}
	}
}

func (p *Parser) parseUnary() Expr {
	switch p.cur().Type {
	case TOKEN_MINUS, TOKEN_NOT:
		op := p.advance()
		x := p.parseUnary()
		return &UnaryExpr{Op: op.Type, X: x, Pos: op.Pos}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for p.at(TOKEN_LPAREN) {
		lparen := p.advance()
		call := &CallExpr{Fn: x, Lparen: lparen.Pos}
		for !p.at(TOKEN_RPAREN) && !p.at(TOKEN_EOF) {
			call.Args = append(call.Args, p.parseExpr(1))
			if !p.at(TOKEN_COMMA) {
				break
			}
			p.advance()
		}
		rparen, _ := p.expect(TOKEN_RPAREN)
		call.Rparen = rparen.Pos
		x = call
	}
	return x
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch tok.Type {
	case TOKEN_INT:
		p.advance()
		return &IntLit{Text: tok.Lexeme, Pos: tok.Pos}
	case TOKEN_FLOAT:
		p.advance()
		return &FloatLit{Text: tok.Lexeme, Pos: tok.Pos}
	case TOKEN_TRUE:
		p.advance()
		return &BoolLit{Value: true, Pos: tok.Pos}
	case TOKEN_FALSE:
		p.advance()
		return &BoolLit{Value: false, Pos: tok.Pos}
	case TOKEN_STRING:
		p.advance()
		return &StringLit{Value: tok.Lexeme, Pos: tok.Pos}
	case TOKEN_IDENT:
		p.advance()
		if p.at(TOKEN_DOT) {
			p.advance()
			name, ok := p.expect(TOKEN_IDENT)
			if !ok {
				return &BadExpr{Pos: tok.Pos}
			}
			return &SelectorExpr{Unit: tok.Lexeme, UnitPos: tok.Pos, Name: name.Lexeme, NamePos: name.Pos}
		}
		return &Ident{Name: tok.Lexeme, Pos: tok.Pos}
	case TOKEN_LPAREN:
		p.advance()
		x := p.parseExpr(1)
		p.expect(TOKEN_RPAREN)
		return x
	case TOKEN_ILLEGAL:
		// the lexer already reported this token
		p.advance()
		return &BadExpr{Pos: tok.Pos}
	default:
		p.errorHere("expected an expression, found %s", tok)
		return &BadExpr{Pos: tok.Pos}
	}
}
