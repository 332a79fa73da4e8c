// ast.go - Syntax tree for Indent units

package main

import (
	"fmt"
	"strings"
)

// UnitFile is the parsed form of one .ind source file
type UnitFile struct {
	Name    string // declared unit name
	NamePos Pos
	Path    string // source path, used in diagnostics
	Uses    []*UseDecl
	Decls   []Decl
}

// UseDecl imports another unit of the project
type UseDecl struct {
	Name string
	Pos  Pos
}

// Decl is a top-level declaration (function or constant)
type Decl interface {
	declNode()
	DeclName() string
	DeclPos() Pos
	Public() bool
}

// TypeName is a written type, resolved by the checker
type TypeName struct {
	Name string
	Pos  Pos
}

// Param is one function parameter
type Param struct {
	Name    string
	NamePos Pos
	Type    *TypeName
}

// FnDecl is a function declaration
type FnDecl struct {
	Pub     bool
	Name    string
	NamePos Pos
	Params  []*Param
	Result  *TypeName // nil for void
	Body    *BlockStmt
	Pos     Pos
}

func (*FnDecl) declNode()          {}
func (d *FnDecl) DeclName() string { return d.Name }
func (d *FnDecl) DeclPos() Pos     { return d.NamePos }
func (d *FnDecl) Public() bool     { return d.Pub }

// ConstDecl is a compile-time constant declaration
type ConstDecl struct {
	Pub     bool
	Name    string
	NamePos Pos
	Value   Expr
	Pos     Pos
}

func (*ConstDecl) declNode()          {}
func (d *ConstDecl) DeclName() string { return d.Name }
func (d *ConstDecl) DeclPos() Pos     { return d.NamePos }
func (d *ConstDecl) Public() bool     { return d.Pub }

// Statements

type Stmt interface {
	stmtNode()
	StmtPos() Pos
}

type BlockStmt struct {
	Stmts  []Stmt
	Lbrace Pos
	Rbrace Pos
}

// BindStmt is a let or var binding
type BindStmt struct {
	Mutable bool // var vs let
	Name    string
	NamePos Pos
	Type    *TypeName // nil means inferred from the initializer
	Value   Expr
	Pos     Pos
}

type AssignStmt struct {
	Name    string
	NamePos Pos
	Value   Expr
}

type IfStmt struct {
	Cond Expr
	Then *BlockStmt
	Else Stmt // *BlockStmt, *IfStmt for else-if chains, or nil
	Pos  Pos
}

type WhileStmt struct {
	Cond Expr
	Body *BlockStmt
	Pos  Pos
}

type ReturnStmt struct {
	Value Expr // nil for bare return
	Pos   Pos
}

type BreakStmt struct{ Pos Pos }

type ContinueStmt struct{ Pos Pos }

type ExprStmt struct{ X Expr }

func (*BlockStmt) stmtNode()    {}
func (*BindStmt) stmtNode()     {}
func (*AssignStmt) stmtNode()   {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*ReturnStmt) stmtNode()   {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*ExprStmt) stmtNode()     {}

func (s *BlockStmt) StmtPos() Pos    { return s.Lbrace }
func (s *BindStmt) StmtPos() Pos     { return s.Pos }
func (s *AssignStmt) StmtPos() Pos   { return s.NamePos }
func (s *IfStmt) StmtPos() Pos       { return s.Pos }
func (s *WhileStmt) StmtPos() Pos    { return s.Pos }
func (s *ReturnStmt) StmtPos() Pos   { return s.Pos }
func (s *BreakStmt) StmtPos() Pos    { return s.Pos }
func (s *ContinueStmt) StmtPos() Pos { return s.Pos }
func (s *ExprStmt) StmtPos() Pos     { return s.X.ExprPos() }

// Expressions

type Expr interface {
	exprNode()
	ExprPos() Pos
}

// BadExpr stands in where parsing failed; the checker types it as
// invalid without reporting, so one syntax error does not cascade.
type BadExpr struct {
	Pos Pos
}

type IntLit struct {
	Text string
	Pos  Pos
}

type FloatLit struct {
	Text string
	Pos  Pos
}

type BoolLit struct {
	Value bool
	Pos   Pos
}

type StringLit struct {
	Value string // decoded value, escapes already resolved
	Pos   Pos
}

type Ident struct {
	Name string
	Pos  Pos
}

// SelectorExpr references a public member of an imported unit
type SelectorExpr struct {
	Unit    string
	UnitPos Pos
	Name    string
	NamePos Pos
}

type CallExpr struct {
	Fn     Expr // *Ident or *SelectorExpr
	Args   []Expr
	Lparen Pos
	Rparen Pos
}

type UnaryExpr struct {
	Op  TokenType // TOKEN_MINUS or TOKEN_NOT
	X   Expr
	Pos Pos
}

type BinaryExpr struct {
	Op    TokenType
	X, Y  Expr
	OpPos Pos
}

func (*BadExpr) exprNode()      {}
func (*IntLit) exprNode()       {}
func (*FloatLit) exprNode()     {}
func (*BoolLit) exprNode()      {}
func (*StringLit) exprNode()    {}
func (*Ident) exprNode()        {}
func (*SelectorExpr) exprNode() {}
func (*CallExpr) exprNode()     {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}

func (e *BadExpr) ExprPos() Pos      { return e.Pos }
func (e *IntLit) ExprPos() Pos       { return e.Pos }
func (e *FloatLit) ExprPos() Pos     { return e.Pos }
func (e *BoolLit) ExprPos() Pos      { return e.Pos }
func (e *StringLit) ExprPos() Pos    { return e.Pos }
func (e *Ident) ExprPos() Pos        { return e.Pos }
func (e *SelectorExpr) ExprPos() Pos { return e.UnitPos }
func (e *CallExpr) ExprPos() Pos     { return e.Fn.ExprPos() }
func (e *UnaryExpr) ExprPos() Pos    { return e.Pos }
func (e *BinaryExpr) ExprPos() Pos   { return e.X.ExprPos() }

var opLexemes = map[TokenType]string{
	TOKEN_PLUS:    "+",
	TOKEN_MINUS:   "-",
	TOKEN_STAR:    "*",
	TOKEN_SLASH:   "/",
	TOKEN_PERCENT: "%",
	TOKEN_EQ:      "==",
	TOKEN_NE:      "!=",
	TOKEN_LT:      "<",
	TOKEN_LE:      "<=",
	TOKEN_GT:      ">",
	TOKEN_GE:      ">=",
	TOKEN_ANDAND:  "&&",
	TOKEN_OROR:    "||",
	TOKEN_NOT:     "!",
}

// exprString renders an expression with explicit grouping. Tests use it
// to pin operator precedence without walking node structures.
func exprString(e Expr) string {
	switch x := e.(type) {
	case *BadExpr:
		return "<bad>"
	case *IntLit:
		return x.Text
	case *FloatLit:
		return x.Text
	case *BoolLit:
		if x.Value {
			return "true"
		}
		return "false"
	case *StringLit:
		return fmt.Sprintf("%q", x.Value)
	case *Ident:
		return x.Name
	case *SelectorExpr:
		return x.Unit + "." + x.Name
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = exprString(a)
		}
		return exprString(x.Fn) + "(" + strings.Join(args, ", ") + ")"
	case *UnaryExpr:
		return "(" + opLexemes[x.Op] + exprString(x.X) + ")"
	case *BinaryExpr:
		return "(" + exprString(x.X) + " " + opLexemes[x.Op] + " " + exprString(x.Y) + ")"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
