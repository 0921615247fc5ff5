package compiler

import (
	"fmt"
	"strings"
)

//  Operators

// Op is the operator carried by a BinaryOp or UnaryOp node.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEq
	OpNotEq
	OpAnd
	OpOr
	OpNot
	OpNeg
)

var opText = [...]string{
	OpAdd:       "+",
	OpSub:       "-",
	OpMul:       "*",
	OpDiv:       "/",
	OpLess:      "<",
	OpLessEq:    "<=",
	OpGreater:   ">",
	OpGreaterEq: ">=",
	OpEq:        "==",
	OpNotEq:     "!=",
	OpAnd:       "&&",
	OpOr:        "||",
	OpNot:       "!",
	OpNeg:       "-",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opText) {
		return opText[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IsComparison reports whether o compares two operands and yields a bool.
func (o Op) IsComparison() bool {
	return o >= OpLess && o <= OpNotEq
}

// IsLogical reports whether o is a short-circuit operator.
func (o Op) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	Type() PrimitiveKind
	String() string
}

// TerminalKind says what a Leaf reduces to.
type TerminalKind int

const (
	TermConstant TerminalKind = iota // integer or character constant
	TermBool                         // true / false
	TermIdent                        // a variable read
)

// Terminal is the resolved value a leaf reduces to.
//
//	x + 10
//	^   ^^  Terminal{Kind: TermConstant, Value: 10}
//	|
//	Terminal{Kind: TermIdent, Text: "x", Frame: <frame of the use>}
type Terminal struct {
	Kind  TerminalKind
	Text  string
	Value int64         // constants and booleans
	Frame FrameID       // frame the identifier was resolved from
	Typ   PrimitiveKind // declared type of the identifier, or the literal's type
	Sym   *Symbol       // resolved declaration, identifiers only
}

// Leaf is an operand with no sub-expressions.
type Leaf struct {
	Terminal
}

func (*Leaf) exprNode()             {}
func (l *Leaf) Type() PrimitiveKind { return l.Typ }
func (l *Leaf) String() string      { return l.Text }

// BinaryOp represents Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryOp struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (*BinaryOp) exprNode() {}

func (b *BinaryOp) Type() PrimitiveKind {
	if b.Op.IsComparison() || b.Op.IsLogical() {
		return Bool
	}
	return Int
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryOp represents !X or -X.
type UnaryOp struct {
	Op Op
	X  Expr
}

func (*UnaryOp) exprNode() {}

func (u *UnaryOp) Type() PrimitiveKind {
	if u.Op == OpNot {
		return Bool
	}
	return Int
}

func (u *UnaryOp) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.X) }

// Call is a function invocation used as a value.
//
//	add(1, x)
//	^^^ ^^^^  Args
//	Name
type Call struct {
	Name   string
	Args   []Expr
	Result PrimitiveKind
}

func (*Call) exprNode()             {}
func (c *Call) Type() PrimitiveKind { return c.Result }

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// Block is a brace-delimited statement list with the frame it opened.
type Block struct {
	Frame FrameID
	Stmts []Stmt
}

func (b *Block) String() string {
	parts := make([]string, len(b.Stmts))
	for i, s := range b.Stmts {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// VarDecl declares a local, optionally initialised.
//
//	int x = 10;
//	    ^   ^^  Init
//	    Name
type VarDecl struct {
	Name  string
	Typ   PrimitiveKind
	Init  Expr // nil when absent
	Frame FrameID
	Sym   *Symbol
}

func (*VarDecl) stmtNode() {}
func (d *VarDecl) String() string {
	if d.Init == nil {
		return fmt.Sprintf("%s %s;", d.Typ, d.Name)
	}
	return fmt.Sprintf("%s %s = %s;", d.Typ, d.Name, d.Init)
}

// Assign stores Value into an existing variable.
type Assign struct {
	Name  string
	Value Expr
	Frame FrameID // frame the assignment appears in
	Sym   *Symbol // target resolved at parse time
}

func (*Assign) stmtNode()        {}
func (a *Assign) String() string { return fmt.Sprintf("%s = %s;", a.Name, a.Value) }

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.X.String() + ";" }

// IfStmt is an if with an optional elif chain and else block.
//
//	if (c1) { A } elif (c2) { B } else { C }
//	    ^^    ^   ^^^^^^^^^^^^^^^      ^
//	  Cond  Then  Elif (*IfStmt)       Else
type IfStmt struct {
	Cond Expr
	Then *Block
	Elif *IfStmt
	Else *Block
}

func (*IfStmt) stmtNode() {}
func (s *IfStmt) String() string {
	out := fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	if s.Elif != nil {
		out += " el" + s.Elif.String()
	}
	if s.Else != nil {
		out += " else " + s.Else.String()
	}
	return out
}

// WhileStmt loops while Cond holds.
type WhileStmt struct {
	Cond Expr
	Body *Block
}

func (*WhileStmt) stmtNode() {}
func (s *WhileStmt) String() string {
	return fmt.Sprintf("while (%s) %s", s.Cond, s.Body)
}

// ForStmt is for (Init; Cond; Post) Body. The header and the body share
// Body.Frame. Any of Init, Cond and Post may be nil; a nil Cond loops forever.
type ForStmt struct {
	Init Stmt
	Cond Expr
	Post Stmt
	Body *Block
}

func (*ForStmt) stmtNode() {}
func (s *ForStmt) String() string {
	part := func(n fmt.Stringer) string {
		if n == nil {
			return ""
		}
		return strings.TrimSuffix(n.String(), ";")
	}
	var init, post fmt.Stringer
	if s.Init != nil {
		init = s.Init
	}
	if s.Post != nil {
		post = s.Post
	}
	cond := ""
	if s.Cond != nil {
		cond = s.Cond.String()
	}
	return fmt.Sprintf("for (%s; %s; %s) %s", part(init), cond, part(post), s.Body)
}

// ReturnStmt leaves the current function with Value.
type ReturnStmt struct {
	Value Expr
}

func (*ReturnStmt) stmtNode()        {}
func (r *ReturnStmt) String() string { return fmt.Sprintf("return %s;", r.Value) }

//  Top level

// Param is one declared function parameter.
type Param struct {
	Name string
	Typ  PrimitiveKind
}

// FunctionDecl is a function definition.
type FunctionDecl struct {
	Name       string
	ReturnType PrimitiveKind
	Params     []Param
	Body       *Block
}

func (f *FunctionDecl) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %s", p.Typ, p.Name)
	}
	return fmt.Sprintf("%s %s(%s) %s", f.ReturnType, f.Name, strings.Join(params, ", "), f.Body)
}

// Program is a whole compilation unit.
type Program struct {
	Functions []*FunctionDecl
}

func (p *Program) String() string {
	parts := make([]string, len(p.Functions))
	for i, f := range p.Functions {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\n")
}
