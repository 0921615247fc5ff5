package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	EOF TokenKind = iota // sentinel: end of input, never stored in a token slice

	Identifier // variable / function name
	Separator  // ( ) { } ; ,
	Keyword    // if elif else while for return true false
	Primitive  // int bool char
	Operator   // + - * / = == != < <= > >= && || !
	Constant   // decimal integer or character literal
)

var tokenKindNames = [...]string{
	EOF:        "EOF",
	Identifier: "IDENTIFIER",
	Separator:  "SEPARATOR",
	Keyword:    "KEYWORD",
	Primitive:  "PRIMITIVE",
	Operator:   "OPERATOR",
	Constant:   "CONSTANT",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Kind TokenKind
	Text string // the exact source text that was matched
	Line int    // 1-based source line, 0 when unknown
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Kind, t.Text, t.Line)
}

// describe renders a token the way diagnostics quote it.
func (t Token) describe() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}

// PrimitiveKind is the declared type of a symbol or the type of an expression.
type PrimitiveKind int

const (
	NoType PrimitiveKind = iota
	Int
	Bool
	Char
)

var primitiveNames = map[string]PrimitiveKind{
	"int":  Int,
	"bool": Bool,
	"char": Char,
}

func (k PrimitiveKind) String() string {
	switch k {
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Char:
		return "char"
	default:
		return "none"
	}
}

// IsArithmetic reports whether values of k may appear as arithmetic operands.
func (k PrimitiveKind) IsArithmetic() bool {
	return k == Int || k == Char
}

// IsBoolean reports whether values of k may appear as boolean operands.
func (k PrimitiveKind) IsBoolean() bool {
	return k == Bool
}

// ParsePrimitive maps a primitive keyword to its kind.
func ParsePrimitive(text string) (PrimitiveKind, bool) {
	k, ok := primitiveNames[text]
	return k, ok
}
