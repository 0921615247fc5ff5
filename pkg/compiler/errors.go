package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSyntax means no grammar alternative matched the input.
	ErrSyntax = errors.New("syntax error")
	// ErrUndeclared means an identifier was used with no visible declaration.
	ErrUndeclared = errors.New("undeclared identifier")
	// ErrTypeMismatch means an operand had the wrong primitive type for its position.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrRedeclared means a name was bound twice in the same frame.
	ErrRedeclared = errors.New("redeclared identifier")

	// ErrOutOfRegisters means an expression needed more registers than the pool holds.
	ErrOutOfRegisters = errors.New("out of registers")
	// ErrRegisterLeak means a statement finished with registers still marked in use.
	ErrRegisterLeak = errors.New("register leak")
	// ErrFrameOrder means the generator reached a block whose frame is not the
	// next unvisited child of its parent.
	ErrFrameOrder = errors.New("scope frame visited out of order")
)

// ParseError describes the furthest point the parser reached before every
// alternative failed.
type ParseError struct {
	Pos      int      // token index
	Token    Token    // token found at Pos
	Expected []string // tokens or constructs that would have been accepted
	Reason   error    // semantic cause recorded at Pos, or nil
	Detail   string
	snippet  string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Token.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Token.Line)
	}
	switch {
	case e.Reason != nil && e.Detail != "":
		fmt.Fprintf(&b, "%v: %s", e.Reason, e.Detail)
	case e.Reason != nil:
		fmt.Fprintf(&b, "%v at %s", e.Reason, e.Token.describe())
	case len(e.Expected) > 0:
		fmt.Fprintf(&b, "unexpected %s, expected %s", e.Token.describe(), strings.Join(e.Expected, " or "))
	default:
		fmt.Fprintf(&b, "unexpected %s", e.Token.describe())
	}
	if e.snippet != "" {
		fmt.Fprintf(&b, "\n  |> %s", e.snippet)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	if e.Reason != nil {
		return e.Reason
	}
	return ErrSyntax
}

// diagnostics tracks the furthest failure seen during one parse.
type diagnostics struct {
	pos      int
	expected map[string]bool
	reason   error
	detail   string
}

func newDiagnostics() *diagnostics {
	return &diagnostics{pos: -1, expected: make(map[string]bool)}
}

// expect records that want would have been accepted at pos.
func (d *diagnostics) expect(pos int, want string) {
	if pos < d.pos {
		return
	}
	if pos > d.pos {
		d.reset(pos)
	}
	d.expected[want] = true
}

// semantic records a binding or typing failure at pos. The first reason
// recorded at the furthest position wins.
func (d *diagnostics) semantic(pos int, reason error, format string, args ...any) {
	if pos < d.pos {
		return
	}
	if pos > d.pos {
		d.reset(pos)
	}
	if d.reason == nil {
		d.reason = reason
		d.detail = fmt.Sprintf(format, args...)
	}
}

func (d *diagnostics) reset(pos int) {
	d.pos = pos
	d.expected = make(map[string]bool)
	d.reason = nil
	d.detail = ""
}

func (d *diagnostics) sortedExpected() []string {
	out := make([]string, 0, len(d.expected))
	for k := range d.expected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
