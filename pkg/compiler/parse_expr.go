package compiler

import "strconv"

var relationalOps = map[string]Op{
	"<":  OpLess,
	"<=": OpLessEq,
	">":  OpGreater,
	">=": OpGreaterEq,
	"==": OpEq,
	"!=": OpNotEq,
}

// binaryLevel parses operand (operator operand)* for the operators in ops,
// building a left-associative chain.
func (p *Parser) binaryLevel(operand func() (Expr, bool), ops map[string]Op) (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		left, ok := operand()
		if !ok {
			return nil, false
		}
		for {
			tok := p.peek()
			op, isOp := ops[tok.Text]
			if tok.Kind != Operator || !isOp {
				return left, true
			}
			p.advance()
			right, ok := operand()
			if !ok {
				return nil, false
			}
			left = &BinaryOp{Op: op, Left: left, Right: right}
		}
	})
}

//  Boolean expressions

// parseCond is the entry point for boolean expressions.
func (p *Parser) parseCond() (Expr, bool) {
	return p.binaryLevel(p.parseAnd, map[string]Op{"||": OpOr})
}

func (p *Parser) parseAnd() (Expr, bool) {
	return p.binaryLevel(p.parseEquality, map[string]Op{"&&": OpAnd})
}

func (p *Parser) parseEquality() (Expr, bool) {
	return p.binaryLevel(p.parseNot, map[string]Op{"==": OpEq, "!=": OpNotEq})
}

func (p *Parser) parseNot() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		if p.match(Operator, "!") {
			x, ok := p.parseNot()
			if !ok {
				return nil, false
			}
			return &UnaryOp{Op: OpNot, X: x}, true
		}
		return p.parseBoolAtom()
	})
}

func (p *Parser) parseBoolAtom() (Expr, bool) {
	return first(p,
		p.parseRelational,
		p.parseBoolLiteral,
		func() (Expr, bool) { return p.parseCallExpr(PrimitiveKind.IsBoolean, "bool") },
		func() (Expr, bool) { return p.parseIdent(PrimitiveKind.IsBoolean, "bool") },
		func() (Expr, bool) { return p.parseParen(p.parseCond) },
	)
}

// parseRelational parses arith relop arith.
func (p *Parser) parseRelational() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		left, ok := p.parseArith()
		if !ok {
			return nil, false
		}
		tok := p.peek()
		op, isOp := relationalOps[tok.Text]
		if tok.Kind != Operator || !isOp {
			p.diag.expect(p.pos, "comparison operator")
			return nil, p.reject(p.pos, ErrTypeMismatch, "%s is %s, expected bool", left, left.Type())
		}
		p.advance()
		right, ok := p.parseArith()
		if !ok {
			return nil, false
		}
		return &BinaryOp{Op: op, Left: left, Right: right}, true
	})
}

func (p *Parser) parseBoolLiteral() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		var value int64
		switch {
		case p.match(Keyword, "true"):
			value = 1
		case p.match(Keyword, "false"):
		default:
			p.diag.expect(p.pos, "boolean")
			return nil, false
		}
		text := p.tokens[p.pos-1].Text
		return &Leaf{Terminal{Kind: TermBool, Text: text, Value: value, Frame: p.frame, Typ: Bool}}, true
	})
}

//  Arithmetic expressions

// parseArith is the entry point for integer expressions.
func (p *Parser) parseArith() (Expr, bool) {
	return p.binaryLevel(p.parseTerm, map[string]Op{"+": OpAdd, "-": OpSub})
}

func (p *Parser) parseTerm() (Expr, bool) {
	return p.binaryLevel(p.parseUnary, map[string]Op{"*": OpMul, "/": OpDiv})
}

func (p *Parser) parseUnary() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		if p.match(Operator, "-") {
			x, ok := p.parseUnary()
			if !ok {
				return nil, false
			}
			if leaf, isLeaf := x.(*Leaf); isLeaf && leaf.Kind == TermConstant {
				leaf.Value = -leaf.Value
				leaf.Text = strconv.FormatInt(leaf.Value, 10)
				return leaf, true
			}
			return &UnaryOp{Op: OpNeg, X: x}, true
		}
		return p.parseFactor()
	})
}

func (p *Parser) parseFactor() (Expr, bool) {
	return first(p,
		p.parseConstant,
		func() (Expr, bool) { return p.parseCallExpr(PrimitiveKind.IsArithmetic, "int") },
		func() (Expr, bool) { return p.parseIdent(PrimitiveKind.IsArithmetic, "int") },
		func() (Expr, bool) { return p.parseParen(p.parseArith) },
	)
}

func (p *Parser) parseConstant() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		if p.check(Keyword, "true") || p.check(Keyword, "false") {
			return nil, p.reject(p.pos, ErrTypeMismatch, "%s is bool, expected int", p.peek().Text)
		}
		tok, ok := p.expectKind(Constant, "constant")
		if !ok {
			return nil, false
		}
		value, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.reject(p.pos-1, ErrSyntax, "bad constant %q", tok.Text)
		}
		return &Leaf{Terminal{Kind: TermConstant, Text: tok.Text, Value: value, Frame: p.frame, Typ: Int}}, true
	})
}

// parseIdent accepts a variable whose declared type satisfies want.
func (p *Parser) parseIdent(want func(PrimitiveKind) bool, wantName string) (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		pos := p.pos
		tok, ok := p.expectKind(Identifier, "identifier")
		if !ok {
			return nil, false
		}
		sym, found := p.scopes.Lookup(p.frame, tok.Text)
		switch {
		case !found:
			return nil, p.reject(pos, ErrUndeclared, "%q is not declared", tok.Text)
		case sym.IsFunction:
			return nil, p.reject(pos, ErrTypeMismatch, "function %q used as a value", tok.Text)
		case !want(sym.Type):
			return nil, p.reject(pos, ErrTypeMismatch, "%q is %s, expected %s", tok.Text, sym.Type, wantName)
		}
		return &Leaf{Terminal{Kind: TermIdent, Text: tok.Text, Frame: p.frame, Typ: sym.Type, Sym: sym}}, true
	})
}

func (p *Parser) parseParen(inner func() (Expr, bool)) (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		if !p.expect(Separator, "(") {
			return nil, false
		}
		x, ok := inner()
		if !ok || !p.expect(Separator, ")") {
			return nil, false
		}
		return x, true
	})
}

//  Calls

func (p *Parser) parseCallExpr(want func(PrimitiveKind) bool, wantName string) (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		call, ok := p.parseCall(want, wantName)
		if !ok {
			return nil, false
		}
		return call, true
	})
}

// parseCall parses IDENT "(" args ")" against the callee's signature. A nil
// want accepts any return type.
func (p *Parser) parseCall(want func(PrimitiveKind) bool, wantName string) (*Call, bool) {
	return attempt(p, func() (*Call, bool) {
		pos := p.pos
		if next := p.peekAt(1); next.Kind != Separator || next.Text != "(" {
			return nil, false
		}
		tok, ok := p.expectKind(Identifier, "function name")
		if !ok {
			return nil, false
		}
		sym, found := p.scopes.Lookup(p.frame, tok.Text)
		switch {
		case !found:
			return nil, p.reject(pos, ErrUndeclared, "function %q is not declared", tok.Text)
		case !sym.IsFunction:
			return nil, p.reject(pos, ErrTypeMismatch, "%q is not a function", tok.Text)
		case want != nil && !want(sym.Type):
			return nil, p.reject(pos, ErrTypeMismatch, "%s returns %s, expected %s", tok.Text, sym.Type, wantName)
		}
		p.advance() // "("

		call := &Call{Name: tok.Text, Result: sym.Type}
		for i, typ := range sym.Params {
			if i > 0 && !p.expect(Separator, ",") {
				if p.check(Separator, ")") {
					p.reject(p.pos, ErrTypeMismatch, "%s expects %d arguments, got %d", tok.Text, len(sym.Params), i)
				}
				return nil, false
			}
			if i == 0 && p.check(Separator, ")") {
				return nil, p.reject(p.pos, ErrTypeMismatch, "%s expects %d arguments, got 0", tok.Text, len(sym.Params))
			}
			arg, ok := p.parseValue(typ)
			if !ok {
				return nil, false
			}
			call.Args = append(call.Args, arg)
		}
		if !p.expect(Separator, ")") {
			if p.check(Separator, ",") {
				p.reject(p.pos, ErrTypeMismatch, "%s expects %d arguments", tok.Text, len(sym.Params))
			}
			return nil, false
		}
		return call, true
	})
}
