package compiler

// parseStatement parses one statement inside a block.
func (p *Parser) parseStatement() (Stmt, bool) {
	return first(p,
		p.parseIf,
		p.parseWhile,
		p.parseFor,
		p.parseReturn,
		func() (Stmt, bool) { return p.terminated(p.parseVarDecl) },
		func() (Stmt, bool) { return p.terminated(p.parseAssign) },
		func() (Stmt, bool) { return p.terminated(p.parseCallStmt) },
	)
}

// terminated runs production and requires a ";" after it.
func (p *Parser) terminated(production func() (Stmt, bool)) (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		s, ok := production()
		if !ok || !p.expect(Separator, ";") {
			return nil, false
		}
		return s, true
	})
}

// parseValue parses the expression form a destination of type typ accepts.
func (p *Parser) parseValue(typ PrimitiveKind) (Expr, bool) {
	if typ.IsBoolean() {
		return p.parseCond()
	}
	return p.parseArith()
}

func (p *Parser) parseVarDecl() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		typTok, ok := p.expectKind(Primitive, "type")
		if !ok {
			return nil, false
		}
		namePos := p.pos
		nameTok, ok := p.expectKind(Identifier, "identifier")
		if !ok {
			return nil, false
		}
		typ, _ := ParsePrimitive(typTok.Text)
		decl := &VarDecl{Name: nameTok.Text, Typ: typ, Frame: p.frame}

		// The initializer is parsed before the name is bound, so it sees
		// any outer declaration of the same name.
		if p.match(Operator, "=") {
			init, ok := p.parseValue(typ)
			if !ok {
				return nil, false
			}
			decl.Init = init
		}

		sym, err := p.scopes.Bind(p.frame, nameTok.Text, typ, false)
		if err != nil {
			p.fatal = p.errorAt(namePos, ErrRedeclared, "%q already declared in this scope", nameTok.Text)
			return nil, false
		}
		decl.Sym = sym
		return decl, true
	})
}

func (p *Parser) parseAssign() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		namePos := p.pos
		nameTok, ok := p.expectKind(Identifier, "identifier")
		if !ok || !p.expect(Operator, "=") {
			return nil, false
		}
		sym, found := p.scopes.Lookup(p.frame, nameTok.Text)
		if !found {
			return nil, p.reject(namePos, ErrUndeclared, "%q is not declared", nameTok.Text)
		}
		if sym.IsFunction {
			return nil, p.reject(namePos, ErrTypeMismatch, "cannot assign to function %q", nameTok.Text)
		}
		value, ok := p.parseValue(sym.Type)
		if !ok {
			return nil, false
		}
		return &Assign{Name: nameTok.Text, Value: value, Frame: p.frame, Sym: sym}, true
	})
}

func (p *Parser) parseCallStmt() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		call, ok := p.parseCall(nil, "")
		if !ok {
			return nil, false
		}
		return &ExprStmt{X: call}, true
	})
}

// parseExprStmt accepts any boolean or arithmetic expression as a statement.
func (p *Parser) parseExprStmt() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		x, ok := first(p, p.parseCond, p.parseArith)
		if !ok {
			return nil, false
		}
		return &ExprStmt{X: x}, true
	})
}

func (p *Parser) parseIf() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		if !p.expect(Keyword, "if") {
			return nil, false
		}
		stmt, ok := p.parseIfRest()
		if !ok {
			return nil, false
		}
		return stmt, true
	})
}

// parseIfRest parses everything after an "if" or "elif" keyword.
func (p *Parser) parseIfRest() (*IfStmt, bool) {
	return attempt(p, func() (*IfStmt, bool) {
		cond, ok := p.parseParenCond()
		if !ok {
			return nil, false
		}
		then, ok := p.parseBlockIn(p.scopes.EnterChild(p.frame))
		if !ok {
			return nil, false
		}
		stmt := &IfStmt{Cond: cond, Then: then}

		switch {
		case p.match(Keyword, "elif"):
			elif, ok := p.parseIfRest()
			if !ok {
				return nil, false
			}
			stmt.Elif = elif
		case p.match(Keyword, "else"):
			els, ok := p.parseBlockIn(p.scopes.EnterChild(p.frame))
			if !ok {
				return nil, false
			}
			stmt.Else = els
		}
		return stmt, true
	})
}

func (p *Parser) parseParenCond() (Expr, bool) {
	return attempt(p, func() (Expr, bool) {
		if !p.expect(Separator, "(") {
			return nil, false
		}
		cond, ok := p.parseCond()
		if !ok || !p.expect(Separator, ")") {
			return nil, false
		}
		return cond, true
	})
}

func (p *Parser) parseWhile() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		if !p.expect(Keyword, "while") {
			return nil, false
		}
		cond, ok := p.parseParenCond()
		if !ok {
			return nil, false
		}
		body, ok := p.parseBlockIn(p.scopes.EnterChild(p.frame))
		if !ok {
			return nil, false
		}
		return &WhileStmt{Cond: cond, Body: body}, true
	})
}

// parseFor binds header declarations into the loop's own frame, which the
// body shares.
func (p *Parser) parseFor() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		if !p.expect(Keyword, "for") || !p.expect(Separator, "(") {
			return nil, false
		}
		outer := p.frame
		p.frame = p.scopes.EnterChild(outer)
		stmt := &ForStmt{}

		if !p.check(Separator, ";") {
			init, ok := first(p, p.parseVarDecl, p.parseAssign, p.parseExprStmt)
			if !ok {
				return nil, false
			}
			stmt.Init = init
		}
		if !p.expect(Separator, ";") {
			return nil, false
		}

		if !p.check(Separator, ";") {
			cond, ok := p.parseCond()
			if !ok {
				return nil, false
			}
			stmt.Cond = cond
		}
		if !p.expect(Separator, ";") {
			return nil, false
		}

		if !p.check(Separator, ")") {
			post, ok := first(p, p.parseAssign, p.parseExprStmt)
			if !ok {
				return nil, false
			}
			stmt.Post = post
		}
		if !p.expect(Separator, ")") {
			return nil, false
		}

		body, ok := p.parseBlockIn(p.frame)
		if !ok {
			return nil, false
		}
		stmt.Body = body
		p.frame = outer
		return stmt, true
	})
}

func (p *Parser) parseReturn() (Stmt, bool) {
	return attempt(p, func() (Stmt, bool) {
		if !p.expect(Keyword, "return") {
			return nil, false
		}
		want := Int
		if p.fn != nil {
			want = p.fn.Type
		}
		value, ok := p.parseValue(want)
		if !ok || !p.expect(Separator, ";") {
			return nil, false
		}
		return &ReturnStmt{Value: value}, true
	})
}
