package compiler

import (
	"fmt"
	"strings"
)

// Parser consumes the token slice produced by the Lexer, builds the syntax
// tree and binds every declaration into a ScopeTree as it goes.
//
// Grammar:
//
//	program       = functionDecl+ EOF
//	functionDecl  = primitive IDENT "(" params ")" "{" statement* "}"
//	params        = ( primitive IDENT ("," primitive IDENT)* )?
//	statement     = varDecl ";" | assign ";" | call ";" | if | while | for | return
//	varDecl       = primitive IDENT ("=" value)?
//	assign        = IDENT "=" value
//	if            = "if" "(" cond ")" block ("elif" "(" cond ")" block)* ("else" block)?
//	while         = "while" "(" cond ")" block
//	for           = "for" "(" (varDecl | assign | expr)? ";" cond? ";" (assign | expr)? ")" block
//	return        = "return" value ";"
//	cond          = and ("||" and)*
//	and           = equality ("&&" equality)*
//	equality      = not (("==" | "!=") not)*
//	not           = "!" not | boolAtom
//	boolAtom      = relational | "true" | "false" | IDENT | call | "(" cond ")"
//	relational    = arith ("<" | "<=" | ">" | ">=" | "==" | "!=") arith
//	arith         = term (("+" | "-") term)*
//	term          = unary (("*" | "/") unary)*
//	unary         = "-" unary | factor
//	factor        = CONSTANT | IDENT | call | "(" arith ")"
//	call          = IDENT "(" (value ("," value)*)? ")"
//
// A value is a cond when the destination is bool and an arith otherwise.
// Identifiers in arith position must be int or char, in boolAtom position
// bool. Every production runs inside attempt, so one that fails leaves the
// cursor, the current frame and the scope tree as it found them.
type Parser struct {
	tokens      []Token
	pos         int
	scopes      *ScopeTree
	frame       FrameID // frame new declarations bind into
	fn          *Symbol // function whose body is being parsed
	diag        *diagnostics
	fatal       error
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{
		tokens:      tokens,
		scopes:      NewScopeTree(),
		frame:       RootFrame,
		diag:        newDiagnostics(),
		sourceLines: strings.Split(rawSource, "\n"),
	}
}

// Pos returns the cursor position.
func (p *Parser) Pos() int { return p.pos }

// Scopes returns the tree the parser binds into.
func (p *Parser) Scopes() *ScopeTree { return p.scopes }

//  Backtracking

type snapshot struct {
	pos   int
	frame FrameID
	fn    *Symbol
	scope Checkpoint
}

func (p *Parser) save() snapshot {
	return snapshot{pos: p.pos, frame: p.frame, fn: p.fn, scope: p.scopes.Mark()}
}

func (p *Parser) restore(s snapshot) {
	p.pos = s.pos
	p.frame = s.frame
	p.fn = s.fn
	p.scopes.Rollback(s.scope)
}

// attempt runs production and undoes all of its effects if it fails.
func attempt[T any](p *Parser, production func() (T, bool)) (T, bool) {
	var zero T
	if p.fatal != nil {
		return zero, false
	}
	s := p.save()
	v, ok := production()
	if !ok || p.fatal != nil {
		p.restore(s)
		return zero, false
	}
	return v, true
}

// first tries each alternative in order and returns the first that matches.
func first[T any](p *Parser, alternatives ...func() (T, bool)) (T, bool) {
	for _, alt := range alternatives {
		if v, ok := attempt(p, alt); ok {
			return v, true
		}
		if p.fatal != nil {
			break
		}
	}
	var zero T
	return zero, false
}

//  Token access

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Kind: EOF, Line: p.lastLine()}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 0
	}
	return p.tokens[len(p.tokens)-1].Line
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) check(kind TokenKind, text string) bool {
	tok := p.peek()
	return tok.Kind == kind && tok.Text == text
}

// match consumes the current token if it is kind/text. A miss is not
// reported as an expectation; use it for optional tails.
func (p *Parser) match(kind TokenKind, text string) bool {
	if p.check(kind, text) {
		p.pos++
		return true
	}
	return false
}

// expect consumes the current token if it is kind/text and otherwise
// records text as expected at the cursor.
func (p *Parser) expect(kind TokenKind, text string) bool {
	if p.match(kind, text) {
		return true
	}
	p.diag.expect(p.pos, fmt.Sprintf("%q", text))
	return false
}

// expectKind consumes any token of kind, recording what on a miss.
func (p *Parser) expectKind(kind TokenKind, what string) (Token, bool) {
	tok := p.peek()
	if tok.Kind == kind {
		p.pos++
		return tok, true
	}
	p.diag.expect(p.pos, what)
	return Token{}, false
}

// reject records a semantic failure at pos and fails the production.
func (p *Parser) reject(pos int, reason error, format string, args ...any) bool {
	p.diag.semantic(pos, reason, format, args...)
	return false
}

func (p *Parser) tokenAt(pos int) Token {
	if pos >= 0 && pos < len(p.tokens) {
		return p.tokens[pos]
	}
	return Token{Kind: EOF, Line: p.lastLine()}
}

func (p *Parser) snippet(tok Token) string {
	lineIdx := tok.Line - 1
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		return strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return ""
}

// errorAt builds an error for a failure that must abort the whole parse.
func (p *Parser) errorAt(pos int, reason error, format string, args ...any) *ParseError {
	tok := p.tokenAt(pos)
	return &ParseError{
		Pos:     pos,
		Token:   tok,
		Reason:  reason,
		Detail:  fmt.Sprintf(format, args...),
		snippet: p.snippet(tok),
	}
}

// failure reports the furthest point any alternative reached.
func (p *Parser) failure() *ParseError {
	pos := p.diag.pos
	if pos < 0 {
		pos = p.pos
	}
	tok := p.tokenAt(pos)
	return &ParseError{
		Pos:      pos,
		Token:    tok,
		Expected: p.diag.sortedExpected(),
		Reason:   p.diag.reason,
		Detail:   p.diag.detail,
		snippet:  p.snippet(tok),
	}
}

//  Top level

// Parse builds the syntax tree and scope tree for tokens. src is only used
// to quote the offending line in errors and may be empty.
func Parse(tokens []Token, src string) (*Program, *ScopeTree, error) {
	p := NewParser(tokens, src)
	prog, ok := p.parseProgram()
	if p.fatal != nil {
		return nil, nil, p.fatal
	}
	if !ok {
		return nil, nil, p.failure()
	}
	return prog, p.scopes, nil
}

func (p *Parser) parseProgram() (*Program, bool) {
	if err := p.declareFunctions(); err != nil {
		p.fatal = err
		return nil, false
	}

	prog := &Program{}
	for p.peek().Kind != EOF {
		fn, ok := p.parseFunctionDecl()
		if !ok {
			return nil, false
		}
		prog.Functions = append(prog.Functions, fn)
	}
	if len(prog.Functions) == 0 {
		p.diag.expect(p.pos, "function declaration")
		return nil, false
	}
	return prog, true
}

// declareFunctions binds every top-level function signature into the root
// frame before any body is parsed, so calls may refer to functions defined
// further down and functions may recurse. Malformed headers are skipped
// here and reported by the main parse.
func (p *Parser) declareFunctions() error {
	depth := 0
	for i := 0; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		if tok.Kind == Separator {
			switch tok.Text {
			case "{":
				depth++
			case "}":
				depth--
			}
			continue
		}
		if depth != 0 || tok.Kind != Primitive || i+2 >= len(p.tokens) {
			continue
		}
		name, open := p.tokens[i+1], p.tokens[i+2]
		if name.Kind != Identifier || open.Kind != Separator || open.Text != "(" {
			continue
		}
		params, ok := p.scanParams(i + 3)
		if !ok {
			continue
		}
		ret, _ := ParsePrimitive(tok.Text)
		sym, err := p.scopes.Bind(RootFrame, name.Text, ret, true)
		if err != nil {
			return p.errorAt(i+1, ErrRedeclared, "function %q defined more than once", name.Text)
		}
		sym.Params = params
	}
	return nil
}

// scanParams reads "primitive IDENT (, primitive IDENT)* )" starting at i.
func (p *Parser) scanParams(i int) ([]PrimitiveKind, bool) {
	var params []PrimitiveKind
	at := func(j int) Token {
		if j < len(p.tokens) {
			return p.tokens[j]
		}
		return Token{Kind: EOF}
	}
	if t := at(i); t.Kind == Separator && t.Text == ")" {
		return params, true
	}
	for {
		typ, name := at(i), at(i+1)
		if typ.Kind != Primitive || name.Kind != Identifier {
			return nil, false
		}
		k, _ := ParsePrimitive(typ.Text)
		params = append(params, k)
		next := at(i + 2)
		if next.Kind != Separator {
			return nil, false
		}
		switch next.Text {
		case ")":
			return params, true
		case ",":
			i += 3
		default:
			return nil, false
		}
	}
}

func (p *Parser) parseFunctionDecl() (*FunctionDecl, bool) {
	return attempt(p, func() (*FunctionDecl, bool) {
		retTok, ok := p.expectKind(Primitive, "type")
		if !ok {
			return nil, false
		}
		nameTok, ok := p.expectKind(Identifier, "function name")
		if !ok {
			return nil, false
		}
		sym, ok := p.scopes.Lookup(RootFrame, nameTok.Text)
		if !ok || !sym.IsFunction {
			// only reachable when the header is malformed
			p.diag.expect(p.pos, `"("`)
			return nil, false
		}
		if !p.expect(Separator, "(") {
			return nil, false
		}

		ret, _ := ParsePrimitive(retTok.Text)
		fn := &FunctionDecl{Name: nameTok.Text, ReturnType: ret}
		frame := p.scopes.EnterFunction(RootFrame)

		if !p.match(Separator, ")") {
			for {
				typTok, ok := p.expectKind(Primitive, "parameter type")
				if !ok {
					return nil, false
				}
				paramTok, ok := p.expectKind(Identifier, "parameter name")
				if !ok {
					return nil, false
				}
				typ, _ := ParsePrimitive(typTok.Text)
				if _, err := p.scopes.Bind(frame, paramTok.Text, typ, false); err != nil {
					p.fatal = p.errorAt(p.pos-1, ErrRedeclared, "parameter %q declared twice", paramTok.Text)
					return nil, false
				}
				fn.Params = append(fn.Params, Param{Name: paramTok.Text, Typ: typ})
				if p.match(Separator, ")") {
					break
				}
				if !p.expect(Separator, ",") {
					p.diag.expect(p.pos, `")"`)
					return nil, false
				}
			}
		}

		p.fn = sym
		body, ok := p.parseBlockIn(frame)
		if !ok {
			return nil, false
		}
		p.fn = nil
		fn.Body = body
		return fn, true
	})
}

// parseBlockIn parses "{" statement* "}" with declarations binding into frame.
func (p *Parser) parseBlockIn(frame FrameID) (*Block, bool) {
	return attempt(p, func() (*Block, bool) {
		outer := p.frame
		p.frame = frame
		if !p.expect(Separator, "{") {
			return nil, false
		}
		block := &Block{Frame: frame}
		for !p.expect(Separator, "}") {
			s, ok := p.parseStatement()
			if !ok {
				return nil, false
			}
			block.Stmts = append(block.Stmts, s)
		}
		p.frame = outer
		return block, true
	})
}
