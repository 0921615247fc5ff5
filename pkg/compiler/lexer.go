package compiler

import (
	"fmt"
	"strconv"
	"unicode"
)

// keywords maps source text to its token kind for every reserved word.
var keywords = map[string]TokenKind{
	"if":     Keyword,
	"elif":   Keyword,
	"else":   Keyword,
	"while":  Keyword,
	"for":    Keyword,
	"return": Keyword,
	"true":   Keyword,
	"false":  Keyword,
	"int":    Primitive,
	"bool":   Primitive,
	"char":   Primitive,
}

// twoCharOps lists the operators that are recognised before their one-rune prefixes.
var twoCharOps = map[string]bool{
	"==": true,
	"!=": true,
	"<=": true,
	">=": true,
	"&&": true,
	"||": true,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything up to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
}

func (l *Lexer) scanWord() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	text := string(l.src[start:l.pos])
	kind := Identifier
	if kw, ok := keywords[text]; ok {
		kind = kw
	}
	return Token{Kind: kind, Text: text, Line: line}
}

func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if r := l.peek(); unicode.IsLetter(r) || r == '_' {
		return Token{}, fmt.Errorf("malformed number %q on line %d", string(l.src[start:l.pos+1]), line)
	}
	text := string(l.src[start:l.pos])
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		return Token{}, fmt.Errorf("integer constant %s out of range on line %d", text, line)
	}
	return Token{Kind: Constant, Text: text, Line: line}, nil
}

// scanChar collects a character literal 'c' and yields its code as a constant.
func (l *Lexer) scanChar() (Token, error) {
	line := l.line
	l.advance() // opening '

	r := l.peek()
	var val rune

	switch r {
	case '\'':
		return Token{}, fmt.Errorf("empty character literal on line %d", line)
	case 0, '\n':
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	case '\\':
		l.advance()
		next := l.peek()
		switch next {
		case 'n':
			val = '\n'
		case 'r':
			val = '\r'
		case 't':
			val = '\t'
		case '0':
			val = 0
		case '\\':
			val = '\\'
		case '\'':
			val = '\''
		default:
			return Token{}, fmt.Errorf("unknown escape sequence \\%c on line %d", next, line)
		}
		l.advance()
	default:
		val = r
		l.advance()
	}

	if l.peek() != '\'' {
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	}
	l.advance() // closing '

	return Token{Kind: Constant, Text: strconv.Itoa(int(val)), Line: line}, nil
}

// nextToken skips whitespace and comments and returns the next Token.
// ok is false once the input is exhausted.
func (l *Lexer) nextToken() (tok Token, ok bool, err error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{}, false, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, false, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	line := l.line

	switch {
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanWord(), true, nil
	case unicode.IsDigit(ch):
		tok, err := l.scanNumber()
		return tok, err == nil, err
	case ch == '\'':
		tok, err := l.scanChar()
		return tok, err == nil, err
	}

	if pair := string([]rune{ch, l.peek2()}); twoCharOps[pair] {
		l.advance()
		l.advance()
		return Token{Kind: Operator, Text: pair, Line: line}, true, nil
	}

	l.advance()
	switch ch {
	case '(', ')', '{', '}', ';', ',':
		return Token{Kind: Separator, Text: string(ch), Line: line}, true, nil
	case '+', '-', '*', '/', '=', '<', '>', '!':
		return Token{Kind: Operator, Text: string(ch), Line: line}, true, nil
	default:
		return Token{}, false, fmt.Errorf("unexpected character %q on line %d", ch, line)
	}
}

// Lex tokenises src. The result does not include an EOF token; the parser
// treats any position past the end of the slice as end of input.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, ok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}
