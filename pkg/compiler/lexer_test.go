package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestLex(t *testing.T) {
	src := `int main() {
    // comment
    bool ok = x <= 10 && !done; /* block
    comment */ return 'a';
}`
	tokens, err := Lex(src)
	be.Err(t, err, nil)

	want := []Token{
		{Primitive, "int", 1},
		{Identifier, "main", 1},
		{Separator, "(", 1},
		{Separator, ")", 1},
		{Separator, "{", 1},
		{Primitive, "bool", 3},
		{Identifier, "ok", 3},
		{Operator, "=", 3},
		{Identifier, "x", 3},
		{Operator, "<=", 3},
		{Constant, "10", 3},
		{Operator, "&&", 3},
		{Operator, "!", 3},
		{Identifier, "done", 3},
		{Separator, ";", 3},
		{Keyword, "return", 4},
		{Constant, "97", 4},
		{Separator, ";", 4},
		{Separator, "}", 5},
	}
	be.Equal(t, tokens, want)
}

func TestLexOperators(t *testing.T) {
	tokens, err := Lex("== != < <= > >= && || ! = + - * /")
	be.Err(t, err, nil)
	var texts []string
	for _, tok := range tokens {
		be.Equal(t, tok.Kind, Operator)
		texts = append(texts, tok.Text)
	}
	be.Equal(t, texts, []string{"==", "!=", "<", "<=", ">", ">=", "&&", "||", "!", "=", "+", "-", "*", "/"})
}

func TestLexKeywords(t *testing.T) {
	tokens, err := Lex("if elif else while for return true false iffy")
	be.Err(t, err, nil)
	for _, tok := range tokens[:8] {
		be.Equal(t, tok.Kind, Keyword)
	}
	be.Equal(t, tokens[8], Token{Identifier, "iffy", 1})
}

func TestLexCharLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`'a'`, "97"},
		{`'\n'`, "10"},
		{`'\t'`, "9"},
		{`'\0'`, "0"},
		{`'\\'`, "92"},
		{`'\''`, "39"},
	}
	for _, tc := range tests {
		tokens, err := Lex(tc.src)
		be.Err(t, err, nil)
		be.Equal(t, tokens, []Token{{Constant, tc.want, 1}})
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"illegal character", "int x = 1 $ 2;", `unexpected character '$' on line 1`},
		{"unterminated comment", "int x;\n/* never closed", "unterminated block comment (opened on line 2)"},
		{"empty char", "''", "empty character literal"},
		{"unterminated char", "'ab'", "unterminated character literal"},
		{"bad escape", `'\q'`, `unknown escape sequence \q`},
		{"malformed number", "12abc", `malformed number "12a"`},
		{"out of range", "99999999999999999999", "out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lex(tc.src)
			be.Err(t, err, tc.want)
		})
	}
}

func TestLexEmpty(t *testing.T) {
	tokens, err := Lex("  // nothing here\n")
	be.Err(t, err, nil)
	be.Equal(t, len(tokens), 0)
}
