// Package compiler provides the lexer, scope tree, parser and code generator
// for a small C-like language that targets x86-64 assembly text.
//
// Pipeline: source → Lex → Parse (binds into a ScopeTree) → Generate → asm text
//
// The parser resolves every identifier while it parses, so the syntax tree
// it returns is already typed and every block node carries the frame it
// opened. Generate replays those frames in creation order.
package compiler
