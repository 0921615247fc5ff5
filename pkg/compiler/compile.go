package compiler

import (
	"fmt"
	"io"

	"github.com/adahad27/compiler/pkg/asm"
	"github.com/adahad27/compiler/pkg/cpu"
)

// Result holds every stage's output for one compilation.
type Result struct {
	Tokens   []Token
	Program  *Program
	Scopes   *ScopeTree
	Assembly string
	// Image is the assembled program, ready for cpu.NewCPU.
	Image *cpu.Program
}

// Compiler runs the whole pipeline with fixed options.
type Compiler struct {
	opts  Options
	trace io.Writer
}

func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Options returns the options the compiler was built with.
func (c *Compiler) Options() Options { return c.opts }

// SetTrace makes Compile write a dump of every stage to w. A nil w turns
// tracing off.
func (c *Compiler) SetTrace(w io.Writer) { c.trace = w }

func (c *Compiler) tracef(format string, args ...any) {
	if c.trace != nil {
		fmt.Fprintf(c.trace, format, args...)
	}
}

// Compile lexes, parses, generates and assembles src. The assembly step
// checks that the emitted text is well formed and produces an image the
// emulator can run.
func (c *Compiler) Compile(src string) (*Result, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	c.tracef("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		c.tracef("  %s\n", tok)
	}

	prog, scopes, err := Parse(tokens, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	c.tracef("AST\n%s\n\nScopes\n%s\n", prog, scopes)

	assembly, err := Generate(prog, scopes, c.opts)
	if err != nil {
		return nil, fmt.Errorf("codegen error: %w", err)
	}
	c.tracef("Generated Assembly\n%s\n", assembly)

	image, _, err := asm.Assemble(assembly)
	if err != nil {
		return nil, fmt.Errorf("assembly error: %w", err)
	}

	return &Result{
		Tokens:   tokens,
		Program:  prog,
		Scopes:   scopes,
		Assembly: assembly,
		Image:    image,
	}, nil
}

// Compile runs the pipeline with DefaultOptions.
func Compile(src string) (*Result, error) {
	return New(DefaultOptions()).Compile(src)
}
