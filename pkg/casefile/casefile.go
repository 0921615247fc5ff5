// Package casefile reads compile cases written as Markdown.
//
// A case starts at a heading "Test: <name>" and is followed by fenced code
// blocks:
//
//	```c-program      the source to compile (exactly one)
//	```asm-contains   lines that must each appear in the generated assembly
//	```exit-code      exit status of the emulated program
//	```compile-error  substring of the error compilation must fail with
//
// Untagged fences are commentary and are ignored.
package casefile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is the info string of a recognised code block.
type Fence string

const (
	FenceProgram      Fence = "c-program"
	FenceAsmContains  Fence = "asm-contains"
	FenceExitCode     Fence = "exit-code"
	FenceCompileError Fence = "compile-error"
)

// Case is one compile case extracted from a document.
type Case struct {
	Name   string
	File   string // path the case was loaded from, empty for Extract
	Line   int    // line of the heading
	Source string

	AsmContains  []string
	ExitCode     *int64 // nil when the exit status is not checked
	CompileError string // non-empty when compilation must fail
}

// WantsError reports whether the case expects compilation to fail.
func (c Case) WantsError() bool { return c.CompileError != "" }

// Extract parses markdown and returns every case in document order.
func Extract(markdown []byte) ([]Case, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(markdown))

	var cases []Case
	var current *Case

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, markdown)
			name, ok := strings.CutPrefix(heading, "Test: ")
			if !ok {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{Name: strings.TrimSpace(name), Line: lineOf(n, markdown)}

		case *ast.FencedCodeBlock:
			lang := Fence(n.Language(markdown))
			if lang == "" {
				return ast.WalkContinue, nil
			}
			line := lineOf(n, markdown)
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of a test case", line, lang)
			}
			if err := current.add(lang, blockContent(n, markdown), line); err != nil {
				return ast.WalkStop, err
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("casefile: %w", err)
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("casefile: %w", err)
	}
	return cases, nil
}

func (c *Case) add(lang Fence, content string, line int) error {
	content = strings.TrimRight(content, "\n")
	switch lang {
	case FenceProgram:
		if c.Source != "" {
			return fmt.Errorf("line %d: multiple %s fences in test '%s'", line, lang, c.Name)
		}
		c.Source = content
	case FenceAsmContains:
		for _, l := range strings.Split(content, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				c.AsmContains = append(c.AsmContains, l)
			}
		}
	case FenceExitCode:
		v, err := strconv.ParseInt(strings.TrimSpace(content), 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid exit code in test '%s': %w", line, c.Name, err)
		}
		c.ExitCode = &v
	case FenceCompileError:
		c.CompileError = strings.TrimSpace(content)
		if c.CompileError == "" {
			return fmt.Errorf("line %d: empty %s fence in test '%s'", line, lang, c.Name)
		}
	default:
		return fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, c.Name)
	}
	return nil
}

func validate(c *Case) error {
	if c.Source == "" {
		return fmt.Errorf("test '%s' has no %s fence", c.Name, FenceProgram)
	}
	hasCheck := len(c.AsmContains) > 0 || c.ExitCode != nil
	if !hasCheck && !c.WantsError() {
		return fmt.Errorf("test '%s' has no assertion fences", c.Name)
	}
	if hasCheck && c.WantsError() {
		return fmt.Errorf("test '%s' expects a compile error and also checks its output", c.Name)
	}
	return nil
}

// Load reads every file matching pattern, for example "testdata/*_test.md".
func Load(pattern string) ([]Case, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("casefile: %w", err)
	}
	var all []Case
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("casefile: %w", err)
		}
		cases, err := Extract(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for i := range cases {
			cases[i].File = path
		}
		all = append(all, cases...)
	}
	return all, nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 0
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
