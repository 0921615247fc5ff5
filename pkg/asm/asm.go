package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/adahad27/compiler/pkg/cpu"
)

// operand shapes accepted by each mnemonic group
var zeroOperandOps = map[string]bool{
	"nop": true, "cqo": true, "ret": true, "syscall": true,
}

var oneOperandOps = map[string]bool{
	"neg": true, "idiv": true, "push": true, "pop": true,
}

var branchOps = map[string]bool{
	"jmp": true, "je": true, "jne": true, "jl": true, "jle": true,
	"jg": true, "jge": true, "call": true,
}

var twoOperandOps = map[string]bool{
	"mov": true, "add": true, "sub": true, "imul": true,
	"and": true, "or": true, "xor": true, "cmp": true,
}

// Assembler turns the NASM subset the compiler emits into a cpu.Program.
type Assembler struct {
	labels map[string]int
	entry  string
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble assembles code with a fresh Assembler. The source map sends every
// instruction index to the 1-based line it came from.
func Assemble(code string) (*cpu.Program, map[int]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*cpu.Program, map[int]int, error) {
	lines := strings.Split(code, "\n")

	parsed, err := a.pass1(lines)
	if err != nil {
		return nil, nil, err
	}

	return a.pass2(parsed)
}

// pass1 parses every line and gives each label the index of the next
// instruction.
func (a *Assembler) pass1(lines []string) ([]parsedLine, error) {
	var parsed []parsedLine
	index := 0

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return nil, fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = index
		}

		switch p.mnemonic {
		case "":
			continue
		case "global":
			if len(p.operands) != 1 || !isIdentifier(p.operands[0]) {
				return nil, fmt.Errorf("global expects exactly one symbol on line %d", lineNo)
			}
			a.entry = p.operands[0]
			continue
		case "section":
			continue
		}

		if !isMnemonic(p.mnemonic) {
			return nil, fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		parsed = append(parsed, p)
		index++
	}

	return parsed, nil
}

func (a *Assembler) pass2(parsed []parsedLine) (*cpu.Program, map[int]int, error) {
	prog := &cpu.Program{
		Code:   make([]cpu.Instruction, 0, len(parsed)),
		Labels: a.labels,
	}
	sourceMap := make(map[int]int, len(parsed))

	for _, p := range parsed {
		in, err := a.decode(p)
		if err != nil {
			return nil, nil, err
		}
		sourceMap[len(prog.Code)] = p.lineNo
		prog.Code = append(prog.Code, in)
	}

	entry := a.entry
	if entry == "" {
		entry = "_start"
	}
	start, ok := a.labels[entry]
	if !ok {
		return nil, nil, fmt.Errorf("entry point '%s' is not defined", entry)
	}
	prog.Entry = start

	return prog, sourceMap, nil
}

func (a *Assembler) decode(p parsedLine) (cpu.Instruction, error) {
	op, _ := cpu.OpcodeByMnemonic(p.mnemonic)
	in := cpu.Instruction{Op: op, Line: p.lineNo}

	want := 2
	switch {
	case zeroOperandOps[p.mnemonic]:
		want = 0
	case oneOperandOps[p.mnemonic], branchOps[p.mnemonic]:
		want = 1
	}
	if len(p.operands) != want {
		return in, fmt.Errorf("%s expects %d operands on line %d, got %d", p.mnemonic, want, p.lineNo, len(p.operands))
	}

	if branchOps[p.mnemonic] {
		target := p.operands[0]
		idx, ok := a.labels[target]
		if !ok {
			if isIdentifier(target) {
				return in, fmt.Errorf("undefined label '%s' on line %d", target, p.lineNo)
			}
			return in, fmt.Errorf("invalid jump target '%s' on line %d", target, p.lineNo)
		}
		in.Dst = cpu.Operand{Kind: cpu.KindTarget, Imm: int64(idx)}
		return in, nil
	}

	if want >= 1 {
		dst, err := parseOperand(p.operands[0], p.lineNo)
		if err != nil {
			return in, err
		}
		in.Dst = dst
	}
	if want == 2 {
		src, err := parseOperand(p.operands[1], p.lineNo)
		if err != nil {
			return in, err
		}
		in.Src = src
	}

	return in, checkShape(p, in)
}

// checkShape rejects operand combinations x86-64 cannot encode.
func checkShape(p parsedLine, in cpu.Instruction) error {
	dst, src := in.Dst, in.Src
	switch {
	case dst.Kind == cpu.KindImm && p.mnemonic != "push":
		return fmt.Errorf("%s cannot write to an immediate on line %d", p.mnemonic, p.lineNo)
	case dst.Kind == cpu.KindMem && src.Kind == cpu.KindMem:
		return fmt.Errorf("%s cannot take two memory operands on line %d", p.mnemonic, p.lineNo)
	case src.Kind == cpu.KindImm && !fitsInt32(src.Imm) && !(p.mnemonic == "mov" && dst.Kind == cpu.KindReg):
		return fmt.Errorf("immediate out of range on line %d: %d", p.lineNo, src.Imm)
	case p.mnemonic == "push" && dst.Kind == cpu.KindImm && !fitsInt32(dst.Imm):
		return fmt.Errorf("immediate out of range on line %d: %d", p.lineNo, dst.Imm)
	case p.mnemonic == "idiv" && dst.Kind == cpu.KindImm:
		return fmt.Errorf("idiv cannot take an immediate on line %d", p.lineNo)
	}
	return nil
}

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t[") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	if m, r, ok := strings.Cut(line, "\t"); ok && len(m) < len(mnemonic) {
		mnemonic, rest = m, r
	}
	p.mnemonic = strings.ToLower(mnemonic)

	rest = strings.TrimSpace(rest)
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
	}

	return p, nil
}

func stripComments(line string) string {
	if cut := strings.IndexByte(line, ';'); cut >= 0 {
		return line[:cut]
	}
	return line
}

func isMnemonic(m string) bool {
	return zeroOperandOps[m] || oneOperandOps[m] || branchOps[m] || twoOperandOps[m]
}

// parseOperand reads a register, an integer or qword [reg+disp].
func parseOperand(token string, lineNo int) (cpu.Operand, error) {
	lower := strings.ToLower(token)
	if r, ok := cpu.RegByName(lower); ok {
		return cpu.Operand{Kind: cpu.KindReg, Reg: r}, nil
	}

	if strings.HasSuffix(lower, "]") {
		return parseMemory(lower, lineNo)
	}

	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return cpu.Operand{Kind: cpu.KindImm, Imm: v}, nil
	}

	return cpu.Operand{}, fmt.Errorf("invalid operand '%s' on line %d", token, lineNo)
}

func parseMemory(token string, lineNo int) (cpu.Operand, error) {
	bad := func() (cpu.Operand, error) {
		return cpu.Operand{}, fmt.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}

	body := strings.TrimSpace(strings.TrimPrefix(token, "qword"))
	if !strings.HasPrefix(body, "[") {
		return bad()
	}
	body = strings.TrimSpace(body[1 : len(body)-1])

	base, disp := body, ""
	if i := strings.IndexAny(body, "+-"); i > 0 {
		base, disp = strings.TrimSpace(body[:i]), strings.ReplaceAll(body[i:], " ", "")
	}
	r, ok := cpu.RegByName(base)
	if !ok {
		return bad()
	}

	op := cpu.Operand{Kind: cpu.KindMem, Reg: r}
	if disp != "" {
		v, err := strconv.ParseInt(disp, 0, 64)
		if err != nil || !fitsInt32(v) {
			return bad()
		}
		op.Imm = v
	}
	return op, nil
}

// isIdentifier accepts NASM symbol names, including local labels that start
// with a dot.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
