package compiler

import (
	"fmt"
	"math"
	"strconv"
)

var arithMnemonics = map[Op]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "imul",
}

// jumpIfTrue maps a comparison to the conditional jump taken when it holds.
var jumpIfTrue = map[Op]string{
	OpLess:      "jl",
	OpLessEq:    "jle",
	OpGreater:   "jg",
	OpGreaterEq: "jge",
	OpEq:        "je",
	OpNotEq:     "jne",
}

// operand is the source side of a two-operand instruction.
type operand struct {
	text  string
	isReg bool
	temp  Register // allocated for this operand, freed by release
}

func (cg *CodeGen) release(o operand) {
	if o.temp != NoRegister {
		cg.regs.Free(o.temp)
	}
}

// leafOperand renders a leaf that can be used directly as a source operand
// without first loading it into a register of its own.
func (cg *CodeGen) leafOperand(e Expr) (operand, bool) {
	leaf, ok := e.(*Leaf)
	if !ok {
		return operand{}, false
	}
	switch leaf.Kind {
	case TermConstant, TermBool:
		if leaf.Value < math.MinInt32 || leaf.Value > math.MaxInt32 {
			return operand{}, false
		}
		return operand{text: strconv.FormatInt(leaf.Value, 10), temp: NoRegister}, true
	case TermIdent:
		if r, cached := cg.regs.Cached(leaf.Sym); cached {
			return operand{text: cg.regs.Name(r), isReg: true, temp: NoRegister}, true
		}
		return operand{text: slot(leaf.Sym), temp: NoRegister}, true
	}
	return operand{}, false
}

// rightOperand prepares the right side of a binary operation. Leaves are
// used in place; anything else gets its own register.
func (cg *CodeGen) rightOperand(e Expr) (operand, error) {
	if o, ok := cg.leafOperand(e); ok {
		return o, nil
	}
	r, err := cg.genExpr(e)
	if err != nil {
		return operand{}, err
	}
	return operand{text: cg.regs.Name(r), isReg: true, temp: r}, nil
}

// genExpr evaluates e into a newly allocated register. The caller frees it.
func (cg *CodeGen) genExpr(e Expr) (Register, error) {
	switch n := e.(type) {
	case *Leaf:
		return cg.genLeaf(n)
	case *BinaryOp:
		switch {
		case n.Op.IsLogical():
			return cg.genLogical(n)
		case n.Op.IsComparison():
			return cg.genCompare(n)
		default:
			return cg.genArith(n)
		}
	case *UnaryOp:
		r, err := cg.genExpr(n.X)
		if err != nil {
			return NoRegister, err
		}
		switch n.Op {
		case OpNot:
			cg.emit("xor %s, 1", cg.regs.Name(r))
		case OpNeg:
			cg.emit("neg %s", cg.regs.Name(r))
		default:
			cg.regs.Free(r)
			return NoRegister, fmt.Errorf("codegen: unknown unary operator %s", n.Op)
		}
		return r, nil
	case *Call:
		return cg.genCall(n)
	default:
		return NoRegister, fmt.Errorf("codegen: unknown expression type %T", e)
	}
}

func (cg *CodeGen) genLeaf(leaf *Leaf) (Register, error) {
	var src string
	switch leaf.Kind {
	case TermConstant, TermBool:
		src = strconv.FormatInt(leaf.Value, 10)
	case TermIdent:
		if r, cached := cg.regs.Cached(leaf.Sym); cached {
			src = cg.regs.Name(r)
		} else {
			src = slot(leaf.Sym)
		}
	}
	r, err := cg.regs.Allocate()
	if err != nil {
		return NoRegister, err
	}
	// Allocate may hand back the very register that caches the value.
	if dst := cg.regs.Name(r); dst != src {
		cg.emit("mov %s, %s", dst, src)
	}
	return r, nil
}

// genArith accumulates into the left operand's register.
func (cg *CodeGen) genArith(n *BinaryOp) (Register, error) {
	acc, err := cg.genExpr(n.Left)
	if err != nil {
		return NoRegister, err
	}
	src, err := cg.rightOperand(n.Right)
	if err != nil {
		cg.regs.Free(acc)
		return NoRegister, err
	}
	dst := cg.regs.Name(acc)

	if n.Op == OpDiv {
		cg.emit("mov rax, %s", dst)
		cg.emit("cqo")
		if src.isReg {
			cg.emit("idiv %s", src.text)
		} else {
			cg.emit("mov %s, %s", scratch, src.text)
			cg.emit("idiv %s", scratch)
		}
		cg.emit("mov %s, rax", dst)
	} else {
		mnemonic, ok := arithMnemonics[n.Op]
		if !ok {
			cg.release(src)
			cg.regs.Free(acc)
			return NoRegister, fmt.Errorf("codegen: unknown arithmetic operator %s", n.Op)
		}
		cg.emit("%s %s, %s", mnemonic, dst, src.text)
	}
	cg.release(src)
	return acc, nil
}

// genCompare materialises a comparison as 0 or 1 through control flow.
func (cg *CodeGen) genCompare(n *BinaryOp) (Register, error) {
	acc, err := cg.genExpr(n.Left)
	if err != nil {
		return NoRegister, err
	}
	src, err := cg.rightOperand(n.Right)
	if err != nil {
		cg.regs.Free(acc)
		return NoRegister, err
	}
	dst := cg.regs.Name(acc)
	cg.emit("cmp %s, %s", dst, src.text)
	cg.release(src)

	isTrue, done := cg.labels.New(), cg.labels.New()
	cg.emit("%s %s", jumpIfTrue[n.Op], isTrue)
	cg.emit("mov %s, 0", dst)
	cg.emit("jmp %s", done)
	cg.label(isTrue)
	cg.emit("mov %s, 1", dst)
	cg.label(done)
	return acc, nil
}

// genLogical lowers && and || without evaluating the right operand once the
// left one has decided the result.
func (cg *CodeGen) genLogical(n *BinaryOp) (Register, error) {
	shortValue := 0
	if n.Op == OpOr {
		shortValue = 1
	}

	acc, err := cg.genExpr(n.Left)
	if err != nil {
		return NoRegister, err
	}
	dst := cg.regs.Name(acc)
	short, done := cg.labels.New(), cg.labels.New()

	cg.emit("cmp %s, %d", dst, shortValue)
	cg.emit("je %s", short)
	// Booleans are 0 or 1, so the right operand's value is the result.
	src, err := cg.rightOperand(n.Right)
	if err != nil {
		cg.regs.Free(acc)
		return NoRegister, err
	}
	cg.emit("mov %s, %s", dst, src.text)
	cg.release(src)
	cg.emit("jmp %s", done)
	cg.label(short)
	cg.emit("mov %s, %d", dst, shortValue)
	cg.label(done)
	return acc, nil
}

// genCall pushes the arguments right to left, pops the first ones into the
// argument registers and leaves the rest on the stack for the callee.
func (cg *CodeGen) genCall(c *Call) (Register, error) {
	for i := len(c.Args) - 1; i >= 0; i-- {
		r, err := cg.genExpr(c.Args[i])
		if err != nil {
			return NoRegister, err
		}
		cg.emit("push %s", cg.regs.Name(r))
		cg.regs.Free(r)
	}
	inRegs := min(len(c.Args), len(cg.opts.ArgRegisters))
	for i := 0; i < inRegs; i++ {
		cg.emit("pop %s", cg.opts.ArgRegisters[i])
	}
	cg.emit("call %s", c.Name)
	if onStack := len(c.Args) - inRegs; onStack > 0 {
		cg.emit("add rsp, %d", onStack*WordSize)
	}

	r, err := cg.regs.Allocate()
	if err != nil {
		return NoRegister, err
	}
	cg.emit("mov %s, rax", cg.regs.Name(r))
	return r, nil
}
