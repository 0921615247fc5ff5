package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Opcode identifies the operation an Instruction performs.
type Opcode uint8

const (
	OpNOP Opcode = iota
	OpMOV
	OpADD
	OpSUB
	OpIMUL
	OpIDIV
	OpCQO
	OpNEG
	OpAND
	OpOR
	OpXOR
	OpCMP
	OpJMP
	OpJE
	OpJNE
	OpJL
	OpJLE
	OpJG
	OpJGE
	OpPUSH
	OpPOP
	OpCALL
	OpRET
	OpSYSCALL
)

var opNames = [...]string{
	OpNOP:     "nop",
	OpMOV:     "mov",
	OpADD:     "add",
	OpSUB:     "sub",
	OpIMUL:    "imul",
	OpIDIV:    "idiv",
	OpCQO:     "cqo",
	OpNEG:     "neg",
	OpAND:     "and",
	OpOR:      "or",
	OpXOR:     "xor",
	OpCMP:     "cmp",
	OpJMP:     "jmp",
	OpJE:      "je",
	OpJNE:     "jne",
	OpJL:      "jl",
	OpJLE:     "jle",
	OpJG:      "jg",
	OpJGE:     "jge",
	OpPUSH:    "push",
	OpPOP:     "pop",
	OpCALL:    "call",
	OpRET:     "ret",
	OpSYSCALL: "syscall",
}

func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// OpcodeByMnemonic maps an assembler mnemonic to its opcode.
func OpcodeByMnemonic(m string) (Opcode, bool) {
	for i, name := range opNames {
		if name == m {
			return Opcode(i), true
		}
	}
	return 0, false
}

// IsJump reports whether o transfers control to a label operand.
func (o Opcode) IsJump() bool {
	return o >= OpJMP && o <= OpJGE || o == OpCALL
}

// Reg is a general purpose register, numbered as in the x86-64 encoding.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NumRegs
)

var regNames = [NumRegs]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string {
	if r < NumRegs {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", uint8(r))
}

// RegByName resolves a 64-bit register name.
func RegByName(name string) (Reg, bool) {
	for i, n := range regNames {
		if n == name {
			return Reg(i), true
		}
	}
	return 0, false
}

// OperandKind says how an Operand is read or written.
type OperandKind uint8

const (
	KindNone OperandKind = iota
	KindReg
	KindImm
	KindMem    // qword [Base+Disp]
	KindTarget // instruction index of a label
)

// Operand is one instruction argument. Imm holds the immediate value, the
// memory displacement or the jump target depending on Kind.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Imm  int64
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return o.Reg.String()
	case KindImm:
		return fmt.Sprint(o.Imm)
	case KindMem:
		if o.Imm < 0 {
			return fmt.Sprintf("qword [%s-%d]", o.Reg, -o.Imm)
		}
		return fmt.Sprintf("qword [%s+%d]", o.Reg, o.Imm)
	case KindTarget:
		return fmt.Sprintf("@%d", o.Imm)
	}
	return ""
}

// Instruction is one decoded assembly line. Line is the 1-based source line
// it came from.
type Instruction struct {
	Op   Opcode
	Dst  Operand
	Src  Operand
	Line int
}

func (in Instruction) String() string {
	switch {
	case in.Src.Kind != KindNone:
		return fmt.Sprintf("%s %s, %s", in.Op, in.Dst, in.Src)
	case in.Dst.Kind != KindNone:
		return fmt.Sprintf("%s %s", in.Op, in.Dst)
	}
	return in.Op.String()
}

// Program is an assembled image: decoded instructions, the index execution
// starts at and every label's instruction index.
type Program struct {
	Code   []Instruction
	Entry  int
	Labels map[string]int
}

var (
	ErrBadAddress   = errors.New("memory access out of bounds")
	ErrStackFault   = errors.New("stack overflow or underflow")
	ErrDivideError  = errors.New("divide error")
	ErrBadSyscall   = errors.New("unsupported syscall")
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrPCOutOfRange = errors.New("program counter out of range")
	ErrBadOperand   = errors.New("invalid operand")
	ErrHalted       = errors.New("cpu halted")
)

const (
	// SysExit is the only system call the emulator implements.
	SysExit = 60

	// returnSentinel is pushed below the entry frame. Returning to it halts
	// with rax as the exit code.
	returnSentinel = -1

	DefaultStackSize = 1 << 16
	DefaultMaxSteps  = 10_000_000
)

// CPU executes a Program over a flat little-endian stack memory. The stack
// grows down from the top of Memory.
type CPU struct {
	Regs [NumRegs]int64
	PC   int

	ZF bool
	SF bool
	OF bool

	Memory []byte

	Halted   bool
	ExitCode int64

	Steps    int
	MaxSteps int // zero means no limit

	prog *Program
}

// NewCPU prepares prog for execution with stackSize bytes of memory.
func NewCPU(prog *Program, stackSize int) *CPU {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	stackSize = max(stackSize&^7, 8)
	c := &CPU{
		Memory:   make([]byte, stackSize),
		MaxSteps: DefaultMaxSteps,
		prog:     prog,
		PC:       prog.Entry,
	}
	c.Regs[RSP] = int64(stackSize)
	// memory always holds at least this one word
	_ = c.push(returnSentinel)
	return c
}

func (c *CPU) Read64(addr int64) (int64, error) {
	if addr < 0 || addr > int64(len(c.Memory))-8 {
		return 0, fmt.Errorf("%w: read at %d", ErrBadAddress, addr)
	}
	return int64(binary.LittleEndian.Uint64(c.Memory[addr:])), nil
}

func (c *CPU) Write64(addr int64, val int64) error {
	if addr < 0 || addr > int64(len(c.Memory))-8 {
		return fmt.Errorf("%w: write at %d", ErrBadAddress, addr)
	}
	binary.LittleEndian.PutUint64(c.Memory[addr:], uint64(val))
	return nil
}

func (c *CPU) push(val int64) error {
	sp := c.Regs[RSP] - 8
	if sp < 0 {
		return fmt.Errorf("%w: push with rsp=%d", ErrStackFault, c.Regs[RSP])
	}
	c.Regs[RSP] = sp
	return c.Write64(sp, val)
}

func (c *CPU) pop() (int64, error) {
	sp := c.Regs[RSP]
	if sp > int64(len(c.Memory))-8 {
		return 0, fmt.Errorf("%w: pop with rsp=%d", ErrStackFault, sp)
	}
	v, err := c.Read64(sp)
	if err != nil {
		return 0, err
	}
	c.Regs[RSP] = sp + 8
	return v, nil
}

func (c *CPU) read(o Operand) (int64, error) {
	switch o.Kind {
	case KindReg:
		return c.Regs[o.Reg], nil
	case KindImm:
		return o.Imm, nil
	case KindMem:
		return c.Read64(c.Regs[o.Reg] + o.Imm)
	}
	return 0, fmt.Errorf("%w: cannot read %v", ErrBadOperand, o)
}

func (c *CPU) write(o Operand, val int64) error {
	switch o.Kind {
	case KindReg:
		c.Regs[o.Reg] = val
		return nil
	case KindMem:
		return c.Write64(c.Regs[o.Reg]+o.Imm, val)
	}
	return fmt.Errorf("%w: cannot write %v", ErrBadOperand, o)
}

func (c *CPU) setResultFlags(result int64) {
	c.ZF = result == 0
	c.SF = result < 0
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}
	if c.PC < 0 || c.PC >= len(c.prog.Code) {
		return fmt.Errorf("%w: pc=%d", ErrPCOutOfRange, c.PC)
	}
	if c.MaxSteps > 0 && c.Steps >= c.MaxSteps {
		return fmt.Errorf("%w: %d steps", ErrStepLimit, c.Steps)
	}
	in := c.prog.Code[c.PC]
	c.Steps++
	if err := c.exec(in); err != nil {
		return fmt.Errorf("line %d: %s: %w", in.Line, in, err)
	}
	return nil
}

func (c *CPU) exec(in Instruction) error {
	next := c.PC + 1

	switch in.Op {
	case OpNOP:

	case OpMOV:
		v, err := c.read(in.Src)
		if err != nil {
			return err
		}
		if err := c.write(in.Dst, v); err != nil {
			return err
		}

	case OpADD, OpSUB, OpIMUL, OpAND, OpOR, OpXOR, OpCMP:
		a, err := c.read(in.Dst)
		if err != nil {
			return err
		}
		b, err := c.read(in.Src)
		if err != nil {
			return err
		}
		var r int64
		switch in.Op {
		case OpADD:
			r = a + b
			c.OF = (a^r)&(b^r) < 0
		case OpSUB, OpCMP:
			r = a - b
			c.OF = (a^b)&(a^r) < 0
		case OpIMUL:
			r = a * b
			c.OF = a != 0 && (r/a != b || (a == -1 && b == math.MinInt64))
		case OpAND:
			r = a & b
			c.OF = false
		case OpOR:
			r = a | b
			c.OF = false
		case OpXOR:
			r = a ^ b
			c.OF = false
		}
		c.setResultFlags(r)
		if in.Op != OpCMP {
			if err := c.write(in.Dst, r); err != nil {
				return err
			}
		}

	case OpNEG:
		a, err := c.read(in.Dst)
		if err != nil {
			return err
		}
		c.OF = a == math.MinInt64
		c.setResultFlags(-a)
		if err := c.write(in.Dst, -a); err != nil {
			return err
		}

	case OpCQO:
		c.Regs[RDX] = c.Regs[RAX] >> 63

	case OpIDIV:
		d, err := c.read(in.Dst)
		if err != nil {
			return err
		}
		a := c.Regs[RAX]
		if c.Regs[RDX] != a>>63 {
			return fmt.Errorf("%w: rdx:rax does not fit in 64 bits", ErrDivideError)
		}
		if d == 0 || (a == math.MinInt64 && d == -1) {
			return fmt.Errorf("%w: %d / %d", ErrDivideError, a, d)
		}
		c.Regs[RAX] = a / d
		c.Regs[RDX] = a % d

	case OpJMP, OpJE, OpJNE, OpJL, OpJLE, OpJG, OpJGE:
		if c.taken(in.Op) {
			next = int(in.Dst.Imm)
		}

	case OpPUSH:
		v, err := c.read(in.Dst)
		if err != nil {
			return err
		}
		if err := c.push(v); err != nil {
			return err
		}

	case OpPOP:
		v, err := c.pop()
		if err != nil {
			return err
		}
		if err := c.write(in.Dst, v); err != nil {
			return err
		}

	case OpCALL:
		if err := c.push(int64(next)); err != nil {
			return err
		}
		next = int(in.Dst.Imm)

	case OpRET:
		ret, err := c.pop()
		if err != nil {
			return err
		}
		if ret == returnSentinel {
			c.Halted = true
			c.ExitCode = c.Regs[RAX]
			return nil
		}
		next = int(ret)

	case OpSYSCALL:
		if c.Regs[RAX] != SysExit {
			return fmt.Errorf("%w: %d", ErrBadSyscall, c.Regs[RAX])
		}
		c.Halted = true
		c.ExitCode = c.Regs[RDI]
		return nil

	default:
		return fmt.Errorf("unknown opcode %v", in.Op)
	}

	c.PC = next
	return nil
}

// taken evaluates a jump condition against the flags left by the last
// arithmetic or cmp instruction.
func (c *CPU) taken(op Opcode) bool {
	switch op {
	case OpJE:
		return c.ZF
	case OpJNE:
		return !c.ZF
	case OpJL:
		return c.SF != c.OF
	case OpJLE:
		return c.ZF || c.SF != c.OF
	case OpJG:
		return !c.ZF && c.SF == c.OF
	case OpJGE:
		return c.SF == c.OF
	}
	return true
}

// Run steps until the program exits and returns its exit code.
func (c *CPU) Run() (int64, error) {
	for !c.Halted {
		if err := c.Step(); err != nil {
			return 0, err
		}
	}
	return c.ExitCode, nil
}

// Execute runs prog on a fresh CPU.
func Execute(prog *Program, stackSize, maxSteps int) (int64, error) {
	c := NewCPU(prog, stackSize)
	c.MaxSteps = maxSteps
	return c.Run()
}
