package compiler

import (
	"fmt"
	"strings"
)

// Options controls target details of the emitted assembly.
type Options struct {
	EntryLabel    string   // symbol the program starts at
	EntryFunction string   // function the entry stub calls
	Registers     []string // allocation pool, in preference order
	ArgRegisters  []string // registers carrying the first arguments of a call
	Comments      bool     // annotate functions and statements
}

// DefaultOptions targets x86-64 Linux with the System V argument registers.
func DefaultOptions() Options {
	return Options{
		EntryLabel:    "_start",
		EntryFunction: "main",
		Registers:     append([]string(nil), DefaultRegisters...),
		ArgRegisters:  []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
	}
}

// scratch is the register division and spilled-argument copies go through.
// It is never part of the pool.
const scratch = "rcx"

// exitSyscall is the Linux x86-64 exit syscall number.
const exitSyscall = 60

// CodeGen walks a Program and emits x86-64 assembly text, one line per
// instruction or label.
type CodeGen struct {
	opts   Options
	scopes *ScopeTree
	regs   *RegisterPool
	labels LabelAllocator
	out    []string
	replay map[FrameID]int // children of each frame consumed so far
	exit   string          // epilogue label of the function being generated
}

func newCodeGen(scopes *ScopeTree, opts Options) *CodeGen {
	return &CodeGen{
		opts:   opts,
		scopes: scopes,
		regs:   NewRegisterPool(opts.Registers),
		replay: make(map[FrameID]int),
	}
}

func (cg *CodeGen) emit(format string, args ...any) {
	cg.out = append(cg.out, "\t"+fmt.Sprintf(format, args...))
}

// label defines name. Control may arrive here from elsewhere, so no
// register is trusted to still hold a variable's value.
func (cg *CodeGen) label(name string) {
	cg.out = append(cg.out, name+":")
	cg.regs.Forget()
}

func (cg *CodeGen) comment(format string, args ...any) {
	if cg.opts.Comments {
		cg.out = append(cg.out, "\t; "+fmt.Sprintf(format, args...))
	}
}

// capture runs gen with a fresh output buffer and returns what it emitted.
func (cg *CodeGen) capture(gen func() error) ([]string, error) {
	saved := cg.out
	cg.out = nil
	err := gen()
	body := cg.out
	cg.out = saved
	return body, err
}

// enterFrame consumes frame from its parent's children, which must happen
// in the order the parser created them.
func (cg *CodeGen) enterFrame(frame FrameID) error {
	parent := cg.scopes.Parent(frame)
	children := cg.scopes.Children(parent)
	next := cg.replay[parent]
	if next >= len(children) || children[next] != frame {
		return fmt.Errorf("%w: frame %d reached while frame %d expects child #%d", ErrFrameOrder, frame, parent, next)
	}
	cg.replay[parent] = next + 1
	return nil
}

// checkReplay verifies every frame created at parse time was generated.
func (cg *CodeGen) checkReplay() error {
	for id := 0; id < cg.scopes.Len(); id++ {
		frame := FrameID(id)
		if got, want := cg.replay[frame], len(cg.scopes.Children(frame)); got != want {
			return fmt.Errorf("%w: frame %d has %d children, generated %d", ErrFrameOrder, frame, want, got)
		}
	}
	return nil
}

// slot is the memory operand of a local variable.
func slot(sym *Symbol) string {
	return fmt.Sprintf("qword [rbp-%d]", sym.Offset)
}

// Generate lowers prog to assembly. scopes must be the tree Parse returned
// alongside prog.
func Generate(prog *Program, scopes *ScopeTree, opts Options) (string, error) {
	lines, err := GenerateLines(prog, scopes, opts)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// GenerateLines is Generate returning the instruction buffer line by line.
func GenerateLines(prog *Program, scopes *ScopeTree, opts Options) ([]string, error) {
	if len(opts.Registers) == 0 {
		return nil, fmt.Errorf("codegen: %w: empty register pool", ErrOutOfRegisters)
	}
	cg := newCodeGen(scopes, opts)

	entry, ok := scopes.Lookup(RootFrame, opts.EntryFunction)
	if !ok || !entry.IsFunction {
		return nil, fmt.Errorf("codegen: entry function %q is not defined", opts.EntryFunction)
	}

	cg.out = append(cg.out, "global "+opts.EntryLabel)
	cg.label(opts.EntryLabel)
	cg.emit("call %s", entry.Name)
	cg.emit("mov rdi, rax")
	cg.emit("mov rax, %d", exitSyscall)
	cg.emit("syscall")

	for _, fn := range prog.Functions {
		if err := cg.genFunction(fn); err != nil {
			return nil, fmt.Errorf("codegen: function %s: %w", fn.Name, err)
		}
	}
	if err := cg.checkReplay(); err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	return cg.out, nil
}

//  Functions

func (cg *CodeGen) genFunction(fn *FunctionDecl) error {
	if err := cg.enterFrame(fn.Body.Frame); err != nil {
		return err
	}
	cg.regs.ResetUsage()
	cg.exit = cg.labels.New()

	body, err := cg.capture(func() error {
		return cg.genStmts(fn.Body.Stmts)
	})
	if err != nil {
		return err
	}

	frameSize := cg.scopes.FrameSize(fn.Body.Frame)
	saved := cg.regs.Used()

	cg.comment("%s %s(%d params), %d bytes of locals", fn.ReturnType, fn.Name, len(fn.Params), frameSize)
	cg.label(fn.Name)
	cg.emit("push rbp")
	cg.emit("mov rbp, rsp")
	if frameSize > 0 {
		cg.emit("sub rsp, %d", frameSize)
	}
	for _, r := range saved {
		cg.emit("push %s", r)
	}
	if err := cg.spillParams(fn); err != nil {
		return err
	}

	cg.out = append(cg.out, body...)

	// falling off the end returns 0
	cg.emit("mov rax, 0")
	cg.label(cg.exit)
	for i := len(saved) - 1; i >= 0; i-- {
		cg.emit("pop %s", saved[i])
	}
	cg.emit("mov rsp, rbp")
	cg.emit("pop rbp")
	cg.emit("ret")
	return nil
}

// spillParams copies every parameter into its local slot. Register
// arguments come from ArgRegisters, the rest from the caller's stack above
// the return address.
func (cg *CodeGen) spillParams(fn *FunctionDecl) error {
	nreg := len(cg.opts.ArgRegisters)
	for i, p := range fn.Params {
		sym, ok := cg.scopes.Lookup(fn.Body.Frame, p.Name)
		if !ok {
			return fmt.Errorf("parameter %q has no symbol", p.Name)
		}
		if i < nreg {
			cg.emit("mov %s, %s", slot(sym), cg.opts.ArgRegisters[i])
			continue
		}
		cg.emit("mov %s, qword [rbp+%d]", scratch, 2*WordSize+(i-nreg)*WordSize)
		cg.emit("mov %s, %s", slot(sym), scratch)
	}
	return nil
}

//  Statements

// genStmts generates each statement and checks that none of them leaves a
// register allocated.
func (cg *CodeGen) genStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CodeGen) genStmt(s Stmt) error {
	before, _ := cg.regs.Counts()
	if err := cg.lowerStmt(s); err != nil {
		return err
	}
	if n := cg.regs.InUse(); n != 0 {
		after, _ := cg.regs.Counts()
		return fmt.Errorf("%w: %d registers still allocated after %q (%d allocations)", ErrRegisterLeak, n, s, after-before)
	}
	return nil
}

func (cg *CodeGen) genBlock(b *Block) error {
	if err := cg.enterFrame(b.Frame); err != nil {
		return err
	}
	return cg.genStmts(b.Stmts)
}

func (cg *CodeGen) lowerStmt(s Stmt) error {
	switch n := s.(type) {
	case *VarDecl:
		cg.comment("%s", n)
		if n.Init == nil {
			cg.emit("mov %s, 0", slot(n.Sym))
			return nil
		}
		return cg.store(n.Sym, n.Init)

	case *Assign:
		cg.comment("%s", n)
		return cg.store(n.Sym, n.Value)

	case *ExprStmt:
		cg.comment("%s", n)
		r, err := cg.genExpr(n.X)
		if err != nil {
			return err
		}
		cg.regs.Free(r)
		return nil

	case *ReturnStmt:
		cg.comment("%s", n)
		r, err := cg.genExpr(n.Value)
		if err != nil {
			return err
		}
		cg.emit("mov rax, %s", cg.regs.Name(r))
		cg.regs.Free(r)
		cg.emit("jmp %s", cg.exit)
		return nil

	case *IfStmt:
		end := cg.labels.New()
		if err := cg.genIf(n, end); err != nil {
			return err
		}
		cg.label(end)
		return nil

	case *WhileStmt:
		start, done := cg.labels.New(), cg.labels.New()
		cg.label(start)
		if err := cg.branchIfFalse(n.Cond, done); err != nil {
			return err
		}
		if err := cg.genBlock(n.Body); err != nil {
			return err
		}
		cg.emit("jmp %s", start)
		cg.label(done)
		return nil

	case *ForStmt:
		// header and body share one frame
		if err := cg.enterFrame(n.Body.Frame); err != nil {
			return err
		}
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		start, done := cg.labels.New(), cg.labels.New()
		cg.label(start)
		if n.Cond != nil {
			if err := cg.branchIfFalse(n.Cond, done); err != nil {
				return err
			}
		}
		if err := cg.genStmts(n.Body.Stmts); err != nil {
			return err
		}
		if n.Post != nil {
			if err := cg.genStmt(n.Post); err != nil {
				return err
			}
		}
		cg.emit("jmp %s", start)
		cg.label(done)
		return nil

	default:
		return fmt.Errorf("codegen: unknown statement type %T", s)
	}
}

// store evaluates value into sym's slot and leaves the register caching it.
func (cg *CodeGen) store(sym *Symbol, value Expr) error {
	r, err := cg.genExpr(value)
	if err != nil {
		return err
	}
	cg.emit("mov %s, %s", slot(sym), cg.regs.Name(r))
	cg.regs.Release(r, sym)
	return nil
}

// branchIfFalse evaluates cond and jumps to target when it is 0.
func (cg *CodeGen) branchIfFalse(cond Expr, target string) error {
	r, err := cg.genExpr(cond)
	if err != nil {
		return err
	}
	cg.emit("cmp %s, 0", cg.regs.Name(r))
	cg.regs.Free(r)
	cg.emit("je %s", target)
	return nil
}

// genIf lowers one if/elif link. Every branch jumps to the shared end label.
func (cg *CodeGen) genIf(s *IfStmt, end string) error {
	hasTail := s.Elif != nil || s.Else != nil
	next := end
	if hasTail {
		next = cg.labels.New()
	}
	if err := cg.branchIfFalse(s.Cond, next); err != nil {
		return err
	}
	if err := cg.genBlock(s.Then); err != nil {
		return err
	}
	if !hasTail {
		return nil
	}
	cg.emit("jmp %s", end)
	cg.label(next)
	if s.Elif != nil {
		return cg.genIf(s.Elif, end)
	}
	return cg.genBlock(s.Else)
}
