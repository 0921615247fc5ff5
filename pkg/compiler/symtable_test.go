package compiler

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestScopeOffsets(t *testing.T) {
	st := NewScopeTree()
	fn := st.EnterFunction(RootFrame)

	a, err := st.Bind(fn, "a", Int, false)
	be.Err(t, err, nil)
	b, _ := st.Bind(fn, "b", Bool, false)
	be.Equal(t, a.Offset, 8)
	be.Equal(t, b.Offset, 16)
	be.Equal(t, a.Size, WordSize)

	// block frames continue the function's numbering
	inner := st.EnterChild(fn)
	x, _ := st.Bind(inner, "x", Int, false)
	be.Equal(t, x.Offset, 24)

	// siblings reuse the same slots
	sibling := st.EnterChild(fn)
	y, _ := st.Bind(sibling, "y", Char, false)
	be.Equal(t, y.Offset, 24)

	nested := st.EnterChild(inner)
	z, _ := st.Bind(nested, "z", Int, false)
	be.Equal(t, z.Offset, 32)

	be.Equal(t, st.FrameSize(fn), 32)
	be.Equal(t, st.FrameSize(sibling), 24)

	// a second function starts over
	other := st.EnterFunction(RootFrame)
	p, _ := st.Bind(other, "p", Int, false)
	be.Equal(t, p.Offset, 8)

	be.Equal(t, st.Children(RootFrame), []FrameID{fn, other})
	be.Equal(t, st.Children(fn), []FrameID{inner, sibling})
	be.Equal(t, st.Parent(nested), inner)
	be.Equal(t, st.Parent(RootFrame), NoFrame)
}

func TestScopeFunctionsTakeNoSlot(t *testing.T) {
	st := NewScopeTree()
	sym, err := st.Bind(RootFrame, "main", Int, true)
	be.Err(t, err, nil)
	be.True(t, sym.IsFunction)
	be.Equal(t, sym.Offset, 0)
	be.Equal(t, sym.AssignedRegister, NoRegister)
	be.Equal(t, st.FrameSize(RootFrame), 0)
}

func TestScopeShadowing(t *testing.T) {
	st := NewScopeTree()
	fn := st.EnterFunction(RootFrame)
	outer, _ := st.Bind(fn, "x", Int, false)
	block := st.EnterChild(fn)

	got, ok := st.Lookup(block, "x")
	be.True(t, ok)
	be.True(t, got == outer)

	shadow, err := st.Bind(block, "x", Bool, false)
	be.Err(t, err, nil)
	got, _ = st.Lookup(block, "x")
	be.True(t, got == shadow)
	be.Equal(t, got.Type, Bool)

	got, _ = st.Lookup(fn, "x")
	be.True(t, got == outer)

	_, ok = st.Lookup(fn, "missing")
	be.True(t, !ok)
}

func TestScopeRedeclaration(t *testing.T) {
	st := NewScopeTree()
	fn := st.EnterFunction(RootFrame)
	_, err := st.Bind(fn, "x", Int, false)
	be.Err(t, err, nil)
	_, err = st.Bind(fn, "x", Char, false)
	be.Err(t, err, ErrRedeclared)

	// the failed bind consumed no slot
	y, _ := st.Bind(fn, "y", Int, false)
	be.Equal(t, y.Offset, 16)
}

func TestScopeRollback(t *testing.T) {
	st := NewScopeTree()
	fn := st.EnterFunction(RootFrame)
	st.Bind(fn, "a", Int, false)

	cp := st.Mark()
	block := st.EnterChild(fn)
	st.Bind(block, "b", Int, false)
	st.Bind(fn, "c", Int, false)
	be.Equal(t, st.Len(), 3)

	st.Rollback(cp)
	be.Equal(t, st.Len(), 2)
	be.Equal(t, len(st.Children(fn)), 0)
	_, ok := st.Lookup(fn, "c")
	be.True(t, !ok)
	be.Equal(t, len(st.Symbols(fn)), 1)

	// numbering resumes where it was at the checkpoint
	c, _ := st.Bind(fn, "c", Int, false)
	be.Equal(t, c.Offset, 16)
}

func TestScopeModifyRegister(t *testing.T) {
	st := NewScopeTree()
	fn := st.EnterFunction(RootFrame)
	outer, _ := st.Bind(fn, "x", Int, false)
	block := st.EnterChild(fn)
	inner, _ := st.Bind(block, "x", Int, false)

	be.Err(t, st.ModifyRegister(block, "x", 3), nil)
	be.Equal(t, inner.AssignedRegister, Register(3))
	be.Equal(t, outer.AssignedRegister, NoRegister)

	be.Err(t, st.ModifyRegister(block, "nope", 1), ErrUndeclared)
}

func TestScopeString(t *testing.T) {
	st := NewScopeTree()
	sym, _ := st.Bind(RootFrame, "add", Int, true)
	sym.Params = []PrimitiveKind{Int, Bool}
	fn := st.EnterFunction(RootFrame)
	st.Bind(fn, "a", Int, false)

	dump := st.String()
	be.True(t, strings.Contains(dump, "frame 0\n"))
	be.True(t, strings.Contains(dump, "  frame 1\n"))
	be.True(t, strings.Contains(dump, "func int(int, bool)"))
	be.True(t, strings.Contains(dump, "[rbp-8]"))
}
