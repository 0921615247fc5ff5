package compiler

import (
	"fmt"
	"strings"
)

// WordSize is the width in bytes of every stack slot on the x86-64 target.
const WordSize = 8

// FrameID addresses a frame inside a ScopeTree.
type FrameID int

const (
	// RootFrame holds the function symbols of the compilation unit.
	RootFrame FrameID = 0
	// NoFrame is the parent of the root frame.
	NoFrame FrameID = -1
)

// Symbol is everything the compiler knows about one declared name.
type Symbol struct {
	Name             string
	Type             PrimitiveKind // declared type, or return type for functions
	Offset           int           // positive distance below rbp, 0 for functions
	Size             int
	AssignedRegister Register // register currently caching the value, NoRegister if none
	IsFunction       bool
	Params           []PrimitiveKind // parameter types, functions only
}

// Frame is one lexical scope.
type Frame struct {
	Parent   FrameID
	Children []FrameID
	// next is the ordinal of the last slot handed out in this frame chain.
	next     int
	bindings map[string]*Symbol
	order    []string // declaration order, for dumps
}

type journalKind int

const (
	journalBind journalKind = iota
	journalFrame
)

type journalEntry struct {
	kind  journalKind
	frame FrameID
	name  string
	next  int // frame's next value before the bind
}

// Checkpoint is a position in the ScopeTree's undo journal.
type Checkpoint struct {
	journal int
}

// ScopeTree is an arena of frames. Frames refer to their parent by index,
// so upward lookups chase indices instead of pointers.
type ScopeTree struct {
	frames  []Frame
	journal []journalEntry
}

// NewScopeTree returns a tree holding only the root frame.
func NewScopeTree() *ScopeTree {
	return &ScopeTree{
		frames: []Frame{{Parent: NoFrame, bindings: make(map[string]*Symbol)}},
	}
}

func (t *ScopeTree) frame(id FrameID) *Frame {
	if id < 0 || int(id) >= len(t.frames) {
		panic(fmt.Sprintf("scope: frame %d does not exist", id))
	}
	return &t.frames[id]
}

// Len returns the number of frames, root included.
func (t *ScopeTree) Len() int { return len(t.frames) }

// Parent returns the enclosing frame of id, or NoFrame for the root.
func (t *ScopeTree) Parent(id FrameID) FrameID { return t.frame(id).Parent }

// Children returns the frames created inside id, in creation order.
func (t *ScopeTree) Children(id FrameID) []FrameID { return t.frame(id).Children }

// EnterChild creates a block frame under parent. Slot numbering continues
// from the parent's current offset.
func (t *ScopeTree) EnterChild(parent FrameID) FrameID {
	return t.newFrame(parent, t.frame(parent).next)
}

// EnterFunction creates a function body frame under parent. Slot numbering
// restarts because the function owns a fresh stack frame.
func (t *ScopeTree) EnterFunction(parent FrameID) FrameID {
	return t.newFrame(parent, 0)
}

func (t *ScopeTree) newFrame(parent FrameID, next int) FrameID {
	id := FrameID(len(t.frames))
	t.frames = append(t.frames, Frame{
		Parent:   parent,
		next:     next,
		bindings: make(map[string]*Symbol),
	})
	p := t.frame(parent)
	p.Children = append(p.Children, id)
	t.journal = append(t.journal, journalEntry{kind: journalFrame, frame: parent})
	return id
}

// Bind declares name in frame. Variables receive the next stack slot;
// functions take none.
func (t *ScopeTree) Bind(frame FrameID, name string, typ PrimitiveKind, isFunction bool) (*Symbol, error) {
	f := t.frame(frame)
	if _, exists := f.bindings[name]; exists {
		return nil, fmt.Errorf("%w: %q already declared in this scope", ErrRedeclared, name)
	}

	sym := &Symbol{
		Name:             name,
		Type:             typ,
		Size:             WordSize,
		AssignedRegister: NoRegister,
		IsFunction:       isFunction,
	}
	t.journal = append(t.journal, journalEntry{kind: journalBind, frame: frame, name: name, next: f.next})
	if !isFunction {
		f.next++
		sym.Offset = f.next * WordSize
	}
	f.bindings[name] = sym
	f.order = append(f.order, name)
	return sym, nil
}

// Lookup searches frame and then each enclosing frame for name.
func (t *ScopeTree) Lookup(frame FrameID, name string) (*Symbol, bool) {
	for id := frame; id != NoFrame; id = t.frame(id).Parent {
		if sym, ok := t.frame(id).bindings[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// ModifyRegister records reg as the register caching name's value, on the
// symbol the same upward search as Lookup finds.
func (t *ScopeTree) ModifyRegister(frame FrameID, name string, reg Register) error {
	sym, ok := t.Lookup(frame, name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUndeclared, name)
	}
	sym.AssignedRegister = reg
	return nil
}

// FrameSize returns the bytes of stack needed by every slot handed out in
// frame or any frame nested inside it.
func (t *ScopeTree) FrameSize(frame FrameID) int {
	most := t.frame(frame).next
	var walk func(FrameID)
	walk = func(id FrameID) {
		f := t.frame(id)
		if f.next > most {
			most = f.next
		}
		for _, c := range f.Children {
			walk(c)
		}
	}
	walk(frame)
	return most * WordSize
}

// Symbols returns the symbols declared directly in frame, in declaration order.
func (t *ScopeTree) Symbols(frame FrameID) []*Symbol {
	f := t.frame(frame)
	out := make([]*Symbol, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.bindings[name])
	}
	return out
}

// Mark returns a checkpoint that Rollback can return to.
func (t *ScopeTree) Mark() Checkpoint {
	return Checkpoint{journal: len(t.journal)}
}

// Rollback undoes every bind and frame creation made after cp, newest first.
func (t *ScopeTree) Rollback(cp Checkpoint) {
	for len(t.journal) > cp.journal {
		e := t.journal[len(t.journal)-1]
		t.journal = t.journal[:len(t.journal)-1]

		switch e.kind {
		case journalBind:
			f := t.frame(e.frame)
			delete(f.bindings, e.name)
			f.order = f.order[:len(f.order)-1]
			f.next = e.next
		case journalFrame:
			p := t.frame(e.frame)
			p.Children = p.Children[:len(p.Children)-1]
			t.frames = t.frames[:len(t.frames)-1]
		}
	}
}

// String dumps the tree, one frame per line group, in creation order.
func (t *ScopeTree) String() string {
	var b strings.Builder
	var walk func(id FrameID, depth int)
	walk = func(id FrameID, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%sframe %d\n", indent, id)
		for _, sym := range t.Symbols(id) {
			if sym.IsFunction {
				fmt.Fprintf(&b, "%s  %-10s func %s%s\n", indent, sym.Name, sym.Type, paramList(sym.Params))
				continue
			}
			fmt.Fprintf(&b, "%s  %-10s %-5s [rbp-%d]\n", indent, sym.Name, sym.Type, sym.Offset)
		}
		for _, c := range t.Children(id) {
			walk(c, depth+1)
		}
	}
	walk(RootFrame, 0)
	return b.String()
}

func paramList(params []PrimitiveKind) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.String()
	}
	return "(" + strings.Join(names, ", ") + ")"
}
