package compiler

import "fmt"

// Register indexes an entry of a RegisterPool.
type Register int

// NoRegister marks a symbol whose value is not cached in any register.
const NoRegister Register = -1

// DefaultRegisters is the allocation order of the general-purpose pool.
var DefaultRegisters = []string{"rbx", "r10", "r11", "r12", "r13", "r14", "r15"}

type poolEntry struct {
	name  string
	inUse bool
	owner *Symbol // symbol whose value the free register still holds
	used  bool    // touched since the last ResetUsage
}

// RegisterPool is a flat free list over a fixed register set. There is no
// spilling: Allocate fails once every register is in use.
type RegisterPool struct {
	entries []poolEntry
	allocs  int
	frees   int
}

func NewRegisterPool(names []string) *RegisterPool {
	rp := &RegisterPool{entries: make([]poolEntry, len(names))}
	for i, n := range names {
		rp.entries[i].name = n
	}
	return rp
}

// Allocate returns the first free register and marks it in use. If that
// register was caching a symbol's value, the symbol forgets it.
func (rp *RegisterPool) Allocate() (Register, error) {
	for i := range rp.entries {
		e := &rp.entries[i]
		if e.inUse {
			continue
		}
		rp.disown(Register(i))
		e.inUse = true
		e.used = true
		rp.allocs++
		return Register(i), nil
	}
	return NoRegister, fmt.Errorf("%w: all %d registers hold live values", ErrOutOfRegisters, len(rp.entries))
}

// Free marks r free.
func (rp *RegisterPool) Free(r Register) {
	rp.Release(r, nil)
}

// Release marks r free while remembering that it still holds owner's value.
func (rp *RegisterPool) Release(r Register, owner *Symbol) {
	e := &rp.entries[r]
	if !e.inUse {
		panic(fmt.Sprintf("regalloc: double free of %s", e.name))
	}
	e.inUse = false
	rp.disown(r)
	if owner != nil {
		e.owner = owner
		owner.AssignedRegister = r
	}
	rp.frees++
}

func (rp *RegisterPool) disown(r Register) {
	e := &rp.entries[r]
	if e.owner != nil && e.owner.AssignedRegister == r {
		e.owner.AssignedRegister = NoRegister
	}
	e.owner = nil
}

// Cached reports whether sym's value is known to sit in a free register.
func (rp *RegisterPool) Cached(sym *Symbol) (Register, bool) {
	r := sym.AssignedRegister
	if r == NoRegister || int(r) >= len(rp.entries) {
		return NoRegister, false
	}
	e := &rp.entries[r]
	return r, !e.inUse && e.owner == sym
}

// Forget drops every cached value. Called wherever control flow may join.
func (rp *RegisterPool) Forget() {
	for i := range rp.entries {
		rp.disown(Register(i))
	}
}

// Name returns the assembly name of r.
func (rp *RegisterPool) Name(r Register) string {
	return rp.entries[r].name
}

// InUse returns the number of registers currently allocated.
func (rp *RegisterPool) InUse() int {
	n := 0
	for _, e := range rp.entries {
		if e.inUse {
			n++
		}
	}
	return n
}

// Counts returns the number of Allocate and Free/Release calls so far.
func (rp *RegisterPool) Counts() (allocs, frees int) {
	return rp.allocs, rp.frees
}

// Used returns, in pool order, every register allocated since ResetUsage.
func (rp *RegisterPool) Used() []string {
	var out []string
	for _, e := range rp.entries {
		if e.used {
			out = append(out, e.name)
		}
	}
	return out
}

// ResetUsage starts a new function: nothing is in use or cached.
func (rp *RegisterPool) ResetUsage() {
	for i := range rp.entries {
		rp.disown(Register(i))
		rp.entries[i].inUse = false
		rp.entries[i].used = false
	}
}

// LabelAllocator hands out jump targets. Labels are never reused.
type LabelAllocator struct {
	next int
}

// Create returns a fresh label id.
func (la *LabelAllocator) Create() int {
	id := la.next
	la.next++
	return id
}

// Name formats a label id as it appears in the assembly.
func (la *LabelAllocator) Name(id int) string {
	return fmt.Sprintf(".L%d", id)
}

// New is Create followed by Name.
func (la *LabelAllocator) New() string {
	return la.Name(la.Create())
}
