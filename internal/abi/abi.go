// Package abi crosses the boundary between the host's Go ABI and the
// Microsoft x64 calling convention used by every guest-visible entry point:
// the PE image's own entry function, every IAT slot the loader resolves to
// a host stub, and every COM vtable method a guest holds a pointer to.
//
// The technique mirrors github.com/ebitengine/purego's callback pool: a
// fixed number of tiny, statically assembled trampoline stubs are handed
// out to callers that need a foreign-callable function pointer, each stub
// baking its own slot index into an immediate operand so a single shared
// dispatcher can find the Go handler registered for it. purego builds its
// pool for the host's native convention (SysV on Linux/Darwin); citcrun
// needs the Microsoft convention instead, since that's what a Windows
// guest reads its arguments with regardless of the host platform, so the
// assembly here is hand-written rather than reused from purego directly.
package abi

import (
	"sync"

	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

// MaxArgs is the number of integer/pointer-sized arguments a Handler
// receives directly in registers. Windows passes the first four integer
// arguments in rcx, rdx, r8, r9; a function needing a 5th or later
// argument reads it through the StackArgs value a Handler also
// receives, since the Microsoft convention spills those to the stack
// rather than widening the register set.
const MaxArgs = 4

// Handler is the Go-side implementation of one foreign-callable function.
// args holds the first MaxArgs arguments already widened to uint64;
// unused trailing slots are zero. stack grants access to any argument
// beyond the fourth. The return value is placed in rax for the guest to
// read as its function's return value.
type Handler func(args [MaxArgs]uint64, stack StackArgs) uint64

// StackArgs is the entry-time stack pointer of a foreign call, captured
// by commonEntry (trampoline_amd64.s) before its own call to
// dispatchFromAsm disturbs SP. Since trampolineN reaches commonEntry by
// JMP rather than CALL, this is exactly the RSP a real function would
// observe right after the guest's call instruction landed — the same
// value the Microsoft x64 convention measures stack-argument offsets
// from. Zero when no real stack frame backs the call (e.g. a Handler
// invoked directly, outside a trampoline, such as from a test).
type StackArgs uintptr

// Arg returns the nth argument of the call, where n is 1-based and
// matches the callee's own argument list (n=1 is the first argument,
// already available as args[0] — Arg exists only for n>=5, the ones
// the Microsoft convention spills to the stack instead of passing in
// rcx/rdx/r8/r9). Layout: the return address occupies the first 8
// bytes above sp, 32 bytes of caller-reserved shadow space follow, and
// the stack-passed arguments start immediately after that.
func (sp StackArgs) Arg(n int) uint64 {
	if sp == 0 || n < 5 {
		return 0
	}
	const returnAddr, shadowSpace = 8, 32
	return gmem.U64(uintptr(sp) + returnAddr + shadowSpace + uintptr(n-5)*8)
}

// numSlots bounds how many distinct foreign-callable entry points citcrun
// can hand out at once: one per IAT slot the loader patches plus one per
// COM vtable method. The vtables alone consume around 75 slots at World
// construction, so 256 leaves enough headroom for a guest importing the
// whole kernel32/advapi32/d3d11 surface at once.
const numSlots = 256

var (
	mu       sync.Mutex
	handlers [numSlots]Handler
	used     [numSlots]bool
)

// NewTrampoline hands out one of the pre-assembled foreign-callable stubs
// and binds it to h. The returned address is safe to write into an IAT
// slot or a COM vtable: when guest code calls it using the Microsoft x64
// convention, commonEntry (in trampoline_amd64.s) collects rcx/rdx/r8/r9
// and, through dispatch, invokes h with them as a [4]uint64.
func NewTrampoline(h Handler) (addr uintptr, release func()) {
	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < numSlots; i++ {
		if !used[i] {
			used[i] = true
			handlers[i] = h
			return trampolineAddr(i), func() { freeSlot(i) }
		}
	}
	panic("abi: trampoline pool exhausted")
}

func freeSlot(i int) {
	mu.Lock()
	defer mu.Unlock()
	used[i] = false
	handlers[i] = nil
}

// dispatch is called from assembly with the slot index that was baked into
// the stub the guest actually invoked, the four argument registers already
// captured, and the entry-time stack pointer a handler needing a 5th+
// argument reads through StackArgs. It is the one place where control
// returns to normal Go code after a foreign call lands.
func dispatch(slot int32, a0, a1, a2, a3 uint64, sp uintptr) uint64 {
	mu.Lock()
	h := handlers[slot]
	mu.Unlock()
	if h == nil {
		return 0
	}
	return h([MaxArgs]uint64{a0, a1, a2, a3}, StackArgs(sp))
}

// dispatchFromAsm is the exact symbol commonEntry in trampoline_amd64.s
// calls; it widens the slot index back from the stack-passed int64 and
// forwards to dispatch.
func dispatchFromAsm(slot int64, a0, a1, a2, a3 uint64, sp uintptr) uint64 {
	return dispatch(int32(slot), a0, a1, a2, a3, sp)
}

// CallForeign invokes a foreign function pointer — the PE image's entry
// point, or a guest-supplied callback such as a CreateThread start routine
// — using the Microsoft x64 convention: the first four arguments in
// rcx/rdx/r8/r9 behind 32 bytes of shadow space, returning whatever the
// callee left in rax.
func CallForeign(fn uintptr, args [MaxArgs]uint64) uint64 {
	return callForeignAsm(fn, args[0], args[1], args[2], args[3])
}
