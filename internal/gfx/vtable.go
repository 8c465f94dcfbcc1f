package gfx

import (
	"sync"
	"unsafe"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

// Every guest-visible COM surrogate object this core hands out has the
// same 16-byte header: a vtable pointer at offset 0 (what a guest
// dereferences to find its method table, exactly like a real COM
// object) followed by an 8-byte self-index at offset 8 that the shared
// method trampolines use to find the object's actual Go-side state.
// Every instance of a given interface shares one vtable allocation;
// abi's fixed trampoline pool would not survive handing out a fresh
// vtable per object, and real COM objects of the same class already
// share their vtable this way.
const comHeaderSize = 16

var (
	pinMu sync.Mutex
	pins  [][]byte // every comObject/vtable allocation, kept alive forever
)

func pin(b []byte) uintptr {
	pinMu.Lock()
	pins = append(pins, b)
	pinMu.Unlock()
	return uintptr(unsafe.Pointer(&b[0]))
}

// buildVtable allocates a contiguous array of trampoline addresses, one
// per method in order, and pins it forever. The returned address is
// what a comObject's first field points to.
func buildVtable(methods []abi.Handler) uintptr {
	buf := make([]byte, len(methods)*8)
	base := pin(buf)
	for i, h := range methods {
		addr, _ := abi.NewTrampoline(h) // never released: vtables live for process lifetime
		gmem.PutU64(base+uintptr(i*8), uint64(addr))
	}
	return base
}

// newComObject builds one guest-visible object of an interface whose
// shared vtable lives at vtable, carrying self as the index its method
// trampolines use to look up this instance's state in the relevant
// package-level table.
func newComObject(vtable uintptr, self uint64) uintptr {
	buf := make([]byte, comHeaderSize)
	base := pin(buf)
	gmem.PutU64(base, uint64(vtable))
	gmem.PutU64(base+8, self)
	return base
}

// selfIndex reads the self-index out of a comObject pointer, i.e. a[0]
// in every COM method handler below.
func selfIndex(thisPtr uint64) int {
	return int(gmem.U64(uintptr(thisPtr) + 8))
}

// refCounted is embedded by every per-instance state struct that needs
// IUnknown semantics: citcrun never actually frees a COM object (the
// guest process is short-lived and torn down as a whole), so AddRef and
// Release only track the count for debugging and QueryInterface always
// hands back the same object re-cast, matching spec.md §4.6's "no
// interface segregation" simplification.
type refCounted struct {
	refs int32
}

// iunknownMethods returns the three IUnknown-prefix methods every COM
// vtable in this core starts with. getRefs must return the embedded
// refCounted's pointer given a this-pointer's self-index. QueryInterface
// always hands back the same this pointer, since this core never
// implements more than one interface per object.
func iunknownMethods(getRefs func(self int) *refCounted) []abi.Handler {
	queryInterface := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		// a[0]=this, a[1]=riid, a[2]=ppvObject. This core does not
		// distinguish requested IIDs: every object implements exactly
		// one interface, so QueryInterface always hands back itself.
		if uintptr(a[2]) != 0 {
			gmem.PutU64(uintptr(a[2]), a[0])
		}
		rc := getRefs(selfIndex(a[0]))
		rc.refs++
		return 0 // S_OK
	}
	addRef := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		rc := getRefs(selfIndex(a[0]))
		rc.refs++
		return uint64(rc.refs)
	}
	release := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		rc := getRefs(selfIndex(a[0]))
		if rc.refs > 0 {
			rc.refs--
		}
		return uint64(rc.refs)
	}
	return []abi.Handler{queryInterface, addRef, release}
}
