package gfx

import (
	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

// HRESULT sentinels, per spec.md §7 "Graphics errors": a closed set of
// the standard COM codes this core ever returns.
const (
	sOK          = 0
	eFail        = 0x80004005
	ePointer     = 0x80004003
	eInvalidArg  = 0x80070057
	eOutOfMemory = 0x8007000E
)

// DXGI_FORMAT values this core distinguishes; every other format is
// treated as an opaque RGBA8 color format (textures only ever carry
// color or depth floats, never both, per spec.md §3).
const (
	dxgiFormatD32Float = 40 // DXGI_FORMAT_D32_FLOAT
	dxgiFormatR32Uint  = 42 // DXGI_FORMAT_R32_UINT, used for 32-bit index buffers
)

// Object-table kind tags, used only to pick which shared vtable a
// newComObject gets — the guest never observes this value directly.
const (
	kindResource = iota
	kindView
	kindShader
	kindLayout
	kindState
	kindSampler
)

var tableVtables [6]uintptr

// simpleRefMethods builds the IUnknown trio for an object table whose
// per-record ref count is a plain int32 field (Resource/View/Shader/
// InputLayout/State/Sampler all look like this — they don't need any
// method beyond IUnknown, per spec.md §4.6's interfaces for these kinds,
// so QueryInterface/AddRef/Release is the entire vtable).
func simpleRefMethods(getRefs func(self int) *int32) []abi.Handler {
	queryInterface := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		if uintptr(a[2]) != 0 {
			gmem.PutU64(uintptr(a[2]), a[0])
		}
		if rc := getRefs(selfIndex(a[0])); rc != nil {
			*rc++
		}
		return sOK
	}
	addRef := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		rc := getRefs(selfIndex(a[0]))
		if rc == nil {
			return 0
		}
		*rc++
		return uint64(*rc)
	}
	release := func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		rc := getRefs(selfIndex(a[0]))
		if rc == nil {
			return 0
		}
		if *rc > 0 {
			*rc--
		}
		return uint64(*rc)
	}
	return []abi.Handler{queryInterface, addRef, release}
}

// buildObjectTableVtables constructs and pins the six shared vtables for
// the non-device/context/swap-chain/factory/adapter COM objects — one
// per object-table kind, built once per process (New calls it inside
// vtableOnce).
func buildObjectTableVtables(w *World) {
	tableVtables[kindResource] = buildVtable(simpleRefMethods(func(i int) *int32 {
		r, ok := w.resources.Get(i)
		if !ok {
			return nil
		}
		return &r.Refs
	}))
	tableVtables[kindView] = buildVtable(simpleRefMethods(func(i int) *int32 {
		v, ok := w.views.Get(i)
		if !ok {
			return nil
		}
		return &v.Refs
	}))
	tableVtables[kindShader] = buildVtable(simpleRefMethods(func(i int) *int32 {
		s, ok := w.shaders.Get(i)
		if !ok {
			return nil
		}
		return &s.Refs
	}))
	tableVtables[kindLayout] = buildVtable(simpleRefMethods(func(i int) *int32 {
		l, ok := w.layouts.Get(i)
		if !ok {
			return nil
		}
		return &l.Refs
	}))
	tableVtables[kindState] = buildVtable(simpleRefMethods(func(i int) *int32 {
		s, ok := w.states.Get(i)
		if !ok {
			return nil
		}
		return &s.Refs
	}))
	tableVtables[kindSampler] = buildVtable(simpleRefMethods(func(i int) *int32 {
		s, ok := w.samplers.Get(i)
		if !ok {
			return nil
		}
		return &s.Refs
	}))
}

// writeHandleOut builds a guest-visible comObject for the given table
// kind/index and writes its address to out, the out-parameter pattern
// every D3D11 Create* method uses.
func writeHandleOut(w *World, out uintptr, kind, idx int) {
	if out == 0 {
		return
	}
	ptr := newComObject(tableVtables[kind], uint64(idx))
	gmem.PutU64(out, uint64(ptr))
}

// decodeHandle reads the self-index out of a guest-supplied comObject
// pointer, returning unbound for a null pointer.
func decodeHandle(thisPtr uint64) int {
	if thisPtr == 0 {
		return unbound
	}
	return selfIndex(thisPtr)
}
