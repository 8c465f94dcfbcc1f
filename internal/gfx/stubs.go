package gfx

import (
	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

// D3D11CreateDevice/D3D11CreateDeviceAndSwapChain/CreateDXGIFactory are
// free functions, not COM methods, so none of them carry a leading
// this-pointer. Their real signatures run past even what abi.StackArgs
// can disambiguate usefully here: D3D11CreateDevice alone takes ten
// arguments, most either ignored by this core (driver type, feature
// level negotiation) or not worth threading through a software
// rasterizer. Rather than decode all ten real positions, each stub
// binds only the out-pointer arguments a guest's loader-time call site
// actually needs, in the order this core finds most useful rather than
// their true Microsoft x64 stack position. This is a simplification,
// not a faithful reimplementation of the real entry points.

// StubTables returns the d3d11.dll and dxgi.dll import surfaces, built
// once per World and handed to the PE loader's import registry exactly
// like internal/win32.Surrogate.StubTable and
// internal/registry.Registry.StubTable.
func (w *World) StubTables() []*abi.StubTable {
	d3d11 := abi.NewStubTable("D3D11.DLL")
	d3d11.Add("D3D11CreateDevice", w.createDeviceStub(false))
	d3d11.Add("D3D11CreateDeviceAndSwapChain", w.createDeviceStub(true))

	dxgi := abi.NewStubTable("DXGI.DLL")
	dxgi.Add("CreateDXGIFactory", w.createFactoryStub())
	dxgi.Add("CreateDXGIFactory1", w.createFactoryStub())

	return []*abi.StubTable{d3d11, dxgi}
}

func (w *World) newDevice() int {
	d := &deviceState{world: w, refCounted: refCounted{refs: 1}}
	return w.addDevice(d)
}

// createDeviceStub binds: a[0]=pSwapChainDesc (may be 0), a[1]=ppDevice,
// a[2]=ppImmediateContext, a[3]=ppSwapChain (only read when
// withSwapChain, i.e. called as D3D11CreateDeviceAndSwapChain).
func (w *World) createDeviceStub(withSwapChain bool) abi.Handler {
	return func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		devIdx := w.newDevice()
		if ppDevice := uintptr(a[1]); ppDevice != 0 {
			writeComOut(ppDevice, deviceVtable, devIdx)
		}
		if ppCtx := uintptr(a[2]); ppCtx != 0 {
			ctx := newContextState(w)
			idx := w.addContext(ctx)
			writeComOut(ppCtx, contextVtable, idx)
		}
		if withSwapChain {
			if ppSC := uintptr(a[3]); ppSC != 0 {
				descAddr := uintptr(a[0])
				var width, height uint32
				if descAddr != 0 {
					width = gmem.U32(descAddr)
					height = gmem.U32(descAddr + 4)
				}
				sc := &swapChainState{world: w, refCounted: refCounted{refs: 1}, width: int(width), height: int(height), backBufferIdx: unbound}
				idx := w.addSwapChain(sc)
				writeComOut(ppSC, swapChainVtable, idx)
			}
		}
		return sOK
	}
}

// createFactoryStub binds: a[0]=ppFactory.
func (w *World) createFactoryStub() abi.Handler {
	return func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		f := &factoryState{world: w, refCounted: refCounted{refs: 1}}
		idx := w.addFactory(f)
		if ppFactory := uintptr(a[0]); ppFactory != 0 {
			writeComOut(ppFactory, factoryVtable, idx)
		}
		return sOK
	}
}

func writeComOut(out uintptr, vtable uintptr, idx int) {
	ptr := newComObject(vtable, uint64(idx))
	gmem.PutU64(out, uint64(ptr))
}
