// DXGI surrogate: factory / adapter / swap chain objects. Grounded on
// video_compositor.go's producer/consumer frame hand-off, generalized
// from "video source pushes a frame" to "swap chain Present copies its
// back-buffer into whatever window surface the compositor collaborator
// publishes" per spec.md §4.6.
package gfx

import (
	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

type factoryState struct {
	refCounted
	world *World
}

type adapterState struct {
	refCounted
	world *World
}

// swapChainState owns the CPU back-buffer spec.md's swap chain
// describes: sized from the description, falling back to the window
// size the compositor publishes when either dimension is zero.
type swapChainState struct {
	refCounted
	world *World

	width, height int
	backBufferIdx int // resource-table index, registered lazily by GetBuffer
}

var factoryVtable, adapterVtable, swapChainVtable uintptr

func factoryMethods(w *World) []abi.Handler {
	h := iunknownMethods(func(self int) *refCounted {
		f := w.factory(self)
		return &f.refCounted
	})
	h = append(h,
		// EnumAdapters(this, index, ppAdapter*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			if a[1] != 0 {
				return 0x887A0002 // DXGI_ERROR_NOT_FOUND, only adapter 0 exists
			}
			ad := &adapterState{world: w, refCounted: refCounted{refs: 1}}
			idx := w.addAdapter(ad)
			ptr := newComObject(adapterVtable, uint64(idx))
			gmem.PutU64(uintptr(a[2]), uint64(ptr))
			return sOK
		},
		// CreateSwapChain(this, device, desc*, ppSwapChain*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr := uintptr(a[2])
			width := gmem.U32(descAddr)
			height := gmem.U32(descAddr + 4)
			sc := &swapChainState{world: w, refCounted: refCounted{refs: 1}, width: int(width), height: int(height), backBufferIdx: unbound}
			idx := w.addSwapChain(sc)
			ptr := newComObject(swapChainVtable, uint64(idx))
			gmem.PutU64(uintptr(a[3]), uint64(ptr))
			return sOK
		},
	)
	return h
}

func adapterMethods(w *World) []abi.Handler {
	return iunknownMethods(func(self int) *refCounted {
		return &w.adapter(self).refCounted
	})
}

func swapChainMethods(w *World) []abi.Handler {
	sc := func(self int) *swapChainState {
		s := w.swapChain(self)
		return s
	}
	h := iunknownMethods(func(self int) *refCounted { return &sc(self).refCounted })
	h = append(h,
		// GetBuffer(this, index, riid, ppSurface*): registers the back
		// buffer as a non-owning texture2d resource on first call and
		// always returns that same resource handle thereafter, matching
		// spec.md §4.6's "returns the swap chain itself... recognized by
		// CreateRenderTargetView" simplified to "returns a stable
		// resource handle the guest then wraps in its own RTV".
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			s := sc(selfIndex(a[0]))
			if s.backBufferIdx == unbound {
				w, h := s.width, s.height
				if w == 0 || h == 0 {
					cw, ch, _ := s.world.compositorOrDefault().Surface()
					w, h = cw, ch
				}
				idx, ok := s.world.resources.Alloc(Resource{
					Kind: ResourceTexture2D, Width: w, Height: h,
					Pixels: make([]byte, w*h*4), SwapChainOwned: true, Refs: 1,
				})
				if !ok {
					return eOutOfMemory
				}
				s.backBufferIdx = idx
			}
			writeHandleOut(s.world, uintptr(a[3]), kindResource, s.backBufferIdx)
			return sOK
		},
		// Present(this, syncInterval, flags): copies
		// min(sc_w,w_w) x min(sc_h,w_h) into the compositor's window
		// surface and commits, per spec.md §4.6.
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			s := sc(selfIndex(a[0]))
			if s.backBufferIdx == unbound {
				return sOK // nothing presented yet
			}
			res, ok := s.world.resources.Get(s.backBufferIdx)
			if !ok || res.Pixels == nil {
				return sOK
			}
			comp := s.world.compositorOrDefault()
			ww, wh, dst := comp.Surface()
			if hc, ok := comp.(*headlessCompositor); ok && (ww == 0 || wh == 0) {
				hc.resize(res.Width, res.Height)
				ww, wh, dst = comp.Surface()
			}
			copyW, copyH := res.Width, res.Height
			if ww < copyW {
				copyW = ww
			}
			if wh < copyH {
				copyH = wh
			}
			for y := 0; y < copyH; y++ {
				srcOff := y * res.Width * 4
				dstOff := y * ww * 4
				copy(dst[dstOff:dstOff+copyW*4], res.Pixels[srcOff:srcOff+copyW*4])
			}
			comp.Commit()
			mirrorPresentedFrame(res.Pixels)
			return sOK
		},
		// ResizeBuffers(this, count, width, height, format, flags): drops
		// the current back buffer so the next GetBuffer re-allocates at
		// the new size.
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			s := sc(selfIndex(a[0]))
			s.width, s.height = int(a[2]), int(a[3])
			if s.backBufferIdx != unbound {
				s.world.resources.Free(s.backBufferIdx)
				s.backBufferIdx = unbound
			}
			return sOK
		},
	)
	return h
}
