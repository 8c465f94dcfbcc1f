package gfx

import (
	"testing"
	"unsafe"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

func newTestDevice(t *testing.T) (*World, uint64) {
	t.Helper()
	w := New()
	d := &deviceState{refCounted: refCounted{refs: 1}, world: w}
	self := newComObject(deviceVtable, uint64(w.addDevice(d)))
	return w, uint64(self)
}

func TestCreateBufferCopiesInitialData(t *testing.T) {
	w, self := newTestDevice(t)
	h := deviceMethods(w)
	const createBuffer = 3

	desc := make([]byte, 4)
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0])), 8)
	initData := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	subresource := make([]byte, 8)
	gmem.PutU64(uintptr(unsafe.Pointer(&subresource[0])), uint64(uintptr(unsafe.Pointer(&initData[0]))))

	out, read := outParam(t)
	hr := h[createBuffer]([abi.MaxArgs]uint64{
		self,
		uint64(uintptr(unsafe.Pointer(&desc[0]))),
		uint64(uintptr(unsafe.Pointer(&subresource[0]))),
		uint64(out),
	}, 0)
	if hr != sOK {
		t.Fatalf("CreateBuffer = 0x%x, want S_OK", hr)
	}

	ptr := read()
	if ptr == 0 {
		t.Fatal("CreateBuffer did not write a resource pointer")
	}
	res, ok := w.resources.Get(selfIndex(ptr))
	if !ok {
		t.Fatal("resource not registered")
	}
	if res.Kind != ResourceBuffer {
		t.Fatalf("Kind = %v, want ResourceBuffer", res.Kind)
	}
	if len(res.Buffer) != 8 || res.Buffer[0] != 1 || res.Buffer[7] != 8 {
		t.Fatalf("Buffer = %v, want initial data copied in", res.Buffer)
	}
}

func TestCreateTexture2DAllocatesPixelsForColorFormat(t *testing.T) {
	w, self := newTestDevice(t)
	h := deviceMethods(w)
	const createTexture2D = 4

	desc := make([]byte, 16)
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0])), 4)   // width
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0]))+4, 3) // height
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0]))+12, 0)

	out, read := outParam(t)
	hr := h[createTexture2D]([abi.MaxArgs]uint64{self, uint64(uintptr(unsafe.Pointer(&desc[0]))), 0, uint64(out)}, 0)
	if hr != sOK {
		t.Fatalf("CreateTexture2D = 0x%x, want S_OK", hr)
	}

	res, ok := w.resources.Get(selfIndex(read()))
	if !ok {
		t.Fatal("resource not registered")
	}
	if res.Width != 4 || res.Height != 3 {
		t.Fatalf("dimensions = %dx%d, want 4x3", res.Width, res.Height)
	}
	if len(res.Pixels) != 4*3*4 {
		t.Fatalf("len(Pixels) = %d, want %d", len(res.Pixels), 4*3*4)
	}
	if res.Depth != nil {
		t.Fatal("color texture should not allocate a Depth store")
	}
}

func TestCreateTexture2DAllocatesDepthForDepthFormat(t *testing.T) {
	w, self := newTestDevice(t)
	h := deviceMethods(w)
	const createTexture2D = 4

	desc := make([]byte, 16)
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0])), 2)
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0]))+4, 2)
	gmem.PutU32(uintptr(unsafe.Pointer(&desc[0]))+12, dxgiFormatD32Float)

	out, read := outParam(t)
	h[createTexture2D]([abi.MaxArgs]uint64{self, uint64(uintptr(unsafe.Pointer(&desc[0]))), 0, uint64(out)}, 0)

	res, ok := w.resources.Get(selfIndex(read()))
	if !ok {
		t.Fatal("resource not registered")
	}
	if res.Pixels != nil {
		t.Fatal("depth texture should not allocate a Pixels store")
	}
	if len(res.Depth) != 4 {
		t.Fatalf("len(Depth) = %d, want 4", len(res.Depth))
	}
}
