// D3D11 surrogate: device + immediate context object state, and the COM
// vtables a guest's IAT import of d3d11.dll resolves to. Grounded on
// video_voodoo.go's VoodooEngine/VoodooBackend split (a register-interface
// object driving a swappable backend), generalized here to a device/
// context pair driving the object tables in tables.go and the rasterizer
// in rasterizer.go.
package gfx

import (
	"math"
	"unsafe"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
)

const unbound = -1

func readF32(addr uintptr) float32 {
	return math.Float32frombits(gmem.U32(addr))
}

// deviceState backs one ID3D11Device instance: nothing but a pointer
// back to the shared World, since every resource/view/shader table is
// already process-global per spec.md §9.
type deviceState struct {
	refCounted
	world *World
}

// cbSlot is one bound constant buffer: a resource-table index only. The
// constants are read directly out of the resource's whole backing buffer
// at draw time.
type cbSlot struct {
	resIdx int // unbound if < 0
}

const (
	cbSlots  = 8
	srvSlots = 8
	smpSlots = 8
)

// contextState backs the single immediate context spec.md §3 describes:
// current IA/VS/PS/OM/RS bindings. citcrun only ever constructs one
// (spec.md §5 "a single immediate context is expected").
type contextState struct {
	refCounted
	world *World

	vertexBufIdx  int
	indexBufIdx   int
	indexFormat32 bool
	baseVertex    int
	layoutIdx     int
	topology      PrimitiveTopology

	vsIdx, psIdx int
	vsCB, psCB   [cbSlots]cbSlot
	psSRV        [srvSlots]int
	psSampler    [smpSlots]int

	rtvIdx, dsvIdx   int
	dsStateIdx       int
	blendStateIdx    int
	rasterStateIdx   int
	stencilRef       uint32
	viewport         Viewport
}

func newContextState(w *World) *contextState {
	c := &contextState{world: w, refCounted: refCounted{refs: 1}}
	c.vertexBufIdx, c.indexBufIdx, c.layoutIdx = unbound, unbound, unbound
	c.vsIdx, c.psIdx = unbound, unbound
	c.rtvIdx, c.dsvIdx = unbound, unbound
	c.dsStateIdx, c.blendStateIdx, c.rasterStateIdx = unbound, unbound, unbound
	for i := range c.vsCB {
		c.vsCB[i].resIdx = unbound
	}
	for i := range c.psCB {
		c.psCB[i].resIdx = unbound
	}
	for i := range c.psSRV {
		c.psSRV[i] = unbound
	}
	for i := range c.psSampler {
		c.psSampler[i] = unbound
	}
	return c
}

// --- device vtable ---

// deviceMethods is built exactly once and shared by every deviceState
// instance, per vtable.go's newComObject convention: the vtable pointer
// identifies the interface, the self-index (stored in the object's
// header) identifies which deviceState a given call operates on.
var deviceVtable uintptr

func deviceMethods(w *World) []abi.Handler {
	dev := func(self int) *deviceState { return w.device(self) }
	h := iunknownMethods(func(self int) *refCounted { return &dev(self).refCounted })

	h = append(h,
		// CreateBuffer(this, desc*, initData*, ppBuffer*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr, initData, out := uintptr(a[1]), uintptr(a[2]), uintptr(a[3])
			byteWidth := gmem.U32(descAddr)
			buf := make([]byte, byteWidth)
			if initData != 0 {
				src := gmem.U64(initData) // D3D11_SUBRESOURCE_DATA.pSysMem
				if src != 0 {
					copy(buf, gmem.Slice(uintptr(src), int(byteWidth)))
				}
			}
			idx, ok := w.resources.Alloc(Resource{Kind: ResourceBuffer, Buffer: buf, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, out, kindResource, idx)
			return sOK
		},
		// CreateTexture2D(this, desc*, initData*, ppTexture*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr, initData, out := uintptr(a[1]), uintptr(a[2]), uintptr(a[3])
			width := gmem.U32(descAddr)
			height := gmem.U32(descAddr + 4)
			format := gmem.U32(descAddr + 12)
			res := Resource{Kind: ResourceTexture2D, Width: int(width), Height: int(height)}
			if format == dxgiFormatD32Float {
				res.Depth = make([]float32, int(width)*int(height))
			} else {
				res.Pixels = make([]byte, int(width)*int(height)*4)
				if initData != 0 {
					src := gmem.U64(initData)
					if src != 0 {
						copy(res.Pixels, gmem.Slice(uintptr(src), len(res.Pixels)))
					}
				}
			}
			res.Refs = 1
			idx, ok := w.resources.Alloc(res)
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, out, kindResource, idx)
			return sOK
		},
		// CreateShaderResourceView(this, resource, desc*, ppView*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			resIdx := decodeHandle(a[1])
			idx, ok := w.views.Alloc(View{Kind: ViewSRV, ResourceIdx: resIdx, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[3]), kindView, idx)
			return sOK
		},
		// CreateRenderTargetView(this, resource, desc*, ppView*). The
		// swap-chain-as-resource special case from spec.md §4.6
		// ("GetBuffer returns the swap chain itself... recognizes this
		// case") is handled by GetBuffer registering a non-owning
		// resource up front, so this method never needs to special-case
		// anything beyond an ordinary resource index.
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			resIdx := decodeHandle(a[1])
			idx, ok := w.views.Alloc(View{Kind: ViewRTV, ResourceIdx: resIdx, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[3]), kindView, idx)
			return sOK
		},
		// CreateDepthStencilView(this, resource, desc*, ppView*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			resIdx := decodeHandle(a[1])
			idx, ok := w.views.Alloc(View{Kind: ViewDSV, ResourceIdx: resIdx, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[3]), kindView, idx)
			return sOK
		},
		// CreateInputLayout(this, pInputElementDescs, NumElements,
		// pShaderBytecodeWithInputSignature, BytecodeLength,
		// ppInputLayout): ppInputLayout is the 6th argument,
		// stack-spilled; a[3] is the bytecode pointer this core doesn't
		// need to validate the signature against.
		func(a [abi.MaxArgs]uint64, stack abi.StackArgs) uint64 {
			elemsAddr := uintptr(a[1])
			count := int(a[2])
			if count > maxInputElements {
				count = maxInputElements
			}
			layout := InputLayout{Refs: 1}
			const elemStride = 32 // {nameOffset u64, semanticIndex u32, format u32, slot u32, alignedOffset u32, pad u32}
			for i := 0; i < count; i++ {
				base := elemsAddr + uintptr(i)*elemStride
				nameAddr := gmem.U64(base)
				layout.Elements = append(layout.Elements, InputElement{
					SemanticName:  gmem.CString(uintptr(nameAddr), 32),
					SemanticIndex: gmem.U32(base + 8),
					Format:        gmem.U32(base + 12),
					InputSlot:     gmem.U32(base + 16),
					AlignedOffset: gmem.U32(base + 20),
				})
			}
			idx, ok := w.layouts.Alloc(layout)
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(stack.Arg(6)), kindLayout, idx)
			return sOK
		},
		// CreateVertexShader(this, bytecode, len, linkage, ppShader*)
		func(a [abi.MaxArgs]uint64, stack abi.StackArgs) uint64 {
			return createShader(w, a, stack, StageVertex)
		},
		// CreatePixelShader(this, bytecode, len, linkage, ppShader*)
		func(a [abi.MaxArgs]uint64, stack abi.StackArgs) uint64 {
			return createShader(w, a, stack, StagePixel)
		},
		// CreateDepthStencilState(this, desc*, ppState*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr := uintptr(a[1])
			desc := DepthStencilDesc{
				DepthEnable:    gmem.Bool(uint64(gmem.U32(descAddr))),
				DepthWriteMask: gmem.U32(descAddr+4) != 0,
				DepthFunc:      CompareFunc(gmem.U32(descAddr + 8)),
			}
			idx, ok := w.states.Alloc(State{Kind: StateDepthStencil, DepthStencil: desc, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[2]), kindState, idx)
			return sOK
		},
		// CreateBlendState(this, desc*, ppState*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr := uintptr(a[1])
			desc := BlendDesc{
				BlendEnable: gmem.Bool(uint64(gmem.U32(descAddr))),
				SrcBlend:    BlendFactor(gmem.U32(descAddr + 4)),
				DestBlend:   BlendFactor(gmem.U32(descAddr + 8)),
			}
			idx, ok := w.states.Alloc(State{Kind: StateBlend, Blend: desc, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[2]), kindState, idx)
			return sOK
		},
		// CreateRasterizerState(this, desc*, ppState*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr := uintptr(a[1])
			desc := RasterizerDesc{
				CullMode:              CullMode(gmem.U32(descAddr + 4)),
				FrontCounterClockwise: gmem.U32(descAddr+8) != 0,
			}
			idx, ok := w.states.Alloc(State{Kind: StateRasterizer, Rasterizer: desc, Refs: 1})
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[2]), kindState, idx)
			return sOK
		},
		// CreateSamplerState(this, desc*, ppSampler*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			descAddr := uintptr(a[1])
			s := Sampler{
				AddressU: AddressMode(gmem.U32(descAddr + 4)),
				AddressV: AddressMode(gmem.U32(descAddr + 8)),
			}
			idx, ok := w.samplers.Alloc(s)
			if !ok {
				return eOutOfMemory
			}
			writeHandleOut(w, uintptr(a[2]), kindSampler, idx)
			return sOK
		},
		// GetImmediateContext(this, ppContext*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx := newContextState(w)
			idx := w.addContext(ctx)
			ptr := newComObject(contextVtable, uint64(idx))
			gmem.PutU64(uintptr(a[1]), uint64(ptr))
			return sOK
		},
	)
	return h
}

func createShader(w *World, a [abi.MaxArgs]uint64, stack abi.StackArgs, stage ShaderStage) uint64 {
	bytecodeAddr, length, out := uintptr(a[1]), int(a[2]), uintptr(stack.Arg(5))
	raw := make([]byte, length)
	copy(raw, gmem.Slice(bytecodeAddr, length))
	parsed, err := ParseDXBC(raw)
	if err != nil {
		return eFail
	}
	sh := Shader{Stage: stage, Raw: raw, Parsed: parsed, Refs: 1}
	if spirv, err := w.cache.TranslateCached(raw); err == nil {
		sh.SPIRV = spirv
	}
	idx, ok := w.shaders.Alloc(sh)
	if !ok {
		return eOutOfMemory
	}
	writeHandleOut(w, out, kindShader, idx)
	return sOK
}

// --- context vtable ---

var contextVtable uintptr

func contextMethods(w *World) []abi.Handler {
	ctx := func(self int) *contextState { return w.context(self) }
	h := iunknownMethods(func(self int) *refCounted { return &ctx(self).refCounted })

	h = append(h,
		// IASetVertexBuffers(this, startSlot, numBuffers, ppBuffers, strides, offsets)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			bufPtr := uintptr(a[3])
			c.vertexBufIdx = decodeHandle(gmem.U64(bufPtr))
			return 0
		},
		// IASetIndexBuffer(this, buffer, format, offset)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			c.indexBufIdx = decodeHandle(a[1])
			c.indexFormat32 = a[2] == dxgiFormatR32Uint
			return 0
		},
		// IASetInputLayout(this, layout)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).layoutIdx = decodeHandle(a[1])
			return 0
		},
		// IASetPrimitiveTopology(this, topology)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).topology = PrimitiveTopology(a[1])
			return 0
		},
		// VSSetShader(this, shader, ...)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).vsIdx = decodeHandle(a[1])
			return 0
		},
		// PSSetShader(this, shader, ...)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).psIdx = decodeHandle(a[1])
			return 0
		},
		// VSSetConstantBuffers(this, startSlot, numBuffers, ppBuffers)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			setConstantBuffers(&ctx(selfIndex(a[0])).vsCB, a)
			return 0
		},
		// PSSetConstantBuffers(this, startSlot, numBuffers, ppBuffers)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			setConstantBuffers(&ctx(selfIndex(a[0])).psCB, a)
			return 0
		},
		// PSSetShaderResources(this, startSlot, numViews, ppViews)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			start := int(a[1])
			n := int(a[2])
			ptrs := uintptr(a[3])
			for i := 0; i < n && start+i < srvSlots; i++ {
				c.psSRV[start+i] = decodeHandle(gmem.U64(ptrs + uintptr(i)*8))
			}
			return 0
		},
		// PSSetSamplers(this, startSlot, numSamplers, ppSamplers)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			start := int(a[1])
			n := int(a[2])
			ptrs := uintptr(a[3])
			for i := 0; i < n && start+i < smpSlots; i++ {
				c.psSampler[start+i] = decodeHandle(gmem.U64(ptrs + uintptr(i)*8))
			}
			return 0
		},
		// OMSetRenderTargets(this, numViews, ppRTVs, dsv)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			n := int(a[1])
			if n > 0 {
				c.rtvIdx = decodeHandle(gmem.U64(uintptr(a[2])))
			} else {
				c.rtvIdx = unbound
			}
			c.dsvIdx = decodeHandle(a[3])
			return 0
		},
		// RSSetViewports(this, numViewports, viewports*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			vpAddr := uintptr(a[2])
			c.viewport = Viewport{
				X: readF32(vpAddr), Y: readF32(vpAddr + 4),
				Width: readF32(vpAddr + 8), Height: readF32(vpAddr + 12),
			}
			return 0
		},
		// OMSetDepthStencilState(this, state, stencilRef)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			c.dsStateIdx = decodeHandle(a[1])
			c.stencilRef = uint32(a[2])
			return 0
		},
		// OMSetBlendState(this, state, blendFactor*, sampleMask)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).blendStateIdx = decodeHandle(a[1])
			return 0
		},
		// RSSetState(this, state)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).rasterStateIdx = decodeHandle(a[1])
			return 0
		},
		// ClearRenderTargetView(this, rtv, color*)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			viewIdx := decodeHandle(a[1])
			colorAddr := uintptr(a[2])
			v, ok := c.world.views.Get(viewIdx)
			if !ok {
				return 0
			}
			res, ok := c.world.resources.Get(v.ResourceIdx)
			if !ok || res.Pixels == nil {
				return 0
			}
			r, g, b, al := saturateByte(readF32(colorAddr)), saturateByte(readF32(colorAddr+4)), saturateByte(readF32(colorAddr+8)), saturateByte(readF32(colorAddr+12))
			for i := 0; i+3 < len(res.Pixels); i += 4 {
				res.Pixels[i], res.Pixels[i+1], res.Pixels[i+2], res.Pixels[i+3] = r, g, b, al
			}
			return 0
		},
		// ClearDepthStencilView(this, dsv, flags, depth, stencil)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			viewIdx := decodeHandle(a[1])
			depth := readF32(uintptr(a[3]))
			v, ok := c.world.views.Get(viewIdx)
			if !ok {
				return 0
			}
			res, ok := c.world.resources.Get(v.ResourceIdx)
			if !ok || res.Depth == nil {
				return 0
			}
			for i := range res.Depth {
				res.Depth[i] = depth
			}
			return 0
		},
		// Map(this, resource, subresource, mapType, flags, mappedResource*):
		// this core always maps the whole buffer/texture directly since
		// there is no separate GPU-resident copy to synchronize with.
		func(a [abi.MaxArgs]uint64, stack abi.StackArgs) uint64 {
			resIdx := decodeHandle(a[1])
			out := uintptr(stack.Arg(6))
			res, ok := w.resources.Get(resIdx)
			if !ok {
				return eInvalidArg
			}
			var ptr uintptr
			var rowPitch uint32
			if res.Kind == ResourceBuffer {
				if len(res.Buffer) > 0 {
					ptr = uintptr(unsafe.Pointer(&res.Buffer[0]))
				}
			} else if len(res.Pixels) > 0 {
				ptr = uintptr(unsafe.Pointer(&res.Pixels[0]))
				rowPitch = uint32(res.Width * 4)
			}
			gmem.PutU64(out, uint64(ptr))
			gmem.PutU32(out+8, rowPitch)
			return sOK
		},
		// Unmap(this, resource, subresource): no GPU copy to flush, no-op.
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 { return 0 },
		// UpdateSubresource(this, resource, subresource, box, data, rowPitch)
		func(a [abi.MaxArgs]uint64, stack abi.StackArgs) uint64 {
			resIdx := decodeHandle(a[1])
			src := uintptr(stack.Arg(5))
			res, ok := w.resources.Get(resIdx)
			if !ok || src == 0 {
				return 0
			}
			if res.Kind == ResourceBuffer {
				copy(res.Buffer, gmem.Slice(src, len(res.Buffer)))
			} else if res.Pixels != nil {
				copy(res.Pixels, gmem.Slice(src, len(res.Pixels)))
			}
			return 0
		},
		// Draw(this, vertexCount, startVertex)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			ctx(selfIndex(a[0])).draw(int(a[1]), int(a[2]), false)
			return 0
		},
		// DrawIndexed(this, indexCount, startIndex, baseVertex)
		func(a [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
			c := ctx(selfIndex(a[0]))
			c.baseVertex = int(a[3])
			c.draw(int(a[1]), int(a[2]), true)
			return 0
		},
	)
	return h
}

func setConstantBuffers(slots *[cbSlots]cbSlot, a [abi.MaxArgs]uint64) {
	start := int(a[1])
	n := int(a[2])
	ptrs := uintptr(a[3])
	for i := 0; i < n && start+i < cbSlots; i++ {
		slots[start+i].resIdx = decodeHandle(gmem.U64(ptrs + uintptr(i)*8))
	}
}

// draw implements spec.md §4.6's per-triangle pipeline: only
// triangle_list is rendered (other topologies are silently skipped),
// vertices come from the bound vertex buffer (optionally indexed through
// the index buffer), each triangle is vertex-shaded (VS-VM if bound,
// else fixed-function pass-through optionally transformed by VS CB
// slot 0) and handed to DrawTriangle.
func (c *contextState) draw(count, start int, indexed bool) {
	if c.topology != TopologyTriangleList || count < 3 {
		return
	}
	w := c.world
	vbRes, ok := w.resources.Get(c.vertexBufIdx)
	if !ok {
		return
	}
	stride := vertexStride(w, c.layoutIdx)
	if stride == 0 {
		return
	}

	var ibRes *Resource
	if indexed {
		ibRes, ok = w.resources.Get(c.indexBufIdx)
		if !ok {
			return
		}
	}

	rtv, ok := w.views.Get(c.rtvIdx)
	if !ok {
		return
	}
	rtRes, ok := w.resources.Get(rtv.ResourceIdx)
	if !ok || rtRes.Pixels == nil {
		return
	}
	rt := &RenderTarget{Width: rtRes.Width, Height: rtRes.Height, Pixels: rtRes.Pixels}

	var depth *DepthBuffer
	var ds DepthState
	if dsv, ok := w.views.Get(c.dsvIdx); ok {
		if dRes, ok := w.resources.Get(dsv.ResourceIdx); ok && dRes.Depth != nil {
			depth = &DepthBuffer{Width: dRes.Width, Height: dRes.Height, Values: dRes.Depth}
		}
	}
	if st, ok := w.states.Get(c.dsStateIdx); ok && st.Kind == StateDepthStencil {
		ds = DepthState{Enable: st.DepthStencil.DepthEnable, WriteMask: st.DepthStencil.DepthWriteMask, Func: st.DepthStencil.DepthFunc}
	}
	var rs RasterState
	if st, ok := w.states.Get(c.rasterStateIdx); ok && st.Kind == StateRasterizer {
		rs = RasterState{Cull: st.Rasterizer.CullMode, FrontCounterClockwise: st.Rasterizer.FrontCounterClockwise}
	}

	vsShader, _ := w.shaders.Get(c.vsIdx)
	psShader, _ := w.shaders.Get(c.psIdx)

	var xform *[16]float32
	if cb, ok := resolveCB(w, c.vsCB[0]); ok && len(cb) >= 64 {
		var m [16]float32
		for i := range m {
			m[i] = readF32(uintptr(unsafe.Pointer(&cb[i*4])))
		}
		xform = &m
	}

	var psVM *VM
	var psTokens []uint32
	if psShader != nil && psShader.Parsed != nil {
		psVM = &VM{}
		psTokens = psShader.Parsed.Tokens
		bindConstantBuffers(w, psVM, &c.psCB)
	}

	var tex *TextureSource
	if psVM == nil {
		if srv, ok := w.views.Get(c.psSRV[0]); ok {
			if texRes, ok := w.resources.Get(srv.ResourceIdx); ok && texRes.Pixels != nil {
				s := Sampler{}
				if sm, ok := w.samplers.Get(c.psSampler[0]); ok {
					s = *sm
				}
				tex = &TextureSource{Tex: texRes, Sampler: s}
			}
		}
	}

	for tri := 0; tri+2 < count; tri += 3 {
		var verts [3]Vertex
		for k := 0; k < 3; k++ {
			idx := start + tri + k
			vi := idx
			if indexed && ibRes != nil {
				vi = c.baseVertex + readIndex(ibRes.Buffer, idx, c.indexFormat32)
			}
			verts[k] = shadeVertex(w, vbRes.Buffer, vi, stride, vsShader, xform, &c.vsCB)
		}
		var vm *VM
		var toks []uint32
		if psVM != nil {
			vm = psVM
			toks = psTokens
		}
		DrawTriangle(rt, depth, ds, rs, c.viewport, verts, psVMSource(vm, toks), tex)
	}
}

func psVMSource(vm *VM, tokens []uint32) *PixelSource {
	if vm == nil {
		return nil
	}
	return &PixelSource{VM: vm, Tokens: tokens}
}

func readIndex(buf []byte, i int, is32 bool) int {
	if is32 {
		off := i * 4
		if off+4 > len(buf) {
			return 0
		}
		return int(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24)
	}
	off := i * 2
	if off+2 > len(buf) {
		return 0
	}
	return int(uint16(buf[off]) | uint16(buf[off+1])<<8)
}

// vertexStride returns the input layout's per-vertex byte size by taking
// the highest element offset plus 16 bytes (this core only carries
// float4 position/color/texcoord-shaped attributes, per spec.md's
// teaching-grade Vertex shape).
func vertexStride(w *World, layoutIdx int) int {
	l, ok := w.layouts.Get(layoutIdx)
	if !ok || len(l.Elements) == 0 {
		return 32 // pos(16)+color(16) fallback matching the spec's example vertex
	}
	max := uint32(0)
	for _, e := range l.Elements {
		if e.AlignedOffset > max {
			max = e.AlignedOffset
		}
	}
	return int(max) + 16
}

// shadeVertex reads one vertex's raw bytes (position[4]/color[4] layout,
// matching spec.md's test-case vertex shape) and either runs the VS-VM
// or applies the fixed-function pass-through, optionally transformed by
// xform, per spec.md §4.6 step 1.
func shadeVertex(w *World, buf []byte, idx, stride int, vs *Shader, xform *[16]float32, vsCB *[cbSlots]cbSlot) Vertex {
	off := idx * stride
	if off+32 > len(buf) {
		return Vertex{Pos: [4]float32{0, 0, 0, 1}}
	}
	read4 := func(o int) [4]float32 {
		var v [4]float32
		for i := 0; i < 4; i++ {
			v[i] = readF32(uintptr(unsafe.Pointer(&buf[o+i*4])))
		}
		return v
	}
	pos := read4(off)
	color := read4(off + 16)

	if vs != nil && vs.Parsed != nil {
		vm := &VM{}
		vm.In[0] = vec4(pos)
		vm.In[1] = vec4(color)
		bindConstantBuffers(w, vm, vsCB)
		vm.Execute(vs.Parsed.Tokens)
		return Vertex{Pos: [4]float32(vm.Out[0]), Color: [4]float32(vm.Out[1])}
	}

	if xform != nil {
		pos = mulMat4(*xform, pos)
	}
	return Vertex{Pos: pos, Color: color}
}

func mulMat4(m [16]float32, v [4]float32) [4]float32 {
	var out [4]float32
	for r := 0; r < 4; r++ {
		out[r] = m[r*4+0]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

func resolveCB(w *World, slot cbSlot) ([]byte, bool) {
	if slot.resIdx < 0 {
		return nil, false
	}
	res, ok := w.resources.Get(slot.resIdx)
	if !ok {
		return nil, false
	}
	return res.Buffer, true
}

func bindConstantBuffers(w *World, vm *VM, slots *[cbSlots]cbSlot) {
	for i, s := range slots {
		if i >= maxCBs {
			break
		}
		buf, ok := resolveCB(w, s)
		if !ok {
			continue
		}
		vm.CB[i] = ConstantBuffer{Data: bytesToVec4(buf)}
	}
}

// bytesToVec4 views a raw constant-buffer byte blob as the VM's
// register-file shape: one vec4 per 16 bytes, matching HLSL's default
// cbuffer packing rule for float4-sized fields.
func bytesToVec4(buf []byte) []vec4 {
	n := len(buf) / 16
	out := make([]vec4, n)
	for i := 0; i < n; i++ {
		for lane := 0; lane < 4; lane++ {
			off := i*16 + lane*4
			out[i][lane] = readF32(uintptr(unsafe.Pointer(&buf[off])))
		}
	}
	return out
}
