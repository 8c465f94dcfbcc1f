// Package gfx is the graphics core: DXGI/D3D11 COM surrogates, the DXBC
// parser and SM4 interpreter, the DXBC->SPIR-V translator with its disk
// cache, and the software triangle rasterizer.
//
// Grounded on video_voodoo.go's VoodooEngine/VoodooBackend split (a
// register-interface object driving a swappable backend) generalized to
// COM vtables whose handlers drive the CPU rasterizer directly,
// and on that file's fixed-capacity-array-with-active-flags object table
// idiom plus debug_monitor.go's CPUEntry-style ID-table pattern.
package gfx

import "sync"

// Per-kind table capacities, matching spec.md §4.6's object table sizes.
const (
	maxResources     = 256
	maxViews         = 128
	maxShaders       = 64
	maxInputLayouts  = 32
	maxStates        = 64
	maxSamplers      = 32
	maxInputElements = 16
)

// ResourceKind tags whether a Resource record backs a buffer or a
// texture2d.
type ResourceKind int

const (
	ResourceBuffer ResourceKind = iota
	ResourceTexture2D
)

// Resource is one entry in the resource table: either a flat byte buffer
// (vertex/index/constant) or a 2D texture owning either an RGB pixel
// store or a depth-float store, never both, per spec.md §3.
type Resource struct {
	Kind ResourceKind
	Refs int32

	// Buffer backing.
	Buffer []byte

	// Texture2D backing.
	Width, Height int
	Pixels        []byte    // RGBA8, when this is a color texture
	Depth         []float32 // depth-float store, when this is a depth texture
	SwapChainOwned bool     // true for the swap-chain-origin back-buffer: lifetime tied to the swap chain, this table does not own Pixels
}

// ViewKind tags which of the three view flavors a View record is.
type ViewKind int

const (
	ViewRTV ViewKind = iota
	ViewSRV
	ViewDSV
)

// View is a typed lens on a Resource, referenced by table index rather
// than by pointer so resource/view cross-references never form a cycle
// (spec.md §9 "Cyclic / back-reference graphs").
type View struct {
	Kind        ViewKind
	ResourceIdx int
	Refs        int32
}

// ShaderStage distinguishes a vertex shader from a pixel shader.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StagePixel
)

// Shader holds a DXBC blob plus whatever the parser and translator
// produced from it.
type Shader struct {
	Stage  ShaderStage
	Raw    []byte
	Parsed *ParsedShader
	SPIRV  []byte // nil until DXBC->SPIR-V translation has run and succeeded
	Refs   int32
}

// InputElement is one entry of an input-layout's element array.
type InputElement struct {
	SemanticName  string
	SemanticIndex uint32
	Format        uint32
	InputSlot     uint32
	AlignedOffset uint32
}

// InputLayout is a guest-declared vertex layout: up to 16 elements,
// matching spec.md §4.6.
type InputLayout struct {
	Elements []InputElement
	Refs     int32
}

// StateKind tags which of the three fixed-function state unions a State
// record holds.
type StateKind int

const (
	StateDepthStencil StateKind = iota
	StateBlend
	StateRasterizer
)

// DepthStencilDesc mirrors the D3D11_DEPTH_STENCIL_DESC fields this core
// honors.
type DepthStencilDesc struct {
	DepthEnable    bool
	DepthWriteMask bool
	DepthFunc      CompareFunc
}

// BlendDesc mirrors the subset of D3D11_BLEND_DESC this core honors: a
// single RGBA blend-enable flag plus source/destination factors.
type BlendDesc struct {
	BlendEnable bool
	SrcBlend    BlendFactor
	DestBlend   BlendFactor
}

// RasterizerDesc mirrors the D3D11_RASTERIZER_DESC fields this core
// honors: fill mode is always solid (wireframe is a Non-goal), cull mode
// selects front/back/none culling by triangle winding.
type RasterizerDesc struct {
	CullMode    CullMode
	FrontCounterClockwise bool
}

// State is a union record: exactly one of the three descs is meaningful,
// selected by Kind.
type State struct {
	Kind         StateKind
	DepthStencil DepthStencilDesc
	Blend        BlendDesc
	Rasterizer   RasterizerDesc
	Refs         int32
}

// AddressMode is one of the three texture-coordinate wrapping modes
// spec.md §4.6 names.
type AddressMode int

const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressMirror
)

// Sampler mirrors the D3D11_SAMPLER_DESC fields this core honors: nearest
// filtering only (bilinear/anisotropic are Non-goals), address mode per
// axis.
type Sampler struct {
	AddressU, AddressV AddressMode
	Refs               int32
}

// resourceTable, like every per-kind table below, is a fixed-capacity
// slot array: active flags plus linear-scan allocation under a mutex,
// the same shape internal/handle.Table uses for the process handle
// table, written out per kind instead of being generic over Go's type
// parameters so each table's zero value is meaningful on its own.
type resourceTable struct {
	mu     sync.Mutex
	active [maxResources]bool
	items  [maxResources]Resource
}

func (t *resourceTable) Alloc(r Resource) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = r
			return i, true
		}
	}
	return 0, false
}

func (t *resourceTable) Get(i int) (*Resource, bool) {
	if i < 0 || i >= maxResources || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}

func (t *resourceTable) Free(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < maxResources {
		t.active[i] = false
		t.items[i] = Resource{}
	}
}

type viewTable struct {
	mu     sync.Mutex
	active [maxViews]bool
	items  [maxViews]View
}

func (t *viewTable) Alloc(v View) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = v
			return i, true
		}
	}
	return 0, false
}

func (t *viewTable) Get(i int) (*View, bool) {
	if i < 0 || i >= maxViews || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}

func (t *viewTable) Free(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < maxViews {
		t.active[i] = false
	}
}

type shaderTable struct {
	mu     sync.Mutex
	active [maxShaders]bool
	items  [maxShaders]Shader
}

func (t *shaderTable) Alloc(s Shader) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = s
			return i, true
		}
	}
	return 0, false
}

func (t *shaderTable) Get(i int) (*Shader, bool) {
	if i < 0 || i >= maxShaders || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}

type layoutTable struct {
	mu     sync.Mutex
	active [maxInputLayouts]bool
	items  [maxInputLayouts]InputLayout
}

func (t *layoutTable) Alloc(l InputLayout) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = l
			return i, true
		}
	}
	return 0, false
}

func (t *layoutTable) Get(i int) (*InputLayout, bool) {
	if i < 0 || i >= maxInputLayouts || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}

type stateTable struct {
	mu     sync.Mutex
	active [maxStates]bool
	items  [maxStates]State
}

func (t *stateTable) Alloc(s State) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = s
			return i, true
		}
	}
	return 0, false
}

func (t *stateTable) Get(i int) (*State, bool) {
	if i < 0 || i >= maxStates || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}

type samplerTable struct {
	mu     sync.Mutex
	active [maxSamplers]bool
	items  [maxSamplers]Sampler
}

func (t *samplerTable) Alloc(s Sampler) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.active {
		if !t.active[i] {
			t.active[i] = true
			t.items[i] = s
			return i, true
		}
	}
	return 0, false
}

func (t *samplerTable) Get(i int) (*Sampler, bool) {
	if i < 0 || i >= maxSamplers || !t.active[i] {
		return nil, false
	}
	return &t.items[i], true
}
