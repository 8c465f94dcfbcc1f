package gfx

import "sync"

// World is the single process-wide graphics runtime: every object table
// plus the small instance arrays backing device/context/swap-chain/
// factory/adapter COM objects, matching spec.md §9's "graphics object
// tables are process-singletons" note. The loader constructs exactly
// one of these (see New) before handing control to the guest.
type World struct {
	mu sync.Mutex

	resources resourceTable
	views     viewTable
	shaders   shaderTable
	layouts   layoutTable
	states    stateTable
	samplers  samplerTable

	devices    []*deviceState
	contexts   []*contextState
	swapchains []*swapChainState
	factories  []*factoryState
	adapters   []*adapterState

	cache      *ShaderCache
	compositor Compositor
}

// process holds the World most recently returned by New. The stub-table
// handlers close over their own World value and do not read it.
var process *World

// vtableOnce guards the one-time vtable construction: every vtable
// method is a trampoline from internal/abi's fixed pool, so rebuilding
// them per World would exhaust the pool. The method closures bind the
// first World constructed — in a real run that is the only World, per
// the init-once discipline spec.md §9 requires; tests that construct
// further Worlds drive the method slices directly rather than through
// the shared vtables.
var vtableOnce sync.Once

// New builds the process-wide graphics runtime and must be called
// before the loader resolves any d3d11.dll/dxgi.dll import.
func New() *World {
	w := &World{cache: NewShaderCache()}
	process = w
	vtableOnce.Do(func() {
		buildObjectTableVtables(w)
		deviceVtable = buildVtable(deviceMethods(w))
		contextVtable = buildVtable(contextMethods(w))
		factoryVtable = buildVtable(factoryMethods(w))
		adapterVtable = buildVtable(adapterMethods(w))
		swapChainVtable = buildVtable(swapChainMethods(w))
	})
	return w
}

func (w *World) addDevice(d *deviceState) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.devices = append(w.devices, d)
	return len(w.devices) - 1
}

func (w *World) addContext(c *contextState) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.contexts = append(w.contexts, c)
	return len(w.contexts) - 1
}

func (w *World) addSwapChain(s *swapChainState) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.swapchains = append(w.swapchains, s)
	return len(w.swapchains) - 1
}

func (w *World) addFactory(f *factoryState) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.factories = append(w.factories, f)
	return len(w.factories) - 1
}

func (w *World) addAdapter(a *adapterState) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.adapters = append(w.adapters, a)
	return len(w.adapters) - 1
}

func (w *World) device(i int) *deviceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.devices) {
		return nil
	}
	return w.devices[i]
}

func (w *World) context(i int) *contextState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.contexts) {
		return nil
	}
	return w.contexts[i]
}

func (w *World) swapChain(i int) *swapChainState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.swapchains) {
		return nil
	}
	return w.swapchains[i]
}

func (w *World) factory(i int) *factoryState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.factories) {
		return nil
	}
	return w.factories[i]
}

func (w *World) adapter(i int) *adapterState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.adapters) {
		return nil
	}
	return w.adapters[i]
}

// ShaderInfo is one row of the monitor's shader-table dump: enough to
// see what the guest compiled without exposing the table internals.
type ShaderInfo struct {
	Index    int
	Stage    ShaderStage
	RawBytes int
	NumTemp  uint32
	SPIRV    int // translated module size in bytes, 0 when translation failed
}

// ShaderInfos snapshots every live shader-table entry, in index order,
// for the --monitor debugger's shaders command.
func (w *World) ShaderInfos() []ShaderInfo {
	w.shaders.mu.Lock()
	defer w.shaders.mu.Unlock()
	var out []ShaderInfo
	for i, active := range w.shaders.active {
		if !active {
			continue
		}
		sh := &w.shaders.items[i]
		info := ShaderInfo{Index: i, Stage: sh.Stage, RawBytes: len(sh.Raw), SPIRV: len(sh.SPIRV)}
		if sh.Parsed != nil {
			info.NumTemp = sh.Parsed.NumTemp
		}
		out = append(out, info)
	}
	return out
}
