package gfx

import "sync"

// Compositor is the contract spec.md §1/§2 describes as an out-of-scope
// external collaborator: whoever owns the final window pixel buffer.
// The swap chain's Present only needs this much of it — a sized RGBA8
// surface to copy the finished frame into, and a way to signal that a
// new frame is ready. citcrun ships one trivial headless implementation
// (below) so the core runs standalone; cmd/citcview attaches a real one
// backed by an ebiten window.
type Compositor interface {
	// Surface returns the current window surface's width, height, and
	// RGBA8 pixel buffer. Either dimension may be 0 before the window has
	// been sized, matching spec.md's swap-chain-falls-back-to-window-size
	// rule.
	Surface() (w, h int, pixels []byte)
	// Commit is called once per Present after the swap chain has copied
	// its back-buffer into the surface returned by Surface.
	Commit()
}

// headlessCompositor is citcrun's default Compositor: an in-memory
// surface nothing ever displays, sized on first use from the swap
// chain's own back-buffer dimensions. This keeps Present meaningful
// (spec.md's "copies... into the destination window surface") even when
// no real window-owning collaborator is attached, which is the common
// case for --info/--monitor runs and for guest programs this core
// drives headlessly in tests.
type headlessCompositor struct {
	mu     sync.Mutex
	w, h   int
	pixels []byte
}

func newHeadlessCompositor() *headlessCompositor {
	return &headlessCompositor{}
}

func (c *headlessCompositor) Surface() (int, int, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w, c.h, c.pixels
}

func (c *headlessCompositor) Commit() {}

// resize grows the headless surface to w x h if it is currently smaller
// or unset; called by the swap chain the first time it needs a
// destination surface and finds none sized yet.
func (c *headlessCompositor) resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w <= c.w && h <= c.h && c.pixels != nil {
		return
	}
	c.w, c.h = w, h
	c.pixels = make([]byte, w*h*4)
}

// SetCompositor attaches the real window-owning collaborator (e.g.
// cmd/citcview's ebiten-backed one), replacing the default headless one.
// Called once by the host embedding citcrun before the guest's first
// Present, matching spec.md §9's process-singleton init-once discipline.
func (w *World) SetCompositor(c Compositor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.compositor = c
}

func (w *World) compositorOrDefault() Compositor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.compositor == nil {
		w.compositor = newHeadlessCompositor()
	}
	return w.compositor
}
