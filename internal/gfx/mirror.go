package gfx

import (
	"os"
	"sync"

	"github.com/cau-citcwalker/citcrun/internal/diag"
	"github.com/cau-citcwalker/citcrun/internal/gfx/vkmirror"
)

// mirrorState lazily owns the optional Vulkan hardware mirror: citcrun
// runs perfectly well without a GPU (every pixel the guest sees comes
// from the software rasterizer), so this is opt-in via CITC_VK_MIRROR and
// never on the critical path of a Present that doesn't want it.
type mirrorState struct {
	once    sync.Once
	enabled bool
	m       *vkmirror.Mirror
}

var mirror mirrorState

// mirrorPresentedFrame uploads pixels into the Vulkan mirror backend when
// CITC_VK_MIRROR is set, logging (not failing) on any Vulkan error — a
// guest's Present must never fail because no GPU happened to be present.
func mirrorPresentedFrame(pixels []byte) {
	mirror.once.Do(func() {
		if os.Getenv("CITC_VK_MIRROR") == "" {
			return
		}
		m, err := vkmirror.New()
		if err != nil {
			diag.Printf(diag.Graphics, "vulkan mirror unavailable: %v", err)
			return
		}
		mirror.m = m
		mirror.enabled = true
	})
	if !mirror.enabled {
		return
	}
	if err := mirror.m.Mirror(pixels); err != nil {
		diag.Printf(diag.Graphics, "vulkan mirror upload failed: %v", err)
	}
}
