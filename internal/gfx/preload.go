package gfx

import (
	"errors"

	"github.com/cau-citcwalker/citcrun/internal/gfx/texload"
)

var errOutOfResources = errors.New("gfx: resource table full")

// LoadTexture decodes the host image file at path and registers it as a
// Texture2D resource, returning its resource-table index. Intended for a
// host-supplied default/fallback asset (e.g. CITC_DEFAULT_TEXTURE) loaded
// before the guest runs its own CreateTexture2D calls.
func (w *World) LoadTexture(path string) (int, error) {
	width, height, pixels, err := texload.Load(path)
	if err != nil {
		return 0, err
	}
	idx, ok := w.resources.Alloc(Resource{
		Kind: ResourceTexture2D, Width: width, Height: height, Pixels: pixels, Refs: 1,
	})
	if !ok {
		return 0, errOutOfResources
	}
	return idx, nil
}
