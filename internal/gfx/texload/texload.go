// Package texload decodes host-side image assets into the flat RGBA8
// byte layout internal/gfx.Resource's Pixels field expects, for
// preloading a default/fallback texture before a guest ever calls
// CreateTexture2D.
//
// Grounded on the general "decode asset, hand a flat pixel buffer to the
// graphics core" shape video_voodoo.go's texture-upload path uses,
// generalized from that file's fixed internal format to whatever
// golang.org/x/image can decode.
package texload

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/bmp"
)

func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
}

// Load decodes the image file at path (BMP via golang.org/x/image/bmp, or
// PNG/GIF/JPEG via the stdlib decoders imported above) into top-left-origin RGBA8
// rows, ready to copy straight into a Resource's Pixels field.
func Load(path string) (width, height int, rgba []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("texload: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("texload: decoding %s: %w", path, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			off := (y*w + x) * 4
			out[off+0] = byte(r >> 8)
			out[off+1] = byte(g >> 8)
			out[off+2] = byte(bl >> 8)
			out[off+3] = byte(a >> 8)
		}
	}
	return w, h, out, nil
}
