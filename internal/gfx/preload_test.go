package gfx

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func writePreloadBMP(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 1, G: 2, B: 3, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("bmp.Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadTextureRegistersResource(t *testing.T) {
	w := &World{}
	path := filepath.Join(t.TempDir(), "default.bmp")
	writePreloadBMP(t, path, 4, 3)

	idx, err := w.LoadTexture(path)
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}

	res, ok := w.resources.Get(idx)
	if !ok {
		t.Fatalf("resource %d not found after LoadTexture", idx)
	}
	if res.Kind != ResourceTexture2D {
		t.Errorf("Kind = %v, want ResourceTexture2D", res.Kind)
	}
	if res.Width != 4 || res.Height != 3 {
		t.Errorf("dimensions = %dx%d, want 4x3", res.Width, res.Height)
	}
	if len(res.Pixels) != 4*3*4 {
		t.Errorf("len(Pixels) = %d, want %d", len(res.Pixels), 4*3*4)
	}
}

func TestLoadTexturePropagatesDecodeError(t *testing.T) {
	w := &World{}
	if _, err := w.LoadTexture(filepath.Join(t.TempDir(), "missing.bmp")); err == nil {
		t.Fatal("expected error for a nonexistent texture path")
	}
}
