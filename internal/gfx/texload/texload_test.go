package texload

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func writeTestBMP(t *testing.T, path string, w, h int, fill color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
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

func TestLoadDecodesBMPIntoFlatRGBA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swatch.bmp")
	writeTestBMP(t, path, 2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	w, h, pixels, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w != 2 || h != 2 {
		t.Fatalf("dimensions = %dx%d, want 2x2", w, h)
	}
	if len(pixels) != w*h*4 {
		t.Fatalf("len(pixels) = %d, want %d", len(pixels), w*h*4)
	}
	if pixels[0] != 10 || pixels[1] != 20 || pixels[2] != 30 || pixels[3] != 255 {
		t.Fatalf("pixel 0 = %v, want [10 20 30 255]", pixels[0:4])
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, _, _, err := Load(filepath.Join(t.TempDir(), "missing.bmp")); err == nil {
		t.Fatal("expected error loading a nonexistent file")
	}
}

func TestLoadRejectsUndecodableData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.bmp")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error decoding garbage data")
	}
}
