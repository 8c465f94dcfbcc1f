package gfx

import (
	"math"
	"testing"
)

func newTestTarget(w, h int) *RenderTarget {
	return &RenderTarget{Width: w, Height: h, Pixels: make([]byte, w*h*4)}
}

func newTestDepth(w, h int, clear float32) *DepthBuffer {
	d := &DepthBuffer{Width: w, Height: h, Values: make([]float32, w*h)}
	for i := range d.Values {
		d.Values[i] = clear
	}
	return d
}

func ndcTriangle(z float32) [3]Vertex {
	white := [4]float32{1, 1, 1, 1}
	return [3]Vertex{
		{Pos: [4]float32{-1, -1, z, 1}, Color: white},
		{Pos: [4]float32{1, -1, z, 1}, Color: white},
		{Pos: [4]float32{0, 1, z, 1}, Color: white},
	}
}

func pixelAt(rt *RenderTarget, x, y int) [4]byte {
	off := (y*rt.Width + x) * 4
	return [4]byte{rt.Pixels[off], rt.Pixels[off+1], rt.Pixels[off+2], rt.Pixels[off+3]}
}

// The spec's single-color triangle scenario: with a 4x4 viewport and the
// canonical NDC triangle, the center pixel is covered and the top-left
// corner is not.
func TestDrawTriangleCoversCenterNotCorner(t *testing.T) {
	rt := newTestTarget(4, 4)
	vp := Viewport{Width: 4, Height: 4}

	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, ndcTriangle(0.5), nil, nil)

	if got := pixelAt(rt, 2, 2); got != [4]byte{255, 255, 255, 255} {
		t.Errorf("pixel (2,2) = %v, want solid white", got)
	}
	if got := pixelAt(rt, 0, 0); got != [4]byte{0, 0, 0, 0} {
		t.Errorf("pixel (0,0) = %v, want untouched black", got)
	}
}

func TestDrawTriangleWritesDepthOnPass(t *testing.T) {
	rt := newTestTarget(4, 4)
	depth := newTestDepth(4, 4, 1.0)
	ds := DepthState{Enable: true, WriteMask: true, Func: CompareLessEqual}
	vp := Viewport{Width: 4, Height: 4}

	DrawTriangle(rt, depth, ds, RasterState{}, vp, ndcTriangle(0.5), nil, nil)

	if got := depth.Values[2*4+2]; got != 0.5 {
		t.Errorf("depth at (2,2) = %v, want 0.5", got)
	}
	if got := depth.Values[0]; got != 1.0 {
		t.Errorf("depth at (0,0) = %v, want untouched 1.0", got)
	}
}

func TestDrawTriangleRespectsDepthTestFailure(t *testing.T) {
	rt := newTestTarget(4, 4)
	depth := newTestDepth(4, 4, 0.2) // everything already nearer than z=0.5
	ds := DepthState{Enable: true, WriteMask: true, Func: CompareLessEqual}
	vp := Viewport{Width: 4, Height: 4}

	DrawTriangle(rt, depth, ds, RasterState{}, vp, ndcTriangle(0.5), nil, nil)

	if got := pixelAt(rt, 2, 2); got != [4]byte{0, 0, 0, 0} {
		t.Errorf("pixel (2,2) = %v, want rejected by depth test", got)
	}
	if got := depth.Values[2*4+2]; got != 0.2 {
		t.Errorf("depth at (2,2) = %v, want untouched 0.2", got)
	}
}

func TestDrawTriangleSkipsDegenerate(t *testing.T) {
	rt := newTestTarget(4, 4)
	vp := Viewport{Width: 4, Height: 4}
	p := [4]float32{0, 0, 0, 1}
	degenerate := [3]Vertex{{Pos: p}, {Pos: p}, {Pos: p}}

	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, degenerate, nil, nil)

	for i, b := range rt.Pixels {
		if b != 0 {
			t.Fatalf("degenerate triangle wrote pixel byte %d", i)
		}
	}
}

func TestDrawTriangleSkipsOffscreenBoundingBox(t *testing.T) {
	rt := newTestTarget(4, 4)
	vp := Viewport{Width: 4, Height: 4}
	// Entirely left of the render target in NDC.
	tri := [3]Vertex{
		{Pos: [4]float32{-5, -1, 0, 1}},
		{Pos: [4]float32{-3, -1, 0, 1}},
		{Pos: [4]float32{-4, 1, 0, 1}},
	}

	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, tri, nil, nil)

	for i, b := range rt.Pixels {
		if b != 0 {
			t.Fatalf("offscreen triangle wrote pixel byte %d", i)
		}
	}
}

func TestDrawTriangleBackfaceCulling(t *testing.T) {
	vp := Viewport{Width: 4, Height: 4}
	tri := ndcTriangle(0.5)

	// Winding as constructed rasterizes with one sign of area; culling
	// the matching face must drop it while the opposite cull keeps it.
	front := newTestTarget(4, 4)
	DrawTriangle(front, nil, DepthState{}, RasterState{Cull: CullBack}, vp, tri, nil, nil)
	back := newTestTarget(4, 4)
	DrawTriangle(back, nil, DepthState{}, RasterState{Cull: CullFront}, vp, tri, nil, nil)

	frontDrawn := pixelAt(front, 2, 2) != [4]byte{}
	backDrawn := pixelAt(back, 2, 2) != [4]byte{}
	if frontDrawn == backDrawn {
		t.Fatalf("cull back drew=%v, cull front drew=%v — exactly one must draw", frontDrawn, backDrawn)
	}

	// Flipping FrontCounterClockwise must flip which cull mode drops it.
	flipped := newTestTarget(4, 4)
	DrawTriangle(flipped, nil, DepthState{}, RasterState{Cull: CullBack, FrontCounterClockwise: true}, vp, tri, nil, nil)
	if (pixelAt(flipped, 2, 2) != [4]byte{}) == frontDrawn {
		t.Error("FrontCounterClockwise did not invert the culling decision")
	}
}

func TestDrawTrianglePixelShaderVMOverridesColor(t *testing.T) {
	rt := newTestTarget(4, 4)
	vp := Viewport{Width: 4, Height: 4}

	// PS: o0 = (0.5, 0, 0, 1), ignoring interpolated inputs.
	tokens := program(
		instr(opMOV, dstOperand(operandOutput, 0), immOperand(0.5, 0, 0, 1)),
		instr(opRET),
	)
	ps := &PixelSource{VM: &VM{}, Tokens: tokens}

	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, ndcTriangle(0.5), ps, nil)

	got := pixelAt(rt, 2, 2)
	if got[0] != 128 || got[1] != 0 || got[2] != 0 || got[3] != 255 {
		t.Errorf("shaded pixel = %v, want (128,0,0,255)", got)
	}
}

func TestDrawTriangleSamplesBoundTexture(t *testing.T) {
	rt := newTestTarget(4, 4)
	vp := Viewport{Width: 4, Height: 4}

	// A 1x1 half-green texture modulating white vertex color.
	tex := &Resource{Kind: ResourceTexture2D, Width: 1, Height: 1, Pixels: []byte{0, 128, 0, 255}}
	src := &TextureSource{Tex: tex, Sampler: Sampler{AddressU: AddressClamp, AddressV: AddressClamp}}

	verts := ndcTriangle(0.5)
	for i := range verts {
		verts[i].UV = [2]float32{0.5, 0.5}
	}
	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, verts, nil, src)

	got := pixelAt(rt, 2, 2)
	if got[0] != 0 || got[2] != 0 {
		t.Errorf("sampled pixel = %v, want red/blue zeroed by modulate", got)
	}
	if got[1] == 0 {
		t.Errorf("sampled pixel = %v, want green channel from the texture", got)
	}
}

func TestSampleTextureAddressModes(t *testing.T) {
	cases := []struct {
		mode  AddressMode
		coord float32
		want  float32
	}{
		{AddressClamp, -0.5, 0},
		{AddressClamp, 1.5, 1},
		{AddressWrap, 1.25, 0.25},
		{AddressWrap, -0.25, 0.75},
		{AddressMirror, 1.25, 0.75},
		{AddressMirror, 0.25, 0.25},
	}
	for _, c := range cases {
		got := applyAddress(c.mode, c.coord)
		if math.Abs(float64(got-c.want)) > 1e-6 {
			t.Errorf("applyAddress(%v, %v) = %v, want %v", c.mode, c.coord, got, c.want)
		}
	}
}

// Covered pixels interpolate with barycentrics that sum to one: a
// triangle with the three primary colors at its corners must produce
// channels summing to ~255 everywhere inside.
func TestDrawTriangleBarycentricsSumToOne(t *testing.T) {
	rt := newTestTarget(8, 8)
	vp := Viewport{Width: 8, Height: 8}
	tri := [3]Vertex{
		{Pos: [4]float32{-1, -1, 0, 1}, Color: [4]float32{1, 0, 0, 1}},
		{Pos: [4]float32{1, -1, 0, 1}, Color: [4]float32{0, 1, 0, 1}},
		{Pos: [4]float32{0, 1, 0, 1}, Color: [4]float32{0, 0, 1, 1}},
	}

	DrawTriangle(rt, nil, DepthState{}, RasterState{}, vp, tri, nil, nil)

	checked := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			p := pixelAt(rt, x, y)
			if p[3] == 0 {
				continue // not covered
			}
			sum := int(p[0]) + int(p[1]) + int(p[2])
			if sum < 252 || sum > 258 {
				t.Errorf("pixel (%d,%d) channel sum = %d, want ~255", x, y, sum)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("no covered pixels to check")
	}
}
