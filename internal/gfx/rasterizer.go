// Software rasterizer: edge-function triangle fill with barycentric
// interpolation, depth test, and either programmable (PS-VM) or fixed-
// function texture-modulate shading. Grounded on voodoo_software.go's
// scanline/span-fill structure, generalized from its 2D blit loop to a
// per-pixel edge-function test.
package gfx

import "math"

// Viewport is the current rasterizer viewport: NDC (-1..1) maps onto
// [X,X+W) x [Y,Y+H).
type Viewport struct {
	X, Y          float32
	Width, Height float32
}

// Vertex is what the vertex stage (VM or fixed-function) produces per
// input vertex: clip-space position plus a color and texcoord carried
// through to the fragment stage.
type Vertex struct {
	Pos   [4]float32 // x,y,z,w in clip space
	Color [4]float32
	UV    [2]float32
}

// RenderTarget is the CPU color back-buffer a Draw call writes into.
type RenderTarget struct {
	Width, Height int
	Pixels        []byte // RGBA8, row-major
}

func (rt *RenderTarget) setPixel(x, y int, c [4]float32) {
	if x < 0 || y < 0 || x >= rt.Width || y >= rt.Height {
		return
	}
	off := (y*rt.Width + x) * 4
	rt.Pixels[off+0] = saturateByte(c[0])
	rt.Pixels[off+1] = saturateByte(c[1])
	rt.Pixels[off+2] = saturateByte(c[2])
	rt.Pixels[off+3] = saturateByte(c[3])
}

func saturateByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

// DepthBuffer is the CPU depth store a Draw call tests/writes against.
type DepthBuffer struct {
	Width, Height int
	Values        []float32
}

// DepthState controls whether/how the rasterizer tests and writes depth.
type DepthState struct {
	Enable    bool
	WriteMask bool
	Func      CompareFunc
}

// RasterState controls culling.
type RasterState struct {
	Cull                  CullMode
	FrontCounterClockwise bool
}

// PixelSource optionally shades each covered pixel with the SM4 PS-VM
// instead of the fixed-function texture-modulate path.
type PixelSource struct {
	VM     *VM
	Tokens []uint32
}

// TextureSource is the fixed-function fallback: an SRV bound in PS slot
// 0 sampled with the sampler bound at the same slot.
type TextureSource struct {
	Tex     *Resource
	Sampler Sampler
}

const degenerateAreaEpsilon = 0.001

// DrawTriangle rasterizes one triangle (three already vertex-shaded
// vertices) into rt, honoring depth and optional programmable/textured
// shading, following spec.md §4.6's seven-step algorithm.
func DrawTriangle(rt *RenderTarget, depth *DepthBuffer, ds DepthState, rs RasterState, vp Viewport, verts [3]Vertex, ps *PixelSource, tex *TextureSource) {
	var screen [3][2]float32
	for i, v := range verts {
		w := v.Pos[3]
		x, y, z := v.Pos[0], v.Pos[1], v.Pos[2]
		if math.Abs(float64(w)) > 1e-6 {
			x /= w
			y /= w
			z /= w
		}
		screen[i][0] = vp.X + (x+1)*0.5*vp.Width
		screen[i][1] = vp.Y + (1-(y+1)*0.5)*vp.Height
		verts[i].Pos[2] = z
	}

	area := edgeFn(screen[0], screen[1], screen[2])
	if math.Abs(float64(area)) < degenerateAreaEpsilon {
		return
	}
	if rs.Cull != CullNone {
		isFront := area < 0
		if rs.FrontCounterClockwise {
			isFront = !isFront
		}
		if (rs.Cull == CullBack && !isFront) || (rs.Cull == CullFront && isFront) {
			return
		}
	}

	minX := int(math.Floor(float64(minOf3(screen[0][0], screen[1][0], screen[2][0]))))
	maxX := int(math.Ceil(float64(maxOf3(screen[0][0], screen[1][0], screen[2][0]))))
	minY := int(math.Floor(float64(minOf3(screen[0][1], screen[1][1], screen[2][1]))))
	maxY := int(math.Ceil(float64(maxOf3(screen[0][1], screen[1][1], screen[2][1]))))
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > rt.Width {
		maxX = rt.Width
	}
	if maxY > rt.Height {
		maxY = rt.Height
	}

	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			p := [2]float32{float32(x) + 0.5, float32(y) + 0.5}
			w0 := edgeFn(screen[1], screen[2], p)
			w1 := edgeFn(screen[2], screen[0], p)
			w2 := edgeFn(screen[0], screen[1], p)
			inside := (w0 >= 0 && w1 >= 0 && w2 >= 0) || (w0 <= 0 && w1 <= 0 && w2 <= 0)
			if !inside {
				continue
			}
			b0, b1, b2 := w0/area, w1/area, w2/area

			z := b0*verts[0].Pos[2] + b1*verts[1].Pos[2] + b2*verts[2].Pos[2]

			if ds.Enable && depth != nil {
				idx := y*depth.Width + x
				if idx < 0 || idx >= len(depth.Values) {
					continue
				}
				if !ds.Func.Eval(z, depth.Values[idx]) {
					continue
				}
				if ds.WriteMask {
					depth.Values[idx] = z
				}
			}

			var color [4]float32
			for i := range color {
				color[i] = b0*verts[0].Color[i] + b1*verts[1].Color[i] + b2*verts[2].Color[i]
			}
			uv := [2]float32{
				b0*verts[0].UV[0] + b1*verts[1].UV[0] + b2*verts[2].UV[0],
				b0*verts[0].UV[1] + b1*verts[1].UV[1] + b2*verts[2].UV[1],
			}

			final := color
			switch {
			case ps != nil && ps.VM != nil && ps.Tokens != nil:
				ps.VM.In[0] = vec4(color)
				ps.VM.In[1] = vec4(color)
				ps.VM.Execute(ps.Tokens)
				final = [4]float32(ps.VM.Out[0])
			case tex != nil && tex.Tex != nil:
				sampled := sampleTexture(tex.Tex, tex.Sampler, uv[0], uv[1])
				for i := range final {
					final[i] = color[i] * sampled[i]
				}
			}

			rt.setPixel(x, y, final)
		}
	}
}

func edgeFn(a, b, p [2]float32) float32 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func minOf3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func maxOf3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// sampleTexture implements spec.md's "Texture address modes" and nearest
// filtering: clamp/wrap/mirror on each axis independently, then
// round-to-nearest-texel, bounds-clamped.
func sampleTexture(tex *Resource, s Sampler, u, v float32) [4]float32 {
	u = applyAddress(s.AddressU, u)
	v = applyAddress(s.AddressV, v)
	w, h := tex.Width, tex.Height
	if w == 0 || h == 0 || len(tex.Pixels) == 0 {
		return [4]float32{1, 1, 1, 1}
	}
	xi := clampInt(int(math.Round(float64(u)*float64(w-1))), 0, w-1)
	yi := clampInt(int(math.Round(float64(v)*float64(h-1))), 0, h-1)
	off := (yi*w + xi) * 4
	if off+4 > len(tex.Pixels) {
		return [4]float32{1, 1, 1, 1}
	}
	return [4]float32{
		float32(tex.Pixels[off+0]) / 255,
		float32(tex.Pixels[off+1]) / 255,
		float32(tex.Pixels[off+2]) / 255,
		float32(tex.Pixels[off+3]) / 255,
	}
}

func applyAddress(mode AddressMode, coord float32) float32 {
	switch mode {
	case AddressClamp:
		if coord < 0 {
			return 0
		}
		if coord > 1 {
			return 1
		}
		return coord
	case AddressMirror:
		f := coord - float32(math.Floor(float64(coord)))
		if int(math.Floor(float64(coord)))%2 != 0 {
			f = 1 - f
		}
		return f
	default: // AddressWrap
		return coord - float32(math.Floor(float64(coord)))
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
