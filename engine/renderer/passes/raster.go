package passes

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// fragment is one covered pixel of a splatted mesh.
type fragment struct {
	x, y int
	// window depth in [0, 1]
	depth float32
	uv    math.Vec2
}

var boxCorners = [8]math.Vec3{
	{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1},
}

/**
 * @brief The CPU reference rasterizer. A mesh is approximated by the screen
 * rectangle of its projected bounding box at the depth of its center. Boxes
 * crossing the near plane cover the whole target. Fragments failing the depth
 * test against depth are skipped; passing ones are written to depth.
 */
func splat(depth *surface.Surface, bounds math.Vec3, mvp math.Mat4, emit func(f fragment)) {
	w, h := depth.Width, depth.Height
	minX, minY := float32(1), float32(1)
	maxX, maxY := float32(-1), float32(-1)
	clipped := false
	for _, c := range boxCorners {
		p := math.NewVec4(c.X*bounds.X, c.Y*bounds.Y, c.Z*bounds.Z, 1).Transform(mvp)
		if p.W <= 1e-5 {
			clipped = true
			break
		}
		ndc := p.PerspectiveDivide()
		minX, maxX = min(minX, ndc.X), max(maxX, ndc.X)
		minY, maxY = min(minY, ndc.Y), max(maxY, ndc.Y)
	}
	center := math.NewVec4(0, 0, 0, 1).Transform(mvp)
	if center.W <= 1e-5 {
		return
	}
	z := center.PerspectiveDivide().Z*0.5 + 0.5
	if z < 0 || z > 1 {
		return
	}
	if clipped {
		minX, minY, maxX, maxY = -1, -1, 1, 1
	}
	x0 := int(math.Floor((math.Clamp(minX, -1, 1)*0.5 + 0.5) * float32(w)))
	x1 := int(math.Floor((math.Clamp(maxX, -1, 1)*0.5 + 0.5) * float32(w)))
	y0 := int(math.Floor((math.Clamp(minY, -1, 1)*0.5 + 0.5) * float32(h)))
	y1 := int(math.Floor((math.Clamp(maxY, -1, 1)*0.5 + 0.5) * float32(h)))
	x1, y1 = min(x1, w-1), min(y1, h-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if z > depth.At(x, y)[0] {
				continue
			}
			depth.Set(x, y, surface.Texel{z})
			emit(fragment{x: x, y: y, depth: z, uv: math.NewVec2((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))})
		}
	}
}
