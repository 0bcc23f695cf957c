// Package reprojection decides whether last frame's data is still valid for
// a pixel and, when it is, fetches a filtered history value.
package reprojection

import (
	"errors"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

const (
	// Squared normal dot product above which a tap is rejected.
	DefaultNormalThreshold float32 = 0.1
	// Maximum distance between the previous position and the current surface plane.
	DefaultPlaneDistance float32 = 5.0
	// Minimum renormalized bilinear weight for the 4-tap result to count.
	MinBilinearWeight float32 = 0.01
)

var ErrMissingInput = errors.New("reprojection sampler is missing an input surface")

// tap offsets of the 2x2 bilinear footprint
var bilinearOffsets = [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

type Thresholds struct {
	Normal float32
	Plane  float32
}

func DefaultThresholds() Thresholds {
	return Thresholds{Normal: DefaultNormalThreshold, Plane: DefaultPlaneDistance}
}

// Sampler gathers the inputs of a reprojection. All surfaces share the
// render resolution. Motion is in UV units (channels 0 and 1), depth in
// [0, 1] (channel 0) and normals are raw xyz.
type Sampler struct {
	Motion         *surface.Surface
	CurrentDepth   *surface.Surface
	CurrentNormal  *surface.Surface
	PreviousDepth  *surface.Surface
	PreviousNormal *surface.Surface
	History        *surface.Surface

	// Maps NDC back to view space. Used for both frames.
	InverseProjection math.Mat4
	Thresholds        Thresholds
}

// Result is the outcome for one pixel. Value is zero when Valid is false.
type Result struct {
	Valid    bool
	Value    surface.Texel
	Channels int
}

func (s *Sampler) Validate() error {
	for _, in := range []*surface.Surface{s.Motion, s.CurrentDepth, s.CurrentNormal, s.PreviousDepth, s.PreviousNormal, s.History} {
		if in == nil {
			return ErrMissingInput
		}
	}
	return nil
}

func (s *Sampler) resolution() (int, int) {
	return s.History.Width, s.History.Height
}

// BilinearWeights returns the four tap weights for the fractional position f,
// in the order of the (0,0) (1,0) (0,1) (1,1) offsets.
func BilinearWeights(f math.Vec2) [4]float32 {
	return [4]float32{
		(1 - f.X) * (1 - f.Y),
		f.X * (1 - f.Y),
		(1 - f.X) * f.Y,
		f.X * f.Y,
	}
}

// ReconstructPosition unprojects a depth sample at uv into view space.
func ReconstructPosition(uv math.Vec2, depth float32, inverseProjection math.Mat4) math.Vec3 {
	ndc := math.NewVec4(uv.X*2-1, uv.Y*2-1, depth*2-1, 1)
	return ndc.Transform(inverseProjection).PerspectiveDivide()
}

// NormalDisoccluded is true when the squared dot of the normals exceeds the
// threshold. With the default threshold this rejects near-identical normals
// and keeps near-orthogonal ones.
func NormalDisoccluded(current, previous math.Vec3, threshold float32) bool {
	d := math.Abs(current.Dot(previous))
	return d*d > threshold
}

// PlaneDisoccluded is true when previous lies further than maxDistance from
// the plane through current with the given normal.
func PlaneDisoccluded(current, previous, normal math.Vec3, maxDistance float32) bool {
	return math.Abs(current.Sub(previous).Dot(normal)) > maxDistance
}

type pixel struct {
	position math.Vec3
	normal   math.Vec3
}

func (s *Sampler) current(x, y int) pixel {
	w, h := s.resolution()
	uv := math.NewVec2((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
	return pixel{
		position: ReconstructPosition(uv, s.CurrentDepth.At(x, y)[0], s.InverseProjection),
		normal:   s.CurrentNormal.At(x, y).Vec3(),
	}
}

// valid runs the bounds, normal and plane tests for the history tap (x, y).
func (s *Sampler) valid(x, y int, cur pixel) bool {
	w, h := s.resolution()
	if x < 0 || y < 0 || x > w-1 || y > h-1 {
		return false
	}
	prevNormal := s.PreviousNormal.At(x, y).Vec3()
	if NormalDisoccluded(cur.normal, prevNormal, s.Thresholds.Normal) {
		return false
	}
	uv := math.NewVec2((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
	prevPosition := ReconstructPosition(uv, s.PreviousDepth.At(x, y)[0], s.InverseProjection)
	return !PlaneDisoccluded(cur.position, prevPosition, cur.normal, s.Thresholds.Plane)
}

func (s *Sampler) motion(x, y int) math.Vec2 {
	m := s.Motion.At(x, y)
	return math.NewVec2(m[0], m[1])
}

// Full runs the 4-tap bilinear test with a 3x3 fallback.
func (s *Sampler) Full(x, y int) Result {
	w, h := s.resolution()
	res := Result{Channels: s.History.Channels}
	cur := s.current(x, y)
	m := s.motion(x, y)

	historyFloor := math.NewVec2(float32(x)+m.X*float32(w), float32(y)+m.Y*float32(h))
	history := historyFloor.Add(math.NewVec2(0.5, 0.5))

	bx := int(math.Floor(historyFloor.X))
	by := int(math.Floor(historyFloor.Y))
	weights := BilinearWeights(math.NewVec2(math.Fract(historyFloor.X), math.Fract(historyFloor.Y)))

	var value surface.Texel
	var sum float32
	for i, o := range bilinearOffsets {
		tx, ty := bx+o[0], by+o[1]
		if !s.valid(tx, ty, cur) {
			continue
		}
		value = value.Add(s.History.At(tx, ty).Scale(weights[i]))
		sum += weights[i]
	}
	if sum >= MinBilinearWeight {
		res.Valid = true
		res.Value = value.Scale(1 / sum)
		return res
	}

	// 3x3 fallback around the rounded history position.
	cx := int(math.Floor(history.X))
	cy := int(math.Floor(history.Y))
	var count int
	value = surface.Texel{}
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			tx, ty := cx+i, cy+j
			if !s.valid(tx, ty, cur) {
				continue
			}
			value = value.Add(s.History.At(tx, ty))
			count++
		}
	}
	if count > 0 {
		res.Valid = true
		res.Value = value.Scale(1 / float32(count))
	}
	return res
}

// Fast tests a single tap and does one bilinear history fetch.
func (s *Sampler) Fast(x, y int) Result {
	w, h := s.resolution()
	res := Result{Channels: s.History.Channels}
	cur := s.current(x, y)
	m := s.motion(x, y)

	hx := int(math.Floor(float32(x) + m.X*float32(w) + 0.5))
	hy := int(math.Floor(float32(y) + m.Y*float32(h) + 0.5))
	if !s.valid(hx, hy, cur) {
		return res
	}
	uv := math.NewVec2((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h)).Add(m)
	res.Valid = true
	res.Value = s.History.Sample(uv)
	return res
}
