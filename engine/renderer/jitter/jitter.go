// Package jitter generates the per-frame sub-pixel camera offset used for
// temporal accumulation. Every value is a pure function of the frame count.
package jitter

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/spaghettifunk/lumen/engine/math"
)

type Mode int

const (
	ModeNone Mode = iota
	ModeUniform2x
	ModeHammersley4x
	ModeHammersley8x
	ModeHammersley16x
)

// DefaultScale is the fraction of a pixel the offset spans.
const DefaultScale float32 = 0.03

var modeNames = []string{"None", "Uniform2x", "Hammersley4x", "Hammersley8x", "Hammersley16x"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(modeNames) {
		return nil, fmt.Errorf("invalid jitter mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	for i, n := range modeNames {
		if strings.EqualFold(n, s) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown jitter mode %q, expected one of %s", s, strings.Join(modeNames, ", "))
}

// Period is the number of frames after which the sequence repeats.
func (m Mode) Period() uint32 {
	switch m {
	case ModeUniform2x:
		return 2
	case ModeHammersley4x:
		return 4
	case ModeHammersley8x:
		return 8
	case ModeHammersley16x:
		return 16
	default:
		return 1
	}
}

// RadicalInverseBase2 mirrors the bits of i around the binary point.
func RadicalInverseBase2(i uint32) float32 {
	return float32(float64(bits.Reverse32(i)) * 2.3283064365386963e-10)
}

// Hammersley returns the i-th point of an n-point Hammersley set in [0,1)^2.
func Hammersley(i, n uint32) math.Vec2 {
	return math.NewVec2(float32(i)/float32(n), RadicalInverseBase2(i))
}

// Sequence is the jitter state owned by the orchestrator.
type Sequence struct {
	Mode  Mode
	Scale float32
}

func NewSequence(mode Mode) *Sequence {
	return &Sequence{Mode: mode, Scale: DefaultScale}
}

// Offset returns the pre-scale offset for frameCount, in [-1, 1].
func (s Sequence) Offset(frameCount uint64) math.Vec2 {
	switch s.Mode {
	case ModeUniform2x:
		if frameCount%2 == 0 {
			return math.NewVec2(0.5, 0.5)
		}
		return math.NewVec2(-0.5, -0.5)
	case ModeHammersley4x, ModeHammersley8x, ModeHammersley16x:
		n := s.Mode.Period()
		index := uint32(frameCount % uint64(n))
		h := Hammersley(index, n)
		return math.NewVec2(h.X*2-1, h.Y*2-1)
	default:
		return math.Vec2{}
	}
}

// Result is the jitter for one frame.
type Result struct {
	// Offset before scaling, in [-1, 1].
	Offset math.Vec2
	// Clip space translation after scaling, resolution divide and Y flip.
	Clip math.Vec2
	// Transform is the translation to append to the projection matrix.
	Transform math.Mat4
}

// Compute returns the jitter for frameCount at the given display resolution.
func (s Sequence) Compute(frameCount uint64, displayWidth, displayHeight uint32) Result {
	if s.Mode == ModeNone || displayWidth == 0 || displayHeight == 0 {
		return Result{Transform: math.NewMat4Identity()}
	}
	offset := s.Offset(frameCount)
	clip := math.NewVec2(
		offset.X*s.Scale/float32(displayWidth),
		-(offset.Y * s.Scale / float32(displayHeight)),
	)
	return Result{
		Offset:    offset,
		Clip:      clip,
		Transform: math.NewMat4Translation(math.NewVec3(clip.X, clip.Y, 0)),
	}
}

// Apply shifts the frustum of projection by the jitter translation.
func (r Result) Apply(projection math.Mat4) math.Mat4 {
	return projection.Mul(r.Transform)
}
