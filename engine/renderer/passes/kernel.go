package passes

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

const pushConstantSize = 128

// DrawConstants are pushed for every submesh by the geometry passes.
type DrawConstants struct {
	Model      math.Mat4
	BaseColor  math.Vec4
	Bounds     math.Vec4
	ObjectID   uint32
	MaterialID uint32
	Roughness  float32
	Metallic   float32
	// forward shading only
	ShadowBinding uint32
	UseShadow     uint32
	Ambient       float32
	_             uint32
}

// InputConstants tell a fullscreen or compute kernel where its inputs sit in
// the primary binding set.
type InputConstants struct {
	Bindings [16]uint32
	Params   [8]float32
}

func encodePush(v any) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodePush(data []byte, v any) error {
	if len(data) < binary.Size(v) {
		return fmt.Errorf("push constants hold %d bytes, need %d", len(data), binary.Size(v))
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}

func frameUniforms(ctx metadata.KernelContext) (FrameUniforms, error) {
	data, err := ctx.Uniforms(SetFrame, FrameUniformBinding)
	if err != nil {
		return FrameUniforms{}, err
	}
	return DecodeUniforms(data)
}

func inputs(ctx metadata.KernelContext) (InputConstants, error) {
	var in InputConstants
	err := decodePush(ctx.PushConstants(), &in)
	return in, err
}

// sampled fetches the primary set inputs named by the given slots of in.
func sampled(ctx metadata.KernelContext, in InputConstants, slots ...int) ([]*surface.Surface, error) {
	out := make([]*surface.Surface, len(slots))
	for i, slot := range slots {
		s, err := ctx.Image(SetPrimary, in.Bindings[slot])
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// forRows runs fn over the rows of a height tall image, split across the job
// system when the device provides one.
func forRows(ctx metadata.KernelContext, height int, fn func(y int)) error {
	rows := func(start, end int) error {
		for y := start; y < end; y++ {
			fn(y)
		}
		return nil
	}
	if jobs := ctx.Jobs(); jobs != nil {
		return jobs.ParallelFor(height, rows)
	}
	return rows(0, height)
}

func pixelUV(x, y int, s *surface.Surface) math.Vec2 {
	return math.NewVec2((float32(x)+0.5)/float32(s.Width), (float32(y)+0.5)/float32(s.Height))
}

// worldPosition unprojects a depth sample with the inverse view projection.
func worldPosition(uv math.Vec2, depth float32, inverseViewProjection math.Mat4) math.Vec3 {
	ndc := math.NewVec4(uv.X*2-1, uv.Y*2-1, depth*2-1, 1)
	return ndc.Transform(inverseViewProjection).PerspectiveDivide()
}

func luminance(t surface.Texel) float32 {
	return 0.2126*t[0] + 0.7152*t[1] + 0.0722*t[2]
}

func primaryInputs(bindings ...uint32) InputConstants {
	var in InputConstants
	copy(in.Bindings[:], bindings)
	return in
}
