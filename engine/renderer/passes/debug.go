package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// motion vectors are tiny in UV units
const debugMotionScale = 20

type DebugTunables struct {
	View config.DebugView
}

// DebugPass replaces the frame color with a visualization of an
// intermediate target.
type DebugPass struct {
	dynamicPass
	tunables DebugTunables
}

func NewDebugPass() *DebugPass {
	return &DebugPass{dynamicPass: dynamicPass{base: base{name: "debug"}}}
}

func (p *DebugPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	return p.createFullscreen("debug.frag", []metadata.Format{ColorFormat}, DepthFormat, debugKernel)
}

func (p *DebugPass) Apply(s config.Settings) {
	p.tunables.View = s.Debug.View
	p.enabled = s.Debug.View != config.DebugViewDefault
}

func (p *DebugPass) Tunables() any {
	return p.tunables
}

func (p *DebugPass) Configure(f *Frame) error {
	return f.Uniforms.SetDebug(p.name, DebugUniforms{View: uint32(p.tunables.View)})
}

func (p *DebugPass) Record(f *Frame, cl metadata.CommandList) error {
	normal := p.current(TargetNormal, f)
	ao := p.target(TargetSSAO)
	motion := p.target(TargetMotion)
	depth := p.current(TargetDepth, f)
	p.read(normal, cl)
	p.read(ao, cl)
	p.read(motion, cl)
	// sampled and bound read-only at once
	p.use(depth, metadata.AccessDepthRead, cl)
	p.use(f.Color, metadata.AccessColorAttachment, cl)

	area := f.RenderExtent.Rect()
	cl.BeginRendering(metadata.RenderingInfo{
		Name:  p.name,
		Area:  area,
		Color: []metadata.Attachment{{Image: f.Color.Image, Load: metadata.LoadOpLoad}},
		Depth: &metadata.Attachment{Image: depth.Image, Load: metadata.LoadOpLoad, ReadOnly: true},
	})
	cl.BindPipeline(p.pipeline)
	p.bindCommon(f, cl)
	in := primaryInputs(normal.Binding, ao.Binding, motion.Binding, depth.Binding)
	in.Params[0] = float32(p.tunables.View)
	cl.PushConstants(encodePush(&in))
	p.fullscreen(cl, area)
	cl.EndRendering()
	return nil
}

func (p *DebugPass) Destroy() {
	p.destroy()
}

func debugKernel(ctx metadata.KernelContext) error {
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := sampled(ctx, in, 0, 1, 2, 3)
	if err != nil {
		return err
	}
	normal, ao, motion, depth := src[0], src[1], src[2], src[3]
	dst, err := ctx.Attachment(0)
	if err != nil {
		return err
	}
	view := config.DebugView(in.Params[0])
	light := u.Shadow.LightDirection.ToVec3()
	if light.LengthSquared() == 0 {
		light = defaultLightDirection()
	}
	near, far := u.Camera.Near, u.Camera.Far
	return forRows(ctx, dst.Height, func(y int) {
		for x := 0; x < dst.Width; x++ {
			uv := pixelUV(x, y, dst)
			var c surface.Texel
			switch view {
			case config.DebugViewLighting:
				l := math.Clamp(normal.Sample(uv).Vec3().Dot(light), 0, 1)
				c = surface.Texel{l, l, l}
			case config.DebugViewNormals:
				n := normal.Sample(uv)
				c = surface.Texel{n[0]*0.5 + 0.5, n[1]*0.5 + 0.5, n[2]*0.5 + 0.5}
			case config.DebugViewAO:
				a := ao.Sample(uv)[0]
				c = surface.Texel{a, a, a}
			case config.DebugViewMotion:
				m := motion.Sample(uv)
				c = surface.Texel{math.Abs(m[0]) * debugMotionScale, math.Abs(m[1]) * debugMotionScale, 0}
			case config.DebugViewDepth:
				l := linearDepth(depth.Sample(uv)[0], near, far)
				c = surface.Texel{l, l, l}
			default:
				continue
			}
			c[3] = 1
			dst.Set(x, y, c)
		}
	})
}

// linearDepth maps window depth to [0, 1] between the clip planes.
func linearDepth(d, near, far float32) float32 {
	if far <= near {
		return d
	}
	z := d*2 - 1
	view := 2 * near * far / (far + near - z*(far-near))
	return math.Clamp((view-near)/(far-near), 0, 1)
}
