package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// reflectivity used when no material target was written
const forwardReflectivity = 0.25

type SSRTunables struct {
	MaxDistance float32
	Resolution  float32
	Thickness   float32
	Steps       uint32
}

// SSRPass adds screen space reflections on top of the frame color.
type SSRPass struct {
	computePass
	tunables SSRTunables
	deferred bool
	pipeline metadata.PipelineHandle
}

func NewSSRPass() *SSRPass {
	return &SSRPass{computePass: computePass{base: base{name: "ssr"}}}
}

func (p *SSRPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	if err := p.createStorage(storageSlot{binding: 0, target: TargetSSRColor}); err != nil {
		return err
	}
	var err error
	p.pipeline, err = p.createPipeline(p.name, ssrKernel)
	return err
}

func (p *SSRPass) Apply(s config.Settings) {
	p.enabled = s.SSR.Enabled
	p.deferred = s.Renderer.Mode == config.RendererModeDeferred
	p.tunables = SSRTunables{
		MaxDistance: s.SSR.MaxDistance,
		Resolution:  s.SSR.Resolution,
		Thickness:   s.SSR.Thickness,
		Steps:       s.SSR.Steps,
	}
}

func (p *SSRPass) Tunables() any {
	return p.tunables
}

func (p *SSRPass) Configure(f *Frame) error {
	return f.Uniforms.SetSSR(p.name, SSRUniforms(p.tunables))
}

func (p *SSRPass) Record(f *Frame, cl metadata.CommandList) error {
	color := f.Color
	depth := p.current(TargetDepth, f)
	normal := p.current(TargetNormal, f)
	material := p.target(TargetMaterial)
	for _, rt := range []*resources.RenderTarget{color, depth, normal, material} {
		p.read(rt, cl)
	}
	p.writeTargets(f, cl)
	p.bind(f, cl, p.pipeline)
	in := primaryInputs(color.Binding, depth.Binding, normal.Binding, material.Binding)
	if p.deferred {
		in.Params[0] = 1
	}
	cl.PushConstants(encodePush(&in))
	p.dispatch(cl, f.RenderExtent)
	f.Color = p.target(TargetSSRColor)
	return nil
}

func (p *SSRPass) Destroy() {
	p.destroy()
}

func ssrKernel(ctx metadata.KernelContext) error {
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
	color, depth, normal, material := src[0], src[1], src[2], src[3]
	out, err := ctx.Image(SetStorage, 0)
	if err != nil {
		return err
	}
	eye := u.Camera.Position.ToVec3()
	steps := max(int(float32(u.SSR.Steps)*math.Clamp(u.SSR.Resolution, 0, 1)), 1)
	step := u.SSR.MaxDistance / float32(steps)
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			c := color.At(x, y)
			d := depth.At(x, y)[0]
			if d >= 1 || step <= 0 {
				out.Set(x, y, c)
				continue
			}
			reflectivity := float32(forwardReflectivity)
			if in.Params[0] != 0 {
				m := material.At(x, y)
				reflectivity = (1 - m[0]) * m[1]
			}
			if reflectivity <= 0 {
				out.Set(x, y, c)
				continue
			}
			world := worldPosition(pixelUV(x, y, depth), d, u.Camera.InverseViewProjection)
			n := normal.At(x, y).Vec3().Normalize()
			v := world.Sub(eye).Normalize()
			r := v.Sub(n.MulScalar(2 * v.Dot(n)))
			if hit, ok := marchReflection(world, r, eye, step, steps, u, depth, color); ok {
				c = c.Add(hit.Scale(reflectivity))
			}
			out.Set(x, y, c)
		}
	})
}

func marchReflection(origin, dir, eye math.Vec3, step float32, steps int, u FrameUniforms, depth, color *surface.Surface) (surface.Texel, bool) {
	for i := 1; i <= steps; i++ {
		p := origin.Add(dir.MulScalar(float32(i) * step))
		clip := p.ToVec4(1).Transform(u.Camera.ViewProjection)
		if clip.W <= 1e-5 {
			return surface.Texel{}, false
		}
		ndc := clip.PerspectiveDivide()
		uv := math.NewVec2(ndc.X*0.5+0.5, ndc.Y*0.5+0.5)
		px, py := int(uv.X*float32(depth.Width)), int(uv.Y*float32(depth.Height))
		if !depth.InBounds(px, py) {
			return surface.Texel{}, false
		}
		sd := depth.At(px, py)[0]
		if sd >= 1 {
			continue
		}
		scene := worldPosition(pixelUV(px, py, depth), sd, u.Camera.InverseViewProjection)
		behind := p.Distance(eye) - scene.Distance(eye)
		if behind > 0 && behind < u.SSR.Thickness {
			return color.At(px, py), true
		}
	}
	return surface.Texel{}, false
}
