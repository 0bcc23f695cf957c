package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/reprojection"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// storage bindings of the denoiser
const (
	denoiseRaw uint32 = iota
	denoiseHistory
	denoiseOutput
)

const (
	traceSteps    = 24
	traceStepSize = 0.2
)

/**
 * @brief Traces screen space shadows towards the light, accumulates them
 * over time and filters the result. It replaces the shadow map when ray
 * traced shadows are enabled.
 */
type ShadowDenoisePass struct {
	computePass
	tunables ShadowTunables
	blur     BlurTunables

	trace    metadata.PipelineHandle
	temporal metadata.PipelineHandle
	filter   metadata.PipelineHandle
}

func NewShadowDenoisePass() *ShadowDenoisePass {
	return &ShadowDenoisePass{
		computePass: computePass{base: base{name: "shadow-denoise"}},
		blur:        defaultBlurTunables(),
	}
}

func (p *ShadowDenoisePass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.tunables.LightDirection = defaultLightDirection()
	p.Apply(ctx.Settings)
	err := p.createStorage(
		storageSlot{binding: denoiseRaw, target: TargetShadowRaw},
		storageSlot{binding: denoiseHistory, target: TargetShadowHistory},
		storageSlot{binding: denoiseOutput, target: TargetShadowDenoised},
	)
	if err != nil {
		return err
	}
	if p.trace, err = p.createPipeline("shadow-trace", shadowTraceKernel); err != nil {
		return err
	}
	if p.temporal, err = p.createPipeline("shadow-temporal", shadowTemporalKernel); err != nil {
		return err
	}
	p.filter, err = p.createPipeline("shadow-filter", bilateralKernel)
	return err
}

func (p *ShadowDenoisePass) Apply(s config.Settings) {
	p.enabled = s.Shadow.Enabled && s.Shadow.RayTraced
	p.tunables.PCF = s.Shadow.PCF
	p.tunables.RayTraced = s.Shadow.RayTraced
	p.tunables.TemporalWeight = s.Shadow.TemporalWeight
	p.tunables.MapSize = s.Shadow.MapSize
}

func (p *ShadowDenoisePass) Tunables() any {
	return p.tunables
}

func (p *ShadowDenoisePass) Configure(f *Frame) error {
	return f.Uniforms.SetShadow(p.name, shadowUniforms(p.tunables))
}

func (p *ShadowDenoisePass) Record(f *Frame, cl metadata.CommandList) error {
	depth := p.current(TargetDepth, f)
	normal := p.current(TargetNormal, f)
	raw := p.target(TargetShadowRaw)
	history := p.current(TargetShadowHistory, f)

	p.read(depth, cl)
	p.read(normal, cl)
	p.writeTargets(f, cl)
	p.bind(f, cl, p.trace)
	cl.PushConstants(encodePush(primaryInputs(depth.Binding, normal.Binding)))
	p.dispatch(cl, f.RenderExtent)

	prevDepth := p.previous(TargetDepth, f)
	prevNormal := p.previous(TargetNormal, f)
	motion := p.target(TargetMotion)
	prevHistory := p.previous(TargetShadowHistory, f)
	for _, rt := range []*resources.RenderTarget{raw, prevDepth, prevNormal, motion, prevHistory} {
		p.read(rt, cl)
	}
	p.bind(f, cl, p.temporal)
	cl.PushConstants(encodePush(primaryInputs(raw.Binding, depth.Binding, normal.Binding,
		prevDepth.Binding, prevNormal.Binding, motion.Binding, prevHistory.Binding)))
	p.dispatch(cl, f.RenderExtent)

	p.read(history, cl)
	p.bind(f, cl, p.filter)
	in := primaryInputs(history.Binding, denoiseOutput)
	in.Params = p.blur.params()
	cl.PushConstants(encodePush(&in))
	p.dispatch(cl, f.RenderExtent)
	return nil
}

func (p *ShadowDenoisePass) Destroy() {
	p.destroy()
}

func shadowTraceKernel(ctx metadata.KernelContext) error {
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := sampled(ctx, in, 0, 1)
	if err != nil {
		return err
	}
	depth, normal := src[0], src[1]
	out, err := ctx.Image(SetStorage, denoiseRaw)
	if err != nil {
		return err
	}
	light := u.Shadow.LightDirection.ToVec3().Normalize()
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			d := depth.At(x, y)[0]
			if d >= 1 {
				out.Set(x, y, surface.Texel{1})
				continue
			}
			if normal.At(x, y).Vec3().Dot(light) <= 0 {
				out.Set(x, y, surface.Texel{0})
				continue
			}
			world := worldPosition(pixelUV(x, y, depth), d, u.Camera.InverseViewProjection)
			out.Set(x, y, surface.Texel{traceShadow(world, light, u.Camera.ViewProjection, depth)})
		}
	})
}

// traceShadow marches from world towards the light and reports 0 once the
// ray passes behind the depth buffer.
func traceShadow(world, light math.Vec3, viewProjection math.Mat4, depth *surface.Surface) float32 {
	for i := 1; i <= traceSteps; i++ {
		p := world.Add(light.MulScalar(float32(i) * traceStepSize))
		clip := p.ToVec4(1).Transform(viewProjection)
		if clip.W <= 1e-5 {
			return 1
		}
		ndc := clip.PerspectiveDivide()
		px := int((ndc.X*0.5 + 0.5) * float32(depth.Width))
		py := int((ndc.Y*0.5 + 0.5) * float32(depth.Height))
		if !depth.InBounds(px, py) {
			return 1
		}
		z := ndc.Z*0.5 + 0.5
		scene := depth.At(px, py)[0]
		if z > scene+0.0005 && z-scene < 0.02 {
			return 0
		}
	}
	return 1
}

func shadowTemporalKernel(ctx metadata.KernelContext) error {
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := sampled(ctx, in, 0, 1, 2, 3, 4, 5, 6)
	if err != nil {
		return err
	}
	out, err := ctx.Image(SetStorage, denoiseHistory)
	if err != nil {
		return err
	}
	raw := src[0]
	s := reprojection.Sampler{
		CurrentDepth:      src[1],
		CurrentNormal:     src[2],
		PreviousDepth:     src[3],
		PreviousNormal:    src[4],
		Motion:            src[5],
		History:           src[6],
		InverseProjection: u.Camera.InverseProjection,
		Thresholds:        reprojection.DefaultThresholds(),
	}
	if err := s.Validate(); err != nil {
		return err
	}
	weight := math.Clamp(u.Shadow.TemporalWeight, 0, 1)
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			v := raw.At(x, y)[0]
			if r := s.Fast(x, y); r.Valid {
				v = math.Lerp(v, r.Value[0], weight)
			}
			out.Set(x, y, surface.Texel{v})
		}
	})
}
