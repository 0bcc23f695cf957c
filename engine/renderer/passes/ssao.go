package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/filter"
	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

type SSAOTunables struct {
	Bias       float32
	KernelSize uint32
	Radius     float32
}

// SSAOPass estimates ambient occlusion from the current depth.
type SSAOPass struct {
	computePass
	tunables SSAOTunables
	pipeline metadata.PipelineHandle
}

func NewSSAOPass() *SSAOPass {
	return &SSAOPass{computePass: computePass{base: base{name: "ssao"}}}
}

func (p *SSAOPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	if err := p.createStorage(storageSlot{binding: 0, target: TargetSSAORaw}); err != nil {
		return err
	}
	var err error
	p.pipeline, err = p.createPipeline(p.name, ssaoKernel)
	return err
}

func (p *SSAOPass) Apply(s config.Settings) {
	p.enabled = s.SSAO.Enabled
	p.tunables = SSAOTunables{Bias: s.SSAO.Bias, KernelSize: s.SSAO.KernelSize, Radius: s.SSAO.Radius}
}

func (p *SSAOPass) Tunables() any {
	return p.tunables
}

func (p *SSAOPass) Configure(f *Frame) error {
	return f.Uniforms.SetSSAO(p.name, SSAOUniforms{
		Bias:       p.tunables.Bias,
		Radius:     p.tunables.Radius,
		KernelSize: p.tunables.KernelSize,
	})
}

func (p *SSAOPass) Record(f *Frame, cl metadata.CommandList) error {
	depth := p.current(TargetDepth, f)
	normal := p.current(TargetNormal, f)
	p.read(depth, cl)
	p.read(normal, cl)
	p.writeTargets(f, cl)
	p.bind(f, cl, p.pipeline)
	cl.PushConstants(encodePush(primaryInputs(depth.Binding, normal.Binding)))
	p.dispatch(cl, f.RenderExtent)
	return nil
}

func (p *SSAOPass) Destroy() {
	p.destroy()
}

// ssao radius in pixels per world unit of the configured radius
const ssaoPixelsPerUnit = 16

func ssaoKernel(ctx metadata.KernelContext) error {
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
	out, err := ctx.Image(SetStorage, 0)
	if err != nil {
		return err
	}
	n := max(u.SSAO.KernelSize, 1)
	radius := max(u.SSAO.Radius*ssaoPixelsPerUnit, 1)
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			d := depth.At(x, y)[0]
			if d >= 1 || normal.At(x, y).Vec3().LengthSquared() == 0 {
				out.Set(x, y, surface.Texel{1})
				continue
			}
			var occluded float32
			for i := uint32(0); i < n; i++ {
				h := jitter.Hammersley(i, n)
				angle := 2 * math.K_PI * h.X
				dist := h.Y * radius
				sx := x + int(math.Cos(angle)*dist)
				sy := y + int(math.Sin(angle)*dist)
				sd := depth.Clamped(sx, sy)[0]
				// closer samples within range occlude
				if sd < d-u.SSAO.Bias && d-sd < 0.05 {
					occluded++
				}
			}
			out.Set(x, y, surface.Texel{1 - occluded/float32(n)})
		}
	})
}

type BlurTunables struct {
	Window       int
	SpatialSigma float32
	RangeSigma   float32
}

func defaultBlurTunables() BlurTunables {
	return BlurTunables{Window: filter.DefaultWindow, SpatialSigma: filter.DefaultSpatialSigma, RangeSigma: filter.DefaultRangeSigma}
}

func (t BlurTunables) params() [8]float32 {
	return [8]float32{float32(t.Window), t.SpatialSigma, t.RangeSigma}
}

// SSAOBlurPass smooths the raw occlusion with the bilateral filter.
type SSAOBlurPass struct {
	computePass
	tunables BlurTunables
	pipeline metadata.PipelineHandle
}

func NewSSAOBlurPass() *SSAOBlurPass {
	return &SSAOBlurPass{
		computePass: computePass{base: base{name: "ssao-blur"}},
		tunables:    defaultBlurTunables(),
	}
}

func (p *SSAOBlurPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	if err := p.createStorage(storageSlot{binding: 0, target: TargetSSAO}); err != nil {
		return err
	}
	var err error
	p.pipeline, err = p.createPipeline(p.name, bilateralKernel)
	return err
}

func (p *SSAOBlurPass) Apply(s config.Settings) {
	p.enabled = s.SSAO.Enabled
}

func (p *SSAOBlurPass) Tunables() any {
	return p.tunables
}

// SetTunables replaces the filter parameters. Only call it between frames.
func (p *SSAOBlurPass) SetTunables(t BlurTunables) error {
	if _, err := filter.NewBilateral(t.Window, t.SpatialSigma, t.RangeSigma); err != nil {
		return err
	}
	p.tunables = t
	return nil
}

func (p *SSAOBlurPass) Configure(f *Frame) error {
	return nil
}

func (p *SSAOBlurPass) Record(f *Frame, cl metadata.CommandList) error {
	raw := p.target(TargetSSAORaw)
	p.read(raw, cl)
	p.writeTargets(f, cl)
	p.bind(f, cl, p.pipeline)
	in := primaryInputs(raw.Binding)
	in.Params = p.tunables.params()
	cl.PushConstants(encodePush(&in))
	p.dispatch(cl, f.RenderExtent)
	return nil
}

func (p *SSAOBlurPass) Destroy() {
	p.destroy()
}

// bilateralKernel filters input 0 into storage binding Bindings[1].
func bilateralKernel(ctx metadata.KernelContext) error {
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := ctx.Image(SetPrimary, in.Bindings[0])
	if err != nil {
		return err
	}
	dst, err := ctx.Image(SetStorage, in.Bindings[1])
	if err != nil {
		return err
	}
	b, err := filter.NewBilateral(int(in.Params[0]), in.Params[1], in.Params[2])
	if err != nil {
		return err
	}
	return b.Apply(src, dst, ctx.Jobs())
}
