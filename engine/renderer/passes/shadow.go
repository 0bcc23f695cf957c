package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type ShadowTunables struct {
	PCF            bool
	RayTraced      bool
	TemporalWeight float32
	MapSize        uint32
	// towards the light
	LightDirection math.Vec3
}

func defaultLightDirection() math.Vec3 {
	return math.NewVec3(0.4, 1, 0.3).Normalize()
}

// lightViewProjection is an orthographic light looking at the origin.
func lightViewProjection(dir math.Vec3) math.Mat4 {
	view := math.NewMat4LookAt(dir.MulScalar(20), math.NewVec3Zero(), math.NewVec3Up())
	return view.Mul(math.NewMat4Orthographic(-12, 12, -12, 12, 0.1, 50))
}

func shadowUniforms(t ShadowTunables) ShadowUniforms {
	u := ShadowUniforms{
		LightViewProjection: lightViewProjection(t.LightDirection),
		LightDirection:      t.LightDirection.ToVec4(0),
		TemporalWeight:      t.TemporalWeight,
		MapSize:             t.MapSize,
	}
	if t.PCF {
		u.PCF = 1
	}
	if t.RayTraced {
		u.RayTraced = 1
	}
	return u
}

/**
 * @brief Renders scene depth from the light into the shadow map. The target
 * and its clear are fixed at Init.
 */
type ShadowPass struct {
	rasterPass
	tunables ShadowTunables
}

func NewShadowPass() *ShadowPass {
	return &ShadowPass{rasterPass: rasterPass{base: base{name: "shadow"}}}
}

func (p *ShadowPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.tunables.LightDirection = defaultLightDirection()
	p.Apply(ctx.Settings)

	rt := p.target(TargetShadowMap)
	pipeline, err := ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             p.name,
		Kind:             metadata.PipelineGraphics,
		Shaders:          []string{"shadow.vert"},
		Layouts:          []metadata.BindingLayoutHandle{ctx.FrameLayout},
		PushConstantSize: pushConstantSize,
		VertexLayout:     metadata.VertexLayout3D,
		DepthFormat:      DepthFormat,
		DepthTest:        true,
		DepthWrite:       true,
		Kernel:           shadowKernel,
	})
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.info = metadata.RenderingInfo{
		Name:  p.name,
		Area:  metadata.Rect{Width: rt.Desc.Width, Height: rt.Desc.Height},
		Depth: &metadata.Attachment{Image: rt.Image, Load: metadata.LoadOpClear, Clear: [4]float32{1}},
	}
	core.LogDebug("shadow pass created with a %dx%d map", rt.Desc.Width, rt.Desc.Height)
	return nil
}

func (p *ShadowPass) Apply(s config.Settings) {
	p.enabled = s.Shadow.Enabled && !s.Shadow.RayTraced
	p.tunables.PCF = s.Shadow.PCF
	p.tunables.RayTraced = s.Shadow.RayTraced
	p.tunables.TemporalWeight = s.Shadow.TemporalWeight
	p.tunables.MapSize = s.Shadow.MapSize
}

func (p *ShadowPass) Tunables() any {
	return p.tunables
}

func (p *ShadowPass) Configure(f *Frame) error {
	return f.Uniforms.SetShadow(p.name, shadowUniforms(p.tunables))
}

func (p *ShadowPass) Record(f *Frame, cl metadata.CommandList) error {
	p.use(p.target(TargetShadowMap), metadata.AccessDepthAttachment, cl)
	cl.BeginRendering(p.info)
	cl.BindPipeline(p.pipeline)
	cl.BindSet(SetFrame, p.ctx.FrameSets[f.Slot.Frame])
	cl.SetViewport(p.info.Area)
	cl.SetScissor(p.info.Area)
	drawMeshes(p.ctx.Scene, cl, false, DrawConstants{})
	cl.EndRendering()
	return nil
}

func (p *ShadowPass) Destroy() {
	p.destroy()
}

func shadowKernel(ctx metadata.KernelContext) error {
	var dc DrawConstants
	if err := decodePush(ctx.PushConstants(), &dc); err != nil {
		return err
	}
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	depth, err := ctx.DepthAttachment()
	if err != nil {
		return err
	}
	splat(depth, dc.Bounds.ToVec3(), dc.Model.Mul(u.Shadow.LightViewProjection), func(fragment) {})
	return nil
}
