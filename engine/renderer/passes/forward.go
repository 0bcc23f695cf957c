package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

const (
	forwardColor = iota
	forwardNormal
	forwardMotion
	forwardObjectID
)

type ForwardTunables struct {
	Ambient float32
}

// ForwardPass shades the opaque geometry directly into the scene color.
type ForwardPass struct {
	dynamicPass
	tunables ForwardTunables
	// shadow map lookup of this frame
	tmpl DrawConstants
}

func NewForwardPass() *ForwardPass {
	return &ForwardPass{
		dynamicPass: dynamicPass{base: base{name: "forward"}},
		tunables:    ForwardTunables{Ambient: 0.15},
	}
}

func (p *ForwardPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	formats := []metadata.Format{
		ColorFormat,
		p.target(TargetNormal + ".a").Desc.Format,
		p.target(TargetMotion).Desc.Format,
		p.target(TargetObjectID).Desc.Format,
	}
	pipeline, err := geometryPipeline(ctx, p.name, formats, true, forwardKernel)
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	return nil
}

func (p *ForwardPass) Apply(s config.Settings) {
	p.enabled = s.Renderer.Mode == config.RendererModeForward
}

func (p *ForwardPass) Tunables() any {
	return p.tunables
}

// Configure picks up the shadow map when the shadow pass wrote its section.
func (p *ForwardPass) Configure(f *Frame) error {
	p.tmpl = DrawConstants{}
	if s, ok := f.Uniforms.Shadow(); ok && s.RayTraced == 0 {
		p.tmpl.UseShadow = 1
		p.tmpl.ShadowBinding = p.target(TargetShadowMap).Binding
	}
	return nil
}

func (p *ForwardPass) Record(f *Frame, cl metadata.CommandList) error {
	if p.tmpl.UseShadow != 0 {
		p.read(p.target(TargetShadowMap), cl)
	}
	color := p.target(TargetSceneColor)
	targets := []*resources.RenderTarget{
		color,
		p.current(TargetNormal, f),
		p.target(TargetMotion),
		p.target(TargetObjectID),
	}
	attachments := make([]metadata.Attachment, len(targets))
	for i, rt := range targets {
		p.use(rt, metadata.AccessColorAttachment, cl)
		attachments[i] = metadata.Attachment{Image: rt.Image, Load: metadata.LoadOpClear}
	}
	// the skybox already drew the background
	attachments[forwardColor].Load = metadata.LoadOpLoad
	depth := p.current(TargetDepth, f)
	p.use(depth, metadata.AccessDepthAttachment, cl)

	area := f.RenderExtent.Rect()
	cl.BeginRendering(metadata.RenderingInfo{
		Name:  p.name,
		Area:  area,
		Color: attachments,
		Depth: &metadata.Attachment{Image: depth.Image, Load: metadata.LoadOpLoad},
	})
	cl.BindPipeline(p.pipeline)
	p.bindCommon(f, cl)
	cl.SetViewport(area)
	cl.SetScissor(area)
	tmpl := p.tmpl
	tmpl.Ambient = p.tunables.Ambient
	drawMeshes(p.ctx.Scene, cl, true, tmpl)
	cl.EndRendering()

	f.Color = color
	return nil
}

func (p *ForwardPass) Destroy() {
	p.destroy()
}

func forwardKernel(ctx metadata.KernelContext) error {
	dc, u, albedo, err := shadeGeometry(ctx)
	if err != nil {
		return err
	}
	var out [4]*surface.Surface
	for i := range out {
		if out[i], err = ctx.Attachment(i); err != nil {
			return err
		}
	}
	depth, err := ctx.DepthAttachment()
	if err != nil {
		return err
	}
	var shadowMap *surface.Surface
	if dc.UseShadow != 0 {
		if shadowMap, err = ctx.Image(SetPrimary, dc.ShadowBinding); err != nil {
			return err
		}
	}
	light := u.Shadow.LightDirection.ToVec3()
	if light.LengthSquared() == 0 {
		light = defaultLightDirection()
	}
	splat(depth, dc.Bounds.ToVec3(), dc.Model.Mul(u.Camera.ViewProjection), func(fr fragment) {
		s := fragmentSample(fr, dc, u, albedo)
		lit := float32(1)
		if shadowMap != nil {
			lit = shadowFactor(s.world, u.Shadow, shadowMap)
		}
		ndotl := math.Clamp(s.normal.Dot(light), 0, 1)
		k := dc.Ambient + ndotl*lit
		m := motionAt(fr, dc, u)
		out[forwardColor].Set(fr.x, fr.y, surface.Texel{s.albedo.X * k, s.albedo.Y * k, s.albedo.Z * k, 1})
		out[forwardNormal].Set(fr.x, fr.y, surface.Texel{s.normal.X, s.normal.Y, s.normal.Z, 0})
		out[forwardMotion].Set(fr.x, fr.y, surface.Texel{m.X, m.Y})
		out[forwardObjectID].Set(fr.x, fr.y, surface.Texel{float32(dc.ObjectID)})
	})
	return nil
}
