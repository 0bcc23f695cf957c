package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// gbuffer attachment order
const (
	gbufferAlbedo = iota
	gbufferNormal
	gbufferMaterial
	gbufferMotion
	gbufferObjectID
)

// GBufferPass writes the surface attributes the deferred passes shade from.
type GBufferPass struct {
	dynamicPass
}

func NewGBufferPass() *GBufferPass {
	return &GBufferPass{dynamicPass: dynamicPass{base: base{name: "gbuffer"}}}
}

func (p *GBufferPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	formats := []metadata.Format{
		p.target(TargetAlbedo).Desc.Format,
		p.target(TargetNormal + ".a").Desc.Format,
		p.target(TargetMaterial).Desc.Format,
		p.target(TargetMotion).Desc.Format,
		p.target(TargetObjectID).Desc.Format,
	}
	pipeline, err := geometryPipeline(ctx, p.name, formats, true, gbufferKernel)
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	return nil
}

func (p *GBufferPass) Apply(s config.Settings) {
	p.enabled = s.Renderer.Mode == config.RendererModeDeferred
}

func (p *GBufferPass) Tunables() any {
	return struct{}{}
}

func (p *GBufferPass) Configure(f *Frame) error {
	return nil
}

func (p *GBufferPass) Record(f *Frame, cl metadata.CommandList) error {
	targets := []*resources.RenderTarget{
		p.target(TargetAlbedo),
		p.current(TargetNormal, f),
		p.target(TargetMaterial),
		p.target(TargetMotion),
		p.target(TargetObjectID),
	}
	attachments := make([]metadata.Attachment, len(targets))
	for i, rt := range targets {
		p.use(rt, metadata.AccessColorAttachment, cl)
		attachments[i] = metadata.Attachment{Image: rt.Image, Load: metadata.LoadOpClear}
	}
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
	drawMeshes(p.ctx.Scene, cl, true, DrawConstants{})
	cl.EndRendering()
	return nil
}

func (p *GBufferPass) Destroy() {
	p.destroy()
}

func gbufferKernel(ctx metadata.KernelContext) error {
	dc, u, albedo, err := shadeGeometry(ctx)
	if err != nil {
		return err
	}
	var out [5]*surface.Surface
	for i := range out {
		if out[i], err = ctx.Attachment(i); err != nil {
			return err
		}
	}
	depth, err := ctx.DepthAttachment()
	if err != nil {
		return err
	}
	splat(depth, dc.Bounds.ToVec3(), dc.Model.Mul(u.Camera.ViewProjection), func(fr fragment) {
		s := fragmentSample(fr, dc, u, albedo)
		m := motionAt(fr, dc, u)
		out[gbufferAlbedo].Set(fr.x, fr.y, albedo)
		out[gbufferNormal].Set(fr.x, fr.y, surface.Texel{s.normal.X, s.normal.Y, s.normal.Z, 0})
		out[gbufferMaterial].Set(fr.x, fr.y, surface.Texel{dc.Roughness, dc.Metallic, 0, 1})
		out[gbufferMotion].Set(fr.x, fr.y, surface.Texel{m.X, m.Y})
		out[gbufferObjectID].Set(fr.x, fr.y, surface.Texel{float32(dc.ObjectID)})
	})
	return nil
}
