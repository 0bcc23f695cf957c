package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

type SkyboxTunables struct {
	Horizon math.Vec3
	Zenith  math.Vec3
}

// SkyboxPass clears the scene color and the current depth and fills the
// background. It always runs.
type SkyboxPass struct {
	dynamicPass
	tunables SkyboxTunables
}

func NewSkyboxPass() *SkyboxPass {
	return &SkyboxPass{
		dynamicPass: dynamicPass{base: base{name: "skybox", enabled: true}},
		tunables: SkyboxTunables{
			Horizon: math.NewVec3(0.75, 0.8, 0.9),
			Zenith:  math.NewVec3(0.15, 0.3, 0.65),
		},
	}
}

func (p *SkyboxPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	pipeline, err := ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             p.name,
		Kind:             metadata.PipelineGraphics,
		Shaders:          []string{"fullscreen.vert", "skybox.frag"},
		Layouts:          []metadata.BindingLayoutHandle{ctx.FrameLayout},
		PushConstantSize: pushConstantSize,
		ColorFormats:     []metadata.Format{ColorFormat},
		DepthFormat:      DepthFormat,
		DepthTest:        true,
		Kernel:           skyboxKernel,
	})
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	return nil
}

func (p *SkyboxPass) Apply(s config.Settings) {}

func (p *SkyboxPass) Tunables() any {
	return p.tunables
}

func (p *SkyboxPass) Configure(f *Frame) error {
	return nil
}

func (p *SkyboxPass) Record(f *Frame, cl metadata.CommandList) error {
	color := p.target(TargetSceneColor)
	depth := p.current(TargetDepth, f)
	p.use(color, metadata.AccessColorAttachment, cl)
	p.use(depth, metadata.AccessDepthAttachment, cl)

	area := f.RenderExtent.Rect()
	cl.BeginRendering(metadata.RenderingInfo{
		Name:  p.name,
		Area:  area,
		Color: []metadata.Attachment{{Image: color.Image, Load: metadata.LoadOpClear, Clear: [4]float32{0, 0, 0, 1}}},
		Depth: &metadata.Attachment{Image: depth.Image, Load: metadata.LoadOpClear, Clear: [4]float32{1}},
	})
	cl.BindPipeline(p.pipeline)
	cl.BindSet(SetFrame, p.ctx.FrameSets[f.Slot.Frame])
	t := p.tunables
	in := InputConstants{}
	in.Params = [8]float32{t.Horizon.X, t.Horizon.Y, t.Horizon.Z, 0, t.Zenith.X, t.Zenith.Y, t.Zenith.Z, 0}
	cl.PushConstants(encodePush(&in))
	p.fullscreen(cl, area)
	cl.EndRendering()

	f.Color = color
	return nil
}

func (p *SkyboxPass) Destroy() {
	p.destroy()
}

func skyboxKernel(ctx metadata.KernelContext) error {
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	dst, err := ctx.Attachment(0)
	if err != nil {
		return err
	}
	horizon := surface.Texel{in.Params[0], in.Params[1], in.Params[2], 1}
	zenith := surface.Texel{in.Params[4], in.Params[5], in.Params[6], 1}
	return forRows(ctx, dst.Height, func(y int) {
		t := float32(y) / float32(max(dst.Height-1, 1))
		c := horizon.Scale(1 - t).Add(zenith.Scale(t))
		for x := 0; x < dst.Width; x++ {
			dst.Set(x, y, c)
		}
	})
}
