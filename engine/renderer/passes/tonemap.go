package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

type TonemapTunables struct {
	Mode     config.TonemapMode
	Exposure float32
}

// TonemapPass maps the HDR frame color onto the swapchain image. It always
// runs and is the first writer of the swapchain image in a frame.
type TonemapPass struct {
	dynamicPass
	tunables TonemapTunables
}

func NewTonemapPass() *TonemapPass {
	return &TonemapPass{dynamicPass: dynamicPass{base: base{name: "tonemap", enabled: true}}}
}

func (p *TonemapPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	return p.createFullscreen("tonemap.frag", []metadata.Format{ctx.Device.SwapchainFormat()}, metadata.FormatUndefined, tonemapKernel)
}

func (p *TonemapPass) Apply(s config.Settings) {
	p.tunables = TonemapTunables{Mode: s.Tonemap.Mode, Exposure: s.Tonemap.Exposure}
}

func (p *TonemapPass) Tunables() any {
	return p.tunables
}

func (p *TonemapPass) Configure(f *Frame) error {
	return f.Uniforms.SetTonemap(p.name, TonemapUniforms{Mode: uint32(p.tunables.Mode), Exposure: p.tunables.Exposure})
}

func (p *TonemapPass) Record(f *Frame, cl metadata.CommandList) error {
	p.read(f.Color, cl)
	p.ctx.Table.TransitionImage(f.Slot.Image, metadata.AccessColorAttachment, cl)

	area := f.DisplayExtent.Rect()
	cl.BeginRendering(metadata.RenderingInfo{
		Name:  p.name,
		Area:  area,
		Color: []metadata.Attachment{{Image: f.Slot.Image, Load: metadata.LoadOpClear, Clear: [4]float32{0, 0, 0, 1}}},
	})
	cl.BindPipeline(p.pipeline)
	p.bindCommon(f, cl)
	in := primaryInputs(f.Color.Binding)
	in.Params[0] = float32(p.tunables.Mode)
	in.Params[1] = p.tunables.Exposure
	cl.PushConstants(encodePush(&in))
	p.fullscreen(cl, area)
	cl.EndRendering()
	return nil
}

func (p *TonemapPass) Destroy() {
	p.destroy()
}

func tonemapKernel(ctx metadata.KernelContext) error {
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := ctx.Image(SetPrimary, in.Bindings[0])
	if err != nil {
		return err
	}
	dst, err := ctx.Attachment(0)
	if err != nil {
		return err
	}
	mode := config.TonemapMode(in.Params[0])
	exposure := in.Params[1]
	return forRows(ctx, dst.Height, func(y int) {
		for x := 0; x < dst.Width; x++ {
			// render extent is upscaled to the display
			c := src.Sample(pixelUV(x, y, dst))
			var out surface.Texel
			for k := 0; k < 3; k++ {
				out[k] = math.Clamp(tonemap(mode, c[k]*exposure), 0, 1)
			}
			out[3] = 1
			dst.Set(x, y, out)
		}
	})
}

// AMD curve constants.
const (
	amdContrast = 1.6
	amdShoulder = 0.977
	amdHDRMax   = 8.0
	amdMidIn    = 0.18
	amdMidOut   = 0.267
)

func tonemap(mode config.TonemapMode, v float32) float32 {
	v = max(v, 0)
	switch mode {
	case config.TonemapReinhard:
		return v / (1 + v)
	case config.TonemapAMD:
		return amdTonemap(v)
	}
	return v
}

func amdTonemap(v float32) float32 {
	a, d := float32(amdContrast), float32(amdShoulder)
	hdr, midIn, midOut := float32(amdHDRMax), float32(amdMidIn), float32(amdMidOut)
	ad := a * d
	denom := (math.Pow(hdr, ad) - math.Pow(midIn, ad)) * midOut
	b := (-math.Pow(midIn, a) + math.Pow(hdr, a)*midOut) / denom
	c := (math.Pow(hdr, ad)*math.Pow(midIn, a) - math.Pow(hdr, a)*math.Pow(midIn, ad)*midOut) / denom
	return math.Pow(v, a) / (math.Pow(v, ad)*b + c)
}
