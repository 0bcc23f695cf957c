package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/reprojection"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// primary inputs of the resolve kernel
const (
	taaColor = iota
	taaMotion
	taaDepth
	taaNormal
	taaPreviousDepth
	taaPreviousNormal
	taaHistory
)

type TAATunables struct {
	ResolveWeight      float32
	UseMotionVectors   bool
	FlickerCorrection  config.FlickerCorrection
	ReprojectionFilter config.ReprojectionFilter
}

/**
 * @brief Blends the frame color with last frame's resolved color and
 * writes the result into the history slot of this frame.
 */
type TAAPass struct {
	computePass
	tunables TAATunables
	pipeline metadata.PipelineHandle
}

func NewTAAPass() *TAAPass {
	return &TAAPass{computePass: computePass{base: base{name: "taa"}}}
}

func (p *TAAPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	if err := p.createStorage(storageSlot{binding: 0, target: TargetColorHistory}); err != nil {
		return err
	}
	var err error
	p.pipeline, err = p.createPipeline(p.name, taaKernel)
	return err
}

func (p *TAAPass) Apply(s config.Settings) {
	p.enabled = s.TAA.Enabled
	p.tunables = TAATunables{
		ResolveWeight:      s.TAA.ResolveWeight,
		UseMotionVectors:   s.TAA.UseMotionVectors,
		FlickerCorrection:  s.TAA.FlickerCorrection,
		ReprojectionFilter: s.TAA.ReprojectionFilter,
	}
}

func (p *TAAPass) Tunables() any {
	return p.tunables
}

func (p *TAAPass) Configure(f *Frame) error {
	u := TAAUniforms{
		ResolveWeight:      p.tunables.ResolveWeight,
		FlickerCorrection:  uint32(p.tunables.FlickerCorrection),
		ReprojectionFilter: uint32(p.tunables.ReprojectionFilter),
	}
	if p.tunables.UseMotionVectors {
		u.UseMotionVectors = 1
	}
	return f.Uniforms.SetTAA(p.name, u)
}

func (p *TAAPass) Record(f *Frame, cl metadata.CommandList) error {
	targets := make([]*resources.RenderTarget, taaHistory+1)
	targets[taaColor] = f.Color
	targets[taaMotion] = p.target(TargetMotion)
	targets[taaDepth] = p.current(TargetDepth, f)
	targets[taaNormal] = p.current(TargetNormal, f)
	targets[taaPreviousDepth] = p.previous(TargetDepth, f)
	targets[taaPreviousNormal] = p.previous(TargetNormal, f)
	targets[taaHistory] = p.previous(TargetColorHistory, f)
	bindings := make([]uint32, len(targets))
	for i, rt := range targets {
		p.read(rt, cl)
		bindings[i] = rt.Binding
	}
	p.writeTargets(f, cl)
	p.bind(f, cl, p.pipeline)
	cl.PushConstants(encodePush(primaryInputs(bindings...)))
	p.dispatch(cl, f.RenderExtent)
	f.Color = p.current(TargetColorHistory, f)
	return nil
}

func (p *TAAPass) Destroy() {
	p.destroy()
}

func taaKernel(ctx metadata.KernelContext) error {
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := sampled(ctx, in, taaColor, taaMotion, taaDepth, taaNormal, taaPreviousDepth, taaPreviousNormal, taaHistory)
	if err != nil {
		return err
	}
	out, err := ctx.Image(SetStorage, 0)
	if err != nil {
		return err
	}
	color := src[taaColor]
	motion := src[taaMotion]
	if u.TAA.UseMotionVectors == 0 {
		motion = surface.MustNew(motion.Width, motion.Height, motion.Channels)
	}
	s := reprojection.Sampler{
		Motion:            motion,
		CurrentDepth:      src[taaDepth],
		CurrentNormal:     src[taaNormal],
		PreviousDepth:     src[taaPreviousDepth],
		PreviousNormal:    src[taaPreviousNormal],
		History:           src[taaHistory],
		InverseProjection: u.Camera.InverseProjection,
		Thresholds:        reprojection.DefaultThresholds(),
	}
	if err := s.Validate(); err != nil {
		return err
	}
	weight := math.Clamp(u.TAA.ResolveWeight, 0, 1)
	flicker := config.FlickerCorrection(u.TAA.FlickerCorrection)
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			c := color.At(x, y)
			r := s.Full(x, y)
			if !r.Valid {
				out.Set(x, y, c)
				continue
			}
			h := clampToNeighbourhood(color, x, y, r.Value)
			out.Set(x, y, resolve(c, h, weight, flicker))
		}
	})
}

// clampToNeighbourhood limits history to the color range around x, y.
func clampToNeighbourhood(color *surface.Surface, x, y int, history surface.Texel) surface.Texel {
	lo := color.Clamped(x, y)
	hi := lo
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			t := color.Clamped(x+i, y+j)
			for k := range t {
				lo[k] = min(lo[k], t[k])
				hi[k] = max(hi[k], t[k])
			}
		}
	}
	for k := range history {
		history[k] = math.Clamp(history[k], lo[k], hi[k])
	}
	return history
}

// resolve blends current towards history by weight.
func resolve(current, history surface.Texel, weight float32, flicker config.FlickerCorrection) surface.Texel {
	var out surface.Texel
	switch flicker {
	case config.FlickerCorrectionLogWeighing:
		for k := 0; k < 3; k++ {
			a := math.Log(1 + max(current[k], 0))
			b := math.Log(1 + max(history[k], 0))
			out[k] = math.Exp(math.Lerp(a, b, weight)) - 1
		}
	case config.FlickerCorrectionLuminanceWeighing:
		wc := (1 - weight) / (1 + luminance(current))
		wh := weight / (1 + luminance(history))
		for k := 0; k < 3; k++ {
			out[k] = (current[k]*wc + history[k]*wh) / (wc + wh)
		}
	default:
		for k := 0; k < 3; k++ {
			out[k] = math.Lerp(current[k], history[k], weight)
		}
	}
	out[3] = 1
	return out
}
