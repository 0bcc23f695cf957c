package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// primary inputs of the lighting kernel
const (
	lightAlbedo = iota
	lightNormal
	lightMaterial
	lightDepth
	lightAO
	lightShadow
)

type LightingTunables struct {
	LightColor math.Vec3
	Ambient    float32
}

// LightingPass resolves the g-buffer into the scene color.
type LightingPass struct {
	computePass
	tunables LightingTunables
	pipeline metadata.PipelineHandle
	uniforms LightingUniforms
}

func NewLightingPass() *LightingPass {
	return &LightingPass{
		computePass: computePass{base: base{name: "lighting"}},
		tunables:    LightingTunables{LightColor: math.NewVec3(1, 0.96, 0.9), Ambient: 0.15},
	}
}

func (p *LightingPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	if err := p.createStorage(storageSlot{binding: 0, target: TargetSceneColor}); err != nil {
		return err
	}
	var err error
	p.pipeline, err = p.createPipeline(p.name, lightingKernel)
	return err
}

func (p *LightingPass) Apply(s config.Settings) {
	p.enabled = s.Renderer.Mode == config.RendererModeDeferred
}

func (p *LightingPass) Tunables() any {
	return p.tunables
}

// Configure reads which occlusion and shadow producers ran this frame.
func (p *LightingPass) Configure(f *Frame) error {
	p.uniforms = LightingUniforms{
		LightColor: p.tunables.LightColor.ToVec4(1),
		Ambient:    p.tunables.Ambient,
	}
	if _, ok := f.Uniforms.SSAO(); ok {
		p.uniforms.UseAO = 1
	}
	if s, ok := f.Uniforms.Shadow(); ok {
		p.uniforms.ShadowSource = ShadowSourceMap
		if s.RayTraced != 0 {
			p.uniforms.ShadowSource = ShadowSourceDenoised
		}
	}
	return f.Uniforms.SetLighting(p.name, p.uniforms)
}

func (p *LightingPass) Record(f *Frame, cl metadata.CommandList) error {
	targets := make([]*resources.RenderTarget, lightShadow+1)
	targets[lightAlbedo] = p.target(TargetAlbedo)
	targets[lightNormal] = p.current(TargetNormal, f)
	targets[lightMaterial] = p.target(TargetMaterial)
	targets[lightDepth] = p.current(TargetDepth, f)
	targets[lightAO] = p.target(TargetSSAO)
	switch p.uniforms.ShadowSource {
	case ShadowSourceMap:
		targets[lightShadow] = p.target(TargetShadowMap)
	case ShadowSourceDenoised:
		targets[lightShadow] = p.target(TargetShadowDenoised)
	}
	var bindings []uint32
	for _, rt := range targets {
		if rt == nil {
			bindings = append(bindings, 0)
			continue
		}
		p.read(rt, cl)
		bindings = append(bindings, rt.Binding)
	}

	p.writeTargets(f, cl)
	p.bind(f, cl, p.pipeline)
	cl.PushConstants(encodePush(primaryInputs(bindings...)))
	p.dispatch(cl, f.RenderExtent)
	f.Color = p.target(TargetSceneColor)
	return nil
}

func (p *LightingPass) Destroy() {
	p.destroy()
}

func lightingKernel(ctx metadata.KernelContext) error {
	u, err := frameUniforms(ctx)
	if err != nil {
		return err
	}
	in, err := inputs(ctx)
	if err != nil {
		return err
	}
	src, err := sampled(ctx, in, lightAlbedo, lightNormal, lightMaterial, lightDepth)
	if err != nil {
		return err
	}
	albedo, normal, material, depth := src[0], src[1], src[2], src[3]
	var ao, shadow *surface.Surface
	if u.Lighting.UseAO != 0 {
		if ao, err = ctx.Image(SetPrimary, in.Bindings[lightAO]); err != nil {
			return err
		}
	}
	if u.Lighting.ShadowSource != ShadowSourceNone {
		if shadow, err = ctx.Image(SetPrimary, in.Bindings[lightShadow]); err != nil {
			return err
		}
	}
	out, err := ctx.Image(SetStorage, 0)
	if err != nil {
		return err
	}
	light := u.Shadow.LightDirection.ToVec3()
	if light.LengthSquared() == 0 {
		light = defaultLightDirection()
	}
	color := u.Lighting.LightColor
	return forRows(ctx, out.Height, func(y int) {
		for x := 0; x < out.Width; x++ {
			d := depth.At(x, y)[0]
			// sky pixels keep the skybox
			if d >= 1 {
				continue
			}
			a := albedo.At(x, y)
			occlusion := float32(1)
			if ao != nil {
				occlusion = ao.At(x, y)[0]
			}
			lit := float32(1)
			world := worldPosition(pixelUV(x, y, depth), d, u.Camera.InverseViewProjection)
			n := normal.At(x, y).Vec3()
			switch u.Lighting.ShadowSource {
			case ShadowSourceMap:
				lit = shadowFactor(world, u.Shadow, shadow)
			case ShadowSourceDenoised:
				lit = shadow.At(x, y)[0]
			}
			ndotl := math.Clamp(n.Dot(light), 0, 1)
			diffuse := ndotl * lit
			roughness := material.At(x, y)[0]
			view := u.Camera.Position.ToVec3().Sub(world).Normalize()
			half := view.Add(light).Normalize()
			specular := math.Pow(math.Clamp(n.Dot(half), 0, 1), math.Lerp(64, 4, roughness)) * (1 - roughness) * lit
			ambient := u.Lighting.Ambient * occlusion
			out.Set(x, y, surface.Texel{
				a[0]*(ambient+diffuse*color.X) + specular*color.X,
				a[1]*(ambient+diffuse*color.Y) + specular*color.Y,
				a[2]*(ambient+diffuse*color.Z) + specular*color.Z,
				1,
			})
		}
	})
}
