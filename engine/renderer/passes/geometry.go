package passes

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// drawMeshes records every submesh of the scene. With materials the resolved
// material set is bound at SetMaterial, unknown ids use the default material.
// Fields of tmpl that are not per draw are pushed as given.
func drawMeshes(src scene.Source, cl metadata.CommandList, materials bool, tmpl DrawConstants) {
	for i := 0; i < src.MeshCount(); i++ {
		mesh := src.Mesh(i)
		cl.BindVertexBuffer(mesh.VertexBuffer, 0)
		cl.BindIndexBuffer(mesh.IndexBuffer, 0)
		for _, sm := range mesh.Submeshes {
			mat := scene.ResolveMaterial(src, sm.MaterialID)
			if materials {
				cl.BindSet(SetMaterial, mat.Set)
			}
			dc := tmpl
			dc.Model = mesh.Model
			dc.BaseColor = mat.BaseColor
			dc.Bounds = mesh.Bounds.ToVec4(0)
			dc.ObjectID = mesh.ObjectID
			dc.MaterialID = mat.ID
			dc.Roughness = mat.Roughness
			dc.Metallic = mat.Metallic
			cl.PushConstants(encodePush(&dc))
			cl.DrawIndexed(sm.IndexCount, sm.FirstIndex, 0)
		}
	}
}

func geometryPipeline(ctx *Context, name string, colors []metadata.Format, materials bool, kernel metadata.Kernel) (metadata.PipelineHandle, error) {
	layouts := []metadata.BindingLayoutHandle{ctx.FrameLayout, ctx.PrimaryLayout}
	if materials {
		layouts = append(layouts, ctx.EmptyLayout, ctx.Scene.MaterialLayout())
	}
	return ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             name,
		Kind:             metadata.PipelineGraphics,
		Shaders:          []string{name + ".vert", name + ".frag"},
		Layouts:          layouts,
		PushConstantSize: pushConstantSize,
		VertexLayout:     metadata.VertexLayout3D,
		ColorFormats:     colors,
		DepthFormat:      DepthFormat,
		DepthTest:        true,
		DepthWrite:       true,
		Kernel:           kernel,
	})
}

// surfaceSample is what the geometry kernels know about a shaded fragment.
type surfaceSample struct {
	world  math.Vec3
	normal math.Vec3
	albedo math.Vec4
}

// shadeGeometry decodes the draw and samples the material albedo.
func shadeGeometry(ctx metadata.KernelContext) (DrawConstants, FrameUniforms, surface.Texel, error) {
	var dc DrawConstants
	if err := decodePush(ctx.PushConstants(), &dc); err != nil {
		return dc, FrameUniforms{}, surface.Texel{}, err
	}
	u, err := frameUniforms(ctx)
	if err != nil {
		return dc, u, surface.Texel{}, err
	}
	tex, err := ctx.Image(SetMaterial, scene.MaterialBindingAlbedo)
	if err != nil {
		return dc, u, surface.Texel{}, err
	}
	return dc, u, tex.Sample(math.NewVec2(0.5, 0.5)), nil
}

// fragmentSample reconstructs the shading inputs of a splatted fragment.
func fragmentSample(f fragment, dc DrawConstants, u FrameUniforms, albedo surface.Texel) surfaceSample {
	world := worldPosition(f.uv, f.depth, u.Camera.InverseViewProjection)
	center := math.NewVec3(0, 0, 0).Transform(dc.Model)
	var normal math.Vec3
	if dc.Bounds.Y == 0 {
		normal = math.NewVec3Up()
	} else {
		normal = u.Camera.Position.ToVec3().Sub(center).Normalize()
	}
	return surfaceSample{world: world, normal: normal, albedo: math.NewVec4(albedo[0], albedo[1], albedo[2], albedo[3])}
}

// motionAt is the UV displacement from this frame to the previous one.
func motionAt(f fragment, dc DrawConstants, u FrameUniforms) math.Vec2 {
	center := math.NewVec4(0, 0, 0, 1).Transform(dc.Model)
	prev := center.Transform(u.Camera.PreviousViewProjection)
	if prev.W <= 1e-5 {
		return math.Vec2{}
	}
	p := prev.PerspectiveDivide()
	cur := center.Transform(u.Camera.ViewProjection).PerspectiveDivide()
	return math.NewVec2((p.X-cur.X)*0.5, (p.Y-cur.Y)*0.5)
}

// shadowFactor looks world up in the shadow map, 1 is lit.
func shadowFactor(world math.Vec3, s ShadowUniforms, shadowMap *surface.Surface) float32 {
	p := world.ToVec4(1).Transform(s.LightViewProjection)
	if p.W <= 0 {
		return 1
	}
	ndc := p.PerspectiveDivide()
	uv := math.NewVec2(ndc.X*0.5+0.5, ndc.Y*0.5+0.5)
	if uv.X < 0 || uv.X > 1 || uv.Y < 0 || uv.Y > 1 {
		return 1
	}
	z := ndc.Z*0.5 + 0.5
	const bias = 0.005
	x := int(uv.X * float32(shadowMap.Width))
	y := int(uv.Y * float32(shadowMap.Height))
	radius := 0
	if s.PCF != 0 {
		radius = 1
	}
	var lit, taps float32
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			taps++
			if z-bias <= shadowMap.Clamped(x+dx, y+dy)[0] {
				lit++
			}
		}
	}
	return lit / taps
}
