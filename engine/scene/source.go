// Package scene provides the drawable meshes, their materials and the camera
// the renderer draws them with.
package scene

import (
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// InvalidMaterialID is the "not found" id. Passes fall back to the default
// material for it and for any other unknown id.
const InvalidMaterialID uint32 = stdmath.MaxUint32

// Material bindings, bound at set 3 by geometry passes.
const (
	MaterialBindingAlbedo uint32 = 0
	MaterialBindingNormal uint32 = 1
)

type Submesh struct {
	FirstIndex uint32
	IndexCount uint32
	MaterialID uint32
}

type Mesh struct {
	Name         string
	VertexBuffer metadata.BufferHandle
	IndexBuffer  metadata.BufferHandle
	Submeshes    []Submesh
	Model        math.Mat4
	// half size of the model space bounding box
	Bounds math.Vec3
	// written to the object id target, 0 means no object
	ObjectID uint32
}

type Material struct {
	ID        uint32
	Name      string
	Albedo    metadata.ImageHandle
	Normal    metadata.ImageHandle
	Set       metadata.BindingSetHandle
	BaseColor math.Vec4
	Roughness float32
	Metallic  float32
}

type Source interface {
	MeshCount() int
	Mesh(i int) Mesh
	Material(id uint32) (Material, bool)
	DefaultMaterial() Material
	// MaterialLayout is the layout every material set is built with.
	MaterialLayout() metadata.BindingLayoutHandle
	Update(dt float64)
}

func MaterialLayoutDesc() metadata.BindingLayoutDesc {
	return metadata.BindingLayoutDesc{
		Name: "material",
		Entries: []metadata.LayoutEntry{
			{Binding: MaterialBindingAlbedo, Type: metadata.BindingSampledImage},
			{Binding: MaterialBindingNormal, Type: metadata.BindingSampledImage},
		},
	}
}

// ResolveMaterial returns the material for id or the default one.
func ResolveMaterial(src Source, id uint32) Material {
	if id != InvalidMaterialID {
		if m, ok := src.Material(id); ok {
			return m
		}
	}
	return src.DefaultMaterial()
}
