package scene

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type materialSpec struct {
	name      string
	color     [4]byte
	roughness float32
	metallic  float32
}

// Procedural is a small built-in scene: a ground plane and a ring of
// spinning cubes. One cube references a material id that does not exist.
type Procedural struct {
	device  metadata.Device
	sampler metadata.SamplerHandle
	layout  metadata.BindingLayoutHandle

	meshes    []Mesh
	spin      []float32
	offsets   []math.Vec3
	materials map[uint32]Material
	fallback  Material
	images    []metadata.ImageHandle
	buffers   []metadata.BufferHandle
	elapsed   float64
}

// MissingMaterialID is referenced by the last cube and resolves to the default material.
const MissingMaterialID uint32 = 7

func NewProcedural(device metadata.Device, sampler metadata.SamplerHandle, cubes int) (*Procedural, error) {
	p := &Procedural{
		device:    device,
		sampler:   sampler,
		materials: make(map[uint32]Material),
	}
	layout, err := device.CreateBindingLayout(MaterialLayoutDesc())
	if err != nil {
		return nil, err
	}
	p.layout = layout

	flatNormal, err := p.texture("normal.flat", [4]byte{128, 128, 255, 255})
	if err != nil {
		p.Destroy()
		return nil, err
	}
	p.fallback, err = p.material(InvalidMaterialID, materialSpec{name: "default", color: [4]byte{255, 255, 255, 255}, roughness: 1}, flatNormal)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	specs := []materialSpec{
		{name: "ground", color: [4]byte{180, 180, 170, 255}, roughness: 0.9},
		{name: "red", color: [4]byte{200, 40, 30, 255}, roughness: 0.4},
		{name: "blue", color: [4]byte{30, 60, 200, 255}, roughness: 0.2, metallic: 1},
	}
	for i, s := range specs {
		m, err := p.material(uint32(i), s, flatNormal)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.materials[m.ID] = m
	}

	vertices, indices := planeGeometry(10)
	if err := p.addMesh("ground", vertices, indices, 0, math.NewVec3Zero(), math.NewVec3(10, 0, 10)); err != nil {
		p.Destroy()
		return nil, err
	}
	vertices, indices = cubeGeometry(0.5)
	for i := 0; i < cubes; i++ {
		angle := float32(i) / float32(max(cubes, 1)) * 2 * math.K_PI
		offset := math.NewVec3(3*math.Cos(angle), 0.5, 3*math.Sin(angle))
		mat := uint32(1 + i%2)
		if i == cubes-1 && cubes > 1 {
			mat = MissingMaterialID
		}
		if err := p.addMesh(fmt.Sprintf("cube.%d", i), vertices, indices, mat, offset, math.NewVec3(0.5, 0.5, 0.5)); err != nil {
			p.Destroy()
			return nil, err
		}
	}
	core.LogInfo("procedural scene created with %d meshes and %d materials", len(p.meshes), len(p.materials))
	return p, nil
}

func (p *Procedural) texture(name string, rgba [4]byte) (metadata.ImageHandle, error) {
	img, err := p.device.CreateImage(metadata.ImageDesc{
		Name:   name,
		Width:  1,
		Height: 1,
		Format: metadata.FormatRGBA8Unorm,
		Usage:  metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	})
	if err != nil {
		return metadata.NullHandle, err
	}
	p.images = append(p.images, img)
	if err := p.device.UploadImage(img, rgba[:]); err != nil {
		return metadata.NullHandle, err
	}
	return img, nil
}

func (p *Procedural) material(id uint32, s materialSpec, normal metadata.ImageHandle) (Material, error) {
	albedo, err := p.texture("albedo."+s.name, s.color)
	if err != nil {
		return Material{}, err
	}
	set, err := p.device.CreateBindingSet(metadata.BindingSetDesc{
		Name:   "material." + s.name,
		Layout: p.layout,
		Writes: []metadata.BindingWrite{
			{Binding: MaterialBindingAlbedo, Image: albedo, Sampler: p.sampler},
			{Binding: MaterialBindingNormal, Image: normal, Sampler: p.sampler},
		},
	})
	if err != nil {
		return Material{}, err
	}
	return Material{
		ID:        id,
		Name:      s.name,
		Albedo:    albedo,
		Normal:    normal,
		Set:       set,
		BaseColor: math.NewVec4(float32(s.color[0])/255, float32(s.color[1])/255, float32(s.color[2])/255, 1),
		Roughness: s.roughness,
		Metallic:  s.metallic,
	}, nil
}

func (p *Procedural) upload(name string, usage metadata.BufferUsage, data interface{}) (metadata.BufferHandle, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return metadata.NullHandle, err
	}
	h, err := p.device.CreateBuffer(metadata.BufferDesc{Name: name, Size: uint64(buf.Len()), Usage: usage, HostVisible: true})
	if err != nil {
		return metadata.NullHandle, err
	}
	p.buffers = append(p.buffers, h)
	mem, err := p.device.MapBuffer(h)
	if err != nil {
		return metadata.NullHandle, err
	}
	copy(mem, buf.Bytes())
	p.device.UnmapBuffer(h)
	return h, nil
}

func (p *Procedural) addMesh(name string, vertices []math.Vertex3D, indices []uint32, material uint32, offset, bounds math.Vec3) error {
	vb, err := p.upload(name+".vertices", metadata.BufferUsageVertex, vertices)
	if err != nil {
		return err
	}
	ib, err := p.upload(name+".indices", metadata.BufferUsageIndex, indices)
	if err != nil {
		return err
	}
	p.meshes = append(p.meshes, Mesh{
		Name:         name,
		VertexBuffer: vb,
		IndexBuffer:  ib,
		Submeshes:    []Submesh{{FirstIndex: 0, IndexCount: uint32(len(indices)), MaterialID: material}},
		Model:        math.NewMat4Translation(offset),
		Bounds:       bounds,
		ObjectID:     uint32(len(p.meshes) + 1),
	})
	p.offsets = append(p.offsets, offset)
	if len(p.meshes) == 1 {
		p.spin = append(p.spin, 0)
	} else {
		p.spin = append(p.spin, 0.5+0.25*float32(len(p.meshes)%3))
	}
	return nil
}

func (p *Procedural) MeshCount() int {
	return len(p.meshes)
}

func (p *Procedural) Mesh(i int) Mesh {
	return p.meshes[i]
}

func (p *Procedural) Material(id uint32) (Material, bool) {
	m, ok := p.materials[id]
	return m, ok
}

func (p *Procedural) DefaultMaterial() Material {
	return p.fallback
}

func (p *Procedural) MaterialLayout() metadata.BindingLayoutHandle {
	return p.layout
}

// Update spins every cube around its own vertical axis.
func (p *Procedural) Update(dt float64) {
	p.elapsed += dt
	for i := range p.meshes {
		if p.spin[i] == 0 {
			continue
		}
		rot := math.NewMat4EulerY(float32(p.elapsed) * p.spin[i])
		p.meshes[i].Model = rot.Mul(math.NewMat4Translation(p.offsets[i]))
	}
}

func (p *Procedural) Destroy() {
	for _, m := range p.materials {
		p.device.DestroyBindingSet(m.Set)
	}
	if p.fallback.Set != metadata.NullHandle {
		p.device.DestroyBindingSet(p.fallback.Set)
	}
	for _, b := range p.buffers {
		p.device.DestroyBuffer(b)
	}
	for _, img := range p.images {
		p.device.DestroyImage(img)
	}
	if p.layout != metadata.NullHandle {
		p.device.DestroyBindingLayout(p.layout)
	}
	p.meshes = nil
	p.materials = map[uint32]Material{}
}

func planeGeometry(half float32) ([]math.Vertex3D, []uint32) {
	n := math.NewVec3Up()
	white := math.NewVec4(1, 1, 1, 1)
	vertices := []math.Vertex3D{
		{Position: math.NewVec3(-half, 0, -half), Normal: n, Texcoord: math.NewVec2(0, 0), Colour: white},
		{Position: math.NewVec3(half, 0, -half), Normal: n, Texcoord: math.NewVec2(1, 0), Colour: white},
		{Position: math.NewVec3(half, 0, half), Normal: n, Texcoord: math.NewVec2(1, 1), Colour: white},
		{Position: math.NewVec3(-half, 0, half), Normal: n, Texcoord: math.NewVec2(0, 1), Colour: white},
	}
	return vertices, []uint32{0, 2, 1, 0, 3, 2}
}

func cubeGeometry(half float32) ([]math.Vertex3D, []uint32) {
	faces := []struct {
		normal, u, v math.Vec3
	}{
		{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 0, -1), math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0)},
		{math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(-1, 0, 0), math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1)},
		{math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, 1)},
	}
	white := math.NewVec4(1, 1, 1, 1)
	var vertices []math.Vertex3D
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(vertices))
		centre := f.normal.MulScalar(half)
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			pos := centre.Add(f.u.MulScalar(c[0] * half)).Add(f.v.MulScalar(c[1] * half))
			vertices = append(vertices, math.Vertex3D{
				Position: pos,
				Normal:   f.normal,
				Texcoord: math.NewVec2((c[0]+1)/2, (c[1]+1)/2),
				Colour:   white,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}
