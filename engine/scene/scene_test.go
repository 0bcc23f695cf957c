package scene

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func newProcedural(t *testing.T, cubes int) *Procedural {
	d, err := headless.NewDevice(headless.Options{Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	sampler, _ := d.CreateSampler(metadata.SamplerDesc{Name: "linear", Filter: metadata.FilterLinear})
	p, err := NewProcedural(d, sampler, cubes)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return p
}

func TestProceduralMeshes(t *testing.T) {
	p := newProcedural(t, 4)
	defer p.Destroy()
	if p.MeshCount() != 5 {
		t.Fatalf("expected 5 meshes; got %d", p.MeshCount())
	}
	seen := map[uint32]bool{}
	for i := 0; i < p.MeshCount(); i++ {
		m := p.Mesh(i)
		if m.ObjectID == 0 || seen[m.ObjectID] {
			t.Fatalf("mesh %s: expected a unique non zero object id; got %d", m.Name, m.ObjectID)
		}
		seen[m.ObjectID] = true
		if len(m.Submeshes) == 0 || m.Submeshes[0].IndexCount == 0 {
			t.Fatalf("mesh %s: expected indexed submeshes", m.Name)
		}
	}
	if n := p.Mesh(1).Submeshes[0].IndexCount; n != 36 {
		t.Fatalf("expected a cube to have 36 indices; got %d", n)
	}
}

func TestResolveMaterialFallsBack(t *testing.T) {
	p := newProcedural(t, 3)
	defer p.Destroy()
	type spec struct {
		id  uint32
		exp string
	}
	specs := []spec{
		{0, "ground"},
		{2, "blue"},
		{MissingMaterialID, "default"},
		{InvalidMaterialID, "default"},
	}
	for index, s := range specs {
		if m := ResolveMaterial(p, s.id); m.Name != s.exp {
			t.Fatalf("[spec %d] expected material %s; got %s", index, s.exp, m.Name)
		}
	}
	last := p.Mesh(p.MeshCount() - 1)
	if last.Submeshes[0].MaterialID != MissingMaterialID {
		t.Fatalf("expected the last cube to reference the missing material")
	}
}

func TestUpdateSpinsCubesOnly(t *testing.T) {
	p := newProcedural(t, 2)
	defer p.Destroy()
	ground, cube := p.Mesh(0).Model, p.Mesh(1).Model
	p.Update(0.5)
	if p.Mesh(0).Model != ground {
		t.Fatalf("expected the ground to stay still")
	}
	if p.Mesh(1).Model == cube {
		t.Fatalf("expected the cube to spin")
	}
}

func TestNewCamera(t *testing.T) {
	type spec struct {
		params InitParams
		err    bool
	}
	specs := []spec{
		{DefaultInitParams(), false},
		{InitParams{Kind: Ortho, Height: 10, Near: 0.1, Far: 50}, false},
		{InitParams{Kind: Perspective, FovY: 0, Near: 0.1, Far: 50}, true},
		{InitParams{Kind: Ortho, Height: 0, Near: 0.1, Far: 50}, true},
		{InitParams{Kind: Perspective, FovY: 1, Near: 5, Far: 1}, true},
		{InitParams{Kind: ProjectionKind(9), Near: 0.1, Far: 1}, true},
	}
	for index, s := range specs {
		_, err := NewCamera(s.params)
		if (err != nil) != s.err {
			t.Fatalf("[spec %d] expected error %t; got %v", index, s.err, err)
		}
	}
}

func TestOrthoProjectionMapsHeight(t *testing.T) {
	c, _ := NewCamera(InitParams{Kind: Ortho, Height: 10, Near: 0.1, Far: 50})
	p := math.NewVec4(0, 5, -1, 1).Transform(c.Projection(1))
	if math.Abs(p.Y-1) > 1e-5 {
		t.Fatalf("expected the top of the view volume at NDC 1; got %f", p.Y)
	}
}

func TestCameraDragRotates(t *testing.T) {
	c, _ := NewCamera(DefaultInitParams())
	before := c.Position()
	vp := c.ViewProjection(1)

	press := core.InputSnapshot{MouseX: 10, MouseY: 10}.WithButton(core.BUTTON_LEFT, true)
	c.Update(press, 1)
	if c.Position() != before {
		t.Fatalf("expected the first press not to move the camera")
	}
	drag := core.InputSnapshot{MouseX: 60, MouseY: 10}.WithButton(core.BUTTON_LEFT, true)
	c.Update(drag, 1)
	if c.Position() == before {
		t.Fatalf("expected dragging to orbit the camera")
	}
	if c.PreviousViewProjection() != vp {
		t.Fatalf("expected the previous view projection to be the one before the drag")
	}
	if d := c.Position().Distance(c.Target); math.Abs(d-c.Distance) > 1e-4 {
		t.Fatalf("expected the orbit distance %f; got %f", c.Distance, d)
	}
}
