package math

import "testing"

func approxEqual(a, b, eps float32) bool {
	return Abs(a-b) <= eps
}

func TestMat4InverseRoundTrip(t *testing.T) {
	type spec struct {
		m Mat4
	}
	specs := []spec{
		{NewMat4Translation(NewVec3(1, -2, 3))},
		{NewMat4Perspective(DegToRad(60), 16.0/9.0, 0.1, 100)},
		{NewMat4EulerY(0.7).Mul(NewMat4Translation(NewVec3(4, 5, 6)))},
		{NewMat4LookAt(NewVec3(0, 2, 5), NewVec3Zero(), NewVec3Up())},
	}

	for index, s := range specs {
		got := s.m.Mul(s.m.Inverse())
		exp := NewMat4Identity()
		for i := 0; i < 16; i++ {
			if !approxEqual(got.Data[i], exp.Data[i], 1e-4) {
				t.Fatalf("[spec %d] expected identity at element %d; got %f", index, i, got.Data[i])
			}
		}
	}
}

func TestVec4TransformTranslation(t *testing.T) {
	p := NewVec4(1, 1, 1, 1).Transform(NewMat4Translation(NewVec3(2, 3, 4)))
	if p != NewVec4(3, 4, 5, 1) {
		t.Fatalf("expected translated point (3,4,5,1); got %v", p)
	}
	d := NewVec4(1, 1, 1, 0).Transform(NewMat4Translation(NewVec3(2, 3, 4)))
	if d != NewVec4(1, 1, 1, 0) {
		t.Fatalf("expected direction to be unaffected by translation; got %v", d)
	}
}

func TestLookAtFacesTarget(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	p := NewVec3Zero().Transform(view)
	if !approxEqual(p.Z, -5, 1e-5) || !approxEqual(p.X, 0, 1e-5) || !approxEqual(p.Y, 0, 1e-5) {
		t.Fatalf("expected target at (0,0,-5) in view space; got %v", p)
	}
	right := NewVec3(1, 0, 0).Transform(view)
	if right.X <= 0 {
		t.Fatalf("expected +X to stay on the right; got %v", right)
	}
}

func TestClampAndFract(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Fatal("unexpected Clamp result")
	}
	if Clamp(float32(0.25), 0.1, 5) != 0.25 {
		t.Fatal("unexpected float Clamp result")
	}
	if f := Fract(-0.25); !approxEqual(f, 0.75, 1e-6) {
		t.Fatalf("expected fract(-0.25) = 0.75; got %f", f)
	}
}
