package reprojection

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

const size = 4

// newStaticSampler builds a sampler whose history holds the x coordinate of
// each pixel. Previous normals are orthogonal to current ones so every tap
// passes the normal test.
func newStaticSampler() *Sampler {
	s := &Sampler{
		Motion:            surface.MustNew(size, size, 2),
		CurrentDepth:      surface.MustNew(size, size, 1),
		CurrentNormal:     surface.MustNew(size, size, 4),
		PreviousDepth:     surface.MustNew(size, size, 1),
		PreviousNormal:    surface.MustNew(size, size, 4),
		History:           surface.MustNew(size, size, 4),
		InverseProjection: math.NewMat4Identity(),
		Thresholds:        DefaultThresholds(),
	}
	s.CurrentDepth.Fill(surface.Texel{0.5})
	s.PreviousDepth.Fill(surface.Texel{0.5})
	s.CurrentNormal.Fill(surface.Texel{0, 0, 1, 0})
	s.PreviousNormal.Fill(surface.Texel{1, 0, 0, 0})
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			s.History.Set(x, y, surface.Texel{float32(x), 0, 0, 1})
		}
	}
	return s
}

func TestValidateReportsMissingInput(t *testing.T) {
	s := newStaticSampler()
	if err := s.Validate(); err != nil {
		t.Fatalf("expected a complete sampler to validate; got %v", err)
	}
	s.History = nil
	if err := s.Validate(); err != ErrMissingInput {
		t.Fatalf("expected ErrMissingInput; got %v", err)
	}
}

func TestBilinearWeightsSumToOne(t *testing.T) {
	type spec struct {
		f math.Vec2
	}
	specs := []spec{
		{math.NewVec2(0, 0)},
		{math.NewVec2(0.5, 0.5)},
		{math.NewVec2(0.25, 0.75)},
	}
	for index, s := range specs {
		w := BilinearWeights(s.f)
		sum := w[0] + w[1] + w[2] + w[3]
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("[spec %d] expected weights to sum to 1; got %f", index, sum)
		}
	}
}

func TestFullStaticReturnsHistory(t *testing.T) {
	s := newStaticSampler()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r := s.Full(x, y)
			if !r.Valid {
				t.Fatalf("pixel (%d, %d): expected a valid history", x, y)
			}
			if r.Value[0] != float32(x) {
				t.Fatalf("pixel (%d, %d): expected history %d; got %f", x, y, x, r.Value[0])
			}
		}
	}
}

func TestFullHalfPixelMotionBlends(t *testing.T) {
	s := newStaticSampler()
	s.Motion.Fill(surface.Texel{0.5 / size, 0})
	r := s.Full(1, 1)
	if !r.Valid {
		t.Fatalf("expected a valid history")
	}
	if math.Abs(r.Value[0]-1.5) > 1e-5 {
		t.Fatalf("expected blended history 1.5; got %f", r.Value[0])
	}
}

func TestFullRejections(t *testing.T) {
	type spec struct {
		name  string
		setup func(s *Sampler)
	}
	specs := []spec{
		{"out of bounds", func(s *Sampler) {
			s.Motion.Fill(surface.Texel{-2, 0})
		}},
		{"matching normals", func(s *Sampler) {
			s.PreviousNormal.Fill(surface.Texel{0, 0, 1, 0})
		}},
		{"plane distance", func(s *Sampler) {
			s.InverseProjection = math.NewMat4Scale(math.NewVec3(10, 10, 10))
			s.CurrentDepth.Fill(surface.Texel{1})
			s.PreviousDepth.Fill(surface.Texel{0})
		}},
	}
	for index, sp := range specs {
		s := newStaticSampler()
		sp.setup(s)
		r := s.Full(1, 1)
		if r.Valid {
			t.Fatalf("[spec %d] %s: expected the history to be rejected", index, sp.name)
		}
		if r.Value != (surface.Texel{}) {
			t.Fatalf("[spec %d] %s: expected a zero value; got %v", index, sp.name, r.Value)
		}
	}
}

func TestFullFallsBackToNeighborhood(t *testing.T) {
	s := newStaticSampler()
	// only the centre tap carries weight and it fails the normal test
	s.PreviousNormal.Set(1, 1, surface.Texel{0, 0, 1, 0})
	r := s.Full(1, 1)
	if !r.Valid {
		t.Fatalf("expected the 3x3 fallback to find valid neighbors")
	}
	if math.Abs(r.Value[0]-1) > 1e-6 {
		t.Fatalf("expected the neighborhood average 1.0; got %f", r.Value[0])
	}
}

func TestFast(t *testing.T) {
	s := newStaticSampler()
	r := s.Fast(2, 3)
	if !r.Valid || r.Value[0] != 2 {
		t.Fatalf("expected valid history 2; got %v (valid %t)", r.Value, r.Valid)
	}
	s.Motion.Fill(surface.Texel{0, 2})
	if r := s.Fast(2, 3); r.Valid {
		t.Fatalf("expected out of bounds motion to be rejected")
	}
}

func TestNormalDisoccluded(t *testing.T) {
	type spec struct {
		a, b math.Vec3
		exp  bool
	}
	specs := []spec{
		{math.NewVec3(0, 0, 1), math.NewVec3(0, 0, 1), true},
		{math.NewVec3(0, 0, 1), math.NewVec3(0, 0, -1), true},
		{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0), false},
		{math.NewVec3(0, 0, 1), math.NewVec3(0.95, 0, 0.3), false},
	}
	for index, s := range specs {
		if got := NormalDisoccluded(s.a, s.b, DefaultNormalThreshold); got != s.exp {
			t.Fatalf("[spec %d] expected %t; got %t", index, s.exp, got)
		}
	}
}
