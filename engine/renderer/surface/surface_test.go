package surface

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestAtAndSet(t *testing.T) {
	s := MustNew(4, 3, 2)
	s.Set(1, 2, Texel{3, 4, 5, 6})
	got := s.At(1, 2)
	if got != (Texel{3, 4, 0, 0}) {
		t.Fatalf("expected only the first two channels to be stored; got %v", got)
	}
	if s.At(-1, 0) != (Texel{}) || s.At(4, 0) != (Texel{}) {
		t.Fatal("expected out of bounds reads to return zero")
	}
}

func TestSampleAtTexelCenter(t *testing.T) {
	s := MustNew(2, 2, 1)
	s.Set(0, 0, Texel{1})
	s.Set(1, 0, Texel{2})
	s.Set(0, 1, Texel{3})
	s.Set(1, 1, Texel{4})

	type spec struct {
		uv  math.Vec2
		exp float32
	}
	specs := []spec{
		{math.NewVec2(0.25, 0.25), 1},
		{math.NewVec2(0.75, 0.75), 4},
		{math.NewVec2(0.5, 0.5), 2.5},
		{math.NewVec2(-3, -3), 1},
	}
	for index, sp := range specs {
		if got := s.Sample(sp.uv)[0]; got != sp.exp {
			t.Fatalf("[spec %d] expected %f; got %f", index, sp.exp, got)
		}
	}
}

func TestNewRejectsBadChannels(t *testing.T) {
	if _, err := New(1, 1, 5); err != ErrChannelCount {
		t.Fatalf("expected ErrChannelCount; got %v", err)
	}
}
