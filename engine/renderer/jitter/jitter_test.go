package jitter

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestRadicalInverseBase2(t *testing.T) {
	type spec struct {
		in  uint32
		exp float32
	}
	specs := []spec{
		{0, 0.0},
		{1, 0.5},
		{2, 0.25},
		{3, 0.75},
		{4, 0.125},
	}
	for index, s := range specs {
		if got := RadicalInverseBase2(s.in); got != s.exp {
			t.Fatalf("[spec %d] expected radical_inverse(%d) = %f; got %f", index, s.in, s.exp, got)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	modes := []Mode{ModeNone, ModeUniform2x, ModeHammersley4x, ModeHammersley8x, ModeHammersley16x}
	for _, mode := range modes {
		seq := NewSequence(mode)
		for frame := uint64(0); frame < 40; frame++ {
			a := seq.Compute(frame, 1920, 1080)
			b := seq.Compute(frame, 1920, 1080)
			if a != b {
				t.Fatalf("mode %s frame %d: expected identical results; got %v and %v", mode, frame, a, b)
			}
		}
	}
}

func TestHammersleyPeriodicity(t *testing.T) {
	for _, mode := range []Mode{ModeHammersley4x, ModeHammersley8x, ModeHammersley16x} {
		seq := NewSequence(mode)
		n := uint64(mode.Period())
		for k := uint64(0); k < 3*n; k++ {
			if a, b := seq.Offset(k), seq.Offset(k+n); a != b {
				t.Fatalf("mode %s: expected offset(%d) == offset(%d); got %v and %v", mode, k, k+n, a, b)
			}
		}
	}
}

func TestHammersleyCoversCycle(t *testing.T) {
	seq := NewSequence(ModeHammersley8x)
	seen := make(map[math.Vec2]bool)
	for k := uint64(0); k < 8; k++ {
		o := seq.Offset(k)
		if o.X < -1 || o.X >= 1 || o.Y < -1 || o.Y >= 1 {
			t.Fatalf("frame %d: offset %v outside [-1, 1)", k, o)
		}
		seen[o] = true
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 distinct sample positions; got %d", len(seen))
	}
}

func TestUniform2xAlternates(t *testing.T) {
	seq := NewSequence(ModeUniform2x)
	if seq.Offset(0) != math.NewVec2(0.5, 0.5) || seq.Offset(1) != math.NewVec2(-0.5, -0.5) {
		t.Fatalf("unexpected uniform offsets %v %v", seq.Offset(0), seq.Offset(1))
	}
	if seq.Offset(2) != seq.Offset(0) {
		t.Fatal("expected uniform offsets to alternate with period 2")
	}
}

func TestComputeScalesByDisplayResolution(t *testing.T) {
	seq := Sequence{Mode: ModeUniform2x, Scale: 1}
	r := seq.Compute(0, 100, 50)
	if r.Clip.X != 0.5/100 {
		t.Fatalf("expected x = 0.005; got %f", r.Clip.X)
	}
	if r.Clip.Y != -(0.5 / 50) {
		t.Fatalf("expected y to be negated and divided by height; got %f", r.Clip.Y)
	}
	if r.Transform.Data[12] != r.Clip.X || r.Transform.Data[13] != r.Clip.Y {
		t.Fatal("expected the clip offset to be written as a translation")
	}
}

func TestNoneIsIdentity(t *testing.T) {
	r := NewSequence(ModeNone).Compute(7, 1280, 720)
	if r.Transform != math.NewMat4Identity() {
		t.Fatalf("expected identity transform; got %v", r.Transform)
	}
	proj := math.NewMat4Perspective(1, 1.5, 0.1, 10)
	if r.Apply(proj) != proj {
		t.Fatal("expected the projection to be unchanged")
	}
}

func TestApplyShiftsClipSpace(t *testing.T) {
	seq := Sequence{Mode: ModeUniform2x, Scale: 1}
	r := seq.Compute(0, 100, 100)
	proj := math.NewMat4Perspective(1, 1, 0.1, 10)
	p := math.NewVec4(0, 0, -1, 1)
	plain := p.Transform(proj).PerspectiveDivide()
	jittered := p.Transform(r.Apply(proj)).PerspectiveDivide()
	dx := jittered.X - plain.X
	if dx < 0.0049 || dx > 0.0051 {
		t.Fatalf("expected NDC shift of 0.005; got %f", dx)
	}
}
