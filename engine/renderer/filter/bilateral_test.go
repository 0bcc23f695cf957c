package filter

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/systems"
)

func TestNewBilateralRejectsEvenWindow(t *testing.T) {
	type spec struct {
		window int
		err    error
	}
	specs := []spec{
		{0, ErrEvenWindow},
		{-3, ErrEvenWindow},
		{4, ErrEvenWindow},
		{5, nil},
		{DefaultWindow, nil},
	}
	for index, s := range specs {
		if _, err := NewBilateral(s.window, DefaultSpatialSigma, DefaultRangeSigma); err != s.err {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.err, err)
		}
	}
}

func TestKernelIsSymmetric(t *testing.T) {
	b := NewDefaultBilateral()
	k := b.Kernel()
	half := len(k) / 2
	for i := 1; i <= half; i++ {
		if k[half-i] != k[half+i] {
			t.Fatalf("expected kernel[%d] == kernel[%d]; got %f and %f", half-i, half+i, k[half-i], k[half+i])
		}
		if k[half+i] > k[half+i-1] {
			t.Fatalf("expected kernel to fall off away from the centre at %d", i)
		}
	}
}

func TestApplyPreservesConstantSurface(t *testing.T) {
	src := surface.MustNew(16, 12, 1)
	src.Fill(surface.Texel{0.7})
	dst := surface.MustNew(16, 12, 1)
	if err := NewDefaultBilateral().Apply(src, dst, nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	for i, v := range dst.Pix {
		if math.Abs(v-0.7) > 1e-5 {
			t.Fatalf("pixel %d: expected 0.7; got %f", i, v)
		}
	}
}

func TestApplyPreservesEdges(t *testing.T) {
	// a hard step of 100 sits far outside the range sigma
	src := surface.MustNew(20, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 20; x++ {
			v := float32(0)
			if x >= 10 {
				v = 100
			}
			src.Set(x, y, surface.Texel{v})
		}
	}
	dst := surface.MustNew(20, 4, 1)
	b, _ := NewBilateral(9, DefaultSpatialSigma, DefaultRangeSigma)
	if err := b.Apply(src, dst, nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if v := dst.At(9, 1)[0]; v > 1 {
		t.Fatalf("expected the dark side of the edge to stay dark; got %f", v)
	}
	if v := dst.At(10, 1)[0]; v < 99 {
		t.Fatalf("expected the bright side of the edge to stay bright; got %f", v)
	}
}

func TestApplyParallelMatchesSerial(t *testing.T) {
	src := surface.MustNew(24, 17, 2)
	for i := range src.Pix {
		src.Pix[i] = float32((i * 7) % 13)
	}
	serial := surface.MustNew(24, 17, 2)
	parallel := surface.MustNew(24, 17, 2)

	b, _ := NewBilateral(7, DefaultSpatialSigma, DefaultRangeSigma)
	if err := b.Apply(src, serial, nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	js, err := systems.NewJobSystem(4, 4)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer js.Shutdown()
	if err := b.Apply(src, parallel, js); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	for i := range serial.Pix {
		if serial.Pix[i] != parallel.Pix[i] {
			t.Fatalf("texel %d: serial %f differs from parallel %f", i, serial.Pix[i], parallel.Pix[i])
		}
	}
}

func TestApplyShapeMismatch(t *testing.T) {
	src := surface.MustNew(4, 4, 1)
	dst := surface.MustNew(4, 4, 4)
	if err := NewDefaultBilateral().Apply(src, dst, nil); err != ErrShapeMismatch {
		t.Fatalf("expected ErrShapeMismatch; got %v", err)
	}
}
