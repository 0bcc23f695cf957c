package passes

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

func approx(a, b float32) bool {
	return math.Abs(a-b) < 1e-4
}

func TestUniformSectionOwnership(t *testing.T) {
	u := NewUniformBuilder()
	u.Reset(3)
	if err := u.SetShadow("shadow", ShadowUniforms{MapSize: 1024}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	// the owner may rewrite its own section
	if err := u.SetShadow("shadow", ShadowUniforms{MapSize: 2048}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := u.SetShadow("shadow-denoise", ShadowUniforms{})
	if !errors.Is(err, core.ErrUniformConflict) {
		t.Fatalf("expected a uniform conflict; got %v", err)
	}
	if s, ok := u.Shadow(); !ok || s.MapSize != 2048 {
		t.Fatalf("expected the owner's value to survive; got %+v written=%v", s, ok)
	}
	if got := u.Owner(SectionShadow); got != "shadow" {
		t.Fatalf("expected owner shadow; got %q", got)
	}

	u.Seal()
	if err := u.SetTonemap("tonemap", TonemapUniforms{}); !errors.Is(err, ErrUniformsSealed) {
		t.Fatalf("expected a sealed error; got %v", err)
	}

	u.Reset(4)
	if _, ok := u.Shadow(); ok {
		t.Fatalf("expected the shadow section to be unwritten after a reset")
	}
	if u.Sealed() || u.Frame() != 4 {
		t.Fatalf("expected an open block for frame 4; got sealed=%v frame=%d", u.Sealed(), u.Frame())
	}
	if err := u.SetShadow("shadow-denoise", ShadowUniforms{RayTraced: 1}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUniformEncoding(t *testing.T) {
	u := NewUniformBuilder()
	u.Reset(0)
	cam := CameraUniforms{ViewProjection: math.NewMat4Identity(), Near: 0.1, Far: 100}
	if err := u.SetCamera("frame", cam); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := u.SetTAA("taa", TAAUniforms{ResolveWeight: 0.9, FlickerCorrection: 2}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	data := u.Encode()
	if len(data) != UniformSize() {
		t.Fatalf("expected %d bytes; got %d", UniformSize(), len(data))
	}
	if UniformSize()%16 != 0 {
		t.Fatalf("expected a 16 byte aligned block; got %d", UniformSize())
	}
	out, err := DecodeUniforms(data)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if out.Camera.Far != 100 || out.TAA.ResolveWeight != 0.9 || out.TAA.FlickerCorrection != 2 {
		t.Fatalf("decoded block differs: %+v %+v", out.Camera, out.TAA)
	}
	if _, err := DecodeUniforms(data[:10]); err == nil {
		t.Fatalf("expected an error for a short buffer")
	}
}

func TestCatalogue(t *testing.T) {
	seen := map[string]bool{}
	histories := 0
	for _, s := range Catalogue() {
		if seen[s.Name] {
			t.Fatalf("duplicate target %s", s.Name)
		}
		seen[s.Name] = true
		if s.History {
			histories++
		}
	}
	for _, name := range []string{TargetDepth, TargetNormal, TargetShadowHistory, TargetColorHistory} {
		if !seen[name] {
			t.Fatalf("missing target %s", name)
		}
	}
	if histories != 4 {
		t.Fatalf("expected 4 history pairs; got %d", histories)
	}
}

func TestTonemapCurves(t *testing.T) {
	type spec struct {
		mode config.TonemapMode
		in   float32
		out  float32
	}
	specs := []spec{
		{config.TonemapNone, 0.5, 0.5},
		{config.TonemapNone, -1, 0},
		{config.TonemapReinhard, 1, 0.5},
		{config.TonemapReinhard, 3, 0.75},
		{config.TonemapAMD, 0, 0},
		{config.TonemapAMD, amdMidIn, amdMidOut},
		{config.TonemapAMD, amdHDRMax, 1},
	}
	for i, s := range specs {
		if got := tonemap(s.mode, s.in); !approx(got, s.out) {
			t.Fatalf("[spec %d] expected %v; got %v", i, s.out, got)
		}
	}
}

func TestResolve(t *testing.T) {
	cur := surface.Texel{1, 1, 1, 1}
	hist := surface.Texel{3, 3, 3, 1}
	type spec struct {
		flicker config.FlickerCorrection
		weight  float32
		out     float32
	}
	specs := []spec{
		{config.FlickerCorrectionNone, 0, 1},
		{config.FlickerCorrectionNone, 0.5, 2},
		{config.FlickerCorrectionNone, 1, 3},
		// exp(lerp(log 2, log 4, 0.5)) - 1
		{config.FlickerCorrectionLogWeighing, 0.5, 1.8284271},
		// bright history is weighed down by its luminance
		{config.FlickerCorrectionLuminanceWeighing, 0.5, 1.6666666},
	}
	for i, s := range specs {
		got := resolve(cur, hist, s.weight, s.flicker)
		if !approx(got[0], s.out) || got[3] != 1 {
			t.Fatalf("[spec %d] expected %v; got %v", i, s.out, got)
		}
	}
}

func TestClampToNeighbourhood(t *testing.T) {
	color := surface.MustNew(3, 3, 4)
	color.Fill(surface.Texel{0.2, 0.2, 0.2, 1})
	color.Set(1, 1, surface.Texel{0.6, 0.4, 0.2, 1})
	got := clampToNeighbourhood(color, 1, 1, surface.Texel{5, 0, 0.3, 1})
	want := surface.Texel{0.6, 0.2, 0.2, 1}
	for k := range want {
		if !approx(got[k], want[k]) {
			t.Fatalf("expected %v; got %v", want, got)
		}
	}
}

func TestLinearDepth(t *testing.T) {
	if got := linearDepth(0, 0.1, 100); !approx(got, 0) {
		t.Fatalf("expected the near plane at 0; got %v", got)
	}
	if got := linearDepth(1, 0.1, 100); !approx(got, 1) {
		t.Fatalf("expected the far plane at 1; got %v", got)
	}
	if got := linearDepth(0.5, 1, 1); got != 0.5 {
		t.Fatalf("expected a degenerate range to pass depth through; got %v", got)
	}
}

func TestSplatDepthTest(t *testing.T) {
	depth := surface.MustNew(8, 8, 1)
	depth.Fill(surface.Texel{1})
	// an orthographic box at z = 0 covering the middle of the target
	mvp := math.NewMat4Orthographic(-2, 2, -2, 2, -1, 1)
	var covered int
	splat(depth, math.NewVec3(1, 1, 0), mvp, func(fragment) { covered++ })
	if covered == 0 {
		t.Fatalf("expected fragments from the first splat")
	}
	d := depth.At(4, 4)[0]
	if d >= 1 {
		t.Fatalf("expected depth to be written; got %v", d)
	}
	// the same box again fails nothing, a farther one fails everything
	var again, behind int
	splat(depth, math.NewVec3(1, 1, 0), mvp, func(fragment) { again++ })
	far := math.NewMat4Translation(math.NewVec3(0, 0, -0.5)).Mul(mvp)
	splat(depth, math.NewVec3(1, 1, 0), far, func(fragment) { behind++ })
	if again != covered {
		t.Fatalf("expected equal depth to pass; got %d of %d", again, covered)
	}
	if behind != 0 {
		t.Fatalf("expected a box behind to be rejected; got %d fragments", behind)
	}
}

func TestTraceShadowOpenSky(t *testing.T) {
	depth := surface.MustNew(4, 4, 1)
	depth.Fill(surface.Texel{1})
	vp := math.NewMat4Orthographic(-2, 2, -2, 2, -10, 10)
	if got := traceShadow(math.NewVec3(0, 0, 0), math.NewVec3Up(), vp, depth); got != 1 {
		t.Fatalf("expected an unoccluded ray to be lit; got %v", got)
	}
}
