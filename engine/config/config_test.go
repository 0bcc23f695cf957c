package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
)

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	s, err := Parse([]byte(`
[ssao]
radius = 1.5
`))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	exp := Defaults()
	exp.SSAO.Radius = 1.5
	if s != exp {
		t.Fatalf("expected %+v; got %+v", exp, s)
	}
}

func TestParseEnums(t *testing.T) {
	s, err := Parse([]byte(`
[renderer]
mode = "Forward"

[taa]
flicker_correction = "LuminanceWeighing"
reprojection_filter = "standard"
jitter_mode = "Uniform2x"

[tonemap]
mode = "AMD"

[debug]
view = "Motion"
`))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	type spec struct {
		got, exp interface{}
	}
	specs := []spec{
		{s.Renderer.Mode, RendererModeForward},
		{s.TAA.FlickerCorrection, FlickerCorrectionLuminanceWeighing},
		{s.TAA.ReprojectionFilter, ReprojectionFilterStandard},
		{s.TAA.JitterMode, jitter.ModeUniform2x},
		{s.Tonemap.Mode, TonemapAMD},
		{s.Debug.View, DebugViewMotion},
	}
	for index, sp := range specs {
		if sp.got != sp.exp {
			t.Fatalf("[spec %d] expected %v; got %v", index, sp.exp, sp.got)
		}
	}
}

func TestParseRejectsUnknownEnum(t *testing.T) {
	for index, doc := range []string{
		"[renderer]\nmode = \"Hybrid\"",
		"[taa]\njitter_mode = \"Halton\"",
		"[tonemap]\nmode = \"ACES\"",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("[spec %d] expected an error for %q", index, doc)
		}
	}
}

func TestClamp(t *testing.T) {
	type spec struct {
		doc   string
		check func(s Settings) bool
	}
	specs := []spec{
		{"[ssao]\nbias = 0.5", func(s Settings) bool { return s.SSAO.Bias == 0.1 }},
		{"[ssao]\nkernel_size = 512", func(s Settings) bool { return s.SSAO.KernelSize == 64 }},
		{"[ssr]\nmax_distance = 80.0", func(s Settings) bool { return s.SSR.MaxDistance == 50 }},
		{"[ssr]\nthickness = -1.0", func(s Settings) bool { return s.SSR.Thickness == 0 }},
		{"[taa]\nresolve_weight = 1.5", func(s Settings) bool { return s.TAA.ResolveWeight == 1 }},
		{"[tonemap]\nexposure = 0.01", func(s Settings) bool { return s.Tonemap.Exposure == 0.1 }},
		{"[renderer]\nrender_scale = 0.1", func(s Settings) bool { return s.Renderer.RenderScale == 0.25 }},
		{"[shadow]\nmap_size = 16", func(s Settings) bool { return s.Shadow.MapSize == 256 }},
	}
	for index, sp := range specs {
		s, err := Parse([]byte(sp.doc))
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if !sp.check(s) {
			t.Fatalf("[spec %d] value was not clamped: %+v", index, s)
		}
	}
}

func TestRenderExtent(t *testing.T) {
	s := Defaults()
	s.Renderer.RenderScale = 0.5
	if w, h := s.RenderExtent(); w != 640 || h != 360 {
		t.Fatalf("expected 640x360; got %dx%d", w, h)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(Defaults())
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	s, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if s != Defaults() {
		t.Fatalf("expected defaults after a round trip; got %+v", s)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestWatcherQueuesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte("[ssr]\nsteps = 8\n"), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer w.Close()

	if _, ok := w.Drain(); ok {
		t.Fatalf("expected an empty queue before any write")
	}

	if err := os.WriteFile(path, []byte("[ssr]\nsteps = 32\n"), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := w.Drain(); ok {
			if s.SSR.Steps != 32 {
				// a partial write can be observed first
				continue
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the watcher to queue the reloaded settings")
}

func TestWatcherKeepsQueueOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[tonemap]\nmode = \"Nope\"\n"), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if s, ok := w.Drain(); ok && s.Tonemap.Mode != TonemapReinhard {
		t.Fatalf("expected a failed reload to queue nothing; got %+v", s)
	}
}
