package engine

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

func testSettings() config.Settings {
	s := config.Defaults()
	s.Renderer.Width, s.Renderer.Height = 16, 12
	s.Shadow.MapSize = 256
	s.UI.Enabled = false
	return s
}

func TestParseBackend(t *testing.T) {
	type spec struct {
		name  string
		exp   Backend
		fails bool
	}
	specs := []spec{
		{"", BackendHeadless, false},
		{"headless", BackendHeadless, false},
		{"vulkan", BackendVulkan, false},
		{"metal", BackendHeadless, true},
	}
	for index, s := range specs {
		b, err := ParseBackend(s.name)
		if (err != nil) != s.fails {
			t.Fatalf("[spec %d] expected failure %t for %q; got %v", index, s.fails, s.name, err)
		}
		if b != s.exp {
			t.Fatalf("[spec %d] expected backend %s; got %s", index, s.exp, b)
		}
	}
}

func TestHeadlessNeedsAFrameLimit(t *testing.T) {
	if _, err := New(Options{Backend: BackendHeadless, Settings: testSettings()}); err == nil {
		t.Fatalf("expected an error for an unbounded headless run")
	}
}

func TestHeadlessRun(t *testing.T) {
	type spec struct {
		mode   config.RendererMode
		frames uint64
	}
	specs := []spec{
		{config.RendererModeDeferred, 3},
		{config.RendererModeForward, 4},
	}
	for index, s := range specs {
		settings := testSettings()
		settings.Renderer.Mode = s.mode
		e, err := New(Options{Backend: BackendHeadless, Settings: settings, Frames: s.frames, Pick: &[2]int32{8, 6}})
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if err := e.Initialize(); err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if err := e.Run(); err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if got := e.Orchestrator().FrameCount(); got != s.frames {
			t.Fatalf("[spec %d] expected %d frames; got %d", index, s.frames, got)
		}
		color, err := e.ReadTarget(passes.TargetColorHistory)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if color.Width != 16 || color.Height != 12 {
			t.Fatalf("[spec %d] expected a 16x12 target; got %dx%d", index, color.Width, color.Height)
		}
		if err := e.Shutdown(); err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if _, ok := e.Orchestrator().LastPick(); !ok {
			t.Fatalf("[spec %d] expected the requested pick to resolve", index)
		}
		if e.Stage() != EngineStageShutdown {
			t.Fatalf("[spec %d] expected the engine to be shut down; got stage %d", index, e.Stage())
		}
		if err := e.Shutdown(); err != nil {
			t.Fatalf("[spec %d] expected a second shutdown to be a no-op; got %v", index, err)
		}
	}
}

func TestReadUnknownTarget(t *testing.T) {
	e, err := New(Options{Backend: BackendHeadless, Settings: testSettings(), Frames: 1})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := e.ReadTarget("does.not.exist"); err == nil {
		t.Fatalf("expected an error for an unknown target")
	}
}
