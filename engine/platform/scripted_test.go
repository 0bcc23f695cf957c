package platform

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
)

func TestScriptedInputReplays(t *testing.T) {
	in := NewScriptedInput(0.5, DragScript(0.1, 2, 0, 0, 10, 20)...)

	type spec struct {
		x, y  int32
		down  bool
		since float64
	}
	specs := []spec{
		{0, 0, true, 0},
		{5, 10, true, 0.1},
		{10, 20, false, 0.2},
		// exhausted, the last snapshot repeats
		{10, 20, false, 0.7},
		{10, 20, false, 1.2},
	}
	for specIndex, s := range specs {
		snap := in.Snapshot()
		if snap.MouseX != s.x || snap.MouseY != s.y {
			t.Fatalf("[spec %d] expected mouse at %d,%d; got %d,%d", specIndex, s.x, s.y, snap.MouseX, snap.MouseY)
		}
		if snap.IsButtonDown(core.BUTTON_LEFT) != s.down {
			t.Fatalf("[spec %d] expected left button down=%t", specIndex, s.down)
		}
		if d := snap.ElapsedTime - s.since; d > 1e-9 || d < -1e-9 {
			t.Fatalf("[spec %d] expected elapsed time %f; got %f", specIndex, s.since, snap.ElapsedTime)
		}
	}
}

func TestEmptyScript(t *testing.T) {
	in := NewScriptedInput(1)
	if snap := in.Snapshot(); snap.ElapsedTime != 1 || snap.Buttons != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
