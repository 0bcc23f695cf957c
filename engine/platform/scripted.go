package platform

import (
	"github.com/spaghettifunk/lumen/engine/core"
)

// ScriptedInput replays a fixed list of snapshots, one per call. Once the
// script runs out the last snapshot is repeated with the time still advancing.
type ScriptedInput struct {
	Script []core.InputSnapshot
	// seconds added per call once the script is exhausted
	Step float64

	next    int
	elapsed float64
}

func NewScriptedInput(step float64, script ...core.InputSnapshot) *ScriptedInput {
	return &ScriptedInput{Script: script, Step: step}
}

func (s *ScriptedInput) Snapshot() core.InputSnapshot {
	if s.next < len(s.Script) {
		snap := s.Script[s.next]
		s.next++
		s.elapsed = snap.ElapsedTime
		return snap
	}
	s.elapsed += s.Step
	var snap core.InputSnapshot
	if len(s.Script) > 0 {
		snap = s.Script[len(s.Script)-1]
	}
	snap.ElapsedTime = s.elapsed
	return snap
}

// DragScript is a left button drag from (x0, y0) to (x1, y1) over frames snapshots.
func DragScript(step float64, frames int, x0, y0, x1, y1 int32) []core.InputSnapshot {
	out := make([]core.InputSnapshot, 0, frames+1)
	for i := 0; i <= frames; i++ {
		t := float32(i) / float32(max(frames, 1))
		snap := core.InputSnapshot{
			MouseX:      x0 + int32(float32(x1-x0)*t),
			MouseY:      y0 + int32(float32(y1-y0)*t),
			ElapsedTime: float64(i) * step,
		}
		out = append(out, snap.WithButton(core.BUTTON_LEFT, i < frames))
	}
	return out
}
