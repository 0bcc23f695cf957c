package renderer

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

// PassStats counts what the orchestrator did with one pass.
type PassStats struct {
	Name  string
	Index int
	Kind  passes.Kind
	// frames the pass recorded a list in
	Records uint64
	// frames the pass was skipped in because it was disabled
	Disabled uint64
	// time spent in Configure and Record
	CPUTime time.Duration
}

func (s PassStats) AverageCPUTime() time.Duration {
	if s.Records == 0 {
		return 0
	}
	return s.CPUTime / time.Duration(s.Records)
}

type FrameStats struct {
	Frames uint64
	FPS    float64
	// average frame time in milliseconds
	FrameTime  float64
	Barriers   uint64
	FenceWaits uint64
}

// Stats returns a copy of the per pass counters.
func (o *FrameOrchestrator) Stats() []PassStats {
	out := make([]PassStats, len(o.stats))
	copy(out, o.stats)
	return out
}

func (o *FrameOrchestrator) FrameStats() FrameStats {
	s := FrameStats{
		Frames:    o.frameCount,
		FPS:       o.metrics.FPS(),
		FrameTime: o.metrics.FrameTime(),
		Barriers:  o.table.Barriers(),
	}
	if o.ring != nil {
		s.FenceWaits = o.ring.Waits()
	}
	return s
}
