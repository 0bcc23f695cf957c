package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/frames"
	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/ui"
)

// uniform owner of the camera and jitter sections
const frameOwner = "frame"

/**
 * @brief Runs one iteration of the frame cycle. A pass that fails to record
 * drops the whole frame: nothing is submitted and the error wraps
 * core.ErrFrameFailed.
 */
func (o *FrameOrchestrator) RunFrame(dt float64) error {
	if o.shut {
		return fmt.Errorf("%w: orchestrator is shut down", core.ErrFrameFailed)
	}
	start := time.Now()
	if o.watcher != nil {
		if s, ok := o.watcher.Drain(); ok {
			o.ApplySettings(s)
		}
	}

	slot, err := o.ring.AcquireNext()
	if err != nil {
		return err
	}
	if slot.Reused {
		o.collectPick(slot.Frame)
	}

	f, err := o.beginFrame(slot, dt)
	if err != nil {
		return err
	}
	if err := o.configure(f); err != nil {
		return err
	}
	if err := o.upload(f); err != nil {
		return err
	}
	// recorded transitions only reach the device with the submit
	state := o.table.Snapshot()
	lists, pick, err := o.record(f)
	if err != nil {
		o.table.Restore(state)
		return err
	}

	if err := o.device.Submit(metadata.SubmitInfo{
		Lists:  lists,
		Wait:   []metadata.SemaphoreHandle{slot.Acquire},
		Signal: []metadata.SemaphoreHandle{slot.Complete},
		Fence:  slot.Fence,
	}); err != nil {
		o.table.Restore(state)
		return o.fail("submit", err)
	}
	o.ring.Submitted(slot)
	if pick != nil {
		o.pick.commit(slot.Frame, *pick)
	}
	// the frame is in flight from here on, a failed present still counts it
	o.previousJitter = f.Jitter
	o.frameCount++
	if err := o.device.Present(slot.Index, slot.Complete); err != nil {
		return err
	}
	o.metrics.Update(time.Since(start).Seconds())
	return nil
}

func (o *FrameOrchestrator) beginFrame(slot frames.Slot, dt float64) (*passes.Frame, error) {
	o.elapsed += dt
	var input core.InputSnapshot
	if o.input != nil {
		input = o.input.Snapshot()
	}
	render := o.ctx.RenderExtent()
	display := o.ctx.DisplayExtent()
	aspect := float32(render.Width) / float32(render.Height)

	o.scene.Update(dt)
	o.camera.Update(input, aspect)

	o.uniforms.Reset(o.frameCount)
	f := &passes.Frame{
		Count:          o.frameCount,
		Slot:           slot,
		Delta:          dt,
		Elapsed:        o.elapsed,
		Input:          input,
		Parity:         resources.Parity(o.frameCount),
		RenderExtent:   render,
		DisplayExtent:  display,
		Uniforms:       o.uniforms,
		Camera:         o.camera,
		PreviousJitter: o.previousJitter,
	}
	if o.settings.TAA.Enabled {
		f.Jitter = o.sequence.Compute(o.frameCount, display.Width, display.Height)
	} else {
		f.Jitter = jitter.Sequence{Mode: jitter.ModeNone}.Compute(o.frameCount, display.Width, display.Height)
	}

	proj := f.Jitter.Apply(o.camera.Projection(aspect))
	view := o.camera.View()
	vp := view.Mul(proj)
	pos := o.camera.Position()
	if err := o.uniforms.SetCamera(frameOwner, passes.CameraUniforms{
		View:                   view,
		Projection:             proj,
		ViewProjection:         vp,
		InverseProjection:      proj.Inverse(),
		InverseViewProjection:  vp.Inverse(),
		PreviousViewProjection: o.camera.PreviousViewProjection(),
		Position:               math.NewVec4(pos.X, pos.Y, pos.Z, 1),
		Near:                   o.camera.Near(),
		Far:                    o.camera.Far(),
	}); err != nil {
		return nil, o.fail(frameOwner, err)
	}
	if err := o.uniforms.SetJitter(frameOwner, passes.JitterUniforms{
		Offset:         f.Jitter.Clip,
		PreviousOffset: o.previousJitter.Clip,
		Frame:          uint32(o.frameCount),
		Parity:         f.Parity,
	}); err != nil {
		return nil, o.fail(frameOwner, err)
	}

	if o.ui != nil && o.settings.UI.Enabled {
		f.UI = o.ui.Build(ui.FrameInfo{
			Width:     display.Width,
			Height:    display.Height,
			Frame:     o.frameCount,
			FPS:       o.metrics.FPS(),
			FrameTime: o.metrics.FrameTime(),
			Lines: []string{
				fmt.Sprintf("mode %s", o.settings.Renderer.Mode),
				fmt.Sprintf("view %s", o.settings.Debug.View),
			},
		})
	}
	return f, nil
}

// configure runs every enabled pass's Configure in list order and seals the
// uniform block.
func (o *FrameOrchestrator) configure(f *passes.Frame) error {
	for i, p := range o.passes {
		if !p.Enabled() {
			continue
		}
		start := time.Now()
		err := p.Configure(f)
		o.stats[i].CPUTime += time.Since(start)
		if err != nil {
			return o.fail(p.Name(), err)
		}
	}
	o.uniforms.Seal()
	return nil
}

func (o *FrameOrchestrator) upload(f *passes.Frame) error {
	buf := o.uniformBuffers[f.Slot.Frame]
	data, err := o.device.MapBuffer(buf)
	if err != nil {
		return o.fail("uniforms", err)
	}
	copy(data, o.uniforms.Encode())
	o.device.UnmapBuffer(buf)
	return nil
}

// record fills one command list per enabled pass plus the optional pick copy
// and the present transition. A recorded pick copy is returned so it is only
// marked for readback once the frame is submitted.
func (o *FrameOrchestrator) record(f *passes.Frame) ([]metadata.CommandList, *pendingPick, error) {
	pool := o.lists[f.Slot.Frame]
	lists := make([]metadata.CommandList, 0, len(pool))
	for i, p := range o.passes {
		if !p.Enabled() {
			o.stats[i].Disabled++
			continue
		}
		start := time.Now()
		cl, err := o.recordList(i, p.Name(), func(cl metadata.CommandList) error {
			return p.Record(f, cl)
		}, pool)
		o.stats[i].CPUTime += time.Since(start)
		if err != nil {
			return nil, nil, err
		}
		o.stats[i].Records++
		lists = append(lists, cl)
	}
	pickIndex, presentIndex := len(o.passes), len(o.passes)+1
	var pick *pendingPick
	if req, ok := o.pick.peek(); ok {
		cl, err := o.recordList(pickIndex, "pick", func(cl metadata.CommandList) error {
			return o.recordPick(f, req, cl)
		}, pool)
		if err != nil {
			return nil, nil, err
		}
		lists = append(lists, cl)
		pick = &pendingPick{valid: true, req: req, frame: f.Count}
	}
	cl, err := o.recordList(presentIndex, "present", func(cl metadata.CommandList) error {
		o.table.TransitionImage(f.Slot.Image, metadata.AccessPresent, cl)
		return nil
	}, pool)
	if err != nil {
		return nil, nil, err
	}
	return append(lists, cl), pick, nil
}

// recordList resets and records pool[i]. A list that fails is freed so the
// next frame starts from a fresh one.
func (o *FrameOrchestrator) recordList(i int, name string, fill func(cl metadata.CommandList) error, pool []metadata.CommandList) (metadata.CommandList, error) {
	cl := pool[i]
	if cl == nil {
		var err error
		if cl, err = o.device.NewCommandList(name); err != nil {
			return nil, o.fail(name, err)
		}
		pool[i] = cl
	}
	err := cl.Reset()
	if err == nil {
		err = cl.Begin()
	}
	if err == nil {
		err = fill(cl)
	}
	if endErr := cl.End(); err == nil {
		err = endErr
	}
	if err != nil {
		o.device.FreeCommandList(cl)
		pool[i] = nil
		return nil, o.fail(name, err)
	}
	return cl, nil
}

func (o *FrameOrchestrator) fail(name string, err error) error {
	core.LogError("frame %d dropped at %s: %s", o.frameCount, name, err)
	return fmt.Errorf("%w: %s: %w", core.ErrFrameFailed, name, err)
}
