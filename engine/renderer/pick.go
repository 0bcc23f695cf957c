package renderer

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

// object id written for pixels no mesh covers
const NoObject uint32 = 0

type PickResult struct {
	X, Y int32
	// ObjectID is the id of the mesh under the pixel, NoObject for sky.
	ObjectID uint32
	// Frame is the frame the id was copied in.
	Frame uint64
}

type pickRequest struct {
	x, y int32
}

type pendingPick struct {
	valid bool
	req   pickRequest
	frame uint64
}

// pickState owns one readback buffer per frame slot. A copy recorded in a
// frame is read once the slot's fence has been waited on.
type pickState struct {
	buffers []metadata.BufferHandle
	pending []pendingPick
	request *pickRequest
	last    PickResult
	has     bool
}

func (s *pickState) create(device metadata.Device, slots int) error {
	s.pending = make([]pendingPick, slots)
	for i := 0; i < slots; i++ {
		buf, err := device.CreateBuffer(metadata.BufferDesc{
			Name:        fmt.Sprintf("pick.readback.%d", i),
			Size:        4,
			Usage:       metadata.BufferUsageTransferDst,
			HostVisible: true,
		})
		if err != nil {
			return err
		}
		s.buffers = append(s.buffers, buf)
	}
	return nil
}

// peek returns the outstanding request. It stays outstanding until a frame
// carrying its copy is submitted.
func (s *pickState) peek() (pickRequest, bool) {
	if s.request == nil {
		return pickRequest{}, false
	}
	return *s.request, true
}

// commit marks the copy of a submitted frame for readback from its slot.
func (s *pickState) commit(frame int, p pendingPick) {
	if s.request != nil && *s.request == p.req {
		s.request = nil
	}
	s.pending[frame] = p
}

func (s *pickState) destroy(device metadata.Device) {
	for _, b := range s.buffers {
		device.DestroyBuffer(b)
	}
	s.buffers = nil
}

// RequestPick asks for the object id under the render pixel (x, y). The copy
// is recorded in the next frame and the result shows up in LastPick once that
// frame has completed. Pixels outside the render extent are ignored.
func (o *FrameOrchestrator) RequestPick(x, y int32) bool {
	if !o.ctx.RenderExtent().Contains(x, y) {
		core.LogDebug("pick at %d,%d is outside the render extent, ignored", x, y)
		return false
	}
	o.pick.request = &pickRequest{x: x, y: y}
	return true
}

// LastPick returns the most recent completed pick.
func (o *FrameOrchestrator) LastPick() (PickResult, bool) {
	return o.pick.last, o.pick.has
}

func (o *FrameOrchestrator) recordPick(f *passes.Frame, req pickRequest, cl metadata.CommandList) error {
	rt := o.table.MustGet(passes.TargetObjectID)
	o.table.TransitionTarget(rt, metadata.AccessTransferSrc, cl)
	cl.CopyImageToBuffer(rt.Image, metadata.Rect{X: req.x, Y: req.y, Width: 1, Height: 1}, o.pick.buffers[f.Slot.Frame], 0)
	return nil
}

// collectPick reads the readback buffer of slot if a copy is pending there.
// The slot's fence must have been waited on.
func (o *FrameOrchestrator) collectPick(slot int) {
	if slot >= len(o.pick.pending) || !o.pick.pending[slot].valid {
		return
	}
	p := o.pick.pending[slot]
	o.pick.pending[slot] = pendingPick{}
	data, err := o.device.MapBuffer(o.pick.buffers[slot])
	if err != nil {
		core.LogWarn("failed to read pick buffer %d: %s", slot, err)
		return
	}
	id := binary.LittleEndian.Uint32(data)
	o.device.UnmapBuffer(o.pick.buffers[slot])
	o.pick.last = PickResult{X: p.req.x, Y: p.req.y, ObjectID: id, Frame: p.frame}
	o.pick.has = true
	core.LogDebug("pick at %d,%d resolved to object %d", p.req.x, p.req.y, id)
}
