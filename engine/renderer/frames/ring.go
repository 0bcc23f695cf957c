// Package frames implements the synchronization ring for two frames in flight.
package frames

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const MaxFramesInFlight = 2

// Slot describes the frame slot a frame records into, the swapchain image it
// renders to and the sync objects guarding both.
type Slot struct {
	// Frame indexes the per-frame resources, in [0, MaxFramesInFlight).
	Frame int
	// Index is the acquired swapchain image.
	Index    uint32
	Image    metadata.ImageHandle
	Acquire  metadata.SemaphoreHandle
	Complete metadata.SemaphoreHandle
	Fence    metadata.FenceHandle
	// Reused is true when the frame slot's previous submission has been
	// waited on since it was last handed out, so any per-frame memory it used
	// is free again.
	Reused bool
}

type Ring struct {
	device metadata.Device
	// next frame slot handed out by AcquireNext
	next int

	acquire  [MaxFramesInFlight]metadata.SemaphoreHandle
	fences   [MaxFramesInFlight]metadata.FenceHandle
	inFlight [MaxFramesInFlight]bool
	// submissions counts what went through each frame slot, drained is set
	// whenever its fence is waited and cleared once reported
	submissions [MaxFramesInFlight]uint64
	drained     [MaxFramesInFlight]bool

	images   []metadata.ImageHandle
	complete []metadata.SemaphoreHandle
	// frame slot and submission that last rendered to each image, -1 when
	// the image was never submitted
	imageFrame      []int
	imageSubmission []uint64

	waits uint64
}

func NewRing(device metadata.Device) (*Ring, error) {
	images := device.SwapchainImages()
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no swapchain images", core.ErrSwapchainBooting)
	}
	r := &Ring{
		device:          device,
		images:          images,
		complete:        make([]metadata.SemaphoreHandle, len(images)),
		imageFrame:      make([]int, len(images)),
		imageSubmission: make([]uint64, len(images)),
	}
	for i := range r.imageFrame {
		r.imageFrame[i] = -1
	}
	for i := 0; i < MaxFramesInFlight; i++ {
		s, err := device.CreateSemaphore()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.acquire[i] = s
		f, err := device.CreateFence()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.fences[i] = f
	}
	for i := range images {
		s, err := device.CreateSemaphore()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.complete[i] = s
	}
	core.LogDebug("sync ring created for %d frames over %d swapchain images", MaxFramesInFlight, len(images))
	return r, nil
}

/**
 * @brief Hands out the next frame slot. The slot's previous submission is
 * waited on before its acquire semaphore is reused, so at most
 * MaxFramesInFlight frames are ever pending. When the acquired image is still
 * being rendered by the other slot, that submission is waited on as well.
 */
func (r *Ring) AcquireNext() (Slot, error) {
	frame := r.next
	if err := r.drain(frame); err != nil {
		return Slot{}, err
	}

	sem := r.acquire[frame]
	idx, err := r.device.AcquireNextImage(sem)
	if err != nil {
		return Slot{}, fmt.Errorf("failed to acquire swapchain image: %w", err)
	}
	if int(idx) >= len(r.images) {
		return Slot{}, fmt.Errorf("%w: acquired image %d of %d", core.ErrSwapchainBooting, idx, len(r.images))
	}
	if other := r.imageFrame[idx]; other >= 0 && other != frame &&
		r.inFlight[other] && r.submissions[other] == r.imageSubmission[idx] {
		if err := r.drain(other); err != nil {
			return Slot{}, err
		}
	}
	r.next = (frame + 1) % MaxFramesInFlight

	slot := Slot{
		Frame:    frame,
		Index:    idx,
		Image:    r.images[idx],
		Acquire:  sem,
		Complete: r.complete[idx],
		Fence:    r.fences[frame],
		Reused:   r.drained[frame],
	}
	r.drained[frame] = false
	return slot, nil
}

// drain waits on and resets the fence of frame when it has work pending.
func (r *Ring) drain(frame int) error {
	if !r.inFlight[frame] {
		return nil
	}
	if err := r.device.WaitFence(r.fences[frame]); err != nil {
		return fmt.Errorf("failed to wait on frame slot %d: %w", frame, err)
	}
	if err := r.device.ResetFence(r.fences[frame]); err != nil {
		return fmt.Errorf("failed to reset fence of frame slot %d: %w", frame, err)
	}
	r.inFlight[frame] = false
	r.drained[frame] = true
	r.waits++
	return nil
}

// Submitted marks the slot's fence as pending.
func (r *Ring) Submitted(slot Slot) {
	r.submissions[slot.Frame]++
	r.inFlight[slot.Frame] = true
	r.imageFrame[slot.Index] = slot.Frame
	r.imageSubmission[slot.Index] = r.submissions[slot.Frame]
}

// InFlight reports whether the frame slot has a submission pending.
func (r *Ring) InFlight(frame int) bool {
	return r.inFlight[frame]
}

// Waits is the number of fence waits done so far.
func (r *Ring) Waits() uint64 {
	return r.waits
}

// Slots is the number of frame slots, one set of per-frame resources each.
func (r *Ring) Slots() int {
	return MaxFramesInFlight
}

func (r *Ring) Images() int {
	return len(r.images)
}

// WaitAll waits for every pending frame slot. The returned slots completed a
// submission that no AcquireNext has reported yet.
func (r *Ring) WaitAll() ([]int, error) {
	var completed []int
	for frame := range r.inFlight {
		if err := r.drain(frame); err != nil {
			return completed, err
		}
		if r.drained[frame] {
			r.drained[frame] = false
			completed = append(completed, frame)
		}
	}
	return completed, nil
}

func (r *Ring) Destroy() {
	for i := range r.acquire {
		if r.acquire[i] != metadata.NullHandle {
			r.device.DestroySemaphore(r.acquire[i])
		}
		if r.fences[i] != metadata.NullHandle {
			r.device.DestroyFence(r.fences[i])
		}
	}
	for _, s := range r.complete {
		if s != metadata.NullHandle {
			r.device.DestroySemaphore(s)
		}
	}
	r.acquire = [MaxFramesInFlight]metadata.SemaphoreHandle{}
	r.fences = [MaxFramesInFlight]metadata.FenceHandle{}
	r.complete = nil
}
