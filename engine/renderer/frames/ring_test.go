package frames

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// runFrame consumes the slot like the orchestrator does: submit waiting on
// the acquire semaphore, then present.
func runFrame(t *testing.T, d *headless.Device, r *Ring, slot Slot) {
	cl, _ := d.NewCommandList("frame")
	_ = cl.Begin()
	if l := d.Layout(slot.Image); l != metadata.AccessPresent {
		cl.Barrier(metadata.Barrier{Image: slot.Image, From: l, To: metadata.AccessPresent})
	}
	if err := cl.End(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := d.Submit(metadata.SubmitInfo{
		Lists:  []metadata.CommandList{cl},
		Wait:   []metadata.SemaphoreHandle{slot.Acquire},
		Signal: []metadata.SemaphoreHandle{slot.Complete},
		Fence:  slot.Fence,
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	r.Submitted(slot)
	if err := d.Present(slot.Index, slot.Complete); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAcquireAlternatesSemaphores(t *testing.T) {
	d, _ := headless.NewDevice(headless.Options{Width: 4, Height: 4})
	r, err := NewRing(d)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer r.Destroy()

	type spec struct {
		reused bool
		waits  uint64
	}
	specs := []spec{
		{false, 0},
		{false, 0},
		{true, 1},
		{true, 2},
		{true, 3},
	}
	var last metadata.SemaphoreHandle
	for index, s := range specs {
		slot, err := r.AcquireNext()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if slot.Acquire == last {
			t.Fatalf("[spec %d] expected a different acquire semaphore than the previous frame", index)
		}
		last = slot.Acquire
		if slot.Reused != s.reused || r.Waits() != s.waits {
			t.Fatalf("[spec %d] expected reused=%t waits=%d; got %t and %d", index, s.reused, s.waits, slot.Reused, r.Waits())
		}
		if slot.Frame != index%2 || slot.Index != uint32(index%2) {
			t.Fatalf("[spec %d] expected frame slot and image %d; got %d and %d", index, index%2, slot.Frame, slot.Index)
		}
		runFrame(t, d, r, slot)
	}

	if n := len(d.Events(headless.EventWaitFence)); n != 3 {
		t.Fatalf("expected fences to be waited only on reuse; got %d waits", n)
	}
}

func TestTwoFramesInFlightOverThreeImages(t *testing.T) {
	d, _ := headless.NewDevice(headless.Options{Width: 4, Height: 4, SwapchainImages: 3})
	r, err := NewRing(d)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer r.Destroy()
	if r.Slots() != MaxFramesInFlight || r.Images() != 3 {
		t.Fatalf("expected %d frame slots over 3 images; got %d over %d", MaxFramesInFlight, r.Slots(), r.Images())
	}

	type spec struct {
		image  uint32
		reused bool
		waits  uint64
	}
	specs := []spec{
		{0, false, 0},
		{1, false, 0},
		// frame 2 waits on frame 0 although it renders to a fresh image
		{2, true, 1},
		{0, true, 2},
		{1, true, 3},
		{2, true, 4},
	}
	for index, s := range specs {
		slot, err := r.AcquireNext()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if slot.Frame != index%MaxFramesInFlight || slot.Index != s.image {
			t.Fatalf("[spec %d] expected frame slot %d on image %d; got %d on %d", index, index%MaxFramesInFlight, s.image, slot.Frame, slot.Index)
		}
		if slot.Reused != s.reused || r.Waits() != s.waits {
			t.Fatalf("[spec %d] expected reused=%t waits=%d; got %t and %d", index, s.reused, s.waits, slot.Reused, r.Waits())
		}
		if r.InFlight(slot.Frame) {
			t.Fatalf("[spec %d] expected frame slot %d to be idle before it is reused", index, slot.Frame)
		}
		runFrame(t, d, r, slot)
	}
}

func TestImageStillInFlightIsWaited(t *testing.T) {
	d, _ := headless.NewDevice(headless.Options{Width: 4, Height: 4, SwapchainImages: 1})
	r, err := NewRing(d)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer r.Destroy()

	type spec struct {
		reused bool
		waits  uint64
	}
	specs := []spec{
		{false, 0},
		// the only image is still rendered by frame slot 0
		{false, 1},
		// slot 0 was already drained by the previous acquire
		{true, 2},
	}
	for index, s := range specs {
		slot, err := r.AcquireNext()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if slot.Reused != s.reused || r.Waits() != s.waits {
			t.Fatalf("[spec %d] expected reused=%t waits=%d; got %t and %d", index, s.reused, s.waits, slot.Reused, r.Waits())
		}
		runFrame(t, d, r, slot)
	}
}

func TestWaitAll(t *testing.T) {
	d, _ := headless.NewDevice(headless.Options{Width: 4, Height: 4})
	r, _ := NewRing(d)
	defer r.Destroy()
	slot, _ := r.AcquireNext()
	runFrame(t, d, r, slot)

	waited, err := r.WaitAll()
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(waited) != 1 || waited[0] != slot.Frame || r.InFlight(slot.Frame) {
		t.Fatalf("expected frame slot %d to be waited; got %v", slot.Frame, waited)
	}
	if waited, _ = r.WaitAll(); len(waited) != 0 {
		t.Fatalf("expected a completed slot to be reported once; got %v", waited)
	}
}
