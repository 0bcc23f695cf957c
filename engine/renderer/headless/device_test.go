package headless

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

func newDevice(t *testing.T) *Device {
	d, err := NewDevice(Options{Width: 8, Height: 4})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return d
}

func mustImage(t *testing.T, d *Device, name string, f metadata.Format) metadata.ImageHandle {
	h, err := d.CreateImage(metadata.ImageDesc{Name: name, Width: 8, Height: 4, Format: f})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return h
}

func record(t *testing.T, d *Device, name string, fn func(cl metadata.CommandList)) metadata.CommandList {
	cl, err := d.NewCommandList(name)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := cl.Begin(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	fn(cl)
	if err := cl.End(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return cl
}

func TestBarrierValidatesSourceLayout(t *testing.T) {
	type spec struct {
		from metadata.Access
		err  bool
	}
	specs := []spec{
		{metadata.AccessUndefined, false},
		{metadata.AccessShaderRead, true},
	}
	for index, s := range specs {
		d := newDevice(t)
		img := mustImage(t, d, "color", metadata.FormatRGBA16F)
		cl := record(t, d, "barrier", func(cl metadata.CommandList) {
			cl.Barrier(metadata.Barrier{Image: img, From: s.from, To: metadata.AccessShaderWrite})
		})
		err := d.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}})
		if (err != nil) != s.err {
			t.Fatalf("[spec %d] expected error %t; got %v", index, s.err, err)
		}
		if s.err && !errors.Is(err, metadata.ErrLayoutMismatch) {
			t.Fatalf("[spec %d] expected ErrLayoutMismatch; got %v", index, err)
		}
		if !s.err && d.Layout(img) != metadata.AccessShaderWrite {
			t.Fatalf("[spec %d] expected ShaderWrite; got %s", index, d.Layout(img))
		}
	}
}

func TestRecordingMistakesFailEnd(t *testing.T) {
	type spec struct {
		name string
		fn   func(cl metadata.CommandList)
	}
	specs := []spec{
		{"draw outside rendering", func(cl metadata.CommandList) { cl.Draw(3, 1, 0) }},
		{"open scope", func(cl metadata.CommandList) { cl.BeginRendering(metadata.RenderingInfo{}) }},
		{"dispatch in scope", func(cl metadata.CommandList) {
			cl.BeginRendering(metadata.RenderingInfo{})
			cl.Dispatch(1, 1, 1)
			cl.EndRendering()
		}},
		{"barrier to undefined", func(cl metadata.CommandList) {
			cl.Barrier(metadata.Barrier{From: metadata.AccessShaderRead, To: metadata.AccessUndefined})
		}},
	}
	for index, s := range specs {
		d := newDevice(t)
		cl, _ := d.NewCommandList(s.name)
		if err := cl.Begin(); err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		s.fn(cl)
		if err := cl.End(); err == nil {
			t.Fatalf("[spec %d] %s: expected End to fail", index, s.name)
		}
		if err := d.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}}); err == nil {
			t.Fatalf("[spec %d] %s: expected a failed list not to be submittable", index, s.name)
		}
	}
}

func TestSemaphoresAndFences(t *testing.T) {
	d := newDevice(t)
	sem, _ := d.CreateSemaphore()
	done, _ := d.CreateSemaphore()
	fence, _ := d.CreateFence()

	if err := d.WaitFence(fence); !errors.Is(err, ErrFenceNeverSubmitted) {
		t.Fatalf("expected ErrFenceNeverSubmitted; got %v", err)
	}
	idx, err := d.AcquireNextImage(sem)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := d.AcquireNextImage(sem); !errors.Is(err, ErrSemaphoreSignaled) {
		t.Fatalf("expected ErrSemaphoreSignaled; got %v", err)
	}

	img := d.SwapchainImages()[idx]
	cl := record(t, d, "present", func(cl metadata.CommandList) {
		cl.Barrier(metadata.Barrier{Image: img, From: metadata.AccessUndefined, To: metadata.AccessPresent})
	})
	info := metadata.SubmitInfo{
		Lists:  []metadata.CommandList{cl},
		Wait:   []metadata.SemaphoreHandle{sem},
		Signal: []metadata.SemaphoreHandle{done},
		Fence:  fence,
	}
	if err := d.Submit(info); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if d.SemaphoreSignaled(sem) || !d.SemaphoreSignaled(done) {
		t.Fatalf("expected the wait semaphore consumed and the signal semaphore set")
	}
	if err := d.WaitFence(fence); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := d.Present(idx, done); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	info.Lists, info.Wait, info.Signal = nil, nil, nil
	if err := d.Submit(info); !errors.Is(err, ErrFenceSignaled) {
		t.Fatalf("expected ErrFenceSignaled; got %v", err)
	}
	if err := d.ResetFence(fence); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := d.Submit(info); err != nil {
		t.Fatalf("expected a reset fence to be reusable; got %v", err)
	}
}

func TestPresentRequiresPresentLayout(t *testing.T) {
	d := newDevice(t)
	sem, _ := d.CreateSemaphore()
	idx, _ := d.AcquireNextImage(sem)
	if err := d.Present(idx, sem); !errors.Is(err, metadata.ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch; got %v", err)
	}
}

func TestComputeKernelValidatesBindings(t *testing.T) {
	d := newDevice(t)
	src := mustImage(t, d, "src", metadata.FormatR32F)
	dst := mustImage(t, d, "dst", metadata.FormatR32F)

	layout, err := d.CreateBindingLayout(metadata.BindingLayoutDesc{Name: "io", Entries: []metadata.LayoutEntry{
		{Binding: 0, Type: metadata.BindingSampledImage},
		{Binding: 1, Type: metadata.BindingStorageImage},
	}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	set, err := d.CreateBindingSet(metadata.BindingSetDesc{Name: "io", Layout: layout, Writes: []metadata.BindingWrite{
		{Binding: 0, Image: src},
		{Binding: 1, Image: dst},
	}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	pipeline, err := d.CreatePipeline(metadata.PipelineDesc{
		Name:    "double",
		Kind:    metadata.PipelineCompute,
		Layouts: []metadata.BindingLayoutHandle{layout},
		Kernel: func(ctx metadata.KernelContext) error {
			in, err := ctx.Image(0, 0)
			if err != nil {
				return err
			}
			out, err := ctx.Image(0, 1)
			if err != nil {
				return err
			}
			for i, v := range in.Pix {
				out.Pix[i] = v * 2
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	seed := surface.MustNew(8, 4, 1)
	seed.Fill(surface.Texel{3})
	if err := d.WriteImage(src, seed); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	dispatch := func(srcAccess metadata.Access) error {
		cl := record(t, d, "compute", func(cl metadata.CommandList) {
			if l := d.Layout(src); l != srcAccess {
				cl.Barrier(metadata.Barrier{Image: src, From: l, To: srcAccess})
			}
			if l := d.Layout(dst); l != metadata.AccessShaderWrite {
				cl.Barrier(metadata.Barrier{Image: dst, From: l, To: metadata.AccessShaderWrite})
			}
			cl.BindPipeline(pipeline)
			cl.BindSet(0, set)
			cl.Dispatch(1, 1, 1)
		})
		return d.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}})
	}

	if err := dispatch(metadata.AccessShaderWrite); !errors.Is(err, metadata.ErrLayoutMismatch) {
		t.Fatalf("expected sampling a written image to fail; got %v", err)
	}
	if err := dispatch(metadata.AccessShaderRead); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	out, _ := d.ReadImage(dst)
	if out.At(5, 2)[0] != 6 {
		t.Fatalf("expected the kernel to write 6; got %f", out.At(5, 2)[0])
	}
}

func TestCopyImageToBuffer(t *testing.T) {
	d := newDevice(t)
	ids := mustImage(t, d, "ids", metadata.FormatR32Uint)
	s := surface.MustNew(8, 4, 1)
	s.Set(3, 1, surface.Texel{42})
	_ = d.WriteImage(ids, s)

	buf, _ := d.CreateBuffer(metadata.BufferDesc{Name: "pick", Size: 4, HostVisible: true})
	cl := record(t, d, "pick", func(cl metadata.CommandList) {
		cl.Barrier(metadata.Barrier{Image: ids, From: metadata.AccessUndefined, To: metadata.AccessTransferSrc})
		cl.CopyImageToBuffer(ids, metadata.Rect{X: 3, Y: 1, Width: 1, Height: 1}, buf, 0)
	})
	if err := d.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	data, err := d.MapBuffer(buf)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if v := binary.LittleEndian.Uint32(data); v != 42 {
		t.Fatalf("expected 42; got %d", v)
	}
}

func TestFailNext(t *testing.T) {
	d := newDevice(t)
	boom := errors.New("boom")
	d.FailNext("CreatePipeline", boom)
	if _, err := d.CreatePipeline(metadata.PipelineDesc{Name: "p"}); err != boom {
		t.Fatalf("expected %v; got %v", boom, err)
	}
	if _, err := d.CreatePipeline(metadata.PipelineDesc{Name: "p"}); err != nil {
		t.Fatalf("expected the failure to fire once; got %v", err)
	}
}
