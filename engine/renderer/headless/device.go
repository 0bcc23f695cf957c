// Package headless is an in-memory implementation of the device contract.
// Commands are recorded into lists and executed on Submit: barriers are
// validated against the layout each image is really in and pipelines with a
// CPU kernel run it over the bound surfaces.
package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/systems"
)

var (
	ErrSemaphoreSignaled    = errors.New("semaphore is already signaled")
	ErrSemaphoreUnsignaled  = errors.New("semaphore was never signaled")
	ErrFenceSignaled        = errors.New("fence is still signaled, reset it before reuse")
	ErrFenceNeverSubmitted  = errors.New("fence was never submitted, waiting on it would deadlock")
	ErrUnsupportedFormat    = errors.New("format is not supported for host transfers")
	ErrNotRecording         = errors.New("command list is not recording")
	ErrBufferNotHostVisible = errors.New("buffer is not host visible")
)

type Options struct {
	Width           uint32
	Height          uint32
	SwapchainImages int
	// Jobs is handed to kernels so they can split rows. Optional.
	Jobs *systems.JobSystem
}

type image struct {
	desc   metadata.ImageDesc
	surf   *surface.Surface
	layout metadata.Access
}

type buffer struct {
	desc   metadata.BufferDesc
	data   []byte
	mapped bool
}

type bindingSet struct {
	desc   metadata.BindingSetDesc
	layout metadata.BindingLayoutDesc
}

type fence struct {
	signaled  bool
	submitted bool
}

type Device struct {
	mu    sync.Mutex
	opts  Options
	runID string

	next       uint64
	images     map[metadata.ImageHandle]*image
	buffers    map[metadata.BufferHandle]*buffer
	samplers   map[metadata.SamplerHandle]metadata.SamplerDesc
	layouts    map[metadata.BindingLayoutHandle]metadata.BindingLayoutDesc
	sets       map[metadata.BindingSetHandle]*bindingSet
	pipelines  map[metadata.PipelineHandle]metadata.PipelineDesc
	semaphores map[metadata.SemaphoreHandle]bool
	fences     map[metadata.FenceHandle]*fence
	lists      map[*CommandList]struct{}

	swapchain []metadata.ImageHandle
	nextImage uint32

	trace    []Event
	failures map[string]error
}

func NewDevice(opts Options) (*Device, error) {
	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("headless device needs a non zero extent, got %dx%d", opts.Width, opts.Height)
	}
	if opts.SwapchainImages <= 0 {
		opts.SwapchainImages = 2
	}
	d := &Device{
		opts:       opts,
		runID:      uuid.NewString(),
		images:     make(map[metadata.ImageHandle]*image),
		buffers:    make(map[metadata.BufferHandle]*buffer),
		samplers:   make(map[metadata.SamplerHandle]metadata.SamplerDesc),
		layouts:    make(map[metadata.BindingLayoutHandle]metadata.BindingLayoutDesc),
		sets:       make(map[metadata.BindingSetHandle]*bindingSet),
		pipelines:  make(map[metadata.PipelineHandle]metadata.PipelineDesc),
		semaphores: make(map[metadata.SemaphoreHandle]bool),
		fences:     make(map[metadata.FenceHandle]*fence),
		lists:      make(map[*CommandList]struct{}),
		failures:   make(map[string]error),
	}
	for i := 0; i < opts.SwapchainImages; i++ {
		h, err := d.CreateImage(metadata.ImageDesc{
			Name:   fmt.Sprintf("swapchain.%d", i),
			Width:  opts.Width,
			Height: opts.Height,
			Format: metadata.FormatBGRA8Srgb,
			Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferSrc,
		})
		if err != nil {
			return nil, err
		}
		d.swapchain = append(d.swapchain, h)
	}
	core.LogInfo("headless device %s created (%dx%d, %d swapchain images)", d.runID, opts.Width, opts.Height, opts.SwapchainImages)
	return d, nil
}

// RunID identifies this device in logs and traces.
func (d *Device) RunID() string {
	return d.runID
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

// FailNext makes the next call of op return err. Ops are named after the
// device methods: "CreateImage", "CreatePipeline", "Submit", "Present", ...
func (d *Device) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

func (d *Device) injected(op string) error {
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateImage"); err != nil {
		return metadata.NullHandle, err
	}
	surf, err := surface.New(int(desc.Width), int(desc.Height), desc.Format.Channels())
	if err != nil {
		return metadata.NullHandle, fmt.Errorf("image %s: %w", desc.Name, err)
	}
	h := metadata.ImageHandle(d.handle())
	d.images[h] = &image{desc: desc, surf: surf, layout: metadata.AccessUndefined}
	return h, nil
}

func (d *Device) UploadImage(h metadata.ImageHandle, pixels []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return metadata.ErrInvalidHandle
	}
	if err := decodeTexels(img.desc.Format, pixels, img.surf); err != nil {
		return err
	}
	img.layout = metadata.AccessShaderRead
	return nil
}

func (d *Device) DestroyImage(h metadata.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, h)
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateBuffer"); err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.BufferHandle(d.handle())
	d.buffers[h] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	return h, nil
}

func (d *Device) MapBuffer(h metadata.BufferHandle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("MapBuffer"); err != nil {
		return nil, err
	}
	b, ok := d.buffers[h]
	if !ok {
		return nil, metadata.ErrInvalidHandle
	}
	if !b.desc.HostVisible {
		return nil, fmt.Errorf("%w: %s", ErrBufferNotHostVisible, b.desc.Name)
	}
	b.mapped = true
	return b.data, nil
}

func (d *Device) UnmapBuffer(h metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		b.mapped = false
	}
}

func (d *Device) DestroyBuffer(h metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, h)
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.SamplerHandle(d.handle())
	d.samplers[h] = desc
	return h, nil
}

func (d *Device) DestroySampler(h metadata.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, h)
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (metadata.BindingLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return metadata.NullHandle, fmt.Errorf("layout %s declares binding %d twice", desc.Name, e.Binding)
		}
		seen[e.Binding] = true
	}
	h := metadata.BindingLayoutHandle(d.handle())
	d.layouts[h] = desc
	return h, nil
}

func (d *Device) DestroyBindingLayout(h metadata.BindingLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, h)
}

func (d *Device) CreateBindingSet(desc metadata.BindingSetDesc) (metadata.BindingSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateBindingSet"); err != nil {
		return metadata.NullHandle, err
	}
	layout, ok := d.layouts[desc.Layout]
	if !ok {
		return metadata.NullHandle, fmt.Errorf("binding set %s: %w", desc.Name, metadata.ErrInvalidHandle)
	}
	for _, w := range desc.Writes {
		entry, ok := findEntry(layout, w.Binding)
		if !ok {
			return metadata.NullHandle, fmt.Errorf("binding set %s writes binding %d missing from layout %s", desc.Name, w.Binding, layout.Name)
		}
		switch entry.Type {
		case metadata.BindingUniformBuffer:
			if _, ok := d.buffers[w.Buffer]; !ok {
				return metadata.NullHandle, fmt.Errorf("binding set %s binding %d: %w", desc.Name, w.Binding, metadata.ErrInvalidHandle)
			}
		default:
			if _, ok := d.images[w.Image]; !ok {
				return metadata.NullHandle, fmt.Errorf("binding set %s binding %d: %w", desc.Name, w.Binding, metadata.ErrInvalidHandle)
			}
		}
	}
	h := metadata.BindingSetHandle(d.handle())
	d.sets[h] = &bindingSet{desc: desc, layout: layout}
	d.record(Event{Kind: EventCreateBindingSet, Detail: desc.Name})
	return h, nil
}

func findEntry(layout metadata.BindingLayoutDesc, binding uint32) (metadata.LayoutEntry, bool) {
	for _, e := range layout.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return metadata.LayoutEntry{}, false
}

func (d *Device) DestroyBindingSet(h metadata.BindingSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sets, h)
}

func (d *Device) CreatePipeline(desc metadata.PipelineDesc) (metadata.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreatePipeline"); err != nil {
		return metadata.NullHandle, err
	}
	for _, l := range desc.Layouts {
		if _, ok := d.layouts[l]; !ok {
			return metadata.NullHandle, fmt.Errorf("pipeline %s: %w", desc.Name, metadata.ErrInvalidHandle)
		}
	}
	h := metadata.PipelineHandle(d.handle())
	d.pipelines[h] = desc
	return h, nil
}

func (d *Device) DestroyPipeline(h metadata.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, h)
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.SemaphoreHandle(d.handle())
	d.semaphores[h] = false
	return h, nil
}

func (d *Device) DestroySemaphore(h metadata.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, h)
}

func (d *Device) CreateFence() (metadata.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.FenceHandle(d.handle())
	d.fences[h] = &fence{}
	return h, nil
}

func (d *Device) WaitFence(h metadata.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return metadata.ErrInvalidHandle
	}
	if !f.signaled {
		return ErrFenceNeverSubmitted
	}
	d.record(Event{Kind: EventWaitFence, Detail: fmt.Sprint(h)})
	return nil
}

func (d *Device) ResetFence(h metadata.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return metadata.ErrInvalidHandle
	}
	f.signaled = false
	f.submitted = false
	return nil
}

func (d *Device) DestroyFence(h metadata.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, h)
}

func (d *Device) NewCommandList(name string) (metadata.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("NewCommandList"); err != nil {
		return nil, err
	}
	cl := &CommandList{device: d, name: name}
	d.lists[cl] = struct{}{}
	return cl, nil
}

func (d *Device) FreeCommandList(cl metadata.CommandList) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := cl.(*CommandList); ok {
		l.freed = true
		delete(d.lists, l)
	}
}

func (d *Device) SwapchainImages() []metadata.ImageHandle {
	return d.swapchain
}

func (d *Device) SwapchainFormat() metadata.Format {
	return metadata.FormatBGRA8Srgb
}

func (d *Device) SwapchainExtent() metadata.Extent {
	return metadata.Extent{Width: d.opts.Width, Height: d.opts.Height}
}

func (d *Device) AcquireNextImage(signal metadata.SemaphoreHandle) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("AcquireNextImage"); err != nil {
		return 0, err
	}
	signaled, ok := d.semaphores[signal]
	if !ok {
		return 0, metadata.ErrInvalidHandle
	}
	if signaled {
		return 0, fmt.Errorf("acquire: %w", ErrSemaphoreSignaled)
	}
	d.semaphores[signal] = true
	idx := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(len(d.swapchain))
	d.record(Event{Kind: EventAcquire, Detail: fmt.Sprintf("image=%d semaphore=%d", idx, signal)})
	return idx, nil
}

func (d *Device) Submit(info metadata.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("Submit"); err != nil {
		return err
	}
	for _, s := range info.Wait {
		signaled, ok := d.semaphores[s]
		if !ok {
			return metadata.ErrInvalidHandle
		}
		if !signaled {
			return fmt.Errorf("submit wait: %w", ErrSemaphoreUnsignaled)
		}
	}
	var f *fence
	if info.Fence != metadata.NullHandle {
		var ok bool
		if f, ok = d.fences[info.Fence]; !ok {
			return metadata.ErrInvalidHandle
		}
		if f.signaled || f.submitted {
			return fmt.Errorf("submit: %w", ErrFenceSignaled)
		}
	}
	for _, s := range info.Wait {
		d.semaphores[s] = false
	}

	names := make([]string, 0, len(info.Lists))
	for _, l := range info.Lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("submit: foreign command list %T", l)
		}
		if cl.state != stateExecutable {
			return fmt.Errorf("submit: command list %s is not executable", cl.name)
		}
		if err := d.execute(cl); err != nil {
			return fmt.Errorf("submit: %s: %w", cl.name, err)
		}
		names = append(names, cl.name)
	}

	for _, s := range info.Signal {
		if d.semaphores[s] {
			return fmt.Errorf("submit signal: %w", ErrSemaphoreSignaled)
		}
		d.semaphores[s] = true
	}
	if f != nil {
		f.submitted = true
		f.signaled = true
	}
	d.record(Event{Kind: EventSubmit, Detail: fmt.Sprint(names)})
	return nil
}

func (d *Device) Present(index uint32, wait metadata.SemaphoreHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("Present"); err != nil {
		// an out of date swapchain still runs the semaphore wait
		if errors.Is(err, core.ErrSwapchainBooting) {
			d.semaphores[wait] = false
		}
		return err
	}
	if int(index) >= len(d.swapchain) {
		return fmt.Errorf("present: swapchain index %d out of range", index)
	}
	if !d.semaphores[wait] {
		return fmt.Errorf("present: %w", ErrSemaphoreUnsignaled)
	}
	img := d.images[d.swapchain[index]]
	if img.layout != metadata.AccessPresent {
		return fmt.Errorf("present: %w: image %d is %s", metadata.ErrLayoutMismatch, index, img.layout)
	}
	d.semaphores[wait] = false
	d.record(Event{Kind: EventPresent, Detail: fmt.Sprint(index)})
	return nil
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.swapchain {
		delete(d.images, h)
	}
	d.swapchain = nil
	core.LogInfo("headless device %s shut down", d.runID)
	return nil
}

// WriteImage replaces the contents of an image without touching its layout.
func (d *Device) WriteImage(h metadata.ImageHandle, s *surface.Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return metadata.ErrInvalidHandle
	}
	if !img.surf.SameShape(s) {
		return fmt.Errorf("write image %s: shape mismatch", img.desc.Name)
	}
	copy(img.surf.Pix, s.Pix)
	return nil
}

// ReadImage returns a copy of the contents of an image.
func (d *Device) ReadImage(h metadata.ImageHandle) (*surface.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return nil, metadata.ErrInvalidHandle
	}
	return img.surf.Clone(), nil
}

func (d *Device) Layout(h metadata.ImageHandle) metadata.Access {
	d.mu.Lock()
	defer d.mu.Unlock()
	if img, ok := d.images[h]; ok {
		return img.layout
	}
	return metadata.AccessUndefined
}

func (d *Device) ImageDesc(h metadata.ImageHandle) (metadata.ImageDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return metadata.ImageDesc{}, false
	}
	return img.desc, true
}

func (d *Device) SemaphoreSignaled(h metadata.SemaphoreHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.semaphores[h]
}

// LiveCommandLists is the number of allocated and not yet freed lists.
func (d *Device) LiveCommandLists() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lists)
}
