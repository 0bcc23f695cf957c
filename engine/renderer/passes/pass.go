// Package passes holds the units of work the frame orchestrator records
// every frame, the uniform block they share and their CPU reference kernels.
package passes

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frames"
	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/ui"
)

type Kind int

const (
	// fixed target set and load behaviour decided at Init
	KindRaster Kind = iota
	// attachments rebound every frame
	KindDynamicRaster
	KindCompute
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "Raster"
	case KindDynamicRaster:
		return "DynamicRaster"
	case KindCompute:
		return "Compute"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Binding sets every pass pipeline is laid out with.
const (
	SetFrame    uint32 = 0
	SetPrimary  uint32 = 1
	SetStorage  uint32 = 2
	SetMaterial uint32 = 3
)

const FrameUniformBinding uint32 = 0

// compute workgroup edge
const GroupSize = 8

/**
 * @brief A unit of GPU work. Configure writes the pass's uniform sections,
 * Record emits its commands into a list of its own.
 */
type Pass interface {
	Name() string
	// Index is the position of the pass in the orchestrator's list.
	Index() int
	Kind() Kind
	Init(ctx *Context, index int) error
	Enabled() bool
	// Apply takes new settings. It is only called between frames.
	Apply(s config.Settings)
	// Tunables returns a copy of the plain data the pass is tuned with.
	Tunables() any
	Configure(f *Frame) error
	Record(f *Frame, cl metadata.CommandList) error
	Destroy()
}

// Context holds the long lived objects passes are built against.
type Context struct {
	Device   metadata.Device
	Table    *resources.Table
	Scene    scene.Source
	UI       ui.Source
	Settings config.Settings

	Sampler       metadata.SamplerHandle
	FrameLayout   metadata.BindingLayoutHandle
	PrimaryLayout metadata.BindingLayoutHandle
	// placeholder for sets a pipeline does not use
	EmptyLayout metadata.BindingLayoutHandle
	Primary     metadata.BindingSetHandle
	// one uniform buffer set per frame slot
	FrameSets []metadata.BindingSetHandle
}

func (c *Context) RenderExtent() metadata.Extent {
	w, h := c.Settings.RenderExtent()
	return metadata.Extent{Width: w, Height: h}
}

func (c *Context) DisplayExtent() metadata.Extent {
	return c.Device.SwapchainExtent()
}

func FrameLayoutDesc() metadata.BindingLayoutDesc {
	return metadata.BindingLayoutDesc{
		Name:    "frame",
		Entries: []metadata.LayoutEntry{{Binding: FrameUniformBinding, Type: metadata.BindingUniformBuffer}},
	}
}

/**
 * @brief The state of one main loop iteration. Only the orchestrator creates
 * it and it does not outlive the iteration.
 */
type Frame struct {
	Count   uint64
	Slot    frames.Slot
	Delta   float64
	Elapsed float64
	Input   core.InputSnapshot
	Parity  uint32

	RenderExtent  metadata.Extent
	DisplayExtent metadata.Extent

	Uniforms       *UniformBuilder
	Camera         *scene.Camera
	Jitter         jitter.Result
	PreviousJitter jitter.Result

	// Color is the latest color product. Passes that produce a new one
	// replace it while recording.
	Color *resources.RenderTarget
	UI    ui.DrawData
}

// base carries what every pass variant shares.
type base struct {
	name    string
	index   int
	enabled bool
	ctx     *Context
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Index() int {
	return b.index
}

func (b *base) Enabled() bool {
	return b.enabled
}

func (b *base) init(ctx *Context, index int) {
	b.ctx = ctx
	b.index = index
}

func (b *base) current(name string, f *Frame) *resources.RenderTarget {
	rt, err := b.ctx.Table.Current(name, f.Count)
	if err != nil {
		panic(err)
	}
	return rt
}

func (b *base) previous(name string, f *Frame) *resources.RenderTarget {
	rt, err := b.ctx.Table.Previous(name, f.Count)
	if err != nil {
		panic(err)
	}
	return rt
}

func (b *base) target(name string) *resources.RenderTarget {
	return b.ctx.Table.MustGet(name)
}

// use transitions rt before its first use in this pass.
func (b *base) use(rt *resources.RenderTarget, access metadata.Access, cl metadata.CommandList) {
	b.ctx.Table.TransitionTarget(rt, access, cl)
}

func (b *base) read(rt *resources.RenderTarget, cl metadata.CommandList) {
	b.use(rt, rt.Desc.Format.ReadAccess(), cl)
}

func (b *base) bindCommon(f *Frame, cl metadata.CommandList) {
	cl.BindSet(SetFrame, b.ctx.FrameSets[f.Slot.Frame])
	cl.BindSet(SetPrimary, b.ctx.Primary)
}

// rasterPass renders into a target set fixed at Init.
type rasterPass struct {
	base
	pipeline metadata.PipelineHandle
	info     metadata.RenderingInfo
}

func (p *rasterPass) Kind() Kind {
	return KindRaster
}

func (p *rasterPass) destroy() {
	if p.pipeline != metadata.NullHandle {
		p.ctx.Device.DestroyPipeline(p.pipeline)
		p.pipeline = metadata.NullHandle
	}
}

// dynamicPass rebinds its attachments every frame.
type dynamicPass struct {
	base
	pipeline metadata.PipelineHandle
}

func (p *dynamicPass) Kind() Kind {
	return KindDynamicRaster
}

func (p *dynamicPass) destroy() {
	if p.pipeline != metadata.NullHandle {
		p.ctx.Device.DestroyPipeline(p.pipeline)
		p.pipeline = metadata.NullHandle
	}
}

func (p *dynamicPass) fullscreen(cl metadata.CommandList, area metadata.Rect) {
	cl.SetViewport(area)
	cl.SetScissor(area)
	cl.Draw(3, 1, 0)
}

// createFullscreen builds a pipeline drawing one fullscreen triangle with the
// frame and primary sets bound.
func (p *dynamicPass) createFullscreen(frag string, colors []metadata.Format, depth metadata.Format, kernel metadata.Kernel) error {
	h, err := p.ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             p.name,
		Kind:             metadata.PipelineGraphics,
		Shaders:          []string{"fullscreen.vert", frag},
		Layouts:          []metadata.BindingLayoutHandle{p.ctx.FrameLayout, p.ctx.PrimaryLayout},
		PushConstantSize: pushConstantSize,
		ColorFormats:     colors,
		DepthFormat:      depth,
		DepthTest:        depth != metadata.FormatUndefined,
		Kernel:           kernel,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline %s: %w", p.name, err)
	}
	p.pipeline = h
	return nil
}

// storageSlot names a target written by a compute pass. History targets
// resolve to the slot of the frame parity.
type storageSlot struct {
	binding uint32
	target  string
}

// computePass dispatches 8x8 workgroups over the render extent.
type computePass struct {
	base
	pipelines []metadata.PipelineHandle
	layout    metadata.BindingLayoutHandle
	// storage set per history parity
	storage [2]metadata.BindingSetHandle
	slots   []storageSlot
}

func (p *computePass) Kind() Kind {
	return KindCompute
}

// createStorage builds the storage layout and one set per parity.
func (p *computePass) createStorage(slots ...storageSlot) error {
	p.slots = slots
	desc := metadata.BindingLayoutDesc{Name: p.name + ".storage"}
	for _, s := range slots {
		desc.Entries = append(desc.Entries, metadata.LayoutEntry{Binding: s.binding, Type: metadata.BindingStorageImage})
	}
	layout, err := p.ctx.Device.CreateBindingLayout(desc)
	if err != nil {
		return err
	}
	p.layout = layout
	for parity := range p.storage {
		set := metadata.BindingSetDesc{Name: fmt.Sprintf("%s.storage.%d", p.name, parity), Layout: layout}
		for _, s := range slots {
			rt, err := p.ctx.Table.Resolve(s.target, uint64(parity))
			if err != nil {
				return err
			}
			set.Writes = append(set.Writes, metadata.BindingWrite{Binding: s.binding, Image: rt.Image})
		}
		h, err := p.ctx.Device.CreateBindingSet(set)
		if err != nil {
			return err
		}
		p.storage[parity] = h
	}
	return nil
}

func (p *computePass) createPipeline(name string, kernel metadata.Kernel) (metadata.PipelineHandle, error) {
	h, err := p.ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             name,
		Kind:             metadata.PipelineCompute,
		Shaders:          []string{name + ".comp"},
		Layouts:          []metadata.BindingLayoutHandle{p.ctx.FrameLayout, p.ctx.PrimaryLayout, p.layout},
		PushConstantSize: pushConstantSize,
		Kernel:           kernel,
	})
	if err != nil {
		return metadata.NullHandle, fmt.Errorf("failed to create pipeline %s: %w", name, err)
	}
	p.pipelines = append(p.pipelines, h)
	return h, nil
}

// writeTargets transitions every storage slot of the frame to ShaderWrite.
func (p *computePass) writeTargets(f *Frame, cl metadata.CommandList) {
	for _, s := range p.slots {
		rt, err := p.ctx.Table.Resolve(s.target, f.Count)
		if err != nil {
			panic(err)
		}
		p.use(rt, metadata.AccessShaderWrite, cl)
	}
}

func (p *computePass) bind(f *Frame, cl metadata.CommandList, pipeline metadata.PipelineHandle) {
	cl.BindPipeline(pipeline)
	p.bindCommon(f, cl)
	cl.BindSet(SetStorage, p.storage[f.Parity])
}

// dispatch covers extent with GroupSize x GroupSize workgroups.
func (p *computePass) dispatch(cl metadata.CommandList, extent metadata.Extent) {
	cl.Dispatch((extent.Width+GroupSize-1)/GroupSize, (extent.Height+GroupSize-1)/GroupSize, 1)
}

func (p *computePass) destroy() {
	for _, h := range p.pipelines {
		p.ctx.Device.DestroyPipeline(h)
	}
	p.pipelines = nil
	for i, s := range p.storage {
		if s != metadata.NullHandle {
			p.ctx.Device.DestroyBindingSet(s)
			p.storage[i] = metadata.NullHandle
		}
	}
	if p.layout != metadata.NullHandle {
		p.ctx.Device.DestroyBindingLayout(p.layout)
		p.layout = metadata.NullHandle
	}
}
