package passes

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/frames"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/ui"
)

const uiMinBufferSize = 64 * 1024

// uiBuffer is a host visible buffer that only grows.
type uiBuffer struct {
	handle metadata.BufferHandle
	size   uint64
}

// UIPass draws the overlay stream on top of the tone mapped image.
type UIPass struct {
	dynamicPass
	layout metadata.BindingLayoutHandle
	// per frame slot
	vertices []uiBuffer
	indices  []uiBuffer
}

func NewUIPass() *UIPass {
	return &UIPass{dynamicPass: dynamicPass{base: base{name: "ui"}}}
}

func (p *UIPass) Init(ctx *Context, index int) error {
	p.init(ctx, index)
	p.Apply(ctx.Settings)
	layout, err := ctx.Device.CreateBindingLayout(ui.TextureLayoutDesc())
	if err != nil {
		return err
	}
	p.layout = layout
	pipeline, err := ctx.Device.CreatePipeline(metadata.PipelineDesc{
		Name:             p.name,
		Kind:             metadata.PipelineGraphics,
		Shaders:          []string{"ui.vert", "ui.frag"},
		Layouts:          []metadata.BindingLayoutHandle{layout},
		PushConstantSize: pushConstantSize,
		VertexLayout:     metadata.VertexLayout2D,
		ColorFormats:     []metadata.Format{ctx.Device.SwapchainFormat()},
		Blend:            true,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline %s: %w", p.name, err)
	}
	p.pipeline = pipeline
	p.vertices = make([]uiBuffer, frames.MaxFramesInFlight)
	p.indices = make([]uiBuffer, frames.MaxFramesInFlight)
	return nil
}

func (p *UIPass) Apply(s config.Settings) {
	p.enabled = s.UI.Enabled
}

func (p *UIPass) Tunables() any {
	return nil
}

func (p *UIPass) Configure(f *Frame) error {
	return nil
}

// upload copies data into the slot buffer, replacing it when too small.
func (p *UIPass) upload(b *uiBuffer, name string, usage metadata.BufferUsage, data []byte) error {
	if uint64(len(data)) > b.size {
		if b.handle != metadata.NullHandle {
			p.ctx.Device.DestroyBuffer(b.handle)
			b.handle = metadata.NullHandle
		}
		size := uint64(uiMinBufferSize)
		for size < uint64(len(data)) {
			size *= 2
		}
		h, err := p.ctx.Device.CreateBuffer(metadata.BufferDesc{Name: name, Size: size, Usage: usage, HostVisible: true})
		if err != nil {
			return err
		}
		b.handle, b.size = h, size
	}
	mapped, err := p.ctx.Device.MapBuffer(b.handle)
	if err != nil {
		return err
	}
	copy(mapped, data)
	p.ctx.Device.UnmapBuffer(b.handle)
	return nil
}

func (p *UIPass) Record(f *Frame, cl metadata.CommandList) error {
	if f.UI.Empty() {
		return nil
	}
	slot := f.Slot.Frame
	vb, ib := &p.vertices[slot], &p.indices[slot]
	if err := p.upload(vb, fmt.Sprintf("ui.vertices.%d", slot), metadata.BufferUsageVertex, f.UI.Vertices); err != nil {
		return err
	}
	if err := p.upload(ib, fmt.Sprintf("ui.indices.%d", slot), metadata.BufferUsageIndex, f.UI.Indices); err != nil {
		return err
	}
	white, _ := p.ctx.UI.Texture(ui.TextureWhite)

	p.ctx.Table.TransitionImage(f.Slot.Image, metadata.AccessColorAttachment, cl)
	area := f.DisplayExtent.Rect()
	cl.BeginRendering(metadata.RenderingInfo{
		Name:  p.name,
		Area:  area,
		Color: []metadata.Attachment{{Image: f.Slot.Image, Load: metadata.LoadOpLoad}},
	})
	cl.BindPipeline(p.pipeline)
	cl.SetViewport(area)
	var in InputConstants
	// pixels to NDC
	in.Params = [8]float32{2 / float32(area.Width), 2 / float32(area.Height), -1, -1}
	cl.PushConstants(encodePush(&in))
	cl.BindVertexBuffer(vb.handle, 0)
	cl.BindIndexBuffer(ib.handle, 0)
	for _, cmd := range f.UI.Commands {
		set, ok := p.ctx.UI.Texture(cmd.TextureID)
		if !ok {
			set = white
		}
		cl.BindSet(0, set)
		cl.SetScissor(cmd.ClipRect)
		cl.DrawIndexed(cmd.IndexCount, cmd.IndexOffset, int32(cmd.VertexOffset))
	}
	cl.EndRendering()
	return nil
}

func (p *UIPass) Destroy() {
	for _, bufs := range [][]uiBuffer{p.vertices, p.indices} {
		for i := range bufs {
			if bufs[i].handle != metadata.NullHandle {
				p.ctx.Device.DestroyBuffer(bufs[i].handle)
				bufs[i] = uiBuffer{}
			}
		}
	}
	if p.layout != metadata.NullHandle {
		p.ctx.Device.DestroyBindingLayout(p.layout)
		p.layout = metadata.NullHandle
	}
	p.destroy()
}
