package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// executor replays one command list. The device lock is held for the whole run.
type executor struct {
	device      *Device
	pipeline    *metadata.PipelineDesc
	sets        map[uint32]metadata.BindingSetHandle
	push        []byte
	attachments []*image
	depth       *image
	groups      [3]uint32
}

func (d *Device) execute(cl *CommandList) error {
	x := &executor{device: d, sets: make(map[uint32]metadata.BindingSetHandle)}
	for _, c := range cl.commands {
		if err := c.run(x); err != nil {
			return fmt.Errorf("%s: %w", c.kind, err)
		}
	}
	return nil
}

func (x *executor) image(h metadata.ImageHandle) (*image, error) {
	img, ok := x.device.images[h]
	if !ok {
		return nil, fmt.Errorf("image %d: %w", h, metadata.ErrInvalidHandle)
	}
	return img, nil
}

func (x *executor) barrier(b metadata.Barrier) error {
	img, err := x.image(b.Image)
	if err != nil {
		return err
	}
	if img.layout != b.From {
		return fmt.Errorf("%w: %s is %s, barrier expects %s", metadata.ErrLayoutMismatch, img.desc.Name, img.layout, b.From)
	}
	img.layout = b.To
	return nil
}

func (x *executor) beginRendering(info metadata.RenderingInfo) error {
	x.attachments = x.attachments[:0]
	x.depth = nil
	for _, a := range info.Color {
		img, err := x.image(a.Image)
		if err != nil {
			return err
		}
		if img.layout != metadata.AccessColorAttachment {
			return fmt.Errorf("%w: color attachment %s is %s", metadata.ErrLayoutMismatch, img.desc.Name, img.layout)
		}
		if a.Load == metadata.LoadOpClear {
			img.surf.Fill(surface.Texel(a.Clear))
		}
		x.attachments = append(x.attachments, img)
	}
	if info.Depth != nil {
		img, err := x.image(info.Depth.Image)
		if err != nil {
			return err
		}
		want := metadata.AccessDepthAttachment
		if info.Depth.ReadOnly {
			want = metadata.AccessDepthRead
		}
		if img.layout != want {
			return fmt.Errorf("%w: depth attachment %s is %s, expected %s", metadata.ErrLayoutMismatch, img.desc.Name, img.layout, want)
		}
		if info.Depth.Load == metadata.LoadOpClear {
			if info.Depth.ReadOnly {
				return errors.New("cannot clear a read-only depth attachment")
			}
			img.surf.Fill(surface.Texel(info.Depth.Clear))
		}
		x.depth = img
	}
	return nil
}

func (x *executor) endRendering() {
	x.attachments = x.attachments[:0]
	x.depth = nil
}

func (x *executor) bindPipeline(h metadata.PipelineHandle) error {
	p, ok := x.device.pipelines[h]
	if !ok {
		return fmt.Errorf("pipeline %d: %w", h, metadata.ErrInvalidHandle)
	}
	x.pipeline = &p
	return nil
}

func (x *executor) bindSet(index uint32, h metadata.BindingSetHandle) error {
	if _, ok := x.device.sets[h]; !ok {
		return fmt.Errorf("binding set %d: %w", h, metadata.ErrInvalidHandle)
	}
	x.sets[index] = h
	return nil
}

func (x *executor) requireBuffer(h metadata.BufferHandle) error {
	if _, ok := x.device.buffers[h]; !ok {
		return fmt.Errorf("buffer %d: %w", h, metadata.ErrInvalidHandle)
	}
	return nil
}

func (x *executor) draw() error {
	if x.pipeline == nil || x.pipeline.Kind != metadata.PipelineGraphics {
		return errors.New("draw without a graphics pipeline")
	}
	if x.pipeline.Kernel == nil {
		return nil
	}
	x.groups = [3]uint32{1, 1, 1}
	return x.pipeline.Kernel(x)
}

func (x *executor) dispatch(gx, gy, gz uint32) error {
	if x.pipeline == nil || x.pipeline.Kind != metadata.PipelineCompute {
		return errors.New("dispatch without a compute pipeline")
	}
	if x.pipeline.Kernel == nil {
		return nil
	}
	x.groups = [3]uint32{gx, gy, gz}
	if err := x.pipeline.Kernel(x); err != nil {
		return fmt.Errorf("kernel %s: %w", x.pipeline.Name, err)
	}
	return nil
}

func (x *executor) copyImageToBuffer(src metadata.ImageHandle, region metadata.Rect, dst metadata.BufferHandle, offset uint64) error {
	img, err := x.image(src)
	if err != nil {
		return err
	}
	if img.layout != metadata.AccessTransferSrc {
		return fmt.Errorf("%w: copy source %s is %s", metadata.ErrLayoutMismatch, img.desc.Name, img.layout)
	}
	buf, ok := x.device.buffers[dst]
	if !ok {
		return fmt.Errorf("buffer %d: %w", dst, metadata.ErrInvalidHandle)
	}
	texel := img.desc.Format.BytesPerTexel()
	need := offset + uint64(region.Width)*uint64(region.Height)*uint64(texel)
	if need > uint64(len(buf.data)) {
		return fmt.Errorf("copy of %d bytes overflows buffer %s", need-offset, buf.desc.Name)
	}
	o := offset
	for y := int(region.Y); y < int(region.Y)+int(region.Height); y++ {
		for xx := int(region.X); xx < int(region.X)+int(region.Width); xx++ {
			if err := encodeTexel(img.desc.Format, img.surf.At(xx, y), buf.data[o:o+uint64(texel)]); err != nil {
				return err
			}
			o += uint64(texel)
		}
	}
	return nil
}

// KernelContext

func (x *executor) binding(set, binding uint32) (*bindingSet, metadata.LayoutEntry, metadata.BindingWrite, error) {
	h, ok := x.sets[set]
	if !ok {
		return nil, metadata.LayoutEntry{}, metadata.BindingWrite{}, fmt.Errorf("no binding set bound at %d", set)
	}
	bs := x.device.sets[h]
	entry, ok := findEntry(bs.layout, binding)
	if !ok {
		return nil, metadata.LayoutEntry{}, metadata.BindingWrite{}, fmt.Errorf("set %s has no binding %d", bs.desc.Name, binding)
	}
	for _, w := range bs.desc.Writes {
		if w.Binding == binding {
			return bs, entry, w, nil
		}
	}
	return nil, metadata.LayoutEntry{}, metadata.BindingWrite{}, fmt.Errorf("set %s never wrote binding %d", bs.desc.Name, binding)
}

func (x *executor) Image(set, binding uint32) (*surface.Surface, error) {
	bs, entry, w, err := x.binding(set, binding)
	if err != nil {
		return nil, err
	}
	img, err := x.image(w.Image)
	if err != nil {
		return nil, err
	}
	switch entry.Type {
	case metadata.BindingSampledImage:
		if img.layout != metadata.AccessShaderRead && img.layout != metadata.AccessDepthRead {
			return nil, fmt.Errorf("%w: %s sampled through %s while %s", metadata.ErrLayoutMismatch, img.desc.Name, bs.desc.Name, img.layout)
		}
	case metadata.BindingStorageImage:
		if img.layout != metadata.AccessShaderWrite {
			return nil, fmt.Errorf("%w: %s written through %s while %s", metadata.ErrLayoutMismatch, img.desc.Name, bs.desc.Name, img.layout)
		}
	default:
		return nil, fmt.Errorf("binding %d of %s is not an image", binding, bs.desc.Name)
	}
	return img.surf, nil
}

func (x *executor) Uniforms(set, binding uint32) ([]byte, error) {
	bs, entry, w, err := x.binding(set, binding)
	if err != nil {
		return nil, err
	}
	if entry.Type != metadata.BindingUniformBuffer {
		return nil, fmt.Errorf("binding %d of %s is not a uniform buffer", binding, bs.desc.Name)
	}
	buf, ok := x.device.buffers[w.Buffer]
	if !ok {
		return nil, metadata.ErrInvalidHandle
	}
	return buf.data, nil
}

func (x *executor) Attachment(i int) (*surface.Surface, error) {
	if i < 0 || i >= len(x.attachments) {
		return nil, fmt.Errorf("no color attachment %d", i)
	}
	return x.attachments[i].surf, nil
}

func (x *executor) DepthAttachment() (*surface.Surface, error) {
	if x.depth == nil {
		return nil, errors.New("no depth attachment bound")
	}
	return x.depth.surf, nil
}

func (x *executor) PushConstants() []byte {
	return x.push
}

func (x *executor) Groups() (uint32, uint32, uint32) {
	return x.groups[0], x.groups[1], x.groups[2]
}

func (x *executor) Jobs() *systems.JobSystem {
	return x.device.opts.Jobs
}
