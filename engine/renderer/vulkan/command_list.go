package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var ErrNotRecording = errors.New("command list is not recording")

/**
 * @brief A metadata.CommandList backed by a primary command buffer. Commands
 * are recorded as they are issued. The first problem found is kept and
 * returned by End, later commands are dropped.
 */
type CommandList struct {
	device *Device
	name   string
	buffer *VulkanCommandBuffer

	err      error
	pipeline *VulkanPipeline
	// sets bound so far, flushed whenever a pipeline gives them a layout
	sets       map[uint32]*VulkanDescriptorSet
	renderpass *VulkanRenderpass
}

func (cl *CommandList) Name() string {
	return cl.name
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = fmt.Errorf("%s: %w", cl.name, err)
	}
}

// recording reports whether commands can still be appended.
func (cl *CommandList) recording() bool {
	if cl.err != nil {
		return false
	}
	if cl.buffer.State != COMMAND_BUFFER_STATE_RECORDING && cl.buffer.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cl.fail(ErrNotRecording)
		return false
	}
	return true
}

func (cl *CommandList) Begin() error {
	switch cl.buffer.State {
	case COMMAND_BUFFER_STATE_NOT_ALLOCATED:
		return fmt.Errorf("%s: command list was freed", cl.name)
	case COMMAND_BUFFER_STATE_RECORDING, COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return fmt.Errorf("%s: command list is already recording", cl.name)
	}
	cl.err = nil
	cl.pipeline = nil
	cl.renderpass = nil
	cl.sets = make(map[uint32]*VulkanDescriptorSet)
	return cl.buffer.Begin(false, false, false)
}

func (cl *CommandList) End() error {
	if cl.buffer.State != COMMAND_BUFFER_STATE_RECORDING && cl.buffer.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return fmt.Errorf("%s: %w", cl.name, ErrNotRecording)
	}
	if cl.err == nil && cl.renderpass != nil {
		cl.fail(errors.New("end inside a rendering scope"))
	}
	if cl.buffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cl.renderpass.RenderpassEnd(cl.buffer)
		cl.renderpass = nil
	}
	if err := cl.buffer.End(); err != nil && cl.err == nil {
		cl.err = err
	}
	return cl.err
}

func (cl *CommandList) Reset() error {
	cl.err = nil
	cl.pipeline = nil
	cl.renderpass = nil
	cl.sets = nil
	return cl.buffer.Reset()
}

func (cl *CommandList) Barrier(b metadata.Barrier) {
	if !cl.recording() {
		return
	}
	if cl.renderpass != nil {
		cl.fail(errors.New("barrier inside a rendering scope"))
		return
	}
	img, err := cl.device.image(b.Image)
	if err != nil {
		cl.fail(err)
		return
	}
	barrier, srcStage, dstStage, err := imageBarrier(img, b.From, b.To)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdPipelineBarrier(cl.buffer.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (cl *CommandList) BeginRendering(info metadata.RenderingInfo) {
	if !cl.recording() {
		return
	}
	if cl.renderpass != nil {
		cl.fail(fmt.Errorf("rendering scope %s opened inside another", info.Name))
		return
	}
	rp, fb, clears, err := cl.device.beginRendering(info)
	if err != nil {
		cl.fail(fmt.Errorf("rendering scope %s: %w", info.Name, err))
		return
	}
	rp.RenderpassBegin(cl.buffer, fb, info.Area, clears)
	cl.renderpass = rp
}

func (cl *CommandList) EndRendering() {
	if !cl.recording() {
		return
	}
	if cl.renderpass == nil {
		cl.fail(errors.New("end of rendering scope without a begin"))
		return
	}
	cl.renderpass.RenderpassEnd(cl.buffer)
	cl.renderpass = nil
}

func (cl *CommandList) BindPipeline(p metadata.PipelineHandle) {
	if !cl.recording() {
		return
	}
	pipeline, err := cl.device.pipeline(p)
	if err != nil {
		cl.fail(err)
		return
	}
	pipeline.Bind(cl.buffer)
	cl.pipeline = pipeline
	for index, set := range cl.sets {
		cl.bindSet(index, set)
	}
}

func (cl *CommandList) BindSet(index uint32, s metadata.BindingSetHandle) {
	if !cl.recording() {
		return
	}
	set, err := cl.device.set(s)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.sets[index] = set
	if cl.pipeline != nil {
		cl.bindSet(index, set)
	}
}

// bindSet binds a set against the current pipeline layout. Sets beyond the
// layout stay pending for the next pipeline.
func (cl *CommandList) bindSet(index uint32, set *VulkanDescriptorSet) {
	if index >= cl.pipeline.SetCount {
		return
	}
	vk.CmdBindDescriptorSets(cl.buffer.Handle, cl.pipeline.BindPoint, cl.pipeline.PipelineLayout,
		index, 1, []vk.DescriptorSet{set.Handle}, 0, nil)
}

func (cl *CommandList) PushConstants(data []byte) {
	if !cl.recording() {
		return
	}
	if cl.pipeline == nil {
		cl.fail(errors.New("push constants without a pipeline"))
		return
	}
	if len(data) == 0 {
		return
	}
	if uint32(len(data)) > cl.pipeline.PushConstantSize || len(data)%4 != 0 {
		cl.fail(fmt.Errorf("pipeline %s takes %d bytes of push constants, got %d", cl.pipeline.Name, cl.pipeline.PushConstantSize, len(data)))
		return
	}
	vk.CmdPushConstants(cl.buffer.Handle, cl.pipeline.PipelineLayout, cl.pipeline.PushConstantStages,
		0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (cl *CommandList) SetViewport(r metadata.Rect) {
	if !cl.recording() {
		return
	}
	vk.CmdSetViewport(cl.buffer.Handle, 0, 1, []vk.Viewport{{
		X:        float32(r.X),
		Y:        float32(r.Y),
		Width:    float32(r.Width),
		Height:   float32(r.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
}

func (cl *CommandList) SetScissor(r metadata.Rect) {
	if !cl.recording() {
		return
	}
	vk.CmdSetScissor(cl.buffer.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (cl *CommandList) BindVertexBuffer(b metadata.BufferHandle, offset uint64) {
	if !cl.recording() {
		return
	}
	buf, err := cl.device.buffer(b)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindVertexBuffers(cl.buffer.Handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (cl *CommandList) BindIndexBuffer(b metadata.BufferHandle, offset uint64) {
	if !cl.recording() {
		return
	}
	buf, err := cl.device.buffer(b)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(cl.buffer.Handle, buf.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (cl *CommandList) draws() bool {
	if !cl.recording() {
		return false
	}
	if cl.renderpass == nil {
		cl.fail(errors.New("draw outside a rendering scope"))
		return false
	}
	if cl.pipeline == nil || cl.pipeline.BindPoint != vk.PipelineBindPointGraphics {
		cl.fail(errors.New("draw without a graphics pipeline"))
		return false
	}
	return true
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex uint32) {
	if !cl.draws() {
		return
	}
	vk.CmdDraw(cl.buffer.Handle, vertexCount, instanceCount, firstVertex, 0)
}

func (cl *CommandList) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	if !cl.draws() {
		return
	}
	vk.CmdDrawIndexed(cl.buffer.Handle, indexCount, 1, firstIndex, vertexOffset, 0)
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	if !cl.recording() {
		return
	}
	if cl.renderpass != nil {
		cl.fail(errors.New("dispatch inside a rendering scope"))
		return
	}
	if cl.pipeline == nil || cl.pipeline.BindPoint != vk.PipelineBindPointCompute {
		cl.fail(errors.New("dispatch without a compute pipeline"))
		return
	}
	vk.CmdDispatch(cl.buffer.Handle, x, y, z)
}

// CopyImageToBuffer expects the image in TransferSrc.
func (cl *CommandList) CopyImageToBuffer(src metadata.ImageHandle, region metadata.Rect, dst metadata.BufferHandle, offset uint64) {
	if !cl.recording() {
		return
	}
	img, err := cl.device.image(src)
	if err != nil {
		cl.fail(err)
		return
	}
	buf, err := cl.device.buffer(dst)
	if err != nil {
		cl.fail(err)
		return
	}
	size := uint64(region.Width) * uint64(region.Height) * uint64(img.Format.BytesPerTexel())
	if offset+size > buf.Size {
		cl.fail(fmt.Errorf("copy of %d bytes at %d overflows buffer %s", size, offset, buf.Name))
		return
	}
	copyRegion := vk.BufferImageCopy{
		BufferOffset:     vk.DeviceSize(offset),
		ImageSubresource: img.subresourceLayers(),
		ImageOffset:      vk.Offset3D{X: region.X, Y: region.Y, Z: 0},
		ImageExtent:      vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cl.buffer.Handle, img.Handle, vk.ImageLayoutTransferSrcOptimal, buf.Handle, 1, []vk.BufferImageCopy{copyRegion})
}
