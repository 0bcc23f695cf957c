package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// renderpassAttachment describes one attachment of a cached render pass.
type renderpassAttachment struct {
	Format   metadata.Format
	Load     metadata.LoadOp
	ReadOnly bool
}

// renderpassKey identifies a render pass by its attachments. Color
// attachments come first and the depth attachment, if any, last.
type renderpassKey struct {
	attachments string
	hasDepth    bool
}

func makeRenderpassKey(colors []renderpassAttachment, depth *renderpassAttachment) renderpassKey {
	var b strings.Builder
	for _, c := range colors {
		fmt.Fprintf(&b, "c%d:%d;", c.Format, c.Load)
	}
	if depth != nil {
		fmt.Fprintf(&b, "d%d:%d:%t", depth.Format, depth.Load, depth.ReadOnly)
	}
	return renderpassKey{attachments: b.String(), hasDepth: depth != nil}
}

type VulkanRenderpass struct {
	Handle     vk.RenderPass
	ColorCount uint32
	HasDepth   bool
}

/**
 * @brief Creates a single subpass render pass. Every attachment starts and
 * ends in its attachment layout, the surrounding barriers recorded by the
 * passes move images in and out of it.
 */
func RenderpassCreate(context *VulkanContext, colors []renderpassAttachment, depth *renderpassAttachment) (*VulkanRenderpass, error) {
	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(colors)+1)
	colorReferences := make([]vk.AttachmentReference, 0, len(colors))

	for i, c := range colors {
		format, err := vulkanFormat(c.Format)
		if err != nil {
			return nil, err
		}
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(c.Load),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if depth != nil {
		format, err := vulkanFormat(depth.Format)
		if err != nil {
			return nil, err
		}
		layout := vk.ImageLayoutDepthStencilAttachmentOptimal
		if depth.ReadOnly {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(depth.Load),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  layout,
			FinalLayout:    layout,
		})
		depthReference := vk.AttachmentReference{
			Attachment: uint32(len(colors)),
			Layout:     layout,
		}
		subpass.PDepthStencilAttachment = &depthReference
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
		return nil, vulkanError("vkCreateRenderPass", res)
	}
	return &VulkanRenderpass{
		Handle:     pRenderPass,
		ColorCount: uint32(len(colors)),
		HasDepth:   depth != nil,
	}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}

// RenderpassBegin starts the pass on the command buffer. Clear values are
// given per attachment in attachment order.
func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, area metadata.Rect, clears []vk.ClearValue) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

/**
 * @brief Render passes and framebuffers built on demand from rendering
 * scopes. Pipelines are created against a pass with the same formats, which
 * Vulkan treats as compatible with any load op combination.
 */
type renderpassCache struct {
	context      *VulkanContext
	passes       map[renderpassKey]*VulkanRenderpass
	framebuffers map[framebufferKey]*VulkanFramebuffer
}

func newRenderpassCache(context *VulkanContext) *renderpassCache {
	return &renderpassCache{
		context:      context,
		passes:       make(map[renderpassKey]*VulkanRenderpass),
		framebuffers: make(map[framebufferKey]*VulkanFramebuffer),
	}
}

func (c *renderpassCache) renderpass(colors []renderpassAttachment, depth *renderpassAttachment) (*VulkanRenderpass, error) {
	key := makeRenderpassKey(colors, depth)
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	var rp *VulkanRenderpass
	err := c.context.lockPool.SafeCall(RenderpassManagement, func() error {
		var err error
		rp, err = RenderpassCreate(c.context, colors, depth)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.passes[key] = rp
	return rp, nil
}

// compatible returns the pass a pipeline with the given formats is built for.
func (c *renderpassCache) compatible(colorFormats []metadata.Format, depthFormat metadata.Format) (*VulkanRenderpass, error) {
	colors := make([]renderpassAttachment, len(colorFormats))
	for i, f := range colorFormats {
		colors[i] = renderpassAttachment{Format: f, Load: metadata.LoadOpLoad}
	}
	var depth *renderpassAttachment
	if depthFormat != metadata.FormatUndefined {
		depth = &renderpassAttachment{Format: depthFormat, Load: metadata.LoadOpLoad}
	}
	return c.renderpass(colors, depth)
}

func (c *renderpassCache) framebuffer(rp *VulkanRenderpass, views []*VulkanImage, width, height uint32) (*VulkanFramebuffer, error) {
	key := makeFramebufferKey(rp, views, width, height)
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(c.context, rp, width, height, views)
	if err != nil {
		return nil, err
	}
	c.framebuffers[key] = fb
	return fb, nil
}

// forgetImage drops every framebuffer that references the image.
func (c *renderpassCache) forgetImage(img *VulkanImage) {
	for key, fb := range c.framebuffers {
		if fb.references(img) {
			fb.Destroy(c.context)
			delete(c.framebuffers, key)
		}
	}
}

// resetFramebuffers is called when the swapchain is recreated.
func (c *renderpassCache) resetFramebuffers() {
	for key, fb := range c.framebuffers {
		fb.Destroy(c.context)
		delete(c.framebuffers, key)
	}
}

func (c *renderpassCache) destroy() {
	c.resetFramebuffers()
	for key, rp := range c.passes {
		rp.RenderpassDestroy(c.context)
		delete(c.passes, key)
	}
}
