package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

// framebufferKey identifies a framebuffer by its pass, its attachment
// views and its size.
type framebufferKey struct {
	renderpass    *VulkanRenderpass
	views         string
	width, height uint32
}

func makeFramebufferKey(rp *VulkanRenderpass, images []*VulkanImage, width, height uint32) framebufferKey {
	var b strings.Builder
	for _, img := range images {
		fmt.Fprintf(&b, "%p;", img.View)
	}
	return framebufferKey{renderpass: rp, views: b.String(), width: width, height: height}
}

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Images      []*VulkanImage
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, images []*VulkanImage) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Images:      append([]*VulkanImage(nil), images...),
		Attachments: make([]vk.ImageView, len(images)),
		Renderpass:  renderpass,
	}
	for i, img := range images {
		outFramebuffer.Attachments[i] = img.View
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer: %w", vulkanError("vkCreateFramebuffer", res))
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) references(img *VulkanImage) bool {
	for _, candidate := range vfb.Images {
		if candidate == img {
			return true
		}
	}
	return false
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Handle = nil
	vfb.Images = nil
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
