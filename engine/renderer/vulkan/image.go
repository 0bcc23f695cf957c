package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanImage struct {
	Name   string
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format metadata.Format
	// Swapchain images are owned by the swapchain and never destroyed here.
	Swapchain bool
}

func (vi *VulkanImage) aspect() vk.ImageAspectFlags {
	if vi.Format.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (vi *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vi.aspect(),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (vi *VulkanImage) subresourceLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vi.aspect(),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// ImageCreate creates a device local 2D image with a view over its only mip level.
func ImageCreate(context *VulkanContext, desc metadata.ImageDesc) (*VulkanImage, error) {
	format, err := vulkanFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	image := &VulkanImage{
		Name:   desc.Name,
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkCreateImage %s", desc.Name), res)
	}
	image.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memory, err := context.allocate(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	image.Memory = memory

	if res := vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0); res != vk.Success {
		image.ImageDestroy(context)
		return nil, vulkanError("vkBindImageMemory", res)
	}

	if err := image.createView(context, format); err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	core.LogDebug("image %s created (%dx%d %s)", desc.Name, desc.Width, desc.Height, desc.Format)
	return image, nil
}

func (vi *VulkanImage) createView(context *VulkanContext, format vk.Format) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            vi.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           format,
		SubresourceRange: vi.subresourceRange(),
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return vulkanError(fmt.Sprintf("vkCreateImageView %s", vi.Name), res)
	}
	vi.View = view
	return nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if vi.View != nil {
		vk.DestroyImageView(context.Device.LogicalDevice, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Swapchain {
		return
	}
	if vi.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}
