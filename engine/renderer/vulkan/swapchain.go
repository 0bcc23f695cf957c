package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	lmath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// swapchainFormat is the only surface format the tonemap pass is built for.
const swapchainFormat = vk.FormatB8g8r8a8Srgb

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageCount  uint32
	Extent      vk.Extent2D
	Images      []*VulkanImage
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	// Simply create a new one.
	return createSwapchain(context, width, height, nil)
}

/**
 * @brief Replaces the swapchain with one of the given size. The image count
 * is kept so handles held by the engine stay valid: the returned swapchain
 * reuses the VulkanImage values of the old one.
 */
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	context.RecreatingSwapchain = true
	defer func() { context.RecreatingSwapchain = false }()

	if res := vk.DeviceWaitIdle(context.Device.LogicalDevice); res != vk.Success {
		return nil, vulkanError("vkDeviceWaitIdle", res)
	}
	// Surface capabilities change with the window.
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	next, err := createSwapchain(context, width, height, vs)
	if err != nil {
		return nil, err
	}
	vs.destroySwapchain(context)
	return next, nil
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	vk.DeviceWaitIdle(context.Device.LogicalDevice)
	for _, img := range vs.Images {
		img.ImageDestroy(context)
	}
	vs.destroySwapchain(context)
}

// SwapchainAcquireNextImageIndex returns the index of the next image. An out
// of date swapchain reports core.ErrSwapchainBooting.
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore, fence vk.Fence) (uint32, bool, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, fence, &imageIndex)

	switch result {
	case vk.Success:
		return imageIndex, false, nil
	case vk.Suboptimal:
		// The image was acquired and the semaphore will be signaled.
		return imageIndex, true, nil
	}
	return 0, false, vulkanError("vkAcquireNextImageKHR", result)
}

func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, presentQueue vk.Queue, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) error {
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
		PResults:           nil,
	}

	var result vk.Result
	_ = context.lockPool.SafeQueueCall(uint32(context.Device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(presentQueue, &presentInfo)
		return nil
	})
	return vulkanError("vkQueuePresentKHR", result)
}

func createSwapchain(context *VulkanContext, width, height uint32, old *VulkanSwapchain) (*VulkanSwapchain, error) {
	support := &context.Device.SwapchainSupport
	swapchain := &VulkanSwapchain{}

	// Choose a swap surface format.
	found := false
	for _, format := range support.Formats {
		if format.Format == swapchainFormat && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("surface offers no B8G8R8A8_SRGB format")
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Swapchain extent
	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	extent.Width = lmath.Clamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = lmath.Clamp(extent.Height, minExtent.Height, maxExtent.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("%w: surface has a zero extent", core.ErrSwapchainBooting)
	}
	swapchain.Extent = extent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}
	if old != nil {
		imageCount = old.ImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if old != nil {
		swapchainCreateInfo.OldSwapchain = old.Handle
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		err := vulkanError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	var count uint32
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &count, nil); res != vk.Success {
		swapchain.destroySwapchain(context)
		return nil, vulkanError("vkGetSwapchainImagesKHR", res)
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &count, handles); res != vk.Success {
		swapchain.destroySwapchain(context)
		return nil, vulkanError("vkGetSwapchainImagesKHR", res)
	}
	if old != nil && count != old.ImageCount {
		swapchain.destroySwapchain(context)
		return nil, fmt.Errorf("%w: swapchain image count changed from %d to %d", core.ErrDeviceLost, old.ImageCount, count)
	}
	swapchain.ImageCount = count

	// Views
	swapchain.Images = make([]*VulkanImage, count)
	for i := range handles {
		img := &VulkanImage{}
		if old != nil {
			// Release the view of the retired image and keep the value so
			// handles resolve to the new one.
			img = old.Images[i]
			img.ImageDestroy(context)
		}
		img.Name = fmt.Sprintf("swapchain.%d", i)
		img.Handle = handles[i]
		img.Width = extent.Width
		img.Height = extent.Height
		img.Format = metadata.FormatBGRA8Srgb
		img.Swapchain = true
		if err := img.createView(context, swapchain.ImageFormat.Format); err != nil {
			swapchain.destroySwapchain(context)
			return nil, err
		}
		swapchain.Images[i] = img
	}

	core.LogInfo("Swapchain created successfully (%dx%d, %d images).", extent.Width, extent.Height, count)

	return swapchain, nil
}

// destroySwapchain releases the handle only. Image views belong to the
// VulkanImage values, which outlive a recreation.
func (vs *VulkanSwapchain) destroySwapchain(context *VulkanContext) {
	if vs.Handle != nil {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}
