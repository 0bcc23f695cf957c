package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain *VulkanSwapchain

	lockPool *VulkanLockPool

	RecreatingSwapchain bool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate backs a resource with memory of the requested properties.
func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := vc.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if index < 0 {
		return nil, fmt.Errorf("no memory type matches properties %#x", uint32(properties))
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory); res != vk.Success {
		return nil, vulkanError("vkAllocateMemory", res)
	}
	return memory, nil
}
