package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

var ErrFenceNeverSubmitted = errors.New("fence was never submitted, waiting on it would deadlock")

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
	// Submitted is set once a queue submission will signal the fence.
	Submitted bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := vulkanError("vkCreateFence", res)
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != nil {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
	vf.Submitted = false
}

func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	if !vf.Submitted {
		return ErrFenceNeverSubmitted
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return vulkanError("vkWaitForFences", result)
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := vulkanError("vkResetFences", res)
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	vf.Submitted = false
	return nil
}

func NewSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore); res != vk.Success {
		return vk.NullSemaphore, fmt.Errorf("failed to create semaphore: %w", vulkanError("vkCreateSemaphore", res))
	}
	return semaphore, nil
}
