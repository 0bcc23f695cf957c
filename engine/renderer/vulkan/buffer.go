package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Name        string
	Handle      vk.Buffer
	Memory      vk.DeviceMemory
	Size        uint64
	HostVisible bool
	mapped      []byte
}

// BufferCreate creates a buffer. Host visible buffers are coherent so mapped
// writes need no flush.
func BufferCreate(context *VulkanContext, desc metadata.BufferDesc, extra vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has zero size", desc.Name)
	}
	buffer := &VulkanBuffer{Name: desc.Name, Size: desc.Size, HostVisible: desc.HostVisible}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage) | vk.BufferUsageFlags(extra),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkCreateBuffer %s", desc.Name), res)
	}
	buffer.Handle = handle

	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memory, err := context.allocate(memoryRequirements, properties)
	if err != nil {
		buffer.BufferDestroy(context)
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.BufferDestroy(context)
		return nil, vulkanError("vkBindBufferMemory", res)
	}
	return buffer, nil
}

func (vb *VulkanBuffer) Map(context *VulkanContext) ([]byte, error) {
	if !vb.HostVisible {
		return nil, fmt.Errorf("buffer %s is not host visible", vb.Name)
	}
	if vb.mapped != nil {
		return vb.mapped, nil
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(vb.Size), 0, &data); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkMapMemory %s", vb.Name), res)
	}
	vb.mapped = unsafe.Slice((*byte)(data), vb.Size)
	return vb.mapped, nil
}

func (vb *VulkanBuffer) Unmap(context *VulkanContext) {
	if vb.mapped == nil {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	vb.mapped = nil
}

func (vb *VulkanBuffer) BufferDestroy(context *VulkanContext) {
	vb.Unmap(context)
	if vb.Handle != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
	if vb.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
}
