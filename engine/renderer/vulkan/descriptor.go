package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A descriptor set layout plus the binding types it was declared
 * with, kept so set writes can be checked against it.
 */
type VulkanDescriptorSetLayout struct {
	Name    string
	Handle  vk.DescriptorSetLayout
	Entries map[uint32]metadata.BindingType
}

type VulkanDescriptorSet struct {
	Name   string
	Handle vk.DescriptorSet
	Layout *VulkanDescriptorSetLayout
}

// DescriptorPoolCreate creates the pool every binding set is allocated from.
func DescriptorPoolCreate(context *VulkanContext) (vk.DescriptorPool, error) {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       VULKAN_MAX_BINDING_SETS,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		return nil, vulkanError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

func DescriptorSetLayoutCreate(context *VulkanContext, desc metadata.BindingLayoutDesc) (*VulkanDescriptorSetLayout, error) {
	layout := &VulkanDescriptorSetLayout{Name: desc.Name, Entries: make(map[uint32]metadata.BindingType, len(desc.Entries))}
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		if _, dup := layout.Entries[e.Binding]; dup {
			return nil, fmt.Errorf("layout %s declares binding %d twice", desc.Name, e.Binding)
		}
		t, err := descriptorType(e.Type)
		if err != nil {
			return nil, err
		}
		layout.Entries[e.Binding] = e.Type
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  t,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		})
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var handle vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkCreateDescriptorSetLayout %s", desc.Name), res)
	}
	layout.Handle = handle
	return layout, nil
}

func (l *VulkanDescriptorSetLayout) Destroy(context *VulkanContext) {
	if l.Handle != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = nil
	}
}

// descriptorWrite resolves one binding write into the resources it points at.
type descriptorWrite struct {
	Binding uint32
	Type    metadata.BindingType
	Image   *VulkanImage
	Sampler vk.Sampler
	Buffer  *VulkanBuffer
}

func DescriptorSetAllocate(context *VulkanContext, pool vk.DescriptorPool, name string, layout *VulkanDescriptorSetLayout, writes []descriptorWrite) (*VulkanDescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	var handle vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkAllocateDescriptorSets %s", name), res)
	}
	set := &VulkanDescriptorSet{Name: name, Handle: handle, Layout: layout}

	updates := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		t, err := descriptorType(w.Type)
		if err != nil {
			return nil, err
		}
		update := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  t,
			DescriptorCount: 1,
		}
		switch w.Type {
		case metadata.BindingUniformBuffer:
			update.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(w.Buffer.Size),
			}}
		case metadata.BindingSampledImage:
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if w.Image.Format.IsDepth() {
				layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
			}
			update.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     w.Sampler,
				ImageView:   w.Image.View,
				ImageLayout: layout,
			}}
		case metadata.BindingStorageImage:
			update.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   w.Image.View,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		}
		updates = append(updates, update)
	}
	if len(updates) > 0 {
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(updates)), updates, 0, nil)
	}
	return set, nil
}

func (s *VulkanDescriptorSet) Free(context *VulkanContext, pool vk.DescriptorPool) {
	if s.Handle != nil {
		vk.FreeDescriptorSets(context.Device.LogicalDevice, pool, 1, &s.Handle)
		s.Handle = nil
	}
}
