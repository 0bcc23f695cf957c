package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief The Vulkan state an access mode stands for: the image layout and
 * the access and stage masks a barrier synchronizes with.
 */
type accessState struct {
	Layout vk.ImageLayout
	Access vk.AccessFlagBits
	Stage  vk.PipelineStageFlagBits
}

var accessStates = map[metadata.Access]accessState{
	metadata.AccessUndefined: {
		Layout: vk.ImageLayoutUndefined,
		Stage:  vk.PipelineStageTopOfPipeBit,
	},
	metadata.AccessShaderRead: {
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
		Access: vk.AccessShaderReadBit,
		Stage:  vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit,
	},
	metadata.AccessShaderWrite: {
		Layout: vk.ImageLayoutGeneral,
		Access: vk.AccessShaderReadBit | vk.AccessShaderWriteBit,
		Stage:  vk.PipelineStageComputeShaderBit,
	},
	metadata.AccessColorAttachment: {
		Layout: vk.ImageLayoutColorAttachmentOptimal,
		Access: vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
		Stage:  vk.PipelineStageColorAttachmentOutputBit,
	},
	metadata.AccessDepthAttachment: {
		Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		Access: vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
		Stage:  vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit,
	},
	metadata.AccessDepthRead: {
		Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
		Access: vk.AccessDepthStencilAttachmentReadBit | vk.AccessShaderReadBit,
		Stage: vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit |
			vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit,
	},
	metadata.AccessTransferSrc: {
		Layout: vk.ImageLayoutTransferSrcOptimal,
		Access: vk.AccessTransferReadBit,
		Stage:  vk.PipelineStageTransferBit,
	},
	metadata.AccessTransferDst: {
		Layout: vk.ImageLayoutTransferDstOptimal,
		Access: vk.AccessTransferWriteBit,
		Stage:  vk.PipelineStageTransferBit,
	},
	metadata.AccessPresent: {
		Layout: vk.ImageLayoutPresentSrc,
		Stage:  vk.PipelineStageBottomOfPipeBit,
	},
}

func stateOf(a metadata.Access) (accessState, error) {
	s, ok := accessStates[a]
	if !ok {
		return accessState{}, fmt.Errorf("no image layout for access %s", a)
	}
	return s, nil
}

/**
 * @brief Builds the barrier moving an image between two access modes.
 * Swapchain images leaving Present or Undefined are synchronized with the
 * color output stage the acquire semaphore is waited at, and their old
 * contents are discarded since a recreated swapchain hands out images in
 * an unknown layout.
 */
func imageBarrier(img *VulkanImage, from, to metadata.Access) (vk.ImageMemoryBarrier, vk.PipelineStageFlagBits, vk.PipelineStageFlagBits, error) {
	src, err := stateOf(from)
	if err != nil {
		return vk.ImageMemoryBarrier{}, 0, 0, err
	}
	dst, err := stateOf(to)
	if err != nil {
		return vk.ImageMemoryBarrier{}, 0, 0, err
	}
	oldLayout := src.Layout
	srcStage := src.Stage
	if img.Swapchain && (from == metadata.AccessPresent || from == metadata.AccessUndefined) {
		oldLayout = vk.ImageLayoutUndefined
		srcStage = vk.PipelineStageColorAttachmentOutputBit
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(src.Access),
		DstAccessMask:       vk.AccessFlags(dst.Access),
		OldLayout:           oldLayout,
		NewLayout:           dst.Layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange:    img.subresourceRange(),
	}
	return barrier, srcStage, dst.Stage, nil
}

var formats = map[metadata.Format]vk.Format{
	metadata.FormatRGBA8Unorm: vk.FormatR8g8b8a8Unorm,
	metadata.FormatBGRA8Srgb:  vk.FormatB8g8r8a8Srgb,
	metadata.FormatRGBA16F:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatRG16F:      vk.FormatR16g16Sfloat,
	metadata.FormatR16F:       vk.FormatR16Sfloat,
	metadata.FormatR32F:       vk.FormatR32Sfloat,
	metadata.FormatR32Uint:    vk.FormatR32Uint,
	metadata.FormatD32F:       vk.FormatD32Sfloat,
}

func vulkanFormat(f metadata.Format) (vk.Format, error) {
	vf, ok := formats[f]
	if !ok {
		return vk.FormatUndefined, fmt.Errorf("format %s has no Vulkan equivalent", f)
	}
	return vf, nil
}

func engineFormat(vf vk.Format) (metadata.Format, bool) {
	for f, candidate := range formats {
		if candidate == vf {
			return f, true
		}
	}
	return metadata.FormatUndefined, false
}

func imageUsage(u metadata.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&metadata.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&metadata.ImageUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if u&metadata.ImageUsageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u&metadata.ImageUsageDepthAttachment != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&metadata.ImageUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u&metadata.ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

func bufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&metadata.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&metadata.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&metadata.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func descriptorType(t metadata.BindingType) (vk.DescriptorType, error) {
	switch t {
	case metadata.BindingUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, nil
	case metadata.BindingSampledImage:
		return vk.DescriptorTypeCombinedImageSampler, nil
	case metadata.BindingStorageImage:
		return vk.DescriptorTypeStorageImage, nil
	}
	return 0, fmt.Errorf("unknown binding type %d", t)
}

func loadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}
