package vulkan

import (
	"fmt"
	"os"
	"path/filepath"

	vk "github.com/goki/vulkan"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

var shaderStages = map[string]vk.ShaderStageFlagBits{
	".vert": vk.ShaderStageVertexBit,
	".frag": vk.ShaderStageFragmentBit,
	".comp": vk.ShaderStageComputeBit,
}

// shaderStageOf derives the stage from the extension of a shader name such as
// "tonemap.frag".
func shaderStageOf(name string) (vk.ShaderStageFlagBits, error) {
	stage, ok := shaderStages[filepath.Ext(name)]
	if !ok {
		return 0, fmt.Errorf("shader %s has no known stage extension", name)
	}
	return stage, nil
}

// NewShaderModule loads <dir>/<name>.spv and wraps it in a stage.
func NewShaderModule(context *VulkanContext, dir, name string) (*VulkanShaderStage, error) {
	stage, err := shaderStageOf(name)
	if err != nil {
		return nil, err
	}
	fileName := filepath.Join(dir, name+".spv")
	code, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("unable to read shader module %s: %w", fileName, err)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader module %s is not SPIR-V (size %d)", fileName, len(code))
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    spirvWords(code),
	}
	shaderStage := &VulkanShaderStage{}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &shaderStage.Handle); res != vk.Success {
		return nil, vulkanError(fmt.Sprintf("vkCreateShaderModule %s", name), res)
	}

	shaderStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: shaderStage.Handle,
		PName:  VulkanSafeString(VULKAN_SHADER_ENTRY_POINT),
	}
	return shaderStage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
