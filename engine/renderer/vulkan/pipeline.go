package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// maxPushConstantSize is the minimum every implementation guarantees.
const maxPushConstantSize = 128

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	Name string
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	BindPoint      vk.PipelineBindPoint
	/** @brief The stages push constants are visible to. */
	PushConstantStages vk.ShaderStageFlags
	PushConstantSize   uint32
	// SetCount is the number of descriptor sets the layout declares.
	SetCount uint32
}

type VulkanPipelineConfig struct {
	Name string
	/** @brief The renderpass the pipeline is compatible with. Unused for compute. */
	Renderpass *VulkanRenderpass
	/** @brief Nil when the vertex shader generates its vertices. */
	VertexInput *vertexInput
	/** @brief Descriptor set layouts, indexed by set number. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []vk.PipelineShaderStageCreateInfo
	PushConstantSize     uint32
	ColorAttachmentCount uint32
	DepthTest            bool
	DepthWrite           bool
	Blend                bool
}

func createPipelineLayout(context *VulkanContext, config *VulkanPipelineConfig, stages vk.ShaderStageFlags) (vk.PipelineLayout, error) {
	if config.PushConstantSize > maxPushConstantSize {
		return nil, fmt.Errorf("pipeline %s: push constants of %d bytes exceed %d", config.Name, config.PushConstantSize, maxPushConstantSize)
	}
	if config.PushConstantSize%4 != 0 {
		return nil, fmt.Errorf("pipeline %s: push constant size %d is not 4-byte aligned", config.Name, config.PushConstantSize)
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}
	if config.PushConstantSize > 0 {
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: stages,
			Offset:     0,
			Size:       config.PushConstantSize,
		}}
	}

	var pPipelineLayout vk.PipelineLayout
	err := context.lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreatePipelineLayout failed with %s", VulkanResultString(result, true))
		}
		return nil
	})
	return pPipelineLayout, err
}

func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	outPipeline := &VulkanPipeline{
		Name:               config.Name,
		BindPoint:          vk.PipelineBindPointGraphics,
		PushConstantStages: stages,
		PushConstantSize:   config.PushConstantSize,
		SetCount:           uint32(len(config.DescriptorSetLayouts)),
	}

	// Viewport and scissor are dynamic, only the counts matter.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vk.CompareOpLessOrEqual,
		StencilTestEnable: vk.False,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if config.Blend {
		colorBlendAttachmentState.BlendEnable = vk.True
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, config.ColorAttachmentCount)
	for i := range blendAttachments {
		blendAttachments[i] = colorBlendAttachmentState
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.VertexInput != nil {
		bindingDescription := vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    config.VertexInput.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDescription}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(config.VertexInput.Attributes))
		vertexInputInfo.PVertexAttributeDescriptions = config.VertexInput.Attributes
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	layout, err := createPipelineLayout(context, config, stages)
	if err != nil {
		return nil, err
	}
	outPipeline.PipelineLayout = layout

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := context.lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pPipelines)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateGraphicsPipelines %s failed with %s", config.Name, VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("Graphics pipeline %s created.", config.Name)
	return outPipeline, nil
}

func NewComputePipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	if len(config.Stages) != 1 || config.Stages[0].Stage != vk.ShaderStageComputeBit {
		return nil, fmt.Errorf("compute pipeline %s needs exactly one compute stage", config.Name)
	}
	stages := vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	outPipeline := &VulkanPipeline{
		Name:               config.Name,
		BindPoint:          vk.PipelineBindPointCompute,
		PushConstantStages: stages,
		PushConstantSize:   config.PushConstantSize,
		SetCount:           uint32(len(config.DescriptorSetLayouts)),
	}

	layout, err := createPipelineLayout(context, config, stages)
	if err != nil {
		return nil, err
	}
	outPipeline.PipelineLayout = layout

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              config.Stages[0],
		Layout:             outPipeline.PipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := context.lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pPipelines)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateComputePipelines %s failed with %s", config.Name, VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("Compute pipeline %s created.", config.Name)
	return outPipeline, nil
}

// pipelineFromDesc loads the shader modules of a description and builds the
// pipeline. The modules are released once the pipeline exists.
func pipelineFromDesc(context *VulkanContext, shaderDir string, desc metadata.PipelineDesc, layouts []*VulkanDescriptorSetLayout, rp *VulkanRenderpass) (*VulkanPipeline, error) {
	modules := make([]*VulkanShaderStage, 0, len(desc.Shaders))
	defer func() {
		for _, m := range modules {
			m.Destroy(context)
		}
	}()
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Shaders))
	for _, name := range desc.Shaders {
		m, err := NewShaderModule(context, shaderDir, name)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
		stages = append(stages, m.ShaderStageCreateInfo)
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		setLayouts[i] = l.Handle
	}

	config := &VulkanPipelineConfig{
		Name:                 desc.Name,
		Renderpass:           rp,
		DescriptorSetLayouts: setLayouts,
		Stages:               stages,
		PushConstantSize:     desc.PushConstantSize,
		ColorAttachmentCount: uint32(len(desc.ColorFormats)),
		DepthTest:            desc.DepthTest,
		DepthWrite:           desc.DepthWrite,
		Blend:                desc.Blend,
	}

	if desc.Kind == metadata.PipelineCompute {
		return NewComputePipeline(context, config)
	}
	input, err := vertexInputOf(desc.VertexLayout)
	if err != nil {
		return nil, err
	}
	config.VertexInput = input
	return NewGraphicsPipeline(context, config)
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) error {
	// Destroy pipeline
	if pipeline.Handle != nil {
		if err := context.lockPool.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
			pipeline.Handle = nil
			return nil
		}); err != nil {
			return err
		}
	}
	// Destroy layout
	if pipeline.PipelineLayout != nil {
		if err := context.lockPool.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
			pipeline.PipelineLayout = nil
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer) {
	vk.CmdBindPipeline(commandBuffer.Handle, pipeline.BindPoint, pipeline.Handle)
}
