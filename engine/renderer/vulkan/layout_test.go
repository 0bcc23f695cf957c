package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestEveryAccessHasALayout(t *testing.T) {
	type spec struct {
		access metadata.Access
		layout vk.ImageLayout
	}
	specs := []spec{
		{metadata.AccessUndefined, vk.ImageLayoutUndefined},
		{metadata.AccessShaderRead, vk.ImageLayoutShaderReadOnlyOptimal},
		{metadata.AccessShaderWrite, vk.ImageLayoutGeneral},
		{metadata.AccessColorAttachment, vk.ImageLayoutColorAttachmentOptimal},
		{metadata.AccessDepthAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{metadata.AccessDepthRead, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{metadata.AccessTransferSrc, vk.ImageLayoutTransferSrcOptimal},
		{metadata.AccessTransferDst, vk.ImageLayoutTransferDstOptimal},
		{metadata.AccessPresent, vk.ImageLayoutPresentSrc},
	}
	for index, s := range specs {
		state, err := stateOf(s.access)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error for %s: %s", index, s.access, err)
		}
		if state.Layout != s.layout {
			t.Fatalf("[spec %d] expected %s to map to layout %d; got %d", index, s.access, s.layout, state.Layout)
		}
		if state.Stage == 0 {
			t.Fatalf("[spec %d] expected %s to name a pipeline stage", index, s.access)
		}
	}
	if _, err := stateOf(metadata.Access(99)); err == nil {
		t.Fatalf("expected an error for an unknown access")
	}
}

func TestImageBarrier(t *testing.T) {
	color := &VulkanImage{Name: "hdr", Format: metadata.FormatRGBA16F}
	depth := &VulkanImage{Name: "depth", Format: metadata.FormatD32F}
	swap := &VulkanImage{Name: "swapchain.0", Format: metadata.FormatBGRA8Srgb, Swapchain: true}

	type spec struct {
		img       *VulkanImage
		from, to  metadata.Access
		oldLayout vk.ImageLayout
		newLayout vk.ImageLayout
		srcStage  vk.PipelineStageFlagBits
		aspect    vk.ImageAspectFlags
	}
	specs := []spec{
		{color, metadata.AccessColorAttachment, metadata.AccessShaderRead,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageColorAttachmentOutputBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{depth, metadata.AccessDepthAttachment, metadata.AccessDepthRead,
			vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutDepthStencilReadOnlyOptimal,
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit, vk.ImageAspectFlags(vk.ImageAspectDepthBit)},
		// swapchain contents are discarded when the image comes back from presentation
		{swap, metadata.AccessPresent, metadata.AccessColorAttachment,
			vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.PipelineStageColorAttachmentOutputBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{swap, metadata.AccessUndefined, metadata.AccessColorAttachment,
			vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.PipelineStageColorAttachmentOutputBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{swap, metadata.AccessColorAttachment, metadata.AccessPresent,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc,
			vk.PipelineStageColorAttachmentOutputBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	}
	for index, s := range specs {
		b, src, _, err := imageBarrier(s.img, s.from, s.to)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %s", index, err)
		}
		if b.OldLayout != s.oldLayout || b.NewLayout != s.newLayout {
			t.Fatalf("[spec %d] expected layouts %d -> %d; got %d -> %d", index, s.oldLayout, s.newLayout, b.OldLayout, b.NewLayout)
		}
		if src != s.srcStage {
			t.Fatalf("[spec %d] expected source stage %#x; got %#x", index, s.srcStage, src)
		}
		if b.SubresourceRange.AspectMask != s.aspect {
			t.Fatalf("[spec %d] expected aspect %#x; got %#x", index, s.aspect, b.SubresourceRange.AspectMask)
		}
	}
}

func TestFormatsRoundTrip(t *testing.T) {
	all := []metadata.Format{
		metadata.FormatRGBA8Unorm, metadata.FormatBGRA8Srgb, metadata.FormatRGBA16F, metadata.FormatRG16F,
		metadata.FormatR16F, metadata.FormatR32F, metadata.FormatR32Uint, metadata.FormatD32F,
	}
	for index, f := range all {
		vf, err := vulkanFormat(f)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error for %s: %s", index, f, err)
		}
		back, ok := engineFormat(vf)
		if !ok || back != f {
			t.Fatalf("[spec %d] expected %s to round trip; got %s", index, f, back)
		}
	}
	if _, err := vulkanFormat(metadata.FormatUndefined); err == nil {
		t.Fatalf("expected an error for the undefined format")
	}
}

func TestUsageFlags(t *testing.T) {
	type spec struct {
		usage metadata.ImageUsage
		exp   vk.ImageUsageFlagBits
	}
	specs := []spec{
		{metadata.ImageUsageSampled, vk.ImageUsageSampledBit},
		{metadata.ImageUsageSampled | metadata.ImageUsageStorage, vk.ImageUsageSampledBit | vk.ImageUsageStorageBit},
		{metadata.ImageUsageDepthAttachment | metadata.ImageUsageTransferSrc, vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageTransferSrcBit},
		{0, 0},
	}
	for index, s := range specs {
		if got := imageUsage(s.usage); got != vk.ImageUsageFlags(s.exp) {
			t.Fatalf("[spec %d] expected usage %#x; got %#x", index, s.exp, got)
		}
	}
	if got := bufferUsage(metadata.BufferUsageVertex | metadata.BufferUsageIndex); got != vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit) {
		t.Fatalf("expected vertex and index usage; got %#x", got)
	}
}

func TestDescriptorTypesAndLoadOps(t *testing.T) {
	type spec struct {
		binding metadata.BindingType
		exp     vk.DescriptorType
	}
	specs := []spec{
		{metadata.BindingUniformBuffer, vk.DescriptorTypeUniformBuffer},
		{metadata.BindingSampledImage, vk.DescriptorTypeCombinedImageSampler},
		{metadata.BindingStorageImage, vk.DescriptorTypeStorageImage},
	}
	for index, s := range specs {
		got, err := descriptorType(s.binding)
		if err != nil || got != s.exp {
			t.Fatalf("[spec %d] expected descriptor type %d; got %d (%v)", index, s.exp, got, err)
		}
	}
	if _, err := descriptorType(metadata.BindingType(7)); err == nil {
		t.Fatalf("expected an error for an unknown binding type")
	}

	if loadOp(metadata.LoadOpClear) != vk.AttachmentLoadOpClear ||
		loadOp(metadata.LoadOpDontCare) != vk.AttachmentLoadOpDontCare ||
		loadOp(metadata.LoadOpLoad) != vk.AttachmentLoadOpLoad {
		t.Fatalf("unexpected load op mapping")
	}
}

func TestVertexInputLayouts(t *testing.T) {
	type spec struct {
		layout     metadata.VertexLayout
		stride     uint32
		attributes int
	}
	specs := []spec{
		{metadata.VertexLayout3D, 48, 4},
		{metadata.VertexLayout2D, 20, 3},
	}
	for index, s := range specs {
		in, err := vertexInputOf(s.layout)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %s", index, err)
		}
		if in.Stride != s.stride || len(in.Attributes) != s.attributes {
			t.Fatalf("[spec %d] expected stride %d with %d attributes; got %d with %d", index, s.stride, s.attributes, in.Stride, len(in.Attributes))
		}
		last := in.Attributes[len(in.Attributes)-1]
		if last.Offset >= in.Stride {
			t.Fatalf("[spec %d] attribute offset %d outside stride %d", index, last.Offset, in.Stride)
		}
	}
	if in, err := vertexInputOf(metadata.VertexLayoutNone); err != nil || in != nil {
		t.Fatalf("expected no vertex input for generated vertices; got %v (%v)", in, err)
	}
}

func TestShaderStageFromName(t *testing.T) {
	type spec struct {
		name  string
		stage vk.ShaderStageFlagBits
		fails bool
	}
	specs := []spec{
		{"fullscreen.vert", vk.ShaderStageVertexBit, false},
		{"tonemap.frag", vk.ShaderStageFragmentBit, false},
		{"ssao.comp", vk.ShaderStageComputeBit, false},
		{"ui.glsl", 0, true},
	}
	for index, s := range specs {
		stage, err := shaderStageOf(s.name)
		if (err != nil) != s.fails {
			t.Fatalf("[spec %d] expected failure %t for %s; got %v", index, s.fails, s.name, err)
		}
		if !s.fails && stage != s.stage {
			t.Fatalf("[spec %d] expected stage %#x for %s; got %#x", index, s.stage, s.name, stage)
		}
	}
}

func TestRenderpassKeys(t *testing.T) {
	colors := []renderpassAttachment{{Format: metadata.FormatRGBA16F, Load: metadata.LoadOpClear}}
	depth := &renderpassAttachment{Format: metadata.FormatD32F, Load: metadata.LoadOpLoad}
	readOnly := &renderpassAttachment{Format: metadata.FormatD32F, Load: metadata.LoadOpLoad, ReadOnly: true}

	if makeRenderpassKey(colors, depth) != makeRenderpassKey(colors, depth) {
		t.Fatalf("expected identical attachments to share a key")
	}
	if makeRenderpassKey(colors, depth) == makeRenderpassKey(colors, readOnly) {
		t.Fatalf("expected a read-only depth attachment to get its own pass")
	}
	if makeRenderpassKey(colors, nil) == makeRenderpassKey(colors, depth) {
		t.Fatalf("expected the depth attachment to be part of the key")
	}
}

func TestVulkanErrorClassification(t *testing.T) {
	type spec struct {
		result vk.Result
		target error
	}
	specs := []spec{
		{vk.ErrorOutOfDate, core.ErrSwapchainBooting},
		{vk.Suboptimal, core.ErrSwapchainBooting},
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
	}
	for index, s := range specs {
		if err := vulkanError("op", s.result); !errors.Is(err, s.target) {
			t.Fatalf("[spec %d] expected %v to wrap %v", index, err, s.target)
		}
	}
	if err := vulkanError("op", vk.Success); err != nil {
		t.Fatalf("expected success to be nil; got %s", err)
	}
	if err := vulkanError("op", vk.ErrorOutOfHostMemory); err == nil || errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("expected a plain error for out of host memory; got %v", err)
	}
}
