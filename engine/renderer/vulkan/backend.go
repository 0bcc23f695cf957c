// Package vulkan implements the device contract on top of Vulkan. Images
// are presented through a glfw window surface and rendering scopes are
// mapped onto cached single subpass render passes.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform/desktop"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var ErrFenceInFlight = errors.New("fence is still in flight, wait and reset it before reuse")

type Options struct {
	Platform *desktop.Platform
	AppName  string
	// ShaderDir holds the compiled <name>.spv modules pipelines refer to.
	ShaderDir  string
	Validation bool
}

type Device struct {
	mu      sync.Mutex
	opts    Options
	context *VulkanContext
	pool    vk.DescriptorPool
	cache   *renderpassCache

	next       uint64
	images     map[metadata.ImageHandle]*VulkanImage
	buffers    map[metadata.BufferHandle]*VulkanBuffer
	samplers   map[metadata.SamplerHandle]vk.Sampler
	layouts    map[metadata.BindingLayoutHandle]*VulkanDescriptorSetLayout
	sets       map[metadata.BindingSetHandle]*VulkanDescriptorSet
	pipelines  map[metadata.PipelineHandle]*VulkanPipeline
	semaphores map[metadata.SemaphoreHandle]vk.Semaphore
	fences     map[metadata.FenceHandle]*VulkanFence
	lists      map[*CommandList]struct{}

	swapchain []metadata.ImageHandle
	// set when presentation reported the swapchain out of date
	stale bool
	shut  bool
}

/**
 * @brief Creates the instance, the window surface, the logical device and
 * the swapchain. The platform window must already be open.
 */
func New(opts Options) (*Device, error) {
	if opts.Platform == nil || opts.Platform.Window == nil {
		return nil, fmt.Errorf("vulkan device needs an open window")
	}
	width, height, _ := opts.Platform.FramebufferSize()
	d := &Device{
		opts: opts,
		context: &VulkanContext{
			FramebufferWidth:  width,
			FramebufferHeight: height,
			Allocator:         nil,
			Device:            &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1},
			lockPool:          NewVulkanLockPool(),
		},
		images:     make(map[metadata.ImageHandle]*VulkanImage),
		buffers:    make(map[metadata.BufferHandle]*VulkanBuffer),
		samplers:   make(map[metadata.SamplerHandle]vk.Sampler),
		layouts:    make(map[metadata.BindingLayoutHandle]*VulkanDescriptorSetLayout),
		sets:       make(map[metadata.BindingSetHandle]*VulkanDescriptorSet),
		pipelines:  make(map[metadata.PipelineHandle]*VulkanPipeline),
		semaphores: make(map[metadata.SemaphoreHandle]vk.Semaphore),
		fences:     make(map[metadata.FenceHandle]*VulkanFence),
		lists:      make(map[*CommandList]struct{}),
	}
	if err := d.initialize(); err != nil {
		d.Shutdown()
		return nil, err
	}
	return d, nil
}

func (d *Device) initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := d.createInstance(); err != nil {
		return err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := d.opts.Platform.Window.CreateWindowSurface(d.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Compute:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		DiscreteGPU:          false,
		ColorFormats: []vk.Format{
			vk.FormatR8g8b8a8Unorm,
			vk.FormatR16g16b16a16Sfloat,
			vk.FormatR16g16Sfloat,
			vk.FormatR16Sfloat,
			vk.FormatR32Sfloat,
			vk.FormatR32Uint,
		},
		DepthFormat: vk.FormatD32Sfloat,
	}
	if err := DeviceCreate(d.context, requirements); err != nil {
		core.LogError("Failed to create device: %s", err)
		return err
	}

	// Swapchain
	sc, err := SwapchainCreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
	if err != nil {
		return err
	}
	d.context.Swapchain = sc
	for _, img := range sc.Images {
		h := metadata.ImageHandle(d.handle())
		d.images[h] = img
		d.swapchain = append(d.swapchain, h)
	}

	pool, err := DescriptorPoolCreate(d.context)
	if err != nil {
		return err
	}
	d.pool = pool
	d.cache = newRenderpassCache(d.context)

	core.LogInfo("Vulkan device initialized successfully.")
	return nil
}

func (d *Device) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.opts.AppName),
		PEngineName:        VulkanSafeString("Lumen Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := d.opts.Platform.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if d.opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var layers []string
	if d.opts.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return vulkanError("vkEnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return vulkanError("vkEnumerateInstanceLayerProperties", res)
		}

		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			if cString(availableLayers[j].LayerName[:]) == validationLayer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", validationLayer)
		}
		layers = append(layers, validationLayer)
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	d.context.Instance = instance
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if d.opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) image(h metadata.ImageHandle) (*VulkanImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return nil, fmt.Errorf("image %d: %w", h, metadata.ErrInvalidHandle)
	}
	return img, nil
}

func (d *Device) buffer(h metadata.BufferHandle) (*VulkanBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", h, metadata.ErrInvalidHandle)
	}
	return b, nil
}

func (d *Device) set(h metadata.BindingSetHandle) (*VulkanDescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[h]
	if !ok {
		return nil, fmt.Errorf("binding set %d: %w", h, metadata.ErrInvalidHandle)
	}
	return s, nil
}

func (d *Device) pipeline(h metadata.PipelineHandle) (*VulkanPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	if !ok {
		return nil, fmt.Errorf("pipeline %d: %w", h, metadata.ErrInvalidHandle)
	}
	return p, nil
}

/**
 * @brief Resolves a rendering scope into a render pass, a framebuffer and
 * the clear values of its attachments. The framebuffer covers the smallest
 * attachment so a scope sized for a previous swapchain stays valid.
 */
func (d *Device) beginRendering(info metadata.RenderingInfo) (*VulkanRenderpass, *VulkanFramebuffer, []vk.ClearValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := len(info.Color)
	if info.Depth != nil {
		count++
	}
	if count == 0 {
		return nil, nil, nil, errors.New("no attachments")
	}
	images := make([]*VulkanImage, 0, count)
	clears := make([]vk.ClearValue, 0, count)
	colors := make([]renderpassAttachment, 0, len(info.Color))
	for _, a := range info.Color {
		img, ok := d.images[a.Image]
		if !ok {
			return nil, nil, nil, fmt.Errorf("color attachment %d: %w", a.Image, metadata.ErrInvalidHandle)
		}
		images = append(images, img)
		colors = append(colors, renderpassAttachment{Format: img.Format, Load: a.Load})
		clears = append(clears, vk.NewClearValue(a.Clear[:]))
	}
	var depth *renderpassAttachment
	if info.Depth != nil {
		img, ok := d.images[info.Depth.Image]
		if !ok {
			return nil, nil, nil, fmt.Errorf("depth attachment %d: %w", info.Depth.Image, metadata.ErrInvalidHandle)
		}
		images = append(images, img)
		depth = &renderpassAttachment{Format: img.Format, Load: info.Depth.Load, ReadOnly: info.Depth.ReadOnly}
		clears = append(clears, vk.NewClearDepthStencil(info.Depth.Clear[0], 0))
	}

	width, height := images[0].Width, images[0].Height
	for _, img := range images[1:] {
		width = min(width, img.Width)
		height = min(height, img.Height)
	}
	if info.Area.X < 0 || info.Area.Y < 0 || uint32(info.Area.X)+info.Area.Width > width || uint32(info.Area.Y)+info.Area.Height > height {
		return nil, nil, nil, fmt.Errorf("render area %+v exceeds attachments of %dx%d", info.Area, width, height)
	}

	rp, err := d.cache.renderpass(colors, depth)
	if err != nil {
		return nil, nil, nil, err
	}
	fb, err := d.cache.framebuffer(rp, images, width, height)
	if err != nil {
		return nil, nil, nil, err
	}
	return rp, fb, clears, nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var img *VulkanImage
	err := d.context.lockPool.SafeCall(ResourceManagement, func() error {
		var err error
		img, err = ImageCreate(d.context, desc)
		return err
	})
	if err != nil {
		return metadata.NullHandle, fmt.Errorf("image %s: %w", desc.Name, err)
	}
	h := metadata.ImageHandle(d.handle())
	d.images[h] = img
	return h, nil
}

// UploadImage copies the texels through a staging buffer on a single use
// command buffer and waits for the copy to finish.
func (d *Device) UploadImage(h metadata.ImageHandle, pixels []byte) error {
	img, err := d.image(h)
	if err != nil {
		return err
	}
	size := uint64(img.Width) * uint64(img.Height) * uint64(img.Format.BytesPerTexel())
	if uint64(len(pixels)) != size {
		return fmt.Errorf("upload %s: expected %d bytes, got %d", img.Name, size, len(pixels))
	}

	staging, err := BufferCreate(d.context, metadata.BufferDesc{Name: img.Name + ".staging", Size: size, HostVisible: true}, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return err
	}
	defer staging.BufferDestroy(d.context)
	mapped, err := staging.Map(d.context)
	if err != nil {
		return err
	}
	copy(mapped, pixels)
	staging.Unmap(d.context)

	pool := d.context.Device.GraphicsCommandPool
	var cb *VulkanCommandBuffer
	if err := d.context.lockPool.SafeCall(CommandBufferManagement, func() error {
		var err error
		cb, err = AllocateAndBeginSingleUse(d.context, pool)
		return err
	}); err != nil {
		return err
	}

	toDst, srcStage, dstStage, err := imageBarrier(img, metadata.AccessUndefined, metadata.AccessTransferDst)
	if err != nil {
		cb.Free(d.context, pool)
		return err
	}
	vk.CmdPipelineBarrier(cb.Handle, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toDst})

	region := vk.BufferImageCopy{
		ImageSubresource: img.subresourceLayers(),
		ImageExtent:      vk.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	toRead, srcStage, dstStage, err := imageBarrier(img, metadata.AccessTransferDst, img.Format.ReadAccess())
	if err != nil {
		cb.Free(d.context, pool)
		return err
	}
	vk.CmdPipelineBarrier(cb.Handle, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toRead})

	return cb.EndSingleUse(d.context, pool, d.context.Device.GraphicsQueue)
}

func (d *Device) DestroyImage(h metadata.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok || img.Swapchain {
		return
	}
	d.cache.forgetImage(img)
	img.ImageDestroy(d.context)
	delete(d.images, h)
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var extra vk.BufferUsageFlagBits
	if desc.HostVisible {
		// host visible buffers double as readback targets
		extra = vk.BufferUsageTransferDstBit
	}
	var buf *VulkanBuffer
	err := d.context.lockPool.SafeCall(ResourceManagement, func() error {
		var err error
		buf, err = BufferCreate(d.context, desc, extra)
		return err
	})
	if err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.BufferHandle(d.handle())
	d.buffers[h] = buf
	return h, nil
}

func (d *Device) MapBuffer(h metadata.BufferHandle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, metadata.ErrInvalidHandle
	}
	return b.Map(d.context)
}

func (d *Device) UnmapBuffer(h metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		b.Unmap(d.context)
	}
}

func (d *Device) DestroyBuffer(h metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		b.BufferDestroy(d.context)
		delete(d.buffers, h)
	}
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	filter := vk.FilterNearest
	if desc.Filter == metadata.FilterLinear {
		filter = vk.FilterLinear
	}
	address := vk.SamplerAddressModeClampToEdge
	if desc.Address == metadata.AddressRepeat {
		address = vk.SamplerAddressModeRepeat
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.context.Device.LogicalDevice, &samplerInfo, d.context.Allocator, &sampler); res != vk.Success {
		return metadata.NullHandle, vulkanError(fmt.Sprintf("vkCreateSampler %s", desc.Name), res)
	}
	h := metadata.SamplerHandle(d.handle())
	d.samplers[h] = sampler
	return h, nil
}

func (d *Device) DestroySampler(h metadata.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[h]; ok {
		vk.DestroySampler(d.context.Device.LogicalDevice, s, d.context.Allocator)
		delete(d.samplers, h)
	}
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (metadata.BindingLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var layout *VulkanDescriptorSetLayout
	err := d.context.lockPool.SafeCall(DescriptorManagement, func() error {
		var err error
		layout, err = DescriptorSetLayoutCreate(d.context, desc)
		return err
	})
	if err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.BindingLayoutHandle(d.handle())
	d.layouts[h] = layout
	return h, nil
}

func (d *Device) DestroyBindingLayout(h metadata.BindingLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.layouts[h]; ok {
		l.Destroy(d.context)
		delete(d.layouts, h)
	}
}

func (d *Device) CreateBindingSet(desc metadata.BindingSetDesc) (metadata.BindingSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layout, ok := d.layouts[desc.Layout]
	if !ok {
		return metadata.NullHandle, fmt.Errorf("binding set %s: %w", desc.Name, metadata.ErrInvalidHandle)
	}
	writes := make([]descriptorWrite, 0, len(desc.Writes))
	for _, w := range desc.Writes {
		t, ok := layout.Entries[w.Binding]
		if !ok {
			return metadata.NullHandle, fmt.Errorf("binding set %s writes binding %d missing from layout %s", desc.Name, w.Binding, layout.Name)
		}
		write := descriptorWrite{Binding: w.Binding, Type: t}
		switch t {
		case metadata.BindingUniformBuffer:
			if write.Buffer, ok = d.buffers[w.Buffer]; !ok {
				return metadata.NullHandle, fmt.Errorf("binding set %s binding %d: %w", desc.Name, w.Binding, metadata.ErrInvalidHandle)
			}
		case metadata.BindingSampledImage:
			if write.Sampler, ok = d.samplers[w.Sampler]; !ok {
				return metadata.NullHandle, fmt.Errorf("binding set %s binding %d sampler: %w", desc.Name, w.Binding, metadata.ErrInvalidHandle)
			}
			fallthrough
		default:
			if write.Image, ok = d.images[w.Image]; !ok {
				return metadata.NullHandle, fmt.Errorf("binding set %s binding %d: %w", desc.Name, w.Binding, metadata.ErrInvalidHandle)
			}
		}
		writes = append(writes, write)
	}

	var set *VulkanDescriptorSet
	err := d.context.lockPool.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = DescriptorSetAllocate(d.context, d.pool, desc.Name, layout, writes)
		return err
	})
	if err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.BindingSetHandle(d.handle())
	d.sets[h] = set
	return h, nil
}

func (d *Device) DestroyBindingSet(h metadata.BindingSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sets[h]; ok {
		s.Free(d.context, d.pool)
		delete(d.sets, h)
	}
}

// CreatePipeline ignores the CPU kernel of the description.
func (d *Device) CreatePipeline(desc metadata.PipelineDesc) (metadata.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layouts := make([]*VulkanDescriptorSetLayout, len(desc.Layouts))
	for i, l := range desc.Layouts {
		layout, ok := d.layouts[l]
		if !ok {
			return metadata.NullHandle, fmt.Errorf("pipeline %s: %w", desc.Name, metadata.ErrInvalidHandle)
		}
		layouts[i] = layout
	}
	var rp *VulkanRenderpass
	if desc.Kind == metadata.PipelineGraphics {
		var err error
		if rp, err = d.cache.compatible(desc.ColorFormats, desc.DepthFormat); err != nil {
			return metadata.NullHandle, fmt.Errorf("pipeline %s: %w", desc.Name, err)
		}
	}
	p, err := pipelineFromDesc(d.context, d.opts.ShaderDir, desc, layouts, rp)
	if err != nil {
		return metadata.NullHandle, fmt.Errorf("pipeline %s: %w", desc.Name, err)
	}
	h := metadata.PipelineHandle(d.handle())
	d.pipelines[h] = p
	return h, nil
}

func (d *Device) DestroyPipeline(h metadata.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[h]; ok {
		if err := p.Destroy(d.context); err != nil {
			core.LogWarn("destroying pipeline %s: %s", p.Name, err)
		}
		delete(d.pipelines, h)
	}
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := NewSemaphore(d.context)
	if err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.SemaphoreHandle(d.handle())
	d.semaphores[h] = s
	return h, nil
}

func (d *Device) DestroySemaphore(h metadata.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.semaphores[h]; ok {
		vk.DestroySemaphore(d.context.Device.LogicalDevice, s, d.context.Allocator)
		delete(d.semaphores, h)
	}
}

func (d *Device) CreateFence() (metadata.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := NewFence(d.context, false)
	if err != nil {
		return metadata.NullHandle, err
	}
	h := metadata.FenceHandle(d.handle())
	d.fences[h] = f
	return h, nil
}

func (d *Device) fence(h metadata.FenceHandle) (*VulkanFence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return nil, metadata.ErrInvalidHandle
	}
	return f, nil
}

// WaitFence blocks without holding the device lock so other threads can
// keep creating resources.
func (d *Device) WaitFence(h metadata.FenceHandle) error {
	f, err := d.fence(h)
	if err != nil {
		return err
	}
	return f.FenceWait(d.context, VULKAN_WAIT_FOREVER)
}

func (d *Device) ResetFence(h metadata.FenceHandle) error {
	f, err := d.fence(h)
	if err != nil {
		return err
	}
	return f.FenceReset(d.context)
}

func (d *Device) DestroyFence(h metadata.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[h]; ok {
		f.FenceDestroy(d.context)
		delete(d.fences, h)
	}
}

func (d *Device) NewCommandList(name string) (metadata.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cb *VulkanCommandBuffer
	err := d.context.lockPool.SafeCall(CommandBufferManagement, func() error {
		var err error
		cb, err = NewVulkanCommandBuffer(d.context, d.context.Device.GraphicsCommandPool, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("command list %s: %w", name, err)
	}
	cl := &CommandList{device: d, name: name, buffer: cb}
	d.lists[cl] = struct{}{}
	return cl, nil
}

func (d *Device) FreeCommandList(l metadata.CommandList) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cl, ok := l.(*CommandList)
	if !ok {
		return
	}
	if _, ok := d.lists[cl]; !ok {
		return
	}
	_ = d.context.lockPool.SafeCall(CommandBufferManagement, func() error {
		cl.buffer.Free(d.context, d.context.Device.GraphicsCommandPool)
		return nil
	})
	delete(d.lists, cl)
}

func (d *Device) SwapchainImages() []metadata.ImageHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.ImageHandle(nil), d.swapchain...)
}

func (d *Device) SwapchainFormat() metadata.Format {
	return metadata.FormatBGRA8Srgb
}

func (d *Device) SwapchainExtent() metadata.Extent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return metadata.Extent{Width: d.context.Swapchain.Extent.Width, Height: d.context.Swapchain.Extent.Height}
}

/**
 * @brief Replaces the swapchain after a resize. Framebuffers built on the
 * old swapchain views are dropped first. The caller holds the device lock.
 */
func (d *Device) recreateSwapchain(width, height uint32) error {
	if res := vk.DeviceWaitIdle(d.context.Device.LogicalDevice); res != vk.Success {
		return vulkanError("vkDeviceWaitIdle", res)
	}
	for _, img := range d.context.Swapchain.Images {
		d.cache.forgetImage(img)
	}
	var sc *VulkanSwapchain
	err := d.context.lockPool.SafeCall(SwapchainManagement, func() error {
		var err error
		sc, err = d.context.Swapchain.SwapchainRecreate(d.context, width, height)
		return err
	})
	if err != nil {
		return err
	}
	d.context.Swapchain = sc
	d.context.FramebufferWidth = width
	d.context.FramebufferHeight = height
	d.stale = false
	core.LogInfo("swapchain recreated (%dx%d)", sc.Extent.Width, sc.Extent.Height)
	return nil
}

// AcquireNextImage reports core.ErrSwapchainBooting for frames that have to
// be skipped while the swapchain follows the window size.
func (d *Device) AcquireNextImage(signal metadata.SemaphoreHandle) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.semaphores[signal]
	if !ok {
		return 0, metadata.ErrInvalidHandle
	}

	width, height, changed := d.opts.Platform.FramebufferSize()
	if changed || d.stale {
		if width == 0 || height == 0 {
			d.stale = true
			return 0, fmt.Errorf("%w: window is minimized", core.ErrSwapchainBooting)
		}
		if err := d.recreateSwapchain(width, height); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: swapchain recreated", core.ErrSwapchainBooting)
	}

	idx, suboptimal, err := d.context.Swapchain.SwapchainAcquireNextImageIndex(d.context, VULKAN_WAIT_FOREVER, sem, vk.NullFence)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			d.stale = true
		}
		return 0, err
	}
	if suboptimal {
		// the image is usable, recreate after it was presented
		d.stale = true
	}
	return idx, nil
}

func (d *Device) Submit(info metadata.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	handles := make([]vk.CommandBuffer, 0, len(info.Lists))
	buffers := make([]*VulkanCommandBuffer, 0, len(info.Lists))
	for _, l := range info.Lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("submit: foreign command list %T", l)
		}
		if cl.err != nil || cl.buffer.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("submit: command list %s is not executable", cl.name)
		}
		handles = append(handles, cl.buffer.Handle)
		buffers = append(buffers, cl.buffer)
	}
	wait := make([]vk.Semaphore, len(info.Wait))
	stages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i, h := range info.Wait {
		s, ok := d.semaphores[h]
		if !ok {
			return fmt.Errorf("submit wait: %w", metadata.ErrInvalidHandle)
		}
		wait[i] = s
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	signal := make([]vk.Semaphore, len(info.Signal))
	for i, h := range info.Signal {
		s, ok := d.semaphores[h]
		if !ok {
			return fmt.Errorf("submit signal: %w", metadata.ErrInvalidHandle)
		}
		signal[i] = s
	}
	fenceHandle := vk.NullFence
	var f *VulkanFence
	if info.Fence != metadata.NullHandle {
		var ok bool
		if f, ok = d.fences[info.Fence]; !ok {
			return fmt.Errorf("submit fence: %w", metadata.ErrInvalidHandle)
		}
		if f.Submitted || f.IsSignaled {
			return fmt.Errorf("submit: %w", ErrFenceInFlight)
		}
		fenceHandle = f.Handle
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(handles)),
		PCommandBuffers:      handles,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	err := d.context.lockPool.SafeQueueCall(d.context.Device.GraphicsQueueFamily(), func() error {
		if res := vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
			return vulkanError("vkQueueSubmit", res)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, b := range buffers {
		b.UpdateSubmitted()
	}
	if f != nil {
		f.Submitted = true
	}
	return nil
}

func (d *Device) Present(index uint32, wait metadata.SemaphoreHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.swapchain) {
		return fmt.Errorf("present: swapchain index %d out of range", index)
	}
	sem, ok := d.semaphores[wait]
	if !ok {
		return fmt.Errorf("present: %w", metadata.ErrInvalidHandle)
	}
	err := d.context.Swapchain.SwapchainPresent(d.context, d.context.Device.PresentQueue, sem, index)
	if errors.Is(err, core.ErrSwapchainBooting) {
		d.stale = true
	}
	return err
}

func (d *Device) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.context.Device.LogicalDevice); res != vk.Success {
		return vulkanError("vkDeviceWaitIdle", res)
	}
	return nil
}

// Shutdown releases everything in the opposite order of creation. It is
// safe on a partially initialized device.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shut {
		return nil
	}
	d.shut = true

	ctx := d.context
	if ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)

		for cl := range d.lists {
			cl.buffer.Free(ctx, ctx.Device.GraphicsCommandPool)
		}
		for _, p := range d.pipelines {
			p.Destroy(ctx)
		}
		for _, s := range d.sets {
			s.Free(ctx, d.pool)
		}
		for _, l := range d.layouts {
			l.Destroy(ctx)
		}
		for _, s := range d.samplers {
			vk.DestroySampler(ctx.Device.LogicalDevice, s, ctx.Allocator)
		}
		for _, b := range d.buffers {
			b.BufferDestroy(ctx)
		}
		for _, img := range d.images {
			if !img.Swapchain {
				img.ImageDestroy(ctx)
			}
		}
		for _, s := range d.semaphores {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, s, ctx.Allocator)
		}
		for _, f := range d.fences {
			f.FenceDestroy(ctx)
		}
		if d.cache != nil {
			d.cache.destroy()
		}
		if d.pool != nil {
			vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, d.pool, ctx.Allocator)
			d.pool = nil
		}
		if ctx.Swapchain != nil {
			ctx.Swapchain.SwapchainDestroy(ctx)
			ctx.Swapchain = nil
		}
	}
	DeviceDestroy(ctx)

	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	core.LogInfo("Vulkan device shut down.")
	return nil
}
