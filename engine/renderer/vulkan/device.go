package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

func (d *VulkanDevice) GraphicsQueueFamily() uint32 {
	return uint32(d.GraphicsQueueIndex)
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
	// formats that must be usable as optimal tiling attachments
	ColorFormats []vk.Format
	DepthFormat  vk.Format
}

// Family indices are -1 until a family with the capability is found.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
}

func DeviceCreate(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	if err := SelectPhysicalDevice(context, requirements); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	if context.Device.PresentQueueIndex != context.Device.GraphicsQueueIndex {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		context.lockPool.SetQueueFamily(indices[i])
	}

	// Request device features.
	deviceFeatures := vk.PhysicalDeviceFeatures{}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if _, ok := available[portabilitySubsetExtension]; ok {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return vulkanError("vkCreateDevice", res)
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.GraphicsQueueIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.PresentQueueIndex), 0, &presentQueue)
	context.Device.GraphicsQueue = graphicsQueue
	context.Device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	// Create command pool for graphics queue.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		return vulkanError("vkCreateCommandPool", res)
	}
	context.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	// Unset queues
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	if context.Device.GraphicsCommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
		context.Device.GraphicsCommandPool = nil
	}

	// Destroy logical device
	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	core.LogInfo("Releasing physical device resources...")
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	context.Device.GraphicsQueueIndex = -1
	context.Device.PresentQueueIndex = -1
}

func deviceExtensions(physicalDevice vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, properties); res != vk.Success {
			return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
		}
	}
	names := make(map[string]struct{}, count)
	for i := range properties {
		properties[i].Deref()
		names[cString(properties[i].ExtensionName[:])] = struct{}{}
	}
	return names, nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfaceFormats", res)
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return vulkanError("vkGetPhysicalDeviceSurfaceFormats", res)
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfacePresentModes", res)
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return vulkanError("vkGetPhysicalDeviceSurfacePresentModes", res)
		}
	}
	return nil
}

func SelectPhysicalDevice(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	var physicalDeviceCount uint32 = 0
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}

	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}

	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	for i := 0; i < int(physicalDeviceCount); i++ {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()

		features := vk.PhysicalDeviceFeatures{}
		vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
		features.Deref()

		memory := vk.PhysicalDeviceMemoryProperties{}
		vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
		memory.Deref()

		queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
		support := VulkanSwapchainSupportInfo{}
		if !PhysicalDeviceMeetsRequirements(physicalDevices[i], context.Surface, &properties, &requirements, &queueInfo, &support) {
			continue
		}

		name := cString(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", name)
		// GPU type, etc.
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}

		core.LogInfo(
			"GPU Driver version: %d.%d.%d",
			vk.Version(properties.DriverVersion).Major(),
			vk.Version(properties.DriverVersion).Minor(),
			vk.Version(properties.DriverVersion).Patch(),
		)

		// Vulkan API version.
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		// Memory information
		for j := 0; j < int(memory.MemoryHeapCount); j++ {
			memory.MemoryHeaps[j].Deref()
			memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
			if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
			} else {
				core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
			}
		}

		context.Device.PhysicalDevice = physicalDevices[i]
		context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		context.Device.SwapchainSupport = support

		// Keep a copy of properties, features and memory info for later use.
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory
		break
	}

	// Ensure a device was selected
	if context.Device.PhysicalDevice == nil {
		return fmt.Errorf("no physical devices were found which meet the requirements")
	}

	core.LogInfo("Physical device selected.")
	return nil
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	// Evaluate device properties to determine if it meets the needs of our applcation.
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1
	outQueueInfo.ComputeFamilyIndex = -1

	name := cString(properties.DeviceName[:])

	// Discrete GPU?
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device %s is not a discrete GPU, and one is required. Skipping.", name)
		return false
	}

	var queueFamilyCount uint32 = 0
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports. Graphics and compute
	// are recorded into the same command lists so they must share a family.
	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)

		graphicsAndCompute := flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0
		if graphicsAndCompute && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			outQueueInfo.ComputeFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		if supportsPresent == vk.True && (outQueueInfo.PresentFamilyIndex < 0 || outQueueInfo.GraphicsFamilyIndex == int32(i)) {
			// prefer presenting from the graphics family
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogInfo("Graphics | Present | Compute | Name")
	core.LogInfo("   %5t |   %5t |   %5t | %s",
		outQueueInfo.GraphicsFamilyIndex >= 0,
		outQueueInfo.PresentFamilyIndex >= 0,
		outQueueInfo.ComputeFamilyIndex >= 0,
		name)

	if (requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && outQueueInfo.PresentFamilyIndex < 0) ||
		(requirements.Compute && outQueueInfo.ComputeFamilyIndex < 0) {
		return false
	}
	core.LogInfo("Device meets queue requirements.")
	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", outQueueInfo.PresentFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", outQueueInfo.ComputeFamilyIndex)

	// Query swapchain support.
	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		core.LogWarn("Failed to query swapchain support: %s", err)
		return false
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	// Device extensions.
	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(device)
		if err != nil {
			return false
		}
		for _, required := range requirements.DeviceExtensionNames {
			if _, ok := available[required]; !ok {
				core.LogInfo("Required extension not found: '%s', skipping device.", required)
				return false
			}
		}
	}

	// Render target formats.
	for _, f := range requirements.ColorFormats {
		if !formatSupports(device, f, vk.FormatFeatureColorAttachmentBit|vk.FormatFeatureSampledImageBit) {
			core.LogInfo("Device does not support format %d as a color attachment, skipping.", f)
			return false
		}
	}
	if requirements.DepthFormat != vk.FormatUndefined &&
		!formatSupports(device, requirements.DepthFormat, vk.FormatFeatureDepthStencilAttachmentBit|vk.FormatFeatureSampledImageBit) {
		core.LogInfo("Device does not support the depth format, skipping.")
		return false
	}
	// Device meets all requirements.
	return true
}

func formatSupports(device vk.PhysicalDevice, format vk.Format, flags vk.FormatFeatureFlagBits) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(device, format, &properties)
	properties.Deref()
	return vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags
}
