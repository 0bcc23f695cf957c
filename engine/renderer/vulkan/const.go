package vulkan

import "math"

/**
 * @brief Max number of binding sets alive at once.
 * @todo TODO: make configurable
 */
const VULKAN_MAX_BINDING_SETS uint32 = 512

/** @brief Descriptors of each type the shared pool can hand out. */
const VULKAN_MAX_DESCRIPTORS_PER_TYPE uint32 = 4096

// waits on fences and swapchain images never time out
const VULKAN_WAIT_FOREVER uint64 = math.MaxUint64

const VULKAN_SHADER_ENTRY_POINT = "main"
