package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type nativeDevice struct {
	physicalDevice     vk.PhysicalDevice
	logicalDevice      vk.Device
	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	transferQueueIndex uint32

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	transferQueue vk.Queue

	graphicsCommandPool vk.CommandPool

	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
}

type physicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type queueFamilyInfo struct {
	graphicsFamilyIndex int32
	presentFamilyIndex  int32
	transferFamilyIndex int32
}

func createDevice(instance vk.Instance, surface vk.Surface, allocator *vk.AllocationCallbacks) (*nativeDevice, error) {
	device, err := selectPhysicalDevice(instance, surface)
	if err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{device.graphicsQueueIndex}
	if device.presentQueueIndex != device.graphicsQueueIndex {
		indices = append(indices, device.presentQueueIndex)
	}
	if device.transferQueueIndex != device.graphicsQueueIndex && device.transferQueueIndex != device.presentQueueIndex {
		indices = append(indices, device.transferQueueIndex)
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	// Request device features.
	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(device.physicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.physicalDevice, &deviceCreateInfo, allocator, &logical); res != vk.Success {
		err := resultError("create logical device", res)
		core.LogError(err.Error())
		return nil, err
	}
	device.logicalDevice = logical
	core.LogInfo("Logical device created.")

	// Get queues.
	vk.GetDeviceQueue(logical, device.graphicsQueueIndex, 0, &device.graphicsQueue)
	vk.GetDeviceQueue(logical, device.presentQueueIndex, 0, &device.presentQueue)
	vk.GetDeviceQueue(logical, device.transferQueueIndex, 0, &device.transferQueue)
	core.LogInfo("Queues obtained.")

	// Create command pool for graphics queue.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(logical, &poolCreateInfo, allocator, &device.graphicsCommandPool); res != vk.Success {
		err := resultError("create graphics command pool", res)
		core.LogError(err.Error())
		device.destroy(allocator)
		return nil, err
	}
	core.LogInfo("Graphics command pool created.")

	return device, nil
}

func (d *nativeDevice) destroy(allocator *vk.AllocationCallbacks) {
	// Unset queues
	d.graphicsQueue = nil
	d.presentQueue = nil
	d.transferQueue = nil

	if d.logicalDevice == nil {
		return
	}
	if d.graphicsCommandPool != vk.NullCommandPool {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(d.logicalDevice, d.graphicsCommandPool, allocator)
		d.graphicsCommandPool = vk.NullCommandPool
	}

	// Physical devices are not destroyed.
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.logicalDevice, allocator)
	d.logicalDevice = nil
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if string(available[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}

func querySurfaceSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (SurfaceSupport, vk.Result) {
	var support SurfaceSupport

	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &support.Capabilities); res != vk.Success {
		return support, res
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return support, res
	}
	if formatCount != 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, support.Formats); res != vk.Success {
			return support, res
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	// Present modes
	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return support, res
	}
	if modeCount != 0 {
		support.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, support.PresentModes); res != vk.Success {
			return support, res
		}
	}
	return support, vk.Success
}

// detectDepthFormat returns the first depth candidate usable as an attachment.
func (d *nativeDevice) detectDepthFormat() (vk.Format, bool) {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			return candidate, true
		}
	}
	return vk.FormatUndefined, false
}

func (d *nativeDevice) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, false
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*nativeDevice, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, resultError("enumerate physical devices", res)
	}
	if count == 0 {
		err := fmt.Errorf("%w: no devices which support Vulkan were found", ErrNoSuitableDevice)
		core.LogError(err.Error())
		return nil, err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, physicalDevices); res != vk.Success {
		return nil, resultError("enumerate physical devices", res)
	}

	requirements := physicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// Prefer a discrete GPU, settle for anything that meets the rest.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, pd := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(pd, &properties)
			properties.Deref()
			properties.Limits.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(pd, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
			memory.Deref()

			queueInfo, ok := physicalDeviceMeetsRequirements(pd, surface, &properties, &features, &requirements)
			if !ok {
				continue
			}

			end := FindFirstZeroInByteArray(properties.DeviceName[:])
			core.LogInfo("Selected device: '%s'.", string(properties.DeviceName[:end]))
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
				"Vulkan API version: %d.%d.%d",
				vk.Version(properties.ApiVersion).Major(),
				vk.Version(properties.ApiVersion).Minor(),
				vk.Version(properties.ApiVersion).Patch(),
			)

			core.LogInfo("Physical device selected.")
			return &nativeDevice{
				physicalDevice:     pd,
				graphicsQueueIndex: uint32(queueInfo.graphicsFamilyIndex),
				presentQueueIndex:  uint32(queueInfo.presentFamilyIndex),
				transferQueueIndex: uint32(queueInfo.transferFamilyIndex),
				properties:         properties,
				features:           features,
				memory:             memory,
			}, nil
		}
		if !discrete {
			break
		}
	}

	err := fmt.Errorf("%w: none of %d devices qualified", ErrNoSuitableDevice, count)
	core.LogError(err.Error())
	return nil, err
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *physicalDeviceRequirements) (queueFamilyInfo, bool) {
	info := queueFamilyInfo{-1, -1, -1}

	// Discrete GPU?
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return info, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports
	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		currentTransferScore := 0
		flags := queueFamilies[i].QueueFlags

		// Graphics queue?
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			if info.graphicsFamilyIndex < 0 {
				info.graphicsFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			currentTransferScore++
		}

		// Transfer queue? Take the index if it is the current lowest. This increases the
		// likelihood that it is a dedicated transfer queue.
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			info.transferFamilyIndex = int32(i)
		}

		// Present queue?
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		if supportsPresent == vk.True && info.presentFamilyIndex < 0 {
			info.presentFamilyIndex = int32(i)
		}
	}

	// Graphics queues can always transfer.
	if info.transferFamilyIndex < 0 {
		info.transferFamilyIndex = info.graphicsFamilyIndex
	}

	if (requirements.Graphics && info.graphicsFamilyIndex < 0) ||
		(requirements.Present && info.presentFamilyIndex < 0) ||
		(requirements.Transfer && info.transferFamilyIndex < 0) {
		return info, false
	}
	core.LogInfo("Device meets queue requirements.")
	core.LogDebug("Graphics Family Index: %d", info.graphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", info.presentFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", info.transferFamilyIndex)

	// Query swapchain support.
	support, res := querySurfaceSupport(device, surface)
	if res != vk.Success || len(support.Formats) < 1 || len(support.PresentModes) < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return info, false
	}

	// Device extensions.
	for _, name := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return info, false
		}
	}

	// Sampler anisotropy
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return info, false
	}
	return info, true
}
