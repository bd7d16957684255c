package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// SurfaceProvider is the windowing side of instance and surface creation.
type SurfaceProvider interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	GetInstanceProcAddress() unsafe.Pointer
}

type NativeConfig struct {
	ApplicationName string
	// Enables VK_LAYER_KHRONOS_validation and routes its reports to the engine logger.
	Validation bool
}

type nativeImage struct {
	image  vk.Image
	memory vk.DeviceMemory
	// Swapchain images are owned by their swapchain.
	owned bool
}

type nativeBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
}

type nativeQueue struct {
	queue  vk.Queue
	family uint32
}

var _ Driver = (*NativeDriver)(nil)

// NativeDriver implements Driver on top of goki/vulkan. It owns the instance,
// the debug callback, the surface, the logical device, its queues and the
// graphics command pool.
type NativeDriver struct {
	config    NativeConfig
	allocator *vk.AllocationCallbacks

	instance       vk.Instance
	debugMessenger vk.DebugReportCallback
	surface        vk.Surface

	device *nativeDevice
	locks  *VulkanLockPool

	queues   *registry[QueueHandle, nativeQueue]
	handles  DeviceQueues
	pools    *registry[CommandPoolHandle, vk.CommandPool]
	mainPool CommandPoolHandle

	fences         *registry[FenceHandle, vk.Fence]
	semaphores     *registry[SemaphoreHandle, vk.Semaphore]
	commandBuffers *registry[CommandBufferHandle, vk.CommandBuffer]
	renderPasses   *registry[RenderPassHandle, vk.RenderPass]
	framebuffers   *registry[FramebufferHandle, vk.Framebuffer]
	swapchains     *registry[SwapchainHandle, vk.Swapchain]
	images         *registry[ImageHandle, nativeImage]
	views          *registry[ImageViewHandle, vk.ImageView]
	buffers        *registry[BufferHandle, nativeBuffer]
	samplers       *registry[SamplerHandle, vk.Sampler]

	swapchainImages map[SwapchainHandle][]ImageHandle
}

func NewNativeDriver(provider SurfaceProvider, config NativeConfig) (*NativeDriver, error) {
	d := &NativeDriver{
		config:          config,
		locks:           NewVulkanLockPool(),
		queues:          newRegistry[QueueHandle, nativeQueue](),
		pools:           newRegistry[CommandPoolHandle, vk.CommandPool](),
		fences:          newRegistry[FenceHandle, vk.Fence](),
		semaphores:      newRegistry[SemaphoreHandle, vk.Semaphore](),
		commandBuffers:  newRegistry[CommandBufferHandle, vk.CommandBuffer](),
		renderPasses:    newRegistry[RenderPassHandle, vk.RenderPass](),
		framebuffers:    newRegistry[FramebufferHandle, vk.Framebuffer](),
		swapchains:      newRegistry[SwapchainHandle, vk.Swapchain](),
		images:          newRegistry[ImageHandle, nativeImage](),
		views:           newRegistry[ImageViewHandle, vk.ImageView](),
		buffers:         newRegistry[BufferHandle, nativeBuffer](),
		samplers:        newRegistry[SamplerHandle, vk.Sampler](),
		swapchainImages: make(map[SwapchainHandle][]ImageHandle),
	}

	procAddr := provider.GetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("%w: GetInstanceProcAddress is nil", ErrMissingExtension)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	if err := d.createInstance(provider.RequiredInstanceExtensions()); err != nil {
		d.Destroy()
		return nil, err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := provider.CreateSurface(d.instance)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		d.Destroy()
		return nil, err
	}
	d.surface = surface
	core.LogDebug("Vulkan surface created.")

	// Device creation
	device, err := createDevice(d.instance, d.surface, d.allocator)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.device = device

	d.handles = DeviceQueues{
		Graphics:            d.queues.add(nativeQueue{queue: device.graphicsQueue, family: device.graphicsQueueIndex}),
		Present:             d.queues.add(nativeQueue{queue: device.presentQueue, family: device.presentQueueIndex}),
		Transfer:            d.queues.add(nativeQueue{queue: device.transferQueue, family: device.transferQueueIndex}),
		GraphicsFamilyIndex: device.graphicsQueueIndex,
		PresentFamilyIndex:  device.presentQueueIndex,
		TransferFamilyIndex: device.transferQueueIndex,
	}
	d.locks.SetQueueFamily(device.graphicsQueueIndex)
	d.locks.SetQueueFamily(device.presentQueueIndex)
	d.locks.SetQueueFamily(device.transferQueueIndex)
	d.mainPool = d.pools.add(device.graphicsCommandPool)

	core.LogInfo("Vulkan driver initialized successfully.")
	return d, nil
}

func (d *NativeDriver) createInstance(platformExtensions []string) error {
	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.config.ApplicationName),
		PEngineName:        VulkanSafeString("Flowforge Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, platformExtensions...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	if d.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for _, ext := range requiredExtensions {
			core.LogInfo(ext)
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// If validation should be done, get a list of the required validation layer names
	// and make sure they exist.
	var layers []string
	if d.config.Validation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(layers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.allocator, &d.instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if d.config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkValidationLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("enumerate instance layers", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("enumerate instance layers", res)
	}

	for _, name := range required {
		core.LogInfo("Searching for layer: %s...", name)
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == string(available[j].LayerName[:end]) {
				found = true
				core.LogInfo("Found.")
				break
			}
		}
		if !found {
			err := fmt.Errorf("%w: validation layer %s", ErrMissingExtension, name)
			core.LogError(err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (d *NativeDriver) Queues() DeviceQueues {
	return d.handles
}

func (d *NativeDriver) GraphicsCommandPool() CommandPoolHandle {
	return d.mainPool
}

func (d *NativeDriver) DepthFormat() (vk.Format, bool) {
	return d.device.detectDepthFormat()
}

func (d *NativeDriver) MaxSamplerAnisotropy() float32 {
	return d.device.properties.Limits.MaxSamplerAnisotropy
}

func (d *NativeDriver) DeviceWaitIdle() vk.Result {
	if d.device == nil {
		return vk.Success
	}
	return vk.DeviceWaitIdle(d.device.logicalDevice)
}

// Destroy releases the device, surface, debug callback and instance, in that order.
func (d *NativeDriver) Destroy() {
	if n := d.fences.len() + d.semaphores.len() + d.images.len() + d.buffers.len() + d.swapchains.len(); n > 0 {
		core.LogWarn("Vulkan driver destroyed with %d live objects", n)
	}
	if d.device != nil {
		core.LogDebug("Destroying Vulkan device...")
		d.device.destroy(d.allocator)
		d.device = nil
	}
	if d.surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.instance, d.surface, d.allocator)
		d.surface = vk.NullSurface
	}
	if d.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.instance, d.debugMessenger, d.allocator)
		d.debugMessenger = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.instance, d.allocator)
		d.instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
