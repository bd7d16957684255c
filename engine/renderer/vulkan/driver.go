package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Opaque handle kinds issued by a Driver. Zero is the null handle for every kind.
type (
	FenceHandle         uint64
	SemaphoreHandle     uint64
	CommandPoolHandle   uint64
	CommandBufferHandle uint64
	RenderPassHandle    uint64
	FramebufferHandle   uint64
	SwapchainHandle     uint64
	ImageHandle         uint64
	ImageViewHandle     uint64
	BufferHandle        uint64
	SamplerHandle       uint64
	QueueHandle         uint64
)

type SubmitInfo struct {
	CommandBuffers   []CommandBufferHandle
	WaitSemaphores   []SemaphoreHandle
	WaitStages       []vk.PipelineStageFlags
	SignalSemaphores []SemaphoreHandle
}

type SurfaceSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type SwapchainCreateInfo struct {
	MinImageCount uint32
	ImageFormat   vk.SurfaceFormat
	Extent        vk.Extent2D
	PresentMode   vk.PresentMode
	PreTransform  vk.SurfaceTransformFlagBits
	OldSwapchain  SwapchainHandle
}

type ImageCreateInfo struct {
	Width       uint32
	Height      uint32
	Format      vk.Format
	Tiling      vk.ImageTiling
	Usage       vk.ImageUsageFlags
	MemoryFlags vk.MemoryPropertyFlags
}

type BufferCreateInfo struct {
	Size        uint64
	Usage       vk.BufferUsageFlags
	MemoryFlags vk.MemoryPropertyFlags
}

type SamplerCreateInfo struct {
	Filter        vk.Filter
	AddressMode   vk.SamplerAddressMode
	MaxAnisotropy float32
}

type RenderPassCreateInfo struct {
	ColorFormat vk.Format
	DepthFormat vk.Format
}

type DeviceQueues struct {
	Graphics            QueueHandle
	Present             QueueHandle
	Transfer            QueueHandle
	GraphicsFamilyIndex uint32
	PresentFamilyIndex  uint32
	TransferFamilyIndex uint32
}

type SyncDriver interface {
	CreateFence(signaled bool) (FenceHandle, vk.Result)
	DestroyFence(fence FenceHandle)
	WaitForFence(fence FenceHandle, timeoutNs uint64) vk.Result
	ResetFence(fence FenceHandle) vk.Result
	// GetFenceStatus never blocks: Success when signaled, NotReady otherwise.
	GetFenceStatus(fence FenceHandle) vk.Result
	CreateSemaphore() (SemaphoreHandle, vk.Result)
	DestroySemaphore(semaphore SemaphoreHandle)
}

type CommandDriver interface {
	AllocateCommandBuffer(pool CommandPoolHandle, primary bool) (CommandBufferHandle, vk.Result)
	FreeCommandBuffer(pool CommandPoolHandle, commandBuffer CommandBufferHandle)
	BeginCommandBuffer(commandBuffer CommandBufferHandle, flags vk.CommandBufferUsageFlags) vk.Result
	EndCommandBuffer(commandBuffer CommandBufferHandle) vk.Result
	ResetCommandBuffer(commandBuffer CommandBufferHandle) vk.Result
	CmdSetViewport(commandBuffer CommandBufferHandle, viewport vk.Viewport)
	CmdSetScissor(commandBuffer CommandBufferHandle, scissor vk.Rect2D)
	CmdBeginRenderPass(commandBuffer CommandBufferHandle, renderPass RenderPassHandle, framebuffer FramebufferHandle, area vk.Rect2D, clearColor [4]float32, depth float32, stencil uint32)
	CmdEndRenderPass(commandBuffer CommandBufferHandle)
	CmdTransitionImageLayout(commandBuffer CommandBufferHandle, image ImageHandle, oldLayout, newLayout vk.ImageLayout)
	CmdCopyBufferToImage(commandBuffer CommandBufferHandle, buffer BufferHandle, image ImageHandle, width, height uint32)
	QueueSubmit(queue QueueHandle, submit SubmitInfo, fence FenceHandle) vk.Result
	QueueWaitIdle(queue QueueHandle) vk.Result
}

type SwapchainDriver interface {
	// SurfaceSupport queries the surface every call; capabilities change with the window.
	SurfaceSupport() (SurfaceSupport, vk.Result)
	CreateSwapchain(info SwapchainCreateInfo) (SwapchainHandle, vk.Result)
	DestroySwapchain(swapchain SwapchainHandle)
	// GetSwapchainImages returns images owned by the swapchain. They must not be destroyed.
	GetSwapchainImages(swapchain SwapchainHandle) ([]ImageHandle, vk.Result)
	AcquireNextImage(swapchain SwapchainHandle, timeoutNs uint64, semaphore SemaphoreHandle, fence FenceHandle) (uint32, vk.Result)
	QueuePresent(queue QueueHandle, swapchain SwapchainHandle, wait SemaphoreHandle, imageIndex uint32) vk.Result
}

type ResourceDriver interface {
	CreateImage(info ImageCreateInfo) (ImageHandle, vk.Result)
	DestroyImage(image ImageHandle)
	CreateImageView(image ImageHandle, format vk.Format, aspect vk.ImageAspectFlags) (ImageViewHandle, vk.Result)
	DestroyImageView(view ImageViewHandle)
	CreateBuffer(info BufferCreateInfo) (BufferHandle, vk.Result)
	DestroyBuffer(buffer BufferHandle)
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) vk.Result
	CreateSampler(info SamplerCreateInfo) (SamplerHandle, vk.Result)
	DestroySampler(sampler SamplerHandle)
	CreateRenderPass(info RenderPassCreateInfo) (RenderPassHandle, vk.Result)
	DestroyRenderPass(renderPass RenderPassHandle)
	CreateFramebuffer(renderPass RenderPassHandle, attachments []ImageViewHandle, width, height uint32) (FramebufferHandle, vk.Result)
	DestroyFramebuffer(framebuffer FramebufferHandle)
}

type DeviceDriver interface {
	Queues() DeviceQueues
	GraphicsCommandPool() CommandPoolHandle
	// DepthFormat reports the first supported depth attachment format.
	DepthFormat() (vk.Format, bool)
	MaxSamplerAnisotropy() float32
	DeviceWaitIdle() vk.Result
	// Destroy releases the device, surface and instance. Everything created
	// through the driver must be destroyed first.
	Destroy()
}

// Driver is the native graphics API as consumed by the renderer.
type Driver interface {
	SyncDriver
	CommandDriver
	SwapchainDriver
	ResourceDriver
	DeviceDriver
}
