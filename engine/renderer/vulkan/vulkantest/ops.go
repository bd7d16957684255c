package vulkantest

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
)

const (
	GraphicsQueue vulkan.QueueHandle       = 1
	PresentQueue  vulkan.QueueHandle       = 2
	TransferQueue vulkan.QueueHandle       = 3
	CommandPool   vulkan.CommandPoolHandle = 1
)

// Sync

func (d *Driver) CreateFence(signaled bool) (vulkan.FenceHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.FenceHandle(d.handle())
	d.fences[h] = &fenceState{signaled: signaled}
	return h, vk.Success
}

func (d *Driver) DestroyFence(h vulkan.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, h)
}

func (d *Driver) WaitForFence(h vulkan.FenceHandle, timeoutNs uint64) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return vk.ErrorUnknown
	}
	if !f.signaled {
		// Nothing will ever signal it.
		if !f.pending {
			return vk.Timeout
		}
		if d.WaitResult != vk.Success {
			return d.WaitResult
		}
		if d.BoundedWaitResult != vk.Success && timeoutNs != vk.MaxUint64 {
			return d.BoundedWaitResult
		}
		d.BlockingWaits++
		f.signaled = true
		f.pending = false
	}
	f.waitsSinceSubmit++
	if f.waitsSinceSubmit > 1 {
		d.DoubleWaits++
	}
	return vk.Success
}

func (d *Driver) ResetFence(h vulkan.FenceHandle) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return vk.ErrorUnknown
	}
	f.signaled = false
	f.pending = false
	return vk.Success
}

func (d *Driver) GetFenceStatus(h vulkan.FenceHandle) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return vk.ErrorUnknown
	}
	if f.signaled {
		return vk.Success
	}
	return vk.NotReady
}

func (d *Driver) CreateSemaphore() (vulkan.SemaphoreHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.SemaphoreHandle(d.handle())
	d.semaphores[h] = false
	return h, vk.Success
}

func (d *Driver) DestroySemaphore(h vulkan.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, h)
}

// setSemaphore updates the signal state of a live semaphore.
func (d *Driver) setSemaphore(h vulkan.SemaphoreHandle, signaled bool) {
	if _, ok := d.semaphores[h]; ok {
		d.semaphores[h] = signaled
	}
}

// Commands

func (d *Driver) AllocateCommandBuffer(pool vulkan.CommandPoolHandle, primary bool) (vulkan.CommandBufferHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pool != CommandPool {
		return 0, vk.ErrorUnknown
	}
	h := vulkan.CommandBufferHandle(d.handle())
	d.commandBuffers[h] = true
	return h, vk.Success
}

func (d *Driver) FreeCommandBuffer(pool vulkan.CommandPoolHandle, h vulkan.CommandBufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.commandBuffers, h)
}

func (d *Driver) cmd(name string, h vulkan.CommandBufferHandle) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.commandBuffers[h] {
		return vk.ErrorUnknown
	}
	d.record(name, h)
	return vk.Success
}

func (d *Driver) BeginCommandBuffer(h vulkan.CommandBufferHandle, flags vk.CommandBufferUsageFlags) vk.Result {
	return d.cmd("begin", h)
}

func (d *Driver) EndCommandBuffer(h vulkan.CommandBufferHandle) vk.Result {
	return d.cmd("end", h)
}

func (d *Driver) ResetCommandBuffer(h vulkan.CommandBufferHandle) vk.Result {
	return d.cmd("reset", h)
}

func (d *Driver) CmdSetViewport(h vulkan.CommandBufferHandle, viewport vk.Viewport) {
	d.cmd("viewport", h)
}

func (d *Driver) CmdSetScissor(h vulkan.CommandBufferHandle, scissor vk.Rect2D) {
	d.cmd("scissor", h)
}

func (d *Driver) CmdBeginRenderPass(h vulkan.CommandBufferHandle, rp vulkan.RenderPassHandle, fb vulkan.FramebufferHandle, area vk.Rect2D, clearColor [4]float32, depth float32, stencil uint32) {
	d.cmd("begin_render_pass", h)
}

func (d *Driver) CmdEndRenderPass(h vulkan.CommandBufferHandle) {
	d.cmd("end_render_pass", h)
}

func (d *Driver) CmdTransitionImageLayout(h vulkan.CommandBufferHandle, image vulkan.ImageHandle, oldLayout, newLayout vk.ImageLayout) {
	d.cmd("transition", h)
}

func (d *Driver) CmdCopyBufferToImage(h vulkan.CommandBufferHandle, buffer vulkan.BufferHandle, image vulkan.ImageHandle, width, height uint32) {
	d.cmd("copy", h)
}

// QueueSubmit rejects a fence that is still signaled, as the real API does.
// A failed submission changes no fence or semaphore.
func (d *Driver) QueueSubmit(queue vulkan.QueueHandle, submit vulkan.SubmitInfo, fence vulkan.FenceHandle) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SubmitCalls++
	if res, scripted := d.SubmitResults[d.SubmitCalls]; scripted && res != vk.Success {
		return res
	}
	for _, cb := range submit.CommandBuffers {
		if !d.commandBuffers[cb] {
			return vk.ErrorUnknown
		}
	}
	if fence != 0 {
		f, ok := d.fences[fence]
		if !ok || f.signaled {
			return vk.ErrorUnknown
		}
		f.submissions++
		f.waitsSinceSubmit = 0
		f.signaled = d.Completion == CompleteOnSubmit
		f.pending = !f.signaled
	}
	for _, s := range submit.WaitSemaphores {
		d.setSemaphore(s, false)
	}
	for _, s := range submit.SignalSemaphores {
		d.setSemaphore(s, true)
	}
	d.Submits = append(d.Submits, SubmitRecord{Queue: queue, Info: submit, Fence: fence, Number: len(d.Submits) + 1})
	return vk.Success
}

func (d *Driver) QueueWaitIdle(queue vulkan.QueueHandle) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QueueWaitIdles++
	d.drain()
	return vk.Success
}

// drain signals every fence that has work submitted against it.
func (d *Driver) drain() {
	for _, f := range d.fences {
		if f.pending {
			f.signaled = true
			f.pending = false
		}
	}
}

// Swapchain

func (d *Driver) SurfaceSupport() (vulkan.SurfaceSupport, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vulkan.SurfaceSupport{
		Capabilities: d.Capabilities,
		Formats:      append([]vk.SurfaceFormat(nil), d.Formats...),
		PresentModes: append([]vk.PresentMode(nil), d.PresentModes...),
	}, vk.Success
}

func (d *Driver) CreateSwapchain(info vulkan.SwapchainCreateInfo) (vulkan.SwapchainHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.OldSwapchain != 0 {
		if _, ok := d.swapchains[info.OldSwapchain]; !ok {
			return 0, vk.ErrorNativeWindowInUse
		}
	}
	d.SwapchainCreates = append(d.SwapchainCreates, info)
	h := vulkan.SwapchainHandle(d.handle())
	sc := &swapchainState{info: info, images: make([]vulkan.ImageHandle, info.MinImageCount)}
	for i := range sc.images {
		img := vulkan.ImageHandle(d.handle())
		sc.images[i] = img
		d.swapchainImages[img] = h
	}
	d.swapchains[h] = sc
	return h, vk.Success
}

func (d *Driver) DestroySwapchain(h vulkan.SwapchainHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sc, ok := d.swapchains[h]; ok {
		for _, img := range sc.images {
			delete(d.swapchainImages, img)
		}
		delete(d.swapchains, h)
	}
}

func (d *Driver) GetSwapchainImages(h vulkan.SwapchainHandle) ([]vulkan.ImageHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, vk.ErrorUnknown
	}
	return append([]vulkan.ImageHandle(nil), sc.images...), vk.Success
}

func (d *Driver) AcquireNextImage(h vulkan.SwapchainHandle, timeoutNs uint64, semaphore vulkan.SemaphoreHandle, fence vulkan.FenceHandle) (uint32, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireCalls++
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, vk.ErrorOutOfDate
	}
	res, scripted := d.AcquireResults[d.AcquireCalls]
	if !scripted {
		res = vk.Success
	}
	if res != vk.Success && res != vk.Suboptimal {
		return 0, res
	}
	if d.semaphores[semaphore] {
		d.SignaledSemaphoreAcquires++
	}
	d.setSemaphore(semaphore, true)
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	return index, res
}

func (d *Driver) QueuePresent(queue vulkan.QueueHandle, h vulkan.SwapchainHandle, wait vulkan.SemaphoreHandle, imageIndex uint32) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PresentCalls++
	if _, ok := d.swapchains[h]; !ok {
		return vk.ErrorOutOfDate
	}
	res, scripted := d.PresentResults[d.PresentCalls]
	if !scripted {
		res = vk.Success
	}
	// Out-of-date and suboptimal presents still consume the wait semaphore.
	d.setSemaphore(wait, false)
	if res == vk.Success || res == vk.Suboptimal {
		d.Presents = append(d.Presents, PresentRecord{Swapchain: h, ImageIndex: imageIndex, Wait: wait})
	}
	return res
}

// Resources

func (d *Driver) CreateImage(info vulkan.ImageCreateInfo) (vulkan.ImageHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.ImageHandle(d.handle())
	d.images[h] = info
	return h, vk.Success
}

func (d *Driver) DestroyImage(h vulkan.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, h)
}

func (d *Driver) CreateImageView(image vulkan.ImageHandle, format vk.Format, aspect vk.ImageAspectFlags) (vulkan.ImageViewHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, owned := d.images[image]
	_, presentable := d.swapchainImages[image]
	if !owned && !presentable {
		return 0, vk.ErrorUnknown
	}
	h := vulkan.ImageViewHandle(d.handle())
	d.views[h] = image
	return h, vk.Success
}

func (d *Driver) DestroyImageView(h vulkan.ImageViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, h)
}

func (d *Driver) CreateBuffer(info vulkan.BufferCreateInfo) (vulkan.BufferHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.BufferHandle(d.handle())
	d.buffers[h] = make([]byte, info.Size)
	return h, vk.Success
}

func (d *Driver) DestroyBuffer(h vulkan.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, h)
}

func (d *Driver) WriteBuffer(h vulkan.BufferHandle, offset uint64, data []byte) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok || offset+uint64(len(data)) > uint64(len(buf)) {
		return vk.ErrorMemoryMapFailed
	}
	copy(buf[offset:], data)
	return vk.Success
}

func (d *Driver) CreateSampler(info vulkan.SamplerCreateInfo) (vulkan.SamplerHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.SamplerHandle(d.handle())
	d.samplers[h] = info
	return h, vk.Success
}

func (d *Driver) DestroySampler(h vulkan.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, h)
}

// SamplerInfo returns the parameters a sampler was created with.
func (d *Driver) SamplerInfo(h vulkan.SamplerHandle) (vulkan.SamplerCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.samplers[h]
	return info, ok
}

func (d *Driver) CreateRenderPass(info vulkan.RenderPassCreateInfo) (vulkan.RenderPassHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := vulkan.RenderPassHandle(d.handle())
	d.renderPasses[h] = info
	return h, vk.Success
}

func (d *Driver) DestroyRenderPass(h vulkan.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.renderPasses, h)
}

func (d *Driver) CreateFramebuffer(rp vulkan.RenderPassHandle, attachments []vulkan.ImageViewHandle, width, height uint32) (vulkan.FramebufferHandle, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses[rp]; !ok {
		return 0, vk.ErrorUnknown
	}
	for _, a := range attachments {
		if _, ok := d.views[a]; !ok {
			return 0, vk.ErrorUnknown
		}
	}
	h := vulkan.FramebufferHandle(d.handle())
	d.framebuffers[h] = append([]vulkan.ImageViewHandle(nil), attachments...)
	return h, vk.Success
}

func (d *Driver) DestroyFramebuffer(h vulkan.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.framebuffers, h)
}

// Device

func (d *Driver) Queues() vulkan.DeviceQueues {
	return vulkan.DeviceQueues{
		Graphics: GraphicsQueue,
		Present:  PresentQueue,
		Transfer: TransferQueue,
	}
}

func (d *Driver) GraphicsCommandPool() vulkan.CommandPoolHandle {
	return CommandPool
}

func (d *Driver) DepthFormat() (vk.Format, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.DepthFormats) == 0 {
		return vk.FormatUndefined, false
	}
	return d.DepthFormats[0], true
}

func (d *Driver) MaxSamplerAnisotropy() float32 {
	return d.Anisotropy
}

func (d *Driver) DeviceWaitIdle() vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DeviceWaitIdles++
	d.drain()
	return vk.Success
}

func (d *Driver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Destroyed = true
}

// Window is a scriptable vulkan.Window.
type Window struct {
	Width, Height uint32
	Close         bool
	Polls         int
}

func NewWindow(width, height uint32) *Window {
	return &Window{Width: width, Height: height}
}

func (w *Window) PollEvents() {
	w.Polls++
}

func (w *Window) ShouldClose() bool {
	return w.Close
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	return w.Width, w.Height
}
