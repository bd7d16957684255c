package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
	emath "github.com/spaghettifunk/flowforge/engine/math"
)

// Preferred surface format. Anything else is a construction failure.
var preferredSurfaceFormat = vk.SurfaceFormat{
	Format:     vk.FormatB8g8r8a8Srgb,
	ColorSpace: vk.ColorSpaceSrgbNonlinear,
}

type Swapchain struct {
	dc     *DisplayContext
	driver Driver
	handle Handle[SwapchainHandle]

	/** @brief The number of images asked for at creation, before clamping. */
	requestedImageCount uint32
	/** @brief The present mode used when the surface supports it. */
	preferredPresentMode vk.PresentMode

	/** @brief The swapchain image format. */
	imageFormat vk.SurfaceFormat
	/** @brief The present mode in use. */
	presentMode vk.PresentMode
	/** @brief The swapchain image size. */
	extent vk.Extent2D
	/** @brief The format of the depth attachment. */
	depthFormat vk.Format

	/** @brief The swapchain images. Owned by the swapchain and never destroyed here. */
	images []ImageHandle
	/** @brief One view per swapchain image. */
	views []Handle[ImageViewHandle]

	/** @brief The depth attachment shared by all framebuffers. */
	DepthAttachment *Image

	/** @brief framebuffers used for on-screen rendering. */
	Framebuffers []*Framebuffer

	/** @brief Set when the surface changed and the next frame must recreate. */
	stale bool
}

func NewSwapchain(dc *DisplayContext, width, height uint32) (*Swapchain, error) {
	sc := &Swapchain{
		dc:                   dc,
		driver:               dc.driver,
		requestedImageCount:  dc.config.ImageCount,
		preferredPresentMode: dc.config.PresentMode,
	}
	if err := sc.Recreate(width, height); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) Handle() SwapchainHandle {
	return sc.handle.Get()
}

func (sc *Swapchain) ImageCount() uint32 {
	return uint32(len(sc.images))
}

func (sc *Swapchain) ImageFormat() vk.SurfaceFormat {
	return sc.imageFormat
}

func (sc *Swapchain) PresentMode() vk.PresentMode {
	return sc.presentMode
}

func (sc *Swapchain) Extent() vk.Extent2D {
	return sc.extent
}

func (sc *Swapchain) DepthFormat() vk.Format {
	return sc.depthFormat
}

func (sc *Swapchain) Framebuffer(index uint32) *Framebuffer {
	return sc.Framebuffers[index]
}

func (sc *Swapchain) IsStale() bool {
	return sc.stale
}

func (sc *Swapchain) MarkStale() {
	sc.stale = true
}

// Recreate builds a new swapchain for the given window size, handing the old
// one to the driver so in-flight presents can retire. Framebuffers are not
// rebuilt here; see RegenerateFramebuffers.
//
// A zero sized window (minimized) leaves everything untouched, keeps the
// swapchain stale and returns core.ErrSwapchainBooting.
func (sc *Swapchain) Recreate(width, height uint32) error {
	if width == 0 || height == 0 {
		sc.stale = true
		return core.ErrSwapchainBooting
	}

	sc.driver.DeviceWaitIdle()

	support, res := sc.driver.SurfaceSupport()
	if res != vk.Success {
		return resultError("query surface support", res)
	}

	format, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	presentMode := choosePresentMode(support.PresentModes, sc.preferredPresentMode)
	extent := chooseExtent(support.Capabilities, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		sc.stale = true
		return core.ErrSwapchainBooting
	}
	imageCount := emath.ClampCount(sc.requestedImageCount, support.Capabilities.MinImageCount, support.Capabilities.MaxImageCount)

	depthFormat, ok := sc.driver.DepthFormat()
	if !ok {
		core.LogError(ErrNoDepthFormat.Error())
		return ErrNoDepthFormat
	}

	old := sc.handle.Take()
	handle, res := sc.driver.CreateSwapchain(SwapchainCreateInfo{
		MinImageCount: imageCount,
		ImageFormat:   format,
		Extent:        extent,
		PresentMode:   presentMode,
		PreTransform:  support.Capabilities.CurrentTransform,
		OldSwapchain:  old.Get(),
	})

	// The views, depth attachment and framebuffers all belong to the old images.
	sc.destroyAttachments()
	old.Release(sc.driver.DestroySwapchain)

	if res != vk.Success {
		err := resultError("create swapchain", res)
		core.LogError(err.Error())
		return err
	}
	sc.handle = MakeHandle(handle)
	sc.imageFormat = format
	sc.presentMode = presentMode
	sc.extent = extent
	sc.depthFormat = depthFormat

	images, res := sc.driver.GetSwapchainImages(handle)
	if res != vk.Success {
		return resultError("get swapchain images", res)
	}
	sc.images = images
	sc.views = make([]Handle[ImageViewHandle], len(images))
	for i, img := range images {
		view, res := sc.driver.CreateImageView(img, format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if res != vk.Success {
			return resultError("create swapchain image view", res)
		}
		sc.views[i] = MakeHandle(view)
	}

	depth, err := NewImage(sc.driver, ImageCreateInfo{
		Width:       extent.Width,
		Height:      extent.Height,
		Format:      depthFormat,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		MemoryFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	}, true, vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return err
	}
	sc.DepthAttachment = depth

	sc.stale = false
	core.LogInfo("Swapchain created: %d images, %dx%d", len(images), extent.Width, extent.Height)
	return nil
}

// RegenerateFramebuffers creates one framebuffer per swapchain image sharing
// the depth attachment.
func (sc *Swapchain) RegenerateFramebuffers(renderPass *RenderPass) error {
	sc.destroyFramebuffers()
	sc.Framebuffers = make([]*Framebuffer, len(sc.views))
	for i := range sc.views {
		attachments := []ImageViewHandle{sc.views[i].Get(), sc.DepthAttachment.View()}
		fb, err := NewFramebuffer(sc.driver, renderPass, sc.extent.Width, sc.extent.Height, attachments)
		if err != nil {
			return err
		}
		sc.Framebuffers[i] = fb
	}
	return nil
}

// AcquireNextImage returns the index of the next presentable image. An out of
// date swapchain is recreated on the spot and StatusOutOfDate is returned; a
// suboptimal one still yields a usable image.
func (sc *Swapchain) AcquireNextImage(timeoutNs uint64, imageAvailable *Semaphore, fence *Fence) (uint32, Status) {
	var sem SemaphoreHandle
	if imageAvailable != nil {
		sem = imageAvailable.Handle()
	}
	var fh FenceHandle
	if fence != nil {
		fh = fence.Handle()
	}

	index, res := sc.driver.AcquireNextImage(sc.handle.Get(), timeoutNs, sem, fh)
	switch res {
	case vk.Success:
		return index, StatusSuccess
	case vk.Suboptimal:
		core.LogDebug("acquired image %d from a suboptimal swapchain", index)
		return index, StatusSuccess
	case vk.ErrorOutOfDate:
		// Trigger swapchain recreation, then boot out of the render loop.
		sc.stale = true
		sc.dc.recreateSwapchain()
		return 0, StatusOutOfDate
	default:
		core.LogError("Failed to acquire swapchain image: %s", VulkanResultString(res, true))
		return 0, StatusFromResult(res)
	}
}

// Present returns the image to the swapchain. On success the display context
// moves to the next frame slot.
func (sc *Swapchain) Present(presentQueue QueueHandle, renderComplete *Semaphore, imageIndex uint32) Status {
	res := sc.driver.QueuePresent(presentQueue, sc.handle.Get(), renderComplete.Handle(), imageIndex)
	switch res {
	case vk.Success:
		sc.dc.advanceFrame()
		return StatusSuccess
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Swapchain is out of date, suboptimal or a framebuffer resize has occurred. Trigger swapchain recreation.
		sc.stale = true
		sc.dc.recreateSwapchain()
		return StatusFromResult(res)
	default:
		core.LogError("Failed to present swap chain image: %s", VulkanResultString(res, true))
		return StatusFromResult(res)
	}
}

func (sc *Swapchain) Destroy() {
	sc.destroyAttachments()
	sc.handle.Release(sc.driver.DestroySwapchain)
	sc.images = nil
}

func (sc *Swapchain) destroyFramebuffers() {
	for _, fb := range sc.Framebuffers {
		if fb != nil {
			fb.Destroy()
		}
	}
	sc.Framebuffers = nil
}

func (sc *Swapchain) destroyAttachments() {
	sc.destroyFramebuffers()
	if sc.DepthAttachment != nil {
		sc.DepthAttachment.Destroy()
		sc.DepthAttachment = nil
	}
	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for i := range sc.views {
		sc.views[i].Release(sc.driver.DestroyImageView)
	}
	sc.views = nil
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	for _, f := range formats {
		if f.Format == preferredSurfaceFormat.Format && f.ColorSpace == preferredSurfaceFormat.ColorSpace {
			return f, nil
		}
	}
	return vk.SurfaceFormat{}, fmt.Errorf("%w: %d formats offered", ErrNoSurfaceFormat, len(formats))
}

// choosePresentMode falls back to FIFO, the only mode every surface supports.
func choosePresentMode(modes []vk.PresentMode, preferred vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = emath.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = emath.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	return extent
}

// PresentModeFromString maps a configuration name onto a present mode.
func PresentModeFromString(name string) (vk.PresentMode, error) {
	switch name {
	case "mailbox":
		return vk.PresentModeMailbox, nil
	case "fifo":
		return vk.PresentModeFifo, nil
	case "fifo_relaxed":
		return vk.PresentModeFifoRelaxed, nil
	case "immediate":
		return vk.PresentModeImmediate, nil
	}
	return vk.PresentModeFifo, fmt.Errorf("%w: unknown present mode %q", core.ErrInvalidConfig, name)
}
