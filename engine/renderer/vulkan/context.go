package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

const (
	DefaultMaxFramesInFlight   uint8  = 3
	DefaultSwapchainImageCount uint32 = 3
)

type DisplayConfig struct {
	/** @brief The initial framebuffer width. */
	Width uint32
	/** @brief The initial framebuffer height. */
	Height uint32
	/** @brief Frame slots, 1 to 3. */
	MaxFramesInFlight uint8
	/** @brief Requested presentable images, clamped to the surface capabilities. */
	ImageCount uint32
	/** @brief The preferred present mode. FIFO is used when it is unavailable. */
	PresentMode vk.PresentMode
	/** @brief The colour the main render pass clears to. */
	ClearColor [4]float32
}

// DisplayContext owns everything tied to presenting: the swapchain, the main
// render pass, per-frame synchronization and per-image command buffers. The
// frame and image indices can only be moved by the Renderer and the Swapchain.
type DisplayContext struct {
	driver Driver
	queues DeviceQueues
	config DisplayConfig

	/** @brief The framebuffer's current width. */
	framebufferWidth uint32
	/** @brief The framebuffer's current height. */
	framebufferHeight uint32
	/** @brief Current generation of framebuffer size. If it does not match framebufferSizeLastGeneration, a new one should be generated. */
	framebufferSizeGeneration uint64
	/** @brief The generation of the framebuffer when it was last created. */
	framebufferSizeLastGeneration uint64

	swapchain      *Swapchain
	mainRenderPass *RenderPass

	/** @brief The graphics command buffers, one per swapchain image. */
	graphicsCommandBuffers []*CommandBuffer

	/** @brief The semaphores used to indicate image availability, one per frame. */
	imageAvailableSemaphores []*Semaphore
	/** @brief The semaphores used to indicate queue availability, one per frame. */
	queueCompleteSemaphores []*Semaphore
	/** @brief The in-flight fences, used to indicate to the application when a frame is busy/ready. */
	inFlightFences []*Fence

	/** @brief Holds pointers to fences which exist and are owned elsewhere, one per image. */
	imagesInFlight []*Fence

	/** @brief The index of the current swapchain image. */
	imageIndex uint32
	/** @brief The current frame slot. */
	currentFrame uint32
	/** @brief The number of frames handed to the presentation engine. */
	framesPresented uint64

	/** @brief Indicates if the swapchain is currently being recreated. */
	recreatingSwapchain bool
}

func NewDisplayContext(driver Driver, config DisplayConfig) (*DisplayContext, error) {
	if config.MaxFramesInFlight == 0 {
		config.MaxFramesInFlight = DefaultMaxFramesInFlight
	}
	if config.MaxFramesInFlight > 3 {
		return nil, fmt.Errorf("%w: max frames in flight must be in [1, 3], got %d", core.ErrInvalidConfig, config.MaxFramesInFlight)
	}
	if config.ImageCount == 0 {
		config.ImageCount = DefaultSwapchainImageCount
	}

	dc := &DisplayContext{
		driver:            driver,
		queues:            driver.Queues(),
		config:            config,
		framebufferWidth:  config.Width,
		framebufferHeight: config.Height,
	}
	if err := dc.create(); err != nil {
		dc.Destroy()
		return nil, err
	}
	core.LogInfo("Display context created with %d frames in flight.", config.MaxFramesInFlight)
	return dc, nil
}

func (dc *DisplayContext) create() error {
	swapchain, err := NewSwapchain(dc, dc.framebufferWidth, dc.framebufferHeight)
	if err != nil {
		return err
	}
	dc.swapchain = swapchain

	extent := swapchain.Extent()
	rp, err := NewRenderPass(dc.driver, swapchain.ImageFormat().Format, swapchain.DepthFormat(),
		0, 0, float32(extent.Width), float32(extent.Height), dc.config.ClearColor, 1.0, 0)
	if err != nil {
		return err
	}
	dc.mainRenderPass = rp

	if err := swapchain.RegenerateFramebuffers(rp); err != nil {
		return err
	}

	n := int(dc.config.MaxFramesInFlight)
	dc.imageAvailableSemaphores = make([]*Semaphore, n)
	dc.queueCompleteSemaphores = make([]*Semaphore, n)
	dc.inFlightFences = make([]*Fence, n)
	for i := 0; i < n; i++ {
		if dc.imageAvailableSemaphores[i], err = NewSemaphore(dc.driver); err != nil {
			return err
		}
		if dc.queueCompleteSemaphores[i], err = NewSemaphore(dc.driver); err != nil {
			return err
		}
		// Create the fence in a signaled state, indicating that the first frame has already been "rendered".
		// This will prevent the application from waiting indefinitely for the first frame to render since it
		// cannot be rendered until a frame is "rendered" before it.
		if dc.inFlightFences[i], err = NewFence(dc.driver, true); err != nil {
			return err
		}
	}

	if err := dc.createCommandBuffers(); err != nil {
		return err
	}
	// In flight fences should not yet exist at this point, so clear the list.
	dc.imagesInFlight = make([]*Fence, swapchain.ImageCount())
	dc.framebufferSizeLastGeneration = dc.framebufferSizeGeneration
	return nil
}

func (dc *DisplayContext) createCommandBuffers() error {
	pool := dc.driver.GraphicsCommandPool()
	dc.graphicsCommandBuffers = make([]*CommandBuffer, dc.swapchain.ImageCount())
	for i := range dc.graphicsCommandBuffers {
		cb, err := NewCommandBuffer(dc.driver, pool, true)
		if err != nil {
			return err
		}
		dc.graphicsCommandBuffers[i] = cb
	}
	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func (dc *DisplayContext) freeCommandBuffers() {
	for _, cb := range dc.graphicsCommandBuffers {
		if cb != nil {
			cb.Free()
		}
	}
	dc.graphicsCommandBuffers = nil
}

// RegenerateFramebuffers is the second half of swapchain recreation: it resizes
// the render area, rebuilds the framebuffers and resets per-image state.
func (dc *DisplayContext) RegenerateFramebuffers() error {
	sc := dc.swapchain
	extent := sc.Extent()
	dc.mainRenderPass.SetRenderArea(0, 0, float32(extent.Width), float32(extent.Height))
	if err := sc.RegenerateFramebuffers(dc.mainRenderPass); err != nil {
		return err
	}
	if len(dc.graphicsCommandBuffers) != int(sc.ImageCount()) {
		dc.freeCommandBuffers()
		if err := dc.createCommandBuffers(); err != nil {
			return err
		}
	}
	dc.imagesInFlight = make([]*Fence, sc.ImageCount())
	dc.imageIndex = 0
	dc.framebufferSizeLastGeneration = dc.framebufferSizeGeneration
	return nil
}

// Resized records a new framebuffer size. The swapchain is rebuilt at the
// start of the next frame.
func (dc *DisplayContext) Resized(width, height uint32) {
	dc.framebufferWidth = width
	dc.framebufferHeight = height
	dc.framebufferSizeGeneration++
	core.LogDebug("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, dc.framebufferSizeGeneration)
}

func (dc *DisplayContext) needsRecreate() bool {
	return dc.swapchain.IsStale() || dc.framebufferSizeGeneration != dc.framebufferSizeLastGeneration
}

// recreateSwapchain rebuilds the swapchain and its framebuffers at the current
// framebuffer size. A minimized window is reported with core.ErrSwapchainBooting
// and leaves the swapchain stale; any other failure aborts.
func (dc *DisplayContext) recreateSwapchain() error {
	// If already being recreated, do not try again.
	if dc.recreatingSwapchain {
		core.LogDebug("recreateSwapchain called when already recreating. Booting.")
		return core.ErrSwapchainBooting
	}
	dc.recreatingSwapchain = true
	defer func() { dc.recreatingSwapchain = false }()

	if err := dc.swapchain.Recreate(dc.framebufferWidth, dc.framebufferHeight); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			core.LogDebug("recreateSwapchain called when window is < 1 in a dimension. Booting.")
			return err
		}
		core.LogError("swapchain recreation failed: %s", err)
		panic(err)
	}
	if err := dc.RegenerateFramebuffers(); err != nil {
		core.LogError("framebuffer regeneration failed: %s", err)
		panic(err)
	}
	return nil
}

func (dc *DisplayContext) advanceFrame() {
	dc.currentFrame = (dc.currentFrame + 1) % uint32(dc.config.MaxFramesInFlight)
	dc.framesPresented++
}

func (dc *DisplayContext) setImageIndex(index uint32) {
	dc.imageIndex = index
}

func (dc *DisplayContext) imageFence(index uint32) *Fence {
	return dc.imagesInFlight[index]
}

func (dc *DisplayContext) assignImageFence(index uint32, fence *Fence) {
	dc.imagesInFlight[index] = fence
}

func (dc *DisplayContext) imageAvailableSemaphore() *Semaphore {
	return dc.imageAvailableSemaphores[dc.currentFrame]
}

func (dc *DisplayContext) queueCompleteSemaphore() *Semaphore {
	return dc.queueCompleteSemaphores[dc.currentFrame]
}

// CommandBuffer returns the graphics command buffer of the current swapchain image.
func (dc *DisplayContext) CommandBuffer() *CommandBuffer {
	return dc.graphicsCommandBuffers[dc.imageIndex]
}

func (dc *DisplayContext) CurrentFrameFence() *Fence {
	return dc.inFlightFences[dc.currentFrame]
}

func (dc *DisplayContext) FramebufferHandle() FramebufferHandle {
	return dc.swapchain.Framebuffer(dc.imageIndex).Handle()
}

// FrameCounter is the index of the current frame slot.
func (dc *DisplayContext) FrameCounter() uint32 {
	return dc.currentFrame
}

func (dc *DisplayContext) ImageIndex() uint32 {
	return dc.imageIndex
}

func (dc *DisplayContext) FramesPresented() uint64 {
	return dc.framesPresented
}

func (dc *DisplayContext) Swapchain() *Swapchain {
	return dc.swapchain
}

func (dc *DisplayContext) RenderPass() *RenderPass {
	return dc.mainRenderPass
}

func (dc *DisplayContext) Driver() Driver {
	return dc.driver
}

func (dc *DisplayContext) Queues() DeviceQueues {
	return dc.queues
}

func (dc *DisplayContext) MaxFramesInFlight() uint8 {
	return dc.config.MaxFramesInFlight
}

func (dc *DisplayContext) FramebufferSize() (uint32, uint32) {
	return dc.framebufferWidth, dc.framebufferHeight
}

func (dc *DisplayContext) WaitIdle() Status {
	return StatusFromResult(dc.driver.DeviceWaitIdle())
}

// Destroy tears everything down in reverse creation order. The driver itself
// is left alive.
func (dc *DisplayContext) Destroy() {
	dc.driver.DeviceWaitIdle()

	dc.imagesInFlight = nil
	dc.freeCommandBuffers()
	for i := range dc.inFlightFences {
		if dc.inFlightFences[i] != nil {
			dc.inFlightFences[i].Destroy()
		}
		if dc.queueCompleteSemaphores[i] != nil {
			dc.queueCompleteSemaphores[i].Destroy()
		}
		if dc.imageAvailableSemaphores[i] != nil {
			dc.imageAvailableSemaphores[i].Destroy()
		}
	}
	dc.inFlightFences = nil
	dc.queueCompleteSemaphores = nil
	dc.imageAvailableSemaphores = nil

	if dc.swapchain != nil {
		dc.swapchain.destroyFramebuffers()
	}
	if dc.mainRenderPass != nil {
		dc.mainRenderPass.Destroy()
		dc.mainRenderPass = nil
	}
	if dc.swapchain != nil {
		dc.swapchain.Destroy()
		dc.swapchain = nil
	}
}
