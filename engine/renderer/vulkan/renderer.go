package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// Window is what the renderer needs from the platform layer each frame.
type Window interface {
	PollEvents()
	ShouldClose() bool
	FramebufferSize() (uint32, uint32)
}

type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateBegun
	FrameStateEnded
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "IDLE"
	case FrameStateBegun:
		return "FRAME_BEGUN"
	case FrameStateEnded:
		return "FRAME_ENDED"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

const DefaultFenceTimeout = time.Second

// Renderer drives the per-frame acquire, record, submit and present protocol
// on top of a DisplayContext.
type Renderer struct {
	window Window
	dc     *DisplayContext

	fenceTimeoutNs uint64
	state          FrameState

	// Frames successfully presented by this renderer.
	FrameNumber uint64
}

type RendererOption func(*Renderer)

// WithFenceTimeout bounds the wait on the current frame fence. Zero waits forever.
func WithFenceTimeout(d time.Duration) RendererOption {
	return func(r *Renderer) {
		if d <= 0 {
			r.fenceTimeoutNs = vk.MaxUint64
			return
		}
		r.fenceTimeoutNs = uint64(d.Nanoseconds())
	}
}

func NewRenderer(window Window, dc *DisplayContext, opts ...RendererOption) *Renderer {
	r := &Renderer{
		window:         window,
		dc:             dc,
		fenceTimeoutNs: uint64(DefaultFenceTimeout.Nanoseconds()),
		state:          FrameStateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) State() FrameState {
	return r.state
}

func (r *Renderer) DisplayContext() *DisplayContext {
	return r.dc
}

// BeginFrame prepares the command buffer of the next swapchain image and opens
// the main render pass on it. Anything but StatusSuccess means the frame must
// be skipped, and the returned command buffer is nil.
func (r *Renderer) BeginFrame() (*CommandBuffer, Status) {
	if r.state != FrameStateIdle {
		err := fmt.Errorf("%w: begin frame while %s", ErrInvalidFrameState, r.state)
		core.LogError(err.Error())
		panic(err)
	}
	dc := r.dc

	r.window.PollEvents()
	if r.window.ShouldClose() {
		return nil, StatusWindowShouldClose
	}
	if w, h := r.window.FramebufferSize(); w != dc.framebufferWidth || h != dc.framebufferHeight {
		dc.Resized(w, h)
	}

	// Check if recreating swap chain and boot out.
	if dc.needsRecreate() {
		dc.recreateSwapchain()
		return nil, StatusSwapchainResize
	}

	// Wait for the execution of the current frame to complete. The fence being free will allow this one to move on.
	switch status := dc.CurrentFrameFence().Wait(r.fenceTimeoutNs); status {
	case StatusSuccess:
	case StatusDeviceLost:
		return nil, status
	default:
		core.LogWarn("In-flight fence wait failure: %s", status)
		return nil, StatusFailedToWaitOnFence
	}

	// Acquire the next image from the swap chain. Pass along the semaphore that should signaled when this completes.
	// This same semaphore will later be waited on by the queue submission to ensure this image is available.
	index, status := dc.swapchain.AcquireNextImage(vk.MaxUint64, dc.imageAvailableSemaphore(), nil)
	switch status {
	case StatusSuccess:
	case StatusOutOfDate:
		return nil, StatusSwapchainResize
	default:
		return nil, status
	}
	dc.setImageIndex(index)

	// Make sure the previous frame is not using this image (i.e. its fence is being waited on).
	// The image is acquired and its semaphore signaled, so there is no skipping the frame from
	// here on: the wait is unbounded and failing it ends the loop.
	if fence := dc.imageFence(index); fence != nil && fence != dc.CurrentFrameFence() {
		if status := fence.Wait(vk.MaxUint64); status != StatusSuccess {
			core.LogError("Image in-flight fence wait failure: %s", status)
			if status.IsFatal() {
				return nil, status
			}
			return nil, StatusUnknownError
		}
	}

	// Begin recording commands.
	cb := dc.CommandBuffer()
	if err := cb.Reset(); err != nil {
		return nil, StatusUnknownError
	}
	if err := cb.Begin(false, false, false); err != nil {
		return nil, StatusUnknownError
	}

	// Dynamic state
	extent := dc.swapchain.Extent()
	cb.SetViewport(vk.Viewport{
		X:        0.0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	})
	cb.SetScissor(vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})

	rp := dc.mainRenderPass
	rp.SetRenderArea(0, 0, float32(extent.Width), float32(extent.Height))
	rp.Begin(cb, dc.FramebufferHandle())

	r.state = FrameStateBegun
	return cb, StatusSuccess
}

// EndFrame closes the frame opened by BeginFrame, submits it and presents.
func (r *Renderer) EndFrame() Status {
	if r.state != FrameStateBegun {
		err := fmt.Errorf("%w: end frame while %s", ErrInvalidFrameState, r.state)
		core.LogError(err.Error())
		panic(err)
	}
	dc := r.dc
	r.state = FrameStateIdle

	cb := dc.CommandBuffer()
	dc.mainRenderPass.End(cb)
	if err := cb.End(); err != nil {
		return StatusUnknownError
	}

	// This image is now owned by the current frame's fence. Submit resets it.
	fence := dc.CurrentFrameFence()
	dc.assignImageFence(dc.imageIndex, fence)

	// Each semaphore waits on the corresponding pipeline stage to complete. 1:1 ratio.
	// VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT prevents subsequent colour attachment
	// writes from executing until the semaphore signals (i.e. one frame is presented at a time)
	status := cb.Submit(dc.queues.Graphics, SubmitInfo{
		WaitSemaphores:   []SemaphoreHandle{dc.imageAvailableSemaphore().Handle()},
		WaitStages:       []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		SignalSemaphores: []SemaphoreHandle{dc.queueCompleteSemaphore().Handle()},
	}, fence)
	if status != StatusSuccess {
		core.LogError("queue submit failed: %s", status)
		return status
	}
	r.state = FrameStateEnded

	// Give the image back to the swapchain.
	status = dc.swapchain.Present(dc.queues.Present, dc.queueCompleteSemaphore(), dc.imageIndex)
	r.state = FrameStateIdle
	switch status {
	case StatusSuccess:
		r.FrameNumber++
		return StatusSuccess
	case StatusOutOfDate, StatusSuboptimal:
		return StatusSwapchainResize
	default:
		return status
	}
}
