package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
)

var (
	ErrWindowClosed    = errors.New("window closed")
	ErrRendererFailure = errors.New("renderer failure")
)

// Surface is a window the native backend can present to.
type Surface interface {
	vulkan.Window
	vulkan.SurfaceProvider
}

// FrameContext is what a frame's recorder gets to work with. Everything in it
// is only valid until the recorder returns.
type FrameContext struct {
	CommandBuffer *vulkan.CommandBuffer
	Fence         *vulkan.Fence
	FrameNumber   uint64
	FrameIndex    uint32
	ImageIndex    uint32
	Width         uint32
	Height        uint32
}

type RenderPacket struct {
	DeltaTime float64
	// Record is called between BeginFrame and EndFrame, with the main render
	// pass open. May be nil.
	Record func(frame *FrameContext) error
}

type RendererSystem struct {
	backend    *vulkan.Renderer
	display    *vulkan.DisplayContext
	driver     vulkan.Driver
	ownsDriver bool
	metrics    *core.FrameMetrics

	// Frames that were skipped because the swapchain was busy being recreated
	// or a wait did not complete.
	FramesSkipped uint64
}

// NewNativeRendererSystem creates the Vulkan device for the window and the
// renderer on top of it. The device is destroyed on Shutdown.
func NewNativeRendererSystem(cfg *core.Config, appName string, window Surface) (*RendererSystem, error) {
	driver, err := vulkan.NewNativeDriver(window, vulkan.NativeConfig{
		ApplicationName: appName,
		Validation:      cfg.Renderer.Validation,
	})
	if err != nil {
		return nil, err
	}
	r, err := NewRendererSystem(cfg, window, driver)
	if err != nil {
		driver.Destroy()
		return nil, err
	}
	r.ownsDriver = true
	return r, nil
}

func NewRendererSystem(cfg *core.Config, window vulkan.Window, driver vulkan.Driver) (*RendererSystem, error) {
	presentMode, err := vulkan.PresentModeFromString(cfg.Renderer.PresentMode)
	if err != nil {
		return nil, err
	}

	width, height := window.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = cfg.Window.Width, cfg.Window.Height
	}

	dc, err := vulkan.NewDisplayContext(driver, vulkan.DisplayConfig{
		Width:             width,
		Height:            height,
		MaxFramesInFlight: cfg.Renderer.MaxFramesInFlight,
		ImageCount:        cfg.Renderer.SwapchainImageCount,
		PresentMode:       presentMode,
		ClearColor:        cfg.Renderer.ClearColor,
	})
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Renderer.FenceTimeoutMS) * time.Millisecond
	return &RendererSystem{
		backend: vulkan.NewRenderer(window, dc, vulkan.WithFenceTimeout(timeout)),
		display: dc,
		driver:  driver,
		metrics: core.NewFrameMetrics(),
	}, nil
}

func (r *RendererSystem) Driver() vulkan.Driver {
	return r.driver
}

func (r *RendererSystem) DisplayContext() *vulkan.DisplayContext {
	return r.display
}

func (r *RendererSystem) Metrics() *core.FrameMetrics {
	return r.metrics
}

func (r *RendererSystem) FrameNumber() uint64 {
	return r.backend.FrameNumber
}

// OnResize lets the display context know the framebuffer changed size. The
// swapchain is recreated at the start of the next frame.
func (r *RendererSystem) OnResize(width, height uint32) {
	r.display.Resized(width, height)
}

// DrawFrame runs one frame. Frames the backend cannot draw right now are
// skipped and reported as success; only a closed window and fatal statuses
// come back as errors.
func (r *RendererSystem) DrawFrame(packet *RenderPacket) error {
	r.metrics.Update(packet.DeltaTime)

	cb, status := r.backend.BeginFrame()
	if err := r.handleStatus("begin frame", status); err != nil || status != vulkan.StatusSuccess {
		return err
	}

	var recordErr error
	if packet.Record != nil {
		extent := r.display.Swapchain().Extent()
		recordErr = packet.Record(&FrameContext{
			CommandBuffer: cb,
			Fence:         r.display.CurrentFrameFence(),
			FrameNumber:   r.backend.FrameNumber,
			FrameIndex:    r.display.FrameCounter(),
			ImageIndex:    r.display.ImageIndex(),
			Width:         extent.Width,
			Height:        extent.Height,
		})
	}

	// End the frame even when recording failed, the command buffer must leave the render pass.
	status = r.backend.EndFrame()
	if recordErr != nil {
		return fmt.Errorf("record frame %d: %w", r.backend.FrameNumber, recordErr)
	}
	return r.handleStatus("end frame", status)
}

func (r *RendererSystem) handleStatus(step string, status vulkan.Status) error {
	switch {
	case status == vulkan.StatusSuccess:
		return nil
	case status == vulkan.StatusWindowShouldClose:
		return ErrWindowClosed
	case status.IsFatal():
		err := fmt.Errorf("%w: %s: %s", ErrRendererFailure, step, status)
		core.LogError(err.Error())
		return err
	}
	r.FramesSkipped++
	if status != vulkan.StatusSwapchainResize {
		core.LogDebug("Frame skipped on %s: %s", step, status)
	}
	return nil
}

func (r *RendererSystem) Shutdown() error {
	if status := r.display.WaitIdle(); !status.IsSuccess() {
		core.LogWarn("Device wait idle on shutdown: %s", status)
	}
	r.display.Destroy()
	if r.ownsDriver {
		r.driver.Destroy()
	}
	core.LogInfo("Renderer shut down after %d frames (%d skipped).", r.backend.FrameNumber, r.FramesSkipped)
	return nil
}
