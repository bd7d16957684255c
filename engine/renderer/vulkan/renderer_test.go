package vulkan_test

import (
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rendererFixture struct {
	driver   *vulkantest.Driver
	window   *vulkantest.Window
	display  *vulkan.DisplayContext
	renderer *vulkan.Renderer
}

func newRendererFixture(t *testing.T, frames uint8, configure func(d *vulkantest.Driver)) *rendererFixture {
	t.Helper()
	d := vulkantest.NewDriver(600, 600)
	if configure != nil {
		configure(d)
	}
	w := vulkantest.NewWindow(600, 600)
	dc := newDisplay(t, d, frames)
	return &rendererFixture{
		driver:   d,
		window:   w,
		display:  dc,
		renderer: vulkan.NewRenderer(w, dc, vulkan.WithFenceTimeout(0)),
	}
}

// frame runs one BeginFrame/EndFrame pair and returns the first non-success status.
func (f *rendererFixture) frame(t *testing.T) vulkan.Status {
	t.Helper()
	cb, status := f.renderer.BeginFrame()
	if status != vulkan.StatusSuccess {
		assert.Nil(t, cb)
		assert.Equal(t, vulkan.FrameStateIdle, f.renderer.State())
		return status
	}
	require.NotNil(t, cb)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_IN_RENDER_PASS, cb.State())
	assert.Equal(t, vulkan.FrameStateBegun, f.renderer.State())
	status = f.renderer.EndFrame()
	assert.Equal(t, vulkan.FrameStateIdle, f.renderer.State())
	return status
}

func (f *rendererFixture) resize(width, height uint32) {
	f.window.Width, f.window.Height = width, height
	f.driver.SetSurfaceSize(width, height)
}

func TestRendererSteadyState(t *testing.T) {
	f := newRendererFixture(t, 3, nil)

	for i := 0; i < 100; i++ {
		require.Equal(t, vulkan.StatusSuccess, f.frame(t), "frame %d", i+1)
	}

	assert.Len(t, f.driver.Presents, 100)
	assert.Len(t, f.driver.Submits, 100)
	assert.Equal(t, uint64(100), f.display.FramesPresented())
	assert.Equal(t, uint64(100), f.renderer.FrameNumber)
	assert.Equal(t, uint32(100%3), f.display.FrameCounter())
	assert.Len(t, f.driver.SwapchainCreates, 1)
	assert.Zero(t, f.driver.DoubleWaits)
	assert.Zero(t, f.driver.SignaledSemaphoreAcquires)
	assert.Equal(t, 100, f.window.Polls)
}

func TestRendererSubmitUsesFrameSynchronization(t *testing.T) {
	f := newRendererFixture(t, 2, nil)

	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	// Frame slots cycle independently of swapchain images.
	fences := []vulkan.FenceHandle{f.driver.Submits[0].Fence, f.driver.Submits[1].Fence, f.driver.Submits[2].Fence}
	assert.NotEqual(t, fences[0], fences[1])
	assert.Equal(t, fences[0], fences[2])

	for i, s := range f.driver.Submits {
		assert.Equal(t, vulkantest.GraphicsQueue, s.Queue)
		require.Len(t, s.Info.WaitSemaphores, 1)
		require.Len(t, s.Info.SignalSemaphores, 1)
		assert.Equal(t, f.driver.Presents[i].Wait, s.Info.SignalSemaphores[0])
		assert.Equal(t, []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}, s.Info.WaitStages)
	}
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{
		f.driver.Presents[0].ImageIndex,
		f.driver.Presents[1].ImageIndex,
		f.driver.Presents[2].ImageIndex,
	})
}

func TestRendererFrameCounterCycles(t *testing.T) {
	for _, frames := range []uint8{1, 2, 3} {
		f := newRendererFixture(t, frames, nil)
		for k := 1; k <= 10; k++ {
			require.Equal(t, vulkan.StatusSuccess, f.frame(t))
			assert.Equal(t, uint32(k%int(frames)), f.display.FrameCounter(), "N=%d K=%d", frames, k)
		}
	}
}

func TestRendererAcquireOutOfDate(t *testing.T) {
	f := newRendererFixture(t, 3, func(d *vulkantest.Driver) {
		d.AcquireResults[50] = vk.ErrorOutOfDate
	})
	first := f.display.Swapchain().Handle()

	for i := 1; i < 50; i++ {
		require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	}
	assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	require.Len(t, f.driver.SwapchainCreates, 2)
	assert.Equal(t, first, f.driver.SwapchainCreates[1].OldSwapchain)
	assert.Equal(t, uint32(49%3), f.display.FrameCounter())
	assert.Equal(t, uint64(49), f.display.FramesPresented())

	assert.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Len(t, f.driver.Presents, 50)
	assert.Equal(t, 1, f.driver.LiveSwapchains())
}

func TestRendererRecreatesOnWindowResize(t *testing.T) {
	f := newRendererFixture(t, 3, nil)
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	f.resize(800, 600)
	assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, f.display.Swapchain().Extent())
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	f.driver.Capabilities.MaxImageCount = 2
	f.resize(1024, 768)
	assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	for i := 0; i < 5; i++ {
		require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	}

	sc := f.display.Swapchain()
	assert.Equal(t, uint32(2), sc.ImageCount())
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, sc.Extent())
	assert.Equal(t, vk.Rect2D{Extent: vk.Extent2D{Width: 1024, Height: 768}}, f.display.RenderPass().RenderArea())
	assert.Len(t, f.driver.SwapchainCreates, 3)
	assert.Equal(t, 2, f.driver.LiveFramebuffers())
	assert.Equal(t, 1, f.driver.LiveSwapchains())
	assert.Equal(t, uint64(7), f.renderer.FrameNumber)
}

func TestRendererMinimizedWindow(t *testing.T) {
	f := newRendererFixture(t, 3, nil)
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	f.resize(0, 0)
	for i := 0; i < 3; i++ {
		assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	}
	assert.Len(t, f.driver.SwapchainCreates, 1)
	assert.True(t, f.display.Swapchain().IsStale())
	assert.Equal(t, 1, f.driver.AcquireCalls)

	f.resize(600, 600)
	assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	assert.Len(t, f.driver.SwapchainCreates, 2)
	assert.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Equal(t, uint64(2), f.display.FramesPresented())
}

func TestRendererPresentSuboptimal(t *testing.T) {
	f := newRendererFixture(t, 3, func(d *vulkantest.Driver) {
		d.PresentResults[3] = vk.Suboptimal
	})

	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Equal(t, vulkan.StatusSwapchainResize, f.frame(t))
	assert.Equal(t, uint64(2), f.display.FramesPresented())
	assert.Equal(t, uint32(2), f.display.FrameCounter())
	assert.Len(t, f.driver.SwapchainCreates, 2)

	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Equal(t, uint64(3), f.display.FramesPresented())
}

func TestRendererWindowShouldClose(t *testing.T) {
	f := newRendererFixture(t, 3, nil)
	f.window.Close = true

	assert.Equal(t, vulkan.StatusWindowShouldClose, f.frame(t))
	assert.Zero(t, f.driver.AcquireCalls)
	assert.Empty(t, f.driver.Submits)
}

func TestRendererFenceTimeout(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait
	w := vulkantest.NewWindow(600, 600)
	dc := newDisplay(t, d, 1)
	r := vulkan.NewRenderer(w, dc, vulkan.WithFenceTimeout(10*time.Millisecond))
	f := &rendererFixture{driver: d, window: w, display: dc, renderer: r}

	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	d.WaitResult = vk.Timeout
	assert.Equal(t, vulkan.StatusFailedToWaitOnFence, f.frame(t))
	assert.Equal(t, 1, d.AcquireCalls)

	d.WaitResult = vk.ErrorDeviceLost
	assert.Equal(t, vulkan.StatusDeviceLost, f.frame(t))

	// The GPU catches up and the loop carries on. The skipped frames acquired nothing.
	d.WaitResult = vk.Success
	assert.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Equal(t, 2, d.AcquireCalls)
	assert.Zero(t, d.SignaledSemaphoreAcquires)
}

func TestRendererImagesInFlight(t *testing.T) {
	f := newRendererFixture(t, 3, func(d *vulkantest.Driver) {
		d.Capabilities.MaxImageCount = 2
		d.Completion = vulkantest.CompleteOnWait
	})
	require.Equal(t, uint32(2), f.display.Swapchain().ImageCount())

	for i := 0; i < 4; i++ {
		require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	}
	// Frames 3 and 4 reuse images still owned by frames 1 and 2.
	assert.Equal(t, 2, f.driver.BlockingWaits)
	assert.Zero(t, f.driver.DoubleWaits)
}

func TestRendererImagesInFlightWaitIsUnbounded(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Capabilities.MaxImageCount = 2
	d.Completion = vulkantest.CompleteOnWait
	w := vulkantest.NewWindow(600, 600)
	dc := newDisplay(t, d, 3)
	r := vulkan.NewRenderer(w, dc, vulkan.WithFenceTimeout(10*time.Millisecond))
	f := &rendererFixture{driver: d, window: w, display: dc, renderer: r}

	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	// The GPU is now slower than the frame fence timeout. Once an image is
	// acquired the frame cannot be skipped, so the image fence wait rides it out.
	d.BoundedWaitResult = vk.Timeout
	for i := 0; i < 3; i++ {
		require.Equal(t, vulkan.StatusSuccess, f.frame(t), "frame %d", i+3)
	}
	assert.Equal(t, 3, d.BlockingWaits)
	assert.Len(t, d.Presents, 5)
	assert.Zero(t, d.SignaledSemaphoreAcquires)
}

func TestRendererImagesInFlightFailureIsFatal(t *testing.T) {
	f := newRendererFixture(t, 3, func(d *vulkantest.Driver) {
		d.Capabilities.MaxImageCount = 2
		d.Completion = vulkantest.CompleteOnWait
	})
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))

	f.driver.WaitResult = vk.Timeout
	status := f.frame(t)
	assert.Equal(t, vulkan.StatusUnknownError, status)
	assert.True(t, status.IsFatal())
	assert.Equal(t, 3, f.driver.AcquireCalls)

	f.driver.WaitResult = vk.ErrorDeviceLost
	assert.Equal(t, vulkan.StatusDeviceLost, f.frame(t))
}

func TestRendererSubmitFailureKeepsFrameFenceWaitable(t *testing.T) {
	f := newRendererFixture(t, 1, func(d *vulkantest.Driver) {
		d.SubmitResults[2] = vk.ErrorOutOfDeviceMemory
	})
	require.Equal(t, vulkan.StatusSuccess, f.frame(t))
	fence := f.display.CurrentFrameFence()
	live := f.driver.LiveObjects()

	assert.Equal(t, vulkan.StatusOutOfDeviceMemory, f.frame(t))
	assert.Same(t, fence, f.display.CurrentFrameFence())
	assert.True(t, fence.IsSignaled())
	assert.True(t, f.driver.FenceSignaled(fence.Handle()))
	assert.Equal(t, live, f.driver.LiveObjects())

	// With an unbounded timeout the next frame would hang on a fence nothing signals.
	assert.Equal(t, vulkan.StatusSuccess, f.frame(t))
	assert.Len(t, f.driver.Submits, 2)
	assert.Len(t, f.driver.Presents, 2)
}

func TestRendererMisusePanics(t *testing.T) {
	f := newRendererFixture(t, 3, nil)

	assertPanicsWith(t, vulkan.ErrInvalidFrameState, func() { f.renderer.EndFrame() })

	_, status := f.renderer.BeginFrame()
	require.Equal(t, vulkan.StatusSuccess, status)
	assertPanicsWith(t, vulkan.ErrInvalidFrameState, func() { f.renderer.BeginFrame() })
	assert.Equal(t, vulkan.StatusSuccess, f.renderer.EndFrame())
}

func TestRendererDestroyAfterFrames(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait
	w := vulkantest.NewWindow(600, 600)
	dc, err := vulkan.NewDisplayContext(d, displayConfig(3))
	require.NoError(t, err)
	r := vulkan.NewRenderer(w, dc)

	for i := 0; i < 5; i++ {
		_, status := r.BeginFrame()
		require.Equal(t, vulkan.StatusSuccess, status)
		require.Equal(t, vulkan.StatusSuccess, r.EndFrame())
	}
	dc.Destroy()
	assert.Zero(t, d.LiveObjects())
	assert.Zero(t, d.LiveSwapchains())
}

func TestFrameStateString(t *testing.T) {
	assert.Equal(t, "IDLE", vulkan.FrameStateIdle.String())
	assert.Equal(t, "FRAME_BEGUN", vulkan.FrameStateBegun.String())
	assert.Equal(t, "FRAME_ENDED", vulkan.FrameStateEnded.String())
}
