package vulkan_test

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapchainCreation(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	dc := newDisplay(t, d, 3)
	sc := dc.Swapchain()

	assert.Equal(t, uint32(3), sc.ImageCount())
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, sc.ImageFormat().Format)
	assert.Equal(t, vk.PresentModeMailbox, sc.PresentMode())
	assert.Equal(t, vk.Extent2D{Width: 600, Height: 600}, sc.Extent())
	assert.Equal(t, vk.FormatD32Sfloat, sc.DepthFormat())
	assert.False(t, sc.IsStale())
	assert.Equal(t, 3, d.LiveFramebuffers())

	require.Len(t, d.SwapchainCreates, 1)
	assert.Zero(t, d.SwapchainCreates[0].OldSwapchain)
}

func TestSwapchainRequiresSRGBFormat(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Formats = []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}}

	_, err := vulkan.NewDisplayContext(d, displayConfig(3))
	assert.ErrorIs(t, err, vulkan.ErrNoSurfaceFormat)
	assert.Zero(t, d.LiveObjects())
}

func TestSwapchainRequiresDepthFormat(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.DepthFormats = nil

	_, err := vulkan.NewDisplayContext(d, displayConfig(3))
	assert.ErrorIs(t, err, vulkan.ErrNoDepthFormat)
	assert.Zero(t, d.LiveObjects())
}

func TestSwapchainFallsBackToFIFO(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.PresentModes = []vk.PresentMode{vk.PresentModeFifo}

	dc := newDisplay(t, d, 3)
	assert.Equal(t, vk.PresentModeFifo, dc.Swapchain().PresentMode())
}

func TestSwapchainUndefinedExtentUsesWindowSize(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.SetUndefinedExtent()
	cfg := displayConfig(3)
	cfg.Width, cfg.Height = 640, 480

	dc, err := vulkan.NewDisplayContext(d, cfg)
	require.NoError(t, err)
	defer dc.Destroy()
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, dc.Swapchain().Extent())
}

func TestSwapchainExtentIsClamped(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.SetUndefinedExtent()
	d.Capabilities.MaxImageExtent = vk.Extent2D{Width: 500, Height: 500}
	cfg := displayConfig(3)
	cfg.Width, cfg.Height = 640, 480

	dc, err := vulkan.NewDisplayContext(d, cfg)
	require.NoError(t, err)
	defer dc.Destroy()
	assert.Equal(t, vk.Extent2D{Width: 500, Height: 480}, dc.Swapchain().Extent())
}

func TestSwapchainZeroSizeBoots(t *testing.T) {
	d := vulkantest.NewDriver(0, 0)
	cfg := displayConfig(3)
	cfg.Width, cfg.Height = 0, 0

	_, err := vulkan.NewDisplayContext(d, cfg)
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Empty(t, d.SwapchainCreates)
}

func TestSwapchainImageCountIsClamped(t *testing.T) {
	cases := []struct {
		name      string
		requested uint32
		min, max  uint32
		want      uint32
	}{
		{"within range", 3, 2, 8, 3},
		{"above max", 3, 2, 2, 2},
		{"below min", 1, 2, 8, 2},
		{"unbounded", 5, 2, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := vulkantest.NewDriver(600, 600)
			d.Capabilities.MinImageCount = tc.min
			d.Capabilities.MaxImageCount = tc.max
			cfg := displayConfig(3)
			cfg.ImageCount = tc.requested

			dc, err := vulkan.NewDisplayContext(d, cfg)
			require.NoError(t, err)
			defer dc.Destroy()
			require.Len(t, d.SwapchainCreates, 1)
			assert.Equal(t, tc.want, d.SwapchainCreates[0].MinImageCount)
			assert.Equal(t, tc.want, dc.Swapchain().ImageCount())
		})
	}
}

func TestSwapchainAcquireSuboptimalIsUsable(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.AcquireResults[1] = vk.Suboptimal
	dc := newDisplay(t, d, 3)

	index, status := dc.Swapchain().AcquireNextImage(vk.MaxUint64, nil, nil)
	assert.Equal(t, vulkan.StatusSuccess, status)
	assert.Equal(t, uint32(0), index)
	assert.Len(t, d.SwapchainCreates, 1)
}

func TestSwapchainAcquireOutOfDateRecreates(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.AcquireResults[1] = vk.ErrorOutOfDate
	dc := newDisplay(t, d, 3)
	first := dc.Swapchain().Handle()

	_, status := dc.Swapchain().AcquireNextImage(vk.MaxUint64, nil, nil)
	assert.Equal(t, vulkan.StatusOutOfDate, status)
	require.Len(t, d.SwapchainCreates, 2)
	assert.Equal(t, first, d.SwapchainCreates[1].OldSwapchain)
	assert.NotEqual(t, first, dc.Swapchain().Handle())
	assert.False(t, dc.Swapchain().IsStale())
	assert.Equal(t, 1, d.LiveSwapchains())
	assert.Equal(t, 3, d.LiveFramebuffers())
}

func TestSwapchainAcquireFailureIsReported(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.AcquireResults[1] = vk.ErrorSurfaceLost
	dc := newDisplay(t, d, 3)

	_, status := dc.Swapchain().AcquireNextImage(vk.MaxUint64, nil, nil)
	assert.Equal(t, vulkan.StatusSurfaceLost, status)
	assert.Len(t, d.SwapchainCreates, 1)
}

func TestPresentModeFromString(t *testing.T) {
	cases := map[string]vk.PresentMode{
		"mailbox":      vk.PresentModeMailbox,
		"fifo":         vk.PresentModeFifo,
		"fifo_relaxed": vk.PresentModeFifoRelaxed,
		"immediate":    vk.PresentModeImmediate,
	}
	for name, want := range cases {
		got, err := vulkan.PresentModeFromString(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	got, err := vulkan.PresentModeFromString("vsync")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Equal(t, vk.PresentModeFifo, got)
}

func TestDisplayContextRejectsTooManyFrames(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	_, err := vulkan.NewDisplayContext(d, displayConfig(4))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Empty(t, d.SwapchainCreates)
}

func TestDisplayContextDefaults(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	cfg := displayConfig(0)
	cfg.ImageCount = 0
	dc, err := vulkan.NewDisplayContext(d, cfg)
	require.NoError(t, err)
	defer dc.Destroy()

	assert.Equal(t, vulkan.DefaultMaxFramesInFlight, dc.MaxFramesInFlight())
	assert.Equal(t, vulkan.DefaultSwapchainImageCount, dc.Swapchain().ImageCount())
	assert.Equal(t, uint32(0), dc.FrameCounter())
	assert.True(t, dc.CurrentFrameFence().IsSignaled())
}

func TestDisplayContextDestroyReleasesEverything(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	dc, err := vulkan.NewDisplayContext(d, displayConfig(3))
	require.NoError(t, err)
	assert.NotZero(t, d.LiveObjects())

	dc.Destroy()
	assert.Zero(t, d.LiveObjects())
	assert.Zero(t, d.LiveSwapchains())
	dc.Destroy()
	assert.Zero(t, d.LiveObjects())
}

func TestSwapchainRecreateTwiceWithoutFrames(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	dc := newDisplay(t, d, 3)
	sc := dc.Swapchain()

	d.Capabilities.MaxImageCount = 2
	d.SetSurfaceSize(800, 600)
	require.NoError(t, sc.Recreate(800, 600))
	require.NoError(t, dc.RegenerateFramebuffers())

	d.SetSurfaceSize(1024, 768)
	require.NoError(t, sc.Recreate(1024, 768))
	require.NoError(t, dc.RegenerateFramebuffers())

	assert.Equal(t, uint32(2), sc.ImageCount())
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, sc.ImageFormat().Format)
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, sc.Extent())
	assert.Equal(t, vk.Rect2D{Extent: vk.Extent2D{Width: 1024, Height: 768}}, dc.RenderPass().RenderArea())
	assert.Equal(t, 2, d.LiveFramebuffers())
	assert.Equal(t, 1, d.LiveSwapchains())

	require.Len(t, d.SwapchainCreates, 3)
	assert.NotZero(t, d.SwapchainCreates[1].OldSwapchain)
	assert.NotZero(t, d.SwapchainCreates[2].OldSwapchain)
	assert.NotEqual(t, d.SwapchainCreates[1].OldSwapchain, d.SwapchainCreates[2].OldSwapchain)
	assert.Equal(t, uint32(2), d.SwapchainCreates[2].MinImageCount)
}
