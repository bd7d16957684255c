package vulkan_test

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderPass(t *testing.T, d *vulkantest.Driver) *vulkan.RenderPass {
	t.Helper()
	rp, err := vulkan.NewRenderPass(d, vk.FormatB8g8r8a8Srgb, vk.FormatD32Sfloat, 0, 0, 600, 600, [4]float32{0, 0, 0.2, 1}, 1.0, 0)
	require.NoError(t, err)
	t.Cleanup(rp.Destroy)
	return rp
}

func TestCommandBufferStateWalk(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	rp := newRenderPass(t, d)

	cb, err := vulkan.NewCommandBuffer(d, vulkantest.CommandPool, true)
	require.NoError(t, err)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_READY, cb.State())

	require.NoError(t, cb.Begin(false, false, false))
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_RECORDING, cb.State())

	rp.Begin(cb, 0)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_IN_RENDER_PASS, cb.State())
	cb.SetViewport(vk.Viewport{Width: 600, Height: -600, Y: 600, MaxDepth: 1})
	cb.SetScissor(vk.Rect2D{Extent: vk.Extent2D{Width: 600, Height: 600}})
	rp.End(cb)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_RECORDING, cb.State())

	require.NoError(t, cb.End())
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_RECORDING_ENDED, cb.State())

	assert.Equal(t, vulkan.StatusSuccess, cb.Submit(vulkantest.GraphicsQueue, vulkan.SubmitInfo{}, nil))
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_SUBMITTED, cb.State())
	require.Len(t, d.Submits, 1)
	assert.Equal(t, []vulkan.CommandBufferHandle{cb.Handle()}, d.Submits[0].Info.CommandBuffers)

	require.NoError(t, cb.Reset())
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_READY, cb.State())

	cb.Free()
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_NOT_ALLOCATED, cb.State())
	assert.Zero(t, cb.Handle())

	assert.Equal(t, 1, d.CommandsNamed("begin_render_pass"))
	assert.Equal(t, 1, d.CommandsNamed("end_render_pass"))
}

func TestCommandBufferResetWhileRecording(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	cb, err := vulkan.NewCommandBuffer(d, vulkantest.CommandPool, true)
	require.NoError(t, err)
	defer cb.Free()

	require.NoError(t, cb.Begin(false, false, false))
	require.NoError(t, cb.Reset())
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_READY, cb.State())
}

func TestCommandBufferInvalidTransitionsPanic(t *testing.T) {
	cases := []struct {
		name  string
		setup func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass)
		fn    func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass)
	}{
		{
			name: "end while ready",
			fn:   func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.End() },
		},
		{
			name:  "begin while recording",
			setup: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.Begin(false, false, false) },
			fn:    func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.Begin(false, false, false) },
		},
		{
			name: "render pass begin while ready",
			fn:   func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass) { rp.Begin(cb, 0) },
		},
		{
			name:  "render pass end while recording",
			setup: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.Begin(false, false, false) },
			fn:    func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass) { rp.End(cb) },
		},
		{
			name: "end inside render pass",
			setup: func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass) {
				cb.Begin(false, false, false)
				rp.Begin(cb, 0)
			},
			fn: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.End() },
		},
		{
			name: "reset inside render pass",
			setup: func(cb *vulkan.CommandBuffer, rp *vulkan.RenderPass) {
				cb.Begin(false, false, false)
				rp.Begin(cb, 0)
			},
			fn: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.Reset() },
		},
		{
			name:  "submit while recording",
			setup: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) { cb.Begin(false, false, false) },
			fn: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) {
				cb.Submit(vulkantest.GraphicsQueue, vulkan.SubmitInfo{}, nil)
			},
		},
		{
			name: "viewport while ready",
			fn: func(cb *vulkan.CommandBuffer, _ *vulkan.RenderPass) {
				cb.SetViewport(vk.Viewport{})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := vulkantest.NewDriver(600, 600)
			rp := newRenderPass(t, d)
			cb, err := vulkan.NewCommandBuffer(d, vulkantest.CommandPool, true)
			require.NoError(t, err)
			if tc.setup != nil {
				tc.setup(cb, rp)
			}
			before := cb.State()
			assertPanicsWith(t, vulkan.ErrInvalidCommandBufferState, func() { tc.fn(cb, rp) })
			assert.Equal(t, before, cb.State())
		})
	}
}

func TestSingleUseCommandBuffer(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	cb, err := vulkan.AllocateAndBeginSingleUse(d, vulkantest.CommandPool)
	require.NoError(t, err)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_RECORDING, cb.State())

	require.NoError(t, cb.EndSingleUse(vulkantest.GraphicsQueue))
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_NOT_ALLOCATED, cb.State())
	assert.Len(t, d.Submits, 1)
	assert.Equal(t, 1, d.QueueWaitIdles)
	assert.Zero(t, d.LiveObjects())
}

func TestCommandBufferAllocationFailure(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	_, err := vulkan.NewCommandBuffer(d, vulkantest.CommandPool+1, true)
	assert.ErrorIs(t, err, vulkan.ErrVulkanCall)
}

func TestRenderPassArea(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	rp := newRenderPass(t, d)
	rp.SetRenderArea(0, 0, 1024, 768)
	assert.Equal(t, vk.Rect2D{Extent: vk.Extent2D{Width: 1024, Height: 768}}, rp.RenderArea())

	rp.Destroy()
	rp.Destroy()
	assert.Zero(t, rp.Handle())
}

func TestCommandBufferSubmitFailureRestoresFence(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.SubmitResults[1] = vk.ErrorDeviceLost
	fence, err := vulkan.NewFence(d, true)
	require.NoError(t, err)
	defer fence.Destroy()

	cb, err := vulkan.AllocateAndBeginSingleUse(d, vulkantest.CommandPool)
	require.NoError(t, err)
	defer cb.Free()

	err = cb.EndSingleUseWithFence(vulkantest.GraphicsQueue, fence)
	assert.ErrorIs(t, err, vulkan.ErrVulkanCall)
	assert.Equal(t, vulkan.COMMAND_BUFFER_STATE_RECORDING_ENDED, cb.State())
	// Nothing was submitted, so the fence must not be left for someone to wait on.
	assert.True(t, fence.IsSignaled())
	assert.True(t, d.FenceSignaled(fence.Handle()))

	// A successful submit resets the fence itself.
	d.Completion = vulkantest.CompleteOnWait
	assert.Equal(t, vulkan.StatusSuccess, cb.Submit(vulkantest.GraphicsQueue, vulkan.SubmitInfo{}, fence))
	assert.False(t, fence.IsSignaled())
	assert.Equal(t, vulkan.StatusSuccess, fence.Wait(vk.MaxUint64))
	assert.Equal(t, 1, d.BlockingWaits)
}
