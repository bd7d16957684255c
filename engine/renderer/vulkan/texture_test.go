package vulkan_test

import (
	"bytes"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixels(w, h, channels int, value byte) []byte {
	return bytes.Repeat([]byte{value}, w*h*channels)
}

func textureConfig(name string, ringSize uint32) vulkan.TextureConfig {
	return vulkan.TextureConfig{
		Name:         name,
		Width:        4,
		Height:       4,
		ChannelCount: 4,
		RingSize:     ringSize,
	}
}

func TestTextureFormat(t *testing.T) {
	cases := map[uint8]vk.Format{
		1: vk.FormatR8Unorm,
		2: vk.FormatR8g8Unorm,
		3: vk.FormatR8g8b8Unorm,
		4: vk.FormatR8g8b8a8Unorm,
	}
	for channels, want := range cases {
		got, err := vulkan.TextureFormat(channels)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := vulkan.TextureFormat(5)
	assert.Error(t, err)
}

func TestTextureRejectsWrongDataSize(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)

	_, err := vulkan.NewStaticTexture(d, textureConfig("short", 0), pixels(4, 4, 3, 0))
	assert.ErrorIs(t, err, vulkan.ErrTextureDataSize)
	_, err = vulkan.NewStreamedTexture(d, textureConfig("short", 3), pixels(4, 4, 3, 0))
	assert.ErrorIs(t, err, vulkan.ErrTextureDataSize)
	assert.Zero(t, d.LiveObjects())

	tex, err := vulkan.NewStaticTexture(d, textureConfig("ok", 0), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()
	assert.ErrorIs(t, tex.Update(pixels(2, 2, 4, 0)), vulkan.ErrTextureDataSize)
	assert.Equal(t, uint32(0), tex.Generation())
}

func TestStaticTexture(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Anisotropy = 8

	tex, err := vulkan.NewStaticTexture(d, textureConfig("static", 0), pixels(4, 4, 4, 0xAA))
	require.NoError(t, err)
	assert.False(t, tex.IsStreamed())
	assert.Equal(t, uint32(0), tex.Generation())
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, tex.Format)
	assert.NotZero(t, tex.Image().View())

	info, ok := d.SamplerInfo(tex.Sampler())
	require.True(t, ok)
	assert.Equal(t, float32(8), info.MaxAnisotropy)
	assert.Equal(t, vk.FilterLinear, info.Filter)
	assert.Equal(t, vk.SamplerAddressModeRepeat, info.AddressMode)

	// The initial upload stalls the queue before and after.
	assert.Equal(t, 2, d.QueueWaitIdles)
	assert.Equal(t, 1, d.CommandsNamed("copy"))

	img := tex.Image()
	require.NoError(t, tex.Update(pixels(4, 4, 4, 0xBB)))
	assert.Equal(t, uint32(1), tex.Generation())
	assert.Equal(t, 4, d.QueueWaitIdles)
	assert.Same(t, img, tex.Image())
	assert.Same(t, img, tex.ImageForFrame(nil))
	assert.Zero(t, tex.PendingUpdates())

	tex.Destroy()
	assert.Equal(t, vulkan.InvalidGeneration, tex.Generation())
	assert.Zero(t, d.LiveObjects())
}

func TestTextureSamplerAnisotropyIsCapped(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Anisotropy = 32

	tex, err := vulkan.NewStaticTexture(d, textureConfig("capped", 0), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()
	info, ok := d.SamplerInfo(tex.Sampler())
	require.True(t, ok)
	assert.Equal(t, float32(16), info.MaxAnisotropy)
}

func TestStreamedTextureUpdateVisibleAfterCompletion(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("stream", 3), pixels(4, 4, 4, 1))
	require.NoError(t, err)
	defer tex.Destroy()
	assert.True(t, tex.IsStreamed())
	assert.Equal(t, uint32(0), tex.Generation())
	initial := tex.Image()

	require.NoError(t, tex.Update(pixels(4, 4, 4, 2)))
	assert.Equal(t, uint32(0), tex.Generation())
	assert.Equal(t, 1, tex.PendingUpdates())

	tex.UpdateState()
	assert.Equal(t, uint32(0), tex.Generation())
	assert.Same(t, initial, tex.Image())

	d.Complete()
	tex.UpdateState()
	assert.Equal(t, uint32(1), tex.Generation())
	assert.Zero(t, tex.PendingUpdates())
	assert.NotSame(t, initial, tex.Image())
}

func TestStreamedTextureBacksOffWhenRingIsFull(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("ring", 3), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()
	baseline := d.BlockingWaits

	for i := byte(1); i <= 5; i++ {
		require.NoError(t, tex.Update(pixels(4, 4, 4, i)))
		assert.Less(t, tex.PendingUpdates(), 3)
	}
	// The first two updates fit in free slots, each later one waits for the oldest.
	assert.Equal(t, baseline+3, d.BlockingWaits)
	assert.Equal(t, uint32(3), tex.Generation())
	assert.Equal(t, 2, tex.PendingUpdates())
	assert.Zero(t, d.DoubleWaits)

	d.Complete()
	tex.UpdateState()
	assert.Equal(t, uint32(5), tex.Generation())
	assert.Zero(t, tex.PendingUpdates())
}

func TestStreamedTextureWaitsForReaders(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("reader", 2), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()

	frameFence, err := vulkan.NewFence(d, false)
	require.NoError(t, err)
	defer frameFence.Destroy()
	submitWith(t, d, frameFence)

	sampled := tex.ImageForFrame(frameFence)
	assert.Same(t, tex.Image(), sampled)

	require.NoError(t, tex.Update(pixels(4, 4, 4, 1)))
	assert.False(t, frameFence.IsSignaled())

	// The ring of two is full, so the sampled slot is rewritten only once the frame is done.
	baseline := d.BlockingWaits
	require.NoError(t, tex.Update(pixels(4, 4, 4, 2)))
	assert.True(t, frameFence.IsSignaled())
	assert.Equal(t, baseline+2, d.BlockingWaits)
	assert.Equal(t, uint32(1), tex.Generation())
}

func TestStreamedTextureRingSize(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	for _, size := range []uint32{1, 4} {
		_, err := vulkan.NewStreamedTexture(d, textureConfig("bad", size), pixels(4, 4, 4, 0))
		assert.ErrorIs(t, err, vulkan.ErrInvalidRingSize, "ring size %d", size)
	}
	assert.Zero(t, d.LiveObjects())

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("default", 0), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	// Three slots, each with an image, a view, a staging buffer and a fence, plus the sampler.
	// Upload command buffers are gone once their fence has been seen.
	assert.Equal(t, 3*4+1, d.LiveObjects())
	tex.Destroy()
	assert.Zero(t, d.LiveObjects())
}

func TestStreamedTextureDestroyWaitsForUploads(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("inflight", 3), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	require.NoError(t, tex.Update(pixels(4, 4, 4, 1)))
	require.NoError(t, tex.Update(pixels(4, 4, 4, 2)))
	baseline := d.BlockingWaits

	tex.Destroy()
	assert.Equal(t, baseline+2, d.BlockingWaits)
	assert.Zero(t, d.LiveObjects())
}

func TestStreamedTextureRecoversFromFailedSubmit(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("retry", 3), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()
	live := d.LiveObjects()

	d.SubmitResults[d.SubmitCalls+1] = vk.ErrorOutOfDeviceMemory
	assert.ErrorIs(t, tex.Update(pixels(4, 4, 4, 1)), vulkan.ErrVulkanCall)
	assert.Zero(t, tex.PendingUpdates())
	assert.Equal(t, uint32(0), tex.Generation())
	assert.Equal(t, live, d.LiveObjects())

	// The slot that failed is usable again right away.
	for i := byte(2); i <= 4; i++ {
		require.NoError(t, tex.Update(pixels(4, 4, 4, i)))
	}
	tex.UpdateState()
	assert.Equal(t, uint32(3), tex.Generation())
	assert.Zero(t, tex.PendingUpdates())
	assert.Equal(t, live, d.LiveObjects())
}

func TestStreamedTextureFreesUploadBuffers(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	d.Completion = vulkantest.CompleteOnWait

	tex, err := vulkan.NewStreamedTexture(d, textureConfig("buffers", 2), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()
	live := d.LiveObjects()

	require.NoError(t, tex.Update(pixels(4, 4, 4, 1)))
	assert.Equal(t, live+1, d.LiveObjects(), "one upload in flight")

	d.Complete()
	tex.UpdateState()
	assert.Equal(t, live, d.LiveObjects())
}

func TestGenerationTracker(t *testing.T) {
	d := vulkantest.NewDriver(600, 600)
	tex, err := vulkan.NewStaticTexture(d, textureConfig("tracked", 0), pixels(4, 4, 4, 0))
	require.NoError(t, err)
	defer tex.Destroy()

	g := vulkan.NewGenerationTracker()
	assert.True(t, g.NeedsRefresh(tex))
	g.Observe(tex)
	assert.False(t, g.NeedsRefresh(tex))

	require.NoError(t, tex.Update(pixels(4, 4, 4, 1)))
	assert.True(t, g.NeedsRefresh(tex))
	g.Observe(tex)
	assert.False(t, g.NeedsRefresh(tex))

	g.Forget(tex)
	assert.True(t, g.NeedsRefresh(tex))
}
