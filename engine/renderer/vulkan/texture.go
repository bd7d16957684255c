package vulkan

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

/** @brief The generation of a texture whose first upload has not completed. */
const InvalidGeneration uint32 = math.MaxUint32

const DefaultTextureRingSize uint32 = 3

type TextureConfig struct {
	Name            string
	Width           uint32
	Height          uint32
	ChannelCount    uint8
	HasTransparency bool
	// Streamed textures only: number of device images in the ring, 2 or 3.
	RingSize uint32
}

func (c TextureConfig) dataSize() uint64 {
	return uint64(c.Width) * uint64(c.Height) * uint64(c.ChannelCount)
}

// imageSelector decides which device image a texture update writes and which
// one readers sample. Both methods that complete uploads report how many
// updates became visible.
type imageSelector interface {
	update(pixels []byte) (uint32, error)
	updateState() uint32
	image() *Image
	imageForFrame(frameFence *Fence) *Image
	pendingUpdates() int
	destroy()
}

/**
 * @brief Represents a sampled texture whose contents can be replaced while rendering.
 */
type Texture struct {
	/** @brief The unique texture identifier. */
	ID uuid.UUID
	/** @brief The texture Name. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief The number of channels in the texture. */
	ChannelCount    uint8
	HasTransparency bool
	Format          vk.Format

	generation uint32
	driver     Driver
	sampler    Handle[SamplerHandle]
	selector   imageSelector
	streamed   bool
}

// TextureFormat returns the 8 bit UNORM format for a channel count.
func TextureFormat(channelCount uint8) (vk.Format, error) {
	switch channelCount {
	case 1:
		return vk.FormatR8Unorm, nil
	case 2:
		return vk.FormatR8g8Unorm, nil
	case 3:
		return vk.FormatR8g8b8Unorm, nil
	case 4:
		return vk.FormatR8g8b8a8Unorm, nil
	}
	return vk.FormatUndefined, fmt.Errorf("unsupported texture channel count %d", channelCount)
}

func newTexture(driver Driver, config TextureConfig, pixels []byte) (*Texture, error) {
	if config.Width == 0 || config.Height == 0 {
		return nil, fmt.Errorf("%w: %q has zero size", ErrTextureDataSize, config.Name)
	}
	format, err := TextureFormat(config.ChannelCount)
	if err != nil {
		return nil, err
	}
	if uint64(len(pixels)) != config.dataSize() {
		return nil, fmt.Errorf("%w: %q expects %d bytes, got %d", ErrTextureDataSize, config.Name, config.dataSize(), len(pixels))
	}

	t := &Texture{
		ID:              uuid.New(),
		Name:            config.Name,
		Width:           config.Width,
		Height:          config.Height,
		ChannelCount:    config.ChannelCount,
		HasTransparency: config.HasTransparency,
		Format:          format,
		generation:      InvalidGeneration,
		driver:          driver,
	}

	sampler, res := driver.CreateSampler(SamplerCreateInfo{
		Filter:        vk.FilterLinear,
		AddressMode:   vk.SamplerAddressModeRepeat,
		MaxAnisotropy: min(16, driver.MaxSamplerAnisotropy()),
	})
	if res != vk.Success {
		err := resultError("create texture sampler", res)
		core.LogError(err.Error())
		return nil, err
	}
	t.sampler = MakeHandle(sampler)
	return t, nil
}

func textureImageInfo(t *Texture) ImageCreateInfo {
	return ImageCreateInfo{
		Width:  t.Width,
		Height: t.Height,
		Format: t.Format,
		Tiling: vk.ImageTilingOptimal,
		Usage: vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit |
			vk.ImageUsageSampledBit | vk.ImageUsageColorAttachmentBit),
		MemoryFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	}
}

// recordUpload records a full copy of staging into image, leaving the image
// ready to be sampled by fragment shaders.
func recordUpload(cb *CommandBuffer, driver CommandDriver, staging *Buffer, img *Image) {
	cb.require("record upload", COMMAND_BUFFER_STATE_RECORDING)
	handle := cb.Handle()
	driver.CmdTransitionImageLayout(handle, img.Handle(), vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	driver.CmdCopyBufferToImage(handle, staging.Handle(), img.Handle(), img.Width, img.Height)
	driver.CmdTransitionImageLayout(handle, img.Handle(), vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
}

func (t *Texture) checkData(pixels []byte) error {
	expected := uint64(t.Width) * uint64(t.Height) * uint64(t.ChannelCount)
	if uint64(len(pixels)) != expected {
		return fmt.Errorf("%w: %q expects %d bytes, got %d", ErrTextureDataSize, t.Name, expected, len(pixels))
	}
	return nil
}

func (t *Texture) bumpGeneration(completed uint32) {
	for ; completed > 0; completed-- {
		t.generation++
		if t.generation == InvalidGeneration {
			t.generation = 0
		}
	}
}

// Generation is InvalidGeneration until the initial upload lands, then 0,
// then incremented once per completed update.
func (t *Texture) Generation() uint32 {
	return t.generation
}

func (t *Texture) IsStreamed() bool {
	return t.streamed
}

func (t *Texture) Sampler() SamplerHandle {
	return t.sampler.Get()
}

// Image returns the most recent fully uploaded image.
func (t *Texture) Image() *Image {
	return t.selector.image()
}

// ImageForFrame is Image for a reader that samples inside the frame guarded
// by frameFence. The image is not overwritten until that fence signals.
func (t *Texture) ImageForFrame(frameFence *Fence) *Image {
	return t.selector.imageForFrame(frameFence)
}

// Update replaces the texture contents. Static textures block until the
// upload is done; streamed textures make it visible through UpdateState.
func (t *Texture) Update(pixels []byte) error {
	if err := t.checkData(pixels); err != nil {
		return err
	}
	completed, err := t.selector.update(pixels)
	t.bumpGeneration(completed)
	return err
}

// UpdateState publishes streamed uploads whose fences have signaled. It never blocks.
func (t *Texture) UpdateState() {
	t.bumpGeneration(t.selector.updateState())
}

func (t *Texture) PendingUpdates() int {
	return t.selector.pendingUpdates()
}

func (t *Texture) Destroy() {
	if t.selector != nil {
		t.selector.destroy()
		t.selector = nil
	}
	t.sampler.Release(t.driver.DestroySampler)
	t.generation = InvalidGeneration
}

// GenerationTracker remembers which texture generation a consumer last bound,
// e.g. a descriptor set that must be rewritten when the image changes.
type GenerationTracker struct {
	observed map[uuid.UUID]uint32
}

func NewGenerationTracker() *GenerationTracker {
	return &GenerationTracker{observed: make(map[uuid.UUID]uint32)}
}

func (g *GenerationTracker) NeedsRefresh(t *Texture) bool {
	gen := t.Generation()
	if gen == InvalidGeneration {
		return false
	}
	last, ok := g.observed[t.ID]
	return !ok || last != gen
}

func (g *GenerationTracker) Observe(t *Texture) {
	g.observed[t.ID] = t.Generation()
}

func (g *GenerationTracker) Forget(t *Texture) {
	delete(g.observed, t.ID)
}
