package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// staticSelector keeps a single device image. Updates stall the graphics
// queue so the image is never written while a frame samples it.
type staticSelector struct {
	driver Driver
	queue  QueueHandle
	pool   CommandPoolHandle
	img    *Image
}

func NewStaticTexture(driver Driver, config TextureConfig, pixels []byte) (*Texture, error) {
	t, err := newTexture(driver, config, pixels)
	if err != nil {
		return nil, err
	}
	img, err := NewImage(driver, textureImageInfo(t), true, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		t.Destroy()
		return nil, err
	}
	sel := &staticSelector{
		driver: driver,
		queue:  driver.Queues().Graphics,
		pool:   driver.GraphicsCommandPool(),
		img:    img,
	}
	t.selector = sel
	if _, err := sel.update(pixels); err != nil {
		t.Destroy()
		return nil, err
	}
	t.generation = 0
	core.LogDebug("static texture %q created (%dx%d)", t.Name, t.Width, t.Height)
	return t, nil
}

func (s *staticSelector) update(pixels []byte) (uint32, error) {
	if res := s.driver.QueueWaitIdle(s.queue); res != vk.Success {
		return 0, resultError("queue wait idle", res)
	}
	staging, err := NewStagingBuffer(s.driver, uint64(len(pixels)))
	if err != nil {
		return 0, err
	}
	defer staging.Destroy()
	if err := staging.LoadData(0, pixels); err != nil {
		return 0, err
	}

	cb, err := AllocateAndBeginSingleUse(s.driver, s.pool)
	if err != nil {
		return 0, err
	}
	recordUpload(cb, s.driver, staging, s.img)
	if err := cb.EndSingleUse(s.queue); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *staticSelector) updateState() uint32 {
	return 0
}

func (s *staticSelector) image() *Image {
	return s.img
}

func (s *staticSelector) imageForFrame(*Fence) *Image {
	return s.img
}

func (s *staticSelector) pendingUpdates() int {
	return 0
}

func (s *staticSelector) destroy() {
	s.driver.QueueWaitIdle(s.queue)
	if s.img != nil {
		s.img.Destroy()
		s.img = nil
	}
}
