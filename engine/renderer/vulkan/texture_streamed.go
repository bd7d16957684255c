package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/containers"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type streamSlot struct {
	staging *Buffer
	image   *Image
	// Single-use buffer of the upload in flight, freed once fence is observed.
	commandBuffer *CommandBuffer
	// Signaled when the upload into image has completed. Created signaled.
	fence *Fence
	// Frame fence of the last frame that sampled image while it was current.
	reader *Fence
}

// streamedSelector rotates uploads through a ring of device images so that
// the image being sampled is never the one being written. Slots after current
// up to latest are in flight, oldest first in pending.
type streamedSelector struct {
	driver  Driver
	queue   QueueHandle
	slots   []*streamSlot
	current uint32
	latest  uint32
	pending *containers.RingQueue[uint32]
}

func NewStreamedTexture(driver Driver, config TextureConfig, pixels []byte) (*Texture, error) {
	ringSize := config.RingSize
	if ringSize == 0 {
		ringSize = DefaultTextureRingSize
	}
	if ringSize < 2 || ringSize > 3 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRingSize, ringSize)
	}

	t, err := newTexture(driver, config, pixels)
	if err != nil {
		return nil, err
	}
	t.streamed = true

	sel := &streamedSelector{
		driver:  driver,
		queue:   driver.Queues().Graphics,
		slots:   make([]*streamSlot, ringSize),
		pending: containers.NewRingQueue[uint32](int(ringSize)),
	}
	t.selector = sel
	for i := range sel.slots {
		slot, err := newStreamSlot(driver, t)
		if err != nil {
			t.Destroy()
			return nil, err
		}
		sel.slots[i] = slot
	}

	// Initial contents go to slot 0 and must land before anyone samples it.
	if err := sel.upload(0, pixels); err != nil {
		t.Destroy()
		return nil, err
	}
	if status := sel.slots[0].fence.Wait(vk.MaxUint64); status != StatusSuccess {
		t.Destroy()
		return nil, fmt.Errorf("%w: initial upload of %q: %s", ErrVulkanCall, t.Name, status)
	}
	sel.slots[0].retire()
	t.generation = 0
	core.LogDebug("streamed texture %q created (%dx%d, ring of %d)", t.Name, t.Width, t.Height, ringSize)
	return t, nil
}

func newStreamSlot(driver Driver, t *Texture) (*streamSlot, error) {
	slot := &streamSlot{}
	var err error
	if slot.staging, err = NewStagingBuffer(driver, uint64(t.Width)*uint64(t.Height)*uint64(t.ChannelCount)); err != nil {
		return nil, err
	}
	if slot.image, err = NewImage(driver, textureImageInfo(t), true, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
		slot.destroy()
		return nil, err
	}
	if slot.fence, err = NewFence(driver, true); err != nil {
		slot.destroy()
		return nil, err
	}
	return slot, nil
}

// retire frees the upload command buffer once the slot fence has been observed signaled.
func (s *streamSlot) retire() {
	if s.commandBuffer != nil && s.fence.IsSignaled() {
		s.commandBuffer.Free()
		s.commandBuffer = nil
	}
}

func (s *streamSlot) destroy() {
	if s.fence != nil {
		s.fence.Wait(vk.MaxUint64)
		s.fence.Destroy()
	}
	if s.commandBuffer != nil {
		s.commandBuffer.Free()
		s.commandBuffer = nil
	}
	if s.image != nil {
		s.image.Destroy()
	}
	if s.staging != nil {
		s.staging.Destroy()
	}
	s.reader = nil
}

// upload writes pixels into slot index and submits the transfer signalling the slot fence.
func (s *streamedSelector) upload(index uint32, pixels []byte) error {
	slot := s.slots[index]

	if status := slot.fence.Wait(vk.MaxUint64); status != StatusSuccess {
		return fmt.Errorf("%w: wait on texture slot %d: %s", ErrVulkanCall, index, status)
	}
	slot.retire()
	if slot.reader != nil {
		if status := slot.reader.Wait(vk.MaxUint64); status != StatusSuccess {
			return fmt.Errorf("%w: wait on reader of texture slot %d: %s", ErrVulkanCall, index, status)
		}
		slot.reader = nil
	}

	if err := slot.staging.LoadData(0, pixels); err != nil {
		return err
	}
	cb, err := AllocateAndBeginSingleUse(s.driver, s.driver.GraphicsCommandPool())
	if err != nil {
		return err
	}
	recordUpload(cb, s.driver, slot.staging, slot.image)
	// The slot fence stays waitable when this fails: it is only reset as part of the submit.
	if err := cb.EndSingleUseWithFence(s.queue, slot.fence); err != nil {
		cb.Free()
		return fmt.Errorf("texture slot %d: %w", index, err)
	}
	slot.commandBuffer = cb
	return nil
}

func (s *streamedSelector) update(pixels []byte) (uint32, error) {
	var completed uint32
	n := uint32(len(s.slots))
	next := (s.latest + 1) % n
	if next == s.current {
		// Every other slot is in flight. Block on the oldest one and adopt it.
		oldest, err := s.pending.Dequeue()
		if err != nil {
			return 0, err
		}
		if status := s.slots[oldest].fence.Wait(vk.MaxUint64); status != StatusSuccess {
			return 0, fmt.Errorf("%w: wait on texture slot %d: %s", ErrVulkanCall, oldest, status)
		}
		s.slots[oldest].retire()
		s.current = oldest
		completed++
	}

	if err := s.upload(next, pixels); err != nil {
		return completed, err
	}
	if err := s.pending.Enqueue(next); err != nil {
		return completed, err
	}
	s.latest = next
	return completed, nil
}

func (s *streamedSelector) updateState() uint32 {
	var completed uint32
	for !s.pending.IsEmpty() {
		index, _ := s.pending.Peek()
		if !s.slots[index].fence.Poll() {
			break
		}
		s.slots[index].retire()
		s.pending.Dequeue()
		s.current = index
		completed++
	}
	return completed
}

func (s *streamedSelector) image() *Image {
	return s.slots[s.current].image
}

func (s *streamedSelector) imageForFrame(frameFence *Fence) *Image {
	slot := s.slots[s.current]
	slot.reader = frameFence
	return slot.image
}

func (s *streamedSelector) pendingUpdates() int {
	return s.pending.Len()
}

func (s *streamedSelector) destroy() {
	for _, slot := range s.slots {
		if slot != nil {
			slot.destroy()
		}
	}
	s.slots = nil
}
