package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type Buffer struct {
	driver ResourceDriver
	handle Handle[BufferHandle]
	Size   uint64
}

func NewBuffer(driver ResourceDriver, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*Buffer, error) {
	h, res := driver.CreateBuffer(BufferCreateInfo{Size: size, Usage: usage, MemoryFlags: memoryFlags})
	if res != vk.Success {
		err := resultError("create buffer", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &Buffer{driver: driver, handle: MakeHandle(h), Size: size}, nil
}

// NewStagingBuffer creates a host visible transfer source.
func NewStagingBuffer(driver ResourceDriver, size uint64) (*Buffer, error) {
	return NewBuffer(driver, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
}

func (b *Buffer) Handle() BufferHandle {
	return b.handle.Get()
}

func (b *Buffer) LoadData(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("buffer load of %d bytes at offset %d overflows size %d", len(data), offset, b.Size)
	}
	if res := b.driver.WriteBuffer(b.handle.Get(), offset, data); res != vk.Success {
		err := resultError("write buffer", res)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (b *Buffer) Destroy() {
	b.handle.Release(b.driver.DestroyBuffer)
	b.Size = 0
}
