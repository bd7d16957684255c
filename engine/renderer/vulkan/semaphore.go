package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// Semaphore orders queue operations on the GPU. It is never observed by the CPU.
type Semaphore struct {
	driver SyncDriver
	handle Handle[SemaphoreHandle]
}

func NewSemaphore(driver SyncDriver) (*Semaphore, error) {
	h, res := driver.CreateSemaphore()
	if res != vk.Success {
		err := resultError("create semaphore", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &Semaphore{driver: driver, handle: MakeHandle(h)}, nil
}

func (s *Semaphore) Handle() SemaphoreHandle {
	return s.handle.Get()
}

func (s *Semaphore) Destroy() {
	s.handle.Release(s.driver.DestroySemaphore)
}
