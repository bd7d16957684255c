package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// Fence is a CPU-observable GPU completion signal. The signaled state is
// cached client-side so a fence that has already been observed is never
// waited on again until it is reset.
type Fence struct {
	driver     SyncDriver
	handle     Handle[FenceHandle]
	isSignaled bool
}

func NewFence(driver SyncDriver, createSignaled bool) (*Fence, error) {
	h, res := driver.CreateFence(createSignaled)
	if res != vk.Success {
		err := resultError("create fence", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &Fence{
		driver:     driver,
		handle:     MakeHandle(h),
		isSignaled: createSignaled,
	}, nil
}

func (f *Fence) Handle() FenceHandle {
	return f.handle.Get()
}

func (f *Fence) IsSignaled() bool {
	return f.isSignaled
}

func (f *Fence) Destroy() {
	f.handle.Release(f.driver.DestroyFence)
	f.isSignaled = false
}

// Wait blocks until the fence is signaled or the timeout expires.
func (f *Fence) Wait(timeoutNs uint64) Status {
	if f.isSignaled {
		return StatusSuccess
	}
	result := f.driver.WaitForFence(f.handle.Get(), timeoutNs)
	status := StatusFromResult(result)
	switch status {
	case StatusSuccess:
		f.isSignaled = true
	case StatusTimeout:
		core.LogWarn("fence wait - timed out")
	default:
		core.LogError("fence wait - %s", VulkanResultString(result, true))
	}
	return status
}

// Poll checks the fence without blocking.
func (f *Fence) Poll() bool {
	if f.isSignaled {
		return true
	}
	result := f.driver.GetFenceStatus(f.handle.Get())
	switch StatusFromResult(result) {
	case StatusSuccess:
		f.isSignaled = true
	case StatusNotReady:
	default:
		core.LogError("fence poll - %s", VulkanResultString(result, true))
	}
	return f.isSignaled
}

// Recreate swaps the native fence for a new one in the given state. The Fence
// keeps its identity, so holders such as the images-in-flight table stay valid.
func (f *Fence) Recreate(signaled bool) error {
	h, res := f.driver.CreateFence(signaled)
	if res != vk.Success {
		err := resultError("recreate fence", res)
		core.LogError(err.Error())
		return err
	}
	f.handle.Replace(h, f.driver.DestroyFence)
	f.isSignaled = signaled
	return nil
}

// Reset returns a signaled fence to the unsignaled state. Unsignaled fences are left alone.
func (f *Fence) Reset() error {
	if !f.isSignaled {
		return nil
	}
	if res := f.driver.ResetFence(f.handle.Get()); res != vk.Success {
		err := resultError("reset fence", res)
		core.LogError(err.Error())
		return err
	}
	f.isSignaled = false
	return nil
}
