package vulkan

import (
	vk "github.com/goki/vulkan"
)

func (d *NativeDriver) CreateFence(signaled bool) (FenceHandle, vk.Result) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.device.logicalDevice, &info, d.allocator, &fence); res != vk.Success {
		return 0, res
	}
	return d.fences.add(fence), vk.Success
}

func (d *NativeDriver) DestroyFence(handle FenceHandle) {
	if fence, ok := d.fences.remove(handle); ok {
		vk.DestroyFence(d.device.logicalDevice, fence, d.allocator)
	}
}

func (d *NativeDriver) WaitForFence(handle FenceHandle, timeoutNs uint64) vk.Result {
	fence, ok := d.fences.get(handle)
	if !ok {
		return vk.ErrorUnknown
	}
	return vk.WaitForFences(d.device.logicalDevice, 1, []vk.Fence{fence}, vk.True, timeoutNs)
}

func (d *NativeDriver) ResetFence(handle FenceHandle) vk.Result {
	fence, ok := d.fences.get(handle)
	if !ok {
		return vk.ErrorUnknown
	}
	return vk.ResetFences(d.device.logicalDevice, 1, []vk.Fence{fence})
}

func (d *NativeDriver) GetFenceStatus(handle FenceHandle) vk.Result {
	fence, ok := d.fences.get(handle)
	if !ok {
		return vk.ErrorUnknown
	}
	return vk.GetFenceStatus(d.device.logicalDevice, fence)
}

func (d *NativeDriver) CreateSemaphore() (SemaphoreHandle, vk.Result) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(d.device.logicalDevice, &info, d.allocator, &semaphore); res != vk.Success {
		return 0, res
	}
	return d.semaphores.add(semaphore), vk.Success
}

func (d *NativeDriver) DestroySemaphore(handle SemaphoreHandle) {
	if semaphore, ok := d.semaphores.remove(handle); ok {
		vk.DestroySemaphore(d.device.logicalDevice, semaphore, d.allocator)
	}
}

func (d *NativeDriver) semaphore(handle SemaphoreHandle) vk.Semaphore {
	if s, ok := d.semaphores.get(handle); ok {
		return s
	}
	return vk.NullSemaphore
}

func (d *NativeDriver) fence(handle FenceHandle) vk.Fence {
	if f, ok := d.fences.get(handle); ok {
		return f
	}
	return vk.NullFence
}
