package vulkan

import (
	vk "github.com/goki/vulkan"
)

func (d *NativeDriver) SurfaceSupport() (SurfaceSupport, vk.Result) {
	return querySurfaceSupport(d.device.physicalDevice, d.surface)
}

func (d *NativeDriver) CreateSwapchain(info SwapchainCreateInfo) (SwapchainHandle, vk.Result) {
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.ImageFormat.Format,
		ImageColorSpace:  info.ImageFormat.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     info.PreTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      info.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if old, ok := d.swapchains.get(info.OldSwapchain); ok {
		createInfo.OldSwapchain = old
	}

	// Setup the queue family indices
	dev := d.device
	if dev.graphicsQueueIndex != dev.presentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{dev.graphicsQueueIndex, dev.presentQueueIndex}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchain vk.Swapchain
	var res vk.Result
	d.locks.SafeCall(SwapchainManagement, func() error {
		res = vk.CreateSwapchain(dev.logicalDevice, &createInfo, d.allocator, &swapchain)
		return nil
	})
	if res != vk.Success {
		return 0, res
	}
	return d.swapchains.add(swapchain), vk.Success
}

func (d *NativeDriver) DestroySwapchain(handle SwapchainHandle) {
	swapchain, ok := d.swapchains.remove(handle)
	if !ok {
		return
	}
	for _, img := range d.swapchainImages[handle] {
		d.images.remove(img)
	}
	delete(d.swapchainImages, handle)
	d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.device.logicalDevice, swapchain, d.allocator)
		return nil
	})
}

func (d *NativeDriver) GetSwapchainImages(handle SwapchainHandle) ([]ImageHandle, vk.Result) {
	if images, ok := d.swapchainImages[handle]; ok {
		return images, vk.Success
	}
	swapchain, ok := d.swapchains.get(handle)
	if !ok {
		return nil, vk.ErrorUnknown
	}
	var count uint32
	if res := vk.GetSwapchainImages(d.device.logicalDevice, swapchain, &count, nil); res != vk.Success {
		return nil, res
	}
	native := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.device.logicalDevice, swapchain, &count, native); res != vk.Success {
		return nil, res
	}
	images := make([]ImageHandle, count)
	for i, img := range native {
		images[i] = d.images.add(nativeImage{image: img})
	}
	d.swapchainImages[handle] = images
	return images, vk.Success
}

func (d *NativeDriver) AcquireNextImage(handle SwapchainHandle, timeoutNs uint64, semaphore SemaphoreHandle, fence FenceHandle) (uint32, vk.Result) {
	swapchain, ok := d.swapchains.get(handle)
	if !ok {
		return 0, vk.ErrorOutOfDate
	}
	var index uint32
	res := vk.AcquireNextImage(d.device.logicalDevice, swapchain, timeoutNs, d.semaphore(semaphore), d.fence(fence), &index)
	return index, res
}

func (d *NativeDriver) QueuePresent(queue QueueHandle, handle SwapchainHandle, wait SemaphoreHandle, imageIndex uint32) vk.Result {
	q, ok := d.queues.get(queue)
	if !ok {
		return vk.ErrorUnknown
	}
	swapchain, ok := d.swapchains.get(handle)
	if !ok {
		return vk.ErrorOutOfDate
	}
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.semaphore(wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	var res vk.Result
	d.locks.SafeQueueCall(q.family, func() error {
		res = vk.QueuePresent(q.queue, &presentInfo)
		return nil
	})
	return res
}
