package vulkan

import (
	vk "github.com/goki/vulkan"
)

func (d *NativeDriver) AllocateCommandBuffer(pool CommandPoolHandle, primary bool) (CommandBufferHandle, vk.Result) {
	nativePool, ok := d.pools.get(pool)
	if !ok {
		return 0, vk.ErrorUnknown
	}
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        nativePool,
		Level:              level,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	var res vk.Result
	d.locks.SafeCall(CommandBufferManagement, func() error {
		res = vk.AllocateCommandBuffers(d.device.logicalDevice, &allocateInfo, buffers)
		return nil
	})
	if res != vk.Success {
		return 0, res
	}
	return d.commandBuffers.add(buffers[0]), vk.Success
}

func (d *NativeDriver) FreeCommandBuffer(pool CommandPoolHandle, handle CommandBufferHandle) {
	nativePool, ok := d.pools.get(pool)
	if !ok {
		return
	}
	if cb, ok := d.commandBuffers.remove(handle); ok {
		d.locks.SafeCall(CommandBufferManagement, func() error {
			vk.FreeCommandBuffers(d.device.logicalDevice, nativePool, 1, []vk.CommandBuffer{cb})
			return nil
		})
	}
}

func (d *NativeDriver) commandBuffer(handle CommandBufferHandle) vk.CommandBuffer {
	cb, _ := d.commandBuffers.get(handle)
	return cb
}

func (d *NativeDriver) BeginCommandBuffer(handle CommandBufferHandle, flags vk.CommandBufferUsageFlags) vk.Result {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	return vk.BeginCommandBuffer(d.commandBuffer(handle), &beginInfo)
}

func (d *NativeDriver) EndCommandBuffer(handle CommandBufferHandle) vk.Result {
	return vk.EndCommandBuffer(d.commandBuffer(handle))
}

func (d *NativeDriver) ResetCommandBuffer(handle CommandBufferHandle) vk.Result {
	return vk.ResetCommandBuffer(d.commandBuffer(handle), 0)
}

func (d *NativeDriver) CmdSetViewport(handle CommandBufferHandle, viewport vk.Viewport) {
	vk.CmdSetViewport(d.commandBuffer(handle), 0, 1, []vk.Viewport{viewport})
}

func (d *NativeDriver) CmdSetScissor(handle CommandBufferHandle, scissor vk.Rect2D) {
	vk.CmdSetScissor(d.commandBuffer(handle), 0, 1, []vk.Rect2D{scissor})
}

func (d *NativeDriver) CmdBeginRenderPass(handle CommandBufferHandle, renderPass RenderPassHandle, framebuffer FramebufferHandle, area vk.Rect2D, clearColor [4]float32, depth float32, stencil uint32) {
	rp, _ := d.renderPasses.get(renderPass)
	fb, _ := d.framebuffers.get(framebuffer)

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(clearColor[:])
	clearValues[1].SetDepthStencil(depth, stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp,
		Framebuffer:     fb,
		RenderArea:      area,
		ClearValueCount: 2,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(d.commandBuffer(handle), &beginInfo, vk.SubpassContentsInline)
}

func (d *NativeDriver) CmdEndRenderPass(handle CommandBufferHandle) {
	vk.CmdEndRenderPass(d.commandBuffer(handle))
}

// CmdTransitionImageLayout supports the two transitions of a texture upload.
func (d *NativeDriver) CmdTransitionImageLayout(handle CommandBufferHandle, image ImageHandle, oldLayout, newLayout vk.ImageLayout) {
	img, ok := d.images.get(image)
	if !ok {
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		// Don't care what stage the pipeline is in at the start.
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		// Transitioning from a transfer destination layout to a shader-readonly layout.
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessMemoryWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	vk.CmdPipelineBarrier(d.commandBuffer(handle), srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *NativeDriver) CmdCopyBufferToImage(handle CommandBufferHandle, buffer BufferHandle, image ImageHandle, width, height uint32) {
	buf, ok := d.buffers.get(buffer)
	if !ok {
		return
	}
	img, ok := d.images.get(image)
	if !ok {
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(d.commandBuffer(handle), buf.buffer, img.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (d *NativeDriver) QueueSubmit(queue QueueHandle, submit SubmitInfo, fence FenceHandle) vk.Result {
	q, ok := d.queues.get(queue)
	if !ok {
		return vk.ErrorUnknown
	}
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(submit.CommandBuffers)),
		PCommandBuffers:      make([]vk.CommandBuffer, len(submit.CommandBuffers)),
		WaitSemaphoreCount:   uint32(len(submit.WaitSemaphores)),
		PWaitSemaphores:      make([]vk.Semaphore, len(submit.WaitSemaphores)),
		PWaitDstStageMask:    submit.WaitStages,
		SignalSemaphoreCount: uint32(len(submit.SignalSemaphores)),
		PSignalSemaphores:    make([]vk.Semaphore, len(submit.SignalSemaphores)),
	}
	for i, cb := range submit.CommandBuffers {
		info.PCommandBuffers[i] = d.commandBuffer(cb)
	}
	for i, s := range submit.WaitSemaphores {
		info.PWaitSemaphores[i] = d.semaphore(s)
	}
	for i, s := range submit.SignalSemaphores {
		info.PSignalSemaphores[i] = d.semaphore(s)
	}

	var res vk.Result
	d.locks.SafeQueueCall(q.family, func() error {
		res = vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{info}, d.fence(fence))
		return nil
	})
	return res
}

func (d *NativeDriver) QueueWaitIdle(queue QueueHandle) vk.Result {
	q, ok := d.queues.get(queue)
	if !ok {
		return vk.ErrorUnknown
	}
	var res vk.Result
	d.locks.SafeQueueCall(q.family, func() error {
		res = vk.QueueWaitIdle(q.queue)
		return nil
	})
	return res
}
