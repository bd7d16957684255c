package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

func (d *NativeDriver) allocateMemory(requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, vk.Result) {
	requirements.Deref()
	memoryType, ok := d.device.findMemoryIndex(requirements.MemoryTypeBits, flags)
	if !ok {
		core.LogError("Required memory type not found. Image not valid.")
		return vk.NullDeviceMemory, vk.ErrorOutOfDeviceMemory
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	var res vk.Result
	d.locks.SafeCall(ResourceManagement, func() error {
		res = vk.AllocateMemory(d.device.logicalDevice, &allocateInfo, d.allocator, &memory)
		return nil
	})
	return memory, res
}

func (d *NativeDriver) CreateImage(info ImageCreateInfo) (ImageHandle, vk.Result) {
	dev := d.device.logicalDevice
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        info.Tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         info.Usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	var image vk.Image
	if res := vk.CreateImage(dev, &imageCreateInfo, d.allocator, &image); res != vk.Success {
		return 0, res
	}

	// Query memory requirements.
	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &requirements)
	memory, res := d.allocateMemory(requirements, info.MemoryFlags)
	if res != vk.Success {
		vk.DestroyImage(dev, image, d.allocator)
		return 0, res
	}
	if res := vk.BindImageMemory(dev, image, memory, 0); res != vk.Success {
		vk.FreeMemory(dev, memory, d.allocator)
		vk.DestroyImage(dev, image, d.allocator)
		return 0, res
	}
	return d.images.add(nativeImage{image: image, memory: memory, owned: true}), vk.Success
}

func (d *NativeDriver) DestroyImage(handle ImageHandle) {
	img, ok := d.images.get(handle)
	if !ok || !img.owned {
		return
	}
	d.images.remove(handle)
	if img.memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.device.logicalDevice, img.memory, d.allocator)
	}
	vk.DestroyImage(d.device.logicalDevice, img.image, d.allocator)
}

func (d *NativeDriver) CreateImageView(image ImageHandle, format vk.Format, aspect vk.ImageAspectFlags) (ImageViewHandle, vk.Result) {
	img, ok := d.images.get(image)
	if !ok {
		return 0, vk.ErrorUnknown
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device.logicalDevice, &viewCreateInfo, d.allocator, &view); res != vk.Success {
		return 0, res
	}
	return d.views.add(view), vk.Success
}

func (d *NativeDriver) DestroyImageView(handle ImageViewHandle) {
	if view, ok := d.views.remove(handle); ok {
		vk.DestroyImageView(d.device.logicalDevice, view, d.allocator)
	}
}

func (d *NativeDriver) CreateBuffer(info BufferCreateInfo) (BufferHandle, vk.Result) {
	dev := d.device.logicalDevice
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       info.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(dev, &bufferInfo, d.allocator, &buffer); res != vk.Success {
		return 0, res
	}
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &requirements)
	memory, res := d.allocateMemory(requirements, info.MemoryFlags)
	if res != vk.Success {
		vk.DestroyBuffer(dev, buffer, d.allocator)
		return 0, res
	}
	if res := vk.BindBufferMemory(dev, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(dev, memory, d.allocator)
		vk.DestroyBuffer(dev, buffer, d.allocator)
		return 0, res
	}
	return d.buffers.add(nativeBuffer{buffer: buffer, memory: memory, size: info.Size}), vk.Success
}

func (d *NativeDriver) DestroyBuffer(handle BufferHandle) {
	buf, ok := d.buffers.remove(handle)
	if !ok {
		return
	}
	vk.FreeMemory(d.device.logicalDevice, buf.memory, d.allocator)
	vk.DestroyBuffer(d.device.logicalDevice, buf.buffer, d.allocator)
}

// WriteBuffer copies data into host visible buffer memory.
func (d *NativeDriver) WriteBuffer(handle BufferHandle, offset uint64, data []byte) vk.Result {
	buf, ok := d.buffers.get(handle)
	if !ok {
		return vk.ErrorUnknown
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.device.logicalDevice, buf.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return res
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.device.logicalDevice, buf.memory)
	return vk.Success
}

func (d *NativeDriver) CreateSampler(info SamplerCreateInfo) (SamplerHandle, vk.Result) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               info.Filter,
		MinFilter:               info.Filter,
		AddressModeU:            info.AddressMode,
		AddressModeV:            info.AddressMode,
		AddressModeW:            info.AddressMode,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           info.MaxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if info.MaxAnisotropy <= 1 {
		samplerInfo.AnisotropyEnable = vk.False
	}
	var sampler vk.Sampler
	var res vk.Result
	d.locks.SafeCall(ResourceManagement, func() error {
		res = vk.CreateSampler(d.device.logicalDevice, &samplerInfo, d.allocator, &sampler)
		return nil
	})
	if res != vk.Success {
		return 0, res
	}
	return d.samplers.add(sampler), vk.Success
}

func (d *NativeDriver) DestroySampler(handle SamplerHandle) {
	if sampler, ok := d.samplers.remove(handle); ok {
		vk.DestroySampler(d.device.logicalDevice, sampler, d.allocator)
	}
}

// CreateRenderPass builds a single subpass pass with a cleared color attachment
// presented at the end and a cleared depth attachment.
func (d *NativeDriver) CreateRenderPass(info RenderPassCreateInfo) (RenderPassHandle, vk.Result) {
	attachmentDescriptions := []vk.AttachmentDescription{
		// Color attachment
		{
			Format:         info.ColorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
			FinalLayout:    vk.ImageLayoutPresentSrc, // Transitioned to after the render pass
		},
		// Depth attachment
		{
			Format:         info.DepthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorAttachmentReference := []vk.AttachmentReference{{
		Attachment: 0, // Attachment description array index
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachmentReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorAttachmentReference,
		PDepthStencilAttachment: &depthAttachmentReference,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(d.device.logicalDevice, &createInfo, d.allocator, &renderPass); res != vk.Success {
		return 0, res
	}
	return d.renderPasses.add(renderPass), vk.Success
}

func (d *NativeDriver) DestroyRenderPass(handle RenderPassHandle) {
	if rp, ok := d.renderPasses.remove(handle); ok {
		vk.DestroyRenderPass(d.device.logicalDevice, rp, d.allocator)
	}
}

func (d *NativeDriver) CreateFramebuffer(renderPass RenderPassHandle, attachments []ImageViewHandle, width, height uint32) (FramebufferHandle, vk.Result) {
	rp, ok := d.renderPasses.get(renderPass)
	if !ok {
		return 0, vk.ErrorUnknown
	}
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		views[i], _ = d.views.get(a)
	}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(d.device.logicalDevice, &framebufferCreateInfo, d.allocator, &framebuffer); res != vk.Success {
		return 0, res
	}
	return d.framebuffers.add(framebuffer), vk.Success
}

func (d *NativeDriver) DestroyFramebuffer(handle FramebufferHandle) {
	if fb, ok := d.framebuffers.remove(handle); ok {
		vk.DestroyFramebuffer(d.device.logicalDevice, fb, d.allocator)
	}
}
