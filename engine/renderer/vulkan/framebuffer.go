package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type Framebuffer struct {
	driver      ResourceDriver
	handle      Handle[FramebufferHandle]
	Attachments []ImageViewHandle
	Width       uint32
	Height      uint32
}

func NewFramebuffer(driver ResourceDriver, renderpass *RenderPass, width, height uint32, attachments []ImageViewHandle) (*Framebuffer, error) {
	// Take a copy of the attachments.
	views := append([]ImageViewHandle(nil), attachments...)
	h, res := driver.CreateFramebuffer(renderpass.Handle(), views, width, height)
	if res != vk.Success {
		err := resultError("create framebuffer", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &Framebuffer{
		driver:      driver,
		handle:      MakeHandle(h),
		Attachments: views,
		Width:       width,
		Height:      height,
	}, nil
}

func (fb *Framebuffer) Handle() FramebufferHandle {
	return fb.handle.Get()
}

func (fb *Framebuffer) Destroy() {
	fb.handle.Release(fb.driver.DestroyFramebuffer)
	fb.Attachments = nil
}
