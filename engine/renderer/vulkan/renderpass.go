package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type RenderPass struct {
	driver     ResourceDriver
	cmd        CommandDriver
	handle     Handle[RenderPassHandle]
	X, Y, W, H float32
	ClearColor [4]float32
	Depth      float32
	Stencil    uint32
}

// NewRenderPass creates the main pass: one color attachment in the swapchain
// format, transitioned to present on completion, plus one depth attachment.
func NewRenderPass(driver Driver, colorFormat, depthFormat vk.Format, x, y, w, h float32, clearColor [4]float32, depth float32, stencil uint32) (*RenderPass, error) {
	handle, res := driver.CreateRenderPass(RenderPassCreateInfo{
		ColorFormat: colorFormat,
		DepthFormat: depthFormat,
	})
	if res != vk.Success {
		err := resultError("create render pass", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &RenderPass{
		driver:     driver,
		cmd:        driver,
		handle:     MakeHandle(handle),
		X:          x,
		Y:          y,
		W:          w,
		H:          h,
		ClearColor: clearColor,
		Depth:      depth,
		Stencil:    stencil,
	}, nil
}

func (rp *RenderPass) Handle() RenderPassHandle {
	return rp.handle.Get()
}

func (rp *RenderPass) SetRenderArea(x, y, w, h float32) {
	rp.X, rp.Y, rp.W, rp.H = x, y, w, h
}

func (rp *RenderPass) RenderArea() vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(rp.X), Y: int32(rp.Y)},
		Extent: vk.Extent2D{Width: uint32(rp.W), Height: uint32(rp.H)},
	}
}

func (rp *RenderPass) Destroy() {
	rp.handle.Release(rp.driver.DestroyRenderPass)
}

// Begin opens the pass on a recording command buffer.
func (rp *RenderPass) Begin(commandBuffer *CommandBuffer, framebuffer FramebufferHandle) {
	commandBuffer.require("begin render pass", COMMAND_BUFFER_STATE_RECORDING)
	rp.cmd.CmdBeginRenderPass(commandBuffer.Handle(), rp.handle.Get(), framebuffer, rp.RenderArea(), rp.ClearColor, rp.Depth, rp.Stencil)
	commandBuffer.state = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (rp *RenderPass) End(commandBuffer *CommandBuffer) {
	commandBuffer.require("end render pass", COMMAND_BUFFER_STATE_IN_RENDER_PASS)
	rp.cmd.CmdEndRenderPass(commandBuffer.Handle())
	commandBuffer.state = COMMAND_BUFFER_STATE_RECORDING
}
