package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_NOT_ALLOCATED CommandBufferState = iota
	COMMAND_BUFFER_STATE_READY
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
)

func (s CommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_NOT_ALLOCATED:
		return "NOT_ALLOCATED"
	case COMMAND_BUFFER_STATE_READY:
		return "READY"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "RECORDING"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "IN_RENDER_PASS"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "RECORDING_ENDED"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "SUBMITTED"
	}
	return fmt.Sprintf("CommandBufferState(%d)", int(s))
}

type CommandBuffer struct {
	driver CommandDriver
	/** @brief The pool the buffer was allocated from. */
	pool CommandPoolHandle
	/** @brief The internal command buffer handle. */
	handle Handle[CommandBufferHandle]
	/** @brief Command buffer state. */
	state CommandBufferState
}

func NewCommandBuffer(driver CommandDriver, pool CommandPoolHandle, isPrimary bool) (*CommandBuffer, error) {
	h, res := driver.AllocateCommandBuffer(pool, isPrimary)
	if res != vk.Success {
		err := resultError("allocate command buffer", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &CommandBuffer{
		driver: driver,
		pool:   pool,
		handle: MakeHandle(h),
		state:  COMMAND_BUFFER_STATE_READY,
	}, nil
}

// misuse aborts on an invalid transition. These are programming errors, not runtime conditions.
func (cb *CommandBuffer) misuse(op string, allowed ...CommandBufferState) {
	err := fmt.Errorf("%w: %s requires %v, state is %s", ErrInvalidCommandBufferState, op, allowed, cb.state)
	core.LogError(err.Error())
	panic(err)
}

func (cb *CommandBuffer) require(op string, allowed ...CommandBufferState) {
	for _, s := range allowed {
		if cb.state == s {
			return
		}
	}
	cb.misuse(op, allowed...)
}

func (cb *CommandBuffer) Handle() CommandBufferHandle {
	return cb.handle.Get()
}

func (cb *CommandBuffer) State() CommandBufferState {
	return cb.state
}

func (cb *CommandBuffer) Free() {
	cb.handle.Release(func(h CommandBufferHandle) {
		cb.driver.FreeCommandBuffer(cb.pool, h)
	})
	cb.state = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cb *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	cb.require("begin", COMMAND_BUFFER_STATE_READY)

	var flags vk.CommandBufferUsageFlags
	if isSingleUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := cb.driver.BeginCommandBuffer(cb.handle.Get(), flags); res != vk.Success {
		err := resultError("begin command buffer", res)
		core.LogError(err.Error())
		return err
	}
	cb.state = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.require("end", COMMAND_BUFFER_STATE_RECORDING)
	if res := cb.driver.EndCommandBuffer(cb.handle.Get()); res != vk.Success {
		err := resultError("end command buffer", res)
		core.LogError(err.Error())
		return err
	}
	cb.state = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.require("submit", COMMAND_BUFFER_STATE_RECORDING_ENDED)
	cb.state = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset makes the buffer recordable again. Resetting while recording drops
// the recorded commands and is logged; resetting inside a render pass aborts.
func (cb *CommandBuffer) Reset() error {
	switch cb.state {
	case COMMAND_BUFFER_STATE_READY, COMMAND_BUFFER_STATE_RECORDING_ENDED, COMMAND_BUFFER_STATE_SUBMITTED:
	case COMMAND_BUFFER_STATE_RECORDING:
		core.LogWarn("resetting a command buffer that is still recording")
	default:
		cb.misuse("reset", COMMAND_BUFFER_STATE_READY, COMMAND_BUFFER_STATE_RECORDING_ENDED, COMMAND_BUFFER_STATE_SUBMITTED)
	}
	if res := cb.driver.ResetCommandBuffer(cb.handle.Get()); res != vk.Success {
		err := resultError("reset command buffer", res)
		core.LogError(err.Error())
		return err
	}
	cb.state = COMMAND_BUFFER_STATE_READY
	return nil
}

func (cb *CommandBuffer) SetViewport(viewport vk.Viewport) {
	cb.require("set viewport", COMMAND_BUFFER_STATE_RECORDING, COMMAND_BUFFER_STATE_IN_RENDER_PASS)
	cb.driver.CmdSetViewport(cb.handle.Get(), viewport)
}

func (cb *CommandBuffer) SetScissor(scissor vk.Rect2D) {
	cb.require("set scissor", COMMAND_BUFFER_STATE_RECORDING, COMMAND_BUFFER_STATE_IN_RENDER_PASS)
	cb.driver.CmdSetScissor(cb.handle.Get(), scissor)
}

// Submit sends the ended buffer to queue, optionally signalling fence.
// The fence is reset right before the submission. When the submission fails
// the fence is recreated signaled, so nobody waits on work that never ran.
func (cb *CommandBuffer) Submit(queue QueueHandle, submit SubmitInfo, fence *Fence) Status {
	cb.require("submit", COMMAND_BUFFER_STATE_RECORDING_ENDED)
	submit.CommandBuffers = []CommandBufferHandle{cb.handle.Get()}
	var fh FenceHandle
	if fence != nil {
		if err := fence.Reset(); err != nil {
			return StatusUnknownError
		}
		fh = fence.Handle()
	}
	if res := cb.driver.QueueSubmit(queue, submit, fh); res != vk.Success {
		core.LogError("queue submit failed with result: %s", VulkanResultString(res, true))
		if fence != nil {
			if err := fence.Recreate(true); err != nil {
				core.LogError("fence left unsignaled after failed submit: %s", err)
			}
		}
		return StatusFromResult(res)
	}
	cb.UpdateSubmitted()
	return StatusSuccess
}

// Allocates and begins recording a one-time-submit command buffer.
func AllocateAndBeginSingleUse(driver CommandDriver, pool CommandPoolHandle) (*CommandBuffer, error) {
	cb, err := NewCommandBuffer(driver, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// Ends recording, submits to and waits for queue operation and frees the command buffer.
func (cb *CommandBuffer) EndSingleUse(queue QueueHandle) error {
	if err := cb.End(); err != nil {
		return err
	}
	if status := cb.Submit(queue, SubmitInfo{}, nil); status != StatusSuccess {
		return fmt.Errorf("%w: single use submit: %s", ErrVulkanCall, status)
	}
	if res := cb.driver.QueueWaitIdle(queue); res != vk.Success {
		err := resultError("queue wait idle", res)
		core.LogError(err.Error())
		return err
	}
	cb.Free()
	return nil
}

// EndSingleUseWithFence ends and submits without waiting. The caller frees the
// buffer once fence has been observed signaled, or right away on error.
func (cb *CommandBuffer) EndSingleUseWithFence(queue QueueHandle, fence *Fence) error {
	if err := cb.End(); err != nil {
		return err
	}
	if status := cb.Submit(queue, SubmitInfo{}, fence); status != StatusSuccess {
		return fmt.Errorf("%w: single use submit: %s", ErrVulkanCall, status)
	}
	return nil
}
