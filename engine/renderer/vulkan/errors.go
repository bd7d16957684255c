package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
)

var (
	ErrVulkanCall                = errors.New("vulkan call failed")
	ErrNoSurfaceFormat           = errors.New("no supported surface format matches the preferred format")
	ErrNoDepthFormat             = errors.New("no supported depth format")
	ErrNoSuitableDevice          = errors.New("no physical device meets the requirements")
	ErrMissingExtension          = errors.New("required extension or layer is missing")
	ErrInvalidCommandBufferState = errors.New("invalid command buffer state transition")
	ErrInvalidFrameState         = errors.New("invalid frame state transition")
	ErrTextureDataSize           = errors.New("texture data does not match the texture size")
	ErrInvalidRingSize           = errors.New("streamed texture ring size must be 2 or 3")
)

// resultError wraps a failed native result with the operation that produced it.
func resultError(op string, result vk.Result) error {
	return fmt.Errorf("%w: %s: %s", ErrVulkanCall, op, VulkanResultString(result, false))
}
