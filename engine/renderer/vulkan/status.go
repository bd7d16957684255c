package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Status is the closed set of outcomes reported by per-frame operations.
type Status int

const (
	StatusSuccess Status = iota
	// The swapchain was recreated; skip the frame.
	StatusSwapchainResize
	StatusWindowShouldClose
	StatusFailedToWaitOnFence
	StatusOutOfDate
	StatusSuboptimal
	StatusTimeout
	StatusNotReady
	StatusOutOfHostMemory
	StatusOutOfDeviceMemory
	StatusDeviceLost
	StatusSurfaceLost
	StatusFullScreenExclusiveModeLost
	StatusUnknownError
)

var statusNames = map[Status]string{
	StatusSuccess:                     "SUCCESS",
	StatusSwapchainResize:             "SWAPCHAIN_RESIZE",
	StatusWindowShouldClose:           "WINDOW_SHOULD_CLOSE",
	StatusFailedToWaitOnFence:         "FAILED_TO_WAIT_ON_FENCE",
	StatusOutOfDate:                   "OUT_OF_DATE",
	StatusSuboptimal:                  "SUBOPTIMAL",
	StatusTimeout:                     "TIMEOUT",
	StatusNotReady:                    "NOT_READY",
	StatusOutOfHostMemory:             "OUT_OF_HOST_MEMORY",
	StatusOutOfDeviceMemory:           "OUT_OF_DEVICE_MEMORY",
	StatusDeviceLost:                  "DEVICE_LOST",
	StatusSurfaceLost:                 "SURFACE_LOST",
	StatusFullScreenExclusiveModeLost: "FULL_SCREEN_EXCLUSIVE_MODE_LOST",
	StatusUnknownError:                "UNKNOWN_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknownError]
}

func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsFatal reports statuses after which the frame loop cannot continue.
func (s Status) IsFatal() bool {
	switch s {
	case StatusDeviceLost, StatusSurfaceLost, StatusOutOfHostMemory, StatusOutOfDeviceMemory, StatusUnknownError:
		return true
	}
	return false
}

// StatusFromResult maps a native result onto Status. Results with no
// dedicated status become StatusUnknownError so that no failure reads as success.
func StatusFromResult(result vk.Result) Status {
	switch result {
	case vk.Success:
		return StatusSuccess
	case vk.ErrorOutOfDate:
		return StatusOutOfDate
	case vk.Suboptimal:
		return StatusSuboptimal
	case vk.Timeout:
		return StatusTimeout
	case vk.NotReady:
		return StatusNotReady
	case vk.ErrorOutOfHostMemory:
		return StatusOutOfHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return StatusOutOfDeviceMemory
	case vk.ErrorDeviceLost:
		return StatusDeviceLost
	case vk.ErrorSurfaceLost:
		return StatusSurfaceLost
	case vk.ErrorFullScreenExclusiveModeLost:
		return StatusFullScreenExclusiveModeLost
	default:
		return StatusUnknownError
	}
}
