package platform

import "errors"

var ErrVulkanUnsupported = errors.New("vulkan is not supported on this platform")
