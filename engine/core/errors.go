package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrUnsupportedAsset = errors.New("unsupported asset type")
)
