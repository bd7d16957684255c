package vulkan_test

import (
	"errors"
	"fmt"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func displayConfig(frames uint8) vulkan.DisplayConfig {
	return vulkan.DisplayConfig{
		Width:             600,
		Height:            600,
		MaxFramesInFlight: frames,
		ImageCount:        3,
		PresentMode:       vk.PresentModeMailbox,
		ClearColor:        [4]float32{0, 0, 0.2, 1},
	}
}

func newDisplay(t *testing.T, d *vulkantest.Driver, frames uint8) *vulkan.DisplayContext {
	t.Helper()
	dc, err := vulkan.NewDisplayContext(d, displayConfig(frames))
	require.NoError(t, err)
	t.Cleanup(dc.Destroy)
	return dc
}

// assertPanicsWith checks that fn panics with an error wrapping target.
func assertPanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, fmt.Sprintf("panic value %v is not an error", r))
		assert.True(t, errors.Is(err, target), err.Error())
	}()
	fn()
}
