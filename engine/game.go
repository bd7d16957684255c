package engine

import (
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer"
	"github.com/spaghettifunk/flowforge/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize runs.
	SystemManager     *systems.SystemManager
	Events            *core.EventBus
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render fills in the packet for the frame about to be drawn, usually by
// setting its Record callback.
type Render func(packet *renderer.RenderPacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
