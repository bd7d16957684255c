package testbed

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/flowforge/engine"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
)

const (
	patternTextureName = "pattern"
	patternSize        = 256
	logoTextureName    = "logo"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	// Written every frame, sampled by the frame that follows.
	pattern       *vulkan.Texture
	patternPixels []uint8
	phase         float32
	paused        bool

	// Loaded from disk, reloaded when the file changes.
	logo       *vulkan.Texture
	logoLoaded bool

	keyEventID      uint64
	descriptorCount uint64
}

func NewTestGame(cfg *core.Config) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
			State: &gameState{
				width:         cfg.Window.Width,
				height:        cfg.Window.Height,
				patternPixels: make([]uint8, patternSize*patternSize*4),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.State.(*gameState)
	ts := g.SystemManager.TextureSystem

	pattern, err := ts.AcquireWriteable(patternTextureName, patternSize, patternSize, 4, false)
	if err != nil {
		return err
	}
	state.pattern = pattern

	logo, err := ts.Acquire(logoTextureName, true)
	if err != nil {
		core.LogWarn("No '%s' texture in %s, using the default texture: %s", logoTextureName, g.ApplicationConfig.Settings.Textures.WatchDir, err)
		logo = ts.DefaultTexture()
	} else {
		state.logoLoaded = true
	}
	state.logo = logo

	if g.Events != nil {
		state.keyEventID = g.Events.Register(core.EVENT_CODE_KEY_RELEASED, g.gameOnKey)
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	if state.paused {
		return nil
	}

	state.phase += float32(deltaTime)
	FillPattern(state.patternPixels, patternSize, patternSize, state.phase)
	return g.SystemManager.TextureSystem.WriteData(state.pattern, state.patternPixels)
}

func (g *TestGame) Render(packet *renderer.RenderPacket, deltaTime float64) error {
	state := g.State.(*gameState)
	ts := g.SystemManager.TextureSystem

	packet.Record = func(frame *renderer.FrameContext) error {
		// Descriptor sets would be rewritten here for every texture that
		// changed since the last frame.
		state.descriptorCount += uint64(len(ts.Refreshed()))

		// Pin the images this frame samples until its fence signals.
		state.pattern.ImageForFrame(frame.Fence)
		if current, ok := ts.Get(logoTextureName); ok && state.logoLoaded {
			state.logo = current
		}
		state.logo.ImageForFrame(frame.Fence)
		return nil
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed shutting down after %d descriptor refreshes", state.descriptorCount)
	if g.Events != nil {
		g.Events.Unregister(core.EVENT_CODE_KEY_RELEASED, state.keyEventID)
	}
	ts := g.SystemManager.TextureSystem
	if state.logoLoaded {
		ts.Release(logoTextureName)
	}
	ts.Release(patternTextureName)
	return nil
}

func (g *TestGame) gameOnKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok || ke.KeyCode != core.KEY_P {
		return false
	}
	state := g.State.(*gameState)
	state.paused = !state.paused
	core.LogDebug("pattern paused: %t", state.paused)
	return true
}

// FillPattern writes a moving RGBA plasma into pixels, a width x height image.
func FillPattern(pixels []uint8, width, height uint32, phase float32) {
	w, h := float32(width), float32(height)
	for y := uint32(0); y < height; y++ {
		fy := float32(y) / h
		for x := uint32(0); x < width; x++ {
			fx := float32(x) / w
			v := math32.Sin(fx*10+phase) +
				math32.Sin((fy*10+phase)/2) +
				math32.Sin((fx*10+fy*10+phase)/2)
			cx := fx + 0.5*math32.Sin(phase/5)
			cy := fy + 0.5*math32.Cos(phase/3)
			v += math32.Sin(math32.Sqrt(100*(cx*cx+cy*cy)+1) + phase)
			v /= 2

			i := (y*width + x) * 4
			pixels[i+0] = channel(math32.Sin(v * math32.Pi))
			pixels[i+1] = channel(math32.Cos(v * math32.Pi))
			pixels[i+2] = channel(math32.Sin(v*math32.Pi + 2*math32.Pi/3))
			pixels[i+3] = 255
		}
	}
}

// channel maps [-1, 1] onto [0, 255].
func channel(v float32) uint8 {
	c := (v + 1) * 127.5
	if c < 0 {
		return 0
	}
	if c > 255 {
		return 255
	}
	return uint8(c)
}
