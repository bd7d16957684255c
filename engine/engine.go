package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/flowforge/engine/assets"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/platform"
	"github.com/spaghettifunk/flowforge/engine/renderer"
	"github.com/spaghettifunk/flowforge/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Seconds between two frame metrics log lines.
const metricsLogInterval float64 = 5.0

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     bool
	isSuspended   bool
	platform      *platform.Platform
	events        *core.EventBus
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	width         uint32
	height        uint32
	clock         *core.Clock
	lastTime      float64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil || g.ApplicationConfig.Settings == nil {
		return nil, fmt.Errorf("%w: game has no application config", core.ErrInvalidConfig)
	}
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		clock:        core.NewClock(),
		events:       core.NewEventBus(),
		isRunning:    false,
		isSuspended:  false,
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
		lastTime:     0,
	}

	p, err := platform.New(e.events)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.platform = p

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.assetManager = am

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	e.registerEvents()

	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	// initialize subsystems
	watchDir, err := filepath.Abs(app.Settings.Textures.WatchDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		return err
	}
	if err := e.assetManager.Initialize(watchDir); err != nil {
		return err
	}

	rs, err := renderer.NewNativeRendererSystem(app.Settings, app.Name, e.platform)
	if err != nil {
		return err
	}
	sm, err := systems.NewSystemManager(app.Settings, rs, e.assetManager)
	if err != nil {
		rs.Shutdown()
		return err
	}
	e.attachSystems(sm)

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) registerEvents() {
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
}

func (e *Engine) attachSystems(sm *systems.SystemManager) {
	e.systemManager = sm
	e.gameInstance.SystemManager = sm
	e.gameInstance.Events = e.events
	sm.RegisterEvents(e.events)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()

	e.lastTime = e.clock.Elapsed()
	lastMetricsLog := e.lastTime

	for e.isRunning {
		e.dispatchAssetChanges()

		if e.isSuspended {
			// The renderer is not polling while suspended.
			e.platform.WaitEvents(0.1)
			if e.platform.ShouldClose() {
				e.isRunning = false
			}
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.frame(delta); err != nil {
			if errors.Is(err, renderer.ErrWindowClosed) {
				core.LogInfo("Window closed, shutting down.")
				e.isRunning = false
				break
			}
			core.LogError("Frame failed, shutting down: %s", err)
			e.isRunning = false
			return err
		}

		if currentTime-lastMetricsLog >= metricsLogInterval {
			fps, frameTime := e.systemManager.RendererSystem.Metrics().Frame()
			core.LogInfo("FPS: %.0f, frame time: %.3fms, frames skipped: %d", fps, frameTime, e.systemManager.RendererSystem.FramesSkipped)
			lastMetricsLog = currentTime
		}

		// Update last time
		e.lastTime = currentTime
	}

	return nil
}

// frame runs the game for one frame and draws it.
func (e *Engine) frame(delta float64) error {
	if err := e.gameInstance.FnUpdate(delta); err != nil {
		return fmt.Errorf("game update: %w", err)
	}

	// Finished texture uploads become visible before anything records.
	e.systemManager.TextureSystem.UpdateState()

	packet := &renderer.RenderPacket{DeltaTime: delta}
	if err := e.gameInstance.FnRender(packet, delta); err != nil {
		return fmt.Errorf("game render: %w", err)
	}
	return e.systemManager.RendererSystem.DrawFrame(packet)
}

// dispatchAssetChanges forwards everything the asset watcher reported since
// the last frame to the event bus, on the render goroutine.
func (e *Engine) dispatchAssetChanges() {
	for {
		select {
		case change, ok := <-e.assetManager.Changes():
			if !ok {
				return
			}
			core.LogDebug("Asset changed: %s (removed: %t)", change.Name, change.Removed)
			e.events.Fire(core.EventContext{
				Type: core.EVENT_CODE_ASSET_CHANGED,
				Data: core.AssetEvent{Name: change.Name, Path: change.Path, Removed: change.Removed},
			})
		default:
			return
		}
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("Game shutdown failed: %s", err)
		}
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			return err
		}
		e.systemManager = nil
	}
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}
	e.events.Shutdown()
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	if context.Type == core.EVENT_CODE_KEY_PRESSED && ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{
			Type: core.EVENT_CODE_APPLICATION_QUIT,
		})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width := se.WindowWidth
	height := se.WindowHeight

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	if e.systemManager != nil {
		e.systemManager.RendererSystem.OnResize(width, height)
	}
	// Let other listeners know as well.
	return false
}
