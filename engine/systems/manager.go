package systems

import (
	"github.com/spaghettifunk/flowforge/engine/assets"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer"
)

const maxTextureCount uint32 = 1024

type SystemManager struct {
	RendererSystem *renderer.RendererSystem
	TextureSystem  *TextureSystem

	assetEventID uint64
	events       *core.EventBus
}

func NewSystemManager(cfg *core.Config, rs *renderer.RendererSystem, am *assets.AssetManager) (*SystemManager, error) {
	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount: maxTextureCount,
		RingSize:        cfg.Textures.RingSize,
	}, rs.Driver(), am)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		RendererSystem: rs,
		TextureSystem:  ts,
	}, nil
}

// RegisterEvents hooks the systems that react to engine events onto the bus.
func (sm *SystemManager) RegisterEvents(events *core.EventBus) {
	sm.events = events
	sm.assetEventID = events.Register(core.EVENT_CODE_ASSET_CHANGED, sm.TextureSystem.OnAssetChanged)
}

// Shutdown tears the systems down in reverse dependency order. Textures go
// first because they live on the renderer's device.
func (sm *SystemManager) Shutdown() error {
	if sm.events != nil {
		sm.events.Unregister(core.EVENT_CODE_ASSET_CHANGED, sm.assetEventID)
		sm.events = nil
	}
	// Nothing may still be sampling a texture once it is destroyed.
	sm.RendererSystem.DisplayContext().WaitIdle()
	if err := sm.TextureSystem.Shutdown(); err != nil {
		return err
	}
	return sm.RendererSystem.Shutdown()
}
