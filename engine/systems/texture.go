package systems

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/flowforge/engine/assets"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
)

const (
	DEFAULT_TEXTURE_NAME string = "default"

	defaultTextureDimension uint32 = 256
	defaultTextureChannels  uint8  = 4
)

var (
	ErrTextureNotFound    = errors.New("texture not found")
	ErrTextureLimit       = errors.New("texture system cannot hold any more textures")
	ErrTextureNotWritable = errors.New("texture is not writeable")
)

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount uint32
	/** @brief Device images per writeable texture, 2 or 3. */
	RingSize uint32
}

type textureReference struct {
	texture        *vulkan.Texture
	referenceCount uint64
	autoRelease    bool
}

// TextureSystem owns every texture by name. Textures loaded from disk are
// static; writeable ones are streamed through a ring of device images.
type TextureSystem struct {
	Config *TextureSystemConfig

	defaultTexture *vulkan.Texture
	// Hashtable for texture lookups.
	registered map[string]*textureReference
	tracker    *vulkan.GenerationTracker

	driver       vulkan.Driver
	assetManager *assets.AssetManager
}

func NewTextureSystem(config *TextureSystemConfig, driver vulkan.Driver, am *assets.AssetManager) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("%w: func NewTextureSystem - config.MaxTextureCount must be > 0", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	if config.RingSize == 0 {
		config.RingSize = vulkan.DefaultTextureRingSize
	}

	ts := &TextureSystem{
		Config:       config,
		registered:   make(map[string]*textureReference),
		tracker:      vulkan.NewGenerationTracker(),
		driver:       driver,
		assetManager: am,
	}

	def, err := vulkan.NewStaticTexture(driver, vulkan.TextureConfig{
		Name:         DEFAULT_TEXTURE_NAME,
		Width:        defaultTextureDimension,
		Height:       defaultTextureDimension,
		ChannelCount: defaultTextureChannels,
	}, DefaultTexturePixels())
	if err != nil {
		return nil, err
	}
	ts.defaultTexture = def
	return ts, nil
}

// DefaultTexturePixels builds a 256x256 blue/white checkerboard so there is
// always something to sample without touching the disk.
func DefaultTexturePixels() []uint8 {
	dim := defaultTextureDimension
	channels := uint32(defaultTextureChannels)
	pixels := make([]uint8, dim*dim*channels)
	for i := range pixels {
		pixels[i] = 255
	}

	// Each pixel.
	for row := uint32(0); row < dim; row++ {
		for col := uint32(0); col < dim; col++ {
			index := (row*dim + col) * channels
			if row%2 == col%2 {
				pixels[index+0] = 0
				pixels[index+1] = 0
			}
		}
	}
	return pixels
}

func (ts *TextureSystem) DefaultTexture() *vulkan.Texture {
	return ts.defaultTexture
}

func (ts *TextureSystem) Count() int {
	return len(ts.registered)
}

func (ts *TextureSystem) Get(name string) (*vulkan.Texture, bool) {
	if name == DEFAULT_TEXTURE_NAME {
		return ts.defaultTexture, true
	}
	ref, ok := ts.registered[name]
	if !ok {
		return nil, false
	}
	return ref.texture, true
}

// Acquire returns the texture loaded from the asset called name, loading it
// on first use. Every call must be paired with a Release.
func (ts *TextureSystem) Acquire(name string, autoRelease bool) (*vulkan.Texture, error) {
	// Return default texture, but warn about it since this should be returned via DefaultTexture();
	if name == DEFAULT_TEXTURE_NAME {
		core.LogWarn("func texture system Acquire called for default texture. Use DefaultTexture for texture 'default'")
		return ts.defaultTexture, nil
	}

	if ref, ok := ts.registered[name]; ok {
		ref.referenceCount++
		return ref.texture, nil
	}
	if err := ts.checkCapacity(); err != nil {
		return nil, err
	}

	texture, err := ts.loadTexture(name)
	if err != nil {
		core.LogError("Failed to load texture '%s': %s", name, err)
		return nil, err
	}
	ts.registered[name] = &textureReference{
		texture:        texture,
		referenceCount: 1,
		autoRelease:    autoRelease,
	}
	core.LogDebug("Texture '%s' loaded (%dx%d).", name, texture.Width, texture.Height)
	return texture, nil
}

// AcquireWriteable creates a texture whose contents are replaced through
// WriteData. Writeable textures are never auto-released.
func (ts *TextureSystem) AcquireWriteable(name string, width, height uint32, channelCount uint8, hasTransparency bool) (*vulkan.Texture, error) {
	if ref, ok := ts.registered[name]; ok {
		if !ref.texture.IsStreamed() {
			return nil, fmt.Errorf("%w: %s", ErrTextureNotWritable, name)
		}
		ref.referenceCount++
		return ref.texture, nil
	}
	if err := ts.checkCapacity(); err != nil {
		return nil, err
	}

	config := vulkan.TextureConfig{
		Name:            name,
		Width:           width,
		Height:          height,
		ChannelCount:    channelCount,
		HasTransparency: hasTransparency,
		RingSize:        ts.Config.RingSize,
	}
	// Start out cleared, the first write replaces it.
	pixels := make([]uint8, uint64(width)*uint64(height)*uint64(channelCount))
	texture, err := vulkan.NewStreamedTexture(ts.driver, config, pixels)
	if err != nil {
		core.LogError("Failed to create writeable texture '%s': %s", name, err)
		return nil, err
	}
	ts.registered[name] = &textureReference{
		texture:        texture,
		referenceCount: 1,
	}
	return texture, nil
}

// Release drops a reference. Auto-released textures are destroyed once the
// last reference is gone.
func (ts *TextureSystem) Release(name string) {
	// Ignore release requests for the default texture.
	if name == DEFAULT_TEXTURE_NAME {
		return
	}
	ref, ok := ts.registered[name]
	if !ok {
		core.LogWarn("Tried to release non-existent texture: '%s'", name)
		return
	}
	if ref.referenceCount == 0 {
		core.LogWarn("Tried to release a texture where autorelease=false, but references was already 0.")
		return
	}

	ref.referenceCount--
	if ref.referenceCount == 0 && ref.autoRelease {
		ts.destroy(name, ref)
		core.LogDebug("Released texture '%s'. Texture unloaded because reference count=0 and AutoRelease=true.", name)
	}
}

// WriteData replaces the full contents of a writeable texture. Readers keep
// sampling the previous contents until UpdateState sees the upload finish.
func (ts *TextureSystem) WriteData(texture *vulkan.Texture, pixels []uint8) error {
	if texture == nil {
		return fmt.Errorf("%w: nil texture", ErrTextureNotFound)
	}
	if !texture.IsStreamed() {
		return fmt.Errorf("%w: %s", ErrTextureNotWritable, texture.Name)
	}
	return texture.Update(pixels)
}

// UpdateState publishes finished uploads of every writeable texture. Called
// once per frame on the render goroutine.
func (ts *TextureSystem) UpdateState() {
	for _, ref := range ts.registered {
		if ref.texture.IsStreamed() {
			ref.texture.UpdateState()
		}
	}
}

// Refreshed returns the textures whose contents changed since the previous
// call, so descriptor sets pointing at them can be rewritten.
func (ts *TextureSystem) Refreshed() []*vulkan.Texture {
	var out []*vulkan.Texture
	for _, ref := range ts.registered {
		if ts.tracker.NeedsRefresh(ref.texture) {
			ts.tracker.Observe(ref.texture)
			out = append(out, ref.texture)
		}
	}
	return out
}

// Reload reads the asset behind a loaded texture again. Same sized images are
// uploaded in place; anything else replaces the texture.
func (ts *TextureSystem) Reload(name string) error {
	ref, ok := ts.registered[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTextureNotFound, name)
	}
	if ref.texture.IsStreamed() {
		return fmt.Errorf("%w: %s is written by the application", core.ErrUnsupportedAsset, name)
	}

	res, data, err := ts.loadImage(name)
	if err != nil {
		return err
	}
	defer ts.assetManager.UnloadAsset(res)

	t := ref.texture
	if t.Width == data.Width && t.Height == data.Height && t.ChannelCount == data.ChannelCount {
		if err := t.Update(data.Pixels); err != nil {
			return err
		}
		t.HasTransparency = data.HasTransparency
		core.LogInfo("Texture '%s' reloaded.", name)
		return nil
	}

	texture, err := vulkan.NewStaticTexture(ts.driver, vulkan.TextureConfig{
		Name:            name,
		Width:           data.Width,
		Height:          data.Height,
		ChannelCount:    data.ChannelCount,
		HasTransparency: data.HasTransparency,
	}, data.Pixels)
	if err != nil {
		return err
	}
	// The old image may still be sampled by frames in flight.
	ts.driver.DeviceWaitIdle()
	ts.tracker.Forget(t)
	t.Destroy()
	ref.texture = texture
	core.LogInfo("Texture '%s' reloaded at %dx%d.", name, texture.Width, texture.Height)
	return nil
}

// OnAssetChanged reloads textures whose file changed on disk.
func (ts *TextureSystem) OnAssetChanged(context core.EventContext) bool {
	ev, ok := context.Data.(core.AssetEvent)
	if !ok {
		return false
	}
	for name, ref := range ts.registered {
		if ref.texture.IsStreamed() || !matchesAsset(name, ev.Name) {
			continue
		}
		if ev.Removed {
			core.LogWarn("Asset for texture '%s' was removed, keeping the loaded copy.", name)
			continue
		}
		if err := ts.Reload(name); err != nil {
			core.LogError("Failed to reload texture '%s': %s", name, err)
		}
	}
	return false
}

func matchesAsset(textureName, assetName string) bool {
	name := filepath.ToSlash(textureName)
	return name == assetName || strings.TrimSuffix(name, filepath.Ext(name)) == assetName
}

func (ts *TextureSystem) Shutdown() error {
	// Destroy all loaded textures.
	for name, ref := range ts.registered {
		ts.destroy(name, ref)
	}
	if ts.defaultTexture != nil {
		ts.defaultTexture.Destroy()
		ts.defaultTexture = nil
	}
	return nil
}

func (ts *TextureSystem) checkCapacity() error {
	if uint32(len(ts.registered)) >= ts.Config.MaxTextureCount {
		err := fmt.Errorf("%w: adjust configuration to allow more than %d", ErrTextureLimit, ts.Config.MaxTextureCount)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (ts *TextureSystem) destroy(name string, ref *textureReference) {
	ts.tracker.Forget(ref.texture)
	ref.texture.Destroy()
	delete(ts.registered, name)
}

func (ts *TextureSystem) loadTexture(name string) (*vulkan.Texture, error) {
	res, data, err := ts.loadImage(name)
	if err != nil {
		return nil, err
	}
	defer ts.assetManager.UnloadAsset(res)

	return vulkan.NewStaticTexture(ts.driver, vulkan.TextureConfig{
		Name:            name,
		Width:           data.Width,
		Height:          data.Height,
		ChannelCount:    data.ChannelCount,
		HasTransparency: data.HasTransparency,
	}, data.Pixels)
}

func (ts *TextureSystem) loadImage(name string) (*assets.Resource, *assets.ImageResourceData, error) {
	if ts.assetManager == nil {
		return nil, nil, fmt.Errorf("%w: no asset manager to load %s", ErrTextureNotFound, name)
	}
	res, err := ts.assetManager.LoadAsset(name, assets.ResourceTypeImage, &assets.ImageResourceParams{FlipY: true})
	if err != nil {
		return nil, nil, err
	}
	data, ok := res.Data.(*assets.ImageResourceData)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s did not decode to an image", core.ErrUnsupportedAsset, name)
	}
	return res, data, nil
}
