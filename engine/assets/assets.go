package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/h2non/filetype"
	"github.com/spaghettifunk/flowforge/engine/assets/loaders"
	"github.com/spaghettifunk/flowforge/engine/core"
)

var ErrAssetNotFound = errors.New("asset not found")

const changeBufferSize = 64

type AssetInfo struct {
	Path       string
	Type       ResourceType
	LastLoaded time.Time
}

// AssetChange reports an indexed asset that was written or removed on disk.
type AssetChange struct {
	// Name is the path relative to the asset directory, without extension.
	Name    string
	Path    string
	Removed bool
}

// AssetManager indexes the asset directory and keeps the index current with
// fsnotify. Changes are delivered on a channel so they can be applied on the
// render goroutine.
type AssetManager struct {
	baseDir string
	assets  map[string]AssetInfo
	loaders map[ResourceType]Loader

	mutex sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
	fsnotify  *fsnotify.Watcher
	changes   chan AssetChange
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[ResourceType]Loader),
		fsnotify: fsWatch,
		changes:  make(chan AssetChange, changeBufferSize),
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	abs, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.baseDir = abs

	// Register loaders
	am.registerLoader(ResourceTypeImage, &imageLoader{})

	if err := am.watchRecursive(abs); err != nil {
		return err
	}
	go am.start()

	core.LogInfo("asset manager watching %s (%d assets)", abs, am.Count())
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Changes delivers asset modifications. It is closed on Shutdown.
func (am *AssetManager) Changes() <-chan AssetChange {
	return am.changes
}

// LoadAsset loads name, a path relative to the asset directory with or
// without its extension.
func (am *AssetManager) LoadAsset(name string, resourceType ResourceType, params interface{}) (*Resource, error) {
	am.mutex.Lock()
	key, asset, exists := am.lookup(name)
	if exists {
		// Update the loaded time
		asset.LastLoaded = time.Now()
		am.assets[key] = asset
	}
	am.mutex.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	if asset.Type != resourceType {
		return nil, fmt.Errorf("%w: %s is %s, not %s", core.ErrUnsupportedAsset, name, asset.Type, resourceType)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("%w: no loader registered for %s", core.ErrUnsupportedAsset, asset.Type)
	}
	res, err := loader.Load(asset.Path, params)
	if err != nil {
		return nil, err
	}
	res.Name = key
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *Resource) error {
	if asset == nil {
		return nil
	}
	if data, ok := asset.Data.(*ImageResourceData); ok {
		return am.loaders[ResourceTypeImage].Unload(&Resource{Data: data})
	}
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.closeOnce.Do(func() {
		close(am.done)
	})
	return nil
}

// lookup must be called with the mutex held.
func (am *AssetManager) lookup(name string) (string, AssetInfo, bool) {
	name = filepath.ToSlash(name)
	if asset, ok := am.assets[name]; ok {
		return name, asset, true
	}
	for key, asset := range am.assets {
		if strings.TrimSuffix(key, filepath.Ext(key)) == name {
			return key, asset, true
		}
	}
	return "", AssetInfo{}, false
}

func (am *AssetManager) start() {
	defer close(am.changes)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}

	// Handle create or modify events
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if key, ok := am.handleFileEvent(e.Name); ok {
			am.notify(AssetChange{Name: trimExt(key), Path: e.Name})
		}
	}
	// Can't stat a deleted path, so it is dropped from the index and the watch list either way.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if key, ok := am.removeAsset(e.Name); ok {
			am.notify(AssetChange{Name: trimExt(key), Path: e.Name, Removed: true})
		}
		am.fsnotify.Remove(e.Name)
	}
}

func (am *AssetManager) notify(change AssetChange) {
	select {
	case am.changes <- change:
	default:
		core.LogWarn("asset change queue full, dropping change for %s", change.Name)
	}
}

// watchRecursive adds path and all directories under it to the watch list and
// indexes the files found.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (string, bool) {
	key, ok := am.key(path)
	if !ok {
		return "", false
	}
	assetType := determineAssetType(path)
	if assetType == ResourceTypeNone {
		return "", false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[key] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return key, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (string, bool) {
	key, ok := am.key(path)
	if !ok {
		return "", false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, exists := am.assets[key]; !exists {
		return "", false
	}
	delete(am.assets, key)
	return key, true
}

func (am *AssetManager) key(path string) (string, bool) {
	rel, err := filepath.Rel(am.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func trimExt(key string) string {
	return strings.TrimSuffix(key, filepath.Ext(key))
}

func determineAssetType(path string) ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return ResourceTypeImage
	case "":
		return sniffAssetType(path)
	default:
		return ResourceTypeNone
	}
}

// sniffAssetType looks at the magic numbers of files without an extension.
func sniffAssetType(path string) ResourceType {
	f, err := os.Open(path)
	if err != nil {
		return ResourceTypeNone
	}
	defer f.Close()

	// filetype needs at most the first 261 bytes.
	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return ResourceTypeNone
	}
	if filetype.IsImage(head[:n]) {
		return ResourceTypeImage
	}
	return ResourceTypeNone
}

// imageLoader adapts loaders.ImageLoader to the Loader interface.
type imageLoader struct {
	loaders.ImageLoader
}

func (il *imageLoader) Load(path string, params interface{}) (*Resource, error) {
	flipY := false
	if p, ok := params.(*ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}
	decoded, size, err := il.ImageLoader.Load(path, flipY)
	if err != nil {
		return nil, err
	}
	return &Resource{
		FullPath: path,
		DataSize: uint64(size),
		Data: &ImageResourceData{
			ChannelCount:    loaders.ImageChannelCount,
			Width:           decoded.Width,
			Height:          decoded.Height,
			Pixels:          decoded.Pixels,
			HasTransparency: decoded.HasTransparency,
		},
	}, nil
}

func (il *imageLoader) Unload(res *Resource) error {
	if data, ok := res.Data.(*ImageResourceData); ok {
		data.Pixels = nil
	}
	return nil
}
