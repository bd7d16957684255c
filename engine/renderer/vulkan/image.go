package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/core"
)

// Image is a device image together with its memory and an optional view.
type Image struct {
	driver ResourceDriver
	handle Handle[ImageHandle]
	view   Handle[ImageViewHandle]
	Width  uint32
	Height uint32
	Format vk.Format
}

func NewImage(driver ResourceDriver, info ImageCreateInfo, createView bool, viewAspect vk.ImageAspectFlags) (*Image, error) {
	h, res := driver.CreateImage(info)
	if res != vk.Success {
		err := resultError("create image", res)
		core.LogError(err.Error())
		return nil, err
	}
	img := &Image{
		driver: driver,
		handle: MakeHandle(h),
		Width:  info.Width,
		Height: info.Height,
		Format: info.Format,
	}
	if createView {
		if err := img.createView(viewAspect); err != nil {
			img.Destroy()
			return nil, err
		}
	}
	return img, nil
}

func (img *Image) createView(aspect vk.ImageAspectFlags) error {
	v, res := img.driver.CreateImageView(img.handle.Get(), img.Format, aspect)
	if res != vk.Success {
		err := resultError("create image view", res)
		core.LogError(err.Error())
		return err
	}
	img.view = MakeHandle(v)
	return nil
}

func (img *Image) Handle() ImageHandle {
	return img.handle.Get()
}

func (img *Image) View() ImageViewHandle {
	return img.view.Get()
}

func (img *Image) Destroy() {
	img.view.Release(img.driver.DestroyImageView)
	img.handle.Release(img.driver.DestroyImage)
}
