package loaders

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RGBA is what every decoded image is converted to.
const ImageChannelCount = 4

type ImageLoader struct{}

// Decoded is the raw output of the loader, before it is wrapped in a resource.
type Decoded struct {
	Width           uint32
	Height          uint32
	Pixels          []uint8
	HasTransparency bool
}

func (il *ImageLoader) Load(path string, flipY bool) (*Decoded, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, err
	}

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, 0, fmt.Errorf("decode %s: empty %s image", path, format)
	}
	return ToRGBA(img, flipY), info.Size(), nil
}

// ToRGBA converts any image into packed RGBA8, optionally flipping it vertically.
func ToRGBA(img image.Image, flipY bool) *Decoded {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	width, height := bounds.Dx(), bounds.Dy()
	stride := width * ImageChannelCount
	pixels := make([]uint8, stride*height)
	for y := 0; y < height; y++ {
		src := y
		if flipY {
			src = height - 1 - y
		}
		copy(pixels[y*stride:(y+1)*stride], rgba.Pix[src*rgba.Stride:src*rgba.Stride+stride])
	}

	hasTransparency := false
	for i := 3; i < len(pixels); i += ImageChannelCount {
		if pixels[i] < 255 {
			hasTransparency = true
			break
		}
	}

	return &Decoded{
		Width:           uint32(width),
		Height:          uint32(height),
		Pixels:          pixels,
		HasTransparency: hasTransparency,
	}
}
