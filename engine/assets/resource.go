package assets

type ResourceType uint8

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeImage
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeImage:
		return "image"
	}
	return "none"
}

type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}

type ImageResourceParams struct {
	/** @brief Flip the rows so that the first row is the bottom of the image. */
	FlipY bool
}

// ImageResourceData holds tightly packed RGBA8 pixels.
type ImageResourceData struct {
	ChannelCount    uint8
	Width           uint32
	Height          uint32
	Pixels          []uint8
	HasTransparency bool
}
