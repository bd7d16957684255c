package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	X      uint32 `toml:"x" yaml:"x"`
	Y      uint32 `toml:"y" yaml:"y"`
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
}

type RendererConfig struct {
	// Number of frames the CPU may record ahead of the GPU.
	MaxFramesInFlight uint8 `toml:"max_frames_in_flight" yaml:"max_frames_in_flight"`
	// Requested presentable image count, clamped to what the surface allows.
	SwapchainImageCount uint32 `toml:"swapchain_image_count" yaml:"swapchain_image_count"`
	// One of mailbox, fifo, fifo_relaxed, immediate. FIFO is always the fallback.
	PresentMode string `toml:"present_mode" yaml:"present_mode"`
	// Zero means wait forever.
	FenceTimeoutMS uint64     `toml:"fence_timeout_ms" yaml:"fence_timeout_ms"`
	Validation     bool       `toml:"validation" yaml:"validation"`
	ClearColor     [4]float32 `toml:"clear_color" yaml:"clear_color"`
}

type TexturesConfig struct {
	RingSize uint32 `toml:"ring_size" yaml:"ring_size"`
	WatchDir string `toml:"watch_dir" yaml:"watch_dir"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

type Config struct {
	Window   WindowConfig   `toml:"window" yaml:"window"`
	Renderer RendererConfig `toml:"renderer" yaml:"renderer"`
	Textures TexturesConfig `toml:"textures" yaml:"textures"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

// Decoder is satisfied by both the toml and the yaml decoders.
type Decoder interface {
	Decode(v interface{}) error
}

type DecoderFunc func(r io.Reader) Decoder

func NewDecoderFunc[T Decoder](f func(r io.Reader) T) DecoderFunc {
	return func(r io.Reader) Decoder { return f(r) }
}

var (
	TOMLDecoder = NewDecoderFunc(toml.NewDecoder)
	YAMLDecoder = NewDecoderFunc(yaml.NewDecoder)
)

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Flowforge",
			X:      100,
			Y:      100,
			Width:  600,
			Height: 600,
		},
		Renderer: RendererConfig{
			MaxFramesInFlight:   3,
			SwapchainImageCount: 3,
			PresentMode:         "mailbox",
			FenceTimeoutMS:      1000,
			Validation:          true,
			ClearColor:          [4]float32{0.0, 0.0, 0.2, 1.0},
		},
		Textures: TexturesConfig{
			RingSize: 3,
			WatchDir: "assets/textures",
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// LoadConfig reads the file at path on top of DefaultConfig. The decoder is
// picked from the extension; anything that is not .yaml or .yml is read as TOML.
func LoadConfig(path string) (*Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	dec := TOMLDecoder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec = YAMLDecoder
	}
	return ReadConfig(bufio.NewReader(fp), dec)
}

func ReadConfig(r io.Reader, f DecoderFunc) (*Config, error) {
	cfg := DefaultConfig()
	if err := f(r).Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("%w: window size must be non-zero, got %dx%d", ErrInvalidConfig, c.Window.Width, c.Window.Height)
	}
	if c.Renderer.MaxFramesInFlight < 1 || c.Renderer.MaxFramesInFlight > 3 {
		return fmt.Errorf("%w: max_frames_in_flight must be in [1, 3], got %d", ErrInvalidConfig, c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.SwapchainImageCount == 0 {
		return fmt.Errorf("%w: swapchain_image_count must be positive", ErrInvalidConfig)
	}
	switch c.Renderer.PresentMode {
	case "mailbox", "fifo", "fifo_relaxed", "immediate":
	default:
		return fmt.Errorf("%w: unknown present_mode %q", ErrInvalidConfig, c.Renderer.PresentMode)
	}
	if c.Textures.RingSize < 2 || c.Textures.RingSize > 3 {
		return fmt.Errorf("%w: ring_size must be 2 or 3, got %d", ErrInvalidConfig, c.Textures.RingSize)
	}
	return nil
}
