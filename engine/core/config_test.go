package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint8(3), cfg.Renderer.MaxFramesInFlight)
	assert.Equal(t, uint32(3), cfg.Renderer.SwapchainImageCount)
	assert.Equal(t, "mailbox", cfg.Renderer.PresentMode)
	assert.Equal(t, uint32(3), cfg.Textures.RingSize)
}

func TestReadConfigTOML(t *testing.T) {
	input := `
[window]
title = "demo"
width = 800

[renderer]
max_frames_in_flight = 2
present_mode = "fifo"
clear_color = [1.0, 0.5, 0.25, 1.0]

[textures]
ring_size = 2
`
	cfg, err := ReadConfig(strings.NewReader(input), TOMLDecoder)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, uint32(600), cfg.Window.Height, "unset keys keep their default")
	assert.Equal(t, uint8(2), cfg.Renderer.MaxFramesInFlight)
	assert.Equal(t, "fifo", cfg.Renderer.PresentMode)
	assert.Equal(t, [4]float32{1, 0.5, 0.25, 1}, cfg.Renderer.ClearColor)
	assert.Equal(t, uint32(2), cfg.Textures.RingSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestReadConfigYAML(t *testing.T) {
	input := `
renderer:
  max_frames_in_flight: 1
  swapchain_image_count: 2
  fence_timeout_ms: 0
  validation: false
log:
  level: info
`
	cfg, err := ReadConfig(strings.NewReader(input), YAMLDecoder)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), cfg.Renderer.MaxFramesInFlight)
	assert.Equal(t, uint32(2), cfg.Renderer.SwapchainImageCount)
	assert.Zero(t, cfg.Renderer.FenceTimeoutMS)
	assert.False(t, cfg.Renderer.Validation)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "mailbox", cfg.Renderer.PresentMode)
}

func TestReadConfigEmpty(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(""), YAMLDecoder)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestReadConfigMalformed(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("[renderer\nmax_frames_in_flight = "), TOMLDecoder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }},
		{"zero height", func(c *Config) { c.Window.Height = 0 }},
		{"no frames in flight", func(c *Config) { c.Renderer.MaxFramesInFlight = 0 }},
		{"too many frames in flight", func(c *Config) { c.Renderer.MaxFramesInFlight = 4 }},
		{"no swapchain images", func(c *Config) { c.Renderer.SwapchainImageCount = 0 }},
		{"unknown present mode", func(c *Config) { c.Renderer.PresentMode = "vsync" }},
		{"ring too small", func(c *Config) { c.Textures.RingSize = 1 }},
		{"ring too large", func(c *Config) { c.Textures.RingSize = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	for _, mode := range []string{"mailbox", "fifo", "fifo_relaxed", "immediate"} {
		cfg := DefaultConfig()
		cfg.Renderer.PresentMode = mode
		assert.NoError(t, cfg.Validate(), mode)
	}
}

func TestLoadConfigPicksDecoderByExtension(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[textures]\nwatch_dir = \"textures\"\n"), 0o644))
	cfg, err := LoadConfig(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "textures", cfg.Textures.WatchDir)

	yamlPath := filepath.Join(dir, "engine.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("textures:\n  watch_dir: images\n"), 0o644))
	cfg, err = LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "images", cfg.Textures.WatchDir)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("renderer:\n  present_mode: vsync\n"), 0o644))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("debug"))
}
