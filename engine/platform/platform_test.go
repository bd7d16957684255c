package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		key  glfw.Key
		code core.KeyCode
		ok   bool
	}{
		{glfw.KeyEscape, core.KEY_ESCAPE, true},
		{glfw.KeySpace, core.KEY_SPACE, true},
		{glfw.KeyP, core.KEY_P, true},
		{glfw.KeyA, 0, false},
	}
	for _, tt := range tests {
		code, ok := translateKey(tt.key)
		assert.Equal(t, tt.ok, ok, "key %d", tt.key)
		assert.Equal(t, tt.code, code, "key %d", tt.key)
	}
}

func TestCallbacksFireEvents(t *testing.T) {
	bus := core.NewEventBus()
	p, err := New(bus)
	assert.NoError(t, err)

	var got []core.EventContext
	record := func(ctx core.EventContext) bool {
		got = append(got, ctx)
		return true
	}
	bus.Register(core.EVENT_CODE_KEY_PRESSED, record)
	bus.Register(core.EVENT_CODE_KEY_RELEASED, record)
	bus.Register(core.EVENT_CODE_RESIZED, record)
	bus.Register(core.EVENT_CODE_APPLICATION_QUIT, record)

	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Repeat, 0)
	p.keyCallback(nil, glfw.KeyA, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyP, 0, glfw.Release, 0)
	p.framebufferSizeCallback(nil, 800, 600)
	p.framebufferSizeCallback(nil, -1, 0)
	p.closeCallback(nil)

	assert.Equal(t, []core.EventContext{
		{Type: core.EVENT_CODE_KEY_PRESSED, Data: core.KeyEvent{KeyCode: core.KEY_ESCAPE}},
		{Type: core.EVENT_CODE_KEY_RELEASED, Data: core.KeyEvent{KeyCode: core.KEY_P}},
		{Type: core.EVENT_CODE_RESIZED, Data: core.SystemEvent{WindowWidth: 800, WindowHeight: 600}},
		{Type: core.EVENT_CODE_RESIZED, Data: core.SystemEvent{}},
		{Type: core.EVENT_CODE_APPLICATION_QUIT},
	}, got)
}
