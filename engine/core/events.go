package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Data is a KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Data is a KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Resized/resolution changed from the OS. Data is a SystemEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// A watched asset changed on disk. Data is an AssetEvent.
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_P      KeyCode = 0x50
)

type KeyEvent struct {
	KeyCode KeyCode
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type AssetEvent struct {
	// Name is the asset path relative to the watched directory, without extension.
	Name    string
	Path    string
	Removed bool
}

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// Handlers return true when the event is consumed.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

// EventBus dispatches synchronously on the goroutine that fires the event.
// The platform fires from inside PollEvents, so listeners run on the render thread.
type EventBus struct {
	mu         sync.RWMutex
	nextID     uint64
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

// Register returns an id usable with Unregister.
func (b *EventBus) Register(code SystemEventCode, onEvent FnOnEvent) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.registered[code] = append(b.registered[code], registeredEvent{id: b.nextID, callback: onEvent})
	return b.nextID
}

func (b *EventBus) Unregister(code SystemEventCode, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.id == id {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire calls listeners in registration order until one reports the event handled.
func (b *EventBus) Fire(context EventContext) bool {
	b.mu.RLock()
	events := append([]registeredEvent(nil), b.registered[context.Type]...)
	b.mu.RUnlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}

func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[SystemEventCode][]registeredEvent)
}
