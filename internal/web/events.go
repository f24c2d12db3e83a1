package web

import (
	"sync"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/types"
)

const eventChannelBuffer = 64

// Event is one message on the SSE stream.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type cameraData struct {
	Active   bool   `json:"active"`
	DeviceID string `json:"device_id,omitempty"`
}

type statusData struct {
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

type progressData struct {
	Captured int `json:"captured"`
	Target   int `json:"target"`
}

type errorData struct {
	Kind pipeline.ErrorKind `json:"kind"`
}

// Broadcaster fans controller events out to SSE listeners. It is a
// pipeline.Observer; a slow listener loses events rather than stalling the loop.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
	closed    bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// AddListener adds an event listener. It returns nil after Close.
func (b *Broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	ch := make(chan Event, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes and closes an event listener.
func (b *Broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Listeners returns the number of connected listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// SendEvent sends an event to all listeners.
func (b *Broadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Close disconnects every listener so streaming handlers return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}

func (b *Broadcaster) OnCameraChange(active bool, deviceID string) {
	b.SendEvent(Event{Type: "camera", Data: cameraData{Active: active, DeviceID: deviceID}})
}

func (b *Broadcaster) OnOverlay(faces []types.Face) {
	if faces == nil {
		faces = []types.Face{}
	}
	b.SendEvent(Event{Type: "overlay", Data: faces})
}

func (b *Broadcaster) OnStatusChange(text string, active bool) {
	b.SendEvent(Event{Type: "status", Message: text, Data: statusData{Text: text, Active: active}})
}

func (b *Broadcaster) OnMatched(name string) {
	b.SendEvent(Event{Type: "matched", Message: name})
}

func (b *Broadcaster) OnRegistrationProgress(captured, target int) {
	b.SendEvent(Event{Type: "progress", Data: progressData{Captured: captured, Target: target}})
}

func (b *Broadcaster) OnRegistrationComplete() {
	b.SendEvent(Event{Type: "registration_complete", Message: "Registration complete"})
}

func (b *Broadcaster) OnError(kind pipeline.ErrorKind, message string) {
	b.SendEvent(Event{Type: "error", Message: message, Data: errorData{Kind: kind}})
}
