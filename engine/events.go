package engine

import (
	"sync"
	"time"
)

// Event types published on the bus.
const (
	EventSnapshotCreated = "snapshot.created"
	EventSnapshotCleared = "snapshot.cleared"
)

// Event is a snapshot lifecycle notification broadcast to SSE clients and
// watch-mode observers.
type Event struct {
	Type       string    `json:"type"`
	Root       string    `json:"root,omitempty"`
	SnapshotID int64     `json:"snapshotId,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Time       time.Time `json:"time"`
}

// EventBus broadcasts Events to all subscribers.
type EventBus struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{clients: make(map[chan Event]struct{})}
}

// Subscribe registers a new client and returns its event channel.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish sends an event to all subscribers.
// Slow clients are skipped (non-blocking send).
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
			// slow client, drop event
		}
	}
}
