package session

import (
	"sync"
	"time"
)

// EventType names a session lifecycle change
type EventType string

const (
	EventCreated EventType = "session_created"
	EventUpdated EventType = "session_updated"
	EventExpired EventType = "session_expired"
)

// Event is published on every session lifecycle change
type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Session Session   `json:"session"`
}

// EventBus fans events out to subscriber channels. Slow subscribers miss
// events rather than blocking the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
