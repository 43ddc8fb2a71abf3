// Package events provides an in-process event bus for upload and catalog
// state changes consumed by the CLI layer.
package events

import (
	"sync"
	"time"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventUploadQueued    EventType = "upload_queued"    // Entry created, request not yet issued
	EventUploadStarted   EventType = "upload_started"   // Request in flight
	EventUploadCompleted EventType = "upload_completed" // Entry reached success
	EventUploadFailed    EventType = "upload_failed"    // Entry reached error
	EventUploadCancelled EventType = "upload_cancelled" // Entry cancelled by the user
	EventCatalogUpdated  EventType = "catalog_updated"  // File list changed (fetch or refetch)
	EventCatalogError    EventType = "catalog_error"    // File list fetch failed
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// UploadEvent reports a state change for one tracked upload entry.
type UploadEvent struct {
	BaseEvent
	EntryID  string
	FileName string
	Size     int64
	Err      error
}

// CatalogEvent reports a file-list change or fetch failure.
type CatalogEvent struct {
	BaseEvent
	Count   int
	HasNext bool
	Err     error
}

// NewUploadEvent builds an UploadEvent stamped with the current time.
func NewUploadEvent(t EventType, entryID, fileName string, size int64, err error) UploadEvent {
	return UploadEvent{
		BaseEvent: BaseEvent{EventType: t, Time: time.Now()},
		EntryID:   entryID,
		FileName:  fileName,
		Size:      size,
		Err:       err,
	}
}

// NewCatalogEvent builds a CatalogEvent stamped with the current time.
func NewCatalogEvent(t EventType, count int, hasNext bool, err error) CatalogEvent {
	return CatalogEvent{
		BaseEvent: BaseEvent{EventType: t, Time: time.Now()},
		Count:     count,
		HasNext:   hasNext,
		Err:       err,
	}
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to all current subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
