package server

import (
	"context"
	"sync"
	"time"
)

// Collection names carried on data-change events, matching the snapshot keys.
const (
	EventJournalEntries = "journal_entries"
	EventChatSessions   = "chat_sessions"
	EventChatMessages   = "chat_messages"
	EventDailyCheckins  = "daily_checkins"
	EventAnalyses       = "analyses"
	EventBackup         = "backup"
)

// DataEvent tells subscribed UI clients that rows of a collection changed and
// should be re-read. A restore emits one event per affected collection.
type DataEvent struct {
	Collection string    `json:"collection"`
	Keys       []string  `json:"keys,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DataEventDispatcher fans data-change events out to connected subscribers.
// Slow subscribers drop events rather than block a write path.
type DataEventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan DataEvent
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

// NewDataEventDispatcher constructs an empty dispatcher.
func NewDataEventDispatcher() *DataEventDispatcher {
	return &DataEventDispatcher{
		subscribers: make(map[int64]chan DataEvent),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the client disconnects; the channel is also torn down when ctx ends.
func (d *DataEventDispatcher) Subscribe(ctx context.Context) (<-chan DataEvent, func()) {
	stream := make(chan DataEvent, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subscribers[id] = stream
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
			close(stream)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return stream, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (d *DataEventDispatcher) Publish(collection string, keys ...string) {
	event := DataEvent{
		Collection: collection,
		Keys:       keys,
		Timestamp:  d.clock().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers {
		select {
		case stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of connected listeners.
func (d *DataEventDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
