// Package bus fans governance events out to in-process subscribers and,
// optionally, to an external Kafka topic.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event kinds published on the bus. Context, loop, approval and sub-agent
// packages each map their own event types onto these.
const (
	KindContext  = "context"
	KindLoop     = "loop"
	KindApproval = "approval"
	KindSubagent = "subagent"
)

// Event is the envelope for one governance event.
type Event struct {
	Kind      string         `json:"kind"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus decouples event producers from subscribers. Publishing never blocks;
// events are dropped with a warning when the queue is full.
type Bus struct {
	events chan Event
	subs   []func(Event)
	logger *slog.Logger

	mu      sync.RWMutex
	dropped int
}

// New creates a bus with the given queue capacity. Zero or negative gets 100.
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		events: make(chan Event, capacity),
		logger: logger,
	}
}

// Publish queues an event for dispatch.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		dropped := b.dropped
		b.mu.Unlock()
		b.logger.Warn("event bus full, event dropped",
			"kind", ev.Kind, "type", ev.Type, "dropped_total", dropped)
	}
}

// Subscribe registers a callback for every published event. Callbacks run on
// the dispatcher goroutine and must not block.
func (b *Bus) Subscribe(callback func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, callback)
}

// Dispatch delivers queued events to subscribers until the context ends.
// Run it as a goroutine.
func (b *Bus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.mu.RLock()
			subs := b.subs
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(ev)
			}
		}
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int { return len(b.events) }

// Dropped returns how many events did not fit in the queue.
func (b *Bus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
