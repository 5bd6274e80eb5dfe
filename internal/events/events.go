// Package events provides the in-process event bus connecting the
// dispatcher to live observers (the terminal dashboard, log followers).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/floodgate-io/floodgate/internal/constants"
	"github.com/floodgate-io/floodgate/internal/metrics"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventJobQueued    EventType = "job_queued"    // Job seeded into the backlog
	EventJobStarted   EventType = "job_started"   // Worker claimed the job and passed admission
	EventJobRequeued  EventType = "job_requeued"  // Rate-limited, returned to the tail
	EventJobSucceeded EventType = "job_succeeded" // Execution succeeded
	EventJobFailed    EventType = "job_failed"    // Terminal failure (hard or retries exhausted)
	EventSnapshot     EventType = "snapshot"      // Periodic metrics snapshot
	EventRunCompleted EventType = "run_completed" // Queue drained, workers stopped
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// JobEvent covers the per-job lifecycle transitions.
type JobEvent struct {
	BaseEvent
	JobID    string
	WorkerID int
	Attempt  int // 1-based; attempt 2 is the first retry
	Tokens   int // actual tokens, success only
	Latency  time.Duration
	Err      error  // terminal failures only
	Reason   string // "hard-failure" or "retries-exhausted" on EventJobFailed
}

// SnapshotEvent carries a periodic metrics snapshot for live observers.
type SnapshotEvent struct {
	BaseEvent
	Snapshot metrics.Snapshot
}

// RunCompletedEvent is published once after the queue drains.
type RunCompletedEvent struct {
	BaseEvent
	Final    metrics.Snapshot
	Duration time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Non-blocking: a subscriber
// with a full buffer loses the event (counted, never stalls a worker).
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// PublishJob is a convenience method for publishing job lifecycle events.
func (eb *EventBus) PublishJob(eventType EventType, jobID string, workerID, attempt int) {
	eb.Publish(&JobEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		JobID:     jobID,
		WorkerID:  workerID,
		Attempt:   attempt,
	})
}

// PublishSnapshot is a convenience method for publishing snapshot events.
func (eb *EventBus) PublishSnapshot(s metrics.Snapshot) {
	eb.Publish(&SnapshotEvent{
		BaseEvent: BaseEvent{EventType: EventSnapshot, Time: time.Now()},
		Snapshot:  s,
	})
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from a specific event type.
// This prevents memory leaks from abandoned subscriptions.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to
// full buffers. Useful for detecting if buffer sizes need adjustment.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
