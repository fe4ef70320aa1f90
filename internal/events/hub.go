// Package events fans out task lifecycle changes to in-process observers.
package events

import (
	"sync"
	"time"
)

// Task lifecycle event types.
const (
	TaskStarted = "task.started"
	TaskExited  = "task.exited"
	TaskFailed  = "task.failed"
)

// Event is one task lifecycle change. ID and At are assigned by Publish.
type Event struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
	TaskID     string    `json:"task_id"`
	Repository string    `json:"repository"`

	// Set on task.exited.
	ExitCode *int          `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// Set on task.failed.
	Step  string `json:"step,omitempty"`
	Error string `json:"error,omitempty"`
}

// Hub keeps the most recent events and forwards new ones to subscribers.
// Nothing is persisted.
type Hub struct {
	mu       sync.Mutex
	lastID   int64
	capacity int
	recent   []Event

	subs      map[int]chan Event
	nextSubID int
}

// NewHub creates a Hub remembering up to capacity events (default 100).
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		capacity: capacity,
		recent:   make([]Event, 0, capacity),
		subs:     make(map[int]chan Event),
	}
}

// Publish records ev and delivers it to every subscriber. Calling Publish on
// a nil Hub is a no-op, so components can run without one.
func (h *Hub) Publish(ev Event) Event {
	if h == nil {
		return ev
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev.ID = h.lastID
	ev.At = time.Now().UTC()

	if len(h.recent) == h.capacity {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:len(h.recent)-1]
	}
	h.recent = append(h.recent, ev)

	for _, ch := range h.subs {
		// Slow subscribers drop events rather than stall a task goroutine.
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events and a func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SnapshotSince returns remembered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.recent))
	for _, ev := range h.recent {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// ForTask returns the remembered events of one task, oldest first.
func (h *Hub) ForTask(taskID string) []Event {
	var out []Event
	for _, ev := range h.SnapshotSince(0) {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out
}
