// Package events implements the per-task progress event bus. Subscribers
// get a status snapshot on subscribe, then live events through a bounded
// queue; a slow subscriber loses oldest events first and is told so.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/revoice/internal/models"
)

// Event types published on the bus.
const (
	TypeStatus               = "status"
	TypeProgress             = "progress"
	TypeResynthesizeComplete = "resynthesize_complete"
	TypeRegenerateComplete   = "regenerate_complete"
	TypeError                = "error"
	TypeBackpressure         = "backpressure"
)

// Event is one bus message. Fields beyond Type and TaskID are populated
// per type.
type Event struct {
	Type           string    `json:"type"`
	TaskID         string    `json:"task_id"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status,omitempty"`
	Step           int       `json:"step,omitempty"`
	StepName       string    `json:"step_name,omitempty"`
	Progress       float64   `json:"progress,omitempty"`
	Message        string    `json:"message,omitempty"`
	CurrentSegment int       `json:"current_segment,omitempty"`
	TotalSegments  int       `json:"total_segments,omitempty"`
	SegmentID      int       `json:"segment_id,omitempty"`
	AudioPath      string    `json:"audio_path,omitempty"`
	Success        bool      `json:"success,omitempty"`
	Error          string    `json:"error,omitempty"`
	// Dropped counts events lost to backpressure since the last delivery.
	Dropped int `json:"dropped,omitempty"`
}

// SnapshotFunc produces the current status event for a task, delivered
// first on every new subscription so late subscribers never start blind.
type SnapshotFunc func(taskID string) (Event, bool)

// Subscription is one subscriber's queue.
type Subscription struct {
	ID     string
	TaskID string
	C      <-chan Event

	ch      chan Event
	dropped int
}

// Bus fans task events out to per-task subscribers.
type Bus struct {
	mu       sync.Mutex
	subs     map[string]map[string]*Subscription // task id -> sub id -> sub
	capacity int
	snapshot SnapshotFunc
	logger   *slog.Logger
}

// New creates a Bus. capacity bounds each subscriber queue.
func New(capacity int, snapshot SnapshotFunc, logger *slog.Logger) *Bus {
	if capacity < 1 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:     make(map[string]map[string]*Subscription),
		capacity: capacity,
		snapshot: snapshot,
		logger:   logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber for one task. The snapshot event, if
// available, is queued before any live event.
func (b *Bus) Subscribe(taskID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		TaskID: taskID,
		ch:     make(chan Event, b.capacity),
	}
	sub.C = sub.ch

	if b.snapshot != nil {
		if ev, ok := b.snapshot(taskID); ok {
			sub.ch <- ev
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[string]*Subscription)
	}
	b.subs[taskID][sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.subs[sub.TaskID]; ok {
		if _, ok := m[sub.ID]; ok {
			delete(m, sub.ID)
			close(sub.ch)
		}
		if len(m) == 0 {
			delete(b.subs, sub.TaskID)
		}
	}
}

// Publish delivers an event to every subscriber of its task. A full queue
// drops its oldest entries to make room and queues a backpressure marker
// ahead of the event; the marker and the next delivered event carry the
// drop count so the client knows it missed something.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[ev.TaskID] {
		out := ev
		if sub.dropped > 0 {
			out.Dropped = sub.dropped
		}
		select {
		case sub.ch <- out:
			sub.dropped = 0
			continue
		default:
		}

		// Queue full: evict oldest entries to make room for the event,
		// preceded by a backpressure marker. A single-slot queue skips
		// the marker; the Dropped count on the event still tells the
		// subscriber it missed something.
		evict := 1
		if cap(sub.ch) > 1 {
			evict = 2
		}
		for i := 0; i < evict; i++ {
			select {
			case <-sub.ch:
				sub.dropped++
			default:
			}
		}
		if cap(sub.ch) > 1 {
			marker := Event{
				Type:      TypeBackpressure,
				TaskID:    ev.TaskID,
				Timestamp: ev.Timestamp,
				Message:   "subscriber queue overflowed, oldest events dropped",
				Dropped:   sub.dropped,
			}
			select {
			case sub.ch <- marker:
			default:
			}
		}
		out.Dropped = sub.dropped
		select {
		case sub.ch <- out:
			sub.dropped = 0
		default:
			sub.dropped++
			b.logger.Warn("subscriber queue overrun",
				"task_id", ev.TaskID, "subscriber", sub.ID, "dropped", sub.dropped)
		}
	}
}

// SubscriberCount reports the live subscriber count for a task.
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}

// StatusEvent builds the status event for a task state.
func StatusEvent(state *models.TaskState) Event {
	return Event{
		Type:           TypeStatus,
		TaskID:         state.ID,
		Status:         string(state.Status),
		Step:           state.CurrentStep,
		StepName:       state.StepName,
		Progress:       state.Progress,
		Message:        state.Message,
		CurrentSegment: state.CurrentSegment,
		TotalSegments:  state.TotalSegments,
		Error:          state.Error,
	}
}

// ProgressEvent builds an intra-stage progress event.
func ProgressEvent(taskID string, step int, progress float64, message string, current, total int) Event {
	return Event{
		Type:           TypeProgress,
		TaskID:         taskID,
		Step:           step,
		StepName:       models.StepName(step),
		Progress:       progress,
		Message:        message,
		CurrentSegment: current,
		TotalSegments:  total,
	}
}
