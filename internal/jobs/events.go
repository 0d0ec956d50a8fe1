package jobs

import (
	"sync"
	"time"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// EventType classifies messages emitted while a job is tracked.
type EventType string

const (
	EventTypeStatus       EventType = "status"
	EventTypeSnapshot     EventType = "snapshot"
	EventTypeLog          EventType = "log"
	EventTypeResult       EventType = "result"
	EventTypeError        EventType = "error"
	EventTypeNotification EventType = "notification"
)

// Notification actions.
const (
	ActionView  = "view"
	ActionRetry = "retry"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq            int64                    `json:"seq"`
	Timestamp      time.Time                `json:"timestamp"`
	JobID          string                   `json:"jobId,omitempty"`
	Type           EventType                `json:"type"`
	Phase          domain.Phase             `json:"phase,omitempty"`
	Status         domain.JobStatus         `json:"status,omitempty"`
	Message        string                   `json:"message,omitempty"`
	Snapshot       *domain.StageSnapshot    `json:"snapshot,omitempty"`
	Estimate       *domain.CreditEstimate   `json:"estimate,omitempty"`
	Artifacts      map[domain.Format]string `json:"artifacts,omitempty"`
	ErrorKind      string                   `json:"errorKind,omitempty"`
	Action         string                   `json:"action,omitempty"`
	Persistent     bool                     `json:"persistent,omitempty"`
	RetryAvailable bool                     `json:"retryAvailable,omitempty"`
}

// EventBus stores recent events, provides incremental reads and pushes to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	nextSub     int
	subscribers map[int]func(Event)
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]func(Event)),
	}
}

// Publish appends one event, assigns sequence and timestamp, then notifies subscribers.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	subs := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return event
}

// Subscribe registers fn for every later event. The returned func unsubscribes.
func (b *EventBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the newest event of type t, if any.
func (b *EventBus) Last(t EventType) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == t {
			return b.events[i], true
		}
	}
	return Event{}, false
}
