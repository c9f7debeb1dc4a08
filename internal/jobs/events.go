package jobs

import (
	"sync"
	"time"

	"video-transcriber/internal/domain"
)

// EventType classifies entries of the progress view feed.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeArtifact EventType = "artifact"
	EventTypeNotice   EventType = "notice"
	EventTypeError    EventType = "error"
)

// Event is a sequenced progress view entry consumed by pollers.
type Event struct {
	Seq        int64        `json:"seq"`
	Timestamp  time.Time    `json:"timestamp"`
	BatchID    string       `json:"batchId,omitempty"`
	Type       EventType    `json:"type"`
	Action     string       `json:"action,omitempty"`
	Phase      domain.Phase `json:"phase,omitempty"`
	Index      int          `json:"index"`
	Total      int          `json:"total"`
	Progress   int          `json:"progress"`
	EtaSeconds int          `json:"etaSeconds,omitempty"`
	EtaLine    string       `json:"etaLine,omitempty"`
	Message    string       `json:"message,omitempty"`
	File       string       `json:"file,omitempty"`
	Path       string       `json:"path,omitempty"`
}

// StatusEvent builds a status entry from a session snapshot.
func StatusEvent(s domain.Session, action string) Event {
	event := Event{
		BatchID:    s.BatchID,
		Type:       EventTypeStatus,
		Action:     action,
		Phase:      s.Phase,
		Index:      s.CurrentIndex,
		Total:      len(s.Jobs),
		Progress:   s.ProgressPercent,
		EtaSeconds: s.EtaDisplaySeconds,
		EtaLine:    EtaLine(s),
		Message:    s.StatusMessage,
	}
	if job, ok := s.CurrentJob(); ok {
		event.File = job.DisplayName
	}
	return event
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

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

	return event
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
