package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one entry in the install progress stream.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type, one of the EventType constants.
	Type string `json:"type"`

	// RunID is the associated install run id, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Phase and Step locate the event in the install workflow.
	Phase string `json:"phase,omitempty"`
	Step  string `json:"step,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Data carries event-specific details.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types emitted during an install run.
const (
	EventTypeRunStarted        = "run.started"
	EventTypeRunCompleted      = "run.completed"
	EventTypeRunFailed         = "run.failed"
	EventTypeRunCancelled      = "run.cancelled"
	EventTypePhaseStarted      = "phase.started"
	EventTypePhaseCompleted    = "phase.completed"
	EventTypeStepStarted       = "step.started"
	EventTypeStepFailed        = "step.failed"
	EventTypeStepRetried       = "step.retried"
	EventTypeStepSkipped       = "step.skipped"
	EventTypeErrorHandled      = "error.handled"
	EventTypeSnapshotCreated   = "snapshot.created"
	EventTypeRollbackPerformed = "rollback.performed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventPublisher fans install events out to subscribers. Publishing
// never blocks: a subscriber that falls behind loses events rather
// than stalling the run.
type EventPublisher struct {
	config EventsConfig

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
}

// NewEventPublisher creates an event publisher. A disabled publisher
// drops everything.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	return &EventPublisher{
		config:      cfg,
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed on cancel or publisher close.
func (p *EventPublisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffer := p.config.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	if p.closed || !p.config.Enabled {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subscribers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish sends an event to every subscriber, filling in the id and
// timestamp when the caller left them empty.
func (p *EventPublisher) Publish(evt Event) {
	if !p.config.Enabled {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Level == "" {
		evt.Level = EventLevelInfo
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, ch := range p.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close stops the publisher and closes all subscriber channels.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
}
