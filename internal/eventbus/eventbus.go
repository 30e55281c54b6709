// Package eventbus provides publish/subscribe event delivery for
// lifecycle events (task dispatch, completion, update phase
// transitions), consumed by the streaming hub and the bot notifier
// adapter. Delivery is additive observability: no core invariant
// depends on it.
package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event-type constants for the lifecycle events this bus carries.
const (
	EventTaskSubmitted       = "task.submitted"
	EventTaskDispatched      = "task.dispatched"
	EventTaskCompleted       = "task.completed"
	EventTaskFailed          = "task.failed"
	EventAgentStatusChanged  = "agent.status_changed"
	EventUpdateStateChanged  = "update.state_changed"
	EventUpdatePhaseProgress = "update.phase_progress"
)

// Event is the envelope published to the bus.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Source     string                 `json:"source"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a generated ID and the current
// time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Handler processes a delivered event.
type Handler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus is the publish/subscribe event bus abstraction. NATSBus and
// MemoryBus both implement it; MemoryBus is selected automatically
// when no NATS URL is configured.
type Bus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}
