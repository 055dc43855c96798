package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one telemetry event emitted by the engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Resource identifies the associated resource, if applicable.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific fields.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types emitted by the engine.
const (
	EventTypePlanBuilt         = "plan.built"
	EventTypeRunStarted        = "run.started"
	EventTypeRunCompleted      = "run.completed"
	EventTypeResourceApplied   = "resource.applied"
	EventTypeResourceFailed    = "resource.failed"
	EventTypeReconcileMismatch = "reconcile.mismatch"
	EventTypePolicyViolation   = "policy.violation"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventPublisher fans engine events out to subscribers, optionally
// through an asynchronous buffer. A disabled publisher is a safe no-op.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []EventSubscriber
	wg          sync.WaitGroup
	mu          sync.RWMutex
	cancel      context.CancelFunc
	done        <-chan struct{}
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		cancel: cancel,
		done:   ctx.Done(),
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.drain()
	}
	return ep, nil
}

// Subscribe registers a subscriber for all future events.
func (ep *EventPublisher) Subscribe(sub EventSubscriber) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, sub)
}

// Publish delivers an event to all subscribers. With async delivery a
// full buffer drops the event and reports an error.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.done:
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliver(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, operation string, resources int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("%s run started with %d resources", operation, resources),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
			"resources": resources,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID string, attempted, succeeded int) error {
	level := EventLevelInfo
	if succeeded != attempted {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("run completed: %d of %d resources succeeded", succeeded, attempted),
		Level:   level,
		Data: map[string]interface{}{
			"attempted": attempted,
			"succeeded": succeeded,
		},
	})
}

// PublishResourceApplied publishes a successful plan step event.
func (ep *EventPublisher) PublishResourceApplied(runID, resource, operation string) error {
	return ep.Publish(Event{
		Type:     EventTypeResourceApplied,
		RunID:    runID,
		Resource: resource,
		Message:  fmt.Sprintf("%s applied to %s", operation, resource),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// PublishResourceFailed publishes a failed plan step event.
func (ep *EventPublisher) PublishResourceFailed(runID, resource, operation, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeResourceFailed,
		RunID:    runID,
		Resource: resource,
		Message:  fmt.Sprintf("%s failed for %s: %s", operation, resource, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	})
}

// drain delivers buffered events until shutdown.
func (ep *EventPublisher) drain() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.done:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	subs := make([]EventSubscriber, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()
	for _, sub := range subs {
		sub(event)
	}
}

// Shutdown stops the publisher, delivering already buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
		return nil
	}
	ep.cancel()

	finished := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
