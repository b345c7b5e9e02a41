package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted while running frames.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Pipeline is the pipeline name, if applicable.
	Pipeline string `json:"pipeline,omitempty"`

	// FrameID is the associated frame ID, if applicable.
	FrameID string `json:"frame_id,omitempty"`

	// TaskPath is the associated task path, if applicable.
	TaskPath string `json:"task_path,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeFrameStarted     = "frame.started"
	EventTypeFrameCompleted   = "frame.completed"
	EventTypeUsageError       = "engine.usage_error"
	EventTypePolicyViolation  = "policy.violation"
	EventTypePipelineReloaded = "pipeline.reloaded"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates an event publisher. With cfg.Async a single
// goroutine delivers queued events until Shutdown.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if cfg.Async && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Async {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish stamps the event and hands it to the subscribers. Events rejected
// by a global filter are discarded. An async publisher that is stopped or
// full returns an error and drops the event.
func (ep *EventPublisher) Publish(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.Async {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, %s event dropped", event.Type)
	}
}

// PublishFrameStarted publishes a frame started event.
func (ep *EventPublisher) PublishFrameStarted(pipeline, frameID string, sequence uint64, taskCount int) error {
	return ep.Publish(Event{
		Type:     EventTypeFrameStarted,
		Source:   "engine",
		Pipeline: pipeline,
		FrameID:  frameID,
		Message:  fmt.Sprintf("Frame %d started with %d tasks", sequence, taskCount),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"sequence":   sequence,
			"task_count": taskCount,
		},
	})
}

// PublishFrameCompleted publishes a frame completed event.
func (ep *EventPublisher) PublishFrameCompleted(pipeline, frameID string, sequence uint64, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeFrameCompleted,
		Source:   "engine",
		Pipeline: pipeline,
		FrameID:  frameID,
		Message:  fmt.Sprintf("Frame %d completed in %s", sequence, duration),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"sequence": sequence,
			"duration": duration.Seconds(),
		},
	})
}

// PublishUsageError publishes an engine usage error.
func (ep *EventPublisher) PublishUsageError(pipeline, frameID, code, taskPath, message string) error {
	return ep.Publish(Event{
		Type:     EventTypeUsageError,
		Source:   "engine",
		Pipeline: pipeline,
		FrameID:  frameID,
		TaskPath: taskPath,
		Message:  message,
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"code": code,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(pipeline, taskPath, policyName, severity, reason string) error {
	level := EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:     EventTypePolicyViolation,
		Source:   "policy_engine",
		Pipeline: pipeline,
		TaskPath: taskPath,
		Message:  fmt.Sprintf("Policy violation in %s: %s - %s", pipeline, policyName, reason),
		Level:    level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"severity": severity,
			"reason":   reason,
		},
	})
}

// PublishPipelineReloaded publishes a pipeline reload event.
func (ep *EventPublisher) PublishPipelineReloaded(pipeline, path string) error {
	return ep.Publish(Event{
		Type:     EventTypePipelineReloaded,
		Source:   "watcher",
		Pipeline: pipeline,
		Message:  fmt.Sprintf("Pipeline %s reloaded from %s", pipeline, path),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers queued events in order. After Shutdown it drains
// the queue and returns.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers in subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := ep.subscribers
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep.cancel == nil {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByFrameID creates a filter that only allows events for a specific frame.
func FilterByFrameID(frameID string) EventFilter {
	return func(event Event) bool {
		return event.FrameID == frameID
	}
}

// FilterByPipeline creates a filter that only allows events for a specific pipeline.
func FilterByPipeline(pipeline string) EventFilter {
	return func(event Event) bool {
		return event.Pipeline == pipeline
	}
}
