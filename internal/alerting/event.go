package alerting

import (
	"sync"
	"time"

	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
)

// EventType names a lifecycle event.
type EventType string

// LifecycleEvent is published after an alert or incident changes. Exactly one
// of Alert and Incident is set. The records are copies owned by the event.
type LifecycleEvent struct {
	Type      EventType
	Alert     *monitoring.Alert
	Incident  *monitoring.Incident
	Actor     string
	Timestamp time.Time
}

// EventHandler processes lifecycle events.
type EventHandler func(event *LifecycleEvent)

const (
	// eventBusBufferSize is the capacity of the async event channel.
	// Events are dropped if the buffer is full to avoid blocking callers.
	eventBusBufferSize = 1000
)

// EventBus is an async pub/sub for lifecycle events. Publish never blocks:
// events go to a buffered channel drained by one worker goroutine, so the
// subscription read loop and mutation callers are not held up by
// notification delivery.
type EventBus struct {
	handlers []EventHandler
	mu       sync.RWMutex
	eventCh  chan *LifecycleEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	log      logger.Logger
	now      func() time.Time
}

// NewEventBus creates a bus and starts its worker.
func NewEventBus(log logger.Logger) *EventBus {
	if log == nil {
		log = logger.Discard()
	}
	b := &EventBus{
		handlers: make([]EventHandler, 0),
		eventCh:  make(chan *LifecycleEvent, eventBusBufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      log.Module("events"),
		now:      time.Now,
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler. Handlers run sequentially on the worker.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event. It reports false if the event was dropped
// because the bus is stopped or its buffer is full.
func (b *EventBus) Publish(event *LifecycleEvent) bool {
	if b == nil || event == nil {
		return false
	}
	select {
	case <-b.stopCh:
		return false
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	select {
	case b.eventCh <- event:
		return true
	default:
		b.log.Warn("event buffer full, dropping event", logger.String("type", string(event.Type)))
		return false
	}
}

// Stop shuts down the worker after draining queued events and waits for it
// to exit. Safe to call multiple times.
func (b *EventBus) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

func (b *EventBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *LifecycleEvent) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the worker.
func (b *EventBus) safeCall(handler EventHandler, event *LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				logger.String("type", string(event.Type)),
				logger.Any("panic", r))
		}
	}()
	handler(event)
}

func alertEvent(t EventType, a monitoring.Alert, actor string) *LifecycleEvent {
	c := a.Clone()
	return &LifecycleEvent{Type: t, Alert: &c, Actor: actor}
}

func incidentEvent(t EventType, inc monitoring.Incident, actor string) *LifecycleEvent {
	c := inc.Clone()
	return &LifecycleEvent{Type: t, Incident: &c, Actor: actor}
}
