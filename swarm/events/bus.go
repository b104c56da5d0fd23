// Package events carries swarm lifecycle notifications off the hot path.
//
// The bus is a bounded, non-blocking fan-out: Publish never blocks the
// caller, a full buffer drops the event with a log line, and handlers run
// on a bounded worker pool with panic isolation. Persistence mirrors and
// metrics hang off subscriptions so the scorer and orchestrator never wait
// on I/O.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/internal/pool"
)

// EventType names a swarm lifecycle event.
type EventType string

const (
	EventAgentRegistered    EventType = "agent.registered"
	EventAgentUnregistered  EventType = "agent.unregistered"
	EventRoutingDecision    EventType = "routing.decision"
	EventDelegationStarted  EventType = "delegation.started"
	EventDelegationComplete EventType = "delegation.completed"
	EventDelegationFailed   EventType = "delegation.failed"
	EventTrustUpdated       EventType = "trust.updated"
	EventRiskDetected       EventType = "risk.detected"
)

// Event is one published notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler consumes one event. Handlers run concurrently; a panicking
// handler is logged and isolated from the rest.
type Handler func(Event)

// BusConfig tunes the event bus.
type BusConfig struct {
	// BufferSize bounds the in-flight event queue.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// HandlerWorkers caps how many handlers run concurrently.
	HandlerWorkers int `json:"handler_workers" yaml:"handler_workers"`

	// Now supplies event timestamps, overridable in tests.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultBusConfig returns the default bus configuration.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		BufferSize:     256,
		HandlerWorkers: 16,
		Now:            time.Now,
	}
}

// Bus is the bounded non-blocking event bus.
type Bus struct {
	config *BusConfig
	logger *zap.Logger
	now    func() time.Time
	pool   *pool.Pool

	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once

	subSeq  atomic.Int64
	dropped atomic.Uint64
}

// NewBus creates and starts the bus. Config and logger may be nil.
func NewBus(config *BusConfig, logger *zap.Logger) *Bus {
	if config == nil {
		config = DefaultBusConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}
	if config.HandlerWorkers <= 0 {
		config.HandlerWorkers = DefaultBusConfig().HandlerWorkers
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bus{
		config:   config,
		logger:   logger.With(zap.String("component", "event_bus")),
		now:      config.Now,
		handlers: make(map[EventType]map[string]Handler),
		events:   make(chan Event, config.BufferSize),
		done:     make(chan struct{}),
	}
	b.pool = pool.New(pool.Config{
		Workers:   config.HandlerWorkers,
		QueueSize: config.BufferSize,
	})
	go b.process()
	return b
}

// Publish enqueues an event without blocking. A full buffer or a stopped
// bus drops the event; a drop is logged, never surfaced to the caller.
func (b *Bus) Publish(eventType EventType, payload any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}

	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.events <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event buffer full, dropping event",
			zap.String("event_type", string(eventType)))
	}
}

// Subscribe registers a handler for one event type and returns the
// subscription ID used to unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	id := fmt.Sprintf("%s-%d", eventType, b.subSeq.Add(1))
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are a no-op.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop shuts the bus down. Events not yet dispatched are discarded;
// handlers already dispatched run to completion before Stop returns.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.pool != nil {
			b.pool.Close()
		}
	})
}

func (b *Bus) process() {
	for {
		select {
		case event := <-b.events:
			b.mu.RLock()
			src := b.handlers[event.Type]
			handlers := make([]Handler, 0, len(src))
			for _, h := range src {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				b.dispatch(event, handler)
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(event Event, handler Handler) {
	err := b.pool.Submit(context.Background(), func(context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					zap.String("event_type", string(event.Type)),
					zap.Any("recover", r))
			}
		}()
		handler(event)
		return nil
	})
	if err != nil {
		b.dropped.Add(1)
		b.logger.Warn("handler pool saturated, dropping delivery",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
