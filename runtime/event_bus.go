package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
)

// eventBus implements plugin.EventBus. Dispatch is synchronous and preserves
// subscription order, which is what module authors rely on for sequencing;
// registration is safe at any time, not only during startup.
type eventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriberEntry
	responders  map[string][]responderEntry
	logger      logging.Logger
	nextID      atomic.Uint64
}

type subscriberEntry struct {
	id      uint64
	handler plugin.EventHandler
}

type responderEntry struct {
	id      uint64
	handler plugin.RequestHandler
}

// subscription implements plugin.Subscription for both handler families.
type subscription struct {
	bus       *eventBus
	topic     string
	id        uint64
	responder bool
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.responder {
		entries := s.bus.responders[s.topic]
		for i, entry := range entries {
			if entry.id == s.id {
				s.bus.responders[s.topic] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
		return
	}

	entries := s.bus.subscribers[s.topic]
	for i, entry := range entries {
		if entry.id == s.id {
			s.bus.subscribers[s.topic] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// NewEventBus creates an event bus logging handler failures to logger.
func NewEventBus(logger logging.Logger) plugin.EventBus {
	return newEventBus(logger)
}

func newEventBus(logger logging.Logger) *eventBus {
	if logger == nil {
		logger = logging.Nop()
	}
	return &eventBus{
		subscribers: make(map[string][]subscriberEntry),
		responders:  make(map[string][]responderEntry),
		logger:      logger.Named("events"),
	}
}

// Publish fans the event out to all subscribers in subscription order. A
// failing handler is logged and skipped; it never stops the fan-out.
func (b *eventBus) Publish(ctx context.Context, event plugin.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	entries := append([]subscriberEntry{}, b.subscribers[event.Name]...)
	b.mu.RUnlock()

	for _, entry := range entries {
		if err := b.invoke(ctx, entry.handler, event); err != nil {
			b.logger.Warn("event handler error",
				zap.String("event", event.Name),
				zap.Error(err))
		}
	}
}

// invoke runs one handler, converting a panic into an error so a broken
// subscriber cannot take down the publisher.
func (b *eventBus) invoke(ctx context.Context, handler plugin.EventHandler, event plugin.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a fire-and-forget handler for a topic.
func (b *eventBus) Subscribe(topic string, handler plugin.EventHandler) plugin.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscribers[topic] = append(b.subscribers[topic], subscriberEntry{
		id:      id,
		handler: handler,
	})
	return &subscription{bus: b, topic: topic, id: id}
}

// SubscribeRequest registers a request/response handler for a topic.
func (b *eventBus) SubscribeRequest(topic string, handler plugin.RequestHandler) plugin.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.responders[topic] = append(b.responders[topic], responderEntry{
		id:      id,
		handler: handler,
	})
	return &subscription{bus: b, topic: topic, id: id, responder: true}
}

// Request asks responders in subscription order and returns the first
// non-nil result. Evaluation short-circuits on the first answer. A handler
// error surfaces only when no handler produced a result.
func (b *eventBus) Request(ctx context.Context, event plugin.Event) (any, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	entries := append([]responderEntry{}, b.responders[event.Name]...)
	b.mu.RUnlock()

	var firstErr error
	for _, entry := range entries {
		result, err := b.answer(ctx, entry.handler, event)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if result != nil {
			return result, nil
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, plugin.ErrNoResponse
}

func (b *eventBus) answer(ctx context.Context, handler plugin.RequestHandler, event plugin.Event) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, recoveredError(r)
		}
	}()
	return handler(ctx, event)
}
