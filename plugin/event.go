package plugin

import (
	"context"
	"errors"
	"time"
)

// ErrNoResponse is returned by Request when no handler produced a result.
var ErrNoResponse = errors.New("no handler answered the request")

// Event represents a runtime or plugin event.
type Event struct {
	Name      string    // e.g. "core.ready", "player.joined"
	Data      any       // payload
	Source    string    // originating component or plugin name
	Timestamp time.Time // when the event was created
}

// EventHandler handles fire-and-forget events. Errors are logged and
// swallowed; they never stop the fan-out.
type EventHandler func(ctx context.Context, event Event) error

// RequestHandler answers request/response events. Returning a nil result
// passes the request to the next handler in subscription order.
type RequestHandler func(ctx context.Context, event Event) (any, error)

// Subscription represents an active event subscription.
type Subscription interface {
	Unsubscribe()
}

// EventBus is the single event mechanism for cross-plugin communication.
type EventBus interface {
	// Publish fans an event out to all subscribers in subscription order.
	Publish(ctx context.Context, event Event)

	// Subscribe registers a fire-and-forget handler for a topic.
	Subscribe(topic string, handler EventHandler) Subscription

	// SubscribeRequest registers a request/response handler for a topic.
	SubscribeRequest(topic string, handler RequestHandler) Subscription

	// Request dispatches to request handlers in subscription order and
	// returns the first non-nil result. A handler error surfaces only
	// when no handler produced a result.
	Request(ctx context.Context, event Event) (any, error)
}
