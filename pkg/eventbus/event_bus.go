// Package eventbus carries pipeline events between processes. Transports that
// partition deliver events sharing a key in publish order, so publishers key
// by flow session id or account id.
package eventbus

import (
	"context"
	"io"

	"github.com/dukex/taskpipe/pkg/events"
)

// Event is any message of the events package.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event under a partition key.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the decoded event.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber routes incoming events to one handler per event type.
// Subscribe may be called more than once; only the first call starts delivery.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// IDGenerator issues identifiers for new flow sessions.
type IDGenerator interface {
	GenerateID() string
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	IDGenerator
	io.Closer
}
