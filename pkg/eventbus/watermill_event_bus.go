package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/taskpipe/pkg/events"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of delivery lanes when none is configured.
const DefaultConcurrency = 8

const laneBuffer = 16

type Option func(*WatermillEventBus)

// WithConcurrency sets how many handlers may run at once. Values below one
// fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(eb *WatermillEventBus) {
		if n > 0 {
			eb.concurrency = n
		}
	}
}

type WatermillEventBus struct {
	publisher   message.Publisher
	subscriber  message.Subscriber
	logger      *slog.Logger
	concurrency int

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
	subscribed    bool

	unkeyed atomic.Uint32
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, opts ...Option) *WatermillEventBus {
	eb := &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "event_bus"),
		concurrency:   DefaultConcurrency,
		subscriptions: make(map[events.EventType]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func newEvent(eventType events.EventType) (any, bool) {
	switch eventType {
	case events.TriggerReceivedEvent:
		return &events.TriggerReceived{}, true
	case events.FlowTriggeredEvent:
		return &events.FlowTriggered{}, true
	case events.TaskReadyEvent:
		return &events.TaskReady{}, true
	case events.TaskCompletedEvent:
		return &events.TaskCompleted{}, true
	case events.TaskFailedEvent:
		return &events.TaskFailed{}, true
	case events.SessionRespondedEvent:
		return &events.SessionResponded{}, true
	case events.AccountSecretsChangedEvent:
		return &events.AccountSecretsChanged{}, true
	default:
		return nil, false
	}
}

type delivery struct {
	eventType events.EventType
	handler   EventHandler
	event     any
}

// Subscribe starts delivering messages to the registered handlers until ctx is
// done. Only the first call subscribes; handlers registered later are still
// served, so components sharing one bus may each call it.
//
// Handlers run on a fixed set of lanes. Events sharing a key always land on the
// same lane and are handled in arrival order; events with different keys run
// concurrently. A message is acked once its lane accepts it, so a handler
// error is logged and never redelivered.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribed {
		return nil
	}

	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	eb.subscribed = true

	lanes := make([]chan delivery, eb.concurrency)

	var group errgroup.Group

	for i := range lanes {
		lane := make(chan delivery, laneBuffer)
		lanes[i] = lane

		group.Go(func() error {
			for d := range lane {
				eb.run(ctx, d)
			}

			return nil
		})
	}

	go func() {
		for msg := range messages {
			d, ok := eb.decode(ctx, msg)
			msg.Ack()

			if ok {
				lanes[eb.laneFor(msg.Metadata.Get(events.EventMetadataKey), len(lanes))] <- d
			}
		}

		for _, lane := range lanes {
			close(lane)
		}

		_ = group.Wait()
	}()

	return nil
}

// decode resolves the handler and payload of msg. Messages without a handler,
// of an unknown type or with an undecodable payload are dropped.
func (eb *WatermillEventBus) decode(ctx context.Context, msg *message.Message) (delivery, bool) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		return delivery{}, false
	}

	event, known := newEvent(eventType)
	if !known {
		eb.logger.WarnContext(ctx, "Unknown event type", "event_type", eventType)

		return delivery{}, false
	}

	decoder := json.NewDecoder(bytes.NewReader(msg.Payload))
	decoder.UseNumber()

	if err := decoder.Decode(event); err != nil {
		eb.logger.ErrorContext(ctx, "Failed to decode event", "event_type", eventType, "error", err)

		return delivery{}, false
	}

	return delivery{eventType: eventType, handler: handler, event: event}, true
}

func (eb *WatermillEventBus) run(ctx context.Context, d delivery) {
	if err := d.handler(ctx, d.event); err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", d.eventType, "error", err)
	}
}

func (eb *WatermillEventBus) laneFor(key string, lanes int) int {
	if key == "" {
		return int(eb.unkeyed.Add(1) % uint32(lanes))
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return int(h.Sum32() % uint32(lanes))
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
