package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/taskpipe/pkg/channels/gochannel"
	"github.com/dukex/taskpipe/pkg/channels/kafka"
	"github.com/dukex/taskpipe/pkg/eventbus"
)

const serviceName = "taskpipe"

// NewEventBus creates the event bus for provider, "gochannel" or "kafka".
// Kafka needs at least one broker.
func NewEventBus(provider string, logger *slog.Logger, brokers []string, opts ...eventbus.Option) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub, opts...), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
