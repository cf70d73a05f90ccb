package worker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/taskpipe/pkg/bundler"
	"github.com/dukex/taskpipe/pkg/cmd"
	"github.com/dukex/taskpipe/pkg/dispatcher"
	"github.com/dukex/taskpipe/pkg/events"
	"github.com/dukex/taskpipe/pkg/mocks"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/session"
	"github.com/dukex/taskpipe/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func plugin(id string) *string {
	return &id
}

func TestPipeline_TriggerToResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus, err := cmd.NewEventBus("gochannel", logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "acct-1", "greeting", "Hello"))

	cache := secrets.NewCache(logger, store)
	sessions := session.NewManager(logger)

	reg, err := cmd.NewRegistry(logger, "", protocol.Dependencies{Logger: logger})
	require.NoError(t, err)

	processor := dispatcher.NewProcessor(
		logger,
		bundler.New(logger, sessions, cache),
		dispatcher.New(logger, reg, nil),
		nil,
	)

	flow := &models.Flow{
		ID:        "greeter",
		Name:      "Greeter",
		AccountID: "acct-1",
		Trigger:   models.TriggerDefinition{Kind: models.TriggerKindManual},
		Tasks: []*models.Task{
			{
				TaskID:   "greet",
				Kind:     models.ActionKindAction,
				PluginID: plugin("format_text"),
				Input:    map[string]any{"text": "{{tasks.trigger.name}}", "operation": "title"},
			},
			{
				TaskID:   "reply",
				Kind:     models.ActionKindResponse,
				PluginID: plugin("response"),
				Input:    map[string]any{"body": "{{secrets.greeting}}, {{tasks.greet.result}}"},
			},
		},
	}

	flowRepository := &mocks.MockFlowRepository{}
	flowRepository.On("Get", mock.Anything, "greeter").Return(flow, nil)

	responded := make(chan *events.SessionResponded, 1)
	require.NoError(t, bus.Handle(events.SessionRespondedEvent, func(_ context.Context, event any) error {
		responded <- event.(*events.SessionResponded)

		return nil
	}))

	manager := worker.NewManager("worker-1", flowRepository, bus, sessions, processor, cache, logger)

	require.NoError(t, manager.Register())
	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "session-1", events.FlowTriggered{
		BaseEvent:     events.NewBaseEvent(events.FlowTriggeredEvent),
		FlowID:        "greeter",
		FlowSessionID: "session-1",
		Trigger:       models.TriggerEvent{EventName: "manual", Payload: map[string]any{"name": "ana maria"}},
	})
	require.NoError(t, err)

	select {
	case event := <-responded:
		assert.Equal(t, "session-1", event.FlowSessionID)
		assert.Equal(t, "reply", event.TaskID)
		assert.Equal(t, map[string]any{"body": "Hello, Ana Maria"}, event.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("flow session was not answered")
	}

	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, 10*time.Millisecond)
}
