package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/taskpipe/pkg/dispatcher"
	"github.com/dukex/taskpipe/pkg/events"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/mocks"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/session"
	"github.com/dukex/taskpipe/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context, task *models.Task) (any, error)

func (f processorFunc) Process(ctx context.Context, task *models.Task) (any, error) {
	return f(ctx, task)
}

type invalidatorFunc func(accountID string)

func (f invalidatorFunc) Invalidate(accountID string) {
	f(accountID)
}

func signupFlow() *models.Flow {
	return testutil.CreateTestFlow(
		testutil.WithID("signup"),
		testutil.WithName("Signup"),
		testutil.WithAccount("acct-1"),
		testutil.WithTrigger(models.TriggerKindWebhook, nil),
		testutil.WithTasks(
			testutil.TriggerTask(),
			testutil.CreateTestTask("greet",
				testutil.WithPlugin("format_text"),
				testutil.WithInput(map[string]any{"text": "{{tasks.trigger.name}}"}),
			),
			testutil.CreateTestTask("reply",
				testutil.WithKind(models.ActionKindResponse),
				testutil.WithPlugin("response"),
				testutil.WithInput(map[string]any{"body": "{{tasks.greet}}"}),
			),
		),
	)
}

type fixture struct {
	manager  *Manager
	flows    *mocks.MockFlowRepository
	bus      *mocks.MockEventBus
	sessions *session.Manager
}

func newFixture(processor TaskProcessor, invalidator SecretInvalidator) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		flows:    &mocks.MockFlowRepository{},
		bus:      &mocks.MockEventBus{},
		sessions: session.NewManager(logger),
	}

	f.manager = NewManager("test-worker", f.flows, f.bus, f.sessions, processor, invalidator, logger)

	return f
}

func TestHandleFlowTriggered_RunsTasksInOrder(t *testing.T) {
	f := newFixture(nil, nil)

	var (
		ran      []models.Task
		triggers []any
	)

	f.manager.processor = processorFunc(func(_ context.Context, task *models.Task) (any, error) {
		flowSession, err := f.sessions.Get(task.FlowSessionID)
		require.NoError(t, err)

		trigger, _ := flowSession.Get(session.TriggerKey)
		triggers = append(triggers, trigger)
		ran = append(ran, *task)

		return map[string]any{"ok": true}, nil
	})

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.TaskCompleted")).Return(nil).Twice()

	err := f.manager.handleFlowTriggered(context.Background(), &events.FlowTriggered{
		FlowID:        "signup",
		FlowSessionID: "session-1",
		Trigger:       models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"name": "ana"}},
	})
	require.NoError(t, err)

	require.Len(t, ran, 2)
	assert.Equal(t, "greet", ran[0].TaskID)
	assert.Equal(t, "reply", ran[1].TaskID)

	for i, task := range ran {
		assert.Equal(t, "session-1", task.FlowSessionID)
		assert.Equal(t, "signup", task.FlowID)
		assert.Equal(t, "acct-1", task.AccountID)
		assert.Equal(t, map[string]any{"name": "ana"}, triggers[i])
	}

	f.bus.AssertExpectations(t)
	assert.Zero(t, f.sessions.Len())
}

func TestHandleFlowTriggered_StopsAtFirstFailure(t *testing.T) {
	calls := 0

	f := newFixture(processorFunc(func(_ context.Context, task *models.Task) (any, error) {
		calls++

		return nil, &dispatcher.TaskError{TaskID: task.TaskID, Message: "down", Err: errors.New("down")}
	}), nil)

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(event events.TaskFailed) bool {
		return event.TaskID == "greet"
	})).Return(nil).Once()

	err := f.manager.handleFlowTriggered(context.Background(), &events.FlowTriggered{FlowID: "signup", FlowSessionID: "session-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	f.bus.AssertExpectations(t)
	assert.Zero(t, f.sessions.Len())
}

func TestHandleFlowTriggered_UnknownFlowIsDropped(t *testing.T) {
	f := newFixture(nil, nil)

	f.flows.On("Get", mock.Anything, "gone").Return(nil, flows.ErrFlowNotFound)

	err := f.manager.handleFlowTriggered(context.Background(), &events.FlowTriggered{FlowID: "gone", FlowSessionID: "s"})
	require.NoError(t, err)

	f.bus.AssertNotCalled(t, "Publish")
	assert.Zero(t, f.sessions.Len())
}

func TestHandleTaskReady_PublishesCompleted(t *testing.T) {
	f := newFixture(processorFunc(func(context.Context, *models.Task) (any, error) {
		return map[string]any{"result": "ANA"}, nil
	}), nil)

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(event events.TaskCompleted) bool {
		return event.TaskID == "greet" && event.FlowSessionID == "session-1"
	})).Return(nil).Once()

	err := f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowID: "signup", FlowSessionID: "session-1"},
	})
	require.NoError(t, err)

	f.bus.AssertExpectations(t)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestHandleTaskReady_PublishesFailure(t *testing.T) {
	taskErr := &dispatcher.TaskError{TaskID: "greet", Message: "boom", Err: errors.New("boom")}

	f := newFixture(processorFunc(func(context.Context, *models.Task) (any, error) {
		return nil, taskErr
	}), nil)

	f.bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(event events.TaskFailed) bool {
		return event.TaskID == "greet" && event.Result["error"] == "boom"
	})).Return(nil).Once()

	err := f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowSessionID: "session-1"},
	})
	require.NoError(t, err)

	f.bus.AssertExpectations(t)
	assert.Zero(t, f.sessions.Len())
}

func TestHandleTaskReady_FailureEndsSessionOfEarlierTask(t *testing.T) {
	f := newFixture(processorFunc(func(context.Context, *models.Task) (any, error) {
		return nil, errors.New("upstream unavailable")
	}), nil)

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.TaskFailed")).Return(nil).Once()

	err := f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowID: "signup", FlowSessionID: "session-1"},
	})
	require.NoError(t, err)

	f.bus.AssertExpectations(t)
	assert.Zero(t, f.sessions.Len())
}

func TestHandleTaskReady_InheritsFlowAccount(t *testing.T) {
	var seen []string

	f := newFixture(processorFunc(func(_ context.Context, task *models.Task) (any, error) {
		seen = append(seen, task.AccountID)

		return "ok", nil
	}), nil)

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("events.TaskCompleted")).Return(nil)

	require.NoError(t, f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowID: "signup", FlowSessionID: "session-1"},
	}))
	require.NoError(t, f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowID: "signup", FlowSessionID: "session-2", AccountID: "acct-override"},
	}))

	assert.Equal(t, []string{"acct-1", "acct-override"}, seen)
}

func TestHandleTaskReady_UnknownFlowStillRuns(t *testing.T) {
	f := newFixture(processorFunc(func(context.Context, *models.Task) (any, error) {
		return "ok", nil
	}), nil)

	f.flows.On("Get", mock.Anything, "gone").Return(nil, flows.ErrFlowNotFound)
	f.bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.TaskCompleted")).Return(nil).Once()

	err := f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "greet", FlowID: "gone", FlowSessionID: "session-1"},
	})
	require.NoError(t, err)

	f.bus.AssertExpectations(t)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestNewManager_SessionIdleTimeout(t *testing.T) {
	f := newFixture(nil, nil)
	assert.Equal(t, DefaultSessionIdleTimeout, f.manager.sessionIdle)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager("w", f.flows, f.bus, f.sessions, nil, nil, logger, WithSessionIdleTimeout(time.Minute))
	assert.Equal(t, time.Minute, manager.sessionIdle)
}

func TestHandleTaskReady_ResponseEndsLastTask(t *testing.T) {
	f := newFixture(nil, nil)

	f.manager.processor = processorFunc(func(_ context.Context, task *models.Task) (any, error) {
		flowSession, err := f.sessions.Get(task.FlowSessionID)
		require.NoError(t, err)

		flowSession.Respond(task.TaskID, map[string]any{"body": "hi"})

		return map[string]any{"body": "hi"}, nil
	})

	f.flows.On("Get", mock.Anything, "signup").Return(signupFlow(), nil)
	f.bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.TaskCompleted")).Return(nil).Once()
	f.bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(event events.SessionResponded) bool {
		return event.TaskID == "reply" && event.Payload.(map[string]any)["body"] == "hi"
	})).Return(nil).Once()

	err := f.manager.handleTaskReady(context.Background(), &events.TaskReady{
		Task: models.Task{TaskID: "reply", FlowID: "signup", FlowSessionID: "session-1"},
	})
	require.NoError(t, err)

	f.bus.AssertExpectations(t)
	assert.Zero(t, f.sessions.Len())
}

func TestHandleAccountSecretsChanged(t *testing.T) {
	var invalidated []string

	f := newFixture(nil, invalidatorFunc(func(accountID string) {
		invalidated = append(invalidated, accountID)
	}))

	err := f.manager.handleAccountSecretsChanged(context.Background(), &events.AccountSecretsChanged{AccountID: "acct-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"acct-1"}, invalidated)
}
