// Package worker executes ready tasks and reports their outcome on the event bus.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/taskpipe/pkg/dispatcher"
	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/events"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/session"
)

// TaskProcessor runs one ready task and records its output in the flow session.
type TaskProcessor interface {
	Process(ctx context.Context, task *models.Task) (any, error)
}

// SecretInvalidator drops cached secrets of an account.
type SecretInvalidator interface {
	Invalidate(accountID string)
}

// DefaultSessionIdleTimeout bounds how long a session fed by task.ready events
// waits for its next task.
const DefaultSessionIdleTimeout = 30 * time.Minute

type Option func(*Manager)

// WithSessionIdleTimeout overrides DefaultSessionIdleTimeout. Zero keeps idle
// sessions until their flow ends.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(w *Manager) {
		w.sessionIdle = d
	}
}

// Manager executes tasks of the flow sessions routed to this process.
// Events are keyed by flow session, so every event of a session lands on the
// same worker and the session context can stay in memory.
type Manager struct {
	id          string
	logger      *slog.Logger
	eventBus    eventbus.EventBus
	flows       flows.Repository
	sessions    *session.Manager
	processor   TaskProcessor
	secrets     SecretInvalidator
	sessionIdle time.Duration
}

func NewManager(
	id string,
	flowRepository flows.Repository,
	eventBus eventbus.EventBus,
	sessions *session.Manager,
	processor TaskProcessor,
	secrets SecretInvalidator,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	w := &Manager{
		id:          id,
		logger:      logger.With("module", "worker", "worker_id", id),
		eventBus:    eventBus,
		flows:       flowRepository,
		sessions:    sessions,
		processor:   processor,
		secrets:     secrets,
		sessionIdle: DefaultSessionIdleTimeout,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Register binds the worker's handlers on the event bus.
func (w *Manager) Register() error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.FlowTriggeredEvent:         w.handleFlowTriggered,
		events.TaskReadyEvent:             w.handleTaskReady,
		events.AccountSecretsChangedEvent: w.handleAccountSecretsChanged,
	}

	for eventType, handler := range handlers {
		if err := w.eventBus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return nil
}

// Start registers the handlers, subscribes and blocks until ctx is done.
func (w *Manager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.Register(); err != nil {
		return err
	}

	err := w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	go w.sessions.Run(ctx, w.sessionIdle)

	<-ctx.Done()
	w.logger.Info("Shutting down worker...")

	return nil
}

// handleFlowTriggered opens the flow session seeded with the trigger payload
// and runs the flow's tasks in declaration order, stopping at the first
// failure. The session is discarded afterwards.
func (w *Manager) handleFlowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.FlowTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for FlowTriggered")

		return nil
	}

	logger := w.logger.With("flow_id", triggered.FlowID, "flow_session_id", triggered.FlowSessionID)

	flow, err := w.flows.Get(ctx, triggered.FlowID)
	if err != nil {
		if flows.IsFlowNotFound(err) {
			logger.WarnContext(ctx, "Triggered flow is unknown to this worker")

			return nil
		}

		return err
	}

	_, err = w.sessions.Start(triggered.FlowSessionID, triggered.Trigger.Payload)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start flow session", "error", err)

		return nil
	}
	defer w.sessions.End(triggered.FlowSessionID)

	logger.InfoContext(ctx, "Flow session started", "tasks", len(flow.Tasks))

	for _, task := range flow.Tasks {
		if task.IsTrigger() && task.TaskID == session.TriggerKey {
			continue
		}

		ready := *task
		ready.FlowSessionID = triggered.FlowSessionID
		ready.FlowID = flow.ID

		if ready.AccountID == "" {
			ready.AccountID = flow.AccountID
		}

		succeeded, err := w.run(ctx, &ready)
		if err != nil {
			return err
		}

		if !succeeded {
			logger.WarnContext(ctx, "Flow session stopped", "task_id", ready.TaskID)

			return nil
		}
	}

	logger.InfoContext(ctx, "Flow session finished")

	return nil
}

// handleTaskReady runs a single task scheduled outside this process. The
// session ends when the task fails or is the last one of its flow; sessions
// that never reach either are left to the idle sweep.
func (w *Manager) handleTaskReady(ctx context.Context, event any) error {
	ready, ok := event.(*events.TaskReady)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskReady")

		return nil
	}

	task := ready.Task
	last := false

	if task.FlowID != "" {
		flow, err := w.flows.Get(ctx, task.FlowID)

		switch {
		case err == nil:
			if task.AccountID == "" {
				task.AccountID = flow.AccountID
			}

			last = len(flow.Tasks) > 0 && flow.Tasks[len(flow.Tasks)-1].TaskID == task.TaskID
		case flows.IsFlowNotFound(err):
			w.logger.WarnContext(ctx, "Ready task belongs to an unknown flow", "flow_id", task.FlowID, "task_id", task.TaskID)
		default:
			return err
		}
	}

	w.sessions.GetOrStart(task.FlowSessionID)

	succeeded, err := w.run(ctx, &task)

	if !succeeded || last {
		w.sessions.End(task.FlowSessionID)
	}

	return err
}

// run processes task and publishes its outcome. It reports whether the task
// succeeded; the error is only set when publishing failed.
func (w *Manager) run(ctx context.Context, task *models.Task) (bool, error) {
	logger := w.logger.With("task_id", task.TaskID, "flow_session_id", task.FlowSessionID)

	started := time.Now()

	out, err := w.processor.Process(ctx, task)
	if err != nil {
		logger.WarnContext(ctx, "Task failed", "error", err)

		result := map[string]any{"error": err.Error()}

		var taskErr *dispatcher.TaskError
		if errors.As(err, &taskErr) {
			result = taskErr.Value()
		}

		return false, w.eventBus.Publish(ctx, task.FlowSessionID, events.TaskFailed{
			BaseEvent:     events.NewBaseEvent(events.TaskFailedEvent),
			TaskID:        task.TaskID,
			FlowID:        task.FlowID,
			FlowSessionID: task.FlowSessionID,
			Error:         err.Error(),
			Result:        result,
		})
	}

	err = w.eventBus.Publish(ctx, task.FlowSessionID, events.TaskCompleted{
		BaseEvent:     events.NewBaseEvent(events.TaskCompletedEvent),
		TaskID:        task.TaskID,
		FlowID:        task.FlowID,
		FlowSessionID: task.FlowSessionID,
		Output:        out,
		Duration:      time.Since(started),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish TaskCompleted event", "error", err)

		return true, err
	}

	flowSession, err := w.sessions.Get(task.FlowSessionID)
	if err != nil {
		return true, nil
	}

	if response, answered := flowSession.Response(); answered && response.TaskID == task.TaskID {
		err = w.eventBus.Publish(ctx, task.FlowSessionID, events.SessionResponded{
			BaseEvent:     events.NewBaseEvent(events.SessionRespondedEvent),
			FlowSessionID: task.FlowSessionID,
			TaskID:        task.TaskID,
			Payload:       response.Payload,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish SessionResponded event", "error", err)

			return true, err
		}
	}

	return true, nil
}

func (w *Manager) handleAccountSecretsChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.AccountSecretsChanged)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for AccountSecretsChanged")

		return nil
	}

	w.secrets.Invalidate(changed.AccountID)

	w.logger.DebugContext(ctx, "Dropped cached secrets", "account_id", changed.AccountID)

	return nil
}
