// Package dispatcher routes a bundled task to its handler and normalizes the
// outcome into a result or a structured task error.
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/bundler"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/otelhelper"
	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Resolver selects the handler for a plugin id, including the fallbacks for
// unknown and absent ids.
type Resolver interface {
	Resolve(pluginID *string) protocol.Handler
}

type Dispatcher struct {
	handlers Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(logger *slog.Logger, handlers Resolver, tracer trace.Tracer) *Dispatcher {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Dispatcher{
		handlers: handlers,
		logger:   logger.With("module", "dispatcher"),
		tracer:   tracer,
	}
}

// Dispatch executes task with its bundled context. Trigger tasks are projected
// without touching the handler table. Handler failures and panics come back as
// *TaskError.
func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task, bundle *bundler.Bundle) (any, error) {
	if task.IsTrigger() {
		return ProjectTrigger(bundle), nil
	}

	pluginID, _ := task.Plugin()

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "task.dispatch",
		attribute.String(otelhelper.TaskIDKey, task.TaskID),
		attribute.String(otelhelper.PluginIDKey, pluginID),
	)

	handler := d.handlers.Resolve(task.PluginID)

	out, err := invoke(ctx, handler, protocol.Invocation{
		Task:    task,
		Input:   bundle.Input,
		Context: bundle.Context,
		Session: bundle.Session,
	})
	if err != nil {
		taskErr := newTaskError(task.TaskID, err)

		d.logger.ErrorContext(ctx, "Task handler failed",
			"task_id", task.TaskID,
			"plugin_id", pluginID,
			"error", err)
		otelhelper.EndSpan(span, taskErr)

		return nil, taskErr
	}

	otelhelper.EndSpan(span, nil)

	return out, nil
}

func invoke(ctx context.Context, handler protocol.Handler, inv protocol.Invocation) (out any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = nil
			err = recoveredError(recovered)
		}
	}()

	return handler.Execute(ctx, inv)
}

// ProjectTrigger is the output of a trigger task: its rendered input, or the
// session's trigger payload when the task has no input.
func ProjectTrigger(bundle *bundler.Bundle) any {
	if bundle.Input != nil {
		return bundle.Input
	}

	outputs, _ := bundle.Context[bundler.TasksKey].(map[string]any)

	return outputs[session.TriggerKey]
}
