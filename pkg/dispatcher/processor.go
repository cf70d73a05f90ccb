package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/taskpipe/pkg/bundler"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Bundler builds the execution context of a task.
type Bundler interface {
	Bundle(ctx context.Context, task *models.Task) (*bundler.Bundle, error)
}

// Processor runs one ready task end to end: bundle, dispatch, record.
type Processor struct {
	bundler    Bundler
	dispatcher *Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewProcessor(logger *slog.Logger, bundler Bundler, dispatcher *Dispatcher, tracer trace.Tracer) *Processor {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Processor{
		bundler:    bundler,
		dispatcher: dispatcher,
		logger:     logger.With("module", "processor"),
		tracer:     tracer,
	}
}

// Process executes task and stores its output in the flow session under the
// task id. Every failure is returned as *TaskError.
func (p *Processor) Process(ctx context.Context, task *models.Task) (any, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "task.process",
		attribute.String(otelhelper.TaskIDKey, task.TaskID),
		attribute.String(otelhelper.TaskKindKey, string(task.Kind)),
		attribute.String(otelhelper.FlowSessionIDKey, task.FlowSessionID),
		attribute.String(otelhelper.FlowIDKey, task.FlowID),
		attribute.String(otelhelper.AccountIDKey, task.AccountID),
	)

	logger := p.logger.With("task_id", task.TaskID, "flow_session_id", task.FlowSessionID)
	started := time.Now()

	logger.InfoContext(ctx, "Processing task", "kind", task.Kind)

	bundle, err := p.bundler.Bundle(ctx, task)
	if err != nil {
		cause := err

		var bundleErr *bundler.BundleError
		if errors.As(err, &bundleErr) {
			cause = bundleErr.Err
		}

		taskErr := &TaskError{
			TaskID:  task.TaskID,
			Message: fmt.Sprintf("failed to bundle task context: %v", cause),
			Err:     err,
		}

		logger.ErrorContext(ctx, "Failed to bundle task context", "error", err)
		otelhelper.EndSpan(span, taskErr)

		return nil, taskErr
	}

	out, err := p.dispatcher.Dispatch(ctx, task, bundle)
	if err != nil {
		otelhelper.EndSpan(span, err)

		return nil, err
	}

	err = bundle.Session.Set(task.TaskID, out)
	if err != nil {
		taskErr := newTaskError(task.TaskID, err)

		logger.ErrorContext(ctx, "Failed to record task output", "error", err)
		otelhelper.EndSpan(span, taskErr)

		return nil, taskErr
	}

	logger.InfoContext(ctx, "Task processed", "duration", time.Since(started))
	otelhelper.EndSpan(span, nil)

	return out, nil
}
