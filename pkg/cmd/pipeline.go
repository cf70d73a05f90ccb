package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/taskpipe/pkg/bundler"
	"github.com/dukex/taskpipe/pkg/dispatcher"
	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/session"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline is the task-execution core of a worker process.
type Pipeline struct {
	Sessions  *session.Manager
	Secrets   *secrets.Cache
	Processor *dispatcher.Processor
}

// PipelineConfig holds what NewPipeline needs beyond the secret store.
type PipelineConfig struct {
	PluginsPath string
	HTTPTimeout time.Duration
	Tracer      trace.Tracer
}

// NewPipeline wires sessions, the secret cache, the handler registry and the
// processor around store.
func NewPipeline(_ context.Context, logger *slog.Logger, store secrets.Store, config PipelineConfig) (*Pipeline, error) {
	deps := protocol.Dependencies{
		Logger:     logger,
		HTTPClient: NewHTTPClient(config.HTTPTimeout),
	}

	reg, err := NewRegistry(logger, config.PluginsPath, deps)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(logger)
	cache := secrets.NewCache(logger, store)

	processor := dispatcher.NewProcessor(
		logger,
		bundler.New(logger, sessions, cache),
		dispatcher.New(logger, reg, config.Tracer),
		config.Tracer,
	)

	return &Pipeline{
		Sessions:  sessions,
		Secrets:   cache,
		Processor: processor,
	}, nil
}
