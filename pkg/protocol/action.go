// Package protocol defines the contract between the task dispatcher and the
// action handlers it routes to, built in or loaded from plugins.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/session"
	"github.com/go-resty/resty/v2"
)

// Invocation carries everything a handler may read for one task execution.
type Invocation struct {
	Task *models.Task
	// Input is the task's input template, already rendered.
	Input any
	// Context is the merged {"tasks", "secrets"} context the input was rendered against.
	Context map[string]any
	Session *session.Context
}

// Handler executes one kind of action.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv Invocation) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, inv Invocation) (any, error) {
	return f(ctx, inv)
}

// HandlerFactory builds a handler for a plugin id. Plugins export a value
// implementing it under the symbol "Handler".
type HandlerFactory interface {
	// ID returns the plugin id tasks use to address the handler.
	ID() string
	Create(deps Dependencies) (Handler, error)
}

// SchemaProvider is implemented by factories that publish the JSON schema of their input.
type SchemaProvider interface {
	Schema() map[string]any
}

// Dependencies contains the shared process resources handlers may use.
type Dependencies struct {
	Logger *slog.Logger
	// HTTPClient is the shared outbound client; handlers must not mutate its settings.
	HTTPClient *resty.Client
}
