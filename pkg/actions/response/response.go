// Package response provides the built-in "response" action, which answers the
// flow session with the task's rendered input.
package response

import (
	"context"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/protocol"
)

// PluginID is the plugin id tasks use to address the response handler.
const PluginID = "response"

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status": map[string]any{
			"type":    "integer",
			"minimum": 100,
			"maximum": 599,
		},
		"headers": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"body": map[string]any{},
	},
	"required": []any{"body"},
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return PluginID
}

func (*Factory) Schema() map[string]any {
	return inputSchema
}

func (*Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{logger: logger.With("module", "response_action")}, nil
}

type Handler struct {
	logger *slog.Logger
}

// Execute records the input as the session response and returns it. Only the
// first response of a session is kept; later ones are still returned as output.
func (h *Handler) Execute(ctx context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	if inv.Session != nil {
		recorded := inv.Session.Respond(inv.Task.TaskID, inv.Input)

		h.logger.InfoContext(ctx, "Flow session response",
			"task_id", inv.Task.TaskID,
			"flow_session_id", inv.Session.ID(),
			"recorded", recorded)
	}

	return inv.Input, nil
}
