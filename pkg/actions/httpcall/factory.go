package httpcall

import (
	"log/slog"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/go-resty/resty/v2"
)

// PluginID is the plugin id tasks use to address the HTTP handler.
const PluginID = "http"

// Factory creates HTTP call handlers.
type Factory struct{}

// NewFactory creates a new instance of Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// ID returns the unique identifier for the handler factory.
func (*Factory) ID() string {
	return PluginID
}

// Create creates a Handler sharing the process-wide HTTP client.
func (*Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	client := deps.HTTPClient
	if client == nil {
		client = resty.New()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return NewHandler(client, logger), nil
}

// Schema returns the JSON schema for the handler input.
func (*Factory) Schema() map[string]any {
	return inputSchema
}

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"method": map[string]any{
			"type":        "string",
			"description": "HTTP method, GET when omitted",
			"enum":        []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "get", "post", "put", "patch", "delete", "head", "options"},
		},
		"url": map[string]any{
			"type":        "string",
			"description": "Absolute request URL",
			"minLength":   1,
		},
		"headers": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"query": map[string]any{
			"type": "object",
		},
		"body": map[string]any{
			"description": "Request body; strings are sent verbatim, other values as JSON",
		},
	},
	"required": []any{"url"},
}
