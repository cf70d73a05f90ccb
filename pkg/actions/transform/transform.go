// Package transform provides the built-in "transform" action, which reshapes
// data already available to the task.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/template"
)

const PluginID = "transform"

// ErrPathNotFound indicates a path that does not resolve against the input value.
var ErrPathNotFound = errors.New("path not found")

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"value": map[string]any{
			"description": "Data to transform. Usually a placeholder such as {{tasks.fetch.body}}.",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "Dotted path selecting part of value, e.g. data.items[0].name.",
			"examples":    []any{"body.users[0]", "data.items[2].details"},
		},
		"fields": map[string]any{
			"type":                 "object",
			"description":          "Builds an object whose members are paths resolved against the selected value.",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
	"required": []any{"value"},
}

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return PluginID
}

func (*ActionFactory) Schema() map[string]any {
	return inputSchema
}

func (*ActionFactory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return protocol.HandlerFunc(execute), nil
}

func execute(_ context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	input := inv.Input.(map[string]any)

	value, err := template.Normalize(input["value"])
	if err != nil {
		return nil, fmt.Errorf("failed to read value: %w", err)
	}

	if path, _ := input["path"].(string); path != "" {
		selected, ok := template.ValueFromPath(value, path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}

		value = selected
	}

	fields, ok := input["fields"].(map[string]any)
	if !ok {
		return value, nil
	}

	result := make(map[string]any, len(fields))

	for name, rawPath := range fields {
		path := rawPath.(string)

		selected, ok := template.ValueFromPath(value, path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}

		result[name] = selected
	}

	return result, nil
}
