// Package log provides the built-in "log" action, which writes the task's
// rendered message to the worker log.
//
// A string message is also a text/template executed against the invocation
// context. Its actions use [[ ]] delimiters because {{ }} placeholders are
// resolved before the action runs:
//
//	"[[ range .tasks.fetch.body.users ]][[ .name ]] [[ end ]]"
package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	gotemplate "text/template"
	"time"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/template"
)

const PluginID = "log"

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"message": map[string]any{
			"description": "The message to log. Strings are text/templates with [[ ]] delimiters; other values are logged as JSON.",
		},
		"level": map[string]any{
			"type":    "string",
			"default": "info",
			"enum":    []any{"debug", "info", "warn", "warning", "error"},
		},
	},
	"required": []any{"message"},
}

// ActionFactory is the factory for the log action.
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

func (*ActionFactory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Action{logger: logger.With("action_type", PluginID)}, nil
}

type Action struct {
	logger *slog.Logger
}

func (a *Action) Execute(ctx context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	input := inv.Input.(map[string]any)

	message, err := render(input["message"], inv.Context)
	if err != nil {
		return nil, err
	}

	levelName, _ := input["level"].(string)
	if levelName == "" {
		levelName = "info"
	}

	a.logger.Log(ctx, level(levelName), message, "task_id", inv.Task.TaskID)

	return map[string]any{
		"message": message,
		"level":   levelName,
	}, nil
}

var funcs = gotemplate.FuncMap{
	"json": template.Text,
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
}

func render(message any, data map[string]any) (string, error) {
	text, ok := message.(string)
	if !ok {
		encoded, err := template.Text(message)
		if err != nil {
			return "", fmt.Errorf("failed to format message: %w", err)
		}

		return encoded, nil
	}

	if !strings.Contains(text, "[[") {
		return text, nil
	}

	tmpl, err := gotemplate.New(PluginID).
		Delims("[[", "]]").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse message: %w", protocol.ErrInvalidInput, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}

	return buf.String(), nil
}

func level(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
