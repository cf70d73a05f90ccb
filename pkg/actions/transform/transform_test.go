package transform_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dukex/taskpipe/pkg/actions/transform"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, input map[string]any) (any, error) {
	t.Helper()

	handler, err := transform.NewActionFactory().Create(protocol.Dependencies{})
	require.NoError(t, err)

	return handler.Execute(context.Background(), protocol.Invocation{
		Task:  &models.Task{TaskID: "reshape"},
		Input: input,
	})
}

func TestTransform(t *testing.T) {
	users := map[string]any{
		"users": []any{
			map[string]any{"name": "Ana", "email": "ana@example.com"},
			map[string]any{"name": "Bo", "email": "bo@example.com"},
		},
	}

	tests := []struct {
		name     string
		input    map[string]any
		expected any
	}{
		{
			name:     "passes value through",
			input:    map[string]any{"value": users},
			expected: users,
		},
		{
			name:     "selects a path",
			input:    map[string]any{"value": users, "path": "users[1].email"},
			expected: "bo@example.com",
		},
		{
			name:     "selects inside embedded json",
			input:    map[string]any{"value": map[string]any{"body": `{"data":{"count":3}}`}, "path": "body.data.count"},
			expected: json.Number("3"),
		},
		{
			name: "builds fields",
			input: map[string]any{
				"value":  users,
				"path":   "users[0]",
				"fields": map[string]any{"contact": "email", "who": "name"},
			},
			expected: map[string]any{
				"contact": "ana@example.com",
				"who":     "Ana",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestTransform_MissingPath(t *testing.T) {
	_, err := run(t, map[string]any{"value": map[string]any{"a": 1}, "path": "b"})
	require.ErrorIs(t, err, transform.ErrPathNotFound)
}

func TestTransform_MissingField(t *testing.T) {
	_, err := run(t, map[string]any{"value": map[string]any{"a": 1.0}, "fields": map[string]any{"x": "b"}})
	require.ErrorIs(t, err, transform.ErrPathNotFound)
}

func TestTransform_RequiresValue(t *testing.T) {
	_, err := run(t, map[string]any{"path": "a"})
	require.ErrorIs(t, err, protocol.ErrInvalidInput)
}
