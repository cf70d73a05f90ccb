package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables(t *testing.T) {
	tmpl := map[string]any{
		"url":     "https://{{ secrets.host }}/users/{{tasks.lookup.id}}",
		"body":    []any{"{{tasks.trigger.payload}}", 1.0, nil},
		"headers": map[string]any{"Authorization": "Bearer {{secrets.token}}"},
		"static":  "no placeholders",
	}

	variables, err := ExtractVariables(tmpl)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"tasks.trigger.payload",
		"secrets.token",
		"secrets.host",
		"tasks.lookup.id",
	}, variables)
}

func TestVariables_IsRestartable(t *testing.T) {
	seq := Variables([]any{"{{a}}", "{{b}} and {{c}}"})

	var first, second []string

	for variable, err := range seq {
		require.NoError(t, err)

		first = append(first, variable)
	}

	for variable, err := range seq {
		require.NoError(t, err)

		second = append(second, variable)
	}

	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, first, second)
}

func TestVariables_StopsEarly(t *testing.T) {
	var seen []string

	for variable := range Variables([]any{"{{a}}", "{{b}}", "{{c"}) {
		seen = append(seen, variable)
		if len(seen) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestExtractVariables_Unclosed(t *testing.T) {
	_, err := ExtractVariables(map[string]any{"x": "{{ok}} {{broken"})
	require.Error(t, err)
	assert.True(t, IsUnclosedVariable(err))
}

func TestTemplater(t *testing.T) {
	templater := NewTemplater()
	templater.Add("greeting", map[string]any{"greeting": "Hello {{name}}"})

	result, err := templater.Render("greeting", map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "Hello World"}, result)

	variables, err := templater.Variables("greeting")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, variables)

	_, err = templater.Render("unknown", nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)

	var templateErr *TemplateError
	require.ErrorAs(t, err, &templateErr)
	assert.Equal(t, "unknown", templateErr.Variable)
}

func TestNormalize(t *testing.T) {
	plain := map[string]any{"a": []any{json.Number("1"), "b"}}

	normalized, err := Normalize(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, normalized)

	normalized, err = Normalize(map[string]any{"big": uint64(12345678901234567890), "f": 1.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"big": json.Number("12345678901234567890"), "f": json.Number("1.5")}, normalized)

	normalized, err = Normalize(map[string]any{
		"status":  200,
		"headers": map[string][]string{"X-Id": {"1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"status":  json.Number("200"),
		"headers": map[string]any{"X-Id": []any{"1"}},
	}, normalized)

	_, err = Normalize(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}
