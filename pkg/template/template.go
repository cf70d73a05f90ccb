// Package template resolves {{path}} placeholders inside JSON templates.
//
// A template is any JSON value. String leaves may contain placeholders whose
// bodies are dotted paths into a context value, e.g. "{{tasks.fetch.body.items[0]}}".
// A string that is exactly one placeholder is replaced by the referenced value
// itself, keeping its type; placeholders embedded in longer text are replaced
// by the value's textual form, and a string value is spliced in verbatim.
package template

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	openDelimiter  = "{{"
	closeDelimiter = "}}"
)

// Render produces a new value in which every placeholder of tmpl has been
// resolved against context. The template itself is never modified.
func Render(tmpl any, context any) (any, error) {
	switch value := tmpl.(type) {
	case map[string]any:
		result := make(map[string]any, len(value))

		for key, member := range value {
			rendered, err := Render(member, context)
			if err != nil {
				return nil, err
			}

			result[key] = rendered
		}

		return result, nil
	case []any:
		result := make([]any, 0, len(value))

		for _, member := range value {
			rendered, err := Render(member, context)
			if err != nil {
				return nil, err
			}

			result = append(result, rendered)
		}

		return result, nil
	case string:
		return renderString(value, context)
	default:
		return tmpl, nil
	}
}

func renderString(s string, context any) (any, error) {
	if variable, ok := wholePlaceholder(s); ok {
		value, found := ValueFromPath(context, variable)
		if !found {
			return nil, newTemplateError(ErrVariableNotFound, variable)
		}

		return value, nil
	}

	if !strings.Contains(s, openDelimiter) {
		return s, nil
	}

	spans, err := placeholderSpans(s)
	if err != nil {
		return nil, err
	}

	var out strings.Builder

	last := 0

	for _, span := range spans {
		value, found := resolve(context, span.variable, false)
		if !found {
			return nil, newTemplateError(ErrVariableNotFound, span.variable)
		}

		text, err := Text(value)
		if err != nil {
			return nil, err
		}

		out.WriteString(s[last:span.start])
		out.WriteString(text)

		last = span.end
	}

	out.WriteString(s[last:])

	return out.String(), nil
}

type placeholderSpan struct {
	start    int
	end      int
	variable string
}

// placeholderSpans locates every placeholder of s, failing on the first
// opening delimiter that is never closed.
func placeholderSpans(s string) ([]placeholderSpan, error) {
	var spans []placeholderSpan

	offset := 0

	for {
		open := strings.Index(s[offset:], openDelimiter)
		if open < 0 {
			return spans, nil
		}

		open += offset

		closing := strings.Index(s[open:], closeDelimiter)
		if closing < 0 {
			return nil, newTemplateError(ErrUnclosedVariable, s)
		}

		closing += open
		spans = append(spans, placeholderSpan{
			start:    open,
			end:      closing + len(closeDelimiter),
			variable: strings.TrimSpace(s[open+len(openDelimiter) : closing]),
		})

		offset = closing + len(closeDelimiter)
	}
}

// wholePlaceholder reports whether s, ignoring surrounding whitespace, is
// exactly one placeholder and returns its trimmed body.
func wholePlaceholder(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < len(openDelimiter)+len(closeDelimiter) ||
		!strings.HasPrefix(trimmed, openDelimiter) ||
		!strings.HasSuffix(trimmed, closeDelimiter) {
		return "", false
	}

	body := trimmed[len(openDelimiter) : len(trimmed)-len(closeDelimiter)]
	if strings.Contains(body, openDelimiter) || strings.Contains(body, closeDelimiter) {
		return "", false
	}

	return strings.TrimSpace(body), true
}

// Text returns the textual form used when a value is spliced into a string:
// strings contribute their raw characters, everything else its JSON encoding.
func Text(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}

	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(value); err != nil {
		return "", err
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}
