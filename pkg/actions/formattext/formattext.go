// Package formattext provides the built-in "format_text" action.
package formattext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/template"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PluginID is the plugin id tasks use to address the text formatter.
const PluginID = "format_text"

// Supported operations.
const (
	OpUppercase  = "uppercase"
	OpLowercase  = "lowercase"
	OpCapitalize = "capitalize"
	OpTitle      = "title"
	OpTrim       = "trim"
	OpSnakeCase  = "snake_case"
	OpKebabCase  = "kebab_case"
	OpTruncate   = "truncate"
	OpReplace    = "replace"
)

// ErrMissingArgument indicates an operation invoked without its required argument.
var ErrMissingArgument = errors.New("missing operation argument")

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string"},
		"operation": map[string]any{
			"type": "string",
			"enum": []any{
				OpUppercase, OpLowercase, OpCapitalize, OpTitle, OpTrim,
				OpSnakeCase, OpKebabCase, OpTruncate, OpReplace,
			},
		},
		"length":       map[string]any{"type": "integer", "minimum": 0},
		"find":         map[string]any{"type": "string"},
		"replace_with": map[string]any{"type": "string"},
	},
	"required": []any{"text", "operation"},
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

func (*Factory) Create(protocol.Dependencies) (protocol.Handler, error) {
	return protocol.HandlerFunc(execute), nil
}

func execute(_ context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	input, _ := inv.Input.(map[string]any)
	text, _ := input["text"].(string)
	operation, _ := input["operation"].(string)

	result, err := Format(text, operation, input)
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": result}, nil
}

// Format applies one operation to text. Arguments are read from args.
func Format(text, operation string, args map[string]any) (string, error) {
	switch operation {
	case OpUppercase:
		return cases.Upper(language.Und).String(text), nil
	case OpLowercase:
		return cases.Lower(language.Und).String(text), nil
	case OpCapitalize:
		return capitalize(text), nil
	case OpTitle:
		return cases.Title(language.Und).String(text), nil
	case OpTrim:
		return strings.TrimSpace(text), nil
	case OpSnakeCase:
		return strings.Join(words(text), "_"), nil
	case OpKebabCase:
		return strings.Join(words(text), "-"), nil
	case OpTruncate:
		length, err := template.Int(args["length"])
		if err != nil || length < 0 {
			return "", fmt.Errorf("%w: truncate requires an integer length", ErrMissingArgument)
		}

		return truncate(text, int(length)), nil
	case OpReplace:
		find, ok := args["find"].(string)
		if !ok || find == "" {
			return "", fmt.Errorf("%w: replace requires find", ErrMissingArgument)
		}

		replaceWith, _ := args["replace_with"].(string)

		return strings.ReplaceAll(text, find, replaceWith), nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", protocol.ErrInvalidInput, operation)
	}
}

func capitalize(text string) string {
	first, size := utf8.DecodeRuneInString(text)
	if first == utf8.RuneError {
		return text
	}

	return string(unicode.ToUpper(first)) + text[size:]
}

func truncate(text string, length int) string {
	if utf8.RuneCountInString(text) <= length {
		return text
	}

	return string([]rune(text)[:length])
}

// words splits text on separators and lower-to-upper case boundaries and lowercases each word.
func words(text string) []string {
	var (
		result  []string
		current []rune
		prev    rune
	)

	flush := func() {
		if len(current) > 0 {
			result = append(result, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	for _, r := range text {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()

			current = append(current, r)
		default:
			current = append(current, r)
		}

		prev = r
	}

	flush()

	return result
}
