// Package formatdate provides the built-in "format_date" action.
package formatdate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/template"
)

// PluginID is the plugin id tasks use to address the date formatter.
const PluginID = "format_date"

// Named formats accepted in input_format and output_format.
const (
	FormatRFC3339  = "rfc3339"
	FormatRFC1123  = "rfc1123"
	FormatDate     = "date"
	FormatTime     = "time"
	FormatDateTime = "datetime"
	FormatUnix     = "unix"
	FormatUnixMs   = "unix_ms"
)

var layouts = map[string]string{
	FormatRFC3339:  time.RFC3339,
	FormatRFC1123:  time.RFC1123,
	FormatDate:     time.DateOnly,
	FormatTime:     time.TimeOnly,
	FormatDateTime: time.DateTime,
}

// Layouts tried, in order, when no input format is given.
var detectLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.DateTime,
	time.DateOnly,
}

// ErrUnparsableDate indicates a date that matches none of the candidate formats.
var ErrUnparsableDate = errors.New("unparsable date")

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date": map[string]any{
			"type": []any{"string", "number"},
		},
		"input_format":  map[string]any{"type": "string"},
		"output_format": map[string]any{"type": "string"},
		"timezone":      map[string]any{"type": "string"},
	},
	"required": []any{"date"},
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

// Request is the decoded handler input.
type Request struct {
	Date         any
	InputFormat  string
	OutputFormat string
	Timezone     string
}

func execute(_ context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	input, _ := inv.Input.(map[string]any)

	request := Request{Date: input["date"]}
	request.InputFormat, _ = input["input_format"].(string)
	request.OutputFormat, _ = input["output_format"].(string)
	request.Timezone, _ = input["timezone"].(string)

	parsed, err := Parse(request.Date, request.InputFormat, request.Timezone)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"result": Format(parsed, request.OutputFormat),
		"unix":   parsed.Unix(),
	}, nil
}

// Parse reads date using inputFormat, a named format or Go layout. Without a
// format, numbers are unix seconds and strings are matched against common layouts.
// Zone-less layouts are interpreted in timezone (UTC when empty), and the
// result is converted to it.
func Parse(date any, inputFormat, timezone string) (time.Time, error) {
	location := time.UTC

	if timezone != "" {
		loaded, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: unknown timezone %q", protocol.ErrInvalidInput, timezone)
		}

		location = loaded
	}

	switch inputFormat {
	case FormatUnix:
		seconds, err := number(date)
		if err != nil {
			return time.Time{}, err
		}

		whole, fraction := math.Modf(seconds)

		return time.Unix(int64(whole), int64(fraction*float64(time.Second))).In(location), nil
	case FormatUnixMs:
		millis, err := number(date)
		if err != nil {
			return time.Time{}, err
		}

		return time.UnixMilli(int64(millis)).In(location), nil
	}

	if inputFormat == "" {
		if seconds, ok := template.Float(date); ok {
			return time.Unix(int64(seconds), 0).In(location), nil
		}
	}

	text, ok := date.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnparsableDate, date)
	}

	candidates := detectLayouts
	if inputFormat != "" {
		candidates = []string{layoutFor(inputFormat)}
	}

	for _, layout := range candidates {
		parsed, err := time.ParseInLocation(layout, text, location)
		if err == nil {
			return parsed.In(location), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, text)
}

// Format renders t with a named format or Go layout, RFC 3339 when empty.
func Format(t time.Time, outputFormat string) string {
	switch outputFormat {
	case "":
		return t.Format(time.RFC3339)
	case FormatUnix:
		return strconv.FormatInt(t.Unix(), 10)
	case FormatUnixMs:
		return strconv.FormatInt(t.UnixMilli(), 10)
	default:
		return t.Format(layoutFor(outputFormat))
	}
}

func layoutFor(format string) string {
	if layout, ok := layouts[format]; ok {
		return layout
	}

	return format
}

func number(value any) (float64, error) {
	if v, ok := value.(string); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrUnparsableDate, v)
		}

		return parsed, nil
	}

	if f, ok := template.Float(value); ok {
		return f, nil
	}

	return 0, fmt.Errorf("%w: %v", ErrUnparsableDate, value)
}
