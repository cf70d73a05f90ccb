// Package trigger decides which flows an inbound event starts, and drives the
// time- and filesystem-based events that have no external sender.
package trigger

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrInvalidDefinition indicates trigger settings that cannot be interpreted.
var ErrInvalidDefinition = errors.New("invalid trigger definition")

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Definition is a parsed flow trigger. The set of variants is closed.
type Definition interface {
	Kind() models.TriggerKind
	// Match reports whether ev starts the owning flow.
	Match(ev models.TriggerEvent) bool

	definition()
}

// Empty matches the generic "empty" event or an event carrying its configured name.
type Empty struct {
	Name string
}

// Manual matches explicit run requests, optionally addressed to one flow.
type Manual struct {
	Name   string
	FlowID string
}

// Webhook matches inbound HTTP calls by URL pattern and method.
type Webhook struct {
	Name   string
	URL    string
	Method string
}

// Schedule fires from the cron driver only; it never matches ad hoc events.
type Schedule struct {
	Name     string
	Cron     string
	Schedule cron.Schedule
}

// FileChange matches filesystem events whose path fits the configured glob.
type FileChange struct {
	Name string
	Path string
}

func (Empty) Kind() models.TriggerKind      { return models.TriggerKindEmpty }
func (Manual) Kind() models.TriggerKind     { return models.TriggerKindManual }
func (Webhook) Kind() models.TriggerKind    { return models.TriggerKindWebhook }
func (Schedule) Kind() models.TriggerKind   { return models.TriggerKindSchedule }
func (FileChange) Kind() models.TriggerKind { return models.TriggerKindFileChange }

func (Empty) definition()      {}
func (Manual) definition()     {}
func (Webhook) definition()    {}
func (Schedule) definition()   {}
func (FileChange) definition() {}

func (d Empty) Match(ev models.TriggerEvent) bool {
	return ev.EventName == models.EventNameEmpty || (d.Name != "" && ev.EventName == d.Name)
}

func (d Manual) Match(ev models.TriggerEvent) bool {
	if ev.EventName != models.EventNameManual {
		return false
	}

	if flowID, ok := ev.PayloadString("flow_id"); ok {
		return flowID == d.FlowID
	}

	return true
}

func (d Webhook) Match(ev models.TriggerEvent) bool {
	if ev.EventName != models.EventNameWebhook && !strings.HasPrefix(ev.EventName, models.EventNameWebhook+"/") {
		return false
	}

	if d.Method != "" {
		method, ok := ev.PayloadString("method")
		if !ok || !strings.EqualFold(method, d.Method) {
			return false
		}
	}

	if d.URL == "" {
		return true
	}

	url, ok := ev.PayloadString("url")
	if !ok {
		url, ok = ev.PayloadString("match_url")
	}

	return ok && matchPattern(d.URL, url)
}

func (Schedule) Match(models.TriggerEvent) bool {
	return false
}

func (d FileChange) Match(ev models.TriggerEvent) bool {
	if ev.EventName != models.EventNameFileChange {
		return false
	}

	path, ok := ev.PayloadString("path")
	if !ok {
		return false
	}

	return matchPattern(filepath.ToSlash(d.Path), filepath.ToSlash(path))
}

// matchPattern compares with glob semantics when pattern has wildcards and by
// equality otherwise.
func matchPattern(pattern, value string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern == value
	}

	matched, err := doublestar.Match(pattern, value)

	return err == nil && matched
}

// Parse interprets the stored trigger of the flow identified by flowID.
func Parse(flowID string, stored models.TriggerDefinition) (Definition, error) {
	name := setting(stored.Settings, "name")

	switch stored.Kind {
	case models.TriggerKindEmpty:
		return Empty{Name: name}, nil
	case models.TriggerKindManual:
		return Manual{Name: name, FlowID: flowID}, nil
	case models.TriggerKindWebhook:
		url := setting(stored.Settings, "url")
		if url == "" {
			url = setting(stored.Settings, "from_url")
		}

		if url != "" && !doublestar.ValidatePattern(url) {
			return nil, fmt.Errorf("%w: webhook url pattern %q", ErrInvalidDefinition, url)
		}

		return Webhook{Name: name, URL: url, Method: setting(stored.Settings, "method")}, nil
	case models.TriggerKindSchedule:
		expression := setting(stored.Settings, "cron")

		schedule, err := cronParser.Parse(expression)
		if err != nil {
			return nil, fmt.Errorf("%w: cron expression %q: %w", ErrInvalidDefinition, expression, err)
		}

		return Schedule{Name: name, Cron: expression, Schedule: schedule}, nil
	case models.TriggerKindFileChange:
		path := setting(stored.Settings, "path")
		if path == "" {
			return nil, fmt.Errorf("%w: file_change trigger requires a path", ErrInvalidDefinition)
		}

		if !doublestar.ValidatePattern(filepath.ToSlash(path)) {
			return nil, fmt.Errorf("%w: file_change path pattern %q", ErrInvalidDefinition, path)
		}

		return FileChange{Name: name, Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, stored.Kind)
	}
}

func setting(settings map[string]any, key string) string {
	value, _ := settings[key].(string)

	return value
}
