package trigger_test

import (
	"testing"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlows() []*models.Flow {
	return []*models.Flow{
		{
			ID: "empty-flow", Name: "EmptyFlow",
			Trigger: models.TriggerDefinition{Kind: models.TriggerKindEmpty, Settings: map[string]any{"name": "empty", "source": "gray"}},
		},
		{
			ID: "manual-flow", Name: "ManualFlow",
			Trigger: models.TriggerDefinition{Kind: models.TriggerKindManual, Settings: map[string]any{"name": "manual"}},
		},
		{
			ID: "webhook-flow", Name: "WebhookFlow",
			Trigger: models.TriggerDefinition{Kind: models.TriggerKindWebhook, Settings: map[string]any{
				"name": "webhook", "from_url": "http://localhost:3030/anything/*",
			}},
		},
		{
			ID: "schedule-flow", Name: "ScheduleFlow",
			Trigger: models.TriggerDefinition{Kind: models.TriggerKindSchedule, Settings: map[string]any{"name": "schedule", "cron": "0 0 0 * * *"}},
		},
		{
			ID: "file-flow", Name: "FileChangeFlow",
			Trigger: models.TriggerDefinition{Kind: models.TriggerKindFileChange, Settings: map[string]any{
				"name": "file_change", "path": "/tmp/anything/**/*.txt",
			}},
		},
	}
}

func names(flows []*models.Flow) []string {
	result := make([]string, 0, len(flows))
	for _, flow := range flows {
		result = append(result, flow.Name)
	}

	return result
}

func TestEligibleFlows(t *testing.T) {
	tests := []struct {
		name     string
		event    models.TriggerEvent
		expected []string
	}{
		{
			name:     "empty_event",
			event:    models.TriggerEvent{EventName: "empty", Payload: map[string]any{"name": "bob"}},
			expected: []string{"EmptyFlow"},
		},
		{
			name:     "manual_event",
			event:    models.TriggerEvent{EventName: "manual"},
			expected: []string{"ManualFlow"},
		},
		{
			name:     "manual_event_for_other_flow",
			event:    models.TriggerEvent{EventName: "manual", Payload: map[string]any{"flow_id": "someone-else"}},
			expected: []string{},
		},
		{
			name:     "webhook_prefixed_event_with_match_url",
			event:    models.TriggerEvent{EventName: "webhook/", Payload: map[string]any{"match_url": "http://localhost:3030/anything/events"}},
			expected: []string{"WebhookFlow"},
		},
		{
			name:     "webhook_url_outside_pattern",
			event:    models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "http://localhost:3030/other/events"}},
			expected: []string{},
		},
		{
			name:     "webhook_other_port_does_not_match",
			event:    models.TriggerEvent{EventName: "webhook/", Payload: map[string]any{"match_url": "http://localhost:8080/anything/events"}},
			expected: []string{},
		},
		{
			name:     "schedule_never_matches_ad_hoc",
			event:    models.TriggerEvent{EventName: "schedule", Payload: map[string]any{"cron": "0 0 0 * * *"}},
			expected: []string{},
		},
		{
			name:     "file_change_in_pattern",
			event:    models.TriggerEvent{EventName: "file_change", Payload: map[string]any{"path": "/tmp/anything/nested/other-file.txt"}},
			expected: []string{"FileChangeFlow"},
		},
		{
			name:     "unknown_event",
			event:    models.TriggerEvent{EventName: "kafka"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, names(trigger.EligibleFlows(tt.event, testFlows())))
		})
	}
}

func TestEligibleFlows_PreservesOrderAndReturnsAllMatches(t *testing.T) {
	flows := []*models.Flow{
		{ID: "b", Name: "B", Trigger: models.TriggerDefinition{Kind: models.TriggerKindEmpty}},
		{ID: "x", Name: "X", Trigger: models.TriggerDefinition{Kind: models.TriggerKindManual}},
		{ID: "a", Name: "A", Trigger: models.TriggerDefinition{Kind: models.TriggerKindEmpty}},
		{ID: "broken", Name: "Broken", Trigger: models.TriggerDefinition{Kind: models.TriggerKindSchedule, Settings: map[string]any{"cron": "nope"}}},
	}

	assert.Equal(t, []string{"B", "A"}, names(trigger.EligibleFlows(models.TriggerEvent{EventName: "empty"}, flows)))
}

func TestEmpty_MatchesConfiguredName(t *testing.T) {
	def, err := trigger.Parse("f", models.TriggerDefinition{Kind: models.TriggerKindEmpty, Settings: map[string]any{"name": "nightly-report"}})
	require.NoError(t, err)

	assert.True(t, trigger.Matches(def, models.TriggerEvent{EventName: "nightly-report"}))
	assert.True(t, trigger.Matches(def, models.TriggerEvent{EventName: "empty"}))
	assert.False(t, trigger.Matches(def, models.TriggerEvent{EventName: "other"}))
}

func TestManual_FlowAddressing(t *testing.T) {
	def, err := trigger.Parse("flow-1", models.TriggerDefinition{Kind: models.TriggerKindManual})
	require.NoError(t, err)

	assert.True(t, def.Match(models.TriggerEvent{EventName: "manual", Payload: map[string]any{"flow_id": "flow-1"}}))
	assert.False(t, def.Match(models.TriggerEvent{EventName: "manual", Payload: map[string]any{"flow_id": "flow-2"}}))
}

func TestWebhook_Matching(t *testing.T) {
	exact, err := trigger.Parse("f", models.TriggerDefinition{Kind: models.TriggerKindWebhook, Settings: map[string]any{
		"url": "https://hooks.example.com/orders", "method": "post",
	}})
	require.NoError(t, err)

	assert.True(t, exact.Match(models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "https://hooks.example.com/orders", "method": "POST"}}))
	assert.False(t, exact.Match(models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "https://hooks.example.com/orders", "method": "GET"}}))
	assert.False(t, exact.Match(models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "https://hooks.example.com/orders"}}))
	assert.False(t, exact.Match(models.TriggerEvent{EventName: "webhooks", Payload: map[string]any{"url": "https://hooks.example.com/orders", "method": "POST"}}))

	anyURL, err := trigger.Parse("f", models.TriggerDefinition{Kind: models.TriggerKindWebhook})
	require.NoError(t, err)
	assert.True(t, anyURL.Match(models.TriggerEvent{EventName: "webhook/orders"}))

	deep, err := trigger.Parse("f", models.TriggerDefinition{Kind: models.TriggerKindWebhook, Settings: map[string]any{"url": "https://hooks.example.com/**"}})
	require.NoError(t, err)
	assert.True(t, deep.Match(models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "https://hooks.example.com/a/b/c"}}))
	assert.False(t, deep.Match(models.TriggerEvent{EventName: "webhook", Payload: "not an object"}))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		stored models.TriggerDefinition
	}{
		{name: "bad_cron", stored: models.TriggerDefinition{Kind: models.TriggerKindSchedule, Settings: map[string]any{"cron": "every day"}}},
		{name: "missing_cron", stored: models.TriggerDefinition{Kind: models.TriggerKindSchedule}},
		{name: "file_change_without_path", stored: models.TriggerDefinition{Kind: models.TriggerKindFileChange}},
		{name: "bad_glob", stored: models.TriggerDefinition{Kind: models.TriggerKindFileChange, Settings: map[string]any{"path": "/tmp/[abc"}}},
		{name: "unknown_kind", stored: models.TriggerDefinition{Kind: "kafka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trigger.Parse("f", tt.stored)
			require.ErrorIs(t, err, trigger.ErrInvalidDefinition)
		})
	}
}

func TestParse_ScheduleAcceptsFiveAndSixFields(t *testing.T) {
	for _, expression := range []string{"*/5 * * * *", "0 0 0 * * *", "@hourly"} {
		def, err := trigger.Parse("f", models.TriggerDefinition{Kind: models.TriggerKindSchedule, Settings: map[string]any{"cron": expression}})
		require.NoError(t, err, expression)
		assert.Equal(t, models.TriggerKindSchedule, def.Kind())
	}
}
