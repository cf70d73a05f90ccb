package models_test

import (
	"testing"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestTriggerEvent_PayloadString(t *testing.T) {
	ev := models.TriggerEvent{EventName: "webhook", Payload: map[string]any{"url": "https://x", "count": 3}}

	url, ok := ev.PayloadString("url")
	assert.True(t, ok)
	assert.Equal(t, "https://x", url)

	_, ok = ev.PayloadString("count")
	assert.False(t, ok)

	_, ok = models.TriggerEvent{Payload: "raw"}.PayloadString("url")
	assert.False(t, ok)
}

func TestTask_Plugin(t *testing.T) {
	id := "http"
	task := models.Task{TaskID: "call", Kind: models.ActionKindAction, PluginID: &id}

	plugin, ok := task.Plugin()
	assert.True(t, ok)
	assert.Equal(t, "http", plugin)
	assert.False(t, task.IsTrigger())

	_, ok = (&models.Task{TaskID: "start", Kind: models.ActionKindTrigger}).Plugin()
	assert.False(t, ok)
}

func TestFlow_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := models.Flow{
		ID:      "signup",
		Name:    "Signup",
		Trigger: models.TriggerDefinition{Kind: models.TriggerKindWebhook},
		Tasks:   []*models.Task{{TaskID: "greet", Kind: models.ActionKindAction}},
	}
	assert.NoError(t, validate.Struct(valid))

	badTrigger := valid
	badTrigger.Trigger = models.TriggerDefinition{Kind: "carrier_pigeon"}
	assert.Error(t, validate.Struct(badTrigger))

	badTask := valid
	badTask.Tasks = []*models.Task{{Kind: models.ActionKindAction}}
	assert.Error(t, validate.Struct(badTask))
}
