// Package testutil provides test data builders for flows and tasks.
package testutil

import (
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/google/uuid"
)

// CreateTestFlow creates a Flow with default values that can be overridden.
// The default flow has a manual trigger and no tasks.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:        uuid.NewString(),
		Name:      "Test Flow",
		AccountID: "acct-test",
		Trigger:   models.TriggerDefinition{Kind: models.TriggerKindManual, Settings: map[string]any{}},
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithID sets the flow id.
func WithID(id string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ID = id
	}
}

// WithName sets the flow name.
func WithName(name string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Name = name
	}
}

// WithAccount sets the owning account.
func WithAccount(accountID string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.AccountID = accountID
	}
}

// WithTrigger sets the trigger kind and settings.
func WithTrigger(kind models.TriggerKind, settings map[string]any) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Trigger = models.TriggerDefinition{Kind: kind, Settings: settings}
	}
}

// WithTasks appends tasks in order, stamping the flow id on each.
func WithTasks(tasks ...*models.Task) func(*models.Flow) {
	return func(f *models.Flow) {
		for _, task := range tasks {
			task.FlowID = f.ID
			f.Tasks = append(f.Tasks, task)
		}
	}
}

// CreateTestTask creates an action task with the given id.
func CreateTestTask(taskID string, overrides ...func(*models.Task)) *models.Task {
	task := &models.Task{
		TaskID: taskID,
		Kind:   models.ActionKindAction,
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// TriggerTask creates the trigger node of a flow.
func TriggerTask() *models.Task {
	return CreateTestTask("trigger", WithKind(models.ActionKindTrigger))
}

// WithKind sets the task kind.
func WithKind(kind models.ActionKind) func(*models.Task) {
	return func(t *models.Task) {
		t.Kind = kind
	}
}

// WithPlugin sets the plugin id.
func WithPlugin(pluginID string) func(*models.Task) {
	return func(t *models.Task) {
		t.PluginID = &pluginID
	}
}

// WithInput sets the input template.
func WithInput(input any) func(*models.Task) {
	return func(t *models.Task) {
		t.Input = input
	}
}

// WithSession sets the flow session id.
func WithSession(flowSessionID string) func(*models.Task) {
	return func(t *models.Task) {
		t.FlowSessionID = flowSessionID
	}
}
