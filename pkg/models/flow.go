package models

// TriggerKind names one of the supported trigger variants.
type TriggerKind string

const (
	TriggerKindEmpty      TriggerKind = "empty"
	TriggerKindManual     TriggerKind = "manual"
	TriggerKindWebhook    TriggerKind = "webhook"
	TriggerKindSchedule   TriggerKind = "schedule"
	TriggerKindFileChange TriggerKind = "file_change"
)

// TriggerDefinition is the stored form of a flow trigger. The settings are
// interpreted by the trigger package according to Kind.
type TriggerDefinition struct {
	Kind     TriggerKind    `json:"kind"     validate:"required,oneof=empty manual webhook schedule file_change"`
	Settings map[string]any `json:"settings"`
}

// Flow is a named graph of tasks started by one trigger.
type Flow struct {
	ID        string            `json:"id"         validate:"required"`
	Name      string            `json:"name"       validate:"required,min=1"`
	AccountID string            `json:"account_id"`
	Trigger   TriggerDefinition `json:"trigger"`
	Tasks     []*Task           `json:"tasks"      validate:"dive"`
}
