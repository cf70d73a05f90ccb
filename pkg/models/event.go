package models

// Event names understood by the trigger matcher.
const (
	EventNameEmpty      = "empty"
	EventNameManual     = "manual"
	EventNameWebhook    = "webhook"
	EventNameSchedule   = "schedule"
	EventNameFileChange = "file_change"
)

// TriggerEvent is an inbound event that may start flows.
type TriggerEvent struct {
	EventName string  `json:"event_name" validate:"required"`
	Payload   any     `json:"payload"`
	Source    *string `json:"source,omitempty"`
}

// PayloadString returns a top-level string field of an object payload.
func (e TriggerEvent) PayloadString(key string) (string, bool) {
	payload, ok := e.Payload.(map[string]any)
	if !ok {
		return "", false
	}

	value, ok := payload[key].(string)

	return value, ok
}
