// Package events defines the messages exchanged between the pipeline processes.
package events

import (
	"time"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every pipeline event; consumers dispatch on the event type metadata.
const Topic = "taskpipe.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Ingestion.
	TriggerReceivedEvent EventType = "trigger.received"
	FlowTriggeredEvent   EventType = "flow.triggered"

	// Task execution.
	TaskReadyEvent     EventType = "task.ready"
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"

	SessionRespondedEvent EventType = "session.responded"

	AccountSecretsChangedEvent EventType = "account.secrets_changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// TriggerReceived is an inbound event awaiting flow matching.
type TriggerReceived struct {
	BaseEvent

	Event models.TriggerEvent `json:"event"`
}

func (TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

// FlowTriggered announces a new flow session started by a matched trigger.
type FlowTriggered struct {
	BaseEvent

	FlowID        string              `json:"flow_id"`
	FlowSessionID string              `json:"flow_session_id"`
	Trigger       models.TriggerEvent `json:"trigger"`
}

func (FlowTriggered) GetType() EventType {
	return FlowTriggeredEvent
}

// TaskReady asks a worker to execute one task.
type TaskReady struct {
	BaseEvent

	Task models.Task `json:"task"`
}

func (TaskReady) GetType() EventType {
	return TaskReadyEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID        string        `json:"task_id"`
	FlowID        string        `json:"flow_id,omitempty"`
	FlowSessionID string        `json:"flow_session_id"`
	Output        any           `json:"output"`
	Duration      time.Duration `json:"duration"`
}

func (TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskID        string         `json:"task_id"`
	FlowID        string         `json:"flow_id,omitempty"`
	FlowSessionID string         `json:"flow_session_id"`
	Error         string         `json:"error"`
	Result        map[string]any `json:"result"`
}

func (TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

// SessionResponded carries the payload a response task produced for a flow session.
type SessionResponded struct {
	BaseEvent

	FlowSessionID string `json:"flow_session_id"`
	TaskID        string `json:"task_id"`
	Payload       any    `json:"payload"`
}

func (SessionResponded) GetType() EventType {
	return SessionRespondedEvent
}

// AccountSecretsChanged tells other processes to drop their cached secret
// bundle of the account.
type AccountSecretsChanged struct {
	BaseEvent

	AccountID string `json:"account_id"`
}

func (AccountSecretsChanged) GetType() EventType {
	return AccountSecretsChangedEvent
}
