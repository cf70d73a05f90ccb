// Package models defines the core data records shared by the task-execution pipeline.
package models

// ActionKind discriminates how a task is executed.
type ActionKind string

const (
	ActionKindTrigger  ActionKind = "trigger"
	ActionKindAction   ActionKind = "action"
	ActionKindLoop     ActionKind = "loop"
	ActionKindDecision ActionKind = "decision"
	ActionKindFilter   ActionKind = "filter"
	ActionKindResponse ActionKind = "response" // Response action for making api endpoints
	ActionKindInput    ActionKind = "input"    // Input action for subflows
	ActionKindOutput   ActionKind = "output"   // Output action for subflows
)

// Task is one node of a flow at the moment it is ready to run.
type Task struct {
	TaskID        string     `json:"task_id"              validate:"required"`
	Kind          ActionKind `json:"kind"                 validate:"required"`
	PluginID      *string    `json:"plugin_id,omitempty"`
	Input         any        `json:"input"`
	FlowSessionID string     `json:"flow_session_id"`
	FlowID        string     `json:"flow_id,omitempty"`
	AccountID     string     `json:"account_id,omitempty"`
}

// IsTrigger reports whether the task is a trigger node.
func (t *Task) IsTrigger() bool {
	return t.Kind == ActionKindTrigger
}

// Plugin returns the plugin identifier and whether one was supplied.
func (t *Task) Plugin() (string, bool) {
	if t.PluginID == nil {
		return "", false
	}

	return *t.PluginID, true
}
