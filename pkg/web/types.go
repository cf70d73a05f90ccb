// Package web exposes the HTTP surface of the pipeline: webhook and manual
// trigger intake, the OAuth handshake and account secret management.
package web

// RunFlowRequest is the optional body of a manual run.
type RunFlowRequest struct {
	Payload map[string]any `json:"payload"`
}

// PutSecretRequest is the body of a secret write.
type PutSecretRequest struct {
	Value string `json:"value" validate:"required"`
}

// AcceptedResponse acknowledges an event handed to the event bus.
type AcceptedResponse struct {
	EventName string `json:"event_name"`
	FlowID    string `json:"flow_id,omitempty"`
}

// InitiateResponse is returned when the client asks for JSON instead of a redirect.
type InitiateResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// CallbackResponse reports a completed handshake.
type CallbackResponse struct {
	AccountID string `json:"account_id"`
	Provider  string `json:"provider"`
}
