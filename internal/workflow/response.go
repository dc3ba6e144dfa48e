package workflow

import (
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

// Request is one inbound conversational event for a session. Selection, when
// present, carries a structured choice made in a client UI ("patientId",
// "scheduleId") and takes precedence over parsing the message text.
type Request struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Selection map[string]any `json:"selection,omitempty"`
}

// Option is one selectable item presented to the user.
type Option struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Response is the engine's answer to one turn: a human-readable message plus
// the machine-readable state so clients can render text or structured choices.
type Response struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Workflow   session.WorkflowType `json:"workflow"`
	State      session.State        `json:"state"`
	Options    []Option             `json:"options,omitempty"`
	NextAction string               `json:"next_action,omitempty"`
	Data       map[string]any       `json:"data,omitempty"`
}

func respond(c *session.Context, success bool, message string) *Response {
	return &Response{
		Success:  success,
		Message:  message,
		Workflow: c.Workflow,
		State:    c.State,
	}
}
