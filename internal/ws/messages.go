package ws

import (
	"encoding/json"

	"github.com/callrunner/callrunner/internal/runner"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgPhase            MessageType = "phase"
	MsgDirectiveStarted MessageType = "directive_started"
	MsgDirectiveDone    MessageType = "directive_done"
	MsgRunDone          MessageType = "run_done"
	MsgError            MessageType = "error"
	MsgSync             MessageType = "sync"
	MsgSnapshot         MessageType = "snapshot"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}

// PhasePayload announces a run entering a phase.
type PhasePayload struct {
	RunID string       `json:"run_id"`
	Phase runner.Phase `json:"phase"`
}

// DirectivePayload announces a directive about to be submitted.
type DirectivePayload struct {
	RunID         string `json:"run_id"`
	Number        int    `json:"procedure_number"`
	Total         int    `json:"total_procedures"`
	ProcedureName string `json:"procedure_name"`
	Statement     string `json:"statement,omitempty"`
}

// DirectiveDonePayload carries one directive's record.
type DirectiveDonePayload struct {
	RunID  string                 `json:"run_id"`
	Total  int                    `json:"total_procedures"`
	Result runner.ExecutionResult `json:"result"`
}

// RunDonePayload summarizes a finished run.
type RunDonePayload struct {
	RunID                string `json:"run_id"`
	StatusCode           int    `json:"status_code"`
	TotalProcedures      int    `json:"total_procedures"`
	SuccessfulProcedures int    `json:"successful_procedures"`
	Key                  string `json:"key"`
	Error                string `json:"error,omitempty"`
}
