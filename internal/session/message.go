package session

import "formdesk/internal/form"

// Wire message types. Every envelope in either direction carries at least a
// "type" field; anything not listed here is echoed back.
const (
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeToolCall   = "tool_call"
	MessageTypeEcho       = "echo"
	MessageTypeFormUpdate = "form_update"
)

type pongMessage struct {
	Type string `json:"type"`
}

type echoMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// FormUpdateMessage is the server-initiated broadcast sent to every live
// session when form state changes.
type FormUpdateMessage struct {
	Type string     `json:"type"`
	Data *form.Form `json:"data"`
}
