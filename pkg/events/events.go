// Package events defines the JSON envelope shared by the streaming bridge's
// internal message payloads and the websocket frames sent to clients.
package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	TypeConnected = "connected"
	TypeToken     = "token"
	TypeReply     = "reply"
	TypeError     = "error"
	// TypeDone terminates an attempt's internal stream; it is never sent to
	// clients.
	TypeDone = "done"
)

type StreamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Bot       string `json:"bot,omitempty"`
	Data      string `json:"data,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func Connected(sessionID, bot string) StreamEvent {
	return StreamEvent{Type: TypeConnected, SessionID: sessionID, Bot: bot}
}

func Token(sessionID, token string) StreamEvent {
	return StreamEvent{Type: TypeToken, SessionID: sessionID, Data: token}
}

func Reply(sessionID, text string) StreamEvent {
	return StreamEvent{Type: TypeReply, SessionID: sessionID, Data: text}
}

func Error(code, message string) StreamEvent {
	return StreamEvent{Type: TypeError, Code: code, Message: message}
}

func Done() StreamEvent {
	return StreamEvent{Type: TypeDone}
}

func (e StreamEvent) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

func Parse(b []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return StreamEvent{}, errors.Wrap(err, "parse stream event")
	}
	if ev.Type == "" {
		return StreamEvent{}, errors.New("stream event missing type")
	}
	return ev, nil
}
