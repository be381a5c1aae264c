package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAsk   MessageType = "client_ask"
	TypeTurnEvent   MessageType = "turn_event"
	TypeFinalAnswer MessageType = "final_answer"
	TypeAbort       MessageType = "abort"
	TypeErrorEvent  MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAsk submits one question on an established session.
type ClientAsk struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Query     string      `json:"query"`
}

// TurnEvent streams one appended reasoning turn.
type TurnEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	TokenCost int         `json:"token_cost"`
	Seq       int         `json:"seq"`
}

// FinalAnswer closes a streamed question with its terminal result.
type FinalAnswer struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Answer     string      `json:"answer"`
	State      string      `json:"state"`
	Iterations int         `json:"iterations"`
}

// Abort reports a question that ended without a complete answer.
type Abort struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
	Partial   string      `json:"partial,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates a client-originated payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAsk:
		var msg ClientAsk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Query == "" {
			return nil, errors.New("invalid client_ask")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
