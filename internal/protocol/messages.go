// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is wrapped by the parse functions when the envelope type is
// not one the receiving side understands.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeSearch     = "search"
	TypeMessage    = "message"
	TypeTyping     = "typing"
	TypeStopTyping = "stop_typing"
	TypeLeave      = "leave"
	TypeReport     = "report"
	TypePing       = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated    = "session_created"
	TypeWaiting           = "waiting"
	TypeMatched           = "matched"
	TypeMessageReceived   = "message_received"
	TypePartnerTyping     = "partner_typing"
	TypePartnerStopTyping = "partner_stop_typing"
	TypePartnerLeft       = "partner_left"
	TypeReportReceived    = "report_received"
	TypeRateLimited       = "rate_limited"
	TypeError             = "error"
	TypePong              = "pong"
)

// Error codes carried by ErrorMsg.
const (
	CodeParseError         = "parse_error"
	CodeUnsupportedType    = "unsupported_type"
	CodeInvalidPreferences = "invalid_preferences"
	CodeInvalidMessage     = "invalid_message"
	CodeInvalidRoom        = "invalid_room"
	CodeInternal           = "internal_error"
)

// ---------------------------------------------------------------------------
// Envelope is used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// SearchMsg asks the server for a partner. Interests is the raw comma
// separated text the user typed; the server normalizes it.
type SearchMsg struct {
	Type       string `json:"type"`
	Gender     string `json:"gender"`
	LookingFor string `json:"looking_for"`
	Interests  string `json:"interests,omitempty"`
	Strategy   string `json:"strategy,omitempty"` // "strict" (default) or "any"
	// Escalate marks the automatic widening of a pending search. The server
	// ignores it unless the connection is still waiting.
	Escalate   bool   `json:"escalate,omitempty"`
}

// ChatMsg is a text message sent by the client within a room.
type ChatMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// TypingMsg is sent for both typing and stop_typing; the envelope type
// tells them apart.
type TypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// LeaveMsg ends the current room, or cancels a pending search when RoomID is
// empty.
type LeaveMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

// ReportMsg is sent by the client to report the chat partner.
type ReportMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is accepted.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// WaitingMsg confirms the client is in the waiting pool.
type WaitingMsg struct {
	Type string `json:"type"`
}

// MatchedMsg is sent to both participants when a room is formed.
type MatchedMsg struct {
	Type            string   `json:"type"`
	RoomID          string   `json:"room_id"`
	CommonInterests []string `json:"common_interests"`
}

// MessageReceivedMsg is a text message relayed from the partner.
type MessageReceivedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// PartnerTypingMsg relays the partner's typing indicator. It is used for both
// partner_typing and partner_stop_typing.
type PartnerTypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// PartnerLeftMsg is sent when the partner disconnected or left the room.
type PartnerLeftMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// ReportReceivedMsg acknowledges a report.
type ReportReceivedMsg struct {
	Type string `json:"type"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
	Action     string `json:"action,omitempty"` // type of the rejected client message
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeSearch:
		var m SearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping, TypeStopTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave:
		var m LeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: client %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// ParseServerMessage is the client-side counterpart of ParseClientMessage.
func ParseServerMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeSessionCreated:
		var m SessionCreatedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeWaiting:
		var m WaitingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMatched:
		var m MatchedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageReceived:
		var m MessageReceivedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePartnerTyping, TypePartnerStopTyping:
		var m PartnerTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePartnerLeft:
		var m PartnerLeftMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportReceived:
		var m ReportReceivedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRateLimited:
		var m RateLimitedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePong:
		var m PongMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: server %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	return newMessage(msgType, payload)
}

// NewClientMessage creates a JSON-encoded byte slice for a client message.
func NewClientMessage(msgType string, payload interface{}) ([]byte, error) {
	return newMessage(msgType, payload)
}

func newMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message: %w", err)
	}
	return out, nil
}
