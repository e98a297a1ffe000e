package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid search message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Search(t *testing.T) {
	input := []byte(`{"type":"search","gender":"male","looking_for":"female","interests":"Music, gaming","strategy":"strict"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSearch {
		t.Fatalf("expected type %q, got %q", TypeSearch, msgType)
	}

	sm, ok := msg.(SearchMsg)
	if !ok {
		t.Fatalf("expected SearchMsg, got %T", msg)
	}
	if sm.Gender != "male" || sm.LookingFor != "female" {
		t.Errorf("unexpected genders: %+v", sm)
	}
	if sm.Interests != "Music, gaming" {
		t.Errorf("interests should be passed through raw, got %q", sm.Interests)
	}
	if sm.Strategy != "strict" {
		t.Errorf("expected strategy strict, got %q", sm.Strategy)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message (chat) message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","room_id":"abc-123","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.RoomID != "abc-123" {
		t.Errorf("expected room_id %q, got %q", "abc-123", cm.RoomID)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a matched server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Matched(t *testing.T) {
	payload := MatchedMsg{
		RoomID:          "uuid-456",
		CommonInterests: []string{"gaming", "music"},
	}

	data, err := NewServerMessage(TypeMatched, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatched {
		t.Errorf("expected type %q, got %v", TypeMatched, result["type"])
	}
	if result["room_id"] != "uuid-456" {
		t.Errorf("expected room_id %q, got %v", "uuid-456", result["room_id"])
	}

	interests, ok := result["common_interests"].([]interface{})
	if !ok {
		t.Fatalf("expected common_interests to be an array, got %T", result["common_interests"])
	}
	if len(interests) != 2 || interests[0] != "gaming" || interests[1] != "music" {
		t.Errorf("unexpected common interests: %v", interests)
	}
}

func TestNewServerMessage_EmptyCommonInterestsIsArray(t *testing.T) {
	data, err := NewServerMessage(TypeMatched, MatchedMsg{RoomID: "r1", CommonInterests: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if _, ok := result["common_interests"].([]interface{}); !ok {
		t.Errorf("expected common_interests to be an empty array, got %v", result["common_interests"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestParseClientMessage_BadPayloadIsNotUnknownType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"message","room_id":"r","text":42}`))
	if err == nil {
		t.Fatal("expected a decode error, got nil")
	}
	if errors.Is(err, ErrUnknownType) {
		t.Errorf("decode failure of a known type must not report ErrUnknownType: %v", err)
	}
}

func TestParseClientMessage_ServerOnlyTypeRejected(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"matched","room_id":"r"}`)); err == nil {
		t.Fatal("expected server-only type to be rejected by the client parser")
	}
}

// ---------------------------------------------------------------------------
// Test: Server messages decode through ParseServerMessage
// ---------------------------------------------------------------------------

func TestParseServerMessage_Matched(t *testing.T) {
	data, err := NewServerMessage(TypeMatched, MatchedMsg{RoomID: "test-uuid", CommonInterests: []string{"anime"}})
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	msgType, msg, err := ParseServerMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMatched {
		t.Fatalf("expected type %q, got %q", TypeMatched, msgType)
	}

	decoded, ok := msg.(MatchedMsg)
	if !ok {
		t.Fatalf("expected MatchedMsg, got %T", msg)
	}
	if decoded.RoomID != "test-uuid" {
		t.Errorf("room_id mismatch: got %q", decoded.RoomID)
	}
	if len(decoded.CommonInterests) != 1 || decoded.CommonInterests[0] != "anime" {
		t.Errorf("common_interests mismatch: got %v", decoded.CommonInterests)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"search", `{"type":"search","gender":"female","looking_for":"everyone"}`, TypeSearch},
		{"message", `{"type":"message","room_id":"id1","text":"hi"}`, TypeMessage},
		{"typing", `{"type":"typing","room_id":"id1"}`, TypeTyping},
		{"stop_typing", `{"type":"stop_typing","room_id":"id1"}`, TypeStopTyping},
		{"leave", `{"type":"leave","room_id":"id1"}`, TypeLeave},
		{"leave without room", `{"type":"leave"}`, TypeLeave},
		{"report", `{"type":"report","room_id":"id1","reason":"spam"}`, TypeReport},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
