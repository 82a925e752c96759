package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_UserJoin(t *testing.T) {
	input := []byte(`{"type":"user_join","name":"alice"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeUserJoin {
		t.Fatalf("expected type %q, got %q", TypeUserJoin, msgType)
	}

	uj, ok := msg.(UserJoinMsg)
	if !ok {
		t.Fatalf("expected UserJoinMsg, got %T", msg)
	}
	if uj.Name != "alice" {
		t.Errorf("expected name %q, got %q", "alice", uj.Name)
	}
}

func TestParseClientMessage_ChatMessage(t *testing.T) {
	input := []byte(`{"type":"chat_message","sender":"alice","text":"hi there"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.Sender != "alice" {
		t.Errorf("expected sender %q, got %q", "alice", cm.Sender)
	}
	if cm.Text != "hi there" {
		t.Errorf("expected text %q, got %q", "hi there", cm.Text)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"teleport","dest":"moon"}`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	input := []byte(`{"sender":"alice","text":"hi"}`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	input := []byte(`{"type":`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeChatMessage, ChatMsg{
		Sender: "bob",
		Text:   "hello",
		Ts:     1714560000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeChatMessage {
		t.Errorf("expected type %q, got %v", TypeChatMessage, m["type"])
	}
	if m["sender"] != "bob" {
		t.Errorf("expected sender %q, got %v", "bob", m["sender"])
	}
	if m["ts"] != float64(1714560000) {
		t.Errorf("expected ts %d, got %v", 1714560000, m["ts"])
	}
}

func TestNewServerMessage_HistoryRoundTrip(t *testing.T) {
	data, err := NewServerMessage(TypeHistory, HistoryMsg{
		Messages: []ChatMsg{
			{Sender: "a", Text: "first", Ts: 1},
			{Sender: "b", Text: "second", Ts: 2},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out HistoryMsg
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != TypeHistory {
		t.Errorf("expected type %q, got %q", TypeHistory, out.Type)
	}
	if len(out.Messages) != 2 || out.Messages[0].Text != "first" || out.Messages[1].Text != "second" {
		t.Errorf("history messages out of order or missing: %+v", out.Messages)
	}
}
