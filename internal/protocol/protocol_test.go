package protocol

import (
	"encoding/json"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ROOM_CREATED", "room:created"},
		{"ROOM_JOINED", "room:join"},
		{"TEAM_ASSIGNED", "team:assigned"},
		{"GAME_ENDED", "game:end"},
		{"PLAYER_CAPTURED", "player:captured"},
		{"game:state", "game:state"},
		{"chat:new", "chat:new"},
		{"something:else", "something:else"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestServerMessageBody(t *testing.T) {
	var m ServerMessage
	if err := json.Unmarshal([]byte(`{"type":"game:state","data":{"roomId":"ABC123"}}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(m.Body()) != `{"roomId":"ABC123"}` {
		t.Errorf("body = %s", m.Body())
	}

	if err := json.Unmarshal([]byte(`{"type":"chat:new","payload":{"text":"hi"}}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(m.Body()) != `{"text":"hi"}` {
		t.Errorf("payload fallback = %s", m.Body())
	}
}

func TestServerMessageFailed(t *testing.T) {
	var m ServerMessage
	if err := json.Unmarshal([]byte(`{"type":"room:join","success":false,"error":"room full"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.Failed() {
		t.Error("expected failure frame")
	}
	if m.Error != "room full" {
		t.Errorf("error = %q", m.Error)
	}

	if err := json.Unmarshal([]byte(`{"type":"room:join","success":true}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Failed() {
		t.Error("success frame reported as failure")
	}

	m = ServerMessage{Type: "game:state"}
	if m.Failed() {
		t.Error("frame without success field reported as failure")
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	if got := NormalizeRoomCode("  abc123 "); got != "ABC123" {
		t.Errorf("got %q", got)
	}
}

func TestExtractRoomCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABC123", "ABC123", true},
		{"join at xyz789 now", "XYZ789", true},
		{"https://game.example/r/qw3rt9", "EXAMPL", true}, // first run wins
		{"short", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractRoomCode(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractRoomCode(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
