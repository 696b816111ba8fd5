package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kimk1029/policevsthieves/internal/protocol"
	"github.com/kimk1029/policevsthieves/internal/transport"
)

type testClient struct {
	conn   *transport.Client
	frames chan protocol.ServerMessage
}

func dial(t *testing.T, url, playerID string) *testClient {
	t.Helper()
	tc := &testClient{
		conn:   transport.NewClient(slog.Default()),
		frames: make(chan protocol.ServerMessage, 32),
	}
	tc.conn.OnMessage(func(msg protocol.ServerMessage) { tc.frames <- msg })

	if err := tc.conn.Connect(context.Background(), url, playerID); err != nil {
		t.Fatalf("connect %s: %v", playerID, err)
	}
	t.Cleanup(tc.conn.Disconnect)
	return tc
}

func (tc *testClient) await(t *testing.T, typ string) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-tc.frames:
			if protocol.Canonical(msg.Type) == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func startRelay(t *testing.T) string {
	t.Helper()
	srv := New(":0", slog.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestCreateJoinAndChat(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url, "host-1")
	if err := host.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdCreateRoom,
		PlayerID: "host-1",
		Payload:  map[string]any{"nickname": "Alice"},
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}

	created := host.await(t, protocol.TypeRoomCreated)
	var createdBody struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(created.Body(), &createdBody); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if len(createdBody.RoomID) != protocol.RoomCodeLength {
		t.Fatalf("room code = %q", createdBody.RoomID)
	}

	guest := dial(t, url, "guest-1")
	if err := guest.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdJoinRoom,
		PlayerID: "guest-1",
		RoomID:   createdBody.RoomID,
		Payload:  map[string]any{"nickname": "Bob"},
	}); err != nil {
		t.Fatalf("join room: %v", err)
	}
	guest.await(t, protocol.TypeRoomJoined)

	// Host sees a snapshot containing both players.
	snap := host.await(t, protocol.TypeGameState)
	var snapBody struct {
		Players []struct {
			PlayerID string `json:"playerId"`
		} `json:"players"`
	}
	if err := json.Unmarshal(snap.Body(), &snapBody); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapBody.Players) != 2 {
		t.Fatalf("snapshot players = %d, want 2", len(snapBody.Players))
	}

	// Chat is fanned out to the whole room, sender included.
	if err := guest.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdSendChat,
		PlayerID: "guest-1",
		RoomID:   createdBody.RoomID,
		Payload:  map[string]any{"messageId": "m1", "text": "found you"},
	}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	chat := host.await(t, protocol.TypeChatNew)
	var chatBody struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(chat.Body(), &chatBody); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chatBody.Text != "found you" {
		t.Errorf("chat text = %q", chatBody.Text)
	}
	guest.await(t, protocol.TypeChatNew)
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	url := startRelay(t)

	guest := dial(t, url, "guest-1")
	if err := guest.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdJoinRoom,
		PlayerID: "guest-1",
		RoomID:   "ZZZZZZ",
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg := guest.await(t, protocol.TypeRoomJoined)
	if !msg.Failed() {
		t.Error("join to unknown room was not rejected")
	}
	if msg.Error == "" {
		t.Error("rejection carried no error text")
	}
}

func TestSignalRelayedToTarget(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url, "host-1")
	if err := host.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdCreateRoom,
		PlayerID: "host-1",
		Payload:  map[string]any{"nickname": "Alice"},
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	created := host.await(t, protocol.TypeRoomCreated)
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(created.Body(), &body); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	guest := dial(t, url, "guest-1")
	if err := guest.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdJoinRoom,
		PlayerID: "guest-1",
		RoomID:   body.RoomID,
	}); err != nil {
		t.Fatalf("join: %v", err)
	}
	guest.await(t, protocol.TypeRoomJoined)

	if err := guest.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdWebRTCSignal,
		PlayerID: "guest-1",
		RoomID:   body.RoomID,
		Payload:  protocol.Signal{Type: protocol.SignalOffer, SDP: "v=0", To: "host-1"},
	}); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	relayed := host.await(t, protocol.TypeWebRTCSignal)
	var sig protocol.Signal
	if err := json.Unmarshal(relayed.Body(), &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.From != "guest-1" || sig.SDP != "v=0" || sig.Type != protocol.SignalOffer {
		t.Errorf("signal = %+v", sig)
	}
}
