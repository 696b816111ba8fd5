package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/kimk1029/policevsthieves/internal/protocol"
)

// testServer accepts a single websocket client, exposing received frames
// on Received and pushing frames written to Outbound.
type testServer struct {
	*httptest.Server
	Received chan protocol.ClientMessage
	Outbound chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		Received: make(chan protocol.ClientMessage, 16),
		Outbound: make(chan []byte, 16),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		go func() {
			for data := range ts.Outbound {
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
			conn.Close(websocket.StatusNormalClosure, "server done")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg protocol.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			ts.Received <- msg
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func recvFrame(t *testing.T, ch chan protocol.ClientMessage) protocol.ClientMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.ClientMessage{}
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://game.example:8080", want: "ws://game.example:8080"},
		{in: "https://game.example/session", want: "wss://game.example/session"},
		{in: "ws://game.example", want: "ws://game.example"},
		{in: "ftp://game.example", wantErr: true},
	}
	for _, tt := range tests {
		got, err := WebSocketURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("WebSocketURL(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("WebSocketURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConnectAndSend(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if !c.IsConnected() {
		t.Fatal("expected connected transport")
	}

	if err := c.Send(protocol.ClientMessage{Type: protocol.CmdSendChat, PlayerID: "p1"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := recvFrame(t, srv.Received)
	if got.Type != protocol.CmdSendChat || got.PlayerID != "p1" {
		t.Errorf("server received %+v", got)
	}
}

func TestConnectTimeout(t *testing.T) {
	// A listener that accepts TCP but never answers the handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := NewClient(slog.Default(), WithConnectTimeout(150*time.Millisecond))
	err = c.Connect(context.Background(), "http://"+ln.Addr().String(), "p1")
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
	if c.IsConnected() {
		t.Error("transport reports connected after failed connect")
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient(slog.Default())
	err = c.Connect(context.Background(), "http://"+addr, "p1")
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
}

func TestOfflineQueueFlushesInOrder(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	for _, typ := range []string{"first", "second", "third"} {
		if err := c.Send(protocol.ClientMessage{Type: typ}); err != nil {
			t.Fatalf("send %s: %v", typ, err)
		}
	}
	if n := c.QueueLen(); n != 3 {
		t.Fatalf("queue depth = %d, want 3", n)
	}

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	for _, want := range []string{"first", "second", "third"} {
		if got := recvFrame(t, srv.Received); got.Type != want {
			t.Fatalf("flush order: got %q, want %q", got.Type, want)
		}
	}
	if n := c.QueueLen(); n != 0 {
		t.Errorf("queue depth after flush = %d", n)
	}

	// A live send afterwards must not duplicate flushed frames.
	if err := c.Send(protocol.ClientMessage{Type: "fourth"}); err != nil {
		t.Fatalf("send fourth: %v", err)
	}
	if got := recvFrame(t, srv.Received); got.Type != "fourth" {
		t.Errorf("got %q, want fourth", got.Type)
	}
}

func TestDispatchAndListenerIsolation(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	got := make(chan protocol.ServerMessage, 4)
	c.OnMessage(func(protocol.ServerMessage) { panic("bad listener") })
	c.OnMessage(func(msg protocol.ServerMessage) { got <- msg })

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	srv.Outbound <- []byte(`this is not json`)
	srv.Outbound <- []byte(`{"type":"chat:new","data":{"text":"hi"}}`)

	select {
	case msg := <-got:
		if msg.Type != "chat:new" {
			t.Errorf("dispatched type = %q", msg.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("surviving listener never ran")
	}
}

func TestRemoteCloseFiresCloseListeners(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	closed := make(chan error, 1)
	c.OnClose(func(err error) { closed <- err })

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	close(srv.Outbound) // server closes the connection

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("close listener never fired")
	}
	if c.IsConnected() {
		t.Error("transport still reports connected after remote close")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	c.Disconnect()
	c.Disconnect()

	if c.IsConnected() {
		t.Error("connected after disconnect")
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want closed", c.State())
	}
}

func TestConnectSupersedesPrevious(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(slog.Default())

	unexpected := make(chan error, 1)
	c.OnClose(func(err error) {
		if err != nil {
			unexpected <- err
		}
	})

	if err := c.Connect(context.Background(), srv.URL, "p1"); err != nil {
		t.Fatalf("first connect: %v", err)
	}

	srv2 := newTestServer(t)
	if err := c.Connect(context.Background(), srv2.URL, "p1"); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer c.Disconnect()

	select {
	case err := <-unexpected:
		t.Fatalf("superseded close reported as failure: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	if err := c.Send(protocol.ClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := recvFrame(t, srv2.Received); got.Type != "ping" {
		t.Errorf("frame went to wrong server: %+v", got)
	}
}
