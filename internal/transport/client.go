// Package transport maintains the client's logical connection to the
// session server over a websocket. It queues outbound frames while
// disconnected and dispatches inbound frames to registered listeners.
// It never reconnects on its own; callers opt into ReconnectPolicy.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/kimk1029/policevsthieves/internal/protocol"
)

var (
	ErrConnectTimeout   = errors.New("transport: connect timeout")
	ErrConnectionClosed = errors.New("transport: connection closed before open")
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

const (
	defaultConnectTimeout = 3 * time.Second
	writeTimeout          = 5 * time.Second
)

// Client is safe for concurrent use. All listener callbacks run on the
// read goroutine (inbound) or the calling goroutine (open/close/error),
// one at a time, in registration order.
type Client struct {
	logger         *slog.Logger
	connectTimeout time.Duration

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	gen         int // bumped whenever a connection is superseded
	intentional bool
	queue       []protocol.ClientMessage

	msgListeners   []func(protocol.ServerMessage)
	openListeners  []func()
	closeListeners []func(error)
	errorListeners []func(error)
}

type Option func(*Client)

// WithConnectTimeout overrides the bounded window a Connect call waits
// for the open event.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		logger:         logger,
		connectTimeout: defaultConnectTimeout,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WebSocketURL derives the websocket endpoint from a configured base URL
// by scheme substitution (http→ws, https→wss).
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) OnMessage(fn func(protocol.ServerMessage)) {
	c.mu.Lock()
	c.msgListeners = append(c.msgListeners, fn)
	c.mu.Unlock()
}

func (c *Client) OnOpen(fn func()) {
	c.mu.Lock()
	c.openListeners = append(c.openListeners, fn)
	c.mu.Unlock()
}

func (c *Client) OnClose(fn func(err error)) {
	c.mu.Lock()
	c.closeListeners = append(c.closeListeners, fn)
	c.mu.Unlock()
}

func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	c.errorListeners = append(c.errorListeners, fn)
	c.mu.Unlock()
}

// Connect opens a new connection to addr, identifying as playerID. Any
// existing connection is closed first and marked superseded so its close
// is not reported as a failure. Returns only on confirmed open, on
// ErrConnectTimeout, or on ErrConnectionClosed.
func (c *Client) Connect(ctx context.Context, addr, playerID string) error {
	wsURL, err := WebSocketURL(addr)
	if err != nil {
		return err
	}
	if playerID != "" {
		u, err := url.Parse(wsURL)
		if err != nil {
			return fmt.Errorf("parsing websocket url: %w", err)
		}
		q := u.Query()
		q.Set("playerId", playerID)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	c.mu.Lock()
	if old := c.conn; old != nil {
		c.conn = nil
		go old.Close(websocket.StatusNormalClosure, "superseded")
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil) //nolint:bodyclose // nhooyr closes resp.Body
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateClosed
		}
		c.mu.Unlock()
		if dialCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrConnectTimeout, c.connectTimeout)
		}
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		// A newer Connect or Disconnect raced us; this connection lost.
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return ErrConnectionClosed
	}
	c.conn = conn
	c.state = StateOpen
	c.intentional = false
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	c.logger.Info("connected", "url", addr, "queued", len(pending))

	// Flush the offline queue strictly in submission order. Any frame
	// that fails to write goes back to the front, never duplicated.
	for i, msg := range pending {
		if err := c.write(conn, msg); err != nil {
			c.mu.Lock()
			c.queue = append(pending[i:], c.queue...)
			c.mu.Unlock()
			break
		}
	}

	c.fireOpen()
	go c.readLoop(conn, gen)
	return nil
}

// Send transmits immediately when open, otherwise appends to the
// unbounded outbound queue for in-order flush on the next open.
func (c *Client) Send(msg protocol.ClientMessage) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.queue = append(c.queue, msg)
		n := len(c.queue)
		c.mu.Unlock()
		c.logger.Debug("queued while disconnected", "type", msg.Type, "depth", n)
		return nil
	}
	conn := c.conn
	c.mu.Unlock()
	return c.write(conn, msg)
}

func (c *Client) write(conn *websocket.Conn, msg protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", msg.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.fireError(err)
		return fmt.Errorf("sending %s frame: %w", msg.Type, err)
	}
	return nil
}

// Disconnect marks the closure intentional and tears down the active
// connection. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.gen++
	conn := c.conn
	c.conn = nil
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if wasOpen {
		c.fireClose(nil)
	}
}

// IsConnected reflects live transport status. A transport whose
// connection is already gone transitions to closed and reports false.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if c.state == StateOpen || c.state == StateConnecting {
			c.state = StateClosed
		}
		return false
	}
	return c.state == StateOpen
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen reports the current outbound queue depth.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleRemoteClose(gen, err)
			return
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) handleRemoteClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// Superseded connection; its close is not an event.
		c.mu.Unlock()
		return
	}
	intentional := c.intentional
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	if intentional {
		return
	}
	c.logger.Info("connection closed by remote", "error", err)
	c.fireClose(err)
}

func (c *Client) dispatch(msg protocol.ServerMessage) {
	c.mu.Lock()
	listeners := append(([]func(protocol.ServerMessage))(nil), c.msgListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		c.invoke(func() { fn(msg) })
	}
}

func (c *Client) fireOpen() {
	c.mu.Lock()
	listeners := append(([]func())(nil), c.openListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		c.invoke(fn)
	}
}

func (c *Client) fireClose(err error) {
	c.mu.Lock()
	listeners := append(([]func(error))(nil), c.closeListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn := fn
		c.invoke(func() { fn(err) })
	}
}

func (c *Client) fireError(err error) {
	c.mu.Lock()
	listeners := append(([]func(error))(nil), c.errorListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn := fn
		c.invoke(func() { fn(err) })
	}
}

// invoke isolates listener faults: one panicking listener must not stop
// the rest from running.
func (c *Client) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panic", "panic", r)
		}
	}()
	fn()
}
