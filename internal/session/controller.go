// Package session glues the transport, state stores, message router and
// voice mesh into the operations a caller issues.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kimk1029/policevsthieves/internal/game"
	"github.com/kimk1029/policevsthieves/internal/geo"
	"github.com/kimk1029/policevsthieves/internal/protocol"
	"github.com/kimk1029/policevsthieves/internal/router"
	"github.com/kimk1029/policevsthieves/internal/state"
	"github.com/kimk1029/policevsthieves/internal/voice"
)

var (
	ErrNoRoom          = errors.New("session: not in a room")
	ErrInvalidRoomCode = errors.New("session: invalid room code")
)

// leaveGrace lets a queued room:leave frame flush before local state is
// wiped; immediate navigation would otherwise drop it.
const leaveGrace = 150 * time.Millisecond

// Transport is the connection surface the controller needs. Satisfied by
// *transport.Client.
type Transport interface {
	Connect(ctx context.Context, addr, playerID string) error
	Send(msg protocol.ClientMessage) error
	Disconnect()
	IsConnected() bool
	OnMessage(fn func(protocol.ServerMessage))
	OnClose(fn func(err error))
}

// PositionSource yields the device's current GPS fix. The underlying
// positioning service bounds its own timeout.
type PositionSource interface {
	Current(ctx context.Context) (game.LocationSample, error)
}

type Options struct {
	Logger     *slog.Logger
	ServerURL  string
	Transport  Transport
	Room       *state.RoomStore
	Local      *state.LocalPlayer
	Router     *router.Router
	Mesh       *voice.Mesh // optional; nil disables voice
	Tracker    *geo.MovementTracker
	LeaveGrace time.Duration // zero means the default 150 ms
}

type Controller struct {
	logger     *slog.Logger
	serverURL  string
	conn       Transport
	room       *state.RoomStore
	local      *state.LocalPlayer
	router     *router.Router
	mesh       *voice.Mesh
	tracker    *geo.MovementTracker
	leaveGrace time.Duration

	mu            sync.Mutex
	stopBroadcast context.CancelFunc
}

func New(opts Options) *Controller {
	c := &Controller{
		logger:     opts.Logger,
		serverURL:  opts.ServerURL,
		conn:       opts.Transport,
		room:       opts.Room,
		local:      opts.Local,
		router:     opts.Router,
		mesh:       opts.Mesh,
		tracker:    opts.Tracker,
		leaveGrace: opts.LeaveGrace,
	}
	if c.leaveGrace == 0 {
		c.leaveGrace = leaveGrace
	}
	if c.tracker == nil {
		c.tracker = geo.NewMovementTracker()
	}

	c.conn.OnMessage(c.route)
	c.conn.OnClose(func(err error) {
		if err != nil {
			c.logger.Warn("session connection lost", "error", err)
		}
	})
	return c
}

// route splits inbound frames: voice signaling goes to the mesh,
// everything else to the message router.
func (c *Controller) route(msg protocol.ServerMessage) {
	if protocol.Canonical(msg.Type) == protocol.TypeWebRTCSignal {
		c.routeSignal(msg)
		return
	}
	c.router.Handle(msg)
}

func (c *Controller) routeSignal(msg protocol.ServerMessage) {
	if c.mesh == nil {
		return
	}
	var sig protocol.Signal
	if err := json.Unmarshal(msg.Body(), &sig); err != nil {
		c.logger.Warn("malformed signal envelope", "error", err)
		return
	}
	if sig.From == "" || sig.From == c.local.PlayerID() {
		return
	}
	if err := c.mesh.HandleSignal(sig.From, sig); err != nil {
		// One peer's negotiation failure never touches the others.
		c.logger.Warn("peer signaling failed", "peer", sig.From, "error", err)
	}
}

// SendSignal relays one negotiation envelope through the session
// transport, addressed to a specific peer. Wire it as the mesh's
// SignalSender.
func (c *Controller) SendSignal(peerID string, sig protocol.Signal) error {
	sig.From = c.local.PlayerID()
	sig.To = peerID
	return c.send(protocol.CmdWebRTCSignal, sig)
}

// Connect establishes the session connection, identifying as the
// persisted local player.
func (c *Controller) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, c.serverURL, c.local.PlayerID())
}

// Disconnect tears the session down without the leave handshake.
func (c *Controller) Disconnect() {
	c.StopLocationBroadcast()
	c.router.Stop()
	if c.mesh != nil {
		c.mesh.Cleanup()
	}
	c.conn.Disconnect()
}

func (c *Controller) send(typ string, payload any) error {
	return c.conn.Send(protocol.ClientMessage{
		Type:     typ,
		PlayerID: c.local.PlayerID(),
		RoomID:   c.room.RoomID(),
		Payload:  payload,
	})
}

// CreateRoom asks the server for a new room hosted by this player.
func (c *Controller) CreateRoom(nickname string, settings *game.Settings) error {
	nickname = strings.TrimSpace(nickname)
	c.local.SetNickname(nickname)
	return c.send(protocol.CmdCreateRoom, map[string]any{
		"nickname": nickname,
		"settings": settings,
	})
}

// JoinRoom joins an existing room by its 6-character code.
func (c *Controller) JoinRoom(code, nickname string) error {
	code = protocol.NormalizeRoomCode(code)
	if len(code) != protocol.RoomCodeLength {
		return fmt.Errorf("%w: %q", ErrInvalidRoomCode, code)
	}

	nickname = strings.TrimSpace(nickname)
	c.local.SetNickname(nickname)
	return c.conn.Send(protocol.ClientMessage{
		Type:     protocol.CmdJoinRoom,
		PlayerID: c.local.PlayerID(),
		RoomID:   code,
		Payload:  map[string]any{"nickname": nickname},
	})
}

// JoinScanned extracts a room code from scanned text and joins it.
func (c *Controller) JoinScanned(text, nickname string) error {
	code, ok := protocol.ExtractRoomCode(text)
	if !ok {
		return fmt.Errorf("%w: no code in scanned text", ErrInvalidRoomCode)
	}
	return c.JoinRoom(code, nickname)
}

func (c *Controller) StartGame() error {
	if c.room.RoomID() == "" {
		return ErrNoRoom
	}
	return c.send(protocol.CmdStartGame, nil)
}

func (c *Controller) ShuffleTeams() error {
	if c.room.RoomID() == "" {
		return ErrNoRoom
	}
	return c.send(protocol.CmdShuffleTeams, nil)
}

// LeaveRoom announces the departure, waits the short flush grace, then
// wipes room state. The local identity survives.
func (c *Controller) LeaveRoom(ctx context.Context) error {
	if c.room.RoomID() == "" {
		return ErrNoRoom
	}
	if err := c.send(protocol.CmdLeaveRoom, nil); err != nil {
		c.logger.Warn("sending leave", "error", err)
	}

	timer := time.NewTimer(c.leaveGrace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	c.StopLocationBroadcast()
	if c.mesh != nil {
		c.mesh.Cleanup()
	}
	c.room.Reset()
	c.local.ResetSession()
	c.logger.Info("left room")
	return nil
}

// SendChat sends one chat line. The message lands in the local log when
// the server echoes it back as chat:new.
func (c *Controller) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.send(protocol.CmdSendChat, game.ChatMessage{
		MessageID: uuid.NewString(),
		PlayerID:  c.local.PlayerID(),
		Nickname:  c.local.Nickname(),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// AttemptCapture asks the server to adjudicate a capture. The outcome
// arrives as capture:result plus an authoritative snapshot.
func (c *Controller) AttemptCapture(targetID string) error {
	if c.room.RoomID() == "" {
		return ErrNoRoom
	}
	return c.send(protocol.CmdAttemptCapture, map[string]string{"targetId": targetID})
}

// SetTransmitting toggles outbound voice and announces push-to-talk
// status to the room.
func (c *Controller) SetTransmitting(enabled bool) error {
	if c.mesh != nil {
		c.mesh.SetTransmitting(enabled)
	}
	return c.send(protocol.CmdPTTStatus, map[string]bool{"transmitting": enabled})
}

// CallPeer starts voice negotiation towards one remote player.
func (c *Controller) CallPeer(peerID string) error {
	if c.mesh == nil {
		return errors.New("session: voice mesh not configured")
	}
	return c.mesh.CreateOffer(peerID)
}

// StartLocationBroadcast samples src every interval, feeds the movement
// tracker, and reports the fix to the server. Restarting replaces any
// previous broadcast loop.
func (c *Controller) StartLocationBroadcast(ctx context.Context, src PositionSource, interval time.Duration) {
	c.mu.Lock()
	if c.stopBroadcast != nil {
		c.stopBroadcast()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.stopBroadcast = cancel
	c.mu.Unlock()

	c.tracker.SetActive(true)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			sample, err := src.Current(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("position fix failed", "error", err)
				continue
			}

			c.tracker.Update(sample)
			c.local.SetLastLocation(sample)
			if err := c.send(protocol.CmdUpdateLocation, sample); err != nil {
				c.logger.Warn("sending location", "error", err)
			}
		}
	}()
}

// StopLocationBroadcast stops the loop and resets the tracking session.
func (c *Controller) StopLocationBroadcast() {
	c.mu.Lock()
	stop := c.stopBroadcast
	c.stopBroadcast = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.tracker.SetActive(false)
}

// MovementStats returns the current tracking-session statistics.
func (c *Controller) MovementStats() geo.MovementStats {
	return c.tracker.Stats()
}

// BattleZoneRadius derives the current boundary radius from room state.
// ok is false while geofencing is inactive.
func (c *Controller) BattleZoneRadius(now time.Time) (radius float64, ok bool) {
	snap := c.room.Snapshot()
	if snap.Settings == nil {
		return 0, false
	}
	return geo.BattleZoneRadiusMeters(snap.PhaseEndsAt, snap.Settings.ChaseSeconds, now.UnixMilli())
}

// IsConnected reports live transport status.
func (c *Controller) IsConnected() bool {
	return c.conn.IsConnected()
}
