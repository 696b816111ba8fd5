package devserver

import (
	crand "crypto/rand"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/kimk1029/policevsthieves/internal/game"
	"github.com/kimk1029/policevsthieves/internal/protocol"
)

const roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Hub tracks connected clients and rooms and relays frames between
// them. It fabricates only the minimal acknowledgments a client needs
// for local development; it is not the authoritative game server.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client // by player id
	rooms   map[string]*room   // by room code
}

type client struct {
	playerID string
	nickname string
	roomID   string

	outMu  sync.Mutex
	out    chan []byte
	closed bool
}

type room struct {
	code    string
	hostID  string
	players []string // join order
	teams   map[string]game.Team
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		rooms:   make(map[string]*room),
	}
}

func newRoomCode() string {
	code := make([]byte, protocol.RoomCodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(roomCodeChars))))
		if err != nil {
			code[i] = roomCodeChars[0]
			continue
		}
		code[i] = roomCodeChars[n.Int64()]
	}
	return string(code)
}

func frame(typ string, payload any) []byte {
	data, _ := json.Marshal(payload)
	out, _ := json.Marshal(protocol.ServerMessage{Type: typ, Data: data})
	return out
}

func rejection(typ, errMsg string) []byte {
	failed := false
	out, _ := json.Marshal(protocol.ServerMessage{Type: typ, Success: &failed, Error: errMsg})
	return out
}

func (h *Hub) register(playerID string) *client {
	c := &client{playerID: playerID, out: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[playerID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.playerID)
	h.leaveLocked(c)
	h.mu.Unlock()

	c.outMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.outMu.Unlock()
}

// push drops the frame if the subscriber is slow or gone.
func (c *client) push(data []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
	}
}

// Handle processes one decoded client frame.
func (h *Hub) Handle(c *client, msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.CmdCreateRoom:
		h.handleCreate(c, msg)
	case protocol.CmdJoinRoom:
		h.handleJoin(c, msg)
	case protocol.CmdLeaveRoom:
		h.handleLeave(c)
	case protocol.CmdStartGame:
		h.handleStart(c)
	case protocol.CmdShuffleTeams:
		h.handleShuffle(c)
	case protocol.CmdSendChat:
		h.relayToRoom(c, frame(protocol.TypeChatNew, msg.Payload), true)
	case protocol.CmdUpdateLocation:
		h.handleLocation(c, msg)
	case protocol.CmdAttemptCapture:
		h.handleCapture(c, msg)
	case protocol.CmdWebRTCSignal:
		h.handleSignal(c, msg)
	case protocol.CmdPTTStatus:
		h.relayToRoom(c, frame(protocol.TypePTTStatus, msg.Payload), false)
	default:
		h.logger.Debug("ignoring frame", "type", msg.Type)
	}
}

func (h *Hub) handleCreate(c *client, msg protocol.ClientMessage) {
	c.nickname = payloadString(msg.Payload, "nickname")

	h.mu.Lock()
	h.leaveLocked(c)
	code := newRoomCode()
	for h.rooms[code] != nil {
		code = newRoomCode()
	}
	r := &room{code: code, hostID: c.playerID, teams: make(map[string]game.Team)}
	r.players = append(r.players, c.playerID)
	h.rooms[code] = r
	c.roomID = code
	players := h.rosterLocked(r)
	h.mu.Unlock()

	h.logger.Info("room created", "roomId", code, "host", c.playerID)
	c.push(frame(protocol.TypeRoomCreated, map[string]any{
		"roomId":  code,
		"players": players,
	}))
}

func (h *Hub) handleJoin(c *client, msg protocol.ClientMessage) {
	c.nickname = payloadString(msg.Payload, "nickname")

	h.mu.Lock()
	r, ok := h.rooms[msg.RoomID]
	if !ok {
		h.mu.Unlock()
		c.push(rejection(protocol.TypeRoomJoined, "room not found"))
		return
	}
	h.leaveLocked(c)
	r.players = append(r.players, c.playerID)
	c.roomID = r.code
	players := h.rosterLocked(r)
	h.mu.Unlock()

	c.push(frame(protocol.TypeRoomJoined, map[string]any{
		"roomId":  r.code,
		"players": players,
	}))
	h.broadcastSnapshot(r.code)
}

func (h *Hub) handleLeave(c *client) {
	h.mu.Lock()
	roomID := c.roomID
	h.leaveLocked(c)
	h.mu.Unlock()
	if roomID != "" {
		h.broadcastSnapshot(roomID)
	}
}

// leaveLocked removes the client from its room, deleting the room when
// it empties.
func (h *Hub) leaveLocked(c *client) {
	if c.roomID == "" {
		return
	}
	r := h.rooms[c.roomID]
	c.roomID = ""
	if r == nil {
		return
	}
	for i, id := range r.players {
		if id == c.playerID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	delete(r.teams, c.playerID)
	if len(r.players) == 0 {
		delete(h.rooms, r.code)
	}
}

func (h *Hub) handleStart(c *client) {
	ends := time.Now().Add(60 * time.Second).UnixMilli()
	h.relayToRoom(c, frame(protocol.TypeGameStart, map[string]any{
		"phase":       game.PhaseHiding,
		"phaseEndsAt": ends,
	}), true)
}

func (h *Hub) handleShuffle(c *client) {
	h.mu.Lock()
	r := h.rooms[c.roomID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	for i, id := range r.players {
		if i%2 == 0 {
			r.teams[id] = game.TeamPolice
		} else {
			r.teams[id] = game.TeamThief
		}
	}
	assignments := make(map[string]game.Team, len(r.teams))
	for id, team := range r.teams {
		assignments[id] = team
	}
	code := r.code
	h.mu.Unlock()

	for id, team := range assignments {
		h.mu.Lock()
		target := h.clients[id]
		h.mu.Unlock()
		if target != nil {
			target.push(frame(protocol.TypeTeamAssigned, map[string]any{
				"playerId": id,
				"team":     team,
			}))
		}
	}
	h.broadcastSnapshot(code)
}

func (h *Hub) handleLocation(c *client, msg protocol.ClientMessage) {
	var sample game.LocationSample
	if data, err := json.Marshal(msg.Payload); err == nil {
		_ = json.Unmarshal(data, &sample)
	}
	h.relayToRoom(c, frame(protocol.TypePlayerMoved, map[string]any{
		"playerId": c.playerID,
		"lat":      sample.Lat,
		"lng":      sample.Lng,
	}), false)
}

func (h *Hub) handleCapture(c *client, msg protocol.ClientMessage) {
	c.push(frame(protocol.TypeCaptureResult, map[string]any{
		"captured": true,
		"targetId": payloadString(msg.Payload, "targetId"),
	}))
	h.broadcastSnapshot(c.roomID)
}

// handleSignal relays a negotiation envelope to its target peer, or to
// the whole room when unaddressed.
func (h *Hub) handleSignal(c *client, msg protocol.ClientMessage) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return
	}
	var sig protocol.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return
	}
	sig.From = c.playerID
	relay := frame(protocol.TypeWebRTCSignal, sig)

	if sig.To != "" {
		h.mu.Lock()
		target := h.clients[sig.To]
		h.mu.Unlock()
		if target != nil {
			target.push(relay)
		}
		return
	}
	h.relayToRoom(c, relay, false)
}

// relayToRoom fans a frame out to the sender's room; includeSelf echoes
// it back to the sender too.
func (h *Hub) relayToRoom(c *client, data []byte, includeSelf bool) {
	h.mu.Lock()
	r := h.rooms[c.roomID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	targets := make([]*client, 0, len(r.players))
	for _, id := range r.players {
		if id == c.playerID && !includeSelf {
			continue
		}
		if member := h.clients[id]; member != nil {
			targets = append(targets, member)
		}
	}
	h.mu.Unlock()

	for _, member := range targets {
		member.push(data)
	}
}

func (h *Hub) broadcastSnapshot(roomID string) {
	h.mu.Lock()
	r := h.rooms[roomID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	payload := map[string]any{
		"roomId":  r.code,
		"players": h.rosterLocked(r),
	}
	targets := make([]*client, 0, len(r.players))
	for _, id := range r.players {
		if member := h.clients[id]; member != nil {
			targets = append(targets, member)
		}
	}
	h.mu.Unlock()

	data := frame(protocol.TypeGameState, payload)
	for _, member := range targets {
		member.push(data)
	}
}

func (h *Hub) rosterLocked(r *room) []game.Player {
	players := make([]game.Player, 0, len(r.players))
	for _, id := range r.players {
		member := h.clients[id]
		if member == nil {
			continue
		}
		role := game.RoleGuest
		if id == r.hostID {
			role = game.RoleHost
		}
		players = append(players, game.Player{
			PlayerID:  id,
			Nickname:  member.nickname,
			Role:      role,
			Team:      r.teams[id],
			Connected: true,
		})
	}
	return players
}

func payloadString(payload any, key string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
