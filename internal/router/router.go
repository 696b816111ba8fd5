// Package router folds inbound server messages into the session state
// stores and forwards the alert-style events to the presentation layer.
package router

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kimk1029/policevsthieves/internal/game"
	"github.com/kimk1029/policevsthieves/internal/protocol"
	"github.com/kimk1029/policevsthieves/internal/state"
)

const defaultAlertDelay = 3 * time.Second

// Notifier receives the side-effecting events (haptics, alerts, toasts)
// the router does not fold into state. Implementations must not block.
type Notifier interface {
	ProximityAlert(distanceMeters float64)
	ProximityCleared()
	CaptureOutcome(captured bool, targetID string)
	JailOutcome(jailed bool, playerID string)
	CommandFailed(command, message string)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) ProximityAlert(float64)       {}
func (NopNotifier) ProximityCleared()            {}
func (NopNotifier) CaptureOutcome(bool, string)  {}
func (NopNotifier) JailOutcome(bool, string)     {}
func (NopNotifier) CommandFailed(string, string) {}

type Router struct {
	logger     *slog.Logger
	room       *state.RoomStore
	local      *state.LocalPlayer
	notifier   Notifier
	alertDelay time.Duration

	mu         sync.Mutex
	alertTimer *time.Timer
}

type Option func(*Router)

// WithAlertDelay overrides how long a proximity alert stays up.
func WithAlertDelay(d time.Duration) Option {
	return func(r *Router) { r.alertDelay = d }
}

func New(logger *slog.Logger, room *state.RoomStore, local *state.LocalPlayer, notifier Notifier, opts ...Option) *Router {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	r := &Router{
		logger:     logger,
		room:       room,
		local:      local,
		notifier:   notifier,
		alertDelay: defaultAlertDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stop cancels any pending proximity-alert clear timer.
func (r *Router) Stop() {
	r.mu.Lock()
	if r.alertTimer != nil {
		r.alertTimer.Stop()
		r.alertTimer = nil
	}
	r.mu.Unlock()
}

// wirePlayer tolerates both playerId and the legacy id key.
type wirePlayer struct {
	game.Player
	ID string `json:"id"`
}

func (p wirePlayer) toPlayer() game.Player {
	out := p.Player
	if out.PlayerID == "" {
		out.PlayerID = p.ID
	}
	return out
}

type snapshotPayload struct {
	RoomID      string           `json:"roomId"`
	Phase       game.Phase       `json:"phase"`
	PhaseEndsAt int64            `json:"phaseEndsAt"`
	Settings    *game.Settings   `json:"settings"`
	Basecamp    *game.Basecamp   `json:"basecamp"`
	Players     []wirePlayer     `json:"players"`
	Result      *game.GameResult `json:"result"`
}

// Handle dispatches one inbound frame by type tag. Unrecognized types
// are logged and ignored; a malformed payload skips that handler's
// mutation without raising.
func (r *Router) Handle(msg protocol.ServerMessage) {
	if msg.Failed() {
		r.logger.Warn("command rejected", "type", msg.Type, "error", msg.Error)
		r.notifier.CommandFailed(msg.Type, msg.Error)
		return
	}

	switch protocol.Canonical(msg.Type) {
	case protocol.TypeRoomCreated, protocol.TypeRoomJoined:
		r.handleRoomAdopted(msg)
	case protocol.TypeGameState:
		r.handleSnapshot(msg)
	case protocol.TypeGameStart:
		r.handleGameStart(msg)
	case protocol.TypeChatNew:
		r.handleChat(msg)
	case protocol.TypeTeamAssigned:
		r.handleTeamAssigned(msg)
	case protocol.TypePhaseChanged:
		r.handlePhaseChanged(msg)
	case protocol.TypePlayerJoined:
		r.handlePlayerJoined(msg)
	case protocol.TypePlayerLeft:
		r.handlePlayerLeft(msg)
	case protocol.TypePlayerMoved:
		r.handlePlayerMoved(msg)
	case protocol.TypeProximityNear:
		r.handleProximity(msg)
	case protocol.TypeCaptureResult, protocol.TypePlayerCaptured:
		r.handleCaptureResult(msg)
	case protocol.TypeJailResult:
		r.handleJailResult(msg)
	case protocol.TypeGameEnd:
		r.handleGameEnd(msg)
	case protocol.TypeRoomLeave, protocol.TypePTTStatus:
		// Roster changes arrive via the next snapshot; nothing to fold.
		r.logger.Debug("acknowledged", "type", msg.Type)
	default:
		r.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

func (r *Router) decode(msg protocol.ServerMessage, v any) bool {
	body := msg.Body()
	if len(body) == 0 {
		r.logger.Debug("frame without payload", "type", msg.Type)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		r.logger.Warn("malformed payload", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// handleRoomAdopted processes room:created / room:join acknowledgments:
// adopt the room id and enter the lobby.
func (r *Router) handleRoomAdopted(msg protocol.ServerMessage) {
	var p snapshotPayload
	if !r.decode(msg, &p) || p.RoomID == "" {
		return
	}

	phase := game.PhaseLobby
	r.room.ReplaceRoomInfo(state.RoomInfo{
		RoomID:   &p.RoomID,
		Phase:    &phase,
		Settings: p.Settings,
		Basecamp: p.Basecamp,
	})
	if p.Players != nil {
		r.room.ReplaceRoster(toPlayers(p.Players))
	}
	r.logger.Info("room adopted", "roomId", p.RoomID)
}

// handleSnapshot applies a full game-state snapshot: the roster is
// replaced wholesale, remaining room fields are merged.
func (r *Router) handleSnapshot(msg protocol.ServerMessage) {
	var p snapshotPayload
	if !r.decode(msg, &p) {
		return
	}

	if p.Players != nil {
		r.room.ReplaceRoster(toPlayers(p.Players))
	}

	info := state.RoomInfo{
		Settings: p.Settings,
		Basecamp: p.Basecamp,
		Result:   p.Result,
	}
	if p.RoomID != "" {
		info.RoomID = &p.RoomID
	}
	if p.Phase != "" {
		info.Phase = &p.Phase
	}
	if p.PhaseEndsAt != 0 {
		info.PhaseEndsAt = &p.PhaseEndsAt
	}
	r.room.ReplaceRoomInfo(info)
}

func (r *Router) handleGameStart(msg protocol.ServerMessage) {
	var p snapshotPayload
	if !r.decode(msg, &p) {
		return
	}

	phase := p.Phase
	if phase == "" {
		phase = game.PhaseHiding
	}
	info := state.RoomInfo{Phase: &phase, Settings: p.Settings, Basecamp: p.Basecamp}
	if p.PhaseEndsAt != 0 {
		info.PhaseEndsAt = &p.PhaseEndsAt
	}
	r.room.ReplaceRoomInfo(info)
}

func (r *Router) handleChat(msg protocol.ServerMessage) {
	var cm game.ChatMessage
	if !r.decode(msg, &cm) {
		return
	}
	if cm.Text == "" && cm.MessageID == "" {
		return
	}
	r.room.AppendChat(cm)
}

func (r *Router) handleTeamAssigned(msg protocol.ServerMessage) {
	var p struct {
		PlayerID string    `json:"playerId"`
		Team     game.Team `json:"team"`
		Role     game.Role `json:"role"`
	}
	if !r.decode(msg, &p) {
		return
	}
	if p.Team == "" && p.Role == "" {
		return
	}

	if p.PlayerID == "" || p.PlayerID == r.local.PlayerID() {
		r.local.SetAssignment(p.Team, p.Role)
	}
	if p.PlayerID != "" {
		patch := state.PlayerPatch{}
		if p.Team != "" {
			patch.Team = &p.Team
		}
		if p.Role != "" {
			patch.Role = &p.Role
		}
		r.room.PatchPlayer(p.PlayerID, patch)
	}
}

func (r *Router) handlePhaseChanged(msg protocol.ServerMessage) {
	var p struct {
		Phase       game.Phase `json:"phase"`
		PhaseEndsAt int64      `json:"phaseEndsAt"`
	}
	if !r.decode(msg, &p) || p.Phase == "" {
		return
	}

	info := state.RoomInfo{Phase: &p.Phase}
	if p.PhaseEndsAt != 0 {
		info.PhaseEndsAt = &p.PhaseEndsAt
	}
	r.room.ReplaceRoomInfo(info)
}

func (r *Router) handlePlayerJoined(msg protocol.ServerMessage) {
	var wp wirePlayer
	if !r.decode(msg, &wp) {
		return
	}
	p := wp.toPlayer()
	if p.PlayerID == "" {
		return
	}

	patch := state.PlayerPatch{
		Nickname:  &p.Nickname,
		Connected: &p.Connected,
	}
	if p.Role != "" {
		patch.Role = &p.Role
	}
	if p.Team != "" {
		patch.Team = &p.Team
	}
	r.room.PatchPlayer(p.PlayerID, patch)
}

func (r *Router) handlePlayerLeft(msg protocol.ServerMessage) {
	var p struct {
		PlayerID string `json:"playerId"`
		ID       string `json:"id"`
	}
	if !r.decode(msg, &p) {
		return
	}
	id := p.PlayerID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		return
	}

	// The entry itself is purged by the next roster snapshot.
	connected := false
	r.room.PatchPlayer(id, state.PlayerPatch{Connected: &connected})
}

func (r *Router) handlePlayerMoved(msg protocol.ServerMessage) {
	var p struct {
		PlayerID string               `json:"playerId"`
		ID       string               `json:"id"`
		Location *game.LocationSample `json:"location"`
		Lat      float64              `json:"lat"`
		Lng      float64              `json:"lng"`
	}
	if !r.decode(msg, &p) {
		return
	}
	id := p.PlayerID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		return
	}

	loc := p.Location
	if loc == nil {
		if p.Lat == 0 && p.Lng == 0 {
			return
		}
		loc = &game.LocationSample{Lat: p.Lat, Lng: p.Lng}
	}
	r.room.PatchPlayer(id, state.PlayerPatch{Location: loc})
}

// handleProximity raises a transient alert that self-clears after the
// configured delay. A new alert restarts the clock.
func (r *Router) handleProximity(msg protocol.ServerMessage) {
	var p struct {
		DistanceMeters float64 `json:"distanceMeters"`
		Distance       float64 `json:"distance"`
	}
	if !r.decode(msg, &p) {
		return
	}
	d := p.DistanceMeters
	if d == 0 {
		d = p.Distance
	}

	r.notifier.ProximityAlert(d)

	r.mu.Lock()
	if r.alertTimer != nil {
		r.alertTimer.Stop()
	}
	r.alertTimer = time.AfterFunc(r.alertDelay, r.notifier.ProximityCleared)
	r.mu.Unlock()
}

// Capture and jail outcomes are side effects only. The roster is not
// touched here; the subsequent snapshot is authoritative.
func (r *Router) handleCaptureResult(msg protocol.ServerMessage) {
	var p struct {
		Captured bool   `json:"captured"`
		Success  bool   `json:"success"`
		TargetID string `json:"targetId"`
	}
	if !r.decode(msg, &p) {
		return
	}
	r.notifier.CaptureOutcome(p.Captured || p.Success, p.TargetID)
}

func (r *Router) handleJailResult(msg protocol.ServerMessage) {
	var p struct {
		Jailed   bool   `json:"jailed"`
		PlayerID string `json:"playerId"`
	}
	if !r.decode(msg, &p) {
		return
	}
	r.notifier.JailOutcome(p.Jailed, p.PlayerID)
}

// handleGameEnd forces phase END even when the result payload is absent
// or malformed.
func (r *Router) handleGameEnd(msg protocol.ServerMessage) {
	phase := game.PhaseEnd
	info := state.RoomInfo{Phase: &phase}

	var p struct {
		Result *game.GameResult `json:"result"`
		Winner game.Team        `json:"winner"`
		Reason string           `json:"reason"`
	}
	if body := msg.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &p); err == nil {
			switch {
			case p.Result != nil:
				info.Result = p.Result
			case p.Winner != "":
				info.Result = &game.GameResult{Winner: p.Winner, Reason: p.Reason}
			}
		} else {
			r.logger.Warn("malformed payload", "type", msg.Type, "error", err)
		}
	}

	r.room.ReplaceRoomInfo(info)
	r.logger.Info("game ended")
}

func toPlayers(wire []wirePlayer) []game.Player {
	out := make([]game.Player, 0, len(wire))
	for _, wp := range wire {
		out = append(out, wp.toPlayer())
	}
	return out
}
