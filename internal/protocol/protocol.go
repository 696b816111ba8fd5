// Package protocol defines the wire-level frame shapes exchanged with the
// session server. Every frame is a UTF-8 JSON text message.
package protocol

import "encoding/json"

// Inbound type tags. The server emits two historical spellings for some
// events (legacy uppercase and colon-namespaced); Canonical folds them
// together so handlers register one tag.
const (
	TypeRoomCreated    = "room:created"
	TypeRoomJoined     = "room:join"
	TypeRoomLeave      = "room:leave"
	TypeGameState      = "game:state"
	TypeGameStart      = "game:start"
	TypeGameEnd        = "game:end"
	TypeChatNew        = "chat:new"
	TypeTeamAssigned   = "team:assigned"
	TypePhaseChanged   = "phase:changed"
	TypePlayerJoined   = "player:joined"
	TypePlayerLeft     = "player:left"
	TypePlayerMoved    = "player:moved"
	TypePlayerCaptured = "player:captured"
	TypeProximityNear  = "proximity:near"
	TypeCaptureResult  = "capture:result"
	TypeJailResult     = "jail:result"
	TypeWebRTCSignal   = "webrtc:signal"
	TypePTTStatus      = "ptt:status"
)

// Outbound command tags. The mixed spelling mirrors the server's observed
// command surface.
const (
	CmdCreateRoom     = "CREATE_ROOM"
	CmdJoinRoom       = "room:join"
	CmdStartGame      = "game:start"
	CmdShuffleTeams   = "team:shuffle"
	CmdLeaveRoom      = "room:leave"
	CmdUpdateLocation = "UPDATE_LOCATION"
	CmdAttemptCapture = "ATTEMPT_CAPTURE"
	CmdSendChat       = "chat:send"
	CmdWebRTCSignal   = "webrtc:signal"
	CmdPTTStatus      = "ptt:status"
)

var legacyTags = map[string]string{
	"ROOM_CREATED":    TypeRoomCreated,
	"ROOM_JOINED":     TypeRoomJoined,
	"PLAYER_JOINED":   TypePlayerJoined,
	"PLAYER_LEFT":     TypePlayerLeft,
	"PLAYER_MOVED":    TypePlayerMoved,
	"PHASE_CHANGED":   TypePhaseChanged,
	"TEAM_ASSIGNED":   TypeTeamAssigned,
	"PLAYER_CAPTURED": TypePlayerCaptured,
	"GAME_ENDED":      TypeGameEnd,
}

// Canonical maps a legacy uppercase tag to its colon-namespaced
// equivalent. Unknown tags pass through unchanged.
func Canonical(tag string) string {
	if c, ok := legacyTags[tag]; ok {
		return c
	}
	return tag
}

// ServerMessage is the inbound frame shape. Depending on server version
// the body arrives in either data or payload.
type ServerMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Body returns the frame's payload bytes, preferring data over payload.
func (m ServerMessage) Body() json.RawMessage {
	if len(m.Data) > 0 {
		return m.Data
	}
	return m.Payload
}

// Failed reports whether the frame is a command rejection.
func (m ServerMessage) Failed() bool {
	return m.Success != nil && !*m.Success
}

// ClientMessage is the outbound frame shape.
type ClientMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Signal is the peer negotiation envelope relayed through the session
// transport, addressed to a specific peer or broadcast when To is empty.
type Signal struct {
	Type      string          `json:"type"` // offer | answer | ice
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
}

const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
	SignalICE    = "ice"
)
