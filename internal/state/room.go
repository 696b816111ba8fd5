// Package state owns the two mutable session stores: room/game state and
// local player state. Each store exposes atomic mutators only; readers
// get copies, never references into the owned maps and slices.
package state

import (
	"sync"
	"time"

	"github.com/kimk1029/policevsthieves/internal/game"
)

// Room is the server-authoritative view of the active session.
type Room struct {
	RoomID      string
	Phase       game.Phase
	PhaseEndsAt int64
	Settings    *game.Settings
	Basecamp    *game.Basecamp
	Roster      map[string]game.Player
	ChatLog     []game.ChatMessage
	Result      *game.GameResult
}

// RoomInfo is a shallow-merge patch for Room. Nil fields are untouched.
type RoomInfo struct {
	RoomID      *string
	Phase       *game.Phase
	PhaseEndsAt *int64
	Settings    *game.Settings
	Basecamp    *game.Basecamp
	Result      *game.GameResult
}

type RoomStore struct {
	mu   sync.RWMutex
	room Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{room: Room{Roster: make(map[string]game.Player)}}
}

// ReplaceRoomInfo merges the provided fields into the room state.
func (s *RoomStore) ReplaceRoomInfo(info RoomInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info.RoomID != nil {
		s.room.RoomID = *info.RoomID
	}
	if info.Phase != nil {
		s.room.Phase = *info.Phase
	}
	if info.PhaseEndsAt != nil {
		s.room.PhaseEndsAt = *info.PhaseEndsAt
	}
	if info.Settings != nil {
		settings := *info.Settings
		s.room.Settings = &settings
	}
	if info.Basecamp != nil {
		camp := *info.Basecamp
		s.room.Basecamp = &camp
	}
	if info.Result != nil {
		result := *info.Result
		s.room.Result = &result
	}
}

// ReplaceRoster treats players as the complete authoritative membership
// list: entries absent from it are dropped. This is how a player who left
// or disconnected gets purged.
func (s *RoomStore) ReplaceRoster(players []game.Player) {
	roster := make(map[string]game.Player, len(players))
	for _, p := range players {
		if p.PlayerID == "" {
			continue
		}
		roster[p.PlayerID] = p
	}

	s.mu.Lock()
	s.room.Roster = roster
	s.mu.Unlock()
}

// PlayerPatch is a merge patch for one roster entry. Nil fields are
// untouched.
type PlayerPatch struct {
	Nickname    *string
	Role        *game.Role
	Team        *game.Team
	Ready       *bool
	Connected   *bool
	ThiefStatus *game.ThiefStatus
	Location    *game.LocationSample
}

// PatchPlayer merges fields into the roster entry for playerID, inserting
// a new entry if none exists.
func (s *RoomStore) PatchPlayer(playerID string, patch PlayerPatch) {
	if playerID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.room.Roster[playerID]
	p.PlayerID = playerID
	if patch.Nickname != nil {
		p.Nickname = *patch.Nickname
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.Team != nil {
		p.Team = *patch.Team
	}
	if patch.Ready != nil {
		p.Ready = *patch.Ready
	}
	if patch.Connected != nil {
		p.Connected = *patch.Connected
	}
	if patch.ThiefStatus != nil {
		status := *patch.ThiefStatus
		p.ThiefStatus = &status
	}
	if patch.Location != nil {
		loc := *patch.Location
		p.Location = &loc
	}
	s.room.Roster[playerID] = p
}

// AppendChat appends to the end of the chat log. The log is receipt
// ordered and never deduplicated, truncated or reordered.
func (s *RoomStore) AppendChat(msg game.ChatMessage) {
	s.mu.Lock()
	s.room.ChatLog = append(s.room.ChatLog, msg)
	s.mu.Unlock()
}

// Reset wipes all room state back to its empty initial form.
func (s *RoomStore) Reset() {
	s.mu.Lock()
	s.room = Room{Roster: make(map[string]game.Player)}
	s.mu.Unlock()
}

// Snapshot returns a copy of the room state. The roster map and chat log
// are copied so callers can't mutate the store.
func (s *RoomStore) Snapshot() Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.room
	out.Roster = make(map[string]game.Player, len(s.room.Roster))
	for id, p := range s.room.Roster {
		out.Roster[id] = p
	}
	out.ChatLog = append([]game.ChatMessage(nil), s.room.ChatLog...)
	return out
}

// RoomID returns the current room id, empty when not in a room.
func (s *RoomStore) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.RoomID
}

// PhaseRemaining returns how long the current phase has left at now,
// or zero when no deadline is set or it already passed.
func (s *RoomStore) PhaseRemaining(now time.Time) time.Duration {
	s.mu.RLock()
	ends := s.room.PhaseEndsAt
	s.mu.RUnlock()

	if ends == 0 {
		return 0
	}
	d := time.Duration(ends-now.UnixMilli()) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}
