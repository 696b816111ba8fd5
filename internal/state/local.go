package state

import (
	"sync"

	"github.com/kimk1029/policevsthieves/internal/game"
)

// LocalPlayer holds the local player's identity and session fields.
// PlayerID is persisted across sessions by the identity store and
// survives ResetSession; everything else is session scoped.
type LocalPlayer struct {
	mu           sync.RWMutex
	playerID     string
	nickname     string
	role         game.Role
	team         game.Team
	ready        bool
	thiefStatus  *game.ThiefStatus
	lastLocation *game.LocationSample
}

func NewLocalPlayer(playerID string) *LocalPlayer {
	return &LocalPlayer{playerID: playerID}
}

func (p *LocalPlayer) PlayerID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playerID
}

func (p *LocalPlayer) SetNickname(nickname string) {
	p.mu.Lock()
	p.nickname = nickname
	p.mu.Unlock()
}

func (p *LocalPlayer) Nickname() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nickname
}

func (p *LocalPlayer) SetAssignment(team game.Team, role game.Role) {
	p.mu.Lock()
	if team != "" {
		p.team = team
	}
	if role != "" {
		p.role = role
	}
	p.mu.Unlock()
}

func (p *LocalPlayer) Team() game.Team {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.team
}

func (p *LocalPlayer) Role() game.Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.role
}

func (p *LocalPlayer) SetReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

func (p *LocalPlayer) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *LocalPlayer) SetThiefStatus(status game.ThiefStatus) {
	p.mu.Lock()
	s := status
	p.thiefStatus = &s
	p.mu.Unlock()
}

func (p *LocalPlayer) ThiefStatus() *game.ThiefStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.thiefStatus == nil {
		return nil
	}
	s := *p.thiefStatus
	return &s
}

func (p *LocalPlayer) SetLastLocation(loc game.LocationSample) {
	p.mu.Lock()
	l := loc
	p.lastLocation = &l
	p.mu.Unlock()
}

func (p *LocalPlayer) LastLocation() *game.LocationSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastLocation == nil {
		return nil
	}
	l := *p.lastLocation
	return &l
}

// ResetSession clears all session-scoped fields. Identity survives.
func (p *LocalPlayer) ResetSession() {
	p.mu.Lock()
	p.nickname = ""
	p.role = ""
	p.team = ""
	p.ready = false
	p.thiefStatus = nil
	p.lastLocation = nil
	p.mu.Unlock()
}
