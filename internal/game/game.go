// Package game defines the core domain types of a police-vs-thieves
// session. It has zero external dependencies — everything here is pure Go.
package game

// Phase is the server-driven stage of a game. The client never
// self-transitions phase; it only adopts what snapshots say.
type Phase string

const (
	PhaseLobby  Phase = "LOBBY"
	PhaseHiding Phase = "HIDING"
	PhaseChase  Phase = "CHASE"
	PhaseEnd    Phase = "END"
)

type Role string

const (
	RoleHost  Role = "HOST"
	RoleGuest Role = "GUEST"
)

type Team string

const (
	TeamPolice Team = "POLICE"
	TeamThief  Team = "THIEF"
)

type ThiefState string

const (
	ThiefFree     ThiefState = "FREE"
	ThiefCaptured ThiefState = "CAPTURED"
	ThiefJailed   ThiefState = "JAILED"
)

type ThiefStatus struct {
	State      ThiefState `json:"state"`
	CapturedBy string     `json:"capturedBy,omitempty"`
	CapturedAt int64      `json:"capturedAt,omitempty"`
	JailedAt   int64      `json:"jailedAt,omitempty"`
}

// Player is one roster entry. PlayerID is immutable once assigned;
// every other field may be overwritten by snapshots or targeted patches.
type Player struct {
	PlayerID    string         `json:"playerId"`
	Nickname    string         `json:"nickname"`
	Role        Role           `json:"role,omitempty"`
	Team        Team           `json:"team,omitempty"`
	Ready       bool           `json:"ready"`
	Connected   bool           `json:"connected"`
	ThiefStatus *ThiefStatus   `json:"thiefStatus,omitempty"`
	Location    *LocationSample `json:"location,omitempty"`
}

type Settings struct {
	MaxPlayers            int     `json:"maxPlayers"`
	HidingSeconds         int     `json:"hidingSeconds"`
	ChaseSeconds          int     `json:"chaseSeconds"`
	ProximityRadiusMeters float64 `json:"proximityRadiusMeters"`
	CaptureRadiusMeters   float64 `json:"captureRadiusMeters"`
	JailRadiusMeters      float64 `json:"jailRadiusMeters"`
	GameMode              string  `json:"gameMode"`
}

type Basecamp struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	SetAt int64   `json:"setAt"`
}

// ChatMessage is immutable once created. Timestamp is epoch milliseconds.
type ChatMessage struct {
	MessageID string `json:"messageId"`
	PlayerID  string `json:"playerId"`
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type GameResult struct {
	Winner  Team   `json:"winner"`
	Reason  string `json:"reason,omitempty"`
	EndedAt int64  `json:"endedAt,omitempty"`
}

// LocationSample is one GPS fix. CapturedAtMs is epoch milliseconds.
type LocationSample struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Accuracy     float64 `json:"accuracy,omitempty"`
	CapturedAtMs int64   `json:"capturedAt"`
}
