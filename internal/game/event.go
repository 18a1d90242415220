package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeLobbyOpen
	EventTypePlayerJoin
	EventTypeMatchStart
	EventTypeShot
	EventTypeHit
	EventTypeKill
	EventTypeRespawn
	EventTypePickup
	EventTypeMatchEnd
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the match journal
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic sequence
	TickNum   uint64    `json:"tickNum"`
	MatchID   string    `json:"matchId"`
	PlayerID  string    `json:"playerId"` // Source player (for rate limiting)
	Payload   []byte    `json:"payload"`  // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeLobbyOpen:
		return "lobbyOpen"
	case EventTypePlayerJoin:
		return "playerJoin"
	case EventTypeMatchStart:
		return "matchStart"
	case EventTypeShot:
		return "shot"
	case EventTypeHit:
		return "hit"
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	case EventTypePickup:
		return "pickup"
	case EventTypeMatchEnd:
		return "matchEnd"
	default:
		return "unknown"
	}
}

// Typed payloads for the different event types. The shot, hit, matchEnd
// and lobbyOpen payloads double as the websocket broadcast bodies.

// ShotPayload is one trigger pull's tracer line.
type ShotPayload struct {
	ShooterID string  `json:"shooterId"`
	Weapon    string  `json:"weapon"`
	FromX     float64 `json:"fromX"`
	FromZ     float64 `json:"fromZ"`
	ToX       float64 `json:"toX"`
	ToZ       float64 `json:"toZ"`
	Hit       bool    `json:"hit"`
}

// HitPayload is damage landing on a victim.
type HitPayload struct {
	AttackerID   string  `json:"attackerId"`
	VictimID     string  `json:"victimId"`
	Damage       int     `json:"damage"`
	VictimHealth int     `json:"victimHealth"`
	Weapon       string  `json:"weapon"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
}

// KillPayload contains kill event details
type KillPayload struct {
	KillerID     string `json:"killerId"`
	VictimID     string `json:"victimId"`
	Weapon       string `json:"weapon"`
	KillerKills  int    `json:"killerKills"`
	VictimDeaths int    `json:"victimDeaths"`
	Eliminated   bool   `json:"eliminated"`
}

// RespawnPayload contains respawn event details
type RespawnPayload struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
}

// PickupPayload records a weapon changing hands from the floor.
type PickupPayload struct {
	PlayerID string `json:"playerId"`
	PickupID string `json:"pickupId"`
	Weapon   string `json:"weapon"`
}

// PlayerJoinPayload contains player join details
type PlayerJoinPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Bot        bool   `json:"bot"`
	Color      string `json:"color"`
}

// MatchStartPayload marks the countdown expiring into live play.
type MatchStartPayload struct {
	PlayerCount int   `json:"playerCount"`
	DurationMs  int64 `json:"durationMs"`
}

// MatchEndPayload carries the final standings.
type MatchEndPayload struct {
	WinnerID    string             `json:"winnerId"`
	WinnerName  string             `json:"winnerName"`
	IsDraw      bool               `json:"isDraw"`
	DurationMs  int64              `json:"durationMs"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// LobbyOpenPayload announces a fresh lobby accepting joins.
type LobbyOpenPayload struct {
	MaxPlayers int `json:"maxPlayers"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, matchID, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		MatchID:   matchID,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
