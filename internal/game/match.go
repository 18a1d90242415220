package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Phase is the match lifecycle state.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseFinished  Phase = "finished"
)

// GameType tags persisted matches.
const GameType = "shooter"

// Match owns everything scoped to one round. All access goes through
// the engine's lock.
type Match struct {
	ID        string
	Phase     Phase
	Tick      uint64
	StartTime time.Time
	EndTime   time.Time

	Players map[string]*Player
	order   []string // join order, the deterministic iteration order
	Pickups []*WeaponPickup

	keyOwner map[string]string // api key -> player id, for idempotent joins

	CountdownEndsAt time.Time

	// Final standings, set once on finish.
	WinnerID   string
	WinnerName string
	IsDraw     bool
	Final      []LeaderboardEntry
}

func newMatch(num int) *Match {
	return &Match{
		ID:       MatchIDForNumber(num),
		Phase:    PhaseLobby,
		Players:  make(map[string]*Player),
		keyOwner: make(map[string]string),
	}
}

// MatchIDForNumber renders the canonical match id.
func MatchIDForNumber(n int) string {
	return fmt.Sprintf("shooter_%d", n)
}

// ParseMatchNumber reads the sequence number out of a match id. Both
// the canonical shooter_<N> form and the older shooter_match_<N> form
// parse, so the counter survives database history from earlier builds.
func ParseMatchNumber(id string) (int, bool) {
	for _, prefix := range []string{"shooter_match_", "shooter_"} {
		rest, ok := strings.CutPrefix(id, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// add registers a player at the back of the join order.
func (m *Match) add(p *Player, apiKey string) {
	m.Players[p.ID] = p
	m.order = append(m.order, p.ID)
	if apiKey != "" {
		m.keyOwner[apiKey] = p.ID
	}
}

// contenders counts players still in the running: alive, or down with
// lives left. Eliminated players are out for good.
func (m *Match) contenders() int {
	n := 0
	for _, p := range m.Players {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

// agentCount counts human-driven participants.
func (m *Match) agentCount() int {
	n := 0
	for _, p := range m.Players {
		if !p.IsBot {
			n++
		}
	}
	return n
}
