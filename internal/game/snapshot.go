package game

import (
	"math"
	"sync/atomic"
	"time"
)

// MaxPickupViews caps the pickups slice in a snapshot.
const MaxPickupViews = 64

// ArenaInfo describes the playable bounds for clients.
type ArenaInfo struct {
	MinX          float64 `json:"minX"`
	MaxX          float64 `json:"maxX"`
	MinZ          float64 `json:"minZ"`
	MaxZ          float64 `json:"maxZ"`
	MovementSpeed float64 `json:"movementSpeed"`
}

// PlayerView is one player as broadcast to clients. Positions are
// rounded to 2 decimals and the angle to 1 decimal in degrees.
type PlayerView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Alive       bool    `json:"alive"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Angle       float64 `json:"angle"`
	Health      int     `json:"health"`
	Lives       int     `json:"lives"`
	Weapon      string  `json:"weapon"`
	Ammo        any     `json:"ammo"` // count, or "unlimited" for the knife
	Kills       int     `json:"kills"`
	Score       int     `json:"score"`
	CharacterID string  `json:"characterId"`
	Moving      bool    `json:"moving"`
}

// PickupView is a gun on the floor.
type PickupView struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// LeaderboardEntry is one scoreboard row.
type LeaderboardEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Kills        int     `json:"kills"`
	Lives        int     `json:"lives"`
	Alive        bool    `json:"alive"`
	Score        int     `json:"score"`
	SurvivalTime float64 `json:"survivalTime"`
}

// ObstacleView is a static axis-aligned box clients can render and
// predict against.
type ObstacleView struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MinZ float64 `json:"minZ"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
	MaxZ float64 `json:"maxZ"`
}

// Snapshot is the complete spectator view of one tick. Slices are
// pre-allocated by the pool and reused across ticks.
type Snapshot struct {
	Sequence      uint64             `json:"-"`
	MatchID       string             `json:"matchId"`
	Phase         string             `json:"phase"`
	Tick          uint64             `json:"tick"`
	TimeRemaining int64              `json:"timeRemaining"`
	Arena         ArenaInfo          `json:"arena"`
	Players       []PlayerView       `json:"players"`
	Pickups       []PickupView       `json:"pickups"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Obstacles     []ObstacleView     `json:"obstacles"`
}

// AgentView is the per-agent state: the spectator snapshot with the
// caller pulled out into You and removed from Players.
type AgentView struct {
	Snapshot
	You *PlayerView `json:"you"`
}

// BuildAgentView derives an agent's view from a published snapshot.
// The slices are copied so the view stays stable while the pool
// rotates underneath it.
func BuildAgentView(snap *Snapshot, playerID string) (*AgentView, bool) {
	view := &AgentView{Snapshot: *snap}

	others := make([]PlayerView, 0, len(snap.Players))
	for i := range snap.Players {
		pv := snap.Players[i]
		if pv.ID == playerID {
			you := pv
			view.You = &you
			continue
		}
		others = append(others, pv)
	}
	if view.You == nil {
		return nil, false
	}
	view.Players = others
	return view, true
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Triple buffering keeps the tick-loop producer and the HTTP/websocket
// consumers lock-free: readers always see the latest published frame.
type SnapshotPool struct {
	snapshots [3]Snapshot
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
	published atomic.Bool
}

// NewSnapshotPool creates a pool with pre-allocated slices.
func NewSnapshotPool(maxPlayers, maxObstacles int) *SnapshotPool {
	pool := &SnapshotPool{}
	for i := 0; i < 3; i++ {
		pool.snapshots[i] = Snapshot{
			Players:     make([]PlayerView, 0, maxPlayers),
			Pickups:     make([]PickupView, 0, MaxPickupViews),
			Leaderboard: make([]LeaderboardEntry, 0, maxPlayers),
			Obstacles:   make([]ObstacleView, 0, maxObstacles),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (tick loop only).
// Slices are reset but keep their capacity.
func (p *SnapshotPool) AcquireWrite() *Snapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]

	snap.Players = snap.Players[:0]
	snap.Pickups = snap.Pickups[:0]
	snap.Leaderboard = snap.Leaderboard[:0]
	snap.Obstacles = snap.Obstacles[:0]

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	return snap
}

// PublishWrite marks the write complete and advances the read pointer.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
	p.published.Store(true)
}

// AcquireRead gets the latest complete snapshot, or nil when nothing
// has been published yet.
func (p *SnapshotPool) AcquireRead() *Snapshot {
	if !p.published.Load() {
		return nil
	}
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// Round2 rounds positions for the wire.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round1 rounds angles for the wire.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// WireAngle converts a radian heading into rounded degrees in [0, 360).
func WireAngle(rad float64) float64 {
	deg := math.Mod(rad*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return Round1(deg)
}

// WireAngleToRad converts a degree heading off the wire into radians.
func WireAngleToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// WireAmmo renders the ammo counter, with the knife's bottomless
// magazine spelled out.
func WireAmmo(ammo int) any {
	if ammo == AmmoUnlimited {
		return "unlimited"
	}
	return ammo
}

// TimeRemainingMs clamps the countdown-to-end for the wire.
func TimeRemainingMs(endTime, now time.Time) int64 {
	if endTime.IsZero() {
		return 0
	}
	rem := endTime.Sub(now).Milliseconds()
	if rem < 0 {
		return 0
	}
	return rem
}
