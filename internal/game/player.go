package game

import (
	"fmt"
	"time"
)

// MaxHealth is the health every player spawns and respawns with.
const MaxHealth = 100

// KillScore is the score value of one confirmed kill.
const KillScore = 100

// Player represents one participant, remote agent or bot.
type Player struct {
	ID          string
	Name        string
	StrategyTag string
	CharacterID string
	Color       string
	IsBot       bool
	Personality string
	Wallet      string

	// Pose
	X, Y, Z   float64
	Angle     float64 // facing, radians, 0 faces +Z
	Moving    bool
	moveAngle float64 // movement heading, decoupled from facing so strafing works

	// Loadout
	Weapon     string
	Ammo       int
	LastShotAt time.Time

	// Vitals
	Health     int
	Lives      int
	Alive      bool
	Eliminated bool

	// Death bookkeeping
	DiedAt         time.Time
	DeathX, DeathZ float64

	// Scoreboard
	Kills        int
	Deaths       int
	SurvivalTime float64 // seconds, accumulated across lives
	AliveSince   time.Time

	// One-shot command slots for the current tick, cleared after step 3.
	hasShoot    bool
	shootAngle  float64
	wantsMelee  bool
	wantsPickup bool
}

var playerColors = []string{
	"#ff6b6b", "#4ecdc4", "#45b7d1", "#96ceb4",
	"#ffeaa7", "#dfe6e9", "#fd79a8", "#00b894",
	"#6c5ce7", "#fdcb6e", "#e17055", "#00cec9",
}

// ColorForSlot assigns a stable palette color by join order.
func ColorForSlot(idx int) string {
	return playerColors[idx%len(playerColors)]
}

// DefaultCharacterID assigns a skin by join order when the agent did
// not pick one.
func DefaultCharacterID(idx int) string {
	return fmt.Sprintf("skin_%d", idx%8+1)
}

// NewPlayer creates a lobby participant with a full loadout. Position
// and alive-clock fields are assigned when the player is placed.
func NewPlayer(id, name string, lives int) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		Weapon: WeaponKnife,
		Ammo:   AmmoUnlimited,
		Health: MaxHealth,
		Lives:  lives,
		Alive:  true,
	}
}

// Score derives the scoreboard value from kills.
func (p *Player) Score() int {
	return p.Kills * KillScore
}

// DamageOutcome reports what a damage application did to the victim.
type DamageOutcome struct {
	Died       bool
	Eliminated bool
}

// TakeDamage applies damage and handles the death transition. Damage
// against a player who is already down is ignored.
func (p *Player) TakeDamage(damage int, now time.Time) DamageOutcome {
	if !p.Alive {
		return DamageOutcome{}
	}

	p.Health -= damage
	if p.Health > 0 {
		return DamageOutcome{}
	}
	p.Health = 0

	p.Alive = false
	p.Deaths++
	p.Lives--
	p.DiedAt = now
	p.DeathX = p.X
	p.DeathZ = p.Z
	p.SurvivalTime += now.Sub(p.AliveSince).Seconds()
	p.Moving = false
	p.clearTickCommands()

	if p.Lives <= 0 {
		p.Lives = 0
		p.Eliminated = true
	}
	return DamageOutcome{Died: true, Eliminated: p.Eliminated}
}

// CanRespawn reports whether the respawn delay has elapsed for a
// downed player that still has lives.
func (p *Player) CanRespawn(now time.Time, delay time.Duration) bool {
	return !p.Alive && !p.Eliminated && now.Sub(p.DiedAt) >= delay
}

// RespawnAt brings the player back at the given position with a fresh
// knife loadout. The facing angle carries over from the last life.
func (p *Player) RespawnAt(x, y, z float64, now time.Time) {
	p.X = x
	p.Y = y
	p.Z = z
	p.Health = MaxHealth
	p.Weapon = WeaponKnife
	p.Ammo = AmmoUnlimited
	p.Alive = true
	p.Moving = false
	p.AliveSince = now
	p.clearTickCommands()
}

// FinalizeSurvival folds the current life's time into the total when a
// match ends with the player still standing.
func (p *Player) FinalizeSurvival(now time.Time) {
	if !p.Alive {
		return
	}
	p.SurvivalTime += now.Sub(p.AliveSince).Seconds()
	p.AliveSince = now
}

func (p *Player) clearTickCommands() {
	p.hasShoot = false
	p.wantsMelee = false
	p.wantsPickup = false
}
