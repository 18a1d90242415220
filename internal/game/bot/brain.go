package bot

import (
	"math"
	"math/rand"
	"time"

	"shooter-arena/internal/config"
)

// Self is the brain's own body state for one tick.
type Self struct {
	ID          string
	X, Z        float64
	Angle       float64
	Health      int
	Ammo        int
	Weapon      string
	WeaponTier  int
	WeaponRange float64
}

// Enemy is a living player as the brain sees it. The engine hands all
// living bodies over, brains skip their own by ID.
type Enemy struct {
	ID         string
	X, Z       float64
	Health     int
	WeaponTier int
}

// Pickup is an untaken gun on the floor.
type Pickup struct {
	ID   string
	Type string
	X, Z float64
}

// Bounds is the playable rectangle.
type Bounds struct {
	MinX, MaxX float64
	MinZ, MaxZ float64
}

// World is the capability view handed to a brain each tick. It exposes
// queries over the arena, never engine internals.
type World struct {
	Self    Self
	Enemies []Enemy
	Pickups []Pickup
	Bounds  Bounds

	// Ray probes static geometry along a heading and reports the
	// distance to the first obstacle within maxLen.
	Ray func(x, z, angleRad, maxLen float64) (float64, bool)
}

// CommandKind enumerates what a brain can ask for.
type CommandKind int

const (
	CmdMove CommandKind = iota
	CmdStop
	CmdShoot
	CmdMelee
	CmdPickup
)

// Command is one decision output. Angle is the heading for CmdMove and
// the aim for CmdShoot.
type Command struct {
	Kind  CommandKind
	Angle float64
}

type goalKind int

const (
	goalNone goalKind = iota
	goalSeekGun
	goalRush
	goalHunt
)

const (
	seekGunCommit = 1500 * time.Millisecond
	rushCommit    = 2 * time.Second
	huntCommit    = 2 * time.Second

	// targetBand widens "nearest enemy" into a band where weaker or
	// worse-armed enemies are preferred.
	targetBand = 2.0

	strafeOffset = 72.0 / 180.0 * math.Pi
)

// Brain runs one bot. All fields are owned by the tick goroutine, a
// brain is never shared.
type Brain struct {
	pers Personality
	cfg  config.BotConfig
	sim  config.SimulationConfig
	rng  *rand.Rand

	// goal commitment
	goal         goalKind
	goalUntil    time.Time
	goalPickupID string
	goalTargetID string

	// target stickiness
	targetID string

	// patrol
	wanderAngle float64
	wanderUntil time.Time

	// combat strafe
	strafeSign     float64
	strafeToggleAt time.Time

	// steering overlays, see steering.go
	lastX, lastZ  float64
	lastSampleAt  time.Time
	stuckSince    time.Time
	recoverUntil  time.Time
	recoverAngle  float64
	recoverCount  int
	lastHeading   float64
	haveHeading   bool
	reversals     int
	lastReversal  time.Time
	oscUntil      time.Time
	oscAngle      float64
	losLostSince  time.Time
	standoffUntil time.Time
	standoffAngle float64
	avoidAngle    float64
	avoidUntil    time.Time
}

// NewBrain seeds a brain. Each bot gets its own rng stream so replays
// of one brain are not perturbed by the others.
func NewBrain(pers Personality, botCfg config.BotConfig, simCfg config.SimulationConfig, seed int64) *Brain {
	return &Brain{
		pers:       pers,
		cfg:        botCfg,
		sim:        simCfg,
		rng:        rand.New(rand.NewSource(seed)),
		strafeSign: 1,
	}
}

// Personality exposes the brain's tuning, mainly for logs.
func (b *Brain) Personality() Personality {
	return b.pers
}

// Reset clears transient state after a respawn or match restart.
func (b *Brain) Reset() {
	b.goal = goalNone
	b.goalPickupID = ""
	b.goalTargetID = ""
	b.targetID = ""
	b.wanderUntil = time.Time{}
	b.strafeToggleAt = time.Time{}
	b.lastSampleAt = time.Time{}
	b.stuckSince = time.Time{}
	b.recoverUntil = time.Time{}
	b.recoverCount = 0
	b.haveHeading = false
	b.reversals = 0
	b.oscUntil = time.Time{}
	b.losLostSince = time.Time{}
	b.standoffUntil = time.Time{}
	b.avoidUntil = time.Time{}
}

// Tick computes this tick's commands: exactly one movement command
// (move or stop), plus optional shoot, melee and pickup. cmds is an
// append target reused across ticks.
func (b *Brain) Tick(w *World, now time.Time, cmds []Command) []Command {
	self := w.Self
	armed := self.WeaponTier > 0

	b.validateGoal(w, now, armed)

	target := b.selectTarget(w)
	if (b.goal == goalRush || b.goal == goalHunt) && b.goalTargetID != "" {
		if committed := findEnemy(w, b.goalTargetID); committed != nil {
			target = committed
		}
	}

	// Knife carriers swing at anything in reach, whatever else the
	// tick decides.
	if target != nil && !armed {
		if math.Hypot(target.X-self.X, target.Z-self.Z) <= b.sim.MeleeRange*0.95 {
			cmds = append(cmds, Command{Kind: CmdMelee})
		}
	}

	var heading float64
	moving := false
	engaged := false

	switch {
	case !armed && len(w.Pickups) > 0 && (b.goal == goalSeekGun || b.wantsGun(w, target)):
		heading, moving, cmds = b.seekGun(w, now, cmds)

	case armed && target != nil:
		heading, moving, engaged, cmds = b.fight(w, target, now, cmds)

	case !armed && target != nil && withinRadius(self.X, self.Z, target.X, target.Z, b.cfg.KnifeRushRadius):
		if b.goal != goalRush || b.goalTargetID != target.ID {
			b.goal = goalRush
			b.goalTargetID = target.ID
			b.goalUntil = now.Add(rushCommit)
		}
		heading = bearing(self.X, self.Z, target.X, target.Z)
		moving = true

	case target != nil:
		if b.goal != goalHunt || b.goalTargetID != target.ID {
			b.goal = goalHunt
			b.goalTargetID = target.ID
			b.goalUntil = now.Add(huntCommit)
		}
		heading = bearing(self.X, self.Z, target.X, target.Z)
		moving = true

	default:
		heading, moving = b.patrol(w, now)
	}

	if !engaged {
		b.losLostSince = time.Time{}
	}

	heading, moving = b.applyOverlays(w, now, heading, moving)

	if moving {
		cmds = append(cmds, Command{Kind: CmdMove, Angle: heading})
	} else {
		cmds = append(cmds, Command{Kind: CmdStop})
	}
	return cmds
}

// seekGun commits to the nearest gun pickup and walks it down.
func (b *Brain) seekGun(w *World, now time.Time, cmds []Command) (float64, bool, []Command) {
	self := w.Self

	if b.goal != goalSeekGun || findPickup(w, b.goalPickupID) == nil {
		nearest := ""
		nearestDist := math.Inf(1)
		for i := range w.Pickups {
			pk := &w.Pickups[i]
			d := math.Hypot(pk.X-self.X, pk.Z-self.Z)
			if d < nearestDist {
				nearest = pk.ID
				nearestDist = d
			}
		}
		b.goal = goalSeekGun
		b.goalPickupID = nearest
		b.goalUntil = now.Add(seekGunCommit)
	}

	pk := findPickup(w, b.goalPickupID)
	if pk == nil {
		return 0, false, cmds
	}

	d := math.Hypot(pk.X-self.X, pk.Z-self.Z)
	if d <= b.sim.PickupRadius+0.5 {
		cmds = append(cmds, Command{Kind: CmdPickup})
	}
	return bearing(self.X, self.Z, pk.X, pk.Z), true, cmds
}

// wantsGun decides whether an unarmed bot detours for a gun instead of
// rushing. With no enemy around, or the enemy outside knife-rush range,
// the gun always wins. Inside rush range the detour only pays when the
// nearest pickup is closer than the enemy.
func (b *Brain) wantsGun(w *World, target *Enemy) bool {
	if target == nil {
		return true
	}
	self := w.Self
	enemyDist := math.Hypot(target.X-self.X, target.Z-self.Z)
	if enemyDist > b.cfg.KnifeRushRadius {
		return true
	}
	return nearestPickupDist(w) < enemyDist
}

func nearestPickupDist(w *World) float64 {
	best := math.Inf(1)
	for i := range w.Pickups {
		pk := &w.Pickups[i]
		if d := math.Hypot(pk.X-w.Self.X, pk.Z-w.Self.Z); d < best {
			best = d
		}
	}
	return best
}

// fight shoots when the lane is clear and keeps the personality's
// preferred distance: back off inside kite range, close when too far,
// strafe in between. Returns engaged=true when the line of sight to
// the target is blocked, which feeds the standoff overlay.
func (b *Brain) fight(w *World, target *Enemy, now time.Time, cmds []Command) (float64, bool, bool, []Command) {
	self := w.Self
	dist := math.Hypot(target.X-self.X, target.Z-self.Z)
	aim := bearing(self.X, self.Z, target.X, target.Z)

	blocked := false
	if t, hit := w.Ray(self.X, self.Z, aim, dist); hit && t < dist {
		blocked = true
	}

	if blocked {
		if b.losLostSince.IsZero() {
			b.losLostSince = now
		}
		if b.goal != goalHunt || b.goalTargetID != target.ID {
			b.goal = goalHunt
			b.goalTargetID = target.ID
			b.goalUntil = now.Add(huntCommit)
		}
		return aim, true, true, cmds
	}
	b.losLostSince = time.Time{}

	// Aim error comes from the shot resolution itself, scaled by this
	// personality's accuracy, so the brain aims at the true bearing.
	if dist <= self.WeaponRange {
		cmds = append(cmds, Command{Kind: CmdShoot, Angle: aim})
	}

	kiteDist := b.cfg.KiteDist
	if self.Health < b.pers.FleeHealth {
		kiteDist *= 2
	}

	switch {
	case dist < kiteDist:
		return aim + math.Pi, true, false, cmds
	case dist > b.pers.PreferredDist*0.9:
		return aim, true, false, cmds
	default:
		if now.After(b.strafeToggleAt) {
			b.strafeSign = -b.strafeSign
			interval := time.Duration(float64(b.cfg.StrafeChangeIntervalMs)*(0.8+b.rng.Float64()*0.4)) * time.Millisecond
			b.strafeToggleAt = now.Add(interval)
		}
		return aim + b.strafeSign*strafeOffset, true, false, cmds
	}
}

// patrol drifts toward the centre from the fringes, otherwise wanders
// on a heading held for a random interval.
func (b *Brain) patrol(w *World, now time.Time) (float64, bool) {
	self := w.Self
	cx := (w.Bounds.MinX + w.Bounds.MaxX) / 2
	cz := (w.Bounds.MinZ + w.Bounds.MaxZ) / 2
	span := math.Min(w.Bounds.MaxX-w.Bounds.MinX, w.Bounds.MaxZ-w.Bounds.MinZ)

	if math.Hypot(cx-self.X, cz-self.Z) > span*0.3 {
		return bearing(self.X, self.Z, cx, cz) + (b.rng.Float64()-0.5)*0.6, true
	}

	if now.After(b.wanderUntil) {
		b.wanderAngle = b.rng.Float64() * 2 * math.Pi
		holdMs := b.cfg.WanderMinMs + b.rng.Intn(b.cfg.WanderMaxMs-b.cfg.WanderMinMs+1)
		b.wanderUntil = now.Add(time.Duration(holdMs) * time.Millisecond)
	}
	return b.wanderAngle, true
}

// validateGoal drops commitments whose exit conditions tripped.
func (b *Brain) validateGoal(w *World, now time.Time, armed bool) {
	if b.goal == goalNone {
		return
	}
	if now.After(b.goalUntil) {
		b.clearGoal()
		return
	}

	switch b.goal {
	case goalSeekGun:
		if armed || findPickup(w, b.goalPickupID) == nil {
			b.clearGoal()
			return
		}
		// An enemy in melee range ends the detour, the knife takes over.
		for i := range w.Enemies {
			e := &w.Enemies[i]
			if e.ID == w.Self.ID {
				continue
			}
			if withinRadius(w.Self.X, w.Self.Z, e.X, e.Z, b.sim.MeleeRange) {
				b.clearGoal()
				return
			}
		}
	case goalRush:
		target := findEnemy(w, b.goalTargetID)
		if armed || target == nil ||
			!withinRadius(w.Self.X, w.Self.Z, target.X, target.Z, b.cfg.KnifeRushRadius*1.5) {
			b.clearGoal()
		}
	case goalHunt:
		if findEnemy(w, b.goalTargetID) == nil {
			b.clearGoal()
		}
	}
}

func (b *Brain) clearGoal() {
	b.goal = goalNone
	b.goalPickupID = ""
	b.goalTargetID = ""
}

// selectTarget picks the nearest enemy, preferring weaker or worse
// armed ones inside a 2 unit band, and sticks with the current target
// while it stays competitive.
func (b *Brain) selectTarget(w *World) *Enemy {
	self := w.Self

	bestIdx := -1
	nearestDist := math.Inf(1)
	for i := range w.Enemies {
		e := &w.Enemies[i]
		if e.ID == self.ID {
			continue
		}
		d := math.Hypot(e.X-self.X, e.Z-self.Z)
		if d < nearestDist {
			bestIdx = i
			nearestDist = d
		}
	}
	if bestIdx < 0 {
		b.targetID = ""
		return nil
	}

	for i := range w.Enemies {
		e := &w.Enemies[i]
		if i == bestIdx || e.ID == self.ID {
			continue
		}
		d := math.Hypot(e.X-self.X, e.Z-self.Z)
		if d > nearestDist+targetBand {
			continue
		}
		best := &w.Enemies[bestIdx]
		if e.Health < best.Health || (e.Health == best.Health && e.WeaponTier < best.WeaponTier) {
			bestIdx = i
		}
	}

	if b.targetID != "" && b.targetID != w.Enemies[bestIdx].ID {
		if cur := findEnemy(w, b.targetID); cur != nil {
			if math.Hypot(cur.X-self.X, cur.Z-self.Z) <= nearestDist+targetBand {
				b.targetID = cur.ID
				return cur
			}
		}
	}

	b.targetID = w.Enemies[bestIdx].ID
	return &w.Enemies[bestIdx]
}

func findEnemy(w *World, id string) *Enemy {
	if id == "" {
		return nil
	}
	for i := range w.Enemies {
		if w.Enemies[i].ID == id {
			return &w.Enemies[i]
		}
	}
	return nil
}

func findPickup(w *World, id string) *Pickup {
	if id == "" {
		return nil
	}
	for i := range w.Pickups {
		if w.Pickups[i].ID == id {
			return &w.Pickups[i]
		}
	}
	return nil
}

// bearing is the heading from (x,z) to (tx,tz), 0 facing +Z.
func bearing(x, z, tx, tz float64) float64 {
	return math.Atan2(tx-x, tz-z)
}

func withinRadius(x, z, tx, tz, r float64) bool {
	return math.Hypot(tx-x, tz-z) <= r
}
