package game

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"shooter-arena/internal/arena"
	"shooter-arena/internal/config"
	"shooter-arena/internal/game/bot"
	"shooter-arena/internal/game/mpsc"
	"shooter-arena/internal/physics"
)

const (
	actionRingSize  = 1024
	persistQueueLen = 64
	persistTimeout  = 5 * time.Second
)

// EventSink receives snapshots and one-shot events for broadcast.
// Implementations must not block the caller.
type EventSink interface {
	BroadcastSnapshot(snap *Snapshot)
	BroadcastEvent(event string, payload any)
}

// Settlement mirrors the external betting service. Calls are fire-and-forget
// from the engine's point of view; implementations own their retries.
type Settlement interface {
	OpenBetting(matchID string)
	AddBettingAgent(matchID, agentName, wallet string)
	CloseBetting(matchID string)
	ResolveMatch(result SettlementResult)
}

// SettlementResult carries a match outcome to the settlement service.
// Winner slices are empty on a draw.
type SettlementResult struct {
	MatchID            string   `json:"matchId"`
	WinnerAgentNames   []string `json:"winnerAgentNames"`
	WinnerAgentWallets []string `json:"winnerAgentWallets"`
	IsDraw             bool     `json:"isDraw"`
}

// Store persists match history. All methods run off the tick thread.
type Store interface {
	EnsureMatchExists(ctx context.Context, matchID, gameType string) error
	RecordAgentJoin(ctx context.Context, matchID string, row AgentJoinRow) error
	RecordMatchEnd(ctx context.Context, matchID, winnerName string, endedAt time.Time, rows []PlayerResultRow) error
	HighestMatchNumber(ctx context.Context) (int, error)
}

// AgentJoinRow is one participant row written when a player enters a match.
type AgentJoinRow struct {
	PlayerID    string
	AgentName   string
	Color       string
	SkinID      string
	StrategyTag string
}

// PlayerResultRow is one participant's final line written at match end.
type PlayerResultRow struct {
	PlayerID  string
	AgentName string
	Score     int
	Kills     int
	Deaths    int
}

// EngineConfig wires the engine's collaborators. Sink, Store, Settlement and
// EventLog may be nil; the engine degrades to pure in-memory operation.
type EngineConfig struct {
	Simulation config.SimulationConfig
	Bots       config.BotConfig
	Geometry   *arena.StaticGeometry
	Sink       EventSink
	Store      Store
	Settlement Settlement
	EventLog   *EventLog
	Seed       int64
}

// Engine owns the authoritative match state. All mutation happens on the
// tick goroutine or under mu; API reads go through the snapshot pool so
// they never contend with the simulation.
type Engine struct {
	mu sync.RWMutex

	sim  config.SimulationConfig
	bots config.BotConfig

	geo   *arena.StaticGeometry
	world *physics.World
	ray   RayFunc

	match        *Match
	nextMatchNum int
	nextLobbyAt  time.Time

	actions   *mpsc.Ring[Action]
	actionBuf []Action

	brains map[string]*bot.Brain
	botSeq int

	rng  *rand.Rand
	pool *SnapshotPool

	// Reused scratch, only touched under mu on the tick path.
	arenaInfo     ArenaInfo
	obstacleViews []ObstacleView
	viewEnemies   []bot.Enemy
	viewPickups   []bot.Pickup
	botView       bot.World
	cmdBuf        []bot.Command
	targetsBuf    []ShotTarget
	shotsBuf      []queuedShot
	shootersBuf   []*Player
	playersBuf    []*Player

	events *EventLog
	sink   EventSink
	store  Store
	settle Settlement

	persistCh chan func()

	clock   func() time.Time
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	pickupSeq int

	// OnTickDuration, when set, observes the wall time of every tick.
	OnTickDuration func(time.Duration)
}

// NewEngine builds an engine around loaded arena geometry. It does not
// start ticking; call Start.
func NewEngine(cfg EngineConfig) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	world := physics.NewWorld(cfg.Geometry, cfg.Simulation)
	e := &Engine{
		sim:       cfg.Simulation,
		bots:      cfg.Bots,
		geo:       cfg.Geometry,
		world:     world,
		ray:       world.RayFirstHit,
		actions:   mpsc.NewRing[Action](actionRingSize),
		brains:    make(map[string]*bot.Brain),
		rng:       rand.New(rand.NewSource(seed)),
		pool:      NewSnapshotPool(cfg.Simulation.MaxPlayers, len(cfg.Geometry.Buildings)),
		events:    cfg.EventLog,
		sink:      cfg.Sink,
		store:     cfg.Store,
		settle:    cfg.Settlement,
		persistCh: make(chan func(), persistQueueLen),
		clock:     time.Now,
		stopCh:    make(chan struct{}),
	}
	e.arenaInfo = ArenaInfo{
		MinX:          cfg.Geometry.MinX,
		MaxX:          cfg.Geometry.MaxX,
		MinZ:          cfg.Geometry.MinZ,
		MaxZ:          cfg.Geometry.MaxZ,
		MovementSpeed: cfg.Simulation.MovementSpeed,
	}
	e.obstacleViews = make([]ObstacleView, 0, len(cfg.Geometry.Buildings))
	for _, ob := range cfg.Geometry.Buildings {
		e.obstacleViews = append(e.obstacleViews, ObstacleView{
			MinX: Round2(ob.MinX), MaxX: Round2(ob.MaxX),
			MinY: Round2(ob.MinY), MaxY: Round2(ob.MaxY),
			MinZ: Round2(ob.MinZ), MaxZ: Round2(ob.MaxZ),
		})
	}
	return e
}

// Start opens the first lobby and launches the tick loop.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	num := 1
	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if highest, err := e.store.HighestMatchNumber(ctx); err != nil {
			log.Printf("💾 match counter recovery failed, starting at 1: %v", err)
		} else {
			num = highest + 1
		}
		cancel()
	}
	e.mu.Lock()
	e.nextMatchNum = num
	e.openLobbyLocked(e.clock())
	e.mu.Unlock()

	e.wg.Add(2)
	go e.loop()
	go e.persistLoop()
	log.Printf("🎮 engine started (tick %v, match cap %d)", e.sim.TickInterval(), e.sim.MaxPlayers)
}

// Stop halts the tick loop and drains pending persistence work.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	log.Println("🛑 engine stopped")
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.sim.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(e.clock())
		}
	}
}

func (e *Engine) persistLoop() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.persistCh:
			fn()
		case <-e.stopCh:
			// Drain what is queued so match results are not lost.
			for {
				select {
				case fn := <-e.persistCh:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Tick advances the state machine by one step. Exported so tests can drive
// the engine with a synthetic clock instead of the wall ticker.
func (e *Engine) Tick(now time.Time) {
	start := time.Now()
	e.mu.Lock()
	if e.match == nil {
		e.mu.Unlock()
		return
	}
	switch e.match.Phase {
	case PhaseLobby:
		// Waiting for a second agent, nothing to advance.
	case PhaseCountdown:
		if !now.Before(e.match.CountdownEndsAt) {
			e.startMatchLocked(now)
		}
	case PhaseActive:
		e.simTickLocked(now)
	case PhaseFinished:
		if !now.Before(e.nextLobbyAt) {
			e.openLobbyLocked(now)
		}
	}
	e.mu.Unlock()
	if e.OnTickDuration != nil {
		e.OnTickDuration(time.Since(start))
	}
}

// simTickLocked runs one active-phase step. The order is contractual:
// time and contender checks, bot brains, action drain, movement, shooting,
// melee, pickups, respawns, termination, snapshot.
func (e *Engine) simTickLocked(now time.Time) {
	m := e.match
	m.Tick++

	if !now.Before(m.EndTime) || (len(m.Players) >= 2 && m.contenders() <= 1) {
		e.finishMatchLocked(now)
		return
	}

	e.tickBotsLocked(now)

	e.actionBuf = e.actions.Drain(e.actionBuf[:0])
	for i := range e.actionBuf {
		a := &e.actionBuf[i]
		p := m.Players[a.PlayerID]
		if p == nil || !p.Alive {
			continue
		}
		a.apply(p)
	}

	e.moveLocked()
	e.shootLocked(now)
	e.meleeLocked(now)
	e.pickupLocked()
	e.respawnLocked(now)

	if len(m.Players) >= 2 && m.contenders() <= 1 {
		e.finishMatchLocked(now)
		return
	}

	e.publishSnapshotLocked(now)
}

// tickBotsLocked runs every living bot brain and feeds its commands into
// the same action ring agents use, so they resolve in the same drain.
func (e *Engine) tickBotsLocked(now time.Time) {
	m := e.match
	if len(e.brains) == 0 {
		return
	}

	e.viewEnemies = e.viewEnemies[:0]
	for _, id := range m.order {
		p := m.Players[id]
		if !p.Alive {
			continue
		}
		e.viewEnemies = append(e.viewEnemies, bot.Enemy{
			ID: p.ID, X: p.X, Z: p.Z,
			Health:     p.Health,
			WeaponTier: GetWeapon(p.Weapon).Tier,
		})
	}
	e.viewPickups = e.viewPickups[:0]
	for _, pk := range m.Pickups {
		if pk.Taken {
			continue
		}
		e.viewPickups = append(e.viewPickups, bot.Pickup{ID: pk.ID, Type: pk.Type, X: pk.X, Z: pk.Z})
	}
	e.botView.Enemies = e.viewEnemies
	e.botView.Pickups = e.viewPickups
	e.botView.Bounds = bot.Bounds{
		MinX: e.geo.MinX, MaxX: e.geo.MaxX,
		MinZ: e.geo.MinZ, MaxZ: e.geo.MaxZ,
	}
	e.botView.Ray = e.ray

	for _, id := range m.order {
		p := m.Players[id]
		if !p.IsBot || !p.Alive {
			continue
		}
		brain := e.brains[id]
		if brain == nil {
			continue
		}
		w := GetWeapon(p.Weapon)
		e.botView.Self = bot.Self{
			ID: p.ID, X: p.X, Z: p.Z, Angle: p.Angle,
			Health:      p.Health,
			Ammo:        p.Ammo,
			Weapon:      p.Weapon,
			WeaponTier:  w.Tier,
			WeaponRange: w.Range,
		}
		e.cmdBuf = e.runBrain(brain, p.ID, now, e.cmdBuf[:0])
		for _, cmd := range e.cmdBuf {
			e.actions.TryPush(actionFromCommand(p.ID, cmd))
		}
	}
}

// runBrain isolates brain panics so one misbehaving bot cannot take the
// tick thread down with it.
func (e *Engine) runBrain(brain *bot.Brain, id string, now time.Time, buf []bot.Command) (cmds []bot.Command) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🤖 brain panic for %s: %v", id, r)
			cmds = append(buf[:0], bot.Command{Kind: bot.CmdStop})
		}
	}()
	return brain.Tick(&e.botView, now, buf)
}

func actionFromCommand(playerID string, cmd bot.Command) Action {
	switch cmd.Kind {
	case bot.CmdMove:
		return Action{PlayerID: playerID, Kind: ActionMove, Angle: cmd.Angle}
	case bot.CmdStop:
		return Action{PlayerID: playerID, Kind: ActionStop}
	case bot.CmdShoot:
		return Action{PlayerID: playerID, Kind: ActionShoot, Angle: cmd.Angle}
	case bot.CmdMelee:
		return Action{PlayerID: playerID, Kind: ActionMelee}
	default:
		return Action{PlayerID: playerID, Kind: ActionPickup}
	}
}

// moveLocked advances every moving player through the physics world.
func (e *Engine) moveLocked() {
	m := e.match
	dt := e.sim.TickInterval().Seconds()
	for _, id := range m.order {
		p := m.Players[id]
		if !p.Alive || !p.Moving {
			continue
		}
		dx := e.sim.MovementSpeed * dt * math.Sin(p.moveAngle)
		dz := e.sim.MovementSpeed * dt * math.Cos(p.moveAngle)
		p.X, p.Z = e.world.MoveCapsule(p.ID, dx, dz)
	}
}

// queuedShot freezes a shooter's loadout at the top of the shooting step.
type queuedShot struct {
	p    *Player
	w    Weapon
	ammo int
}

// shootLocked resolves every queued shot. Shooter loadouts are snapshotted
// at step entry so two shooters can trade lethal shots on the same tick:
// dying mid-step neither cancels a queued shot nor swaps the weapon it
// fires. Victims must still be alive at resolution time.
func (e *Engine) shootLocked(now time.Time) {
	m := e.match
	e.shotsBuf = e.shotsBuf[:0]
	for _, id := range m.order {
		p := m.Players[id]
		if !p.Alive || !p.hasShoot {
			continue
		}
		p.hasShoot = false
		w := GetWeapon(p.Weapon)
		if w.Melee {
			// Shooting with a knife equipped is a melee swing.
			p.wantsMelee = true
			continue
		}
		e.shotsBuf = append(e.shotsBuf, queuedShot{p: p, w: w, ammo: p.Ammo})
	}
	for _, q := range e.shotsBuf {
		p, w := q.p, q.w
		if !CanFire(w, q.ammo, p.LastShotAt, now) {
			continue
		}
		p.LastShotAt = now
		left := ConsumeAmmo(w, q.ammo)
		// Dying earlier in this step already downgraded the player to a
		// knife and dropped the gun, so only a live loadout takes the
		// decrement or the exhaustion swap.
		holdsGun := p.Weapon == w.ID
		if holdsGun {
			p.Ammo = left
		}

		targets := e.gatherTargetsLocked(p.ID)
		results := ResolveShot(p.X, p.Z, p.shootAngle, w, e.accuracyFor(p), targets, e.ray, e.rng)
		for _, res := range results {
			e.emitEvent(EventTypeShot, p.ID, ShotPayload{
				ShooterID: p.ID,
				Weapon:    w.ID,
				FromX:     Round2(p.X),
				FromZ:     Round2(p.Z),
				ToX:       Round2(res.EndX),
				ToZ:       Round2(res.EndZ),
				Hit:       res.Hit,
			})
			if res.Hit {
				e.applyHitLocked(p, m.Players[res.VictimID], w, now)
			}
		}

		if left == 0 && holdsGun && p.Weapon == w.ID {
			e.exhaustWeaponLocked(p, w)
		}
	}
}

// meleeLocked resolves queued melee swings. Swings always use knife stats
// and share the shot cooldown, whatever weapon is equipped.
func (e *Engine) meleeLocked(now time.Time) {
	m := e.match
	knife := Weapons[WeaponKnife]
	e.shootersBuf = e.shootersBuf[:0]
	for _, id := range m.order {
		p := m.Players[id]
		if p.Alive && p.wantsMelee {
			p.wantsMelee = false
			e.shootersBuf = append(e.shootersBuf, p)
		}
	}
	for _, p := range e.shootersBuf {
		if !CanFire(knife, 1, p.LastShotAt, now) {
			continue
		}
		p.LastShotAt = now
		victimID, _, ok := ResolveMelee(p.X, p.Z, e.sim.MeleeRange, e.gatherTargetsLocked(p.ID))
		if !ok {
			continue
		}
		e.applyHitLocked(p, m.Players[victimID], knife, now)
	}
}

// applyHitLocked lands damage on a victim and handles the death fallout:
// kill credit, weapon drop, capsule removal, elimination.
func (e *Engine) applyHitLocked(attacker, victim *Player, w Weapon, now time.Time) {
	if victim == nil || !victim.Alive {
		return
	}
	outcome := victim.TakeDamage(w.Damage, now)
	e.emitEvent(EventTypeHit, attacker.ID, HitPayload{
		AttackerID:   attacker.ID,
		VictimID:     victim.ID,
		Damage:       w.Damage,
		VictimHealth: victim.Health,
		Weapon:       w.ID,
		X:            Round2(victim.X),
		Y:            Round2(victim.Y),
		Z:            Round2(victim.Z),
	})
	if !outcome.Died {
		return
	}
	attacker.Kills++
	e.world.Remove(victim.ID)
	e.dropWeaponLocked(victim)
	e.emitEvent(EventTypeKill, attacker.ID, KillPayload{
		KillerID:     attacker.ID,
		VictimID:     victim.ID,
		Weapon:       w.ID,
		KillerKills:  attacker.Kills,
		VictimDeaths: victim.Deaths,
		Eliminated:   outcome.Eliminated,
	})
	log.Printf("💀 %s killed by %s (kills: %d)", victim.Name, attacker.Name, attacker.Kills)
}

// dropWeaponLocked turns a dead player's gun into a floor pickup at the
// death spot. Knife carriers drop nothing.
func (e *Engine) dropWeaponLocked(victim *Player) {
	w := GetWeapon(victim.Weapon)
	if w.Melee {
		return
	}
	e.spawnPickupLocked(w.ID, victim.DeathX, victim.DeathZ)
	victim.Weapon = WeaponKnife
	victim.Ammo = AmmoUnlimited
}

// exhaustWeaponLocked downgrades a dry gun to the knife and respawns the
// gun type as a fresh pickup elsewhere, in the same tick.
func (e *Engine) exhaustWeaponLocked(p *Player, w Weapon) {
	p.Weapon = WeaponKnife
	p.Ammo = AmmoUnlimited
	x, z := FindPickupSpot(e.geo, e.livingPlayersLocked(), e.match.Pickups, e.rng)
	e.spawnPickupLocked(w.ID, x, z)
}

func (e *Engine) spawnPickupLocked(weaponID string, x, z float64) {
	e.pickupSeq++
	e.match.Pickups = append(e.match.Pickups, &WeaponPickup{
		ID:   pickupID(e.pickupSeq),
		Type: weaponID,
		X:    x,
		Y:    e.geo.FloorY + pickupHover,
		Z:    z,
	})
}

// pickupLocked hands weapons to players touching a pickup. The explicit
// pickup action is advisory; contact alone is enough.
func (e *Engine) pickupLocked() {
	m := e.match
	for _, id := range m.order {
		p := m.Players[id]
		if !p.Alive {
			continue
		}
		p.wantsPickup = false
		pk, ok := NearestPickup(p.X, p.Z, e.sim.PickupRadius, m.Pickups)
		if !ok {
			continue
		}
		pk.Taken = true
		p.Weapon = pk.Type
		p.Ammo = GetWeapon(pk.Type).AmmoCapacity
		e.emitEvent(EventTypePickup, p.ID, PickupPayload{
			PlayerID: p.ID,
			PickupID: pk.ID,
			Weapon:   pk.Type,
		})
	}
	// Compact taken pickups in place.
	kept := m.Pickups[:0]
	for _, pk := range m.Pickups {
		if !pk.Taken {
			kept = append(kept, pk)
		}
	}
	for i := len(kept); i < len(m.Pickups); i++ {
		m.Pickups[i] = nil
	}
	m.Pickups = kept
}

// respawnLocked brings dead players with lives left back at a spawn point
// away from their death spot.
func (e *Engine) respawnLocked(now time.Time) {
	m := e.match
	for _, id := range m.order {
		p := m.Players[id]
		if !p.CanRespawn(now, e.sim.RespawnDelay()) {
			continue
		}
		x, z := e.findRespawnSpotLocked(p)
		e.world.CreateCapsule(p.ID, x, z)
		p.RespawnAt(x, e.world.CapsuleY(), z, now)
		if brain := e.brains[p.ID]; brain != nil {
			brain.Reset()
		}
		e.emitEvent(EventTypeRespawn, p.ID, RespawnPayload{
			PlayerID: p.ID,
			X:        Round2(x),
			Z:        Round2(z),
		})
	}
}

// findRespawnSpotLocked picks a spawn point that is unoccupied and far
// enough from the death spot, degrading gracefully when the arena is busy.
func (e *Engine) findRespawnSpotLocked(p *Player) (float64, float64) {
	spawns := e.geo.SpawnPoints
	if len(spawns) > 0 {
		for try := 0; try < 15; try++ {
			sp := spawns[e.rng.Intn(len(spawns))]
			if !e.spawnOccupiedLocked(sp.X, sp.Z) && math.Hypot(sp.X-p.DeathX, sp.Z-p.DeathZ) >= e.sim.MinRespawnDistance {
				return sp.X, sp.Z
			}
		}
		for _, sp := range spawns {
			if !e.spawnOccupiedLocked(sp.X, sp.Z) {
				return sp.X, sp.Z
			}
		}
	}
	return e.randomOpenSpotLocked()
}

// randomOpenSpotLocked samples the floor for a point outside every
// building, falling back to the arena center.
func (e *Engine) randomOpenSpotLocked() (float64, float64) {
	g := e.geo
	for try := 0; try < 25; try++ {
		x := g.MinX + 2 + e.rng.Float64()*(g.MaxX-g.MinX-4)
		z := g.MinZ + 2 + e.rng.Float64()*(g.MaxZ-g.MinZ-4)
		if !g.IsInsideBuilding(x, z, e.sim.PlayerRadius) {
			return x, z
		}
	}
	return (g.MinX + g.MaxX) / 2, (g.MinZ + g.MaxZ) / 2
}

func (e *Engine) spawnOccupiedLocked(x, z float64) bool {
	for _, p := range e.match.Players {
		if p.Alive && math.Hypot(p.X-x, p.Z-z) < e.sim.MinSpawnSeparation {
			return true
		}
	}
	return false
}

func (e *Engine) gatherTargetsLocked(excludeID string) []ShotTarget {
	e.targetsBuf = e.targetsBuf[:0]
	for _, id := range e.match.order {
		p := e.match.Players[id]
		if p.ID == excludeID || !p.Alive {
			continue
		}
		e.targetsBuf = append(e.targetsBuf, ShotTarget{
			ID: p.ID, X: p.X, Z: p.Z, Radius: e.sim.PlayerRadius,
		})
	}
	return e.targetsBuf
}

func (e *Engine) livingPlayersLocked() []*Player {
	e.playersBuf = e.playersBuf[:0]
	for _, id := range e.match.order {
		p := e.match.Players[id]
		if p.Alive {
			e.playersBuf = append(e.playersBuf, p)
		}
	}
	return e.playersBuf
}

func (e *Engine) orderedPlayersLocked() []*Player {
	e.playersBuf = e.playersBuf[:0]
	for _, id := range e.match.order {
		e.playersBuf = append(e.playersBuf, e.match.Players[id])
	}
	return e.playersBuf
}

// accuracyFor returns the spread input for a shooter. Humans aim exactly
// where they point; bots inherit their personality's accuracy.
func (e *Engine) accuracyFor(p *Player) float64 {
	if !p.IsBot {
		return 1.0
	}
	if brain := e.brains[p.ID]; brain != nil {
		return brain.Personality().Accuracy
	}
	return 1.0
}

// publishSnapshotLocked fills the next write buffer and flips it live.
func (e *Engine) publishSnapshotLocked(now time.Time) {
	m := e.match
	snap := e.pool.AcquireWrite()
	snap.MatchID = m.ID
	snap.Phase = string(m.Phase)
	snap.Tick = m.Tick
	switch m.Phase {
	case PhaseActive:
		snap.TimeRemaining = TimeRemainingMs(m.EndTime, now)
	case PhaseCountdown:
		snap.TimeRemaining = TimeRemainingMs(m.CountdownEndsAt, now)
	default:
		snap.TimeRemaining = 0
	}
	snap.Arena = e.arenaInfo

	for _, id := range m.order {
		p := m.Players[id]
		snap.Players = append(snap.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Alive:       p.Alive,
			X:           Round2(p.X),
			Y:           Round2(p.Y),
			Z:           Round2(p.Z),
			Angle:       WireAngle(p.Angle),
			Health:      p.Health,
			Lives:       p.Lives,
			Weapon:      p.Weapon,
			Ammo:        WireAmmo(p.Ammo),
			Kills:       p.Kills,
			Score:       p.Score(),
			CharacterID: p.CharacterID,
			Moving:      p.Moving,
		})
	}
	for _, pk := range m.Pickups {
		if pk.Taken || len(snap.Pickups) >= MaxPickupViews {
			continue
		}
		snap.Pickups = append(snap.Pickups, PickupView{
			ID: pk.ID, Type: pk.Type,
			X: Round2(pk.X), Y: Round2(pk.Y), Z: Round2(pk.Z),
		})
	}
	if m.Phase == PhaseFinished && len(m.Final) > 0 {
		snap.Leaderboard = append(snap.Leaderboard, m.Final...)
	} else {
		snap.Leaderboard = BuildLeaderboard(e.orderedPlayersLocked(), now, snap.Leaderboard)
	}
	snap.Obstacles = append(snap.Obstacles, e.obstacleViews...)

	e.pool.PublishWrite()
	if e.sink != nil {
		e.sink.BroadcastSnapshot(snap)
	}
}

// emitEvent journals an event and forwards the broadcastable kinds to the
// websocket sink.
func (e *Engine) emitEvent(t EventType, playerID string, payload any) {
	if e.events != nil {
		e.events.Emit(NewEvent(t, e.match.Tick, e.match.ID, playerID, payload))
	}
	if e.sink == nil {
		return
	}
	switch t {
	case EventTypeShot, EventTypeHit, EventTypeMatchEnd, EventTypeLobbyOpen:
		e.sink.BroadcastEvent(t.String(), payload)
	}
}

// persist queues a storage operation off the tick thread. Best effort: a
// full queue drops the write with a log line rather than stalling a tick.
func (e *Engine) persist(op string, fn func(ctx context.Context) error) {
	if e.store == nil {
		return
	}
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("💾 %s failed: %v", op, err)
		}
	}
	select {
	case e.persistCh <- job:
	default:
		log.Printf("💾 persistence queue full, dropping %s", op)
	}
}
