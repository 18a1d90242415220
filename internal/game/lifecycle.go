package game

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"shooter-arena/internal/game/bot"
)

// botNames seeds the callsigns given to arena bots, in fill order.
var botNames = []string{
	"VIPER", "COBRA", "HAVOC", "RAZOR", "GHOST", "BLITZ",
	"ONYX", "TALON", "FANG", "RIPTIDE", "STATIC", "WRAITH",
	"NOVA", "PYRE", "UMBRA", "SABLE", "TEMPO", "QUILL",
}

// JoinRequest carries everything an agent submits to enter the lobby.
type JoinRequest struct {
	APIKey      string
	AgentName   string
	StrategyTag string
	CharacterID string
	Wallet      string
}

// JoinResult tells the agent who it is and what it joined. StartsAt is
// set once the countdown is armed.
type JoinResult struct {
	PlayerID string `json:"playerId"`
	MatchID  string `json:"matchId"`
	Phase    string `json:"phase"`
	StartsAt int64  `json:"startsAt,omitempty"`
}

// MatchStatus is the public view of the current match for GET /status.
type MatchStatus struct {
	ID            string `json:"id"`
	Phase         string `json:"phase"`
	PlayerCount   int    `json:"playerCount"`
	MaxPlayers    int    `json:"maxPlayers"`
	StartsAt      int64  `json:"startsAt,omitempty"`
	StartedAt     int64  `json:"startedAt,omitempty"`
	EndsAt        int64  `json:"endsAt,omitempty"`
	TimeRemaining int64  `json:"timeRemaining"`
}

// NextMatchStatus tells spectators when the lobby after the running
// match opens. Its start time is unknowable until the second agent
// joins, so there is no startsAt until then.
type NextMatchStatus struct {
	ID           string `json:"id"`
	LobbyOpensAt int64  `json:"lobbyOpensAt"`
	StartsAt     int64  `json:"startsAt,omitempty"`
}

// StatusInfo is the GET /status body. Both match fields are null when
// they do not apply.
type StatusInfo struct {
	ServerTime   int64            `json:"serverTime"`
	CurrentMatch *MatchStatus     `json:"currentMatch"`
	NextMatch    *NextMatchStatus `json:"nextMatch"`
}

// openLobbyLocked tears down the previous match and opens a fresh lobby.
func (e *Engine) openLobbyLocked(now time.Time) {
	if old := e.match; old != nil {
		for id := range old.Players {
			e.world.Remove(id)
		}
	}
	e.brains = make(map[string]*bot.Brain)
	e.botSeq = 0
	e.pickupSeq = 0

	num := e.nextMatchNum
	e.nextMatchNum++
	e.match = newMatch(num)

	matchID := e.match.ID
	e.persist("ensure match "+matchID, func(ctx context.Context) error {
		return e.store.EnsureMatchExists(ctx, matchID, GameType)
	})
	if e.settle != nil {
		e.settle.OpenBetting(matchID)
	}
	e.emitEvent(EventTypeLobbyOpen, "", LobbyOpenPayload{MaxPlayers: e.sim.MaxPlayers})
	e.publishSnapshotLocked(now)
	log.Printf("🎮 lobby open for %s", matchID)
}

// Join admits an agent into the current lobby. Joining twice with the same
// api key returns the original membership instead of a second slot.
func (e *Engine) Join(req JoinRequest) (JoinResult, error) {
	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.match
	if m == nil {
		return JoinResult{}, reject(ErrNoMatch, "no lobby open")
	}
	if pid, ok := m.keyOwner[req.APIKey]; ok {
		return e.joinResultLocked(pid), nil
	}
	if m.Phase != PhaseLobby && m.Phase != PhaseCountdown {
		return JoinResult{}, reject(ErrMatchInProgress, "match already running, wait for the next lobby")
	}
	if len(m.Players) >= e.sim.MaxPlayers {
		return JoinResult{}, reject(ErrLobbyFull, fmt.Sprintf("lobby is full (%d players)", e.sim.MaxPlayers))
	}

	slot := len(m.order)
	p := NewPlayer(uuid.NewString(), req.AgentName, e.sim.MaxLives)
	p.StrategyTag = req.StrategyTag
	p.Wallet = req.Wallet
	p.Color = ColorForSlot(slot)
	p.CharacterID = req.CharacterID
	if p.CharacterID == "" {
		p.CharacterID = DefaultCharacterID(slot)
	}
	e.placeNewPlayerLocked(p)
	m.add(p, req.APIKey)

	e.recordJoinLocked(p)
	e.emitEvent(EventTypePlayerJoin, p.ID, PlayerJoinPayload{
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Bot:        false,
		Color:      p.Color,
	})
	log.Printf("👤 agent joined: %s (%d/%d)", p.Name, len(m.Players), e.sim.MaxPlayers)

	if m.Phase == PhaseLobby && m.agentCount() >= e.sim.MinPlayers {
		e.armCountdownLocked(now)
	}
	e.publishSnapshotLocked(now)
	return e.joinResultLocked(p.ID), nil
}

func (e *Engine) joinResultLocked(playerID string) JoinResult {
	m := e.match
	res := JoinResult{
		PlayerID: playerID,
		MatchID:  m.ID,
		Phase:    string(m.Phase),
	}
	if m.Phase == PhaseCountdown {
		res.StartsAt = m.CountdownEndsAt.UnixMilli()
	}
	return res
}

// placeNewPlayerLocked drops a player onto a free spawn point facing the
// arena centre.
func (e *Engine) placeNewPlayerLocked(p *Player) {
	x, z := e.findJoinSpawnLocked()
	e.world.CreateCapsule(p.ID, x, z)
	p.X, p.Y, p.Z = x, e.world.CapsuleY(), z
	p.Angle = math.Atan2(-x, -z)
	p.moveAngle = p.Angle
}

func (e *Engine) findJoinSpawnLocked() (float64, float64) {
	spawns := e.geo.SpawnPoints
	if len(spawns) > 0 {
		for _, i := range e.rng.Perm(len(spawns)) {
			sp := spawns[i]
			if !e.spawnOccupiedLocked(sp.X, sp.Z) {
				return sp.X, sp.Z
			}
		}
		sp := spawns[e.rng.Intn(len(spawns))]
		return sp.X, sp.Z
	}
	return e.randomOpenSpotLocked()
}

// recordJoinLocked queues the participant row and registers the player
// with the betting service.
func (e *Engine) recordJoinLocked(p *Player) {
	matchID := e.match.ID
	row := AgentJoinRow{
		PlayerID:    p.ID,
		AgentName:   p.Name,
		Color:       p.Color,
		SkinID:      p.CharacterID,
		StrategyTag: p.StrategyTag,
	}
	e.persist("record join "+p.Name, func(ctx context.Context) error {
		return e.store.RecordAgentJoin(ctx, matchID, row)
	})
	if e.settle != nil {
		e.settle.AddBettingAgent(matchID, p.Name, p.Wallet)
	}
}

// armCountdownLocked starts the pre-match countdown and tops the lobby up
// with bots.
func (e *Engine) armCountdownLocked(now time.Time) {
	m := e.match
	m.Phase = PhaseCountdown
	m.CountdownEndsAt = now.Add(e.sim.LobbyCountdown())
	e.fillBotsLocked()
	log.Printf("🕒 countdown armed for %s, starting in %v", m.ID, e.sim.LobbyCountdown())
}

// fillBotsLocked adds arena bots until the match reaches its fill target.
func (e *Engine) fillBotsLocked() {
	m := e.match
	for len(m.Players) < e.bots.FillTo && len(m.Players) < e.sim.MaxPlayers {
		slot := len(m.order)
		e.botSeq++
		pers := bot.PersonalityForSlot(e.botSeq - 1)

		p := NewPlayer(fmt.Sprintf("bot_%s_%d", m.ID, e.botSeq), botNames[(e.botSeq-1)%len(botNames)], e.sim.MaxLives)
		p.IsBot = true
		p.Personality = pers.Name
		p.StrategyTag = pers.Name
		p.Color = ColorForSlot(slot)
		p.CharacterID = DefaultCharacterID(slot)
		e.placeNewPlayerLocked(p)
		m.add(p, "")

		e.brains[p.ID] = bot.NewBrain(pers, e.bots, e.sim, e.rng.Int63())
		e.recordJoinLocked(p)
		e.emitEvent(EventTypePlayerJoin, p.ID, PlayerJoinPayload{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Bot:        true,
			Color:      p.Color,
		})
		log.Printf("🤖 bot joined: %s (%s)", p.Name, pers.Name)
	}
}

// startMatchLocked flips the countdown into live play.
func (e *Engine) startMatchLocked(now time.Time) {
	m := e.match
	m.Phase = PhaseActive
	m.StartTime = now
	m.EndTime = now.Add(e.sim.MatchDuration())
	m.Tick = 0
	for _, p := range m.Players {
		p.AliveSince = now
		p.SurvivalTime = 0
	}
	e.spawnInitialPickupsLocked()
	if e.settle != nil {
		e.settle.CloseBetting(m.ID)
	}
	e.emitEvent(EventTypeMatchStart, "", MatchStartPayload{
		PlayerCount: len(m.Players),
		DurationMs:  e.sim.MatchDuration().Milliseconds(),
	})
	e.publishSnapshotLocked(now)
	log.Printf("⚔️ match %s started with %d players", m.ID, len(m.Players))
}

func (e *Engine) spawnInitialPickupsLocked() {
	for i := 0; i < e.sim.InitialPickups; i++ {
		gun := RandomGun(e.rng)
		x, z := FindPickupSpot(e.geo, e.livingPlayersLocked(), e.match.Pickups, e.rng)
		e.spawnPickupLocked(gun, x, z)
	}
}

// finishMatchLocked freezes the standings, settles bets, persists results
// and schedules the next lobby.
func (e *Engine) finishMatchLocked(now time.Time) {
	m := e.match
	m.Phase = PhaseFinished
	if m.EndTime.After(now) {
		m.EndTime = now
	}
	for _, p := range m.Players {
		p.FinalizeSurvival(now)
	}

	rows := BuildLeaderboard(e.orderedPlayersLocked(), now, nil)
	m.Final = rows
	m.IsDraw = LeaderboardDraw(rows)

	result := SettlementResult{MatchID: m.ID, IsDraw: m.IsDraw}
	if !m.IsDraw && len(rows) > 0 {
		m.WinnerID = rows[0].ID
		m.WinnerName = rows[0].Name
		result.WinnerAgentNames = []string{m.WinnerName}
		wallet := ""
		if winner := m.Players[m.WinnerID]; winner != nil {
			wallet = winner.Wallet
		}
		result.WinnerAgentWallets = []string{wallet}
	} else {
		result.WinnerAgentNames = []string{}
		result.WinnerAgentWallets = []string{}
	}
	if e.settle != nil {
		e.settle.ResolveMatch(result)
	}

	matchID := m.ID
	winnerName := m.WinnerName
	endedAt := m.EndTime
	resultRows := make([]PlayerResultRow, 0, len(m.order))
	for _, id := range m.order {
		p := m.Players[id]
		resultRows = append(resultRows, PlayerResultRow{
			PlayerID:  p.ID,
			AgentName: p.Name,
			Score:     p.Score(),
			Kills:     p.Kills,
			Deaths:    p.Deaths,
		})
	}
	e.persist("record match end "+matchID, func(ctx context.Context) error {
		return e.store.RecordMatchEnd(ctx, matchID, winnerName, endedAt, resultRows)
	})

	e.emitEvent(EventTypeMatchEnd, m.WinnerID, MatchEndPayload{
		WinnerID:    m.WinnerID,
		WinnerName:  m.WinnerName,
		IsDraw:      m.IsDraw,
		DurationMs:  m.EndTime.Sub(m.StartTime).Milliseconds(),
		Leaderboard: rows,
	})
	e.nextLobbyAt = now.Add(e.sim.ResultsDuration())
	e.publishSnapshotLocked(now)

	if m.IsDraw {
		log.Printf("🏁 match %s finished in a draw", m.ID)
	} else {
		log.Printf("🏁 match %s finished, winner: %s", m.ID, m.WinnerName)
	}
}

// SubmitAction queues one agent action for the next tick. Later actions of
// the same kind in the same tick overwrite earlier ones at apply time.
func (e *Engine) SubmitAction(a Action) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m := e.match
	if m == nil {
		return reject(ErrNotInMatch, "no match open")
	}
	p := m.Players[a.PlayerID]
	if p == nil {
		return reject(ErrNotInMatch, "join the match before acting")
	}
	if m.Phase != PhaseActive {
		return reject(ErrMatchNotActive, "match is not active")
	}
	if p.Eliminated {
		return reject(ErrEliminated, "you are out of lives")
	}
	if !p.Alive {
		return reject(ErrDead, "you are dead, wait for respawn")
	}
	if !e.actions.TryPush(a) {
		return reject(ErrInternal, "action queue full, retry next tick")
	}
	return nil
}

// LookupPlayer resolves an api key to its player id in the current match.
func (e *Engine) LookupPlayer(apiKey string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.match == nil {
		return "", false
	}
	pid, ok := e.match.keyOwner[apiKey]
	return pid, ok
}

// Status reports the lifecycle state for GET /status.
func (e *Engine) Status() StatusInfo {
	now := e.clock()
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := StatusInfo{ServerTime: now.UnixMilli()}
	m := e.match
	if m == nil {
		return info
	}
	cur := &MatchStatus{
		ID:          m.ID,
		Phase:       string(m.Phase),
		PlayerCount: len(m.Players),
		MaxPlayers:  e.sim.MaxPlayers,
	}
	switch m.Phase {
	case PhaseCountdown:
		cur.StartsAt = m.CountdownEndsAt.UnixMilli()
		cur.TimeRemaining = TimeRemainingMs(m.CountdownEndsAt, now)
	case PhaseActive:
		cur.StartedAt = m.StartTime.UnixMilli()
		cur.EndsAt = m.EndTime.UnixMilli()
		cur.TimeRemaining = TimeRemainingMs(m.EndTime, now)
	case PhaseFinished:
		cur.StartedAt = m.StartTime.UnixMilli()
		cur.EndsAt = m.EndTime.UnixMilli()
		info.NextMatch = &NextMatchStatus{
			ID:           MatchIDForNumber(e.nextMatchNum),
			LobbyOpensAt: e.nextLobbyAt.UnixMilli(),
		}
	}
	info.CurrentMatch = cur
	return info
}

// StateFor returns the caller's personalised view of the latest snapshot.
func (e *Engine) StateFor(playerID string) (*AgentView, error) {
	snap := e.pool.AcquireRead()
	if snap == nil {
		return nil, reject(ErrNoMatch, "no state published yet")
	}
	view, ok := BuildAgentView(snap, playerID)
	if !ok {
		return nil, reject(ErrNotInMatch, "you are not in the current match")
	}
	return view, nil
}

// SpectatorState returns the latest full snapshot, nil before the first
// publish.
func (e *Engine) SpectatorState() *Snapshot {
	return e.pool.AcquireRead()
}
