package game

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shooter-arena/internal/arena"
	"shooter-arena/internal/config"
)

// =============================================================================
// INTEGRATION TESTS: FULL MATCH LOOPS
// These drive complete matches through the engine, bots included, and audit
// the world state invariants every tick.
// =============================================================================

// TestIntegration_FullMatchWithBots plays one complete match with two idle
// agents and a bot fill, on a synthetic clock, checking state invariants at
// every tick until the match finishes and the next lobby opens.
func TestIntegration_FullMatchWithBots(t *testing.T) {
	f := newFixture(t, func(cfg *EngineConfig) {
		cfg.Bots.FillTo = 6
		cfg.Simulation.MatchDurationMs = 30_000
	})
	f.join(t, "test_alice", "alice")
	f.join(t, "test_bob", "bob")
	f.advance(f.e.sim.LobbyCountdown())
	if got := f.phase(); got != PhaseActive {
		t.Fatalf("Expected active phase, got %s", got)
	}

	maxTicks := int(f.e.sim.MatchDurationMs/50) + 40
	var lastSnapTick uint64
	ticks := 0
	for ; ticks < maxTicks; ticks++ {
		f.tick()
		phase := f.phase()
		if phase != PhaseActive && phase != PhaseFinished {
			t.Fatalf("Unexpected phase %s mid-match at tick %d", phase, ticks)
		}
		auditWorld(t, f)

		snap := f.e.SpectatorState()
		if snap == nil {
			t.Fatal("Snapshot missing during active match")
		}
		if snap.Tick < lastSnapTick {
			t.Fatalf("Snapshot tick went backwards: %d -> %d", lastSnapTick, snap.Tick)
		}
		lastSnapTick = snap.Tick
		for i := 0; i+1 < len(snap.Leaderboard); i++ {
			if leaderboardLess(snap.Leaderboard[i+1], snap.Leaderboard[i]) {
				t.Fatalf("Leaderboard out of order at rows %d/%d", i, i+1)
			}
		}

		if phase == PhaseFinished {
			break
		}
	}
	if got := f.phase(); got != PhaseFinished {
		t.Fatalf("Match never finished within %d ticks", maxTicks)
	}

	f.e.mu.RLock()
	matchID := f.e.match.ID
	winner := f.e.match.WinnerName
	isDraw := f.e.match.IsDraw
	final := append([]LeaderboardEntry(nil), f.e.match.Final...)
	var totalKills, totalDeaths int
	for _, p := range f.e.match.Players {
		totalKills += p.Kills
		totalDeaths += p.Deaths
	}
	f.e.mu.RUnlock()

	if len(final) != 6 {
		t.Errorf("Final standings should list all 6 players, got %d", len(final))
	}
	for i := 0; i+1 < len(final); i++ {
		if leaderboardLess(final[i+1], final[i]) {
			t.Errorf("Final standings out of order at rows %d/%d", i, i+1)
		}
	}
	if totalKills != totalDeaths {
		t.Errorf("Every death needs exactly one killer, got %d kills / %d deaths", totalKills, totalDeaths)
	}
	if isDraw != LeaderboardDraw(final) {
		t.Errorf("Draw flag %v disagrees with the standings", isDraw)
	}
	if !isDraw && len(final) > 0 && winner != final[0].Name {
		t.Errorf("Winner %q should be the top row %q", winner, final[0].Name)
	}

	f.settle.mu.Lock()
	resolved := append([]SettlementResult(nil), f.settle.resolved...)
	f.settle.mu.Unlock()
	if len(resolved) != 1 {
		t.Fatalf("Expected one settlement, got %d", len(resolved))
	}
	if resolved[0].IsDraw != isDraw {
		t.Errorf("Settlement draw flag %v disagrees with the match", resolved[0].IsDraw)
	}

	f.drainPersist()
	f.store.mu.Lock()
	storedRows := len(f.store.results[matchID])
	storedJoins := len(f.store.joins[matchID])
	f.store.mu.Unlock()
	if storedRows != 6 {
		t.Errorf("Expected 6 persisted result rows, got %d", storedRows)
	}
	if storedJoins != 6 {
		t.Errorf("Expected 6 persisted join rows, got %d", storedJoins)
	}

	// Results window runs out, a clean lobby opens.
	f.advance(f.e.sim.ResultsDuration())
	if got := f.phase(); got != PhaseLobby {
		t.Fatalf("Expected a fresh lobby, got %s", got)
	}
	f.e.mu.RLock()
	nextID := f.e.match.ID
	leftoverPlayers := len(f.e.match.Players)
	leftoverPickups := len(f.e.match.Pickups)
	leftoverBrains := len(f.e.brains)
	f.e.mu.RUnlock()
	if nextID != MatchIDForNumber(2) {
		t.Errorf("Expected match id %s, got %s", MatchIDForNumber(2), nextID)
	}
	if leftoverPlayers != 0 || leftoverPickups != 0 || leftoverBrains != 0 {
		t.Errorf("Fresh lobby should be empty, got %d players / %d pickups / %d brains",
			leftoverPlayers, leftoverPickups, leftoverBrains)
	}

	t.Logf("Full Match Results:")
	t.Logf("  Ticks: %d", ticks+1)
	t.Logf("  Winner: %q (draw=%v)", winner, isDraw)
	t.Logf("  Kills: %d", totalKills)
	t.Logf("  Shot Events: %d", len(f.sink.eventsNamed("shot")))
	t.Logf("  Hit Events: %d", len(f.sink.eventsNamed("hit")))
}

// auditWorld checks per-player invariants that must hold at every tick
// boundary.
func auditWorld(t *testing.T, f *fixture) {
	t.Helper()
	f.e.mu.RLock()
	defer f.e.mu.RUnlock()

	g := f.e.geo
	for _, id := range f.e.match.order {
		p := f.e.match.Players[id]

		if p.Health < 0 || p.Health > MaxHealth {
			t.Fatalf("Player %s health out of range: %d", p.Name, p.Health)
		}
		if p.Alive && p.Health < 1 {
			t.Fatalf("Player %s alive with health %d", p.Name, p.Health)
		}
		if p.Lives < 0 || p.Lives > f.e.sim.MaxLives {
			t.Fatalf("Player %s lives out of range: %d", p.Name, p.Lives)
		}
		if p.Eliminated && (p.Alive || p.Lives != 0) {
			t.Fatalf("Player %s eliminated but alive=%v lives=%d", p.Name, p.Alive, p.Lives)
		}

		if p.Alive {
			if p.X < g.MinX-0.01 || p.X > g.MaxX+0.01 || p.Z < g.MinZ-0.01 || p.Z > g.MaxZ+0.01 {
				t.Fatalf("Player %s out of bounds at (%.2f, %.2f)", p.Name, p.X, p.Z)
			}
		}

		w := GetWeapon(p.Weapon)
		if w.Melee {
			if p.Ammo != AmmoUnlimited {
				t.Fatalf("Player %s holds a knife with ammo %d", p.Name, p.Ammo)
			}
		} else if p.Ammo < 1 {
			t.Fatalf("Player %s holds a dry %s at tick end", p.Name, p.Weapon)
		}

		_, _, hasBody := f.e.world.Position(id)
		if hasBody != p.Alive {
			t.Fatalf("Player %s body/alive mismatch: body=%v alive=%v", p.Name, hasBody, p.Alive)
		}
	}
}

// TestIntegration_BackToBackMatches cycles three matches through the same
// engine and checks nothing leaks between them.
func TestIntegration_BackToBackMatches(t *testing.T) {
	f := newFixture(t, func(cfg *EngineConfig) {
		cfg.Simulation.MatchDurationMs = 1_000
		cfg.Simulation.InitialPickups = 0
	})

	for round := 1; round <= 3; round++ {
		f.e.mu.RLock()
		id := f.e.match.ID
		f.e.mu.RUnlock()
		if id != MatchIDForNumber(round) {
			t.Fatalf("Round %d: expected match id %s, got %s", round, MatchIDForNumber(round), id)
		}

		key := fmt.Sprintf("test_a%d", round)
		f.join(t, key, fmt.Sprintf("left%d", round))
		f.join(t, fmt.Sprintf("test_b%d", round), fmt.Sprintf("right%d", round))
		f.advance(f.e.sim.LobbyCountdown())

		for i := 0; i < 25 && f.phase() != PhaseFinished; i++ {
			f.tick()
		}
		if got := f.phase(); got != PhaseFinished {
			t.Fatalf("Round %d never finished", round)
		}

		// Joining mid-results is rejected, the key belongs to the old match.
		if _, err := f.e.Join(JoinRequest{APIKey: "test_late", AgentName: "late"}); rejectionKind(err) != ErrMatchInProgress {
			t.Errorf("Round %d: expected MATCH_IN_PROGRESS during results, got %v", round, err)
		}

		f.advance(f.e.sim.ResultsDuration())
		if got := f.phase(); got != PhaseLobby {
			t.Fatalf("Round %d: lobby never reopened", round)
		}
		if _, ok := f.e.LookupPlayer(key); ok {
			t.Errorf("Round %d: api key survived into the next match", round)
		}
	}

	f.drainPersist()
	f.store.mu.Lock()
	ensured := len(f.store.ensured)
	winners := len(f.store.winners)
	f.store.mu.Unlock()
	if ensured != 4 {
		t.Errorf("Expected 4 ensured matches (3 played + next lobby), got %d", ensured)
	}
	if winners != 3 {
		t.Errorf("Expected 3 recorded match ends, got %d", winners)
	}
}

// TestIntegration_ConcurrentReadersDuringMatch runs the real tick loop with
// concurrent state readers hammering the snapshot pool.
func TestIntegration_ConcurrentReadersDuringMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	sink := &fakeSink{}
	bots := config.DefaultBots()
	bots.FillTo = 4
	sim := config.DefaultSimulation()
	sim.LobbyCountdownMs = 200
	e := NewEngine(EngineConfig{
		Simulation: sim,
		Bots:       bots,
		Geometry:   arena.Fallback(config.DefaultArena()),
		Sink:       sink,
		Store:      newFakeStore(),
		Settlement: &fakeSettlement{},
		Seed:       7,
	})
	e.Start()
	defer e.Stop()

	resA, err := e.Join(JoinRequest{APIKey: "test_reader_a", AgentName: "reader_a"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := e.Join(JoinRequest{APIKey: "test_reader_b", AgentName: "reader_b"}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	var reads int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				switch id % 4 {
				case 0:
					e.SpectatorState()
				case 1:
					_, _ = e.StateFor(resA.PlayerID)
				case 2:
					e.Status()
				case 3:
					_ = e.SubmitAction(Action{PlayerID: resA.PlayerID, Kind: ActionMove, Angle: 1.0})
				}
				atomic.AddInt64(&reads, 1)
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	time.Sleep(1500 * time.Millisecond)
	close(stop)
	wg.Wait()

	snap := e.SpectatorState()
	if snap == nil {
		t.Fatal("No snapshot published by the live loop")
	}
	if snap.Tick == 0 {
		t.Error("Tick loop never advanced the simulation")
	}

	sink.mu.Lock()
	snaps := sink.snaps
	sink.mu.Unlock()

	t.Logf("Concurrent Reader Results:")
	t.Logf("  Reader Ops: %d", atomic.LoadInt64(&reads))
	t.Logf("  Broadcast Snapshots: %d", snaps)
	t.Logf("  Last Tick: %d", snap.Tick)
	if snaps < 10 {
		t.Errorf("Expected a steady snapshot stream, got %d", snaps)
	}
}
