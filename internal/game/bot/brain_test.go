package bot

import (
	"math"
	"testing"
	"time"

	"shooter-arena/internal/config"
)

func testBrain(pers Personality) *Brain {
	return NewBrain(pers, config.DefaultBots(), config.DefaultSimulation(), 42)
}

func personalityByName(t *testing.T, name string) Personality {
	t.Helper()
	for _, p := range Personalities {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("unknown personality %q", name)
	return Personality{}
}

// clearRay never hits anything.
func clearRay(_, _, _, _ float64) (float64, bool) {
	return 0, false
}

func testWorld(self Self, enemies []Enemy, pickups []Pickup, ray func(x, z, a, m float64) (float64, bool)) *World {
	if ray == nil {
		ray = clearRay
	}
	return &World{
		Self:    self,
		Enemies: enemies,
		Pickups: pickups,
		Bounds:  Bounds{MinX: -30, MaxX: 30, MinZ: -30, MaxZ: 30},
		Ray:     ray,
	}
}

func armedSelf() Self {
	return Self{
		ID:          "bot1",
		Health:      100,
		Ammo:        12,
		Weapon:      "pistol",
		WeaponTier:  1,
		WeaponRange: 40,
	}
}

func knifeSelf() Self {
	return Self{
		ID:          "bot1",
		Health:      100,
		Ammo:        -1,
		Weapon:      "knife",
		WeaponTier:  0,
		WeaponRange: 2.2,
	}
}

func findCmd(cmds []Command, kind CommandKind) (Command, bool) {
	for _, c := range cmds {
		if c.Kind == kind {
			return c, true
		}
	}
	return Command{}, false
}

func angleDiff(a, b float64) float64 {
	return math.Abs(normalizeAngle(a - b))
}

func TestUnarmedSeeksNearestGun(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	w := testWorld(knifeSelf(), nil, []Pickup{
		{ID: "pk1", Type: "pistol", X: 10, Z: 0},
		{ID: "pk2", Type: "smg", X: -20, Z: 0},
	}, nil)

	cmds := b.Tick(w, time.Now(), nil)

	move, ok := findCmd(cmds, CmdMove)
	if !ok {
		t.Fatal("expected a move command")
	}
	want := math.Pi / 2 // +X direction
	if angleDiff(move.Angle, want) > 0.2 {
		t.Errorf("move angle = %.2f, want ~%.2f toward nearest pickup", move.Angle, want)
	}
	if _, ok := findCmd(cmds, CmdShoot); ok {
		t.Error("knife carrier issued a shoot command")
	}
}

func TestSeekGunIssuesPickupInReach(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	self := knifeSelf()
	w := testWorld(self, nil, []Pickup{{ID: "pk1", Type: "pistol", X: 1, Z: 0}}, nil)

	cmds := b.Tick(w, time.Now(), nil)

	if _, ok := findCmd(cmds, CmdPickup); !ok {
		t.Error("expected a pickup command within reach")
	}
}

func TestGunGoalSticksThroughCommitment(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	now := time.Now()

	w := testWorld(knifeSelf(), nil, []Pickup{
		{ID: "pk1", Type: "pistol", X: 10, Z: 0},
		{ID: "pk2", Type: "smg", X: 0, Z: 11},
	}, nil)
	b.Tick(w, now, nil)

	if b.goalPickupID != "pk1" {
		t.Fatalf("committed pickup = %q, want pk1", b.goalPickupID)
	}

	// pk2 becomes marginally closer, commitment still holds
	w.Pickups[1].Z = 9.5
	b.Tick(w, now.Add(100*time.Millisecond), nil)

	if b.goalPickupID != "pk1" {
		t.Errorf("commitment flipped to %q before expiry", b.goalPickupID)
	}
}

func TestRushWinsOverDistantPickup(t *testing.T) {
	b := testBrain(personalityByName(t, "berserker"))
	// Enemy inside knife-rush range, the only gun far beyond it.
	w := testWorld(knifeSelf(),
		[]Enemy{{ID: "e1", X: 0, Z: 5, Health: 100}},
		[]Pickup{{ID: "pk1", Type: "pistol", X: 20, Z: 0}}, nil)

	cmds := b.Tick(w, time.Now(), nil)

	move, ok := findCmd(cmds, CmdMove)
	if !ok {
		t.Fatal("expected a move command")
	}
	if angleDiff(move.Angle, 0) > 0.2 {
		t.Errorf("move angle = %.2f, want ~0 rushing the close enemy", move.Angle)
	}
	if b.goal != goalRush {
		t.Errorf("goal = %v, want the rush commitment", b.goal)
	}
	if _, ok := findCmd(cmds, CmdPickup); ok {
		t.Error("detoured for a gun with an enemy in rush range")
	}
}

func TestSeeksPickupNearerThanCloseEnemy(t *testing.T) {
	b := testBrain(personalityByName(t, "berserker"))
	// Enemy inside knife-rush range, but the gun is even closer.
	w := testWorld(knifeSelf(),
		[]Enemy{{ID: "e1", X: 0, Z: 5, Health: 100}},
		[]Pickup{{ID: "pk1", Type: "pistol", X: 3, Z: 0}}, nil)

	cmds := b.Tick(w, time.Now(), nil)

	move, ok := findCmd(cmds, CmdMove)
	if !ok {
		t.Fatal("expected a move command")
	}
	if angleDiff(move.Angle, math.Pi/2) > 0.2 {
		t.Errorf("move angle = %.2f, want ~π/2 toward the nearer gun", move.Angle)
	}
	if b.goal != goalSeekGun {
		t.Errorf("goal = %v, want the gun commitment", b.goal)
	}
}

func TestGunGoalBreaksOnMeleeRangeEnemy(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	now := time.Now()

	w := testWorld(knifeSelf(), nil, []Pickup{{ID: "pk1", Type: "pistol", X: 10, Z: 0}}, nil)
	b.Tick(w, now, nil)
	if b.goal != goalSeekGun {
		t.Fatalf("goal = %v, want the gun commitment first", b.goal)
	}

	// An enemy steps into knife reach mid-commitment.
	w.Enemies = []Enemy{{ID: "e1", X: 0, Z: 1.5, Health: 100}}
	cmds := b.Tick(w, now.Add(100*time.Millisecond), nil)

	if b.goal == goalSeekGun {
		t.Error("gun commitment survived an enemy in melee range")
	}
	if _, ok := findCmd(cmds, CmdMelee); !ok {
		t.Error("expected a melee swing at the point-blank enemy")
	}
}

func TestArmedShootsEnemyWithClearLane(t *testing.T) {
	b := testBrain(personalityByName(t, "sniper"))
	w := testWorld(armedSelf(), []Enemy{{ID: "e1", X: 0, Z: 10, Health: 100}}, nil, nil)

	cmds := b.Tick(w, time.Now(), nil)

	shot, ok := findCmd(cmds, CmdShoot)
	if !ok {
		t.Fatal("expected a shoot command")
	}
	if angleDiff(shot.Angle, 0) > 0.01 {
		t.Errorf("aim angle = %.4f, want 0 toward enemy", shot.Angle)
	}
}

func TestBlockedLaneHoldsFire(t *testing.T) {
	b := testBrain(personalityByName(t, "sniper"))
	wallRay := func(_, _, _, _ float64) (float64, bool) { return 4, true }
	w := testWorld(armedSelf(), []Enemy{{ID: "e1", X: 0, Z: 10, Health: 100}}, nil, wallRay)

	cmds := b.Tick(w, time.Now(), nil)

	if _, ok := findCmd(cmds, CmdShoot); ok {
		t.Error("shot fired through a wall")
	}
	if _, ok := findCmd(cmds, CmdMove); !ok {
		t.Error("expected the bot to hunt toward the blocked target")
	}
}

func TestKitesWhenEnemyTooClose(t *testing.T) {
	b := testBrain(personalityByName(t, "cautious"))
	w := testWorld(armedSelf(), []Enemy{{ID: "e1", X: 0, Z: 2, Health: 100}}, nil, nil)

	cmds := b.Tick(w, time.Now(), nil)

	move, ok := findCmd(cmds, CmdMove)
	if !ok {
		t.Fatal("expected a move command")
	}
	if angleDiff(move.Angle, math.Pi) > 0.3 {
		t.Errorf("move angle = %.2f, want ~π away from point-blank enemy", move.Angle)
	}
}

func TestClosesWhenEnemyBeyondPreferredDistance(t *testing.T) {
	pers := personalityByName(t, "aggressive") // preferred distance 6
	b := testBrain(pers)
	w := testWorld(armedSelf(), []Enemy{{ID: "e1", X: 0, Z: 20, Health: 100}}, nil, nil)

	cmds := b.Tick(w, time.Now(), nil)

	move, ok := findCmd(cmds, CmdMove)
	if !ok {
		t.Fatal("expected a move command")
	}
	if angleDiff(move.Angle, 0) > 0.3 {
		t.Errorf("move angle = %.2f, want ~0 closing in", move.Angle)
	}
}

func TestKnifeRushMeleesInReach(t *testing.T) {
	b := testBrain(personalityByName(t, "berserker"))
	w := testWorld(knifeSelf(), []Enemy{{ID: "e1", X: 0, Z: 1.5, Health: 100}}, nil, nil)

	cmds := b.Tick(w, time.Now(), nil)

	if _, ok := findCmd(cmds, CmdMelee); !ok {
		t.Error("expected a melee swing in reach")
	}
	if _, ok := findCmd(cmds, CmdMove); !ok {
		t.Error("expected the rush to keep moving")
	}
}

func TestPatrolHoldsWanderHeading(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	now := time.Now()
	w := testWorld(knifeSelf(), nil, nil, nil)

	first, ok := findCmd(b.Tick(w, now, nil), CmdMove)
	if !ok {
		t.Fatal("expected a move command while patrolling")
	}
	second, ok := findCmd(b.Tick(w, now.Add(50*time.Millisecond), nil), CmdMove)
	if !ok {
		t.Fatal("expected a move command on the second tick")
	}

	if first.Angle != second.Angle {
		t.Errorf("wander heading changed within hold window: %.2f then %.2f", first.Angle, second.Angle)
	}
}

func TestSelectTargetPrefersWeakerInBand(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	w := testWorld(armedSelf(), []Enemy{
		{ID: "tank", X: 0, Z: 10, Health: 100, WeaponTier: 4},
		{ID: "weak", X: 0, Z: 11, Health: 30, WeaponTier: 1},
	}, nil, nil)

	target := b.selectTarget(w)
	if target == nil || target.ID != "weak" {
		t.Fatalf("target = %v, want the weaker enemy inside the band", target)
	}
}

func TestSelectTargetSticksWithCurrent(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	b.targetID = "old"
	w := testWorld(armedSelf(), []Enemy{
		{ID: "new", X: 0, Z: 10, Health: 100},
		{ID: "old", X: 0, Z: 11.5, Health: 100},
	}, nil, nil)

	target := b.selectTarget(w)
	if target == nil || target.ID != "old" {
		t.Fatalf("target = %v, want to stick with the live current target", target)
	}
}

func TestStuckRecoveryBreaksAwayFromWall(t *testing.T) {
	b := testBrain(personalityByName(t, "aggressive"))

	// Forward cone blocked right at the nose, everything else open.
	wallAhead := func(_, _, a, _ float64) (float64, bool) {
		if math.Abs(normalizeAngle(a)) < 30*deg {
			return 0.4, true
		}
		return 0, false
	}

	self := armedSelf()
	w := testWorld(self, []Enemy{{ID: "e1", X: 0, Z: 20, Health: 100}}, nil, wallAhead)

	now := time.Now()
	var lastMove Command
	for i := 0; i < 12; i++ {
		// Position never changes, the bot is wedged.
		cmds := b.Tick(w, now, nil)
		if mv, ok := findCmd(cmds, CmdMove); ok {
			lastMove = mv
		}
		now = now.Add(200 * time.Millisecond)
	}

	if angleDiff(lastMove.Angle, 0) < 30*deg {
		t.Errorf("move angle = %.2f still pointing at the wall after being stuck", lastMove.Angle)
	}
}

func TestBrainResetClearsCommitments(t *testing.T) {
	b := testBrain(personalityByName(t, "tactical"))
	w := testWorld(knifeSelf(), nil, []Pickup{{ID: "pk1", Type: "pistol", X: 10, Z: 0}}, nil)
	b.Tick(w, time.Now(), nil)

	if b.goal == goalNone {
		t.Fatal("expected a committed goal before reset")
	}
	b.Reset()
	if b.goal != goalNone || b.goalPickupID != "" || b.targetID != "" {
		t.Error("reset left stale goal state behind")
	}
}
