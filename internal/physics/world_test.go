package physics

import (
	"math"
	"testing"

	"shooter-arena/internal/arena"
	"shooter-arena/internal/config"
)

// testWorld builds a 60x60 arena with one building block in front of the
// origin, matching the shape used throughout the engine tests.
func testWorld(t *testing.T) *World {
	t.Helper()

	geo := &arena.StaticGeometry{
		MinX: -30, MaxX: 30,
		MinZ: -30, MaxZ: 30,
		FloorY:    0,
		Buildings: []arena.AABB{{MinX: -2, MinY: 0, MinZ: 5, MaxX: 2, MaxY: 4, MaxZ: 25}},
	}
	geo.Walls = arena.PerimeterWalls(geo.MinX, geo.MaxX, geo.MinZ, geo.MaxZ, 1.0, 6.0, 0)

	return NewWorld(geo, config.DefaultSimulation())
}

// TestMoveCapsuleFreeMovement verifies unobstructed displacement applies fully.
func TestMoveCapsuleFreeMovement(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 10, -10)

	x, z := w.MoveCapsule("p1", 1.5, -2.0)

	if x != 11.5 || z != -12.0 {
		t.Errorf("free move ended at (%v, %v), want (11.5, -12)", x, z)
	}
}

// TestMoveCapsuleStopsAtBuilding verifies the sweep stops at the face.
func TestMoveCapsuleStopsAtBuilding(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 0, 3)

	// Walking +Z into the building front face at z=5.
	_, z := w.MoveCapsule("p1", 0, 3)

	wantZ := 5.0 - 0.5 // face minus capsule radius
	if math.Abs(z-wantZ) > 1e-9 {
		t.Errorf("blocked move ended at z=%v, want %v", z, wantZ)
	}
}

// TestMoveCapsuleSlidesAlongWall verifies the tangential component survives.
func TestMoveCapsuleSlidesAlongWall(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 0, 4.4)

	// Diagonal push: Z is blocked by the building, X should still apply.
	x, z := w.MoveCapsule("p1", 2.0, 2.0)

	if math.Abs(z-4.5) > 1e-9 {
		t.Errorf("z = %v, want 4.5 (stopped at face)", z)
	}
	if math.Abs(x-2.0) > 1e-9 {
		t.Errorf("x = %v, want 2.0 (slide preserved)", x)
	}
}

// TestMoveCapsuleClampedToBounds verifies the arena edge clamp.
func TestMoveCapsuleClampedToBounds(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 29, 0)

	x, _ := w.MoveCapsule("p1", 10, 0)

	// Stopped by the east perimeter wall at the bound minus radius.
	if x > 30-0.5+1e-9 {
		t.Errorf("x = %v, escaped the east bound", x)
	}
}

// TestMoveCapsuleRejectsNonFinite verifies NaN displacements are dropped.
func TestMoveCapsuleRejectsNonFinite(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 1, 2)

	x, z := w.MoveCapsule("p1", math.NaN(), 5)
	if x != 1 || z != 2 {
		t.Errorf("NaN move shifted body to (%v, %v), want (1, 2)", x, z)
	}

	x, z = w.MoveCapsule("p1", math.Inf(1), 0)
	if x != 1 || z != 2 {
		t.Errorf("Inf move shifted body to (%v, %v), want (1, 2)", x, z)
	}
}

// TestMoveCapsulePushesOutOfPenetration verifies overlap resolution.
func TestMoveCapsulePushesOutOfPenetration(t *testing.T) {
	w := testWorld(t)
	// Force a body inside the building.
	w.CreateCapsule("p1", 0, 6)

	x, z := w.MoveCapsule("p1", 0, 0)

	if w.IsInsideBuilding(x, z, 0.45) {
		t.Errorf("body still inside building at (%v, %v)", x, z)
	}
}

// TestTeleportOverridesCollision verifies teleport is unconditional.
func TestTeleportOverridesCollision(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 0, 0)

	w.Teleport("p1", 20, -20)
	x, z, ok := w.Position("p1")

	if !ok || x != 20 || z != -20 {
		t.Errorf("Position after teleport = (%v, %v, %v), want (20, -20, true)", x, z, ok)
	}
}

// TestRemoveDeletesBody verifies removal and unknown-id no-ops.
func TestRemoveDeletesBody(t *testing.T) {
	w := testWorld(t)
	w.CreateCapsule("p1", 0, 0)

	w.Remove("p1")
	if _, _, ok := w.Position("p1"); ok {
		t.Error("body still present after Remove")
	}

	w.Remove("ghost") // must not panic
}

// TestRayFirstHitBuilding verifies the slab test distance.
func TestRayFirstHitBuilding(t *testing.T) {
	w := testWorld(t)

	// +Z ray from origin into the building front face at z=5.
	tHit, ok := w.RayFirstHit(0, 0, 0, 40)
	if !ok {
		t.Fatal("expected a hit on the building")
	}
	if math.Abs(tHit-5.0) > 1e-9 {
		t.Errorf("hit distance = %v, want 5.0", tHit)
	}
}

// TestRayFirstHitClear verifies an unobstructed ray reports no hit.
func TestRayFirstHitClear(t *testing.T) {
	w := testWorld(t)

	// +X from the origin reaches the east wall only after 30 units.
	if _, ok := w.RayFirstHit(0, 0, math.Pi/2, 20); ok {
		t.Error("expected clear ray within 20 units")
	}

	// Same direction with enough reach hits the perimeter wall.
	tHit, ok := w.RayFirstHit(0, 0, math.Pi/2, 40)
	if !ok {
		t.Fatal("expected perimeter wall hit within 40 units")
	}
	if math.Abs(tHit-30.0) > 1e-9 {
		t.Errorf("wall hit distance = %v, want 30.0", tHit)
	}
}

// TestRayFirstHitTriangle verifies exact mesh hits take part in the cast.
func TestRayFirstHitTriangle(t *testing.T) {
	geo := &arena.StaticGeometry{
		MinX: -30, MaxX: 30,
		MinZ: -30, MaxZ: 30,
		FloorY: 0,
		Triangles: []arena.Triangle{{
			A: arena.Vec3{X: -5, Y: 0, Z: 10},
			B: arena.Vec3{X: 5, Y: 0, Z: 10},
			C: arena.Vec3{X: 0, Y: 5, Z: 10},
		}},
	}
	w := NewWorld(geo, config.DefaultSimulation())

	tHit, ok := w.RayFirstHit(0, 0, 0, 40)
	if !ok {
		t.Fatal("expected triangle hit")
	}
	if math.Abs(tHit-10.0) > 1e-9 {
		t.Errorf("triangle hit distance = %v, want 10.0", tHit)
	}

	// A ray aimed past the triangle's edge must miss it.
	if _, ok := w.RayFirstHit(8, 0, 0, 15); ok {
		t.Error("ray beside the triangle should be clear")
	}
}

// TestStepOverLowLedge verifies colliders under the step height never block.
func TestStepOverLowLedge(t *testing.T) {
	geo := &arena.StaticGeometry{
		MinX: -30, MaxX: 30,
		MinZ: -30, MaxZ: 30,
		FloorY: 0,
		// A curb 0.4 high across the walking line.
		Buildings: []arena.AABB{{MinX: -10, MinY: 0, MinZ: 9, MaxX: 10, MaxY: 0.4, MaxZ: 11}},
	}
	w := NewWorld(geo, config.DefaultSimulation())
	w.CreateCapsule("p1", 0, 8)

	_, z := w.MoveCapsule("p1", 0, 4)

	if math.Abs(z-12.0) > 1e-9 {
		t.Errorf("z = %v, want 12.0 (curb should not block)", z)
	}
}
