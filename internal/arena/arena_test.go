package arena

import (
	"math"
	"testing"

	"shooter-arena/internal/config"
)

// TestClassifyBox verifies the floor/clutter/building rules.
func TestClassifyBox(t *testing.T) {
	const size = 60.0

	tests := []struct {
		name string
		box  AABB
		want boxKind
	}{
		{
			name: "wide flat slab is floor",
			box:  AABB{MinX: -25, MinY: 0, MinZ: -25, MaxX: 25, MaxY: 0.3, MaxZ: 25},
			want: kindFloor,
		},
		{
			name: "low crate is clutter",
			box:  AABB{MinX: 0, MinY: 0, MinZ: 0, MaxX: 3, MaxY: 1.2, MaxZ: 3},
			want: kindClutter,
		},
		{
			name: "thin pole is clutter",
			box:  AABB{MinX: 0, MinY: 0, MinZ: 0, MaxX: 0.4, MaxY: 5, MaxZ: 0.4},
			want: kindClutter,
		},
		{
			name: "sprawling mesh is clutter",
			box:  AABB{MinX: -20, MinY: 0, MinZ: -3, MaxX: 20, MaxY: 4, MaxZ: 3},
			want: kindClutter,
		},
		{
			name: "tall house is building",
			box:  AABB{MinX: -4, MinY: 0, MinZ: -4, MaxX: 4, MaxY: 5, MaxZ: 4},
			want: kindBuilding,
		},
		{
			name: "barely tall enough is building",
			box:  AABB{MinX: 0, MinY: 0, MinZ: 0, MaxX: 5, MaxY: 2.1, MaxZ: 5},
			want: kindBuilding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBox(tt.box, size); got != tt.want {
				t.Errorf("classifyBox(%+v) = %v, want %v", tt.box, got, tt.want)
			}
		})
	}
}

// TestPerimeterWalls verifies the four wall boxes enclose the play area.
func TestPerimeterWalls(t *testing.T) {
	walls := PerimeterWalls(-30, 30, -30, 30, 1.0, 6.0, 0)

	if len(walls) != 4 {
		t.Fatalf("expected 4 walls, got %d", len(walls))
	}

	for i, w := range walls {
		if w.Height() != 6.0 {
			t.Errorf("wall %d height = %v, want 6.0", i, w.Height())
		}
		// Every wall footprint must sit outside the playable interior.
		c := w.Center()
		inside := c.X > -30 && c.X < 30 && c.Z > -30 && c.Z < 30
		if inside {
			t.Errorf("wall %d center %+v lies inside the play area", i, c)
		}
	}
}

// TestFallbackGeometry verifies the no-asset degradation path.
func TestFallbackGeometry(t *testing.T) {
	cfg := config.DefaultArena()
	g := Fallback(cfg)

	if len(g.Buildings) != 0 {
		t.Errorf("fallback arena has %d buildings, want 0", len(g.Buildings))
	}
	if len(g.Walls) != 4 {
		t.Errorf("fallback arena has %d walls, want 4", len(g.Walls))
	}
	if len(g.SpawnPoints) == 0 {
		t.Fatal("fallback arena has no spawn points")
	}

	for i, sp := range g.SpawnPoints {
		if sp.X < g.MinX || sp.X > g.MaxX || sp.Z < g.MinZ || sp.Z > g.MaxZ {
			t.Errorf("spawn %d at (%v, %v) outside bounds", i, sp.X, sp.Z)
		}
	}

	// Ring spawns must be mutually distinct.
	for i := 0; i < len(g.SpawnPoints); i++ {
		for j := i + 1; j < len(g.SpawnPoints); j++ {
			a, b := g.SpawnPoints[i], g.SpawnPoints[j]
			d := math.Hypot(a.X-b.X, a.Z-b.Z)
			if d < 1.0 {
				t.Errorf("spawns %d and %d only %.2f apart", i, j, d)
			}
		}
	}
}

// TestIsInsideBuilding verifies the inflated footprint test.
func TestIsInsideBuilding(t *testing.T) {
	g := &StaticGeometry{
		Buildings: []AABB{{MinX: -2, MinY: 0, MinZ: 5, MaxX: 2, MaxY: 4, MaxZ: 25}},
	}

	tests := []struct {
		name   string
		x, z   float64
		radius float64
		want   bool
	}{
		{"deep inside", 0, 15, 0.5, true},
		{"far outside", 10, 0, 0.5, false},
		{"grazing by radius", 2.3, 15, 0.5, true},
		{"just clear of radius", 2.6, 15, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsInsideBuilding(tt.x, tt.z, tt.radius); got != tt.want {
				t.Errorf("IsInsideBuilding(%v, %v, %v) = %v, want %v", tt.x, tt.z, tt.radius, got, tt.want)
			}
		})
	}
}

// TestDedupeSpawns verifies duplicate markers collapse in discovery order.
func TestDedupeSpawns(t *testing.T) {
	identity := func(v Vec3) Vec3 { return v }
	markers := []spawnMarker{
		{name: "spawn_1", pos: Vec3{X: 1, Z: 1}},
		{name: "spawn_2", pos: Vec3{X: 5, Z: 5}},
		{name: "player_spawn_1_dup", pos: Vec3{X: 1.01, Z: 1.01}},
		{name: "spawn_3", pos: Vec3{X: -3, Z: 2}},
	}

	got := dedupeSpawns(markers, identity, 0)

	if len(got) != 3 {
		t.Fatalf("expected 3 deduped spawns, got %d: %+v", len(got), got)
	}
	if got[0].X != 1 || got[1].X != 5 || got[2].X != -3 {
		t.Errorf("spawn order not preserved: %+v", got)
	}
}

// TestIsSpawnMarker verifies the node naming convention match.
func TestIsSpawnMarker(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"player_spawn_1", true},
		{"Player_Spawn_3", true},
		{"spawn_0", true},
		{"SPAWN_12", true},
		{"respawn_area", false},
		{"building_07", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isSpawnMarker(tt.name); got != tt.want {
			t.Errorf("isSpawnMarker(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestTransformPoint verifies TRS composition against hand-computed cases.
func TestTransformPoint(t *testing.T) {
	// Pure translation.
	m := trsMatrix([3]float64{2, 3, 4}, [4]float64{0, 0, 0, 1}, [3]float64{1, 1, 1})
	got := transformPoint(m, Vec3{X: 1, Y: 1, Z: 1})
	want := Vec3{X: 3, Y: 4, Z: 5}
	if !closeVec(got, want) {
		t.Errorf("translate: got %+v, want %+v", got, want)
	}

	// 90 degrees about Y maps +X onto -Z.
	s := math.Sin(math.Pi / 4)
	c := math.Cos(math.Pi / 4)
	m = trsMatrix([3]float64{}, [4]float64{0, s, 0, c}, [3]float64{1, 1, 1})
	got = transformPoint(m, Vec3{X: 1})
	want = Vec3{Z: -1}
	if !closeVec(got, want) {
		t.Errorf("rotate: got %+v, want %+v", got, want)
	}

	// Uniform scale.
	m = trsMatrix([3]float64{}, [4]float64{0, 0, 0, 1}, [3]float64{2, 2, 2})
	got = transformPoint(m, Vec3{X: 1, Y: 2, Z: 3})
	want = Vec3{X: 2, Y: 4, Z: 6}
	if !closeVec(got, want) {
		t.Errorf("scale: got %+v, want %+v", got, want)
	}
}

// TestMulMatComposesLeftToRight verifies parent*child ordering.
func TestMulMatComposesLeftToRight(t *testing.T) {
	parent := trsMatrix([3]float64{10, 0, 0}, [4]float64{0, 0, 0, 1}, [3]float64{1, 1, 1})
	child := trsMatrix([3]float64{0, 0, 5}, [4]float64{0, 0, 0, 1}, [3]float64{1, 1, 1})

	world := mulMat(parent, child)
	got := transformPoint(world, Vec3{})
	want := Vec3{X: 10, Z: 5}
	if !closeVec(got, want) {
		t.Errorf("composed origin: got %+v, want %+v", got, want)
	}
}

func closeVec(a, b Vec3) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}
