// Package arena loads the map asset once at startup and bakes it into the
// immutable world-space geometry the simulation collides and raycasts
// against. Nothing here mutates after Load returns.
package arena

import (
	"math"

	"shooter-arena/internal/config"
)

// Vec3 is a world-space point.
type Vec3 struct {
	X, Y, Z float64
}

// Triangle is one raycastable face of the baked mesh.
type Triangle struct {
	A, B, C Vec3
}

// AABB is an axis-aligned box collider.
type AABB struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// Center returns the box centroid.
func (b AABB) Center() Vec3 {
	return Vec3{
		X: (b.MinX + b.MaxX) / 2,
		Y: (b.MinY + b.MaxY) / 2,
		Z: (b.MinZ + b.MaxZ) / 2,
	}
}

// SpanX returns the horizontal X extent.
func (b AABB) SpanX() float64 { return b.MaxX - b.MinX }

// SpanZ returns the horizontal Z extent.
func (b AABB) SpanZ() float64 { return b.MaxZ - b.MinZ }

// Height returns the vertical extent.
func (b AABB) Height() float64 { return b.MaxY - b.MinY }

// ContainsXZ reports whether the point, inflated by radius, overlaps the box
// footprint. The vertical axis is ignored.
func (b AABB) ContainsXZ(x, z, radius float64) bool {
	return x+radius > b.MinX && x-radius < b.MaxX &&
		z+radius > b.MinZ && z-radius < b.MaxZ
}

// expand grows the box by the given world-space vertex.
func (b *AABB) expand(v Vec3) {
	b.MinX = math.Min(b.MinX, v.X)
	b.MinY = math.Min(b.MinY, v.Y)
	b.MinZ = math.Min(b.MinZ, v.Z)
	b.MaxX = math.Max(b.MaxX, v.X)
	b.MaxY = math.Max(b.MaxY, v.Y)
	b.MaxZ = math.Max(b.MaxZ, v.Z)
}

// emptyAABB returns a box that expands correctly from the first vertex.
func emptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{MinX: inf, MinY: inf, MinZ: inf, MaxX: -inf, MaxY: -inf, MaxZ: -inf}
}

// StaticGeometry is the baked arena: play bounds, building colliders, the
// raycast mesh, the four perimeter walls, and the spawn point list.
type StaticGeometry struct {
	MinX, MaxX float64
	MinZ, MaxZ float64
	FloorY     float64

	Buildings   []AABB
	Walls       []AABB
	Triangles   []Triangle
	SpawnPoints []Vec3
}

// Colliders returns buildings plus perimeter walls, the set a capsule sweeps
// against.
func (g *StaticGeometry) Colliders() []AABB {
	out := make([]AABB, 0, len(g.Buildings)+len(g.Walls))
	out = append(out, g.Buildings...)
	out = append(out, g.Walls...)
	return out
}

// IsInsideBuilding reports whether a capsule footprint at (x, z) overlaps any
// building. Used for spawn validation; walls are excluded because spawns are
// already clamped inside the bounds.
func (g *StaticGeometry) IsInsideBuilding(x, z, radius float64) bool {
	for _, b := range g.Buildings {
		if b.ContainsXZ(x, z, radius) {
			return true
		}
	}
	return false
}

// boxKind classifies a mesh bounding box for collision purposes.
type boxKind int

const (
	kindFloor boxKind = iota
	kindClutter
	kindBuilding
)

// classifyBox decides whether a mesh AABB collides. Floors are wide and flat,
// clutter is too small or too sprawling to matter, buildings keep their box.
func classifyBox(b AABB, arenaSize float64) boxKind {
	if b.Height() < 0.5 && b.SpanX() > 0.6*arenaSize && b.SpanZ() > 0.6*arenaSize {
		return kindFloor
	}
	if b.Height() < 2.0 ||
		b.SpanX() < 2.0 || b.SpanZ() < 2.0 ||
		b.SpanX() > 0.5*arenaSize || b.SpanZ() > 0.5*arenaSize {
		return kindClutter
	}
	return kindBuilding
}

// PerimeterWalls builds the four thin boxes that box in the play area.
func PerimeterWalls(minX, maxX, minZ, maxZ, thickness, height, floorY float64) []AABB {
	top := floorY + height
	west := AABB{MinX: minX - thickness, MinY: floorY, MinZ: minZ - thickness, MaxX: minX, MaxY: top, MaxZ: maxZ + thickness}
	east := AABB{MinX: maxX, MinY: floorY, MinZ: minZ - thickness, MaxX: maxX + thickness, MaxY: top, MaxZ: maxZ + thickness}
	north := AABB{MinX: minX - thickness, MinY: floorY, MinZ: minZ - thickness, MaxX: maxX + thickness, MaxY: top, MaxZ: minZ}
	south := AABB{MinX: minX - thickness, MinY: floorY, MinZ: maxZ, MaxX: maxX + thickness, MaxY: top, MaxZ: maxZ + thickness}
	return []AABB{west, east, north, south}
}

// Fallback returns a perimeter-only arena for when no map asset is present.
func Fallback(cfg config.ArenaConfig) *StaticGeometry {
	half := cfg.Size / 2
	g := &StaticGeometry{
		MinX:   -half,
		MaxX:   half,
		MinZ:   -half,
		MaxZ:   half,
		FloorY: cfg.FloorY,
	}
	g.Walls = PerimeterWalls(g.MinX, g.MaxX, g.MinZ, g.MaxZ, cfg.WallThickness, cfg.WallHeight, cfg.FloorY)
	g.SpawnPoints = fallbackSpawns(cfg.Size, cfg.FloorY)
	return g
}

// fallbackSpawns places a deterministic ring of spawn points.
func fallbackSpawns(arenaSize, floorY float64) []Vec3 {
	const count = 8
	radius := arenaSize * 0.35
	points := make([]Vec3, 0, count)
	for i := 0; i < count; i++ {
		a := 2 * math.Pi * float64(i) / count
		points = append(points, Vec3{
			X: radius * math.Sin(a),
			Y: floorY,
			Z: radius * math.Cos(a),
		})
	}
	return points
}
